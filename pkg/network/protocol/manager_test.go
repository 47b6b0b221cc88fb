package protocol

import (
	"context"
	"crypto/tls"
	"errors"
	"testing"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/bramble/pkg/network/mocks"
)

const testChainHash = "abcd1234"

func createTestManager(t *testing.T) *Manager {
	manager, err := NewManager(Config{ChainHash: testChainHash})
	require.NoError(t, err)
	require.NotNil(t, manager)
	return manager
}

func TestNewManagerRejectsBadChainHash(t *testing.T) {
	_, err := NewManager(Config{ChainHash: ""})
	assert.Error(t, err)

	_, err = NewManager(Config{ChainHash: "not hex!"})
	assert.Error(t, err)
}

func TestManagerOnConnection(t *testing.T) {
	manager := createTestManager(t)

	mockCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mockConn := mocks.NewMockTransportConn()
	mockConn.On("Context").Return(mockCtx)
	mockConn.On("PeerKey").Return(nil)
	mockConn.On("Close").Return(nil)

	mockStream := mocks.NewMockQuicStream()
	mockStream.On("Read", mock.Anything).Run(func(args mock.Arguments) {
		b := args.Get(0).([]byte)
		b[0] = byte(StreamKindStatement)
	}).Return(1, nil)

	// One accepted stream, then errors until the context is cancelled
	mockConn.On("AcceptStream").Return(mockStream, nil).Once()
	mockConn.On("AcceptStream").Return(nil, errors.New("waiting")).Maybe()

	handlerCalled := make(chan struct{}, 1)
	mockHandler := mocks.NewMockStreamHandler()
	mockHandler.On("HandleStream", mock.Anything, mockStream, mock.Anything).Return(nil).
		Run(func(args mock.Arguments) {
			handlerCalled <- struct{}{}
		})
	manager.Registry.RegisterHandler(StreamKindStatement, mockHandler)

	protoConn := manager.OnConnection(mockConn)
	assert.NotNil(t, protoConn)

	select {
	case <-handlerCalled:
		// Success
	case <-time.After(300 * time.Millisecond):
		t.Fatal("Handler was not called within timeout")
	}

	// Cancel the context to stop the stream loop cleanly
	cancel()
	time.Sleep(100 * time.Millisecond)

	mockConn.AssertExpectations(t)
	mockStream.AssertExpectations(t)
	mockHandler.AssertExpectations(t)
}

func TestHandleStreamsStreamError(t *testing.T) {
	manager := createTestManager(t)

	mockCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mockConn := mocks.NewMockTransportConn()
	mockConn.On("Context").Return(mockCtx)
	mockConn.On("Close").Return(nil)

	// Non-timeout stream errors are tolerated, the loop keeps accepting
	mockConn.On("AcceptStream").Return(nil, errors.New("stream error"))

	protoConn := manager.OnConnection(mockConn)
	assert.NotNil(t, protoConn)

	time.Sleep(100 * time.Millisecond)

	cancel()
	time.Sleep(100 * time.Millisecond)

	mockConn.AssertExpectations(t)
	mockConn.AssertCalled(t, "Close")
}

func TestHandleStreamsTimeoutError(t *testing.T) {
	manager := createTestManager(t)

	mockConn := mocks.NewMockTransportConn()
	mockConn.On("Context").Return(context.Background())

	timeoutErr := &quic.ApplicationError{
		ErrorCode:    0,
		ErrorMessage: "timeout: no recent network activity",
	}
	mockConn.On("AcceptStream").Return(nil, timeoutErr).Once()

	// A timeout terminates the stream loop and closes the connection
	mockConn.On("Close").Return(nil)

	protoConn := manager.OnConnection(mockConn)
	assert.NotNil(t, protoConn)

	time.Sleep(100 * time.Millisecond)

	mockConn.AssertExpectations(t)
	mockConn.AssertNumberOfCalls(t, "Close", 1)
}

func TestHandleStreamsContextCancellation(t *testing.T) {
	manager := createTestManager(t)

	mockCtx, cancel := context.WithCancel(context.Background())

	mockConn := mocks.NewMockTransportConn()
	mockConn.On("Context").Return(mockCtx)
	mockConn.On("AcceptStream").Return(nil, errors.New("waiting"))
	mockConn.On("Close").Return(nil).Once()

	protoConn := manager.OnConnection(mockConn)
	assert.NotNil(t, protoConn)

	cancel()
	time.Sleep(100 * time.Millisecond)

	mockConn.AssertExpectations(t)
}

func TestManagerGetProtocols(t *testing.T) {
	manager := createTestManager(t)

	protos := manager.GetProtocols()
	assert.Equal(t, AcceptableProtocols(testChainHash), protos)
	assert.Contains(t, protos, NewProtocolID(testChainHash, false).String())
	assert.Contains(t, protos, NewProtocolID(testChainHash, true).String())
}

func TestManagerValidateConnection(t *testing.T) {
	t.Run("Valid validator protocol", func(t *testing.T) {
		manager := createTestManager(t)

		tlsState := tls.ConnectionState{
			NegotiatedProtocol: NewProtocolID(testChainHash, false).String(),
		}
		assert.NoError(t, manager.ValidateConnection(tlsState))
	})

	t.Run("Valid observer protocol", func(t *testing.T) {
		manager := createTestManager(t)

		tlsState := tls.ConnectionState{
			NegotiatedProtocol: NewProtocolID(testChainHash, true).String(),
		}
		assert.NoError(t, manager.ValidateConnection(tlsState))
	})

	t.Run("Empty protocol", func(t *testing.T) {
		manager := createTestManager(t)

		err := manager.ValidateConnection(tls.ConnectionState{NegotiatedProtocol: ""})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no protocol negotiated")
	})

	t.Run("Invalid protocol format", func(t *testing.T) {
		manager := createTestManager(t)

		err := manager.ValidateConnection(tls.ConnectionState{NegotiatedProtocol: "invalid-protocol"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid protocol")
	})

	t.Run("Chain hash mismatch", func(t *testing.T) {
		manager := createTestManager(t)

		differentChainHash := "abcd5678"
		tlsState := tls.ConnectionState{
			NegotiatedProtocol: NewProtocolID(differentChainHash, false).String(),
		}
		err := manager.ValidateConnection(tlsState)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "chain hash mismatch")
		assert.Contains(t, err.Error(), differentChainHash)
		assert.Contains(t, err.Error(), testChainHash)
	})
}
