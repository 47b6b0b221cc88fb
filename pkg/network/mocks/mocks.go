package mocks

import (
	"github.com/eigerco/bramble/pkg/network/mocks/quicconn"
	"github.com/eigerco/bramble/pkg/network/mocks/stream"
	"github.com/eigerco/bramble/pkg/network/mocks/transport"
)

func NewMockQuicConnection() *quicconn.MockQuicConnection {
	return quicconn.NewMockQuicConnection()
}

func NewMockQuicStream() *stream.MockQuicStream {
	return stream.NewMockQuicStream()
}

func NewMockTransportConn() *transport.MockTransportConn {
	return transport.NewMockTransportConn()
}

func NewMockStreamHandler() *stream.MockStreamHandler {
	return stream.NewMockStreamHandler()
}
