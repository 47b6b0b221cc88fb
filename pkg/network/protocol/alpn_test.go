package protocol

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/quic-go/quic-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProtocolIDString(t *testing.T) {
	assert.Equal(t, "brnp-s/0/deadbeef", NewProtocolID("deadbeef", false).String())
	assert.Equal(t, "brnp-s/0/deadbeef/observer", NewProtocolID("deadbeef", true).String())
}

func TestParseProtocolID(t *testing.T) {
	id, err := ParseProtocolID("brnp-s/0/12345678")
	require.NoError(t, err)
	assert.Equal(t, "0", id.Version)
	assert.Equal(t, "12345678", id.ChainHash)
	assert.False(t, id.IsObserver)

	id, err = ParseProtocolID("brnp-s/0/abcdef01/observer")
	require.NoError(t, err)
	assert.True(t, id.IsObserver)
}

func TestParseProtocolIDErrors(t *testing.T) {
	tests := []struct {
		name     string
		protocol string
	}{
		{"empty", ""},
		{"too few parts", "brnp-s/0"},
		{"too many parts", "brnp-s/0/deadbeef/observer/extra"},
		{"wrong prefix", "other/0/deadbeef"},
		{"wrong version", "brnp-s/1/deadbeef"},
		{"short chain hash", "brnp-s/0/dead"},
		{"long chain hash", "brnp-s/0/deadbeef00"},
		{"uppercase chain hash", "brnp-s/0/DEADBEEF"},
		{"non-hex chain hash", "brnp-s/0/deadbeeg"},
		{"bad suffix", "brnp-s/0/deadbeef/validator"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProtocolID(tt.protocol)
			assert.Error(t, err)
		})
	}
}

func TestValidateALPNProtocol(t *testing.T) {
	assert.NoError(t, ValidateALPNProtocol("brnp-s/0/12345678"))
	assert.Error(t, ValidateALPNProtocol("brnp-s/0/nope"))
}

func TestAcceptableProtocols(t *testing.T) {
	assert.Equal(t, []string{
		"brnp-s/0/12345678",
		"brnp-s/0/12345678/observer",
	}, AcceptableProtocols("12345678"))
}

func TestStreamKinds(t *testing.T) {
	assert.True(t, StreamKindStatement.IsUniquePersistent())
	assert.True(t, StreamKindManifest.IsUniquePersistent())
	assert.False(t, StreamKindCandidateRequest.IsUniquePersistent())

	r := NewRegistry()
	assert.NoError(t, r.ValidateKind(byte(StreamKindStatement)))
	assert.NoError(t, r.ValidateKind(byte(StreamKindCandidateRequest)))
	assert.Error(t, r.ValidateKind(77))
}

type nopHandler struct{}

func (nopHandler) HandleStream(context.Context, quic.Stream, ed25519.PublicKey) error {
	return nil
}

func TestRegistryHandlers(t *testing.T) {
	r := NewRegistry()

	_, err := r.GetHandler(StreamKindStatement)
	assert.Error(t, err)

	r.RegisterHandler(StreamKindStatement, nopHandler{})
	got, err := r.GetHandler(StreamKindStatement)
	require.NoError(t, err)
	assert.Equal(t, nopHandler{}, got)
}
