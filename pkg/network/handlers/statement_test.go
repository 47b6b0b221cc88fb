package handlers_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/bramble/internal/crypto"
	"github.com/eigerco/bramble/internal/parachain"
	"github.com/eigerco/bramble/internal/statedist"
	"github.com/eigerco/bramble/internal/testutils"
	"github.com/eigerco/bramble/pkg/network/handlers"
	nettestutils "github.com/eigerco/bramble/pkg/network/handlers/testutils"
)

type recordingProcessor struct {
	mu         sync.Mutex
	statements []statedist.StatementMessage
	manifests  []statedist.ManifestMessage
	peers      []parachain.PeerID
}

func (p *recordingProcessor) HandleStatement(peer parachain.PeerID, msg statedist.StatementMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.peers = append(p.peers, peer)
	p.statements = append(p.statements, msg)
}

func (p *recordingProcessor) HandleManifest(peer parachain.PeerID, relayParent crypto.Hash, candidate parachain.CandidateHash, group parachain.GroupIndex) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.peers = append(p.peers, peer)
	p.manifests = append(p.manifests, statedist.ManifestMessage{
		RelayParent:   relayParent,
		CandidateHash: candidate,
		Group:         group,
	})
}

func testStatementMessage(t *testing.T) statedist.StatementMessage {
	t.Helper()
	return statedist.StatementMessage{
		RelayParent: testutils.RandomHash(t),
		Statement: parachain.SignedStatement{
			ValidatorIndex: 3,
			Kind:           parachain.StatementSeconded,
			CandidateHash:  testutils.RandomCandidateHash(t),
			Signature:      testutils.RandomEd25519Signature(t),
		},
	}
}

func TestStatementHandlerReadsUntilEOF(t *testing.T) {
	ctx := context.Background()
	stream := nettestutils.NewMockStream()
	peerKey, _ := testutils.RandomEd25519Keypair(t)

	first := testStatementMessage(t)
	second := testStatementMessage(t)
	for _, msg := range []statedist.StatementMessage{first, second} {
		content, err := msg.Encode()
		require.NoError(t, err)
		require.NoError(t, handlers.WriteMessageWithContext(ctx, stream, content))
	}

	processor := &recordingProcessor{}
	err := handlers.NewStatementHandler(processor).HandleStream(ctx, stream, peerKey)
	require.NoError(t, err)

	require.Len(t, processor.statements, 2)
	assert.Equal(t, first, processor.statements[0])
	assert.Equal(t, second, processor.statements[1])
	assert.Equal(t, parachain.PeerID(peerKey), processor.peers[0])
}

func TestStatementHandlerUndecodableMessage(t *testing.T) {
	ctx := context.Background()
	stream := nettestutils.NewMockStream()
	peerKey, _ := testutils.RandomEd25519Keypair(t)

	require.NoError(t, handlers.WriteMessageWithContext(ctx, stream, []byte{0xde, 0xad}))

	processor := &recordingProcessor{}
	err := handlers.NewStatementHandler(processor).HandleStream(ctx, stream, peerKey)
	assert.Error(t, err)
	assert.Empty(t, processor.statements)
}

func TestStatementAnnouncerRoundTrip(t *testing.T) {
	ctx := context.Background()
	stream := nettestutils.NewMockStream()

	msg := testStatementMessage(t)
	require.NoError(t, handlers.NewStatementAnnouncer().Announce(ctx, stream, msg))

	read, err := handlers.ReadMessageWithContext(ctx, stream)
	require.NoError(t, err)
	decoded, err := statedist.DecodeStatementMessage(read.Content)
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)
}

func TestManifestHandler(t *testing.T) {
	ctx := context.Background()
	stream := nettestutils.NewMockStream()
	peerKey, _ := testutils.RandomEd25519Keypair(t)

	msg := statedist.ManifestMessage{
		RelayParent:   testutils.RandomHash(t),
		CandidateHash: testutils.RandomCandidateHash(t),
		Group:         2,
	}
	content, err := msg.Encode()
	require.NoError(t, err)
	require.NoError(t, handlers.WriteMessageWithContext(ctx, stream, content))

	processor := &recordingProcessor{}
	err = handlers.NewManifestHandler(processor).HandleStream(ctx, stream, peerKey)
	require.NoError(t, err)

	require.Len(t, processor.manifests, 1)
	assert.Equal(t, msg, processor.manifests[0])
}

func TestManifestAnnouncerRoundTrip(t *testing.T) {
	ctx := context.Background()
	stream := nettestutils.NewMockStream()

	msg := statedist.ManifestMessage{
		RelayParent:   testutils.RandomHash(t),
		CandidateHash: testutils.RandomCandidateHash(t),
		Group:         1,
	}
	require.NoError(t, handlers.NewManifestAnnouncer().Announce(ctx, stream, msg))

	read, err := handlers.ReadMessageWithContext(ctx, stream)
	require.NoError(t, err)
	decoded, err := statedist.DecodeManifestMessage(read.Content)
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)
}
