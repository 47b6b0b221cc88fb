package statedist

import (
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/bramble/internal/crypto"
	"github.com/eigerco/bramble/internal/fragment"
	"github.com/eigerco/bramble/internal/parachain"
	"github.com/eigerco/bramble/internal/session"
)

// testEnv is a six-validator session split into two backing groups,
// with real Ed25519 keys so signatures verify end to end.
type testEnv struct {
	t           *testing.T
	info        *session.Info
	privs       []ed25519.PrivateKey
	relayParent crypto.Hash
	signingCtx  parachain.SigningContext
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	const numValidators = 6

	privs := make([]ed25519.PrivateKey, numValidators)
	keys := make([]crypto.ValidatorKey, numValidators)
	for i := range privs {
		pub, prv, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		privs[i] = prv
		keys[i] = crypto.ValidatorKey{Ed25519: pub}
	}

	groups := [][]parachain.ValidatorIndex{
		{0, 1, 2},
		{3, 4, 5},
	}
	info, err := session.NewInfo(7, keys, groups)
	require.NoError(t, err)

	var relayParent crypto.Hash
	_, err = rand.Read(relayParent[:])
	require.NoError(t, err)

	return &testEnv{
		t:           t,
		info:        info,
		privs:       privs,
		relayParent: relayParent,
		signingCtx:  parachain.SigningContext{RelayParent: relayParent, SessionIndex: 7},
	}
}

func (e *testEnv) sign(v parachain.ValidatorIndex, kind parachain.StatementKind, candidate parachain.CandidateHash) parachain.SignedStatement {
	return parachain.Sign(e.privs[v], v, kind, candidate, e.signingCtx)
}

// receipt builds a candidate receipt whose PVD hash is consistent, and
// returns it with its matching validation data and candidate hash.
func (e *testEnv) receipt(para parachain.ParaID) (parachain.CandidateReceipt, parachain.PersistedValidationData, parachain.CandidateHash) {
	pvd := parachain.PersistedValidationData{
		ParentHead:        []byte("head"),
		RelayParentNumber: 42,
		MaxPovSize:        1 << 20,
	}
	pvdHash, err := pvd.Hash()
	require.NoError(e.t, err)

	receipt := parachain.CandidateReceipt{
		RelayParent:                 e.relayParent,
		ParaID:                      para,
		PersistedValidationDataHash: pvdHash,
	}
	_, err = rand.Read(receipt.HeadDataHash[:])
	require.NoError(e.t, err)
	_, err = rand.Read(receipt.CommitmentsRoot[:])
	require.NoError(e.t, err)

	hash, err := receipt.Hash()
	require.NoError(e.t, err)
	return receipt, pvd, hash
}

type report struct {
	peer   parachain.PeerID
	change ReputationChange
}

// recordingSink captures reputation reports in order.
type recordingSink struct {
	mu      sync.Mutex
	reports []report
}

func (s *recordingSink) ReportPeer(peer parachain.PeerID, change ReputationChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report{peer: peer, change: change})
}

func (s *recordingSink) reasons() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.reports))
	for _, r := range s.reports {
		out = append(out, r.change.Reason)
	}
	return out
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports)
}

// fakeRequestSender records sent requests and can be made to fail.
type fakeRequestSender struct {
	mu   sync.Mutex
	to   []parachain.PeerID
	reqs []AttestedCandidateRequest
	err  error
}

func (f *fakeRequestSender) SendRequest(peer parachain.PeerID, req AttestedCandidateRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.to = append(f.to, peer)
	f.reqs = append(f.reqs, req)
	return nil
}

func (f *fakeRequestSender) sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

type statementSend struct {
	peers       []parachain.PeerID
	relayParent crypto.Hash
	stmt        parachain.SignedStatement
}

// fakeStatementSender records forwarded statements.
type fakeStatementSender struct {
	mu    sync.Mutex
	sends []statementSend
}

func (f *fakeStatementSender) SendStatement(peers []parachain.PeerID, relayParent crypto.Hash, stmt parachain.SignedStatement) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, statementSend{peers: peers, relayParent: relayParent, stmt: stmt})
}

func (f *fakeStatementSender) all() []statementSend {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]statementSend(nil), f.sends...)
}

type manifestSend struct {
	peers []parachain.PeerID
	msg   ManifestMessage
}

type fakeManifestSender struct {
	mu    sync.Mutex
	sends []manifestSend
}

func (f *fakeManifestSender) SendManifest(peers []parachain.PeerID, msg ManifestMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, manifestSend{peers: peers, msg: msg})
}

// staticPeers is a deterministic PeerInfo: fixed views and validator
// assignments.
type staticPeers struct {
	views      map[parachain.PeerID]map[crypto.Hash]bool
	validators map[parachain.PeerID]parachain.ValidatorIndex
}

func newStaticPeers() *staticPeers {
	return &staticPeers{
		views:      make(map[parachain.PeerID]map[crypto.Hash]bool),
		validators: make(map[parachain.PeerID]parachain.ValidatorIndex),
	}
}

func (p *staticPeers) add(id parachain.PeerID, validator parachain.ValidatorIndex, relayParents ...crypto.Hash) {
	p.validators[id] = validator
	view := make(map[crypto.Hash]bool)
	for _, rp := range relayParents {
		view[rp] = true
	}
	p.views[id] = view
}

// addObserver registers a peer with a view but no validator mapping.
func (p *staticPeers) addObserver(id parachain.PeerID, relayParents ...crypto.Hash) {
	view := make(map[crypto.Hash]bool)
	for _, rp := range relayParents {
		view[rp] = true
	}
	p.views[id] = view
}

func (p *staticPeers) PeersWithRelayParent(relayParent crypto.Hash) []parachain.PeerID {
	var ids []parachain.PeerID
	for id, view := range p.views {
		if view[relayParent] {
			ids = append(ids, id)
		}
	}
	return ids
}

func (p *staticPeers) HasRelayParentInView(peer parachain.PeerID, relayParent crypto.Hash) bool {
	return p.views[peer][relayParent]
}

func (p *staticPeers) ValidatorIndexOf(peer parachain.PeerID) (parachain.ValidatorIndex, bool) {
	v, ok := p.validators[peer]
	return v, ok
}

// memberAlways admits every candidate; memberNever rejects every candidate.
type memberAlways struct{}

func (memberAlways) HypotheticalMembership(parachain.CandidateReceipt) fragment.Membership {
	return fragment.Member
}

type memberNever struct{}

func (memberNever) HypotheticalMembership(parachain.CandidateReceipt) fragment.Membership {
	return fragment.NotMember
}

// memCandidateStore is an in-memory CandidateStore.
type memCandidateStore struct {
	mu       sync.Mutex
	receipts map[parachain.CandidateHash]parachain.CandidateReceipt
	pvds     map[parachain.CandidateHash]parachain.PersistedValidationData
}

func newMemCandidateStore() *memCandidateStore {
	return &memCandidateStore{
		receipts: make(map[parachain.CandidateHash]parachain.CandidateReceipt),
		pvds:     make(map[parachain.CandidateHash]parachain.PersistedValidationData),
	}
}

func (m *memCandidateStore) PutCandidate(receipt parachain.CandidateReceipt, pvd parachain.PersistedValidationData) error {
	hash, err := receipt.Hash()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts[hash] = receipt
	m.pvds[hash] = pvd
	return nil
}

func (m *memCandidateStore) GetCandidate(hash parachain.CandidateHash) (parachain.CandidateReceipt, parachain.PersistedValidationData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	receipt, ok := m.receipts[hash]
	if !ok {
		return parachain.CandidateReceipt{}, parachain.PersistedValidationData{}, ErrCandidateNotConfirmed
	}
	return receipt, m.pvds[hash], nil
}

func (m *memCandidateStore) PruneRelayParent(relayParent crypto.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hash, receipt := range m.receipts {
		if receipt.RelayParent == relayParent {
			delete(m.receipts, hash)
			delete(m.pvds, hash)
		}
	}
	return nil
}

// coordinatorFixture bundles a coordinator with all its recording fakes.
type coordinatorFixture struct {
	env       *testEnv
	coord     *Coordinator
	sink      *recordingSink
	requests  *fakeRequestSender
	sender    *fakeStatementSender
	manifests *fakeManifestSender
	peers     *staticPeers
	store     *memCandidateStore
}

func newCoordinatorFixture(t *testing.T, cfg Config) *coordinatorFixture {
	return newCoordinatorFixtureWithMembership(t, cfg, memberAlways{})
}

func newCoordinatorFixtureWithMembership(t *testing.T, cfg Config, membership fragment.Checker) *coordinatorFixture {
	t.Helper()
	env := newTestEnv(t)

	f := &coordinatorFixture{
		env:       env,
		sink:      &recordingSink{},
		requests:  &fakeRequestSender{},
		sender:    &fakeStatementSender{},
		manifests: &fakeManifestSender{},
		peers:     newStaticPeers(),
		store:     newMemCandidateStore(),
	}

	coord, err := NewCoordinator(
		cfg,
		env.info,
		f.sink,
		f.requests,
		f.sender,
		f.manifests,
		f.peers,
		membership,
		f.store,
		zerolog.Nop(),
	)
	require.NoError(t, err)
	f.coord = coord
	return f
}
