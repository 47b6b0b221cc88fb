package statedist

import (
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/eigerco/bramble/internal/crypto"
	"github.com/eigerco/bramble/internal/fragment"
	"github.com/eigerco/bramble/internal/parachain"
	"github.com/eigerco/bramble/internal/session"
)

var (
	ErrUnknownCandidate      = errors.New("candidate unknown")
	ErrCandidateNotConfirmed = errors.New("candidate not confirmed")
)

// CandidatePhase is the reconciliation progress of one candidate under one
// relay parent.
type CandidatePhase int

const (
	// PhaseUnknown: no statement recorded yet.
	PhaseUnknown CandidatePhase = iota
	// PhasePartiallyKnown: at least one statement recorded, group still
	// has unknown entries.
	PhasePartiallyKnown
	// PhaseFullyKnown: the local mask covers the whole group. Outstanding
	// requests lapse naturally; no new ones are scheduled.
	PhaseFullyKnown
)

func (p CandidatePhase) String() string {
	switch p {
	case PhaseUnknown:
		return "unknown"
	case PhasePartiallyKnown:
		return "partially-known"
	default:
		return "fully-known"
	}
}

// ManifestSender announces confirmed candidates to peers outside the
// backing group, prompting catch-up requests.
type ManifestSender interface {
	SendManifest(peers []parachain.PeerID, msg ManifestMessage)
}

// CandidateStore persists confirmed candidates (receipt plus validation
// data) so inbound candidate requests can be served across restarts.
type CandidateStore interface {
	PutCandidate(receipt parachain.CandidateReceipt, pvd parachain.PersistedValidationData) error
	GetCandidate(hash parachain.CandidateHash) (parachain.CandidateReceipt, parachain.PersistedValidationData, error)
	PruneRelayParent(relayParent crypto.Hash) error
}

// Config tunes the coordinator. Zero values select the defaults.
type Config struct {
	// LocalValidator is this node's validator index, nil for observers.
	LocalValidator *parachain.ValidatorIndex
	// RequestTimeout bounds one candidate request round trip.
	RequestTimeout time.Duration
	// RetryLimit is how many times a timed-out request is re-issued to the
	// same peer before the slot is simply freed.
	RetryLimit int
	// SecondedLimit caps seconded statements per validator per relay parent.
	SecondedLimit int
	// RecentlyPrunedSize bounds the cache distinguishing stale traffic for
	// just-pruned relay parents from unexpected traffic.
	RecentlyPrunedSize int
}

const (
	defaultRequestTimeout     = time.Second
	defaultSecondedLimit      = 2
	defaultRecentlyPrunedSize = 32
)

// Coordinator owns all per-relay-parent statement-reconciliation state and
// orchestrates knowledge tracking, request scheduling, response validation,
// reputation and rebroadcast. Work for one relay parent is serialized on
// that relay parent's lock; different relay parents proceed in parallel.
type Coordinator struct {
	cfg            Config
	session        *session.Info
	grid           session.Grid
	ledger         *Ledger
	requestSender  RequestSender
	manifestSender ManifestSender
	rebroadcaster  *Rebroadcaster
	peers          PeerInfo
	membership     fragment.Checker
	store          CandidateStore
	log            zerolog.Logger

	mu           sync.RWMutex
	relayParents map[crypto.Hash]*relayParentState

	indexMu        sync.RWMutex
	candidateIndex map[parachain.CandidateHash]crypto.Hash

	recentlyPruned *lru.Cache[crypto.Hash, struct{}]
}

type relayParentState struct {
	mu             sync.Mutex
	signingCtx     parachain.SigningContext
	knowledge      *Knowledge
	requests       *requestManager
	candidates     map[parachain.CandidateHash]*candidateState
	secondedCounts map[parachain.ValidatorIndex]int
	timers         map[requestKey]*time.Timer
}

type candidateState struct {
	phase      CandidatePhase
	group      parachain.GroupIndex
	statements []parachain.SignedStatement
	receipt    *parachain.CandidateReceipt
	pvd        *parachain.PersistedValidationData
	confirmed  bool
}

// NewCoordinator wires the coordinator. store and manifestSender may be
// nil when persistence or manifest announcements are not wanted.
func NewCoordinator(
	cfg Config,
	info *session.Info,
	sink ReportSink,
	requestSender RequestSender,
	statementSender StatementSender,
	manifestSender ManifestSender,
	peers PeerInfo,
	membership fragment.Checker,
	store CandidateStore,
	log zerolog.Logger,
) (*Coordinator, error) {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.SecondedLimit <= 0 {
		cfg.SecondedLimit = defaultSecondedLimit
	}
	if cfg.RecentlyPrunedSize <= 0 {
		cfg.RecentlyPrunedSize = defaultRecentlyPrunedSize
	}
	pruned, err := lru.New[crypto.Hash, struct{}](cfg.RecentlyPrunedSize)
	if err != nil {
		return nil, err
	}
	return &Coordinator{
		cfg:            cfg,
		session:        info,
		grid:           session.NewGrid(len(info.Validators)),
		ledger:         NewLedger(sink, log),
		requestSender:  requestSender,
		manifestSender: manifestSender,
		rebroadcaster:  NewRebroadcaster(statementSender, peers, info, cfg.LocalValidator, log),
		peers:          peers,
		membership:     membership,
		store:          store,
		log:            log,
		relayParents:   make(map[crypto.Hash]*relayParentState),
		candidateIndex: make(map[parachain.CandidateHash]crypto.Hash),
		recentlyPruned: pruned,
	}, nil
}

// ActivateLeaf creates the per-relay-parent state for a newly active leaf.
func (c *Coordinator) ActivateLeaf(relayParent crypto.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.relayParents[relayParent]; ok {
		return
	}
	c.relayParents[relayParent] = &relayParentState{
		signingCtx: parachain.SigningContext{
			RelayParent:  relayParent,
			SessionIndex: c.session.Index,
		},
		knowledge:      NewKnowledge(),
		requests:       newRequestManager(c.cfg.RequestTimeout, c.cfg.RetryLimit),
		candidates:     make(map[parachain.CandidateHash]*candidateState),
		secondedCounts: make(map[parachain.ValidatorIndex]int),
		timers:         make(map[requestKey]*time.Timer),
	}
	c.log.Debug().Str("relay_parent", relayParent.String()).Msg("leaf activated")
}

// DeactivateLeaf prunes a relay parent wholesale: all candidate state is
// discarded, outstanding requests are cancelled, and responses arriving
// afterwards are dropped without reputation effect.
func (c *Coordinator) DeactivateLeaf(relayParent crypto.Hash) {
	c.mu.Lock()
	rps, ok := c.relayParents[relayParent]
	delete(c.relayParents, relayParent)
	c.mu.Unlock()
	if !ok {
		return
	}
	c.recentlyPruned.Add(relayParent, struct{}{})

	rps.mu.Lock()
	rps.requests.CancelAll()
	for _, timer := range rps.timers {
		timer.Stop()
	}
	rps.timers = make(map[requestKey]*time.Timer)
	candidates := make([]parachain.CandidateHash, 0, len(rps.candidates))
	for hash := range rps.candidates {
		candidates = append(candidates, hash)
	}
	rps.mu.Unlock()

	c.indexMu.Lock()
	for _, hash := range candidates {
		if c.candidateIndex[hash] == relayParent {
			delete(c.candidateIndex, hash)
		}
	}
	c.indexMu.Unlock()

	if c.store != nil {
		if err := c.store.PruneRelayParent(relayParent); err != nil {
			c.log.Error().Err(err).
				Str("relay_parent", relayParent.String()).
				Msg("failed to prune stored candidates")
		}
	}
	c.log.Debug().Str("relay_parent", relayParent.String()).Int("candidates", len(candidates)).Msg("leaf pruned")
}

// HandleStatement processes one inbound gossip statement from a peer.
func (c *Coordinator) HandleStatement(peer parachain.PeerID, msg StatementMessage) {
	rps := c.lookup(msg.RelayParent)
	if rps == nil {
		// A statement for a just-pruned relay parent is stale, not misbehavior.
		if !c.recentlyPruned.Contains(msg.RelayParent) {
			c.ledger.Report(peer, CostUnexpectedStatement)
		}
		return
	}

	rps.mu.Lock()
	defer rps.mu.Unlock()

	stmt := msg.Statement
	if !stmt.Kind.IsValid() {
		c.ledger.Report(peer, CostUnexpectedStatement)
		return
	}
	group, ok := c.session.GroupOf(stmt.ValidatorIndex)
	if !ok {
		c.ledger.Report(peer, CostUnexpectedStatement)
		return
	}
	key, ok := c.session.ValidatorKey(stmt.ValidatorIndex)
	if !ok || !stmt.VerifySignature(key.Ed25519, rps.signingCtx) {
		c.ledger.Report(peer, CostInvalidSignature)
		return
	}

	c.ensureCandidate(rps, msg.RelayParent, stmt.CandidateHash, group)

	if rps.knowledge.IsKnownLocally(stmt.CandidateHash, stmt.ValidatorIndex, stmt.Kind) {
		// Already known from any source: record the sender's knowledge and
		// move on, no reputation event either way.
		rps.knowledge.RecordPeer(peer, stmt.CandidateHash, stmt.ValidatorIndex, stmt.Kind)
		return
	}

	if stmt.Kind == parachain.StatementSeconded && rps.secondedCounts[stmt.ValidatorIndex] >= c.cfg.SecondedLimit {
		c.ledger.Report(peer, CostExcessiveSeconded)
		return
	}

	rps.knowledge.RecordLocal(stmt.CandidateHash, stmt.ValidatorIndex, stmt.Kind)
	rps.knowledge.RecordPeer(peer, stmt.CandidateHash, stmt.ValidatorIndex, stmt.Kind)
	if stmt.Kind == parachain.StatementSeconded {
		rps.secondedCounts[stmt.ValidatorIndex]++
	}
	c.ledger.Report(peer, BenefitValidStatementFirst)

	cs := rps.candidates[stmt.CandidateHash]
	cs.statements = append(cs.statements, stmt)
	c.updatePhase(rps, stmt.CandidateHash)

	if !c.membershipAllows(cs) {
		return
	}
	c.maybeRequest(rps, msg.RelayParent, stmt.CandidateHash, peer, ReasonGapFill)
	c.rebroadcaster.Forward(rps.knowledge, msg.RelayParent, stmt.CandidateHash, stmt)
}

// HandleManifest processes a compact candidate announcement from outside
// the cluster and, if local knowledge is incomplete, issues a catch-up
// request to the announcing peer.
func (c *Coordinator) HandleManifest(peer parachain.PeerID, relayParent crypto.Hash, candidate parachain.CandidateHash, group parachain.GroupIndex) {
	rps := c.lookup(relayParent)
	if rps == nil {
		if !c.recentlyPruned.Contains(relayParent) {
			c.ledger.Report(peer, CostUnexpectedStatement)
		}
		return
	}
	if len(c.session.GroupMembers(group)) == 0 {
		c.ledger.Report(peer, CostUnexpectedStatement)
		return
	}

	rps.mu.Lock()
	defer rps.mu.Unlock()
	c.ensureCandidate(rps, relayParent, candidate, group)
	c.maybeRequest(rps, relayParent, candidate, peer, ReasonManifest)
}

// HandleResponse processes the response to an earlier candidate request.
// Responses with no matching outstanding entry (cancelled by pruning, or
// never requested) are dropped without reputation effect.
func (c *Coordinator) HandleResponse(peer parachain.PeerID, candidate parachain.CandidateHash, raw []byte) {
	c.indexMu.RLock()
	relayParent, ok := c.candidateIndex[candidate]
	c.indexMu.RUnlock()
	if !ok {
		return
	}
	rps := c.lookup(relayParent)
	if rps == nil {
		return
	}

	rps.mu.Lock()
	defer rps.mu.Unlock()

	out, ok := rps.requests.Complete(peer, candidate)
	if !ok {
		return
	}
	c.stopTimer(rps, peer, candidate)

	result, ok := validateResponse(raw, responseContext{
		peer:       peer,
		requested:  candidate,
		mask:       out.Mask,
		signingCtx: rps.signingCtx,
		session:    c.session,
		knowledge:  rps.knowledge,
		ledger:     c.ledger,
	})
	if !ok {
		return
	}

	cs, exists := rps.candidates[candidate]
	if !exists {
		return
	}
	if !cs.confirmed {
		cs.receipt = &result.receipt
		cs.pvd = &result.pvd
		cs.confirmed = true
		if c.store != nil {
			if err := c.store.PutCandidate(result.receipt, result.pvd); err != nil {
				c.log.Error().Err(err).
					Str("candidate", crypto.Hash(candidate).String()).
					Msg("failed to persist confirmed candidate")
			}
		}
		c.announceManifest(relayParent, candidate, cs.group)
	}

	allowed := c.membershipAllows(cs)
	for _, stmt := range result.accepted {
		cs.statements = append(cs.statements, stmt)
		if stmt.Kind == parachain.StatementSeconded {
			rps.secondedCounts[stmt.ValidatorIndex]++
		}
		if allowed {
			c.rebroadcaster.Forward(rps.knowledge, relayParent, candidate, stmt)
		}
	}
	c.updatePhase(rps, candidate)
}

// HandleRequestTimeout frees the request slot for a request that got no
// response in time. Timeouts are liveness failures, not misbehavior: no
// cost is applied. Within the configured retry budget the request is
// re-issued to the same peer with a fresh mask snapshot.
func (c *Coordinator) HandleRequestTimeout(relayParent crypto.Hash, peer parachain.PeerID, candidate parachain.CandidateHash, generation uint64) {
	rps := c.lookup(relayParent)
	if rps == nil {
		return
	}

	rps.mu.Lock()
	defer rps.mu.Unlock()

	cleared, retry := rps.requests.Timeout(peer, candidate, generation)
	if !cleared {
		return
	}
	delete(rps.timers, requestKey{peer: peer, candidate: candidate})
	c.log.Debug().
		Str("peer", peer.String()).
		Str("candidate", crypto.Hash(candidate).String()).
		Msg("candidate request timed out")

	if retry {
		c.maybeRequest(rps, relayParent, candidate, peer, ReasonGapFill)
	}
}

// AnswerRequest serves an inbound candidate request against local state,
// respecting the requester's mask. Statements sent are recorded as known
// by the requester.
func (c *Coordinator) AnswerRequest(peer parachain.PeerID, req AttestedCandidateRequest) (AttestedCandidateResponse, error) {
	c.indexMu.RLock()
	relayParent, ok := c.candidateIndex[req.CandidateHash]
	c.indexMu.RUnlock()
	if !ok {
		return AttestedCandidateResponse{}, ErrUnknownCandidate
	}
	rps := c.lookup(relayParent)
	if rps == nil {
		return AttestedCandidateResponse{}, ErrUnknownCandidate
	}

	rps.mu.Lock()
	defer rps.mu.Unlock()

	cs, ok := rps.candidates[req.CandidateHash]
	if !ok {
		return AttestedCandidateResponse{}, ErrUnknownCandidate
	}

	members := rps.knowledge.GroupMembers(req.CandidateHash)
	if size, ok := req.Mask.GroupSize(); !ok || size != len(members) {
		c.ledger.Report(peer, CostInvalidRequest)
		return AttestedCandidateResponse{}, ErrUnknownCandidate
	}

	receipt, pvd, err := c.confirmedData(cs, req.CandidateHash)
	if err != nil {
		return AttestedCandidateResponse{}, err
	}

	resp := AttestedCandidateResponse{
		CandidateReceipt:        receipt,
		PersistedValidationData: pvd,
	}
	for _, stmt := range cs.statements {
		pos, inGroup := rps.knowledge.PositionInGroup(req.CandidateHash, stmt.ValidatorIndex)
		if !inGroup || req.Mask.Contains(pos, stmt.Kind) {
			continue
		}
		resp.Statements = append(resp.Statements, stmt)
		rps.knowledge.RecordPeer(peer, req.CandidateHash, stmt.ValidatorIndex, stmt.Kind)
	}
	return resp, nil
}

// Phase returns the reconciliation phase of a candidate.
func (c *Coordinator) Phase(relayParent crypto.Hash, candidate parachain.CandidateHash) CandidatePhase {
	rps := c.lookup(relayParent)
	if rps == nil {
		return PhaseUnknown
	}
	rps.mu.Lock()
	defer rps.mu.Unlock()
	cs, ok := rps.candidates[candidate]
	if !ok {
		return PhaseUnknown
	}
	return cs.phase
}

// ConfirmedCandidate returns the receipt and validation data of a
// confirmed candidate.
func (c *Coordinator) ConfirmedCandidate(candidate parachain.CandidateHash) (parachain.CandidateReceipt, parachain.PersistedValidationData, bool) {
	c.indexMu.RLock()
	relayParent, ok := c.candidateIndex[candidate]
	c.indexMu.RUnlock()
	if !ok {
		return parachain.CandidateReceipt{}, parachain.PersistedValidationData{}, false
	}
	rps := c.lookup(relayParent)
	if rps == nil {
		return parachain.CandidateReceipt{}, parachain.PersistedValidationData{}, false
	}
	rps.mu.Lock()
	defer rps.mu.Unlock()
	cs, ok := rps.candidates[candidate]
	if !ok || !cs.confirmed {
		return parachain.CandidateReceipt{}, parachain.PersistedValidationData{}, false
	}
	return *cs.receipt, *cs.pvd, true
}

func (c *Coordinator) lookup(relayParent crypto.Hash) *relayParentState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.relayParents[relayParent]
}

// ensureCandidate creates candidate bookkeeping and indexes the candidate
// under its relay parent. Caller holds the relay parent lock.
func (c *Coordinator) ensureCandidate(rps *relayParentState, relayParent crypto.Hash, candidate parachain.CandidateHash, group parachain.GroupIndex) {
	if _, ok := rps.candidates[candidate]; ok {
		return
	}
	rps.knowledge.Ensure(candidate, group, c.session.GroupMembers(group))
	rps.candidates[candidate] = &candidateState{phase: PhaseUnknown, group: group}

	c.indexMu.Lock()
	c.candidateIndex[candidate] = relayParent
	c.indexMu.Unlock()
}

// maybeRequest issues a masked candidate request if local knowledge is
// incomplete, no request is outstanding for (peer, candidate), and the
// peer has the relay parent in view. The mask is snapshotted atomically at
// send time. Caller holds the relay parent lock.
func (c *Coordinator) maybeRequest(rps *relayParentState, relayParent crypto.Hash, candidate parachain.CandidateHash, peer parachain.PeerID, reason RequestReason) {
	if rps.knowledge.IsComplete(candidate) {
		return
	}
	if rps.requests.Outstanding(peer, candidate) {
		return
	}
	if !c.peers.HasRelayParentInView(peer, relayParent) {
		return
	}
	mask, ok := rps.knowledge.MaskFor(candidate)
	if !ok {
		return
	}
	req, ok := rps.requests.Begin(peer, candidate, mask, reason, time.Now())
	if !ok {
		return
	}
	if err := c.requestSender.SendRequest(peer, AttestedCandidateRequest{CandidateHash: candidate, Mask: mask}); err != nil {
		// Disconnected peers fail immediately; no queuing at this layer.
		rps.requests.Abandon(peer, candidate)
		c.log.Debug().Err(err).Str("peer", peer.String()).Msg("candidate request not sent")
		return
	}

	generation := req.Generation
	key := requestKey{peer: peer, candidate: candidate}
	rps.timers[key] = time.AfterFunc(c.cfg.RequestTimeout, func() {
		c.HandleRequestTimeout(relayParent, peer, candidate, generation)
	})
}

// announceManifest tells grid neighbors outside the backing group that a
// confirmed candidate exists, so they can request it.
func (c *Coordinator) announceManifest(relayParent crypto.Hash, candidate parachain.CandidateHash, group parachain.GroupIndex) {
	if c.manifestSender == nil || c.cfg.LocalValidator == nil {
		return
	}
	var recipients []parachain.PeerID
	for _, peer := range c.peers.PeersWithRelayParent(relayParent) {
		index, ok := c.peers.ValidatorIndexOf(peer)
		if !ok {
			continue
		}
		if _, inGroup := c.session.PositionInGroup(group, index); inGroup {
			continue
		}
		if c.grid.IsNeighbor(*c.cfg.LocalValidator, index) {
			recipients = append(recipients, peer)
		}
	}
	if len(recipients) == 0 {
		return
	}
	c.manifestSender.SendManifest(recipients, ManifestMessage{
		RelayParent:   relayParent,
		CandidateHash: candidate,
		Group:         group,
	})
}

func (c *Coordinator) stopTimer(rps *relayParentState, peer parachain.PeerID, candidate parachain.CandidateHash) {
	key := requestKey{peer: peer, candidate: candidate}
	if timer, ok := rps.timers[key]; ok {
		timer.Stop()
		delete(rps.timers, key)
	}
}

// membershipAllows gates propagation on the fragment-tree check. An
// unconfirmed candidate cannot be checked yet and proceeds non-blocking; a
// negative result suppresses further propagation without retracting
// already-applied reputation effects.
func (c *Coordinator) membershipAllows(cs *candidateState) bool {
	if cs.receipt == nil {
		return true
	}
	return c.membership.HypotheticalMembership(*cs.receipt) != fragment.NotMember
}

// updatePhase advances the candidate phase machine. Caller holds the relay
// parent lock.
func (c *Coordinator) updatePhase(rps *relayParentState, candidate parachain.CandidateHash) {
	cs, ok := rps.candidates[candidate]
	if !ok {
		return
	}
	next := cs.phase
	switch {
	case rps.knowledge.IsComplete(candidate):
		next = PhaseFullyKnown
	case cs.phase == PhaseUnknown:
		next = PhasePartiallyKnown
	}
	if next != cs.phase {
		c.log.Debug().
			Str("candidate", crypto.Hash(candidate).String()).
			Str("from", cs.phase.String()).
			Str("to", next.String()).
			Msg("candidate phase change")
		cs.phase = next
	}
}

func (c *Coordinator) confirmedData(cs *candidateState, candidate parachain.CandidateHash) (parachain.CandidateReceipt, parachain.PersistedValidationData, error) {
	if cs.confirmed {
		return *cs.receipt, *cs.pvd, nil
	}
	if c.store != nil {
		receipt, pvd, err := c.store.GetCandidate(candidate)
		if err == nil {
			return receipt, pvd, nil
		}
	}
	return parachain.CandidateReceipt{}, parachain.PersistedValidationData{}, ErrCandidateNotConfirmed
}
