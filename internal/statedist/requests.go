package statedist

import (
	"time"

	"github.com/eigerco/bramble/internal/parachain"
)

// RequestReason records why a request was issued.
type RequestReason uint8

const (
	// ReasonGapFill closes a gap left by missed cluster gossip.
	ReasonGapFill RequestReason = iota
	// ReasonManifest catches up on a candidate announced via manifest.
	ReasonManifest
)

// RequestSender sends a candidate request to a peer. The send fails
// immediately if the peer is unreachable; there is no queuing or implicit
// connection retry at this layer.
type RequestSender interface {
	SendRequest(peer parachain.PeerID, req AttestedCandidateRequest) error
}

// OutstandingRequest is the bookkeeping for one in-flight candidate
// request: the mask that was sent, a deadline, and why it was issued.
type OutstandingRequest struct {
	Peer       parachain.PeerID
	Candidate  parachain.CandidateHash
	Mask       StatementFilter
	Reason     RequestReason
	Deadline   time.Time
	Generation uint64
}

type requestKey struct {
	peer      parachain.PeerID
	candidate parachain.CandidateHash
}

// requestManager enforces at most one outstanding request per
// (peer, candidate) and tracks retry budgets. It is pure bookkeeping: the
// coordinator serializes access and owns timers and sending.
type requestManager struct {
	timeout     time.Duration
	retryLimit  int
	outstanding map[requestKey]*OutstandingRequest
	retries     map[requestKey]int
	generation  uint64
}

func newRequestManager(timeout time.Duration, retryLimit int) *requestManager {
	return &requestManager{
		timeout:     timeout,
		retryLimit:  retryLimit,
		outstanding: make(map[requestKey]*OutstandingRequest),
		retries:     make(map[requestKey]int),
	}
}

// Begin registers a new outstanding request if none exists for the pair.
// The mask must already be a snapshot; Begin stores it untouched.
func (rm *requestManager) Begin(peer parachain.PeerID, candidate parachain.CandidateHash, mask StatementFilter, reason RequestReason, now time.Time) (*OutstandingRequest, bool) {
	key := requestKey{peer: peer, candidate: candidate}
	if _, exists := rm.outstanding[key]; exists {
		return nil, false
	}
	rm.generation++
	req := &OutstandingRequest{
		Peer:       peer,
		Candidate:  candidate,
		Mask:       mask,
		Reason:     reason,
		Deadline:   now.Add(rm.timeout),
		Generation: rm.generation,
	}
	rm.outstanding[key] = req
	return req, true
}

// Complete clears the outstanding entry for a received response and
// returns it. The entry is cleared before any knowledge or reputation
// effect is applied, so a concurrent duplicate send cannot race.
func (rm *requestManager) Complete(peer parachain.PeerID, candidate parachain.CandidateHash) (*OutstandingRequest, bool) {
	key := requestKey{peer: peer, candidate: candidate}
	req, ok := rm.outstanding[key]
	if !ok {
		return nil, false
	}
	delete(rm.outstanding, key)
	delete(rm.retries, key)
	return req, true
}

// Timeout frees the slot if the generation still matches; a stale timer
// firing after the response (or after a retry re-issued the request) is a
// no-op. It reports whether a retry is still within budget.
func (rm *requestManager) Timeout(peer parachain.PeerID, candidate parachain.CandidateHash, generation uint64) (cleared, retry bool) {
	key := requestKey{peer: peer, candidate: candidate}
	req, ok := rm.outstanding[key]
	if !ok || req.Generation != generation {
		return false, false
	}
	delete(rm.outstanding, key)
	if rm.retries[key] < rm.retryLimit {
		rm.retries[key]++
		return true, true
	}
	delete(rm.retries, key)
	return true, false
}

// Abandon clears an outstanding entry whose send failed.
func (rm *requestManager) Abandon(peer parachain.PeerID, candidate parachain.CandidateHash) {
	key := requestKey{peer: peer, candidate: candidate}
	delete(rm.outstanding, key)
	delete(rm.retries, key)
}

// Outstanding reports whether a request is in flight for the pair.
func (rm *requestManager) Outstanding(peer parachain.PeerID, candidate parachain.CandidateHash) bool {
	_, ok := rm.outstanding[requestKey{peer: peer, candidate: candidate}]
	return ok
}

// CancelAll drops every outstanding entry. Responses arriving afterwards
// find no entry and are discarded without effect.
func (rm *requestManager) CancelAll() {
	rm.outstanding = make(map[requestKey]*OutstandingRequest)
	rm.retries = make(map[requestKey]int)
}
