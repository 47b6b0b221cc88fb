package statedist

import (
	"github.com/rs/zerolog"

	"github.com/eigerco/bramble/internal/parachain"
)

// ReputationEvent enumerates the discrete peer behaviors this subsystem
// reports. Each event maps to one fixed benefit or cost magnitude.
type ReputationEvent uint8

const (
	// BenefitValidStatementFirst rewards the first peer to deliver a
	// statement identity we had never seen from any source.
	BenefitValidStatementFirst ReputationEvent = iota
	// BenefitValidStatement rewards a valid statement we already knew.
	BenefitValidStatement
	// BenefitValidResponse rewards answering a candidate request with a
	// well-formed response, independent of per-statement outcomes.
	BenefitValidResponse
	// CostUnrequestedResponseStatement is applied per response statement
	// the sent mask said not to send, or from outside the expected group.
	CostUnrequestedResponseStatement
	// CostInvalidSignature is applied per statement whose signature or
	// signing context does not verify.
	CostInvalidSignature
	// CostMalformedResponse is applied when a response cannot be decoded
	// or its receipt does not match the requested candidate.
	CostMalformedResponse
	// CostDuplicateStatement is applied per statement repeating an earlier
	// entry of the same response.
	CostDuplicateStatement
	// CostUnexpectedStatement is applied to gossip for an unknown relay
	// parent or from a validator with no place in the topology.
	CostUnexpectedStatement
	// CostExcessiveSeconded is applied when a validator exceeds the
	// per-relay-parent limit of seconded candidates.
	CostExcessiveSeconded
	// CostInvalidRequest is applied to inbound candidate requests that
	// fail sanity checks (e.g. a mask sized for the wrong group).
	CostInvalidRequest
)

// ReputationChange is the (delta, reason) pair reported to the network
// layer for one event occurrence.
type ReputationChange struct {
	Delta  int32
	Reason string
}

// defaultChanges is the fixed magnitude table. Magnitudes follow the usual
// peer-set convention: minor costs for redundant data, major costs for
// provably bad data, and small benefits so honest peers recover quickly.
var defaultChanges = map[ReputationEvent]ReputationChange{
	BenefitValidStatementFirst:       {Delta: 25, Reason: "Peer was the first to provide a valid statement"},
	BenefitValidStatement:            {Delta: 5, Reason: "Peer provided a valid statement"},
	BenefitValidResponse:             {Delta: 100, Reason: "Peer answered candidate request"},
	CostUnrequestedResponseStatement: {Delta: -100_000, Reason: "Un-requested statement in response"},
	CostInvalidSignature:             {Delta: -300_000, Reason: "Invalid statement signature"},
	CostMalformedResponse:            {Delta: -300_000, Reason: "Malformed candidate response"},
	CostDuplicateStatement:           {Delta: -100_000, Reason: "Duplicate statement in response"},
	CostUnexpectedStatement:          {Delta: -100_000, Reason: "Unexpected statement"},
	CostExcessiveSeconded:            {Delta: -100_000, Reason: "Sent too many seconded statements"},
	CostInvalidRequest:               {Delta: -300_000, Reason: "Invalid candidate request"},
}

func (e ReputationEvent) String() string {
	if c, ok := defaultChanges[e]; ok {
		return c.Reason
	}
	return "unknown reputation event"
}

// ReportSink receives per-peer reputation reports. The network layer
// accumulates deltas; this package never reads scores back.
type ReportSink interface {
	ReportPeer(peer parachain.PeerID, change ReputationChange)
}

// Ledger maps reputation events to reports and emits them. It is stateless
// beyond the magnitude table: every qualifying occurrence is reported
// exactly once and never batched, so repeated misbehavior accumulates.
type Ledger struct {
	sink    ReportSink
	changes map[ReputationEvent]ReputationChange
	log     zerolog.Logger
}

// NewLedger builds a ledger over the default magnitude table.
func NewLedger(sink ReportSink, log zerolog.Logger) *Ledger {
	return &Ledger{sink: sink, changes: defaultChanges, log: log}
}

// Report emits one reputation report for the given peer and event.
func (l *Ledger) Report(peer parachain.PeerID, event ReputationEvent) {
	change, ok := l.changes[event]
	if !ok {
		l.log.Warn().Uint8("event", uint8(event)).Msg("unknown reputation event dropped")
		return
	}
	l.log.Debug().
		Str("peer", peer.String()).
		Str("reason", change.Reason).
		Int32("delta", change.Delta).
		Msg("reporting peer")
	l.sink.ReportPeer(peer, change)
}
