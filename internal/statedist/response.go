package statedist

import (
	"github.com/eigerco/bramble/internal/parachain"
	"github.com/eigerco/bramble/internal/session"
)

// responseContext carries everything needed to judge one untrusted
// response: which request it answers, the mask that was sent with it, and
// the stores the verdict is applied to.
type responseContext struct {
	peer       parachain.PeerID
	requested  parachain.CandidateHash
	mask       StatementFilter
	signingCtx parachain.SigningContext
	session    *session.Info
	knowledge  *Knowledge
	ledger     *Ledger
}

// responseResult is the outcome of validating a response. accepted holds
// the statements admitted to the knowledge store, in arrival order.
type responseResult struct {
	receipt  parachain.CandidateReceipt
	pvd      parachain.PersistedValidationData
	accepted []parachain.SignedStatement
}

type statementIdentity struct {
	validator parachain.ValidatorIndex
	kind      parachain.StatementKind
}

// validateResponse consumes an untrusted AttestedCandidateResponse.
//
// Per-statement classification, in arrival order and with this precedence:
//  1. repeats an earlier entry of this response  -> duplicate cost, drop
//  2. not absent from the sent mask, or from a validator outside the
//     candidate's group                          -> unrequested cost, drop
//  3. signature or signing context invalid      -> invalid-signature cost, drop
//  4. otherwise accept: record locally and against the peer, reward.
//
// The first-seen benefit belongs to the direct gossip path; statements
// admitted here earn the plain valid-statement benefit.
//
// A response that fails to decode, or whose receipt does not hash to the
// requested candidate, is rejected in full with a single malformed-response
// cost and no statement processed. Any decodable, matching response earns
// one completion benefit after all per-statement events, regardless of how
// many statements survived.
func validateResponse(raw []byte, rc responseContext) (responseResult, bool) {
	resp, err := DecodeAttestedCandidateResponse(raw)
	if err != nil {
		rc.ledger.Report(rc.peer, CostMalformedResponse)
		return responseResult{}, false
	}

	receiptHash, err := resp.CandidateReceipt.Hash()
	if err != nil || receiptHash != rc.requested {
		rc.ledger.Report(rc.peer, CostMalformedResponse)
		return responseResult{}, false
	}

	pvdHash, err := resp.PersistedValidationData.Hash()
	if err != nil || pvdHash != resp.CandidateReceipt.PersistedValidationDataHash {
		rc.ledger.Report(rc.peer, CostMalformedResponse)
		return responseResult{}, false
	}

	result := responseResult{
		receipt: resp.CandidateReceipt,
		pvd:     resp.PersistedValidationData,
	}

	seen := make(map[statementIdentity]struct{}, len(resp.Statements))
	for _, stmt := range resp.Statements {
		id := statementIdentity{validator: stmt.ValidatorIndex, kind: stmt.Kind}
		if _, dup := seen[id]; dup {
			rc.ledger.Report(rc.peer, CostDuplicateStatement)
			continue
		}
		seen[id] = struct{}{}

		pos, inGroup := rc.knowledge.PositionInGroup(rc.requested, stmt.ValidatorIndex)
		if !inGroup || rc.mask.Contains(pos, stmt.Kind) {
			rc.ledger.Report(rc.peer, CostUnrequestedResponseStatement)
			continue
		}

		key, ok := rc.session.ValidatorKey(stmt.ValidatorIndex)
		if !ok || !stmt.VerifySignature(key.Ed25519, rc.signingCtx) {
			rc.ledger.Report(rc.peer, CostInvalidSignature)
			continue
		}

		fresh := rc.knowledge.RecordLocal(rc.requested, stmt.ValidatorIndex, stmt.Kind)
		rc.knowledge.RecordPeer(rc.peer, rc.requested, stmt.ValidatorIndex, stmt.Kind)
		rc.ledger.Report(rc.peer, BenefitValidStatement)
		if fresh {
			// A statement that arrived by gossip between the mask snapshot
			// and this response is already stored; surfacing it again would
			// duplicate it in later served responses.
			result.accepted = append(result.accepted, stmt)
		}
	}

	// Framing correctness is rewarded independently of statement content.
	rc.ledger.Report(rc.peer, BenefitValidResponse)
	return result, true
}
