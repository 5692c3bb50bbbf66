package core

import (
	"time"
)

// Change reasons recorded on trust history entries. The reason string is part
// of the audit contract: dashboards filter on it, and tests assert on it.
const (
	ReasonAutoApproved   = "proposal_auto_approved"
	ReasonApproved       = "proposal_approved"
	ReasonRejected       = "proposal_rejected"
	ReasonImpactMeasured = "impact_measured"
	ReasonReverted       = "proposal_reverted"
)

// TrustHistoryEntry is an immutable audit record of one trust score change
// and its cause. Exactly one entry is appended per trust-affecting event;
// entries are never mutated or deleted.
//
// For a given capability, replaying all entries in order from the initial
// default score must reproduce the capability's current trust score.
type TrustHistoryEntry struct {
	ID            string    `json:"id"`
	CapabilityID  string    `json:"capability_id"`
	PreviousScore float64   `json:"previous_score"`
	NewScore      float64   `json:"new_score"`
	ChangeReason  string    `json:"change_reason"`
	ProposalID    string    `json:"proposal_id,omitempty"`
	ChangedBy     string    `json:"changed_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
