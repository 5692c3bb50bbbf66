package core

import (
	"encoding/json"
	"time"
)

// ProposalStatus is the state machine over a proposal's lifetime.
//
// Legal walk:
//
//	pending -> auto_approved | approved | rejected
//	approved, auto_approved -> implemented
//	implemented -> reverted
//
// rejected and reverted are terminal; approved/auto_approved may also remain
// terminal if the change is never implemented.
type ProposalStatus string

const (
	StatusPending      ProposalStatus = "pending"
	StatusAutoApproved ProposalStatus = "auto_approved"
	StatusApproved     ProposalStatus = "approved"
	StatusRejected     ProposalStatus = "rejected"
	StatusImplemented  ProposalStatus = "implemented"
	StatusReverted     ProposalStatus = "reverted"
)

// legalTransitions encodes the only edges the engine will ever take.
var legalTransitions = map[ProposalStatus][]ProposalStatus{
	StatusPending:      {StatusAutoApproved, StatusApproved, StatusRejected},
	StatusAutoApproved: {StatusImplemented},
	StatusApproved:     {StatusImplemented},
	StatusImplemented:  {StatusReverted},
}

// Valid reports whether s is a known status.
func (s ProposalStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAutoApproved, StatusApproved,
		StatusRejected, StatusImplemented, StatusReverted:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal edge.
func (s ProposalStatus) CanTransition(next ProposalStatus) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition can ever leave s. Note that
// approved/auto_approved are not terminal even though a proposal may rest
// there forever.
func (s ProposalStatus) Terminal() bool {
	return len(legalTransitions[s]) == 0
}

// Decision is a human reviewer's verdict on a pending proposal.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Proposal is a single proposed change submitted by an agent against a
// capability. Rejected and reverted proposals are retained for audit; nothing
// deletes a proposal.
type Proposal struct {
	ID           string `json:"id"`
	CapabilityID string `json:"capability_id"`

	Title          string          `json:"title"`
	ProposedChange json.RawMessage `json:"proposed_change"`
	Rationale      string          `json:"rationale"`

	PredictedImpact       string   `json:"predicted_impact,omitempty"`
	SupportingEvidence    string   `json:"supporting_evidence,omitempty"`
	AffectedExtractionIDs []string `json:"affected_extraction_ids,omitempty"`

	Status      ProposalStatus `json:"status"`
	AutoApplied bool           `json:"auto_applied"`

	ReviewedBy  string     `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
	ReviewNotes string     `json:"review_notes,omitempty"`

	ImplementedAt         *time.Time `json:"implemented_at,omitempty"`
	ImplementationDetails string     `json:"implementation_details,omitempty"`

	SuccessMeasured    bool       `json:"success_measured"`
	SuccessScore       *float64   `json:"success_score,omitempty"`
	ActualImpact       string     `json:"actual_impact,omitempty"`
	MeasurementDetails string     `json:"measurement_details,omitempty"`
	MeasuredAt         *time.Time `json:"measured_at,omitempty"`

	RevertedAt   *time.Time `json:"reverted_at,omitempty"`
	RevertReason string     `json:"revert_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
