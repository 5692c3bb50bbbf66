package core

import (
	"time"
)

// CapabilityKind identifies the kind of extraction-behavior change an agent
// may propose. Trust is tracked per (agent, kind) pair, so an agent that has
// earned autonomy for prompt updates still goes through review for ontology
// changes.
type CapabilityKind string

const (
	KindPromptUpdate      CapabilityKind = "prompt_update"
	KindThresholdChange   CapabilityKind = "threshold_change"
	KindMethodImprovement CapabilityKind = "method_improvement"
	KindToolConfiguration CapabilityKind = "tool_configuration"
	KindOntologyExpansion CapabilityKind = "ontology_expansion"
	KindValidationRule    CapabilityKind = "validation_rule"
)

// CapabilityKinds lists all known kinds, in a stable order.
func CapabilityKinds() []CapabilityKind {
	return []CapabilityKind{
		KindPromptUpdate,
		KindThresholdChange,
		KindMethodImprovement,
		KindToolConfiguration,
		KindOntologyExpansion,
		KindValidationRule,
	}
}

// Valid reports whether k is a known capability kind.
func (k CapabilityKind) Valid() bool {
	switch k {
	case KindPromptUpdate, KindThresholdChange, KindMethodImprovement,
		KindToolConfiguration, KindOntologyExpansion, KindValidationRule:
		return true
	}
	return false
}

// Capability is the trust-tracked unit of agent autonomy, scoped to one agent
// and one kind of change. Created implicitly the first time an agent proposes
// in that kind; never destroyed.
type Capability struct {
	ID          string         `json:"id"`
	AgentName   string         `json:"agent_name"`
	Kind        CapabilityKind `json:"capability_kind"`
	Description string         `json:"description,omitempty"`

	TrustScore           float64 `json:"trust_score"`
	AutoApproveThreshold float64 `json:"auto_approve_threshold"`
	RequiresReview       bool    `json:"requires_review"`

	TotalProposals            int64 `json:"total_proposals"`
	ApprovedCount             int64 `json:"approved_count"`
	RejectedCount             int64 `json:"rejected_count"`
	AutoApprovedCount         int64 `json:"auto_approved_count"`
	SuccessfulImplementations int64 `json:"successful_implementations"`
	FailedImplementations     int64 `json:"failed_implementations"`

	// Version backs optimistic concurrency control; every committed write
	// to this row increments it.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CountersConsistent reports whether the running counters satisfy the
// capability invariant: all non-negative, and decisions never exceed the
// number of proposals seen.
func (c *Capability) CountersConsistent() bool {
	counters := []int64{
		c.TotalProposals, c.ApprovedCount, c.RejectedCount,
		c.AutoApprovedCount, c.SuccessfulImplementations, c.FailedImplementations,
	}
	for _, n := range counters {
		if n < 0 {
			return false
		}
	}
	return c.ApprovedCount+c.RejectedCount+c.AutoApprovedCount <= c.TotalProposals
}
