package lifecycle

import (
	"github.com/XiaoConstantine/govern-go/pkg/core"
)

// GateDecision is the auto-approval gate's verdict on a newly submitted
// proposal.
type GateDecision struct {
	AutoApprove bool
	Reason      string
}

// EvaluateGate decides whether a new proposal bypasses human review. It is a
// pure function of the capability's policy state: the same (trust score,
// threshold, requires_review) always yields the same decision.
//
// The gate runs exactly once, at submission time. Re-evaluating on every poll
// would let trust crossing the threshold retroactively auto-approve proposals
// a human already started reviewing.
func EvaluateGate(cap *core.Capability) GateDecision {
	if cap.RequiresReview {
		return GateDecision{AutoApprove: false, Reason: "requires_review override set"}
	}
	if cap.TrustScore < cap.AutoApproveThreshold {
		return GateDecision{AutoApprove: false, Reason: "trust score below auto-approve threshold"}
	}
	return GateDecision{AutoApprove: true, Reason: "trust score at or above auto-approve threshold"}
}
