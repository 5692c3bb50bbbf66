package trust

import (
	"math"

	"github.com/XiaoConstantine/govern-go/pkg/config"
	"github.com/XiaoConstantine/govern-go/pkg/core"
	"github.com/XiaoConstantine/govern-go/pkg/errors"
)

// ReplayEpsilon is the tolerance used when comparing a replayed trust score
// against the stored one. Deltas are sums of small floats, so exact equality
// is not guaranteed.
const ReplayEpsilon = 1e-9

// Engine computes trust score deltas from governance events. It is a pure
// function of its policy: the same event against the same score always
// produces the same result, and the engine holds no mutable state.
type Engine struct {
	policy config.PolicyConfig
}

// NewEngine creates a scoring engine for the given policy constants.
func NewEngine(policy config.PolicyConfig) *Engine {
	return &Engine{policy: policy}
}

// ApproveDelta is the trust change for a human approval.
func (e *Engine) ApproveDelta() float64 {
	return e.policy.ApproveDelta
}

// RejectDelta is the trust change for a human rejection.
func (e *Engine) RejectDelta() float64 {
	return -e.policy.RejectDelta
}

// AutoApproveDelta is the nudge for a successful unsupervised accept.
func (e *Engine) AutoApproveDelta() float64 {
	return e.policy.AutoApproveBonus
}

// RevertDelta is the penalty for reverting an implemented proposal.
func (e *Engine) RevertDelta() float64 {
	return -e.policy.RevertDelta
}

// OutcomeDelta maps a measured success score in [0,1] onto a trust change.
// A neutral 0.5 yields zero; 1.0 yields the full positive delta; 0.0 the full
// negative delta. Scores between scale linearly. This is how measured
// real-world outcomes override the optimism of an initial auto-approval.
func (e *Engine) OutcomeDelta(successScore float64) (float64, error) {
	if successScore < 0 || successScore > 1 {
		return 0, errors.WithFields(
			errors.New(errors.ValidationFailed, "success score must be in [0,1]"),
			errors.Fields{"success_score": successScore},
		)
	}
	return (successScore - 0.5) * 2 * e.policy.OutcomeDelta, nil
}

// Apply clamps old+delta into [0,1].
func (e *Engine) Apply(oldScore, delta float64) float64 {
	return Clamp(oldScore + delta)
}

// Clamp bounds a trust score to [0,1].
func Clamp(score float64) float64 {
	return math.Max(0, math.Min(1, score))
}

// Replay walks a capability's history entries from the initial score and
// returns the reconstructed final score. It fails if the chain is broken:
// each entry's previous score must match the running value within
// ReplayEpsilon.
func Replay(initial float64, entries []core.TrustHistoryEntry) (float64, error) {
	score := initial
	for _, entry := range entries {
		if math.Abs(entry.PreviousScore-score) > ReplayEpsilon {
			return 0, errors.WithFields(
				errors.New(errors.ValidationFailed, "trust history chain is broken"),
				errors.Fields{
					"entry_id":       entry.ID,
					"expected_score": score,
					"entry_previous": entry.PreviousScore,
				},
			)
		}
		score = entry.NewScore
	}
	return score, nil
}
