package lifecycle

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/XiaoConstantine/govern-go/pkg/config"
	"github.com/XiaoConstantine/govern-go/pkg/core"
	"github.com/XiaoConstantine/govern-go/pkg/errors"
	"github.com/XiaoConstantine/govern-go/pkg/logging"
	"github.com/XiaoConstantine/govern-go/pkg/registry"
	"github.com/XiaoConstantine/govern-go/pkg/storage"
	"github.com/XiaoConstantine/govern-go/pkg/trust"
)

// Lifecycle governs a proposal's status transitions. Every trust-affecting
// transition runs as one transaction: validate current status, compute the
// new score, write the capability under its version guard, append exactly one
// trust history entry, then write the proposal. A conflict on the capability
// retries the whole read-compute-write cycle.
type Lifecycle struct {
	store    *storage.Store
	registry *registry.Registry
	engine   *trust.Engine
	policy   config.PolicyConfig
	validate *validator.Validate
}

// New creates a proposal lifecycle over the given store and registry.
func New(store *storage.Store, reg *registry.Registry, engine *trust.Engine, policy config.PolicyConfig) *Lifecycle {
	return &Lifecycle{
		store:    store,
		registry: reg,
		engine:   engine,
		policy:   policy,
		validate: validator.New(),
	}
}

// SubmitRequest carries everything an agent provides when proposing a change.
type SubmitRequest struct {
	AgentName             string              `validate:"required"`
	Kind                  core.CapabilityKind `validate:"required"`
	Title                 string              `validate:"required"`
	ProposedChange        json.RawMessage     `validate:"required"`
	Rationale             string              `validate:"required"`
	PredictedImpact       string
	SupportingEvidence    string
	AffectedExtractionIDs []string
}

// Submit creates a proposal and evaluates the auto-approval gate in the same
// transaction, so a caller never observes a pending proposal that should
// already have been auto-approved.
func (l *Lifecycle) Submit(ctx context.Context, req SubmitRequest) (*core.Proposal, error) {
	if err := l.validate.Struct(req); err != nil {
		return nil, errors.Wrap(err, errors.ValidationFailed, "invalid submit request")
	}
	if !req.Kind.Valid() {
		return nil, errors.WithFields(
			errors.New(errors.ValidationFailed, "unknown capability kind"),
			errors.Fields{"kind": req.Kind},
		)
	}
	if !json.Valid(req.ProposedChange) {
		return nil, errors.New(errors.ValidationFailed, "proposed change is not valid JSON")
	}

	var proposal *core.Proposal
	var gate GateDecision
	err := l.store.WithRetry(ctx, l.policy.MaxConflictRetries, func(tx *sql.Tx) error {
		cap, err := l.registry.EnsureTx(ctx, tx, req.AgentName, req.Kind)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		proposal = &core.Proposal{
			ID:                    uuid.New().String(),
			CapabilityID:          cap.ID,
			Title:                 req.Title,
			ProposedChange:        req.ProposedChange,
			Rationale:             req.Rationale,
			PredictedImpact:       req.PredictedImpact,
			SupportingEvidence:    req.SupportingEvidence,
			AffectedExtractionIDs: req.AffectedExtractionIDs,
			Status:                core.StatusPending,
			CreatedAt:             now,
			UpdatedAt:             now,
		}

		gate = EvaluateGate(cap)
		cap.TotalProposals++

		if gate.AutoApprove {
			proposal.Status = core.StatusAutoApproved
			proposal.AutoApplied = true
			cap.AutoApprovedCount++
			if err := l.commitTrustChange(ctx, tx, cap, l.engine.AutoApproveDelta(),
				core.ReasonAutoApproved, proposal.ID, "", now); err != nil {
				return err
			}
		} else {
			cap.UpdatedAt = now
			if err := storage.UpdateCapabilityGuarded(ctx, tx, cap); err != nil {
				return err
			}
		}

		return storage.InsertProposal(ctx, tx, proposal)
	})
	if err != nil {
		return nil, err
	}

	logging.GetLogger().InfoWith(ctx, map[string]interface{}{
		"proposal_id": proposal.ID,
		"agent":       req.AgentName,
		"kind":        req.Kind,
		"status":      proposal.Status,
		"gate_reason": gate.Reason,
	}, "proposal submitted")
	return proposal, nil
}

// RecordDecision applies a human reviewer's verdict to a pending proposal.
// Racing against an auto-approval that already fired fails with
// InvalidTransition and appends nothing to the trust history.
func (l *Lifecycle) RecordDecision(ctx context.Context, proposalID string, decision core.Decision, reviewerID, notes string) (*core.Proposal, error) {
	if reviewerID == "" {
		return nil, errors.New(errors.ValidationFailed, "reviewer id is required")
	}
	if decision != core.DecisionApprove && decision != core.DecisionReject {
		return nil, errors.WithFields(
			errors.New(errors.ValidationFailed, "decision must be approve or reject"),
			errors.Fields{"decision": decision},
		)
	}

	var proposal *core.Proposal
	err := l.store.WithRetry(ctx, l.policy.MaxConflictRetries, func(tx *sql.Tx) error {
		p, err := storage.GetProposal(ctx, tx, proposalID)
		if err != nil {
			return err
		}

		next := core.StatusApproved
		if decision == core.DecisionReject {
			next = core.StatusRejected
		}
		if err := requireTransition(p, next); err != nil {
			return err
		}

		cap, err := storage.GetCapability(ctx, tx, p.CapabilityID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		var delta float64
		var reason string
		if decision == core.DecisionApprove {
			delta = l.engine.ApproveDelta()
			reason = core.ReasonApproved
			cap.ApprovedCount++
		} else {
			delta = l.engine.RejectDelta()
			reason = core.ReasonRejected
			cap.RejectedCount++
		}

		if err := l.commitTrustChange(ctx, tx, cap, delta, reason, p.ID, reviewerID, now); err != nil {
			return err
		}

		p.Status = next
		p.ReviewedBy = reviewerID
		p.ReviewedAt = &now
		p.ReviewNotes = notes
		p.UpdatedAt = now
		if err := storage.UpdateProposal(ctx, tx, p); err != nil {
			return err
		}
		proposal = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.GetLogger().InfoWith(ctx, map[string]interface{}{
		"proposal_id": proposal.ID,
		"decision":    decision,
		"reviewer":    reviewerID,
		"status":      proposal.Status,
	}, "human decision recorded")
	return proposal, nil
}

// MarkImplemented records that an approved change has been put into effect.
// Implementation alone carries no trust effect; trust moves when the outcome
// is measured.
func (l *Lifecycle) MarkImplemented(ctx context.Context, proposalID, details string) (*core.Proposal, error) {
	var proposal *core.Proposal
	err := l.store.InTx(ctx, func(tx *sql.Tx) error {
		p, err := storage.GetProposal(ctx, tx, proposalID)
		if err != nil {
			return err
		}
		if err := requireTransition(p, core.StatusImplemented); err != nil {
			return err
		}

		now := time.Now().UTC()
		p.Status = core.StatusImplemented
		p.ImplementedAt = &now
		p.ImplementationDetails = details
		p.UpdatedAt = now
		if err := storage.UpdateProposal(ctx, tx, p); err != nil {
			return err
		}
		proposal = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.GetLogger().InfoWith(ctx, map[string]interface{}{
		"proposal_id": proposal.ID,
	}, "proposal marked implemented")
	return proposal, nil
}

// RecordImpact records the measured real-world outcome of an implemented
// proposal and feeds it back into trust. A neutral 0.5 outcome still appends
// a history entry with a zero delta, so the audit trail shows the measurement
// happened. Impact can be recorded once; a second call fails with
// InvalidTransition.
func (l *Lifecycle) RecordImpact(ctx context.Context, proposalID string, successScore float64, actualImpact, details string) (*core.Proposal, error) {
	delta, err := l.engine.OutcomeDelta(successScore)
	if err != nil {
		return nil, err
	}

	var proposal *core.Proposal
	err = l.store.WithRetry(ctx, l.policy.MaxConflictRetries, func(tx *sql.Tx) error {
		p, err := storage.GetProposal(ctx, tx, proposalID)
		if err != nil {
			return err
		}
		if p.Status != core.StatusImplemented {
			return invalidTransition(p, "record impact")
		}
		if p.SuccessMeasured {
			return errors.WithFields(
				errors.New(errors.InvalidTransition, "impact already measured"),
				errors.Fields{"proposal_id": p.ID},
			)
		}

		cap, err := storage.GetCapability(ctx, tx, p.CapabilityID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if successScore >= 0.5 {
			cap.SuccessfulImplementations++
		} else {
			cap.FailedImplementations++
		}
		if err := l.commitTrustChange(ctx, tx, cap, delta, core.ReasonImpactMeasured, p.ID, "", now); err != nil {
			return err
		}

		score := successScore
		p.SuccessMeasured = true
		p.SuccessScore = &score
		p.ActualImpact = actualImpact
		p.MeasurementDetails = details
		p.MeasuredAt = &now
		p.UpdatedAt = now
		if err := storage.UpdateProposal(ctx, tx, p); err != nil {
			return err
		}
		proposal = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.GetLogger().InfoWith(ctx, map[string]interface{}{
		"proposal_id":   proposal.ID,
		"success_score": successScore,
		"trust_delta":   delta,
	}, "impact recorded")
	return proposal, nil
}

// Revert undoes an implemented proposal. The penalty applies regardless of
// any earlier measured impact: a revert signals the change had to be undone.
func (l *Lifecycle) Revert(ctx context.Context, proposalID, reason string) (*core.Proposal, error) {
	if reason == "" {
		return nil, errors.New(errors.ValidationFailed, "revert reason is required")
	}

	var proposal *core.Proposal
	err := l.store.WithRetry(ctx, l.policy.MaxConflictRetries, func(tx *sql.Tx) error {
		p, err := storage.GetProposal(ctx, tx, proposalID)
		if err != nil {
			return err
		}
		if err := requireTransition(p, core.StatusReverted); err != nil {
			return err
		}

		cap, err := storage.GetCapability(ctx, tx, p.CapabilityID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		cap.FailedImplementations++
		if err := l.commitTrustChange(ctx, tx, cap, l.engine.RevertDelta(), core.ReasonReverted, p.ID, "", now); err != nil {
			return err
		}

		p.Status = core.StatusReverted
		p.RevertedAt = &now
		p.RevertReason = reason
		p.UpdatedAt = now
		if err := storage.UpdateProposal(ctx, tx, p); err != nil {
			return err
		}
		proposal = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.GetLogger().WarnWith(ctx, map[string]interface{}{
		"proposal_id": proposal.ID,
		"reason":      reason,
	}, "proposal reverted")
	return proposal, nil
}

// Get fetches a proposal by id.
func (l *Lifecycle) Get(ctx context.Context, proposalID string) (*core.Proposal, error) {
	return storage.GetProposal(ctx, l.store.DB(), proposalID)
}

// List returns proposals matching the filter.
func (l *Lifecycle) List(ctx context.Context, filter storage.ProposalFilter) ([]*core.Proposal, error) {
	return storage.ListProposals(ctx, l.store.DB(), filter)
}

// commitTrustChange performs the atomic tail of a trust-affecting transition:
// clamp the new score, write the capability under its version guard, and
// append exactly one history entry. Runs inside the caller's transaction, so
// a failed history append rolls back the capability write too.
func (l *Lifecycle) commitTrustChange(ctx context.Context, tx *sql.Tx, cap *core.Capability, delta float64, reason, proposalID, actor string, now time.Time) error {
	prev := cap.TrustScore
	cap.TrustScore = l.engine.Apply(prev, delta)
	cap.UpdatedAt = now
	if err := storage.UpdateCapabilityGuarded(ctx, tx, cap); err != nil {
		return err
	}

	entry := &core.TrustHistoryEntry{
		ID:            uuid.New().String(),
		CapabilityID:  cap.ID,
		PreviousScore: prev,
		NewScore:      cap.TrustScore,
		ChangeReason:  reason,
		ProposalID:    proposalID,
		ChangedBy:     actor,
		CreatedAt:     now,
	}
	return storage.InsertTrustHistory(ctx, tx, entry)
}

func requireTransition(p *core.Proposal, next core.ProposalStatus) error {
	if !p.Status.CanTransition(next) {
		return invalidTransition(p, string(next))
	}
	return nil
}

func invalidTransition(p *core.Proposal, attempted string) error {
	return errors.WithFields(
		errors.New(errors.InvalidTransition, "illegal proposal transition"),
		errors.Fields{
			"proposal_id": p.ID,
			"status":      p.Status,
			"attempted":   attempted,
		},
	)
}
