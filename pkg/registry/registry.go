package registry

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/XiaoConstantine/govern-go/pkg/config"
	"github.com/XiaoConstantine/govern-go/pkg/core"
	"github.com/XiaoConstantine/govern-go/pkg/errors"
	"github.com/XiaoConstantine/govern-go/pkg/logging"
	"github.com/XiaoConstantine/govern-go/pkg/storage"
)

// Registry owns the catalog of (agent, capability-kind) trust records.
// Capabilities are created implicitly the first time an agent proposes in a
// kind, and never destroyed.
type Registry struct {
	store  *storage.Store
	policy config.PolicyConfig
}

// New creates a capability registry backed by the given store.
func New(store *storage.Store, policy config.PolicyConfig) *Registry {
	return &Registry{store: store, policy: policy}
}

// PolicyUpdate carries the human-adjustable capability policy fields. Nil
// pointers leave the current value untouched. Trust score and counters are
// deliberately absent: only lifecycle transitions mutate those.
type PolicyUpdate struct {
	AutoApproveThreshold *float64
	RequiresReview       *bool
	Description          *string
}

// GetOrCreate returns the capability for (agent, kind), creating it with the
// default trust policy if absent. Calling it twice returns the same
// capability and never resets trust.
func (r *Registry) GetOrCreate(ctx context.Context, agent string, kind core.CapabilityKind) (*core.Capability, error) {
	if agent == "" {
		return nil, errors.New(errors.ValidationFailed, "agent name is required")
	}
	if !kind.Valid() {
		return nil, errors.WithFields(
			errors.New(errors.ValidationFailed, "unknown capability kind"),
			errors.Fields{"kind": kind},
		)
	}

	var cap *core.Capability
	err := r.store.InTx(ctx, func(tx *sql.Tx) error {
		var err error
		cap, err = r.EnsureTx(ctx, tx, agent, kind)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cap, nil
}

// EnsureTx is GetOrCreate composed into a caller-owned transaction, so
// submission can create the capability and gate the proposal atomically.
func (r *Registry) EnsureTx(ctx context.Context, q storage.Querier, agent string, kind core.CapabilityKind) (*core.Capability, error) {
	cap, err := storage.GetCapabilityByKey(ctx, q, agent, kind)
	if err == nil {
		return cap, nil
	}
	if !errors.HasCode(err, errors.ResourceNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	cap = &core.Capability{
		ID:                   uuid.New().String(),
		AgentName:            agent,
		Kind:                 kind,
		TrustScore:           r.policy.DefaultTrustScore,
		AutoApproveThreshold: r.policy.DefaultAutoApproveThreshold,
		RequiresReview:       r.policy.DefaultRequiresReview,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := storage.InsertCapability(ctx, q, cap); err != nil {
		// A concurrent writer may have created the row between the read and
		// the insert; surface it as a conflict so the transaction retries.
		return nil, errors.Wrap(err, errors.ConflictDetected, "capability created concurrently")
	}

	logging.GetLogger().InfoWith(ctx, map[string]interface{}{
		"capability_id": cap.ID,
		"agent":         agent,
		"kind":          kind,
		"trust_score":   cap.TrustScore,
	}, "capability created")
	return cap, nil
}

// Get fetches a capability by id.
func (r *Registry) Get(ctx context.Context, id string) (*core.Capability, error) {
	return storage.GetCapability(ctx, r.store.DB(), id)
}

// List returns capabilities, optionally filtered by agent.
func (r *Registry) List(ctx context.Context, agent string) ([]*core.Capability, error) {
	return storage.ListCapabilities(ctx, r.store.DB(), agent)
}

// ListGrouped returns all capabilities keyed by agent name, the shape the
// dashboard's per-agent view wants.
func (r *Registry) ListGrouped(ctx context.Context) (map[string][]*core.Capability, error) {
	caps, err := storage.ListCapabilities(ctx, r.store.DB(), "")
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]*core.Capability)
	for _, c := range caps {
		grouped[c.AgentName] = append(grouped[c.AgentName], c)
	}
	return grouped, nil
}

// ApplyPolicyUpdate adjusts a capability's review policy. It never touches
// the trust score or the counters, and serializes against concurrent trust
// mutations through the same version guard they use.
func (r *Registry) ApplyPolicyUpdate(ctx context.Context, id string, update PolicyUpdate, actor string) (*core.Capability, error) {
	if update.AutoApproveThreshold != nil {
		if t := *update.AutoApproveThreshold; t < 0 || t > 1 {
			return nil, errors.WithFields(
				errors.New(errors.ValidationFailed, "auto-approve threshold must be in [0,1]"),
				errors.Fields{"threshold": t},
			)
		}
	}

	var cap *core.Capability
	err := r.store.WithRetry(ctx, r.policy.MaxConflictRetries, func(tx *sql.Tx) error {
		var err error
		cap, err = storage.GetCapability(ctx, tx, id)
		if err != nil {
			return err
		}
		if update.AutoApproveThreshold != nil {
			cap.AutoApproveThreshold = *update.AutoApproveThreshold
		}
		if update.RequiresReview != nil {
			cap.RequiresReview = *update.RequiresReview
		}
		if update.Description != nil {
			cap.Description = *update.Description
		}
		cap.UpdatedAt = time.Now().UTC()
		return storage.UpdateCapabilityGuarded(ctx, tx, cap)
	})
	if err != nil {
		return nil, err
	}

	logging.GetLogger().InfoWith(ctx, map[string]interface{}{
		"capability_id": id,
		"actor":         actor,
	}, "capability policy updated")
	return cap, nil
}
