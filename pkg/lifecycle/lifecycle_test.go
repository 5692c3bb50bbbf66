package lifecycle

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/govern-go/pkg/config"
	"github.com/XiaoConstantine/govern-go/pkg/core"
	"github.com/XiaoConstantine/govern-go/pkg/errors"
	"github.com/XiaoConstantine/govern-go/pkg/registry"
	"github.com/XiaoConstantine/govern-go/pkg/storage"
	"github.com/XiaoConstantine/govern-go/pkg/trust"
)

type fixture struct {
	store    *storage.Store
	registry *registry.Registry
	life     *Lifecycle
	policy   config.PolicyConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	policy := config.DefaultPolicy()
	store, err := storage.Open(config.StorageConfig{Path: ":memory:", BusyTimeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := registry.New(store, policy)
	return &fixture{
		store:    store,
		registry: reg,
		life:     New(store, reg, trust.NewEngine(policy), policy),
		policy:   policy,
	}
}

func (f *fixture) submitRequest(agent string) SubmitRequest {
	return SubmitRequest{
		AgentName:      agent,
		Kind:           core.KindPromptUpdate,
		Title:          "tighten date extraction prompt",
		ProposedChange: json.RawMessage(`{"prompt":"extract ISO dates only"}`),
		Rationale:      "current prompt confuses locales",
	}
}

// seedTrust pushes a capability into a chosen policy state without going
// through decisions, for scenario setup.
func (f *fixture) seedTrust(t *testing.T, capID string, score, threshold float64, requiresReview bool) {
	t.Helper()
	ctx := context.Background()
	cap, err := f.registry.Get(ctx, capID)
	require.NoError(t, err)
	cap.TrustScore = score
	cap.AutoApproveThreshold = threshold
	cap.RequiresReview = requiresReview
	cap.UpdatedAt = time.Now().UTC()
	require.NoError(t, storage.UpdateCapabilityGuarded(ctx, f.store.DB(), cap))
}

func (f *fixture) history(t *testing.T, capID string) []core.TrustHistoryEntry {
	t.Helper()
	entries, err := storage.ListTrustHistory(context.Background(), f.store.DB(), capID)
	require.NoError(t, err)
	return entries
}

func TestSubmitDefaultsToPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.life.Submit(ctx, f.submitRequest("extractor-1"))
	require.NoError(t, err)

	assert.Equal(t, core.StatusPending, p.Status)
	assert.False(t, p.AutoApplied)

	cap, err := f.registry.Get(ctx, p.CapabilityID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, cap.TotalProposals)
	assert.EqualValues(t, 0, cap.AutoApprovedCount)
	assert.Empty(t, f.history(t, cap.ID), "pending submission must not touch trust")
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.submitRequest("extractor-1")
	req.Title = ""
	_, err := f.life.Submit(ctx, req)
	require.Error(t, err)
	assert.Equal(t, errors.ValidationFailed, errors.Code(err))

	req = f.submitRequest("extractor-1")
	req.ProposedChange = json.RawMessage(`{not json`)
	_, err = f.life.Submit(ctx, req)
	require.Error(t, err)
	assert.Equal(t, errors.ValidationFailed, errors.Code(err))
}

// Scenario: trust 0.85, threshold 0.8, requires_review=false -> immediate
// auto-approval with one history row.
func TestSubmitAutoApproves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cap, err := f.registry.GetOrCreate(ctx, "extractor-1", core.KindPromptUpdate)
	require.NoError(t, err)
	f.seedTrust(t, cap.ID, 0.85, 0.8, false)

	p, err := f.life.Submit(ctx, f.submitRequest("extractor-1"))
	require.NoError(t, err)

	assert.Equal(t, core.StatusAutoApproved, p.Status)
	assert.True(t, p.AutoApplied)

	got, err := f.registry.Get(ctx, cap.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.AutoApprovedCount)
	assert.EqualValues(t, 1, got.TotalProposals)
	assert.InDelta(t, 0.85+f.policy.AutoApproveBonus, got.TrustScore, 1e-9)

	entries := f.history(t, cap.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, core.ReasonAutoApproved, entries[0].ChangeReason)
	assert.Equal(t, p.ID, entries[0].ProposalID)
}

// Scenario: trust 0.5, threshold 0.9 -> pending, then a human approval moves
// trust by the approve delta and appends one history row.
func TestPendingThenApprove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cap, err := f.registry.GetOrCreate(ctx, "extractor-1", core.KindPromptUpdate)
	require.NoError(t, err)
	f.seedTrust(t, cap.ID, 0.5, 0.9, false)

	p, err := f.life.Submit(ctx, f.submitRequest("extractor-1"))
	require.NoError(t, err)
	require.Equal(t, core.StatusPending, p.Status)

	approved, err := f.life.RecordDecision(ctx, p.ID, core.DecisionApprove, "reviewer-7", "safe change")
	require.NoError(t, err)

	assert.Equal(t, core.StatusApproved, approved.Status)
	assert.Equal(t, "reviewer-7", approved.ReviewedBy)
	require.NotNil(t, approved.ReviewedAt)

	got, err := f.registry.Get(ctx, cap.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.5+f.policy.ApproveDelta, got.TrustScore, 1e-9)
	assert.EqualValues(t, 1, got.ApprovedCount)

	entries := f.history(t, cap.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, core.ReasonApproved, entries[0].ChangeReason)
	assert.Equal(t, "reviewer-7", entries[0].ChangedBy)
}

func TestRejectLowersTrust(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.life.Submit(ctx, f.submitRequest("extractor-1"))
	require.NoError(t, err)

	rejected, err := f.life.RecordDecision(ctx, p.ID, core.DecisionReject, "reviewer-7", "too risky")
	require.NoError(t, err)
	assert.Equal(t, core.StatusRejected, rejected.Status)

	cap, err := f.registry.Get(ctx, p.CapabilityID)
	require.NoError(t, err)
	// Default trust 0.10 minus reject delta 0.10, clamped at zero.
	assert.InDelta(t, 0.0, cap.TrustScore, 1e-9)
	assert.EqualValues(t, 1, cap.RejectedCount)
}

func TestDecisionOnNonPendingFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.life.Submit(ctx, f.submitRequest("extractor-1"))
	require.NoError(t, err)
	_, err = f.life.RecordDecision(ctx, p.ID, core.DecisionApprove, "reviewer-7", "")
	require.NoError(t, err)

	before := f.history(t, p.CapabilityID)

	// Second decision races against the first and must fail cleanly.
	_, err = f.life.RecordDecision(ctx, p.ID, core.DecisionReject, "reviewer-8", "")
	require.Error(t, err)
	assert.Equal(t, errors.InvalidTransition, errors.Code(err))

	after := f.history(t, p.CapabilityID)
	assert.Equal(t, len(before), len(after), "failed transition must not append history")
}

func TestDecisionAfterAutoApprovalFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cap, err := f.registry.GetOrCreate(ctx, "extractor-1", core.KindPromptUpdate)
	require.NoError(t, err)
	f.seedTrust(t, cap.ID, 0.9, 0.8, false)

	p, err := f.life.Submit(ctx, f.submitRequest("extractor-1"))
	require.NoError(t, err)
	require.Equal(t, core.StatusAutoApproved, p.Status)

	_, err = f.life.RecordDecision(ctx, p.ID, core.DecisionApprove, "reviewer-7", "")
	require.Error(t, err)
	assert.Equal(t, errors.InvalidTransition, errors.Code(err))
}

func TestDecisionValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.life.Submit(ctx, f.submitRequest("extractor-1"))
	require.NoError(t, err)

	_, err = f.life.RecordDecision(ctx, p.ID, core.DecisionApprove, "", "")
	require.Error(t, err)
	assert.Equal(t, errors.ValidationFailed, errors.Code(err))

	_, err = f.life.RecordDecision(ctx, p.ID, core.Decision("defer"), "reviewer-7", "")
	require.Error(t, err)
	assert.Equal(t, errors.ValidationFailed, errors.Code(err))

	_, err = f.life.RecordDecision(ctx, "missing", core.DecisionApprove, "reviewer-7", "")
	require.Error(t, err)
	assert.Equal(t, errors.ResourceNotFound, errors.Code(err))
}

func TestMarkImplemented(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.life.Submit(ctx, f.submitRequest("extractor-1"))
	require.NoError(t, err)
	_, err = f.life.RecordDecision(ctx, p.ID, core.DecisionApprove, "reviewer-7", "")
	require.NoError(t, err)

	historyBefore := f.history(t, p.CapabilityID)

	impl, err := f.life.MarkImplemented(ctx, p.ID, "rolled out to extraction workers")
	require.NoError(t, err)
	assert.Equal(t, core.StatusImplemented, impl.Status)
	require.NotNil(t, impl.ImplementedAt)

	// No trust effect until the outcome is measured.
	assert.Len(t, f.history(t, p.CapabilityID), len(historyBefore))

	t.Run("cannot implement from pending", func(t *testing.T) {
		q, err := f.life.Submit(ctx, f.submitRequest("extractor-1"))
		require.NoError(t, err)
		_, err = f.life.MarkImplemented(ctx, q.ID, "")
		require.Error(t, err)
		assert.Equal(t, errors.InvalidTransition, errors.Code(err))
	})
}

// Scenario: a measured total failure pulls trust down by the full outcome
// delta, and impact cannot be recorded twice.
func TestRecordImpact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cap, err := f.registry.GetOrCreate(ctx, "extractor-1", core.KindPromptUpdate)
	require.NoError(t, err)
	f.seedTrust(t, cap.ID, 0.5, 0.9, false)

	p, err := f.life.Submit(ctx, f.submitRequest("extractor-1"))
	require.NoError(t, err)
	_, err = f.life.RecordDecision(ctx, p.ID, core.DecisionApprove, "reviewer-7", "")
	require.NoError(t, err)
	_, err = f.life.MarkImplemented(ctx, p.ID, "")
	require.NoError(t, err)

	scoreBefore := 0.5 + f.policy.ApproveDelta

	measured, err := f.life.RecordImpact(ctx, p.ID, 0.0, "extraction accuracy regressed", "a/b comparison over 1k docs")
	require.NoError(t, err)
	assert.True(t, measured.SuccessMeasured)
	require.NotNil(t, measured.SuccessScore)
	assert.Equal(t, 0.0, *measured.SuccessScore)

	got, err := f.registry.Get(ctx, cap.ID)
	require.NoError(t, err)
	assert.InDelta(t, scoreBefore-f.policy.OutcomeDelta, got.TrustScore, 1e-9)
	assert.EqualValues(t, 1, got.FailedImplementations)

	t.Run("second measurement rejected", func(t *testing.T) {
		_, err := f.life.RecordImpact(ctx, p.ID, 0.9, "", "")
		require.Error(t, err)
		assert.Equal(t, errors.InvalidTransition, errors.Code(err))
	})

	t.Run("score out of range rejected before any write", func(t *testing.T) {
		_, err := f.life.RecordImpact(ctx, p.ID, 1.5, "", "")
		require.Error(t, err)
		assert.Equal(t, errors.ValidationFailed, errors.Code(err))
	})
}

func TestRecordImpactNeutralStillAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.life.Submit(ctx, f.submitRequest("extractor-1"))
	require.NoError(t, err)
	_, err = f.life.RecordDecision(ctx, p.ID, core.DecisionApprove, "reviewer-7", "")
	require.NoError(t, err)
	_, err = f.life.MarkImplemented(ctx, p.ID, "")
	require.NoError(t, err)

	before := f.history(t, p.CapabilityID)
	_, err = f.life.RecordImpact(ctx, p.ID, 0.5, "no observable change", "")
	require.NoError(t, err)

	entries := f.history(t, p.CapabilityID)
	require.Len(t, entries, len(before)+1)
	last := entries[len(entries)-1]
	assert.Equal(t, core.ReasonImpactMeasured, last.ChangeReason)
	assert.Equal(t, last.PreviousScore, last.NewScore, "neutral outcome carries zero delta")
}

func TestRevert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cap, err := f.registry.GetOrCreate(ctx, "extractor-1", core.KindPromptUpdate)
	require.NoError(t, err)
	f.seedTrust(t, cap.ID, 0.6, 0.9, false)

	p, err := f.life.Submit(ctx, f.submitRequest("extractor-1"))
	require.NoError(t, err)
	_, err = f.life.RecordDecision(ctx, p.ID, core.DecisionApprove, "reviewer-7", "")
	require.NoError(t, err)
	_, err = f.life.MarkImplemented(ctx, p.ID, "")
	require.NoError(t, err)

	// Even a positively measured change can be reverted later; the penalty
	// applies regardless.
	_, err = f.life.RecordImpact(ctx, p.ID, 0.9, "looked good at first", "")
	require.NoError(t, err)

	reverted, err := f.life.Revert(ctx, p.ID, "caused duplicate entities downstream")
	require.NoError(t, err)
	assert.Equal(t, core.StatusReverted, reverted.Status)
	require.NotNil(t, reverted.RevertedAt)

	got, err := f.registry.Get(ctx, cap.ID)
	require.NoError(t, err)
	entries := f.history(t, cap.ID)
	last := entries[len(entries)-1]
	assert.Equal(t, core.ReasonReverted, last.ChangeReason)
	assert.InDelta(t, last.NewScore, got.TrustScore, 1e-9)

	t.Run("revert requires a reason", func(t *testing.T) {
		_, err := f.life.Revert(ctx, p.ID, "")
		require.Error(t, err)
		assert.Equal(t, errors.ValidationFailed, errors.Code(err))
	})

	t.Run("revert is terminal", func(t *testing.T) {
		_, err := f.life.Revert(ctx, p.ID, "again")
		require.Error(t, err)
		assert.Equal(t, errors.InvalidTransition, errors.Code(err))
	})
}

// Concurrency safety: N concurrent decisions against the same capability
// produce exactly N history entries and a final score equal to replaying the
// committed deltas in order.
func TestConcurrentDecisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 16
	ids := make([]string, n)
	for i := range ids {
		p, err := f.life.Submit(ctx, f.submitRequest("extractor-1"))
		require.NoError(t, err)
		ids[i] = p.ID
	}

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		decision := core.DecisionApprove
		if i%2 == 1 {
			decision = core.DecisionReject
		}
		go func(id string, d core.Decision) {
			defer wg.Done()
			_, err := f.life.RecordDecision(ctx, id, d, "reviewer-7", "")
			assert.NoError(t, err)
		}(id, decision)
	}
	wg.Wait()

	p, err := f.life.Get(ctx, ids[0])
	require.NoError(t, err)
	cap, err := f.registry.Get(ctx, p.CapabilityID)
	require.NoError(t, err)

	entries := f.history(t, cap.ID)
	require.Len(t, entries, n)

	replayed, err := trust.Replay(f.policy.DefaultTrustScore, entries)
	require.NoError(t, err)
	assert.InDelta(t, cap.TrustScore, replayed, trust.ReplayEpsilon)

	assert.EqualValues(t, n/2, cap.ApprovedCount)
	assert.EqualValues(t, n/2, cap.RejectedCount)
	assert.EqualValues(t, n, cap.TotalProposals)
	assert.True(t, cap.CountersConsistent())
}
