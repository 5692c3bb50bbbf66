package governance

import (
	"context"
	"time"

	"github.com/XiaoConstantine/govern-go/pkg/audit"
	"github.com/XiaoConstantine/govern-go/pkg/config"
	"github.com/XiaoConstantine/govern-go/pkg/core"
	"github.com/XiaoConstantine/govern-go/pkg/lifecycle"
	"github.com/XiaoConstantine/govern-go/pkg/registry"
	"github.com/XiaoConstantine/govern-go/pkg/storage"
	"github.com/XiaoConstantine/govern-go/pkg/trust"
)

// Engine is the boundary surface the dashboard talks to. Each call maps to
// exactly one lifecycle or registry operation; no business logic lives here.
// After every committed transition it emits change notifications so
// subscribed views can refresh.
type Engine struct {
	store    *storage.Store
	registry *registry.Registry
	life     *lifecycle.Lifecycle
	trail    *audit.Trail
	policy   config.PolicyConfig
	events   *notifier
}

// New wires the governance engine over an open store.
func New(store *storage.Store, cfg *config.Config) *Engine {
	reg := registry.New(store, cfg.Policy)
	engine := trust.NewEngine(cfg.Policy)
	return &Engine{
		store:    store,
		registry: reg,
		life:     lifecycle.New(store, reg, engine, cfg.Policy),
		trail:    audit.NewTrail(store),
		policy:   cfg.Policy,
		events:   newNotifier(),
	}
}

// Open opens the configured store and wires an engine over it.
func Open(cfg *config.Config) (*Engine, error) {
	store, err := storage.Open(cfg.Storage)
	if err != nil {
		return nil, err
	}
	return New(store, cfg), nil
}

// Close releases the underlying store and closes all subscriber channels.
func (e *Engine) Close() error {
	e.events.close()
	return e.store.Close()
}

// SubmitProposal submits an agent's proposal; gating happens atomically with
// the submission.
func (e *Engine) SubmitProposal(ctx context.Context, req lifecycle.SubmitRequest) (*core.Proposal, error) {
	p, err := e.life.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	e.notifyProposal(p, req.AgentName)
	return p, nil
}

// RecordDecision applies a human approve/reject verdict to a pending proposal.
func (e *Engine) RecordDecision(ctx context.Context, proposalID string, decision core.Decision, reviewerID, notes string) (*core.Proposal, error) {
	p, err := e.life.RecordDecision(ctx, proposalID, decision, reviewerID, notes)
	if err != nil {
		return nil, err
	}
	e.notifyProposal(p, "")
	return p, nil
}

// MarkImplemented records that an approved change went live.
func (e *Engine) MarkImplemented(ctx context.Context, proposalID, details string) (*core.Proposal, error) {
	p, err := e.life.MarkImplemented(ctx, proposalID, details)
	if err != nil {
		return nil, err
	}
	e.notifyProposal(p, "")
	return p, nil
}

// RecordImpact feeds a measured outcome back into trust.
func (e *Engine) RecordImpact(ctx context.Context, proposalID string, successScore float64, actualImpact, details string) (*core.Proposal, error) {
	p, err := e.life.RecordImpact(ctx, proposalID, successScore, actualImpact, details)
	if err != nil {
		return nil, err
	}
	e.notifyProposal(p, "")
	return p, nil
}

// RevertProposal undoes an implemented proposal.
func (e *Engine) RevertProposal(ctx context.Context, proposalID, reason string) (*core.Proposal, error) {
	p, err := e.life.Revert(ctx, proposalID, reason)
	if err != nil {
		return nil, err
	}
	e.notifyProposal(p, "")
	return p, nil
}

// UpdateCapabilityPolicy adjusts a capability's threshold/review policy.
func (e *Engine) UpdateCapabilityPolicy(ctx context.Context, capabilityID string, update registry.PolicyUpdate, actor string) (*core.Capability, error) {
	c, err := e.registry.ApplyPolicyUpdate(ctx, capabilityID, update, actor)
	if err != nil {
		return nil, err
	}
	e.notifyCapability(c)
	return c, nil
}

// GetCapability fetches one capability.
func (e *Engine) GetCapability(ctx context.Context, capabilityID string) (*core.Capability, error) {
	return e.registry.Get(ctx, capabilityID)
}

// ListCapabilities lists capabilities, optionally filtered by agent.
func (e *Engine) ListCapabilities(ctx context.Context, agent string) ([]*core.Capability, error) {
	return e.registry.List(ctx, agent)
}

// ListCapabilitiesByAgent returns all capabilities grouped by agent name.
func (e *Engine) ListCapabilitiesByAgent(ctx context.Context) (map[string][]*core.Capability, error) {
	return e.registry.ListGrouped(ctx)
}

// GetProposal fetches one proposal.
func (e *Engine) GetProposal(ctx context.Context, proposalID string) (*core.Proposal, error) {
	return e.life.Get(ctx, proposalID)
}

// ListProposals lists proposals matching the filter.
func (e *Engine) ListProposals(ctx context.Context, filter storage.ProposalFilter) ([]*core.Proposal, error) {
	return e.life.List(ctx, filter)
}

// ListTrustHistory returns a capability's audit trail in replay order.
func (e *Engine) ListTrustHistory(ctx context.Context, capabilityID string) ([]core.TrustHistoryEntry, error) {
	return e.trail.ListForCapability(ctx, capabilityID)
}

// VerifyTrustHistory checks the reconstructability invariant for one
// capability against the configured initial score.
func (e *Engine) VerifyTrustHistory(ctx context.Context, capabilityID string) error {
	return e.trail.Verify(ctx, capabilityID, e.policy.DefaultTrustScore)
}

// Subscribe registers for change notifications. The returned channel is
// buffered; a subscriber that stops draining misses events instead of
// blocking the engine. Call Unsubscribe with the token when done.
func (e *Engine) Subscribe(buffer int) (int, <-chan core.Notification) {
	return e.events.subscribe(buffer)
}

// Unsubscribe removes a subscriber and closes its channel.
func (e *Engine) Unsubscribe(token int) {
	e.events.unsubscribe(token)
}

func (e *Engine) notifyProposal(p *core.Proposal, agent string) {
	e.events.publish(core.Notification{
		Kind:      core.NotifyProposal,
		ID:        p.ID,
		AgentName: agent,
		Status:    p.Status,
		At:        time.Now().UTC(),
	})
	e.events.publish(core.Notification{
		Kind: core.NotifyCapability,
		ID:   p.CapabilityID,
		At:   time.Now().UTC(),
	})
}

func (e *Engine) notifyCapability(c *core.Capability) {
	e.events.publish(core.Notification{
		Kind:      core.NotifyCapability,
		ID:        c.ID,
		AgentName: c.AgentName,
		At:        time.Now().UTC(),
	})
}
