// Package govern is the agent trust and proposal governance engine: the
// component that lets autonomous agents propose changes to extraction
// behavior, tracks a per-agent per-capability trust score, decides whether a
// proposal is auto-approved or routed to a human, and feeds decisions and
// measured outcomes back into trust.
//
// Key Components:
//
//   - Core: the domain model — capabilities keyed by (agent, kind), the
//     proposal state machine, and immutable trust history entries.
//
//   - Registry: the catalog of (agent, capability-kind) trust records.
//     Capabilities are created implicitly on first proposal and never
//     destroyed; humans adjust thresholds and the review override here.
//
//   - Trust: pure scoring. Decision deltas, outcome scaling around the
//     neutral 0.5 point, clamping to [0,1], and history replay.
//
//   - Lifecycle: the server-side state machine over proposal statuses.
//     Every trust-affecting transition is one transaction: status check,
//     score computation, version-guarded capability write, exactly one
//     trust history append, proposal update.
//
//   - Audit: append-only reads over the trust history, including the
//     reconstructability check that replaying a capability's history
//     reproduces its current score.
//
//   - Governance: the boundary surface the dashboard consumes, plus change
//     notifications after each committed transition.
//
// Policy constants (decision deltas, default trust, default threshold) are
// configuration, not code; see pkg/config for the documented defaults.
package govern
