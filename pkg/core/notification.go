package core

import (
	"time"
)

// NotificationKind distinguishes what a change notification refers to.
type NotificationKind string

const (
	NotifyCapability NotificationKind = "capability"
	NotifyProposal   NotificationKind = "proposal"
)

// Notification is emitted after a committed transition so the dashboard can
// refresh its views. It carries identifiers only; subscribers re-fetch the
// records they care about.
type Notification struct {
	Kind      NotificationKind `json:"kind"`
	ID        string           `json:"id"`
	AgentName string           `json:"agent_name,omitempty"`
	Status    ProposalStatus   `json:"status,omitempty"`
	At        time.Time        `json:"at"`
}
