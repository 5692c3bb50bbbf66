package audit

import (
	"context"
	"math"

	"github.com/XiaoConstantine/govern-go/pkg/core"
	"github.com/XiaoConstantine/govern-go/pkg/errors"
	"github.com/XiaoConstantine/govern-go/pkg/storage"
	"github.com/XiaoConstantine/govern-go/pkg/trust"
)

// Trail reads the append-only trust history. There is no update or delete
// surface here, or anywhere else: entries are written exactly once, inside
// the transaction that committed the trust change they describe.
type Trail struct {
	store *storage.Store
}

// NewTrail creates an audit trail reader over the given store.
func NewTrail(store *storage.Store) *Trail {
	return &Trail{store: store}
}

// ListForCapability returns a capability's trust history ordered by
// timestamp, ties broken by insertion order.
func (t *Trail) ListForCapability(ctx context.Context, capabilityID string) ([]core.TrustHistoryEntry, error) {
	return storage.ListTrustHistory(ctx, t.store.DB(), capabilityID)
}

// Reconstruct replays a capability's full history from the given initial
// score and returns the reconstructed current score.
func (t *Trail) Reconstruct(ctx context.Context, capabilityID string, initialScore float64) (float64, error) {
	entries, err := t.ListForCapability(ctx, capabilityID)
	if err != nil {
		return 0, err
	}
	return trust.Replay(initialScore, entries)
}

// Verify checks the reconstructability invariant for one capability:
// replaying its history from the initial default score must land on the
// stored trust score.
func (t *Trail) Verify(ctx context.Context, capabilityID string, initialScore float64) error {
	cap, err := storage.GetCapability(ctx, t.store.DB(), capabilityID)
	if err != nil {
		return err
	}
	replayed, err := t.Reconstruct(ctx, capabilityID, initialScore)
	if err != nil {
		return err
	}
	if math.Abs(replayed-cap.TrustScore) > trust.ReplayEpsilon {
		return errors.WithFields(
			errors.New(errors.ValidationFailed, "trust history does not reproduce current score"),
			errors.Fields{
				"capability_id": capabilityID,
				"stored_score":  cap.TrustScore,
				"replayed":      replayed,
			},
		)
	}
	return nil
}
