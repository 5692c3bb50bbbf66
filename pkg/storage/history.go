package storage

import (
	"context"
	"database/sql"

	"github.com/XiaoConstantine/govern-go/pkg/core"
	"github.com/XiaoConstantine/govern-go/pkg/errors"
)

// InsertTrustHistory appends one immutable trust history entry. There is
// deliberately no update or delete counterpart.
func InsertTrustHistory(ctx context.Context, q Querier, e *core.TrustHistoryEntry) error {
	query := `
    INSERT INTO trust_history
        (id, capability_id, previous_score, new_score, change_reason, proposal_id, changed_by, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := q.ExecContext(ctx, query,
		e.ID, e.CapabilityID, e.PreviousScore, e.NewScore, e.ChangeReason,
		nullString(e.ProposalID), nullString(e.ChangedBy), e.CreatedAt,
	)
	if err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.Unknown, "failed to append trust history"),
			errors.Fields{"capability_id": e.CapabilityID},
		)
	}
	return nil
}

// ListTrustHistory returns all entries for a capability ordered by timestamp,
// ties broken by insertion order. This ordering matches commit order for a
// given capability, which is what makes replay valid.
func ListTrustHistory(ctx context.Context, q Querier, capabilityID string) ([]core.TrustHistoryEntry, error) {
	query := `
    SELECT id, capability_id, previous_score, new_score, change_reason, proposal_id, changed_by, created_at
    FROM trust_history
    WHERE capability_id = ?
    ORDER BY created_at, rowid`

	rows, err := q.QueryContext(ctx, query, capabilityID)
	if err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "failed to list trust history")
	}
	defer rows.Close()

	var out []core.TrustHistoryEntry
	for rows.Next() {
		var e core.TrustHistoryEntry
		var proposalID, changedBy sql.NullString
		if err := rows.Scan(
			&e.ID, &e.CapabilityID, &e.PreviousScore, &e.NewScore,
			&e.ChangeReason, &proposalID, &changedBy, &e.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, errors.Unknown, "failed to scan trust history entry")
		}
		e.ProposalID = proposalID.String
		e.ChangedBy = changedBy.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "error iterating trust history")
	}
	return out, nil
}
