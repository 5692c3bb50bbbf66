package storage

import (
	"context"
	"database/sql"

	"github.com/XiaoConstantine/govern-go/pkg/core"
	"github.com/XiaoConstantine/govern-go/pkg/errors"
)

const capabilityColumns = `id, agent_name, capability_kind, description,
    trust_score, auto_approve_threshold, requires_review,
    total_proposals, approved_count, rejected_count, auto_approved_count,
    successful_implementations, failed_implementations,
    version, created_at, updated_at`

// InsertCapability inserts a new capability row.
func InsertCapability(ctx context.Context, q Querier, c *core.Capability) error {
	query := `
    INSERT INTO capabilities (` + capabilityColumns + `)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := q.ExecContext(ctx, query,
		c.ID, c.AgentName, string(c.Kind), c.Description,
		c.TrustScore, c.AutoApproveThreshold, c.RequiresReview,
		c.TotalProposals, c.ApprovedCount, c.RejectedCount, c.AutoApprovedCount,
		c.SuccessfulImplementations, c.FailedImplementations,
		c.Version, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.Unknown, "failed to insert capability"),
			errors.Fields{"agent": c.AgentName, "kind": c.Kind},
		)
	}
	return nil
}

func scanCapability(row scanner) (*core.Capability, error) {
	var c core.Capability
	var kind string
	err := row.Scan(
		&c.ID, &c.AgentName, &kind, &c.Description,
		&c.TrustScore, &c.AutoApproveThreshold, &c.RequiresReview,
		&c.TotalProposals, &c.ApprovedCount, &c.RejectedCount, &c.AutoApprovedCount,
		&c.SuccessfulImplementations, &c.FailedImplementations,
		&c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Kind = core.CapabilityKind(kind)
	return &c, nil
}

// GetCapability fetches a capability by id.
func GetCapability(ctx context.Context, q Querier, id string) (*core.Capability, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+capabilityColumns+` FROM capabilities WHERE id = ?`, id)

	c, err := scanCapability(row)
	if err == sql.ErrNoRows {
		return nil, errors.WithFields(
			errors.New(errors.ResourceNotFound, "capability not found"),
			errors.Fields{"capability_id": id},
		)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "failed to read capability")
	}
	return c, nil
}

// GetCapabilityByKey fetches a capability by its (agent, kind) identity.
func GetCapabilityByKey(ctx context.Context, q Querier, agent string, kind core.CapabilityKind) (*core.Capability, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+capabilityColumns+` FROM capabilities WHERE agent_name = ? AND capability_kind = ?`,
		agent, string(kind))

	c, err := scanCapability(row)
	if err == sql.ErrNoRows {
		return nil, errors.WithFields(
			errors.New(errors.ResourceNotFound, "capability not found"),
			errors.Fields{"agent": agent, "kind": kind},
		)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "failed to read capability")
	}
	return c, nil
}

// UpdateCapabilityGuarded writes a capability's mutable columns, guarded by
// the version read earlier in the same transition. A zero row count means a
// concurrent writer won the race; the caller retries the whole
// read-compute-write cycle. On success the in-memory version is advanced to
// match the row.
func UpdateCapabilityGuarded(ctx context.Context, q Querier, c *core.Capability) error {
	query := `
    UPDATE capabilities SET
        description = ?,
        trust_score = ?,
        auto_approve_threshold = ?,
        requires_review = ?,
        total_proposals = ?,
        approved_count = ?,
        rejected_count = ?,
        auto_approved_count = ?,
        successful_implementations = ?,
        failed_implementations = ?,
        version = version + 1,
        updated_at = ?
    WHERE id = ? AND version = ?`

	res, err := q.ExecContext(ctx, query,
		c.Description,
		c.TrustScore, c.AutoApproveThreshold, c.RequiresReview,
		c.TotalProposals, c.ApprovedCount, c.RejectedCount, c.AutoApprovedCount,
		c.SuccessfulImplementations, c.FailedImplementations,
		c.UpdatedAt,
		c.ID, c.Version,
	)
	if err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to update capability")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to read affected rows")
	}
	if n == 0 {
		return errors.WithFields(
			errors.New(errors.ConflictDetected, "capability changed since read"),
			errors.Fields{"capability_id": c.ID, "version": c.Version},
		)
	}

	c.Version++
	return nil
}

// ListCapabilities returns capabilities, optionally filtered by agent,
// ordered by agent then kind.
func ListCapabilities(ctx context.Context, q Querier, agent string) ([]*core.Capability, error) {
	query := `SELECT ` + capabilityColumns + ` FROM capabilities`
	args := []interface{}{}
	if agent != "" {
		query += ` WHERE agent_name = ?`
		args = append(args, agent)
	}
	query += ` ORDER BY agent_name, capability_kind`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "failed to list capabilities")
	}
	defer rows.Close()

	var out []*core.Capability
	for rows.Next() {
		c, err := scanCapability(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.Unknown, "failed to scan capability")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "error iterating capabilities")
	}
	return out, nil
}
