package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/XiaoConstantine/govern-go/pkg/core"
	"github.com/XiaoConstantine/govern-go/pkg/errors"
)

const proposalColumns = `id, capability_id, title, proposed_change, rationale,
    predicted_impact, supporting_evidence, affected_extraction_ids,
    status, auto_applied,
    reviewed_by, reviewed_at, review_notes,
    implemented_at, implementation_details,
    success_measured, success_score, actual_impact, measurement_details, measured_at,
    reverted_at, revert_reason,
    created_at, updated_at`

// ProposalFilter narrows ListProposals. Zero values mean "no filter".
type ProposalFilter struct {
	Status       core.ProposalStatus
	AgentName    string
	CapabilityID string
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func marshalExtractionIDs(ids []string) (sql.NullString, error) {
	if len(ids) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return sql.NullString{}, errors.Wrap(err, errors.InvalidInput, "failed to encode extraction ids")
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// InsertProposal inserts a new proposal row.
func InsertProposal(ctx context.Context, q Querier, p *core.Proposal) error {
	extractionIDs, err := marshalExtractionIDs(p.AffectedExtractionIDs)
	if err != nil {
		return err
	}

	query := `
    INSERT INTO proposals (` + proposalColumns + `)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = q.ExecContext(ctx, query,
		p.ID, p.CapabilityID, p.Title, string(p.ProposedChange), p.Rationale,
		nullString(p.PredictedImpact), nullString(p.SupportingEvidence), extractionIDs,
		string(p.Status), p.AutoApplied,
		nullString(p.ReviewedBy), nullTime(p.ReviewedAt), nullString(p.ReviewNotes),
		nullTime(p.ImplementedAt), nullString(p.ImplementationDetails),
		p.SuccessMeasured, nullFloat(p.SuccessScore), nullString(p.ActualImpact),
		nullString(p.MeasurementDetails), nullTime(p.MeasuredAt),
		nullTime(p.RevertedAt), nullString(p.RevertReason),
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.Unknown, "failed to insert proposal"),
			errors.Fields{"proposal_id": p.ID},
		)
	}
	return nil
}

func scanProposal(row scanner) (*core.Proposal, error) {
	var p core.Proposal
	var status, proposedChange string
	var predictedImpact, supportingEvidence, extractionIDs sql.NullString
	var reviewedBy, reviewNotes, implementationDetails sql.NullString
	var actualImpact, measurementDetails, revertReason sql.NullString
	var reviewedAt, implementedAt, measuredAt, revertedAt sql.NullTime
	var successScore sql.NullFloat64

	err := row.Scan(
		&p.ID, &p.CapabilityID, &p.Title, &proposedChange, &p.Rationale,
		&predictedImpact, &supportingEvidence, &extractionIDs,
		&status, &p.AutoApplied,
		&reviewedBy, &reviewedAt, &reviewNotes,
		&implementedAt, &implementationDetails,
		&p.SuccessMeasured, &successScore, &actualImpact, &measurementDetails, &measuredAt,
		&revertedAt, &revertReason,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.ProposedChange = json.RawMessage(proposedChange)
	p.Status = core.ProposalStatus(status)
	p.PredictedImpact = predictedImpact.String
	p.SupportingEvidence = supportingEvidence.String
	p.ReviewedBy = reviewedBy.String
	p.ReviewNotes = reviewNotes.String
	p.ImplementationDetails = implementationDetails.String
	p.ActualImpact = actualImpact.String
	p.MeasurementDetails = measurementDetails.String
	p.RevertReason = revertReason.String

	if reviewedAt.Valid {
		t := reviewedAt.Time
		p.ReviewedAt = &t
	}
	if implementedAt.Valid {
		t := implementedAt.Time
		p.ImplementedAt = &t
	}
	if measuredAt.Valid {
		t := measuredAt.Time
		p.MeasuredAt = &t
	}
	if revertedAt.Valid {
		t := revertedAt.Time
		p.RevertedAt = &t
	}
	if successScore.Valid {
		v := successScore.Float64
		p.SuccessScore = &v
	}
	if extractionIDs.Valid {
		if err := json.Unmarshal([]byte(extractionIDs.String), &p.AffectedExtractionIDs); err != nil {
			return nil, errors.Wrap(err, errors.Unknown, "failed to decode extraction ids")
		}
	}
	return &p, nil
}

// GetProposal fetches a proposal by id.
func GetProposal(ctx context.Context, q Querier, id string) (*core.Proposal, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+proposalColumns+` FROM proposals WHERE id = ?`, id)

	p, err := scanProposal(row)
	if err == sql.ErrNoRows {
		return nil, errors.WithFields(
			errors.New(errors.ResourceNotFound, "proposal not found"),
			errors.Fields{"proposal_id": id},
		)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "failed to read proposal")
	}
	return p, nil
}

// UpdateProposal writes a proposal's mutable columns. Proposals are only
// ever written inside the same transaction that already holds the capability
// version guard, so no separate guard is needed here.
func UpdateProposal(ctx context.Context, q Querier, p *core.Proposal) error {
	query := `
    UPDATE proposals SET
        status = ?,
        auto_applied = ?,
        reviewed_by = ?, reviewed_at = ?, review_notes = ?,
        implemented_at = ?, implementation_details = ?,
        success_measured = ?, success_score = ?, actual_impact = ?,
        measurement_details = ?, measured_at = ?,
        reverted_at = ?, revert_reason = ?,
        updated_at = ?
    WHERE id = ?`

	res, err := q.ExecContext(ctx, query,
		string(p.Status),
		p.AutoApplied,
		nullString(p.ReviewedBy), nullTime(p.ReviewedAt), nullString(p.ReviewNotes),
		nullTime(p.ImplementedAt), nullString(p.ImplementationDetails),
		p.SuccessMeasured, nullFloat(p.SuccessScore), nullString(p.ActualImpact),
		nullString(p.MeasurementDetails), nullTime(p.MeasuredAt),
		nullTime(p.RevertedAt), nullString(p.RevertReason),
		p.UpdatedAt,
		p.ID,
	)
	if err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to update proposal")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to read affected rows")
	}
	if n == 0 {
		return errors.WithFields(
			errors.New(errors.ResourceNotFound, "proposal not found"),
			errors.Fields{"proposal_id": p.ID},
		)
	}
	return nil
}

// ListProposals returns proposals matching the filter, newest first.
func ListProposals(ctx context.Context, q Querier, filter ProposalFilter) ([]*core.Proposal, error) {
	query := `SELECT ` + prefixedProposalColumns() + ` FROM proposals p`
	var args []interface{}
	var where []string

	if filter.AgentName != "" {
		query += ` JOIN capabilities c ON c.id = p.capability_id`
		where = append(where, `c.agent_name = ?`)
		args = append(args, filter.AgentName)
	}
	if filter.Status != "" {
		where = append(where, `p.status = ?`)
		args = append(args, string(filter.Status))
	}
	if filter.CapabilityID != "" {
		where = append(where, `p.capability_id = ?`)
		args = append(args, filter.CapabilityID)
	}
	for i, cond := range where {
		if i == 0 {
			query += ` WHERE ` + cond
		} else {
			query += ` AND ` + cond
		}
	}
	query += ` ORDER BY p.created_at DESC, p.rowid DESC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "failed to list proposals")
	}
	defer rows.Close()

	var out []*core.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.Unknown, "failed to scan proposal")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "error iterating proposals")
	}
	return out, nil
}

func prefixedProposalColumns() string {
	return `p.id, p.capability_id, p.title, p.proposed_change, p.rationale,
    p.predicted_impact, p.supporting_evidence, p.affected_extraction_ids,
    p.status, p.auto_applied,
    p.reviewed_by, p.reviewed_at, p.review_notes,
    p.implemented_at, p.implementation_details,
    p.success_measured, p.success_score, p.actual_impact, p.measurement_details, p.measured_at,
    p.reverted_at, p.revert_reason,
    p.created_at, p.updated_at`
}
