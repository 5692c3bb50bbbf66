package storage

const schema = `
CREATE TABLE IF NOT EXISTS capabilities (
    id                         TEXT PRIMARY KEY,
    agent_name                 TEXT NOT NULL,
    capability_kind            TEXT NOT NULL,
    description                TEXT NOT NULL DEFAULT '',
    trust_score                REAL NOT NULL,
    auto_approve_threshold     REAL NOT NULL,
    requires_review            INTEGER NOT NULL,
    total_proposals            INTEGER NOT NULL DEFAULT 0,
    approved_count             INTEGER NOT NULL DEFAULT 0,
    rejected_count             INTEGER NOT NULL DEFAULT 0,
    auto_approved_count        INTEGER NOT NULL DEFAULT 0,
    successful_implementations INTEGER NOT NULL DEFAULT 0,
    failed_implementations     INTEGER NOT NULL DEFAULT 0,
    version                    INTEGER NOT NULL DEFAULT 0,
    created_at                 TIMESTAMP NOT NULL,
    updated_at                 TIMESTAMP NOT NULL,
    UNIQUE (agent_name, capability_kind)
);

CREATE TABLE IF NOT EXISTS proposals (
    id                      TEXT PRIMARY KEY,
    capability_id           TEXT NOT NULL REFERENCES capabilities(id),
    title                   TEXT NOT NULL,
    proposed_change         TEXT NOT NULL,
    rationale               TEXT NOT NULL,
    predicted_impact        TEXT,
    supporting_evidence     TEXT,
    affected_extraction_ids TEXT,
    status                  TEXT NOT NULL,
    auto_applied            INTEGER NOT NULL DEFAULT 0,
    reviewed_by             TEXT,
    reviewed_at             TIMESTAMP,
    review_notes            TEXT,
    implemented_at          TIMESTAMP,
    implementation_details  TEXT,
    success_measured        INTEGER NOT NULL DEFAULT 0,
    success_score           REAL,
    actual_impact           TEXT,
    measurement_details     TEXT,
    measured_at             TIMESTAMP,
    reverted_at             TIMESTAMP,
    revert_reason           TEXT,
    created_at              TIMESTAMP NOT NULL,
    updated_at              TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_proposals_capability ON proposals(capability_id);
CREATE INDEX IF NOT EXISTS idx_proposals_status ON proposals(status);

CREATE TABLE IF NOT EXISTS trust_history (
    id             TEXT PRIMARY KEY,
    capability_id  TEXT NOT NULL REFERENCES capabilities(id),
    previous_score REAL NOT NULL,
    new_score      REAL NOT NULL,
    change_reason  TEXT NOT NULL,
    proposal_id    TEXT,
    changed_by     TEXT,
    created_at     TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trust_history_capability ON trust_history(capability_id);
`
