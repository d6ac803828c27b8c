package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaSessions = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    candidate_id TEXT NOT NULL,
    device_id TEXT,
    record TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_sessions_tenant ON sessions(tenant_id);
CREATE INDEX IF NOT EXISTS idx_sessions_candidate ON sessions(tenant_id, candidate_id);
CREATE INDEX IF NOT EXISTS idx_sessions_device ON sessions(tenant_id, device_id);
CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(tenant_id, created_at);
`

const schemaAssessments = `
CREATE TABLE IF NOT EXISTS assessments (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    domain TEXT NOT NULL,
    score REAL NOT NULL,
    tier TEXT NOT NULL,
    confidence REAL NOT NULL,
    confidence_source TEXT NOT NULL,
    factors TEXT NOT NULL,
    recommendations TEXT NOT NULL,
    signal_results TEXT,
    model_outputs TEXT,
    timestamp TIMESTAMP NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_tenant ON assessments(tenant_id);
CREATE INDEX IF NOT EXISTS idx_assessments_session ON assessments(tenant_id, session_id);
CREATE INDEX IF NOT EXISTS idx_assessments_tier ON assessments(tenant_id, tier);
CREATE INDEX IF NOT EXISTS idx_assessments_timestamp ON assessments(tenant_id, timestamp);
`

const schemaSignalConfigs = `
CREATE TABLE IF NOT EXISTS signal_configs (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    domain TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 1.0,
    factor TEXT NOT NULL,
    recommendation TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_signal_configs_tenant ON signal_configs(tenant_id);
CREATE INDEX IF NOT EXISTS idx_signal_configs_enabled ON signal_configs(tenant_id, enabled);
`

const schemaTrainingSamples = `
CREATE TABLE IF NOT EXISTS training_samples (
    tenant_id TEXT NOT NULL,
    domain TEXT NOT NULL,
    features TEXT NOT NULL,
    label REAL NOT NULL,
    seq INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_training_samples_domain ON training_samples(tenant_id, domain, created_at, seq);
`

const schemaModelSnapshots = `
CREATE TABLE IF NOT EXISTS model_snapshots (
    domain TEXT NOT NULL,
    model TEXT NOT NULL,
    payload TEXT NOT NULL,
    samples INTEGER NOT NULL,
    confidence_source TEXT NOT NULL,
    trained_at TIMESTAMP NOT NULL,
    PRIMARY KEY (domain, model)
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaSessions,
		schemaAssessments,
		schemaSignalConfigs,
		schemaTrainingSamples,
		schemaModelSnapshots,
	}
}
