package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    description TEXT NOT NULL,
    amount REAL NOT NULL,
    currency TEXT NOT NULL,
    tx_date TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(tx_date);
`

const schemaAnalyses = `
CREATE TABLE IF NOT EXISTS analyses (
    id TEXT PRIMARY KEY,
    transaction_id TEXT NOT NULL,
    entity_name TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    risk_score REAL NOT NULL,
    confidence_score REAL NOT NULL,
    evidence TEXT NOT NULL,
    reason TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_tx ON analyses(transaction_id);
CREATE INDEX IF NOT EXISTS idx_analyses_entity ON analyses(entity_name);
CREATE INDEX IF NOT EXISTS idx_analyses_timestamp ON analyses(timestamp);
`

const schemaEntities = `
CREATE TABLE IF NOT EXISTS entities (
    name TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    confidence_score REAL NOT NULL,
    evidence_sources TEXT NOT NULL,
    registration_number TEXT,
    jurisdiction TEXT,
    incorporation_date TEXT,
    directors TEXT,
    shareholders TEXT,
    sanctions_status INTEGER NOT NULL DEFAULT 0,
    risk_factors TEXT,
    reputation_score REAL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_jurisdiction ON entities(jurisdiction);
`

const schemaCustomRules = `
CREATE TABLE IF NOT EXISTS custom_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    anomaly_type TEXT NOT NULL,
    severity REAL NOT NULL DEFAULT 0.5,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_custom_rules_enabled ON custom_rules(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaAnalyses,
		schemaEntities,
		schemaCustomRules,
	}
}
