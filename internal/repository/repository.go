// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransaction stores a transaction.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx.ID == "" {
		return fmt.Errorf("%w: transaction ID is required", domain.ErrInvalidInput)
	}

	query := `
		INSERT INTO transactions (
			id, description, amount, currency, tx_date, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.Description, tx.Amount, tx.Currency, tx.Date, tx.CreatedAt,
	)
	return err
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	query := `
		SELECT id, description, amount, currency, tx_date, created_at
		FROM transactions
		WHERE id = ?
	`

	var tx domain.Transaction

	err := r.db.QueryRowContext(ctx, r.rebind(query), txID).Scan(
		&tx.ID, &tx.Description, &tx.Amount, &tx.Currency, &tx.Date, &tx.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &tx, nil
}

// SaveAnalysis stores one entity's analysis result.
func (r *SQLRepository) SaveAnalysis(ctx context.Context, result *domain.AnalysisResult) error {
	if result.ID == "" {
		return fmt.Errorf("%w: analysis ID is required", domain.ErrInvalidInput)
	}

	evidence, _ := json.Marshal(result.Evidence)

	query := `
		INSERT INTO analyses (
			id, transaction_id, entity_name, entity_type,
			risk_score, confidence_score, evidence, reason, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		result.ID, result.TransactionID, result.EntityName, string(result.EntityType),
		result.RiskScore, result.ConfidenceScore, string(evidence), result.Reason,
		result.Timestamp,
	)
	return err
}

// GetAnalysis retrieves an analysis result by ID.
func (r *SQLRepository) GetAnalysis(ctx context.Context, id string) (*domain.AnalysisResult, error) {
	query := `
		SELECT id, transaction_id, entity_name, entity_type,
			   risk_score, confidence_score, evidence, reason, timestamp
		FROM analyses
		WHERE id = ?
	`

	result, err := r.scanAnalysis(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return result, err
}

// ListAnalysesByTransaction retrieves all analysis results for a transaction.
func (r *SQLRepository) ListAnalysesByTransaction(ctx context.Context, txID string) ([]*domain.AnalysisResult, error) {
	query := `
		SELECT id, transaction_id, entity_name, entity_type,
			   risk_score, confidence_score, evidence, reason, timestamp
		FROM analyses
		WHERE transaction_id = ?
		ORDER BY entity_name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), txID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.AnalysisResult
	for rows.Next() {
		result, err := r.scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLRepository) scanAnalysis(row rowScanner) (*domain.AnalysisResult, error) {
	var result domain.AnalysisResult
	var entityType, evidence string

	err := row.Scan(
		&result.ID, &result.TransactionID, &result.EntityName, &entityType,
		&result.RiskScore, &result.ConfidenceScore, &evidence, &result.Reason,
		&result.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	result.EntityType = domain.EntityType(entityType)
	if evidence != "" {
		json.Unmarshal([]byte(evidence), &result.Evidence)
	}

	return &result, nil
}

// SaveEntity stores an enriched entity record, replacing any previous record
// for the same name.
func (r *SQLRepository) SaveEntity(ctx context.Context, entity *domain.Entity) error {
	if entity.Name == "" {
		return fmt.Errorf("%w: entity name is required", domain.ErrInvalidInput)
	}

	evidence, _ := json.Marshal(entity.EvidenceSources)
	directors, _ := json.Marshal(entity.Directors)
	shareholders, _ := json.Marshal(entity.Shareholders)
	riskFactors, _ := json.Marshal(entity.RiskFactors)

	sanctions := 0
	if entity.SanctionsStatus {
		sanctions = 1
	}

	var reputation sql.NullFloat64
	if entity.ReputationScore != nil {
		reputation = sql.NullFloat64{Float64: *entity.ReputationScore, Valid: true}
	}

	query := `
		INSERT INTO entities (
			name, type, confidence_score, evidence_sources,
			registration_number, jurisdiction, incorporation_date,
			directors, shareholders, sanctions_status, risk_factors,
			reputation_score, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			type = excluded.type,
			confidence_score = excluded.confidence_score,
			evidence_sources = excluded.evidence_sources,
			registration_number = excluded.registration_number,
			jurisdiction = excluded.jurisdiction,
			incorporation_date = excluded.incorporation_date,
			directors = excluded.directors,
			shareholders = excluded.shareholders,
			sanctions_status = excluded.sanctions_status,
			risk_factors = excluded.risk_factors,
			reputation_score = excluded.reputation_score,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		entity.Name, string(entity.Type), entity.ConfidenceScore, string(evidence),
		entity.RegistrationNumber, entity.Jurisdiction, entity.IncorporationDate,
		string(directors), string(shareholders), sanctions, string(riskFactors),
		reputation, time.Now().UTC(),
	)
	return err
}

// GetEntity retrieves an enriched entity record by display name.
func (r *SQLRepository) GetEntity(ctx context.Context, name string) (*domain.Entity, error) {
	query := `
		SELECT name, type, confidence_score, evidence_sources,
			   registration_number, jurisdiction, incorporation_date,
			   directors, shareholders, sanctions_status, risk_factors,
			   reputation_score
		FROM entities
		WHERE name = ?
	`

	var e domain.Entity
	var entityType, evidence, directors, shareholders, riskFactors string
	var registration, jurisdiction, incorporation sql.NullString
	var sanctions int
	var reputation sql.NullFloat64

	err := r.db.QueryRowContext(ctx, r.rebind(query), name).Scan(
		&e.Name, &entityType, &e.ConfidenceScore, &evidence,
		&registration, &jurisdiction, &incorporation,
		&directors, &shareholders, &sanctions, &riskFactors,
		&reputation,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	e.Type = domain.EntityType(entityType)
	e.RegistrationNumber = registration.String
	e.Jurisdiction = jurisdiction.String
	e.IncorporationDate = incorporation.String
	e.SanctionsStatus = sanctions == 1

	json.Unmarshal([]byte(evidence), &e.EvidenceSources)
	json.Unmarshal([]byte(directors), &e.Directors)
	json.Unmarshal([]byte(shareholders), &e.Shareholders)
	json.Unmarshal([]byte(riskFactors), &e.RiskFactors)

	if reputation.Valid {
		e.SetReputation(reputation.Float64)
	}

	return &e, nil
}

// SaveCustomRule stores a custom anomaly rule configuration.
func (r *SQLRepository) SaveCustomRule(ctx context.Context, rule *domain.CustomRule) error {
	if rule.ID == "" {
		return fmt.Errorf("%w: rule ID is required", domain.ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO custom_rules (
			id, name, description, expression, anomaly_type, severity, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			anomaly_type = excluded.anomaly_type,
			severity = excluded.severity,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Expression,
		rule.AnomalyType, rule.Severity, enabled,
		now, now,
	)
	return err
}

// GetCustomRule retrieves a custom rule by ID.
func (r *SQLRepository) GetCustomRule(ctx context.Context, ruleID string) (*domain.CustomRule, error) {
	query := `
		SELECT id, name, description, expression, anomaly_type, severity, enabled, created_at, updated_at
		FROM custom_rules
		WHERE id = ?
	`

	var rule domain.CustomRule
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), ruleID).Scan(
		&rule.ID, &rule.Name, &rule.Description, &rule.Expression,
		&rule.AnomalyType, &rule.Severity, &enabled,
		&rule.CreatedAt, &rule.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rule.Enabled = enabled == 1
	return &rule, nil
}

// ListCustomRules retrieves all custom rules, enabled and disabled.
func (r *SQLRepository) ListCustomRules(ctx context.Context) ([]*domain.CustomRule, error) {
	query := `
		SELECT id, name, description, expression, anomaly_type, severity, enabled, created_at, updated_at
		FROM custom_rules
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.CustomRule
	for rows.Next() {
		var rule domain.CustomRule
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.Name, &rule.Description, &rule.Expression,
			&rule.AnomalyType, &rule.Severity, &enabled,
			&rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}

		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// DeleteCustomRule soft-deletes a custom rule by setting enabled = 0.
func (r *SQLRepository) DeleteCustomRule(ctx context.Context, ruleID string) error {
	query := `
		UPDATE custom_rules
		SET enabled = 0, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
