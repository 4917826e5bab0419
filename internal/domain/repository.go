package domain

import (
	"context"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)

	// Analysis results
	SaveAnalysis(ctx context.Context, result *AnalysisResult) error
	GetAnalysis(ctx context.Context, id string) (*AnalysisResult, error)
	ListAnalysesByTransaction(ctx context.Context, txID string) ([]*AnalysisResult, error)

	// Enriched entity records (audit trail for GET /entities)
	SaveEntity(ctx context.Context, entity *Entity) error
	GetEntity(ctx context.Context, name string) (*Entity, error)

	// Custom anomaly rule configuration
	SaveCustomRule(ctx context.Context, rule *CustomRule) error
	GetCustomRule(ctx context.Context, ruleID string) (*CustomRule, error)
	ListCustomRules(ctx context.Context) ([]*CustomRule, error)
	DeleteCustomRule(ctx context.Context, ruleID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns int
	MaxIdleConns int
}
