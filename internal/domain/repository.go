// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation, except
// model snapshots which belong to the process-wide model bank.
type Repository interface {
	// Session telemetry
	SaveSession(ctx context.Context, tenantID string, session *Session) error
	GetSession(ctx context.Context, tenantID string, sessionID string) (*Session, error)
	CountSessionsByEntity(ctx context.Context, tenantID string, entityID string, since time.Time) (int64, error)

	// Assessment results
	SaveAssessment(ctx context.Context, tenantID string, assessment *RiskAssessment) error
	GetAssessment(ctx context.Context, tenantID string, assessmentID string) (*RiskAssessment, error)

	// Suspicion signal configuration
	SaveSignalConfig(ctx context.Context, tenantID string, signal *SignalConfig) error
	GetSignalConfig(ctx context.Context, tenantID string, signalID string) (*SignalConfig, error)
	ListSignalConfigs(ctx context.Context, tenantID string) ([]*SignalConfig, error)
	DeleteSignalConfig(ctx context.Context, tenantID string, signalID string) error

	// Training sample history
	SaveTrainingSamples(ctx context.Context, tenantID string, domain Domain, samples []LabeledSample) error
	ListTrainingSamples(ctx context.Context, tenantID string, domain Domain, limit int) ([]LabeledSample, error)

	// Fitted model persistence for restart recovery
	SaveModelSnapshot(ctx context.Context, snapshot *ModelSnapshot) error
	ListModelSnapshots(ctx context.Context) ([]*ModelSnapshot, error)

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
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
