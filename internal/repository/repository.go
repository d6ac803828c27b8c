// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openproctor/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
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
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
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

// SaveSession stores a session with tenant isolation.
func (r *SQLRepository) SaveSession(ctx context.Context, tenantID string, session *domain.Session) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	record, _ := json.Marshal(session.Record)

	query := `
		INSERT INTO sessions (
			id, tenant_id, candidate_id, device_id, record, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		session.ID, tenantID, session.CandidateID, session.DeviceID,
		string(record), session.CreatedAt,
	)
	return err
}

// GetSession retrieves a session by ID with tenant isolation.
func (r *SQLRepository) GetSession(ctx context.Context, tenantID string, sessionID string) (*domain.Session, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, candidate_id, device_id, record, created_at
		FROM sessions
		WHERE tenant_id = ? AND id = ?
	`

	var s domain.Session
	var record string
	var deviceID sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, sessionID).Scan(
		&s.ID, &s.TenantID, &s.CandidateID, &deviceID, &record, &s.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	s.DeviceID = deviceID.String
	if record != "" {
		json.Unmarshal([]byte(record), &s.Record)
	}

	return &s, nil
}

// CountSessionsByEntity counts sessions linked to a candidate or device since
// a point in time, with tenant isolation.
func (r *SQLRepository) CountSessionsByEntity(ctx context.Context, tenantID string, entityID string, since time.Time) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*) FROM sessions
		WHERE tenant_id = ?
		  AND (candidate_id = ? OR device_id = ?)
		  AND created_at >= ?
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, entityID, entityID, since).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// SaveAssessment stores an assessment result with tenant isolation.
func (r *SQLRepository) SaveAssessment(ctx context.Context, tenantID string, a *domain.RiskAssessment) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	factors, _ := json.Marshal(a.Factors)
	recommendations, _ := json.Marshal(a.Recommendations)
	signalResults, _ := json.Marshal(a.SignalResults)
	modelOutputs, _ := json.Marshal(a.ModelOutputs)
	metadata, _ := json.Marshal(a.Metadata)

	query := `
		INSERT INTO assessments (
			id, tenant_id, session_id, domain, score, tier,
			confidence, confidence_source, factors, recommendations,
			signal_results, model_outputs, timestamp, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		a.ID, tenantID, a.SessionID, a.Domain, a.Score, string(a.Tier),
		a.Confidence, a.ConfidenceSource, string(factors), string(recommendations),
		string(signalResults), string(modelOutputs), a.Timestamp, string(metadata),
	)
	return err
}

// GetAssessment retrieves an assessment by ID with tenant isolation.
func (r *SQLRepository) GetAssessment(ctx context.Context, tenantID string, assessmentID string) (*domain.RiskAssessment, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, session_id, domain, score, tier,
			   confidence, confidence_source, factors, recommendations,
			   signal_results, model_outputs, timestamp, metadata
		FROM assessments
		WHERE tenant_id = ? AND id = ?
	`

	var a domain.RiskAssessment
	var tier string
	var factors, recommendations, metadata string
	var signalResults, modelOutputs sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, assessmentID).Scan(
		&a.ID, &a.TenantID, &a.SessionID, &a.Domain, &a.Score, &tier,
		&a.Confidence, &a.ConfidenceSource, &factors, &recommendations,
		&signalResults, &modelOutputs, &a.Timestamp, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.Tier = domain.Tier(tier)
	json.Unmarshal([]byte(factors), &a.Factors)
	json.Unmarshal([]byte(recommendations), &a.Recommendations)
	json.Unmarshal([]byte(metadata), &a.Metadata)
	if signalResults.Valid {
		json.Unmarshal([]byte(signalResults.String), &a.SignalResults)
	}
	if modelOutputs.Valid {
		json.Unmarshal([]byte(modelOutputs.String), &a.ModelOutputs)
	}

	return &a, nil
}

// SaveSignalConfig stores a signal configuration with tenant isolation.
func (r *SQLRepository) SaveSignalConfig(ctx context.Context, tenantID string, signal *domain.SignalConfig) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	enabled := 0
	if signal.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO signal_configs (
			id, tenant_id, domain, name, description, version, expression,
			weight, factor, recommendation, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			domain = excluded.domain,
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			weight = excluded.weight,
			factor = excluded.factor,
			recommendation = excluded.recommendation,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		signal.ID, tenantID, string(signal.Domain), signal.Name, signal.Description,
		signal.Version, signal.Expression, signal.Weight, signal.Factor,
		signal.Recommendation, enabled, now, now,
	)
	return err
}

// GetSignalConfig retrieves a signal configuration with tenant isolation.
func (r *SQLRepository) GetSignalConfig(ctx context.Context, tenantID string, signalID string) (*domain.SignalConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, domain, name, description, version, expression,
			   weight, factor, recommendation, enabled, created_at, updated_at
		FROM signal_configs
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	cfg, err := r.scanSignalConfig(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, signalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return cfg, err
}

// ListSignalConfigs retrieves all active signal configurations for a tenant.
func (r *SQLRepository) ListSignalConfigs(ctx context.Context, tenantID string) ([]*domain.SignalConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, domain, name, description, version, expression,
			   weight, factor, recommendation, enabled, created_at, updated_at
		FROM signal_configs
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.SignalConfig
	for rows.Next() {
		cfg, err := r.scanSignalConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}

	return configs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLRepository) scanSignalConfig(row rowScanner) (*domain.SignalConfig, error) {
	var cfg domain.SignalConfig
	var dom string
	var description, recommendation sql.NullString
	var enabled int

	err := row.Scan(
		&cfg.ID, &cfg.TenantID, &dom, &cfg.Name, &description,
		&cfg.Version, &cfg.Expression, &cfg.Weight, &cfg.Factor,
		&recommendation, &enabled, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	cfg.Domain = domain.Domain(dom)
	cfg.Description = description.String
	cfg.Recommendation = recommendation.String
	cfg.Enabled = enabled == 1
	return &cfg, nil
}

// DeleteSignalConfig soft-deletes a signal by setting enabled = 0.
func (r *SQLRepository) DeleteSignalConfig(ctx context.Context, tenantID string, signalID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE signal_configs
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, signalID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveTrainingSamples appends labeled samples for one feature domain.
func (r *SQLRepository) SaveTrainingSamples(ctx context.Context, tenantID string, dom domain.Domain, samples []domain.LabeledSample) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if len(samples) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := r.rebind(`
		INSERT INTO training_samples (tenant_id, domain, features, label, seq, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)

	now := time.Now().UTC()
	for i, s := range samples {
		features, _ := json.Marshal(s.Features)
		if _, err := tx.ExecContext(ctx, query, tenantID, string(dom), string(features), s.Label, i, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListTrainingSamples returns the most recent labeled samples for a domain,
// oldest first so training order is stable.
func (r *SQLRepository) ListTrainingSamples(ctx context.Context, tenantID string, dom domain.Domain, limit int) ([]domain.LabeledSample, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 10000
	}

	query := `
		SELECT features, label FROM (
			SELECT features, label, created_at, seq FROM training_samples
			WHERE tenant_id = ? AND domain = ?
			ORDER BY created_at DESC, seq DESC
			LIMIT ?
		) recent
		ORDER BY created_at ASC, seq ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, string(dom), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []domain.LabeledSample
	for rows.Next() {
		var features string
		var s domain.LabeledSample
		if err := rows.Scan(&features, &s.Label); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(features), &s.Features); err != nil {
			return nil, fmt.Errorf("failed to parse training sample features: %w", err)
		}
		samples = append(samples, s)
	}

	return samples, rows.Err()
}

// SaveModelSnapshot upserts a serialized fitted model. Snapshots belong to
// the process-wide model bank, so they carry no tenant ID.
func (r *SQLRepository) SaveModelSnapshot(ctx context.Context, snapshot *domain.ModelSnapshot) error {
	query := `
		INSERT INTO model_snapshots (
			domain, model, payload, samples, confidence_source, trained_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(domain, model) DO UPDATE SET
			payload = excluded.payload,
			samples = excluded.samples,
			confidence_source = excluded.confidence_source,
			trained_at = excluded.trained_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		string(snapshot.Domain), snapshot.Model, string(snapshot.Payload),
		snapshot.Samples, snapshot.ConfidenceSource, snapshot.TrainedAt,
	)
	return err
}

// ListModelSnapshots returns every persisted model snapshot.
func (r *SQLRepository) ListModelSnapshots(ctx context.Context) ([]*domain.ModelSnapshot, error) {
	query := `
		SELECT domain, model, payload, samples, confidence_source, trained_at
		FROM model_snapshots
		ORDER BY domain, model
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []*domain.ModelSnapshot
	for rows.Next() {
		var snap domain.ModelSnapshot
		var dom, payload string
		if err := rows.Scan(&dom, &snap.Model, &payload, &snap.Samples, &snap.ConfidenceSource, &snap.TrainedAt); err != nil {
			return nil, err
		}
		snap.Domain = domain.Domain(dom)
		snap.Payload = []byte(payload)
		snapshots = append(snapshots, &snap)
	}

	return snapshots, rows.Err()
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
