// Package postgres provides a PostgreSQL implementation of jobs.Store.
// It uses pgx/v5 for connection pooling and JSONB for requests, results
// and errors.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloudcompchem/cloudcompchem/pkg/api"
	"github.com/cloudcompchem/cloudcompchem/pkg/jobs"
	"github.com/cloudcompchem/cloudcompchem/pkg/storage"
)

// Store is a PostgreSQL-backed job store.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ jobs.Store        = (*Store)(nil)
	_ jobs.OrphanFailer = (*Store)(nil)
)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// CreateJob inserts a new job. The job's TenantID is stored as given.
func (s *Store) CreateJob(ctx context.Context, job *jobs.Job) error {
	requestJSON, err := json.Marshal(job.Request)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	resultJSON, errorJSON, err := marshalOutcome(job)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobs (id, tenant_id, kind, status, request, result, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		job.ID, job.TenantID, string(job.Kind), string(job.Status),
		requestJSON, nullJSON(resultJSON), nullJSON(errorJSON),
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID, scoped to the tenant in ctx.
func (s *Store) GetJob(ctx context.Context, id string) (*jobs.Job, error) {
	query := `
		SELECT id, tenant_id, kind, status, request, result, error, created_at, updated_at
		FROM jobs
		WHERE id = $1
	`
	args := []any{id}
	if tenantID := storage.GetTenant(ctx); tenantID != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenantID)
	}

	var job jobs.Job
	var kind, status string
	var requestJSON []byte
	var resultJSON, errorJSON *[]byte

	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&job.ID, &job.TenantID, &kind, &status,
		&requestJSON, &resultJSON, &errorJSON,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying job: %w", err)
	}

	job.Kind = api.CalculationKind(kind)
	job.Status = jobs.Status(status)

	job.Request = &api.CalculationRequest{}
	if err := json.Unmarshal(requestJSON, job.Request); err != nil {
		return nil, fmt.Errorf("unmarshaling request: %w", err)
	}
	if resultJSON != nil {
		job.Result = &api.CalculationResult{}
		if err := json.Unmarshal(*resultJSON, job.Result); err != nil {
			return nil, fmt.Errorf("unmarshaling result: %w", err)
		}
	}
	if errorJSON != nil {
		var apiErr api.APIError
		if err := json.Unmarshal(*errorJSON, &apiErr); err == nil {
			job.Error = &apiErr
		}
	}
	return &job, nil
}

// UpdateJob stores the job's status, result, error and update time.
func (s *Store) UpdateJob(ctx context.Context, job *jobs.Job) error {
	resultJSON, errorJSON, err := marshalOutcome(job)
	if err != nil {
		return err
	}

	updatedAt := job.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	query := "UPDATE jobs SET status = $1, result = $2, error = $3, updated_at = $4 WHERE id = $5"
	args := []any{string(job.Status), nullJSON(resultJSON), nullJSON(errorJSON), updatedAt, job.ID}
	if tenantID := storage.GetTenant(ctx); tenantID != "" {
		query += " AND tenant_id = $6"
		args = append(args, tenantID)
	}

	result, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// PurgeFinished deletes terminal jobs last updated before cutoff and
// returns how many were removed.
func (s *Store) PurgeFinished(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.pool.Exec(ctx,
		"DELETE FROM jobs WHERE status IN ($1, $2, $3) AND updated_at < $4",
		string(jobs.StatusSucceeded), string(jobs.StatusFailed), string(jobs.StatusCancelled), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("purging jobs: %w", err)
	}
	return result.RowsAffected(), nil
}

// FailUnfinished marks every pending or running job failed. It is used at
// startup for jobs whose worker died with the previous process.
func (s *Store) FailUnfinished(ctx context.Context, e *api.APIError, at time.Time) (int64, error) {
	errorJSON, err := json.Marshal(e)
	if err != nil {
		return 0, fmt.Errorf("marshaling error: %w", err)
	}
	result, err := s.pool.Exec(ctx,
		"UPDATE jobs SET status = $1, error = $2, updated_at = $3 WHERE status IN ($4, $5)",
		string(jobs.StatusFailed), errorJSON, at, string(jobs.StatusPending), string(jobs.StatusRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("failing unfinished jobs: %w", err)
	}
	return result.RowsAffected(), nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func marshalOutcome(job *jobs.Job) (resultJSON, errorJSON []byte, err error) {
	if job.Result != nil {
		resultJSON, err = json.Marshal(job.Result)
		if err != nil {
			return nil, nil, fmt.Errorf("marshaling result: %w", err)
		}
	}
	if job.Error != nil {
		errorJSON, err = json.Marshal(job.Error)
		if err != nil {
			return nil, nil, fmt.Errorf("marshaling error: %w", err)
		}
	}
	return resultJSON, errorJSON, nil
}

// nullJSON converts nil/empty byte slices to nil for nullable JSONB columns.
func nullJSON(b []byte) *[]byte {
	if len(b) == 0 {
		return nil
	}
	return &b
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
