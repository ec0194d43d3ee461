// Package store provides database access for the fleet server.
//
// Run history is a narrow surface: headline totals live in their own
// columns for cheap listing, the full aggregate report rides along as
// JSONB and is only deserialized when one run is fetched.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pilot-net/esxi-fleet/pkg/types"
)

// ErrRunNotFound is returned when a run ID has no row.
var ErrRunNotFound = errors.New("run not found")

// Store provides database operations.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new store with the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewStoreFromURL creates a new store by connecting to the given database URL.
func NewStoreFromURL(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping tests database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// PoolStats reports connection pool usage for health reporting.
type PoolStats struct {
	TotalConnections    int32 `json:"total_connections"`
	AcquiredConnections int32 `json:"acquired_connections"`
	IdleConnections     int32 `json:"idle_connections"`
	MaxConnections      int32 `json:"max_connections"`
}

// GetPoolStats returns current connection pool statistics.
func (s *Store) GetPoolStats() PoolStats {
	st := s.pool.Stat()
	return PoolStats{
		TotalConnections:    st.TotalConns(),
		AcquiredConnections: st.AcquiredConns(),
		IdleConnections:     st.IdleConns(),
		MaxConnections:      st.MaxConns(),
	}
}

// InsertRun records a completed collection run.
func (s *Store) InsertRun(ctx context.Context, report *types.AggregateReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO runs (id, generated_at, targets_total, targets_ok, targets_error, hosts_total, report)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		report.RunID, report.GeneratedAt,
		report.Totals.TargetsTotal, report.Totals.TargetsOK, report.Totals.TargetsError,
		report.Totals.TotalHosts, reportJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", report.RunID, err)
	}
	return nil
}

// LatestRun returns the most recent run's full report, or ErrRunNotFound
// when no run has been recorded yet.
func (s *Store) LatestRun(ctx context.Context) (*types.AggregateReport, error) {
	var reportJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT report FROM runs
		ORDER BY generated_at DESC
		LIMIT 1
	`).Scan(&reportJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeReport(reportJSON)
}

// GetRun returns one run's full report by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*types.AggregateReport, error) {
	var reportJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT report FROM runs WHERE id = $1
	`, id).Scan(&reportJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeReport(reportJSON)
}

// ListRuns returns run summaries, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]types.RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, generated_at, targets_total, targets_ok, targets_error, hosts_total
		FROM runs
		ORDER BY generated_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []types.RunSummary
	for rows.Next() {
		var r types.RunSummary
		if err := rows.Scan(&r.RunID, &r.GeneratedAt, &r.TargetsTotal, &r.TargetsOK, &r.TargetsError, &r.HostsTotal); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// PruneRuns deletes runs older than the newest keep entries.
func (s *Store) PruneRuns(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, fmt.Errorf("keep must be positive")
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM runs
		WHERE id NOT IN (
			SELECT id FROM runs ORDER BY generated_at DESC LIMIT $1
		)
	`, keep)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func decodeReport(data []byte) (*types.AggregateReport, error) {
	var report types.AggregateReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decoding stored report: %w", err)
	}
	return &report, nil
}
