// Package service contains the business logic for the fleet server.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pilot-net/esxi-fleet/pkg/types"
	"github.com/pilot-net/esxi-fleet/server/internal/store"
)

// ErrRefreshInProgress is returned when a refresh is requested while a
// collection run is already underway. Refreshes never queue.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// ErrNoReport is returned when no collection run has completed yet.
var ErrNoReport = errors.New("no report available")

// RunStore is the run-history persistence the service needs.
type RunStore interface {
	InsertRun(ctx context.Context, report *types.AggregateReport) error
	LatestRun(ctx context.Context) (*types.AggregateReport, error)
	GetRun(ctx context.Context, id string) (*types.AggregateReport, error)
	ListRuns(ctx context.Context, limit int) ([]types.RunSummary, error)
}

// ReportCache caches the latest report. All methods are best-effort; the
// service falls back to the store on any cache failure.
type ReportCache interface {
	Latest(ctx context.Context) (*types.AggregateReport, error)
	SetLatest(ctx context.Context, report *types.AggregateReport) error
}

// Runner executes one collection pass over the fleet.
type Runner interface {
	Run(ctx context.Context) (*types.AggregateReport, error)
}

// ActivityEntry is one line of the recent-activity feed.
type ActivityEntry struct {
	Time    time.Time `json:"time"`
	Event   string    `json:"event"`
	Detail  string    `json:"detail,omitempty"`
	RunID   string    `json:"run_id,omitempty"`
	Elapsed string    `json:"elapsed,omitempty"`
}

const activityLimit = 50

// Service coordinates collection runs, run history, and the report cache.
type Service struct {
	store          RunStore
	cache          ReportCache // may be nil when Redis is not configured
	runner         Runner
	logger         *slog.Logger
	refreshTimeout time.Duration

	refreshMu sync.Mutex // held for the duration of a run

	activityMu sync.Mutex
	activity   []ActivityEntry // newest first
}

// NewService creates a new service. cache may be nil.
func NewService(store RunStore, cache ReportCache, runner Runner, logger *slog.Logger) *Service {
	return &Service{
		store:          store,
		cache:          cache,
		runner:         runner,
		logger:         logger,
		refreshTimeout: 10 * time.Minute,
	}
}

// LatestReport returns the most recent report, preferring the cache.
func (s *Service) LatestReport(ctx context.Context) (*types.AggregateReport, error) {
	if s.cache != nil {
		report, err := s.cache.Latest(ctx)
		if err != nil {
			s.logger.Warn("report cache read failed", "error", err)
		} else if report != nil {
			return report, nil
		}
	}

	report, err := s.store.LatestRun(ctx)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	if s.cache != nil {
		if err := s.cache.SetLatest(ctx, report); err != nil {
			s.logger.Warn("report cache write failed", "error", err)
		}
	}
	return report, nil
}

// GetRun returns one historical run's full report.
func (s *Service) GetRun(ctx context.Context, id string) (*types.AggregateReport, error) {
	report, err := s.store.GetRun(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return report, nil
}

// mapStoreErr folds the store's not-found sentinel into ErrNoReport so
// callers only have one absence error to handle.
func mapStoreErr(err error) error {
	if errors.Is(err, store.ErrRunNotFound) {
		return ErrNoReport
	}
	return err
}

// ListRuns returns run summaries, newest first.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]types.RunSummary, error) {
	return s.store.ListRuns(ctx, limit)
}

// Refresh runs one collection pass synchronously and records the result.
// Only one refresh runs at a time; a concurrent call fails immediately
// with ErrRefreshInProgress rather than queueing.
func (s *Service) Refresh(ctx context.Context) (*types.AggregateReport, error) {
	if !s.refreshMu.TryLock() {
		return nil, ErrRefreshInProgress
	}
	defer s.refreshMu.Unlock()
	return s.refresh(ctx)
}

// StartRefresh begins a refresh in the background. The ErrRefreshInProgress
// check happens before this returns, so callers can report the conflict.
func (s *Service) StartRefresh() error {
	if !s.refreshMu.TryLock() {
		return ErrRefreshInProgress
	}
	go func() {
		defer s.refreshMu.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), s.refreshTimeout)
		defer cancel()
		if _, err := s.refresh(ctx); err != nil {
			s.logger.Error("background refresh failed", "error", err)
		}
	}()
	return nil
}

// refresh does the actual work; the caller holds refreshMu.
func (s *Service) refresh(ctx context.Context) (*types.AggregateReport, error) {
	start := time.Now()
	s.recordActivity(ActivityEntry{Time: start.UTC(), Event: "refresh_started"})

	report, err := s.runner.Run(ctx)
	if err != nil {
		s.recordActivity(ActivityEntry{
			Time:    time.Now().UTC(),
			Event:   "refresh_failed",
			Detail:  err.Error(),
			Elapsed: time.Since(start).Round(time.Millisecond).String(),
		})
		return nil, fmt.Errorf("collection run: %w", err)
	}

	if err := s.store.InsertRun(ctx, report); err != nil {
		// The run succeeded; losing history is worth surfacing but the
		// report is still served.
		s.logger.Error("failed to record run", "run_id", report.RunID, "error", err)
	}
	if s.cache != nil {
		if err := s.cache.SetLatest(ctx, report); err != nil {
			s.logger.Warn("report cache write failed", "error", err)
		}
	}

	s.recordActivity(ActivityEntry{
		Time:    time.Now().UTC(),
		Event:   "refresh_completed",
		RunID:   report.RunID,
		Detail:  fmt.Sprintf("%d/%d targets ok, %d hosts", report.Totals.TargetsOK, report.Totals.TargetsTotal, report.Totals.TotalHosts),
		Elapsed: time.Since(start).Round(time.Millisecond).String(),
	})
	return report, nil
}

// RunPeriodic refreshes on the given interval until ctx is cancelled.
// A refresh already in progress (for example one triggered over the API)
// just skips that tick.
func (s *Service) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Refresh(ctx); err != nil && !errors.Is(err, ErrRefreshInProgress) {
				s.logger.Error("scheduled refresh failed", "error", err)
			}
		}
	}
}

// Activity returns recent activity entries, newest first.
func (s *Service) Activity() []ActivityEntry {
	s.activityMu.Lock()
	defer s.activityMu.Unlock()
	out := make([]ActivityEntry, len(s.activity))
	copy(out, s.activity)
	return out
}

func (s *Service) recordActivity(entry ActivityEntry) {
	s.activityMu.Lock()
	defer s.activityMu.Unlock()
	s.activity = append([]ActivityEntry{entry}, s.activity...)
	if len(s.activity) > activityLimit {
		s.activity = s.activity[:activityLimit]
	}
}
