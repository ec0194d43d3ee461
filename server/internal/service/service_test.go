package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pilot-net/esxi-fleet/pkg/types"
)

type fakeStore struct {
	mu      sync.Mutex
	runs    []*types.AggregateReport
	failIns bool
}

func (f *fakeStore) InsertRun(ctx context.Context, report *types.AggregateReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIns {
		return errors.New("insert failed")
	}
	f.runs = append(f.runs, report)
	return nil
}

func (f *fakeStore) LatestRun(ctx context.Context) (*types.AggregateReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.runs) == 0 {
		return nil, ErrNoReport
	}
	return f.runs[len(f.runs)-1], nil
}

func (f *fakeStore) GetRun(ctx context.Context, id string) (*types.AggregateReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.runs {
		if r.RunID == id {
			return r, nil
		}
	}
	return nil, ErrNoReport
}

func (f *fakeStore) ListRuns(ctx context.Context, limit int) ([]types.RunSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.RunSummary
	for i := len(f.runs) - 1; i >= 0 && len(out) < limit; i-- {
		r := f.runs[i]
		out = append(out, types.RunSummary{RunID: r.RunID, GeneratedAt: r.GeneratedAt})
	}
	return out, nil
}

type fakeCache struct {
	mu     sync.Mutex
	latest *types.AggregateReport
	sets   int
}

func (f *fakeCache) Latest(ctx context.Context) (*types.AggregateReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, nil
}

func (f *fakeCache) SetLatest(ctx context.Context, report *types.AggregateReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest = report
	f.sets++
	return nil
}

// blockingRunner holds a run open until released.
type blockingRunner struct {
	started  chan struct{}
	release  chan struct{}
	report   *types.AggregateReport
	runErr   error
	runCount int
	mu       sync.Mutex
}

func (r *blockingRunner) Run(ctx context.Context) (*types.AggregateReport, error) {
	r.mu.Lock()
	r.runCount++
	r.mu.Unlock()
	if r.started != nil {
		close(r.started)
	}
	if r.release != nil {
		<-r.release
	}
	return r.report, r.runErr
}

func testReport(id string) *types.AggregateReport {
	return &types.AggregateReport{
		RunID:       id,
		GeneratedAt: time.Now().UTC(),
		Totals:      types.Totals{TargetsTotal: 2, TargetsOK: 2},
	}
}

func newTestService(store RunStore, cache ReportCache, runner Runner) *Service {
	return NewService(store, cache, runner, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRefresh_RecordsRunAndCaches(t *testing.T) {
	st := &fakeStore{}
	ca := &fakeCache{}
	runner := &blockingRunner{report: testReport("r1")}
	svc := newTestService(st, ca, runner)

	report, err := svc.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if report.RunID != "r1" {
		t.Errorf("RunID = %q", report.RunID)
	}
	if len(st.runs) != 1 {
		t.Errorf("stored runs = %d", len(st.runs))
	}
	if ca.latest == nil || ca.latest.RunID != "r1" {
		t.Errorf("cache latest = %+v", ca.latest)
	}

	activity := svc.Activity()
	if len(activity) != 2 {
		t.Fatalf("activity = %+v", activity)
	}
	if activity[0].Event != "refresh_completed" || activity[1].Event != "refresh_started" {
		t.Errorf("activity order = %+v", activity)
	}
}

func TestRefresh_ConcurrentConflict(t *testing.T) {
	st := &fakeStore{}
	runner := &blockingRunner{
		started: make(chan struct{}),
		release: make(chan struct{}),
		report:  testReport("r1"),
	}
	svc := newTestService(st, nil, runner)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Refresh(context.Background())
		done <- err
	}()

	<-runner.started
	if _, err := svc.Refresh(context.Background()); !errors.Is(err, ErrRefreshInProgress) {
		t.Errorf("concurrent Refresh = %v, want ErrRefreshInProgress", err)
	}
	close(runner.release)

	if err := <-done; err != nil {
		t.Fatalf("first Refresh: %v", err)
	}

	// Lock released; a new refresh succeeds
	runner.started = nil
	runner.release = nil
	if _, err := svc.Refresh(context.Background()); err != nil {
		t.Errorf("follow-up Refresh: %v", err)
	}
}

func TestRefresh_RunnerFailure(t *testing.T) {
	st := &fakeStore{}
	runner := &blockingRunner{runErr: errors.New("targets file missing")}
	svc := newTestService(st, nil, runner)

	if _, err := svc.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(st.runs) != 0 {
		t.Errorf("failed run was stored: %+v", st.runs)
	}

	activity := svc.Activity()
	if len(activity) != 2 || activity[0].Event != "refresh_failed" {
		t.Errorf("activity = %+v", activity)
	}
}

func TestRefresh_InsertFailureStillServesReport(t *testing.T) {
	st := &fakeStore{failIns: true}
	ca := &fakeCache{}
	runner := &blockingRunner{report: testReport("r1")}
	svc := newTestService(st, ca, runner)

	report, err := svc.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if report.RunID != "r1" {
		t.Errorf("RunID = %q", report.RunID)
	}
	if ca.latest == nil {
		t.Error("cache not populated")
	}
}

func TestLatestReport_CachePreferred(t *testing.T) {
	st := &fakeStore{runs: []*types.AggregateReport{testReport("db")}}
	ca := &fakeCache{latest: testReport("cached")}
	svc := newTestService(st, ca, &blockingRunner{})

	report, err := svc.LatestReport(context.Background())
	if err != nil {
		t.Fatalf("LatestReport: %v", err)
	}
	if report.RunID != "cached" {
		t.Errorf("RunID = %q, want cached", report.RunID)
	}
}

func TestLatestReport_MissFallsBackAndFills(t *testing.T) {
	st := &fakeStore{runs: []*types.AggregateReport{testReport("db")}}
	ca := &fakeCache{}
	svc := newTestService(st, ca, &blockingRunner{})

	report, err := svc.LatestReport(context.Background())
	if err != nil {
		t.Fatalf("LatestReport: %v", err)
	}
	if report.RunID != "db" {
		t.Errorf("RunID = %q, want db", report.RunID)
	}
	if ca.sets != 1 {
		t.Errorf("cache sets = %d", ca.sets)
	}
}

func TestStartRefresh_Background(t *testing.T) {
	st := &fakeStore{}
	runner := &blockingRunner{
		started: make(chan struct{}),
		release: make(chan struct{}),
		report:  testReport("bg"),
	}
	svc := newTestService(st, nil, runner)

	if err := svc.StartRefresh(); err != nil {
		t.Fatalf("StartRefresh: %v", err)
	}
	<-runner.started

	if err := svc.StartRefresh(); !errors.Is(err, ErrRefreshInProgress) {
		t.Errorf("second StartRefresh = %v, want ErrRefreshInProgress", err)
	}
	close(runner.release)

	// Wait for the background run to land in the store
	deadline := time.After(2 * time.Second)
	for {
		st.mu.Lock()
		n := len(st.runs)
		st.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("background refresh never recorded")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestActivity_Bounded(t *testing.T) {
	svc := newTestService(&fakeStore{}, nil, &blockingRunner{report: testReport("r")})

	for i := 0; i < activityLimit+10; i++ {
		svc.recordActivity(ActivityEntry{Time: time.Now(), Event: "refresh_completed"})
	}
	if got := len(svc.Activity()); got != activityLimit {
		t.Errorf("activity length = %d, want %d", got, activityLimit)
	}
}
