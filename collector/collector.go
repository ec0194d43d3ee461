// Package collector implements the fleet inventory collection run.
//
// # Pipeline
//
//  1. Load the target list
//  2. For every target, bounded by max_concurrency: query under the
//     per-target timeout, normalize the raw payload, roll up
//  3. Aggregate all per-target results into one report
//
// A target's failure (timeout, query error, unreadable payload) is recorded
// on its own TargetResult and never disturbs its siblings; only an empty or
// unreadable target list aborts the run.
package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pilot-net/esxi-fleet/collector/internal/normalize"
	"github.com/pilot-net/esxi-fleet/collector/internal/query"
	"github.com/pilot-net/esxi-fleet/collector/internal/rollup"
	"github.com/pilot-net/esxi-fleet/collector/internal/schedule"
	"github.com/pilot-net/esxi-fleet/collector/internal/secrets"
	"github.com/pilot-net/esxi-fleet/collector/internal/source"
	"github.com/pilot-net/esxi-fleet/collector/internal/targets"
	"github.com/pilot-net/esxi-fleet/pkg/types"
)

// QueryFunc fetches the raw inventory payload for one management endpoint.
// The payload may be any shape the normalizer supports.
type QueryFunc func(ctx context.Context, address string) (json.RawMessage, error)

// Collector runs collection passes over the configured fleet.
type Collector struct {
	cfg    *Config
	query  QueryFunc
	logger *slog.Logger
}

// New creates a collector using the built-in source selected by the config
// (credential references resolved up front, so a broken reference fails here
// rather than mid-run).
func New(cfg *Config, logger *slog.Logger) (*Collector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	fn, err := buildSource(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Collector{cfg: cfg, query: fn, logger: logger}, nil
}

// NewWithQuery creates a collector with an injected query capability instead
// of a built-in source.
func NewWithQuery(cfg *Config, fn QueryFunc, logger *slog.Logger) (*Collector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if fn == nil {
		return nil, fmt.Errorf("query function is required")
	}
	return &Collector{cfg: cfg, query: fn, logger: logger}, nil
}

// Run executes one collection pass and returns the aggregated report.
func (c *Collector) Run(ctx context.Context) (*types.AggregateReport, error) {
	targetList, err := targets.Load(c.cfg.TargetsFile)
	if err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	c.logger.Info("collection started",
		"run_id", runID,
		"targets", len(targetList),
		"max_concurrency", c.cfg.Collect.MaxConcurrency,
		"per_target_timeout", time.Duration(c.cfg.Collect.PerTargetTimeout))

	start := time.Now()
	results := schedule.Run(ctx, targetList, c.collectOne, c.cfg.Collect.MaxConcurrency)
	report := rollup.Aggregate(results, time.Now().UTC(), runID)

	c.logger.Info("collection finished",
		"run_id", runID,
		"targets_ok", report.Totals.TargetsOK,
		"targets_error", report.Totals.TargetsError,
		"hosts", report.Totals.TotalHosts,
		"elapsed", time.Since(start))

	return report, nil
}

// collectOne is the per-target pipeline: query, normalize, roll up. It always
// returns a result; failures are carried on it.
func (c *Collector) collectOne(ctx context.Context, target types.Target) types.TargetResult {
	timeout := time.Duration(c.cfg.Collect.PerTargetTimeout)

	raw, elapsed, err := query.Execute(ctx, target, query.Func(c.query), timeout)
	if err != nil {
		return c.failed(target, elapsed, err)
	}

	records, err := normalize.Records(target.Label, raw)
	if err != nil {
		return c.failed(target, elapsed, err)
	}

	c.logger.Debug("target collected",
		"target", target.Label,
		"hosts", len(records),
		"elapsed", elapsed)

	return types.TargetResult{
		Target:     target,
		Status:     types.StatusOK,
		DurationMS: elapsed.Milliseconds(),
		Records:    records,
		Rollup:     rollup.Build(records),
	}
}

func (c *Collector) failed(target types.Target, elapsed time.Duration, err error) types.TargetResult {
	c.logger.Warn("target failed",
		"target", target.Label,
		"address", target.Address,
		"error", err)

	return types.TargetResult{
		Target:     target,
		Status:     types.StatusError,
		Error:      err.Error(),
		DurationMS: elapsed.Milliseconds(),
		Rollup:     rollup.Build(nil),
	}
}

// buildSource constructs the configured built-in query capability.
func buildSource(cfg *Config, logger *slog.Logger) (QueryFunc, error) {
	resolver := secrets.NewResolver()

	switch cfg.Source.Kind {
	case "http":
		token, err := resolver.Resolve(cfg.Source.HTTP.Token)
		if err != nil {
			return nil, fmt.Errorf("http source: %w", err)
		}
		s := source.NewHTTPSource(source.HTTPConfig{
			Path:               cfg.Source.HTTP.Path,
			Token:              token,
			InsecureSkipVerify: cfg.Source.HTTP.InsecureSkipVerify,
			RateLimit:          cfg.Source.HTTP.RateLimit,
		}, logger)
		return s.Query, nil

	case "ssh":
		password, err := resolver.Resolve(cfg.Source.SSH.Password)
		if err != nil {
			return nil, fmt.Errorf("ssh source: %w", err)
		}
		s, err := source.NewSSHSource(source.SSHConfig{
			Username:       cfg.Source.SSH.Username,
			Password:       password,
			PrivateKeyPath: cfg.Source.SSH.PrivateKeyPath,
			Command:        cfg.Source.SSH.Command,
			Port:           cfg.Source.SSH.Port,
		}, logger)
		if err != nil {
			return nil, err
		}
		return s.Query, nil

	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}
}
