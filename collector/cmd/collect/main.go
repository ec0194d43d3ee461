// Command collect runs one fleet inventory collection pass.
//
// # Usage
//
//	collect --targets /etc/esxifleet/targets.txt --out esxi_versions.json
//
// # Configuration
//
// Configuration can be provided via:
// - Command-line flags
// - Environment variables (ESXIFLEET_*)
// - Config file (--config)
//
// # Examples
//
// Run with flags:
//
//	collect --targets targets.txt \
//	        --concurrency 8 \
//	        --timeout 30s \
//	        --out esxi_versions.json \
//	        --csv esxi_hosts.csv
//
// Run with config file:
//
//	collect --config /etc/esxifleet/collector.yaml
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pilot-net/esxi-fleet/collector"
	"github.com/pilot-net/esxi-fleet/pkg/export"
)

func main() {
	// Parse flags
	var (
		configFile  = flag.String("config", "", "Path to config file")
		targetsFile = flag.String("targets", "", "Path to target list file")
		concurrency = flag.Int("concurrency", 0, "Max concurrent targets")
		timeout     = flag.Duration("timeout", 0, "Per-target query timeout")
		outPath     = flag.String("out", "", "Path for the JSON report")
		csvPath     = flag.String("csv", "", "Path for the per-host CSV (optional)")
		debug       = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	// Set up logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	// Load configuration
	cfg := collector.DefaultConfig()

	if *configFile != "" {
		fileCfg, err := collector.LoadConfig(*configFile)
		if err != nil {
			logger.Error("failed to load config file", "error", err)
			os.Exit(1)
		}
		cfg = fileCfg
	}

	// Apply environment overrides
	cfg.ApplyEnvOverrides()

	// Apply flag overrides
	if *targetsFile != "" {
		cfg.TargetsFile = *targetsFile
	}
	if *concurrency > 0 {
		cfg.Collect.MaxConcurrency = *concurrency
	}
	if *timeout > 0 {
		cfg.Collect.PerTargetTimeout = collector.Duration(*timeout)
	}
	if *outPath != "" {
		cfg.Output.ReportPath = *outPath
	}
	if *csvPath != "" {
		cfg.Output.CSVPath = *csvPath
	}

	// Create collector (validates configuration)
	c, err := collector.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create collector", "error", err)
		os.Exit(1)
	}

	// Set up signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	start := time.Now()
	report, err := c.Run(ctx)
	if err != nil {
		logger.Error("collection failed", "error", err)
		os.Exit(1)
	}

	if err := export.WriteJSONFile(cfg.Output.ReportPath, report); err != nil {
		logger.Error("failed to write report", "error", err)
		os.Exit(1)
	}
	if cfg.Output.CSVPath != "" {
		if err := export.WriteCSVFile(cfg.Output.CSVPath, report); err != nil {
			logger.Error("failed to write csv", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("collection complete",
		"report", cfg.Output.ReportPath,
		"targets_ok", report.Totals.TargetsOK,
		"targets_error", report.Totals.TargetsError,
		"hosts", report.Totals.TotalHosts,
		"elapsed", time.Since(start))
}
