// Package metrics gathers process and database health for the fleet server.
package metrics

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/pilot-net/esxi-fleet/server/internal/store"
)

// ServerHealth is the process side of the health report.
type ServerHealth struct {
	Status        string  `json:"status"`
	Goroutines    int     `json:"goroutines"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryMB      float64 `json:"memory_mb"`
	MemoryPercent float64 `json:"memory_percent"`
}

// DatabaseHealth is the database side of the health report.
type DatabaseHealth struct {
	Status string          `json:"status"`
	Pool   store.PoolStats `json:"pool"`
}

// Health is the full health report served by the API.
type Health struct {
	Timestamp time.Time      `json:"timestamp"`
	Server    ServerHealth   `json:"server"`
	Database  DatabaseHealth `json:"database"`
}

// Collector gathers health metrics with a short cache, so a dashboard
// polling the health endpoint doesn't hammer gopsutil or the pool.
type Collector struct {
	store     *store.Store
	startTime time.Time

	mu          sync.RWMutex
	cached      *Health
	cacheExpiry time.Time
	cacheTTL    time.Duration
}

// NewCollector creates a new metrics collector.
func NewCollector(st *store.Store) *Collector {
	return &Collector{
		store:     st,
		startTime: time.Now(),
		cacheTTL:  15 * time.Second,
	}
}

// GetHealth returns the current health report, cached for a few seconds.
func (c *Collector) GetHealth(ctx context.Context) *Health {
	c.mu.RLock()
	if c.cached != nil && time.Now().Before(c.cacheExpiry) {
		health := *c.cached
		c.mu.RUnlock()
		return &health
	}
	c.mu.RUnlock()

	health := c.collect(ctx)

	c.mu.Lock()
	c.cached = health
	c.cacheExpiry = time.Now().Add(c.cacheTTL)
	c.mu.Unlock()

	return health
}

func (c *Collector) collect(ctx context.Context) *Health {
	health := &Health{
		Timestamp: time.Now().UTC(),
		Server:    c.collectServerHealth(),
	}

	health.Database = DatabaseHealth{Status: "healthy", Pool: c.store.GetPoolStats()}
	if err := c.store.Ping(ctx); err != nil {
		health.Database.Status = "error"
	} else if health.Database.Pool.AcquiredConnections >= health.Database.Pool.MaxConnections-2 {
		health.Database.Status = "degraded"
	}

	return health
}

func (c *Collector) collectServerHealth() ServerHealth {
	health := ServerHealth{
		Status:        "healthy",
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: int64(time.Since(c.startTime).Seconds()),
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err == nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			health.CPUPercent = cpu
		}
		if mem, err := proc.MemoryInfo(); err == nil {
			health.MemoryMB = float64(mem.RSS) / (1024 * 1024)
		}
		if memPct, err := proc.MemoryPercent(); err == nil {
			health.MemoryPercent = float64(memPct)
		}
	}

	if health.MemoryPercent > 90 || health.CPUPercent > 90 {
		health.Status = "degraded"
	}
	return health
}
