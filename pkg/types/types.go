// Package types contains the shared data model for the ESXi fleet inventory.
//
// These types cross the collector/server boundary and define the JSON shape
// of the report artifacts, so field names are stable.
package types

import "time"

// Target is one independently-queryable management endpoint in a collection
// run. Order in the target list defines nothing about execution order; report
// output is always sorted by label.
type Target struct {
	Label   string `json:"label"`
	Address string `json:"address"`
}

// Status of a single target's collection.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// HostRecord is one normalized host observation. Major and Update are derived
// from Version and never set independently.
type HostRecord struct {
	TargetLabel     string      `json:"target"`
	HostID          string      `json:"host"`
	Version         string      `json:"version,omitempty"`
	Build           string      `json:"build,omitempty"`
	ConnectionState string      `json:"connection_state,omitempty"`
	InMaintenance   bool        `json:"in_maintenance"`
	Major           MajorClass  `json:"major"`
	Update          UpdateGroup `json:"update_group"`
}

// BuildCount is one entry of a build breakdown: how many hosts run a
// particular (version, build) combination.
type BuildCount struct {
	Version string `json:"version"`
	Build   string `json:"build"`
	Hosts   int    `json:"hosts"`
}

// VersionCount is one entry of a version breakdown.
type VersionCount struct {
	Version string `json:"version"`
	Hosts   int    `json:"hosts"`
}

// Rollup is the reduced summary over a set of HostRecords.
//
// MajorCounts and UpdateCounts always carry every bucket, zero-valued when
// empty, so rollups from failed targets sum cleanly into totals.
type Rollup struct {
	TotalHosts       int                 `json:"hosts_total"`
	ConnectedHosts   int                 `json:"connected_hosts"`
	MaintenanceHosts int                 `json:"maintenance_hosts"`
	MajorCounts      map[MajorClass]int  `json:"major_counts"`
	UpdateCounts     map[UpdateGroup]int `json:"update_counts"`
	// BuildBreakdown covers 8.x hosts only, ordered by host count descending,
	// ties broken by (version, build) ascending.
	BuildBreakdown []BuildCount `json:"build_breakdown_8x"`
}

// TargetResult is the outcome of one target's collection pipeline. Exactly one
// is produced per configured target, success or not; an error result carries
// an empty record set and a zeroed rollup.
type TargetResult struct {
	Target     Target       `json:"target"`
	Status     Status       `json:"status"`
	Error      string       `json:"error,omitempty"`
	DurationMS int64        `json:"duration_ms"`
	Records    []HostRecord `json:"hosts,omitempty"`
	Rollup     Rollup       `json:"rollup"`
}

// Totals summarizes an entire run.
type Totals struct {
	TargetsTotal int `json:"targets_total"`
	TargetsOK    int `json:"targets_ok"`
	TargetsError int `json:"targets_error"`
	Rollup
}

// AggregateReport is the single output document of a collection run.
// Immutable once built; Targets is ordered by label.
type AggregateReport struct {
	RunID            string         `json:"run_id"`
	GeneratedAt      time.Time      `json:"generated_at"`
	Totals           Totals         `json:"totals"`
	VersionBreakdown []VersionCount `json:"version_breakdown"`
	BuildBreakdown   []BuildCount   `json:"build_breakdown_8x"`
	Targets          []TargetResult `json:"targets"`
}

// RunSummary is the run-history listing shape served by the API; the full
// report is fetched per run.
type RunSummary struct {
	RunID        string    `json:"run_id"`
	GeneratedAt  time.Time `json:"generated_at"`
	TargetsTotal int       `json:"targets_total"`
	TargetsOK    int       `json:"targets_ok"`
	TargetsError int       `json:"targets_error"`
	HostsTotal   int       `json:"hosts_total"`
}
