// Package rollup reduces HostRecords into per-target and fleet-wide
// summaries. Everything here is pure computation: no I/O, no clocks beyond
// the timestamp the caller passes in, and identical inputs produce identical
// output ordering.
package rollup

import (
	"sort"
	"strings"
	"time"

	"github.com/pilot-net/esxi-fleet/pkg/types"
)

// Build reduces one target's records into a Rollup. A nil or empty record set
// yields a zeroed rollup with every bucket present, which is what error
// results carry.
func Build(records []types.HostRecord) types.Rollup {
	r := types.Rollup{
		MajorCounts:  emptyMajorCounts(),
		UpdateCounts: emptyUpdateCounts(),
	}

	builds := make(map[types.BuildCount]int)
	for _, rec := range records {
		r.TotalHosts++
		if rec.ConnectionState == "connected" {
			r.ConnectedHosts++
		}
		if rec.InMaintenance {
			r.MaintenanceHosts++
		}
		r.MajorCounts[rec.Major]++
		r.UpdateCounts[rec.Update]++

		if rec.Major == types.Major8 {
			builds[types.BuildCount{Version: rec.Version, Build: rec.Build}]++
		}
	}

	r.BuildBreakdown = sortedBuilds(builds)
	return r
}

// Aggregate folds all TargetResults into the final report. Results are
// re-sorted by label so the fold is order-independent; the input slice is not
// modified.
func Aggregate(results []types.TargetResult, generatedAt time.Time, runID string) *types.AggregateReport {
	ordered := make([]types.TargetResult, len(results))
	copy(ordered, results)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Target.Label < ordered[j].Target.Label
	})

	totals := types.Totals{
		TargetsTotal: len(ordered),
		Rollup: types.Rollup{
			MajorCounts:  emptyMajorCounts(),
			UpdateCounts: emptyUpdateCounts(),
		},
	}

	versions := make(map[string]int)
	builds := make(map[types.BuildCount]int)

	for _, res := range ordered {
		switch res.Status {
		case types.StatusOK:
			totals.TargetsOK++
		default:
			totals.TargetsError++
		}

		totals.TotalHosts += res.Rollup.TotalHosts
		totals.ConnectedHosts += res.Rollup.ConnectedHosts
		totals.MaintenanceHosts += res.Rollup.MaintenanceHosts
		for class, n := range res.Rollup.MajorCounts {
			totals.MajorCounts[class] += n
		}
		for group, n := range res.Rollup.UpdateCounts {
			totals.UpdateCounts[group] += n
		}

		for _, rec := range res.Records {
			version := strings.TrimSpace(rec.Version)
			if version == "" {
				version = "unknown"
			}
			versions[version]++
			if rec.Major == types.Major8 {
				builds[types.BuildCount{Version: rec.Version, Build: rec.Build}]++
			}
		}
	}

	totals.BuildBreakdown = sortedBuilds(builds)

	return &types.AggregateReport{
		RunID:            runID,
		GeneratedAt:      generatedAt,
		Totals:           totals,
		VersionBreakdown: sortedVersions(versions),
		BuildBreakdown:   totals.BuildBreakdown,
		Targets:          ordered,
	}
}

func emptyMajorCounts() map[types.MajorClass]int {
	m := make(map[types.MajorClass]int, len(types.MajorClasses))
	for _, c := range types.MajorClasses {
		m[c] = 0
	}
	return m
}

func emptyUpdateCounts() map[types.UpdateGroup]int {
	m := make(map[types.UpdateGroup]int, len(types.UpdateGroups))
	for _, g := range types.UpdateGroups {
		m[g] = 0
	}
	return m
}

// sortedBuilds orders a build histogram by host count descending, ties by
// (version, build) ascending. The tie-break keeps output stable across runs.
func sortedBuilds(counts map[types.BuildCount]int) []types.BuildCount {
	out := make([]types.BuildCount, 0, len(counts))
	for key, n := range counts {
		key.Hosts = n
		out = append(out, key)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Hosts != out[j].Hosts {
			return out[i].Hosts > out[j].Hosts
		}
		if out[i].Version != out[j].Version {
			return out[i].Version < out[j].Version
		}
		return out[i].Build < out[j].Build
	})
	return out
}

func sortedVersions(counts map[string]int) []types.VersionCount {
	out := make([]types.VersionCount, 0, len(counts))
	for version, n := range counts {
		out = append(out, types.VersionCount{Version: version, Hosts: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Hosts != out[j].Hosts {
			return out[i].Hosts > out[j].Hosts
		}
		return out[i].Version < out[j].Version
	})
	return out
}
