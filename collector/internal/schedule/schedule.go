// Package schedule runs per-target collection pipelines under a global
// concurrency cap.
//
// The scheduler's one load-bearing guarantee is exactly one TargetResult per
// input Target: no omissions, no duplicates, no matter which pipelines fail
// or how slots interleave. A pipeline never returns an error; failures are
// carried inside its TargetResult, so one slow or broken target cannot abort
// its siblings. Output is sorted by target label so results are deterministic
// even though completion order is not.
package schedule

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/pilot-net/esxi-fleet/pkg/types"
)

// Pipeline collects one target end to end (query, normalize, rollup) and
// reports the outcome, success or failure, as a TargetResult.
type Pipeline func(ctx context.Context, target types.Target) types.TargetResult

// Run executes the pipeline for every target with at most maxConcurrency in
// flight. A pipeline occupies its slot for its full duration; queued targets
// wait for a free slot before starting.
func Run(ctx context.Context, targetList []types.Target, pipeline Pipeline, maxConcurrency int) []types.TargetResult {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	results := make([]types.TargetResult, len(targetList))

	g := &errgroup.Group{}
	g.SetLimit(maxConcurrency)
	for i, target := range targetList {
		g.Go(func() error {
			// Each slot writes only its own index; no shared state.
			results[i] = pipeline(ctx, target)
			return nil
		})
	}
	g.Wait()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Target.Label < results[j].Target.Label
	})
	return results
}
