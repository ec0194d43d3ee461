// Package query runs a single inventory query against a target under a hard
// wall-clock deadline.
//
// The query capability itself is injected; this package only enforces the
// deadline and the late-result contract. Cancellation of the underlying call
// is best-effort (the context is cancelled, but an opaque capability may not
// honor it promptly); what is guaranteed is that a result arriving after the
// deadline is discarded and never reaches the aggregation path.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pilot-net/esxi-fleet/pkg/types"
)

// ErrTimeout is returned when a query does not complete within its deadline.
var ErrTimeout = errors.New("query timed out")

// Func is an injected query capability: fetch the raw inventory payload for
// one management endpoint. The payload shape is backend-defined; the
// normalizer accepts any supported shape.
type Func func(ctx context.Context, address string) (json.RawMessage, error)

// Execute runs fn against the target with the given timeout. The returned
// duration is wall-clock elapsed regardless of outcome.
func Execute(ctx context.Context, target types.Target, fn Func, timeout time.Duration) (json.RawMessage, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		raw json.RawMessage
		err error
	}

	// Buffered so a straggling query can complete and be garbage collected
	// after we have already given up on it.
	ch := make(chan outcome, 1)
	start := time.Now()

	go func() {
		raw, err := fn(ctx, target.Address)
		ch <- outcome{raw: raw, err: err}
	}()

	select {
	case out := <-ch:
		elapsed := time.Since(start)
		if out.err != nil {
			return nil, elapsed, fmt.Errorf("querying %s: %w", target.Address, out.err)
		}
		return out.raw, elapsed, nil
	case <-ctx.Done():
		elapsed := time.Since(start)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, elapsed, fmt.Errorf("querying %s after %s: %w", target.Address, timeout, ErrTimeout)
		}
		return nil, elapsed, fmt.Errorf("querying %s: %w", target.Address, ctx.Err())
	}
}
