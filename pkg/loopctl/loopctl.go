// Package loopctl implements the scenario runner's retry/backoff controller:
// a step with a loop config is re-invoked up to Count times, sleeping and
// backing off between attempts, until its Until predicate (or, absent one,
// plain success) is satisfied.
package loopctl

import (
	"context"
	"time"

	"github.com/apirunner/scenario/pkg/expreval"
	"github.com/apirunner/scenario/pkg/model"
)

// Attempt runs one iteration of a step and reports whether it succeeded,
// plus a snapshot of the context to evaluate loop.until against.
type Attempt func(ctx context.Context, iteration int) (result any, success bool, snapshot map[string]any, err error)

// Run executes attempt under loop's retry policy. If loop is nil, attempt
// runs exactly once and its result is returned directly.
//
// Preserves a documented quirk of the source this was translated from: when
// every iteration is exhausted without an early exit, attempt is invoked
// one additional time and that final call's result is what's returned, even
// though the loop already "knows" the outcome from the last counted
// iteration. This double-evaluates the last iteration's side effects.
func Run(ctx context.Context, loop *model.LoopConfig, attempt Attempt) (any, error) {
	if loop == nil {
		result, _, _, err := attempt(ctx, 1)
		return result, err
	}

	count := loop.Count
	if count <= 0 {
		count = model.DefaultLoopCount
	}
	interval := loop.Interval
	if interval <= 0 {
		interval = model.DefaultLoopInterval
	}

	var (
		result any
		err    error
	)

	for i := 1; i <= count; i++ {
		var success bool
		var snapshot map[string]any
		result, success, snapshot, err = attempt(ctx, i)
		if err != nil {
			return result, err
		}

		exit, evalErr := shouldExit(loop, success, snapshot)
		if evalErr != nil {
			return result, evalErr
		}
		if exit {
			return result, nil
		}

		if i < count {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(time.Duration(interval * float64(time.Second))):
			}
			if loop.Multiplier > 0 {
				interval *= loop.Multiplier
				if loop.MaxInterval > 0 && interval > loop.MaxInterval {
					interval = loop.MaxInterval
				}
			}
		}
	}

	result, _, _, err = attempt(ctx, count+1)
	return result, err
}

func shouldExit(loop *model.LoopConfig, success bool, snapshot map[string]any) (bool, error) {
	if loop.Until == "" {
		return success, nil
	}
	return expreval.Bool(loop.Until, snapshot)
}
