// Package dispatch fans a question out to a panel of experts under a global
// concurrency cap and collects one typed result per expert. The dispatcher
// never inspects response content; synthesis is a separate concern.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/consult-sh/consult/types"
)

// Generator is the collaborator boundary to a text-generation endpoint.
// One Generate call per expert; model is the expert id.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// Dispatcher issues one call per selected expert and returns a
// deterministically ordered result list. It holds no state across
// invocations; a single Dispatcher is safe for concurrent Run calls.
type Dispatcher struct {
	gen    Generator
	logger *zap.Logger
}

// New creates a dispatcher around the given generator.
func New(gen Generator, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		gen:    gen,
		logger: logger.With(zap.String("component", "dispatcher")),
	}
}

// Run queries every expert in parallel, with at most maxConcurrent calls in
// flight at any instant. It is total: it returns exactly one ExpertResult
// per expert, never an error for a per-expert failure. An empty expert list
// yields an empty result list.
//
// Output ordering is a post-collection sort by descending weight, ties
// broken by ascending expert id; completion order is unspecified.
func (d *Dispatcher) Run(ctx context.Context, question string, experts []types.ExpertConfig, maxConcurrent int) []types.ExpertResult {
	if len(experts) == 0 {
		return []types.ExpertResult{}
	}
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	sem := semaphore.NewWeighted(int64(maxConcurrent))
	resultCh := make(chan types.ExpertResult, len(experts))

	for _, expert := range experts {
		go func(e types.ExpertConfig) {
			// Admission gate: block until a slot frees. Waiters are not
			// FIFO-ordered; the semaphore makes no fairness guarantee.
			if err := sem.Acquire(ctx, 1); err != nil {
				resultCh <- failedResult(e, 0, err)
				return
			}
			defer sem.Release(1)

			resultCh <- d.query(ctx, question, e)
		}(expert)
	}

	results := make([]types.ExpertResult, 0, len(experts))
	for range experts {
		results = append(results, <-resultCh)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Weight != results[j].Weight {
			return results[i].Weight > results[j].Weight
		}
		return results[i].ExpertID < results[j].ExpertID
	})

	return results
}

// query runs one expert call under the expert's own timeout. A timeout
// cancels only this call; siblings keep running.
func (d *Dispatcher) query(ctx context.Context, question string, e types.ExpertConfig) types.ExpertResult {
	callCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	start := time.Now()
	response, err := d.gen.Generate(callCtx, e.ID, question)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		// Only this call's deadline counts as a timeout; a cancelled
		// parent context is reported as a plain error.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			d.logger.Warn("expert timed out",
				zap.String("expert", e.ID),
				zap.Duration("timeout", e.Timeout),
			)
			return types.ExpertResult{
				ExpertID:   e.ID,
				Domain:     e.Domain,
				Weight:     e.Weight,
				DurationMS: elapsed,
				Status:     types.StatusTimeout,
				Error:      fmt.Sprintf("Timeout after %dms", e.Timeout.Milliseconds()),
			}
		}

		d.logger.Warn("expert call failed",
			zap.String("expert", e.ID),
			zap.Error(err),
		)
		return failedResult(e, elapsed, err)
	}

	d.logger.Debug("expert responded",
		zap.String("expert", e.ID),
		zap.Int64("duration_ms", elapsed),
	)
	return types.ExpertResult{
		ExpertID:   e.ID,
		Domain:     e.Domain,
		Weight:     e.Weight,
		DurationMS: elapsed,
		Status:     types.StatusSuccess,
		Response:   response,
	}
}

func failedResult(e types.ExpertConfig, elapsed int64, err error) types.ExpertResult {
	return types.ExpertResult{
		ExpertID:   e.ID,
		Domain:     e.Domain,
		Weight:     e.Weight,
		DurationMS: elapsed,
		Status:     types.StatusError,
		Error:      err.Error(),
	}
}
