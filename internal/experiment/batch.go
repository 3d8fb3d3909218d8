package experiment

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/san-kum/kinsens/internal/config"
)

// Batch runs independent analyses concurrently. Each run owns its reactor,
// so nothing is shared between workers.
type Batch struct {
	registry *Registry
	workers  int
}

func NewBatch(registry *Registry, workers int) *Batch {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Batch{registry: registry, workers: workers}
}

// Run returns one result per config, in input order. The first failure
// cancels the remaining runs.
func (b *Batch) Run(ctx context.Context, cfgs []*config.Config) ([]*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]*Result, len(cfgs))
	errs := make([]error, len(cfgs))
	sem := make(chan struct{}, b.workers)

	var wg sync.WaitGroup
	for i, cfg := range cfgs {
		wg.Add(1)
		go func(idx int, cfg *config.Config) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			exp := New(cfg.Clone(), b.registry)
			if err := exp.Setup(); err != nil {
				errs[idx] = err
				cancel()
				return
			}
			results[idx], errs[idx] = exp.Run(ctx)
			if errs[idx] != nil {
				cancel()
			}
		}(i, cfg)
	}

	wg.Wait()

	// runs canceled because a sibling failed are reported last
	first := -1
	for i, err := range errs {
		if err == nil {
			continue
		}
		if !errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("run %d: %w", i, err)
		}
		if first < 0 {
			first = i
		}
	}
	if first >= 0 {
		return nil, fmt.Errorf("run %d: %w", first, errs[first])
	}
	return results, nil
}
