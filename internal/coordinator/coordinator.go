package coordinator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sourcegraph/conc/pool"

	"pricetracker/internal/fetcher"
	"pricetracker/internal/logger"
)

// DefaultInterval is the poll interval used when none is configured.
const DefaultInterval = 300 * time.Second

// Refresher is one asset class the coordinator keeps fresh.
type Refresher interface {
	Key() string
	Refresh(ctx context.Context) fetcher.Result
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRoundHook calls fn with the results of every completed round.
func WithRoundHook(fn func([]fetcher.Result)) Option {
	return func(c *Coordinator) {
		c.onRound = fn
	}
}

// WithMaxConcurrency caps how many refreshes run at once. Zero means one
// goroutine per refresher.
func WithMaxConcurrency(n int) Option {
	return func(c *Coordinator) {
		c.maxConcurrency = n
	}
}

// Coordinator refreshes a set of presenters concurrently and aggregates
// their results
type Coordinator struct {
	refreshers     []Refresher
	onRound        func([]fetcher.Result)
	maxConcurrency int
}

// New creates a new Coordinator with the given refreshers
func New(refreshers []Refresher, opts ...Option) *Coordinator {
	c := &Coordinator{
		refreshers: refreshers,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run refreshes every presenter concurrently and returns one result per
// presenter, sorted by key. Failed refreshes are reported in their result,
// not as an error from Run.
func (c *Coordinator) Run(ctx context.Context) ([]fetcher.Result, error) {
	if len(c.refreshers) == 0 {
		return nil, fmt.Errorf("no presenters configured")
	}

	p := pool.NewWithResults[fetcher.Result]()
	if c.maxConcurrency > 0 {
		p = p.WithMaxGoroutines(c.maxConcurrency)
	}

	for _, r := range c.refreshers {
		p.Go(func() fetcher.Result {
			return r.Refresh(ctx)
		})
	}

	results := p.Wait()
	sort.Slice(results, func(i, j int) bool {
		return results[i].Key < results[j].Key
	})

	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	logger.Debug("round complete: %d refreshed, %d failed", len(results)-failed, failed)

	if c.onRound != nil {
		c.onRound(results)
	}

	return results, nil
}

// Poll runs a round immediately and then once per interval until ctx is
// done. A failed round is logged and the next tick proceeds as usual.
func (c *Coordinator) Poll(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}

	if _, err := c.Run(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := c.Run(ctx); err != nil {
				logger.Error("poll round failed: %v", err)
			}
		}
	}
}
