// Package bridge drives the fetch, transform, filter and push cycle.
package bridge

import (
	"context"
	"log"
	"sync"
	"time"

	"carelink-bridge/internal/domain"
	"carelink-bridge/internal/filter"
	"carelink-bridge/internal/observability"
	"carelink-bridge/internal/transform"
)

// DefaultInterval is the delay between cycles.
const DefaultInterval = 60 * time.Second

// Runner runs bridge cycles strictly one after another.
type Runner struct {
	source     Source
	targets    []Target
	limit      int
	interval   time.Duration
	filterOpts filter.Options
	logger     *log.Logger
	verbose    bool
	metrics    *observability.Metrics

	mark *filter.Mark

	mu     sync.Mutex
	status Status
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Source        Source
	Targets       []Target
	Limit         int           // readings per batch, <= 0 means transform.DefaultLimit
	Interval      time.Duration // Default: 60s
	FilterOptions filter.Options
	Logger        *log.Logger
	Verbose       bool // log every cycle, not only failures
	Metrics       *observability.Metrics
}

// NewRunner creates a new bridge runner.
func NewRunner(opts RunnerOptions) *Runner {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Runner{
		source:     opts.Source,
		targets:    opts.Targets,
		limit:      opts.Limit,
		interval:   interval,
		filterOpts: opts.FilterOptions,
		logger:     logger,
		verbose:    opts.Verbose,
		metrics:    opts.Metrics,
		mark:       filter.NewMark(),
		status:     Status{Targets: targetNames(opts.Targets)},
	}
}

// Run executes cycles until ctx is cancelled or intake fails.
// It returns ctx.Err() on cancellation and a *domain.IntakeError on intake failure.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Printf("Runner started, interval: %v, targets: %d", r.interval, len(r.targets))
	r.mu.Lock()
	r.status.Started = time.Now()
	r.mu.Unlock()

	for {
		if err := r.RunCycle(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			r.logger.Println("Runner stopping...")
			return ctx.Err()
		case <-time.After(r.interval):
		}
	}
}

// RunCycle performs one fetch, transform, filter and push without the trailing delay.
// Push failures are logged and counted; they do not fail the cycle.
func (r *Runner) RunCycle(ctx context.Context) error {
	failures, err := r.cycle(ctx)
	r.recordStatus(failures, err)
	return err
}

func (r *Runner) cycle(ctx context.Context) ([]string, error) {
	start := time.Now()
	snapshot, err := r.source.Fetch(ctx)
	r.metrics.RecordFetch(time.Since(start), err)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &domain.IntakeError{Op: "fetch", Err: err}
	}

	batch, err := transform.Transform(snapshot, r.limit)
	if err != nil {
		r.metrics.RecordTransform(0, err)
		return nil, &domain.IntakeError{Op: "transform", Err: err}
	}
	r.metrics.RecordTransform(batch.ReadingCount(), nil)

	entries := batch.Entries()
	selected := filter.Filter(r.mark, entries, r.filterOpts)
	r.metrics.RecordFilter(len(entries), len(selected), r.mark.LastSgvDate())
	r.logLatest(batch)

	if len(selected) == 0 {
		r.verbosef("No new entries")
		r.metrics.RecordCycle()
		return nil, nil
	}

	var failures []string
	for _, target := range r.targets {
		if err := r.push(ctx, target, selected); err != nil {
			r.logger.Printf("Error: %v", err)
			failures = append(failures, err.Error())
			continue
		}
		r.verbosef("Uploaded %d of %d entries to %s", len(selected), len(entries), target.Name())
	}

	r.metrics.RecordCycle()
	return failures, nil
}

// LastSgvDate returns the high-water-mark of reading timestamps sent so far.
func (r *Runner) LastSgvDate() int64 {
	return r.mark.LastSgvDate()
}

func (r *Runner) push(ctx context.Context, target Target, entries []domain.Entry) error {
	start := time.Now()
	err := target.Push(ctx, entries)
	r.metrics.RecordPush(target.Name(), time.Since(start), err)
	if err != nil {
		return &domain.DeliveryError{Target: target.Name(), Err: err}
	}
	return nil
}

func (r *Runner) logLatest(batch *domain.Batch) {
	if !r.verbose {
		return
	}
	if batch.Latest != nil {
		r.logger.Printf("Latest reading %d mg/dL %s at %s", batch.Latest.Value, batch.Latest.Direction, domain.DateString(batch.Latest.Timestamp))
		return
	}
	if n := len(batch.Readings); n > 0 {
		last := batch.Readings[n-1]
		r.logger.Printf("Latest reading %d mg/dL at %s (no trend)", last.Value, domain.DateString(last.Timestamp))
	}
}

func (r *Runner) verbosef(format string, args ...any) {
	if r.verbose {
		r.logger.Printf(format, args...)
	}
}
