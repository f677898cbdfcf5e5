// Package scheduler drives the crawl cycle: a fixed-interval tick fans the
// source catalog out to a bounded worker pool and records a run summary.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vietwatch/disaster-crawler/internal/domain"
	"github.com/vietwatch/disaster-crawler/internal/observability"
	"github.com/vietwatch/disaster-crawler/internal/pipeline"
	"github.com/vietwatch/disaster-crawler/internal/store"
)

// Sweeper removes ghost events after each cycle.
type Sweeper interface {
	SweepGhostEvents(ctx context.Context) (int64, error)
}

// TickSummary is the one-line record written per cycle.
type TickSummary struct {
	StartedAt time.Time               `json:"started_at"`
	Duration  float64                 `json:"duration_seconds"`
	Sources   []pipeline.SourceResult `json:"sources"`
	Fetched   int                     `json:"fetched"`
	Inserted  int                     `json:"inserted"`
	Rejected  int                     `json:"rejected"`
	Errors    int                     `json:"errors"`
}

// Scheduler owns the tick loop. Ticks never overlap: a single-holder lease
// guards re-entry, and an overdue tick is skipped rather than queued.
type Scheduler struct {
	sources     []domain.Source
	worker      *pipeline.Worker
	sweeper     Sweeper
	logs        *store.RunLogs
	interval    time.Duration
	concurrency int
	clock       clockwork.Clock
	logger      *slog.Logger
	metrics     *observability.Metrics

	lease  atomic.Bool
	ticked atomic.Bool
}

// New builds a Scheduler. sweeper and logs may be nil (tests).
func New(
	sources []domain.Source,
	worker *pipeline.Worker,
	sweeper Sweeper,
	logs *store.RunLogs,
	interval time.Duration,
	concurrency int,
	clock clockwork.Clock,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Scheduler {
	if concurrency <= 0 {
		concurrency = 8
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		sources:     sources,
		worker:      worker,
		sweeper:     sweeper,
		logs:        logs,
		interval:    interval,
		concurrency: concurrency,
		clock:       clock,
		logger:      logger,
		metrics:     metrics,
	}
}

// CheckReadiness reports ready once the first tick has completed.
func (s *Scheduler) CheckReadiness(_ context.Context) error {
	if !s.ticked.Load() {
		return errors.New("no crawl tick completed yet")
	}
	return nil
}

// Run executes the tick loop until the context is cancelled. An initial tick
// fires immediately; its failure is logged, not fatal.
func (s *Scheduler) Run(ctx context.Context) error {
	s.metrics.CrawlerRunning.Set(1)
	defer s.metrics.CrawlerRunning.Set(0)

	s.logger.Info("scheduler started",
		"interval", s.interval, "sources", len(s.sources), "concurrency", s.concurrency)

	s.RunOnce(ctx)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes one tick if the lease is free; otherwise the tick is
// skipped and counted.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if !s.lease.CompareAndSwap(false, true) {
		s.metrics.TicksSkipped.Inc()
		s.logger.Warn("tick skipped, previous tick still running")
		return
	}
	defer s.lease.Store(false)

	start := s.clock.Now()

	// Soft deadline: workers past 90% of the interval are cancelled; their
	// partial results are discarded and the next tick retries the source.
	tickCtx := ctx
	if s.interval > 0 {
		var cancel context.CancelFunc
		tickCtx, cancel = context.WithTimeout(ctx, s.interval*9/10)
		defer cancel()
	}

	results := s.fanOut(tickCtx)
	summary := summarize(start, s.clock.Since(start), results)

	s.logger.Info("tick complete",
		"duration_seconds", summary.Duration,
		"fetched", summary.Fetched,
		"inserted", summary.Inserted,
		"rejected", summary.Rejected,
		"errors", summary.Errors,
	)
	s.metrics.TickDuration.Observe(summary.Duration)
	for _, r := range results {
		if r.Fetched == 0 {
			s.metrics.SourceFailures.WithLabelValues(r.Source).Inc()
		}
	}

	s.housekeep(ctx, summary)
	s.ticked.Store(true)
}

// fanOut dispatches each source to the bounded worker pool and collects the
// per-source tallies. Sources are independent; a failure in one never touches
// another.
func (s *Scheduler) fanOut(ctx context.Context) []pipeline.SourceResult {
	sem := make(chan struct{}, s.concurrency)
	results := make([]pipeline.SourceResult, len(s.sources))

	var wg sync.WaitGroup
	for i, src := range s.sources {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(i int, src domain.Source) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = s.worker.ProcessSource(ctx, src)
		}(i, src)
	}
	wg.Wait()
	return results
}

// housekeep writes the crawl-log record, trims the rotating logs, and sweeps
// ghost events. All best-effort, all off the critical fetch path.
func (s *Scheduler) housekeep(ctx context.Context, summary TickSummary) {
	if s.logs != nil {
		if err := s.logs.Crawl.Append(summary); err != nil {
			s.logger.Warn("crawl log append failed", "error", err)
		}
		if err := s.logs.TrimAll(); err != nil {
			s.logger.Warn("log trim failed", "error", err)
		}
	}
	if s.sweeper != nil {
		if n, err := s.sweeper.SweepGhostEvents(ctx); err != nil {
			s.logger.Warn("ghost event sweep failed", "error", err)
		} else if n > 0 {
			s.logger.Info("swept ghost events", "count", n)
		}
	}
}

func summarize(start time.Time, took time.Duration, results []pipeline.SourceResult) TickSummary {
	summary := TickSummary{
		StartedAt: start.UTC(),
		Duration:  took.Seconds(),
		Sources:   results,
	}
	for _, r := range results {
		summary.Fetched += r.Fetched
		summary.Inserted += r.Inserted
		summary.Rejected += r.Rejected
		summary.Errors += r.Errors
	}
	return summary
}
