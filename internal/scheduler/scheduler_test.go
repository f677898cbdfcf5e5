package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietwatch/disaster-crawler/internal/classify"
	"github.com/vietwatch/disaster-crawler/internal/domain"
	"github.com/vietwatch/disaster-crawler/internal/observability"
	"github.com/vietwatch/disaster-crawler/internal/pipeline"
	"github.com/vietwatch/disaster-crawler/internal/store"
)

type stubFetcher struct {
	mu      sync.Mutex
	started chan struct{} // closed on first Fetch, when set
	release chan struct{} // Fetch blocks on this, when set
	calls   int
	entries []domain.RawEntry
}

func (f *stubFetcher) Fetch(_ context.Context, _ domain.Source) []domain.RawEntry {
	f.mu.Lock()
	f.calls++
	first := f.calls == 1
	f.mu.Unlock()

	if first && f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	return f.entries
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type stubStore struct {
	mu    sync.Mutex
	saved int
}

func (s *stubStore) SaveArticle(_ context.Context, _ *domain.Article) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved++
	return true, nil
}

func (s *stubStore) UpsertEventFor(_ context.Context, a *domain.Article) (domain.Event, bool, error) {
	return domain.Event{DisasterType: a.DisasterType}, true, nil
}

func (s *stubStore) RecordArticlesAdded(_ context.Context, _ string, _ int) {}

type stubSweeper struct {
	mu    sync.Mutex
	calls int
}

func (s *stubSweeper) SweepGhostEvents(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return 0, nil
}

func testSources(n int) []domain.Source {
	out := make([]domain.Source, n)
	for i := range out {
		out[i] = domain.Source{Name: "source", Domain: "vnexpress.net"}
	}
	return out
}

func newTestScheduler(t *testing.T, fetcher *stubFetcher, sources []domain.Source) (*Scheduler, *stubStore, *stubSweeper, *store.RunLogs) {
	t.Helper()

	rules, err := classify.LoadRules("")
	require.NoError(t, err)
	classifier, err := classify.New(rules)
	require.NoError(t, err)

	st := &stubStore{}
	worker := pipeline.NewWorker(
		fetcher, classifier, st, nil, nil, false,
		slog.Default(), observability.NewMetricsForTesting(),
	)

	logs, err := store.OpenRunLogs(t.TempDir())
	require.NoError(t, err)

	sweeper := &stubSweeper{}
	sched := New(
		sources, worker, sweeper, logs,
		time.Minute, 2, clockwork.NewFakeClock(),
		slog.Default(), observability.NewMetricsForTesting(),
	)
	return sched, st, sweeper, logs
}

func TestRunOnce_ProcessesAllSources(t *testing.T) {
	fetcher := &stubFetcher{entries: []domain.RawEntry{{
		URL:       "https://vnexpress.net/bao-so-4.html",
		Title:     "Bão số 4 đổ bộ Hà Tĩnh",
		Published: time.Date(2025, 9, 10, 1, 30, 0, 0, time.UTC),
	}}}
	sched, st, sweeper, logs := newTestScheduler(t, fetcher, testSources(3))

	sched.RunOnce(context.Background())

	assert.Equal(t, 3, fetcher.callCount())
	assert.Equal(t, 3, st.saved)
	assert.Equal(t, 1, sweeper.calls)

	n, err := logs.Crawl.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n, "one summary line per tick")
}

func TestRunOnce_ReadinessFlipsAfterFirstTick(t *testing.T) {
	sched, _, _, _ := newTestScheduler(t, &stubFetcher{}, testSources(1))

	require.Error(t, sched.CheckReadiness(context.Background()))

	sched.RunOnce(context.Background())

	assert.NoError(t, sched.CheckReadiness(context.Background()))
}

func TestRunOnce_OverlappingTickSkipped(t *testing.T) {
	fetcher := &stubFetcher{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	sched, _, sweeper, logs := newTestScheduler(t, fetcher, testSources(1))

	done := make(chan struct{})
	go func() {
		defer close(done)
		sched.RunOnce(context.Background())
	}()

	<-fetcher.started

	// First tick still holds the lease; this one must bail out immediately.
	sched.RunOnce(context.Background())
	assert.Equal(t, 1, fetcher.callCount())

	close(fetcher.release)
	<-done

	n, err := logs.Crawl.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n, "skipped tick writes no summary")
	assert.Equal(t, 1, sweeper.calls)
}

// Run must not return while a tick's workers are still finishing; shutdown
// sequencing relies on that to close the notifier and pool only after the
// last worker is done.
func TestRun_DrainsInFlightTickBeforeReturning(t *testing.T) {
	fetcher := &stubFetcher{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	sched, _, _, _ := newTestScheduler(t, fetcher, testSources(1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sched.Run(ctx)
	}()

	<-fetcher.started
	cancel()

	select {
	case <-done:
		t.Fatal("Run returned while a worker was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(fetcher.release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the tick drained")
	}
}

func TestSummarize(t *testing.T) {
	start := time.Date(2025, 9, 10, 8, 0, 0, 0, time.UTC)
	results := []pipeline.SourceResult{
		{Source: "a", Fetched: 10, Inserted: 3, Rejected: 6, Errors: 1},
		{Source: "b", Fetched: 5, Inserted: 2, Rejected: 3},
	}

	got := summarize(start, 42*time.Second, results)

	assert.Equal(t, start, got.StartedAt)
	assert.Equal(t, 42.0, got.Duration)
	assert.Equal(t, 15, got.Fetched)
	assert.Equal(t, 5, got.Inserted)
	assert.Equal(t, 9, got.Rejected)
	assert.Equal(t, 1, got.Errors)
	assert.Len(t, got.Sources, 2)
}
