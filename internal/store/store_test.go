package store

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/vietwatch/disaster-crawler/internal/domain"
)

var hanoi = mustLoadLocation("Asia/Ho_Chi_Minh")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), hanoi, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func stormArticle(url, source string, published time.Time) *domain.Article {
	return &domain.Article{
		URL:          url,
		Source:       source,
		Domain:       "example.vn",
		Title:        "Bão số 4 đổ bộ Hà Tĩnh, 3 người chết, 5 người mất tích",
		PublishedAt:  published,
		FetchedAt:    published.Add(time.Minute),
		DisasterType: "storm",
		RiskLevel:    3,
		Province:     "Hà Tĩnh",
		Deaths:       3,
		Missing:      5,
		Status:       domain.StatusActive,
		Stage:        domain.StageIncident,
		RedAlert:     true,
	}
}

var published = time.Date(2025, 9, 10, 1, 30, 0, 0, time.UTC) // 08:30 in UTC+7

func TestSaveArticle_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := stormArticle("https://example.vn/bao-so-4", "VnExpress", published)
	inserted, err := s.SaveArticle(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotZero(t, first.ID)

	// Re-feeding the same URL in the next tick: no new row.
	again := stormArticle("https://example.vn/bao-so-4", "VnExpress", published)
	again.Deaths = 99 // must not overwrite the stored row
	inserted, err = s.SaveArticle(ctx, again)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 3, again.Deaths, "existing row adopted, not overwritten")

	var count int64
	require.NoError(t, s.db.Model(&domain.Article{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestSaveArticle_DuplicateBypassesCache(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := stormArticle("https://example.vn/a", "VnExpress", published)
	_, err := s.SaveArticle(ctx, a)
	require.NoError(t, err)

	// Simulate a restart: cold cache, row still in the database.
	s.seen = newURLCache(seenURLCacheSize)

	dup := stormArticle("https://example.vn/a", "VnExpress", published)
	inserted, err := s.SaveArticle(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestUpsertEventFor_CreatesEvent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := stormArticle("https://example.vn/bao-so-4", "VnExpress", published)
	_, err := s.SaveArticle(ctx, a)
	require.NoError(t, err)

	ev, created, err := s.UpsertEventFor(ctx, a)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "storm|Hà Tĩnh|2025-09-10", ev.ClusterKey)
	assert.Equal(t, 0.25, ev.Confidence)
	assert.Equal(t, 1, ev.SourcesCount)
	assert.Equal(t, a.PublishedAt.Unix(), ev.StartedAt.Unix())
	assert.Equal(t, a.PublishedAt.Unix(), ev.LastUpdatedAt.Unix())
	require.NotNil(t, a.EventID)
	assert.Equal(t, ev.ID, *a.EventID)
}

func TestUpsertEventFor_SecondSourceMerges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := stormArticle("https://example.vn/bao-so-4", "VnExpress", published)
	_, err := s.SaveArticle(ctx, first)
	require.NoError(t, err)
	_, _, err = s.UpsertEventFor(ctx, first)
	require.NoError(t, err)

	later := published.Add(2 * time.Hour)
	second := stormArticle("https://tuoitre.vn/bao-so-4-8-nguoi-chet", "Tuổi Trẻ", later)
	second.Deaths = 8
	second.Missing = 2
	_, err = s.SaveArticle(ctx, second)
	require.NoError(t, err)

	ev, created, err := s.UpsertEventFor(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 8, ev.Deaths, "deaths = max(3, 8)")
	assert.Equal(t, 5, ev.Missing, "missing = max(5, 2)")
	assert.Equal(t, 2, ev.SourcesCount)
	assert.Equal(t, 0.50, ev.Confidence)
	assert.Equal(t, later.Unix(), ev.LastUpdatedAt.Unix())
	assert.Equal(t, published.Unix(), ev.StartedAt.Unix())
}

// Articles sharing (type, province, published-day) land in one event.
func TestUpsertEventFor_SameBucketSameEvent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	urls := []string{
		"https://a.vn/1", "https://b.vn/2", "https://c.vn/3",
	}
	sourceNames := []string{"A", "B", "C"}

	var eventIDs []uint
	for i, u := range urls {
		a := stormArticle(u, sourceNames[i], published.Add(time.Duration(i)*time.Hour))
		_, err := s.SaveArticle(ctx, a)
		require.NoError(t, err)
		ev, _, err := s.UpsertEventFor(ctx, a)
		require.NoError(t, err)
		eventIDs = append(eventIDs, ev.ID)
	}

	assert.Equal(t, eventIDs[0], eventIDs[1])
	assert.Equal(t, eventIDs[1], eventIDs[2])

	ev, err := s.EventByKey(ctx, "storm|Hà Tĩnh|2025-09-10")
	require.NoError(t, err)
	assert.Equal(t, 3, ev.SourcesCount)
	assert.Equal(t, 0.75, ev.Confidence)
}

func TestUpsertEventFor_SameSourceDoesNotRaiseConfidence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, u := range []string{"https://a.vn/1", "https://a.vn/2"} {
		a := stormArticle(u, "VnExpress", published)
		_, err := s.SaveArticle(ctx, a)
		require.NoError(t, err)
		_, _, err = s.UpsertEventFor(ctx, a)
		require.NoError(t, err)
	}

	ev, err := s.EventByKey(ctx, "storm|Hà Tĩnh|2025-09-10")
	require.NoError(t, err)
	assert.Equal(t, 1, ev.SourcesCount, "same source twice is one distinct source")
	assert.Equal(t, 0.25, ev.Confidence)
}

func TestRejectArticle_RecountsAndDeletesGhost(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := stormArticle("https://a.vn/1", "A", published)
	_, err := s.SaveArticle(ctx, a)
	require.NoError(t, err)
	b := stormArticle("https://b.vn/2", "B", published)
	b.Deaths = 8
	_, err = s.SaveArticle(ctx, b)
	require.NoError(t, err)

	_, _, err = s.UpsertEventFor(ctx, a)
	require.NoError(t, err)
	ev, _, err := s.UpsertEventFor(ctx, b)
	require.NoError(t, err)
	require.Equal(t, 2, ev.SourcesCount)
	require.Equal(t, 8, ev.Deaths)

	// Rejecting the high-casualty article recomputes the aggregates down.
	require.NoError(t, s.RejectArticle(ctx, b.ID))
	ev, err = s.EventByKey(ctx, ev.ClusterKey)
	require.NoError(t, err)
	assert.Equal(t, 1, ev.SourcesCount)
	assert.Equal(t, 0.25, ev.Confidence)
	assert.Equal(t, 3, ev.Deaths)

	// Rejecting the last contributor deletes the ghost event.
	require.NoError(t, s.RejectArticle(ctx, a.ID))
	_, err = s.EventByKey(ctx, ev.ClusterKey)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestSweepGhostEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := stormArticle("https://a.vn/1", "A", published)
	_, err := s.SaveArticle(ctx, a)
	require.NoError(t, err)
	ev, _, err := s.UpsertEventFor(ctx, a)
	require.NoError(t, err)

	// Mark rejected directly (bypassing RejectArticle's inline recount) so
	// the sweep has a ghost to collect.
	require.NoError(t, s.db.Model(&domain.Article{}).Where("id = ?", a.ID).
		Update("status", domain.StatusRejected).Error)

	n, err := s.SweepGhostEvents(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = s.EventByKey(ctx, ev.ClusterKey)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	// Idempotent: nothing left to sweep.
	n, err = s.SweepGhostEvents(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRecordFetchAttempt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.RecordFetchAttempt(ctx, "VnExpress", domain.FetchAttempt{
		FeedURL: "https://vnexpress.net/rss/thoi-su.rss",
		Latency: 120 * time.Millisecond,
		Err:     errors.New("status 503"),
	})
	st, err := s.CrawlerStatus(ctx, "VnExpress")
	require.NoError(t, err)
	assert.Equal(t, 1, st.ConsecutiveFailures)
	assert.Equal(t, "status 503", st.LastError)
	assert.Nil(t, st.LastSuccessAt)

	s.RecordFetchAttempt(ctx, "VnExpress", domain.FetchAttempt{
		FeedURL: "https://news.google.com/rss/search?q=site:vnexpress.net",
		Latency: 340 * time.Millisecond,
	})
	st, err = s.CrawlerStatus(ctx, "VnExpress")
	require.NoError(t, err)
	assert.Zero(t, st.ConsecutiveFailures)
	assert.Empty(t, st.LastError)
	require.NotNil(t, st.LastSuccessAt)
	assert.Contains(t, st.LastFeedURL, "news.google.com")
	assert.EqualValues(t, 340, st.LastLatencyMS)

	s.RecordArticlesAdded(ctx, "VnExpress", 7)
	st, err = s.CrawlerStatus(ctx, "VnExpress")
	require.NoError(t, err)
	assert.Equal(t, 7, st.LastArticlesAdded)
}

func TestRunLog_AppendAndTrim(t *testing.T) {
	log := NewRunLog(filepath.Join(t.TempDir(), "crawl_log.jsonl"), 5)

	for i := 0; i < 8; i++ {
		require.NoError(t, log.Append(map[string]int{"tick": i}))
	}
	n, err := log.Len()
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	require.NoError(t, log.Trim())
	n, err = log.Len()
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	// Trim under the cap is a no-op.
	require.NoError(t, log.Trim())
	n, err = log.Len()
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestOpenRunLogs(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logs, err := OpenRunLogs(dir)
	require.NoError(t, err)

	require.NoError(t, logs.Push.Append(map[string]string{"type": "new_event"}))
	require.NoError(t, logs.TrimAll())

	n, err := logs.Push.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
