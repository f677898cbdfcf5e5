package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// crawl pipeline.
type Metrics struct {
	ArticlesFetched   prometheus.Counter
	ArticlesInserted  prometheus.Counter
	ArticlesDuplicate prometheus.Counter
	ArticlesRejected  prometheus.Counter

	SourceFailures *prometheus.CounterVec // label: source

	EventsCreated prometheus.Counter
	EventsUpdated prometheus.Counter

	NotificationsSent    prometheus.Counter
	NotificationsDropped prometheus.Counter

	TickDuration   prometheus.Histogram
	TicksSkipped   prometheus.Counter
	CrawlerRunning prometheus.Gauge
}

// NewMetrics creates and registers all crawler metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ArticlesFetched,
		m.ArticlesInserted,
		m.ArticlesDuplicate,
		m.ArticlesRejected,
		m.SourceFailures,
		m.EventsCreated,
		m.EventsUpdated,
		m.NotificationsSent,
		m.NotificationsDropped,
		m.TickDuration,
		m.TicksSkipped,
		m.CrawlerRunning,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ArticlesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "disaster_crawl",
			Name:      "articles_fetched_total",
			Help:      "Raw entries returned by source fetches.",
		}),
		ArticlesInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "disaster_crawl",
			Name:      "articles_inserted_total",
			Help:      "New article rows persisted.",
		}),
		ArticlesDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "disaster_crawl",
			Name:      "articles_duplicate_total",
			Help:      "Entries skipped because the canonical URL already exists.",
		}),
		ArticlesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "disaster_crawl",
			Name:      "articles_rejected_total",
			Help:      "Entries rejected by the classifier.",
		}),
		SourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "disaster_crawl",
			Name:      "source_failures_total",
			Help:      "Sources whose entire fetch ladder exhausted in a tick.",
		}, []string{"source"}),
		EventsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "disaster_crawl",
			Name:      "events_created_total",
			Help:      "New event clusters created.",
		}),
		EventsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "disaster_crawl",
			Name:      "events_updated_total",
			Help:      "Merges of articles into existing events.",
		}),
		NotificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "disaster_crawl",
			Name:      "notifications_sent_total",
			Help:      "Event notifications handed to the push layer.",
		}),
		NotificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "disaster_crawl",
			Name:      "notifications_dropped_total",
			Help:      "Event notifications dropped on queue overflow or write failure.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "disaster_crawl",
			Name:      "tick_duration_seconds",
			Help:      "Duration of a complete crawl tick.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		TicksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "disaster_crawl",
			Name:      "ticks_skipped_total",
			Help:      "Scheduled ticks skipped because the previous one still held the lease.",
		}),
		CrawlerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "disaster_crawl",
			Name:      "crawler_running",
			Help:      "1 when the scheduler loop is active, 0 when shut down.",
		}),
	}
}
