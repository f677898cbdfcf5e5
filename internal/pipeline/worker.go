package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/vietwatch/disaster-crawler/internal/classify"
	"github.com/vietwatch/disaster-crawler/internal/domain"
	"github.com/vietwatch/disaster-crawler/internal/observability"
	"github.com/vietwatch/disaster-crawler/internal/store"
)

// Fetcher retrieves raw entries for one source.
type Fetcher interface {
	Fetch(ctx context.Context, src domain.Source) []domain.RawEntry
}

// ArticleStore is the persistence surface the worker needs.
type ArticleStore interface {
	SaveArticle(ctx context.Context, a *domain.Article) (bool, error)
	UpsertEventFor(ctx context.Context, a *domain.Article) (domain.Event, bool, error)
	RecordArticlesAdded(ctx context.Context, source string, added int)
}

// Notifier accepts event notifications; it must never block.
type Notifier interface {
	Notify(n domain.Notification)
}

// SourceResult is the per-source tally collected by the scheduler.
type SourceResult struct {
	Source     string `json:"source"`
	Fetched    int    `json:"fetched"`
	Inserted   int    `json:"inserted"`
	Duplicates int    `json:"duplicates"`
	Rejected   int    `json:"rejected"`
	Errors     int    `json:"errors"`
}

// Worker processes one source per call: fetch → normalize → classify →
// persist → cluster. Articles within a source are handled sequentially in
// feed order.
type Worker struct {
	fetcher    Fetcher
	classifier *classify.Classifier
	store      ArticleStore
	notifier   Notifier
	reviewLog  *store.RunLog
	logger     *slog.Logger
	metrics    *observability.Metrics

	// storeRejected keeps hazard-adjacent rejects as needs_verification rows
	// instead of dropping them.
	storeRejected bool
}

// NewWorker wires the pipeline stages. reviewLog and notifier may be nil.
func NewWorker(
	fetcher Fetcher,
	classifier *classify.Classifier,
	st ArticleStore,
	notifier Notifier,
	reviewLog *store.RunLog,
	storeRejected bool,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Worker {
	return &Worker{
		fetcher:       fetcher,
		classifier:    classifier,
		store:         st,
		notifier:      notifier,
		reviewLog:     reviewLog,
		storeRejected: storeRejected,
		logger:        logger,
		metrics:       metrics,
	}
}

// ProcessSource runs the full pipeline for one source and returns its tally.
// Errors never escape: they are counted and logged, keeping sources isolated
// from each other.
func (w *Worker) ProcessSource(ctx context.Context, src domain.Source) SourceResult {
	res := SourceResult{Source: src.Name}

	entries := w.fetcher.Fetch(ctx, src)
	res.Fetched = len(entries)
	w.metrics.ArticlesFetched.Add(float64(len(entries)))

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		w.processEntry(ctx, src, entry, &res)
	}

	w.store.RecordArticlesAdded(ctx, src.Name, res.Inserted)
	return res
}

func (w *Worker) processEntry(ctx context.Context, src domain.Source, entry domain.RawEntry, res *SourceResult) {
	article, err := Normalize(src, entry)
	if err != nil {
		res.Errors++
		w.logger.Warn("skipping malformed entry", "source", src.Name, "url", entry.URL, "error", err)
		return
	}

	verdict := w.classifier.Classify(article.Title, article.Summary)
	if !verdict.Accept {
		res.Rejected++
		w.metrics.ArticlesRejected.Inc()
		w.handleRejected(ctx, article, verdict)
		return
	}

	applyVerdict(&article, verdict)

	inserted, err := w.store.SaveArticle(ctx, &article)
	if err != nil {
		res.Errors++
		w.logger.Warn("persist failed, dropping from this tick",
			"source", src.Name, "url", article.URL, "error", err)
		return
	}
	if !inserted {
		res.Duplicates++
		w.metrics.ArticlesDuplicate.Inc()
		return
	}
	res.Inserted++
	w.metrics.ArticlesInserted.Inc()

	ev, created, err := w.store.UpsertEventFor(ctx, &article)
	if err != nil {
		res.Errors++
		w.logger.Warn("event upsert failed", "url", article.URL, "error", err)
		return
	}
	if created {
		w.metrics.EventsCreated.Inc()
	} else {
		w.metrics.EventsUpdated.Inc()
	}
	if w.notifier != nil {
		w.notifier.Notify(domain.NotificationFor(ev, created))
	}
}

// handleRejected logs hazard-adjacent rejects for operator review and, under
// the store-for-review policy, keeps them as needs_verification rows that
// never reach the clusterer.
func (w *Worker) handleRejected(ctx context.Context, article domain.Article, verdict classify.Result) {
	if len(verdict.AllHazards) == 0 {
		return
	}

	if w.reviewLog != nil {
		line := map[string]any{
			"url":     article.URL,
			"source":  article.Source,
			"title":   article.Title,
			"reason":  verdict.Reason,
			"hazards": verdict.AllHazards,
			"at":      time.Now().UTC().Format(time.RFC3339),
		}
		if err := w.reviewLog.Append(line); err != nil {
			w.logger.Warn("review log append failed", "error", err)
		}
	}

	if !w.storeRejected {
		return
	}
	article.Status = domain.StatusNeedsVerification
	article.DisasterType = verdict.DisasterType
	article.Stage = verdict.Stage
	if _, err := w.store.SaveArticle(ctx, &article); err != nil {
		w.logger.Warn("store-for-review persist failed", "url", article.URL, "error", err)
	}
}

// applyVerdict copies the classifier outputs onto the article record.
func applyVerdict(a *domain.Article, v classify.Result) {
	a.Status = domain.StatusActive
	a.DisasterType = v.DisasterType
	a.RiskLevel = v.RiskLevel
	a.Stage = v.Stage
	a.RedAlert = v.RedAlert
	a.Province = v.Location.Province
	a.Commune = v.Location.Commune
	a.Deaths = v.Impact.Deaths
	a.Missing = v.Impact.Missing
	a.Injured = v.Impact.Injured
	a.DamageBillionVND = v.Impact.DamageBillionVND
	a.Cause = v.Impact.Cause
	a.Agency = v.Impact.Agency

	if len(v.AllHazards) > 1 {
		types := make([]string, 0, len(v.AllHazards)-1)
		for _, h := range v.AllHazards[1:] {
			types = append(types, h.Type)
		}
		a.Characteristics = "also:" + strings.Join(types, ",")
	}
}
