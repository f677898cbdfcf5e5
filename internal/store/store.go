// Package store persists articles, events, and per-source crawler health in a
// relational database, and maintains the rotating JSONL data logs.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vietwatch/disaster-crawler/internal/domain"
)

// seenURLCacheSize bounds the in-memory dedup pre-check in front of the
// unique index. Sized to comfortably hold a few crawl cycles of URLs.
const seenURLCacheSize = 4096

// Store wraps the database with the pipeline's persistence operations.
type Store struct {
	db     *gorm.DB
	tz     *time.Location
	clock  clockwork.Clock
	logger *slog.Logger
	seen   *urlCache
}

// Open connects to the database at dbURL, migrates the schema, and returns a
// Store bucketing cluster keys in tz.
func Open(dbURL string, tz *time.Location, logger *slog.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dbURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&domain.Article{}, &domain.Event{}, &domain.CrawlerStatus{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	if tz == nil {
		tz = time.UTC
	}
	return &Store{
		db:     db,
		tz:     tz,
		clock:  clockwork.NewRealClock(),
		logger: logger,
		seen:   newURLCache(seenURLCacheSize),
	}, nil
}

// SetClock swaps the time source used for crawler-status stamps (tests).
func (s *Store) SetClock(c clockwork.Clock) {
	if c != nil {
		s.clock = c
	}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordFetchAttempt implements the fetcher's StatusRecorder: one
// crawler-status row per source, updated on every attempt.
func (s *Store) RecordFetchAttempt(ctx context.Context, source string, att domain.FetchAttempt) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var st domain.CrawlerStatus
		if err := tx.Where("source = ?", source).First(&st).Error; err != nil {
			if !isNotFound(err) {
				return err
			}
			st = domain.CrawlerStatus{Source: source}
		}

		st.LastFeedURL = att.FeedURL
		st.LastLatencyMS = att.Latency.Milliseconds()
		if att.Err != nil {
			st.LastError = att.Err.Error()
			st.ConsecutiveFailures++
		} else {
			now := s.clock.Now().UTC()
			st.LastSuccessAt = &now
			st.LastError = ""
			st.ConsecutiveFailures = 0
		}
		return tx.Save(&st).Error
	})
	if err != nil {
		s.logger.Warn("record fetch attempt failed", "source", source, "error", err)
	}
}

// RecordArticlesAdded stamps the per-source inserted count for the cycle.
func (s *Store) RecordArticlesAdded(ctx context.Context, source string, added int) {
	err := s.db.WithContext(ctx).
		Model(&domain.CrawlerStatus{}).
		Where("source = ?", source).
		Update("last_articles_added", added).Error
	if err != nil {
		s.logger.Warn("record articles added failed", "source", source, "error", err)
	}
}

// CrawlerStatus returns the health row for one source.
func (s *Store) CrawlerStatus(ctx context.Context, source string) (domain.CrawlerStatus, error) {
	var st domain.CrawlerStatus
	err := s.db.WithContext(ctx).Where("source = ?", source).First(&st).Error
	return st, err
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// isDuplicate recognises a unique-constraint violation across drivers.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "constraint failed")
}

// retryJitter is the pause before the single retry of a transient DB error.
func retryJitter() time.Duration {
	return 50*time.Millisecond + time.Duration(rand.Int63n(int64(150*time.Millisecond)))
}
