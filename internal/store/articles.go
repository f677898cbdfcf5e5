package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/vietwatch/disaster-crawler/internal/domain"
)

// SaveArticle inserts an article keyed by canonical URL. Returns false when
// the URL already exists; existing rows are never overwritten. The unique
// index resolves concurrent insertion of the same URL: the loser reads the
// winner's row and reports a duplicate.
func (s *Store) SaveArticle(ctx context.Context, a *domain.Article) (bool, error) {
	if s.seen.contains(a.URL) {
		if err := s.loadExisting(ctx, a); err != nil {
			return false, err
		}
		return false, nil
	}

	inserted, err := s.insertArticle(ctx, a)
	if err != nil {
		// One retry with jitter for transient failures; a second failure drops
		// the article from this tick (the next tick's feed re-offers it).
		s.logger.Warn("article insert failed, retrying once", "url", a.URL, "error", err)
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-s.clock.After(retryJitter()):
		}
		inserted, err = s.insertArticle(ctx, a)
		if err != nil {
			return false, fmt.Errorf("insert article %s: %w", a.URL, err)
		}
	}

	s.seen.add(a.URL)
	return inserted, nil
}

func (s *Store) insertArticle(ctx context.Context, a *domain.Article) (bool, error) {
	var existing domain.Article
	err := s.db.WithContext(ctx).Where("url = ?", a.URL).First(&existing).Error
	switch {
	case err == nil:
		*a = existing
		return false, nil
	case !isNotFound(err):
		return false, err
	}

	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		if isDuplicate(err) {
			// Lost the race; adopt the winner's row.
			if loadErr := s.loadExisting(ctx, a); loadErr != nil {
				return false, loadErr
			}
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) loadExisting(ctx context.Context, a *domain.Article) error {
	var existing domain.Article
	if err := s.db.WithContext(ctx).Where("url = ?", a.URL).First(&existing).Error; err != nil {
		return fmt.Errorf("load existing article %s: %w", a.URL, err)
	}
	*a = existing
	return nil
}

// RejectArticle marks an article rejected and detaches it from its event.
// Used by the admin surface; the next recount and sweep pick up the change.
func (s *Store) RejectArticle(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a domain.Article
		if err := tx.First(&a, id).Error; err != nil {
			return err
		}
		updates := map[string]any{"status": domain.StatusRejected, "event_id": nil}
		if err := tx.Model(&a).Updates(updates).Error; err != nil {
			return err
		}
		if a.EventID == nil {
			return nil
		}
		return recountEvent(tx, *a.EventID)
	})
}

// ArticleByURL fetches one article by canonical URL.
func (s *Store) ArticleByURL(ctx context.Context, url string) (domain.Article, error) {
	var a domain.Article
	err := s.db.WithContext(ctx).Where("url = ?", url).First(&a).Error
	return a, err
}
