package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/vietwatch/disaster-crawler/internal/domain"
)

// UpsertEventFor clusters a freshly inserted, accepted article into its
// event. Returns the event and whether it was created by this call.
//
// The whole upsert runs in one transaction. SQLite serialises writers, so the
// transaction is the exclusive hold the merge needs; the unique index on
// cluster_key collapses concurrent creates: the loser re-reads the winner's
// row and takes the merge branch instead.
func (s *Store) UpsertEventFor(ctx context.Context, a *domain.Article) (domain.Event, bool, error) {
	if a.ID == 0 {
		return domain.Event{}, false, fmt.Errorf("article %s not persisted", a.URL)
	}
	key := domain.ClusterKey(a.DisasterType, a.Province, a.PublishedAt, s.tz)

	var (
		ev      domain.Event
		created bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("cluster_key = ?", key).First(&ev).Error
		switch {
		case isNotFound(err):
			ev = newEventFrom(key, a)
			if createErr := tx.Create(&ev).Error; createErr != nil {
				if !isDuplicate(createErr) {
					return createErr
				}
				// Concurrent create won; merge into it.
				if err := tx.Where("cluster_key = ?", key).First(&ev).Error; err != nil {
					return err
				}
			} else {
				created = true
			}
		case err != nil:
			return err
		}

		if err := tx.Model(&domain.Article{}).Where("id = ?", a.ID).
			Update("event_id", ev.ID).Error; err != nil {
			return err
		}
		a.EventID = &ev.ID

		if created {
			return nil
		}
		return mergeEvent(tx, &ev, a)
	})
	if err != nil {
		return domain.Event{}, false, fmt.Errorf("upsert event %s: %w", key, err)
	}
	return ev, created, nil
}

func newEventFrom(key string, a *domain.Article) domain.Event {
	return domain.Event{
		ClusterKey:       key,
		Title:            a.Title,
		DisasterType:     a.DisasterType,
		RiskLevel:        a.RiskLevel,
		Province:         a.Province,
		Locality:         a.Commune,
		StartedAt:        a.PublishedAt,
		LastUpdatedAt:    a.PublishedAt,
		Deaths:           a.Deaths,
		Missing:          a.Missing,
		Injured:          a.Injured,
		DamageBillionVND: a.DamageBillionVND,
		Confidence:       domain.ConfidenceForSources(1),
		SourcesCount:     1,
		Stage:            a.Stage,
		RedAlert:         a.RedAlert,
	}
}

// mergeEvent folds one more article into an existing event: timestamps and
// impact fields move monotonically, corroboration is recounted over distinct
// non-rejected sources, red alert is an OR across contributors.
func mergeEvent(tx *gorm.DB, ev *domain.Event, a *domain.Article) error {
	if a.PublishedAt.After(ev.LastUpdatedAt) {
		ev.LastUpdatedAt = a.PublishedAt
	}
	if a.PublishedAt.Before(ev.StartedAt) {
		ev.StartedAt = a.PublishedAt
	}
	ev.Deaths = max(ev.Deaths, a.Deaths)
	ev.Missing = max(ev.Missing, a.Missing)
	ev.Injured = max(ev.Injured, a.Injured)
	if a.DamageBillionVND > ev.DamageBillionVND {
		ev.DamageBillionVND = a.DamageBillionVND
	}
	ev.RiskLevel = max(ev.RiskLevel, a.RiskLevel)
	ev.RedAlert = ev.RedAlert || a.RedAlert
	if ev.Locality == "" {
		ev.Locality = a.Commune
	}
	if a.Stage == domain.StageIncident {
		ev.Stage = domain.StageIncident
	}

	sources, err := distinctSources(tx, ev.ID)
	if err != nil {
		return err
	}
	ev.SourcesCount = sources
	ev.Confidence = domain.ConfidenceForSources(sources)

	return tx.Save(ev).Error
}

func distinctSources(tx *gorm.DB, eventID uint) (int, error) {
	var n int64
	err := tx.Model(&domain.Article{}).
		Where("event_id = ? AND status <> ?", eventID, domain.StatusRejected).
		Distinct("source").
		Count(&n).Error
	return int(n), err
}

// recountEvent refreshes an event after article membership changed (admin
// rejection). An event left with no non-rejected articles is deleted on the
// spot rather than waiting for the sweep.
func recountEvent(tx *gorm.DB, eventID uint) error {
	sources, err := distinctSources(tx, eventID)
	if err != nil {
		return err
	}
	if sources == 0 {
		return tx.Delete(&domain.Event{}, eventID).Error
	}

	var agg struct {
		Deaths  int
		Missing int
		Injured int
		Damage  float64
	}
	err = tx.Model(&domain.Article{}).
		Select("COALESCE(MAX(deaths),0) AS deaths, COALESCE(MAX(missing),0) AS missing, COALESCE(MAX(injured),0) AS injured, COALESCE(MAX(damage_billion_vnd),0) AS damage").
		Where("event_id = ? AND status <> ?", eventID, domain.StatusRejected).
		Scan(&agg).Error
	if err != nil {
		return err
	}

	var red int64
	err = tx.Model(&domain.Article{}).
		Where("event_id = ? AND status <> ? AND red_alert", eventID, domain.StatusRejected).
		Count(&red).Error
	if err != nil {
		return err
	}

	return tx.Model(&domain.Event{}).Where("id = ?", eventID).Updates(map[string]any{
		"sources_count":      sources,
		"confidence":         domain.ConfidenceForSources(sources),
		"deaths":             agg.Deaths,
		"missing":            agg.Missing,
		"injured":            agg.Injured,
		"damage_billion_vnd": agg.Damage,
		"red_alert":          red > 0,
	}).Error
}

// SweepGhostEvents deletes events with zero non-rejected articles. Safe to
// run any time; events are never referenced externally in a way that survives
// deletion.
func (s *Store) SweepGhostEvents(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("NOT EXISTS (SELECT 1 FROM articles WHERE articles.event_id = events.id AND articles.status <> ?)", domain.StatusRejected).
		Delete(&domain.Event{})
	if res.Error != nil {
		return 0, fmt.Errorf("sweep ghost events: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// EventByKey fetches one event by cluster key.
func (s *Store) EventByKey(ctx context.Context, key string) (domain.Event, error) {
	var ev domain.Event
	err := s.db.WithContext(ctx).Where("cluster_key = ?", key).First(&ev).Error
	return ev, err
}
