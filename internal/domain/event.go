package domain

import (
	"fmt"
	"time"
)

// Event is a cluster of articles describing one incident, keyed by ClusterKey.
type Event struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	ClusterKey string `gorm:"uniqueIndex;size:160" json:"cluster_key"`

	Title        string `gorm:"size:512" json:"title"`
	DisasterType string `gorm:"index;size:32" json:"disaster_type"`
	RiskLevel    int    `json:"risk_level"`

	Province string `gorm:"index;size:64" json:"province,omitempty"`
	Locality string `gorm:"size:128" json:"locality,omitempty"`

	StartedAt     time.Time `gorm:"index" json:"started_at"`
	LastUpdatedAt time.Time `gorm:"index" json:"last_updated_at"`

	// Aggregates are the per-field maximum over non-rejected articles.
	Deaths           int     `json:"deaths"`
	Missing          int     `json:"missing"`
	Injured          int     `json:"injured"`
	DamageBillionVND float64 `json:"damage_billion_vnd"`

	Confidence   float64 `json:"confidence"` // 0.0-1.0 corroboration score
	SourcesCount int     `json:"sources_count"`

	Stage    Stage `gorm:"size:12" json:"stage"`
	RedAlert bool  `json:"red_alert"`
}

// ClusterKey builds the event natural key: type|province|day, with the day
// taken from publishedAt in the given timezone. Empty province maps to
// "unknown" so articles without a located province still bucket together.
func ClusterKey(disasterType, province string, publishedAt time.Time, tz *time.Location) string {
	if province == "" {
		province = "unknown"
	}
	if tz == nil {
		tz = time.UTC
	}
	return fmt.Sprintf("%s|%s|%s", disasterType, province, publishedAt.In(tz).Format("2006-01-02"))
}

// ConfidenceForSources maps a distinct-source count onto the corroboration
// ladder: 1 → 0.25, 2 → 0.50, 3 → 0.75, ≥4 → 0.90.
func ConfidenceForSources(n int) float64 {
	switch {
	case n <= 0:
		return 0
	case n == 1:
		return 0.25
	case n == 2:
		return 0.50
	case n == 3:
		return 0.75
	default:
		return 0.90
	}
}

// Notification types emitted to the broadcast adapter.
const (
	NotifyNewEvent     = "new_event"
	NotifyEventUpdated = "event_updated"
)

// Notification is the wire shape handed to the push layer.
type Notification struct {
	Type         string    `json:"type"` // new_event | event_updated
	EventID      uint      `json:"event_id"`
	Title        string    `json:"title"`
	DisasterType string    `json:"disaster_type"`
	Province     string    `json:"province,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	RiskLevel    int       `json:"risk_level"`
	RedAlert     bool      `json:"red_alert"`
}

// NotificationFor builds the broadcast payload for a created or updated event.
func NotificationFor(ev Event, created bool) Notification {
	typ := NotifyEventUpdated
	if created {
		typ = NotifyNewEvent
	}
	return Notification{
		Type:         typ,
		EventID:      ev.ID,
		Title:        ev.Title,
		DisasterType: ev.DisasterType,
		Province:     ev.Province,
		StartedAt:    ev.StartedAt,
		RiskLevel:    ev.RiskLevel,
		RedAlert:     ev.RedAlert,
	}
}
