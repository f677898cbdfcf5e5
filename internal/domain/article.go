package domain

import "time"

// ArticleStatus tracks an article's lifecycle after insertion.
type ArticleStatus string

const (
	// StatusActive marks an accepted article contributing to an event.
	StatusActive ArticleStatus = "active"
	// StatusRejected is set by the admin interface; rejected articles stop
	// counting toward their event's aggregates.
	StatusRejected ArticleStatus = "rejected"
	// StatusNeedsVerification marks a classifier-rejected article stored for
	// operator review (STORE_REJECTED policy). Never clustered.
	StatusNeedsVerification ArticleStatus = "needs_verification"
)

// Stage describes where in the incident timeline an article sits.
type Stage string

const (
	StageIncident  Stage = "INCIDENT"
	StageAftermath Stage = "AFTERMATH"
	StageForecast  Stage = "FORECAST"
)

// Article is one news item, keyed by canonical URL. Classification fields are
// written once at insert time; only Status and EventID mutate afterwards.
type Article struct {
	ID  uint   `gorm:"primaryKey" json:"id"`
	URL string `gorm:"uniqueIndex;size:1024" json:"url"`

	Source string `gorm:"index;size:128" json:"source"`
	Domain string `gorm:"size:128" json:"domain"`
	Title  string `gorm:"size:512" json:"title"`

	PublishedAt time.Time `gorm:"index" json:"published_at"`
	// PublishedInferred is set when the feed carried no publish time and the
	// fetch time was used instead.
	PublishedInferred bool      `json:"published_time_inferred,omitempty"`
	FetchedAt         time.Time `json:"fetched_at"`

	Summary  string `gorm:"type:text" json:"summary"`
	FullText string `gorm:"type:text" json:"full_text,omitempty"`

	DisasterType string `gorm:"index;size:32" json:"disaster_type"`
	RiskLevel    int    `json:"risk_level"` // 0-5, carried from the primary hazard

	Province string `gorm:"index;size:64" json:"province,omitempty"`
	Commune  string `gorm:"size:128" json:"commune,omitempty"`

	Cause           string `gorm:"size:256" json:"cause,omitempty"`
	Characteristics string `gorm:"size:256" json:"characteristics,omitempty"`

	Deaths           int     `json:"deaths"`
	Missing          int     `json:"missing"`
	Injured          int     `json:"injured"`
	DamageBillionVND float64 `json:"damage_billion_vnd"`

	Agency string `gorm:"size:128" json:"agency,omitempty"`

	Status   ArticleStatus `gorm:"index;size:24" json:"status"`
	Stage    Stage         `gorm:"size:12" json:"stage"`
	RedAlert bool          `json:"red_alert"`

	ImageURL string `gorm:"size:1024" json:"image_url,omitempty"`

	EventID *uint `gorm:"index" json:"event_id,omitempty"`
}

// CrawlerStatus is the per-source health row, updated once per fetch attempt.
type CrawlerStatus struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	Source              string     `gorm:"uniqueIndex;size:128" json:"source"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	LastError           string     `gorm:"type:text" json:"last_error,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastFeedURL         string     `gorm:"size:1024" json:"last_feed_url,omitempty"`
	LastArticlesAdded   int        `json:"last_articles_added"`
	LastLatencyMS       int64      `json:"last_latency_ms"`
}
