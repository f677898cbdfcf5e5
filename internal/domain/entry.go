package domain

import "time"

// RawEntry is one unnormalised item returned by the fetcher, regardless of
// which rung of the fallback ladder produced it.
type RawEntry struct {
	URL       string
	Title     string
	Published time.Time // zero when the feed carried no publish time
	Summary   string
	ImageURL  string
}

// FetchAttempt describes one fetch attempt against one feed URL. The fetcher
// produces them; the store's crawler-status table consumes them.
type FetchAttempt struct {
	FeedURL string
	Latency time.Duration
	Err     error // nil on success
}
