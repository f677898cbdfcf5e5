// Package domain models disaster-news articles and the incident events they
// cluster into.
//
// # Data Source
//
// Articles come from a fixed catalog of Vietnamese news outlets. Each source
// is polled on a schedule through a fallback ladder: its primary RSS feed,
// then a Google News search feed scoped to the source's domain, then a
// source-specific HTML scrape. Entries are normalised into one Article per
// canonical URL.
//
// # Clustering
//
// Related articles are grouped into an Event by a deliberately coarse natural
// key:
//
//	<disaster_type>|<province or "unknown">|<yyyy-mm-dd>
//
// where the day is the article's publish date in the configured timezone.
// Multiple outlets reporting the same storm in the same province on the same
// calendar day land in one event; a finer key would fragment coverage, a
// coarser one would merge unrelated incidents in different regions.
//
// Known limitation: an incident reported across midnight splits into two
// events because the key carries the calendar day. This is accepted rather
// than re-bucketed, so event identity stays stable under re-crawls.
//
// # Impact figures
//
// Casualty and damage figures are extracted from headline/summary text with
// phrase patterns of the form "<number> người chết" (deaths), "<number> người
// mất tích" (missing), "<number> người bị thương" (injured) and
// "<number> (tỷ|triệu) đồng" (damage, normalised to billions of VND). Event
// aggregates take the per-field maximum over contributing articles, which
// makes merges monotonic and re-crawls idempotent.
//
// # Confidence
//
// Event confidence is a corroboration ladder over distinct reporting sources:
// 1 source → 0.25, 2 → 0.50, 3 → 0.75, 4 or more → 0.90.
package domain
