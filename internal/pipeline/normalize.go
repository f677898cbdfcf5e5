// Package pipeline turns raw feed entries into classified, persisted,
// clustered articles. The normalizer and classifier stages are pure; only
// persistence and broadcast touch I/O.
package pipeline

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/vietwatch/disaster-crawler/internal/domain"
)

// maxSummaryLen caps the plain-text summary stored per article.
const maxSummaryLen = 500

// trackingParams are stripped during URL canonicalisation so the same story
// shared through different channels dedups to one row.
var trackingParams = map[string]bool{
	"fbclid":  true,
	"gclid":   true,
	"ref":     true,
	"source":  true,
	"cmpid":   true,
	"zarsrc":  true,
}

// Normalize converts one raw entry into a canonical article record. The
// classifier fills the classification fields afterwards.
func Normalize(src domain.Source, entry domain.RawEntry) (domain.Article, error) {
	canonical, err := CanonicalURL(entry.URL, src.Domain)
	if err != nil {
		return domain.Article{}, fmt.Errorf("canonicalise %q: %w", entry.URL, err)
	}

	now := domain.Clock().Now().UTC()
	a := domain.Article{
		URL:       canonical,
		Source:    src.Name,
		Domain:    src.Domain,
		Title:     strings.TrimSpace(entry.Title),
		FetchedAt: now,
		Summary:   StripHTML(entry.Summary, maxSummaryLen),
		ImageURL:  entry.ImageURL,
	}
	if a.Title == "" {
		return domain.Article{}, fmt.Errorf("entry %s has no title", canonical)
	}

	if entry.Published.IsZero() {
		a.PublishedAt = now
		a.PublishedInferred = true
	} else {
		a.PublishedAt = entry.Published.UTC()
	}
	return a, nil
}

// CanonicalURL resolves the raw URL against the source domain, lowercases the
// host, and strips fragments, tracking parameters, and trailing slashes.
func CanonicalURL(raw, sourceDomain string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty url")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		base := &url.URL{Scheme: "https", Host: sourceDomain}
		u = base.ResolveReference(u)
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}

	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for param := range q {
		if trackingParams[param] || strings.HasPrefix(param, "utm_") {
			q.Del(param)
		}
	}
	u.RawQuery = q.Encode()

	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String(), nil
}

// StripHTML reduces feed HTML to plain text capped at maxLen runes.
func StripHTML(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	text := s
	if strings.ContainsAny(s, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			text = doc.Text()
		}
	}
	text = strings.Join(strings.Fields(text), " ")

	runes := []rune(text)
	if len(runes) > maxLen {
		text = strings.TrimSpace(string(runes[:maxLen]))
	}
	return text
}
