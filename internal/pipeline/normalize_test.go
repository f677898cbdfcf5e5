package pipeline

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietwatch/disaster-crawler/internal/domain"
)

var testSource = domain.Source{
	Name:   "VNExpress",
	Domain: "vnexpress.net",
}

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "strips utm params",
			raw:  "https://vnexpress.net/bao-so-4.html?utm_source=rss&utm_medium=feed",
			want: "https://vnexpress.net/bao-so-4.html",
		},
		{
			name: "strips tracking params but keeps real query",
			raw:  "https://vnexpress.net/tin?id=42&fbclid=abc&gclid=xyz",
			want: "https://vnexpress.net/tin?id=42",
		},
		{
			name: "strips fragment",
			raw:  "https://vnexpress.net/bao-so-4.html#box_comment",
			want: "https://vnexpress.net/bao-so-4.html",
		},
		{
			name: "lowercases host",
			raw:  "https://VNExpress.NET/bao-so-4.html",
			want: "https://vnexpress.net/bao-so-4.html",
		},
		{
			name: "resolves relative path against source domain",
			raw:  "/thoi-su/bao-so-4.html",
			want: "https://vnexpress.net/thoi-su/bao-so-4.html",
		},
		{
			name: "trims trailing slash",
			raw:  "https://vnexpress.net/thoi-su/",
			want: "https://vnexpress.net/thoi-su",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalURL(tt.raw, testSource.Domain)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalURL_Empty(t *testing.T) {
	_, err := CanonicalURL("   ", testSource.Domain)
	require.Error(t, err)
}

func TestStripHTML(t *testing.T) {
	got := StripHTML("<p>Bão số 4 <b>đổ bộ</b> &amp; gây mưa lớn</p>", 500)
	assert.Equal(t, "Bão số 4 đổ bộ & gây mưa lớn", got)
}

func TestStripHTML_CapsRunes(t *testing.T) {
	long := "mưa lớn kéo dài nhiều ngày ở miền Trung " // 40 runes
	var s string
	for i := 0; i < 20; i++ {
		s += long
	}

	got := StripHTML(s, 100)
	assert.LessOrEqual(t, len([]rune(got)), 100)
	assert.NotContains(t, got, "  ")
}

func TestNormalize(t *testing.T) {
	fixed := time.Date(2025, 9, 10, 8, 0, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(fixed))
	defer domain.SetClock(nil)

	published := time.Date(2025, 9, 10, 1, 30, 0, 0, time.FixedZone("ICT", 7*3600))
	entry := domain.RawEntry{
		URL:       "/bao-so-4.html?utm_source=rss",
		Title:     "  Bão số 4 đổ bộ Hà Tĩnh  ",
		Published: published,
		Summary:   "<p>Mưa  lớn   diện rộng</p>",
	}

	a, err := Normalize(testSource, entry)
	require.NoError(t, err)

	assert.Equal(t, "https://vnexpress.net/bao-so-4.html", a.URL)
	assert.Equal(t, "VNExpress", a.Source)
	assert.Equal(t, "Bão số 4 đổ bộ Hà Tĩnh", a.Title)
	assert.Equal(t, "Mưa lớn diện rộng", a.Summary)
	assert.Equal(t, published.UTC(), a.PublishedAt)
	assert.False(t, a.PublishedInferred)
	assert.Equal(t, fixed, a.FetchedAt)
}

func TestNormalize_InfersMissingPublishTime(t *testing.T) {
	fixed := time.Date(2025, 9, 10, 8, 0, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(fixed))
	defer domain.SetClock(nil)

	entry := domain.RawEntry{
		URL:   "https://vnexpress.net/bao-so-4.html",
		Title: "Bão số 4 đổ bộ",
	}

	a, err := Normalize(testSource, entry)
	require.NoError(t, err)
	assert.Equal(t, fixed, a.PublishedAt)
	assert.True(t, a.PublishedInferred)
}

func TestNormalize_RejectsUntitled(t *testing.T) {
	entry := domain.RawEntry{URL: "https://vnexpress.net/x.html", Title: "   "}

	_, err := Normalize(testSource, entry)
	require.Error(t, err)
}
