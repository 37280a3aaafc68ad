package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"newswire/internal/config"
	"newswire/internal/sources/rss"
	"newswire/internal/types"
)

var bound = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestFinnhubSourceFiltersClientSide(t *testing.T) {
	t.Parallel()

	var gotMinID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/news" {
			t.Errorf("path = %s, want /news", r.URL.Path)
		}
		gotMinID = r.URL.Query().Get("minId")
		fmt.Fprintf(w, `[
			{"id": 103, "datetime": %d, "headline": "Newest", "url": "https://example.com/c", "source": "Reuters", "related": "AAPL,MSFT", "summary": "<p>c</p>"},
			{"id": 101, "datetime": %d, "headline": "Old", "url": "https://example.com/a", "source": "Reuters"},
			{"id": 102, "datetime": %d, "headline": "At bound", "url": "https://example.com/b", "source": "Reuters"}
		]`, bound.Add(2*time.Hour).Unix(), bound.Add(-time.Hour).Unix(), bound.Unix())
	}))
	defer server.Close()

	src := NewFinnhubSource("general", "general", "token", server.URL, 5*time.Second, 0)
	result, err := Collect(context.Background(), src, Bound{After: bound, AfterID: 100})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	if gotMinID != "100" {
		t.Errorf("minId = %q, want 100", gotMinID)
	}
	if len(result.Records) != 1 {
		t.Fatalf("Collect() = %d records, want 1", len(result.Records))
	}

	rec := result.Records[0]
	if rec.Title != "Newest" || rec.ExternalID != "103" || rec.Summary != "c" {
		t.Errorf("record = %+v", rec)
	}
	if len(rec.Symbols) != 2 || rec.Symbols[1] != "MSFT" {
		t.Errorf("Symbols = %v", rec.Symbols)
	}
	if result.MaxPublished == nil || !result.MaxPublished.Equal(bound.Add(2*time.Hour)) {
		t.Errorf("MaxPublished = %v", result.MaxPublished)
	}
	if result.MaxID != 103 {
		t.Errorf("MaxID = %d, want 103", result.MaxID)
	}
}

func TestFinnhubSourceKeepsOldestWhenTruncating(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `[
			{"id": 3, "datetime": %d, "headline": "c", "url": "https://example.com/c"},
			{"id": 2, "datetime": %d, "headline": "b", "url": "https://example.com/b"},
			{"id": 1, "datetime": %d, "headline": "a", "url": "https://example.com/a"}
		]`, bound.Add(3*time.Hour).Unix(), bound.Add(2*time.Hour).Unix(), bound.Add(time.Hour).Unix())
	}))
	defer server.Close()

	src := NewFinnhubSource("general", "", "token", server.URL, 5*time.Second, 0)
	result, err := Collect(context.Background(), src, Bound{After: bound, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Records) != 2 || result.Records[0].Title != "a" || result.Records[1].Title != "b" {
		t.Fatalf("records = %d", len(result.Records))
	}
	if result.MaxID != 2 {
		t.Errorf("MaxID = %d, want 2", result.MaxID)
	}
}

func TestProviderErrorIsReturned(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "limit reached", http.StatusTooManyRequests)
	}))
	defer server.Close()

	src := NewFinnhubSource("general", "", "token", server.URL, 5*time.Second, 0)
	_, err := Collect(context.Background(), src, Bound{After: bound})

	var perr *ProviderError
	if !errors.As(err, &perr) || perr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("Collect() error = %v, want ProviderError 429", err)
	}
}

func TestPolygonSourcePaginates(t *testing.T) {
	t.Parallel()

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("apiKey") != "key" {
			t.Errorf("apiKey missing on %s", r.URL)
		}

		if q.Get("cursor") == "" {
			if got := q.Get("published_utc.gt"); got != "2024-03-01T12:00:00Z" {
				t.Errorf("published_utc.gt = %q", got)
			}
			fmt.Fprintf(w, `{"status": "OK", "next_url": "%s/v2/reference/news?cursor=abc", "results": [
				{"id": "p1", "title": "First", "article_url": "https://example.com/p1", "published_utc": "2024-03-01T12:30:00Z",
				 "tickers": ["nvda"], "publisher": {"name": "Benzinga"}}
			]}`, server.URL)
			return
		}

		fmt.Fprint(w, `{"status": "OK", "results": [
			{"id": "p2", "title": "Second", "article_url": "https://example.com/p2", "published_utc": "2024-03-01T13:00:00Z"},
			{"id": "p0", "title": "Echo", "article_url": "https://example.com/p0", "published_utc": "2024-03-01T12:00:00Z"}
		]}`)
	}))
	defer server.Close()

	src := NewPolygonSource("polygon", "key", server.URL, 5*time.Second, 0)
	if src.Capability() != ServerSideFilter {
		t.Error("polygon should filter server side")
	}

	result, err := Collect(context.Background(), src, Bound{After: bound})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	if len(result.Records) != 2 || result.Filtered != 1 {
		t.Fatalf("records = %d filtered = %d, want 2 and 1", len(result.Records), result.Filtered)
	}
	first := result.Records[0]
	if first.SourceName != "Benzinga" || first.Symbols[0] != "NVDA" || first.ExternalRef() != "p1" {
		t.Errorf("first record = %+v", first)
	}
	if !result.MaxPublished.Equal(time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)) {
		t.Errorf("MaxPublished = %v", result.MaxPublished)
	}
}

func TestCompanyNewsUsesDateBounds(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("from") != "2024-03-01" || q.Get("to") != "2024-03-02" {
			t.Errorf("from/to = %s/%s", q.Get("from"), q.Get("to"))
		}
		if q.Get("symbol") == "FAIL" {
			http.Error(w, "bad", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, `[
			{"id": 1, "datetime": %d, "headline": "Morning", "url": "https://example.com/%s/1"},
			{"id": 2, "datetime": %d, "headline": "Evening", "url": "https://example.com/%s/2"}
		]`, bound.Add(-4*time.Hour).Unix(), q.Get("symbol"), bound.Add(4*time.Hour).Unix(), q.Get("symbol"))
	}))
	defer server.Close()

	src := NewCompanyNewsSource("company", []string{"aapl", "FAIL"}, "token", server.URL, 5*time.Second, 0)
	src.now = func() time.Time { return time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC) }

	result, err := Collect(context.Background(), src, Bound{After: bound})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(result.Records) != 1 || result.Records[0].Title != "Evening" {
		t.Fatalf("records = %+v", result.Records)
	}
	if result.Records[0].Symbols[0] != "AAPL" {
		t.Errorf("Symbols = %v", result.Records[0].Symbols)
	}
}

const sampleFeed = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Markets Wire</title>
    <item>
      <title>Fresh item</title>
      <link>https://example.com/fresh</link>
      <guid>fresh-1</guid>
      <description>&lt;b&gt;Stocks&lt;/b&gt; climb</description>
      <pubDate>Fri, 01 Mar 2024 14:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Stale item</title>
      <link>https://example.com/stale</link>
      <pubDate>Fri, 01 Mar 2024 10:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`

func TestRSSSource(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, sampleFeed)
	}))
	defer server.Close()

	src := NewRSSSource("wire", []rss.Feed{{URL: server.URL, Name: "wire", MaxItems: 10}}, 5*time.Second)
	result, err := Collect(context.Background(), src, Bound{After: bound})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(result.Records) != 1 {
		t.Fatalf("Collect() = %d records, want 1", len(result.Records))
	}

	rec := result.Records[0]
	if rec.Summary != "Stocks climb" || rec.SourceName != "Markets Wire" || rec.ExternalID != "fresh-1" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Provider != types.ProviderRSS {
		t.Errorf("Provider = %s", rec.Provider)
	}
}

func TestRSSSourceAllFeedsFailing(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer server.Close()

	src := NewRSSSource("wire", []rss.Feed{{URL: server.URL, Name: "wire"}}, time.Second)
	if _, err := Collect(context.Background(), src, Bound{After: bound}); err == nil {
		t.Error("Collect() error = nil, want failure")
	}
}

func TestTimeFilter(t *testing.T) {
	t.Parallel()

	filter := NewTimeFilter("test", bound)
	if err := filter.FilterAfter(bound, "x"); !types.IsFiltered(err) {
		t.Errorf("record at bound not filtered: %v", err)
	}
	if err := filter.FilterAfter(time.Time{}, "x"); !types.IsFiltered(err) {
		t.Errorf("zero time not filtered: %v", err)
	}
	if err := filter.FilterAfter(bound.Add(time.Nanosecond), "x"); err != nil {
		t.Errorf("record after bound filtered: %v", err)
	}
}

func TestNewFromConfig(t *testing.T) {
	t.Setenv("TEST_FINNHUB_KEY", "secret")

	src, err := New("general", config.SourceConfig{
		Type:     "finnhub",
		Enabled:  true,
		Settings: map[string]interface{}{"api_key_env": "TEST_FINNHUB_KEY", "category": "merger"},
	}, time.Second)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if src.Provider() != types.ProviderFinnhub {
		t.Errorf("Provider() = %s", src.Provider())
	}
	if _, ok := src.(IDBounded); !ok {
		t.Error("finnhub source should use the id bound")
	}

	_, err = New("company", config.SourceConfig{
		Type:     "finnhub_company",
		Settings: map[string]interface{}{"api_key_env": "TEST_FINNHUB_KEY"},
	}, time.Second)
	if err == nil {
		t.Error("New() without symbols succeeded")
	}

	if _, err := New("x", config.SourceConfig{Type: "twitter"}, time.Second); err == nil {
		t.Error("New() with unknown type succeeded")
	}
}
