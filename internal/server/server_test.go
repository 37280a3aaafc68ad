package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"newswire/internal/storage/sqlite"
	"newswire/internal/types"
)

func newTestServer(t *testing.T) (*httptest.Server, *sqlite.SQLiteStorage) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close(context.Background()) })

	srv := New("newswire", Config{}, store, []string{"CORPORATE_EARNINGS"})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, store
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, string(body)
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := get(t, ts.URL+"/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}

	var payload map[string]string
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		t.Fatal(err)
	}
	if payload["status"] != "ok" || payload["name"] != "newswire" {
		t.Errorf("payload = %v", payload)
	}
}

func TestStats(t *testing.T) {
	ts, store := newTestServer(t)
	ctx := context.Background()

	_, err := store.Raw().Stage(ctx, &types.RawRecord{
		Provider:    types.ProviderFinnhub,
		ExternalID:  "1",
		DedupKey:    "finnhub-1",
		Title:       "Chipmaker beats estimates",
		PublishedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Watermarks().Advance(ctx, "general", types.ProviderFinnhub, time.Now(), types.FetchCounts{Fetched: 1, Staged: 1}); err != nil {
		t.Fatal(err)
	}

	resp, body := get(t, ts.URL+"/stats")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}

	var stats statsResponse
	if err := json.Unmarshal([]byte(body), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Raw.Total != 1 || stats.Raw.Pending != 1 {
		t.Errorf("raw = %+v", stats.Raw)
	}
	if len(stats.Watermarks) != 1 || stats.Watermarks[0].Source != "general" {
		t.Errorf("watermarks = %+v", stats.Watermarks)
	}
}

func TestFeedListsIncludedArticles(t *testing.T) {
	ts, store := newTestServer(t)
	ctx := context.Background()

	published := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	for ref, label := range map[string]string{
		"kept":    "CORPORATE_EARNINGS",
		"dropped": types.LabelExcluded,
	} {
		err := store.Articles().Upsert(ctx, &types.Article{
			Provider:        types.ProviderFinnhub,
			ExternalRef:     ref,
			URL:             "https://example.com/" + ref,
			Title:           "Story " + ref,
			PrimaryLabel:    label,
			SecondaryLabels: []string{"NVDA"},
			PublishedAt:     published,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		path        string
		contentType string
	}{
		{path: "/feed.rss", contentType: "application/rss+xml"},
		{path: "/feed.atom", contentType: "application/atom+xml"},
		{path: "/feed.json", contentType: "application/feed+json"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, body := get(t, ts.URL+tt.path)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d", resp.StatusCode)
			}
			if !strings.HasPrefix(resp.Header.Get("Content-Type"), tt.contentType) {
				t.Errorf("content type = %q", resp.Header.Get("Content-Type"))
			}
			if !strings.Contains(body, "Story kept [NVDA]") {
				t.Errorf("feed is missing the included article:\n%s", body)
			}
			if strings.Contains(body, "Story dropped") {
				t.Error("feed contains an excluded article")
			}
		})
	}
}

func TestFeedIsCached(t *testing.T) {
	ts, store := newTestServer(t)

	_, first := get(t, ts.URL+"/feed.json")

	err := store.Articles().Upsert(context.Background(), &types.Article{
		Provider:     types.ProviderFinnhub,
		ExternalRef:  "late",
		Title:        "Story late",
		PrimaryLabel: "CORPORATE_EARNINGS",
		PublishedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}

	_, second := get(t, ts.URL+"/feed.json")
	if first != second || strings.Contains(second, "Story late") {
		t.Error("feed was rendered again within the cache ttl")
	}
}
