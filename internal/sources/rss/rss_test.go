package rss

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

const sampleOPML = `<?xml version="1.0"?>
<opml version="2.0">
  <body>
    <outline text="Markets">
      <outline title="Reuters Business" type="rss" xmlUrl="https://example.com/reuters.xml"/>
      <outline text="FT - Companies" type="rss" xmlUrl="https://example.com/ft.xml"/>
    </outline>
    <outline text="Duplicates">
      <outline title="Reuters again" type="rss" xmlUrl="https://example.com/reuters.xml"/>
    </outline>
    <outline text="No feed here"/>
  </body>
</opml>`

func TestParseOPML(t *testing.T) {
	t.Parallel()

	feeds, err := ParseOPML([]byte(sampleOPML))
	if err != nil {
		t.Fatalf("ParseOPML() error = %v", err)
	}
	if len(feeds) != 2 {
		t.Fatalf("ParseOPML() = %d feeds, want 2", len(feeds))
	}
	if feeds[0].Name != "reuters_business" || feeds[1].Name != "ft___companies" {
		t.Errorf("names = %q, %q", feeds[0].Name, feeds[1].Name)
	}
	if feeds[0].Category != "Markets" {
		t.Errorf("category = %q, want Markets", feeds[0].Category)
	}
}

func TestLoadFeedsFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "feeds.opml")
	if err := os.WriteFile(path, []byte(sampleOPML), 0o644); err != nil {
		t.Fatal(err)
	}

	feeds, err := LoadFeeds(FeedList{Loader: "opml_file", Value: path}, 25)
	if err != nil {
		t.Fatalf("LoadFeeds() error = %v", err)
	}
	for _, f := range feeds {
		if f.MaxItems != 25 {
			t.Errorf("feed %s MaxItems = %d, want 25", f.Name, f.MaxItems)
		}
	}
}

func TestLoadFeedsFromURL(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleOPML))
	}))
	defer server.Close()

	feeds, err := LoadFeeds(FeedList{Loader: "opml_url", Value: server.URL}, 10)
	if err != nil {
		t.Fatalf("LoadFeeds() error = %v", err)
	}
	if len(feeds) != 2 {
		t.Errorf("LoadFeeds() = %d feeds, want 2", len(feeds))
	}
}

func TestLoadFeedsSingleURL(t *testing.T) {
	t.Parallel()

	feeds, err := LoadFeeds(FeedList{Value: "https://example.com/feed.xml"}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(feeds) != 1 || feeds[0].URL != "https://example.com/feed.xml" {
		t.Errorf("LoadFeeds() = %+v", feeds)
	}

	if _, err := LoadFeeds(FeedList{Loader: "nope", Value: "x"}, 5); err == nil {
		t.Error("LoadFeeds() with unknown loader succeeded")
	}
}
