package rss

import "fmt"

// FeedList selects how the feeds of an rss source are discovered: a single
// feed URL, or an OPML document read from a file or URL.
type FeedList struct {
	Loader string
	Value  string
}

func (l FeedList) LoaderKey() string {
	if l.Loader == "" {
		return "url"
	}
	return l.Loader
}

func LoadFeeds(list FeedList, maxItems int) ([]Feed, error) {
	loader, err := GetLoader(list.LoaderKey())
	if err != nil {
		return nil, fmt.Errorf("failed to get loader: %w", err)
	}

	feeds, err := loader.Load(list.Value, maxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to load feeds: %w", err)
	}

	if len(feeds) == 0 {
		return nil, fmt.Errorf("no feeds loaded from %s", list.Value)
	}

	return feeds, nil
}
