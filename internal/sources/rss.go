package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"newswire/internal/sources/rss"
	"newswire/internal/types"
)

// RSSSource polls a set of feeds concurrently. Feeds carry no server side
// filter, so items at or before the bound are dropped here.
type RSSSource struct {
	name    string
	feeds   []rss.Feed
	parser  *gofeed.Parser
	timeout time.Duration
}

func NewRSSSource(name string, feeds []rss.Feed, timeout time.Duration) *RSSSource {
	return &RSSSource{
		name:    name,
		feeds:   feeds,
		parser:  gofeed.NewParser(),
		timeout: timeout,
	}
}

func (r *RSSSource) Name() string {
	return r.name
}

func (r *RSSSource) Provider() types.Provider {
	return types.ProviderRSS
}

func (r *RSSSource) Capability() Capability {
	return ClientSideFilter
}

func (r *RSSSource) Fetch(ctx context.Context, bound Bound) (<-chan *types.RawRecord, <-chan error) {
	itemChan := make(chan *types.RawRecord, 100)
	errChan := make(chan error, 1)

	go func() {
		defer close(itemChan)
		defer close(errChan)

		slog.Info("RSS source fetching feeds", "source", r.name, "count", len(r.feeds))

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			failures int
		)
		feedItemChan := make(chan *types.RawRecord, 100)

		for _, feed := range r.feeds {
			wg.Add(1)
			go func(f rss.Feed) {
				defer wg.Done()
				if err := r.fetchFeed(ctx, f, bound, feedItemChan); err != nil {
					slog.Error("RSS feed fetch error", "source", r.name, "feed", f.Name, "url", f.URL, "error", err)
					mu.Lock()
					failures++
					mu.Unlock()
				}
			}(feed)
		}

		go func() {
			wg.Wait()
			close(feedItemChan)
		}()

		for item := range feedItemChan {
			if !send(ctx, itemChan, item) {
				for range feedItemChan {
				}
				errChan <- ctx.Err()
				return
			}
		}

		if failures > 0 && failures == len(r.feeds) {
			errChan <- fmt.Errorf("all %d feeds failed", failures)
		}
	}()

	return itemChan, errChan
}

func (r *RSSSource) fetchFeed(ctx context.Context, feed rss.Feed, bound Bound, out chan<- *types.RawRecord) error {
	feedCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		feedCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	parsed, err := r.parser.ParseURLWithContext(feed.URL, feedCtx)
	if err != nil {
		return fmt.Errorf("failed to parse feed: %w", err)
	}

	slog.Debug("RSS feed retrieved", "source", r.name, "feed", feed.Name, "category", feed.Category, "items", len(parsed.Items))

	publisher := parsed.Title
	if publisher == "" {
		publisher = feed.Name
	}

	sent := 0
	for _, item := range parsed.Items {
		if feed.MaxItems > 0 && sent >= feed.MaxItems {
			break
		}

		record := r.convert(item, publisher)
		if !record.PublishedAt.After(bound.After) {
			continue
		}

		select {
		case out <- record:
			sent++
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

func (r *RSSSource) convert(item *gofeed.Item, feedTitle string) *types.RawRecord {
	var published time.Time
	if item.PublishedParsed != nil {
		published = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		published = *item.UpdatedParsed
	}

	description := item.Description
	if description == "" {
		description = item.Content
	}

	payload, err := json.Marshal(item)
	if err != nil {
		payload = []byte("{}")
	}

	return newRecord(types.ProviderRSS, r.name, recordFields{
		externalID: item.GUID,
		url:        item.Link,
		title:      item.Title,
		summary:    description,
		sourceName: feedTitle,
		published:  published,
		payload:    payload,
	})
}
