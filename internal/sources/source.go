package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"newswire/internal/types"
	"newswire/internal/utils"
)

// Capability tells whether a provider applies the lower bound itself.
type Capability int

const (
	ClientSideFilter Capability = iota
	ServerSideFilter
)

func (c Capability) String() string {
	if c == ServerSideFilter {
		return "server_side"
	}
	return "client_side"
}

// Bound is the exclusive lower limit of a fetch. AfterID is only honoured
// by providers with monotonic numeric ids.
type Bound struct {
	After   time.Time
	AfterID int64
	Limit   int
}

// Source fetches news from one provider. Fetch produces a finite sequence;
// each call issues fresh requests.
type Source interface {
	Name() string
	Provider() types.Provider
	Capability() Capability
	Fetch(ctx context.Context, bound Bound) (<-chan *types.RawRecord, <-chan error)
}

// IDBounded is implemented by sources whose provider accepts a minimum id.
type IDBounded interface {
	UsesIDBound() bool
}

type FetchResult struct {
	Records      []*types.RawRecord
	MaxPublished *time.Time
	MaxID        int64
	Filtered     int
}

// Collect drains a fetch and keeps only records published strictly after
// the bound. Records received before a provider error are returned with it.
func Collect(ctx context.Context, src Source, bound Bound) (FetchResult, error) {
	var result FetchResult
	filter := NewTimeFilter(src.Name(), bound.After)

	itemChan, errChan := src.Fetch(ctx, bound)
	for record := range itemChan {
		if id, err := strconv.ParseInt(record.ExternalID, 10, 64); err == nil && id > result.MaxID {
			result.MaxID = id
		}

		if err := filter.FilterAfter(record.PublishedAt, record.DedupKey); err != nil {
			result.Filtered++
			slog.Debug("Dropped record at lower bound", "source", src.Name(), "error", err)
			continue
		}

		if result.MaxPublished == nil || record.PublishedAt.After(*result.MaxPublished) {
			published := record.PublishedAt
			result.MaxPublished = &published
		}
		result.Records = append(result.Records, record)
	}

	if err := <-errChan; err != nil {
		return result, fmt.Errorf("failed to fetch %s: %w", src.Name(), err)
	}

	slog.Debug("Collected records", "source", src.Name(), "provider", src.Provider(),
		"count", len(result.Records), "filtered", result.Filtered)
	return result, nil
}

type recordFields struct {
	externalID string
	url        string
	title      string
	summary    string
	sourceName string
	symbols    []string
	published  time.Time
	payload    json.RawMessage
}

func newRecord(provider types.Provider, source string, f recordFields) *types.RawRecord {
	return &types.RawRecord{
		Provider:    provider,
		Source:      source,
		ExternalID:  f.externalID,
		DedupKey:    utils.DedupKey(string(provider), f.url, f.externalID),
		URL:         strings.TrimSpace(f.url),
		Title:       strings.TrimSpace(f.title),
		Summary:     utils.StripHTML(f.summary, 2000),
		SourceName:  f.sourceName,
		Symbols:     splitSymbols(f.symbols),
		Payload:     f.payload,
		PublishedAt: f.published.UTC(),
		FetchedAt:   time.Now().UTC(),
		Status:      types.StatusPending,
	}
}

func splitSymbols(raw []string) []string {
	var symbols []string
	for _, entry := range raw {
		for _, s := range strings.Split(entry, ",") {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				symbols = append(symbols, s)
			}
		}
	}
	return symbols
}

// send delivers a record unless the context is cancelled first.
func send(ctx context.Context, itemChan chan<- *types.RawRecord, record *types.RawRecord) bool {
	select {
	case itemChan <- record:
		return true
	case <-ctx.Done():
		return false
	}
}
