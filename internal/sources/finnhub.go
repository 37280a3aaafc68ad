package sources

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"newswire/internal/types"
	"newswire/internal/utils"
)

const defaultFinnhubURL = "https://finnhub.io/api/v1"

type finnhubArticle struct {
	Category string `json:"category"`
	Datetime int64  `json:"datetime"`
	Headline string `json:"headline"`
	ID       int64  `json:"id"`
	Image    string `json:"image"`
	Related  string `json:"related"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

// FinnhubSource reads the market news feed of one category. The endpoint
// returns the latest articles only, so the time bound is applied locally and
// the id bound is passed as minId.
type FinnhubSource struct {
	name       string
	category   string
	token      string
	baseURL    string
	httpClient *http.Client
	maxItems   int
}

func NewFinnhubSource(name, category, token, baseURL string, timeout time.Duration, maxItems int) *FinnhubSource {
	if category == "" {
		category = "general"
	}
	if baseURL == "" {
		baseURL = defaultFinnhubURL
	}
	if maxItems == 0 {
		maxItems = 100
	}

	return &FinnhubSource{
		name:       name,
		category:   category,
		token:      token,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		maxItems:   maxItems,
	}
}

func (f *FinnhubSource) Name() string {
	return f.name
}

func (f *FinnhubSource) Provider() types.Provider {
	return types.ProviderFinnhub
}

func (f *FinnhubSource) Capability() Capability {
	return ClientSideFilter
}

func (f *FinnhubSource) UsesIDBound() bool {
	return true
}

func (f *FinnhubSource) Fetch(ctx context.Context, bound Bound) (<-chan *types.RawRecord, <-chan error) {
	itemChan := make(chan *types.RawRecord)
	errChan := make(chan error, 1)

	go func() {
		defer close(itemChan)
		defer close(errChan)

		params := url.Values{}
		params.Set("category", f.category)
		params.Set("token", f.token)
		if bound.AfterID > 0 {
			params.Set("minId", strconv.FormatInt(bound.AfterID, 10))
		}

		slog.Debug("Finnhub source fetching news", "source", f.name, "category", f.category, "min_id", bound.AfterID)

		var raw []json.RawMessage
		if err := getJSON(ctx, f.httpClient, "finnhub", f.baseURL+"/news", params, &raw); err != nil {
			errChan <- err
			return
		}

		records := make([]*types.RawRecord, 0, len(raw))
		for _, payload := range raw {
			var article finnhubArticle
			if err := json.Unmarshal(payload, &article); err != nil {
				slog.Warn("Finnhub source skipped undecodable article", "source", f.name, "error", err)
				continue
			}
			records = append(records, f.convert(article, payload))
		}
		records = utils.Keep(records, func(r *types.RawRecord) bool {
			return r.PublishedAt.After(bound.After)
		})

		// Truncation keeps the oldest records after the bound.
		sort.Slice(records, func(i, j int) bool {
			return records[i].PublishedAt.Before(records[j].PublishedAt)
		})

		if limit := minPositive(f.maxItems, bound.Limit); len(records) > limit {
			records = records[:limit]
		}

		slog.Debug("Finnhub source retrieved articles", "source", f.name, "count", len(records))

		for _, record := range records {
			if !send(ctx, itemChan, record) {
				errChan <- ctx.Err()
				return
			}
		}
	}()

	return itemChan, errChan
}

func (f *FinnhubSource) convert(article finnhubArticle, payload json.RawMessage) *types.RawRecord {
	var externalID string
	if article.ID != 0 {
		externalID = strconv.FormatInt(article.ID, 10)
	}

	var published time.Time
	if article.Datetime > 0 {
		published = time.Unix(article.Datetime, 0)
	}

	return newRecord(types.ProviderFinnhub, f.name, recordFields{
		externalID: externalID,
		url:        article.URL,
		title:      article.Headline,
		summary:    article.Summary,
		sourceName: article.Source,
		symbols:    []string{article.Related},
		published:  published,
		payload:    payload,
	})
}

// minPositive returns the smallest of the values greater than zero.
func minPositive(values ...int) int {
	result := 0
	for _, v := range values {
		if v > 0 && (result == 0 || v < result) {
			result = v
		}
	}
	return result
}
