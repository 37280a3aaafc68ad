package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"newswire/internal/types"
)

const dateLayout = "2006-01-02"

// CompanyNewsSource reads company news for a fixed list of symbols. The
// endpoint filters by calendar date only, so records on the bound's day are
// returned again and dropped by Collect.
type CompanyNewsSource struct {
	name       string
	symbols    []string
	token      string
	baseURL    string
	httpClient *http.Client
	maxItems   int
	now        func() time.Time
}

func NewCompanyNewsSource(name string, symbols []string, token, baseURL string, timeout time.Duration, maxItems int) *CompanyNewsSource {
	if baseURL == "" {
		baseURL = defaultFinnhubURL
	}
	if maxItems == 0 {
		maxItems = 50
	}

	return &CompanyNewsSource{
		name:       name,
		symbols:    splitSymbols(symbols),
		token:      token,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		maxItems:   maxItems,
		now:        time.Now,
	}
}

func (c *CompanyNewsSource) Name() string {
	return c.name
}

func (c *CompanyNewsSource) Provider() types.Provider {
	return types.ProviderFinnhubCompany
}

func (c *CompanyNewsSource) Capability() Capability {
	return ServerSideFilter
}

func (c *CompanyNewsSource) Fetch(ctx context.Context, bound Bound) (<-chan *types.RawRecord, <-chan error) {
	itemChan := make(chan *types.RawRecord)
	errChan := make(chan error, 1)

	go func() {
		defer close(itemChan)
		defer close(errChan)

		from := bound.After.UTC().Format(dateLayout)
		to := c.now().UTC().Format(dateLayout)
		limit := minPositive(c.maxItems, bound.Limit)

		failures := 0
		for _, symbol := range c.symbols {
			if ctx.Err() != nil {
				errChan <- ctx.Err()
				return
			}

			articles, err := c.fetchSymbol(ctx, symbol, from, to)
			if err != nil {
				failures++
				slog.Error("Company news fetch failed", "source", c.name, "symbol", symbol, "error", err)
				continue
			}

			slog.Debug("Company news retrieved", "source", c.name, "symbol", symbol, "count", len(articles))

			if len(articles) > limit {
				articles = articles[:limit]
			}
			for _, record := range articles {
				if !send(ctx, itemChan, record) {
					errChan <- ctx.Err()
					return
				}
			}
		}

		if failures > 0 && failures == len(c.symbols) {
			errChan <- fmt.Errorf("company news failed for all %d symbols", failures)
		}
	}()

	return itemChan, errChan
}

func (c *CompanyNewsSource) fetchSymbol(ctx context.Context, symbol, from, to string) ([]*types.RawRecord, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("from", from)
	params.Set("to", to)
	params.Set("token", c.token)

	var raw []json.RawMessage
	if err := getJSON(ctx, c.httpClient, "finnhub", c.baseURL+"/company-news", params, &raw); err != nil {
		return nil, err
	}

	records := make([]*types.RawRecord, 0, len(raw))
	for _, payload := range raw {
		var article finnhubArticle
		if err := json.Unmarshal(payload, &article); err != nil {
			continue
		}

		var published time.Time
		if article.Datetime > 0 {
			published = time.Unix(article.Datetime, 0)
		}

		related := article.Related
		if related == "" {
			related = symbol
		}

		var externalID string
		if article.ID != 0 {
			externalID = fmt.Sprintf("%d", article.ID)
		}

		records = append(records, newRecord(types.ProviderFinnhubCompany, c.name, recordFields{
			externalID: externalID,
			url:        article.URL,
			title:      article.Headline,
			summary:    article.Summary,
			sourceName: article.Source,
			symbols:    []string{related},
			published:  published,
			payload:    payload,
		}))
	}
	return records, nil
}
