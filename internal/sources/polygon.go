package sources

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"newswire/internal/types"
)

const defaultPolygonURL = "https://api.polygon.io"

type polygonPublisher struct {
	Name     string `json:"name"`
	Homepage string `json:"homepage_url"`
}

type polygonArticle struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	Author       string           `json:"author"`
	ArticleURL   string           `json:"article_url"`
	PublishedUTC string           `json:"published_utc"`
	Tickers      []string         `json:"tickers"`
	Publisher    polygonPublisher `json:"publisher"`
}

type polygonResponse struct {
	Status  string            `json:"status"`
	Results []json.RawMessage `json:"results"`
	NextURL string            `json:"next_url"`
}

// PolygonSource reads the reference news endpoint with the bound applied
// server side (published_utc.gt), ascending, following next_url pages.
type PolygonSource struct {
	name       string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	maxItems   int
	pageSize   int
}

func NewPolygonSource(name, apiKey, baseURL string, timeout time.Duration, maxItems int) *PolygonSource {
	if baseURL == "" {
		baseURL = defaultPolygonURL
	}
	if maxItems == 0 {
		maxItems = 100
	}

	return &PolygonSource{
		name:       name,
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		maxItems:   maxItems,
		pageSize:   50,
	}
}

func (p *PolygonSource) Name() string {
	return p.name
}

func (p *PolygonSource) Provider() types.Provider {
	return types.ProviderPolygon
}

func (p *PolygonSource) Capability() Capability {
	return ServerSideFilter
}

func (p *PolygonSource) Fetch(ctx context.Context, bound Bound) (<-chan *types.RawRecord, <-chan error) {
	itemChan := make(chan *types.RawRecord)
	errChan := make(chan error, 1)

	go func() {
		defer close(itemChan)
		defer close(errChan)

		limit := minPositive(p.maxItems, bound.Limit)

		params := url.Values{}
		params.Set("published_utc.gt", bound.After.UTC().Format(time.RFC3339))
		params.Set("order", "asc")
		params.Set("sort", "published_utc")
		params.Set("limit", strconv.Itoa(minPositive(p.pageSize, limit)))
		params.Set("apiKey", p.apiKey)

		endpoint := p.baseURL + "/v2/reference/news"
		sent := 0
		for endpoint != "" && sent < limit {
			var page polygonResponse
			if err := getJSON(ctx, p.httpClient, "polygon", endpoint, params, &page); err != nil {
				errChan <- err
				return
			}

			slog.Debug("Polygon source retrieved page", "source", p.name, "count", len(page.Results))

			for _, payload := range page.Results {
				if sent >= limit {
					break
				}

				var article polygonArticle
				if err := json.Unmarshal(payload, &article); err != nil {
					slog.Warn("Polygon source skipped undecodable article", "source", p.name, "error", err)
					continue
				}

				if !send(ctx, itemChan, p.convert(article, payload)) {
					errChan <- ctx.Err()
					return
				}
				sent++
			}

			endpoint, params = p.nextPage(page.NextURL)
		}
	}()

	return itemChan, errChan
}

// nextPage keeps the cursor of next_url and re-attaches the key, which the
// API strips from it.
func (p *PolygonSource) nextPage(next string) (string, url.Values) {
	if next == "" {
		return "", nil
	}

	u, err := url.Parse(next)
	if err != nil {
		slog.Warn("Polygon source got invalid next_url", "source", p.name, "error", err)
		return "", nil
	}

	params := u.Query()
	params.Set("apiKey", p.apiKey)
	u.RawQuery = ""
	return u.String(), params
}

func (p *PolygonSource) convert(article polygonArticle, payload json.RawMessage) *types.RawRecord {
	var published time.Time
	if article.PublishedUTC != "" {
		t, err := time.Parse(time.RFC3339, article.PublishedUTC)
		if err != nil {
			slog.Warn("Polygon source got invalid published_utc", "source", p.name, "value", article.PublishedUTC)
		} else {
			published = t
		}
	}

	return newRecord(types.ProviderPolygon, p.name, recordFields{
		externalID: article.ID,
		url:        article.ArticleURL,
		title:      article.Title,
		summary:    article.Description,
		sourceName: article.Publisher.Name,
		symbols:    article.Tickers,
		published:  published,
		payload:    payload,
	})
}
