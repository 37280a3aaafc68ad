package sources

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"newswire/internal/config"
	"newswire/internal/sources/rss"
)

type Factory func(name string, cfg config.SourceConfig, timeout time.Duration) (Source, error)

var factories = map[string]Factory{}

func RegisterFactory(sourceType string, fn Factory) {
	factories[sourceType] = fn
}

func New(name string, cfg config.SourceConfig, timeout time.Duration) (Source, error) {
	fn, ok := factories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("source %s: unsupported type %q", name, cfg.Type)
	}
	return fn(name, cfg, timeout)
}

// NewAll builds every enabled source in name order.
func NewAll(cfg *config.Config) ([]Source, error) {
	names := make([]string, 0, len(cfg.Sources))
	for name, src := range cfg.Sources {
		if src.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	timeout := config.Duration(cfg.Fetch.Timeout)
	result := make([]Source, 0, len(names))
	for _, name := range names {
		src, err := New(name, cfg.Sources[name], timeout)
		if err != nil {
			return nil, err
		}
		slog.Info("Source configured", "source", name, "provider", src.Provider(), "filter", src.Capability())
		result = append(result, src)
	}
	return result, nil
}

func init() {
	RegisterFactory("finnhub", func(name string, cfg config.SourceConfig, timeout time.Duration) (Source, error) {
		token := config.GetSecret(cfg.Settings, "api_key_env", "FINNHUB_API_KEY")
		if token == "" {
			return nil, fmt.Errorf("source %s: finnhub api key is not set", name)
		}
		return NewFinnhubSource(name,
			config.GetString(cfg.Settings, "category", "general"),
			token,
			config.GetString(cfg.Settings, "base_url", ""),
			timeout,
			config.GetInt(cfg.Settings, "max_items", 0),
		), nil
	})

	RegisterFactory("finnhub_company", func(name string, cfg config.SourceConfig, timeout time.Duration) (Source, error) {
		token := config.GetSecret(cfg.Settings, "api_key_env", "FINNHUB_API_KEY")
		if token == "" {
			return nil, fmt.Errorf("source %s: finnhub api key is not set", name)
		}
		symbols := config.GetStringSlice(cfg.Settings, "symbols")
		if len(symbols) == 0 {
			return nil, fmt.Errorf("source %s: symbols are required", name)
		}
		return NewCompanyNewsSource(name, symbols, token,
			config.GetString(cfg.Settings, "base_url", ""),
			timeout,
			config.GetInt(cfg.Settings, "max_items", 0),
		), nil
	})

	RegisterFactory("polygon", func(name string, cfg config.SourceConfig, timeout time.Duration) (Source, error) {
		key := config.GetSecret(cfg.Settings, "api_key_env", "POLYGON_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("source %s: polygon api key is not set", name)
		}
		return NewPolygonSource(name, key,
			config.GetString(cfg.Settings, "base_url", ""),
			timeout,
			config.GetInt(cfg.Settings, "max_items", 0),
		), nil
	})

	RegisterFactory("rss", func(name string, cfg config.SourceConfig, timeout time.Duration) (Source, error) {
		list := rss.FeedList{
			Loader: config.GetString(cfg.Settings, "loader", "url"),
			Value:  config.GetString(cfg.Settings, "url", ""),
		}
		feeds, err := rss.LoadFeeds(list, config.GetInt(cfg.Settings, "max_items", 50))
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", name, err)
		}
		return NewRSSSource(name, feeds, timeout), nil
	})
}
