package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/feeds"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"newswire/internal/cache"
	"newswire/internal/storage"
	"newswire/internal/types"
)

const (
	TypeRSS  = "rss"
	TypeAtom = "atom"
	TypeJSON = "json"
)

type Config struct {
	Port     string
	FeedSize int
	Window   time.Duration
	CacheTTL time.Duration
}

// Server exposes health, metrics, store statistics and a feed of the
// articles that passed the taxonomy whitelist.
type Server struct {
	name     string
	config   Config
	store    storage.StorageInterface
	included []string
	feeds    *cache.Cache[string, string]
	server   *http.Server
	now      func() time.Time
}

func New(name string, config Config, store storage.StorageInterface, included []string) *Server {
	if config.Port == "" {
		config.Port = "9090"
	}
	if config.FeedSize == 0 {
		config.FeedSize = 100
	}
	if config.Window == 0 {
		config.Window = 24 * time.Hour
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = time.Minute
	}

	return &Server{
		name:     name,
		config:   config,
		store:    store,
		included: included,
		feeds:    cache.NewCache[string, string](cache.CacheConfig{TTL: config.CacheTTL}, func(k string) string { return k }),
		now:      time.Now,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/feed.rss", s.feedHandler(TypeRSS))
	mux.HandleFunc("/feed.atom", s.feedHandler(TypeAtom))
	mux.HandleFunc("/feed.json", s.feedHandler(TypeJSON))
	return mux
}

func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              ":" + s.config.Port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("HTTP server starting", "name", s.name, "port", s.config.Port)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "name", s.name, "error", err)
		}
	}()

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.store.GetConnection().PingContext(r.Context()); err != nil {
		slog.Warn("Health check failed", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{
		"status": status,
		"name":   s.name,
		"time":   s.now().UTC().Format(time.RFC3339),
	})
}

type statsResponse struct {
	Raw        types.RawStats    `json:"raw"`
	Labels     map[string]int    `json:"labels"`
	Watermarks []types.Watermark `json:"watermarks"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw, err := s.store.Raw().Stats(ctx)
	if err != nil {
		httpError(w, "failed to read raw stats", err)
		return
	}
	labels, err := s.store.Articles().LabelCounts(ctx)
	if err != nil {
		httpError(w, "failed to read label counts", err)
		return
	}
	watermarks, err := s.store.Watermarks().List(ctx)
	if err != nil {
		httpError(w, "failed to read fetch state", err)
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{Raw: raw, Labels: labels, Watermarks: watermarks})
}

func (s *Server) feedHandler(feedType string) http.HandlerFunc {
	contentTypes := map[string]string{
		TypeRSS:  "application/rss+xml; charset=utf-8",
		TypeAtom: "application/atom+xml; charset=utf-8",
		TypeJSON: "application/feed+json; charset=utf-8",
	}

	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := s.feeds.Get(feedType)
		if !ok {
			var err error
			body, err = s.renderFeed(r.Context(), feedType)
			if err != nil {
				httpError(w, "failed to render feed", err)
				return
			}
			s.feeds.Set(feedType, body)
		}

		w.Header().Set("Content-Type", contentTypes[feedType])
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(s.config.CacheTTL.Seconds())))
		fmt.Fprint(w, body)
	}
}

func (s *Server) renderFeed(ctx context.Context, feedType string) (string, error) {
	since := s.now().Add(-s.config.Window)
	articles, err := s.store.Articles().ListIncluded(ctx, s.included, since, s.config.FeedSize)
	if err != nil {
		return "", err
	}

	feed := s.buildFeed(articles)
	switch feedType {
	case TypeAtom:
		return feed.ToAtom()
	case TypeJSON:
		return feed.ToJSON()
	default:
		return feed.ToRss()
	}
}

func (s *Server) buildFeed(articles []*types.Article) *feeds.Feed {
	items := make([]*feeds.Item, 0, len(articles))
	for _, a := range articles {
		title := a.Title
		if len(a.SecondaryLabels) > 0 {
			title = fmt.Sprintf("%s [%s]", title, strings.Join(a.SecondaryLabels, ", "))
		}
		items = append(items, &feeds.Item{
			Id:          fmt.Sprintf("%s:%s", a.Provider, a.ExternalRef),
			Title:       title,
			Link:        &feeds.Link{Href: a.URL},
			Description: a.Summary,
			Author:      &feeds.Author{Name: a.SourceLabel},
			Created:     a.PublishedAt,
			Updated:     a.UpdatedAt,
		})
	}

	return &feeds.Feed{
		Title:       fmt.Sprintf("%s classified news", s.name),
		Link:        &feeds.Link{Href: "http://localhost:" + s.config.Port + "/"},
		Description: "Financial news that passed classification",
		Author:      &feeds.Author{Name: s.name},
		Created:     s.now().UTC(),
		Items:       items,
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func httpError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	http.Error(w, msg, http.StatusInternalServerError)
}
