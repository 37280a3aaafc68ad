package loader

import (
	"context"
	"fmt"
	"log/slog"

	"newswire/internal/cache"
	"newswire/internal/components"
	"newswire/internal/config"
	"newswire/internal/core"
	"newswire/internal/sources"
	"newswire/internal/state"

	_ "newswire/internal/storage/sqlite"
)

// Options selects which stages to build. Storage is always built.
type Options struct {
	Fetch    bool
	Classify bool
	Summary  bool
	Server   bool
}

type Loader struct {
	config *config.Config
}

func NewLoader(cfg *config.Config) *Loader {
	return &Loader{
		config: cfg,
	}
}

func (l *Loader) Initialize(ctx context.Context, opts Options) (*state.State, error) {
	taxonomy, err := config.NewTaxonomy(l.config.Taxonomy)
	if err != nil {
		return nil, err
	}

	registry := components.NewRegistry()
	slog.Info("Initializing components")

	if err := registry.Register(components.NewStorageComponent(l.config.Storage)); err != nil {
		return nil, fmt.Errorf("failed to register storage component: %w", err)
	}

	needsModel := opts.Classify || (opts.Summary && l.config.Summary.Enabled)
	if needsModel {
		if err := l.registerModel(registry, taxonomy); err != nil {
			return nil, err
		}
	}

	if opts.Server && l.config.Metrics.Enabled {
		serverComp := components.NewServerComponent(l.config.App.Name, l.config.Metrics, l.config.Summary.Window, taxonomy, registry)
		if err := registry.Register(serverComp); err != nil {
			return nil, fmt.Errorf("failed to register server component: %w", err)
		}
	}

	if err := registry.InitializeAll(ctx); err != nil {
		return nil, fmt.Errorf("component initialization failed: %w", err)
	}
	slog.Info("All components initialized")

	storageComp, err := components.Lookup[*components.StorageComponent](registry, components.StorageComponentName)
	if err != nil {
		_ = registry.CloseAll(ctx)
		return nil, err
	}
	appState := state.NewState(l.config, registry, taxonomy)
	appState.Store = storageComp.Store()

	if err := l.buildStages(appState, opts, needsModel); err != nil {
		_ = registry.CloseAll(ctx)
		return nil, err
	}
	return appState, nil
}

func (l *Loader) registerModel(registry *components.Registry, taxonomy *config.Taxonomy) error {
	cfg := l.config
	if err := registry.Register(components.NewPlatformComponent(cfg.Classifier, cfg.Summary)); err != nil {
		return fmt.Errorf("failed to register platform component: %w", err)
	}
	if err := registry.Register(components.NewLimiterComponent(cfg.Limiter, cfg.Classifier.ConcurrencyLimit)); err != nil {
		return fmt.Errorf("failed to register limiter component: %w", err)
	}
	if err := registry.Register(components.NewClassifierComponent(cfg.Classifier, taxonomy, registry)); err != nil {
		return fmt.Errorf("failed to register classifier component: %w", err)
	}
	return nil
}

func (l *Loader) buildStages(s *state.State, opts Options, needsModel bool) error {
	cfg := l.config
	logger := slog.Default()

	if opts.Fetch {
		srcs, err := sources.NewAll(cfg)
		if err != nil {
			return fmt.Errorf("failed to build sources: %w", err)
		}
		s.Fetch = core.NewFetchRunner(srcs, s.Store.Watermarks(), s.Store.Raw(), core.FetchOptions{
			Overlap:         config.Duration(cfg.Fetch.Overlap),
			BootstrapWindow: config.Duration(cfg.Fetch.BootstrapWindow),
			Limit:           cfg.Fetch.Limit,
			Seen:            cache.NewSeenKeys(2 * config.Duration(cfg.Fetch.BootstrapWindow)),
		}, logger)
	}

	if !needsModel {
		return nil
	}

	classifierComp, err := components.Lookup[*components.ClassifierComponent](s.Registry, components.ClassifierComponentName)
	if err != nil {
		return err
	}
	client := classifierComp.Client()

	if opts.Classify {
		s.Orchestrator = core.NewOrchestrator(s.Store.Raw(), s.Store.Articles(), client, s.Taxonomy, core.OrchestratorOptions{
			ProcessingLimit: cfg.Classifier.ProcessingLimit,
			ClaimLease:      config.Duration(cfg.Classifier.ClaimLease),
		}, logger)
	}

	if opts.Summary && cfg.Summary.Enabled {
		platformComp, err := components.Lookup[*components.PlatformComponent](s.Registry, components.PlatformComponentName)
		if err != nil {
			return err
		}
		var notifier core.Notifier
		if discord := platformComp.Discord(); discord != nil {
			notifier = discord
		}

		job, err := core.NewSummaryJob(s.Store.Articles(), s.Store.Summaries(), client, notifier, s.Taxonomy, core.SummaryOptions{
			Window: config.Duration(cfg.Summary.Window),
			Limit:  cfg.Summary.Limit,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to build summary job: %w", err)
		}
		s.Summary = job
	}

	return nil
}
