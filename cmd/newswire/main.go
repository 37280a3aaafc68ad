package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"newswire/internal/config"
	"newswire/internal/core"
	"newswire/internal/loader"
	"newswire/internal/state"
	"newswire/internal/types"
)

var (
	configPath = flag.String("config", "config.toml", "Path to configuration file")
	mode       = flag.String("mode", "daemon", "daemon, fetch, classify, reclassify, summary, stats, states, reset-failed, reset-state or prune")
	sourceName = flag.String("source", "", "Limit fetch to one source, or the source to reset")
	provider   = flag.String("provider", "", "Provider of the fetch state to reset")
	stale      = flag.Duration("stale", 0, "With -mode states, only list states not completed within this duration")
	days       = flag.Int("days", 30, "With -mode prune, delete processed raw records older than this many days")
)

func main() {
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		slog.Info("Received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setupLogging(cfg.App)
	slog.Info("Configuration loaded", "path", *configPath, "mode", *mode)

	if *sourceName != "" && *mode == "fetch" {
		if err := onlySource(cfg, *sourceName); err != nil {
			return err
		}
	}

	opts, err := optionsFor(*mode, cfg)
	if err != nil {
		return err
	}

	appState, err := loader.NewLoader(cfg).Initialize(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = appState.Close(closeCtx)
	}()

	switch *mode {
	case "daemon":
		return runDaemon(ctx, appState)
	case "fetch":
		if err := runJob(ctx, appState.Fetch); err != nil {
			return err
		}
		if cfg.Fetch.ClassifyAfter {
			return runJob(ctx, &core.ClassifyJob{Orchestrator: appState.Orchestrator, Raw: appState.Store.Raw()})
		}
		return nil
	case "classify":
		return runJob(ctx, &core.ClassifyJob{Orchestrator: appState.Orchestrator, Raw: appState.Store.Raw()})
	case "reclassify":
		return runJob(ctx, &core.ReclassifyJob{Orchestrator: appState.Orchestrator})
	case "summary":
		return runSummary(ctx, appState)
	case "stats":
		return printStats(ctx, appState)
	case "states":
		return printStates(ctx, appState)
	case "reset-failed":
		n, err := appState.Store.Raw().ResetFailed(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("reset %d failed records to pending\n", n)
		return nil
	case "reset-state":
		if *sourceName == "" || *provider == "" {
			return fmt.Errorf("reset-state needs -source and -provider")
		}
		if err := appState.Store.Watermarks().Reset(ctx, *sourceName, types.Provider(*provider)); err != nil {
			return err
		}
		fmt.Printf("reset fetch state %s/%s\n", *sourceName, *provider)
		return nil
	case "prune":
		if *days < 1 {
			return fmt.Errorf("-days must be at least 1")
		}
		n, err := appState.Store.Raw().DeleteProcessedOlderThan(ctx, time.Duration(*days)*24*time.Hour)
		if err != nil {
			return err
		}
		fmt.Printf("deleted %d processed raw records older than %d days\n", n, *days)
		return nil
	}
	return nil
}

func optionsFor(mode string, cfg *config.Config) (loader.Options, error) {
	switch mode {
	case "daemon":
		return loader.Options{Fetch: true, Classify: true, Summary: true, Server: true}, nil
	case "fetch":
		return loader.Options{Fetch: true, Classify: cfg.Fetch.ClassifyAfter}, nil
	case "classify", "reclassify":
		return loader.Options{Classify: true}, nil
	case "summary":
		cfg.Summary.Enabled = true
		return loader.Options{Summary: true}, nil
	case "stats", "states", "reset-failed", "reset-state", "prune":
		return loader.Options{}, nil
	default:
		return loader.Options{}, fmt.Errorf("unknown mode %q", mode)
	}
}

func onlySource(cfg *config.Config, name string) error {
	src, ok := cfg.Sources[name]
	if !ok {
		return fmt.Errorf("source %s is not configured", name)
	}
	src.Enabled = true
	cfg.Sources = map[string]config.SourceConfig{name: src}
	return nil
}

func setupLogging(cfg config.AppConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") {
		handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(handler).With("app", cfg.Name))
}

func runJob(ctx context.Context, job core.Job) error {
	summary, err := job.Run(ctx)
	if summary != nil {
		fmt.Print(summary.String())
	}
	return err
}

func runSummary(ctx context.Context, s *state.State) error {
	if err := runJob(ctx, s.Summary); err != nil {
		return err
	}
	latest, err := s.Store.Summaries().Latest(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("\n%s\n", latest.Content)
	return nil
}

func runDaemon(ctx context.Context, s *state.State) error {
	manager := core.NewBotManager()
	for job, interval := range s.Jobs() {
		bot := core.NewBot(core.BotConfig{
			Job:      job,
			Interval: config.Duration(interval),
			RunOnce:  s.Config.Schedule.RunOnce,
		})
		if err := manager.Register(bot); err != nil {
			return err
		}
	}
	slog.Info("Scheduler starting", "jobs", strings.Join(manager.List(), ","))

	errChan := make(chan error, 1)
	go func() {
		errChan <- manager.StartAll(ctx)
		close(errChan)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		slog.Info("Initiating shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		manager.StopAll()
		select {
		case <-errChan:
		case <-shutdownCtx.Done():
			slog.Warn("Jobs did not finish before the shutdown deadline")
		}
	}

	for _, st := range manager.Statuses() {
		slog.Info("Job stopped", "job", st.Name, "runs", st.Runs, "failures", st.Failures)
	}
	slog.Info("Scheduler stopped")
	return nil
}

func printStats(ctx context.Context, s *state.State) error {
	raw, err := s.Store.Raw().Stats(ctx)
	if err != nil {
		return err
	}
	labels, err := s.Store.Articles().LabelCounts(ctx)
	if err != nil {
		return err
	}
	sweep, err := s.Store.Articles().CountNeedingReclassification(ctx, s.Taxonomy.Terminal())
	if err != nil {
		return err
	}

	fmt.Printf("raw records: %d total, %d pending, %d completed, %d failed\n",
		raw.Total, raw.Pending, raw.Completed, raw.Failed)
	fmt.Printf("awaiting reclassification: %d\n\n", sweep)

	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LABEL\tARTICLES\tINCLUDED")
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%d\t%t\n", name, labels[name], s.Taxonomy.IsIncluded(name))
	}
	return w.Flush()
}

func printStates(ctx context.Context, s *state.State) error {
	var (
		states []types.Watermark
		err    error
	)
	if *stale > 0 {
		states, err = s.Store.Watermarks().Stale(ctx, time.Now().Add(-*stale))
	} else {
		states, err = s.Store.Watermarks().List(ctx)
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tPROVIDER\tLAST EVENT\tLAST ID\tCOMPLETED\tFETCHED\tSTAGED\tSTATUS\tERROR")
	for _, st := range states {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%d\t%d\t%s\t%s\n",
			st.Source, st.Provider, formatTime(st.LastEventAt), st.LastID, formatTime(st.LastFetchCompletedAt),
			st.ItemsFetched, st.ItemsStaged, st.Status, st.LastError)
	}
	return w.Flush()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
