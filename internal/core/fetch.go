package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"newswire/internal/cache"
	"newswire/internal/metrics"
	"newswire/internal/sources"
	"newswire/internal/storage"
	"newswire/internal/types"
)

type FetchOptions struct {
	Overlap         time.Duration
	BootstrapWindow time.Duration
	Limit           int
	Parallelism     int
	Seen            *cache.SeenKeys
}

// FetchRunner pulls every configured source from its watermark and stages
// the results.
type FetchRunner struct {
	sources    []sources.Source
	watermarks storage.WatermarkStore
	raw        storage.RawStore
	opts       FetchOptions
	logger     *slog.Logger
	now        func() time.Time
}

func NewFetchRunner(srcs []sources.Source, watermarks storage.WatermarkStore, raw storage.RawStore, opts FetchOptions, logger *slog.Logger) *FetchRunner {
	if opts.BootstrapWindow <= 0 {
		opts.BootstrapWindow = 24 * time.Hour
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FetchRunner{
		sources:    srcs,
		watermarks: watermarks,
		raw:        raw,
		opts:       opts,
		logger:     logger.With("component", "fetch"),
		now:        time.Now,
	}
}

func (r *FetchRunner) Name() string {
	return string(types.RunFetch)
}

type sourceFetch struct {
	source sources.Source
	bound  sources.Bound
	result sources.FetchResult
	err    error
}

// Run fetches all sources concurrently, then stages and advances each one
// in turn. A failing source never stops the others.
func (r *FetchRunner) Run(ctx context.Context) (*types.RunSummary, error) {
	started := r.now()
	summary := types.NewRunSummary(uuid.NewString(), types.RunFetch, started)
	logger := r.logger.With("run_id", summary.RunID)

	fetches := make([]*sourceFetch, len(r.sources))
	var g errgroup.Group
	g.SetLimit(r.opts.Parallelism)

	for i, src := range r.sources {
		f := &sourceFetch{source: src}
		fetches[i] = f
		g.Go(func() error {
			f.bound, f.err = r.bound(ctx, src, started)
			if f.err != nil {
				return nil
			}
			logger.Debug("Fetching source", "source", src.Name(), "provider", src.Provider(),
				"after", f.bound.After, "after_id", f.bound.AfterID)
			f.result, f.err = sources.Collect(ctx, src, f.bound)
			return nil
		})
	}
	_ = g.Wait()

	for _, f := range fetches {
		r.stage(ctx, logger, f, summary)
	}

	summary.Duration = time.Since(started)
	metrics.ObserveRun(summary)
	r.logger.Info("Fetch run finished", summary.LogAttrs()...)

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (r *FetchRunner) bound(ctx context.Context, src sources.Source, now time.Time) (sources.Bound, error) {
	fallback := now.Add(-r.opts.BootstrapWindow)
	after, err := r.watermarks.LowerBound(ctx, src.Name(), src.Provider(), r.opts.Overlap, fallback)
	if err != nil {
		return sources.Bound{}, fmt.Errorf("failed to read watermark: %w", err)
	}

	bound := sources.Bound{After: after, Limit: r.opts.Limit}
	if idb, ok := src.(sources.IDBounded); ok && idb.UsesIDBound() {
		if bound.AfterID, err = r.watermarks.LastID(ctx, src.Name(), src.Provider()); err != nil {
			return sources.Bound{}, fmt.Errorf("failed to read id boundary: %w", err)
		}
	}
	return bound, nil
}

// stage writes the records of one source and moves its watermark. The
// watermark only moves when the fetch and every write succeeded.
func (r *FetchRunner) stage(ctx context.Context, logger *slog.Logger, f *sourceFetch, summary *types.RunSummary) {
	name, provider := f.source.Name(), f.source.Provider()
	records := f.result.Records

	summary.Fetched += len(records)
	metrics.ObserveFetch(name, provider, len(records))

	counts := types.FetchCounts{Fetched: len(records)}
	writeFailed := false
	for _, record := range records {
		if r.opts.Seen.Seen(record.DedupKey) {
			summary.SkippedDuplicate++
			metrics.ObserveStage(name, provider, types.StageSkippedDuplicate)
			continue
		}

		result, err := r.raw.Stage(ctx, record)
		if err != nil {
			logger.Error("Failed to stage record", "source", name, "dedup_key", record.DedupKey, "error", err)
			summary.Failed++
			writeFailed = true
			continue
		}
		r.opts.Seen.Mark(record.DedupKey)
		metrics.ObserveStage(name, provider, result)

		if result == types.StageSkippedDuplicate {
			summary.SkippedDuplicate++
			continue
		}
		summary.Staged++
		counts.Staged++
	}

	if f.err != nil {
		logger.Warn("Source failed", "source", name, "provider", provider, "staged", counts.Staged, "error", f.err)
		summary.AddProviderError(name, f.err)
		metrics.ObserveProviderError(name, provider)
		if err := r.watermarks.MarkFailed(ctx, name, provider, f.err.Error()); err != nil {
			logger.Error("Failed to record source failure", "source", name, "error", err)
		}
		return
	}

	if writeFailed {
		logger.Warn("Watermark held back after staging errors", "source", name)
		return
	}

	if f.result.MaxPublished != nil {
		advanced, err := r.watermarks.Advance(ctx, name, provider, *f.result.MaxPublished, counts)
		if err != nil {
			logger.Error("Failed to advance watermark", "source", name, "error", err)
			return
		}
		if advanced {
			metrics.SetWatermark(name, provider, *f.result.MaxPublished)
		}
	} else if err := r.watermarks.Touch(ctx, name, provider, counts); err != nil {
		logger.Error("Failed to record fetch", "source", name, "error", err)
		return
	}

	if idb, ok := f.source.(sources.IDBounded); ok && idb.UsesIDBound() && f.result.MaxID > 0 {
		if _, err := r.watermarks.AdvanceID(ctx, name, provider, f.result.MaxID); err != nil {
			logger.Error("Failed to advance id boundary", "source", name, "error", err)
		}
	}

	logger.Info("Source fetched", "source", name, "provider", provider,
		"fetched", counts.Fetched, "staged", counts.Staged, "filtered", f.result.Filtered)
}
