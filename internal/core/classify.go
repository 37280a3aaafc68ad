package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"newswire/internal/classifier"
	"newswire/internal/config"
	"newswire/internal/metrics"
	"newswire/internal/storage"
	"newswire/internal/types"
)

// Classifier returns one result per item, in input order.
type Classifier interface {
	Classify(ctx context.Context, items []classifier.Item) []classifier.Result
}

type OrchestratorOptions struct {
	ProcessingLimit int
	ClaimLease      time.Duration
}

// Orchestrator moves staged records into the production store and sweeps
// production records whose label is not final.
type Orchestrator struct {
	raw      storage.RawStore
	articles storage.ArticleStore
	client   Classifier
	taxonomy *config.Taxonomy
	opts     OrchestratorOptions
	logger   *slog.Logger
}

func NewOrchestrator(raw storage.RawStore, articles storage.ArticleStore, client Classifier, taxonomy *config.Taxonomy, opts OrchestratorOptions, logger *slog.Logger) *Orchestrator {
	if opts.ProcessingLimit < 1 {
		opts.ProcessingLimit = 20
	}
	if opts.ClaimLease <= 0 {
		opts.ClaimLease = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		raw:      raw,
		articles: articles,
		client:   client,
		taxonomy: taxonomy,
		opts:     opts,
		logger:   logger.With("component", "orchestrator"),
	}
}

// outcome is the decision for one classified item.
type outcome struct {
	primary   string
	model     string
	detail    *string
	entities  []string
	rawFailed bool
}

// decide applies the taxonomy to a classifier result.
func (o *Orchestrator) decide(res classifier.Result) outcome {
	if !res.OK() {
		if res.Err.Code == types.CodeMissingResult {
			return outcome{primary: types.LabelUncategorized}
		}
		detail := res.Err.Error()
		return outcome{primary: types.LabelError, detail: &detail, rawFailed: true}
	}

	switch {
	case o.taxonomy.IsExcluded(res.Label):
		return outcome{primary: types.LabelExcluded, model: res.Label, entities: res.Entities}
	case o.taxonomy.IsAllowed(res.Label):
		return outcome{primary: res.Label, model: res.Label, entities: res.Entities}
	default:
		raw := res.RawLabel
		if raw == "" {
			raw = res.Label
		}
		detail := fmt.Sprintf("label %q is not in the taxonomy", raw)
		return outcome{primary: types.LabelError, model: res.Label, detail: &detail, entities: res.Entities, rawFailed: true}
	}
}

func count(summary *types.RunSummary, primary string) {
	switch primary {
	case types.LabelExcluded:
		summary.Excluded++
	case types.LabelError:
		summary.Errored++
	case types.LabelUncategorized:
		summary.Uncategorized++
	default:
		summary.Classified++
	}
}

// ProcessPending classifies one snapshot of pending staged records.
func (o *Orchestrator) ProcessPending(ctx context.Context) (*types.RunSummary, error) {
	started := time.Now()
	summary := types.NewRunSummary(uuid.NewString(), types.RunClassify, started)
	logger := o.logger.With("run_id", summary.RunID)

	pending, err := o.raw.FetchPending(ctx, o.opts.ProcessingLimit)
	if err != nil {
		return summary, fmt.Errorf("failed to fetch pending records: %w", err)
	}
	if len(pending) == 0 {
		logger.Debug("No pending records")
		return o.finish(summary, started), nil
	}

	token := uuid.NewString()
	claimed := make([]*types.RawRecord, 0, len(pending))
	for _, rec := range pending {
		ok, err := o.raw.Claim(ctx, rec.ID, token, o.opts.ClaimLease)
		if err != nil {
			logger.Error("Failed to claim record", "raw_id", rec.ID, "error", err)
			continue
		}
		if !ok {
			logger.Debug("Record claimed by another run", "raw_id", rec.ID)
			continue
		}

		if rec.Title == "" {
			if err := o.raw.MarkFailed(ctx, rec.ID, "record has no title"); err != nil {
				logger.Error("Failed to mark record", "raw_id", rec.ID, "error", err)
			}
			summary.Failed++
			continue
		}

		if o.settled(ctx, logger, rec) {
			if err := o.raw.MarkCompleted(ctx, rec.ID); err != nil {
				logger.Error("Failed to mark record", "raw_id", rec.ID, "error", err)
			}
			summary.SkippedDuplicate++
			continue
		}
		claimed = append(claimed, rec)
	}

	items := make([]classifier.Item, len(claimed))
	for i, rec := range claimed {
		items[i] = classifier.Item{
			ID:      classifier.ItemID(rec.ID),
			Title:   rec.Title,
			Source:  rec.SourceName,
			Summary: rec.Summary,
		}
	}

	results := o.client.Classify(ctx, items)
	for i, rec := range claimed {
		if ctx.Err() != nil {
			break
		}
		o.applyPending(ctx, logger, rec, results[i], summary)
	}

	o.finish(summary, started)
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (o *Orchestrator) applyPending(ctx context.Context, logger *slog.Logger, rec *types.RawRecord, res classifier.Result, summary *types.RunSummary) {
	out := o.decide(res)

	entities := out.entities
	if len(entities) == 0 {
		entities = rec.Symbols
	}

	article := &types.Article{
		RawID:           rec.ID,
		Provider:        rec.Provider,
		ExternalRef:     rec.ExternalRef(),
		URL:             rec.URL,
		Title:           rec.Title,
		Summary:         rec.Summary,
		SourceLabel:     rec.SourceName,
		PrimaryLabel:    out.primary,
		SecondaryLabels: entities,
		ModelLabel:      out.model,
		ErrorDetail:     out.detail,
		PublishedAt:     rec.PublishedAt,
	}
	err := o.articles.Upsert(ctx, article)
	if errors.Is(err, types.ErrAbsorbingLabel) {
		logger.Debug("Article already settled", "raw_id", rec.ID, "external_ref", article.ExternalRef)
		if err := o.raw.MarkCompleted(ctx, rec.ID); err != nil {
			logger.Error("Failed to mark record", "raw_id", rec.ID, "error", err)
		}
		summary.SkippedDuplicate++
		return
	}
	if err != nil {
		logger.Error("Failed to store article", "raw_id", rec.ID, "error", err)
		if err := o.raw.MarkFailed(ctx, rec.ID, err.Error()); err != nil {
			logger.Error("Failed to mark record", "raw_id", rec.ID, "error", err)
		}
		summary.Failed++
		return
	}

	if out.rawFailed {
		err = o.raw.MarkFailed(ctx, rec.ID, *out.detail)
	} else {
		err = o.raw.MarkCompleted(ctx, rec.ID)
	}
	if err != nil {
		logger.Error("Failed to update record status", "raw_id", rec.ID, "error", err)
	}

	count(summary, out.primary)
	logger.Debug("Record classified", "raw_id", rec.ID, "article_id", article.ID, "label", out.primary)
}

// settled reports whether the production row for rec already holds an
// ERROR or EXCLUDED label.
func (o *Orchestrator) settled(ctx context.Context, logger *slog.Logger, rec *types.RawRecord) bool {
	existing, err := o.articles.Get(ctx, rec.Provider, rec.ExternalRef())
	if errors.Is(err, types.ErrNotFound) {
		return false
	}
	if err != nil {
		logger.Warn("Failed to look up article", "raw_id", rec.ID, "error", err)
		return false
	}
	return types.IsAbsorbing(existing.PrimaryLabel)
}

// Reclassify sweeps one snapshot of production records whose label is
// neither a taxonomy label nor terminal.
func (o *Orchestrator) Reclassify(ctx context.Context) (*types.RunSummary, error) {
	started := time.Now()
	summary := types.NewRunSummary(uuid.NewString(), types.RunReclassify, started)
	logger := o.logger.With("run_id", summary.RunID)

	snapshot, err := o.articles.NeedingReclassification(ctx, o.taxonomy.Terminal(), o.opts.ProcessingLimit)
	if err != nil {
		return summary, fmt.Errorf("failed to list records for reclassification: %w", err)
	}
	if len(snapshot) == 0 {
		logger.Debug("Nothing to reclassify")
		return o.finish(summary, started), nil
	}

	token := uuid.NewString()
	var remaining []*types.Article
	for _, art := range snapshot {
		ok, err := o.articles.Claim(ctx, art.ID, token, o.opts.ClaimLease, o.taxonomy.Terminal())
		if err != nil {
			logger.Error("Failed to claim article", "article_id", art.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}

		if o.taxonomy.IsGeneric(art.PrimaryLabel) {
			o.update(ctx, logger, token, art, outcome{primary: types.LabelExcluded, model: art.PrimaryLabel}, summary)
			summary.Prefiltered++
			continue
		}

		if normalized := config.NormalizeLabel(art.PrimaryLabel); normalized != art.PrimaryLabel && o.taxonomy.IsAllowed(normalized) {
			o.update(ctx, logger, token, art, o.decide(classifier.Result{ID: classifier.ItemID(art.ID), Label: normalized, RawLabel: art.PrimaryLabel}), summary)
			summary.Normalized++
			continue
		}

		remaining = append(remaining, art)
	}

	items := make([]classifier.Item, len(remaining))
	for i, art := range remaining {
		items[i] = classifier.Item{
			ID:      classifier.ItemID(art.ID),
			Title:   art.Title,
			Source:  art.SourceLabel,
			Summary: art.Summary,
		}
	}

	results := o.client.Classify(ctx, items)
	for i, art := range remaining {
		if ctx.Err() != nil {
			break
		}
		o.update(ctx, logger, token, art, o.decide(results[i]), summary)
	}

	o.finish(summary, started)
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (o *Orchestrator) update(ctx context.Context, logger *slog.Logger, token string, art *types.Article, out outcome, summary *types.RunSummary) {
	entities := out.entities
	if len(entities) == 0 {
		entities = art.SecondaryLabels
	}

	err := o.articles.UpdateLabels(ctx, art.ID, storage.LabelUpdate{
		ClaimToken:      token,
		PrimaryLabel:    out.primary,
		SecondaryLabels: entities,
		ModelLabel:      out.model,
		ErrorDetail:     out.detail,
	})
	if errors.Is(err, types.ErrClaimLost) {
		logger.Warn("Claim lost before labels were written", "article_id", art.ID)
		return
	}
	if err != nil {
		logger.Error("Failed to update article labels", "article_id", art.ID, "error", err)
		summary.Failed++
		return
	}

	count(summary, out.primary)
	logger.Debug("Article relabelled", "article_id", art.ID, "from", art.PrimaryLabel, "to", out.primary)
}

// LogAttrs carries run_id, so finish logs through the component logger.
func (o *Orchestrator) finish(summary *types.RunSummary, started time.Time) *types.RunSummary {
	summary.Duration = time.Since(started)
	metrics.ObserveRun(summary)
	o.logger.Info("Classification run finished", summary.LogAttrs()...)
	return summary
}

// ClassifyJob runs the pending path and reports the remaining backlog.
type ClassifyJob struct {
	Orchestrator *Orchestrator
	Raw          storage.RawStore
}

func (j *ClassifyJob) Name() string {
	return string(types.RunClassify)
}

func (j *ClassifyJob) Run(ctx context.Context) (*types.RunSummary, error) {
	summary, err := j.Orchestrator.ProcessPending(ctx)
	if err != nil {
		return summary, err
	}

	if j.Raw != nil {
		if pending, err := j.Raw.CountPending(ctx); err == nil {
			metrics.SetPending(pending)
		}
	}
	return summary, nil
}

type ReclassifyJob struct {
	Orchestrator *Orchestrator
}

func (j *ReclassifyJob) Name() string {
	return string(types.RunReclassify)
}

func (j *ReclassifyJob) Run(ctx context.Context) (*types.RunSummary, error) {
	return j.Orchestrator.Reclassify(ctx)
}
