package core

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"text/template"
	"time"

	"github.com/google/uuid"

	"newswire/internal/config"
	"newswire/internal/metrics"
	"newswire/internal/storage"
	"newswire/internal/types"
	"newswire/internal/utils"
)

// Completer runs a free form prompt through the classification gate.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Notifier delivers a finished summary.
type Notifier interface {
	Send(ctx context.Context, content string) error
}

const summarySystemPrompt = "You are a financial news editor. Write concise, factual market briefings in plain text."

const summaryPrompt = `Summarize the most important financial news between {{ .From }} and {{ .To }} (UTC).
Group the briefing by theme, lead with the items most likely to move markets, and keep it under 300 words.

Articles per category:
{{- range .Groups }}
- {{ .Label }}: {{ .Count }}
{{- end }}

Articles:
{{- range .Articles }}
[{{ .PrimaryLabel }}] {{ .Title }}{{ if .SourceLabel }} ({{ .SourceLabel }}){{ end }}{{ if .SecondaryLabels }} {{ join .SecondaryLabels "," }}{{ end }}
{{- end }}
`

type labelGroup struct {
	Label string
	Count int
}

type SummaryOptions struct {
	Window time.Duration
	Limit  int
}

// SummaryJob writes a briefing of the included articles of the last window.
type SummaryJob struct {
	articles  storage.ArticleStore
	summaries storage.SummaryStore
	completer Completer
	notifier  Notifier
	taxonomy  *config.Taxonomy
	opts      SummaryOptions
	prompt    *template.Template
	logger    *slog.Logger
	now       func() time.Time
}

func NewSummaryJob(articles storage.ArticleStore, summaries storage.SummaryStore, completer Completer, notifier Notifier, taxonomy *config.Taxonomy, opts SummaryOptions, logger *slog.Logger) (*SummaryJob, error) {
	if opts.Window <= 0 {
		opts.Window = 24 * time.Hour
	}
	if opts.Limit < 1 {
		opts.Limit = 200
	}
	if logger == nil {
		logger = slog.Default()
	}

	prompt, err := utils.ParseTemplate("summary", summaryPrompt)
	if err != nil {
		return nil, err
	}

	return &SummaryJob{
		articles:  articles,
		summaries: summaries,
		completer: completer,
		notifier:  notifier,
		taxonomy:  taxonomy,
		opts:      opts,
		prompt:    prompt,
		logger:    logger.With("component", "summary"),
		now:       time.Now,
	}, nil
}

func (j *SummaryJob) Name() string {
	return string(types.RunDigest)
}

func (j *SummaryJob) Run(ctx context.Context) (*types.RunSummary, error) {
	started := j.now()
	run := types.NewRunSummary(uuid.NewString(), types.RunDigest, started)
	defer func() {
		run.Duration = time.Since(started)
		metrics.ObserveRun(run)
	}()

	to := started.UTC()
	from := to.Add(-j.opts.Window)

	articles, err := j.articles.ListIncluded(ctx, j.taxonomy.Included(), from, j.opts.Limit)
	if err != nil {
		return run, fmt.Errorf("failed to list articles: %w", err)
	}
	sort.SliceStable(articles, func(a, b int) bool {
		return articles[a].PublishedAt.Before(articles[b].PublishedAt)
	})

	var content string
	if len(articles) == 0 {
		content = fmt.Sprintf("No significant news between %s and %s UTC.",
			from.Format("01/02 15:04"), to.Format("01/02 15:04"))
	} else {
		prompt, err := j.buildPrompt(from, to, articles)
		if err != nil {
			return run, err
		}
		content, err = j.completer.Complete(ctx, summarySystemPrompt, prompt)
		if err != nil {
			return run, fmt.Errorf("failed to generate summary: %w", err)
		}
	}

	summary := &types.Summary{
		PeriodStart:  from,
		PeriodEnd:    to,
		ArticleCount: len(articles),
		Content:      content,
	}
	if err := j.summaries.Save(ctx, summary); err != nil {
		return run, fmt.Errorf("failed to save summary: %w", err)
	}
	run.Classified = len(articles)

	j.logger.Info("Summary stored", "run_id", run.RunID, "summary_id", summary.ID,
		"articles", len(articles), "length", len(content))

	if j.notifier != nil {
		if err := j.notifier.Send(ctx, content); err != nil {
			j.logger.Warn("Failed to deliver summary", "summary_id", summary.ID, "error", err)
		}
	}

	return run, nil
}

func (j *SummaryJob) buildPrompt(from, to time.Time, articles []*types.Article) (string, error) {
	counts := make(map[string]int)
	for _, a := range articles {
		counts[a.PrimaryLabel]++
	}
	groups := make([]labelGroup, 0, len(counts))
	for label, n := range counts {
		groups = append(groups, labelGroup{Label: label, Count: n})
	}
	sort.Slice(groups, func(a, b int) bool {
		if groups[a].Count != groups[b].Count {
			return groups[a].Count > groups[b].Count
		}
		return groups[a].Label < groups[b].Label
	})

	var buf bytes.Buffer
	err := j.prompt.Execute(&buf, map[string]interface{}{
		"From":     from.Format(time.RFC3339),
		"To":       to.Format(time.RFC3339),
		"Groups":   groups,
		"Articles": articles,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render summary prompt: %w", err)
	}
	return buf.String(), nil
}
