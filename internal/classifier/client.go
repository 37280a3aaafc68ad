package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"newswire/internal/types"
)

// Request is one chat completion sent to a Backend.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	JSON        bool
}

// Backend performs a single call to a language model endpoint. HTTP
// failures are reported as *types.ClassifierError.
type Backend interface {
	Name() string
	Chat(ctx context.Context, req Request) (string, error)
}

// Item is what the model sees of a record.
type Item struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Source  string `json:"source,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// Result is the outcome for one item. Label is normalized but not checked
// against the taxonomy, RawLabel keeps the model's text. Err is set when no
// label could be obtained.
type Result struct {
	ID       string
	Label    string
	RawLabel string
	Entities []string
	Err      *types.ClassifierError
}

func (r Result) OK() bool {
	return r.Err == nil
}

type Options struct {
	Labels              []string
	BatchSize           int
	MaxRetries          int
	RetryDelay          time.Duration
	DelayBetweenBatches time.Duration
	Timeout             time.Duration
	Temperature         float64
	PromptTemplate      string
}

type Client struct {
	backend Backend
	limiter Limiter
	prompts *PromptBuilder
	opts    Options
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewClient(backend Backend, limiter Limiter, opts Options, logger *slog.Logger) (*Client, error) {
	if backend == nil {
		return nil, fmt.Errorf("classifier backend is required")
	}
	if limiter == nil {
		limiter = NewLocalLimiter(1)
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 5
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	prompts, err := NewPromptBuilder(opts.PromptTemplate)
	if err != nil {
		return nil, err
	}

	return &Client{
		backend: backend,
		limiter: limiter,
		prompts: prompts,
		opts:    opts,
		logger:  logger.With("component", "classifier", "backend", backend.Name()),
		sleep:   sleepContext,
	}, nil
}

// Classify sends items in batches and returns exactly one result per item,
// in input order.
func (c *Client) Classify(ctx context.Context, items []Item) []Result {
	results := make([]Result, 0, len(items))

	for start := 0; start < len(items); start += c.opts.BatchSize {
		end := start + c.opts.BatchSize
		if end > len(items) {
			end = len(items)
		}

		if start > 0 && c.opts.DelayBetweenBatches > 0 {
			if err := c.sleep(ctx, c.opts.DelayBetweenBatches); err != nil {
				return append(results, failAll(items[start:], transportError(err))...)
			}
		}

		c.logger.Debug("Classifying batch", "batch", start/c.opts.BatchSize+1, "size", end-start)
		results = append(results, c.ClassifyBatch(ctx, items[start:end])...)
	}

	return results
}

// ClassifyBatch classifies up to one batch of items with a single call.
func (c *Client) ClassifyBatch(ctx context.Context, items []Item) []Result {
	if len(items) == 0 {
		return nil
	}

	prompt, err := c.prompts.Build(c.opts.Labels, items)
	if err != nil {
		return failAll(items, &types.ClassifierError{Code: types.CodeMalformedResponse, Message: err.Error()})
	}

	text, err := c.call(ctx, Request{
		System:      systemPrompt,
		Prompt:      prompt,
		Temperature: c.opts.Temperature,
		JSON:        true,
	})
	if err != nil {
		return failAll(items, asClassifierError(err))
	}

	parsed, perr := parseResponse(text)
	if perr != nil {
		c.logger.Warn("Unusable classifier response", "code", perr.Code, "error", perr.Message)
		return failAll(items, perr)
	}

	results := make([]Result, len(items))
	for i, item := range items {
		r, ok := parsed[item.ID]
		if !ok {
			results[i] = Result{ID: item.ID, Err: &types.ClassifierError{
				Code:    types.CodeMissingResult,
				Message: "no result for item " + item.ID,
			}}
			continue
		}
		results[i] = r
	}
	return results
}

// Complete runs a free form prompt through the same gate and retry policy.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	return c.call(ctx, Request{
		System:      system,
		Prompt:      prompt,
		Temperature: c.opts.Temperature,
	})
}

func (c *Client) call(ctx context.Context, req Request) (string, error) {
	for attempt := 1; ; attempt++ {
		text, err := c.once(ctx, req)
		if err == nil {
			return text, nil
		}

		if ctx.Err() != nil {
			return "", transportError(ctx.Err())
		}

		if !types.IsTransient(err) {
			return "", err
		}

		if attempt > c.opts.MaxRetries {
			return "", &types.ClassifierError{
				Code:      types.CodeRetriesExhausted,
				Message:   fmt.Sprintf("gave up after %d attempts: %v", attempt, err),
				Transient: true,
			}
		}

		delay := c.opts.RetryDelay * time.Duration(attempt)
		c.logger.Warn("Classifier call failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		if err := c.sleep(ctx, delay); err != nil {
			return "", transportError(err)
		}
	}
}

// once holds a limiter slot for the duration of a single backend call.
func (c *Client) once(ctx context.Context, req Request) (string, error) {
	release, err := c.limiter.Acquire(ctx)
	if err != nil {
		return "", transportError(err)
	}
	defer release()

	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	text, err := c.backend.Chat(callCtx, req)
	if err == nil {
		return text, nil
	}

	if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return "", &types.ClassifierError{
			Code:      types.CodeTimeout,
			Message:   fmt.Sprintf("no answer within %s", c.opts.Timeout),
			Transient: true,
		}
	}

	var ce *types.ClassifierError
	if errors.As(err, &ce) {
		return "", ce
	}
	return "", &types.ClassifierError{Code: types.CodeTransport, Message: err.Error(), Transient: true}
}

func failAll(items []Item, err *types.ClassifierError) []Result {
	results := make([]Result, len(items))
	for i, item := range items {
		results[i] = Result{ID: item.ID, Err: err}
	}
	return results
}

func asClassifierError(err error) *types.ClassifierError {
	var ce *types.ClassifierError
	if errors.As(err, &ce) {
		return ce
	}
	return transportError(err)
}

func transportError(err error) *types.ClassifierError {
	return &types.ClassifierError{Code: types.CodeTransport, Message: err.Error()}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
