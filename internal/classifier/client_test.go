package classifier

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"newswire/internal/types"
)

type scriptedBackend struct {
	mu       sync.Mutex
	calls    int
	prompts  []string
	handler  func(call int, req Request) (string, error)
	inFlight int32
	maxSeen  int32
}

func (b *scriptedBackend) Name() string { return "scripted" }

func (b *scriptedBackend) Chat(ctx context.Context, req Request) (string, error) {
	n := atomic.AddInt32(&b.inFlight, 1)
	defer atomic.AddInt32(&b.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&b.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&b.maxSeen, seen, n) {
			break
		}
	}

	b.mu.Lock()
	b.calls++
	call := b.calls
	b.prompts = append(b.prompts, req.Prompt)
	b.mu.Unlock()

	return b.handler(call, req)
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func newTestClient(t *testing.T, backend Backend, opts Options) (*Client, *sleepRecorder) {
	t.Helper()
	if opts.Labels == nil {
		opts.Labels = []string{"CORPORATE_EARNINGS", "CORPORATE_ACTIONS"}
	}
	c, err := NewClient(backend, NewLocalLimiter(1), opts, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	rec := &sleepRecorder{}
	c.sleep = rec.sleep
	return c, rec
}

func items(n int) []Item {
	out := make([]Item, n)
	for i := range out {
		out[i] = Item{ID: fmt.Sprint(i + 1), Title: fmt.Sprintf("Headline %d", i+1)}
	}
	return out
}

// echoLabels answers every item in the prompt with CORPORATE_EARNINGS.
func echoLabels(call int, req Request) (string, error) {
	var parts []string
	for i := 1; i <= 20; i++ {
		if strings.Contains(req.Prompt, fmt.Sprintf(`"id":"%d"`, i)) {
			parts = append(parts, fmt.Sprintf(`{"id": "%d", "label": "corporate earnings", "entities": ["aapl"]}`, i))
		}
	}
	return "[" + strings.Join(parts, ",") + "]", nil
}

func TestClassifyBatchesWithDelay(t *testing.T) {
	t.Parallel()

	backend := &scriptedBackend{handler: echoLabels}
	c, rec := newTestClient(t, backend, Options{BatchSize: 5, DelayBetweenBatches: 2 * time.Second})

	results := c.Classify(context.Background(), items(12))
	if len(results) != 12 {
		t.Fatalf("Classify() = %d results, want 12", len(results))
	}
	if backend.calls != 3 {
		t.Errorf("backend calls = %d, want 3", backend.calls)
	}
	if len(rec.delays) != 2 || rec.delays[0] != 2*time.Second {
		t.Errorf("delays = %v, want two 2s pauses", rec.delays)
	}

	for i, r := range results {
		if !r.OK() {
			t.Errorf("result %d error = %v", i, r.Err)
			continue
		}
		if r.ID != fmt.Sprint(i+1) || r.Label != "CORPORATE_EARNINGS" || r.Entities[0] != "AAPL" {
			t.Errorf("result %d = %+v", i, r)
		}
	}
}

func TestClassifyRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	backend := &scriptedBackend{handler: func(call int, req Request) (string, error) {
		if call <= 2 {
			return "", types.NewStatusError(429, "slow down")
		}
		return echoLabels(call, req)
	}}
	c, rec := newTestClient(t, backend, Options{MaxRetries: 2, RetryDelay: 5 * time.Second})

	results := c.ClassifyBatch(context.Background(), items(2))
	if !results[0].OK() || !results[1].OK() {
		t.Fatalf("results = %+v", results)
	}
	if backend.calls != 3 {
		t.Errorf("backend calls = %d, want 3", backend.calls)
	}
	want := []time.Duration{5 * time.Second, 10 * time.Second}
	if len(rec.delays) != 2 || rec.delays[0] != want[0] || rec.delays[1] != want[1] {
		t.Errorf("delays = %v, want %v", rec.delays, want)
	}
}

func TestClassifyRetriesExhausted(t *testing.T) {
	t.Parallel()

	backend := &scriptedBackend{handler: func(int, Request) (string, error) {
		return "", types.NewStatusError(503, "unavailable")
	}}
	c, _ := newTestClient(t, backend, Options{MaxRetries: 2, RetryDelay: time.Second})

	results := c.ClassifyBatch(context.Background(), items(3))
	if backend.calls != 3 {
		t.Errorf("backend calls = %d, want 3", backend.calls)
	}
	for _, r := range results {
		if r.OK() || r.Err.Code != types.CodeRetriesExhausted {
			t.Errorf("result = %+v, want retries_exhausted", r)
		}
	}
}

func TestClassifyPermanentFailureIsNotRetried(t *testing.T) {
	t.Parallel()

	backend := &scriptedBackend{handler: func(int, Request) (string, error) {
		return "", types.NewStatusError(400, "bad request")
	}}
	c, rec := newTestClient(t, backend, Options{MaxRetries: 2, RetryDelay: time.Second})

	results := c.ClassifyBatch(context.Background(), items(1))
	if backend.calls != 1 || len(rec.delays) != 0 {
		t.Errorf("calls = %d delays = %v, want a single attempt", backend.calls, rec.delays)
	}
	if results[0].Err == nil || results[0].Err.Code != "http_400" {
		t.Errorf("result = %+v", results[0])
	}
}

func TestClassifyTimeoutIsRetried(t *testing.T) {
	t.Parallel()

	backend := &scriptedBackend{handler: func(call int, req Request) (string, error) {
		if call == 1 {
			time.Sleep(50 * time.Millisecond)
			return "", context.DeadlineExceeded
		}
		return echoLabels(call, req)
	}}
	c, _ := newTestClient(t, backend, Options{MaxRetries: 1, Timeout: 10 * time.Millisecond})

	results := c.ClassifyBatch(context.Background(), items(1))
	if !results[0].OK() {
		t.Errorf("result = %+v, want success after timeout retry", results[0])
	}
	if backend.calls != 2 {
		t.Errorf("backend calls = %d, want 2", backend.calls)
	}
}

func TestClassifyResponseShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		response string
		wantCode string
		wantOK   []bool
	}{
		{
			name:     "fenced array",
			response: "```json\n[{\"id\": \"1\", \"label\": \"corporate-actions\"}, {\"id\": 2, \"label\": \"X\"}]\n```",
			wantOK:   []bool{true, true},
		},
		{
			name:     "results object",
			response: `{"results": [{"id": "1", "label": "corporate actions"}, {"id": "2", "label": "corporate actions"}]}`,
			wantOK:   []bool{true, true},
		},
		{
			name:     "legacy field names",
			response: `[{"news_id": 1, "primary_category": "CORPORATE_ACTIONS", "secondary_category": "AAPL, TSLA"}, {"news_id": 2, "primary_category": "X"}]`,
			wantOK:   []bool{true, true},
		},
		{
			name:     "missing item",
			response: `[{"id": "1", "label": "CORPORATE_ACTIONS"}]`,
			wantCode: types.CodeMissingResult,
			wantOK:   []bool{true, false},
		},
		{
			name:     "error payload",
			response: `{"error": {"code": "1301", "message": "content filtered"}}`,
			wantCode: types.CodeProviderError,
			wantOK:   []bool{false, false},
		},
		{
			name:     "not json",
			response: "I cannot help with that.",
			wantCode: types.CodeMalformedResponse,
			wantOK:   []bool{false, false},
		},
		{
			name:     "prose around array",
			response: `Here you go: [{"id": "1", "label": "A"}, {"id": "2", "label": "B"}] Hope it helps.`,
			wantOK:   []bool{true, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &scriptedBackend{handler: func(int, Request) (string, error) { return tt.response, nil }}
			c, _ := newTestClient(t, backend, Options{})

			results := c.ClassifyBatch(context.Background(), items(2))
			for i, r := range results {
				if r.OK() != tt.wantOK[i] {
					t.Errorf("result %d OK = %v, want %v (%+v)", i, r.OK(), tt.wantOK[i], r.Err)
				}
				if !r.OK() && r.Err.Code != tt.wantCode {
					t.Errorf("result %d code = %s, want %s", i, r.Err.Code, tt.wantCode)
				}
			}
		})
	}
}

func TestClassifyNormalizesLabels(t *testing.T) {
	t.Parallel()

	backend := &scriptedBackend{handler: func(int, Request) (string, error) {
		return `[{"news_id": 1, "primary_category": " corporate -- actions ", "secondary_category": "aapl, tsla"}]`, nil
	}}
	c, _ := newTestClient(t, backend, Options{})

	r := c.ClassifyBatch(context.Background(), items(1))[0]
	if r.Label != "CORPORATE_ACTIONS" {
		t.Errorf("Label = %q, want CORPORATE_ACTIONS", r.Label)
	}
	if r.RawLabel != "corporate -- actions" {
		t.Errorf("RawLabel = %q, want the model's text", r.RawLabel)
	}
	if len(r.Entities) != 2 || r.Entities[1] != "TSLA" {
		t.Errorf("Entities = %v", r.Entities)
	}
}

func TestPromptListsTaxonomy(t *testing.T) {
	t.Parallel()

	backend := &scriptedBackend{handler: echoLabels}
	c, _ := newTestClient(t, backend, Options{Labels: []string{"ALPHA", "BETA"}})
	c.ClassifyBatch(context.Background(), []Item{{ID: "9", Title: "Chipmaker beats estimates"}})

	prompt := backend.prompts[0]
	for _, want := range []string{"- ALPHA", "- BETA", "Chipmaker beats estimates", `"id":"9"`} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestLimiterSerializesCalls(t *testing.T) {
	t.Parallel()

	backend := &scriptedBackend{handler: func(call int, req Request) (string, error) {
		time.Sleep(5 * time.Millisecond)
		return echoLabels(call, req)
	}}
	c, _ := newTestClient(t, backend, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.ClassifyBatch(context.Background(), items(1))
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&backend.maxSeen); got != 1 {
		t.Errorf("max concurrent calls = %d, want 1", got)
	}
}

func TestCompleteUsesRetryPolicy(t *testing.T) {
	t.Parallel()

	backend := &scriptedBackend{handler: func(call int, req Request) (string, error) {
		if call == 1 {
			return "", types.NewStatusError(500, "boom")
		}
		return "summary text", nil
	}}
	c, _ := newTestClient(t, backend, Options{MaxRetries: 1})

	text, err := c.Complete(context.Background(), "system", "summarize")
	if err != nil || text != "summary text" {
		t.Errorf("Complete() = %q, %v", text, err)
	}
}

func TestCancelledContextStopsBatches(t *testing.T) {
	t.Parallel()

	backend := &scriptedBackend{handler: echoLabels}
	c, _ := newTestClient(t, backend, Options{BatchSize: 1, DelayBetweenBatches: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := c.Classify(ctx, items(3))
	if len(results) != 3 {
		t.Fatalf("Classify() = %d results, want 3", len(results))
	}
	for _, r := range results[1:] {
		if r.OK() {
			t.Error("result after cancellation succeeded")
		}
	}
}
