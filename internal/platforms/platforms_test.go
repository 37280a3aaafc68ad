package platforms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"newswire/internal/classifier"
	"newswire/internal/types"
)

func TestOpenAIPlatformChat(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}

		var body struct {
			Model       string  `json:"model"`
			Temperature float64 `json:"temperature"`
			Messages    []struct {
				Role string `json:"role"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body.Model != "test-model" || body.Temperature != 0.3 || len(body.Messages) != 2 {
			t.Errorf("request = %+v", body)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "c1", "object": "chat.completion", "created": 1, "model": "test-model",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "[]"}}]}`))
	}))
	defer server.Close()

	p, err := NewOpenAIPlatform("test-key", server.URL, "test-model")
	if err != nil {
		t.Fatal(err)
	}

	text, err := p.Chat(context.Background(), classifier.Request{System: "sys", Prompt: "hi", Temperature: 0.3})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if text != "[]" {
		t.Errorf("Chat() = %q", text)
	}
}

func TestOpenAIPlatformStatusErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status    int
		code      string
		transient bool
	}{
		{http.StatusTooManyRequests, types.CodeRateLimited, true},
		{http.StatusBadGateway, "http_502", true},
		{http.StatusBadRequest, "http_400", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error": {"message": "nope", "type": "test"}}`))
			}))
			defer server.Close()

			p, _ := NewOpenAIPlatform("k", server.URL, "m")
			_, err := p.Chat(context.Background(), classifier.Request{Prompt: "x"})

			var ce *types.ClassifierError
			if !errors.As(err, &ce) {
				t.Fatalf("Chat() error = %v, want ClassifierError", err)
			}
			if ce.Code != tt.code || ce.Transient != tt.transient {
				t.Errorf("error = %+v", ce)
			}
		})
	}
}

func TestOllamaPlatformChat(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["format"] != "json" {
			t.Errorf("format = %v", body["format"])
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Write([]byte(`{"model": "llama", "message": {"role": "assistant", "content": "[{\"id\": \"1\"}]"}, "done": true}` + "\n"))
	}))
	defer server.Close()

	p, err := NewOllamaPlatform(server.URL, "llama")
	if err != nil {
		t.Fatal(err)
	}

	text, err := p.Chat(context.Background(), classifier.Request{Prompt: "x", JSON: true})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if text != `[{"id": "1"}]` {
		t.Errorf("Chat() = %q", text)
	}
}

func TestOllamaPlatformStatusError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	p, _ := NewOllamaPlatform(server.URL, "llama")
	_, err := p.Chat(context.Background(), classifier.Request{Prompt: "x"})
	if !types.IsTransient(err) {
		t.Errorf("Chat() error = %v, want transient", err)
	}
}

func TestSplitMessage(t *testing.T) {
	t.Parallel()

	content := strings.Repeat("line of text\n", 300)
	chunks := splitMessage(content, 2000)
	if len(chunks) < 2 {
		t.Fatalf("splitMessage() = %d chunks", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 2000 {
			t.Errorf("chunk %d has %d bytes", i, len(c))
		}
	}
	if got := strings.Join(chunks, "\n"); strings.Count(got, "line of text") != 300 {
		t.Error("content lost while splitting")
	}

	if chunks := splitMessage("short", 2000); len(chunks) != 1 {
		t.Errorf("splitMessage(short) = %v", chunks)
	}
}

func TestNewPlatformValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewOpenAIPlatform("", "", "m"); err == nil {
		t.Error("NewOpenAIPlatform() without key succeeded")
	}
	if _, err := NewOllamaPlatform("http://localhost:11434", ""); err == nil {
		t.Error("NewOllamaPlatform() without model succeeded")
	}
	if _, err := NewDiscordPlatform("token", "", 0); err == nil {
		t.Error("NewDiscordPlatform() without channel succeeded")
	}
}
