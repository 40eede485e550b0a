package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeGemini answers generateContent calls with reply and records the last request.
func fakeGemini(t *testing.T, status int, reply string, last *geminiRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/test-model:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "key" {
			t.Errorf("missing api key header")
		}
		if last != nil {
			body, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(body, last); err != nil {
				t.Errorf("invalid request body: %v", err)
			}
		}
		w.WriteHeader(status)
		io.WriteString(w, reply)
	}))
}

func candidate(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}},
		},
	})
	return string(b)
}

func TestSummarize(t *testing.T) {
	var req geminiRequest
	srv := fakeGemini(t, http.StatusOK, candidate("# Great Episode\n\nIt was great."), &req)
	defer srv.Close()

	c := NewGeminiClient("key", srv.URL, "test-model")
	summary, err := c.Summarize(context.Background(), "Ep 1", "en", "[00:01] hello")
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if !strings.HasPrefix(summary, "# Great Episode") {
		t.Errorf("unexpected summary: %q", summary)
	}

	prompt := req.Contents[0].Parts[0].Text
	if !strings.Contains(prompt, `"Ep 1"`) || !strings.Contains(prompt, "Write the summary in en.") || !strings.Contains(prompt, "[00:01] hello") {
		t.Errorf("prompt missing inputs: %s", prompt)
	}
	if req.GenerationConfig.ResponseMimeType != "" {
		t.Errorf("summary must be plain text, got %q", req.GenerationConfig.ResponseMimeType)
	}
}

func TestExtractEntities(t *testing.T) {
	var req geminiRequest
	reply := candidate("```json\n{\"entities\":[{\"name\":\"Ada Lovelace\",\"type\":\"Person\"},{\"name\":\"London\",\"type\":\"Location\"}]}\n```")
	srv := fakeGemini(t, http.StatusOK, reply, &req)
	defer srv.Close()

	entities, err := NewGeminiClient("key", srv.URL, "test-model").ExtractEntities(context.Background(), "transcript")
	if err != nil {
		t.Fatalf("ExtractEntities failed: %v", err)
	}
	if len(entities) != 2 || entities[0].Name != "Ada Lovelace" || entities[1].Type != "Location" {
		t.Errorf("unexpected entities: %+v", entities)
	}
	if req.GenerationConfig.ResponseMimeType != "application/json" || len(req.GenerationConfig.ResponseSchema) == 0 {
		t.Errorf("expected json response config, got %+v", req.GenerationConfig)
	}
}

func TestExtractTopics(t *testing.T) {
	var req geminiRequest
	srv := fakeGemini(t, http.StatusOK, candidate(`{"topics":["Generative AI","Climate Policy"]}`), &req)
	defer srv.Close()

	topics, err := NewGeminiClient("key", srv.URL, "test-model").ExtractTopics(context.Background(), "transcript", "de")
	if err != nil {
		t.Fatalf("ExtractTopics failed: %v", err)
	}
	if len(topics) != 2 || topics[1] != "Climate Policy" {
		t.Errorf("unexpected topics: %v", topics)
	}
	if !strings.Contains(req.Contents[0].Parts[0].Text, "following language: de.") {
		t.Error("prompt must carry the transcript language")
	}
}

func TestGeminiError(t *testing.T) {
	srv := fakeGemini(t, http.StatusBadRequest, `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`, nil)
	defer srv.Close()

	_, err := NewGeminiClient("key", srv.URL, "test-model").ExtractTopics(context.Background(), "t", "en")

	var gErr *GeminiError
	if !errors.As(err, &gErr) {
		t.Fatalf("expected GeminiError, got %v", err)
	}
	if gErr.Status != "INVALID_ARGUMENT" || gErr.Code != 400 {
		t.Errorf("unexpected error: %+v", gErr)
	}
}

func TestNoCandidates(t *testing.T) {
	srv := fakeGemini(t, http.StatusOK, `{"candidates":[]}`, nil)
	defer srv.Close()

	if _, err := NewGeminiClient("key", srv.URL, "test-model").Summarize(context.Background(), "t", "en", "x"); err == nil {
		t.Error("expected error for empty candidates")
	}
}

func TestNoAPIKey(t *testing.T) {
	_, err := NewGeminiClient("", "", "").Summarize(context.Background(), "t", "en", "x")
	if !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{`{"a":1}`, `{"a":1}`, false},
		{"```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{`Here you go: {"a":{"b":2}} enjoy`, `{"a":{"b":2}}`, false},
		{`no json`, "", true},
	}
	for _, tt := range tests {
		got, err := extractJSONObject(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("extractJSONObject(%q) = (%q, %v), want %q", tt.in, got, err, tt.want)
		}
	}
}
