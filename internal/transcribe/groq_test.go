package transcribe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestServer(t *testing.T, handler func(t *testing.T, r *http.Request)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected Authorization header %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("failed to parse multipart form: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.FormValue("model") != "whisper-large-v3" || r.FormValue("response_format") != "verbose_json" {
			t.Errorf("unexpected form: model=%q format=%q", r.FormValue("model"), r.FormValue("response_format"))
		}
		handler(t, r)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text":"hello world","language":"english","segments":[{"start":0,"end":1.2,"text":"hello"},{"start":1.2,"end":2,"text":" world"}]}`)
	}))
}

func TestTranscribeFile(t *testing.T) {
	srv := newTestServer(t, func(t *testing.T, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "ep1.mp3" || string(data) != "ID3audio" {
			t.Errorf("unexpected upload %s: %q", header.Filename, data)
		}
	})
	defer srv.Close()

	c := NewClient("test-key", srv.URL, "")
	res, err := c.TranscribeFile(context.Background(), "ep1.mp3", strings.NewReader("ID3audio"))
	if err != nil {
		t.Fatalf("TranscribeFile failed: %v", err)
	}
	if res.Text != "hello world" || res.Language != "english" || len(res.Segments) != 2 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestTranscribeURL(t *testing.T) {
	srv := newTestServer(t, func(t *testing.T, r *http.Request) {
		if got := r.FormValue("url"); got != "https://cdn.example.com/big.mp3" {
			t.Errorf("unexpected url field %q", got)
		}
	})
	defer srv.Close()

	c := NewClient("test-key", srv.URL+"/", "")
	if _, err := c.TranscribeURL(context.Background(), "https://cdn.example.com/big.mp3"); err != nil {
		t.Fatalf("TranscribeURL failed: %v", err)
	}
}

func TestTranscribe_DefaultsLanguage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"text":"hi"}`)
	}))
	defer srv.Close()

	res, err := NewClient("k", srv.URL, "").TranscribeURL(context.Background(), "https://x/a.mp3")
	if err != nil {
		t.Fatal(err)
	}
	if res.Language != "en" || res.Segments == nil {
		t.Errorf("expected defaults, got %+v", res)
	}
}

func TestTranscribe_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"message":"rate limited"}}`)
	}))
	defer srv.Close()

	_, err := NewClient("k", srv.URL, "").TranscribeURL(context.Background(), "https://x/a.mp3")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests || !strings.Contains(apiErr.Body, "rate limited") {
		t.Errorf("unexpected error: %+v", apiErr)
	}
}

func TestTranscribe_NoAPIKey(t *testing.T) {
	_, err := NewClient("", "", "").TranscribeURL(context.Background(), "https://x/a.mp3")
	if !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}
