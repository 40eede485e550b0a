// Package transcribe talks to the Groq speech-to-text API.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "whisper-large-v3"

	// MaxUploadSize is the largest file the API accepts as an upload.
	// Larger audio must be passed by URL.
	MaxUploadSize = 25 * 1024 * 1024
)

// ErrNoAPIKey is returned when the client has no API key.
var ErrNoAPIKey = errors.New("groq api key not configured")

// Segment is a timed part of a transcription.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is a finished transcription.
type Result struct {
	Text     string
	Language string
	Segments []Segment
}

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("groq api failed: %d %s - %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Client is a Groq transcription client.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient creates a client. Empty baseURL and model use the defaults.
func NewClient(apiKey, baseURL, model string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

// TranscribeFile uploads audio read from r.
func (c *Client) TranscribeFile(ctx context.Context, filename string, r io.Reader) (*Result, error) {
	return c.transcribe(ctx, func(w *multipart.Writer) error {
		part, err := w.CreateFormFile("file", filename)
		if err != nil {
			return err
		}
		_, err = io.Copy(part, r)
		return err
	})
}

// TranscribeURL asks the API to fetch the audio itself.
func (c *Client) TranscribeURL(ctx context.Context, audioURL string) (*Result, error) {
	return c.transcribe(ctx, func(w *multipart.Writer) error {
		return w.WriteField("url", audioURL)
	})
}

type verboseResponse struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

func (c *Client) transcribe(ctx context.Context, writeInput func(*multipart.Writer) error) (*Result, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := writeInput(w); err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if err := w.WriteField("model", c.model); err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	// verbose_json carries language and segments.
	if err := w.WriteField("response_format", "verbose_json"); err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var parsed verboseResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	result := &Result{
		Text:     parsed.Text,
		Language: parsed.Language,
		Segments: parsed.Segments,
	}
	if result.Language == "" {
		result.Language = "en"
	}
	if result.Segments == nil {
		result.Segments = []Segment{}
	}
	return result, nil
}
