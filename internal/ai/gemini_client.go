// Package ai generates episode summaries, entities and topics with Gemini.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-2.0-flash"
)

// ErrNoAPIKey is returned when the client has no API key.
var ErrNoAPIKey = errors.New("gemini api key not configured")

type GeminiClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

type geminiRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
	Role  string `json:"role,omitempty"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64         `json:"temperature"`
	ResponseMimeType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

type GeminiError struct {
	Code    int
	Message string
	Status  string
}

func (e *GeminiError) Error() string {
	return fmt.Sprintf("gemini api error: %s (status: %s, code: %d)", e.Message, e.Status, e.Code)
}

// NewGeminiClient creates a client. Empty baseURL and model use the defaults.
func NewGeminiClient(apiKey, baseURL, model string) *GeminiClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &GeminiClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

func (c *GeminiClient) Model() string {
	return c.model
}

// generate sends one prompt and returns the text of the first candidate.
func (c *GeminiClient) generate(ctx context.Context, prompt string, cfg generationConfig) (string, error) {
	if c.apiKey == "" {
		return "", ErrNoAPIKey
	}

	body, err := json.Marshal(geminiRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}, Role: "user"}},
		GenerationConfig: cfg,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		if resp.StatusCode >= 300 {
			return "", &GeminiError{Code: resp.StatusCode, Message: strings.TrimSpace(string(respBody)), Status: resp.Status}
		}
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if parsed.Error != nil {
		return "", &GeminiError{
			Code:    parsed.Error.Code,
			Message: parsed.Error.Message,
			Status:  parsed.Error.Status,
		}
	}
	if resp.StatusCode >= 300 {
		return "", &GeminiError{Code: resp.StatusCode, Message: "unexpected response", Status: resp.Status}
	}

	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from gemini")
	}

	var sb strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

// generateJSON sends a prompt with a response schema and decodes the reply into v.
func (c *GeminiClient) generateJSON(ctx context.Context, prompt string, schema string, v any) error {
	text, err := c.generate(ctx, prompt, generationConfig{
		Temperature:      0.2,
		ResponseMimeType: "application/json",
		ResponseSchema:   json.RawMessage(schema),
	})
	if err != nil {
		return err
	}

	jsonStr, err := extractJSONObject(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(jsonStr), v); err != nil {
		return fmt.Errorf("failed to parse json: %w", err)
	}
	return nil
}

// extractJSONObject strips markdown fences and surrounding text from a model reply.
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("no valid json object found in response")
	}
	return text[start : end+1], nil
}
