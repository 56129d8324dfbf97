// Package llm talks to an OpenAI-compatible chat completions API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sqlcoach/internal/metrics"
)

// JSONSuffix is appended to the user prompt of JSON-mode requests.
const JSONSuffix = "\n\nIMPORTANT: Return ONLY valid JSON. No markdown, no code blocks, no extra text."

const maxErrorBody = 4 * 1024

// ErrNoAPIKey is returned when a completion is requested without credentials.
var ErrNoAPIKey = errors.New("llm: no API key configured")

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm: status %d: %s", e.Code, e.Body)
}

// Completer produces a model answer for one prompt pair.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Request is one system + user prompt pair.
type Request struct {
	System string
	User   string
	JSON   bool
}

// Options configures a Client.
type Options struct {
	BaseURL      string
	APIKey       string
	Model        string
	Temperature  float64
	MaxTokens    int
	Timeout      time.Duration
	RetryMax     int
	RetryBackoff time.Duration
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// Client is a minimal chat completions client.
type Client struct {
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	retry       RetryConfig
	http        *http.Client
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewClient constructs a client for {BaseURL}/chat/completions.
func NewClient(o Options) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(o.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse llm base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("llm base url must be http(s), got %q", o.BaseURL)
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	if o.RetryMax < 1 {
		o.RetryMax = 1
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint:    u.String() + "/chat/completions",
		apiKey:      o.APIKey,
		model:       o.Model,
		temperature: o.Temperature,
		maxTokens:   o.MaxTokens,
		retry: RetryConfig{
			MaxAttempts:      o.RetryMax,
			Backoff:          o.RetryBackoff,
			MaxResponseBytes: 8 * 1024 * 1024,
		},
		http:    &http.Client{Timeout: o.Timeout},
		metrics: o.Metrics,
		logger:  logger,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends one chat completion call and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if c.apiKey == "" {
		c.metrics.RecordLLMCall("error")
		return "", ErrNoAPIKey
	}

	user := req.User
	if req.JSON {
		user += JSONSuffix
	}
	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: user},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("llm: encode request: %w", err)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	res := c.doWithRetry(ctx, payload, headers)
	if info := callInfoFrom(ctx); info != nil {
		info.Calls++
		info.Attempts += res.Attempts
	}

	if res.LastError != nil {
		c.metrics.RecordLLMCall("error")
		c.logger.Warn("llm call failed", "attempts", res.Attempts, "err", res.LastError)
		return "", fmt.Errorf("llm: request failed: %w", res.LastError)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		c.metrics.RecordLLMCall("error")
		body := string(res.Body)
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return "", &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(body)}
	}

	var out chatResponse
	if err := json.Unmarshal(res.Body, &out); err != nil {
		c.metrics.RecordLLMCall("error")
		return "", fmt.Errorf("llm: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		c.metrics.RecordLLMCall("error")
		return "", errors.New("llm: response has no choices")
	}

	c.metrics.RecordLLMCall("ok")
	c.logger.Debug("llm call complete",
		"model", c.model,
		"attempts", res.Attempts,
		"duration_ms", time.Since(start).Milliseconds(),
		"response_chars", len(out.Choices[0].Message.Content))
	return out.Choices[0].Message.Content, nil
}

func readBodyLimit(r io.Reader, max int64) ([]byte, error) {
	buf := &bytes.Buffer{}
	if max <= 0 {
		return io.ReadAll(r)
	}
	n, err := buf.ReadFrom(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if n > max {
		return nil, fmt.Errorf("response exceeds %d bytes", max)
	}
	return buf.Bytes(), nil
}
