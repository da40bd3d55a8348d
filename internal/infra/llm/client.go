// Package llm is a minimal client for OpenAI-compatible chat completion and
// moderation endpoints. Only JSON-mode completions are issued.
package llm

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

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/moodi-app/moodi/internal/domain"
)

// Defaults for an unset Config field.
const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4.1-mini"
	DefaultTimeout = 30 * time.Second
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

// ErrNoContent is returned when a 2xx response carries no message content.
var ErrNoContent = errors.New("response has no message content")

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("llm api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("llm api: status %d: %s", e.StatusCode, e.Message)
}

// Config configures a Client.
type Config struct {
	BaseURL         string
	APIKey          string
	Model           string
	ModerationModel string
	Timeout         time.Duration
}

// Client implements domain.ChatCompleter and domain.Moderator.
type Client struct {
	http     *http.Client
	baseURL  string
	apiKey   string
	model    string
	modModel string
	log      *zap.Logger
}

var (
	_ domain.ChatCompleter = (*Client)(nil)
	_ domain.Moderator     = (*Client)(nil)
)

// New creates a client. A nil logger disables logging.
func New(cfg Config, log *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		http:     &http.Client{Timeout: cfg.Timeout},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		modModel: cfg.ModerationModel,
		log:      log.Named("llm"),
	}
}

// Model returns the chat model name requests are sent with.
func (c *Client) Model() string { return c.model }

// --- /chat/completions ---

type chatRequest struct {
	Model          string               `json:"model"`
	Messages       []domain.ChatMessage `json:"messages"`
	Temperature    float32              `json:"temperature"`
	ResponseFormat responseFormat       `json:"response_format"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// Complete sends a JSON-mode chat completion and returns the message content.
func (c *Client) Complete(ctx context.Context, req domain.ChatRequest) (string, error) {
	body, err := c.post(ctx, "/chat/completions", chatRequest{
		Model:          c.model,
		Messages:       req.Messages,
		Temperature:    req.Temperature,
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", err
	}

	content := gjson.GetBytes(body, "choices.0.message.content")
	if !content.Exists() || content.String() == "" {
		return "", ErrNoContent
	}
	if reason := gjson.GetBytes(body, "choices.0.finish_reason").String(); reason == "length" {
		c.log.Warn("completion truncated", zap.String("finish_reason", reason))
	}
	return content.String(), nil
}

// --- /moderations ---

type moderationRequest struct {
	Input string `json:"input"`
	Model string `json:"model,omitempty"`
}

// Moderate reports whether the moderation endpoint flags text.
func (c *Client) Moderate(ctx context.Context, text string) (bool, error) {
	body, err := c.post(ctx, "/moderations", moderationRequest{Input: text, Model: c.modModel})
	if err != nil {
		return false, err
	}
	flagged := gjson.GetBytes(body, "results.0.flagged")
	if !flagged.Exists() {
		return false, errors.New("moderation response has no results")
	}
	return flagged.Bool(), nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}

	c.log.Debug("llm call",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    gjson.GetBytes(body, "error.message").String(),
		}
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%s: response is not valid JSON", path)
	}
	return body, nil
}
