// Package llm is a minimal OpenAI-compatible chat-completions client with
// function calling. It speaks the plain completions wire format so any
// compatible gateway can sit behind it.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultTimeout    = 60 * time.Second
	defaultRetryCount = 3
	defaultRetryDelay = time.Second
)

// Config holds client construction parameters.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	RetryCount int
	RetryDelay time.Duration
}

// APIError is a structured error response from the completions endpoint.
type APIError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm api error: %d %s %s", e.StatusCode, e.Type, e.Message)
}

// Client calls a chat-completions endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient builds a Client, filling zero config fields with defaults.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = defaultRetryCount
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.cfg.Model }

// CreateChatCompletion sends one completion request. Server errors are
// retried with linear backoff; 4xx responses are returned immediately as
// *APIError.
func (c *Client) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if req.Model == "" {
		req.Model = c.cfg.Model
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	resp, err := c.doWithRetry(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleError(resp)
	}

	var result ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("llm: decode response: %w", err)
	}
	log.Debug().
		Str("model", result.Model).
		Int("total_tokens", result.Usage.TotalTokens).
		Msg("chat completion ok")
	return &result, nil
}

func (c *Client) doWithRetry(ctx context.Context, body []byte) (*http.Response, error) {
	var lastErr error
	for i := 0; i < c.cfg.RetryCount; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("llm: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else if resp.StatusCode < 500 {
			return resp, nil
		} else {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
		}

		log.Debug().Int("attempt", i+1).Err(lastErr).Msg("chat completion retry")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.RetryDelay * time.Duration(i+1)):
		}
	}
	return nil, fmt.Errorf("llm: request failed after %d attempts: %w", c.cfg.RetryCount, lastErr)
}

func (c *Client) handleError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var errResp struct {
		Error struct {
			Type    string `json:"type"`
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Type:       errResp.Error.Type,
		Code:       errResp.Error.Code,
		Message:    errResp.Error.Message,
	}
}
