// Package completion forwards prompts to OpenAI-compatible chat completion APIs.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/promptfunc/promptfunc/internal/logging"
	"github.com/promptfunc/promptfunc/internal/metrics"
	"github.com/promptfunc/promptfunc/internal/retry"
)

const (
	systemPrompt       = "You are a helpful assistant."
	defaultTemperature = 0.2

	// maxErrorBody caps how much of an upstream error body is kept.
	maxErrorBody = 4 << 10
)

// ErrEmptyAnswer is returned when the upstream reply has no usable content.
var ErrEmptyAnswer = errors.New("completion returned empty response")

// StatusError is a non-2xx reply from the upstream API.
type StatusError struct {
	Provider string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s error %d", e.Provider, e.Status)
}

// retryable reports whether the status is worth another attempt.
func (e *StatusError) retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Provider describes how to reach one chat completion API.
type Provider struct {
	// Name labels logs and metrics ("openai", "dial").
	Name    string
	BaseURL string
	APIKey  string
	Model   string
	// Deployment routes the model through /openai/deployments/{model} with
	// an api-version query instead of naming it in the request body.
	Deployment bool
	APIVersion string
}

// OpenAI returns the provider for api.openai.com style endpoints.
func OpenAI(baseURL, apiKey, model string) Provider {
	return Provider{Name: "openai", BaseURL: baseURL, APIKey: apiKey, Model: model}
}

// Dial returns the provider for a DIAL proxy, which routes by deployment.
func Dial(baseURL, apiKey, model, apiVersion string) Provider {
	return Provider{
		Name:       "dial",
		BaseURL:    baseURL,
		APIKey:     apiKey,
		Model:      model,
		Deployment: true,
		APIVersion: apiVersion,
	}
}

func (p Provider) endpoint() string {
	base := strings.TrimRight(p.BaseURL, "/")
	if !p.Deployment {
		return base + "/chat/completions"
	}
	u := base + "/openai/deployments/" + url.PathEscape(p.Model) + "/chat/completions"
	if p.APIVersion != "" {
		u += "?api-version=" + url.QueryEscape(p.APIVersion)
	}
	return u
}

// Prompt is a single user turn.
type Prompt struct {
	Text string
	// Temperature defaults to 0.2 when nil.
	Temperature *float64
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Client calls one Provider.
type Client struct {
	provider   Provider
	httpClient *http.Client
	retry      retry.Config
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithRetry replaces the default retry policy.
func WithRetry(cfg retry.Config) Option {
	return func(cl *Client) { cl.retry = cfg }
}

// New creates a Client. timeout bounds each HTTP attempt.
func New(p Provider, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		provider:   p,
		httpClient: &http.Client{Timeout: timeout},
		retry:      retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider returns the client's provider name.
func (c *Client) Provider() string {
	return c.provider.Name
}

// Complete sends the prompt and returns the first choice's content.
// 429 and 5xx replies and network errors are retried.
func (c *Client) Complete(ctx context.Context, p Prompt) (string, error) {
	temperature := defaultTemperature
	if p.Temperature != nil {
		temperature = *p.Temperature
	}

	req := chatRequest{
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: p.Text},
		},
		Temperature: temperature,
	}
	if !c.provider.Deployment {
		req.Model = c.provider.Model
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	answer, err := retry.DoWithResult(ctx, c.retry, func() (string, error) {
		return c.do(ctx, body)
	})
	metrics.RecordCompletion(c.provider.Name, time.Since(start), err == nil)
	if err != nil {
		return "", err
	}
	return answer, nil
}

func (c *Client) do(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.provider.endpoint(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.provider.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.provider.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", retry.Retryable(fmt.Errorf("%s request: %w", c.provider.Name, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{Provider: c.provider.Name, Status: resp.StatusCode, Body: string(errBody)}
		logging.WithContext(ctx).Error("completion API error",
			zap.String("provider", c.provider.Name),
			zap.Int("status", resp.StatusCode),
			zap.String("body", statusErr.Body))
		if statusErr.retryable() {
			return "", retry.Retryable(statusErr)
		}
		return "", statusErr
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode %s response: %w", c.provider.Name, err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", ErrEmptyAnswer
	}
	return out.Choices[0].Message.Content, nil
}
