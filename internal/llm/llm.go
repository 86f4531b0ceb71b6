package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/bandcoach/internal/apperr"
)

// Config holds the connection settings for an OpenAI-compatible API.
type Config struct {
	BaseURL          string
	APIKey           string
	Model            string
	SpeechModel      string
	Voice            string
	RateLimitRetries int
	RetryBackoff     time.Duration
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api         *openai.Client
	model       string
	speechModel string
	voice       string
	hasKey      bool
	retries     int
	backoff     time.Duration
}

// New creates a new LLM client. A missing API key is reported on first use.
func New(cfg Config) *Client {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	speechModel := cfg.SpeechModel
	if speechModel == "" {
		speechModel = string(openai.TTSModel1)
	}
	voice := cfg.Voice
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}
	return &Client{
		api:         openai.NewClientWithConfig(config),
		model:       cfg.Model,
		speechModel: speechModel,
		voice:       voice,
		hasKey:      strings.TrimSpace(cfg.APIKey) != "",
		retries:     max(cfg.RateLimitRetries, 0),
		backoff:     backoff,
	}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.hasKey
}

// Ping checks that the endpoint accepts the configured key.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}
	if _, err := c.api.ListModels(ctx); err != nil {
		return classify(err)
	}
	return nil
}

func (c *Client) ready() error {
	if !c.hasKey {
		return apperr.NewConfigMissing(errors.New("LLM API key is not configured"))
	}
	return nil
}

// complete runs one chat completion and returns the first choice's content.
// Rate-limited calls are retried with exponential backoff.
func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	if req.Model == "" {
		req.Model = c.model
	}

	var raw string
	err := c.withRetry(ctx, func() error {
		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			return classify(err)
		}
		if len(resp.Choices) == 0 {
			return apperr.NewMalformedResponse(errors.New("LLM returned no choices"))
		}
		raw = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	slog.Debug("LLM response", "model", req.Model, "raw", raw)
	return raw, nil
}

func (c *Client) withRetry(ctx context.Context, call func() error) error {
	wait := c.backoff
	for attempt := 0; ; attempt++ {
		err := call()
		if err == nil || apperr.KindOf(err) != apperr.KindRateLimited || attempt >= c.retries {
			return err
		}
		slog.Warn("LLM rate limited, retrying", "attempt", attempt+1, "wait", wait)
		select {
		case <-ctx.Done():
			return apperr.NewTransient(ctx.Err())
		case <-time.After(wait):
		}
		wait *= 2
	}
}

// classify maps API failures to the user-facing error classes.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperr.NewConfigMissing(fmt.Errorf("LLM API call: %w", err))
	case http.StatusTooManyRequests:
		return apperr.NewRateLimited(fmt.Errorf("LLM API call: %w", err))
	}
	return apperr.NewTransient(fmt.Errorf("LLM API call: %w", err))
}
