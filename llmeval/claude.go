/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package llmeval

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/callgrade/callgrade/metrics"
)

// ClaudeClient implements ModelClient against the Anthropic API.
type ClaudeClient struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
	retryConfig RetryConfig
	metrics     *metrics.Model
}

// ClaudeOption is a function that modifies the client.
type ClaudeOption func(c *ClaudeClient) error

// WithClaudeModel overrides the default model.
func WithClaudeModel(model string) ClaudeOption {
	return func(c *ClaudeClient) error {
		if model == "" {
			return errors.New("model cannot be empty")
		}
		c.model = model
		return nil
	}
}

// WithClaudeMaxTokens sets the maximum tokens for a reply.
func WithClaudeMaxTokens(maxTokens int64) ClaudeOption {
	return func(c *ClaudeClient) error {
		if maxTokens <= 0 {
			return fmt.Errorf("maxTokens must be positive, got %d", maxTokens)
		}
		c.maxTokens = maxTokens
		return nil
	}
}

// WithClaudeTemperature sets the sampling temperature.
func WithClaudeTemperature(temperature float64) ClaudeOption {
	return func(c *ClaudeClient) error {
		if temperature < 0.0 || temperature > 1.0 {
			return fmt.Errorf("temperature must be between 0.0 and 1.0, got %f", temperature)
		}
		c.temperature = temperature
		return nil
	}
}

// WithClaudeRetryConfig overrides the rate limit retry behavior.
func WithClaudeRetryConfig(cfg RetryConfig) ClaudeOption {
	return func(c *ClaudeClient) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid retry config: %w", err)
		}
		c.retryConfig = cfg
		return nil
	}
}

// NewClaudeClient creates a ModelClient backed by the Anthropic API.
func NewClaudeClient(apiKey string, opts ...ClaudeOption) (*ClaudeClient, error) {
	if apiKey == "" {
		return nil, errors.New("apiKey cannot be empty")
	}
	c := &ClaudeClient{
		client:      anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:       "claude-sonnet-4-5",
		maxTokens:   8192,
		temperature: 0.1, // Low temperature for consistent judgments
		retryConfig: DefaultRetryConfig(),
		metrics:     metrics.NewModel("callgrade/llmeval"),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return c, nil
}

// Model implements ModelClient.
func (c *ClaudeClient) Model() string { return c.model }

// Complete implements ModelClient. Rate limit and transient server errors
// are retried with backoff; every other failure is returned as-is.
func (c *ClaudeClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{{
			Role: anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{
				anthropic.NewTextBlock(userPrompt),
			},
		}},
	}
	params.Temperature = anthropic.Float(c.temperature)

	return retryText(ctx, c.retryConfig, "stage_message", isRetryableClaudeError, func() (string, error) {
		stream := c.client.Messages.NewStreaming(ctx, params)
		var msg anthropic.Message
		for stream.Next() {
			event := stream.Current()
			if err := msg.Accumulate(event); err != nil {
				return "", fmt.Errorf("failed to accumulate event: %w", err)
			}
		}
		if err := stream.Err(); err != nil {
			return "", err
		}

		if msg.Usage.InputTokens > 0 || msg.Usage.OutputTokens > 0 {
			c.metrics.RecordTokens(ctx, c.model, msg.Usage.InputTokens, msg.Usage.OutputTokens)
		}

		var text string
		for _, content := range msg.Content {
			if content.Type == "text" {
				text = content.Text
			}
		}
		if text == "" {
			return "", errors.New("no text content in response")
		}
		return text, nil
	})
}

// isRetryableClaudeError checks if an error is a retryable Anthropic API
// error. Returns true for rate limit, overloaded, and transient server
// errors.
func isRetryableClaudeError(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 503, 504, 529:
			return true
		}
	}
	return false
}
