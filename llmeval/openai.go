/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package llmeval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/callgrade/callgrade/metrics"
)

// OpenAIClient implements ModelClient against the OpenAI chat completions
// API with strict structured outputs.
type OpenAIClient struct {
	client      openai.Client
	model       string
	maxTokens   int64
	temperature float64
	schema      map[string]any
	retryConfig RetryConfig
	metrics     *metrics.Model
}

// OpenAIOption is a function that modifies the client.
type OpenAIOption func(o *OpenAIClient) error

// WithOpenAIModel overrides the default model.
func WithOpenAIModel(model string) OpenAIOption {
	return func(o *OpenAIClient) error {
		if model == "" {
			return errors.New("model cannot be empty")
		}
		o.model = model
		return nil
	}
}

// WithOpenAIMaxTokens sets the maximum tokens for a reply.
func WithOpenAIMaxTokens(maxTokens int64) OpenAIOption {
	return func(o *OpenAIClient) error {
		if maxTokens <= 0 {
			return fmt.Errorf("maxTokens must be positive, got %d", maxTokens)
		}
		o.maxTokens = maxTokens
		return nil
	}
}

// WithOpenAITemperature sets the sampling temperature.
func WithOpenAITemperature(temperature float64) OpenAIOption {
	return func(o *OpenAIClient) error {
		if temperature < 0.0 || temperature > 1.0 {
			return fmt.Errorf("temperature must be between 0.0 and 1.0, got %f", temperature)
		}
		o.temperature = temperature
		return nil
	}
}

// WithOpenAIRetryConfig overrides the rate limit retry behavior.
func WithOpenAIRetryConfig(cfg RetryConfig) OpenAIOption {
	return func(o *OpenAIClient) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid retry config: %w", err)
		}
		o.retryConfig = cfg
		return nil
	}
}

// NewOpenAIClient creates a ModelClient backed by the OpenAI API.
func NewOpenAIClient(apiKey string, opts ...OpenAIOption) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("apiKey cannot be empty")
	}
	schema, err := responseSchemaMap()
	if err != nil {
		return nil, fmt.Errorf("rendering response schema: %w", err)
	}
	o := &OpenAIClient{
		client:      openai.NewClient(option.WithAPIKey(apiKey)),
		model:       "gpt-4o",
		maxTokens:   8192,
		temperature: 0.1, // Low temperature for consistent judgments
		schema:      schema,
		retryConfig: DefaultRetryConfig(),
		metrics:     metrics.NewModel("callgrade/llmeval"),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return o, nil
}

// Model implements ModelClient.
func (o *OpenAIClient) Model() string { return o.model }

// Complete implements ModelClient. The response schema is enforced by the
// API via a strict json_schema response format.
func (o *OpenAIClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(o.temperature),
		MaxTokens:   openai.Int(o.maxTokens),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "stage_findings",
					Schema: o.schema,
					Strict: openai.Bool(true),
				},
			},
		},
	}

	return retryText(ctx, o.retryConfig, "chat_completion", isRetryableOpenAIError, func() (string, error) {
		completion, err := o.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", err
		}

		if completion.Usage.PromptTokens > 0 || completion.Usage.CompletionTokens > 0 {
			o.metrics.RecordTokens(ctx, o.model, completion.Usage.PromptTokens, completion.Usage.CompletionTokens)
		}

		if len(completion.Choices) == 0 {
			return "", errors.New("no choices in response")
		}
		content := completion.Choices[0].Message.Content
		if content == "" {
			return "", errors.New("no text content in response")
		}
		return content, nil
	})
}

// responseSchemaMap renders the stage response schema in the shape the chat
// completions response_format field accepts.
func responseSchemaMap() (map[string]any, error) {
	b, err := ResponseSchemaJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	// Strict mode rejects the $schema keyword.
	delete(m, "$schema")
	return m, nil
}

// isRetryableOpenAIError checks if an error is a retryable OpenAI API error.
// Returns true for rate limit and transient server errors.
func isRetryableOpenAIError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 503:
			return true
		}
	}
	return false
}
