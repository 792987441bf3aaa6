/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package llmeval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/callgrade/callgrade/metrics"
)

// findingsSchema constrains Gemini replies to the stage response shape.
// The genai SDK takes its own schema type rather than raw JSON schema.
var findingsSchema = &genai.Schema{
	Type: "object",
	Properties: map[string]*genai.Schema{
		"findings": {
			Type:        "array",
			Description: "Exactly one finding per listed behavior",
			Items: &genai.Schema{
				Type: "object",
				Properties: map[string]*genai.Schema{
					"behavior_id": {
						Type:        "string",
						Description: "The id of the behavior this finding is about, copied exactly from the behavior list",
					},
					"present": {
						Type:        "boolean",
						Description: "Whether the agent exhibited the behavior anywhere in the conversation",
					},
					"confidence": {
						Type:        "number",
						Description: "Confidence in the present judgment, between 0.0 and 1.0",
					},
					"rationale": {
						Type:        "string",
						Description: "One or two sentences quoting or paraphrasing the evidence",
					},
				},
				Required: []string{"behavior_id", "present", "confidence", "rationale"},
			},
		},
	},
	Required: []string{"findings"},
}

// GeminiClient implements ModelClient against the Gemini API.
type GeminiClient struct {
	client          *genai.Client
	model           string
	temperature     float32
	maxOutputTokens int32
	retryConfig     RetryConfig
	metrics         *metrics.Model
}

// GeminiOption is a function that modifies the client.
type GeminiOption func(g *GeminiClient) error

// WithGeminiModel overrides the default model.
func WithGeminiModel(model string) GeminiOption {
	return func(g *GeminiClient) error {
		if model == "" {
			return errors.New("model cannot be empty")
		}
		g.model = model
		return nil
	}
}

// WithGeminiMaxOutputTokens sets the maximum tokens for a reply.
func WithGeminiMaxOutputTokens(maxOutputTokens int32) GeminiOption {
	return func(g *GeminiClient) error {
		if maxOutputTokens <= 0 {
			return fmt.Errorf("maxOutputTokens must be positive, got %d", maxOutputTokens)
		}
		g.maxOutputTokens = maxOutputTokens
		return nil
	}
}

// WithGeminiTemperature sets the sampling temperature.
func WithGeminiTemperature(temperature float32) GeminiOption {
	return func(g *GeminiClient) error {
		if temperature < 0.0 || temperature > 1.0 {
			return fmt.Errorf("temperature must be between 0.0 and 1.0, got %f", temperature)
		}
		g.temperature = temperature
		return nil
	}
}

// WithGeminiRetryConfig overrides the rate limit retry behavior.
func WithGeminiRetryConfig(cfg RetryConfig) GeminiOption {
	return func(g *GeminiClient) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid retry config: %w", err)
		}
		g.retryConfig = cfg
		return nil
	}
}

// NewGeminiClient creates a ModelClient backed by the Gemini API.
func NewGeminiClient(ctx context.Context, apiKey string, opts ...GeminiOption) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("apiKey cannot be empty")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	g := &GeminiClient{
		client:          client,
		model:           "gemini-2.5-flash",
		temperature:     0.1, // Low temperature for consistent judgments
		maxOutputTokens: 8192,
		retryConfig:     DefaultRetryConfig(),
		metrics:         metrics.NewModel("callgrade/llmeval"),
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return g, nil
}

// Model implements ModelClient.
func (g *GeminiClient) Model() string { return g.model }

// Complete implements ModelClient. The response schema is enforced by the
// API itself via ResponseSchema, so well-behaved replies arrive as bare JSON.
func (g *GeminiClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(g.temperature),
		MaxOutputTokens:  g.maxOutputTokens,
		ResponseMIMEType: "application/json",
		ResponseSchema:   findingsSchema,
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{
				Text: systemPrompt,
			}},
		},
	}

	return retryText(ctx, g.retryConfig, "generate_content", isRetryableGeminiError, func() (string, error) {
		response, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(userPrompt), config)
		if err != nil {
			return "", err
		}

		if response.UsageMetadata != nil {
			g.metrics.RecordTokens(ctx, g.model,
				int64(response.UsageMetadata.PromptTokenCount),
				int64(response.UsageMetadata.CandidatesTokenCount))
		}

		if len(response.Candidates) == 0 {
			return "", errors.New("no content generated - no candidates")
		}
		candidate := response.Candidates[0]
		if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
			return "", errors.New("no content generated - candidate is empty")
		}

		var text string
		for _, part := range candidate.Content.Parts {
			if part.Text != "" && !part.Thought {
				text = part.Text
			}
		}
		if text == "" {
			return "", errors.New("no text content in response")
		}
		return text, nil
	})
}

// isRetryableGeminiError checks if an error is a retryable Gemini API error.
// Returns true for rate limit, quota exhaustion, and transient server errors.
func isRetryableGeminiError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "Resource exhausted") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "RESOURCE_EXHAUSTED") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "Overloaded") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "quota exceeded") ||
		strings.Contains(errStr, "Internal error") ||
		strings.Contains(errStr, "server error")
}
