/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"fmt"

	"github.com/callgrade/callgrade/llmeval"
)

// modelConfig selects the judgment model. With no provider configured the
// pipeline runs deterministic checks only.
type modelConfig struct {
	Provider string `env:"MODEL_PROVIDER"` // anthropic, openai, or gemini
	APIKey   string `env:"MODEL_API_KEY"`
	Model    string `env:"MODEL_NAME"`
}

// newModelEvaluator builds the stage evaluator for the configured provider,
// or returns nil when none is configured.
func newModelEvaluator(ctx context.Context, cfg modelConfig) (*llmeval.Evaluator, error) {
	if cfg.Provider == "" {
		return nil, nil
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("MODEL_PROVIDER is %q but MODEL_API_KEY is empty", cfg.Provider)
	}

	var client llmeval.ModelClient
	var err error
	switch cfg.Provider {
	case "anthropic":
		var opts []llmeval.ClaudeOption
		if cfg.Model != "" {
			opts = append(opts, llmeval.WithClaudeModel(cfg.Model))
		}
		client, err = llmeval.NewClaudeClient(cfg.APIKey, opts...)
	case "openai":
		var opts []llmeval.OpenAIOption
		if cfg.Model != "" {
			opts = append(opts, llmeval.WithOpenAIModel(cfg.Model))
		}
		client, err = llmeval.NewOpenAIClient(cfg.APIKey, opts...)
	case "gemini":
		var opts []llmeval.GeminiOption
		if cfg.Model != "" {
			opts = append(opts, llmeval.WithGeminiModel(cfg.Model))
		}
		client, err = llmeval.NewGeminiClient(ctx, cfg.APIKey, opts...)
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("building %s client: %w", cfg.Provider, err)
	}
	return llmeval.NewEvaluator(client)
}
