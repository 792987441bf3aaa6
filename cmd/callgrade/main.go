/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package main implements the callgrade CLI: compile blueprints, evaluate
// transcripts, and serve the evaluation API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := &cobra.Command{
		Use:   "callgrade",
		Short: "Score call-center transcripts against QA blueprints",
		Long: `Callgrade evaluates call-center transcripts against evaluation
blueprints: deterministic phrase and ordering checks, model-assisted
judgment for semantic behaviors, and rubric scoring with critical
violation handling.`,
		SilenceUsage: true,
	}
	root.AddCommand(newCompileCmd(), newEvaluateCmd(), newServeCmd())
	root.CompletionOptions.DisableDefaultCmd = true

	if err := root.ExecuteContext(ctx); err != nil {
		clog.FatalContextf(ctx, "%v", err)
	}
}
