/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"

	"github.com/callgrade/callgrade/blueprint"
	"github.com/callgrade/callgrade/pipeline"
	"github.com/callgrade/callgrade/report"
	"github.com/callgrade/callgrade/rubric"
	"github.com/callgrade/callgrade/transcript"
)

func newEvaluateCmd() *cobra.Command {
	var (
		blueprintPath string
		rubricPath    string
		asJSON        bool
	)
	cmd := &cobra.Command{
		Use:   "evaluate <transcript.json>",
		Short: "Evaluate one transcript and print the report",
		Long: `Evaluate scores a call transcript. With --blueprint the transcript is
scored against that blueprint; without it the legacy checklist applies.
Blueprints with model-evaluated behaviors need MODEL_PROVIDER and
MODEL_API_KEY set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading transcript: %w", err)
			}
			tr, err := transcript.Parse(raw)
			if err != nil {
				return err
			}

			strategy := pipeline.Legacy()
			if blueprintPath != "" {
				raw, err := os.ReadFile(blueprintPath)
				if err != nil {
					return fmt.Errorf("reading blueprint: %w", err)
				}
				draft, err := blueprint.ParseDraft(raw)
				if err != nil {
					return err
				}
				bp, err := blueprint.Compile(draft)
				if err != nil {
					return err
				}
				strategy = pipeline.BlueprintDriven(bp)
			}

			var tmpl *rubric.Template
			if rubricPath != "" {
				raw, err := os.ReadFile(rubricPath)
				if err != nil {
					return fmt.Errorf("reading rubric: %w", err)
				}
				tmpl, err = rubric.ParseTemplate(raw)
				if err != nil {
					return err
				}
			}

			var cfg modelConfig
			if err := envconfig.Process(ctx, &cfg); err != nil {
				return fmt.Errorf("processing config: %w", err)
			}
			ev, err := newModelEvaluator(ctx, cfg)
			if err != nil {
				return err
			}
			var opts []pipeline.Option
			if ev != nil {
				opts = append(opts, pipeline.WithEvaluator(ev))
			}
			p, err := pipeline.New(opts...)
			if err != nil {
				return err
			}

			fe, err := p.Run(ctx, pipeline.Request{
				Strategy:   strategy,
				Transcript: tr,
				Rubric:     tmpl,
			})
			if err != nil {
				return err
			}

			if asJSON {
				out, err := json.MarshalIndent(fe, "", "  ")
				if err != nil {
					return fmt.Errorf("encoding evaluation: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), report.Markdown(fe))
			return nil
		},
	}
	cmd.Flags().StringVar(&blueprintPath, "blueprint", "", "Blueprint draft YAML (omit for the legacy checklist)")
	cmd.Flags().StringVar(&rubricPath, "rubric", "", "Rubric template YAML (omit for the blueprint's default)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full evaluation record as JSON")
	return cmd
}
