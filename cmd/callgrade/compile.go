/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/callgrade/callgrade/blueprint"
)

func newCompileCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "compile <draft.yaml>",
		Short: "Validate a blueprint draft and print its normalized form",
		Long: `Compile parses a blueprint draft, validates it, and prints the
normalized blueprint with defaults applied and weights rescaled. A
draft that compiles here is exactly what the evaluate command and the
API will accept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading draft: %w", err)
			}
			draft, err := blueprint.ParseDraft(raw)
			if err != nil {
				return err
			}
			bp, err := blueprint.Compile(draft)
			if err != nil {
				return err
			}

			if asJSON {
				out, err := json.MarshalIndent(bp, "", "  ")
				if err != nil {
					return fmt.Errorf("encoding blueprint: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}
			out, err := yaml.Marshal(bp)
			if err != nil {
				return fmt.Errorf("encoding blueprint: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the compiled blueprint as JSON")
	return cmd
}
