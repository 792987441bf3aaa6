/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/gin-gonic/gin"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"

	"github.com/callgrade/callgrade/httpapi"
	"github.com/callgrade/callgrade/pipeline"
	"github.com/callgrade/callgrade/runs"
	"github.com/callgrade/callgrade/transcript"
)

type serveConfig struct {
	Port    int    `env:"PORT,default=8080"`
	DBPath  string `env:"DB_PATH,default=callgrade.db"`
	Workers int    `env:"WORKERS,default=4"`

	// TranscriptsDir enables evaluation by call_id from a directory of
	// <call_id>.json files.
	TranscriptsDir string `env:"TRANSCRIPTS_DIR"`

	Model modelConfig
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the evaluation HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := clog.FromContext(ctx)

			var cfg serveConfig
			if err := envconfig.Process(ctx, &cfg); err != nil {
				return fmt.Errorf("processing config: %w", err)
			}

			store, err := runs.OpenStore(cfg.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			ev, err := newModelEvaluator(ctx, cfg.Model)
			if err != nil {
				return err
			}
			var opts []pipeline.Option
			if ev != nil {
				opts = append(opts, pipeline.WithEvaluator(ev))
			} else {
				log.Infof("No model provider configured; blueprints with model-evaluated behaviors will be rejected")
			}
			p, err := pipeline.New(opts...)
			if err != nil {
				return err
			}

			runner, err := runs.NewRunner(store, p, runs.WithWorkers(cfg.Workers))
			if err != nil {
				return err
			}

			var srvOpts []httpapi.Option
			if cfg.TranscriptsDir != "" {
				srvOpts = append(srvOpts, httpapi.WithTranscriptSource(transcript.NewDirSource(cfg.TranscriptsDir)))
			}
			gin.SetMode(gin.ReleaseMode)
			srv, err := httpapi.NewServer(store, runner, srvOpts...)
			if err != nil {
				return err
			}

			hs := &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Port),
				Handler:           srv.Handler(),
				BaseContext:       func(net.Listener) context.Context { return ctx },
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() { errCh <- hs.ListenAndServe() }()
			log.Infof("Serving evaluations on port %d", cfg.Port)

			select {
			case err := <-errCh:
				return fmt.Errorf("server failed: %w", err)
			case <-ctx.Done():
			}

			// Stop accepting requests, then let in-flight runs finish.
			log.Infof("Shutting down")
			shctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := hs.Shutdown(shctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				log.Warnf("Shutdown: %v", err)
			}
			runner.Wait()
			return nil
		},
	}
}
