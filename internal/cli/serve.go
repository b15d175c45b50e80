// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zsyncgo/zsyncgo/internal/server"
)

func newServeCmd(ro *RootOpts, version string) *cobra.Command {
	var (
		addr        string
		port        int
		concurrency int
		retries     int
		timeout     time.Duration
		backoff     time.Duration
		backoffMax  time.Duration
		origins     []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start an HTTP+WebSocket job queue for submitting sync jobs remotely",
		Long: `Start an HTTP server that provides:
  - POST /api/jobs to submit a control document to sync
  - GET /api/jobs and /api/jobs/{id} to inspect job state
  - /ws for live progress updates
  - /metrics for Prometheus scraping

Example:
  zsyncgo serve
  zsyncgo serve --port 3000 --max-concurrent-jobs 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(ro)
			cfg := server.Config{
				Addr:           addr,
				Port:           port,
				Version:        GetBuildInfo(version).Version,
				Concurrency:    concurrency,
				AllowedOrigins: origins,
				HTTPRetries:    retries,
				HTTPTimeout:    timeout,
				BackoffInitial: backoff,
				BackoffMax:     backoffMax,
				Logger:         logger,
			}

			srv := server.New(cfg)

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			fmt.Printf("zsyncgo job server listening on %s:%d\n", addr, port)

			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "0.0.0.0", "Address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on")
	cmd.Flags().IntVar(&concurrency, "max-concurrent-jobs", 3, "Maximum number of sync jobs running at once")
	cmd.Flags().IntVar(&retries, "retries", 4, "Max retry attempts per HTTP request, per job")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Per-request HTTP timeout, per job")
	cmd.Flags().DurationVar(&backoff, "backoff-initial", 400*time.Millisecond, "Initial retry backoff duration")
	cmd.Flags().DurationVar(&backoffMax, "backoff-max", 10*time.Second, "Maximum retry backoff duration")
	cmd.Flags().StringSliceVar(&origins, "allowed-origins", nil, "CORS origins to allow (default: allow all)")

	return cmd
}
