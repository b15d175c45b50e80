// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zsyncgo/zsyncgo/internal/blockmatch"
	"github.com/zsyncgo/zsyncgo/internal/httpfetch"
	"github.com/zsyncgo/zsyncgo/internal/progressbar"
	"github.com/zsyncgo/zsyncgo/pkg/zsync"
)

// RootOpts holds global CLI options.
type RootOpts struct {
	JSONOut  bool
	Quiet    bool
	Verbose  bool
	Config   string
	LogFile  string
	LogLevel string
}

// Execute runs the CLI with the given version string.
func Execute(version string) error {
	ro := &RootOpts{}
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	root := &cobra.Command{
		Use:           "zsyncgo",
		Short:         "Resumable differential downloader that fetches only the bytes a local copy is missing",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	root.PersistentFlags().BoolVar(&ro.JSONOut, "json", false, "Emit the final result as one machine-readable JSON line (no live progress)")
	root.PersistentFlags().BoolVarP(&ro.Quiet, "quiet", "q", false, "Quiet mode (no progress bar, minimal logs)")
	root.PersistentFlags().BoolVarP(&ro.Verbose, "verbose", "v", false, "Verbose logs (debug details)")
	root.PersistentFlags().StringVar(&ro.Config, "config", "", "Path to config file (JSON or YAML)")
	root.PersistentFlags().StringVar(&ro.LogFile, "log-file", "", "Write logs to file (in addition to stderr)")
	root.PersistentFlags().StringVar(&ro.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")

	syncCmd := newSyncCmd(ctx, ro)
	root.AddCommand(syncCmd)
	root.AddCommand(newVersionCmd(version))
	root.AddCommand(newServeCmd(ro, version))
	root.AddCommand(newConfigCmd())

	// Make "sync" the default command when no subcommand is given.
	root.RunE = syncCmd.RunE
	root.Args = syncCmd.Args
	root.SetHelpCommand(&cobra.Command{Use: "help", Hidden: true})

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

// syncFlags holds the sync command's flags. Output, SeedFiles, Referrer,
// KeepControl and RandSeed map onto zsync.Options fields; Retries, Timeout,
// Backoff and BackoffMax configure the httpfetch client. The rest of
// Options (Matcher, Decompressor, HTTP, Progress, Logger) is wired up in
// RunE.
type syncFlags struct {
	Output      string
	SeedFiles   []string
	Referrer    string
	KeepControl string
	Retries     int
	Timeout     time.Duration
	Backoff     time.Duration
	BackoffMax  time.Duration
	RandSeed    int64
}

func newSyncCmd(ctx context.Context, ro *RootOpts) *cobra.Command {
	sf := &syncFlags{}

	cmd := &cobra.Command{
		Use:   "sync [CONTROL-FILE-OR-URL]",
		Short: "Fetch only the bytes needed to bring a local file up to date with a .zsync control document",
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return applySettingsDefaults(cmd, sf)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			controlLoc, err := finalize(args, sf)
			if err != nil {
				return err
			}

			logger := newLogger(ro)
			opts := zsync.Options{
				ControlFileLocation: controlLoc,
				OutputPath:          sf.Output,
				SeedFiles:           sf.SeedFiles,
				Referrer:            sf.Referrer,
				KeepControlFilePath: sf.KeepControl,
				Quiet:               ro.Quiet || ro.JSONOut,
				RandSeed:            sf.RandSeed,
				Matcher:             blockmatch.New(logger),
				Decompressor:        blockmatch.GzipDecompressor{},
				HTTP: httpfetch.New(httpfetch.Options{
					Retries:        sf.Retries,
					Timeout:        sf.Timeout,
					BackoffInitial: sf.Backoff,
					BackoffMax:     sf.BackoffMax,
					Logger:         logger,
				}),
				Logger: logger,
			}
			if !opts.Quiet {
				opts.Progress = progressbar.New(logger)
			}
			if ro.JSONOut {
				opts.Progress = nil // JSON mode reports only the final Result, not a live bar
			}

			drv := zsync.NewDriver(opts)
			result, err := drv.Run(ctx)
			if err != nil {
				return reportOutcome(ro, err)
			}

			if ro.JSONOut {
				return jsonResult(os.Stdout, result)
			}
			if !ro.Quiet {
				fmt.Printf("done: %s (%d bytes from local sources, %d bytes downloaded)\n",
					result.FinalPath, result.LocalBytesUsed, result.HTTPBytesDownloaded)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sf.Output, "output", "o", "", "Destination path for the installed file (default: derived from the control document)")
	cmd.Flags().StringSliceVarP(&sf.SeedFiles, "seed", "i", nil, "Local file(s) to scan for reusable blocks before fetching (repeatable)")
	cmd.Flags().StringVar(&sf.Referrer, "referrer", "", "Base URL for resolving relative candidate URLs")
	cmd.Flags().StringVarP(&sf.KeepControl, "keep-control-file", "k", "", "Save a remotely-fetched control document to this local path")
	cmd.Flags().IntVar(&sf.Retries, "retries", 4, "Max retry attempts per HTTP request")
	cmd.Flags().DurationVar(&sf.Timeout, "timeout", 2*time.Minute, "Per-request HTTP timeout")
	cmd.Flags().DurationVar(&sf.Backoff, "backoff-initial", 400*time.Millisecond, "Initial retry backoff duration")
	cmd.Flags().DurationVar(&sf.BackoffMax, "backoff-max", 10*time.Second, "Maximum retry backoff duration")
	cmd.Flags().Int64Var(&sf.RandSeed, "rand-seed", 0, "Fix the URL-selection PRNG seed (0 means time-derived)")

	return cmd
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func finalize(args []string, sf *syncFlags) (string, error) {
	var controlLoc string
	if len(args) > 0 {
		controlLoc = args[0]
	}
	if controlLoc == "" {
		return "", fmt.Errorf("missing CONTROL-FILE-OR-URL (pass a path or URL to a .zsync control document)")
	}
	return controlLoc, nil
}

func newLogger(ro *RootOpts) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(ro.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if ro.Verbose {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	if ro.LogFile != "" {
		f, err := os.OpenFile(ro.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			w = io.MultiWriter(os.Stderr, f)
		}
	}
	if ro.Quiet {
		level = slog.LevelError
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func reportOutcome(ro *RootOpts, err error) error {
	de, ok := err.(*zsync.DriverError)
	if !ok {
		return err
	}
	if ro.JSONOut {
		enc := json.NewEncoder(os.Stdout)
		enc.Encode(map[string]any{"outcome": de.Outcome.String(), "error": de.Error()})
	}
	return de
}

func applySettingsDefaults(cmd *cobra.Command, dst *syncFlags) error {
	path := cmd.Flags().Lookup("config").Value.String()
	if path == "" {
		home, _ := os.UserHomeDir()
		jsonPath := filepath.Join(home, ".config", "zsyncgo.json")
		yamlPath := filepath.Join(home, ".config", "zsyncgo.yaml")
		ymlPath := filepath.Join(home, ".config", "zsyncgo.yml")

		if _, err := os.Stat(jsonPath); err == nil {
			path = jsonPath
		} else if _, err := os.Stat(yamlPath); err == nil {
			path = yamlPath
		} else if _, err := os.Stat(ymlPath); err == nil {
			path = ymlPath
		}
	}
	if path == "" {
		return nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var cfg map[string]any
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return fmt.Errorf("invalid YAML config file: %w", err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return fmt.Errorf("invalid JSON config file: %w", err)
		}
	}

	setStr := func(flagName string, set func(string)) {
		if cmd.Flags().Changed(flagName) {
			return
		}
		if v, ok := cfg[flagName]; ok && v != nil {
			set(fmt.Sprint(v))
		}
	}
	setInt := func(flagName string, set func(int)) {
		if cmd.Flags().Changed(flagName) {
			return
		}
		if v, ok := cfg[flagName]; ok && v != nil {
			var x int
			fmt.Sscan(fmt.Sprint(v), &x)
			set(x)
		}
	}
	setDuration := func(flagName string, set func(time.Duration)) {
		if cmd.Flags().Changed(flagName) {
			return
		}
		if v, ok := cfg[flagName]; ok && v != nil {
			if d, err := time.ParseDuration(fmt.Sprint(v)); err == nil {
				set(d)
			}
		}
	}

	setStr("output", func(v string) { dst.Output = v })
	setStr("referrer", func(v string) { dst.Referrer = v })
	setInt("retries", func(v int) { dst.Retries = v })
	setDuration("timeout", func(v time.Duration) { dst.Timeout = v })
	setDuration("backoff-initial", func(v time.Duration) { dst.Backoff = v })
	setDuration("backoff-max", func(v time.Duration) { dst.BackoffMax = v })

	if !cmd.Flags().Changed("seed") {
		if v, ok := cfg["seed"]; ok {
			if list, ok := v.([]any); ok {
				seeds := make([]string, 0, len(list))
				for _, s := range list {
					seeds = append(seeds, fmt.Sprint(s))
				}
				dst.SeedFiles = seeds
			}
		}
	}

	return nil
}

// jsonResult emits one JSON object describing a successful Run, the
// machine-readable counterpart to the plain "done: ..." line.
func jsonResult(w io.Writer, result zsync.Result) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(result)
}
