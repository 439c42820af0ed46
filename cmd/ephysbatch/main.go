// Command ephysbatch extracts electrophysiology features from every NWB file
// in a directory and writes one CSV row per file.
// It parses flags, validates config and paths, and either runs the system
// check (--check) or the batch pipeline.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/backmassage/ephysbatch/internal/bridge"
	"github.com/backmassage/ephysbatch/internal/check"
	"github.com/backmassage/ephysbatch/internal/checkpoint"
	"github.com/backmassage/ephysbatch/internal/config"
	"github.com/backmassage/ephysbatch/internal/display"
	"github.com/backmassage/ephysbatch/internal/logging"
	"github.com/backmassage/ephysbatch/internal/metrics"
	"github.com/backmassage/ephysbatch/internal/pipeline"
)

// version and commit are set at build time via -ldflags (e.g. Makefile).
var (
	version = "1.0.0-dev"
	commit  = "unknown"
)

var (
	errCheckFailed = errors.New("system check failed")
	errBatchFailed = errors.New("batch failed")
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ephysbatch: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := config.DefaultConfig()
	cmd := &cobra.Command{
		Use:           "ephysbatch [flags] <input_dir>",
		Short:         "Batch electrophysiology feature extraction from NWB files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	binding := config.BindFlags(cmd.Flags(), &cfg)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if binding.ShowVersion() {
			fmt.Printf("ephysbatch %s (%s)\n", version, commit)
			return nil
		}
		// 1. Layer config file and flags; exit on parse or validation error.
		if err := binding.Apply(cmd.Flags(), args); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return run(cmd.Context(), &cfg)
	}
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	log, err := logging.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	display.PrintBanner(os.Stdout, version)

	// 2. System check mode reports and exits.
	if cfg.CheckOnly {
		if !check.RunCheck(ctx, cfg, log) {
			return errCheckFailed
		}
		return nil
	}

	// 3. Input must be an existing directory.
	inputAbs, err := absPath(cfg.InputDir)
	if err != nil {
		log.Error("Input not found: %s", cfg.InputDir)
		return errBatchFailed
	}
	if fi, err := os.Stat(inputAbs); err != nil || !fi.IsDir() {
		log.Error("Input is not a directory: %s", cfg.InputDir)
		return errBatchFailed
	}

	log.Info("=== ephysbatch v%s ===", version)
	log.Info("In:  %s", cfg.InputDir)
	log.Info("Out: %s", cfg.OutputFile)
	log.Info("")

	// 4. The bridge must answer and the output location must be writable.
	if err := check.CheckDeps(ctx, cfg); err != nil {
		log.Error("%v", err)
		return errBatchFailed
	}

	client := bridge.New(cfg)
	deps := pipeline.Deps{Loader: client, Analyzer: client, Metrics: metrics.New()}
	if cfg.CheckpointDir != "" {
		store, err := checkpoint.Open(checkpoint.Config{Path: cfg.CheckpointDir}, log)
		if err != nil {
			log.Error("%v", err)
			return errBatchFailed
		}
		defer store.Close()
		deps.Checkpoint = store
	}

	// 5. Run the batch.
	if _, err := pipeline.Run(ctx, cfg, log, deps); err != nil {
		if ctx.Err() != nil {
			log.Warn("Interrupted")
		} else {
			log.Error("%v", err)
		}
		return errBatchFailed
	}
	return nil
}

// absPath returns the absolute path with symlinks resolved.
func absPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
