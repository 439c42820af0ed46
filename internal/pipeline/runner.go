package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/backmassage/ephysbatch/internal/checkpoint"
	"github.com/backmassage/ephysbatch/internal/config"
	"github.com/backmassage/ephysbatch/internal/display"
	"github.com/backmassage/ephysbatch/internal/ephys"
	"github.com/backmassage/ephysbatch/internal/features"
	"github.com/backmassage/ephysbatch/internal/logging"
	"github.com/backmassage/ephysbatch/internal/metrics"
)

// Deps are the collaborators of a run. Checkpoint and Metrics are optional.
type Deps struct {
	Loader     ephys.Loader
	Analyzer   ephys.Analyzer
	Checkpoint *checkpoint.Store
	Metrics    *metrics.Metrics

	// Out receives the summary table. Defaults to os.Stdout.
	Out io.Writer
}

// Run is the top-level batch entry point. It discovers the NWB files,
// extracts one record per file on a pool of cfg.Workers goroutines, and
// writes the table to cfg.OutputFile once every worker has finished.
//
// Under the fail-fast policy the first fatal error cancels the remaining
// work, no table is written and the error is returned.
func Run(ctx context.Context, cfg *config.Config, log *logging.Logger, deps Deps) (RunStats, error) {
	start := time.Now()
	stats := RunStats{RunID: uuid.NewString()}
	if deps.Out == nil {
		deps.Out = os.Stdout
	}
	log = log.With("run", stats.RunID)

	log.Info("Start: %s", logging.Stamp(start))

	files, err := Discover(cfg.InputDir)
	if err != nil {
		return stats, fmt.Errorf("file discovery failed: %w", err)
	}
	stats.Total = len(files)
	logBatchHeader(cfg, log, deps, files)

	if deps.Metrics != nil {
		deps.Metrics.Workers.Set(float64(cfg.Workers))
	}

	opts := cfg.AnalysisOptions()
	w := &worker{
		cfg:     cfg,
		log:     log,
		deps:    deps,
		builder: features.NewBuilder(deps.Loader, deps.Analyzer, opts, log),
	}
	if deps.Checkpoint != nil {
		if w.fingerprint, err = checkpoint.Fingerprint(opts); err != nil {
			return stats, err
		}
	}

	records := make([]*features.Record, len(files))
	outcomes := make([]outcome, len(files))

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i, path := range files {
		if gctx.Err() != nil {
			break
		}
		i, path := i, path
		g.Go(func() error {
			rec, o, err := w.process(gctx, path)
			records[i], outcomes[i] = rec, o
			log.Debug("[%d/%d] %s", done.Add(1), len(files), filepath.Base(path))
			return err
		})
	}
	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		stats.Elapsed = time.Since(start)
		log.Warn("Batch aborted after %s; no table written", display.FormatDuration(stats.Elapsed))
		return stats, err
	}

	for i, o := range outcomes {
		stats.add(o)
		stats.RejectedSweeps += int64(records[i].RejectedSweeps)
	}

	if err := WriteCSV(cfg.OutputFile, records); err != nil {
		return stats, err
	}

	if cfg.ShowSummary && len(records) > 0 {
		Report(deps.Out, log, records)
	}

	stats.Elapsed = time.Since(start)
	logSummary(cfg, log, &stats)

	if cfg.MetricsFile != "" && deps.Metrics != nil {
		if err := deps.Metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			log.Warn("Cannot write metrics to %s: %v", cfg.MetricsFile, err)
		}
	}
	return stats, nil
}

// worker holds what every file of a run shares.
type worker struct {
	cfg     *config.Config
	log     *logging.Logger
	deps    Deps
	builder *features.Builder

	// fingerprint identifies the analysis settings in checkpoint keys.
	fingerprint string
}

// process produces the record of one file: from the checkpoint when the
// file and the analysis settings are unchanged since it was last
// analyzed, otherwise through the Builder. A non-nil error aborts the
// batch.
func (w *worker) process(ctx context.Context, path string) (*features.Record, outcome, error) {
	basename := filepath.Base(path)
	deps, log := w.deps, w.log

	var key []byte
	if deps.Checkpoint != nil {
		if k, err := checkpoint.KeyFor(w.fingerprint, path); err == nil {
			key = k
			rec, ok, err := deps.Checkpoint.Get(key)
			switch {
			case err != nil:
				log.Warn("Checkpoint read failed for %s: %v", basename, err)
			case ok:
				log.Info("Cached: %s", basename)
				observe(deps, metrics.OutcomeCached, 0)
				return rec, outcomeCached, nil
			}
		}
	}

	if deps.Metrics != nil {
		deps.Metrics.InFlight.Inc()
		defer deps.Metrics.InFlight.Dec()
	}

	start := time.Now()
	rec, err := w.builder.Build(ctx, path)
	if deps.Metrics != nil && rec != nil {
		deps.Metrics.SweepsRejected.Add(float64(rec.RejectedSweeps))
	}
	if err != nil {
		if w.cfg.FaultPolicy == config.KeepGoing && !isCancellation(ctx, err) {
			log.Error("Error in %s: %s", path, err)
			observe(deps, metrics.OutcomeFailed, time.Since(start))
			failed := features.NewRecord(basename)
			failed.RejectedSweeps = rec.RejectedSweeps
			return failed, outcomeFailed, nil
		}
		return nil, outcomeFailed, fmt.Errorf("%s: %w", path, err)
	}

	o, label := outcomePartial, metrics.OutcomePartial
	if rec.Complete() {
		o, label = outcomeComplete, metrics.OutcomeComplete
	}
	observe(deps, label, time.Since(start))

	if key != nil {
		if err := deps.Checkpoint.Put(key, rec); err != nil {
			log.Warn("Checkpoint write failed for %s: %v", basename, err)
		}
	}
	return rec, o, nil
}

func observe(deps Deps, label string, d time.Duration) {
	if deps.Metrics != nil {
		deps.Metrics.ObserveFile(label, d)
	}
}

func isCancellation(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// --- Logging helpers ---

func logBatchHeader(cfg *config.Config, log *logging.Logger, deps Deps, files []string) {
	if len(files) == 0 {
		log.Warn("No .nwb files found in %s", cfg.InputDir)
		return
	}
	log.Info("Found %d files (%s)", len(files), display.FormatBytes(totalSize(files)))
	log.Info("Workers: %d, fault policy: %s", cfg.Workers, cfg.FaultPolicy)
	if deps.Checkpoint != nil {
		if n, err := deps.Checkpoint.Len(); err == nil {
			log.Info("Checkpoint: %s (%d stored records)", cfg.CheckpointDir, n)
		}
	}
	log.Debug("Long square stimuli: %v", cfg.LongSquareNames)
}

func logSummary(cfg *config.Config, log *logging.Logger, stats *RunStats) {
	log.Info("==============================")
	log.Info("Done: %d complete, %d partial, %d failed, %d cached",
		stats.Complete, stats.Partial, stats.Failed, stats.Cached)
	if stats.RejectedSweeps > 0 {
		log.Warn("  Rejected sweeps: %d", stats.RejectedSweeps)
	}
	log.Success("  Wrote %d rows to %s", stats.Rows(), cfg.OutputFile)
	log.Info("Finish: %s", logging.Stamp(time.Now()))
	log.Info("Total time: %s", display.FormatDuration(stats.Elapsed))
}
