package features

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/backmassage/ephysbatch/internal/ephys"
)

// Logger is the logging surface Build needs.
type Logger interface {
	ephys.Logger
	Error(string, ...interface{})
}

// Builder produces the feature record of one file. A single Builder is
// shared by all pool workers.
type Builder struct {
	Loader   ephys.Loader
	Analyzer ephys.Analyzer
	Options  ephys.Options
	Log      Logger
}

// NewBuilder returns a Builder wired to the given collaborators.
func NewBuilder(loader ephys.Loader, analyzer ephys.Analyzer, opts ephys.Options, log Logger) *Builder {
	return &Builder{Loader: loader, Analyzer: analyzer, Options: opts, Log: log}
}

// Build opens path, runs QC, sweep selection and long-square analysis, and
// flattens the result into a record.
//
// The returned record always carries the filename. A recoverable failure
// is logged and the partial record is returned with a nil error. Any other
// failure is returned together with the partial record; what it does to
// the batch is up to the caller.
func (b *Builder) Build(ctx context.Context, path string) (*Record, error) {
	rec := NewRecord(filepath.Base(path))
	err := b.build(ctx, path, rec)
	if err == nil {
		return rec, nil
	}
	if ephys.IsRecoverable(err) {
		b.Log.Error("Error in %s: %s", path, err)
		return rec, nil
	}
	return rec, err
}

func (b *Builder) build(ctx context.Context, path string, rec *Record) error {
	ds, err := b.Loader.Open(ctx, path)
	if err != nil {
		return ephys.AtStage(err, ephys.StageLoad)
	}

	qc, err := ds.SweepQC(ctx)
	if err != nil {
		return ephys.AtStage(err, ephys.StageSweepQC)
	}
	b.Log.Debug("%s: %d sweep QC records", rec.Filename, len(qc))

	cell, tags, err := ds.CellQC(ctx)
	if err != nil {
		return ephys.AtStage(err, ephys.StageCellQC)
	}

	set, err := ephys.SelectLongSquareSweeps(ctx, ds, b.Options.LongSquareNames, b.Log)
	if err != nil {
		return ephys.AtStage(err, ephys.StageSelect)
	}
	rec.RejectedSweeps = len(set.Rejected)

	res, err := ephys.ExtractStimulusFeatures(ctx, set, b.Analyzer, b.Options, b.Log)
	if err != nil {
		return err
	}
	if err := Flatten(rec, res, cell); err != nil {
		return err
	}
	b.Log.Info("QC tags for %s: [%s]", rec.Filename, strings.Join(tags, ", "))
	return nil
}
