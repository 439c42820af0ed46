package ephys

import (
	"context"
	"errors"
	"sort"
)

// Logger is the logging surface the per-file steps need.
type Logger interface {
	Info(string, ...interface{})
	Warn(string, ...interface{})
	Debug(string, ...interface{})
}

// Dataset is an opened recording file.
type Dataset interface {
	Path() string
	SweepTable(ctx context.Context) (SweepTable, error)
	Sweep(ctx context.Context, number int) (*Sweep, error)
	SweepQC(ctx context.Context) ([]SweepQC, error)
	CellQC(ctx context.Context) (CellQC, []string, error)
}

// Loader opens recording files.
type Loader interface {
	Open(ctx context.Context, path string) (Dataset, error)
}

// DropFailedSweeps returns a copy of table without the sweeps whose QC
// did not pass. table is not modified.
func DropFailedSweeps(table SweepTable) SweepTable {
	out := make(SweepTable, 0, len(table))
	for _, s := range table {
		if s.Passed {
			out = append(out, s)
		}
	}
	return out
}

// FilterSweepTable keeps passing current-clamp sweeps whose stimulus name is
// one of names. The result is sorted by sweep number with duplicates removed.
func FilterSweepTable(table SweepTable, names []string) SweepTable {
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}
	seen := make(map[int]struct{}, len(table))
	out := make(SweepTable, 0, len(table))
	for _, s := range table {
		if _, ok := want[s.StimulusName]; !ok {
			continue
		}
		if !s.Passed || s.ClampMode != CurrentClamp {
			continue
		}
		if _, dup := seen[s.Number]; dup {
			continue
		}
		seen[s.Number] = struct{}{}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// SelectLongSquareSweeps picks the long-square sweeps of ds that passed QC
// and loads them. A sweep that fails to load is logged and skipped; only
// context cancellation aborts the selection. An empty set is not an error.
func SelectLongSquareSweeps(ctx context.Context, ds Dataset, names []string, log Logger) (*SweepSet, error) {
	table, err := ds.SweepTable(ctx)
	if err != nil {
		return nil, AtStage(err, StageSelect)
	}
	candidates := FilterSweepTable(DropFailedSweeps(table), names)

	set := &SweepSet{Path: ds.Path(), Sweeps: make([]*Sweep, 0, len(candidates))}
	for _, info := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sw, err := ds.Sweep(ctx, info.Number)
		if err == nil {
			err = sw.Validate()
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			log.Warn("Rejected %d", info.Number)
			log.Debug("sweep %d: %v", info.Number, err)
			set.Rejected = append(set.Rejected, info.Number)
			continue
		}
		set.Sweeps = append(set.Sweeps, sw)
	}
	sortSweeps(set.Sweeps)
	return set, nil
}
