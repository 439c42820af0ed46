package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/backmassage/ephysbatch/internal/checkpoint"
	"github.com/backmassage/ephysbatch/internal/config"
	"github.com/backmassage/ephysbatch/internal/ephys"
	"github.com/backmassage/ephysbatch/internal/ephys/ephystest"
	"github.com/backmassage/ephysbatch/internal/features"
	"github.com/backmassage/ephysbatch/internal/logging"
	"github.com/backmassage/ephysbatch/internal/metrics"
)

// --- Discover tests ---

func TestDiscover_FiltersExtensions(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "cell_b.nwb")
	touch(t, dir, "cell_a.nwb")
	touch(t, dir, "notes.txt")
	touch(t, dir, "cell_c.nwb.bak")
	touch(t, dir, "analysis.h5")

	files, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	want := []string{"cell_a.nwb", "cell_b.nwb"}
	got := basenames(files)
	if !sliceEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDiscover_NotRecursive(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "top.nwb")
	os.MkdirAll(filepath.Join(dir, "nested"), 0o755)
	touch(t, filepath.Join(dir, "nested"), "inner.nwb")
	os.MkdirAll(filepath.Join(dir, "dir.nwb"), 0o755)

	files, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if got := basenames(files); !sliceEqual(got, []string{"top.nwb"}) {
		t.Errorf("got %v, want [top.nwb] (subdirectories must be ignored)", got)
	}
}

func TestDiscover_EmptyDir(t *testing.T) {
	dir := t.TempDir()
	files, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("got %d files, want 0", len(files))
	}
}

func TestDiscover_MissingDir(t *testing.T) {
	if _, err := Discover(filepath.Join(t.TempDir(), "gone")); err == nil {
		t.Error("expected an error for a missing directory")
	}
}

func TestDiscover_CaseInsensitiveExtension(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "CELL1.NWB")
	touch(t, dir, "cell2.Nwb")

	files, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("got %d files, want 2 (case-insensitive ext matching)", len(files))
	}
}

func TestDiscover_Sorted(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"c.nwb", "a.nwb", "B.nwb", "b.nwb"} {
		touch(t, dir, n)
	}
	files, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	for i := 1; i < len(files); i++ {
		if files[i] < files[i-1] {
			t.Errorf("not sorted: %q before %q", files[i-1], files[i])
		}
	}
}

func TestDiscover_Symlink(t *testing.T) {
	dir := t.TempDir()
	elsewhere := t.TempDir()
	touch(t, dir, "plain.nwb")
	touch(t, elsewhere, "real.nwb")
	os.MkdirAll(filepath.Join(elsewhere, "folder"), 0o755)
	if err := os.Symlink(filepath.Join(elsewhere, "real.nwb"), filepath.Join(dir, "linked.nwb")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	os.Symlink(filepath.Join(elsewhere, "folder"), filepath.Join(dir, "folder.nwb"))
	os.Symlink(filepath.Join(elsewhere, "gone.nwb"), filepath.Join(dir, "dangling.nwb"))

	files, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	want := []string{"linked.nwb", "plain.nwb"}
	if got := basenames(files); !sliceEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

// --- RunStats tests ---

func TestRunStats_Rows(t *testing.T) {
	var s RunStats
	for _, o := range []outcome{outcomeComplete, outcomeComplete, outcomePartial, outcomeFailed, outcomeCached} {
		s.add(o)
	}
	if s.Complete != 2 || s.Partial != 1 || s.Failed != 1 || s.Cached != 1 {
		t.Errorf("unexpected counters: %+v", s)
	}
	if got := s.Rows(); got != 5 {
		t.Errorf("Rows: got %d, want 5", got)
	}
}

// --- CSV tests ---

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "features.csv")
	a := features.NewRecord("A.nwb")
	a.SetFloat("v_baseline", -71.25)
	a.SetFloat("tau", 0.5e-5)
	b := features.NewRecord("B.nwb")

	require.NoError(t, WriteCSV(path, []*features.Record{a, b}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(features.Columns, ","), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "A.nwb,-71.25,"), lines[1])
	assert.Contains(t, lines[1], ",5e-06,")
	assert.Equal(t, "B.nwb"+strings.Repeat(",", len(features.Columns)-1), lines[2])

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

// --- Run tests ---

func longSquareRow(n int) ephys.SweepInfo {
	return ephys.SweepInfo{Number: n, StimulusName: "Long Square", ClampMode: ephys.CurrentClamp, Passed: true}
}

// cellDataset scripts a cell with three long-square sweeps. With passed
// false every sweep fails QC and no features can be extracted.
func cellDataset(path string, passed bool) *ephystest.Dataset {
	ds := &ephystest.Dataset{
		Name:  path,
		Table: ephys.SweepTable{longSquareRow(10), longSquareRow(11), longSquareRow(12)},
		Sweeps: map[int]*ephys.Sweep{
			10: ephystest.SquareSweep(10, 200, 100, 20, 40, 149, 50),
			11: ephystest.SquareSweep(11, 200, 100, 20, 40, 149, 90),
			12: ephystest.SquareSweep(12, 200, 100, 20, 40, 149, 130),
		},
		Cell: ephys.CellQC{
			BlowoutMV: -2.1, Electrode0PA: 12.5, RecordingDate: "2016-02-16 15:39:01", SealGOhm: 1.8,
			InputResistanceMOhm: 210.3, InitialAccessResistanceMOhm: 14.2, InputAccessResistanceRatio: 0.067,
		},
	}
	if !passed {
		for i := range ds.Table {
			ds.Table[i].Passed = false
		}
	}
	return ds
}

type fixture struct {
	cfg      *config.Config
	loader   *ephystest.Loader
	analyzer *ephystest.Analyzer
	out      bytes.Buffer
}

// newFixture creates inputDir with the named files. Every file gets a
// good dataset unless listed in noSweeps (recoverable failure) or
// missing (fatal failure).
func newFixture(t *testing.T, names []string, noSweeps, missing map[string]bool) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		loader:   &ephystest.Loader{Datasets: map[string]*ephystest.Dataset{}},
		analyzer: &ephystest.Analyzer{Result: ephystest.Result()},
	}
	for _, n := range names {
		touch(t, dir, n)
		path := filepath.Join(dir, n)
		if missing[n] {
			continue
		}
		f.loader.Datasets[path] = cellDataset(path, !noSweeps[n])
	}

	cfg := config.DefaultConfig()
	cfg.InputDir = dir
	cfg.OutputFile = filepath.Join(t.TempDir(), "features.csv")
	cfg.ColorMode = config.ColorNever
	f.cfg = &cfg
	return f
}

func (f *fixture) deps() Deps {
	return Deps{Loader: f.loader, Analyzer: f.analyzer, Out: &f.out}
}

func readCSV(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func csvFilenames(t *testing.T, path string) []string {
	t.Helper()
	lines := strings.Split(strings.TrimRight(readCSV(t, path), "\n"), "\n")
	var names []string
	for _, l := range lines[1:] {
		names = append(names, strings.SplitN(l, ",", 2)[0])
	}
	return names
}

func TestRun_OrderIndependentOfWorkers(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var names []string
	for i := 0; i < 30; i++ {
		names = append(names, fmt.Sprintf("cell_%02d.nwb", i))
	}
	f := newFixture(t, names, map[string]bool{"cell_07.nwb": true}, nil)

	var outputs []string
	for _, workers := range []int{1, 12} {
		f.cfg.Workers = workers
		stats, err := Run(context.Background(), f.cfg, logging.Nop(), f.deps())
		require.NoError(t, err)
		assert.Equal(t, 30, stats.Total)
		assert.Equal(t, 29, stats.Complete)
		assert.Equal(t, 1, stats.Partial)
		assert.Equal(t, 30, stats.Rows())
		assert.Equal(t, names, csvFilenames(t, f.cfg.OutputFile))
		outputs = append(outputs, readCSV(t, f.cfg.OutputFile))
	}
	assert.Equal(t, outputs[0], outputs[1], "rerun with a different pool size changed the table")
}

func TestRun_FailFast(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFixture(t, []string{"A.nwb", "B.nwb", "C.nwb"},
		map[string]bool{"B.nwb": true}, map[string]bool{"C.nwb": true})

	_, err := Run(context.Background(), f.cfg, logging.Nop(), f.deps())
	require.Error(t, err)
	assert.Equal(t, ephys.KindIO, ephys.KindOf(err))
	assert.Contains(t, err.Error(), "C.nwb")

	_, statErr := os.Stat(f.cfg.OutputFile)
	assert.True(t, os.IsNotExist(statErr), "no table may be written after a fatal error")
}

func TestRun_KeepGoing(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFixture(t, []string{"A.nwb", "B.nwb", "C.nwb"},
		map[string]bool{"B.nwb": true}, map[string]bool{"C.nwb": true})
	f.cfg.FaultPolicy = config.KeepGoing
	m := metrics.New()
	deps := f.deps()
	deps.Metrics = m

	stats, err := Run(context.Background(), f.cfg, logging.Nop(), deps)
	require.NoError(t, err)
	assert.Equal(t, RunStats{RunID: stats.RunID, Total: 3, Complete: 1, Partial: 1, Failed: 1, Elapsed: stats.Elapsed}, stats)

	lines := strings.Split(strings.TrimRight(readCSV(t, f.cfg.OutputFile), "\n"), "\n")
	require.Len(t, lines, 4)
	empty := strings.Repeat(",", len(features.Columns)-1)
	assert.NotEqual(t, "A.nwb"+empty, lines[1])
	assert.Equal(t, "B.nwb"+empty, lines[2])
	assert.Equal(t, "C.nwb"+empty, lines[3])

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FilesTotal.WithLabelValues(metrics.OutcomeComplete)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FilesTotal.WithLabelValues(metrics.OutcomePartial)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FilesTotal.WithLabelValues(metrics.OutcomeFailed)))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.Workers))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlight))

	assert.Contains(t, f.out.String(), "A.nwb")
	assert.Contains(t, f.out.String(), "(no features)")
}

func TestRun_CheckpointRerun(t *testing.T) {
	f := newFixture(t, []string{"A.nwb", "B.nwb", "C.nwb"}, map[string]bool{"C.nwb": true}, nil)
	store, err := checkpoint.Open(checkpoint.Config{InMemory: true}, nil)
	require.NoError(t, err)
	defer store.Close()
	deps := f.deps()
	deps.Checkpoint = store

	first, err := Run(context.Background(), f.cfg, logging.Nop(), deps)
	require.NoError(t, err)
	assert.Equal(t, 0, first.Cached)
	want := readCSV(t, f.cfg.OutputFile)
	calls := len(f.analyzer.Calls())

	second, err := Run(context.Background(), f.cfg, logging.Nop(), deps)
	require.NoError(t, err)
	assert.Equal(t, 3, second.Cached)
	assert.Equal(t, 0, second.Complete+second.Partial+second.Failed)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, want, readCSV(t, f.cfg.OutputFile))
	assert.Len(t, f.analyzer.Calls(), calls, "cached files must not be analyzed again")
}

func TestRun_CheckpointSettingsChange(t *testing.T) {
	f := newFixture(t, []string{"A.nwb", "B.nwb"}, nil, nil)
	store, err := checkpoint.Open(checkpoint.Config{InMemory: true}, nil)
	require.NoError(t, err)
	defer store.Close()
	deps := f.deps()
	deps.Checkpoint = store

	_, err = Run(context.Background(), f.cfg, logging.Nop(), deps)
	require.NoError(t, err)
	calls := len(f.analyzer.Calls())

	f.cfg.SubthreshMinAmp = -500
	second, err := Run(context.Background(), f.cfg, logging.Nop(), deps)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Cached, "records computed under other settings must not be reused")
	assert.Equal(t, 2, second.Complete)
	got := f.analyzer.Calls()
	require.Len(t, got, calls+2)
	assert.Equal(t, -500.0, got[len(got)-1].Params.SubthreshMinAmp)

	third, err := Run(context.Background(), f.cfg, logging.Nop(), deps)
	require.NoError(t, err)
	assert.Equal(t, 2, third.Cached)
}

func TestRun_RejectedSweepsSurviveCache(t *testing.T) {
	f := newFixture(t, []string{"A.nwb", "B.nwb"}, nil, nil)
	for path, ds := range f.loader.Datasets {
		if filepath.Base(path) == "A.nwb" {
			ds.Table = append(ds.Table, longSquareRow(13))
		}
	}
	store, err := checkpoint.Open(checkpoint.Config{InMemory: true}, nil)
	require.NoError(t, err)
	defer store.Close()
	m := metrics.New()
	deps := f.deps()
	deps.Checkpoint = store
	deps.Metrics = m

	first, err := Run(context.Background(), f.cfg, logging.Nop(), deps)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.RejectedSweeps)

	second, err := Run(context.Background(), f.cfg, logging.Nop(), deps)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Cached)
	assert.Equal(t, first.RejectedSweeps, second.RejectedSweeps)

	// the counter tracks sweeps actually loaded in this process
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SweepsRejected))
}

func TestRun_LogLinesCarryRunID(t *testing.T) {
	f := newFixture(t, []string{"A.nwb"}, nil, nil)
	f.cfg.LogFile = filepath.Join(t.TempDir(), "batch.log")
	log, err := logging.NewLogger(f.cfg)
	require.NoError(t, err)

	stats, err := Run(context.Background(), f.cfg, log, f.deps())
	require.NoError(t, err)
	require.NoError(t, log.Close())

	data, err := os.ReadFile(f.cfg.LogFile)
	require.NoError(t, err)
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		assert.Contains(t, line, stats.RunID)
	}
}

func TestRun_NoFiles(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	stats, err := Run(context.Background(), f.cfg, logging.Nop(), f.deps())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, strings.Join(features.Columns, ",")+"\n", readCSV(t, f.cfg.OutputFile))
	assert.Empty(t, f.out.String(), "no summary table for an empty batch")
}

func TestRun_Canceled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFixture(t, []string{"A.nwb", "B.nwb"}, nil, nil)
	f.cfg.FaultPolicy = config.KeepGoing
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, f.cfg, logging.Nop(), f.deps())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), "err = %v", err)
	_, statErr := os.Stat(f.cfg.OutputFile)
	assert.True(t, os.IsNotExist(statErr))
}

// --- Helpers ---

func touch(t *testing.T, dir, name string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte{}, 0o644); err != nil {
		t.Fatalf("touch %s: %v", path, err)
	}
}

func basenames(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}

func sliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
