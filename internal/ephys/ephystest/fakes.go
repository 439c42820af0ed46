// Package ephystest provides in-memory implementations of the ephys
// interfaces for tests.
package ephystest

import (
	"context"
	"fmt"
	"sync"

	"github.com/backmassage/ephysbatch/internal/ephys"
)

// SquareSweep builds a current-clamp sweep of n samples at rate Hz with a
// test pulse, then a step of amp pA between stimStart and stimEnd (sample
// indices). The recording epoch covers every sample and the experiment
// epoch starts at expStart.
func SquareSweep(number, n int, rate float64, expStart, stimStart, stimEnd int, amp float64) *ephys.Sweep {
	t := make([]float64, n)
	v := make([]float64, n)
	i := make([]float64, n)
	for k := 0; k < n; k++ {
		t[k] = float64(k) / rate
		v[k] = -70
		switch {
		case k >= 2 && k < 4:
			i[k] = -10 // Test pulse.
		case k >= stimStart && k <= stimEnd:
			i[k] = amp
			v[k] = -60
		}
	}
	return &ephys.Sweep{
		Number:       number,
		SamplingRate: rate,
		T:            t,
		V:            v,
		I:            i,
		Epochs: map[string]ephys.Epoch{
			ephys.EpochRecording:  {Start: 0, End: n - 1},
			ephys.EpochExperiment: {Start: expStart, End: n - 1},
			ephys.EpochTest:       {Start: 0, End: expStart - 1},
			ephys.EpochStim:       {Start: stimStart, End: stimEnd},
		},
	}
}

// Dataset is a scripted ephys.Dataset.
type Dataset struct {
	Name      string
	Table     ephys.SweepTable
	Sweeps    map[int]*ephys.Sweep
	SweepErrs map[int]error
	QC        []ephys.SweepQC
	Cell      ephys.CellQC
	Tags      []string

	TableErr  error
	SweepQErr error
	CellErr   error

	mu     sync.Mutex
	loaded []int
}

func (d *Dataset) Path() string { return d.Name }

func (d *Dataset) SweepTable(context.Context) (ephys.SweepTable, error) {
	if d.TableErr != nil {
		return nil, d.TableErr
	}
	return append(ephys.SweepTable(nil), d.Table...), nil
}

func (d *Dataset) Sweep(ctx context.Context, n int) (*ephys.Sweep, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.loaded = append(d.loaded, n)
	d.mu.Unlock()
	if err := d.SweepErrs[n]; err != nil {
		return nil, err
	}
	s, ok := d.Sweeps[n]
	if !ok {
		return nil, ephys.Errorf(ephys.KindKey, "sweep %d not found", n)
	}
	return s, nil
}

func (d *Dataset) SweepQC(context.Context) ([]ephys.SweepQC, error) {
	return d.QC, d.SweepQErr
}

func (d *Dataset) CellQC(context.Context) (ephys.CellQC, []string, error) {
	return d.Cell, d.Tags, d.CellErr
}

// Loaded returns the sweep numbers requested so far, in call order.
func (d *Dataset) Loaded() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.loaded...)
}

// Loader serves datasets by path. Paths not present fail with an IO error,
// the way a missing file does.
type Loader struct {
	Datasets map[string]*Dataset
	Errs     map[string]error
}

func (l *Loader) Open(ctx context.Context, path string) (ephys.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := l.Errs[path]; err != nil {
		return nil, err
	}
	ds, ok := l.Datasets[path]
	if !ok {
		return nil, ephys.Errorf(ephys.KindIO, "[Errno 2] No such file or directory: %q", path)
	}
	return ds, nil
}

// Analyzer returns a fixed result (or error) and records what it was asked.
type Analyzer struct {
	Result *ephys.LongSquareResult
	Err    error

	mu    sync.Mutex
	calls []Call
}

// Call is one recorded AnalyzeLongSquare invocation.
type Call struct {
	Path   string
	Sweeps []int
	Params ephys.AnalysisParams
	Set    *ephys.SweepSet
}

func (a *Analyzer) AnalyzeLongSquare(ctx context.Context, set *ephys.SweepSet, p ephys.AnalysisParams) (*ephys.LongSquareResult, error) {
	a.mu.Lock()
	a.calls = append(a.calls, Call{Path: set.Path, Sweeps: set.SweepNumbers(), Params: p, Set: set})
	a.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.Err != nil {
		return nil, a.Err
	}
	if a.Result == nil {
		return nil, fmt.Errorf("ephystest: no result configured")
	}
	return a.Result, nil
}

// Calls returns the recorded invocations.
func (a *Analyzer) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Call(nil), a.calls...)
}

// Result returns a fully populated long-square result for sweeps 0..2.
func Result() *ephys.LongSquareResult {
	spike := ephys.SpikeFeatures{
		ThresholdV: -45.1, TroughV: -55.2, FastTroughV: -52.3, SlowTroughV: -56.4,
		ADPV: -50.5, Width: 0.0009, UpstrokeDownstrokeRatio: 3.2,
		PeakT: 1.13, FastTroughT: 1.132, TroughT: 1.14, SlowTroughT: 1.15,
	}
	return &ephys.LongSquareResult{
		VBaseline: -71.5, RheobaseI: 90, FIFitSlope: 0.21, Sag: 0.08, VmForSag: -91.2,
		InputResistance: 180.5, Tau: 0.021,
		HeroSweep: &ephys.SweepSummary{
			Index: 2, SweepNumber: 12, StimAmp: 130, AvgRate: 14,
			Adapt: 0.03, FirstISI: 0.05, ISICV: 0.12, Latency: 0.02, MeanISI: 0.07, MedianISI: 0.068,
		},
		RheobaseSweep: &ephys.SweepSummary{
			Index: 1, SweepNumber: 11, StimAmp: 90, AvgRate: 2,
			PeakDeflectV: 32.5, PeakDeflectIndex: 5620,
		},
		Spikes: map[int][]ephys.SpikeFeatures{1: {spike}, 2: {spike, spike}},
		Sweeps: []ephys.SweepSummary{
			{Index: 0, SweepNumber: 10, StimAmp: 50, AvgRate: 0},
			{Index: 1, SweepNumber: 11, StimAmp: 90, AvgRate: 2},
			{Index: 2, SweepNumber: 12, StimAmp: 130, AvgRate: 14},
		},
	}
}

// Logger collects formatted log lines by level.
type Logger struct {
	mu     sync.Mutex
	Infos  []string
	Warns  []string
	Errors []string
	Debugs []string
}

func (l *Logger) add(dst *[]string, format string, args []interface{}) {
	l.mu.Lock()
	*dst = append(*dst, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *Logger) Info(format string, args ...interface{})    { l.add(&l.Infos, format, args) }
func (l *Logger) Success(format string, args ...interface{}) { l.add(&l.Infos, format, args) }
func (l *Logger) Warn(format string, args ...interface{})    { l.add(&l.Warns, format, args) }
func (l *Logger) Error(format string, args ...interface{})   { l.add(&l.Errors, format, args) }
func (l *Logger) Debug(format string, args ...interface{})   { l.add(&l.Debugs, format, args) }

// Lines returns a snapshot of every collected line, level-prefixed.
func (l *Logger) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, s := range l.Infos {
		out = append(out, "INFO "+s)
	}
	for _, s := range l.Warns {
		out = append(out, "WARN "+s)
	}
	for _, s := range l.Errors {
		out = append(out, "ERROR "+s)
	}
	for _, s := range l.Debugs {
		out = append(out, "DEBUG "+s)
	}
	return out
}
