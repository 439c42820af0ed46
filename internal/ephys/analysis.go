package ephys

import (
	"context"
	"math"
)

// Options are the fixed per-run analysis settings.
type Options struct {
	LongSquareNames  []string
	FilterKHz        float64
	BaselineInterval float64 // Seconds.
	SubthreshMinAmp  float64 // pA.
}

// DefaultOptions returns the settings the lab protocol uses.
func DefaultOptions() Options {
	return Options{
		LongSquareNames: []string{
			"Long Square",
			"Long Square Threshold",
			"Long Square SupraThreshold",
			"Long Square SubThreshold",
		},
		FilterKHz:        1.0,
		BaselineInterval: 0.05,
		SubthreshMinAmp:  -100,
	}
}

// AnalysisParams is one long-square analysis request.
type AnalysisParams struct {
	Window           StimulusWindow
	FilterKHz        float64
	BaselineInterval float64
	SubthreshMinAmp  float64
}

// Analyzer runs spike and long-square analysis on a prepared sweep set.
type Analyzer interface {
	AnalyzeLongSquare(ctx context.Context, set *SweepSet, p AnalysisParams) (*LongSquareResult, error)
}

// SweepSummary is one row of the per-sweep rate table.
type SweepSummary struct {
	Index       int // Position within the analyzed sweep set.
	SweepNumber int
	StimAmp     float64
	AvgRate     float64
	Adapt       float64
	FirstISI    float64
	ISICV       float64
	Latency     float64
	MeanISI     float64
	MedianISI   float64

	// PeakDeflect is (voltage, sample index) of the largest deflection.
	PeakDeflectV     float64
	PeakDeflectIndex int
}

// SpikeFeatures are the features of one detected spike.
type SpikeFeatures struct {
	ThresholdV              float64
	TroughV                 float64
	FastTroughV             float64
	SlowTroughV             float64
	ADPV                    float64
	Width                   float64
	UpstrokeDownstrokeRatio float64
	PeakT                   float64
	FastTroughT             float64
	TroughT                 float64
	SlowTroughT             float64
}

// LongSquareResult is the typed outcome of long-square analysis. NaN marks
// a feature that was computed but is undefined for this cell.
type LongSquareResult struct {
	VBaseline       float64
	RheobaseI       float64
	FIFitSlope      float64
	Sag             float64
	VmForSag        float64
	InputResistance float64
	Tau             float64

	HeroSweep     *SweepSummary
	RheobaseSweep *SweepSummary

	// Spikes is keyed by sweep index within the analyzed set.
	Spikes map[int][]SpikeFeatures
	Sweeps []SweepSummary
}

// RheobaseSpike returns the first spike of the rheobase sweep.
func (r *LongSquareResult) RheobaseSpike() (SpikeFeatures, error) {
	if r.RheobaseSweep == nil {
		return SpikeFeatures{}, Errorf(KindKey, "rheobase_sweep")
	}
	spikes, ok := r.Spikes[r.RheobaseSweep.Index]
	if !ok || len(spikes) == 0 {
		return SpikeFeatures{}, Errorf(KindKey, "no spikes for rheobase sweep index %d", r.RheobaseSweep.Index)
	}
	return spikes[0], nil
}

// MaximalFiringRate returns the largest average rate across the rate table.
// A NaN entry makes the result NaN.
func (r *LongSquareResult) MaximalFiringRate() (float64, error) {
	if len(r.Sweeps) == 0 {
		return math.NaN(), Errorf(KindValue, "attempt to get argmax of an empty sequence")
	}
	best := math.Inf(-1)
	for _, s := range r.Sweeps {
		if math.IsNaN(s.AvgRate) {
			return math.NaN(), nil
		}
		if s.AvgRate > best {
			best = s.AvgRate
		}
	}
	return best, nil
}

// SweepQC is the pass-through per-sweep QC metric set.
type SweepQC map[string]interface{}

// CellQC holds the cell-level recording quality features.
type CellQC struct {
	BlowoutMV                   float64
	Electrode0PA                float64
	RecordingDate               string
	SealGOhm                    float64
	InputResistanceMOhm         float64
	InitialAccessResistanceMOhm float64
	InputAccessResistanceRatio  float64
}

// ExtractStimulusFeatures prepares set for long-square analysis and runs it:
// restrict every sweep to the recording epoch, align time on the experiment
// epoch, detect the stimulus window on the first sweep, then call a.
func ExtractStimulusFeatures(ctx context.Context, set *SweepSet, a Analyzer, opts Options, log Logger) (*LongSquareResult, error) {
	if set.Len() == 0 {
		return nil, &Error{Stage: StageExtract, Kind: KindValue, Message: "no long square sweeps to analyze"}
	}
	prepared, err := set.SelectEpoch(EpochRecording)
	if err != nil {
		return nil, AtStage(err, StageExtract)
	}
	prepared, err = prepared.AlignToStartOfEpoch(EpochExperiment)
	if err != nil {
		return nil, AtStage(err, StageExtract)
	}
	win, err := DetectStimulusWindow(prepared)
	if err != nil {
		return nil, AtStage(err, StageExtract)
	}
	log.Debug("Start: %.3f, end: %.3f", win.Start, win.End)

	res, err := a.AnalyzeLongSquare(ctx, prepared, AnalysisParams{
		Window:           win,
		FilterKHz:        opts.FilterKHz,
		BaselineInterval: opts.BaselineInterval,
		SubthreshMinAmp:  opts.SubthreshMinAmp,
	})
	if err != nil {
		return nil, AtStage(err, StageExtract)
	}
	return res, nil
}
