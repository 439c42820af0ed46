package bridge

import (
	"math"

	"github.com/backmassage/ephysbatch/internal/ephys"
)

// --- Conversion from wire types to domain types ---

func convertSweepTable(raw *sweepTableOutput) ephys.SweepTable {
	table := make(ephys.SweepTable, 0, len(raw.Sweeps))
	for i := range raw.Sweeps {
		r := &raw.Sweeps[i]
		table = append(table, ephys.SweepInfo{
			Number:        *r.SweepNumber,
			StimulusName:  r.StimulusName,
			StimulusCode:  r.StimulusCode,
			StimulusUnits: r.StimulusUnits,
			ClampMode:     ephys.ClampMode(r.ClampMode),
			Passed:        *r.Passed,
		})
	}
	return table
}

func convertSweep(raw *sweepOutput) *ephys.Sweep {
	epochs := make(map[string]ephys.Epoch, len(raw.Epochs))
	for name, se := range raw.Epochs {
		epochs[name] = ephys.Epoch{Start: se[0], End: se[1]}
	}
	return &ephys.Sweep{
		Number:       *raw.SweepNumber,
		SamplingRate: raw.SamplingRate.Float(),
		T:            raw.T,
		V:            raw.V,
		I:            raw.I,
		Epochs:       epochs,
	}
}

func convertSweepQC(raw *sweepQCOutput) []ephys.SweepQC {
	out := make([]ephys.SweepQC, 0, len(raw.Sweeps))
	for _, m := range raw.Sweeps {
		out = append(out, ephys.SweepQC(m))
	}
	return out
}

func convertCellQC(f *cellQCWire) ephys.CellQC {
	return ephys.CellQC{
		BlowoutMV:                   f.BlowoutMV.Float(),
		Electrode0PA:                f.Electrode0PA.Float(),
		RecordingDate:               f.RecordingDate.Value,
		SealGOhm:                    f.SealGOhm.Float(),
		InputResistanceMOhm:         f.InputResistanceMOhm.Float(),
		InitialAccessResistanceMOhm: f.InitialAccessResistanceMOhm.Float(),
		InputAccessResistanceRatio:  f.InputAccessResistanceRatio.Float(),
	}
}

func buildRequest(set *ephys.SweepSet, p ephys.AnalysisParams) longSquareRequest {
	return longSquareRequest{
		Sweeps:           set.SweepNumbers(),
		SelectEpoch:      set.SelectedEpoch,
		AlignEpoch:       set.AlignedEpoch,
		StimStart:        p.Window.Start,
		StimEnd:          p.Window.End,
		Filter:           p.FilterKHz,
		BaselineInterval: p.BaselineInterval,
		SubthreshMinAmp:  p.SubthreshMinAmp,
	}
}

func convertLongSquare(raw *longSquareOutput) *ephys.LongSquareResult {
	res := &ephys.LongSquareResult{
		VBaseline:       raw.VBaseline.Float(),
		RheobaseI:       raw.RheobaseI.Float(),
		FIFitSlope:      raw.FIFitSlope.Float(),
		Sag:             raw.Sag.Float(),
		VmForSag:        raw.VmForSag.Float(),
		InputResistance: raw.InputResistance.Float(),
		Tau:             raw.Tau.Float(),
		Spikes:          make(map[int][]ephys.SpikeFeatures, len(raw.SpikesSet)),
		Sweeps:          make([]ephys.SweepSummary, 0, len(raw.Sweeps)),
	}
	if h := raw.HeroSweep; h != nil {
		res.HeroSweep = &ephys.SweepSummary{
			Index:       *h.Index,
			SweepNumber: intOr(h.Number, -1),
			StimAmp:     h.StimAmp.Float(),
			AvgRate:     h.AvgRate.Float(),
			Adapt:       h.Adapt.Float(),
			FirstISI:    h.FirstISI.Float(),
			ISICV:       h.ISICV.Float(),
			Latency:     h.Latency.Float(),
			MeanISI:     h.MeanISI.Float(),
			MedianISI:   h.MedianISI.Float(),
		}
	}
	if r := raw.RheobaseSweep; r != nil {
		res.RheobaseSweep = &ephys.SweepSummary{
			Index:            *r.Index,
			SweepNumber:      intOr(r.Number, -1),
			StimAmp:          r.StimAmp.Float(),
			AvgRate:          r.AvgRate.Float(),
			PeakDeflectV:     r.PeakDeflect[0].Float(),
			PeakDeflectIndex: sampleIndex(r.PeakDeflect[1]),
		}
	}
	for i, spikes := range raw.SpikesSet {
		conv := make([]ephys.SpikeFeatures, len(spikes))
		for j := range spikes {
			conv[j] = convertSpike(&spikes[j])
		}
		res.Spikes[i] = conv
	}
	for i := range raw.Sweeps {
		s := &raw.Sweeps[i]
		res.Sweeps = append(res.Sweeps, ephys.SweepSummary{
			Index:       intOr(s.Index, i),
			SweepNumber: intOr(s.Number, -1),
			StimAmp:     s.StimAmp.Float(),
			AvgRate:     s.AvgRate.Float(),
			Adapt:       s.Adapt.Float(),
			FirstISI:    s.FirstISI.Float(),
			ISICV:       s.ISICV.Float(),
			Latency:     s.Latency.Float(),
			MeanISI:     s.MeanISI.Float(),
			MedianISI:   s.MedianISI.Float(),
		})
	}
	return res
}

func convertSpike(s *spikeWire) ephys.SpikeFeatures {
	return ephys.SpikeFeatures{
		ThresholdV:              s.ThresholdV.Float(),
		TroughV:                 s.TroughV.Float(),
		FastTroughV:             s.FastTroughV.Float(),
		SlowTroughV:             s.SlowTroughV.Float(),
		ADPV:                    s.ADPV.Float(),
		Width:                   s.Width.Float(),
		UpstrokeDownstrokeRatio: s.UpstrokeDownstrokeRatio.Float(),
		PeakT:                   s.PeakT.Float(),
		FastTroughT:             s.FastTroughT.Float(),
		TroughT:                 s.TroughT.Float(),
		SlowTroughT:             s.SlowTroughT.Float(),
	}
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// sampleIndex converts a JSON sample index, -1 when undefined.
func sampleIndex(n number) int {
	v := n.Float()
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return -1
	}
	return int(v)
}
