package features

import (
	"github.com/backmassage/ephysbatch/internal/ephys"
)

// flattenStage copies one group of features into rec.
type flattenStage func(rec *Record, res *ephys.LongSquareResult, qc ephys.CellQC) error

// Stage order is part of the output contract: when a stage fails, every
// earlier group is already set on the record and every later one is not.
var flattenStages = []flattenStage{
	flattenGeneral,
	flattenHero,
	flattenRheobase,
	flattenMaxRate,
	flattenQC,
}

// Flatten copies the analysis result and cell QC into rec, group by group.
// On error rec keeps the groups that were copied before the failure.
func Flatten(rec *Record, res *ephys.LongSquareResult, qc ephys.CellQC) error {
	for _, stage := range flattenStages {
		if err := stage(rec, res, qc); err != nil {
			return ephys.AtStage(err, ephys.StageFlatten)
		}
	}
	return nil
}

func flattenGeneral(rec *Record, res *ephys.LongSquareResult, _ ephys.CellQC) error {
	rec.SetFloat("v_baseline", res.VBaseline)
	rec.SetFloat("rheobase_i", res.RheobaseI)
	rec.SetFloat("fi_fit_slope", res.FIFitSlope)
	rec.SetFloat("sag", res.Sag)
	rec.SetFloat("vm_for_sag", res.VmForSag)
	rec.SetFloat("input_resistance", res.InputResistance)
	rec.SetFloat("tau", res.Tau)
	return nil
}

func flattenHero(rec *Record, res *ephys.LongSquareResult, _ ephys.CellQC) error {
	h := res.HeroSweep
	if h == nil {
		return ephys.Errorf(ephys.KindFeature, "no hero sweep")
	}
	rec.SetFloat("hero_adapt", h.Adapt)
	rec.SetFloat("hero_avg_rate", h.AvgRate)
	rec.SetFloat("hero_first_isi", h.FirstISI)
	rec.SetFloat("hero_isi_cv", h.ISICV)
	rec.SetFloat("hero_latency", h.Latency)
	rec.SetFloat("hero_mean_isi", h.MeanISI)
	rec.SetFloat("hero_median_isi", h.MedianISI)
	rec.SetFloat("hero_stim_amp", h.StimAmp)
	return nil
}

func flattenRheobase(rec *Record, res *ephys.LongSquareResult, _ ephys.CellQC) error {
	sp, err := res.RheobaseSpike()
	if err != nil {
		return err
	}
	rec.SetFloat("rheo_threshold_v", sp.ThresholdV)
	rec.SetFloat("rheo_trough_v", sp.TroughV)
	rec.SetFloat("rheo_fast_trough_v", sp.FastTroughV)
	rec.SetFloat("rheo_slow_trough_v", sp.SlowTroughV)
	rec.SetFloat("rheo_adp_v", sp.ADPV)
	rec.SetFloat("rheo_width", sp.Width)
	rec.SetFloat("rheo_upstroke_downstroke_ratio", sp.UpstrokeDownstrokeRatio)
	rec.SetFloat("rheo_peak_t", sp.PeakT)
	rec.SetFloat("rheo_fast_trough_t", sp.FastTroughT)
	rec.SetFloat("rheo_trough_t", sp.TroughT)
	rec.SetFloat("rheo_slow_trough_t", sp.SlowTroughT)
	rec.SetFloat("rheo_peak_v", res.RheobaseSweep.PeakDeflectV)
	return nil
}

func flattenMaxRate(rec *Record, res *ephys.LongSquareResult, _ ephys.CellQC) error {
	rate, err := res.MaximalFiringRate()
	if err != nil {
		return err
	}
	rec.SetFloat("maximal_firing_rate", rate)
	return nil
}

func flattenQC(rec *Record, _ *ephys.LongSquareResult, qc ephys.CellQC) error {
	rec.SetFloat("qc_blowout_mv", qc.BlowoutMV)
	rec.SetFloat("qc_electrode_0_pa", qc.Electrode0PA)
	rec.Set("qc_recording_date", Text(qc.RecordingDate))
	rec.SetFloat("qc_seal_gohm", qc.SealGOhm)
	rec.SetFloat("qc_input_resistance_mohm", qc.InputResistanceMOhm)
	rec.SetFloat("qc_initial_access_resistance_mohm", qc.InitialAccessResistanceMOhm)
	rec.SetFloat("qc_input_access_resistance_ratio", qc.InputAccessResistanceRatio)
	return nil
}
