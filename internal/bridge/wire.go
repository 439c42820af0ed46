package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/backmassage/ephysbatch/internal/ephys"
)

// --- Presence-tracking scalars ---

// number is a JSON number that remembers whether its key was present.
// null decodes as NaN ("computed but undefined").
type number struct {
	Present bool
	Value   float64
}

func (n *number) UnmarshalJSON(b []byte) error {
	n.Present = true
	if string(b) == "null" {
		n.Value = math.NaN()
		return nil
	}
	return json.Unmarshal(b, &n.Value)
}

// Float returns the value, or NaN when the key was absent.
func (n number) Float() float64 {
	if !n.Present {
		return math.NaN()
	}
	return n.Value
}

// text is a JSON string that remembers whether its key was present.
// null decodes as "".
type text struct {
	Present bool
	Value   string
}

func (t *text) UnmarshalJSON(b []byte) error {
	t.Present = true
	if string(b) == "null" {
		t.Value = ""
		return nil
	}
	return json.Unmarshal(b, &t.Value)
}

// samples is a JSON array of numbers where null entries decode as NaN.
type samples []float64

func (s *samples) UnmarshalJSON(b []byte) error {
	var raw []*float64
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make([]float64, len(raw))
	for i, p := range raw {
		if p == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *p
	}
	*s = out
	return nil
}

// --- Wire types ---

type versionOutput struct {
	Version string `json:"version" validate:"required"`
}

type sweepTableOutput struct {
	Sweeps []sweepRowWire `json:"sweeps" validate:"dive"`
}

type sweepRowWire struct {
	SweepNumber   *int   `json:"sweep_number" validate:"required"`
	StimulusName  string `json:"stimulus_name"`
	StimulusCode  string `json:"stimulus_code"`
	StimulusUnits string `json:"stimulus_units"`
	ClampMode     string `json:"clamp_mode" validate:"oneof=CurrentClamp VoltageClamp"`
	Passed        *bool  `json:"passed" validate:"required"`
}

type sweepOutput struct {
	SweepNumber  *int              `json:"sweep_number" validate:"required"`
	SamplingRate number            `json:"sampling_rate" validate:"required"`
	T            samples           `json:"t" validate:"required"`
	V            samples           `json:"v" validate:"required"`
	I            samples           `json:"i" validate:"required"`
	Epochs       map[string][2]int `json:"epochs" validate:"required"`
}

type sweepQCOutput struct {
	Sweeps []map[string]interface{} `json:"sweeps"`
}

type cellQCOutput struct {
	Features cellQCWire `json:"features" validate:"required"`
	Tags     []string   `json:"tags"`
}

type cellQCWire struct {
	BlowoutMV                   number `json:"blowout_mv" validate:"required"`
	Electrode0PA                number `json:"electrode_0_pa" validate:"required"`
	RecordingDate               text   `json:"recording_date" validate:"required"`
	SealGOhm                    number `json:"seal_gohm" validate:"required"`
	InputResistanceMOhm         number `json:"input_resistance_mohm" validate:"required"`
	InitialAccessResistanceMOhm number `json:"initial_access_resistance_mohm" validate:"required"`
	InputAccessResistanceRatio  number `json:"input_access_resistance_ratio" validate:"required"`
}

type longSquareRequest struct {
	Sweeps           []int   `json:"sweeps"`
	SelectEpoch      string  `json:"select_epoch"`
	AlignEpoch       string  `json:"align_epoch"`
	StimStart        float64 `json:"stim_start"`
	StimEnd          float64 `json:"stim_end"`
	Filter           float64 `json:"filter"`
	BaselineInterval float64 `json:"baseline_interval"`
	SubthreshMinAmp  float64 `json:"subthresh_min_amp"`
}

type longSquareOutput struct {
	VBaseline       number `json:"v_baseline" validate:"required"`
	RheobaseI       number `json:"rheobase_i" validate:"required"`
	FIFitSlope      number `json:"fi_fit_slope" validate:"required"`
	Sag             number `json:"sag" validate:"required"`
	VmForSag        number `json:"vm_for_sag" validate:"required"`
	InputResistance number `json:"input_resistance" validate:"required"`
	Tau             number `json:"tau" validate:"required"`

	// Either may be null when the cell never fired.
	HeroSweep     *heroSweepWire     `json:"hero_sweep"`
	RheobaseSweep *rheobaseSweepWire `json:"rheobase_sweep"`

	SpikesSet [][]spikeWire      `json:"spikes_set" validate:"dive,dive"`
	Sweeps    []sweepSummaryWire `json:"sweeps" validate:"dive"`
}

type heroSweepWire struct {
	Index     *int   `json:"index" validate:"required"`
	Number    *int   `json:"sweep_number"`
	StimAmp   number `json:"stim_amp" validate:"required"`
	AvgRate   number `json:"avg_rate" validate:"required"`
	Adapt     number `json:"adapt" validate:"required"`
	FirstISI  number `json:"first_isi" validate:"required"`
	ISICV     number `json:"isi_cv" validate:"required"`
	Latency   number `json:"latency" validate:"required"`
	MeanISI   number `json:"mean_isi" validate:"required"`
	MedianISI number `json:"median_isi" validate:"required"`
}

type rheobaseSweepWire struct {
	Index       *int     `json:"index" validate:"required"`
	Number      *int     `json:"sweep_number"`
	StimAmp     number   `json:"stim_amp"`
	AvgRate     number   `json:"avg_rate"`
	PeakDeflect []number `json:"peak_deflect" validate:"required,len=2"`
}

type sweepSummaryWire struct {
	Index     *int   `json:"index"`
	Number    *int   `json:"sweep_number"`
	StimAmp   number `json:"stim_amp" validate:"required"`
	AvgRate   number `json:"avg_rate" validate:"required"`
	Adapt     number `json:"adapt"`
	FirstISI  number `json:"first_isi"`
	ISICV     number `json:"isi_cv"`
	Latency   number `json:"latency"`
	MeanISI   number `json:"mean_isi"`
	MedianISI number `json:"median_isi"`
}

type spikeWire struct {
	ThresholdV              number `json:"threshold_v" validate:"required"`
	TroughV                 number `json:"trough_v" validate:"required"`
	FastTroughV             number `json:"fast_trough_v" validate:"required"`
	SlowTroughV             number `json:"slow_trough_v" validate:"required"`
	ADPV                    number `json:"adp_v" validate:"required"`
	Width                   number `json:"width" validate:"required"`
	UpstrokeDownstrokeRatio number `json:"upstroke_downstroke_ratio" validate:"required"`
	PeakT                   number `json:"peak_t" validate:"required"`
	FastTroughT             number `json:"fast_trough_t" validate:"required"`
	TroughT                 number `json:"trough_t" validate:"required"`
	SlowTroughT             number `json:"slow_trough_t" validate:"required"`
}

// --- Decoding and validation ---

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode unmarshals a bridge document into dst and checks required keys.
// A malformed document is an internal error; a missing key is a KeyError
// and any other constraint failure a ValueError.
func decode(sub string, data []byte, dst interface{}) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return &ephys.Error{Kind: ephys.KindInternal, Message: fmt.Sprintf("parse %s output: %v", sub, err), Err: err}
	}
	if err := validate.Struct(dst); err != nil {
		return describe(sub, err)
	}
	return nil
}

func describe(sub string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ephys.Error{Kind: ephys.KindInternal, Message: err.Error(), Err: err}
	}
	fe := verrs[0]
	key := fe.Namespace()
	if _, rest, ok := strings.Cut(key, "."); ok {
		key = rest
	}
	if fe.Tag() == "required" {
		return ephys.Errorf(ephys.KindKey, "%s output is missing %q", sub, key)
	}
	return ephys.Errorf(ephys.KindValue, "%s output has invalid %q (%s=%s)", sub, key, fe.Tag(), fe.Param())
}
