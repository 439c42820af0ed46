package features

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Columns is the fixed output column order.
var Columns = []string{
	"filename",
	"v_baseline", "rheobase_i", "fi_fit_slope", "sag", "vm_for_sag", "input_resistance", "tau",
	"hero_adapt", "hero_avg_rate", "hero_first_isi", "hero_isi_cv", "hero_latency",
	"hero_mean_isi", "hero_median_isi", "hero_stim_amp",
	"rheo_threshold_v", "rheo_trough_v", "rheo_fast_trough_v", "rheo_slow_trough_v", "rheo_adp_v",
	"rheo_width", "rheo_upstroke_downstroke_ratio", "rheo_peak_t", "rheo_fast_trough_t",
	"rheo_trough_t", "rheo_slow_trough_t", "rheo_peak_v",
	"maximal_firing_rate",
	"qc_blowout_mv", "qc_electrode_0_pa", "qc_recording_date", "qc_seal_gohm",
	"qc_input_resistance_mohm", "qc_initial_access_resistance_mohm", "qc_input_access_resistance_ratio",
}

var columnIndex = func() map[string]int {
	m := make(map[string]int, len(Columns))
	for i, c := range Columns {
		m[c] = i
	}
	return m
}()

// Value is a single feature: a number (NaN allowed) or text.
type Value struct {
	Num    float64
	Text   string
	IsText bool
}

// Float returns a numeric Value.
func Float(f float64) Value { return Value{Num: f} }

// Text returns a text Value.
func Text(s string) Value { return Value{Text: s, IsText: true} }

// IsNaN reports whether v is a NaN number.
func (v Value) IsNaN() bool { return !v.IsText && math.IsNaN(v.Num) }

// String formats v for CSV: NaN is empty, numbers use the shortest
// representation that round-trips.
func (v Value) String() string {
	if v.IsText {
		return v.Text
	}
	if math.IsNaN(v.Num) {
		return ""
	}
	return strconv.FormatFloat(v.Num, 'g', -1, 64)
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch {
	case v.IsText:
		return json.Marshal(v.Text)
	case math.IsNaN(v.Num) || math.IsInf(v.Num, 0):
		return []byte("null"), nil
	default:
		return json.Marshal(v.Num)
	}
}

func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*v = Float(math.NaN())
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = Text(s)
		return nil
	default:
		var f float64
		if err := json.Unmarshal(b, &f); err != nil {
			return err
		}
		*v = Float(f)
		return nil
	}
}

// Record is the flat feature row of one recording file. The filename is
// always present; feature columns are filled stage by stage and may be
// missing when a stage failed.
type Record struct {
	Filename string

	// RejectedSweeps counts long-square sweeps dropped at load time. It is
	// not a column; it travels with the record so cached rows keep it.
	RejectedSweeps int

	values map[string]Value
}

// NewRecord returns a record with only filename set.
func NewRecord(filename string) *Record {
	return &Record{Filename: filename, values: make(map[string]Value)}
}

// Set stores v under col. col must be one of [Columns] other than filename.
func (r *Record) Set(col string, v Value) {
	if i, ok := columnIndex[col]; !ok || i == 0 {
		panic(fmt.Sprintf("features: unknown column %q", col))
	}
	r.values[col] = v
}

// SetFloat is shorthand for Set(col, Float(f)).
func (r *Record) SetFloat(col string, f float64) { r.Set(col, Float(f)) }

// Get returns the value of col and whether it was set.
func (r *Record) Get(col string) (Value, bool) {
	if col == "filename" {
		return Text(r.Filename), true
	}
	v, ok := r.values[col]
	return v, ok
}

// Len returns the number of feature columns set, excluding filename.
func (r *Record) Len() int { return len(r.values) }

// Complete reports whether every column is set.
func (r *Record) Complete() bool { return len(r.values) == len(Columns)-1 }

// Row returns the record's CSV cells in [Columns] order. Unset columns are
// empty.
func (r *Record) Row() []string {
	row := make([]string, len(Columns))
	row[0] = r.Filename
	for i, col := range Columns[1:] {
		if v, ok := r.values[col]; ok {
			row[i+1] = v.String()
		}
	}
	return row
}

type recordJSON struct {
	Filename string           `json:"filename"`
	Rejected int              `json:"rejected_sweeps,omitempty"`
	Values   map[string]Value `json:"values"`
}

func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{Filename: r.Filename, Rejected: r.RejectedSweeps, Values: r.values})
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	rec := NewRecord(raw.Filename)
	rec.RejectedSweeps = raw.Rejected
	for col, v := range raw.Values {
		if i, ok := columnIndex[col]; !ok || i == 0 {
			return fmt.Errorf("features: unknown column %q in stored record", col)
		}
		rec.values[col] = v
	}
	*r = *rec
	return nil
}
