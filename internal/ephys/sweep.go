package ephys

import (
	"sort"
)

// Well-known epoch names.
const (
	EpochRecording  = "recording"
	EpochExperiment = "experiment"
	EpochTest       = "test"
	EpochStim       = "stim"
)

// ClampMode is the amplifier mode a sweep was recorded in.
type ClampMode string

const (
	CurrentClamp ClampMode = "CurrentClamp"
	VoltageClamp ClampMode = "VoltageClamp"
)

// SweepInfo is one row of a dataset's sweep table.
type SweepInfo struct {
	Number        int
	StimulusName  string
	StimulusCode  string
	StimulusUnits string
	ClampMode     ClampMode
	Passed        bool
}

// SweepTable is the ordered sweep table of a dataset.
type SweepTable []SweepInfo

// Numbers returns the sweep numbers in table order.
func (t SweepTable) Numbers() []int {
	out := make([]int, len(t))
	for i, s := range t {
		out[i] = s.Number
	}
	return out
}

// Epoch is an inclusive sample-index interval within a sweep.
type Epoch struct {
	Start int
	End   int
}

// Len returns the number of samples in the epoch.
func (e Epoch) Len() int { return e.End - e.Start + 1 }

// Sweep is a single stimulus/response trace. T, V and I always hold the
// full recording; the accessors return the selected epoch only.
type Sweep struct {
	Number       int
	SamplingRate float64
	T            []float64 // Seconds.
	V            []float64 // Response (mV).
	I            []float64 // Stimulus (pA).
	Epochs       map[string]Epoch

	selected string
}

// Validate checks that the three traces have equal length and that every
// epoch lies inside them.
func (s *Sweep) Validate() error {
	n := len(s.T)
	if n == 0 {
		return Errorf(KindValue, "sweep %d has no samples", s.Number)
	}
	if len(s.V) != n || len(s.I) != n {
		return Errorf(KindValue, "sweep %d has mismatched traces (t=%d v=%d i=%d)",
			s.Number, n, len(s.V), len(s.I))
	}
	for name, ep := range s.Epochs {
		if ep.Start < 0 || ep.End >= n || ep.Start > ep.End {
			return Errorf(KindValue, "sweep %d epoch %q [%d, %d] outside %d samples",
				s.Number, name, ep.Start, ep.End, n)
		}
	}
	return nil
}

// SelectedEpoch returns the epoch name the accessors are restricted to, or
// "" when the whole sweep is visible.
func (s *Sweep) SelectedEpoch() string { return s.selected }

func (s *Sweep) window() (int, int) {
	if ep, ok := s.Epochs[s.selected]; ok && s.selected != "" {
		return ep.Start, ep.End + 1
	}
	return 0, len(s.T)
}

// Time returns the time axis of the selected epoch.
func (s *Sweep) Time() []float64 { a, b := s.window(); return s.T[a:b] }

// Response returns the voltage trace of the selected epoch.
func (s *Sweep) Response() []float64 { a, b := s.window(); return s.V[a:b] }

// Stimulus returns the current trace of the selected epoch.
func (s *Sweep) Stimulus() []float64 { a, b := s.window(); return s.I[a:b] }

// SelectEpoch returns a copy of s whose accessors are restricted to the
// named epoch. Trace data is shared, not copied.
func (s *Sweep) SelectEpoch(name string) (*Sweep, error) {
	if _, ok := s.Epochs[name]; !ok {
		return nil, Errorf(KindKey, "sweep %d has no %q epoch", s.Number, name)
	}
	cp := *s
	cp.selected = name
	return &cp, nil
}

// AlignToStartOfEpoch returns a copy of s whose time axis is shifted so the
// first sample of the named epoch is t=0. The reference is taken from the
// full time axis, not from the selected window.
func (s *Sweep) AlignToStartOfEpoch(name string) (*Sweep, error) {
	ep, ok := s.Epochs[name]
	if !ok {
		return nil, Errorf(KindKey, "sweep %d has no %q epoch", s.Number, name)
	}
	if ep.Start < 0 || ep.Start >= len(s.T) {
		return nil, Errorf(KindValue, "sweep %d epoch %q starts outside the trace", s.Number, name)
	}
	ref := s.T[ep.Start]
	t := make([]float64, len(s.T))
	for i, v := range s.T {
		t[i] = v - ref
	}
	cp := *s
	cp.T = t
	return &cp, nil
}

// SweepSet is an ordered group of sweeps from one file, plus the
// preprocessing applied to it so that an out-of-process analyzer can
// replay the same steps.
type SweepSet struct {
	Path          string
	Sweeps        []*Sweep
	SelectedEpoch string
	AlignedEpoch  string

	// Rejected lists sweep numbers that passed the table filter but failed
	// to load.
	Rejected []int
}

// Len returns the number of sweeps.
func (ss *SweepSet) Len() int {
	if ss == nil {
		return 0
	}
	return len(ss.Sweeps)
}

// SweepNumbers returns the sweep numbers in set order.
func (ss *SweepSet) SweepNumbers() []int {
	out := make([]int, 0, ss.Len())
	if ss == nil {
		return out
	}
	for _, s := range ss.Sweeps {
		out = append(out, s.Number)
	}
	return out
}

// SelectEpoch applies [Sweep.SelectEpoch] to every sweep and returns a new set.
func (ss *SweepSet) SelectEpoch(name string) (*SweepSet, error) {
	out := ss.derive()
	for i, s := range ss.Sweeps {
		sel, err := s.SelectEpoch(name)
		if err != nil {
			return nil, err
		}
		out.Sweeps[i] = sel
	}
	out.SelectedEpoch = name
	return out, nil
}

// AlignToStartOfEpoch applies [Sweep.AlignToStartOfEpoch] to every sweep
// and returns a new set.
func (ss *SweepSet) AlignToStartOfEpoch(name string) (*SweepSet, error) {
	out := ss.derive()
	for i, s := range ss.Sweeps {
		al, err := s.AlignToStartOfEpoch(name)
		if err != nil {
			return nil, err
		}
		out.Sweeps[i] = al
	}
	out.AlignedEpoch = name
	return out, nil
}

func (ss *SweepSet) derive() *SweepSet {
	out := *ss
	out.Sweeps = make([]*Sweep, len(ss.Sweeps))
	out.Rejected = append([]int(nil), ss.Rejected...)
	return &out
}

// sortSweeps orders sweeps by ascending sweep number.
func sortSweeps(sweeps []*Sweep) {
	sort.Slice(sweeps, func(i, j int) bool { return sweeps[i].Number < sweeps[j].Number })
}
