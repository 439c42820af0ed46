package ephys_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/ephysbatch/internal/ephys"
	"github.com/backmassage/ephysbatch/internal/ephys/ephystest"
)

func TestStimulusEpoch(t *testing.T) {
	tests := []struct {
		name       string
		i          []float64
		testPulse  bool
		start, end int
		ok         bool
	}{
		{"flat", []float64{0, 0, 0, 0}, true, 0, 0, false},
		{"empty", nil, true, 0, 0, false},
		{"test pulse only", []float64{0, 1, 1, 0, 0, 0}, true, 0, 0, false},
		{"pulse then step", []float64{0, 1, 0, 0, 5, 5, 5, 0, 0}, true, 4, 6, true},
		{"step without pulse", []float64{0, 0, 5, 5, 0}, false, 2, 3, true},
		{"ramp", []float64{0, 1, 0, 0, 1, 2, 3, 0}, true, 4, 6, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, ok := ephys.StimulusEpoch(tt.i, tt.testPulse)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.start, start)
				assert.Equal(t, tt.end, end)
			}
		})
	}
}

func TestDetectStimulusWindow(t *testing.T) {
	set := &ephys.SweepSet{Sweeps: []*ephys.Sweep{
		ephystest.SquareSweep(1, 100, 100, 10, 20, 59, 50),
		// A later sweep with a different step must not change the window.
		ephystest.SquareSweep(2, 100, 100, 10, 30, 40, 90),
	}}
	set, err := set.SelectEpoch(ephys.EpochRecording)
	require.NoError(t, err)
	set, err = set.AlignToStartOfEpoch(ephys.EpochExperiment)
	require.NoError(t, err)

	win, err := ephys.DetectStimulusWindow(set)
	require.NoError(t, err)
	assert.Equal(t, 20, win.StartIndex)
	assert.Equal(t, 59, win.EndIndex)
	assert.InDelta(t, 0.10, win.Start, 1e-9)
	assert.InDelta(t, 0.49, win.End, 1e-9)
}

func TestDetectStimulusWindow_NotFound(t *testing.T) {
	s := ephystest.SquareSweep(1, 100, 100, 10, 20, 59, 0)
	_, err := ephys.DetectStimulusWindow(&ephys.SweepSet{Sweeps: []*ephys.Sweep{s}})
	require.Error(t, err)
	assert.Equal(t, ephys.KindType, ephys.KindOf(err))
	assert.Contains(t, err.Error(), "stimulus epoch not found")

	_, err = ephys.DetectStimulusWindow(&ephys.SweepSet{})
	assert.Equal(t, ephys.KindValue, ephys.KindOf(err))
}
