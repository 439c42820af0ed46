package ephys

// StimulusWindow is the detected stimulus-on interval of a sweep set.
type StimulusWindow struct {
	StartIndex int
	EndIndex   int
	Start      float64 // Seconds, on the aligned time axis.
	End        float64
}

// StimulusEpoch finds the stimulus-on interval of a current trace: the
// first and last sample where the command changes. With testPulse set, the
// first two transitions (the test pulse going up and back down) are ignored.
// ok is false when no transition remains.
func StimulusEpoch(i []float64, testPulse bool) (start, end int, ok bool) {
	var changes []int
	for k := 1; k < len(i); k++ {
		if i[k] != i[k-1] {
			changes = append(changes, k-1)
		}
	}
	if testPulse {
		if len(changes) <= 2 {
			return 0, 0, false
		}
		changes = changes[2:]
	}
	if len(changes) == 0 {
		return 0, 0, false
	}
	// +1 compensates for the diff offset on the rising edge.
	return changes[0] + 1, changes[len(changes)-1], true
}

// DetectStimulusWindow runs [StimulusEpoch] on the first sweep of set
// (treated as representative) and converts the indices to times on that
// sweep's selected time axis.
func DetectStimulusWindow(set *SweepSet) (StimulusWindow, error) {
	if set.Len() == 0 {
		return StimulusWindow{}, Errorf(KindValue, "no sweeps to detect a stimulus window on")
	}
	first := set.Sweeps[0]
	start, end, ok := StimulusEpoch(first.Stimulus(), true)
	if !ok {
		return StimulusWindow{}, Errorf(KindType, "sweep %d: stimulus epoch not found", first.Number)
	}
	t := first.Time()
	if end >= len(t) {
		return StimulusWindow{}, Errorf(KindValue, "sweep %d: stimulus end %d past %d samples", first.Number, end, len(t))
	}
	return StimulusWindow{
		StartIndex: start,
		EndIndex:   end,
		Start:      t[start],
		End:        t[end],
	}, nil
}
