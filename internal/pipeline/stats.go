package pipeline

import "time"

// RunStats tracks per-outcome counters across a batch run. Every
// discovered file lands in exactly one of Complete, Partial, Failed or
// Cached.
type RunStats struct {
	RunID          string
	Total          int
	Complete       int
	Partial        int
	Failed         int
	Cached         int
	RejectedSweeps int64
	Elapsed        time.Duration
}

// Rows returns how many rows the output table holds.
func (s *RunStats) Rows() int {
	return s.Complete + s.Partial + s.Failed + s.Cached
}

// outcome is what happened to one file.
type outcome int

const (
	outcomeComplete outcome = iota
	outcomePartial
	outcomeFailed
	outcomeCached
)

func (s *RunStats) add(o outcome) {
	switch o {
	case outcomeComplete:
		s.Complete++
	case outcomePartial:
		s.Partial++
	case outcomeFailed:
		s.Failed++
	case outcomeCached:
		s.Cached++
	}
}
