package ephys

import (
	"errors"
	"fmt"
)

// Kind enumerates the failure categories a per-file analysis can produce.
type Kind int

const (
	KindInternal Kind = iota // Unclassified failure; fatal.
	KindFeature              // Analysis could not compute a feature (e.g. no spikes).
	KindValue                // Input has the right shape but an unusable value.
	KindType                 // Input is missing or of the wrong type.
	KindKey                  // An expected epoch, key or row is absent.
	KindIO                   // File system or decoding failure; fatal.
)

var kindNames = map[Kind]string{
	KindInternal: "InternalError",
	KindFeature:  "FeatureError",
	KindValue:    "ValueError",
	KindType:     "TypeError",
	KindKey:      "KeyError",
	KindIO:       "IOError",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Recoverable reports whether a file that failed with this kind still
// yields a (partial) record while the batch continues.
func (k Kind) Recoverable() bool {
	switch k {
	case KindFeature, KindValue, KindType, KindKey:
		return true
	}
	return false
}

// Stage names the per-file step an error came from.
type Stage string

const (
	StageLoad    Stage = "load"
	StageSweepQC Stage = "sweep_qc"
	StageCellQC  Stage = "cell_qc"
	StageSelect  Stage = "select"
	StageExtract Stage = "extract"
	StageFlatten Stage = "flatten"
)

// Error is the single error type crossing package boundaries for per-file
// analysis failures.
type Error struct {
	Stage   Stage
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, msg, e.Stage)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AtStage tags err with stage. Errors that are not already *Error are
// wrapped as KindInternal so that nothing unclassified is ever recoverable.
// A stage already recorded is kept.
func AtStage(err error, stage Stage) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Stage == "" {
			cp := *e
			cp.Stage = stage
			return &cp
		}
		return err
	}
	return &Error{Stage: stage, Kind: KindInternal, Err: err}
}

// KindOf returns the Kind of err, or KindInternal if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsRecoverable reports whether err is an *Error with a recoverable kind.
func IsRecoverable(err error) bool {
	return err != nil && KindOf(err).Recoverable()
}
