// Package config holds runtime configuration: defaults, YAML file loading,
// CLI flag binding, and validation. Precedence is defaults < file < flags.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/backmassage/ephysbatch/internal/ephys"
)

// --- Enum types for validated string fields ---

// ColorMode controls ANSI color output.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"   // Enable colors when stdout is a TTY (default).
	ColorAlways ColorMode = "always" // Force colors on.
	ColorNever  ColorMode = "never"  // Disable colors entirely.
)

// FaultPolicy decides what a non-recoverable per-file error does to the batch.
type FaultPolicy string

const (
	FailFast  FaultPolicy = "fail-fast"  // First fatal error aborts the batch (default).
	KeepGoing FaultPolicy = "keep-going" // Fatal errors keep a filename-only row.
)

// Config holds all runtime settings. It is populated by [DefaultConfig],
// optionally overlaid by [LoadFile], then by CLI flags bound with
// [BindFlags], and finally passed (by pointer) to packages that need it.
type Config struct {
	// Paths.
	InputDir   string `yaml:"input_dir"`
	OutputFile string `yaml:"output_file" validate:"required"`
	ConfigFile string `yaml:"-"`

	// Worker pool.
	Workers     int         `yaml:"workers" validate:"min=1,max=512"`
	FaultPolicy FaultPolicy `yaml:"fault_policy"`

	// Analysis bridge.
	BridgeCommand string `yaml:"bridge" validate:"required"`

	// Sweep selection and analysis parameters.
	LongSquareNames  []string `yaml:"long_square_names" validate:"min=1,dive,required"`
	SubthreshMinAmp  float64  `yaml:"subthresh_min_amp"`  // Default: -100 pA.
	FilterKHz        float64  `yaml:"filter_khz" validate:"gt=0"`
	BaselineInterval float64  `yaml:"baseline_interval" validate:"gt=0"`

	// Resume and observability.
	CheckpointDir string `yaml:"checkpoint_dir"`
	MetricsFile   string `yaml:"metrics_file"`
	ShowSummary   bool   `yaml:"summary"` // Default: true. Cleared by --no-summary.

	// Display and logging.
	Verbose   bool      `yaml:"verbose"`
	ColorMode ColorMode `yaml:"color"`
	LogFile   string    `yaml:"log_file"`
	CheckOnly bool      `yaml:"-"`
}

// DefaultConfig returns a Config with the standard lab settings: 12
// workers, long-square stimulus family, -100 pA subthreshold minimum,
// 1 kHz spike filter and a 50 ms baseline interval.
func DefaultConfig() Config {
	opts := ephys.DefaultOptions()
	return Config{
		OutputFile:       "ephys_features.csv",
		Workers:          12,
		FaultPolicy:      FailFast,
		BridgeCommand:    "ipfx-bridge",
		LongSquareNames:  opts.LongSquareNames,
		SubthreshMinAmp:  opts.SubthreshMinAmp,
		FilterKHz:        opts.FilterKHz,
		BaselineInterval: opts.BaselineInterval,
		ShowSummary:      true,
		ColorMode:        ColorAuto,
	}
}

// AnalysisOptions returns the per-run analysis settings.
func (c *Config) AnalysisOptions() ephys.Options {
	return ephys.Options{
		LongSquareNames:  append([]string(nil), c.LongSquareNames...),
		FilterKHz:        c.FilterKHz,
		BaselineInterval: c.BaselineInterval,
		SubthreshMinAmp:  c.SubthreshMinAmp,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// NormalizeDirArg strips trailing slashes from a directory path.
// The filesystem root "/" is returned unchanged so we don't produce an empty string.
func NormalizeDirArg(path string) string {
	if path == "/" {
		return "/"
	}
	return strings.TrimRight(path, "/")
}

// Validate checks enum fields and numeric ranges. When not in CheckOnly
// mode it also requires the input directory.
func (c *Config) Validate() error {
	switch c.ColorMode {
	case ColorAuto, ColorAlways, ColorNever:
		// valid
	default:
		return errors.New("invalid color mode (use 'auto', 'always' or 'never')")
	}

	switch c.FaultPolicy {
	case FailFast, KeepGoing:
		// valid
	default:
		return errors.New("invalid fault policy (use 'fail-fast' or 'keep-going')")
	}

	if math.IsNaN(c.SubthreshMinAmp) || math.IsInf(c.SubthreshMinAmp, 0) {
		return errors.New("subthreshold minimum amplitude must be a finite number")
	}

	if err := validate.Struct(c); err != nil {
		return describe(err)
	}

	if c.CheckOnly {
		return nil
	}
	if c.InputDir == "" {
		return errors.New("need exactly one input_dir")
	}
	return nil
}

// describe turns the first validator failure into a message naming the
// config key the user would actually type.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	key := map[string]string{
		"OutputFile":       "output file",
		"Workers":          "workers",
		"BridgeCommand":    "bridge command",
		"LongSquareNames":  "long-square stimulus names",
		"FilterKHz":        "filter (kHz)",
		"BaselineInterval": "baseline interval",
	}[fe.StructField()]
	if key == "" {
		key = fe.Field()
	}
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s must not be empty", key)
	case "min", "max":
		return fmt.Errorf("%s out of range (%s=%s, got %v)", key, fe.Tag(), fe.Param(), fe.Value())
	case "gt":
		return fmt.Errorf("%s must be greater than %s (got %v)", key, fe.Param(), fe.Value())
	default:
		return fmt.Errorf("invalid %s (%s)", key, fe.Tag())
	}
}
