package config

// This file implements CLI flag binding on a pflag.FlagSet (owned by the
// cobra root command) and the post-parse step that layers the YAML file
// between defaults and explicitly passed flags.
// Negated flags (e.g. --no-summary) are applied after Parse so Config
// defaults hold unless set.

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

// Binding ties a FlagSet to the Config it writes into. Create it with
// [BindFlags] before parsing and call [Binding.Apply] after.
type Binding struct {
	cfg     *Config
	negated negatedFlags
}

// negatedFlags holds boolean flags that are applied after Parse.
// These either invert a default (noSummary -> ShowSummary=false) or
// trigger an early exit (showVersion).
type negatedFlags struct {
	noSummary   bool
	keepGoing   bool
	forceColor  bool
	noColor     bool
	showVersion bool
}

// BindFlags registers every flag on fs, writing directly into cfg.
func BindFlags(fs *pflag.FlagSet, cfg *Config) *Binding {
	b := &Binding{cfg: cfg}
	fs.SortFlags = false

	defineOutputFlags(fs, cfg)
	defineAnalysisFlags(fs, cfg)
	defineBehaviorFlags(fs, cfg, &b.negated)
	defineDisplayFlags(fs, cfg, &b.negated)
	defineUtilityFlags(fs, cfg, &b.negated)
	return b
}

// ShowVersion reports whether -V/--version was passed.
func (b *Binding) ShowVersion() bool { return b.negated.showVersion }

// defineOutputFlags registers -o/--output, -j/--workers, --config.
func defineOutputFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVarP(&cfg.OutputFile, "output", "o", cfg.OutputFile, "CSV file to write")
	fs.IntVarP(&cfg.Workers, "workers", "j", cfg.Workers, "Number of files analyzed concurrently")
	fs.StringVar(&cfg.ConfigFile, "config", "", "YAML config file (flags override it)")
}

// defineAnalysisFlags registers the bridge command and the analysis parameters.
func defineAnalysisFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.BridgeCommand, "bridge", cfg.BridgeCommand, "Analysis bridge executable")
	fs.StringSliceVar(&cfg.LongSquareNames, "long-square-names", cfg.LongSquareNames, "Stimulus names treated as long-square sweeps")
	fs.Float64Var(&cfg.SubthreshMinAmp, "subthresh-min-amp", cfg.SubthreshMinAmp, "Minimum subthreshold stimulus amplitude (pA)")
	fs.Float64Var(&cfg.FilterKHz, "filter-khz", cfg.FilterKHz, "Spike detection low-pass filter (kHz)")
	fs.Float64Var(&cfg.BaselineInterval, "baseline-interval", cfg.BaselineInterval, "Spike-train baseline interval (s)")
}

// defineBehaviorFlags registers fault policy, checkpoint, metrics and summary flags.
func defineBehaviorFlags(fs *pflag.FlagSet, cfg *Config, n *negatedFlags) {
	fs.BoolVar(&n.keepGoing, "keep-going", false, "Keep a filename-only row when a file fails fatally")
	fs.StringVar(&cfg.CheckpointDir, "checkpoint", "", "Directory of the resume checkpoint store")
	fs.StringVar(&cfg.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
	fs.BoolVar(&n.noSummary, "no-summary", false, "Do not print the feature summary table")
}

// defineDisplayFlags registers --color, --no-color, verbose, --log.
func defineDisplayFlags(fs *pflag.FlagSet, cfg *Config, n *negatedFlags) {
	fs.BoolVar(&n.forceColor, "color", false, "Force colored logs")
	fs.BoolVar(&n.noColor, "no-color", false, "Disable colored logs")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Verbose output")
	fs.StringVarP(&cfg.LogFile, "log", "l", "", "Append logs to file")
}

// defineUtilityFlags registers --check and --version.
func defineUtilityFlags(fs *pflag.FlagSet, cfg *Config, n *negatedFlags) {
	fs.BoolVarP(&cfg.CheckOnly, "check", "c", false, "Check the analysis bridge and exit")
	fs.BoolVarP(&n.showVersion, "version", "V", false, "Print version and exit")
}

// Apply finishes configuration after fs has been parsed: it overlays the
// config file (if any) beneath explicitly passed flags, applies negated
// flags and reads the positional input directory.
func (b *Binding) Apply(fs *pflag.FlagSet, args []string) error {
	if b.cfg.ConfigFile != "" {
		if err := b.overlayFile(fs); err != nil {
			return err
		}
	}
	applyNegatedFlags(b.cfg, &b.negated)
	return parsePositionalArgs(args, b.cfg)
}

// overlayFile resets cfg to defaults, loads the file, then replays every
// flag the user passed so flags keep precedence over the file.
func (b *Binding) overlayFile(fs *pflag.FlagSet) error {
	type passed struct {
		flag  *pflag.Flag
		value string
		slice []string
	}
	var replay []passed
	fs.Visit(func(f *pflag.Flag) {
		p := passed{flag: f, value: f.Value.String()}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			p.slice = append([]string(nil), sv.GetSlice()...)
		}
		replay = append(replay, p)
	})

	path := b.cfg.ConfigFile
	*b.cfg = DefaultConfig()
	b.cfg.ConfigFile = path
	if err := LoadFile(path, b.cfg); err != nil {
		return err
	}

	for _, p := range replay {
		if sv, ok := p.flag.Value.(pflag.SliceValue); ok {
			if err := sv.Replace(p.slice); err != nil {
				return fmt.Errorf("--%s: %w", p.flag.Name, err)
			}
			continue
		}
		if err := p.flag.Value.Set(p.value); err != nil {
			return fmt.Errorf("--%s: %w", p.flag.Name, err)
		}
	}
	return nil
}

// applyNegatedFlags copies negated and override flag values into cfg.
func applyNegatedFlags(cfg *Config, n *negatedFlags) {
	if n.noSummary {
		cfg.ShowSummary = false
	}
	if n.keepGoing {
		cfg.FaultPolicy = KeepGoing
	}
	if n.noColor {
		cfg.ColorMode = ColorNever
	} else if n.forceColor {
		cfg.ColorMode = ColorAlways
	}
}

// parsePositionalArgs sets InputDir from the single positional arg. A
// config file may supply input_dir instead; a positional arg wins.
func parsePositionalArgs(args []string, cfg *Config) error {
	if cfg.CheckOnly {
		return nil
	}
	switch len(args) {
	case 0:
		if cfg.InputDir == "" {
			return fmt.Errorf("need exactly one input_dir")
		}
	case 1:
		cfg.InputDir = NormalizeDirArg(args[0])
	default:
		return fmt.Errorf("need exactly one input_dir (got %s)", strings.Join(args, " "))
	}
	return nil
}
