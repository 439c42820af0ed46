// Package term decides whether console output is colored and paints text
// by what it means rather than by color name.
//
// The decision is process-wide: [Configure] runs once from the logger
// constructor, after which logging, display and the summary table all ask
// [Paint] for their escapes. With colors off Paint returns its input.
package term

import (
	"os"
	"strings"
	"sync/atomic"

	"github.com/mattn/go-isatty"

	"github.com/backmassage/ephysbatch/internal/config"
)

// Role is the meaning of a painted span.
type Role int

const (
	Info Role = iota
	Debug
	Warn
	Error
	Outlier // value beyond 1.5 IQR
	Extreme // value beyond 3 IQR
)

const reset = "\033[0m"

var palette = map[Role]string{
	Info:    "\033[1;94m",
	Debug:   "\033[1;96m",
	Warn:    "\033[1;93m",
	Error:   "\033[1;91m",
	Outlier: "\033[1;38;5;208m",
	Extreme: "\033[1;91m",
}

var enabled atomic.Bool

// Configure resolves mode against the environment and records the result.
// It reports whether colors are on.
func Configure(mode config.ColorMode) bool {
	on := resolve(mode, os.Stdout, os.Getenv)
	enabled.Store(on)
	return on
}

// Enabled reports whether colors are on.
func Enabled() bool { return enabled.Load() }

// Paint wraps s in the escape for role, or returns s unchanged when colors
// are off or s is empty.
func Paint(role Role, s string) string {
	if s == "" || !enabled.Load() {
		return s
	}
	code, ok := palette[role]
	if !ok {
		return s
	}
	return code + s + reset
}

// resolve honors NO_COLOR (https://no-color.org) and TERM=dumb in auto mode.
func resolve(mode config.ColorMode, out *os.File, getenv func(string) string) bool {
	switch mode {
	case config.ColorAlways:
		return true
	case config.ColorNever:
		return false
	}
	if getenv("NO_COLOR") != "" || strings.EqualFold(getenv("TERM"), "dumb") {
		return false
	}
	return IsTerminal(out)
}

// IsTerminal reports whether f is a TTY, Cygwin and MSYS ptys included.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
