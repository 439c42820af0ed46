// Package logging provides the leveled console logger used across the
// batch. It keeps a small printf-style API on top of zap: stdout for
// INFO/WARN/DEBUG, stderr for ERROR, and an optional plain-text append-only
// file sink.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/backmassage/ephysbatch/internal/config"
	"github.com/backmassage/ephysbatch/internal/term"
)

const timeLayout = "2006-01-02 15:04:05"

// Logger provides leveled, optionally colored logging with optional file sink.
// It is safe for concurrent use by pipeline workers.
type Logger struct {
	z    *zap.Logger
	file *os.File
}

// NewLogger configures terminal colors from cfg, builds the zap cores and
// optionally opens cfg.LogFile for appending. Call Close() when done.
func NewLogger(cfg *config.Config) (*Logger, error) {
	term.Configure(cfg.ColorMode)

	level := zapcore.InfoLevel
	if cfg.Verbose {
		level = zapcore.DebugLevel
	}
	atLeast := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= level })
	belowError := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= level && l < zapcore.ErrorLevel })
	errorsOnly := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= zapcore.ErrorLevel })

	console := zapcore.NewConsoleEncoder(encoderConfig(term.Enabled()))
	cores := []zapcore.Core{
		zapcore.NewCore(console, zapcore.Lock(os.Stdout), belowError),
		zapcore.NewCore(console, zapcore.Lock(os.Stderr), errorsOnly),
	}

	l := &Logger{}
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		l.file = f
		plain := zapcore.NewConsoleEncoder(encoderConfig(false))
		cores = append(cores, zapcore.NewCore(plain, zapcore.AddSync(f), atLeast))
	}

	l.z = zap.New(zapcore.NewTee(cores...))
	return l, nil
}

// Nop returns a Logger that discards everything. Useful in tests.
func Nop() *Logger {
	return &Logger{z: zap.NewNop()}
}

func encoderConfig(color bool) zapcore.EncoderConfig {
	ec := zapcore.EncoderConfig{
		TimeKey:          "ts",
		LevelKey:         "level",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       zapcore.TimeEncoderOfLayout(timeLayout),
		EncodeLevel:      bracketLevel,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
	if color {
		ec.EncodeLevel = colorBracketLevel
	}
	return ec
}

func bracketLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + l.CapitalString() + "]")
}

func colorBracketLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	role := term.Info
	switch {
	case l == zapcore.DebugLevel:
		role = term.Debug
	case l == zapcore.WarnLevel:
		role = term.Warn
	case l >= zapcore.ErrorLevel:
		role = term.Error
	}
	enc.AppendString(term.Paint(role, "["+l.CapitalString()+"]"))
}

// With returns a child logger that appends the given key/value pairs to
// every line, e.g. With("run", id).
func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{z: l.z.Sugar().With(kv...).Desugar()}
}

// Close flushes zap and closes the log file if one was opened.
func (l *Logger) Close() error {
	_ = l.z.Sync()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Info logs at INFO level.
func (l *Logger) Info(format string, args ...interface{}) {
	l.z.Info(fmt.Sprintf(format, args...))
}

// Success logs at INFO level prefixed with a check mark.
func (l *Logger) Success(format string, args ...interface{}) {
	l.z.Info("✓ " + fmt.Sprintf(format, args...))
}

// Warn logs at WARN level.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.z.Warn(fmt.Sprintf(format, args...))
}

// Error logs at ERROR level, to stderr.
func (l *Logger) Error(format string, args ...interface{}) {
	l.z.Error(fmt.Sprintf(format, args...))
}

// Debug logs at DEBUG level; dropped unless the logger was built verbose.
func (l *Logger) Debug(format string, args ...interface{}) {
	if ce := l.z.Check(zapcore.DebugLevel, ""); ce == nil {
		return
	}
	l.z.Debug(fmt.Sprintf(format, args...))
}

// Stamp formats t the way log lines do, for banner/summary lines that
// print absolute times.
func Stamp(t time.Time) string { return t.Format(timeLayout) }
