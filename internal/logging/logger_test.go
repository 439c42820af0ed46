package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/backmassage/ephysbatch/internal/config"
)

func newFileLogger(t *testing.T, verbose bool) (*Logger, string) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ColorMode = config.ColorNever
	cfg.Verbose = verbose
	cfg.LogFile = filepath.Join(t.TempDir(), "logs", "run.log")
	l, err := NewLogger(&cfg)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	return l, cfg.LogFile
}

func readLog(t *testing.T, l *Logger, path string) string {
	t.Helper()
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	return string(b)
}

func TestLogger_FileSink(t *testing.T) {
	l, path := newFileLogger(t, false)
	l.Info("Found %d files", 3)
	l.Warn("Rejected %d", 42)
	l.Error("Error in %s: %s", "/data/B.nwb", "ValueError: empty")
	l.Debug("hidden %d", 1)

	out := readLog(t, l, path)
	for _, want := range []string{
		"[INFO] Found 3 files",
		"[WARN] Rejected 42",
		"[ERROR] Error in /data/B.nwb: ValueError: empty",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line written without --verbose:\n%s", out)
	}
	if strings.Contains(out, "\033[") {
		t.Errorf("file sink must be plain text:\n%s", out)
	}
}

func TestLogger_VerboseAndWith(t *testing.T) {
	l, path := newFileLogger(t, true)
	l.Debug("Start: %.3f, end: %.3f", 0.1, 0.49)
	l.With("run", "abc123").Info("tagged")

	out := readLog(t, l, path)
	if !strings.Contains(out, "[DEBUG] Start: 0.100, end: 0.490") {
		t.Errorf("missing debug line:\n%s", out)
	}
	if !strings.Contains(out, `"run": "abc123"`) {
		t.Errorf("missing structured field:\n%s", out)
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Info("x")
	l.Debug("y")
	if err := l.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
