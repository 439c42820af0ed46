// Package check provides system diagnostics (--check mode) and pre-pipeline
// dependency validation (CheckDeps) for the analysis bridge and the output
// location.
package check

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/backmassage/ephysbatch/internal/bridge"
	"github.com/backmassage/ephysbatch/internal/config"
)

// Sentinel errors returned by CheckDeps.
var (
	ErrBridgeNotFound    = errors.New("analysis bridge not found on PATH")
	ErrBridgeBroken      = errors.New("analysis bridge found but 'version' failed")
	ErrOutputNotWritable = errors.New("output directory is not writable")
)

// versionTimeout bounds the bridge's version call; interpreter start-up
// with the analysis stack imported can take several seconds.
const versionTimeout = 30 * time.Second

// Logger is the minimal logging interface needed by RunCheck.
// Defined here (rather than importing the logging package) so that check
// remains dependency-light and testable with a mock logger.
type Logger interface {
	Info(string, ...interface{})
	Success(string, ...interface{})
	Warn(string, ...interface{})
	Error(string, ...interface{})
	Debug(string, ...interface{})
}

// RunCheck runs the interactive --check flow: locates the bridge, asks it
// for its version and checks that the output directory is writable. It
// reports every problem it finds and returns true only if all checks
// passed.
func RunCheck(ctx context.Context, cfg *config.Config, log Logger) bool {
	log.Info("=== System Check ===")

	ok := checkBridge(ctx, cfg, log)
	if !checkOutputDir(cfg, log) {
		ok = false
	}
	if cfg.CheckpointDir != "" {
		log.Info("Checkpoint store: %s", cfg.CheckpointDir)
	}
	return ok
}

func checkBridge(ctx context.Context, cfg *config.Config, log Logger) bool {
	path, err := exec.LookPath(cfg.BridgeCommand)
	if err != nil {
		log.Error("%s not found", cfg.BridgeCommand)
		return false
	}
	log.Debug("bridge: %s", path)

	v, err := bridgeVersion(ctx, cfg)
	if err != nil {
		log.Error("%s found but version failed: %v", cfg.BridgeCommand, err)
		return false
	}
	log.Success("bridge: %s", v)
	return true
}

func checkOutputDir(cfg *config.Config, log Logger) bool {
	dir := filepath.Dir(cfg.OutputFile)
	if err := ensureWritable(dir); err != nil {
		log.Error("Output directory %s: %v", dir, err)
		return false
	}
	log.Success("Output directory writable: %s", dir)
	return true
}

// CheckDeps is the pre-pipeline validation: the bridge must be on PATH and
// answer 'version', and the output directory must accept new files.
// Returns a sentinel error (possibly wrapped) on failure.
func CheckDeps(ctx context.Context, cfg *config.Config) error {
	if _, err := exec.LookPath(cfg.BridgeCommand); err != nil {
		return fmt.Errorf("%w: %s", ErrBridgeNotFound, cfg.BridgeCommand)
	}
	if _, err := bridgeVersion(ctx, cfg); err != nil {
		if bridge.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrBridgeNotFound, cfg.BridgeCommand)
		}
		return fmt.Errorf("%w: %v", ErrBridgeBroken, err)
	}
	if err := ensureWritable(filepath.Dir(cfg.OutputFile)); err != nil {
		return fmt.Errorf("%w: %v", ErrOutputNotWritable, err)
	}
	return nil
}

// --- internal helpers ---

func bridgeVersion(ctx context.Context, cfg *config.Config) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	return bridge.New(cfg).Version(ctx)
}

// ensureWritable creates dir if needed and writes then removes a temp file.
func ensureWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".ephysbatch-check-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
