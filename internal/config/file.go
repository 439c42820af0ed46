package config

// This file implements YAML config file loading. Keys that are absent from
// the file keep whatever value cfg already holds, so loading on top of
// DefaultConfig() only overrides what the user wrote.

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile decodes the YAML document at path into cfg. Unknown keys are an
// error so that typos do not silently fall back to defaults.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.InputDir != "" {
		cfg.InputDir = NormalizeDirArg(cfg.InputDir)
	}
	return nil
}
