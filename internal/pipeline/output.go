package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/backmassage/ephysbatch/internal/features"
)

// WriteCSV writes the header and one row per record, in order. Missing and
// NaN values are empty cells. The file is written next to path and renamed
// into place, so a reader never sees a half-written table.
func WriteCSV(path string, records []*features.Record) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp output: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	w := csv.NewWriter(tmp)
	if err := w.Write(features.Columns); err != nil {
		return err
	}
	for _, rec := range records {
		if err := w.Write(rec.Row()); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}
