package pipeline

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// nwbExtension is matched case-insensitively.
const nwbExtension = ".nwb"

// Discover lists the regular *.nwb files directly inside inputDir and
// returns their paths sorted lexicographically, which fixes the row order
// of the output table. Symlinks count when they resolve to a regular
// file. Subdirectories are not descended into.
func Discover(inputDir string) ([]string, error) {
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !strings.EqualFold(filepath.Ext(e.Name()), nwbExtension) {
			continue
		}
		path := filepath.Join(inputDir, e.Name())
		switch {
		case e.Type().IsRegular():
		case e.Type()&fs.ModeSymlink != 0:
			fi, err := os.Stat(path)
			if err != nil || !fi.Mode().IsRegular() {
				continue
			}
		default:
			continue
		}
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}

// totalSize sums the sizes of files, skipping any that cannot be stat'd.
func totalSize(files []string) int64 {
	var n int64
	for _, f := range files {
		if fi, err := os.Stat(f); err == nil {
			n += fi.Size()
		}
	}
	return n
}
