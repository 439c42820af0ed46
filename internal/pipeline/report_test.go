package pipeline

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/backmassage/ephysbatch/internal/features"
	"github.com/backmassage/ephysbatch/internal/logging"
)

func TestPercentile(t *testing.T) {
	sorted := []float64{10, 20, 30, 40, 50}
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 10},
		{25, 20},
		{50, 30},
		{75, 40},
		{100, 50},
		{10, 14},
	}
	for _, tt := range tests {
		if got := percentile(sorted, tt.p); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
	if got := percentile(nil, 50); got != 0 {
		t.Errorf("percentile(nil) = %v, want 0", got)
	}
}

func TestComputeStats_Classify(t *testing.T) {
	b := computeStats([]float64{100, 110, 120, 130, 140, 150, 160})
	if !b.valid {
		t.Fatal("expected valid bounds")
	}
	// q1=115, q3=145, iqr=30: outlier outside [70, 190], extreme outside [25, 235].
	tests := []struct {
		v    float64
		ok   bool
		want string
	}{
		{130, true, ""},
		{190, true, ""},
		{200, true, "outlier"},
		{60, true, "outlier"},
		{240, true, "extreme"},
		{10, true, "extreme"},
		{1e6, false, ""},
	}
	for _, tt := range tests {
		if got := b.classify(tt.v, tt.ok); got != tt.want {
			t.Errorf("classify(%v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestComputeStats_TooFewValues(t *testing.T) {
	b := computeStats([]float64{1, 2, 1000})
	if b.valid {
		t.Error("fewer than 4 values must not produce bounds")
	}
	if got := b.classify(1000, true); got != "" {
		t.Errorf("classify = %q, want no flag", got)
	}
}

func TestWorstFlag(t *testing.T) {
	if got := worstFlag("", "outlier", ""); got != "outlier" {
		t.Errorf("got %q", got)
	}
	if got := worstFlag("outlier", "extreme"); got != "extreme" {
		t.Errorf("got %q", got)
	}
	if got := worstFlag(); got != "" {
		t.Errorf("got %q", got)
	}
}

func TestReport_Table(t *testing.T) {
	var records []*features.Record
	for i, rin := range []float64{150, 160, 170, 180, 190, 2000} {
		rec := features.NewRecord(fmt.Sprintf("cell_%d.nwb", i))
		rec.SetFloat("input_resistance", rin)
		rec.SetFloat("rheobase_i", 50)
		rec.SetFloat("maximal_firing_rate", math.NaN())
		records = append(records, rec)
	}
	records = append(records, features.NewRecord("empty.nwb"))

	var buf bytes.Buffer
	Report(&buf, logging.Nop(), records)
	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")

	if !strings.Contains(lines[0], "Rin (MOhm)") || !strings.Contains(lines[0], "Max rate (Hz)") {
		t.Errorf("header = %q", lines[0])
	}
	if len(lines) != 2+len(records) {
		t.Fatalf("got %d lines, want %d:\n%s", len(lines), 2+len(records), out)
	}
	if !strings.Contains(lines[7], "2000.0") || !strings.Contains(lines[7], "[!]") {
		t.Errorf("expected extreme flag on %q", lines[7])
	}
	if strings.Contains(lines[2], "[") {
		t.Errorf("unexpected flag on %q", lines[2])
	}
	if !strings.Contains(lines[2], "n/a") || !strings.Contains(lines[2], "(partial)") {
		t.Errorf("row = %q", lines[2])
	}
	if !strings.Contains(lines[8], "(no features)") {
		t.Errorf("row = %q", lines[8])
	}
}

func TestReport_LongMultibyteName(t *testing.T) {
	name := strings.Repeat("é", 60) + ".nwb"
	rec := features.NewRecord(name)
	rec.SetFloat("input_resistance", 150)

	var buf bytes.Buffer
	Report(&buf, logging.Nop(), []*features.Record{rec})
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	row := lines[2]
	if !utf8.ValidString(row) {
		t.Errorf("row is not valid UTF-8: %q", row)
	}
	if want := "  " + strings.Repeat("é", 49) + "…  "; !strings.HasPrefix(row, want) {
		t.Errorf("row = %q, want prefix %q", row, want)
	}
}

func TestTruncateName(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"cell.nwb", 20, "cell.nwb"},
		{"cell.nwb", 8, "cell.nwb"},
		{"cell_long.nwb", 6, "cell_…"},
		{"日本語のセル.nwb", 4, "日本語…"},
	}
	for _, tt := range tests {
		if got := truncateName(tt.in, tt.width); got != tt.want {
			t.Errorf("truncateName(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}
