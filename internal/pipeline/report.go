package pipeline

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/backmassage/ephysbatch/internal/features"
	"github.com/backmassage/ephysbatch/internal/logging"
	"github.com/backmassage/ephysbatch/internal/term"
)

// reportColumn is one numeric feature shown in the summary table.
type reportColumn struct {
	key    string // record column
	header string
}

var reportColumns = []reportColumn{
	{"input_resistance", "Rin (MOhm)"},
	{"rheobase_i", "Rheobase (pA)"},
	{"maximal_firing_rate", "Max rate (Hz)"},
}

// Report prints a per-file table of the headline features with IQR-based
// outlier highlighting, followed by a short summary on log.
func Report(w io.Writer, log *logging.Logger, records []*features.Record) {
	bounds := make([]iqrBounds, len(reportColumns))
	for c, col := range reportColumns {
		var vals []float64
		for _, rec := range records {
			if v, ok := number(rec, col.key); ok {
				vals = append(vals, v)
			}
		}
		bounds[c] = computeStats(vals)
	}

	printReportTable(w, records, bounds)
	printReportSummary(log, records, bounds)
}

// number returns the numeric value of key, ok=false if unset or NaN.
func number(rec *features.Record, key string) (float64, bool) {
	v, ok := rec.Get(key)
	if !ok || v.IsText || v.IsNaN() {
		return 0, false
	}
	return v.Num, true
}

// iqrBounds holds the IQR-based thresholds for outlier classification.
type iqrBounds struct {
	q1, q3    float64
	outlierLo float64 // Q1 - 1.5*IQR
	outlierHi float64 // Q3 + 1.5*IQR
	extremeLo float64 // Q1 - 3.0*IQR
	extremeHi float64 // Q3 + 3.0*IQR
	valid     bool
}

func computeStats(vals []float64) iqrBounds {
	if len(vals) < 4 {
		return iqrBounds{}
	}

	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	q1 := percentile(sorted, 25)
	q3 := percentile(sorted, 75)
	iqr := q3 - q1

	return iqrBounds{
		q1:        q1,
		q3:        q3,
		outlierLo: q1 - 1.5*iqr,
		outlierHi: q3 + 1.5*iqr,
		extremeLo: q1 - 3.0*iqr,
		extremeHi: q3 + 3.0*iqr,
		valid:     iqr > 0,
	}
}

// classify returns "" (normal), "outlier", or "extreme" for a value.
func (b *iqrBounds) classify(v float64, ok bool) string {
	if !b.valid || !ok {
		return ""
	}
	if v < b.extremeLo || v > b.extremeHi {
		return "extreme"
	}
	if v < b.outlierLo || v > b.outlierHi {
		return "outlier"
	}
	return ""
}

// status describes how much of a record was filled in.
func status(rec *features.Record) string {
	switch {
	case rec.Complete():
		return ""
	case rec.Len() == 0:
		return "no features"
	default:
		return "partial"
	}
}

func formatNumber(v float64, ok bool) string {
	if !ok {
		return "n/a"
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func printReportTable(w io.Writer, records []*features.Record, bounds []iqrBounds) {
	nameW := len("File")
	widths := make([]int, len(reportColumns))
	for c, col := range reportColumns {
		widths[c] = len(col.header)
	}
	for _, rec := range records {
		if n := utf8.RuneCountInString(rec.Filename); n > nameW {
			nameW = n
		}
		for c, col := range reportColumns {
			if s := formatNumber(number(rec, col.key)); len(s) > widths[c] {
				widths[c] = len(s)
			}
		}
	}
	if nameW > 50 {
		nameW = 50
	}

	header := fmt.Sprintf("  %-*s", nameW, "File")
	for c, col := range reportColumns {
		header += fmt.Sprintf("  %*s", widths[c], col.header)
	}
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, "  "+strings.Repeat("─", utf8.RuneCountInString(header)-2))

	for _, rec := range records {
		line := fmt.Sprintf("  %-*s", nameW, truncateName(rec.Filename, nameW))

		classes := make([]string, len(reportColumns))
		for c, col := range reportColumns {
			v, ok := number(rec, col.key)
			classes[c] = bounds[c].classify(v, ok)
			// Pad the plain text first, then wrap in ANSI color, so escape
			// bytes don't count toward the column width.
			line += "  " + colorPad(formatNumber(v, ok), widths[c], classes[c])
		}
		if flag := formatFlag(worstFlag(classes...)); flag != "" {
			line += "  " + flag
		}
		if s := status(rec); s != "" {
			line += "  (" + s + ")"
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w)
}

func printReportSummary(log *logging.Logger, records []*features.Record, bounds []iqrBounds) {
	var outliers, extremes, incomplete int
	for _, rec := range records {
		classes := make([]string, len(reportColumns))
		for c, col := range reportColumns {
			classes[c] = bounds[c].classify(number(rec, col.key))
		}
		switch worstFlag(classes...) {
		case "extreme":
			extremes++
		case "outlier":
			outliers++
		}
		if !rec.Complete() {
			incomplete++
		}
	}

	log.Info("Summarized %d files (%d incomplete)", len(records), incomplete)
	for c, col := range reportColumns {
		b := bounds[c]
		if b.valid {
			log.Info("  %s IQR: %.1f – %.1f (outlier < %.1f or > %.1f)",
				col.header, b.q1, b.q3, b.outlierLo, b.outlierHi)
		}
	}
	if outliers > 0 {
		log.Warn("  %d outlier(s) flagged [*]", outliers)
	}
	if extremes > 0 {
		log.Error("  %d extreme outlier(s) flagged [!]", extremes)
	}
	if outliers == 0 && extremes == 0 {
		log.Success("  No outliers detected")
	}
}

func worstFlag(classes ...string) string {
	worst := ""
	for _, c := range classes {
		if c == "extreme" {
			return "extreme"
		}
		if c == "outlier" {
			worst = "outlier"
		}
	}
	return worst
}

func formatFlag(flag string) string {
	switch flag {
	case "extreme":
		return term.Paint(term.Extreme, "[!]")
	case "outlier":
		return term.Paint(term.Outlier, "[*]")
	default:
		return ""
	}
}

// colorPad right-aligns s to width, then paints it by class.
func colorPad(s string, width int, class string) string {
	padded := fmt.Sprintf("%*s", width, s)
	switch class {
	case "extreme":
		return term.Paint(term.Extreme, padded)
	case "outlier":
		return term.Paint(term.Outlier, padded)
	default:
		return padded
	}
}

// truncateName shortens name to at most width runes, marking the cut
// with an ellipsis.
func truncateName(name string, width int) string {
	if width < 1 || utf8.RuneCountInString(name) <= width {
		return name
	}
	r := []rune(name)
	return string(r[:width-1]) + "…"
}

// percentile computes the p-th percentile using linear interpolation.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p / 100) * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi || hi >= len(sorted) {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
