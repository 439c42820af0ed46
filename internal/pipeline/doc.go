// Package pipeline orchestrates file discovery, the concurrent per-file
// feature extraction, the CSV table and the batch summary report.
//
// Files:
//   - discover.go: non-recursive *.nwb listing in deterministic order.
//   - runner.go: Run, the bounded worker pool and the fault policy.
//   - output.go: atomic CSV writer.
//   - report.go: summary table with IQR outlier flags.
//   - stats.go: RunStats outcome counters.
package pipeline
