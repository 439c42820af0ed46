// Package bridge talks to the analysis bridge: an external executable that
// opens NWB files, decodes sweeps, computes QC metrics and runs spike and
// long-square analysis. Each call is one subprocess that prints a single
// JSON document on stdout.
//
// Subcommands:
//   - version
//   - sweeps      --nwb P            sweep table
//   - sweep       --nwb P --sweep N  one sweep's traces and epochs
//   - sweep-qc    --nwb P            per-sweep QC metrics
//   - cell-qc     --nwb P            cell QC features and tags
//   - long-square --nwb P            analysis; request JSON on stdin
//
// Wire types are decoded, validated for required keys, and converted to
// ephys types at this boundary. Failures (a structured {"error": ...}
// document or a traceback on stderr) are classified into ephys error kinds.
//
// [Client] implements ephys.Loader and ephys.Analyzer; the [Dataset] it
// opens implements ephys.Dataset.
package bridge
