// Package features defines the flat per-file feature record, the fixed
// column order of the output table, and the Builder that turns one NWB
// file into one record.
package features
