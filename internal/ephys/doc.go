// Package ephys holds the domain model for whole-cell current-clamp
// recordings and the two per-file analysis steps the batch performs:
//
//   - SelectLongSquareSweeps: drop QC-failed sweeps, filter the sweep table
//     to passing current-clamp long-square sweeps, and keep only those that
//     actually load.
//   - ExtractStimulusFeatures: restrict sweeps to the recording epoch, align
//     them on the experiment epoch, detect the stimulus window on the first
//     sweep, and hand the set to an [Analyzer].
//
// Data access ([Loader], [Dataset]) and spike/long-square analysis
// ([Analyzer]) are interfaces; the bridge package implements them against
// an external analysis executable.
//
// All transformations are pure: SelectEpoch, AlignToStartOfEpoch and
// DropFailedSweeps return new values and never mutate their input.
// Failures are reported as *[Error] values whose [Kind] decides whether the
// batch may continue with a partial record.
package ephys
