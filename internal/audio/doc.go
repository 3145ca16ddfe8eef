// Package audio provides per-speaker PCM frame buffering, the shared-timeline
// mixer that merges speaker buffers into one additive track, and WAV encoding
// for the mixed output.
package audio
