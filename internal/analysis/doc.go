// Package analysis computes per-speaker activity statistics (talk time,
// segment counts, participation share) from frozen recording buffers using
// energy-based voice detection.
package analysis
