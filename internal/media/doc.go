// Package media wraps the ffmpeg binary for audio re-encoding and filter
// chains. Higher layers stay testable by injecting these functions.
package media
