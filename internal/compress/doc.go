// Package compress walks a fixed decreasing ladder of MP3 presets until the
// mixed artifact fits under the transcription backend's size ceiling.
package compress
