// Package preprocess cleans the mixed recording before transcription with
// level-graded ffmpeg filter chains. Failures fall back to the raw audio.
package preprocess
