// Package pipeline orchestrates the stop-triggered processing sequence:
// mix, preprocess, compress, transcribe, postprocess, minutes. Failures
// before the first network call abort the run; failures after a successful
// transcription degrade to a partial result.
package pipeline
