// Package transcription implements the multipart HTTP client for the fixed
// speech-to-text backend.
package transcription
