// Package providers defines the failure taxonomy shared by the HTTP
// boundary clients (transcription and minutes generation).
package providers
