// Package session implements the recording lifecycle state machine
// (Idle -> Recording -> Stopping -> Finalized/Failed) and the per-channel
// registry that enforces one active session per voice channel.
package session
