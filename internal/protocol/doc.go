// Package protocol implements the binary voice-frame wire format.
// The external voice gateway forwards decoded per-speaker PCM frames as UDP
// datagrams: an 11-byte header followed by a speaker announcement or an
// audio payload.
package protocol
