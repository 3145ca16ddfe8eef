package protocol

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Wire format constants
const (
	// Packet types
	PacketTypeSpeaker = 0x01 // Speaker announcement (id -> display name)
	PacketTypeAudio   = 0x02 // PCM voice frame

	// Packet structure sizes
	HeaderSize             = 11 // 1 + 2 + 8 bytes
	SpeakerPayloadSize     = 40 // 8 + 32 bytes
	AudioPayloadHeaderSize = 16 // SpeakerID (8) + TimestampMs (8)

	// String field sizes
	SpeakerNameSize = 32
)

// Header represents the 11-byte packet header.
// Layout: [PacketType:1][PacketLen:2][ChannelID:8]
type Header struct {
	PacketType uint8  // 0x01=Speaker, 0x02=Audio
	PacketLen  uint16 // Total packet size (header + payload)
	ChannelID  uint64 // Voice channel the packet belongs to
}

// SpeakerPayload announces a speaker before their first audio frame.
// Layout: [SpeakerID:8][Name:32]
type SpeakerPayload struct {
	SpeakerID uint64
	Name      [SpeakerNameSize]byte // Null-terminated display name
}

// AudioPayload carries one decoded PCM frame for one speaker.
// Layout: [SpeakerID:8][TimestampMs:8][PCM:N]
type AudioPayload struct {
	SpeakerID   uint64
	TimestampMs int64  // Capture time, Unix milliseconds
	PCM         []byte // 16-bit little-endian mono samples
}

// ParsedPacket represents a fully parsed voice packet
type ParsedPacket struct {
	Header  *Header
	Speaker *SpeakerPayload // Only set for speaker packets
	Audio   *AudioPayload   // Only set for audio packets
}

// ParseHeader parses the 11-byte packet header
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("header too short: expected %d bytes, got %d", HeaderSize, len(data))
	}

	header := &Header{
		PacketType: data[0],
		PacketLen:  binary.BigEndian.Uint16(data[1:3]),
		ChannelID:  binary.BigEndian.Uint64(data[3:11]),
	}

	return header, nil
}

// ParseSpeakerPayload parses the 40-byte speaker announcement payload
func ParseSpeakerPayload(data []byte) (*SpeakerPayload, error) {
	if len(data) < SpeakerPayloadSize {
		return nil, fmt.Errorf("speaker payload too short: expected %d bytes, got %d",
			SpeakerPayloadSize, len(data))
	}

	payload := &SpeakerPayload{
		SpeakerID: binary.BigEndian.Uint64(data[0:8]),
	}
	copy(payload.Name[:], data[8:8+SpeakerNameSize])

	return payload, nil
}

// ParseAudioPayload parses an audio frame payload (16-byte header + PCM data)
func ParseAudioPayload(data []byte) (*AudioPayload, error) {
	if len(data) < AudioPayloadHeaderSize {
		return nil, fmt.Errorf("audio payload too short: expected at least %d bytes, got %d",
			AudioPayloadHeaderSize, len(data))
	}

	payload := &AudioPayload{
		SpeakerID:   binary.BigEndian.Uint64(data[0:8]),
		TimestampMs: int64(binary.BigEndian.Uint64(data[8:16])),
	}

	if len(data) > AudioPayloadHeaderSize {
		payload.PCM = make([]byte, len(data)-AudioPayloadHeaderSize)
		copy(payload.PCM, data[AudioPayloadHeaderSize:])
	}

	return payload, nil
}

// ParsePacket parses a complete voice packet (header + payload)
func ParsePacket(data []byte) (*ParsedPacket, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("packet too short: expected at least %d bytes, got %d", HeaderSize, len(data))
	}

	header, err := ParseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	// The declared length must match the datagram exactly
	if int(header.PacketLen) != len(data) {
		return nil, fmt.Errorf("packet length mismatch: header says %d bytes, got %d bytes",
			header.PacketLen, len(data))
	}

	if err := ValidateHeader(header); err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}

	packet := &ParsedPacket{Header: header}
	payloadData := data[HeaderSize:]

	switch header.PacketType {
	case PacketTypeSpeaker:
		payload, err := ParseSpeakerPayload(payloadData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse speaker payload: %w", err)
		}
		packet.Speaker = payload

	case PacketTypeAudio:
		payload, err := ParseAudioPayload(payloadData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse audio payload: %w", err)
		}
		packet.Audio = payload

	default:
		return nil, fmt.Errorf("unknown packet type: 0x%02x", header.PacketType)
	}

	return packet, nil
}

// ValidateHeader validates the packet header fields
func ValidateHeader(header *Header) error {
	if !IsValidPacketType(header.PacketType) {
		return fmt.Errorf("invalid packet type: 0x%02x", header.PacketType)
	}

	if header.PacketLen < HeaderSize {
		return fmt.Errorf("packet length too small: %d (minimum %d)", header.PacketLen, HeaderSize)
	}

	expectedPayloadSize := int(header.PacketLen) - HeaderSize
	switch header.PacketType {
	case PacketTypeSpeaker:
		if expectedPayloadSize != SpeakerPayloadSize {
			return fmt.Errorf("speaker packet payload size mismatch: expected %d, got %d",
				SpeakerPayloadSize, expectedPayloadSize)
		}
	case PacketTypeAudio:
		if expectedPayloadSize < AudioPayloadHeaderSize {
			return fmt.Errorf("audio packet payload too small: expected at least %d, got %d",
				AudioPayloadHeaderSize, expectedPayloadSize)
		}
	}

	return nil
}

// IsValidPacketType checks if the packet type is valid
func IsValidPacketType(ptype uint8) bool {
	return ptype == PacketTypeSpeaker || ptype == PacketTypeAudio
}

// EncodeSpeakerPacket builds a speaker announcement datagram
func EncodeSpeakerPacket(channelID, speakerID uint64, name string) []byte {
	buf := make([]byte, HeaderSize+SpeakerPayloadSize)
	buf[0] = PacketTypeSpeaker
	binary.BigEndian.PutUint16(buf[1:3], uint16(len(buf)))
	binary.BigEndian.PutUint64(buf[3:11], channelID)
	binary.BigEndian.PutUint64(buf[11:19], speakerID)
	copy(buf[19:19+SpeakerNameSize], name)
	return buf
}

// EncodeAudioPacket builds an audio frame datagram
func EncodeAudioPacket(channelID, speakerID uint64, ts time.Time, pcm []byte) []byte {
	buf := make([]byte, HeaderSize+AudioPayloadHeaderSize+len(pcm))
	buf[0] = PacketTypeAudio
	binary.BigEndian.PutUint16(buf[1:3], uint16(len(buf)))
	binary.BigEndian.PutUint64(buf[3:11], channelID)
	binary.BigEndian.PutUint64(buf[11:19], speakerID)
	binary.BigEndian.PutUint64(buf[19:27], uint64(ts.UnixMilli()))
	copy(buf[27:], pcm)
	return buf
}

// ExtractString extracts a null-terminated string from a fixed-size byte array
func ExtractString(buf []byte) string {
	nullPos := len(buf)
	for i, b := range buf {
		if b == 0 {
			nullPos = i
			break
		}
	}
	return string(buf[:nullPos])
}

// GetName extracts the speaker display name as a string
func (s *SpeakerPayload) GetName() string {
	return ExtractString(s.Name[:])
}

// Timestamp converts the frame capture time to a time.Time
func (a *AudioPayload) Timestamp() time.Time {
	return time.UnixMilli(a.TimestampMs)
}

// String returns a human-readable representation of the header
func (h *Header) String() string {
	var packetType string

	switch h.PacketType {
	case PacketTypeSpeaker:
		packetType = "Speaker"
	case PacketTypeAudio:
		packetType = "Audio"
	default:
		packetType = fmt.Sprintf("Unknown(0x%02x)", h.PacketType)
	}

	return fmt.Sprintf("Header{Type:%s, Len:%d, ChannelID:%d}",
		packetType, h.PacketLen, h.ChannelID)
}

// String returns a human-readable representation of the speaker payload
func (s *SpeakerPayload) String() string {
	return fmt.Sprintf("SpeakerPayload{SpeakerID:%d, Name:%q}", s.SpeakerID, s.GetName())
}

// String returns a human-readable representation of the audio payload
func (a *AudioPayload) String() string {
	return fmt.Sprintf("AudioPayload{SpeakerID:%d, TimestampMs:%d, PCMLen:%d}",
		a.SpeakerID, a.TimestampMs, len(a.PCM))
}
