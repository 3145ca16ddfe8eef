package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ikeikeda/discord-voice-to-text/internal/config"
	"github.com/ikeikeda/discord-voice-to-text/internal/metrics"
	"github.com/ikeikeda/discord-voice-to-text/internal/protocol"
	"github.com/ikeikeda/discord-voice-to-text/internal/session"
)

// UDPServer receives voice frames over UDP and routes them into the
// session registry.
type UDPServer struct {
	config   config.ServerConfig
	logger   *slog.Logger
	registry *session.Registry
	metrics  *metrics.Metrics

	conn       *net.UDPConn
	packetChan chan incomingPacket
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	recvDone   chan struct{}

	// Statistics
	packetsReceived  uint64
	packetsProcessed uint64
	packetsDropped   uint64
	parseErrors      uint64
}

// incomingPacket represents a received UDP packet awaiting processing
type incomingPacket struct {
	data []byte
	addr *net.UDPAddr
}

// NewUDPServer creates a new UDP frame-ingest server
func NewUDPServer(cfg config.ServerConfig, logger *slog.Logger, registry *session.Registry, m *metrics.Metrics) *UDPServer {
	ctx, cancel := context.WithCancel(context.Background())

	return &UDPServer{
		config:     cfg,
		logger:     logger,
		registry:   registry,
		metrics:    m,
		packetChan: make(chan incomingPacket, 1000),
		ctx:        ctx,
		cancel:     cancel,
		recvDone:   make(chan struct{}),
	}
}

// Start begins listening for UDP packets and processing them
func (s *UDPServer) Start() error {
	addr := &net.UDPAddr{
		IP:   net.ParseIP(s.config.BindAddress),
		Port: s.config.UDPPort,
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind UDP socket on %s:%d: %w",
			s.config.BindAddress, s.config.UDPPort, err)
	}

	s.conn = conn
	s.logger.Info("UDP server started",
		slog.String("address", s.config.BindAddress),
		slog.Int("port", s.config.UDPPort),
		slog.Int("buffer_size", s.config.BufferSize),
	)

	// Start packet processing workers
	numWorkers := 4
	for i := 0; i < numWorkers; i++ {
		s.wg.Add(1)
		go s.packetProcessor(i)
	}

	// Start the main receive loop
	go s.receiveLoop()

	return nil
}

// Addr returns the bound socket address. Only valid after Start.
func (s *UDPServer) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// Stop gracefully shuts down the UDP server
func (s *UDPServer) Stop() error {
	s.logger.Info("Stopping UDP server...")

	s.cancel()

	if s.conn != nil {
		s.conn.Close()
	}

	// The queue is closed only after the receive loop exits, so a packet
	// in flight is never sent to a closed channel
	<-s.recvDone
	close(s.packetChan)
	s.wg.Wait()

	s.logger.Info("UDP server stopped",
		slog.Uint64("packets_received", atomic.LoadUint64(&s.packetsReceived)),
		slog.Uint64("packets_processed", atomic.LoadUint64(&s.packetsProcessed)),
		slog.Uint64("packets_dropped", atomic.LoadUint64(&s.packetsDropped)),
		slog.Uint64("parse_errors", atomic.LoadUint64(&s.parseErrors)),
	)

	return nil
}

// receiveLoop reads datagrams and hands them to the worker pool
func (s *UDPServer) receiveLoop() {
	defer close(s.recvDone)

	buffer := make([]byte, s.config.BufferSize)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		// Short deadline so shutdown is noticed promptly
		s.conn.SetReadDeadline(time.Now().Add(time.Second))

		n, addr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}

			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Error("UDP read error", slog.String("error", err.Error()))
				continue
			}
		}

		atomic.AddUint64(&s.packetsReceived, 1)
		if s.metrics != nil {
			s.metrics.RecordFrameReceived()
		}

		// Copy the datagram: the read buffer is reused immediately
		data := make([]byte, n)
		copy(data, buffer[:n])

		select {
		case s.packetChan <- incomingPacket{data: data, addr: addr}:
		default:
			// Queue full, drop rather than block the receive loop
			atomic.AddUint64(&s.packetsDropped, 1)
			if s.metrics != nil {
				s.metrics.RecordFrameDropped()
			}
		}
	}
}

// packetProcessor is a worker that parses and routes queued packets
func (s *UDPServer) packetProcessor(workerID int) {
	defer s.wg.Done()

	s.logger.Debug("Packet processor started", slog.Int("worker_id", workerID))

	for packet := range s.packetChan {
		s.handlePacket(packet)
	}

	s.logger.Debug("Packet processor stopped", slog.Int("worker_id", workerID))
}

// handlePacket parses one datagram and routes it to the registry
func (s *UDPServer) handlePacket(packet incomingPacket) {
	parsed, err := protocol.ParsePacket(packet.data)
	if err != nil {
		atomic.AddUint64(&s.parseErrors, 1)
		if s.metrics != nil {
			s.metrics.RecordParseError()
		}

		s.logger.Debug("Failed to parse packet",
			slog.String("source", packet.addr.String()),
			slog.Int("size", len(packet.data)),
			slog.String("error", err.Error()),
		)
		return
	}

	switch parsed.Header.PacketType {
	case protocol.PacketTypeSpeaker:
		s.processSpeakerPacket(parsed)

	case protocol.PacketTypeAudio:
		s.processAudioPacket(parsed)
	}

	atomic.AddUint64(&s.packetsProcessed, 1)
}

// processSpeakerPacket registers a speaker's display name with the
// channel's active session. Announcements for idle channels are dropped.
func (s *UDPServer) processSpeakerPacket(packet *protocol.ParsedPacket) {
	name := packet.Speaker.GetName()

	s.registry.Announce(packet.Header.ChannelID, packet.Speaker.SpeakerID, name)

	s.logger.Debug("Speaker announced",
		slog.Uint64("channel_id", packet.Header.ChannelID),
		slog.Uint64("speaker_id", packet.Speaker.SpeakerID),
		slog.String("name", name),
	)
}

// processAudioPacket appends a PCM frame to the speaker's buffer. Frames
// for channels with no active session are dropped silently.
func (s *UDPServer) processAudioPacket(packet *protocol.ParsedPacket) {
	err := s.registry.Ingest(
		packet.Header.ChannelID,
		packet.Audio.SpeakerID,
		packet.Audio.Timestamp(),
		packet.Audio.PCM,
	)
	if err != nil {
		atomic.AddUint64(&s.packetsDropped, 1)
		if s.metrics != nil {
			s.metrics.RecordFrameDropped()
		}
	}
}

// GetStatistics returns current server statistics
func (s *UDPServer) GetStatistics() ServerStatistics {
	return ServerStatistics{
		PacketsReceived:  atomic.LoadUint64(&s.packetsReceived),
		PacketsProcessed: atomic.LoadUint64(&s.packetsProcessed),
		PacketsDropped:   atomic.LoadUint64(&s.packetsDropped),
		ParseErrors:      atomic.LoadUint64(&s.parseErrors),
		ActiveSessions:   s.registry.ActiveCount(),
		QueueSize:        len(s.packetChan),
		QueueCapacity:    cap(s.packetChan),
	}
}

// ServerStatistics contains UDP server runtime statistics
type ServerStatistics struct {
	PacketsReceived  uint64 `json:"packets_received"`
	PacketsProcessed uint64 `json:"packets_processed"`
	PacketsDropped   uint64 `json:"packets_dropped"`
	ParseErrors      uint64 `json:"parse_errors"`
	ActiveSessions   int    `json:"active_sessions"`
	QueueSize        int    `json:"queue_size"`
	QueueCapacity    int    `json:"queue_capacity"`
}
