package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Registry enforces one active session per channel and owns the lifecycle
// of every session, including the stale-session janitor.
type Registry struct {
	logger     *slog.Logger
	runner     Runner
	sampleRate int

	mu       sync.RWMutex
	sessions map[uint64]*Session

	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
}

// NewRegistry creates a session registry. The runner processes stopped
// recordings; the janitor is started separately with StartJanitor.
func NewRegistry(logger *slog.Logger, runner Runner, sampleRate int) *Registry {
	ctx, cancel := context.WithCancel(context.Background())

	return &Registry{
		logger:     logger,
		runner:     runner,
		sampleRate: sampleRate,
		sessions:   make(map[uint64]*Session),
		ctx:        ctx,
		cancel:     cancel,
		cleanup:    make(chan struct{}),
	}
}

// Start begins recording on a channel. Returns ErrAlreadyRecording when the
// channel already has an active session.
func (r *Registry) Start(channelID uint64) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[channelID]; exists {
		return nil, ErrAlreadyRecording
	}

	sess := NewSession(channelID, r.sampleRate, r.logger)
	if err := sess.Start(); err != nil {
		return nil, err
	}

	r.sessions[channelID] = sess
	return sess, nil
}

// Get returns the active session for a channel, if any.
func (r *Registry) Get(channelID uint64) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, exists := r.sessions[channelID]
	return sess, exists
}

// Ingest routes a speaker frame to the channel's active session. Frames for
// channels with no active session are dropped with ErrNotRecording.
func (r *Registry) Ingest(channelID, speakerID uint64, ts time.Time, pcm []byte) error {
	sess, exists := r.Get(channelID)
	if !exists {
		return ErrNotRecording
	}

	return sess.Ingest(speakerID, ts, pcm)
}

// Announce routes a speaker announcement to the channel's active session.
func (r *Registry) Announce(channelID, speakerID uint64, name string) {
	if sess, exists := r.Get(channelID); exists {
		sess.Announce(speakerID, name)
	}
}

// Stop stops the channel's session, runs the pipeline, and releases the
// channel for a new recording. The losers of a concurrent stop race get
// ErrAlreadyStopping; channels with no session get ErrNotRecording.
func (r *Registry) Stop(ctx context.Context, channelID uint64) (*ProcessingResult, error) {
	sess, exists := r.Get(channelID)
	if !exists {
		return nil, ErrNotRecording
	}

	result, err := sess.Stop(ctx, r.runner)

	// Only the winning stop releases the channel, successful or not.
	if err == nil || sess.State() == StateFailed {
		r.release(channelID, sess)
	}

	return result, err
}

// release removes the session from the registry if it is still the one
// registered for the channel.
func (r *Registry) release(channelID uint64, sess *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, exists := r.sessions[channelID]; exists && current == sess {
		delete(r.sessions, channelID)
	}
}

// ActiveCount returns the number of channels currently recording.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns monitoring info for all active sessions.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.mu.RUnlock()

	infos := make([]Info, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, sess.Info())
	}

	return infos
}

// StartJanitor launches the background routine that force-stops sessions
// with no frame activity for longer than timeout.
func (r *Registry) StartJanitor(timeout, interval time.Duration) {
	go r.janitorLoop(timeout, interval)
}

// Close stops the janitor and waits for it to finish.
func (r *Registry) Close() {
	r.cancel()
	<-r.cleanup
}

func (r *Registry) janitorLoop(timeout, interval time.Duration) {
	defer close(r.cleanup)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("Session janitor started",
		slog.Duration("timeout", timeout),
		slog.Duration("check_interval", interval),
	)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Info("Session janitor stopping")
			return

		case <-ticker.C:
			r.stopStaleSessions(timeout)
		}
	}
}

// stopStaleSessions finds sessions past the inactivity timeout and stops
// them through the normal pipeline so the captured audio is not lost.
func (r *Registry) stopStaleSessions(timeout time.Duration) {
	now := time.Now()

	r.mu.RLock()
	stale := make([]uint64, 0)
	for channelID, sess := range r.sessions {
		if sess.State() == StateRecording && now.Sub(sess.LastActivity()) > timeout {
			stale = append(stale, channelID)
		}
	}
	r.mu.RUnlock()

	for _, channelID := range stale {
		r.logger.Warn("Stopping stale session",
			slog.Uint64("channel_id", channelID),
			slog.Duration("timeout", timeout),
		)

		if _, err := r.Stop(r.ctx, channelID); err != nil {
			r.logger.Error("Failed to stop stale session",
				slog.Uint64("channel_id", channelID),
				slog.String("error", err.Error()),
			)
		}
	}
}
