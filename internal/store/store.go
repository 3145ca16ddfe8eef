package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store owns the artifact directory: it hands out uuid-named paths, pins
// files belonging to in-flight sessions, and sweeps expired artifacts.
type Store struct {
	dir       string
	retention time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	pinned map[string]struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
}

// NewStore creates the artifact directory if needed. Retention bounds how
// long unpinned artifacts survive; zero disables the sweep.
func NewStore(dir string, retention time.Duration, logger *slog.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("artifact directory cannot be empty")
	}

	if retention < 0 {
		return nil, fmt.Errorf("retention cannot be negative, got %v", retention)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Store{
		dir:       dir,
		retention: retention,
		logger:    logger,
		pinned:    make(map[string]struct{}),
		ctx:       ctx,
		cancel:    cancel,
		cleanup:   make(chan struct{}),
	}, nil
}

// Dir returns the artifact directory.
func (s *Store) Dir() string { return s.dir }

// NewPath reserves a uuid-named artifact path with the given extension.
// Nothing is created on disk.
func (s *Store) NewPath(ext string) string {
	name := uuid.New().String()
	if ext != "" {
		name += "." + strings.TrimPrefix(ext, ".")
	}
	return filepath.Join(s.dir, name)
}

// Pin marks a path as belonging to an in-flight session so the sweep never
// touches it.
func (s *Store) Pin(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pinned[path] = struct{}{}
}

// Unpin releases a pinned path back to retention control.
func (s *Store) Unpin(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pinned, path)
}

// Pinned reports whether a path is currently pinned.
func (s *Store) Pinned(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pinned[path]
	return ok
}

// Remove deletes an artifact and drops its pin. Missing files are not an
// error.
func (s *Store) Remove(path string) error {
	s.Unpin(path)

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove artifact %s: %w", path, err)
	}

	return nil
}

// Sweep deletes unpinned artifacts older than the retention window and
// returns how many were removed.
func (s *Store) Sweep() (int, error) {
	if s.retention == 0 {
		return 0, nil
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read artifact directory: %w", err)
	}

	cutoff := time.Now().Add(-s.retention)
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		if s.Pinned(path) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				s.logger.Warn("Failed to sweep expired artifact",
					slog.String("file", path),
					slog.String("error", err.Error()),
				)
				continue
			}
			removed++
		}
	}

	if removed > 0 {
		s.logger.Info("Swept expired artifacts",
			slog.Int("removed", removed),
			slog.Duration("retention", s.retention),
		)
	}

	return removed, nil
}

// StartSweeper launches the background retention sweep on a ticker.
func (s *Store) StartSweeper(interval time.Duration) {
	go s.sweepLoop(interval)
}

// Close stops the sweeper and waits for it to finish.
func (s *Store) Close() {
	s.cancel()
	<-s.cleanup
}

func (s *Store) sweepLoop(interval time.Duration) {
	defer close(s.cleanup)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Artifact sweeper started",
		slog.String("dir", s.dir),
		slog.Duration("retention", s.retention),
		slog.Duration("interval", interval),
	)

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("Artifact sweeper stopping")
			return

		case <-ticker.C:
			if _, err := s.Sweep(); err != nil {
				s.logger.Error("Artifact sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}
