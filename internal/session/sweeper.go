package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweeper archives idle sessions on a fixed wall-clock interval, independent
// of any single request or scheduled firing.
type Sweeper struct {
	manager       *Manager
	interval      time.Duration
	thresholdDays int

	mu      sync.Mutex
	stopCh  chan struct{}
	running bool
}

// NewSweeper creates a sweeper. Zero interval defaults to 24h.
func NewSweeper(manager *Manager, interval time.Duration, thresholdDays int) *Sweeper {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Sweeper{
		manager:       manager,
		interval:      interval,
		thresholdDays: thresholdDays,
		stopCh:        make(chan struct{}),
	}
}

// Start launches the sweep loop. Returns immediately.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep(ctx)
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
}

// SweepNow runs one archival pass immediately.
func (s *Sweeper) SweepNow(ctx context.Context) {
	s.sweep(ctx)
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.manager.ArchiveOlderThan(ctx, s.thresholdDays)
	if err != nil {
		log.Error().Err(err).Msg("session sweep failed")
		return
	}
	if n > 0 {
		log.Info().Int("archived", n).Int("thresholdDays", s.thresholdDays).
			Msg("archived idle sessions")
	}
}
