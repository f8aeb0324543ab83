// Package timesync keeps track of NTP clock offset for the controller.
package timesync

import (
	"context"
	"sync"
	"time"

	"github.com/beevik/ntp"
	"go.uber.org/zap"

	"github.com/seedling-labs/gardener/pkg/board"
)

// Syncer periodically queries an NTP server and records the clock offset.
type Syncer struct {
	log      *zap.Logger
	server   string
	interval time.Duration

	// query is swappable for tests
	query func(server string) (*ntp.Response, error)

	mu       sync.RWMutex
	offset   time.Duration
	lastSync time.Time
	synced   bool
}

// New creates a Syncer querying the given NTP server at the board's
// resync interval.
func New(log *zap.Logger, server string) *Syncer {
	return &Syncer{
		log:      log,
		server:   server,
		interval: board.RTCResyncInterval,
		query:    ntp.Query,
	}
}

// Run syncs immediately and then on every resync interval until ctx is done.
func (s *Syncer) Run(ctx context.Context) {
	s.syncOnce()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncOnce()
		}
	}
}

func (s *Syncer) syncOnce() {
	resp, err := s.query(s.server)
	if err != nil {
		s.log.Warn("NTP query failed", zap.String("server", s.server), zap.Error(err))
		return
	}
	if err := resp.Validate(); err != nil {
		s.log.Warn("NTP response invalid", zap.String("server", s.server), zap.Error(err))
		return
	}

	s.mu.Lock()
	s.offset = resp.ClockOffset
	s.lastSync = time.Now()
	s.synced = true
	s.mu.Unlock()

	s.log.Info("clock synced",
		zap.String("server", s.server),
		zap.Duration("offset", resp.ClockOffset),
		zap.Duration("rtt", resp.RTT),
	)
}

// Offset returns the last measured clock offset.
func (s *Syncer) Offset() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offset
}

// Synced reports whether at least one successful sync has happened.
func (s *Syncer) Synced() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.synced
}

// LastSync returns when the clock was last synced successfully.
func (s *Syncer) LastSync() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}

// Now returns the local time corrected by the NTP offset.
func (s *Syncer) Now() time.Time {
	return time.Now().Add(s.Offset())
}
