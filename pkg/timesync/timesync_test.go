package timesync

import (
	"fmt"
	"testing"
	"time"

	"github.com/beevik/ntp"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/seedling-labs/gardener/pkg/board"
)

func TestNew(t *testing.T) {
	s := New(zap.NewNop(), "pool.ntp.org")

	assert.Equal(t, "pool.ntp.org", s.server)
	assert.Equal(t, board.RTCResyncInterval, s.interval)
	assert.False(t, s.Synced())
	assert.Equal(t, time.Duration(0), s.Offset())
	assert.True(t, s.LastSync().IsZero())
}

func TestSyncOnce_Success(t *testing.T) {
	s := New(zap.NewNop(), "pool.ntp.org")
	s.query = func(server string) (*ntp.Response, error) {
		now := time.Now()
		return &ntp.Response{
			ClockOffset:   150 * time.Millisecond,
			Stratum:       2,
			Time:          now,
			ReferenceTime: now,
		}, nil
	}

	s.syncOnce()

	assert.True(t, s.Synced())
	assert.Equal(t, 150*time.Millisecond, s.Offset())
	assert.False(t, s.LastSync().IsZero())
}

func TestSyncOnce_QueryFailure(t *testing.T) {
	s := New(zap.NewNop(), "pool.ntp.org")
	s.query = func(server string) (*ntp.Response, error) {
		return nil, fmt.Errorf("network unreachable")
	}

	s.syncOnce()

	assert.False(t, s.Synced())
	assert.Equal(t, time.Duration(0), s.Offset())
}

func TestSyncOnce_InvalidResponse(t *testing.T) {
	s := New(zap.NewNop(), "pool.ntp.org")
	s.query = func(server string) (*ntp.Response, error) {
		// Stratum 0 (kiss-of-death) fails Validate
		return &ntp.Response{Stratum: 0}, nil
	}

	s.syncOnce()

	assert.False(t, s.Synced())
}

func TestNow_AppliesOffset(t *testing.T) {
	s := New(zap.NewNop(), "pool.ntp.org")
	s.query = func(server string) (*ntp.Response, error) {
		now := time.Now()
		return &ntp.Response{
			ClockOffset:   2 * time.Second,
			Stratum:       2,
			Time:          now,
			ReferenceTime: now,
		}, nil
	}
	s.syncOnce()

	diff := s.Now().Sub(time.Now())
	assert.InDelta(t, (2 * time.Second).Seconds(), diff.Seconds(), 0.1)
}
