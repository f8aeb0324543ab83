package history

import (
	"fmt"
	"math"
	"time"

	"github.com/seedling-labs/gardener/pkg/board"
	"github.com/seedling-labs/gardener/pkg/config"
)

// Budget enforces watering limits against a rolling 24 hour window of the log.
type Budget struct {
	log *Log
	cfg config.WateringConfig
}

// NewBudget creates a Budget backed by the given history log.
func NewBudget(log *Log, cfg config.WateringConfig) *Budget {
	return &Budget{log: log, cfg: cfg}
}

// RemainingMl returns how many milliliters may still be dispensed in the
// 24 hours preceding now. Never negative.
func (b *Budget) RemainingMl(now time.Time) float64 {
	used := b.log.UsedSince(now.Add(-24 * time.Hour))
	remaining := float64(b.cfg.DailyBudgetMl) - used
	if remaining < 0 {
		return 0
	}
	return remaining
}

// UsedMl returns how many milliliters were dispensed in the 24 hours
// preceding now.
func (b *Budget) UsedMl(now time.Time) float64 {
	return b.log.UsedSince(now.Add(-24 * time.Hour))
}

// Check validates a dispense request against per-request and daily limits.
func (b *Budget) Check(ml float64, now time.Time) error {
	if ml < float64(b.cfg.MinMl) || ml > float64(b.cfg.MaxMl) {
		return fmt.Errorf("amount %.1f ml outside allowed range %d-%d ml", ml, b.cfg.MinMl, b.cfg.MaxMl)
	}
	if remaining := b.RemainingMl(now); ml > remaining {
		return fmt.Errorf("daily budget exceeded: %.1f ml requested, %.1f ml remaining", ml, remaining)
	}
	return nil
}

// SecondsFor converts milliliters to pump runtime, rounded to the nearest
// whole second and clamped to the pump safety limits.
func (b *Budget) SecondsFor(ml float64) int {
	if b.cfg.MlPerSecond <= 0 {
		return board.PumpMinSeconds
	}
	seconds := int(math.Round(ml / b.cfg.MlPerSecond))
	if seconds < board.PumpMinSeconds {
		return board.PumpMinSeconds
	}
	if seconds > board.PumpMaxSeconds {
		return board.PumpMaxSeconds
	}
	return seconds
}

// MlFor converts pump runtime to the milliliters it dispenses.
func (b *Budget) MlFor(seconds float64) float64 {
	return seconds * b.cfg.MlPerSecond
}

// Events returns the watering entries recorded at or after t.
func (b *Budget) Events(t time.Time) []Entry {
	return b.log.Since(t)
}

// DailyBudgetMl returns the configured 24 hour budget.
func (b *Budget) DailyBudgetMl() float64 {
	return float64(b.cfg.DailyBudgetMl)
}

// Record appends a completed dispense to the log.
func (b *Budget) Record(ml float64, seconds float64, source string, now time.Time) error {
	return b.log.Append(Entry{
		Timestamp: now,
		Ml:        ml,
		Seconds:   seconds,
		Source:    source,
	})
}
