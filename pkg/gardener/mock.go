package gardener

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/seedling-labs/gardener/pkg/board"
	"github.com/seedling-labs/gardener/pkg/config"
)

// Mock simulates a gardener controller for testing and development.
// The simulated soil dries towards a floor value over time; running the pump
// raises the reading while the relay is on, mirroring how the real sensor
// responds to watering.
type Mock struct {
	cfg *config.MockConfig

	samples   chan RawSample
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool

	// Simulation state
	startTime     time.Time
	moisture      float64 // Raw ADC counts
	pumpRemaining float64 // Seconds of pumping left
}

// Ensure Mock implements Device.
var _ Device = (*Mock)(nil)

// NewMock creates a new mocked device instance.
func NewMock(cfg *config.MockConfig) *Mock {
	if cfg == nil {
		cfg = &config.MockConfig{
			InitialMoisture: 2000,
			DryFloor:        1500,
			DryRatePerHour:  120,
			WateringBoost:   25,
			NoiseLevel:      4,
			SampleRate:      time.Second,
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Mock{
		cfg:       cfg,
		samples:   make(chan RawSample, DefaultBufferSize),
		ctx:       ctx,
		cancel:    cancel,
		connected: false,
	}
}

// Connect simulates connecting to the device.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}

	m.connected = true
	m.startTime = time.Now()
	m.moisture = float64(m.cfg.InitialMoisture)
	m.pumpRemaining = 0

	// Start generating samples
	go m.generateSamples()

	return nil
}

// Close stops the mocked device.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil
	}

	m.cancel()
	m.connected = false
	close(m.samples)

	return nil
}

// Samples returns the channel for reading samples.
func (m *Mock) Samples() <-chan RawSample {
	return m.samples
}

// SetPump starts the simulated pump for the given number of seconds.
func (m *Mock) SetPump(seconds int) error {
	if seconds < board.PumpMinSeconds || seconds > board.PumpMaxSeconds {
		return fmt.Errorf("pump duration %ds outside safety limits [%d, %d]",
			seconds, board.PumpMinSeconds, board.PumpMaxSeconds)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return fmt.Errorf("not connected")
	}

	m.pumpRemaining = float64(seconds)
	return nil
}

// StopPump stops the simulated pump.
func (m *Mock) StopPump() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return fmt.Errorf("not connected")
	}

	m.pumpRemaining = 0
	return nil
}

// IsConnected returns whether the device is currently connected.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// generateSamples generates simulated samples.
func (m *Mock) generateSamples() {
	ticker := time.NewTicker(m.cfg.SampleRate)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			sample := m.generateSample()
			select {
			case m.samples <- sample:
			case <-m.ctx.Done():
				return
			default:
				// Channel full, skip
			}
		}
	}
}

// generateSample advances the soil simulation by one tick and emits a sample.
func (m *Mock) generateSample() RawSample {
	m.mu.Lock()

	now := time.Now()
	dt := m.cfg.SampleRate.Seconds()

	if m.pumpRemaining > 0 {
		// Watering: moisture climbs while the relay is on
		m.moisture += m.cfg.WateringBoost * dt
		m.pumpRemaining -= dt
		if m.pumpRemaining < 0 {
			m.pumpRemaining = 0
		}
	} else {
		// Natural drying towards the floor value
		m.moisture -= m.cfg.DryRatePerHour * dt / 3600.0
		if m.moisture < float64(m.cfg.DryFloor) {
			m.moisture = float64(m.cfg.DryFloor)
		}
	}

	// Add deterministic noise, enough to exercise the averaging pipeline
	elapsed := now.Sub(m.startTime)
	noise := (math.Sin(float64(elapsed.Nanoseconds())*0.001) +
		math.Cos(float64(elapsed.Nanoseconds())*0.0013)) *
		m.cfg.NoiseLevel * 0.5

	value := m.moisture + noise
	if value < board.ADCMinValue {
		value = board.ADCMinValue
	} else if value > board.ADCMaxValue {
		value = board.ADCMaxValue
	}

	remaining := int(m.pumpRemaining + 0.5)
	active := m.pumpRemaining > 0

	m.mu.Unlock()

	return RawSample{
		Timestamp:     now,
		Moisture:      uint16(value),
		PumpActive:    active,
		PumpRemaining: remaining,
	}
}
