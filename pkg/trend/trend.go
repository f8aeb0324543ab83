package trend

import (
	"sync"
	"time"

	"github.com/seedling-labs/gardener/pkg/config"
	"github.com/seedling-labs/gardener/pkg/sample"
)

var _ Analyzer = (*Tracker)(nil)

// WateringEvent represents a detected watering event: a period during which
// the soil moisture rose faster than the configured threshold.
type WateringEvent struct {
	StartIndex   int       // Start sample index in buffer
	EndIndex     int       // End sample index in buffer (updated as event continues)
	StartTime    time.Time // Start timestamp
	EndTime      time.Time // End timestamp (updated as event continues)
	PeakRate     float64   // Highest observed moisture rise rate in %/h
	DeltaPercent float64   // Total moisture change over the event
}

// Analyzer processes samples, maintains buffers, and detects watering events.
type Analyzer interface {
	ProcessSamples(input <-chan sample.Sample)
	Samples() []sample.Sample                                                       // Get current samples buffer (FIFO, ordered first to last)
	Rates() []float64                                                               // Get moisture change rates in %/h (corresponds to Samples, n-1 rates for n samples)
	Events() []WateringEvent                                                        // Get detected watering events within window
	OnUpdate(func(samples []sample.Sample, rates []float64, events []WateringEvent)) // Register callback for updates
}

// Tracker implements the Analyzer interface.
// Internally uses FIFO buffers (can be implemented as ring buffers for efficiency).
// Externally exposes ordered slices (first sample/rate first, latest last).
type Tracker struct {
	cfg *config.Config

	// Buffers
	// Both samples and rates are FIFO buffers that maintain order:
	// - First sample/rate is at index 0 (oldest)
	// - Latest sample/rate is at the end (newest)
	// Removal is based on timestamp (time window), not number of samples.
	//
	// Rates correspond exactly to sample pairs:
	// - rate[i] = (sample[i+1].Percent - sample[i].Percent) / dt, scaled to %/h
	// - If we have n samples, we have n-1 rates
	samples []sample.Sample // FIFO buffer of samples (ordered first to last, removed by timestamp)
	rates   []float64       // FIFO buffer of moisture change rates (n-1 rates for n samples)
	events  []WateringEvent // Detected watering events

	// Thread safety
	mu sync.RWMutex

	// Update callbacks
	// Callbacks receive current samples, rates, and events directly
	callbacks []func(samples []sample.Sample, rates []float64, events []WateringEvent)
	cbMu      sync.RWMutex

	// Configuration
	windowDuration   time.Duration
	threshold        float64 // Moisture rise rate that counts as watering, in %/h
	minEventDuration time.Duration

	// Shutdown control
	shutdown bool // Set to true when input channel closes, prevents further callbacks
}

// New creates a new moisture trend Tracker.
func New(cfg *config.Config) *Tracker {
	t := &Tracker{
		cfg:              cfg,
		samples:          make([]sample.Sample, 0),
		rates:            make([]float64, 0),
		events:           make([]WateringEvent, 0),
		callbacks:        make([]func(samples []sample.Sample, rates []float64, events []WateringEvent), 0),
		windowDuration:   time.Duration(cfg.Moisture.WindowSeconds * float64(time.Second)),
		threshold:        cfg.Moisture.EventThreshold,
		minEventDuration: time.Duration(cfg.Moisture.MinEventDuration * float64(time.Second)),
		shutdown:         false,
	}

	return t
}

// ProcessSamples processes samples from the input channel in a goroutine.
// When the input channel closes, it sets shutdown flag to prevent further callbacks.
func (t *Tracker) ProcessSamples(input <-chan sample.Sample) {
	for s := range input {
		t.processSample(s)
	}
	// Channel closed - mark as shutdown to prevent further callbacks
	t.mu.Lock()
	t.shutdown = true
	t.mu.Unlock()
}

// processSample adds a sample to the buffer, updates rates, and detects events.
func (t *Tracker) processSample(s sample.Sample) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Add sample to FIFO buffer
	t.samples = append(t.samples, s)

	// Remove samples outside time window (based on timestamp, not count)
	// Calculate cutoff time: samples before this time are outside the window
	cutoffTime := s.Timestamp.Add(-t.windowDuration)
	cutoffIndex := 0
	for i, smp := range t.samples {
		if smp.Timestamp.After(cutoffTime) {
			cutoffIndex = i
			break
		}
	}
	if cutoffIndex > 0 {
		// Remove samples before cutoffIndex (they're outside the time window)
		t.samples = t.samples[cutoffIndex:]

		// Remove corresponding rates to keep exact correspondence
		// rate[i] = (sample[i+1] - sample[i]) / dt
		// If we remove samples[0..cutoffIndex-1], we need to remove rates[0..cutoffIndex-1]
		// because those rates correspond to pairs involving removed samples
		if cutoffIndex <= len(t.rates) {
			t.rates = t.rates[cutoffIndex:]
		} else {
			// Edge case: if we removed more samples than we have rates, clear all
			// This can happen if we had very few samples and removed most/all of them
			t.rates = t.rates[:0]
		}
		// Adjust event indices
		for i := range t.events {
			t.events[i].StartIndex -= cutoffIndex
			t.events[i].EndIndex -= cutoffIndex
		}
		// Remove events with invalid indices
		validEvents := make([]WateringEvent, 0)
		for _, ev := range t.events {
			if ev.StartIndex >= 0 && ev.EndIndex >= 0 {
				validEvents = append(validEvents, ev)
			}
		}
		t.events = validEvents
	}

	// Update rates (need at least 2 samples)
	// Calculate rate for the new sample pair: (sample[n-1], sample[n])
	// rate[i] corresponds exactly to the change from sample[i] to sample[i+1]
	if len(t.samples) >= 2 {
		lastIdx := len(t.samples) - 1
		prev := t.samples[lastIdx-1] // sample[i]
		curr := t.samples[lastIdx]   // sample[i+1]

		dt := curr.Timestamp.Sub(prev.Timestamp).Seconds()
		if dt > 0 {
			// Rate in percent per hour
			rate := float64(curr.Percent-prev.Percent) / dt * 3600
			t.rates = append(t.rates, rate)

			// Ensure exact correspondence: n samples = n-1 rates
			// If somehow we have more rates than expected, remove oldest
			if len(t.rates) > len(t.samples)-1 {
				t.rates = t.rates[1:]
			}
		}
	}

	// Detect and update watering events
	t.updateEvents()

	// Check shutdown flag and prepare for callback (must do this while holding lock)
	shouldNotify := !t.shutdown

	// Release lock before calling notifyCallbacks (which needs RLock)
	// This prevents deadlock: we can't acquire RLock while holding Lock
	t.mu.Unlock()

	if shouldNotify {
		t.notifyCallbacks()
	}

	// Re-acquire lock for defer (though we're about to return anyway)
	t.mu.Lock()
}

// updateEvents detects and updates watering events based on rates.
func (t *Tracker) updateEvents() {
	if len(t.rates) == 0 {
		return
	}

	lastRateIdx := len(t.rates) - 1
	lastRate := t.rates[lastRateIdx]
	lastSampleIdx := len(t.samples) - 1

	// Check if moisture is rising fast enough to count as watering
	isWatering := lastRate > t.threshold

	// Update existing active events or create new ones
	if isWatering {
		// Find active event (last event that might still be active)
		activeEventIdx := -1
		for i := len(t.events) - 1; i >= 0; i-- {
			if t.events[i].EndIndex == lastSampleIdx-1 {
				// This event was just extended, check if it's still active
				activeEventIdx = i
				break
			}
		}

		if activeEventIdx >= 0 {
			// Extend existing event
			ev := &t.events[activeEventIdx]
			ev.EndIndex = lastSampleIdx
			ev.EndTime = t.samples[lastSampleIdx].Timestamp
			if lastRate > ev.PeakRate {
				ev.PeakRate = lastRate
			}
			ev.DeltaPercent = float64(t.samples[lastSampleIdx].Percent - t.samples[ev.StartIndex].Percent)
		} else {
			// Check if we should start a new event
			// Only start if previous rate was below threshold (or this is first)
			shouldStart := true
			if lastRateIdx > 0 {
				prevRate := t.rates[lastRateIdx-1]
				if prevRate > t.threshold {
					// Previous was also above threshold, might be continuation
					// Check if there's a gap (drying phase) between last event and now
					shouldStart = false
					if len(t.events) > 0 {
						lastEvent := t.events[len(t.events)-1]
						// If there's a gap, start new event
						if lastSampleIdx-1 > lastEvent.EndIndex+1 {
							shouldStart = true
						}
					}
				}
			}

			if shouldStart {
				// Start new event
				startIdx := lastSampleIdx - 1
				if startIdx < 0 {
					startIdx = 0
				}
				newEvent := WateringEvent{
					StartIndex:   startIdx,
					EndIndex:     lastSampleIdx,
					StartTime:    t.samples[startIdx].Timestamp,
					EndTime:      t.samples[lastSampleIdx].Timestamp,
					PeakRate:     lastRate,
					DeltaPercent: float64(t.samples[lastSampleIdx].Percent - t.samples[startIdx].Percent),
				}
				t.events = append(t.events, newEvent)
			} else if len(t.events) > 0 {
				// Extend the last event if it was close
				lastEventIdx := len(t.events) - 1
				lastEvent := &t.events[lastEventIdx]
				if lastSampleIdx <= lastEvent.EndIndex+2 {
					// Close enough, extend it
					lastEvent.EndIndex = lastSampleIdx
					lastEvent.EndTime = t.samples[lastSampleIdx].Timestamp
					if lastRate > lastEvent.PeakRate {
						lastEvent.PeakRate = lastRate
					}
					lastEvent.DeltaPercent = float64(t.samples[lastSampleIdx].Percent - t.samples[lastEvent.StartIndex].Percent)
				}
			}
		}
	}

	// Remove events that are completely outside the window or too short (noise filtering)
	validEvents := make([]WateringEvent, 0, len(t.events))
	for _, ev := range t.events {
		if ev.StartIndex >= 0 && ev.StartIndex < len(t.samples) {
			// Filter out events shorter than minimum duration
			duration := ev.EndTime.Sub(ev.StartTime)
			if duration >= t.minEventDuration {
				validEvents = append(validEvents, ev)
			}
		}
	}
	t.events = validEvents
}

// Samples returns a copy of the current samples buffer.
func (t *Tracker) Samples() []sample.Sample {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]sample.Sample, len(t.samples))
	copy(result, t.samples)
	return result
}

// Rates returns a copy of the current moisture change rates buffer.
func (t *Tracker) Rates() []float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]float64, len(t.rates))
	copy(result, t.rates)
	return result
}

// Events returns a copy of the current watering events list.
func (t *Tracker) Events() []WateringEvent {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]WateringEvent, len(t.events))
	copy(result, t.events)
	return result
}

// OnUpdate registers a callback function that will be called when samples are updated.
// The callback receives current samples, rates, and events directly.
// The callback should copy data quickly and return as fast as possible.
func (t *Tracker) OnUpdate(callback func(samples []sample.Sample, rates []float64, events []WateringEvent)) {
	t.cbMu.Lock()
	defer t.cbMu.Unlock()
	t.callbacks = append(t.callbacks, callback)
}

// ResetShutdown resets the shutdown flag, allowing callbacks to be sent again.
// This should be called before starting a new monitoring chain.
func (t *Tracker) ResetShutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.shutdown = false
}

// notifyCallbacks invokes all registered callbacks with current data.
// Makes copies of data while holding read lock, then calls callbacks without lock.
func (t *Tracker) notifyCallbacks() {
	// Copy data while holding read lock
	t.mu.RLock()
	samplesCopy := make([]sample.Sample, len(t.samples))
	copy(samplesCopy, t.samples)
	ratesCopy := make([]float64, len(t.rates))
	copy(ratesCopy, t.rates)
	eventsCopy := make([]WateringEvent, len(t.events))
	copy(eventsCopy, t.events)
	t.mu.RUnlock()

	// Get callbacks (need read lock for callbacks slice)
	t.cbMu.RLock()
	callbacks := make([]func(samples []sample.Sample, rates []float64, events []WateringEvent), len(t.callbacks))
	copy(callbacks, t.callbacks)
	t.cbMu.RUnlock()

	// Invoke callbacks without holding any locks
	for _, cb := range callbacks {
		if cb != nil {
			cb(samplesCopy, ratesCopy, eventsCopy)
		}
	}
}
