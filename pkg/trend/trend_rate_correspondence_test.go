package trend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/seedling-labs/gardener/pkg/config"
	"github.com/seedling-labs/gardener/pkg/sample"
)

// TestRateCorrespondence verifies that rates correspond exactly to sample pairs.
// rate[i] = (sample[i+1].Percent - sample[i].Percent) / dt, scaled to %/h
func TestRateCorrespondence(t *testing.T) {
	cfg := config.Default()
	tr := New(cfg)

	now := time.Now()
	dt := 100 * time.Millisecond

	// Create samples with known values
	samples := []sample.Sample{
		{Timestamp: now, Percent: 40.0, Raw: 2100},
		{Timestamp: now.Add(dt), Percent: 40.1, Raw: 2102},
		{Timestamp: now.Add(2 * dt), Percent: 40.2, Raw: 2104},
		{Timestamp: now.Add(3 * dt), Percent: 40.3, Raw: 2106},
	}

	for _, s := range samples {
		tr.processSample(s)
	}

	// Verify we have n-1 rates for n samples
	resultSamples := tr.Samples()
	resultRates := tr.Rates()
	assert.Equal(t, len(resultSamples)-1, len(resultRates), "Should have n-1 rates for n samples")

	// Verify rate values correspond to sample pairs
	// rate[0] should be (sample[1] - sample[0]) / dt in %/h
	expectedRate0 := float64(resultSamples[1].Percent-resultSamples[0].Percent) / resultSamples[1].Timestamp.Sub(resultSamples[0].Timestamp).Seconds() * 3600
	assert.InDelta(t, expectedRate0, resultRates[0], 0.01, "rate[0] should correspond to (sample[1]-sample[0])/dt")

	// rate[1] should be (sample[2] - sample[1]) / dt in %/h
	expectedRate1 := float64(resultSamples[2].Percent-resultSamples[1].Percent) / resultSamples[2].Timestamp.Sub(resultSamples[1].Timestamp).Seconds() * 3600
	assert.InDelta(t, expectedRate1, resultRates[1], 0.01, "rate[1] should correspond to (sample[2]-sample[1])/dt")
}

// TestTimestampBasedRemoval verifies that samples are removed based on timestamp, not count.
func TestTimestampBasedRemoval(t *testing.T) {
	cfg := config.Default()
	cfg.Moisture.WindowSeconds = 1.0 // 1 second window
	tr := New(cfg)

	now := time.Now()

	// Add samples at different times
	// Sample at t=0s (will be removed when we add sample at t=1.5s)
	s1 := sample.Sample{Timestamp: now, Percent: 40.0, Raw: 2100}
	tr.processSample(s1)

	// Sample at t=0.5s (will be kept when we add sample at t=1.5s)
	s2 := sample.Sample{Timestamp: now.Add(500 * time.Millisecond), Percent: 40.1, Raw: 2102}
	tr.processSample(s2)

	// Sample at t=1.5s (outside window from s1's perspective, but within window from s2's)
	s3 := sample.Sample{Timestamp: now.Add(1500 * time.Millisecond), Percent: 40.2, Raw: 2104}
	tr.processSample(s3)

	// Verify s1 was removed (outside 1s window from s3)
	resultSamples := tr.Samples()
	assert.LessOrEqual(t, len(resultSamples), 2, "Should remove samples outside time window")

	// Verify s2 and s3 are still present
	if len(resultSamples) >= 2 {
		assert.True(t, resultSamples[0].Timestamp.Equal(s2.Timestamp) || resultSamples[0].Timestamp.After(s2.Timestamp), "First sample should be s2 or later")
	}

	// Verify rates correspond correctly after removal
	resultRates := tr.Rates()
	assert.Equal(t, len(resultSamples)-1, len(resultRates), "Rates should still correspond exactly after timestamp-based removal")
}

// TestRateCorrespondenceAfterRemoval verifies rates remain correct after sample removal.
func TestRateCorrespondenceAfterRemoval(t *testing.T) {
	cfg := config.Default()
	cfg.Moisture.WindowSeconds = 2.0 // 2 second window
	tr := New(cfg)

	now := time.Now()
	dt := 200 * time.Millisecond

	// Create 5 samples
	for i := 0; i < 5; i++ {
		s := sample.Sample{
			Timestamp: now.Add(time.Duration(i) * dt),
			Percent:   40.0 + float32(i)*0.1,
			Raw:       uint16(2100 + i*2),
		}
		tr.processSample(s)
	}

	// Verify initial correspondence: 5 samples = 4 rates
	samples1 := tr.Samples()
	rates1 := tr.Rates()
	assert.Equal(t, 5, len(samples1))
	assert.Equal(t, 4, len(rates1), "Should have 4 rates for 5 samples")

	// Add a sample that will cause removal of first 2 samples (outside 2s window)
	// First sample is at t=0, new sample at t=2.5s, so samples before t=0.5s are removed
	s6 := sample.Sample{
		Timestamp: now.Add(2500 * time.Millisecond),
		Percent:   40.5,
		Raw:       2110,
	}
	tr.processSample(s6)

	// Verify samples were removed based on timestamp
	samples2 := tr.Samples()
	rates2 := tr.Rates()

	// Should have fewer samples now
	assert.Less(t, len(samples2), len(samples1), "Should have removed some samples")

	// Rates should still correspond exactly: n samples = n-1 rates
	assert.Equal(t, len(samples2)-1, len(rates2), "Rates should still correspond exactly after removal")

	// Verify rate values still correspond to correct sample pairs
	if len(rates2) > 0 && len(samples2) > 1 {
		expectedRate := float64(samples2[1].Percent-samples2[0].Percent) / samples2[1].Timestamp.Sub(samples2[0].Timestamp).Seconds() * 3600
		assert.InDelta(t, expectedRate, rates2[0], 0.01, "First rate should correspond to first sample pair after removal")
	}
}
