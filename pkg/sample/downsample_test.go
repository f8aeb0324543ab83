package sample

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownsampleSamples_NoDownsampling(t *testing.T) {
	now := time.Now()
	samples := []Sample{
		{Timestamp: now, Percent: 40.0, Raw: 2100},
		{Timestamp: now.Add(100 * time.Millisecond), Percent: 40.1, Raw: 2102},
		{Timestamp: now.Add(200 * time.Millisecond), Percent: 40.2, Raw: 2104},
	}

	// Test with nil dst
	result := DownsampleSamples(nil, samples, 10)
	require.Equal(t, 3, len(result))
	assert.Equal(t, samples[0], result[0])
	assert.Equal(t, samples[1], result[1])
	assert.Equal(t, samples[2], result[2])

	// Test with sufficient capacity dst
	dst := make([]Sample, 0, 10)
	result = DownsampleSamples(dst, samples, 10)
	require.Equal(t, 3, len(result))
	assert.Equal(t, samples[0], result[0])
	assert.Equal(t, samples[1], result[1])
	assert.Equal(t, samples[2], result[2])
	// Should reuse dst
	assert.Equal(t, cap(dst), cap(result))
}

func TestDownsampleSamples_WithDownsampling(t *testing.T) {
	now := time.Now()
	samples := make([]Sample, 100)
	for i := 0; i < 100; i++ {
		samples[i] = Sample{
			Timestamp: now.Add(time.Duration(i) * 10 * time.Millisecond),
			Percent:   float32(i),
			Raw:       uint16(1500 + i*15),
		}
	}

	// Downsample to 10 points
	dst := make([]Sample, 0, 20)
	result := DownsampleSamples(dst, samples, 10)
	require.Equal(t, 10, len(result))

	// Should always include first sample
	assert.Equal(t, samples[0], result[0])

	// Last sample should be close to the end (may not be exactly samples[99] due to decimation)
	// Check that we got samples from across the range
	assert.GreaterOrEqual(t, result[len(result)-1].Percent, float32(80))

	// Should reuse dst if capacity sufficient
	assert.GreaterOrEqual(t, cap(result), 10)
}

func TestDownsampleSamples_DestinationReuse(t *testing.T) {
	now := time.Now()
	samples1 := []Sample{
		{Timestamp: now, Percent: 40.0, Raw: 2100},
		{Timestamp: now.Add(100 * time.Millisecond), Percent: 40.1, Raw: 2102},
	}

	samples2 := []Sample{
		{Timestamp: now, Percent: 50.0, Raw: 2250},
		{Timestamp: now.Add(100 * time.Millisecond), Percent: 50.1, Raw: 2252},
		{Timestamp: now.Add(200 * time.Millisecond), Percent: 50.2, Raw: 2254},
	}

	// First call
	dst := make([]Sample, 0, 10)
	result1 := DownsampleSamples(dst, samples1, 10)
	require.Equal(t, 2, len(result1))

	// Second call - should reuse dst
	result2 := DownsampleSamples(result1, samples2, 10)
	require.Equal(t, 3, len(result2))

	// Should reuse same underlying array
	assert.Equal(t, cap(result1), cap(result2))
}

func TestDownsampleSamples_EmptyInput(t *testing.T) {
	result := DownsampleSamples(nil, []Sample{}, 10)
	require.Equal(t, 0, len(result))
}

func TestDownsampleRates_NoDownsampling(t *testing.T) {
	rates := []float64{0.1, 0.2, 0.3, 0.4, 0.5}

	// Test with nil dst
	result := DownsampleRates(nil, rates, 10)
	require.Equal(t, 5, len(result))
	assert.Equal(t, rates[0], result[0])
	assert.Equal(t, rates[4], result[4])

	// Test with sufficient capacity dst
	dst := make([]float64, 0, 10)
	result = DownsampleRates(dst, rates, 10)
	require.Equal(t, 5, len(result))
	assert.Equal(t, rates[0], result[0])
	assert.Equal(t, rates[4], result[4])
	// Should reuse dst
	assert.Equal(t, cap(dst), cap(result))
}

func TestDownsampleRates_WithDownsampling(t *testing.T) {
	rates := make([]float64, 100)
	for i := 0; i < 100; i++ {
		rates[i] = float64(i) * 0.01
	}

	// Downsample to 10 points
	dst := make([]float64, 0, 20)
	result := DownsampleRates(dst, rates, 10)
	require.Equal(t, 10, len(result))

	// Should always include first value
	assert.Equal(t, rates[0], result[0])

	// Last value should be close to the end (may not be exactly rates[99] due to decimation)
	// Check that we got values from across the range
	assert.GreaterOrEqual(t, result[len(result)-1], 0.8)

	// Should reuse dst if capacity sufficient
	assert.GreaterOrEqual(t, cap(result), 10)
}

func TestDownsampleRates_DestinationReuse(t *testing.T) {
	rates1 := []float64{0.1, 0.2}
	rates2 := []float64{0.3, 0.4, 0.5}

	// First call
	dst := make([]float64, 0, 10)
	result1 := DownsampleRates(dst, rates1, 10)
	require.Equal(t, 2, len(result1))

	// Second call - should reuse dst
	result2 := DownsampleRates(result1, rates2, 10)
	require.Equal(t, 3, len(result2))

	// Should reuse same underlying array
	assert.Equal(t, cap(result1), cap(result2))
}

func TestDownsampleRates_EmptyInput(t *testing.T) {
	result := DownsampleRates(nil, []float64{}, 10)
	require.Equal(t, 0, len(result))
}

func TestDownsampleSamples_ExactMaxPoints(t *testing.T) {
	now := time.Now()
	samples := make([]Sample, 10)
	for i := 0; i < 10; i++ {
		samples[i] = Sample{
			Timestamp: now.Add(time.Duration(i) * 10 * time.Millisecond),
			Percent:   float32(i),
			Raw:       uint16(1500 + i*15),
		}
	}

	// Downsample to exactly 10 points (same as input)
	result := DownsampleSamples(nil, samples, 10)
	require.Equal(t, 10, len(result))

	// Should be identical
	for i := 0; i < 10; i++ {
		assert.Equal(t, samples[i], result[i])
	}
}

func TestDownsampleRates_ExactMaxPoints(t *testing.T) {
	rates := make([]float64, 10)
	for i := 0; i < 10; i++ {
		rates[i] = float64(i) * 0.01
	}

	// Downsample to exactly 10 points (same as input)
	result := DownsampleRates(nil, rates, 10)
	require.Equal(t, 10, len(result))

	// Should be identical
	for i := 0; i < 10; i++ {
		assert.Equal(t, rates[i], result[i])
	}
}
