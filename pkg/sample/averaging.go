package sample

import (
	"log"
	"time"

	"github.com/seedling-labs/gardener/pkg/config"
	"github.com/seedling-labs/gardener/pkg/gardener"
)

// NewAveragingConverter creates a converter that averages N consecutive RawSamples
// and converts them to Samples. This reduces sensor noise.
func NewAveragingConverter(cfg *config.Config, windowSize int, bufSize int) Converter {
	if windowSize <= 0 {
		windowSize = 1 // No averaging if invalid
	}
	if bufSize <= 0 {
		bufSize = 100
	}

	return func(in <-chan gardener.RawSample) <-chan Sample {
		out := make(chan Sample, bufSize)

		go func() {
			defer close(out)

			var buffer []gardener.RawSample
			ticker := time.NewTicker(100 * time.Millisecond) // Output rate
			defer ticker.Stop()

			for {
				select {
				case raw, ok := <-in:
					if !ok {
						// Input closed, output any remaining samples
						if len(buffer) > 0 {
							select {
							case out <- averageAndConvertSamples(buffer, cfg):
							default:
							}
						}
						return
					}

					buffer = append(buffer, raw)
					if len(buffer) > windowSize {
						buffer = buffer[1:] // Remove oldest
					}

				case <-ticker.C:
					// Output averaged sample periodically
					if len(buffer) > 0 {
						select {
						case out <- averageAndConvertSamples(buffer, cfg):
						default:
							log.Printf("Averaging converter output channel full")
						}
					}
				}
			}
		}()

		return out
	}
}

// averageAndConvertSamples averages a slice of RawSamples and converts to Sample.
// Uses the most recent sample's timestamp and pump state.
func averageAndConvertSamples(samples []gardener.RawSample, cfg *config.Config) Sample {
	if len(samples) == 0 {
		return Sample{}
	}

	var sum uint32
	lastSample := samples[len(samples)-1]

	for _, s := range samples {
		sum += uint32(s.Moisture)
	}

	n := float64(len(samples))
	avgADC := uint16((float64(sum) / n) + 0.5) // Round to nearest

	avgRaw := gardener.RawSample{
		Timestamp:     lastSample.Timestamp,
		Moisture:      avgADC,
		PumpActive:    lastSample.PumpActive, // Use most recent pump state
		PumpRemaining: lastSample.PumpRemaining,
	}

	return convertSample(avgRaw, cfg)
}

// NewAveragingConverterForSamples creates an averaging converter that works on
// already-converted Samples. Useful when averaging after conversion.
func NewAveragingConverterForSamples(windowSize int, bufSize int) func(in <-chan Sample) <-chan Sample {
	if windowSize <= 0 {
		windowSize = 1
	}
	if bufSize <= 0 {
		bufSize = 100
	}

	return func(in <-chan Sample) <-chan Sample {
		out := make(chan Sample, bufSize)

		go func() {
			defer close(out)

			var buffer []Sample
			ticker := time.NewTicker(100 * time.Millisecond)
			defer ticker.Stop()

			for {
				select {
				case s, ok := <-in:
					if !ok {
						if len(buffer) > 0 {
							select {
							case out <- averageConvertedSamples(buffer):
							default:
							}
						}
						return
					}

					buffer = append(buffer, s)
					if len(buffer) > windowSize {
						buffer = buffer[1:]
					}

				case <-ticker.C:
					if len(buffer) > 0 {
						select {
						case out <- averageConvertedSamples(buffer):
						default:
							log.Printf("Averaging converter output channel full")
						}
					}
				}
			}
		}()

		return out
	}
}

// averageConvertedSamples averages a slice of converted Samples.
func averageConvertedSamples(samples []Sample) Sample {
	if len(samples) == 0 {
		return Sample{}
	}

	var sumPercent float32
	var sumRaw uint32
	lastSample := samples[len(samples)-1]

	for _, s := range samples {
		sumPercent += s.Percent
		sumRaw += uint32(s.Raw)
	}

	n := len(samples)
	return Sample{
		Timestamp:  lastSample.Timestamp,
		Percent:    sumPercent / float32(n),
		Raw:        uint16(float64(sumRaw)/float64(n) + 0.5),
		PumpActive: lastSample.PumpActive,
	}
}
