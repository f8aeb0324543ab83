package sample

import (
	"time"

	"github.com/chewxy/math32"

	"github.com/seedling-labs/gardener/pkg/config"
	"github.com/seedling-labs/gardener/pkg/gardener"
)

// Sample represents a processed measurement sample with calibrated values.
type Sample struct {
	Timestamp  time.Time
	Percent    float32 // Soil moisture (0-100%)
	Raw        uint16  // Original ADC reading (0-4095)
	PumpActive bool
}

// Converter is a function type that converts a RawSample channel to a Sample channel.
type Converter func(in <-chan gardener.RawSample) <-chan Sample

// NewConverter creates a converter function that transforms RawSample to Sample.
func NewConverter(cfg *config.Config, bufSize int) Converter {
	if bufSize <= 0 {
		bufSize = 100
	}

	return func(in <-chan gardener.RawSample) <-chan Sample {
		out := make(chan Sample, bufSize)

		go func() {
			defer close(out)

			for raw := range in {
				select {
				case out <- convertSample(raw, cfg):
				case <-time.After(time.Second):
					// Output channel full for a whole second, drop
				}
			}
		}()

		return out
	}
}

// convertSample converts a RawSample to Sample using the sensor calibration.
func convertSample(raw gardener.RawSample, cfg *config.Config) Sample {
	return Sample{
		Timestamp:  raw.Timestamp,
		Percent:    Percent(raw.Moisture, cfg.Moisture.DryValue, cfg.Moisture.WetValue),
		Raw:        raw.Moisture,
		PumpActive: raw.PumpActive,
	}
}

// Percent maps a raw ADC reading onto the calibrated dry..wet range.
// Readings below the dry point return 0, above the wet point 100.
func Percent(raw uint16, dry, wet uint16) float32 {
	if wet <= dry {
		return 0
	}
	p := float32(int(raw)-int(dry)) / float32(int(wet)-int(dry)) * 100
	return math32.Max(0, math32.Min(100, p))
}
