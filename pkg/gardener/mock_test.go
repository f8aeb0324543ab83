package gardener

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seedling-labs/gardener/pkg/config"
)

func mockCfg() *config.MockConfig {
	return &config.MockConfig{
		InitialMoisture: 2000,
		DryFloor:        1500,
		DryRatePerHour:  120,
		WateringBoost:   25,
		NoiseLevel:      0, // Deterministic for tests
		SampleRate:      10 * time.Millisecond,
	}
}

func TestNewMock(t *testing.T) {
	cfg := mockCfg()
	dev := NewMock(cfg)
	assert.NotNil(t, dev)
	assert.Equal(t, cfg, dev.cfg)
	assert.NotNil(t, dev.samples)
	assert.False(t, dev.IsConnected())
}

func TestNewMock_NilConfig(t *testing.T) {
	dev := NewMock(nil)
	assert.NotNil(t, dev)
	assert.NotNil(t, dev.cfg)
	assert.Equal(t, uint16(2000), dev.cfg.InitialMoisture)
	assert.Equal(t, uint16(1500), dev.cfg.DryFloor)
	assert.Equal(t, time.Second, dev.cfg.SampleRate)
}

func TestMock_ConnectClose(t *testing.T) {
	dev := NewMock(mockCfg())

	require.NoError(t, dev.Connect())
	assert.True(t, dev.IsConnected())

	// Double connect fails
	assert.Error(t, dev.Connect())

	require.NoError(t, dev.Close())
	assert.False(t, dev.IsConnected())

	// Double close is a no-op
	assert.NoError(t, dev.Close())
}

func TestMock_ProducesSamples(t *testing.T) {
	dev := NewMock(mockCfg())
	require.NoError(t, dev.Connect())
	defer dev.Close()

	select {
	case s := <-dev.Samples():
		assert.LessOrEqual(t, s.Moisture, uint16(4095))
		assert.False(t, s.PumpActive)
		assert.Equal(t, 0, s.PumpRemaining)
	case <-time.After(time.Second):
		t.Fatal("no sample received within timeout")
	}
}

func TestMock_SetPumpValidation(t *testing.T) {
	dev := NewMock(mockCfg())
	require.NoError(t, dev.Connect())
	defer dev.Close()

	assert.Error(t, dev.SetPump(0))
	assert.Error(t, dev.SetPump(31))
	assert.NoError(t, dev.SetPump(1))
	assert.NoError(t, dev.SetPump(30))
}

func TestMock_SetPump_NotConnected(t *testing.T) {
	dev := NewMock(mockCfg())
	assert.Error(t, dev.SetPump(5))
	assert.Error(t, dev.StopPump())
}

func TestMock_WateringRaisesMoisture(t *testing.T) {
	cfg := mockCfg()
	cfg.WateringBoost = 1000 // Exaggerate so a few ticks are measurable
	dev := NewMock(cfg)
	require.NoError(t, dev.Connect())
	defer dev.Close()

	// Baseline sample
	var before RawSample
	select {
	case before = <-dev.Samples():
	case <-time.After(time.Second):
		t.Fatal("no baseline sample")
	}

	require.NoError(t, dev.SetPump(30))

	// Drain until we see the pump active and moisture climbing
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-dev.Samples():
			if s.PumpActive && s.Moisture > before.Moisture {
				return // Observed watering response
			}
		case <-deadline:
			t.Fatal("moisture never rose while pumping")
		}
	}
}

func TestMock_StopPump(t *testing.T) {
	dev := NewMock(mockCfg())
	require.NoError(t, dev.Connect())
	defer dev.Close()

	require.NoError(t, dev.SetPump(30))
	require.NoError(t, dev.StopPump())

	// Give the generator a tick, then verify pump reads idle
	time.Sleep(50 * time.Millisecond)
	deadline := time.After(time.Second)
	for {
		select {
		case s := <-dev.Samples():
			if !s.PumpActive {
				assert.Equal(t, 0, s.PumpRemaining)
				return
			}
		case <-deadline:
			t.Fatal("pump still active after StopPump")
		}
	}
}
