// gardenerd is the headless watering daemon. It reads moisture telemetry
// from the controller over the serial link, tracks moisture trends, enforces
// the watering budget, and exposes the HTTP/WebSocket API alongside the
// optional MQTT and mDNS integrations.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/seedling-labs/gardener/pkg/board"
	"github.com/seedling-labs/gardener/pkg/config"
	"github.com/seedling-labs/gardener/pkg/discovery"
	"github.com/seedling-labs/gardener/pkg/gardener"
	"github.com/seedling-labs/gardener/pkg/history"
	"github.com/seedling-labs/gardener/pkg/httpapi"
	"github.com/seedling-labs/gardener/pkg/mqttpub"
	"github.com/seedling-labs/gardener/pkg/sample"
	"github.com/seedling-labs/gardener/pkg/schedule"
	"github.com/seedling-labs/gardener/pkg/timesync"
	"github.com/seedling-labs/gardener/pkg/trend"
)

func main() {
	var (
		portFlag   = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		listenFlag = flag.String("listen", "", "HTTP listen address override (e.g., :8080)")
		mockFlag   = flag.Bool("mock", false, "Use mocked device instead of serial port")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *listenFlag != "" {
		cfg.HTTP.Listen = *listenFlag
	}

	if err := board.Validate(); err != nil {
		log.Fatalf("Board constants inconsistent: %v", err)
	}

	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	var device gardener.Device
	if *mockFlag {
		device = gardener.NewMock(&cfg.Mock)
		logger.Info("using mocked device")
	} else {
		device = gardener.New(cfg.Serial.Port, cfg.Serial.Baud, 500)
	}
	if err := device.Connect(); err != nil {
		logger.Fatal("device connection failed",
			zap.String("port", cfg.Serial.Port),
			zap.Error(err),
		)
	}

	histLog, err := history.Open(cfg.History.File, cfg.History.MaxMemoryEntries)
	if err != nil {
		logger.Fatal("failed to open watering history", zap.Error(err))
	}
	budget := history.NewBudget(histLog, cfg.Watering)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	syncer := timesync.New(logger, cfg.NTP.Server)
	go syncer.Run(ctx)

	latest := &latestSample{}
	server := httpapi.New(logger, cfg, device, budget, latest.Get, syncer.Synced)

	mqttClient := mqttpub.New(logger, cfg, func(seconds int) error {
		if seconds == 0 {
			return device.StopPump()
		}
		now := time.Now()
		ml := budget.MlFor(float64(seconds))
		if err := budget.Check(ml, now); err != nil {
			return err
		}
		if err := device.SetPump(seconds); err != nil {
			return err
		}
		return budget.Record(ml, float64(seconds), "mqtt", now)
	})
	if err := mqttClient.Connect(); err != nil {
		logger.Error("MQTT connection failed", zap.Error(err))
	}

	scheduler := schedule.New(logger, func(ml float64) error {
		now := time.Now()
		if err := budget.Check(ml, now); err != nil {
			return err
		}
		seconds := budget.SecondsFor(ml)
		if err := device.SetPump(seconds); err != nil {
			return err
		}
		return budget.Record(ml, float64(seconds), "schedule", now)
	}, cfg.Watering.SchedulesFile)
	scheduler.Start()

	// Converter pipeline: raw serial samples -> calibrated percent samples,
	// optionally averaged, then fanned out to the trend tracker and the
	// publishing loop.
	baseStream := sample.NewConverter(cfg, 500)(device.Samples())
	var samplesStream <-chan sample.Sample
	if cfg.Moisture.AverageSamples > 0 {
		samplesStream = sample.NewAveragingConverterForSamples(cfg.Moisture.AverageSamples, 500)(baseStream)
	} else {
		samplesStream = baseStream
	}
	forTracker, forPublish := teeSamples(samplesStream, 500)

	tracker := trend.New(cfg)
	trackerDone := make(chan struct{})
	go func() {
		defer close(trackerDone)
		tracker.ProcessSamples(forTracker)
	}()

	publishDone := make(chan struct{})
	go func() {
		defer close(publishDone)
		for smp := range forPublish {
			latest.Set(smp)
			server.Hub.Broadcast(httpapi.NewMessage("sample", map[string]interface{}{
				"percent":     smp.Percent,
				"raw":         smp.Raw,
				"pump_active": smp.PumpActive,
				"timestamp":   smp.Timestamp.Unix(),
			}))
			mqttClient.PublishSample(smp)
		}
	}()

	var mdns *discovery.Service
	if cfg.Discovery.Enabled {
		mdns = discovery.New(logger, cfg.Discovery.Instance, discovery.ListenPort(cfg.HTTP.Listen))
		if err := mdns.Register(); err != nil {
			logger.Error("mDNS registration failed", zap.Error(err))
			mdns = nil
		}
	}

	go func() {
		logger.Info("HTTP API listening", zap.String("addr", cfg.HTTP.Listen))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	logger.Info("shutting down", zap.String("signal", s.String()))

	cancel()
	scheduler.Stop()
	if mdns != nil {
		mdns.Shutdown()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", zap.Error(err))
	}

	mqttClient.Disconnect()

	// Closing the device closes the raw channel, which drains the converter
	// chain and lets both consumer goroutines exit.
	if err := device.Close(); err != nil {
		logger.Error("device close failed", zap.Error(err))
	}
	<-trackerDone
	<-publishDone

	if err := histLog.Close(); err != nil {
		logger.Error("history close failed", zap.Error(err))
	}
	logger.Info("goodbye")
}

// newLogger builds a production zap logger at the configured level.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// latestSample holds the most recent processed sample for the HTTP handlers.
type latestSample struct {
	mu  sync.RWMutex
	smp sample.Sample
	ok  bool
}

func (l *latestSample) Set(s sample.Sample) {
	l.mu.Lock()
	l.smp = s
	l.ok = true
	l.mu.Unlock()
}

// Get implements httpapi.SampleProvider.
func (l *latestSample) Get() (sample.Sample, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.smp, l.ok
}

// teeSamples duplicates every sample from in onto two output channels.
// Both outputs close when in closes. A slow consumer on either output
// blocks the tee, so both consumers must keep draining.
func teeSamples(in <-chan sample.Sample, buf int) (<-chan sample.Sample, <-chan sample.Sample) {
	a := make(chan sample.Sample, buf)
	b := make(chan sample.Sample, buf)

	go func() {
		defer close(a)
		defer close(b)
		for smp := range in {
			a <- smp
			b <- smp
		}
	}()

	return a, b
}
