// monitor is the desktop companion app. It connects to the controller over
// the serial link (or a mocked device), plots the moisture history with
// watering event markers, and lets the user run the pump manually.
package main

import (
	"flag"
	"fmt"
	"log"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/seedling-labs/gardener/pkg/config"
	"github.com/seedling-labs/gardener/pkg/gardener"
	"github.com/seedling-labs/gardener/pkg/sample"
	"github.com/seedling-labs/gardener/pkg/scope"
	"github.com/seedling-labs/gardener/pkg/trend"
)

func main() {
	var (
		portFlag           = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag         = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag           = flag.Bool("mock", false, "Use mocked device instead of serial port")
		averageSamplesFlag = flag.Int("average-samples", -1, "Number of samples to average (0 = disabled, overrides config)")
	)
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Override serial port if provided via command line
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}

	// Override average samples if provided via command line
	if *averageSamplesFlag >= 0 {
		cfg.Moisture.AverageSamples = *averageSamplesFlag
	}

	// Create Fyne application
	application := app.NewWithID("com.seedlinglabs.gardener")

	// Create main window
	window := application.NewWindow("Plant Watering Monitor")
	window.Resize(fyne.NewSize(1200, 800))
	window.CenterOnScreen()

	// Create moisture trend tracker
	tracker := trend.New(cfg)

	// Create application state
	appState := &appState{
		cfg:     cfg,
		device:  nil,
		tracker: tracker,
		window:  window,
		useMock: *mockFlag,
	}

	// Create toolbar
	toolbar := createToolbar(appState)

	// Create scope widget for graph display
	scopeWidget := scope.New(cfg)
	appState.scopeWidget = scopeWidget

	// Create border layout with toolbar at top and scope widget as content
	container := container.NewBorder(
		toolbar,
		nil,
		nil,
		nil,
		scopeWidget,
	)

	window.SetContent(container)
	window.ShowAndRun()
}

// monitorChain tracks the components of the monitoring chain for graceful shutdown.
type monitorChain struct {
	device             gardener.Device
	rawForPumpState    <-chan gardener.RawSample
	rawForConverter    <-chan gardener.RawSample
	pumpStateGoroutine chan struct{} // Closed when pump state goroutine exits
	samplesStream      <-chan sample.Sample
	trackerGoroutine   chan struct{} // Closed when tracker goroutine exits
}

// appState holds the application state.
type appState struct {
	cfg           *config.Config
	device        gardener.Device
	tracker       *trend.Tracker
	scopeWidget   *scope.ScopeWidget
	window        fyne.Window
	connectBtn    *widget.Button
	pumpBtn       *widget.Button
	moistureLabel *widget.Label
	useMock       bool
	pumpActive    bool          // Current pump relay state, mirrored from telemetry
	chain         *monitorChain // Current monitoring chain (nil if not connected)

	// Throttling for scope updates
	lastUpdateTime time.Time
	updateMu       sync.Mutex
}

// createToolbar creates the application toolbar with Connect, Settings, and Pump buttons.
func createToolbar(state *appState) fyne.CanvasObject {
	// Connect button with icon
	connectBtn := widget.NewButtonWithIcon("", theme.LoginIcon(), func() {
		handleConnect(state)
	})
	state.connectBtn = connectBtn

	// Settings button with icon
	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})

	// Moisture readout in the middle of the toolbar
	moistureLabel := widget.NewLabel("-- %")
	state.moistureLabel = moistureLabel

	// Pump button toggles a manual watering dose
	pumpBtn := widget.NewButtonWithIcon("Water", theme.MediaPlayIcon(), func() {
		handlePumpToggle(state)
	})
	pumpBtn.Disable()
	state.pumpBtn = pumpBtn

	return container.NewBorder(
		nil, // top
		nil, // bottom
		container.NewHBox(connectBtn, settingsBtn), // left
		container.NewHBox(pumpBtn),                 // right
		container.NewCenter(moistureLabel),         // center
	)
}

// closeMonitorChain gracefully closes the monitoring chain.
// Waits for all goroutines to finish and channels to drain.
func closeMonitorChain(chain *monitorChain) {
	if chain == nil {
		return
	}

	// Close device - this will close the raw samples channel
	if chain.device != nil {
		chain.device.Close()
	}

	// Wait for pump state goroutine to finish
	if chain.pumpStateGoroutine != nil {
		<-chain.pumpStateGoroutine
	}

	// Wait for tracker goroutine to finish
	// The tracker goroutine exits when samplesStream closes,
	// which happens once the converters finish draining
	if chain.trackerGoroutine != nil {
		<-chain.trackerGoroutine
	}
}

// handleConnect handles the connect/disconnect button click.
func handleConnect(state *appState) {
	if state.device != nil && state.device.IsConnected() {
		// Disconnect - gracefully close monitoring chain
		closeMonitorChain(state.chain)
		state.chain = nil
		state.device = nil
		state.pumpBtn.Disable()
		state.pumpActive = false
		updatePumpButtonState(state)
		state.moistureLabel.SetText("-- %")
		if state.useMock {
			fmt.Println("Disconnected from mocked device")
		} else {
			fmt.Println("Disconnected from serial port")
		}
	} else {
		// Connect
		var device gardener.Device
		if state.useMock {
			device = gardener.NewMock(&state.cfg.Mock)
			fmt.Println("Using mocked device")
		} else {
			device = gardener.New(state.cfg.Serial.Port, state.cfg.Serial.Baud, gardener.DefaultBufferSize)
		}

		if err := device.Connect(); err != nil {
			if state.useMock {
				dialog.ShowError(fmt.Errorf("failed to connect to mocked device: %w", err), state.window)
			} else {
				dialog.ShowError(fmt.Errorf("failed to connect to %s: %w", state.cfg.Serial.Port, err), state.window)
			}
			return
		}
		state.device = device
		if state.useMock {
			fmt.Printf("Connected to mocked device\n")
		} else {
			fmt.Printf("Connected to serial port: %s\n", state.cfg.Serial.Port)
		}

		state.pumpBtn.Enable()

		// Reset tracker shutdown flag for new chain
		state.tracker.ResetShutdown()

		// Register callback with the tracker to update the scope widget.
		// This must be done before starting the monitoring chain.
		// Throttle updates to ~60 FPS (16.67ms between updates) to ensure smooth UI.
		const updateInterval = 16 * time.Millisecond // ~60 FPS
		state.tracker.OnUpdate(func(samples []sample.Sample, rates []float64, events []trend.WateringEvent) {
			// Throttle updates to prevent UI from being overwhelmed
			state.updateMu.Lock()
			now := time.Now()
			timeSinceLastUpdate := now.Sub(state.lastUpdateTime)
			state.updateMu.Unlock()

			// Skip update if too soon since last update
			if timeSinceLastUpdate < updateInterval {
				return
			}

			// Current moisture and pump state from latest sample
			var latest sample.Sample
			if len(samples) > 0 {
				latest = samples[len(samples)-1]
			}

			// Update timestamp
			state.updateMu.Lock()
			state.lastUpdateTime = now
			state.updateMu.Unlock()

			// Update scope widget on main thread.
			// Scope widget handles downsampling internally, so pass full data.
			fyne.Do(func() {
				state.scopeWidget.UpdateData(samples, rates, events, latest.PumpActive)
				if len(samples) > 0 {
					state.moistureLabel.SetText(fmt.Sprintf("%.1f %% (raw %d)", latest.Percent, latest.Raw))
				}
			})
		})

		// Tee raw samples: one branch for pump state updates, one for the
		// converter chain. Each branch gets every sample.
		rawForPumpState, rawForConverter := teeRawSamples(device.Samples())

		// Track goroutines for graceful shutdown
		pumpStateDone := make(chan struct{})
		trackerDone := make(chan struct{})

		// Update pump button state from raw samples (only when state changes)
		go func() {
			defer close(pumpStateDone)
			for rawSample := range rawForPumpState {
				updatePumpStateFromSample(state, rawSample)
			}
		}()

		// Chain converters: base converter always used, averaging converter conditionally.
		// If average_samples is 0, skip averaging; if > 0, chain averaging converter.
		baseStream := sample.NewConverter(state.cfg, 500)(rawForConverter)

		var samplesStream <-chan sample.Sample
		if state.cfg.Moisture.AverageSamples > 0 {
			samplesStream = sample.NewAveragingConverterForSamples(state.cfg.Moisture.AverageSamples, 500)(baseStream)
		} else {
			samplesStream = baseStream
		}

		// Process samples through the trend tracker
		go func() {
			defer close(trackerDone)
			state.tracker.ProcessSamples(samplesStream)
		}()

		// Store chain for graceful shutdown
		state.chain = &monitorChain{
			device:             device,
			rawForPumpState:    rawForPumpState,
			rawForConverter:    rawForConverter,
			pumpStateGoroutine: pumpStateDone,
			samplesStream:      samplesStream,
			trackerGoroutine:   trackerDone,
		}
	}
}

// teeRawSamples duplicates every raw sample onto two output channels so the
// pump state watcher and the converter chain each see the full stream.
// Both outputs close when the input closes.
func teeRawSamples(in <-chan gardener.RawSample) (<-chan gardener.RawSample, <-chan gardener.RawSample) {
	a := make(chan gardener.RawSample, 100)
	b := make(chan gardener.RawSample, 100)

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
