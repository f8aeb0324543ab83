package main

import (
	"fmt"
	"math"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/seedling-labs/gardener/pkg/board"
	"github.com/seedling-labs/gardener/pkg/config"
	"github.com/seedling-labs/gardener/pkg/gardener"
)

// handlePumpToggle handles the pump button click. When the pump is idle it
// runs one minimum dose; when the pump is running it stops it immediately.
func handlePumpToggle(state *appState) {
	if state.device == nil || !state.device.IsConnected() {
		return
	}

	var err error
	if state.pumpActive {
		err = state.device.StopPump()
	} else {
		err = state.device.SetPump(doseSeconds(state.cfg))
	}
	if err != nil {
		dialog.ShowError(fmt.Errorf("pump command failed: %w", err), state.window)
		return
	}

	// Optimistic update; telemetry confirms the actual relay state
	state.pumpActive = !state.pumpActive
	updatePumpButtonState(state)
}

// doseSeconds converts the configured minimum dose into pump seconds,
// clamped to the relay safety limits.
func doseSeconds(cfg *config.Config) int {
	seconds := int(math.Round(float64(cfg.Watering.MinMl) / cfg.Watering.MlPerSecond))
	if seconds < board.PumpMinSeconds {
		return board.PumpMinSeconds
	}
	if seconds > board.PumpMaxSeconds {
		return board.PumpMaxSeconds
	}
	return seconds
}

// updatePumpStateFromSample updates the pump button state from incoming telemetry.
// Only updates UI when the relay state actually changes.
// Uses fyne.Do() to ensure thread-safe UI updates from goroutine.
func updatePumpStateFromSample(state *appState, smp gardener.RawSample) {
	if state.pumpActive == smp.PumpActive {
		// No change, skip update
		return
	}

	state.pumpActive = smp.PumpActive

	// Update UI on main thread using fyne.Do()
	fyne.Do(func() {
		updatePumpButtonState(state)
	})
}

// updatePumpButtonState updates the pump button's label and visual state.
func updatePumpButtonState(state *appState) {
	if state.pumpActive {
		state.pumpBtn.SetText("Stop")
		state.pumpBtn.Importance = widget.HighImportance
	} else {
		state.pumpBtn.SetText("Water")
		state.pumpBtn.Importance = widget.MediumImportance
	}
	state.pumpBtn.Refresh()
}
