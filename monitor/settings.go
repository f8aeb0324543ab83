package main

import (
	"fmt"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/seedling-labs/gardener/pkg/gardener"
	"github.com/seedling-labs/gardener/pkg/trend"
)

// showSettingsDialog displays a settings dialog with tabs for all configuration options.
func showSettingsDialog(state *appState) {
	// Create tabs
	tabs := container.NewAppTabs(
		createSerialTab(state),
		createCalibrationTab(state),
		createWateringTab(state),
		createTrendTab(state),
		createMockTab(state),
	)

	// Create dialog with tabs as content
	content := container.NewBorder(nil, nil, nil, nil, tabs)
	content.Resize(fyne.NewSize(600, 500))

	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(600, 500))
	d.Show()
}

// createSerialTab creates the Serial configuration tab.
func createSerialTab(state *appState) *container.TabItem {
	// Get available serial ports
	ports, err := gardener.Ports()
	portOptions := []string{}
	portMap := make(map[string]string) // Map display name to actual port name

	if err == nil {
		for _, port := range ports {
			displayName := port.Name
			if port.Description != "" && port.Description != port.Name {
				displayName = fmt.Sprintf("%s (%s)", port.Name, port.Description)
			}
			portOptions = append(portOptions, displayName)
			portMap[displayName] = port.Name
		}
	}

	// Add current port if not in list
	currentPort := state.cfg.Serial.Port
	currentDisplay := currentPort
	found := false
	for _, opt := range portOptions {
		if portMap[opt] == currentPort {
			currentDisplay = opt
			found = true
			break
		}
	}
	if !found && currentPort != "" {
		portOptions = append(portOptions, currentPort)
		portMap[currentPort] = currentPort
		currentDisplay = currentPort
	}

	portSelect := widget.NewSelect(portOptions, func(selected string) {
		// Selection handler - will be called on submit
	})
	if currentDisplay != "" {
		portSelect.SetSelected(currentDisplay)
	}

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Serial Port", Widget: portSelect},
		},
		OnSubmit: func() {
			if portSelect.Selected != "" {
				selectedPort := portMap[portSelect.Selected]
				if selectedPort == "" {
					selectedPort = portSelect.Selected // Fallback to selected text
				}

				// Check if port changed and device is connected
				portChanged := state.cfg.Serial.Port != selectedPort
				wasConnected := state.device != nil && state.device.IsConnected()

				state.cfg.Serial.Port = selectedPort
				if err := state.cfg.Save("config.yaml"); err != nil {
					dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
					return
				}

				// If port changed and device was connected, restart the monitoring chain
				if portChanged && wasConnected {
					// Gracefully close old chain
					closeMonitorChain(state.chain)
					state.chain = nil

					// Close old device
					if state.device != nil {
						state.device.Close()
						state.device = nil
					}

					// Reconnect with new port
					handleConnect(state)
				}
			}
		},
	}

	return container.NewTabItem("Serial", form)
}

// createCalibrationTab creates the sensor Calibration configuration tab.
func createCalibrationTab(state *appState) *container.TabItem {
	dryEntry := widget.NewEntry()
	dryEntry.SetText(fmt.Sprintf("%d", state.cfg.Moisture.DryValue))

	wetEntry := widget.NewEntry()
	wetEntry.SetText(fmt.Sprintf("%d", state.cfg.Moisture.WetValue))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Dry Reading (raw ADC)", Widget: dryEntry},
			{Text: "Wet Reading (raw ADC)", Widget: wetEntry},
		},
		OnSubmit: func() {
			if dry, err := strconv.ParseUint(dryEntry.Text, 10, 16); err == nil {
				state.cfg.Moisture.DryValue = uint16(dry)
			}
			if wet, err := strconv.ParseUint(wetEntry.Text, 10, 16); err == nil {
				state.cfg.Moisture.WetValue = uint16(wet)
			}
			if state.cfg.Moisture.DryValue >= state.cfg.Moisture.WetValue {
				dialog.ShowError(fmt.Errorf("dry reading (%d) must be below wet reading (%d)",
					state.cfg.Moisture.DryValue, state.cfg.Moisture.WetValue), state.window)
				return
			}
			if err := state.cfg.Save("config.yaml"); err != nil {
				dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
			}
		},
	}

	return container.NewTabItem("Calibration", form)
}

// createWateringTab creates the Watering configuration tab.
func createWateringTab(state *appState) *container.TabItem {
	mlPerSecondEntry := widget.NewEntry()
	mlPerSecondEntry.SetText(fmt.Sprintf("%.2f", state.cfg.Watering.MlPerSecond))

	minMlEntry := widget.NewEntry()
	minMlEntry.SetText(fmt.Sprintf("%d", state.cfg.Watering.MinMl))

	maxMlEntry := widget.NewEntry()
	maxMlEntry.SetText(fmt.Sprintf("%d", state.cfg.Watering.MaxMl))

	dailyBudgetEntry := widget.NewEntry()
	dailyBudgetEntry.SetText(fmt.Sprintf("%d", state.cfg.Watering.DailyBudgetMl))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Pump Rate (ml/s)", Widget: mlPerSecondEntry},
			{Text: "Min Dose (ml)", Widget: minMlEntry},
			{Text: "Max Dose (ml)", Widget: maxMlEntry},
			{Text: "Daily Budget (ml)", Widget: dailyBudgetEntry},
		},
		OnSubmit: func() {
			if mps, err := strconv.ParseFloat(mlPerSecondEntry.Text, 64); err == nil && mps > 0 {
				state.cfg.Watering.MlPerSecond = mps
			}
			if minMl, err := strconv.Atoi(minMlEntry.Text); err == nil {
				state.cfg.Watering.MinMl = minMl
			}
			if maxMl, err := strconv.Atoi(maxMlEntry.Text); err == nil {
				state.cfg.Watering.MaxMl = maxMl
			}
			if budget, err := strconv.Atoi(dailyBudgetEntry.Text); err == nil {
				state.cfg.Watering.DailyBudgetMl = budget
			}
			if err := state.cfg.Save("config.yaml"); err != nil {
				dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
			}
		},
	}

	return container.NewTabItem("Watering", form)
}

// createTrendTab creates the trend analysis configuration tab.
func createTrendTab(state *appState) *container.TabItem {
	windowSecondsEntry := widget.NewEntry()
	windowSecondsEntry.SetText(fmt.Sprintf("%.1f", state.cfg.Moisture.WindowSeconds))

	eventThresholdEntry := widget.NewEntry()
	eventThresholdEntry.SetText(fmt.Sprintf("%.1f", state.cfg.Moisture.EventThreshold))

	minEventDurationEntry := widget.NewEntry()
	minEventDurationEntry.SetText(fmt.Sprintf("%.1f", state.cfg.Moisture.MinEventDuration))

	averageSamplesEntry := widget.NewEntry()
	averageSamplesEntry.SetText(fmt.Sprintf("%d", state.cfg.Moisture.AverageSamples))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Window (seconds)", Widget: windowSecondsEntry},
			{Text: "Event Threshold (%/h)", Widget: eventThresholdEntry},
			{Text: "Min Event Duration (s)", Widget: minEventDurationEntry},
			{Text: "Average Samples (0=disabled)", Widget: averageSamplesEntry},
		},
		OnSubmit: func() {
			if ws, err := strconv.ParseFloat(windowSecondsEntry.Text, 64); err == nil {
				state.cfg.Moisture.WindowSeconds = ws
			}
			if et, err := strconv.ParseFloat(eventThresholdEntry.Text, 64); err == nil {
				state.cfg.Moisture.EventThreshold = et
			}
			if med, err := strconv.ParseFloat(minEventDurationEntry.Text, 64); err == nil {
				state.cfg.Moisture.MinEventDuration = med
			}
			if avg, err := strconv.Atoi(averageSamplesEntry.Text); err == nil {
				state.cfg.Moisture.AverageSamples = avg
			}
			if err := state.cfg.Save("config.yaml"); err != nil {
				dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
			}
			// Recreate tracker with new config
			state.tracker = trend.New(state.cfg)
		},
	}

	return container.NewTabItem("Trend", form)
}

// createMockTab creates the Mock device configuration tab.
func createMockTab(state *appState) *container.TabItem {
	initialMoistureEntry := widget.NewEntry()
	initialMoistureEntry.SetText(fmt.Sprintf("%d", state.cfg.Mock.InitialMoisture))

	dryFloorEntry := widget.NewEntry()
	dryFloorEntry.SetText(fmt.Sprintf("%d", state.cfg.Mock.DryFloor))

	dryRateEntry := widget.NewEntry()
	dryRateEntry.SetText(fmt.Sprintf("%.1f", state.cfg.Mock.DryRatePerHour))

	wateringBoostEntry := widget.NewEntry()
	wateringBoostEntry.SetText(fmt.Sprintf("%.1f", state.cfg.Mock.WateringBoost))

	noiseLevelEntry := widget.NewEntry()
	noiseLevelEntry.SetText(fmt.Sprintf("%.1f", state.cfg.Mock.NoiseLevel))

	sampleRateEntry := widget.NewEntry()
	sampleRateEntry.SetText(state.cfg.Mock.SampleRate.String())

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Initial Moisture (raw)", Widget: initialMoistureEntry},
			{Text: "Dry Floor (raw)", Widget: dryFloorEntry},
			{Text: "Dry Rate (raw/h)", Widget: dryRateEntry},
			{Text: "Watering Boost (raw/s)", Widget: wateringBoostEntry},
			{Text: "Noise Level (raw)", Widget: noiseLevelEntry},
			{Text: "Sample Rate", Widget: sampleRateEntry},
		},
		OnSubmit: func() {
			if im, err := strconv.ParseUint(initialMoistureEntry.Text, 10, 16); err == nil {
				state.cfg.Mock.InitialMoisture = uint16(im)
			}
			if df, err := strconv.ParseUint(dryFloorEntry.Text, 10, 16); err == nil {
				state.cfg.Mock.DryFloor = uint16(df)
			}
			if dr, err := strconv.ParseFloat(dryRateEntry.Text, 64); err == nil {
				state.cfg.Mock.DryRatePerHour = dr
			}
			if wb, err := strconv.ParseFloat(wateringBoostEntry.Text, 64); err == nil {
				state.cfg.Mock.WateringBoost = wb
			}
			if nl, err := strconv.ParseFloat(noiseLevelEntry.Text, 64); err == nil {
				state.cfg.Mock.NoiseLevel = nl
			}
			if sr, err := time.ParseDuration(sampleRateEntry.Text); err == nil {
				state.cfg.Mock.SampleRate = sr
			}
			if err := state.cfg.Save("config.yaml"); err != nil {
				dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
			}
		},
	}

	return container.NewTabItem("Mock", form)
}
