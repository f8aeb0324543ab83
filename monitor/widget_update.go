package main

import (
	"fyne.io/fyne/v2"

	"github.com/seedling-labs/gardener/pkg/sample"
	"github.com/seedling-labs/gardener/pkg/trend"
)

// UpdateWidgetOnMainThread schedules a widget update function to run on the main Fyne thread.
// This is required because Fyne widgets cannot be updated directly from goroutines.
// The callback should copy data quickly and return as fast as possible.
// Uses fyne.Do() to schedule the update on the main event loop.
func UpdateWidgetOnMainThread(callback func()) {
	if callback == nil {
		return
	}
	fyne.Do(callback)
}

// TrendData holds a snapshot of trend data for widget updates.
// This struct is used to pass data from the monitoring goroutine to a widget
// via the main thread, minimizing allocations by reusing the same struct.
type TrendData struct {
	Samples []sample.Sample
	Rates   []float64
	Events  []trend.WateringEvent
}

// CopyTrendData creates a snapshot of current trend data.
// This should be called quickly in the callback, then passed to the widget update.
// The widget update happens on the main thread via UpdateWidgetOnMainThread.
//
// NOTE: The scope widget (pkg/scope) handles downsampling internally, so this function
// should NOT be used when updating the scope widget. Pass full data directly to
// scopeWidget.UpdateData() instead. This function is kept for widgets that need
// pre-downsampled data.
//
// Accepts destination slices for downsampling to enable array reuse.
// If dstSamples or dstRates are nil or too small, new slices will be allocated.
func CopyTrendData(tracker *trend.Tracker, dstSamples []sample.Sample, dstRates []float64, maxSamples int) TrendData {
	// Get data from tracker (already thread-safe)
	samples := tracker.Samples()
	rates := tracker.Rates()
	events := tracker.Events()

	// Downsample if needed (reuses dst slices if they have sufficient capacity)
	downsampledSamples := sample.DownsampleSamples(dstSamples, samples, maxSamples)
	downsampledRates := sample.DownsampleRates(dstRates, rates, maxSamples)

	return TrendData{
		Samples: downsampledSamples,
		Rates:   downsampledRates,
		Events:  events, // Events are typically few, no need to downsample
	}
}
