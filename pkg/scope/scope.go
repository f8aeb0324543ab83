package scope

import (
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"github.com/seedling-labs/gardener/pkg/board"
	"github.com/seedling-labs/gardener/pkg/config"
	"github.com/seedling-labs/gardener/pkg/sample"
	"github.com/seedling-labs/gardener/pkg/trend"
)

// ScopeWidget is a custom Fyne widget that displays the moisture history
// as an oscilloscope-style graph with watering event markers.
type ScopeWidget struct {
	widget.BaseWidget

	cfg *config.Config

	// Data (protected by mu)
	mu         sync.RWMutex
	samples    []sample.Sample
	rates      []float64
	events     []trend.WateringEvent
	pumpActive bool

	// Display buffers (reused for downsampling)
	displaySamples []sample.Sample
	displayRates   []float64

	// Auto-scaling
	yMin, yMax float64
	xMin, xMax time.Time

	// Display settings
	maxDisplayPoints int
}

// New creates a new ScopeWidget instance.
func New(cfg *config.Config) *ScopeWidget {
	s := &ScopeWidget{
		cfg:              cfg,
		samples:          make([]sample.Sample, 0),
		rates:            make([]float64, 0),
		events:           make([]trend.WateringEvent, 0),
		displaySamples:   make([]sample.Sample, 0, 1000),
		displayRates:     make([]float64, 0, 1000),
		maxDisplayPoints: 1000, // Limit points for efficient rendering
	}
	s.ExtendBaseWidget(s)
	// Trigger initial refresh to display empty scope
	s.Refresh()
	return s
}

// UpdateData updates the widget with new monitoring data.
// This should be called from the trend callback using fyne.Do().
func (s *ScopeWidget) UpdateData(samples []sample.Sample, rates []float64, events []trend.WateringEvent, pumpActive bool) {
	s.mu.Lock()

	// Downsample for display (reuse buffers)
	s.displaySamples = sample.DownsampleSamples(s.displaySamples, samples, s.maxDisplayPoints)
	s.displayRates = sample.DownsampleRates(s.displayRates, rates, s.maxDisplayPoints)

	// Store full data
	s.samples = samples
	s.rates = rates
	s.events = events
	s.pumpActive = pumpActive

	// Calculate auto-scaling
	s.updateAutoScale()

	s.mu.Unlock()

	// Refresh the widget (must be outside lock to avoid potential deadlock)
	s.Refresh()
}

// updateAutoScale calculates Y-axis range from current data.
// The Y axis is in moisture percent; rates are drawn on the same scale.
func (s *ScopeWidget) updateAutoScale() {
	if len(s.displaySamples) == 0 {
		s.yMin = 0.0
		s.yMax = 100.0
		s.xMin = time.Now()
		s.xMax = time.Now().Add(10 * time.Second)
		return
	}

	// Find min/max for samples
	s.yMin = float64(s.displaySamples[0].Percent)
	s.yMax = float64(s.displaySamples[0].Percent)
	for _, smp := range s.displaySamples {
		if float64(smp.Percent) < s.yMin {
			s.yMin = float64(smp.Percent)
		}
		if float64(smp.Percent) > s.yMax {
			s.yMax = float64(smp.Percent)
		}
	}

	// Add 10% margin
	range_ := s.yMax - s.yMin
	if range_ == 0 {
		range_ = 1.0
	}
	margin := range_ * 0.1
	s.yMin -= margin
	s.yMax += margin

	// Time range
	if len(s.displaySamples) > 0 {
		s.xMin = s.displaySamples[0].Timestamp
		s.xMax = s.displaySamples[len(s.displaySamples)-1].Timestamp
		// Ensure minimum window
		if s.xMax.Sub(s.xMin) < time.Duration(s.cfg.Moisture.WindowSeconds)*time.Second {
			s.xMax = s.xMin.Add(time.Duration(s.cfg.Moisture.WindowSeconds) * time.Second)
		}
	}
}

// CreateRenderer creates the widget renderer.
func (s *ScopeWidget) CreateRenderer() fyne.WidgetRenderer {
	grid := canvas.NewRectangle(board.ColorBackground)
	return &scopeRenderer{
		scope:    s,
		grid:     grid,
		objects:  []fyne.CanvasObject{grid},
		lastSize: fyne.Size{Width: 0, Height: 0},
	}
}
