package scope

import (
	"image/color"
	"math"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"

	"github.com/seedling-labs/gardener/pkg/board"
	"github.com/seedling-labs/gardener/pkg/sample"
	"github.com/seedling-labs/gardener/pkg/trend"
)

// scopeRenderer renders the scope widget.
type scopeRenderer struct {
	scope *ScopeWidget

	// Background
	grid *canvas.Rectangle

	// Event markers (vertical lines)
	eventLines []*canvas.Line

	// Event labels
	eventLabels []*canvas.Text

	// Pump state label
	pumpLabel *canvas.Text

	// Grid lines
	gridLines []*canvas.Line
	gridTexts []*canvas.Text

	// Objects list for Fyne
	objects []fyne.CanvasObject

	// Track last size to detect changes
	lastSize fyne.Size
}

// MinSize returns the minimum size of the widget.
func (r *scopeRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 300)
}

// Layout arranges the widget components.
func (r *scopeRenderer) Layout(size fyne.Size) {
	// Background fills entire widget
	r.grid.Resize(size)

	// Check if size changed
	if r.lastSize.Width != size.Width || r.lastSize.Height != size.Height {
		r.lastSize = size
		// Size changed, trigger widget refresh to redraw with new dimensions
		// Use BaseWidget.Refresh() to properly trigger Fyne's refresh cycle
		r.scope.BaseWidget.Refresh()
	}
}

// Refresh updates the widget display.
func (r *scopeRenderer) Refresh() {
	r.scope.mu.RLock()
	samples := r.scope.displaySamples
	rates := r.scope.displayRates
	events := r.scope.events
	pumpActive := r.scope.pumpActive
	yMin := r.scope.yMin
	yMax := r.scope.yMax
	xMin := r.scope.xMin
	xMax := r.scope.xMax
	r.scope.mu.RUnlock()

	size := r.scope.Size()
	if size.Width == 0 || size.Height == 0 {
		return
	}

	// Clear old objects (but keep grid)
	r.objects = []fyne.CanvasObject{r.grid}
	r.gridLines = r.gridLines[:0]
	r.gridTexts = r.gridTexts[:0]
	r.eventLines = r.eventLines[:0]
	r.eventLabels = r.eventLabels[:0]
	r.pumpLabel = nil

	// Calculate margins
	marginLeft := float32(60.0)
	marginRight := float32(20.0)
	marginTop := float32(20.0)
	marginBottom := float32(40.0)

	plotWidth := size.Width - marginLeft - marginRight
	plotHeight := size.Height - marginTop - marginBottom
	plotX := marginLeft
	plotY := marginTop

	// Draw grid
	r.drawGrid(plotX, plotY, plotWidth, plotHeight, yMin, yMax, xMin, xMax)

	// Draw moisture curve (green line)
	if len(samples) > 1 {
		r.drawMoistureLine(plotX, plotY, plotWidth, plotHeight, samples, yMin, yMax, xMin, xMax)
	}

	// Draw rates (cyan, thicker line, own vertical scale)
	if len(rates) > 0 && len(samples) > 1 {
		r.drawRateLine(plotX, plotY, plotWidth, plotHeight, rates, samples, xMin, xMax)
	}

	// Draw watering events (yellow vertical lines)
	r.drawEvents(plotX, plotY, plotWidth, plotHeight, events, samples, xMin, xMax)

	// Draw event labels
	r.drawEventLabels(plotX, plotY, plotWidth, plotHeight, events, samples, yMin, yMax, xMin, xMax)

	// Draw pump state indicator
	if pumpActive {
		r.drawPumpIndicator(plotX, plotY)
	}
}

// drawGrid draws the oscilloscope-style grid.
func (r *scopeRenderer) drawGrid(plotX, plotY, plotWidth, plotHeight float32, yMin, yMax float64, xMin, xMax time.Time) {
	// Horizontal grid lines (moisture percent)
	numHLines := 8
	for i := range numHLines + 1 {
		y := plotY + float32(i)*plotHeight/float32(numHLines)
		line := canvas.NewLine(color.RGBA{R: 40, G: 40, B: 40, A: 255})
		line.Position1 = fyne.NewPos(plotX, y)
		line.Position2 = fyne.NewPos(plotX+plotWidth, y)
		line.StrokeWidth = 1
		r.gridLines = append(r.gridLines, line)
		r.objects = append(r.objects, line)

		// Y-axis label
		value := yMax - float64(i)*(yMax-yMin)/float64(numHLines)
		text := canvas.NewText(formatPercent(value), color.RGBA{R: 150, G: 150, B: 150, A: 255})
		text.TextSize = 10
		text.Alignment = fyne.TextAlignTrailing
		text.Move(fyne.NewPos(plotX-5, y-6))
		r.gridTexts = append(r.gridTexts, text)
		r.objects = append(r.objects, text)
	}

	// Vertical grid lines (time)
	numVLines := 10
	for i := range numVLines + 1 {
		x := plotX + float32(i)*plotWidth/float32(numVLines)
		line := canvas.NewLine(color.RGBA{R: 40, G: 40, B: 40, A: 255})
		line.Position1 = fyne.NewPos(x, plotY)
		line.Position2 = fyne.NewPos(x, plotY+plotHeight)
		line.StrokeWidth = 1
		r.gridLines = append(r.gridLines, line)
		r.objects = append(r.objects, line)

		// X-axis label
		timeOffset := float64(i) * xMax.Sub(xMin).Seconds() / float64(numVLines)
		timeVal := xMin.Add(time.Duration(timeOffset * float64(time.Second)))
		text := canvas.NewText(formatTime(timeVal.Sub(xMin)), color.RGBA{R: 150, G: 150, B: 150, A: 255})
		text.TextSize = 10
		text.Alignment = fyne.TextAlignCenter
		text.Move(fyne.NewPos(x-20, plotY+plotHeight+5))
		r.gridTexts = append(r.gridTexts, text)
		r.objects = append(r.objects, text)
	}
}

// drawMoistureLine draws the moisture percent curve (green).
func (r *scopeRenderer) drawMoistureLine(plotX, plotY, plotWidth, plotHeight float32, samples []sample.Sample, yMin, yMax float64, xMin, xMax time.Time) {
	if len(samples) < 2 {
		return
	}

	points := make([]fyne.Position, 0, len(samples))
	for _, s := range samples {
		x := plotX + float32(s.Timestamp.Sub(xMin).Seconds()/xMax.Sub(xMin).Seconds())*plotWidth
		y := plotY + plotHeight - float32((float64(s.Percent)-yMin)/(yMax-yMin))*plotHeight
		points = append(points, fyne.NewPos(x, y))
	}

	// Draw connected line segments
	for i := range len(points) - 1 {
		line := canvas.NewLine(board.ColorOK)
		line.Position1 = points[i]
		line.Position2 = points[i+1]
		line.StrokeWidth = 1.5
		r.objects = append(r.objects, line)
	}
}

// drawRateLine draws the moisture change rate curve (cyan, thicker).
// Rates are in %/h, a different magnitude than the percent axis, so they
// are normalized to their own min/max within the plot area.
func (r *scopeRenderer) drawRateLine(plotX, plotY, plotWidth, plotHeight float32, rates []float64, samples []sample.Sample, xMin, xMax time.Time) {
	if len(rates) == 0 || len(samples) < 2 {
		return
	}

	rateMin, rateMax := rates[0], rates[0]
	for _, rate := range rates {
		if rate < rateMin {
			rateMin = rate
		}
		if rate > rateMax {
			rateMax = rate
		}
	}
	if rateMax == rateMin {
		rateMax = rateMin + 1
	}

	// Rates correspond to sample pairs, so we use sample timestamps
	points := make([]fyne.Position, 0, len(rates))
	for i, rate := range rates {
		if i+1 >= len(samples) {
			break
		}
		// Use midpoint between samples for rate position
		midTime := samples[i].Timestamp.Add(samples[i+1].Timestamp.Sub(samples[i].Timestamp) / 2)
		x := plotX + float32(midTime.Sub(xMin).Seconds()/xMax.Sub(xMin).Seconds())*plotWidth
		y := plotY + plotHeight - float32((rate-rateMin)/(rateMax-rateMin))*plotHeight
		points = append(points, fyne.NewPos(x, y))
	}

	// Draw connected line segments
	for i := range len(points) - 1 {
		line := canvas.NewLine(board.ColorInfo)
		line.Position1 = points[i]
		line.Position2 = points[i+1]
		line.StrokeWidth = 2.5
		r.objects = append(r.objects, line)
	}
}

// drawEvents draws vertical lines for detected watering events (yellow).
func (r *scopeRenderer) drawEvents(plotX, plotY, plotWidth, plotHeight float32, events []trend.WateringEvent, samples []sample.Sample, xMin, xMax time.Time) {
	if len(samples) == 0 {
		return
	}

	for _, ev := range events {
		// Get event start and end positions from indices
		if ev.StartIndex < 0 || ev.StartIndex >= len(samples) {
			continue
		}
		if ev.EndIndex < 0 || ev.EndIndex >= len(samples) {
			continue
		}

		startTime := samples[ev.StartIndex].Timestamp
		endTime := samples[ev.EndIndex].Timestamp

		// Draw start line
		xStart := plotX + float32(startTime.Sub(xMin).Seconds()/xMax.Sub(xMin).Seconds())*plotWidth
		lineStart := canvas.NewLine(board.ColorWarning)
		lineStart.Position1 = fyne.NewPos(xStart, plotY)
		lineStart.Position2 = fyne.NewPos(xStart, plotY+plotHeight)
		lineStart.StrokeWidth = 1
		r.eventLines = append(r.eventLines, lineStart)
		r.objects = append(r.objects, lineStart)

		// Draw end line
		xEnd := plotX + float32(endTime.Sub(xMin).Seconds()/xMax.Sub(xMin).Seconds())*plotWidth
		lineEnd := canvas.NewLine(board.ColorWarning)
		lineEnd.Position1 = fyne.NewPos(xEnd, plotY)
		lineEnd.Position2 = fyne.NewPos(xEnd, plotY+plotHeight)
		lineEnd.StrokeWidth = 1
		r.eventLines = append(r.eventLines, lineEnd)
		r.objects = append(r.objects, lineEnd)
	}
}

// drawEventLabels draws moisture gain labels over each watering event.
func (r *scopeRenderer) drawEventLabels(plotX, plotY, plotWidth, plotHeight float32, events []trend.WateringEvent, samples []sample.Sample, yMin, yMax float64, xMin, xMax time.Time) {
	if len(samples) == 0 {
		return
	}

	for _, ev := range events {
		if ev.StartIndex < 0 || ev.StartIndex >= len(samples) {
			continue
		}
		if ev.EndIndex < 0 || ev.EndIndex >= len(samples) {
			continue
		}

		// Calculate center of event
		startTime := samples[ev.StartIndex].Timestamp
		endTime := samples[ev.EndIndex].Timestamp
		centerTime := startTime.Add(endTime.Sub(startTime) / 2)

		x := plotX + float32(centerTime.Sub(xMin).Seconds()/xMax.Sub(xMin).Seconds())*plotWidth

		// Find max moisture in event range for Y position
		maxPercent := yMin
		for i := ev.StartIndex; i <= ev.EndIndex && i < len(samples); i++ {
			if float64(samples[i].Percent) > maxPercent {
				maxPercent = float64(samples[i].Percent)
			}
		}
		y := plotY + plotHeight - float32((maxPercent-yMin)/(yMax-yMin))*plotHeight - 15

		text := canvas.NewText("+"+formatPercent(ev.DeltaPercent), board.ColorWarning)
		text.TextSize = 12
		text.Alignment = fyne.TextAlignCenter
		text.Move(fyne.NewPos(x-30, y))
		r.eventLabels = append(r.eventLabels, text)
		r.objects = append(r.objects, text)
	}
}

// drawPumpIndicator marks the display while the pump is running.
func (r *scopeRenderer) drawPumpIndicator(plotX, plotY float32) {
	text := canvas.NewText("PUMP ON", board.ColorError)
	text.TextSize = 11
	text.Alignment = fyne.TextAlignLeading
	text.Move(fyne.NewPos(plotX+10, plotY+10))
	r.pumpLabel = text
	r.objects = append(r.objects, text)
}

// Objects returns all canvas objects for rendering.
func (r *scopeRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

// Destroy cleans up resources.
func (r *scopeRenderer) Destroy() {
	// Cleanup handled by Fyne
}

// Helper functions for formatting

func formatPercent(v float64) string {
	return formatFloat(v, 1) + "%"
}

func formatTime(d time.Duration) string {
	if d < time.Second {
		return formatFloat(d.Seconds(), 2) + "s"
	}
	if d < 2*time.Minute {
		return formatFloat(d.Seconds(), 1) + "s"
	}
	return formatFloat(d.Minutes(), 1) + "m"
}

func formatFloat(v float64, decimals int) string {
	str := ""
	if v < 0 {
		str = "-"
		v = -v
	}
	intPart := int64(v)
	str += formatInt(intPart)
	if decimals > 0 {
		frac := v - float64(intPart)
		fracStr := formatInt(int64(math.Round(frac * math.Pow(10, float64(decimals)))))
		// Pad with zeros
		for len(fracStr) < decimals {
			fracStr = "0" + fracStr
		}
		str += "." + fracStr
	}
	return str
}

func formatInt(v int64) string {
	if v == 0 {
		return "0"
	}
	str := ""
	neg := v < 0
	if neg {
		v = -v
	}
	for v > 0 {
		str = string(rune('0'+v%10)) + str
		v /= 10
	}
	if neg {
		str = "-" + str
	}
	return str
}
