// Package board holds the hardware configuration of the gardener controller
// (M5Stack CoreS3-SE, ESP32-S3). Every tunable value shared between the
// firmware and the host packages lives here, so a pin swap or a safety-limit
// change is a one-line edit.
//
// The values are plain typed constants. Cross-parameter invariants (pump
// min <= max, ADC range, port range) are checked by Validate, which consumers
// call once at startup.
package board

import (
	"fmt"
	"image/color"
	"time"
)

// Pin identifies a GPIO pin on the controller.
type Pin uint8

// GPIO pin assignments.
const (
	// PinMoistureSensor is GPIO10 (M5-Bus pin 2, right side), ADC1_CH9 capable.
	PinMoistureSensor Pin = 10
	// PinRelayPump is GPIO7 (M5-Bus pin 22, right side), digital output to the
	// 5V relay module.
	PinRelayPump Pin = 7
)

// ADC configuration for the moisture sensor input.
const (
	ADCResolution = 12 // bits
	ADCMaxValue   = 1<<ADCResolution - 1
	ADCMinValue   = 0
	// ADCChannel is the ADC1 channel wired to PinMoistureSensor.
	ADCChannel = 9
)

// Pump safety limits. Commanded durations outside [PumpMinDuration,
// PumpMaxDuration] must be rejected by the consuming module. The upper bound
// prevents flooding on bugs or malicious requests; the lower bound filters
// pulses too short to prime the pump.
const (
	PumpMinSeconds = 1
	PumpMaxSeconds = 30

	PumpMinDuration = PumpMinSeconds * time.Second
	PumpMaxDuration = PumpMaxSeconds * time.Second
)

// WiFi provisioning parameters.
const (
	// WiFiAPName is the access point the controller hosts on first boot.
	WiFiAPName = "GardenerSetup"

	WiFiConnectTimeout    = 30 * time.Second
	WiFiReconnectInterval = 30 * time.Second
)

// RTCResyncInterval is how often the RTC is refreshed from NTP-synced system
// time. The host daemon uses the same interval for its own NTP offset checks.
const RTCResyncInterval = time.Hour

// HTTP server parameters.
const (
	HTTPPort = 80
	// MDNSHostname makes the controller reachable as gardener-esp32.local.
	MDNSHostname = "gardener-esp32"
	// JSONBufferSize bounds request/response payloads on the MCU.
	JSONBufferSize = 256
)

// RGB565 is a 16-bit color in the display driver's native format. It
// implements color.Color so host-side display code can use the palette
// constants directly.
type RGB565 uint16

// RGBA implements color.Color by expanding the 5/6/5 channels to 16 bit.
func (c RGB565) RGBA() (r, g, b, a uint32) {
	r = uint32(c>>11) & 0x1f
	g = uint32(c>>5) & 0x3f
	b = uint32(c) & 0x1f

	// Replicate high bits into low bits so 0x1f maps to 0xffff.
	r = r<<11 | r<<6 | r<<1 | r>>4
	g = g<<10 | g<<4 | g>>2
	b = b<<11 | b<<6 | b<<1 | b>>4
	return r, g, b, 0xffff
}

var _ color.Color = RGB565(0)

// Display parameters.
const (
	DisplayUpdateInterval = 2 * time.Second

	ColorBackground RGB565 = 0x0000 // black
	ColorText       RGB565 = 0xFFFF // white
	ColorOK         RGB565 = 0x07E0 // green
	ColorWarning    RGB565 = 0xFFE0 // yellow
	ColorError      RGB565 = 0xF800 // red
	ColorInfo       RGB565 = 0x07FF // cyan

	TextSizeSmall  = 1
	TextSizeMedium = 2
	TextSizeLarge  = 3
)

// Debug parameters.
const (
	DebugSerial    = true
	SerialBaudRate = 115200
)

// Validate checks the cross-parameter invariants of the constants table.
// The table itself cannot fail; this is the startup assertion consuming
// modules run before touching hardware.
func Validate() error {
	if PinMoistureSensor == PinRelayPump {
		return fmt.Errorf("board: sensor and pump relay share pin %d", PinMoistureSensor)
	}
	if ADCMaxValue != 1<<ADCResolution-1 {
		return fmt.Errorf("board: ADC max %d does not match %d-bit resolution", ADCMaxValue, ADCResolution)
	}
	if ADCMinValue != 0 {
		return fmt.Errorf("board: ADC min must be 0, got %d", ADCMinValue)
	}
	if PumpMinDuration <= 0 || PumpMinDuration > PumpMaxDuration {
		return fmt.Errorf("board: invalid pump limits [%s, %s]", PumpMinDuration, PumpMaxDuration)
	}
	if HTTPPort < 1 || HTTPPort > 65535 {
		return fmt.Errorf("board: HTTP port %d out of range", HTTPPort)
	}
	if WiFiAPName == "" || len(WiFiAPName) > 32 {
		return fmt.Errorf("board: AP name %q violates SSID length rules", WiFiAPName)
	}
	if MDNSHostname == "" {
		return fmt.Errorf("board: mDNS hostname is empty")
	}
	if WiFiConnectTimeout <= 0 || WiFiReconnectInterval <= 0 || RTCResyncInterval <= 0 || DisplayUpdateInterval <= 0 {
		return fmt.Errorf("board: intervals must be strictly positive")
	}
	if JSONBufferSize <= 0 {
		return fmt.Errorf("board: JSON buffer size must be positive")
	}
	return nil
}
