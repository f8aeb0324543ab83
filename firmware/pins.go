//go:build tinygo

package main

import "machine"

const (
	// Sampling configuration
	SAMPLE_INTERVAL_MS = 50 // ADC read interval in milliseconds
	NUM_SAMPLES        = 20 // Number of samples to average per output line

	// ADC configuration
	// ESP32-S3 ADC resolution: 12-bit (0-4095), GPIO10 is ADC1_CH9
	ADC_REFERENCE_MV = 3300
	ADC_RESOLUTION   = 12
	ADC_MAX_VALUE    = 4095

	// Moisture sensor on GPIO10 (M5-Bus pin 2, right side)
	PIN_MOISTURE_SENSOR = machine.GPIO10
	// Relay control on GPIO7 (M5-Bus pin 22, right side), drives the 5V pump relay
	PIN_RELAY_PUMP = machine.GPIO7

	// Pump safety limits (seconds). The firmware enforces these regardless of
	// what the host asks for: the relay is forced off by an on-device timer at
	// PUMP_MAX_SECONDS even if the host never sends a stop.
	PUMP_MIN_SECONDS = 1
	PUMP_MAX_SECONDS = 30

	// Serial configuration
	// Output format "unix_micros,moisture,pump_remaining\n"
	// Example: "1234567890123456,4095,30\n" = ~25 bytes max per line at ~1 line/s.
	// 115200 baud gives orders of magnitude of headroom.
	UART_BAUD_RATE = 115200
)
