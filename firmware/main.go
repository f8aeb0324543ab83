//go:build tinygo

//go:generate tinygo flash -target=xiao-esp32s3

package main

import (
	"machine"
	"time"
)

var (
	adcMoisture machine.ADC
	uart        = machine.UART0

	// Pump state
	pumpActive bool
	pumpOffAt  time.Time

	// ADC averaging - running sum and count
	moistureSum   uint32
	moistureCount int

	// Timing
	lastADCRead time.Time

	// Serial buffer for reading command lines
	serialBuffer [8]byte
	serialPos    int
)

func main() {
	// Configure relay pin as output, off
	PIN_RELAY_PUMP.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_RELAY_PUMP.Low()

	// Configure moisture ADC with highest resolution
	PIN_MOISTURE_SENSOR.Configure(machine.PinConfig{Mode: machine.PinInput})
	adcMoisture = machine.ADC{Pin: PIN_MOISTURE_SENSOR}
	adcMoisture.Configure(machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	})

	// Configure UART for pump commands and telemetry
	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	lastADCRead = time.Now()

	// Main loop
	for {
		now := time.Now()

		// Check for serial input (non-blocking)
		processSerial()

		// Safety timer: force the relay off once the commanded duration ends.
		// This runs before anything else so a wedged host cannot flood the pot.
		if pumpActive && !now.Before(pumpOffAt) {
			stopPump()
		}

		// Read the moisture ADC at a fixed rate
		if now.Sub(lastADCRead) >= time.Duration(SAMPLE_INTERVAL_MS)*time.Millisecond {
			value := adcMoisture.Get()
			moistureSum += uint32(value)
			moistureCount++
			lastADCRead = now
		}

		// Output an averaged line once N samples are collected
		if moistureCount >= NUM_SAMPLES {
			outputAveragedValue(now)
			moistureSum = 0
			moistureCount = 0
		}

		// Small delay to prevent a tight loop
		time.Sleep(500 * time.Microsecond)
	}
}

func outputAveragedValue(now time.Time) {
	n := moistureCount
	if n == 0 {
		n = 1 // Avoid division by zero
	}
	moistureAvg := uint16(moistureSum / uint32(n))

	remaining := 0
	if pumpActive {
		remaining = int(pumpOffAt.Sub(now).Seconds() + 0.5)
		if remaining < 0 {
			remaining = 0
		}
	}

	// Output format: "unix_micros,moisture,pump_remaining\n"
	// Example: "1234567890123,2048,12\n"
	print(now.UnixNano() / 1000)
	print(",")
	print(moistureAvg)
	print(",")
	print(remaining)
	print("\n")
}

func processSerial() {
	// Read available bytes from serial
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		// Check for newline (end of command)
		if data == '\n' || data == '\r' {
			if serialPos > 1 && serialBuffer[0] == 'P' {
				handlePumpCommand()
			}
			serialPos = 0
			continue
		}

		// Ignore whitespace
		if data == ' ' || data == '\t' {
			continue
		}

		// Commands are 'P' followed by decimal seconds; anything else resets
		valid := (serialPos == 0 && data == 'P') ||
			(serialPos > 0 && data >= '0' && data <= '9')
		if !valid {
			serialPos = 0
			continue
		}

		if serialPos < len(serialBuffer) {
			serialBuffer[serialPos] = data
			serialPos++
		} else {
			// Overlong command - discard until newline
			serialPos = 0
		}
	}
}

func handlePumpCommand() {
	seconds := 0
	for i := 1; i < serialPos; i++ {
		seconds = seconds*10 + int(serialBuffer[i]-'0')
		if seconds > 999 {
			// Obviously bogus, reject outright
			return
		}
	}

	// "P0" stops the pump immediately
	if seconds == 0 {
		stopPump()
		return
	}

	// Reject durations above the safety limit, clamp short pulses up to the
	// minimum that reliably primes the pump.
	if seconds > PUMP_MAX_SECONDS {
		return
	}
	if seconds < PUMP_MIN_SECONDS {
		seconds = PUMP_MIN_SECONDS
	}

	pumpActive = true
	pumpOffAt = time.Now().Add(time.Duration(seconds) * time.Second)
	PIN_RELAY_PUMP.High()
}

func stopPump() {
	if pumpActive {
		pumpActive = false
		PIN_RELAY_PUMP.Low()
	}
}
