package gardener

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/seedling-labs/gardener/pkg/board"
)

const (
	// DefaultBaudRate matches the firmware UART configuration.
	DefaultBaudRate = board.SerialBaudRate
	// DefaultBufferSize is the default size for the samples channel buffer.
	DefaultBufferSize = 100
)

// RawSample represents a raw telemetry sample from the controller.
type RawSample struct {
	Timestamp     time.Time
	Moisture      uint16 // 12-bit ADC reading (0-4095)
	PumpActive    bool   // Relay state
	PumpRemaining int    // Seconds until the safety timer turns the relay off
}

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Serial represents a connection to the gardener controller MCU.
type Serial struct {
	port     string
	baudRate int
	bufSize  int

	conn      serial.Port
	samples   chan RawSample
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
}

// New creates a new Serial device with the specified port, baud rate, and buffer size.
func New(port string, baudRate int, bufSize int) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Serial{
		port:      port,
		baudRate:  baudRate,
		bufSize:   bufSize,
		samples:   make(chan RawSample, bufSize),
		ctx:       ctx,
		cancel:    cancel,
		connected: false,
	}
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{
			Name:        name,
			Description: name,
		})
	}

	return result, nil
}

// Connect connects to the serial port and starts reading samples.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}

	mode := &serial.Mode{
		BaudRate: d.baudRate,
	}

	port, err := serial.Open(d.port, mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	d.conn = port
	d.connected = true

	// Start reading samples in a goroutine
	go d.readSamples()

	return nil
}

// Close closes the connection and stops reading samples.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	// Cancel context to stop reading goroutine
	d.cancel()

	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			log.Printf("Error closing serial port: %v", err)
		}
		d.conn = nil
	}

	d.connected = false

	close(d.samples)

	return nil
}

// Samples returns the channel for reading samples.
func (d *Serial) Samples() <-chan RawSample {
	return d.samples
}

// SetPump commands the pump relay on for the given number of seconds.
// The duration must lie within the board safety limits; the firmware enforces
// the same bounds independently.
func (d *Serial) SetPump(seconds int) error {
	if seconds < board.PumpMinSeconds || seconds > board.PumpMaxSeconds {
		return fmt.Errorf("pump duration %ds outside safety limits [%d, %d]",
			seconds, board.PumpMinSeconds, board.PumpMaxSeconds)
	}
	return d.sendPumpCommand(seconds)
}

// StopPump turns the pump relay off immediately.
func (d *Serial) StopPump() error {
	return d.sendPumpCommand(0)
}

func (d *Serial) sendPumpCommand(seconds int) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return fmt.Errorf("not connected")
	}

	// Command format: "P<seconds>\n"; "P0\n" stops the pump.
	cmd := fmt.Sprintf("P%d\n", seconds)
	if _, err := d.conn.Write([]byte(cmd)); err != nil {
		return fmt.Errorf("failed to send pump command: %w", err)
	}

	return nil
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// readSamples reads lines from the serial port and parses them into RawSample.
func (d *Serial) readSamples() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Panic in readSamples: %v", r)
		}
	}()

	scanner := bufio.NewScanner(d.conn)
	for {
		select {
		case <-d.ctx.Done():
			return
		default:
			if !scanner.Scan() {
				// Scanner stopped (EOF or error)
				if err := scanner.Err(); err != nil {
					if err != io.EOF {
						log.Printf("Error reading from serial port: %v", err)
					}
				}
				return
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			sample, err := parseLine(line)
			if err != nil {
				log.Printf("Failed to parse line '%s': %v", line, err)
				continue
			}

			// Send sample to channel (non-blocking)
			select {
			case d.samples <- sample:
			case <-d.ctx.Done():
				return
			default:
				// Channel full, log and skip
				log.Printf("Samples channel full, dropping sample")
			}
		}
	}
}

// parseLine parses a telemetry line from the controller into a RawSample.
// Format: unix_micros,moisture,pump_remaining
// Example: 1234567890123,2048,12
func parseLine(line string) (RawSample, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 3 {
		return RawSample{}, fmt.Errorf("invalid line format: expected 3 comma-separated values, got %d", len(parts))
	}

	// Parse timestamp (unix microseconds)
	timestampMicros, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return RawSample{}, fmt.Errorf("invalid timestamp: %w", err)
	}
	timestamp := time.Unix(0, timestampMicros*1000) // Convert microseconds to nanoseconds

	// Parse moisture (12-bit ADC)
	moisture, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return RawSample{}, fmt.Errorf("invalid moisture reading: %w", err)
	}
	if moisture > board.ADCMaxValue {
		return RawSample{}, fmt.Errorf("moisture reading out of range: %d (max %d)", moisture, board.ADCMaxValue)
	}

	// Parse pump remaining seconds
	remaining, err := strconv.ParseInt(parts[2], 10, 32)
	if err != nil {
		return RawSample{}, fmt.Errorf("invalid pump remaining: %w", err)
	}
	if remaining < 0 || remaining > board.PumpMaxSeconds {
		return RawSample{}, fmt.Errorf("pump remaining out of range: %d (max %d)", remaining, board.PumpMaxSeconds)
	}

	return RawSample{
		Timestamp:     timestamp,
		Moisture:      uint16(moisture),
		PumpActive:    remaining > 0,
		PumpRemaining: int(remaining),
	}, nil
}
