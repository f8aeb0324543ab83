// Package history persists watering records to an append-only JSONL file
// and answers time-window queries over them.
package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is a single watering record.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Ml        float64   `json:"ml"`
	Seconds   float64   `json:"seconds"`
	Source    string    `json:"source"` // "manual", "schedule" or "mqtt"
}

// Log is an append-only watering history backed by a JSONL file.
// Recent entries are kept in memory for fast window queries.
type Log struct {
	mu         sync.Mutex
	path       string
	maxEntries int
	entries    []Entry
	file       *os.File
}

// Open loads existing history from path and opens it for appending.
// The file and its parent directory are created if missing.
func Open(path string, maxEntries int) (*Log, error) {
	if maxEntries <= 0 {
		maxEntries = 1000
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	l := &Log{
		path:       path,
		maxEntries: maxEntries,
		entries:    make([]Entry, 0),
	}

	if err := l.load(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	l.file = f

	return l, nil
}

// load reads existing entries from the JSONL file.
// Malformed lines are skipped rather than failing the whole load.
func (l *Log) load() error {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read history file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		l.entries = append(l.entries, e)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to scan history file: %w", err)
	}

	l.trim()
	return nil
}

// trim keeps only the newest maxEntries entries in memory.
// The file itself is never rewritten.
func (l *Log) trim() {
	if len(l.entries) > l.maxEntries {
		l.entries = l.entries[len(l.entries)-l.maxEntries:]
	}
}

// Append records an entry, writing it to the file before adding it to memory.
func (l *Log) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("history log is closed")
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}
	data = append(data, '\n')

	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("failed to write history entry: %w", err)
	}

	l.entries = append(l.entries, e)
	l.trim()
	return nil
}

// Since returns a copy of all entries with timestamps at or after t,
// ordered oldest first.
func (l *Log) Since(t time.Time) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := make([]Entry, 0)
	for _, e := range l.entries {
		if !e.Timestamp.Before(t) {
			result = append(result, e)
		}
	}
	return result
}

// UsedSince returns the total milliliters dispensed at or after t.
func (l *Log) UsedSince(t time.Time) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	var total float64
	for _, e := range l.entries {
		if !e.Timestamp.Before(t) {
			total += e.Ml
		}
	}
	return total
}

// Len returns the number of entries held in memory.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Close closes the underlying file. Further appends fail.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
