package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempLogPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "water_history.jsonl")
}

func TestOpen_NewFile(t *testing.T) {
	path := tempLogPath(t)

	l, err := Open(path, 100)
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, 0, l.Len())

	// File should exist after open
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpen_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "history.jsonl")

	l, err := Open(path, 100)
	require.NoError(t, err)
	defer l.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestAppend_And_Reload(t *testing.T) {
	path := tempLogPath(t)
	now := time.Now().UTC().Truncate(time.Second)

	l, err := Open(path, 100)
	require.NoError(t, err)

	require.NoError(t, l.Append(Entry{Timestamp: now, Ml: 50, Seconds: 14.3, Source: "manual"}))
	require.NoError(t, l.Append(Entry{Timestamp: now.Add(time.Hour), Ml: 30, Seconds: 8.6, Source: "schedule"}))
	require.NoError(t, l.Close())

	// Reopen and verify entries survived
	l2, err := Open(path, 100)
	require.NoError(t, err)
	defer l2.Close()

	assert.Equal(t, 2, l2.Len())
	entries := l2.Since(time.Time{})
	require.Len(t, entries, 2)
	assert.Equal(t, 50.0, entries[0].Ml)
	assert.Equal(t, "manual", entries[0].Source)
	assert.Equal(t, 30.0, entries[1].Ml)
	assert.Equal(t, "schedule", entries[1].Source)
}

func TestAppend_AfterClose(t *testing.T) {
	l, err := Open(tempLogPath(t), 100)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	assert.Error(t, l.Append(Entry{Timestamp: time.Now(), Ml: 10}))
}

func TestLoad_SkipsMalformedLines(t *testing.T) {
	path := tempLogPath(t)
	now := time.Now().UTC().Format(time.RFC3339)
	content := `{"timestamp":"` + now + `","ml":50,"seconds":14.3,"source":"manual"}
not json at all
{"timestamp":"` + now + `","ml":30,"seconds":8.6,"source":"schedule"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	l, err := Open(path, 100)
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, 2, l.Len(), "Malformed lines should be skipped, valid ones kept")
}

func TestSince(t *testing.T) {
	l, err := Open(tempLogPath(t), 100)
	require.NoError(t, err)
	defer l.Close()

	now := time.Now()
	require.NoError(t, l.Append(Entry{Timestamp: now.Add(-48 * time.Hour), Ml: 100}))
	require.NoError(t, l.Append(Entry{Timestamp: now.Add(-12 * time.Hour), Ml: 50}))
	require.NoError(t, l.Append(Entry{Timestamp: now.Add(-1 * time.Hour), Ml: 25}))

	recent := l.Since(now.Add(-24 * time.Hour))
	require.Len(t, recent, 2)
	assert.Equal(t, 50.0, recent[0].Ml)
	assert.Equal(t, 25.0, recent[1].Ml)
}

func TestUsedSince(t *testing.T) {
	l, err := Open(tempLogPath(t), 100)
	require.NoError(t, err)
	defer l.Close()

	now := time.Now()
	require.NoError(t, l.Append(Entry{Timestamp: now.Add(-48 * time.Hour), Ml: 100}))
	require.NoError(t, l.Append(Entry{Timestamp: now.Add(-12 * time.Hour), Ml: 50}))
	require.NoError(t, l.Append(Entry{Timestamp: now.Add(-1 * time.Hour), Ml: 25}))

	assert.InDelta(t, 75.0, l.UsedSince(now.Add(-24*time.Hour)), 0.001)
	assert.InDelta(t, 175.0, l.UsedSince(now.Add(-72*time.Hour)), 0.001)
	assert.InDelta(t, 0.0, l.UsedSince(now), 0.001)
}

func TestMemoryTrim(t *testing.T) {
	l, err := Open(tempLogPath(t), 5)
	require.NoError(t, err)
	defer l.Close()

	now := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Append(Entry{Timestamp: now.Add(time.Duration(i) * time.Minute), Ml: float64(i)}))
	}

	// Only newest 5 kept in memory
	assert.Equal(t, 5, l.Len())
	entries := l.Since(time.Time{})
	assert.Equal(t, 5.0, entries[0].Ml, "Oldest in-memory entry should be the 6th appended")
}
