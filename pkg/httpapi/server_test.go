package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seedling-labs/gardener/pkg/config"
	"github.com/seedling-labs/gardener/pkg/gardener"
	"github.com/seedling-labs/gardener/pkg/history"
	"github.com/seedling-labs/gardener/pkg/sample"
)

type testEnv struct {
	server *Server
	device *gardener.Mock
	budget *history.Budget

	mu     sync.Mutex
	sample sample.Sample
	hasSmp bool
	synced bool
}

func (e *testEnv) setSample(s sample.Sample) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sample = s
	e.hasSmp = true
}

func newTestEnv(t *testing.T, mutate func(cfg *config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.History.File = filepath.Join(t.TempDir(), "history.jsonl")
	if mutate != nil {
		mutate(cfg)
	}

	log, err := history.Open(cfg.History.File, cfg.History.MaxMemoryEntries)
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	env := &testEnv{
		budget: history.NewBudget(log, cfg.Watering),
		device: gardener.NewMock(nil),
	}
	require.NoError(t, env.device.Connect())
	t.Cleanup(func() { env.device.Close() })

	env.server = New(
		zap.NewNop(),
		cfg,
		env.device,
		env.budget,
		func() (sample.Sample, bool) {
			env.mu.Lock()
			defer env.mu.Unlock()
			return env.sample, env.hasSmp
		},
		func() bool {
			env.mu.Lock()
			defer env.mu.Unlock()
			return env.synced
		},
	)

	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestStatus_NoSample(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.DeviceConnected)
	assert.False(t, resp.PumpActive)
	assert.Equal(t, uint16(0), resp.Moisture)
	assert.NotEmpty(t, resp.Time)
}

func TestStatus_WithSample(t *testing.T) {
	env := newTestEnv(t, nil)
	env.setSample(sample.Sample{
		Timestamp:  time.Now(),
		Percent:    42.5,
		Raw:        2137,
		PumpActive: true,
	})
	env.mu.Lock()
	env.synced = true
	env.mu.Unlock()

	rec := env.do(t, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.TimeSynced)
	assert.True(t, resp.PumpActive)
	assert.Equal(t, uint16(2137), resp.Moisture)
	assert.InDelta(t, 42.5, resp.MoisturePercent, 0.01)
}

func TestStatus_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/status", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMoisture_OK(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := time.Now()
	env.setSample(sample.Sample{Timestamp: ts, Percent: 40, Raw: 2100})

	rec := env.do(t, http.MethodGet, "/moisture", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp moistureResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, uint16(2100), resp.Value)
	assert.Equal(t, ts.Unix(), resp.Timestamp)
}

func TestMoisture_NoSample(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/moisture", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp moistureResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.NotEmpty(t, resp.Error)
}

func TestPump_Success(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/pump", pumpRequest{Seconds: 10})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp pumpResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 10, resp.Seconds)

	// Watering should be recorded against the budget: 10s * 3.5 ml/s
	assert.InDelta(t, 35.0, env.budget.UsedMl(time.Now()), 0.001)
}

func TestPump_InvalidBody(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/pump", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp pumpResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
}

func TestPump_OutOfRange(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, seconds := range []int{0, 31} {
		rec := env.do(t, http.MethodPost, "/pump", pumpRequest{Seconds: seconds})
		require.Equal(t, http.StatusBadRequest, rec.Code, "seconds=%d", seconds)

		var resp pumpResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.NotEmpty(t, resp.Error)
	}
}

func TestPump_AlreadyRunning(t *testing.T) {
	env := newTestEnv(t, nil)
	env.setSample(sample.Sample{Timestamp: time.Now(), Raw: 2100, PumpActive: true})

	rec := env.do(t, http.MethodPost, "/pump", pumpRequest{Seconds: 10})
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp pumpResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "already running")
}

func TestPump_BudgetExhausted(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Watering.DailyBudgetMl = 30 // Less than one 10s dispense (35 ml)
	})

	rec := env.do(t, http.MethodPost, "/pump", pumpRequest{Seconds: 10})
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp pumpResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "budget")
}

func TestPump_RateLimited(t *testing.T) {
	env := newTestEnv(t, nil)

	limited := false
	for i := 0; i < 6; i++ {
		rec := env.do(t, http.MethodPost, "/pump", pumpRequest{Seconds: 1})
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	assert.True(t, limited, "Burst of pump requests should hit the rate limit")
}

func TestWaterUsage(t *testing.T) {
	env := newTestEnv(t, nil)
	now := time.Now()

	require.NoError(t, env.budget.Record(50, 14.3, "manual", now.Add(-time.Hour)))
	require.NoError(t, env.budget.Record(30, 8.6, "schedule", now.Add(-2*time.Hour)))
	require.NoError(t, env.budget.Record(100, 28.6, "manual", now.Add(-30*time.Hour))) // outside window

	rec := env.do(t, http.MethodGet, "/water/usage", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp waterUsageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 80.0, resp.UsedMl, 0.001)
	assert.InDelta(t, 420.0, resp.RemainingMl, 0.001)
	assert.InDelta(t, 500.0, resp.BudgetMl, 0.001)
	assert.Len(t, resp.Events, 2)
}

func TestWebSocket_InitialSampleAndBroadcast(t *testing.T) {
	env := newTestEnv(t, nil)
	env.setSample(sample.Sample{Timestamp: time.Now(), Percent: 40, Raw: 2100})

	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// First frame is the current sample
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "sample", msg.Type)

	// Wait for the hub to register the client, then broadcast
	deadline := time.After(time.Second)
	for env.server.Hub.ClientCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("client never registered with hub")
		case <-time.After(10 * time.Millisecond):
		}
	}

	env.server.Hub.Broadcast(NewMessage("sample", map[string]interface{}{"percent": 41.0}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "sample", msg.Type)
}
