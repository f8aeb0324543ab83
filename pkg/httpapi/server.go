// Package httpapi exposes the controller's HTTP and WebSocket endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/seedling-labs/gardener/pkg/board"
	"github.com/seedling-labs/gardener/pkg/config"
	"github.com/seedling-labs/gardener/pkg/gardener"
	"github.com/seedling-labs/gardener/pkg/history"
	"github.com/seedling-labs/gardener/pkg/sample"
)

// SampleProvider returns the most recent processed sample, if any.
type SampleProvider func() (sample.Sample, bool)

// SyncProvider reports whether the controller clock is NTP-synced.
type SyncProvider func() bool

// Server manages the HTTP and WebSocket services.
type Server struct {
	Hub *Hub

	log        *zap.Logger
	device     gardener.Device
	budget     *history.Budget
	getSample  SampleProvider
	getSynced  SyncProvider
	limiter    *rate.Limiter
	httpServer *http.Server

	allowedOrigins []string
	upgrader       websocket.Upgrader
}

// New creates a new server instance listening on cfg.HTTP.Listen.
func New(log *zap.Logger, cfg *config.Config, device gardener.Device, budget *history.Budget, getSample SampleProvider, getSynced SyncProvider) *Server {
	hub := NewHub(log)
	go hub.Run()

	s := &Server{
		Hub:            hub,
		log:            log,
		device:         device,
		budget:         budget,
		getSample:      getSample,
		getSynced:      getSynced,
		limiter:        rate.NewLimiter(rate.Every(time.Second), 3),
		allowedOrigins: cfg.HTTP.AllowedOrigins,
	}

	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(s.allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Non-browser clients send no Origin header
				return true
			}
			for _, allowed := range s.allowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			s.log.Warn("WebSocket connection blocked", zap.String("origin", origin))
			return false
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/moisture", s.handleMoisture)
	mux.HandleFunc("/pump", s.handlePump)
	mux.HandleFunc("/water/usage", s.handleWaterUsage)
	mux.HandleFunc("/ws", s.handleWebSocket)
	s.httpServer = &http.Server{Addr: cfg.HTTP.Listen, Handler: mux}

	return s
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusResponse struct {
	Time            string  `json:"time"`
	TimeSynced      bool    `json:"time_synced"`
	DeviceConnected bool    `json:"device_connected"`
	PumpActive      bool    `json:"pump_active"`
	Moisture        uint16  `json:"moisture"`
	MoisturePercent float32 `json:"moisture_percent"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	resp := statusResponse{
		Time:            time.Now().Format(time.RFC3339),
		DeviceConnected: s.device.IsConnected(),
	}
	if s.getSynced != nil {
		resp.TimeSynced = s.getSynced()
	}
	if smp, ok := s.getSample(); ok {
		resp.PumpActive = smp.PumpActive
		resp.Moisture = smp.Raw
		resp.MoisturePercent = smp.Percent
	}

	writeJSON(w, http.StatusOK, resp)
}

type moistureResponse struct {
	Value     uint16 `json:"value"`
	Timestamp int64  `json:"timestamp"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleMoisture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	smp, ok := s.getSample()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, moistureResponse{
			Status: "error",
			Error:  "no sample available",
		})
		return
	}

	writeJSON(w, http.StatusOK, moistureResponse{
		Value:     smp.Raw,
		Timestamp: smp.Timestamp.Unix(),
		Status:    "ok",
	})
}

type pumpRequest struct {
	Seconds int `json:"seconds"`
}

type pumpResponse struct {
	Success bool   `json:"success"`
	Seconds int    `json:"seconds,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handlePump(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if !s.limiter.Allow() {
		writeJSON(w, http.StatusTooManyRequests, pumpResponse{
			Success: false,
			Error:   "too many pump requests",
		})
		return
	}

	var req pumpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, pumpResponse{
			Success: false,
			Error:   "invalid request body",
		})
		return
	}

	if req.Seconds < board.PumpMinSeconds || req.Seconds > board.PumpMaxSeconds {
		writeJSON(w, http.StatusBadRequest, pumpResponse{
			Success: false,
			Error:   "seconds outside allowed range",
		})
		return
	}

	if smp, ok := s.getSample(); ok && smp.PumpActive {
		writeJSON(w, http.StatusConflict, pumpResponse{
			Success: false,
			Error:   "pump already running",
		})
		return
	}

	ml := s.budget.MlFor(float64(req.Seconds))
	if err := s.budget.Check(ml, time.Now()); err != nil {
		writeJSON(w, http.StatusConflict, pumpResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	if err := s.device.SetPump(req.Seconds); err != nil {
		s.log.Error("pump command failed", zap.Int("seconds", req.Seconds), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, pumpResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	if err := s.budget.Record(ml, float64(req.Seconds), "manual", time.Now()); err != nil {
		s.log.Error("failed to record watering", zap.Error(err))
	}

	s.log.Info("pump started",
		zap.Int("seconds", req.Seconds),
		zap.Float64("ml", ml),
	)

	writeJSON(w, http.StatusOK, pumpResponse{
		Success: true,
		Seconds: req.Seconds,
	})
}

type waterUsageResponse struct {
	UsedMl      float64         `json:"used_ml"`
	RemainingMl float64         `json:"remaining_ml"`
	BudgetMl    float64         `json:"budget_ml"`
	Events      []history.Entry `json:"events"`
}

func (s *Server) handleWaterUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	now := time.Now()
	writeJSON(w, http.StatusOK, waterUsageResponse{
		UsedMl:      s.budget.UsedMl(now),
		RemainingMl: s.budget.RemainingMl(now),
		BudgetMl:    s.budget.DailyBudgetMl(),
		Events:      s.budget.Events(now.Add(-24 * time.Hour)),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade error", zap.Error(err))
		return
	}

	// Send current state before joining the broadcast set
	if smp, ok := s.getSample(); ok {
		_ = conn.WriteJSON(NewMessage("sample", map[string]interface{}{
			"percent":     smp.Percent,
			"raw":         smp.Raw,
			"pump_active": smp.PumpActive,
			"timestamp":   smp.Timestamp.Unix(),
		}))
	}

	s.Hub.register <- conn

	defer func() {
		s.Hub.unregister <- conn
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
