// Package schedule runs cron-based watering jobs persisted to a JSON file.
package schedule

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Entry defines the structure for a saved watering schedule.
type Entry struct {
	Spec string  `json:"spec"` // Cron spec, e.g. "0 7 * * *"
	Ml   float64 `json:"ml"`   // Amount to dispense
}

// WateringFunc dispenses the given amount. The scheduler does not retry;
// failures are logged and the next run proceeds normally.
type WateringFunc func(ml float64) error

// Scheduler manages all cron-related watering tasks.
type Scheduler struct {
	log           *zap.Logger
	cron          *cron.Cron
	store         map[cron.EntryID]Entry
	water         WateringFunc
	mu            sync.RWMutex
	schedulesFile string
}

// New creates a scheduler and loads any persisted schedules.
func New(log *zap.Logger, water WateringFunc, schedulesFile string) *Scheduler {
	s := &Scheduler{
		log:           log,
		cron:          cron.New(),
		store:         make(map[cron.EntryID]Entry),
		water:         water,
		schedulesFile: schedulesFile,
	}
	s.load()
	return s
}

// Start begins the cron job ticker.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("watering scheduler started", zap.Int("schedules", len(s.GetAll())))
}

// Stop halts the cron job ticker.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.log.Info("watering scheduler stopped")
}

// Add creates a new watering job and persists the store.
func (s *Scheduler) Add(spec string, ml float64) (cron.EntryID, error) {
	if ml <= 0 {
		return 0, fmt.Errorf("invalid watering amount: %.1f ml", ml)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(spec, func() { s.execute(ml) })
	if err != nil {
		return 0, fmt.Errorf("failed to add schedule %q: %w", spec, err)
	}
	s.store[id] = Entry{Spec: spec, Ml: ml}
	s.save()
	s.log.Info("added watering schedule",
		zap.Int("id", int(id)),
		zap.String("spec", spec),
		zap.Float64("ml", ml),
	)
	return id, nil
}

// Remove deletes a watering job and persists the store.
func (s *Scheduler) Remove(id cron.EntryID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cron.Remove(id)
	delete(s.store, id)
	s.save()
	s.log.Info("removed watering schedule", zap.Int("id", int(id)))
}

// GetAll returns a copy of the current schedules in a thread-safe way.
func (s *Scheduler) GetAll() map[cron.EntryID]Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	newMap := make(map[cron.EntryID]Entry)
	for k, v := range s.store {
		newMap[k] = v
	}
	return newMap
}

func (s *Scheduler) execute(ml float64) {
	s.log.Info("executing scheduled watering", zap.Float64("ml", ml))
	if err := s.water(ml); err != nil {
		s.log.Error("scheduled watering failed", zap.Float64("ml", ml), zap.Error(err))
	}
}

// save writes the store to the schedules file. Callers must hold the lock.
func (s *Scheduler) save() {
	data, err := json.MarshalIndent(s.store, "", "  ")
	if err != nil {
		s.log.Error("failed to marshal schedules", zap.Error(err))
		return
	}
	if err := os.WriteFile(s.schedulesFile, data, 0644); err != nil {
		s.log.Error("failed to write schedules file", zap.Error(err))
	}
}

func (s *Scheduler) load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.schedulesFile); os.IsNotExist(err) {
		return
	}
	data, err := os.ReadFile(s.schedulesFile)
	if err != nil {
		s.log.Error("failed to read schedules file", zap.Error(err))
		return
	}

	tempStore := make(map[cron.EntryID]Entry)
	if err := json.Unmarshal(data, &tempStore); err != nil {
		s.log.Error("failed to unmarshal schedules file", zap.Error(err))
		return
	}

	s.log.Info("loading schedules",
		zap.Int("count", len(tempStore)),
		zap.String("file", s.schedulesFile),
	)
	for _, entry := range tempStore {
		jobEntry := entry
		newID, err := s.cron.AddFunc(jobEntry.Spec, func() { s.execute(jobEntry.Ml) })
		if err != nil {
			s.log.Error("failed to re-add schedule from file", zap.String("spec", jobEntry.Spec), zap.Error(err))
			continue
		}
		s.store[newID] = jobEntry
	}
}
