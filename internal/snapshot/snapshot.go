// Package snapshot persists dirty in-memory room documents to the
// database on an interval.
package snapshot

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/quillboard/backend/internal/db"
	"github.com/quillboard/backend/internal/state"
)

type Config struct {
	Interval         time.Duration
	KeepAutoVersions int
}

func DefaultConfig() Config {
	return Config{
		Interval:         2 * time.Minute,
		KeepAutoVersions: 10,
	}
}

type Service struct {
	database *db.Database
	store    *state.Store
	config   Config
	stop     chan struct{}
	wg       sync.WaitGroup

	mu    sync.Mutex
	saved map[string]int // room id -> last persisted revision
}

func New(database *db.Database, store *state.Store, config Config) *Service {
	return &Service{
		database: database,
		store:    store,
		config:   config,
		stop:     make(chan struct{}),
		saved:    make(map[string]int),
	}
}

func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
	log.Printf("💾 Snapshot service started (interval: %v)", s.config.Interval)
}

func (s *Service) Stop() {
	close(s.stop)
	s.wg.Wait()
	log.Println("💾 Snapshot service stopped")
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			// Final flush so a clean shutdown loses nothing.
			s.saveDirtyRooms()
			return
		case <-ticker.C:
			s.saveDirtyRooms()
		}
	}
}

func (s *Service) saveDirtyRooms() {
	savedCount := 0
	for _, roomID := range s.store.RoomIDs() {
		if s.saveRoom(roomID) {
			savedCount++
		}
	}
	if savedCount > 0 {
		log.Printf("💾 Persisted %d rooms", savedCount)
	}
}

func (s *Service) saveRoom(roomID string) bool {
	revision := s.store.Revision(roomID)

	s.mu.Lock()
	last, known := s.saved[roomID]
	s.mu.Unlock()
	if known && revision <= last {
		return false
	}
	if !known {
		// First sight of this room since startup: trust the database's
		// record of what is already persisted.
		dbRev, err := s.database.GetSnapshotRevision(roomID)
		if err == nil && revision <= dbRev {
			s.mu.Lock()
			s.saved[roomID] = dbRev
			s.mu.Unlock()
			return false
		}
	}

	doc := s.store.Document(roomID)
	if err := s.database.SaveDocument(doc, revision); err != nil {
		log.Printf("Snapshot: failed for room %s: %v", roomID, err)
		return false
	}

	content, err := json.Marshal(doc)
	if err == nil {
		if _, err := s.database.CreateVersion(roomID, "autosave", "", string(content), "", true); err != nil {
			log.Printf("Snapshot: failed to version room %s: %v", roomID, err)
		}
		if err := s.database.DeleteOldAutoVersions(roomID, s.config.KeepAutoVersions); err != nil {
			log.Printf("Snapshot: failed to prune versions for room %s: %v", roomID, err)
		}
	}

	s.mu.Lock()
	s.saved[roomID] = revision
	s.mu.Unlock()
	return true
}

// SaveNow flushes one room immediately.
func (s *Service) SaveNow(roomID string) {
	s.saveRoom(roomID)
}
