package cache

import (
	"sync"
	"time"

	"oiflow/models"
)

// SnapshotStore retains the single most recent totals snapshot. Every Set
// replaces the whole snapshot, so readers always observe totals and timestamp
// from the same cycle. It is safe for concurrent use.
type SnapshotStore struct {
	mu       sync.RWMutex
	snapshot models.Snapshot
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// Get returns a copy of the current snapshot. Before the first successful
// cycle the zero-timestamp sentinel is returned.
func (s *SnapshotStore) Get() models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Set stores totals stamped with the current wall-clock time, discarding the
// previous snapshot entirely.
func (s *SnapshotStore) Set(totals models.OITotals) {
	s.mu.Lock()
	s.snapshot = models.Snapshot{
		Totals:    totals,
		Timestamp: time.Now(),
	}
	s.mu.Unlock()
}
