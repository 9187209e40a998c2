package progress

import (
	"sync"
	"time"
)

// MemoryStore keeps records in process memory; a restart loses them.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record), now: time.Now}
}

func (s *MemoryStore) Begin(requestID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.records[requestID]; ok && !cur.Terminal() {
		return false
	}
	s.records[requestID] = Record{RequestID: requestID, Stage: StageStarting, UpdatedAt: s.now()}
	return true
}

func (s *MemoryStore) Load(requestID string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[requestID]
	return rec, ok
}

func (s *MemoryStore) Save(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = s.now()
	}
	s.records[rec.RequestID] = rec
}

func (s *MemoryStore) DeleteTerminal(requestID string, seen time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[requestID]
	if !ok || !cur.Terminal() || !cur.UpdatedAt.Equal(seen) {
		return false
	}
	delete(s.records, requestID)
	return true
}

// Expire drops terminal records last updated before cutoff, for requests
// nobody polled to completion.
func (s *MemoryStore) Expire(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, rec := range s.records {
		if rec.Terminal() && rec.UpdatedAt.Before(cutoff) {
			delete(s.records, id)
			n++
		}
	}
	return n
}
