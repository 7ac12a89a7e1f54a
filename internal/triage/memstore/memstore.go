// Package memstore keeps recent triage verdicts in memory so they can be
// looked up after the request that produced them. Nothing survives a restart.
package memstore

import (
	"context"
	"sync"

	"github.com/linnemanlabs/docket/internal/triage"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 1000

// Store holds the most recent verdicts, evicting the oldest once full.
type Store struct {
	mu       sync.RWMutex
	capacity int
	verdicts map[string]*triage.Verdict // triage ID -> verdict
	latest   map[string]string          // ticket ID -> newest triage ID
	order    []string                   // triage IDs, oldest first
}

// New initializes a Store bounded to capacity verdicts.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		verdicts: make(map[string]*triage.Verdict, capacity),
		latest:   make(map[string]string),
	}
}

// Get retrieves a verdict by triage ID. Returns a copy.
func (s *Store) Get(_ context.Context, triageID string) (*triage.Verdict, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.verdicts[triageID]
	if !ok {
		return nil, false, nil
	}
	cp := *v
	return &cp, true, nil
}

// LatestForTicket returns the newest retained triage of a ticket. Returns a copy.
func (s *Store) LatestForTicket(_ context.Context, ticketID string) (string, *triage.Verdict, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.latest[ticketID]
	if !ok {
		return "", nil, false, nil
	}
	cp := *s.verdicts[id]
	return id, &cp, true, nil
}

// Put stores a copy of the verdict under triageID.
func (s *Store) Put(_ context.Context, triageID string, v *triage.Verdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.verdicts[triageID]; !exists {
		s.order = append(s.order, triageID)
	}
	cp := *v
	s.verdicts[triageID] = &cp
	s.latest[v.TicketID] = triageID

	for len(s.order) > s.capacity {
		s.evictOldest()
	}
	return nil
}

// Len reports how many verdicts are retained.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.verdicts)
}

func (s *Store) evictOldest() {
	id := s.order[0]
	s.order[0] = ""
	s.order = s.order[1:]

	v := s.verdicts[id]
	delete(s.verdicts, id)
	// a newer triage of the same ticket keeps its pointer
	if s.latest[v.TicketID] == id {
		delete(s.latest, v.TicketID)
	}
}
