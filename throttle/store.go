package throttle

import (
	"sync"
	"time"
)

// DefaultWindow is the throttle window used when none is configured.
const DefaultWindow = 10 * time.Second

// Decision is the outcome of Store.Admit.
type Decision struct {
	// Admit reports whether the event is to be dispatched now.
	Admit bool

	// SuppressedCount is, for an admit, the number of events suppressed since the previous admit.
	// For a suppress it is the updated count, for logging only.
	SuppressedCount uint64
}

// record is the throttle state of one error identity.
type record struct {
	suppressed uint64
	lastSentAt time.Time // Zero means never sent.
}

// Store owns the throttle records of all error identities.
// The zero value is not usable, use NewStore.
type Store struct {
	mu      sync.Mutex
	records map[string]*record
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{records: make(map[string]*record)}
}

// Admit decides whether the event for errorID arriving at now is dispatched or suppressed.
//
// An event is admitted if errorID has no record, its record was never sent, or at least window has
// elapsed since the last admit. The boundary is inclusive, so an event exactly window after the last
// admit is admitted. A window <= 0 admits every event.
// Admitting resets the suppressed count and reports its previous value, suppressing increments it.
func (s *Store) Admit(errorID string, now time.Time, window time.Duration) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[errorID]
	if !ok {
		r = &record{}
		s.records[errorID] = r
	}

	if r.lastSentAt.IsZero() || now.Sub(r.lastSentAt) >= window {
		d := Decision{Admit: true, SuppressedCount: r.suppressed}
		r.suppressed = 0
		r.lastSentAt = now

		return d
	}

	r.suppressed++

	return Decision{SuppressedCount: r.suppressed}
}

// Sweep removes every record whose last admit is more than retention before now
// and returns the number of records removed.
func (s *Store) Sweep(now time.Time, retention time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted int
	for id, r := range s.records {
		if now.Sub(r.lastSentAt) > retention {
			delete(s.records, id)
			evicted++
		}
	}

	return evicted
}

// Len returns the number of records currently held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.records)
}
