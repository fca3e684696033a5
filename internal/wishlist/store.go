package wishlist

import (
	"strings"
	"sync"
	"time"
)

// Entry is a saved product.
type Entry struct {
	ProductID string    `json:"productId"`
	AddedAt   time.Time `json:"addedAt"`
}

// Store is a per-session set of saved products in insertion order. It is
// safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries []Entry
	now     func() time.Time
}

// NewStore returns an empty wishlist.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// Add saves a product and reports whether it was newly added.
func (s *Store) Add(productID string) bool {
	id := strings.TrimSpace(productID)
	if id == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(id) >= 0 {
		return false
	}
	s.entries = append(s.entries, Entry{ProductID: id, AddedAt: s.now().UTC()})
	return true
}

// Remove drops a product and reports whether it was present.
func (s *Store) Remove(productID string) bool {
	id := strings.TrimSpace(productID)
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return false
	}
	s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
	return true
}

// Toggle flips membership and returns whether the product is now saved.
func (s *Store) Toggle(productID string) bool {
	id := strings.TrimSpace(productID)
	if id == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.indexLocked(id); idx >= 0 {
		s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
		return false
	}
	s.entries = append(s.entries, Entry{ProductID: id, AddedAt: s.now().UTC()})
	return true
}

// Has reports whether the product is saved.
func (s *Store) Has(productID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexLocked(strings.TrimSpace(productID)) >= 0
}

// List returns a copy of the saved entries, oldest first.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Count returns the number of saved products.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear removes every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
}

// Snapshot returns the persistable state.
func (s *Store) Snapshot() []Entry { return s.List() }

// Restore replaces the wishlist with entries, dropping blanks and duplicates.
func (s *Store) Restore(entries []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = s.entries[:0]
	for _, e := range entries {
		e.ProductID = strings.TrimSpace(e.ProductID)
		if e.ProductID == "" || s.indexLocked(e.ProductID) >= 0 {
			continue
		}
		s.entries = append(s.entries, e)
	}
}

func (s *Store) indexLocked(id string) int {
	for i, e := range s.entries {
		if e.ProductID == id {
			return i
		}
	}
	return -1
}
