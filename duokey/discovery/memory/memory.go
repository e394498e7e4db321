package memory

import (
	"sync"

	"github.com/TheusHen/duokey/duokey/discovery"
	"github.com/TheusHen/duokey/duokey/identity"
)

// Store is an in-memory directory.
// It is useful for tests, examples and embedding in applications.
type Store struct {
	mu      sync.RWMutex
	entries map[identity.Fingerprint]discovery.Entry
}

func New() *Store {
	return &Store{entries: map[identity.Fingerprint]discovery.Entry{}}
}

// Announce adds e, or replaces the entry with the same fingerprint.
func (s *Store) Announce(e discovery.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.Fingerprint] = e
	return nil
}

func (s *Store) Lookup(fp identity.Fingerprint) (discovery.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[fp]
	if !ok {
		return discovery.Entry{}, discovery.ErrNotFound
	}
	return e, nil
}

// List returns every entry ordered by name, then fingerprint.
func (s *Store) List() ([]discovery.Entry, error) {
	s.mu.RLock()
	out := make([]discovery.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	s.mu.RUnlock()

	discovery.SortEntries(out)
	return out, nil
}

// Close is a no-op; it makes Store a discovery.Store.
func (s *Store) Close() error { return nil }
