// Package watcher mirrors Key Ledger contract state from its notifications
// and serves it over HTTP.
package watcher

import (
	"sync"

	"github.com/nspcc-dev/neo-go/pkg/util"
)

// Entry is a single element of an owner's key history.
type Entry struct {
	Index        int
	PublicKey    []byte
	Alg          string
	RegisteredAt int64
	ExpiresAt    int64
	Revoked      bool
}

// Store keeps per-owner key histories rebuilt from contract notifications.
// All methods are safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	histories map[util.Uint160][]Entry
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		histories: make(map[util.Uint160][]Entry),
	}
}

// PutEntry records a registered key at its history index. Indices between
// the last seen entry and e.Index are padded with placeholders (nil
// PublicKey) so that later notifications land at their on-chain positions.
// Replayed notifications are idempotent: an entry that is already present is
// kept as is and a revocation seen before the registration is not lost.
func (s *Store) PutEntry(owner util.Uint160, e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.histories[owner]
	for len(h) <= e.Index {
		h = append(h, Entry{Index: len(h)})
	}
	if h[e.Index].PublicKey == nil {
		revoked := h[e.Index].Revoked
		h[e.Index] = e
		h[e.Index].Revoked = e.Revoked || revoked
	}
	s.histories[owner] = h
}

// Revoke marks the entry at the given index as revoked. It returns false if
// no such entry has been seen yet.
func (s *Store) Revoke(owner util.Uint160, index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.histories[owner]
	if index < 0 || index >= len(h) {
		return false
	}
	h[index].Revoked = true
	return true
}

// Count returns the number of keys ever seen for the owner.
func (s *Store) Count(owner util.Uint160) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.histories[owner])
}

// History returns a copy of the owner's key history in registration order.
// Placeholder entries whose registration notification has not been seen yet
// are omitted, so the result may have gaps in its indices.
func (s *Store) History(owner util.Uint160) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := s.histories[owner]
	if len(h) == 0 {
		return nil
	}
	res := make([]Entry, 0, len(h))
	for _, e := range h {
		if e.PublicKey == nil {
			continue
		}
		res = append(res, e)
	}
	return res
}

// Active returns the most recently registered key of the owner that is
// neither revoked nor expired at the given moment (ms since Unix epoch).
// Zero expiration means the key never expires. Placeholder entries never
// win: a key whose registration the watcher has not seen is not served.
func (s *Store) Active(owner util.Uint160, now int64) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := s.histories[owner]
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].PublicKey == nil || h[i].Revoked {
			continue
		}
		if h[i].ExpiresAt != 0 && h[i].ExpiresAt <= now {
			continue
		}
		return h[i], true
	}
	return Entry{}, false
}
