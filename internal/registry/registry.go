package registry

import (
	"strings"
	"sync"

	"github.com/vntrieu/steamcord/internal/store"
)

// Registry is an in-memory map from identity key (the platform-specific id of
// the game platform) to the last-known profile snapshot. It is a presence
// cache, never authoritative: entries are created on join, refreshed on
// demand, and lost on restart. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*store.Profile
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*store.Profile)}
}

// Get returns the profile snapshot for the identity key, or nil when absent.
func (r *Registry) Get(identityKey string) *store.Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[identityKey]
}

// GetByDisplayName returns the first profile whose display name matches,
// case-insensitively, or nil when none does.
func (r *Registry) GetByDisplayName(name string) *store.Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.entries {
		if strings.EqualFold(p.DisplayName, name) {
			return p
		}
	}
	return nil
}

// Put inserts or overwrites the entry for the identity key (last write wins).
func (r *Registry) Put(identityKey string, p *store.Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[identityKey] = p
}

// Remove deletes the entry for the identity key. Returns true iff an entry existed.
func (r *Registry) Remove(identityKey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[identityKey]
	delete(r.entries, identityKey)
	return ok
}

// RemoveByDisplayName deletes the first entry whose display name matches,
// case-insensitively. Returns true iff an entry was removed.
func (r *Registry) RemoveByDisplayName(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, p := range r.entries {
		if strings.EqualFold(p.DisplayName, name) {
			delete(r.entries, key)
			return true
		}
	}
	return false
}

// Refresh overwrites every entry holding the given profile id with the new
// snapshot, so presence lookups see progression changes without a rejoin.
func (r *Registry) Refresh(p *store.Profile) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, old := range r.entries {
		if old.ID == p.ID {
			r.entries[key] = p
		}
	}
}

// All returns a snapshot slice of every cached profile. Order is unspecified.
func (r *Registry) All() []*store.Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*store.Profile, 0, len(r.entries))
	for _, p := range r.entries {
		out = append(out, p)
	}
	return out
}

// Snapshot returns a defensive copy of the whole key space; callers may
// mutate the returned map freely.
func (r *Registry) Snapshot() map[string]*store.Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*store.Profile, len(r.entries))
	for key, p := range r.entries {
		out[key] = p
	}
	return out
}

// Len returns the number of cached entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
