package keylock

import "sync"

// KeyLock serializes work per int64 key. Profile mutations (experience
// grants, daily claims, merges) go through it so two handlers can never
// interleave a read-modify-write on the same profile.
type KeyLock struct {
	mu    sync.Mutex
	locks map[int64]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New creates an empty KeyLock.
func New() *KeyLock {
	return &KeyLock{locks: make(map[int64]*entry)}
}

func (k *KeyLock) acquire(key int64) *entry {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()
	e.mu.Lock()
	return e
}

func (k *KeyLock) release(key int64, e *entry) {
	e.mu.Unlock()
	k.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}

// Lock locks the given key and returns the unlock function.
func (k *KeyLock) Lock(key int64) func() {
	e := k.acquire(key)
	return func() { k.release(key, e) }
}

// LockPair locks two keys in ascending order so concurrent pair locks can
// never deadlock. The keys must differ.
func (k *KeyLock) LockPair(a, b int64) func() {
	if a > b {
		a, b = b, a
	}
	first := k.acquire(a)
	second := k.acquire(b)
	return func() {
		k.release(b, second)
		k.release(a, first)
	}
}
