package service

import "sync"

// keyedMutex serializes work per entity id. Every trip mutation runs
// under the trip's lock so two concurrent requests cannot both read
// the same seat availability and overshoot capacity; the store's
// version check still guards against writers outside this process.
//
// Entries are never evicted: the id space is small (one lock per
// entity ever touched by this process) and eviction would reintroduce
// the race the map exists to prevent.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[int64]*sync.Mutex)}
}

// lock acquires the mutex for id and returns its unlock function.
func (k *keyedMutex) lock(id int64) func() {
	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &sync.Mutex{}
		k.locks[id] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
