// Package repolock implements the process-wide repository mutex map from
// spec.md §4.5: every VCS mutation acquires the exclusive lock for its
// repository path, and that is the sole mechanism preventing concurrent
// worktree/branch churn on one clone. The design follows spec.md §9's
// "concurrent map with per-key locks": an outer mutex guards the map's
// shape, and each value is an owned, heap-allocated lock that a lookup
// may hold onto for as long as the entry exists (entries are never
// removed, matching the teacher's git worktree map in
// session/git/worktree_cache.go, which is also process-lifetime).
package repolock

import (
	"path/filepath"
	"sync"
)

// Map is a process-wide path -> *sync.Mutex table, canonicalised on
// absolute path so "./repo" and "/abs/repo" resolve to the same lock.
type Map struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns an empty Map.
func New() *Map {
	return &Map{locks: make(map[string]*sync.Mutex)}
}

func canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return filepath.Clean(abs)
}

// lockFor returns the mutex for path, creating it if this is the first
// lookup for that repository.
func (m *Map) lockFor(path string) *sync.Mutex {
	key := canonical(path)

	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	m.mu.Unlock()

	return l
}

// Lock blocks until the caller holds the exclusive lock for path.
func (m *Map) Lock(path string) {
	m.lockFor(path).Lock()
}

// Unlock releases the lock for path. It panics if the lock is not held;
// unlike sync.Mutex.Unlock, whose misuse is a fatal runtime error, this
// panic can be recovered.
func (m *Map) Unlock(path string) {
	l := m.lockFor(path)
	if l.TryLock() {
		l.Unlock()
		panic("repolock: unlock of unlocked repository lock: " + path)
	}
	l.Unlock()
}

// TryLock attempts to acquire path's lock without blocking, reporting
// whether it succeeded. Used by the scheduler to skip a repo that is
// currently locked rather than queue behind it (spec.md §4.7 step 2).
func (m *Map) TryLock(path string) bool {
	return m.lockFor(path).TryLock()
}

// WithLock runs fn while holding path's lock.
func (m *Map) WithLock(path string, fn func()) {
	m.Lock(path)
	defer m.Unlock(path)
	fn()
}

// Size returns the number of distinct repositories tracked so far
// (diagnostic / test helper).
func (m *Map) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
