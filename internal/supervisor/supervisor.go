// Package supervisor implements spec.md §4.9: ownership of the pipeline's
// in-flight worker handles, a cooperative stop flag, and a join sequence
// that never blocks while holding the handle-collection mutex. The
// snapshot-then-join-outside-the-lock pattern mirrors the teacher's
// TmuxSession cleanup (session/tmux/tmux.go), which the same way defers
// the actual process wait until after releasing its own bookkeeping lock.
package supervisor

import (
	"sync"
	"sync/atomic"
)

// Handle is anything a Supervisor can wait on to know a worker finished.
type Handle interface {
	Wait()
}

type chanHandle struct {
	done <-chan struct{}
}

func (h chanHandle) Wait() { <-h.done }

// ChanHandle wraps a "done" channel (closed on completion) as a Handle.
func ChanHandle(done <-chan struct{}) Handle {
	return chanHandle{done: done}
}

// Supervisor owns the collection of worker handles and a single
// process-wide running flag.
type Supervisor struct {
	running atomic.Bool

	mu      sync.Mutex
	threads map[int64]Handle
	nextID  int64

	deinitOnce sync.Once
	onDeinit   func()
}

// New returns a running Supervisor. onDeinit, if non-nil, is invoked
// exactly once by Deinit, after every handle has joined, to release
// whatever shared resources the pipeline owns (database handle,
// repository mutex map, in-flight sets).
func New(onDeinit func()) *Supervisor {
	s := &Supervisor{
		threads:  make(map[int64]Handle),
		onDeinit: onDeinit,
	}
	s.running.Store(true)
	return s
}

// Running reports whether Stop has been called yet.
func (s *Supervisor) Running() bool {
	return s.running.Load()
}

// Stop sets the running flag false. It does not wait for anything.
func (s *Supervisor) Stop() {
	s.running.Store(false)
}

// Track registers handle under the supervisor's lock and returns an id
// that can later be used to untrack it, mirroring the scheduler's own
// spawn_agent bookkeeping (spec.md §4.7 step 4).
func (s *Supervisor) Track(h Handle) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.threads[id] = h
	return id
}

// Untrack removes a handle before it would otherwise be reaped by
// JoinAgents, for a worker that wants to announce its own completion
// eagerly.
func (s *Supervisor) Untrack(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, id)
}

// JoinAgents drains the handle collection into a local snapshot under the
// lock, then waits on each handle outside the lock so a blocking wait
// never holds up a concurrent Track/Untrack call. The collection is left
// empty, so a second call is a no-op.
func (s *Supervisor) JoinAgents() {
	s.mu.Lock()
	snapshot := make([]Handle, 0, len(s.threads))
	for id, h := range s.threads {
		snapshot = append(snapshot, h)
		delete(s.threads, id)
	}
	s.mu.Unlock()

	for _, h := range snapshot {
		h.Wait()
	}
}

// Deinit must be safe to call after Stop+JoinAgents. It runs the
// configured cleanup exactly once.
func (s *Supervisor) Deinit() {
	s.deinitOnce.Do(func() {
		if s.onDeinit != nil {
			s.onDeinit()
		}
	})
}

// Count reports how many handles are currently tracked (diagnostic/test
// helper).
func (s *Supervisor) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.threads)
}
