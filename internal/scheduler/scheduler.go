// Package scheduler implements the pipeline's outer loop (spec.md §4.7):
// it ticks on a configurable interval, picks at most one ready task per
// tick while under the parallel-agent cap, performs a seed scan when idle,
// and spawns a worker goroutine for each task that needs one. The atomic
// counters and status-string idiom follow the teacher's
// concurrency/worker_pool.go.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pipeguild/pipeline/internal/logging"
	"github.com/pipeguild/pipeline/internal/repolock"
	"github.com/pipeguild/pipeline/internal/store"
	"github.com/pipeguild/pipeline/internal/supervisor"
	"github.com/pipeguild/pipeline/internal/taskmodel"
)

// SeedScanner performs an external seed scan in the given mode and returns
// any task proposals it found. It is supplied by the caller so the
// scheduler stays free of any one provider's API shape.
type SeedScanner interface {
	Scan(ctx context.Context, mode SeedMode) ([]taskmodel.Task, error)
}

// WorkerFunc runs exactly one phase transition for task. It is invoked on
// its own goroutine by spawn_agent and must itself observe Scheduler's
// Running() flag at safe points.
type WorkerFunc func(task taskmodel.Task)

// Config bundles the scheduler's tunables, sourced from
// internal/pipelineconfig.
type Config struct {
	TickInterval        time.Duration
	MaxParallelAgents   int
	SeedCooldown        time.Duration
	InflightFingerprint func(task taskmodel.Task) string
}

// Scheduler is the single long-lived loop described in spec.md §4.7/§5.
type Scheduler struct {
	cfg        Config
	store      store.TaskRepository
	repos      *repolock.Map
	supervisor *supervisor.Supervisor
	worker     WorkerFunc
	scanner    SeedScanner

	running          atomic.Bool
	activeAgentCount atomic.Int32

	inflightMu sync.Mutex
	inflight   map[string]bool

	seedMu       sync.Mutex
	seedMode     SeedMode
	lastSeedScan time.Time
}

// New constructs a Scheduler. worker is invoked on its own goroutine once
// per spawned task, with its handle tracked by super for spec.md §4.9's
// join/deinit sequence; scanner may be nil, in which case the idle seed
// scan is skipped entirely.
func New(cfg Config, repo store.TaskRepository, repos *repolock.Map, super *supervisor.Supervisor, worker WorkerFunc, scanner SeedScanner) *Scheduler {
	s := &Scheduler{
		cfg:        cfg,
		store:      repo,
		repos:      repos,
		supervisor: super,
		worker:     worker,
		scanner:    scanner,
		inflight:   make(map[string]bool),
		seedMode:   SeedModeDocumentationGaps, // so the first NextSeedMode call lands on StaleIssues
	}
	s.running.Store(true)
	return s
}

// Running reports whether stop() has been called yet.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Stop flips the running flag false. It does not block; callers join the
// scheduler's own goroutine and then call the supervisor's JoinAgents
// separately, matching the documented shutdown order in spec.md §5.
func (s *Scheduler) Stop() {
	s.running.Store(false)
}

// Run blocks, ticking every cfg.TickInterval, until ctx is cancelled or
// Stop is called.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		if !s.Running() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scheduling decision, per spec.md §4.7 steps 1-4.
func (s *Scheduler) Tick(ctx context.Context) {
	if int(s.activeAgentCount.Load()) >= s.cfg.MaxParallelAgents {
		return
	}

	task, ok := s.selectTask(ctx)
	if ok {
		s.spawnAgent(task)
		return
	}

	s.maybeSeedScan(ctx)
}

// selectTask returns the oldest active task whose repository isn't
// currently locked and that isn't already inflight. ListActiveTasks
// already returns tasks oldest-first.
func (s *Scheduler) selectTask(ctx context.Context) (taskmodel.Task, bool) {
	candidates, err := s.store.ListActiveTasks(ctx)
	if err != nil {
		logging.ErrorLog.Printf("scheduler: list active tasks: %v", err)
		return taskmodel.Task{}, false
	}

	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()

	for _, t := range candidates {
		fp := s.fingerprint(t)
		if s.inflight[fp] {
			continue
		}
		if s.repos.TryLock(t.RepoPath) {
			// Release immediately; the worker re-acquires it for the
			// duration of its phase. This call only probes whether the
			// repo is currently free.
			s.repos.Unlock(t.RepoPath)
			s.inflight[fp] = true
			return t, true
		}
	}
	return taskmodel.Task{}, false
}

func (s *Scheduler) fingerprint(t taskmodel.Task) string {
	if s.cfg.InflightFingerprint != nil {
		return s.cfg.InflightFingerprint(t)
	}
	return t.RepoPath
}

// spawnAgent implements spec.md §4.7 step 4: increment active_agent_count,
// keep the task marked inflight (selectTask already inserted it), spawn
// the worker goroutine, and record its handle under the supervisor's lock
// so spec.md §4.9's join_agents() can wait on it at shutdown.
func (s *Scheduler) spawnAgent(task taskmodel.Task) {
	s.activeAgentCount.Add(1)

	done := make(chan struct{})
	var handle int64
	if s.supervisor != nil {
		handle = s.supervisor.Track(supervisor.ChanHandle(done))
	}

	go func() {
		defer func() {
			s.inflightMu.Lock()
			delete(s.inflight, s.fingerprint(task))
			s.inflightMu.Unlock()

			s.activeAgentCount.Add(-1)

			if s.supervisor != nil {
				s.supervisor.Untrack(handle)
			}

			close(done)
		}()
		s.worker(task)
	}()
}

// ActiveAgentCount returns the current snapshot of in-flight workers.
func (s *Scheduler) ActiveAgentCount() int {
	return int(s.activeAgentCount.Load())
}

// maybeSeedScan runs a seed scan in the next rotation mode if the cooldown
// has elapsed and a scanner was configured.
func (s *Scheduler) maybeSeedScan(ctx context.Context) {
	if s.scanner == nil {
		return
	}

	s.seedMu.Lock()
	if time.Since(s.lastSeedScan) < s.cfg.SeedCooldown {
		s.seedMu.Unlock()
		return
	}
	s.seedMode = NextSeedMode(s.seedMode)
	mode := s.seedMode
	s.lastSeedScan = time.Now()
	s.seedMu.Unlock()

	proposals, err := s.scanner.Scan(ctx, mode)
	if err != nil {
		logging.WarningLog.Printf("scheduler: seed scan (%s) failed: %v", mode, err)
		return
	}
	for _, p := range proposals {
		if _, err := s.store.CreateTask(ctx, p.Title, p.Description, p.RepoPath, "seed-scan", ""); err != nil {
			logging.ErrorLog.Printf("scheduler: create seeded task: %v", err)
		}
	}
}
