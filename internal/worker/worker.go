// Package worker implements spec.md §4.8: a Worker drives exactly one
// phase transition for one task — acquire the repo mutex, materialise a
// worktree on the task's branch, invoke the Agent Invoker, interpret the
// result, persist the new state, optionally run the test command, and
// release the repo mutex. Cleanup order matters: the repo mutex is always
// released before the scheduler's active_agent_count decrement fires, so
// shutdown only sees "no live work" once every repo is actually free.
package worker

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pipeguild/pipeline/internal/agent"
	"github.com/pipeguild/pipeline/internal/errutil"
	"github.com/pipeguild/pipeline/internal/logging"
	"github.com/pipeguild/pipeline/internal/procrun"
	"github.com/pipeguild/pipeline/internal/repolock"
	"github.com/pipeguild/pipeline/internal/store"
	"github.com/pipeguild/pipeline/internal/taskmodel"
	"github.com/pipeguild/pipeline/internal/vcsdriver"
)

// AttemptCap is the default attempt_count ceiling spec.md §4.6 uses to
// force a transition to failed regardless of outcome.
const AttemptCap = 5

// Phase describes what a Worker does for one status: which persona runs
// and how to build its prompt. How a successful agent run is interpreted
// (linear advance, fix applied, or the impl-specific merge/test logic) is
// decided by Run from the task's status, not by the Phase.
type Phase struct {
	Persona    agent.Persona
	BuildPrompt func(task taskmodel.Task) string
}

// Worktrees resolves the worktree directory that should host task's agent
// run, given the repository root.
type Worktrees interface {
	PathFor(task taskmodel.Task) string
}

// AgentRunner is the subset of internal/agent's API the worker needs,
// narrowed to an interface so tests can substitute a fake.
type AgentRunner interface {
	Run(cfg agent.Config, prompt string, streamCB procrun.StreamCallback) (agent.Output, error)
}

type liveAgentRunner struct{}

func (liveAgentRunner) Run(cfg agent.Config, prompt string, streamCB procrun.StreamCallback) (agent.Output, error) {
	return agent.Run(cfg, prompt, streamCB)
}

// Worker runs phase transitions for tasks against one configured backend.
type Worker struct {
	Store       store.TaskRepository
	Repos       *repolock.Map
	AgentCfg    func(task taskmodel.Task) agent.Config
	Runner      AgentRunner
	Worktrees   Worktrees
	Phases      map[taskmodel.Status]Phase
	TestCommand func(task taskmodel.Task) (string, bool)
	AutoMerge   func(task taskmodel.Task) bool
	AttemptCap  int
	StreamCB    procrun.StreamCallback
}

// New returns a Worker wired with the default manager/qa/worker phase
// table (spec.md §4.6's backlog/spec/qa edges) and the live agent runner.
func New(st store.TaskRepository, repos *repolock.Map, agentCfg func(taskmodel.Task) agent.Config, worktrees Worktrees) *Worker {
	return &Worker{
		Store:      st,
		Repos:      repos,
		AgentCfg:   agentCfg,
		Runner:     liveAgentRunner{},
		Worktrees:  worktrees,
		Phases:     defaultPhases(),
		AttemptCap: AttemptCap,
	}
}

func defaultPhases() map[taskmodel.Status]Phase {
	return map[taskmodel.Status]Phase{
		taskmodel.StatusBacklog: {
			Persona: agent.PersonaManager,
			BuildPrompt: func(t taskmodel.Task) string {
				return fmt.Sprintf("Write a specification for: %s\n\n%s", t.Title, t.Description)
			},
		},
		taskmodel.StatusSpec: {
			Persona: agent.PersonaQA,
			BuildPrompt: func(t taskmodel.Task) string {
				return fmt.Sprintf("Write tests for task %q against the spec already committed.", t.Title)
			},
		},
		taskmodel.StatusQA: {
			Persona: agent.PersonaWorker,
			BuildPrompt: func(t taskmodel.Task) string {
				return fmt.Sprintf("Implement task %q so the committed tests pass.", t.Title)
			},
		},
		taskmodel.StatusImpl: {
			Persona: agent.PersonaWorker,
			BuildPrompt: func(t taskmodel.Task) string {
				return fmt.Sprintf("Finish implementation for task %q; run the test suite before reporting done.", t.Title)
			},
		},
		taskmodel.StatusRetry: {
			Persona: agent.PersonaWorker,
			BuildPrompt: func(t taskmodel.Task) string {
				return fmt.Sprintf("The previous attempt at task %q failed its tests:\n%s\nFix it.", t.Title, t.LastError)
			},
		},
		taskmodel.StatusRebase: {
			Persona: agent.PersonaWorker,
			BuildPrompt: func(t taskmodel.Task) string {
				return fmt.Sprintf("Task %q has a merge conflict on branch %s. Rebase and resolve it.", t.Title, t.Branch)
			},
		},
	}
}

// Run executes exactly one phase transition for task. Every return path —
// success, persistence error, agent error — goes through the same defer
// chain so the repo mutex is released before this call returns, regardless
// of outcome.
func (w *Worker) Run(ctx context.Context, task taskmodel.Task) {
	phase, ok := w.Phases[task.Status]
	if !ok {
		logging.WarningLog.Printf("worker: no phase defined for task %d in status %s", task.ID, task.Status)
		return
	}

	w.Repos.Lock(task.RepoPath)
	defer w.Repos.Unlock(task.RepoPath)

	worktreePath := task.RepoPath
	if w.Worktrees != nil {
		worktreePath = w.Worktrees.PathFor(task)
		if err := w.ensureWorktree(task, worktreePath); err != nil {
			w.fail(ctx, task, fmt.Sprintf("worktree setup: %v", err))
			return
		}
	}

	cfg := w.AgentCfg(task)
	cfg.SessionDir = worktreePath
	prompt := phase.BuildPrompt(task)
	cfg.Persona = phase.Persona

	out, err := w.Runner.Run(cfg, prompt, w.StreamCB)
	if err != nil {
		w.fail(ctx, task, fmt.Sprintf("agent invocation: %v", err))
		return
	}
	if out.HasNewSession {
		folder := filepath.Clean(worktreePath)
		if serr := w.Store.SetSession(ctx, folder, string(phase.Persona), out.NewSessionID); serr != nil {
			logging.WarningLog.Printf("worker: persist session for task %d: %v", task.ID, serr)
		}
	}

	if out.TimedOut {
		deadline := time.Duration(cfg.TimeoutSeconds) * time.Second
		w.applyOutcome(ctx, task, taskmodel.OutcomeTestsFailed, procrun.TimeoutMessage(deadline))
		return
	}
	if out.ExitCode != 0 {
		w.applyOutcome(ctx, task, taskmodel.OutcomeTestsFailed, fmt.Sprintf("agent exited %d", out.ExitCode))
		return
	}

	switch task.Status {
	case taskmodel.StatusImpl:
		w.finishImpl(ctx, task, worktreePath)
	case taskmodel.StatusRetry, taskmodel.StatusRebase:
		// A successful fix attempt returns the task to impl, distinct from
		// the plain linear advance backlog/spec/qa use.
		w.applyOutcome(ctx, task, taskmodel.OutcomeFixApplied, "")
	default:
		w.applyOutcome(ctx, task, taskmodel.OutcomeAgentSucceeded, "")
	}
}

// ensureWorktree creates a new worktree on task's branch if it doesn't
// already exist, or reuses the existing one otherwise. Worktree creation
// happens under the repo mutex, per spec.md §5's ordering guarantee.
func (w *Worker) ensureWorktree(task taskmodel.Task, worktreePath string) error {
	driver := vcsdriver.New(task.RepoPath)
	branch := task.Branch
	if branch == "" {
		branch = fmt.Sprintf("pipeline/task-%d", task.ID)
	}

	if driver.BranchExists(branch) {
		res := driver.WorktreeAddExistingBranch(worktreePath, branch)
		if !res.Ok() && !strings.Contains(res.Stderr, "already exists") {
			return fmt.Errorf("worktree add existing branch: %s", res.Stderr)
		}
		return nil
	}

	res := driver.WorktreeAddNewBranch(worktreePath, branch, "HEAD")
	if !res.Ok() {
		return fmt.Errorf("worktree add new branch: %s", res.Stderr)
	}
	return nil
}

// finishImpl applies the impl-phase-specific logic: run the test command
// if configured, then merge, request a rebase, or retry depending on the
// outcome.
func (w *Worker) finishImpl(ctx context.Context, task taskmodel.Task, worktreePath string) {
	if cmd, ok := w.testCommandFor(task); ok {
		if !w.runTests(worktreePath, cmd) {
			w.applyOutcome(ctx, task, taskmodel.OutcomeTestsFailed, "test command failed")
			return
		}
	}

	if w.AutoMerge == nil || !w.AutoMerge(task) {
		w.applyOutcome(ctx, task, taskmodel.OutcomeAgentSucceeded, "")
		return
	}

	driver := vcsdriver.New(task.RepoPath)
	branch := task.Branch
	if branch == "" {
		branch = fmt.Sprintf("pipeline/task-%d", task.ID)
	}

	res := driver.MergeNoFF(branch)
	if res.Ok() {
		w.applyOutcome(ctx, task, taskmodel.OutcomeMergedClean, "")
		return
	}

	mergeErr := fmt.Errorf("merge --no-ff %s: %s", branch, res.Stderr)
	var abortErr error
	if abortRes := driver.MergeAbort(); !abortRes.Ok() {
		abortErr = fmt.Errorf("merge --abort: %s", abortRes.Stderr)
	}
	w.applyOutcome(ctx, task, taskmodel.OutcomeMergeConflict, errutil.Join(mergeErr, abortErr).Error())
}

func (w *Worker) testCommandFor(task taskmodel.Task) (string, bool) {
	if w.TestCommand == nil {
		return "", false
	}
	return w.TestCommand(task)
}

// runTests runs cmd inside dir and reports whether it exited zero.
func (w *Worker) runTests(dir, cmd string) bool {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return true
	}
	c := exec.Command(fields[0], fields[1:]...)
	c.Dir = dir
	result, err := procrun.CollectOutput(c, 1<<20, nil)
	if err != nil {
		logging.WarningLog.Printf("worker: test command failed to start: %v", err)
		return false
	}
	return result.ExitCode == 0
}

// applyOutcome computes the next status via taskmodel.Next and persists
// it, routing to FailTask when the transition lands on failed.
func (w *Worker) applyOutcome(ctx context.Context, task taskmodel.Task, outcome taskmodel.Outcome, detail string) {
	attemptCap := w.AttemptCap
	if attemptCap <= 0 {
		attemptCap = AttemptCap
	}

	next, err := taskmodel.Next(task.Status, outcome, task.AttemptCount, attemptCap)
	if err != nil {
		logging.ErrorLog.Printf("worker: task %d: %v", task.ID, err)
		w.fail(ctx, task, err.Error())
		return
	}

	if next == taskmodel.StatusFailed {
		w.fail(ctx, task, detail)
		return
	}

	if next == taskmodel.StatusRetry || next == taskmodel.StatusRebase {
		if err := w.Store.RetryTask(ctx, task.ID); err != nil {
			logging.ErrorLog.Printf("worker: retry task %d: %v", task.ID, err)
		}
	}

	if err := w.Store.UpdateStatus(ctx, task.ID, next); err != nil {
		logging.ErrorLog.Printf("worker: update status task %d: %v", task.ID, err)
	}
}

func (w *Worker) fail(ctx context.Context, task taskmodel.Task, detail string) {
	if err := w.Store.FailTask(ctx, task.ID, detail); err != nil {
		logging.ErrorLog.Printf("worker: fail task %d: %v", task.ID, err)
	}
}
