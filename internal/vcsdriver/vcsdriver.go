// Package vcsdriver implements the VCS Driver façade from spec.md §4.3: a
// thin, synchronous, command-oriented wrapper over the git binary. Every
// mutating operation returns an ExecResult rather than an error — a
// non-zero exit is a normal outcome the caller inspects, never a Go
// error — following the teacher's session/vcs/vcs.go runGitCommand
// pattern exactly. Current-branch and branch-existence inspection reuse
// go-git directly, the same split the teacher makes between go-git for
// repository introspection and shelled-out git for worktree/branch
// mutation; the clean check runs `git status --porcelain` via the binary.
package vcsdriver

import (
	"os/exec"
	"strconv"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// ExecResult is the uniform shape every driver operation returns.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Ok reports whether the operation exited zero.
func (r ExecResult) Ok() bool { return r.ExitCode == 0 }

// Driver runs git subprocesses rooted at a fixed repository path.
type Driver struct {
	RepoRoot string
}

// New returns a Driver pinned to repoRoot.
func New(repoRoot string) *Driver {
	return &Driver{RepoRoot: repoRoot}
}

func (d *Driver) run(args ...string) ExecResult {
	cmd := exec.Command("git", args...)
	cmd.Dir = d.RepoRoot

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			// Failed to even start the process (git missing, bad Dir, ...).
			// This still isn't a driver error per spec — it's reported as a
			// nonzero, non-specific exit so the caller's retry/fail logic
			// still applies uniformly.
			exitCode = -1
		}
	}

	return ExecResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitCode}
}

// InDir returns a Driver rooted at path, useful for operating inside a
// worktree once WorktreeAddNewBranch/WorktreeAddExistingBranch has
// created it alongside the main repository.
func InDir(path string) *Driver {
	return &Driver{RepoRoot: path}
}

// Checkout checks out branch in the repository root.
func (d *Driver) Checkout(branch string) ExecResult {
	return d.run("checkout", branch)
}

// BranchCreateFrom creates branch starting at startPoint (e.g. a commit
// SHA or another branch) without checking it out.
func (d *Driver) BranchCreateFrom(branch, startPoint string) ExecResult {
	return d.run("branch", branch, startPoint)
}

// PullFastForward fast-forwards the current branch from remote/branch.
func (d *Driver) PullFastForward(remote, branch string) ExecResult {
	return d.run("pull", "--ff-only", remote, branch)
}

// AddAll stages every change in the working tree.
func (d *Driver) AddAll() ExecResult {
	return d.run("add", "-A")
}

// CommitMessage commits staged changes with message.
func (d *Driver) CommitMessage(message string) ExecResult {
	return d.run("commit", "-m", message, "--no-verify")
}

// MergeNoFF merges branch into the current branch, always creating a
// merge commit even if a fast-forward were possible, so phase history
// stays legible.
func (d *Driver) MergeNoFF(branch string) ExecResult {
	return d.run("merge", "--no-ff", branch)
}

// MergeAbort aborts an in-progress merge.
func (d *Driver) MergeAbort() ExecResult {
	return d.run("merge", "--abort")
}

// Fetch fetches from remote.
func (d *Driver) Fetch(remote string) ExecResult {
	return d.run("fetch", remote)
}

// RebaseOnto rebases the current branch onto target.
func (d *Driver) RebaseOnto(target string) ExecResult {
	return d.run("rebase", target)
}

// RebaseAbort aborts an in-progress rebase.
func (d *Driver) RebaseAbort() ExecResult {
	return d.run("rebase", "--abort")
}

// Push pushes branch to remote.
func (d *Driver) Push(remote, branch string) ExecResult {
	return d.run("push", remote, branch)
}

// BranchDelete force-deletes a local branch.
func (d *Driver) BranchDelete(branch string) ExecResult {
	return d.run("branch", "-D", branch)
}

// DiffStat returns `git diff --stat` against ref.
func (d *Driver) DiffStat(ref string) ExecResult {
	return d.run("diff", "--stat", ref)
}

// DiffNameOnly returns the list of changed file paths against ref.
func (d *Driver) DiffNameOnly(ref string) ExecResult {
	return d.run("diff", "--name-only", ref)
}

// StatusPorcelain returns `git status --porcelain`.
func (d *Driver) StatusPorcelain() ExecResult {
	return d.run("status", "--porcelain")
}

// IsClean reports the "clean?" predicate spec.md §4.3 derives from
// StatusPorcelain: empty stdout and a zero exit code.
func (d *Driver) IsClean() bool {
	r := d.StatusPorcelain()
	return r.Ok() && strings.TrimSpace(r.Stdout) == ""
}

// LogOneline returns `git log --oneline` for the last n commits (n <= 0
// means unbounded).
func (d *Driver) LogOneline(n int) ExecResult {
	if n > 0 {
		return d.run("log", "--oneline", "-n", strconv.Itoa(n))
	}
	return d.run("log", "--oneline")
}

// CurrentBranch returns the checked-out branch name via go-git, falling
// back to the subprocess form if the repository can't be opened (e.g. a
// bare clone mid-operation).
func (d *Driver) CurrentBranch() (string, ExecResult) {
	repo, err := git.PlainOpen(d.RepoRoot)
	if err == nil {
		head, herr := repo.Head()
		if herr == nil && head.Name().IsBranch() {
			return head.Name().Short(), ExecResult{ExitCode: 0}
		}
	}
	r := d.run("branch", "--show-current")
	return strings.TrimSpace(r.Stdout), r
}

// BranchExists reports whether branch already exists locally, via go-git
// (mirrors the teacher's Setup() branch-existence check in
// session/vcs/vcs.go).
func (d *Driver) BranchExists(branch string) bool {
	repo, err := git.PlainOpen(d.RepoRoot)
	if err != nil {
		return false
	}
	_, err = repo.Reference(plumbing.NewBranchReferenceName(branch), false)
	return err == nil
}

// ResetHard resets the working tree and index to ref, discarding local
// changes.
func (d *Driver) ResetHard(ref string) ExecResult {
	return d.run("reset", "--hard", ref)
}

// Stash stashes the working tree.
func (d *Driver) Stash() ExecResult {
	return d.run("stash")
}

// StashPop pops the most recent stash entry.
func (d *Driver) StashPop() ExecResult {
	return d.run("stash", "pop")
}

// WorktreeAddNewBranch adds a worktree at path on a freshly created
// branch starting at startPoint.
func (d *Driver) WorktreeAddNewBranch(path, branch, startPoint string) ExecResult {
	return d.run("worktree", "add", "-b", branch, path, startPoint)
}

// WorktreeAddExistingBranch adds a worktree at path checking out an
// already-existing branch.
func (d *Driver) WorktreeAddExistingBranch(path, branch string) ExecResult {
	return d.run("worktree", "add", path, branch)
}

// WorktreeRemoveForce force-removes the worktree at path. This does not
// delete the branch; callers needing that call BranchDelete separately,
// matching the spec's distinction between Cleanup (worktree+branch) and
// Remove (worktree only).
func (d *Driver) WorktreeRemoveForce(path string) ExecResult {
	return d.run("worktree", "remove", "--force", path)
}

// WorktreeListPorcelain lists all worktrees in porcelain format.
func (d *Driver) WorktreeListPorcelain() ExecResult {
	return d.run("worktree", "list", "--porcelain")
}

// WorktreePrune prunes stale worktree administrative files.
func (d *Driver) WorktreePrune() ExecResult {
	return d.run("worktree", "prune")
}
