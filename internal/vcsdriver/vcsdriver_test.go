package vcsdriver

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRepo creates a throwaway git repository with one commit on main,
// returning its root path.
func newTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v failed: %s", args, out)
	}

	run("init", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	run("add", "-A")
	run("commit", "-m", "initial commit")

	return dir
}

func TestCheckoutAndCurrentBranch(t *testing.T) {
	dir := newTestRepo(t)
	d := New(dir)

	res := d.BranchCreateFrom("feature", "main")
	require.True(t, res.Ok(), "stderr: %s", res.Stderr)

	res = d.Checkout("feature")
	require.True(t, res.Ok(), "stderr: %s", res.Stderr)

	branch, res := d.CurrentBranch()
	require.True(t, res.Ok())
	assert.Equal(t, "feature", branch)
}

func TestBranchExistsReflectsRealState(t *testing.T) {
	dir := newTestRepo(t)
	d := New(dir)

	assert.False(t, d.BranchExists("does-not-exist"))

	require.True(t, d.BranchCreateFrom("exists-now", "main").Ok())
	assert.True(t, d.BranchExists("exists-now"))
}

func TestIsCleanReflectsWorkingTreeState(t *testing.T) {
	dir := newTestRepo(t)
	d := New(dir)

	assert.True(t, d.IsClean())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "dirty.txt"), []byte("x"), 0o644))
	assert.False(t, d.IsClean())
}

func TestWorktreeAddNewBranchCreatesUsableWorktree(t *testing.T) {
	dir := newTestRepo(t)
	d := New(dir)

	worktreePath := filepath.Join(t.TempDir(), "wt")
	res := d.WorktreeAddNewBranch(worktreePath, "wt-branch", "main")
	require.True(t, res.Ok(), "stderr: %s", res.Stderr)

	assert.DirExists(t, worktreePath)
	assert.True(t, d.BranchExists("wt-branch"))

	wtDriver := InDir(worktreePath)
	branch, res := wtDriver.CurrentBranch()
	require.True(t, res.Ok())
	assert.Equal(t, "wt-branch", branch)
}

func TestWorktreeAddExistingBranchChecksOutBranch(t *testing.T) {
	dir := newTestRepo(t)
	d := New(dir)

	require.True(t, d.BranchCreateFrom("shared", "main").Ok())

	worktreePath := filepath.Join(t.TempDir(), "wt2")
	res := d.WorktreeAddExistingBranch(worktreePath, "shared")
	require.True(t, res.Ok(), "stderr: %s", res.Stderr)

	wtDriver := InDir(worktreePath)
	branch, res := wtDriver.CurrentBranch()
	require.True(t, res.Ok())
	assert.Equal(t, "shared", branch)
}

func TestMergeNoFFAlwaysCreatesMergeCommit(t *testing.T) {
	dir := newTestRepo(t)
	d := New(dir)

	worktreePath := filepath.Join(t.TempDir(), "wt-merge")
	require.True(t, d.WorktreeAddNewBranch(worktreePath, "feature-merge", "main").Ok())

	require.NoError(t, os.WriteFile(filepath.Join(worktreePath, "feature.txt"), []byte("new"), 0o644))
	wtDriver := InDir(worktreePath)
	require.True(t, wtDriver.AddAll().Ok())
	require.True(t, wtDriver.CommitMessage("add feature file").Ok())

	res := d.MergeNoFF("feature-merge")
	require.True(t, res.Ok(), "stderr: %s", res.Stderr)

	logRes := d.LogOneline(1)
	require.True(t, logRes.Ok())
	assert.Contains(t, logRes.Stdout, "Merge")
}

func TestMergeAbortRecoversFromConflict(t *testing.T) {
	dir := newTestRepo(t)
	d := New(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("main change\n"), 0o644))
	require.True(t, d.AddAll().Ok())
	require.True(t, d.CommitMessage("change on main").Ok())

	worktreePath := filepath.Join(t.TempDir(), "wt-conflict")
	require.True(t, d.WorktreeAddNewBranch(worktreePath, "conflict-branch", "HEAD~1").Ok())
	require.NoError(t, os.WriteFile(filepath.Join(worktreePath, "README.md"), []byte("conflicting change\n"), 0o644))
	wtDriver := InDir(worktreePath)
	require.True(t, wtDriver.AddAll().Ok())
	require.True(t, wtDriver.CommitMessage("conflicting change").Ok())

	res := d.MergeNoFF("conflict-branch")
	assert.False(t, res.Ok(), "a genuine content conflict must fail the merge")

	abortRes := d.MergeAbort()
	assert.True(t, abortRes.Ok())
	assert.True(t, d.IsClean(), "merge --abort must leave the tree clean")
}

func TestDiffNameOnlyReportsChangedFiles(t *testing.T) {
	dir := newTestRepo(t)
	d := New(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("x"), 0o644))
	require.True(t, d.AddAll().Ok())

	res := d.DiffNameOnly("--cached")
	require.True(t, res.Ok())
	assert.Contains(t, res.Stdout, "new.txt")
}
