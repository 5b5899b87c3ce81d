package pipelineconfig

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAllDefaultsOnEmptyInput(t *testing.T) {
	cfg, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultTestCmd, cfg.PipelineTestCmd)
	assert.Equal(t, DefaultAutoMerge, cfg.PipelineAutoMerge)
	assert.Equal(t, uint32(DefaultMaxBacklog), cfg.PipelineMaxBacklog)
	assert.Equal(t, uint64(DefaultTickSeconds), cfg.PipelineTickSeconds)
	assert.Equal(t, int64(DefaultSeedCooldownS), cfg.SeedCooldownSeconds)
	assert.Equal(t, uint64(DefaultContainerMemMB), cfg.ContainerMemoryMB)
	assert.Equal(t, uint16(DefaultWebPort), cfg.WebPort)
	assert.Empty(t, cfg.WatchedRepos)
}

func TestLoadFileMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadFile("/nonexistent/path/that/should/not/exist.env")
	require.NoError(t, err)
	assert.Equal(t, DefaultTestCmd, cfg.PipelineTestCmd)
}

func TestPipelineAutoMergeOnlyExactFalseDisables(t *testing.T) {
	cfg, err := Load(strings.NewReader("PIPELINE_AUTO_MERGE=false\n"))
	require.NoError(t, err)
	assert.False(t, cfg.PipelineAutoMerge)

	cfg, err = Load(strings.NewReader("PIPELINE_AUTO_MERGE=False\n"))
	require.NoError(t, err)
	assert.True(t, cfg.PipelineAutoMerge, "only the exact lowercase string \"false\" disables auto-merge")

	cfg, err = Load(strings.NewReader("PIPELINE_AUTO_MERGE=garbage\n"))
	require.NoError(t, err)
	assert.True(t, cfg.PipelineAutoMerge)
}

func TestInvalidNumericValueFallsBackToDefault(t *testing.T) {
	cfg, err := Load(strings.NewReader("PIPELINE_MAX_BACKLOG=notanumber\n"))
	require.NoError(t, err)
	assert.Equal(t, uint32(DefaultMaxBacklog), cfg.PipelineMaxBacklog)

	cfg, err = Load(strings.NewReader("PIPELINE_TICK_S=-5\n"))
	require.NoError(t, err)
	assert.Equal(t, uint64(DefaultTickSeconds), cfg.PipelineTickSeconds)

	cfg, err = Load(strings.NewReader("WEB_PORT=99999999\n"))
	require.NoError(t, err)
	assert.Equal(t, uint16(DefaultWebPort), cfg.WebPort)
}

func TestValidNumericValuesOverrideDefaults(t *testing.T) {
	cfg, err := Load(strings.NewReader("PIPELINE_MAX_BACKLOG=10\nPIPELINE_TICK_S=60\nWEB_PORT=8080\n"))
	require.NoError(t, err)
	assert.Equal(t, uint32(10), cfg.PipelineMaxBacklog)
	assert.Equal(t, uint64(60), cfg.PipelineTickSeconds)
	assert.Equal(t, uint16(8080), cfg.WebPort)
}

func TestEmptyTestCmdValueIsIgnoredNotAdopted(t *testing.T) {
	cfg, err := Load(strings.NewReader("PIPELINE_TEST_CMD=\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultTestCmd, cfg.PipelineTestCmd)
}

func TestPipelineRepoBecomesSelfWatchedRepo(t *testing.T) {
	cfg, err := Load(strings.NewReader("PIPELINE_REPO=/repo/main\nPIPELINE_TEST_CMD=go test ./...\n"))
	require.NoError(t, err)
	require.Len(t, cfg.WatchedRepos, 1)
	assert.Equal(t, "/repo/main", cfg.WatchedRepos[0].Path)
	assert.True(t, cfg.WatchedRepos[0].IsSelf)
	assert.Equal(t, "go test ./...", cfg.WatchedRepos[0].TestCmd)
}

func TestWatchedReposGrammarParsesMultipleEntries(t *testing.T) {
	raw := "PIPELINE_REPO=/repo/main\n" +
		`WATCHED_REPOS=/repo/a:make test | /repo/b:npm test!manual | /repo/c:` + "\n"
	cfg, err := Load(strings.NewReader(raw))
	require.NoError(t, err)

	byPath := map[string]int{}
	for i, r := range cfg.WatchedRepos {
		byPath[r.Path] = i
	}
	require.Contains(t, byPath, "/repo/a")
	require.Contains(t, byPath, "/repo/b")
	require.Contains(t, byPath, "/repo/c")

	a := cfg.WatchedRepos[byPath["/repo/a"]]
	assert.Equal(t, "make test", a.TestCmd)
	assert.True(t, a.AutoMerge)
	assert.False(t, a.IsSelf)

	b := cfg.WatchedRepos[byPath["/repo/b"]]
	assert.Equal(t, "npm test", b.TestCmd)
	assert.False(t, b.AutoMerge, "!manual suffix must disable auto-merge")

	c := cfg.WatchedRepos[byPath["/repo/c"]]
	assert.Equal(t, DefaultTestCmd, c.TestCmd, "blank command falls back to the default test command")
	assert.True(t, c.AutoMerge)
}

func TestWatchedReposEntryMatchingPrimaryRepoIsDeduped(t *testing.T) {
	raw := "PIPELINE_REPO=/repo/main\n" +
		"WATCHED_REPOS=/repo/main:make test | /repo/other:make test\n"
	cfg, err := Load(strings.NewReader(raw))
	require.NoError(t, err)

	count := 0
	for _, r := range cfg.WatchedRepos {
		if r.Path == "/repo/main" {
			count++
		}
	}
	assert.Equal(t, 1, count, "the primary repo must appear exactly once, not once as self and again from WATCHED_REPOS")
}

func TestWatchedReposSkipsBlankEntries(t *testing.T) {
	cfg, err := Load(strings.NewReader("WATCHED_REPOS= | /repo/a:make test |  \n"))
	require.NoError(t, err)
	require.Len(t, cfg.WatchedRepos, 1)
	assert.Equal(t, "/repo/a", cfg.WatchedRepos[0].Path)
}

func TestBooleanFlagsRequireExactTrue(t *testing.T) {
	cfg, err := Load(strings.NewReader("CONTINUOUS_MODE=true\nWHATSAPP_ENABLED=yes\nDISCORD_ENABLED=TRUE\n"))
	require.NoError(t, err)
	assert.True(t, cfg.ContinuousMode)
	assert.False(t, cfg.WhatsAppEnabled, "\"yes\" is not \"true\"")
	assert.False(t, cfg.DiscordEnabled, "comparison is case-sensitive")
}

func TestEnvironmentFallsBackWhenFileKeyAbsent(t *testing.T) {
	t.Setenv("PIPELINE_TEST_CMD", "env test cmd")
	cfg, err := Load(strings.NewReader("PIPELINE_REPO=/repo/main\n"))
	require.NoError(t, err)
	assert.Equal(t, "env test cmd", cfg.PipelineTestCmd)
}

func TestFileValueTakesPrecedenceOverEnvironment(t *testing.T) {
	t.Setenv("PIPELINE_TEST_CMD", "env test cmd")
	cfg, err := Load(strings.NewReader("PIPELINE_TEST_CMD=file test cmd\n"))
	require.NoError(t, err)
	assert.Equal(t, "file test cmd", cfg.PipelineTestCmd)
}
