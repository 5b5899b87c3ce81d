// Package pipelineconfig loads the pipeline's configuration from a
// line-oriented KEY=VALUE stream (spec.md §6), the same "parse then fall
// back to defaults on anything malformed" posture as the teacher's
// config.LoadConfig, but sourced from an env-style file via
// github.com/joho/godotenv instead of JSON.
package pipelineconfig

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/pipeguild/pipeline/internal/logging"
	"github.com/pipeguild/pipeline/internal/taskmodel"
)

const (
	DefaultTestCmd         = "make test"
	DefaultMaxBacklog      = 5
	DefaultTickSeconds     = 30
	DefaultSeedCooldownS   = 3600
	DefaultContainerMemMB  = 1024
	DefaultWebPort         = 3131
	DefaultAutoMerge       = true
	DefaultMaxParallel     = 4
)

// Config is the pipeline's resolved runtime configuration.
type Config struct {
	PipelineRepo         string
	PipelineTestCmd      string
	PipelineAutoMerge    bool
	PipelineMaxBacklog   uint32
	PipelineTickSeconds  uint64
	SeedCooldownSeconds  int64
	ContainerMemoryMB    uint64
	WebPort              uint16
	ContinuousMode       bool
	WhatsAppEnabled      bool
	DiscordEnabled       bool
	WatchedRepos         []taskmodel.WatchedRepo
}

// Load parses r as a KEY=VALUE stream and builds a Config, falling back
// to the process environment for any key absent from r, and to the
// documented default for any key absent from both.
func Load(r io.Reader) (*Config, error) {
	values, err := godotenv.Parse(r)
	if err != nil {
		return nil, err
	}
	return fromValues(values), nil
}

// LoadFile is a convenience wrapper around Load for a path on disk. A
// missing file is not an error: it yields the all-defaults Config, the
// same way a missing key does.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fromValues(nil), nil
		}
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

func lookup(values map[string]string, key string) (string, bool) {
	if v, ok := values[key]; ok {
		return v, true
	}
	if v, ok := os.LookupEnv(key); ok {
		return v, true
	}
	return "", false
}

func fromValues(values map[string]string) *Config {
	cfg := &Config{
		PipelineTestCmd:     DefaultTestCmd,
		PipelineAutoMerge:   DefaultAutoMerge,
		PipelineMaxBacklog:  DefaultMaxBacklog,
		PipelineTickSeconds: DefaultTickSeconds,
		SeedCooldownSeconds: DefaultSeedCooldownS,
		ContainerMemoryMB:   DefaultContainerMemMB,
		WebPort:             DefaultWebPort,
	}

	if v, ok := lookup(values, "PIPELINE_REPO"); ok {
		cfg.PipelineRepo = v
	}
	if v, ok := lookup(values, "PIPELINE_TEST_CMD"); ok && v != "" {
		cfg.PipelineTestCmd = v
	}
	if v, ok := lookup(values, "PIPELINE_AUTO_MERGE"); ok {
		// Only the exact string "false" disables; anything else (including
		// garbage) leaves auto-merge enabled, per spec.
		cfg.PipelineAutoMerge = v != "false"
	}
	if v, ok := lookup(values, "PIPELINE_MAX_BACKLOG"); ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.PipelineMaxBacklog = uint32(n)
		} else {
			logging.WarningLog.Printf("invalid PIPELINE_MAX_BACKLOG %q, using default", v)
		}
	}
	if v, ok := lookup(values, "PIPELINE_TICK_S"); ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.PipelineTickSeconds = n
		} else {
			logging.WarningLog.Printf("invalid PIPELINE_TICK_S %q, using default", v)
		}
	}
	if v, ok := lookup(values, "PIPELINE_SEED_COOLDOWN_S"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.SeedCooldownSeconds = n
		} else {
			logging.WarningLog.Printf("invalid PIPELINE_SEED_COOLDOWN_S %q, using default", v)
		}
	}
	if v, ok := lookup(values, "CONTAINER_MEMORY_MB"); ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.ContainerMemoryMB = n
		} else {
			logging.WarningLog.Printf("invalid CONTAINER_MEMORY_MB %q, using default", v)
		}
	}
	if v, ok := lookup(values, "WEB_PORT"); ok {
		if n, err := strconv.ParseUint(v, 10, 16); err == nil {
			cfg.WebPort = uint16(n)
		} else {
			logging.WarningLog.Printf("invalid WEB_PORT %q, using default", v)
		}
	}
	if v, ok := lookup(values, "CONTINUOUS_MODE"); ok {
		cfg.ContinuousMode = v == "true"
	}
	if v, ok := lookup(values, "WHATSAPP_ENABLED"); ok {
		cfg.WhatsAppEnabled = v == "true"
	}
	if v, ok := lookup(values, "DISCORD_ENABLED"); ok {
		cfg.DiscordEnabled = v == "true"
	}

	if cfg.PipelineRepo != "" {
		cfg.WatchedRepos = append(cfg.WatchedRepos, taskmodel.WatchedRepo{
			Path:      cfg.PipelineRepo,
			IsSelf:    true,
			TestCmd:   cfg.PipelineTestCmd,
			AutoMerge: cfg.PipelineAutoMerge,
		})
	}

	if v, ok := lookup(values, "WATCHED_REPOS"); ok && v != "" {
		extra, skipped := parseWatchedRepos(v, cfg.PipelineRepo)
		cfg.WatchedRepos = append(cfg.WatchedRepos, extra...)
		for _, s := range skipped {
			logging.InfoLog.Printf("skipping WATCHED_REPOS entry %q: duplicates PIPELINE_REPO", s)
		}
	}

	return cfg
}

// parseWatchedRepos parses the "path:cmd[!manual] [| path:cmd[!manual]]*"
// grammar from spec.md §6. Entries whose path equals primaryRepo are
// silently skipped (their path is returned in skipped for diagnostics
// only; callers are not required to surface it).
func parseWatchedRepos(raw, primaryRepo string) (repos []taskmodel.WatchedRepo, skipped []string) {
	for _, entry := range strings.Split(raw, "|") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		path, rest, ok := strings.Cut(entry, ":")
		if !ok {
			continue
		}
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if path == primaryRepo {
			skipped = append(skipped, path)
			continue
		}

		cmd := rest
		autoMerge := true
		if idx := strings.Index(cmd, "!manual"); idx >= 0 {
			autoMerge = false
			cmd = cmd[:idx] + cmd[idx+len("!manual"):]
		}
		cmd = strings.TrimSpace(cmd)
		if cmd == "" {
			cmd = DefaultTestCmd
		}

		repos = append(repos, taskmodel.WatchedRepo{
			Path:      path,
			IsSelf:    false,
			TestCmd:   cmd,
			AutoMerge: autoMerge,
		})
	}
	return repos, skipped
}
