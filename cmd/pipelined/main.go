package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pipeguild/pipeline/internal/agent"
	"github.com/pipeguild/pipeline/internal/logging"
	"github.com/pipeguild/pipeline/internal/pipelineconfig"
	"github.com/pipeguild/pipeline/internal/repolock"
	"github.com/pipeguild/pipeline/internal/scheduler"
	"github.com/pipeguild/pipeline/internal/seeder"
	"github.com/pipeguild/pipeline/internal/store"
	"github.com/pipeguild/pipeline/internal/supervisor"
	"github.com/pipeguild/pipeline/internal/taskmodel"
	"github.com/pipeguild/pipeline/internal/worker"
)

var (
	version    = "0.1.0"
	configFlag string

	rootCmd = &cobra.Command{
		Use:   "pipelined",
		Short: "pipelined runs the autonomous task pipeline",
		RunE:  run,
	}
)

func init() {
	rootCmd.Flags().StringVar(&configFlag, "config", ".env", "path to the KEY=VALUE configuration file")
}

func run(cmd *cobra.Command, args []string) error {
	logging.Initialize(logging.DefaultLogPath("pipelined"), "pipelined")
	defer logging.Close()

	cfg, err := pipelineconfig.LoadFile(configFlag)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.PipelineRepo == "" {
		return fmt.Errorf("PIPELINE_REPO is required")
	}

	logging.InfoLog.Printf("pipelined %s starting, watching %d repos", version, len(cfg.WatchedRepos))

	taskStore := store.NewMemoryStore()
	repos := repolock.New()

	credential := os.Getenv("ANTHROPIC_API_KEY")
	agentCfgFor := func(task taskmodel.Task) agent.Config {
		return agent.Config{
			Model:          os.Getenv("PIPELINE_MODEL"),
			Credential:     credential,
			AssistantName:  "pipeline",
			TimeoutSeconds: 1800,
		}
	}

	w := worker.New(taskStore, repos, agentCfgFor, nil)
	w.TestCommand = func(task taskmodel.Task) (string, bool) {
		return testCommandFor(cfg, task)
	}
	w.AutoMerge = func(task taskmodel.Task) bool {
		return autoMergeFor(cfg, task)
	}

	scanner := &seeder.AgentSeedScanner{
		RepoPath: cfg.PipelineRepo,
		AgentCfg: func(persona agent.Persona) agent.Config {
			return agent.Config{
				Model:          os.Getenv("PIPELINE_MODEL"),
				Credential:     credential,
				AssistantName:  "pipeline-seed",
				TimeoutSeconds: 900,
				Persona:        persona,
			}
		},
		Runner: func(cfg agent.Config, prompt string) (agent.Output, error) {
			return agent.Run(cfg, prompt, nil)
		},
	}

	super := supervisor.New(func() {
		logging.InfoLog.Printf("pipelined: released shared resources")
	})

	sched := scheduler.New(scheduler.Config{
		TickInterval:      time.Duration(cfg.PipelineTickSeconds) * time.Second,
		MaxParallelAgents: pipelineconfig.DefaultMaxParallel,
		SeedCooldown:      time.Duration(cfg.SeedCooldownSeconds) * time.Second,
	}, taskStore, repos, super, func(task taskmodel.Task) {
		w.Run(context.Background(), task)
	}, scanner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logging.InfoLog.Printf("pipelined: shutdown signal received")
	case <-ctx.Done():
	}

	sched.Stop()
	super.Stop()
	cancel()
	<-schedDone
	super.JoinAgents()
	super.Deinit()

	logging.InfoLog.Printf("pipelined: clean shutdown")
	return nil
}

func testCommandFor(cfg *pipelineconfig.Config, task taskmodel.Task) (string, bool) {
	for _, r := range cfg.WatchedRepos {
		if filepath.Clean(r.Path) == filepath.Clean(task.RepoPath) {
			return r.TestCmd, r.TestCmd != ""
		}
	}
	return cfg.PipelineTestCmd, cfg.PipelineTestCmd != ""
}

func autoMergeFor(cfg *pipelineconfig.Config, task taskmodel.Task) bool {
	for _, r := range cfg.WatchedRepos {
		if filepath.Clean(r.Path) == filepath.Clean(task.RepoPath) {
			return r.AutoMerge
		}
	}
	return cfg.PipelineAutoMerge
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logging.ErrorLog.Printf("pipelined: %v", err)
		os.Exit(1)
	}
}
