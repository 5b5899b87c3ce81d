package seeder

import (
	"context"
	"fmt"

	"github.com/pipeguild/pipeline/internal/agent"
	"github.com/pipeguild/pipeline/internal/scheduler"
	"github.com/pipeguild/pipeline/internal/taskmodel"
)

// modePrompts gives the manager persona a distinct framing per seed mode,
// so the same agent binary produces different kinds of task proposals
// depending on where the rotation currently is.
var modePrompts = map[scheduler.SeedMode]string{
	scheduler.SeedModeStaleIssues:       "Scan the repository's open issues for ones that have gone stale and propose fixes.",
	scheduler.SeedModeFailingTests:      "Run the test suite and propose tasks for any failing or flaky tests.",
	scheduler.SeedModeTODOComments:      "Search the codebase for TODO/FIXME comments and propose tasks to resolve them.",
	scheduler.SeedModeDependencyDrift:   "Check for outdated dependencies and propose upgrade tasks.",
	scheduler.SeedModeDocumentationGaps: "Find undocumented public APIs and propose documentation tasks.",
}

// AgentSeedScanner runs the manager persona in seed-scan mode and parses
// its TASK_START…TASK_END output into task proposals. It satisfies
// scheduler.SeedScanner.
type AgentSeedScanner struct {
	RepoPath string
	AgentCfg func(persona agent.Persona) agent.Config
	Runner   func(cfg agent.Config, prompt string) (agent.Output, error)
}

// Scan implements scheduler.SeedScanner.
func (s *AgentSeedScanner) Scan(_ context.Context, mode scheduler.SeedMode) ([]taskmodel.Task, error) {
	prompt, ok := modePrompts[mode]
	if !ok {
		return nil, fmt.Errorf("seeder: no prompt defined for seed mode %s", mode)
	}

	cfg := s.AgentCfg(agent.PersonaManager)
	out, err := s.Runner(cfg, prompt)
	if err != nil {
		return nil, fmt.Errorf("seeder: seed scan run: %w", err)
	}

	proposals := ParseBlocks(out.Output)
	tasks := make([]taskmodel.Task, 0, len(proposals))
	for _, p := range proposals {
		tasks = append(tasks, taskmodel.Task{
			Title:       p.Title,
			Description: p.Description,
			RepoPath:    s.RepoPath,
		})
	}
	return tasks, nil
}
