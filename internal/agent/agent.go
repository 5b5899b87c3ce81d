// Package agent implements the Agent Invoker (spec.md §4.2): it builds the
// argv for the "claude" CLI and runs it directly on the host (Run starts no
// container; NextContainerName only produces container names), streams
// its NDJSON stdout through internal/procrun, and reduces the event stream
// to a single output string plus an optional new session token. The CLI
// invocation and persona/tool wiring follow the teacher's own handling of
// the claude binary in config/config.go and session/tmux/tmux.go.
package agent

import (
	"fmt"
	"os/exec"
	"sync/atomic"
	"time"

	gomcp "github.com/mark3labs/mcp-go/mcp"

	"github.com/pipeguild/pipeline/internal/ndjson"
	"github.com/pipeguild/pipeline/internal/procrun"
)

// claudeBinary is the CLI executable the invoker shells out to. The
// teacher resolves this from config/PATH lookup (config.go's "claude
// command not found" path); the pipeline always runs the resolved binary
// name directly since it owns its own PATH setup.
const claudeBinary = "claude"

// Persona selects a system prompt and tool set for an agent run.
type Persona string

const (
	PersonaManager Persona = "manager"
	PersonaQA      Persona = "qa"
	PersonaWorker  Persona = "worker"
)

// Config is the configuration record run_agent takes, per spec.md §4.2.
type Config struct {
	Model          string
	Credential     string
	SessionID      string
	SessionDir     string
	AssistantName  string
	TimeoutSeconds int
	Persona        Persona
}

// Output is what run_agent returns.
type Output struct {
	Output        string
	RawStream     []byte
	NewSessionID  string
	HasNewSession bool
	ExitCode      int
	TimedOut      bool
}

// personaToolSets describes the mcp-go tool allow-list for a persona, in the same
// shape the teacher's mcp/server.go registers tools in.
var personaToolSets = map[Persona][]gomcp.Tool{
	PersonaManager: {
		gomcp.NewTool("Read", gomcp.WithDescription("Read a file.")),
		gomcp.NewTool("Glob", gomcp.WithDescription("Match files by glob pattern.")),
		gomcp.NewTool("Grep", gomcp.WithDescription("Search file contents.")),
		gomcp.NewTool("Write", gomcp.WithDescription("Write a file.")),
	},
	PersonaQA: {
		gomcp.NewTool("Read", gomcp.WithDescription("Read a file.")),
		gomcp.NewTool("Glob", gomcp.WithDescription("Match files by glob pattern.")),
		gomcp.NewTool("Grep", gomcp.WithDescription("Search file contents.")),
		gomcp.NewTool("Write", gomcp.WithDescription("Write a file.")),
	},
	PersonaWorker: {
		gomcp.NewTool("Read", gomcp.WithDescription("Read a file.")),
		gomcp.NewTool("Glob", gomcp.WithDescription("Match files by glob pattern.")),
		gomcp.NewTool("Grep", gomcp.WithDescription("Search file contents.")),
		gomcp.NewTool("Write", gomcp.WithDescription("Write a file.")),
		gomcp.NewTool("Edit", gomcp.WithDescription("Apply a patch to a file.")),
		gomcp.NewTool("Bash", gomcp.WithDescription("Run a shell command.")),
	},
}

// ToolNames returns the allowed tool names for persona, in registration
// order, for building the CLI's --allowedTools argument.
func ToolNames(persona Persona) []string {
	tools := personaToolSets[persona]
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names
}

// containerSeq is the single process-wide atomic counter spec.md §4.7
// requires for container naming. The old prefix-persona-timestamp-counter
// format is prohibited; fetch_add alone guarantees distinct names even for
// same-second concurrent launches.
var containerSeq atomic.Uint64

// NextContainerName returns "<prefix>-<persona>-<n>" with n drawn from the
// shared atomic counter.
func NextContainerName(prefix string, persona Persona) string {
	n := containerSeq.Add(1)
	return fmt.Sprintf("%s-%s-%d", prefix, persona, n)
}

// buildArgs constructs the claude CLI invocation for cfg and prompt.
// --output-format stream-json is what makes the CLI emit the NDJSON event
// stream run_agent depends on.
func buildArgs(cfg Config, prompt string) []string {
	args := []string{
		"-p", prompt,
		"--output-format", "stream-json",
		"--verbose",
	}
	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	if cfg.SessionID != "" {
		args = append(args, "--resume", cfg.SessionID)
	}
	if names := ToolNames(cfg.Persona); len(names) > 0 {
		allowed := ""
		for i, n := range names {
			if i > 0 {
				allowed += ","
			}
			allowed += n
		}
		args = append(args, "--allowedTools", allowed)
	}
	return args
}

// Run invokes the CLI per cfg and prompt, streaming raw stdout chunks to
// streamCB as they arrive, and reduces the NDJSON event stream to an
// Output per the result-overrides-assistant-fallback contract.
func Run(cfg Config, prompt string, streamCB procrun.StreamCallback) (Output, error) {
	cmd := exec.Command(claudeBinary, buildArgs(cfg, prompt)...)
	cmd.Dir = cfg.SessionDir
	cmd.Env = append(cmd.Env, "ANTHROPIC_API_KEY="+cfg.Credential)
	if cfg.AssistantName != "" {
		cmd.Env = append(cmd.Env, "PIPELINE_ASSISTANT_NAME="+cfg.AssistantName)
	}

	var deadline time.Duration
	if cfg.TimeoutSeconds > 0 {
		deadline = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	result, err := procrun.RunWithDeadline(cmd, 0, deadline, procrun.GraceSeconds*time.Second, streamCB)
	if err != nil {
		return Output{}, fmt.Errorf("agent: run: %w", err)
	}

	reduced := Reduce(result.Stdout)
	reduced.RawStream = result.Stdout
	reduced.ExitCode = result.ExitCode
	reduced.TimedOut = result.TimedOut
	return reduced, nil
}

// Reduce parses an NDJSON event stream and applies the result-overrides-
// assistant-fallback rule from spec.md §4.2.
func Reduce(raw []byte) Output {
	var out Output
	var fallbackBlocks []string
	var resultText string
	haveResult := false

	splitter := &ndjson.LineSplitter{}
	for _, line := range splitter.Feed(raw) {
		val := ndjson.Parse(line)

		if sid, ok := fieldString(val, "session_id"); ok && sid != "" {
			out.NewSessionID = sid
			out.HasNewSession = true
		}

		eventType, _ := fieldString(val, "type")
		switch eventType {
		case "result":
			if text, ok := fieldString(val, "result"); ok && text != "" {
				resultText = text
				haveResult = true
			}
		case "assistant":
			message, ok := val.Get("message")
			if !ok {
				continue
			}
			content, ok := fieldArray(message, "content")
			if !ok {
				continue
			}
			for _, item := range content {
				typ, ok := fieldString(item, "type")
				if !ok || typ != "text" {
					continue
				}
				text, ok := fieldString(item, "text")
				if !ok {
					continue
				}
				fallbackBlocks = append(fallbackBlocks, text)
			}
		}
	}
	splitter.Close()

	if haveResult {
		out.Output = resultText
		return out
	}

	joined := ""
	for i, b := range fallbackBlocks {
		if i > 0 {
			joined += "\n"
		}
		joined += b
	}
	out.Output = joined
	return out
}

// fieldString looks up key on val and coerces it to a string.
func fieldString(val ndjson.Value, key string) (string, bool) {
	field, ok := val.Get(key)
	if !ok {
		return "", false
	}
	return field.AsString()
}

// fieldArray looks up key on val and coerces it to a []Value.
func fieldArray(val ndjson.Value, key string) ([]ndjson.Value, bool) {
	field, ok := val.Get(key)
	if !ok {
		return nil, false
	}
	return field.AsArray()
}
