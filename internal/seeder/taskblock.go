// Package seeder parses the TASK_START…TASK_END task proposal blocks an
// agent emits during a seed scan (spec.md §4.8, the "seeder sibling" of
// task-block parsing). The parser works at line granularity rather than
// scanning the whole block as one string, so a DESCRIPTION: substring
// that happens to occur inside the TITLE value doesn't get mistaken for
// the real DESCRIPTION: line.
package seeder

import "strings"

const (
	blockStart = "TASK_START"
	blockEnd   = "TASK_END"

	titlePrefix       = "TITLE:"
	descriptionPrefix = "DESCRIPTION:"
)

// TaskProposal is one parsed TASK_START…TASK_END block.
type TaskProposal struct {
	Title       string
	Description string
}

// ParseBlocks extracts every TASK_START…TASK_END block from text and
// parses each with ParseBlock, skipping blocks with no TITLE: line.
func ParseBlocks(text string) []TaskProposal {
	var proposals []TaskProposal
	remaining := text
	for {
		startIdx := strings.Index(remaining, blockStart)
		if startIdx < 0 {
			break
		}
		afterStart := remaining[startIdx+len(blockStart):]
		endIdx := strings.Index(afterStart, blockEnd)
		if endIdx < 0 {
			break
		}
		body := afterStart[:endIdx]
		if p, ok := ParseBlock(body); ok {
			proposals = append(proposals, p)
		}
		remaining = afterStart[endIdx+len(blockEnd):]
	}
	return proposals
}

// ParseBlock parses a single block body. It tolerates CRLF line endings,
// DESCRIPTION: appearing before TITLE:, leading whitespace on the
// DESCRIPTION: line, and the literal substring "DESCRIPTION:" occurring
// inside the TITLE value. Returns ok=false if no TITLE: line is present.
// If DESCRIPTION: is absent, the description falls back to the title. An
// explicitly empty DESCRIPTION: value is preserved as empty, not treated
// as absent.
func ParseBlock(body string) (TaskProposal, bool) {
	var title string
	var haveTitle bool
	var description string
	var haveDescription bool

	for _, rawLine := range strings.Split(body, "\n") {
		line := strings.TrimRight(rawLine, "\r")
		trimmed := strings.TrimLeft(line, " \t")

		if !haveTitle && strings.HasPrefix(trimmed, titlePrefix) {
			title = strings.TrimSpace(trimmed[len(titlePrefix):])
			haveTitle = true
			continue
		}
		if !haveDescription && strings.HasPrefix(trimmed, descriptionPrefix) {
			description = strings.TrimSpace(trimmed[len(descriptionPrefix):])
			haveDescription = true
			continue
		}
	}

	if !haveTitle {
		return TaskProposal{}, false
	}
	if !haveDescription {
		description = title
	}

	return TaskProposal{Title: title, Description: description}, true
}
