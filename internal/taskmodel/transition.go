package taskmodel

import "fmt"

// Outcome is the result a Worker reports for the phase it just ran; it
// drives which edge of the §4.6 state machine fires next.
type Outcome int

const (
	// OutcomeAgentSucceeded advances the task to the next phase in its
	// linear run (backlog->spec->qa->impl).
	OutcomeAgentSucceeded Outcome = iota
	// OutcomeMergedClean fires only from impl, when auto-merge is on and
	// the merge was conflict-free.
	OutcomeMergedClean
	// OutcomeMergeConflict fires only from impl, sending the task to rebase.
	OutcomeMergeConflict
	// OutcomeTestsFailed fires only from impl, sending the task to retry
	// if under the attempt cap.
	OutcomeTestsFailed
	// OutcomeFixApplied fires from retry or rebase, returning to impl.
	OutcomeFixApplied
	// OutcomeUnrecoverable forces a transition to failed from any status.
	OutcomeUnrecoverable
)

// Next computes the status a task moves to after outcome, given its
// current status. It returns an error for any (status, outcome) pair
// spec.md §4.6 does not define, rather than guessing — callers must
// treat that as the "unreachable with a debug assertion" case the spec
// describes for invalid transitions and should route it through
// OutcomeUnrecoverable instead.
func Next(current Status, outcome Outcome, attemptCount int, attemptCap int) (Status, error) {
	if outcome == OutcomeUnrecoverable || attemptCount >= attemptCap {
		return StatusFailed, nil
	}

	switch current {
	case StatusBacklog:
		if outcome == OutcomeAgentSucceeded {
			return StatusSpec, nil
		}
	case StatusSpec:
		if outcome == OutcomeAgentSucceeded {
			return StatusQA, nil
		}
	case StatusQA:
		if outcome == OutcomeAgentSucceeded {
			return StatusImpl, nil
		}
	case StatusImpl:
		switch outcome {
		case OutcomeMergedClean:
			return StatusMerged, nil
		case OutcomeMergeConflict:
			return StatusRebase, nil
		case OutcomeTestsFailed:
			return StatusRetry, nil
		}
	case StatusRetry:
		if outcome == OutcomeFixApplied {
			return StatusImpl, nil
		}
	case StatusRebase:
		if outcome == OutcomeFixApplied {
			return StatusImpl, nil
		}
	}

	return current, fmt.Errorf("taskmodel: no transition defined for status=%s outcome=%d", current, outcome)
}
