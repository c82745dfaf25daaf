package mes

import (
	"fmt"
	"strings"
)

// BatchStatus is the production status of a batch. Transitions are
// monotonic: nothing ever re-enters Planned, and Completed and Rejected are
// terminal.
type BatchStatus int

const (
	// StatusPlanned is the initial state before production starts.
	StatusPlanned BatchStatus = iota

	// StatusInProgress means production is running.
	StatusInProgress

	// StatusCompleted means production finished successfully. Terminal.
	StatusCompleted

	// StatusOnHold means production is paused; reachable only from
	// InProgress and returns to InProgress or moves to Rejected.
	StatusOnHold

	// StatusRejected means the batch failed quality checks. Terminal.
	StatusRejected
)

// legalTransitions is the full monotonic transition table.
var legalTransitions = map[BatchStatus][]BatchStatus{
	StatusPlanned:    {StatusInProgress},
	StatusInProgress: {StatusCompleted, StatusRejected, StatusOnHold},
	StatusOnHold:     {StatusInProgress, StatusRejected},
	StatusCompleted:  {},
	StatusRejected:   {},
}

// String returns the string representation of the BatchStatus.
func (s BatchStatus) String() string {
	switch s {
	case StatusPlanned:
		return "Planned"
	case StatusInProgress:
		return "InProgress"
	case StatusCompleted:
		return "Completed"
	case StatusOnHold:
		return "OnHold"
	case StatusRejected:
		return "Rejected"
	default:
		return fmt.Sprintf("BatchStatus(%d)", s)
	}
}

// IsValid returns true if the status is a valid value.
func (s BatchStatus) IsValid() bool {
	return s >= StatusPlanned && s <= StatusRejected
}

// IsTerminal returns true if no further transitions are possible.
func (s BatchStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// CanTransition reports whether moving from s to target is legal.
func (s BatchStatus) CanTransition(target BatchStatus) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// CanReach reports whether target is reachable from s through zero or more
// legal transitions. Stale ingestion replays use this to tell a forward
// status (acceptable to merge) from a backward one (dropped).
func (s BatchStatus) CanReach(target BatchStatus) bool {
	if s == target {
		return true
	}

	seen := map[BatchStatus]bool{s: true}
	queue := []BatchStatus{s}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range legalTransitions[current] {
			if next == target {
				return true
			}
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// ParseBatchStatus parses a string into a BatchStatus value.
func ParseBatchStatus(str string) (BatchStatus, error) {
	switch strings.ToLower(strings.TrimSpace(str)) {
	case "planned":
		return StatusPlanned, nil
	case "inprogress", "in_progress":
		return StatusInProgress, nil
	case "completed":
		return StatusCompleted, nil
	case "onhold", "on_hold":
		return StatusOnHold, nil
	case "rejected":
		return StatusRejected, nil
	default:
		return 0, fmt.Errorf("invalid batch status: %s", str)
	}
}

// AllBatchStatuses returns all valid batch status values.
func AllBatchStatuses() []BatchStatus {
	return []BatchStatus{StatusPlanned, StatusInProgress, StatusCompleted, StatusOnHold, StatusRejected}
}
