// Package runner drives an archive run: for every configured table it walks
// the eligible day partitions through export, validation, pruning and the
// ledger.
package runner

import (
	"fmt"
	"strings"
)

// State is where a partition is in a run.
type State int64

const (
	Discovered State = iota
	// Skipped partitions are already in the ledger.
	Skipped
	// Empty partitions have no rows and are recorded without an export.
	Empty
	Exported
	Validated
	Pruned
	Recorded
)

var states = []State{Discovered, Skipped, Empty, Exported, Validated, Pruned, Recorded}

func (s State) String() string {
	switch s {
	case Discovered:
		return "discovered"
	case Skipped:
		return "skipped"
	case Empty:
		return "empty"
	case Exported:
		return "exported"
	case Validated:
		return "validated"
	case Pruned:
		return "pruned"
	case Recorded:
		return "recorded"
	}

	return "unknown"
}

// Summary counts how many partitions reached each state and how many rows
// were moved.
type Summary struct {
	Partitions map[State]int
	Rows       int64
}

func newSummary() *Summary {
	return &Summary{Partitions: make(map[State]int)}
}

func (s *Summary) String() string {
	parts := make([]string, 0, len(states)+1)
	for _, state := range states {
		parts = append(parts, fmt.Sprintf("%s=%d", state, s.Partitions[state]))
	}
	parts = append(parts, fmt.Sprintf("rows=%d", s.Rows))

	return strings.Join(parts, " ")
}
