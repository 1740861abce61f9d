package deps

import (
	"fmt"
	"strings"
)

// UnknownTaskError indicates an id with no matching task in the snapshot.
type UnknownTaskError struct {
	ID string
}

func (e UnknownTaskError) Error() string {
	return fmt.Sprintf("unknown task: %s", e.ID)
}

// CycleError indicates adding a dependency would create a cycle.
type CycleError struct {
	From string
	To   string
}

func (e CycleError) Error() string {
	return fmt.Sprintf("adding dependency %s -> %s would create a cycle", e.From, e.To)
}

// CyclicDependencyError indicates the graph contains at least one cycle
// and cannot be topologically ordered. Run DetectCycles to diagnose.
type CyclicDependencyError struct {
	Remaining []string // ids that could not be ordered
}

func (e CyclicDependencyError) Error() string {
	return fmt.Sprintf("dependency graph contains a cycle (unordered: %s)",
		strings.Join(e.Remaining, ", "))
}
