package storage

import (
	"fmt"
	"strings"
)

// TaskNotFoundError indicates the id doesn't match any stored task.
type TaskNotFoundError struct {
	ID string
}

func (e TaskNotFoundError) Error() string {
	return fmt.Sprintf("task not found: %s", e.ID)
}

// ReferentialIntegrityError indicates a delete was refused because other
// tasks still depend on the target.
type ReferentialIntegrityError struct {
	ID         string
	Dependents []string
}

func (e ReferentialIntegrityError) Error() string {
	return fmt.Sprintf("task %s is depended on by: %s (use force to delete anyway)",
		e.ID, strings.Join(e.Dependents, ", "))
}

// IOError indicates the backing database failed. The operation it aborted
// was rolled back; no partial mutation survives.
type IOError struct {
	Op  string
	Err error
}

func (e IOError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e IOError) Unwrap() error {
	return e.Err
}
