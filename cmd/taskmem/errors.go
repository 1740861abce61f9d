package main

import (
	"fmt"
	"strings"

	"github.com/taskmem/taskmem/internal/task"
)

// InvalidStatusError indicates an invalid status value.
type InvalidStatusError struct {
	Value string
}

func (e InvalidStatusError) Error() string {
	valid := make([]string, 0, len(task.Statuses()))
	for _, s := range task.Statuses() {
		valid = append(valid, string(s))
	}
	return fmt.Sprintf("invalid status: %s (valid: %s)", e.Value, strings.Join(valid, ", "))
}

// InvalidPriorityError indicates an invalid priority value.
type InvalidPriorityError struct {
	Value string
}

func (e InvalidPriorityError) Error() string {
	return fmt.Sprintf("invalid priority: %s (valid: urgent, high, medium, low)", e.Value)
}

// InvalidContextError indicates the --context flag was not valid JSON.
type InvalidContextError struct {
	Err error
}

func (e InvalidContextError) Error() string {
	return fmt.Sprintf("context must be a JSON value: %v", e.Err)
}

// InvalidTimestampError indicates an unparseable date flag.
type InvalidTimestampError struct {
	Flag  string
	Value string
}

func (e InvalidTimestampError) Error() string {
	return fmt.Sprintf("invalid %s: %s (use RFC3339 or YYYY-MM-DD)", e.Flag, e.Value)
}
