package task

import (
	"encoding/json"
	"slices"
	"time"
)

// Status represents the current state of a task.
type Status string

const (
	StatusTodo              Status = "todo"
	StatusDoing             Status = "doing"
	StatusTechnicalComplete Status = "technical-complete"
	StatusRUATValidation    Status = "ruat-validation"
	StatusReview            Status = "review"
	StatusDone              Status = "done"
	StatusBlocked           Status = "blocked"
	StatusCancelled         Status = "cancelled"
)

// Priority represents the importance level of a task.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// PriorityOrder returns the sort order for a priority (lower = higher priority).
func PriorityOrder(p Priority) int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// Task represents a tracked work item.
//
// Context is carried as raw JSON bytes: the core never interprets it, and
// key order survives the round trip through storage and interchange.
type Task struct {
	ID             string
	Title          string
	Description    string
	Status         Status
	Priority       Priority
	Assignee       string
	Tags           []string
	DependsOn      []string
	Context        json.RawMessage
	EstimatedHours *float64
	ActualHours    *float64
	DueDate        *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Statuses lists every valid status value.
func Statuses() []Status {
	return []Status{
		StatusTodo,
		StatusDoing,
		StatusTechnicalComplete,
		StatusRUATValidation,
		StatusReview,
		StatusDone,
		StatusBlocked,
		StatusCancelled,
	}
}

// Priorities lists every valid priority value.
func Priorities() []Priority {
	return []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}
}

// IsValidStatus checks if a status string is valid.
func IsValidStatus(s Status) bool {
	return slices.Contains(Statuses(), s)
}

// IsValidPriority checks if a priority string is valid.
func IsValidPriority(p Priority) bool {
	return slices.Contains(Priorities(), p)
}

// IsTerminal reports whether the status ends the task's lifecycle.
// Terminal tasks are excluded from ready/blocked queries, and only done
// satisfies a dependency.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusCancelled
}

// NormalizeTags collapses duplicates and sorts. Tags are a set; insertion
// order is irrelevant, and sorting keeps serialized output deterministic.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := slices.Clone(tags)
	slices.Sort(out)
	return slices.Compact(out)
}

// DependsOnSelf reports whether the task lists its own id as a dependency.
func (t *Task) DependsOnSelf() bool {
	return t.ID != "" && slices.Contains(t.DependsOn, t.ID)
}

// Clone returns a deep copy. Stores and graph snapshots hand out clones so
// callers can't mutate shared state.
func (t *Task) Clone() *Task {
	c := *t
	c.Tags = slices.Clone(t.Tags)
	c.DependsOn = slices.Clone(t.DependsOn)
	c.Context = slices.Clone(t.Context)
	if t.EstimatedHours != nil {
		v := *t.EstimatedHours
		c.EstimatedHours = &v
	}
	if t.ActualHours != nil {
		v := *t.ActualHours
		c.ActualHours = &v
	}
	if t.DueDate != nil {
		v := *t.DueDate
		c.DueDate = &v
	}
	return &c
}

// Less orders a before b by the given sort key, with ties broken by id
// ascending so that any listing of the same task set is deterministic.
func Less(a, b *Task, sortKey string) bool {
	switch sortKey {
	case "title":
		if a.Title != b.Title {
			return a.Title < b.Title
		}
	case "priority":
		pa, pb := PriorityOrder(a.Priority), PriorityOrder(b.Priority)
		if pa != pb {
			return pa < pb
		}
	case "status":
		if a.Status != b.Status {
			return a.Status < b.Status
		}
	case "updated_at":
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
	default: // created_at
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	return a.ID < b.ID
}
