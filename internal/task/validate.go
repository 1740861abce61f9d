package task

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// TitleMaxLength is the maximum title length in characters.
	TitleMaxLength = 200
	// DefaultMaxDependsOn caps how many dependencies a single task may declare.
	DefaultMaxDependsOn = 10
)

// FieldError describes a single violated constraint.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) String() string {
	return e.Field + ": " + e.Message
}

// ValidationError is raised by create/update when a record fails validation.
// It carries the field-level detail so callers can render it without
// re-deriving context.
type ValidationError struct {
	Errors []FieldError
}

func (e ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.String()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Result aggregates errors and warnings from validating a record.
type Result struct {
	Valid    bool
	Errors   []FieldError
	Warnings []FieldError
}

// Options control full-record validation.
type Options struct {
	// Strict promotes unresolved depends_on references from warnings to errors.
	Strict bool
	// MaxDependsOn overrides DefaultMaxDependsOn when > 0.
	MaxDependsOn int
	// Exists resolves depends_on references against the current store.
	// When nil the reference check is skipped.
	Exists func(id string) bool
}

// Validate checks a full record against the field rule table plus the
// cross-field business rules. It is stateless; reference resolution is
// delegated to opts.Exists.
func Validate(t *Task, opts Options) Result {
	var res Result

	if t.Title == "" {
		res.Errors = append(res.Errors, FieldError{"title", "is required"})
	} else if utf8.RuneCountInString(t.Title) > TitleMaxLength {
		res.Errors = append(res.Errors, FieldError{
			"title", fmt.Sprintf("exceeds %d characters", TitleMaxLength),
		})
	}

	if !IsValidStatus(t.Status) {
		res.Errors = append(res.Errors, FieldError{
			"status", fmt.Sprintf("invalid value %q (valid: %s)", t.Status, joinStatuses()),
		})
	}
	if !IsValidPriority(t.Priority) {
		res.Errors = append(res.Errors, FieldError{
			"priority", fmt.Sprintf("invalid value %q (valid: low, medium, high, urgent)", t.Priority),
		})
	}

	if t.EstimatedHours != nil && *t.EstimatedHours < 0 {
		res.Errors = append(res.Errors, FieldError{"estimated_hours", "must be >= 0"})
	}
	if t.ActualHours != nil && *t.ActualHours < 0 {
		res.Errors = append(res.Errors, FieldError{"actual_hours", "must be >= 0"})
	}

	maxDeps := opts.MaxDependsOn
	if maxDeps <= 0 {
		maxDeps = DefaultMaxDependsOn
	}
	if len(t.DependsOn) > maxDeps {
		res.Errors = append(res.Errors, FieldError{
			"depends_on", fmt.Sprintf("has %d entries, maximum is %d", len(t.DependsOn), maxDeps),
		})
	}
	// Self-dependency is a hard error regardless of strictness.
	if t.DependsOnSelf() {
		res.Errors = append(res.Errors, FieldError{"depends_on", "task cannot depend on itself"})
	}
	if opts.Exists != nil {
		for _, dep := range t.DependsOn {
			if dep == t.ID || opts.Exists(dep) {
				continue
			}
			fe := FieldError{"depends_on", fmt.Sprintf("references unknown task %s", dep)}
			if opts.Strict {
				res.Errors = append(res.Errors, fe)
			} else {
				res.Warnings = append(res.Warnings, fe)
			}
		}
	}

	if t.DueDate != nil {
		ref := t.CreatedAt
		if ref.IsZero() {
			ref = time.Now().UTC()
		}
		if t.DueDate.Before(ref) {
			res.Warnings = append(res.Warnings, FieldError{"due_date", "is in the past"})
		}
	}

	res.Valid = len(res.Errors) == 0
	return res
}

// ValidateField checks a single field value against the same rule table,
// for interactive pre-commit validation.
func ValidateField(name string, value any) Result {
	var res Result
	switch name {
	case "title":
		s, ok := value.(string)
		switch {
		case !ok:
			res.Errors = append(res.Errors, FieldError{name, "must be a string"})
		case s == "":
			res.Errors = append(res.Errors, FieldError{name, "is required"})
		case utf8.RuneCountInString(s) > TitleMaxLength:
			res.Errors = append(res.Errors, FieldError{
				name, fmt.Sprintf("exceeds %d characters", TitleMaxLength),
			})
		}
	case "status":
		if !IsValidStatus(Status(coerceString(value))) {
			res.Errors = append(res.Errors, FieldError{
				name, fmt.Sprintf("invalid value %q (valid: %s)", value, joinStatuses()),
			})
		}
	case "priority":
		if !IsValidPriority(Priority(coerceString(value))) {
			res.Errors = append(res.Errors, FieldError{
				name, fmt.Sprintf("invalid value %q (valid: low, medium, high, urgent)", value),
			})
		}
	case "estimated_hours", "actual_hours":
		f, ok := value.(float64)
		if !ok {
			res.Errors = append(res.Errors, FieldError{name, "must be a number"})
		} else if f < 0 {
			res.Errors = append(res.Errors, FieldError{name, "must be >= 0"})
		}
	case "depends_on":
		deps, ok := value.([]string)
		if !ok {
			res.Errors = append(res.Errors, FieldError{name, "must be a list of task ids"})
		} else if len(deps) > DefaultMaxDependsOn {
			res.Errors = append(res.Errors, FieldError{
				name, fmt.Sprintf("has %d entries, maximum is %d", len(deps), DefaultMaxDependsOn),
			})
		}
	case "due_date":
		s, ok := value.(string)
		if !ok {
			res.Errors = append(res.Errors, FieldError{name, "must be a timestamp string"})
		} else if _, err := ParseTimestamp(s); err != nil {
			res.Errors = append(res.Errors, FieldError{name, "is not a valid timestamp"})
		}
	default:
		res.Errors = append(res.Errors, FieldError{name, "unknown field"})
	}
	res.Valid = len(res.Errors) == 0
	return res
}

// Constraint declares the rules applied to one field.
type Constraint struct {
	Required  bool
	MaxLength int
	Enum      []string
	Min       *float64
	MaxItems  int
}

// FieldConstraints exposes the rule table declaratively so callers can
// render limits without duplicating validation logic.
func FieldConstraints() map[string]Constraint {
	zero := 0.0
	statuses := make([]string, 0, len(Statuses()))
	for _, s := range Statuses() {
		statuses = append(statuses, string(s))
	}
	priorities := make([]string, 0, len(Priorities()))
	for _, p := range Priorities() {
		priorities = append(priorities, string(p))
	}
	return map[string]Constraint{
		"title":           {Required: true, MaxLength: TitleMaxLength},
		"status":          {Enum: statuses},
		"priority":        {Enum: priorities},
		"estimated_hours": {Min: &zero},
		"actual_hours":    {Min: &zero},
		"depends_on":      {MaxItems: DefaultMaxDependsOn},
	}
}

// ParseTimestamp parses a timestamp string in common formats.
func ParseTimestamp(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func coerceString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case Status:
		return string(s)
	case Priority:
		return string(s)
	default:
		return fmt.Sprint(v)
	}
}

func joinStatuses() string {
	parts := make([]string, 0, len(Statuses()))
	for _, s := range Statuses() {
		parts = append(parts, string(s))
	}
	return strings.Join(parts, ", ")
}
