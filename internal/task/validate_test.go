//nolint:testpackage // Tests require internal access for thorough testing
package task

import (
	"strings"
	"testing"
	"time"
)

func validTask() *Task {
	return &Task{
		ID:        "abc12345",
		Title:     "a task",
		Status:    StatusTodo,
		Priority:  PriorityMedium,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func hasFieldError(errs []FieldError, field string) bool {
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}

func TestValidateOK(t *testing.T) {
	res := Validate(validTask(), Options{})
	if !res.Valid {
		t.Fatalf("expected valid, got errors: %v", res.Errors)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}
}

func TestValidateErrors(t *testing.T) {
	neg := -1.0
	tests := []struct {
		name   string
		mutate func(*Task)
		field  string
	}{
		{"missing title", func(x *Task) { x.Title = "" }, "title"},
		{"title too long", func(x *Task) { x.Title = strings.Repeat("x", TitleMaxLength+1) }, "title"},
		{"bad status", func(x *Task) { x.Status = "open" }, "status"},
		{"bad priority", func(x *Task) { x.Priority = "critical" }, "priority"},
		{"negative estimate", func(x *Task) { x.EstimatedHours = &neg }, "estimated_hours"},
		{"negative actual", func(x *Task) { x.ActualHours = &neg }, "actual_hours"},
		{"self dependency", func(x *Task) { x.DependsOn = []string{x.ID} }, "depends_on"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := validTask()
			tt.mutate(x)
			res := Validate(x, Options{})
			if res.Valid {
				t.Fatal("expected invalid")
			}
			if !hasFieldError(res.Errors, tt.field) {
				t.Errorf("expected error on %s, got %v", tt.field, res.Errors)
			}
		})
	}
}

func TestValidateTitleExactLimit(t *testing.T) {
	x := validTask()
	x.Title = strings.Repeat("é", TitleMaxLength) // limit counts runes, not bytes
	if res := Validate(x, Options{}); !res.Valid {
		t.Errorf("title at the limit should be valid: %v", res.Errors)
	}
}

func TestValidateMaxDependsOn(t *testing.T) {
	x := validTask()
	for i := 0; i < DefaultMaxDependsOn+1; i++ {
		x.DependsOn = append(x.DependsOn, strings.Repeat("d", 7)+string(rune('a'+i)))
	}
	if res := Validate(x, Options{}); res.Valid {
		t.Error("expected depends_on count error")
	}

	// Raising the cap admits the same record.
	if res := Validate(x, Options{MaxDependsOn: 20}); !res.Valid {
		t.Errorf("raised cap should admit record: %v", res.Errors)
	}
}

func TestValidateUnknownDependency(t *testing.T) {
	x := validTask()
	x.DependsOn = []string{"nosuch00"}
	exists := func(id string) bool { return false }

	res := Validate(x, Options{Strict: true, Exists: exists})
	if res.Valid || !hasFieldError(res.Errors, "depends_on") {
		t.Errorf("strict mode should reject unknown dep, got %v", res.Errors)
	}

	res = Validate(x, Options{Strict: false, Exists: exists})
	if !res.Valid {
		t.Fatalf("non-strict mode should accept: %v", res.Errors)
	}
	if !hasFieldError(res.Warnings, "depends_on") {
		t.Errorf("expected warning on depends_on, got %v", res.Warnings)
	}

	// No resolver means no reference check at all.
	res = Validate(x, Options{Strict: true})
	if !res.Valid || len(res.Warnings) != 0 {
		t.Errorf("nil Exists should skip the check, got %v %v", res.Errors, res.Warnings)
	}
}

func TestValidateDueDatePast(t *testing.T) {
	x := validTask()
	past := x.CreatedAt.Add(-24 * time.Hour)
	x.DueDate = &past

	res := Validate(x, Options{})
	if !res.Valid {
		t.Fatalf("past due date is a warning, not an error: %v", res.Errors)
	}
	if !hasFieldError(res.Warnings, "due_date") {
		t.Errorf("expected due_date warning, got %v", res.Warnings)
	}
}

func TestValidateField(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value any
		valid bool
	}{
		{"good title", "title", "hello", true},
		{"empty title", "title", "", false},
		{"long title", "title", strings.Repeat("x", TitleMaxLength+1), false},
		{"good status", "status", "doing", true},
		{"bad status", "status", "open", false},
		{"good priority", "priority", "urgent", true},
		{"bad priority", "priority", "critical", false},
		{"good estimate", "estimated_hours", 1.5, true},
		{"negative estimate", "estimated_hours", -1.0, false},
		{"estimate wrong type", "estimated_hours", "two", false},
		{"good deps", "depends_on", []string{"a", "b"}, true},
		{"unknown field", "nope", "x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ValidateField(tt.field, tt.value)
			if res.Valid != tt.valid {
				t.Errorf("ValidateField(%q, %v).Valid = %v, want %v (errors: %v)",
					tt.field, tt.value, res.Valid, tt.valid, res.Errors)
			}
		})
	}
}

func TestFieldConstraints(t *testing.T) {
	fc := FieldConstraints()
	if !fc["title"].Required || fc["title"].MaxLength != TitleMaxLength {
		t.Errorf("title constraint = %+v", fc["title"])
	}
	if len(fc["status"].Enum) != len(Statuses()) {
		t.Errorf("status enum length = %d, want %d", len(fc["status"].Enum), len(Statuses()))
	}
	if fc["depends_on"].MaxItems != DefaultMaxDependsOn {
		t.Errorf("depends_on max items = %d", fc["depends_on"].MaxItems)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"2026-01-02T15:04:05Z", true},
		{"2026-01-02T15:04:05.123456789Z", true},
		{"2026-01-02T15:04:05", true},
		{"2026-01-02", true},
		{"yesterday", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := ParseTimestamp(tt.in)
			if (err == nil) != tt.ok {
				t.Errorf("ParseTimestamp(%q) err = %v, want ok=%v", tt.in, err, tt.ok)
			}
		})
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := ValidationError{Errors: []FieldError{
		{"title", "is required"},
		{"status", "invalid value"},
	}}
	msg := err.Error()
	if !strings.Contains(msg, "title: is required") || !strings.Contains(msg, "status: invalid value") {
		t.Errorf("unexpected message: %s", msg)
	}
}
