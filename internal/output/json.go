package output

import (
	"encoding/json"
	"time"

	"github.com/taskmem/taskmem/internal/deps"
	"github.com/taskmem/taskmem/internal/exchange"
	"github.com/taskmem/taskmem/internal/task"
)

// JSONFormatter formats output as JSON.
type JSONFormatter struct{}

// marshalJSON marshals a value to indented JSON with a trailing newline.
func marshalJSON(v any) string {
	data, _ := json.MarshalIndent(v, "", "  ")
	return string(data) + "\n"
}

// NewJSONFormatter creates a new JSONFormatter.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// taskJSON is the JSON representation of a task.
type taskJSON struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Description    string          `json:"description,omitempty"`
	Status         string          `json:"status"`
	Priority       string          `json:"priority"`
	Assignee       string          `json:"assignee,omitempty"`
	Tags           []string        `json:"tags,omitempty"`
	DependsOn      []string        `json:"depends_on,omitempty"`
	Context        json.RawMessage `json:"context,omitempty"`
	EstimatedHours *float64        `json:"estimated_hours,omitempty"`
	ActualHours    *float64        `json:"actual_hours,omitempty"`
	DueDate        *string         `json:"due_date,omitempty"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
}

func toTaskJSON(t *task.Task) taskJSON {
	tj := taskJSON{
		ID:             t.ID,
		Title:          t.Title,
		Description:    t.Description,
		Status:         string(t.Status),
		Priority:       string(t.Priority),
		Assignee:       t.Assignee,
		Tags:           t.Tags,
		DependsOn:      t.DependsOn,
		Context:        t.Context,
		EstimatedHours: t.EstimatedHours,
		ActualHours:    t.ActualHours,
		CreatedAt:      t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      t.UpdatedAt.Format(time.RFC3339),
	}
	if t.DueDate != nil {
		s := t.DueDate.Format(time.RFC3339)
		tj.DueDate = &s
	}
	return tj
}

// FormatTask formats a single task as JSON.
func (f *JSONFormatter) FormatTask(t *task.Task) string {
	return marshalJSON(toTaskJSON(t))
}

// FormatTaskList formats a list of tasks as JSON.
func (f *JSONFormatter) FormatTaskList(tasks []*task.Task) string {
	jsonTasks := make([]taskJSON, len(tasks))
	for i, t := range tasks {
		jsonTasks[i] = toTaskJSON(t)
	}
	return marshalJSON(jsonTasks)
}

// FormatOrder formats a topological execution order as JSON.
func (f *JSONFormatter) FormatOrder(ids []string) string {
	if ids == nil {
		ids = []string{}
	}
	return marshalJSON(ids)
}

// cyclesJSON is the JSON representation of cycle detection results.
type cyclesJSON struct {
	Cycles [][]string `json:"cycles"`
}

// FormatCycles formats detected dependency cycles as JSON.
func (f *JSONFormatter) FormatCycles(cycles [][]string) string {
	if cycles == nil {
		cycles = [][]string{}
	}
	return marshalJSON(cyclesJSON{Cycles: cycles})
}

// criticalPathJSON is the JSON representation of a critical path.
type criticalPathJSON struct {
	Path           []string `json:"path"`
	EstimatedHours float64  `json:"estimated_hours"`
}

// FormatCriticalPath formats the critical path as JSON.
func (f *JSONFormatter) FormatCriticalPath(ids []string, hours float64) string {
	if ids == nil {
		ids = []string{}
	}
	return marshalJSON(criticalPathJSON{Path: ids, EstimatedHours: hours})
}

// impactJSON is the JSON representation of an impact analysis.
type impactJSON struct {
	ID       string   `json:"id"`
	Direct   []string `json:"directly_affected"`
	Indirect []string `json:"indirectly_affected"`
}

// FormatImpact formats an impact analysis as JSON.
func (f *JSONFormatter) FormatImpact(id string, im deps.Impact) string {
	direct := im.DirectlyAffected
	if direct == nil {
		direct = []string{}
	}
	indirect := im.IndirectlyAffected
	if indirect == nil {
		indirect = []string{}
	}
	return marshalJSON(impactJSON{ID: id, Direct: direct, Indirect: indirect})
}

// FormatExportReport formats an export report as JSON.
func (f *JSONFormatter) FormatExportReport(r *exchange.ExportReport) string {
	return marshalJSON(r)
}

// FormatImportReport formats an import report as JSON.
func (f *JSONFormatter) FormatImportReport(r *exchange.ImportReport) string {
	return marshalJSON(r)
}

// FormatSyncReport formats a sync report as JSON.
func (f *JSONFormatter) FormatSyncReport(r *exchange.SyncReport) string {
	return marshalJSON(r)
}

// errorJSON is the JSON representation of an error.
type errorJSON struct {
	Error string `json:"error"`
}

// FormatError formats an error as JSON.
func (f *JSONFormatter) FormatError(err error) string {
	return marshalJSON(errorJSON{Error: err.Error()})
}

// messageJSON is the JSON representation of a message.
type messageJSON struct {
	Message string `json:"message"`
}

// FormatMessage formats a simple message as JSON.
func (f *JSONFormatter) FormatMessage(msg string) string {
	return marshalJSON(messageJSON{Message: msg})
}
