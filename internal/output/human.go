package output

import (
	"fmt"
	"strings"

	"github.com/taskmem/taskmem/internal/deps"
	"github.com/taskmem/taskmem/internal/exchange"
	"github.com/taskmem/taskmem/internal/task"
)

// HumanFormatter formats output for human-readable terminal display.
type HumanFormatter struct{}

// NewHumanFormatter creates a new HumanFormatter.
func NewHumanFormatter() *HumanFormatter {
	return &HumanFormatter{}
}

// FormatTask formats a single task for display.
func (f *HumanFormatter) FormatTask(t *task.Task) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[%s] %s\n", t.ID, t.Title))
	sb.WriteString(fmt.Sprintf("  Status:   %s\n", t.Status))
	sb.WriteString(fmt.Sprintf("  Priority: %s\n", t.Priority))
	if t.Assignee != "" {
		sb.WriteString(fmt.Sprintf("  Assignee: %s\n", t.Assignee))
	}
	if len(t.Tags) > 0 {
		sb.WriteString(fmt.Sprintf("  Tags:     %s\n", strings.Join(t.Tags, ", ")))
	}
	if len(t.DependsOn) > 0 {
		sb.WriteString(fmt.Sprintf("  Depends:  %s\n", strings.Join(t.DependsOn, ", ")))
	}
	if t.EstimatedHours != nil {
		sb.WriteString(fmt.Sprintf("  Estimate: %sh\n", formatHours(*t.EstimatedHours)))
	}
	if t.ActualHours != nil {
		sb.WriteString(fmt.Sprintf("  Actual:   %sh\n", formatHours(*t.ActualHours)))
	}
	if t.DueDate != nil {
		sb.WriteString(fmt.Sprintf("  Due:      %s\n", t.DueDate.Format("2006-01-02")))
	}
	sb.WriteString(fmt.Sprintf("  Created:  %s\n", t.CreatedAt.Format("2006-01-02 15:04")))
	sb.WriteString(fmt.Sprintf("  Updated:  %s\n", t.UpdatedAt.Format("2006-01-02 15:04")))

	if t.Description != "" {
		sb.WriteString("\n")
		sb.WriteString(t.Description)
		sb.WriteString("\n")
	}
	if len(t.Context) > 0 {
		sb.WriteString("\n")
		sb.WriteString("  Context:  ")
		sb.Write(t.Context)
		sb.WriteString("\n")
	}

	return sb.String()
}

// FormatTaskList formats a list of tasks for display.
func (f *HumanFormatter) FormatTaskList(tasks []*task.Task) string {
	if len(tasks) == 0 {
		return "No tasks found.\n"
	}

	var sb strings.Builder
	for _, t := range tasks {
		sb.WriteString(f.formatTaskLine(t))
	}
	return sb.String()
}

// formatTaskLine formats a single task as a compact one-liner.
func (f *HumanFormatter) formatTaskLine(t *task.Task) string {
	statusIcon := f.statusIcon(t.Status)
	priorityMark := f.priorityMark(t.Priority)
	deps := ""
	if len(t.DependsOn) > 0 {
		deps = fmt.Sprintf(" [after: %s]", strings.Join(t.DependsOn, ", "))
	}
	return fmt.Sprintf("%s %s [%s] %s%s\n", statusIcon, priorityMark, t.ID, t.Title, deps)
}

func (f *HumanFormatter) statusIcon(s task.Status) string {
	switch s {
	case task.StatusTodo:
		return "[ ]"
	case task.StatusDoing:
		return "[*]"
	case task.StatusTechnicalComplete:
		return "[t]"
	case task.StatusRUATValidation:
		return "[r]"
	case task.StatusReview:
		return "[R]"
	case task.StatusDone:
		return "[X]"
	case task.StatusBlocked:
		return "[!]"
	case task.StatusCancelled:
		return "[-]"
	default:
		return "[?]"
	}
}

func (f *HumanFormatter) priorityMark(p task.Priority) string {
	switch p {
	case task.PriorityUrgent:
		return "P0"
	case task.PriorityHigh:
		return "P1"
	case task.PriorityMedium:
		return "P2"
	case task.PriorityLow:
		return "P3"
	default:
		return "P?"
	}
}

// FormatOrder formats a topological execution order.
func (f *HumanFormatter) FormatOrder(ids []string) string {
	if len(ids) == 0 {
		return "No tasks found.\n"
	}
	var sb strings.Builder
	for i, id := range ids {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, id))
	}
	return sb.String()
}

// FormatCycles formats detected dependency cycles.
func (f *HumanFormatter) FormatCycles(cycles [][]string) string {
	if len(cycles) == 0 {
		return "No cycles detected.\n"
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d cycle(s) detected:\n", len(cycles)))
	for _, cycle := range cycles {
		sb.WriteString("  ")
		sb.WriteString(strings.Join(cycle, " -> "))
		sb.WriteString(" -> ")
		sb.WriteString(cycle[0])
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatCriticalPath formats the longest dependency chain by estimate.
func (f *HumanFormatter) FormatCriticalPath(ids []string, hours float64) string {
	if len(ids) == 0 {
		return "No tasks found.\n"
	}
	var sb strings.Builder
	sb.WriteString(strings.Join(ids, " -> "))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Total estimated: %sh\n", formatHours(hours)))
	return sb.String()
}

// FormatImpact formats the downstream effect of a task.
func (f *HumanFormatter) FormatImpact(id string, im deps.Impact) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Impact of %s:\n", id))
	if len(im.DirectlyAffected) == 0 && len(im.IndirectlyAffected) == 0 {
		sb.WriteString("  No dependent tasks.\n")
		return sb.String()
	}
	if len(im.DirectlyAffected) > 0 {
		sb.WriteString(fmt.Sprintf("  Direct:   %s\n", strings.Join(im.DirectlyAffected, ", ")))
	}
	if len(im.IndirectlyAffected) > 0 {
		sb.WriteString(fmt.Sprintf("  Indirect: %s\n", strings.Join(im.IndirectlyAffected, ", ")))
	}
	return sb.String()
}

// FormatExportReport formats the result of an export run.
func (f *HumanFormatter) FormatExportReport(r *exchange.ExportReport) string {
	return fmt.Sprintf("Exported %d task(s).\n", r.Count)
}

// FormatImportReport formats the result of an import run.
func (f *HumanFormatter) FormatImportReport(r *exchange.ImportReport) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Created: %d, Skipped: %d, Overwritten: %d, Merged: %d, Reassigned: %d\n",
		r.Created, r.Skipped, r.Overwritten, r.Merged, r.Reassigned))
	for _, w := range r.Warnings {
		sb.WriteString("  warning: " + w.String() + "\n")
	}
	for _, e := range r.Errors {
		sb.WriteString("  error: " + e.String() + "\n")
	}
	return sb.String()
}

// FormatSyncReport formats the result of a sync run.
func (f *HumanFormatter) FormatSyncReport(r *exchange.SyncReport) string {
	var sb strings.Builder
	if r.Import != nil {
		sb.WriteString(f.FormatImportReport(r.Import))
	}
	sb.WriteString(fmt.Sprintf("Exported %d task(s).\n", r.Exported))
	return sb.String()
}

// FormatError formats an error for display.
func (f *HumanFormatter) FormatError(err error) string {
	return fmt.Sprintf("Error: %s\n", err.Error())
}

// FormatMessage formats a simple message.
func (f *HumanFormatter) FormatMessage(msg string) string {
	return msg + "\n"
}

func formatHours(h float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", h), "0"), ".")
}
