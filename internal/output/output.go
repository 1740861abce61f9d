package output

import (
	"github.com/taskmem/taskmem/internal/deps"
	"github.com/taskmem/taskmem/internal/exchange"
	"github.com/taskmem/taskmem/internal/task"
)

// Formatter defines the interface for output formatting.
type Formatter interface {
	FormatTask(t *task.Task) string
	FormatTaskList(tasks []*task.Task) string
	FormatOrder(ids []string) string
	FormatCycles(cycles [][]string) string
	FormatCriticalPath(ids []string, hours float64) string
	FormatImpact(id string, im deps.Impact) string
	FormatExportReport(r *exchange.ExportReport) string
	FormatImportReport(r *exchange.ImportReport) string
	FormatSyncReport(r *exchange.SyncReport) string
	FormatError(err error) string
	FormatMessage(msg string) string
}
