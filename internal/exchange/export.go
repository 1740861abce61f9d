// Package exchange moves tasks across store boundaries as JSONL, one
// task per line. The same byte format serves export, import, and sync.
package exchange

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"github.com/taskmem/taskmem/internal/storage"
	"github.com/taskmem/taskmem/internal/task"
)

// Engine runs export, import, and sync against a single store.
type Engine struct {
	store *storage.Store
}

// NewEngine creates an exchange engine over the given store.
func NewEngine(store *storage.Store) *Engine {
	return &Engine{store: store}
}

// ExportOptions control what Export emits.
type ExportOptions struct {
	// List narrows the exported set; the zero value exports everything.
	List storage.ListOptions
	// ExcludeFields drops the named top-level fields from every record.
	// The id field is always kept.
	ExcludeFields []string
	// Compress gzips the output stream.
	Compress bool
}

// ExportReport summarizes an export run.
type ExportReport struct {
	Count int `json:"count"`
}

// record is the wire form of a task. Field order is fixed so that
// marshaling the same task always yields the same bytes.
type record struct {
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
	DueDate        string          `json:"due_date,omitempty"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
}

func toRecord(t *task.Task) record {
	r := record{
		ID:             t.ID,
		Title:          t.Title,
		Description:    t.Description,
		Status:         string(t.Status),
		Priority:       string(t.Priority),
		Assignee:       t.Assignee,
		Tags:           task.NormalizeTags(t.Tags),
		DependsOn:      t.DependsOn,
		Context:        t.Context,
		EstimatedHours: t.EstimatedHours,
		ActualHours:    t.ActualHours,
		CreatedAt:      t.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:      t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if t.DueDate != nil {
		r.DueDate = t.DueDate.UTC().Format(time.RFC3339Nano)
	}
	return r
}

func fromRecord(r record) (*task.Task, error) {
	t := &task.Task{
		ID:             r.ID,
		Title:          r.Title,
		Description:    r.Description,
		Status:         task.Status(r.Status),
		Priority:       task.Priority(r.Priority),
		Assignee:       r.Assignee,
		Tags:           task.NormalizeTags(r.Tags),
		DependsOn:      r.DependsOn,
		Context:        r.Context,
		EstimatedHours: r.EstimatedHours,
		ActualHours:    r.ActualHours,
	}
	if r.DueDate != "" {
		d, err := task.ParseTimestamp(r.DueDate)
		if err != nil {
			return nil, fmt.Errorf("due_date: %w", err)
		}
		t.DueDate = &d
	}
	if r.CreatedAt != "" {
		c, err := task.ParseTimestamp(r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("created_at: %w", err)
		}
		t.CreatedAt = c
	}
	if r.UpdatedAt != "" {
		u, err := task.ParseTimestamp(r.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("updated_at: %w", err)
		}
		t.UpdatedAt = u
	}
	return t, nil
}

// marshalRecord renders one JSONL line, minus any excluded fields.
func marshalRecord(r record, exclude []string) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	if len(exclude) == 0 {
		return b, nil
	}
	return stripFields(b, exclude)
}

// stripFields removes the named top-level keys from a JSON object while
// preserving the order of the remaining ones. The id key is never removed.
func stripFields(obj []byte, exclude []string) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(obj))
	if _, err := dec.Token(); err != nil { // opening brace
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key := tok.(string)
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		if key != "id" && slices.Contains(exclude, key) {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		kb, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Export writes matching tasks to w as JSONL, one task per line. With no
// sort key the lines are ordered by id; either way the ordering is total,
// so equal stores produce byte-identical output.
func (e *Engine) Export(ctx context.Context, w io.Writer, opts ExportOptions) (*ExportReport, error) {
	tasks, err := e.store.List(ctx, opts.List)
	if err != nil {
		return nil, err
	}
	if opts.List.SortBy == "" {
		sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	}

	out := w
	var gz *gzip.Writer
	if opts.Compress {
		gz = gzip.NewWriter(w)
		out = gz
	}
	bw := bufio.NewWriter(out)

	for _, t := range tasks {
		line, err := marshalRecord(toRecord(t), opts.ExcludeFields)
		if err != nil {
			return nil, fmt.Errorf("marshal task %s: %w", t.ID, err)
		}
		if _, err := bw.Write(line); err != nil {
			return nil, err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return nil, err
		}
	}
	if err := bw.Flush(); err != nil {
		return nil, err
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return nil, err
		}
	}
	return &ExportReport{Count: len(tasks)}, nil
}

// ExportFile exports to path, writing a temp file first and renaming it
// into place so readers never observe a half-written export.
func (e *Engine) ExportFile(ctx context.Context, path string, opts ExportOptions) (*ExportReport, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	report, err := e.Export(ctx, tmp, opts)
	if err != nil {
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return nil, err
	}
	return report, nil
}
