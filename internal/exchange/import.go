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
	"strings"
	"time"

	"github.com/taskmem/taskmem/internal/task"
)

// Strategy decides what happens when an imported record's id already
// exists in the store.
type Strategy string

const (
	// StrategySkip keeps the stored record and drops the incoming one.
	StrategySkip Strategy = "skip"
	// StrategyOverwrite replaces the stored record unconditionally.
	StrategyOverwrite Strategy = "overwrite"
	// StrategyMerge keeps whichever record has the newer updated_at.
	StrategyMerge Strategy = "merge"
	// StrategyCreateNew imports the record under a fresh id.
	StrategyCreateNew Strategy = "create-new"
)

// ParseStrategy converts a user-supplied string to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategySkip, StrategyOverwrite, StrategyMerge, StrategyCreateNew:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown conflict strategy %q (skip, overwrite, merge, create-new)", s)
}

// ImportOptions control an import run.
type ImportOptions struct {
	// Strategy resolves id conflicts; defaults to skip.
	Strategy Strategy
	// Validate runs each record through task validation before writing.
	Validate bool
	// Strict promotes unresolved depends_on references to per-record errors.
	Strict bool
	// DryRun reports what would happen without writing anything.
	DryRun bool
}

// ImportError locates one rejected or noteworthy record.
type ImportError struct {
	Line    int    `json:"line"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message"`
}

func (e ImportError) String() string {
	if e.ID != "" {
		return fmt.Sprintf("line %d (%s): %s", e.Line, e.ID, e.Message)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// ImportReport tallies the outcome of every line in the input.
type ImportReport struct {
	Created     int           `json:"created"`
	Skipped     int           `json:"skipped"`
	Overwritten int           `json:"overwritten"`
	Merged      int           `json:"merged"`
	Reassigned  int           `json:"reassigned"`
	Errors      []ImportError `json:"errors,omitempty"`
	Warnings    []ImportError `json:"warnings,omitempty"`
}

// Total returns how many records were written or counted as kept.
func (r *ImportReport) Total() int {
	return r.Created + r.Skipped + r.Overwritten + r.Merged + r.Reassigned
}

// Import reads JSONL records from r and applies them to the store. A bad
// line is recorded as an error and the rest of the input still imports.
// Gzipped input is detected from the stream itself.
func (e *Engine) Import(ctx context.Context, r io.Reader, opts ImportOptions) (*ImportReport, error) {
	if opts.Strategy == "" {
		opts.Strategy = StrategySkip
	}

	br := bufio.NewReader(r)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		br = bufio.NewReader(gz)
	}

	ids, err := e.store.AllIDs(ctx)
	if err != nil {
		return nil, err
	}

	report := &ImportReport{}
	scanner := bufio.NewScanner(br)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		e.importLine(ctx, raw, line, ids, opts, report)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return report, nil
}

// ImportFile imports from a plain or gzipped JSONL file.
func (e *Engine) ImportFile(ctx context.Context, path string, opts ImportOptions) (*ImportReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return e.Import(ctx, f, opts)
}

func (e *Engine) importLine(ctx context.Context, raw []byte, line int, ids map[string]bool, opts ImportOptions, report *ImportReport) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		report.Errors = append(report.Errors, ImportError{Line: line, Message: "invalid JSON: " + err.Error()})
		return
	}
	t, err := fromRecord(rec)
	if err != nil {
		report.Errors = append(report.Errors, ImportError{Line: line, ID: rec.ID, Message: err.Error()})
		return
	}
	applyDefaults(t)

	if opts.Validate {
		res := task.Validate(t, task.Options{
			Strict: opts.Strict,
			Exists: func(id string) bool { return id == t.ID || ids[id] },
		})
		if !res.Valid {
			ve := task.ValidationError{Errors: res.Errors}
			report.Errors = append(report.Errors, ImportError{Line: line, ID: t.ID, Message: ve.Error()})
			return
		}
		for _, w := range res.Warnings {
			report.Warnings = append(report.Warnings, ImportError{Line: line, ID: t.ID, Message: w.String()})
		}
	}

	if t.ID == "" || !ids[t.ID] {
		if t.ID == "" {
			t.ID = task.GenerateID(t.Title, t.CreatedAt, func(id string) bool { return ids[id] })
		}
		if !opts.DryRun {
			if err := e.store.Put(ctx, t); err != nil {
				report.Errors = append(report.Errors, ImportError{Line: line, ID: t.ID, Message: err.Error()})
				return
			}
		}
		ids[t.ID] = true
		report.Created++
		return
	}

	switch opts.Strategy {
	case StrategySkip:
		report.Skipped++

	case StrategyOverwrite:
		if !opts.DryRun {
			if err := e.store.Put(ctx, t); err != nil {
				report.Errors = append(report.Errors, ImportError{Line: line, ID: t.ID, Message: err.Error()})
				return
			}
		}
		report.Overwritten++

	case StrategyMerge:
		stored, err := e.store.Get(ctx, t.ID)
		if err != nil {
			report.Errors = append(report.Errors, ImportError{Line: line, ID: t.ID, Message: err.Error()})
			return
		}
		if !t.UpdatedAt.After(stored.UpdatedAt) {
			report.Skipped++
			return
		}
		if !opts.DryRun {
			if err := e.store.Put(ctx, t); err != nil {
				report.Errors = append(report.Errors, ImportError{Line: line, ID: t.ID, Message: err.Error()})
				return
			}
		}
		report.Merged++

	case StrategyCreateNew:
		oldID := t.ID
		t.ID = task.GenerateID(t.Title, t.CreatedAt, func(id string) bool { return ids[id] })
		if !opts.DryRun {
			if err := e.store.Put(ctx, t); err != nil {
				report.Errors = append(report.Errors, ImportError{Line: line, ID: t.ID, Message: err.Error()})
				return
			}
		}
		ids[t.ID] = true
		report.Reassigned++
		report.Warnings = append(report.Warnings, ImportError{
			Line: line, ID: t.ID,
			Message: "conflicting id " + oldID + " reassigned",
		})
	}
}

// applyDefaults fills the fields a hand-written or foreign record may
// omit, mirroring what Create would have assigned.
func applyDefaults(t *task.Task) {
	if t.Status == "" {
		t.Status = task.StatusTodo
	}
	if t.Priority == "" {
		t.Priority = task.PriorityMedium
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	t.Assignee = strings.TrimSpace(t.Assignee)
}
