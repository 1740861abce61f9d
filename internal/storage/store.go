package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite driver

	"github.com/taskmem/taskmem/internal/deps"
	"github.com/taskmem/taskmem/internal/task"
)

const timeLayout = time.RFC3339Nano

// Store persists tasks in a single embedded SQLite database file.
//
// A Store is an explicit handle constructed from a path, never a
// process-wide singleton, so multiple isolated instances can coexist.
// Every mutating operation runs inside one transaction: either the full
// set of field changes commits, or none do.
type Store struct {
	db      *sql.DB
	path    string
	strict  bool
	maxDeps int
}

// Open opens the task database at path, creating the file and its parent
// directory if needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, IOError{Op: "open", Err: err}
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, IOError{Op: "open", Err: err}
	}
	// A single connection serializes writers and keeps transactions from
	// tripping over each other on the shared file.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, path: path, strict: true}
	if err := s.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetStrict controls whether create/update treat unresolved depends_on
// references as hard errors (default) or warnings.
func (s *Store) SetStrict(strict bool) {
	s.strict = strict
}

// SetMaxDependsOn overrides the dependency cap applied at validation.
func (s *Store) SetMaxDependsOn(n int) {
	s.maxDeps = n
}

func (s *Store) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		return IOError{Op: "init", Err: err}
	}
	schema := `
		CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			priority TEXT NOT NULL,
			assignee TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '[]',
			depends_on TEXT NOT NULL DEFAULT '[]',
			context TEXT NOT NULL DEFAULT '',
			estimated_hours REAL,
			actual_hours REAL,
			due_date TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
		CREATE INDEX IF NOT EXISTS idx_tasks_assignee ON tasks(assignee);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return IOError{Op: "init", Err: err}
	}
	return nil
}

// Create validates the draft, assigns an id and timestamps, and persists
// it. The draft's id, created_at, and updated_at are ignored; status
// defaults to todo and priority to medium.
func (s *Store) Create(ctx context.Context, draft *task.Task) (*task.Task, error) {
	now := time.Now().UTC()
	t := draft.Clone()
	t.ID = ""
	if t.Status == "" {
		t.Status = task.StatusTodo
	}
	if t.Priority == "" {
		t.Priority = task.PriorityMedium
	}
	t.Tags = task.NormalizeTags(t.Tags)
	t.CreatedAt, t.UpdatedAt = now, now

	err := s.withTx(ctx, "create", func(tx *sql.Tx) error {
		ids, err := allIDsTx(ctx, tx)
		if err != nil {
			return err
		}
		res := task.Validate(t, s.validateOptions(ids))
		if !res.Valid {
			return task.ValidationError{Errors: res.Errors}
		}
		t.ID = task.GenerateID(t.Title, now, func(id string) bool { return ids[id] })
		return insertTx(ctx, tx, t, false)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Get returns the task with the given id.
func (s *Store) Get(ctx context.Context, id string) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" FROM tasks WHERE id = ?", id)
	t, err := scanTask(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, TaskNotFoundError{ID: id}
	}
	if err != nil {
		return nil, IOError{Op: "get", Err: err}
	}
	return t, nil
}

// Update applies the patch to the stored record, re-validates the full
// result, and refreshes updated_at. If validation fails nothing is
// applied, not even the valid fields of the patch.
func (s *Store) Update(ctx context.Context, id string, patch Patch) (*task.Task, error) {
	var updated *task.Task
	err := s.withTx(ctx, "update", func(tx *sql.Tx) error {
		t, err := getTx(ctx, tx, id)
		if err != nil {
			return err
		}
		patch.apply(t)
		t.UpdatedAt = time.Now().UTC()

		ids, err := allIDsTx(ctx, tx)
		if err != nil {
			return err
		}
		res := task.Validate(t, s.validateOptions(ids))
		if !res.Valid {
			return task.ValidationError{Errors: res.Errors}
		}
		updated = t
		return insertTx(ctx, tx, t, true)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the task. If other tasks depend on it the delete is
// rejected unless force is set, in which case their references are left
// dangling (surfaced as warnings by later non-strict validation).
func (s *Store) Delete(ctx context.Context, id string, force bool) error {
	return s.withTx(ctx, "delete", func(tx *sql.Tx) error {
		if _, err := getTx(ctx, tx, id); err != nil {
			return err
		}
		if !force {
			dependents, err := dependentsTx(ctx, tx, id)
			if err != nil {
				return err
			}
			if len(dependents) > 0 {
				return ReferentialIntegrityError{ID: id, Dependents: dependents}
			}
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
		return err
	})
}

// Put upserts a record verbatim, preserving its id and timestamps. It is
// the import path; callers are responsible for validation.
func (s *Store) Put(ctx context.Context, t *task.Task) error {
	c := t.Clone()
	c.Tags = task.NormalizeTags(c.Tags)
	return s.withTx(ctx, "put", func(tx *sql.Tx) error {
		return insertTx(ctx, tx, c, true)
	})
}

// ListOptions filter and order a listing. The filters are a conjunction;
// the status and tag sets are ORs within themselves.
type ListOptions struct {
	Statuses []task.Status
	Assignee string
	Tags     []string
	Priority task.Priority
	SortBy   string // created_at (default), updated_at, title, priority, status
	Reverse  bool
	Limit    int
}

func (o ListOptions) matches(t *task.Task) bool {
	if len(o.Statuses) > 0 && !slices.Contains(o.Statuses, t.Status) {
		return false
	}
	if o.Assignee != "" && t.Assignee != o.Assignee {
		return false
	}
	if len(o.Tags) > 0 {
		found := false
		for _, tag := range o.Tags {
			if slices.Contains(t.Tags, tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if o.Priority != "" && t.Priority != o.Priority {
		return false
	}
	return true
}

// List returns tasks matching the filters, ordered by the sort key with
// ties broken by id ascending for determinism.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]*task.Task, error) {
	all, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	tasks := make([]*task.Task, 0, len(all))
	for _, t := range all {
		if opts.matches(t) {
			tasks = append(tasks, t)
		}
	}

	sort.Slice(tasks, func(i, j int) bool {
		return task.Less(tasks[i], tasks[j], opts.SortBy)
	})
	if opts.Reverse {
		slices.Reverse(tasks)
	}
	if opts.Limit > 0 && len(tasks) > opts.Limit {
		tasks = tasks[:opts.Limit]
	}
	return tasks, nil
}

// Snapshot returns every task in one consistent read, for graph analysis.
func (s *Store) Snapshot(ctx context.Context) ([]*task.Task, error) {
	return s.loadAll(ctx)
}

// ReadyTasks returns non-terminal tasks whose dependencies are all done.
func (s *Store) ReadyTasks(ctx context.Context) ([]*task.Task, error) {
	all, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	return deps.NewGraph(all).Ready(), nil
}

// BlockedTasks returns non-terminal tasks with at least one unmet dependency.
func (s *Store) BlockedTasks(ctx context.Context) ([]*task.Task, error) {
	all, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	return deps.NewGraph(all).Blocked(), nil
}

// AllIDs returns the set of stored task ids.
func (s *Store) AllIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM tasks")
	if err != nil {
		return nil, IOError{Op: "list", Err: err}
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, IOError{Op: "list", Err: err}
		}
		ids[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, IOError{Op: "list", Err: err}
	}
	return ids, nil
}

// Exists checks if a task with the given id exists.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM tasks WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, IOError{Op: "get", Err: err}
	}
	return true, nil
}

func (s *Store) validateOptions(ids map[string]bool) task.Options {
	return task.Options{
		Strict:       s.strict,
		MaxDependsOn: s.maxDeps,
		Exists:       func(id string) bool { return ids[id] },
	}
}

func (s *Store) loadAll(ctx context.Context) ([]*task.Task, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+" FROM tasks ORDER BY id")
	if err != nil {
		return nil, IOError{Op: "list", Err: err}
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, IOError{Op: "list", Err: err}
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, IOError{Op: "list", Err: err}
	}
	return tasks, nil
}

// withTx runs fn inside a transaction, rolling back on any error. Typed
// domain errors pass through unchanged; anything else is wrapped as an
// IOError for the operation.
func (s *Store) withTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return IOError{Op: op, Err: err}
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return wrapTxErr(op, err)
	}
	if err := tx.Commit(); err != nil {
		return IOError{Op: op, Err: err}
	}
	return nil
}

func wrapTxErr(op string, err error) error {
	var nf TaskNotFoundError
	var ri ReferentialIntegrityError
	var ve task.ValidationError
	if errors.As(err, &nf) || errors.As(err, &ri) || errors.As(err, &ve) {
		return err
	}
	return IOError{Op: op, Err: err}
}

// Patch carries the fields to change in an update; nil fields are left
// untouched.
type Patch struct {
	Title          *string
	Description    *string
	Status         *task.Status
	Priority       *task.Priority
	Assignee       *string
	Tags           *[]string
	DependsOn      *[]string
	Context        *json.RawMessage
	EstimatedHours *float64
	ActualHours    *float64
	DueDate        *time.Time
}

func (p Patch) apply(t *task.Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Assignee != nil {
		t.Assignee = *p.Assignee
	}
	if p.Tags != nil {
		t.Tags = task.NormalizeTags(*p.Tags)
	}
	if p.DependsOn != nil {
		t.DependsOn = slices.Clone(*p.DependsOn)
	}
	if p.Context != nil {
		t.Context = slices.Clone(*p.Context)
	}
	if p.EstimatedHours != nil {
		t.EstimatedHours = p.EstimatedHours
	}
	if p.ActualHours != nil {
		t.ActualHours = p.ActualHours
	}
	if p.DueDate != nil {
		t.DueDate = p.DueDate
	}
}

const selectColumns = `SELECT id, title, description, status, priority, assignee,
	tags, depends_on, context, estimated_hours, actual_hours, due_date,
	created_at, updated_at`

func insertTx(ctx context.Context, tx *sql.Tx, t *task.Task, replace bool) error {
	verb := "INSERT"
	if replace {
		verb = "INSERT OR REPLACE"
	}
	tags, err := encodeStrings(t.Tags)
	if err != nil {
		return err
	}
	dependsOn, err := encodeStrings(t.DependsOn)
	if err != nil {
		return err
	}

	var est, act any
	if t.EstimatedHours != nil {
		est = *t.EstimatedHours
	}
	if t.ActualHours != nil {
		act = *t.ActualHours
	}
	var due any
	if t.DueDate != nil {
		due = t.DueDate.UTC().Format(timeLayout)
	}

	_, err = tx.ExecContext(ctx, verb+` INTO tasks
		(id, title, description, status, priority, assignee, tags, depends_on,
		 context, estimated_hours, actual_hours, due_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, string(t.Status), string(t.Priority),
		t.Assignee, tags, dependsOn, string(t.Context), est, act, due,
		t.CreatedAt.UTC().Format(timeLayout), t.UpdatedAt.UTC().Format(timeLayout),
	)
	return err
}

func getTx(ctx context.Context, tx *sql.Tx, id string) (*task.Task, error) {
	row := tx.QueryRowContext(ctx, selectColumns+" FROM tasks WHERE id = ?", id)
	t, err := scanTask(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, TaskNotFoundError{ID: id}
	}
	return t, err
}

func allIDsTx(ctx context.Context, tx *sql.Tx) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, "SELECT id FROM tasks")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// dependentsTx returns ids of tasks whose depends_on contains id, sorted.
func dependentsTx(ctx context.Context, tx *sql.Tx, id string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, "SELECT id, depends_on FROM tasks")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dependents []string
	for rows.Next() {
		var tid, raw string
		if err := rows.Scan(&tid, &raw); err != nil {
			return nil, err
		}
		depsList, err := decodeStrings(raw)
		if err != nil {
			return nil, err
		}
		if slices.Contains(depsList, id) {
			dependents = append(dependents, tid)
		}
	}
	sort.Strings(dependents)
	return dependents, rows.Err()
}

func scanTask(scanFn func(dest ...any) error) (*task.Task, error) {
	var t task.Task
	var status, priority, tags, dependsOn, contextRaw string
	var est, act sql.NullFloat64
	var due sql.NullString
	var createdAt, updatedAt string

	if err := scanFn(
		&t.ID, &t.Title, &t.Description, &status, &priority, &t.Assignee,
		&tags, &dependsOn, &contextRaw, &est, &act, &due,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	t.Status = task.Status(status)
	t.Priority = task.Priority(priority)

	var err error
	if t.Tags, err = decodeStrings(tags); err != nil {
		return nil, err
	}
	if t.DependsOn, err = decodeStrings(dependsOn); err != nil {
		return nil, err
	}
	if contextRaw != "" {
		t.Context = json.RawMessage(contextRaw)
	}
	if est.Valid {
		v := est.Float64
		t.EstimatedHours = &v
	}
	if act.Valid {
		v := act.Float64
		t.ActualHours = &v
	}
	if due.Valid && due.String != "" {
		d, err := time.Parse(timeLayout, due.String)
		if err != nil {
			return nil, err
		}
		t.DueDate = &d
	}
	if t.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func encodeStrings(values []string) (string, error) {
	if len(values) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeStrings(raw string) ([]string, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, err
	}
	return values, nil
}
