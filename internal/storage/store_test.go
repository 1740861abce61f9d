//nolint:testpackage // Tests require internal access for thorough testing
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/taskmem/taskmem/internal/task"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCreate(t *testing.T, s *Store, draft *task.Task) *task.Task {
	t.Helper()
	created, err := s.Create(context.Background(), draft)
	if err != nil {
		t.Fatalf("Create(%q): %v", draft.Title, err)
	}
	return created
}

func TestCreateAndGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	est := 2.5
	created := mustCreate(t, s, &task.Task{
		Title:          "write the report",
		Description:    "quarterly numbers",
		Assignee:       "sam",
		Tags:           []string{"work", "admin", "work"},
		Context:        json.RawMessage(`{"z":1,"a":2}`),
		EstimatedHours: &est,
	})

	if len(created.ID) != 8 {
		t.Errorf("id length = %d, want 8", len(created.ID))
	}
	if created.Status != task.StatusTodo || created.Priority != task.PriorityMedium {
		t.Errorf("defaults = %s/%s, want todo/medium", created.Status, created.Priority)
	}
	if created.CreatedAt.IsZero() || !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Error("created_at and updated_at should be set and equal")
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "write the report" || got.Assignee != "sam" {
		t.Errorf("unexpected fields: %+v", got)
	}
	if !slices.Equal(got.Tags, []string{"admin", "work"}) {
		t.Errorf("tags = %v, want sorted deduped", got.Tags)
	}
	// Context bytes survive verbatim, key order included.
	if string(got.Context) != `{"z":1,"a":2}` {
		t.Errorf("context = %s", got.Context)
	}
	if got.EstimatedHours == nil || *got.EstimatedHours != 2.5 {
		t.Errorf("estimated_hours = %v", got.EstimatedHours)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("created_at changed across reload: %v vs %v", got.CreatedAt, created.CreatedAt)
	}
}

func TestGetNotFound(t *testing.T) {
	s := openStore(t)

	_, err := s.Get(context.Background(), "nope1234")
	var nf TaskNotFoundError
	if !errors.As(err, &nf) || nf.ID != "nope1234" {
		t.Fatalf("expected TaskNotFoundError, got %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, &task.Task{})
	var ve task.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for empty title, got %v", err)
	}

	// Strict mode rejects unknown dependencies.
	_, err = s.Create(ctx, &task.Task{Title: "x", DependsOn: []string{"missing0"}})
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for unknown dep, got %v", err)
	}

	// Non-strict mode records it anyway.
	s.SetStrict(false)
	created := mustCreate(t, s, &task.Task{Title: "x", DependsOn: []string{"missing0"}})
	if !slices.Equal(created.DependsOn, []string{"missing0"}) {
		t.Errorf("depends_on = %v", created.DependsOn)
	}
}

func TestUpdate(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	created := mustCreate(t, s, &task.Task{Title: "before"})

	title := "after"
	status := task.StatusDoing
	actual := 1.25
	updated, err := s.Update(ctx, created.ID, Patch{
		Title:       &title,
		Status:      &status,
		ActualHours: &actual,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Title != "after" || updated.Status != task.StatusDoing {
		t.Errorf("unexpected fields: %+v", updated)
	}
	if updated.ActualHours == nil || *updated.ActualHours != 1.25 {
		t.Errorf("actual_hours = %v", updated.ActualHours)
	}
	if updated.UpdatedAt.Before(created.UpdatedAt) {
		t.Error("updated_at should not go backwards")
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Error("created_at must not change on update")
	}
	// Untouched fields keep their values.
	if updated.Priority != task.PriorityMedium {
		t.Errorf("priority = %s, want medium", updated.Priority)
	}
}

func TestUpdateInvalidIsAtomic(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	created := mustCreate(t, s, &task.Task{Title: "original"})

	title := "new title"
	bad := task.Status("open")
	_, err := s.Update(ctx, created.ID, Patch{Title: &title, Status: &bad})
	var ve task.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	// The valid half of the patch must not have been applied.
	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "original" || got.Status != task.StatusTodo {
		t.Errorf("record changed despite failed update: %+v", got)
	}
	if !got.UpdatedAt.Equal(created.UpdatedAt) {
		t.Error("updated_at changed despite failed update")
	}
}

func TestUpdateNotFound(t *testing.T) {
	s := openStore(t)

	title := "x"
	_, err := s.Update(context.Background(), "missing0", Patch{Title: &title})
	var nf TaskNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected TaskNotFoundError, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	created := mustCreate(t, s, &task.Task{Title: "doomed"})
	if err := s.Delete(ctx, created.ID, false); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, created.ID); err == nil {
		t.Error("task should be gone")
	}

	var nf TaskNotFoundError
	if err := s.Delete(ctx, created.ID, false); !errors.As(err, &nf) {
		t.Errorf("expected TaskNotFoundError, got %v", err)
	}
}

func TestDeleteReferentialIntegrity(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	a := mustCreate(t, s, &task.Task{Title: "a"})
	b := mustCreate(t, s, &task.Task{Title: "b", DependsOn: []string{a.ID}})

	err := s.Delete(ctx, a.ID, false)
	var ri ReferentialIntegrityError
	if !errors.As(err, &ri) {
		t.Fatalf("expected ReferentialIntegrityError, got %v", err)
	}
	if !slices.Equal(ri.Dependents, []string{b.ID}) {
		t.Errorf("dependents = %v, want [%s]", ri.Dependents, b.ID)
	}

	// Force delete succeeds and leaves b's reference dangling.
	if err := s.Delete(ctx, a.ID, true); err != nil {
		t.Fatalf("forced Delete: %v", err)
	}
	blocked, err := s.BlockedTasks(ctx)
	if err != nil {
		t.Fatalf("BlockedTasks: %v", err)
	}
	if len(blocked) != 1 || blocked[0].ID != b.ID {
		t.Errorf("b should be blocked by its dangling reference, got %v", blocked)
	}
}

func TestList(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	mustCreate(t, s, &task.Task{Title: "one", Assignee: "sam", Tags: []string{"infra"}})
	two := mustCreate(t, s, &task.Task{Title: "two", Assignee: "alex", Priority: task.PriorityHigh})
	mustCreate(t, s, &task.Task{Title: "three", Assignee: "sam", Tags: []string{"infra", "db"}})
	done := task.StatusDone
	if _, err := s.Update(ctx, two.ID, Patch{Status: &done}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	tests := []struct {
		name string
		opts ListOptions
		want int
	}{
		{"all", ListOptions{}, 3},
		{"by assignee", ListOptions{Assignee: "sam"}, 2},
		{"by status", ListOptions{Statuses: []task.Status{task.StatusDone}}, 1},
		{"by tag", ListOptions{Tags: []string{"db"}}, 1},
		{"tag any match", ListOptions{Tags: []string{"db", "infra"}}, 2},
		{"by priority", ListOptions{Priority: task.PriorityHigh}, 1},
		{"conjunction", ListOptions{Assignee: "sam", Tags: []string{"db"}}, 1},
		{"no match", ListOptions{Assignee: "nobody"}, 0},
		{"limit", ListOptions{Limit: 2}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.List(ctx, tt.opts)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("List(%+v) length = %d, want %d", tt.opts, len(got), tt.want)
			}
		})
	}
}

func TestListSort(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	mustCreate(t, s, &task.Task{Title: "bbb", Priority: task.PriorityLow})
	mustCreate(t, s, &task.Task{Title: "aaa", Priority: task.PriorityUrgent})
	mustCreate(t, s, &task.Task{Title: "ccc", Priority: task.PriorityMedium})

	byTitle, err := s.List(ctx, ListOptions{SortBy: "title"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	titles := []string{byTitle[0].Title, byTitle[1].Title, byTitle[2].Title}
	if !slices.Equal(titles, []string{"aaa", "bbb", "ccc"}) {
		t.Errorf("title order = %v", titles)
	}

	byPriority, err := s.List(ctx, ListOptions{SortBy: "priority"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if byPriority[0].Priority != task.PriorityUrgent {
		t.Errorf("first by priority = %s, want urgent", byPriority[0].Priority)
	}

	reversed, err := s.List(ctx, ListOptions{SortBy: "title", Reverse: true})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if reversed[0].Title != "ccc" {
		t.Errorf("reversed first = %s, want ccc", reversed[0].Title)
	}
}

func TestReadyAndBlockedTasks(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	x := mustCreate(t, s, &task.Task{Title: "x"})
	y := mustCreate(t, s, &task.Task{Title: "y", DependsOn: []string{x.ID}})
	z := mustCreate(t, s, &task.Task{Title: "z", DependsOn: []string{y.ID}})

	ready, err := s.ReadyTasks(ctx)
	if err != nil {
		t.Fatalf("ReadyTasks: %v", err)
	}
	if len(ready) != 1 || ready[0].ID != x.ID {
		t.Fatalf("ready = %v, want only x", ready)
	}

	done := task.StatusDone
	if _, err := s.Update(ctx, x.ID, Patch{Status: &done}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	ready, err = s.ReadyTasks(ctx)
	if err != nil {
		t.Fatalf("ReadyTasks: %v", err)
	}
	if len(ready) != 1 || ready[0].ID != y.ID {
		t.Fatalf("after closing x, ready = %v, want only y", ready)
	}

	blocked, err := s.BlockedTasks(ctx)
	if err != nil {
		t.Fatalf("BlockedTasks: %v", err)
	}
	if len(blocked) != 1 || blocked[0].ID != z.ID {
		t.Fatalf("blocked = %v, want only z", blocked)
	}
}

func TestPutPreservesRecord(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	updated := time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)
	in := &task.Task{
		ID:        "fixed001",
		Title:     "imported",
		Status:    task.StatusDone,
		Priority:  task.PriorityHigh,
		CreatedAt: created,
		UpdatedAt: updated,
	}
	if err := s.Put(ctx, in); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, "fixed001")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.CreatedAt.Equal(created) || !got.UpdatedAt.Equal(updated) {
		t.Errorf("timestamps not preserved: %v %v", got.CreatedAt, got.UpdatedAt)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	created := mustCreate(t, s, &task.Task{Title: "durable"})
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	got, err := s2.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.Title != "durable" {
		t.Errorf("title = %s", got.Title)
	}
}

func TestIsolatedStores(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	a, err := Open(filepath.Join(dir, "a.db"))
	if err != nil {
		t.Fatalf("Open a: %v", err)
	}
	defer a.Close()
	b, err := Open(filepath.Join(dir, "b.db"))
	if err != nil {
		t.Fatalf("Open b: %v", err)
	}
	defer b.Close()

	created := mustCreate(t, a, &task.Task{Title: "only in a"})

	if _, err := b.Get(ctx, created.ID); err == nil {
		t.Error("task from store a should not be visible in store b")
	}
}
