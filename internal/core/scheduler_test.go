package core

import (
	"testing"

	"github.com/valter-silva-au/taskdeck/internal/storage"
	"github.com/valter-silva-au/taskdeck/pkg/models"
)

func newTestStore(t *testing.T) storage.TaskStore {
	t.Helper()
	store, err := storage.NewTaskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewTaskStore: %v", err)
	}
	return store
}

func mustCreate(t *testing.T, store storage.TaskStore, name string, priority int, deps ...string) *models.Task {
	t.Helper()
	task, err := store.Create(storage.TaskDraft{
		Name:         name,
		Category:     models.CategoryFeature,
		Priority:     priority,
		Effort:       models.EffortM,
		Dependencies: deps,
	})
	if err != nil {
		t.Fatalf("creating %q: %v", name, err)
	}
	return task
}

func mustMove(t *testing.T, store storage.TaskStore, id string, from, to models.Status) {
	t.Helper()
	if _, err := store.Transition(id, []models.Status{from}, to, nil); err != nil {
		t.Fatalf("moving %s from %s to %s: %v", id, from, to, err)
	}
}

func TestGetNextPrefersLowerPriority(t *testing.T) {
	store := newTestStore(t)
	scheduler := NewScheduler(store)

	low := mustCreate(t, store, "low urgency", 200)
	high := mustCreate(t, store, "high urgency", 10)

	selection, err := scheduler.GetNext(PoolTodo)
	if err != nil {
		t.Fatalf("GetNext: %v", err)
	}
	if selection.Task == nil || selection.Task.ID != high.ID {
		t.Fatalf("selected %v, want high-urgency task %s", selection.Task, high.ID)
	}
	_ = low
}

func TestGetNextSkipsBlockedRegardlessOfPriority(t *testing.T) {
	store := newTestStore(t)
	scheduler := NewScheduler(store)

	dep := mustCreate(t, store, "prerequisite", 500)
	blocked := mustCreate(t, store, "urgent but blocked", 1, "prerequisite")
	fallback := mustCreate(t, store, "boring but free", 300)

	selection, err := scheduler.GetNext(PoolTodo)
	if err != nil {
		t.Fatalf("GetNext: %v", err)
	}
	if selection.Task == nil {
		t.Fatal("GetNext returned no task")
	}
	// The blocked task has the best priority but its dependency is not done.
	// The scheduler must fall through to the free task, never to the blocked
	// one: its dependency exists (so it is not dangling) yet is unmet.
	if selection.Task.ID == blocked.ID {
		t.Fatal("scheduler selected a blocked task")
	}
	if selection.Task.ID != fallback.ID {
		t.Fatalf("selected %s, want the free task %s", selection.Task.ID, fallback.ID)
	}
	_ = dep
	if selection.BlockedCount != 1 {
		t.Errorf("BlockedCount = %d, want 1", selection.BlockedCount)
	}
}

func TestGetNextUnblocksWhenDependencyDone(t *testing.T) {
	store := newTestStore(t)
	scheduler := NewScheduler(store)

	dep := mustCreate(t, store, "prerequisite", 500)
	blocked := mustCreate(t, store, "urgent but blocked", 1, "prerequisite")

	mustMove(t, store, dep.ID, models.StatusTodo, models.StatusInProgress)
	mustMove(t, store, dep.ID, models.StatusInProgress, models.StatusDone)

	selection, err := scheduler.GetNext(PoolTodo)
	if err != nil {
		t.Fatalf("GetNext: %v", err)
	}
	if selection.Task == nil || selection.Task.ID != blocked.ID {
		t.Fatalf("selected %v, want the now-unblocked task", selection.Task)
	}
	if selection.BlockedCount != 0 {
		t.Errorf("BlockedCount = %d, want 0", selection.BlockedCount)
	}
}

func TestGetNextAnalysedPool(t *testing.T) {
	store := newTestStore(t)
	scheduler := NewScheduler(store)

	todoOnly := mustCreate(t, store, "still raw", 1)
	analysed := mustCreate(t, store, "ready to build", 50)
	mustMove(t, store, analysed.ID, models.StatusTodo, models.StatusAnalysing)
	mustMove(t, store, analysed.ID, models.StatusAnalysing, models.StatusAnalysed)

	// Default pool draws from analysed, ignoring even better-priority todo.
	selection, err := scheduler.GetNext("")
	if err != nil {
		t.Fatalf("GetNext: %v", err)
	}
	if selection.Task == nil || selection.Task.ID != analysed.ID {
		t.Fatalf("selected %v, want analysed task", selection.Task)
	}
	_ = todoOnly
}

func TestGetNextRejectsUnknownPool(t *testing.T) {
	scheduler := NewScheduler(newTestStore(t))
	if _, err := scheduler.GetNext("urgent"); err == nil {
		t.Error("GetNext accepted an unknown pool")
	}
}

func TestGetNextEmptySelectionCarriesCounts(t *testing.T) {
	store := newTestStore(t)
	scheduler := NewScheduler(store)

	task := mustCreate(t, store, "only one", 10)
	mustMove(t, store, task.ID, models.StatusTodo, models.StatusInProgress)

	selection, err := scheduler.GetNext(PoolTodo)
	if err != nil {
		t.Fatalf("GetNext: %v", err)
	}
	if selection.Task != nil {
		t.Fatalf("selected %v, want nothing", selection.Task)
	}
	if selection.StateCounts[models.StatusInProgress] != 1 {
		t.Errorf("StateCounts = %v, want in-progress 1", selection.StateCounts)
	}
}
