package core

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/valter-silva-au/taskdeck/internal/storage"
	"github.com/valter-silva-au/taskdeck/pkg/models"
)

// plantTask writes a task document directly, bypassing create-time dependency
// validation the way hand-edited or imported files do.
func plantTask(t *testing.T, dir string, status models.Status, task *models.Task) {
	t.Helper()
	data, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("marshalling task: %v", err)
	}
	path := filepath.Join(dir, string(status), task.ID+".json")
	if err := os.WriteFile(path, data, 0o640); err != nil {
		t.Fatalf("writing task file: %v", err)
	}
}

func TestRepairScanProposesSubstringMatch(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewTaskStore(dir)
	if err != nil {
		t.Fatalf("NewTaskStore: %v", err)
	}

	mustCreate(t, store, "Implement retry logic", 10)
	plantTask(t, dir, models.StatusTodo, &models.Task{
		ID:           "broken-1",
		Name:         "Depends on a typo",
		Category:     models.CategoryFeature,
		Effort:       models.EffortS,
		Dependencies: []string{"retry logic"},
	})

	report, err := NewDependencyRepairer(store).Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(report.Proposals) != 1 {
		t.Fatalf("got %d proposals, want 1: %+v", len(report.Proposals), report)
	}
	p := report.Proposals[0]
	if p.TaskID != "broken-1" || p.Suggestion != "Implement retry logic" || p.MatchKind != "substring" {
		t.Errorf("proposal = %+v", p)
	}
}

func TestRepairScanLeavesAmbiguousUnmatched(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewTaskStore(dir)
	if err != nil {
		t.Fatalf("NewTaskStore: %v", err)
	}

	mustCreate(t, store, "Parser frontend", 10)
	mustCreate(t, store, "Parser backend", 20)
	plantTask(t, dir, models.StatusTodo, &models.Task{
		ID:           "broken-2",
		Name:         "Ambiguous reference",
		Category:     models.CategoryFeature,
		Effort:       models.EffortS,
		Dependencies: []string{"Parser"},
	})

	report, err := NewDependencyRepairer(store).Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(report.Proposals) != 0 {
		t.Errorf("ambiguous reference produced proposals: %+v", report.Proposals)
	}
	if len(report.Unmatched) != 1 || report.Unmatched[0].Dependency != "Parser" {
		t.Errorf("unmatched = %+v, want the ambiguous reference", report.Unmatched)
	}
}

func TestRepairApplyRewritesDependencies(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewTaskStore(dir)
	if err != nil {
		t.Fatalf("NewTaskStore: %v", err)
	}

	mustCreate(t, store, "Implement retry logic", 10)
	plantTask(t, dir, models.StatusTodo, &models.Task{
		ID:           "broken-3",
		Name:         "Needs repair",
		Category:     models.CategoryFeature,
		Effort:       models.EffortS,
		Dependencies: []string{"retry logic"},
	})

	repairer := NewDependencyRepairer(store)
	report, err := repairer.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if err := repairer.Apply(report); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if report.Applied != 1 {
		t.Errorf("Applied = %d, want 1", report.Applied)
	}

	fixed, err := store.GetByID("broken-3")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(fixed.Dependencies) != 1 || fixed.Dependencies[0] != "Implement retry logic" {
		t.Errorf("dependencies = %v after apply", fixed.Dependencies)
	}
	if fixed.Status != models.StatusTodo {
		t.Errorf("status changed during repair: %q", fixed.Status)
	}

	// The rewritten reference now resolves, so a rescan is clean.
	clean, err := repairer.Scan()
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if len(clean.Proposals) != 0 || len(clean.Unmatched) != 0 {
		t.Errorf("rescan still dirty: %+v", clean)
	}
}

func TestFuzzyMatchKinds(t *testing.T) {
	tasks := []*models.Task{
		{ID: "a", Name: "Wire_up metrics"},
		{ID: "b", Name: "Ship the dashboard"},
	}

	if target, kind := fuzzyMatch("wire_up METRICS", tasks, ""); target == nil || kind != "case" {
		t.Errorf("case-insensitive match = %v/%q", target, kind)
	}
	if target, kind := fuzzyMatch("dashboard", tasks, ""); target == nil || kind != "substring" {
		t.Errorf("substring match = %v/%q", target, kind)
	}
	if target, _ := fuzzyMatch("nothing like this", tasks, ""); target != nil {
		t.Errorf("implausible reference matched %v", target)
	}
	// A task never matches itself.
	if target, _ := fuzzyMatch("dashboard", tasks, "b"); target != nil {
		t.Errorf("self-match returned %v", target)
	}
}
