package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/valter-silva-au/taskdeck/internal/core"
	"github.com/valter-silva-au/taskdeck/internal/storage"
	"github.com/valter-silva-au/taskdeck/pkg/models"
)

// --- Fake implementations ---

type fakeTaskService struct {
	tasks     map[string]*models.Task
	selection *core.Selection
	stats     *storage.Stats
	nextID    int
}

func newFakeTaskService(tasks ...*models.Task) *fakeTaskService {
	f := &fakeTaskService{tasks: make(map[string]*models.Task), nextID: 1}
	for _, t := range tasks {
		f.tasks[t.ID] = t
	}
	return f
}

func (f *fakeTaskService) Create(draft storage.TaskDraft) (*models.Task, error) {
	if draft.Name == "" {
		return nil, &storage.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	id := fmt.Sprintf("fake-id-%04d", f.nextID)
	f.nextID++
	task := &models.Task{
		ID:           id,
		Name:         draft.Name,
		Description:  draft.Description,
		Category:     draft.Category,
		Priority:     draft.Priority,
		Effort:       draft.Effort,
		Dependencies: draft.Dependencies,
		Status:       models.StatusTodo,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	f.tasks[task.ID] = task
	return task, nil
}

func (f *fakeTaskService) CreateBulk(drafts []storage.TaskDraft) (*storage.BulkResult, error) {
	result := &storage.BulkResult{}
	for i, d := range drafts {
		t, err := f.Create(d)
		if err != nil {
			result.Errors = append(result.Errors, storage.BulkError{Index: i, Field: "name", Error: err.Error()})
			continue
		}
		result.Created = append(result.Created, t)
	}
	return result, nil
}

func (f *fakeTaskService) List(filter storage.TaskFilter) ([]*models.Task, error) {
	var out []*models.Task
	for _, t := range f.tasks {
		if len(filter.Statuses) > 0 && t.Status != filter.Statuses[0] {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeTaskService) Get(id string) (*models.Task, error) {
	t, ok := f.tasks[id]
	if !ok {
		return nil, &storage.NotFoundError{ID: id}
	}
	return t, nil
}

func (f *fakeTaskService) GetNext(_ core.Pool) (*core.Selection, error) {
	if f.selection != nil {
		return f.selection, nil
	}
	return &core.Selection{StateCounts: map[models.Status]int{}}, nil
}

func (f *fakeTaskService) Stats() (*storage.Stats, error) {
	if f.stats != nil {
		return f.stats, nil
	}
	return &storage.Stats{
		ByStatus:   map[models.Status]int{},
		ByCategory: map[models.Category]int{},
		ByEffort:   map[models.Effort]int{},
	}, nil
}

func (f *fakeTaskService) setStatus(id string, status models.Status) (*models.Task, error) {
	t, ok := f.tasks[id]
	if !ok {
		return nil, &storage.NotFoundError{ID: id}
	}
	t.Status = status
	return t, nil
}

func (f *fakeTaskService) MarkAnalysing(id string) (*models.Task, error) {
	return f.setStatus(id, models.StatusAnalysing)
}

func (f *fakeTaskService) MarkAnalysed(id string, analysis *models.Analysis) (*models.Task, error) {
	t, err := f.setStatus(id, models.StatusAnalysed)
	if err != nil {
		return nil, err
	}
	t.Analysis = analysis
	return t, nil
}

func (f *fakeTaskService) MarkInProgress(id string) (*models.Task, error) {
	return f.setStatus(id, models.StatusInProgress)
}

func (f *fakeTaskService) MarkDone(id string) (*models.Task, error) {
	return f.setStatus(id, models.StatusDone)
}

func (f *fakeTaskService) MarkSkipped(id, reason string) (*models.Task, error) {
	t, err := f.setStatus(id, models.StatusSkipped)
	if err != nil {
		return nil, err
	}
	t.SkipHistory = append(t.SkipHistory, models.SkipEntry{Reason: reason})
	return t, nil
}

func (f *fakeTaskService) MarkNeedsInput(id, _ string) (*models.Task, error) {
	return f.setStatus(id, models.StatusNeedsInput)
}

func (f *fakeTaskService) MarkSplit(id string, _ *models.SplitProposal, _ []string) (*models.Task, error) {
	return f.setStatus(id, models.StatusSplit)
}

func (f *fakeTaskService) MarkCancelled(id string) (*models.Task, error) {
	return f.setStatus(id, models.StatusCancelled)
}

func (f *fakeTaskService) Requeue(id string) (*models.Task, error) {
	return f.setStatus(id, models.StatusTodo)
}

// --- Test helpers ---

func sampleTask() *models.Task {
	started := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	return &models.Task{
		ID:        "a1b2c3d4e5f6",
		Name:      "Fix the parser",
		Category:  models.CategoryBugfix,
		Priority:  10,
		Effort:    models.EffortM,
		Status:    models.StatusInProgress,
		CreatedAt: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC),
		UpdatedAt: started,
		StartedAt: &started,
	}
}

func sampleTask2() *models.Task {
	created := time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC)
	return &models.Task{
		ID:        "ffee00112233",
		Name:      "Add retry logic",
		Category:  models.CategoryEnhancement,
		Priority:  20,
		Effort:    models.EffortS,
		Status:    models.StatusTodo,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func newSteeringService(t *testing.T) *core.SteeringService {
	t.Helper()
	store, err := storage.NewSteeringStore(t.TempDir())
	if err != nil {
		t.Fatalf("creating steering store: %v", err)
	}
	return core.NewSteeringService(store, nil)
}

// callTool connects a client over in-memory transports and invokes one tool.
func callTool(t *testing.T, srv *Server, toolName string, args map[string]any) *gomcp.CallToolResult {
	t.Helper()

	ctx := context.Background()
	client := gomcp.NewClient(&gomcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)

	t1, t2 := gomcp.NewInMemoryTransports()

	go func() {
		_ = srv.MCPServer().Run(ctx, t1)
	}()

	session, err := client.Connect(ctx, t2, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer session.Close()

	result, err := session.CallTool(ctx, &gomcp.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("call tool %s: %v", toolName, err)
	}

	return result
}

// decodeResult unmarshals a tool result into out, preferring the text content
// and falling back to the structured content.
func decodeResult(t *testing.T, result *gomcp.CallToolResult, out any) {
	t.Helper()

	text := extractText(result)
	if err := json.Unmarshal([]byte(text), out); err != nil {
		if result.StructuredContent == nil {
			t.Fatalf("unmarshalling output: %v (text was: %s)", err, text)
		}
		data, _ := json.Marshal(result.StructuredContent)
		if err2 := json.Unmarshal(data, out); err2 != nil {
			t.Fatalf("unmarshalling structured output: %v", err2)
		}
	}
}

// extractText extracts the text from the first TextContent in a CallToolResult.
func extractText(result *gomcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(*gomcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// --- Tests ---

func TestGetTask(t *testing.T) {
	tm := newFakeTaskService(sampleTask())
	srv := NewServer(tm, newSteeringService(t), "test")

	result := callTool(t, srv, "task_get_by_id", map[string]any{"id": "a1b2c3d4e5f6"})

	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var out taskOutput
	decodeResult(t, result, &out)

	if out.ID != "a1b2c3d4e5f6" {
		t.Errorf("expected id a1b2c3d4e5f6, got %s", out.ID)
	}
	if out.Status != "in-progress" {
		t.Errorf("expected status in-progress, got %s", out.Status)
	}
	if out.Slug != "fix-the-parser" {
		t.Errorf("expected slug fix-the-parser, got %s", out.Slug)
	}
	if out.StartedAt == "" {
		t.Error("expected started_at to be set")
	}
	if out.CompletedAt != "" {
		t.Errorf("expected empty completed_at, got %s", out.CompletedAt)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	tm := newFakeTaskService()
	srv := NewServer(tm, newSteeringService(t), "test")

	result := callTool(t, srv, "task_get_by_id", map[string]any{"id": "missing"})

	if !result.IsError {
		t.Fatal("expected error result for non-existent task")
	}
	if extractText(result) == "" {
		t.Fatal("expected error message in result content")
	}
}

func TestCreateTask(t *testing.T) {
	tm := newFakeTaskService()
	srv := NewServer(tm, newSteeringService(t), "test")

	result := callTool(t, srv, "task_create", map[string]any{
		"name":     "Wire up metrics",
		"category": "infrastructure",
		"effort":   "S",
	})

	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var out taskOutput
	decodeResult(t, result, &out)

	if out.Name != "Wire up metrics" {
		t.Errorf("expected name Wire up metrics, got %s", out.Name)
	}
	if out.Status != "todo" {
		t.Errorf("expected status todo, got %s", out.Status)
	}
	if out.Slug != "wire-up-metrics" {
		t.Errorf("expected slug wire-up-metrics, got %s", out.Slug)
	}
}

func TestCreateTaskValidationError(t *testing.T) {
	tm := newFakeTaskService()
	srv := NewServer(tm, newSteeringService(t), "test")

	result := callTool(t, srv, "task_create", map[string]any{
		"name":     "",
		"category": "core",
		"effort":   "M",
	})

	if !result.IsError {
		t.Fatal("expected error result for empty name")
	}
}

func TestCreateTaskBulkPartialFailure(t *testing.T) {
	tm := newFakeTaskService()
	srv := NewServer(tm, newSteeringService(t), "test")

	result := callTool(t, srv, "task_create_bulk", map[string]any{
		"tasks": []map[string]any{
			{"name": "First task", "category": "core", "effort": "S"},
			{"name": "", "category": "core", "effort": "S"},
		},
	})

	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var out createTaskBulkOutput
	decodeResult(t, result, &out)

	if len(out.Created) != 1 {
		t.Fatalf("expected 1 created task, got %d", len(out.Created))
	}
	if len(out.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(out.Errors))
	}
	if out.Errors[0].Index != 1 {
		t.Errorf("expected error at index 1, got %d", out.Errors[0].Index)
	}
}

func TestListTasksAll(t *testing.T) {
	tm := newFakeTaskService(sampleTask(), sampleTask2())
	srv := NewServer(tm, newSteeringService(t), "test")

	result := callTool(t, srv, "task_list", map[string]any{})

	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var out listTasksOutput
	decodeResult(t, result, &out)

	if out.Count != 2 {
		t.Errorf("expected 2 tasks, got %d", out.Count)
	}
}

func TestListTasksWithFilter(t *testing.T) {
	tm := newFakeTaskService(sampleTask(), sampleTask2())
	srv := NewServer(tm, newSteeringService(t), "test")

	result := callTool(t, srv, "task_list", map[string]any{"status": "todo"})

	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var out listTasksOutput
	decodeResult(t, result, &out)

	if out.Count != 1 {
		t.Fatalf("expected 1 todo task, got %d", out.Count)
	}
	if out.Tasks[0].ID != "ffee00112233" {
		t.Errorf("expected ffee00112233, got %s", out.Tasks[0].ID)
	}
}

func TestListTasksUnknownStatus(t *testing.T) {
	tm := newFakeTaskService()
	srv := NewServer(tm, newSteeringService(t), "test")

	result := callTool(t, srv, "task_list", map[string]any{"status": "bogus"})

	if !result.IsError {
		t.Fatal("expected error result for unknown status")
	}
}

func TestGetNext(t *testing.T) {
	tm := newFakeTaskService()
	tm.selection = &core.Selection{
		Task:         sampleTask2(),
		BlockedCount: 3,
		StateCounts:  map[models.Status]int{models.StatusTodo: 4},
	}
	srv := NewServer(tm, newSteeringService(t), "test")

	result := callTool(t, srv, "task_get_next", map[string]any{})

	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var out getNextOutput
	decodeResult(t, result, &out)

	if out.Task == nil {
		t.Fatal("expected a selected task")
	}
	if out.Task.ID != "ffee00112233" {
		t.Errorf("expected ffee00112233, got %s", out.Task.ID)
	}
	if out.BlockedCount != 3 {
		t.Errorf("expected blocked_count 3, got %d", out.BlockedCount)
	}
	if out.StateCounts["todo"] != 4 {
		t.Errorf("expected state_counts[todo] 4, got %d", out.StateCounts["todo"])
	}
}

func TestGetNextUnknownPool(t *testing.T) {
	tm := newFakeTaskService()
	srv := NewServer(tm, newSteeringService(t), "test")

	result := callTool(t, srv, "task_get_next", map[string]any{"pool": "bogus"})

	if !result.IsError {
		t.Fatal("expected error result for unknown pool")
	}
}

func TestStats(t *testing.T) {
	tm := newFakeTaskService()
	tm.stats = &storage.Stats{
		Total:         5,
		ByStatus:      map[models.Status]int{models.StatusTodo: 3, models.StatusDone: 2},
		ByCategory:    map[models.Category]int{models.CategoryCore: 5},
		ByEffort:      map[models.Effort]int{models.EffortM: 5},
		RemainingDays: 9,
		CompletedDays: 6,
	}
	srv := NewServer(tm, newSteeringService(t), "test")

	result := callTool(t, srv, "task_get_stats", map[string]any{})

	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var out statsOutput
	decodeResult(t, result, &out)

	if out.Total != 5 {
		t.Errorf("expected total 5, got %d", out.Total)
	}
	if out.ByStatus["todo"] != 3 {
		t.Errorf("expected by_status[todo] 3, got %d", out.ByStatus["todo"])
	}
	if out.RemainingDays != 9 {
		t.Errorf("expected remaining_days 9, got %v", out.RemainingDays)
	}
}

func TestMarkDone(t *testing.T) {
	tm := newFakeTaskService(sampleTask())
	srv := NewServer(tm, newSteeringService(t), "test")

	result := callTool(t, srv, "task_mark_done", map[string]any{"id": "a1b2c3d4e5f6"})

	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var out taskOutput
	decodeResult(t, result, &out)

	if out.Status != "done" {
		t.Errorf("expected status done, got %s", out.Status)
	}
}

func TestMarkDoneNotFound(t *testing.T) {
	tm := newFakeTaskService()
	srv := NewServer(tm, newSteeringService(t), "test")

	result := callTool(t, srv, "task_mark_done", map[string]any{"id": "missing"})

	if !result.IsError {
		t.Fatal("expected error result for non-existent task")
	}
}

func TestMarkSkippedRequiresReason(t *testing.T) {
	tm := newFakeTaskService(sampleTask())
	srv := NewServer(tm, newSteeringService(t), "test")

	result := callTool(t, srv, "task_mark_skipped", map[string]any{
		"id":     "a1b2c3d4e5f6",
		"reason": "",
	})

	if !result.IsError {
		t.Fatal("expected error result for empty reason")
	}
}

func TestMarkSkippedRecordsHistory(t *testing.T) {
	tm := newFakeTaskService(sampleTask())
	srv := NewServer(tm, newSteeringService(t), "test")

	result := callTool(t, srv, "task_mark_skipped", map[string]any{
		"id":     "a1b2c3d4e5f6",
		"reason": "blocked on upstream fix",
	})

	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var out taskOutput
	decodeResult(t, result, &out)

	if out.Status != "skipped" {
		t.Errorf("expected status skipped, got %s", out.Status)
	}
	if out.SkipCount != 1 {
		t.Errorf("expected skip_count 1, got %d", out.SkipCount)
	}
}

func TestMarkAnalysedAttachesAnalysis(t *testing.T) {
	task := sampleTask()
	task.Status = models.StatusAnalysing
	tm := newFakeTaskService(task)
	srv := NewServer(tm, newSteeringService(t), "test")

	result := callTool(t, srv, "task_mark_analysed", map[string]any{
		"id": "a1b2c3d4e5f6",
		"analysis": map[string]any{
			"implementation_guidance": "start with the tokenizer",
		},
	})

	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var out taskOutput
	decodeResult(t, result, &out)

	if out.Status != "analysed" {
		t.Errorf("expected status analysed, got %s", out.Status)
	}
	if tm.tasks["a1b2c3d4e5f6"].Analysis == nil {
		t.Error("expected analysis to be attached to the task")
	}
}

func TestWhisperAndHeartbeatRoundTrip(t *testing.T) {
	tm := newFakeTaskService()
	srv := NewServer(tm, newSteeringService(t), "test")

	whisper := callTool(t, srv, "steering_whisper", map[string]any{
		"process_id":  "agent-7",
		"instruction": "focus on the parser tests",
		"priority":    "urgent",
	})
	if whisper.IsError {
		t.Fatalf("expected whisper success, got error: %s", extractText(whisper))
	}

	heartbeat := callTool(t, srv, "steering_heartbeat", map[string]any{
		"process_id": "agent-7",
		"status":     "running tests",
	})
	if heartbeat.IsError {
		t.Fatalf("expected heartbeat success, got error: %s", extractText(heartbeat))
	}

	var out heartbeatOutput
	decodeResult(t, heartbeat, &out)

	if out.WhisperCount != 1 {
		t.Fatalf("expected 1 whisper, got %d", out.WhisperCount)
	}
	if out.Whispers[0].Instruction != "focus on the parser tests" {
		t.Errorf("unexpected instruction: %s", out.Whispers[0].Instruction)
	}
	if out.Whispers[0].Priority != "urgent" {
		t.Errorf("expected priority urgent, got %s", out.Whispers[0].Priority)
	}

	// Second heartbeat must not redeliver.
	again := callTool(t, srv, "steering_heartbeat", map[string]any{
		"process_id": "agent-7",
	})
	var out2 heartbeatOutput
	decodeResult(t, again, &out2)
	if out2.WhisperCount != 0 {
		t.Errorf("expected 0 whispers on second heartbeat, got %d", out2.WhisperCount)
	}
}

func TestWhisperRequiresProcessID(t *testing.T) {
	tm := newFakeTaskService()
	srv := NewServer(tm, newSteeringService(t), "test")

	result := callTool(t, srv, "steering_whisper", map[string]any{
		"process_id":  "",
		"instruction": "do something",
	})

	if !result.IsError {
		t.Fatal("expected error result for empty process_id")
	}
}
