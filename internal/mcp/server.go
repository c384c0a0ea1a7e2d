// Package mcp provides an MCP (Model Context Protocol) server that exposes
// the taskdeck task and steering operations as tools for AI coding agents.
package mcp

import (
	"context"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/valter-silva-au/taskdeck/internal/core"
	"github.com/valter-silva-au/taskdeck/internal/storage"
	"github.com/valter-silva-au/taskdeck/pkg/models"
)

// Server wraps the taskdeck services and exposes them as MCP tools.
type Server struct {
	server   *gomcp.Server
	tasks    core.TaskService
	steering *core.SteeringService
}

// NewServer creates a new MCP server with the given service dependencies.
func NewServer(tasks core.TaskService, steering *core.SteeringService, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		tasks:    tasks,
		steering: steering,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "taskdeck", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run starts the MCP server on stdio, blocking until the client disconnects
// or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type createTaskInput struct {
	Name               string   `json:"name" jsonschema:"required,short human title of the task"`
	Description        string   `json:"description,omitempty" jsonschema:"longer description of the work"`
	Category           string   `json:"category" jsonschema:"required,one of core feature enhancement bugfix infrastructure ui-ux"`
	Priority           int      `json:"priority,omitempty" jsonschema:"integer priority; lower is more urgent"`
	Effort             string   `json:"effort" jsonschema:"required,estimated size: XS S M L or XL"`
	Dependencies       []string `json:"dependencies,omitempty" jsonschema:"references to existing tasks by id exact name or slug"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	Steps              []string `json:"steps,omitempty"`
}

type createTaskBulkInput struct {
	Tasks []createTaskInput `json:"tasks" jsonschema:"required,drafts to create; entries fail independently"`
}

type bulkErrorOutput struct {
	Index int    `json:"index"`
	Field string `json:"field,omitempty"`
	Error string `json:"error"`
}

type createTaskBulkOutput struct {
	Created []taskOutput      `json:"created"`
	Errors  []bulkErrorOutput `json:"errors,omitempty"`
}

type taskOutput struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Slug                string   `json:"slug"`
	Description         string   `json:"description,omitempty"`
	Category            string   `json:"category"`
	Priority            int      `json:"priority"`
	Effort              string   `json:"effort"`
	Dependencies        []string `json:"dependencies,omitempty"`
	AcceptanceCriteria  []string `json:"acceptance_criteria,omitempty"`
	Steps               []string `json:"steps,omitempty"`
	Status              string   `json:"status"`
	CreatedAt           string   `json:"created_at"`
	UpdatedAt           string   `json:"updated_at"`
	StartedAt           string   `json:"started_at,omitempty"`
	AnalysisStartedAt   string   `json:"analysis_started_at,omitempty"`
	AnalysisCompletedAt string   `json:"analysis_completed_at,omitempty"`
	CompletedAt         string   `json:"completed_at,omitempty"`
	PendingQuestion     string   `json:"pending_question,omitempty"`
	SkipCount           int      `json:"skip_count,omitempty"`
}

type listTasksInput struct {
	Status   string `json:"status,omitempty" jsonschema:"filter by status (todo analysing analysed needs-input in-progress done split skipped cancelled)"`
	Category string `json:"category,omitempty" jsonschema:"filter by category"`
	Effort   string `json:"effort,omitempty" jsonschema:"filter by effort size"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of tasks to return"`
}

type listTasksOutput struct {
	Tasks []taskOutput `json:"tasks"`
	Count int          `json:"count"`
}

type getTaskInput struct {
	ID string `json:"id" jsonschema:"required,the task's unique id"`
}

type getNextInput struct {
	Pool string `json:"pool,omitempty" jsonschema:"candidate pool: analysed (default) or todo"`
}

type getNextOutput struct {
	Task         *taskOutput    `json:"task,omitempty"`
	BlockedCount int            `json:"blocked_count"`
	StateCounts  map[string]int `json:"state_counts,omitempty"`
}

type statsInput struct{}

type statsOutput struct {
	Total         int            `json:"total"`
	ByStatus      map[string]int `json:"by_status"`
	ByCategory    map[string]int `json:"by_category"`
	ByEffort      map[string]int `json:"by_effort"`
	RemainingDays float64        `json:"remaining_days"`
	CompletedDays float64        `json:"completed_days"`
}

type markTaskInput struct {
	ID string `json:"id" jsonschema:"required,the task's unique id"`
}

type markAnalysedInput struct {
	ID       string           `json:"id" jsonschema:"required,the task's unique id"`
	Analysis *models.Analysis `json:"analysis,omitempty" jsonschema:"analysis payload: entities files resolved_questions implementation_guidance"`
}

type markSkippedInput struct {
	ID     string `json:"id" jsonschema:"required,the task's unique id"`
	Reason string `json:"reason" jsonschema:"required,why the task is being skipped"`
}

type whisperInput struct {
	ProcessID   string `json:"process_id" jsonschema:"required,the agent process id to steer"`
	Instruction string `json:"instruction" jsonschema:"required,the instruction text"`
	Priority    string `json:"priority,omitempty" jsonschema:"normal (default) urgent or abort"`
}

type whisperOutput struct {
	Message string `json:"message"`
}

type heartbeatInput struct {
	ProcessID  string `json:"process_id" jsonschema:"required,the calling process id"`
	Status     string `json:"status,omitempty" jsonschema:"free-text report of what the process is doing"`
	NextAction string `json:"next_action,omitempty" jsonschema:"free-text report of what the process will do next"`
}

type whisperEntry struct {
	Instruction string `json:"instruction"`
	Priority    string `json:"priority"`
	Timestamp   string `json:"timestamp"`
}

type heartbeatOutput struct {
	Whispers     []whisperEntry `json:"whispers"`
	WhisperCount int            `json:"whisper_count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "task_create",
		Description: "Create a new task in the todo queue. Dependencies must match existing tasks exactly by id, name, or slug.",
	}, s.handleCreateTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "task_create_bulk",
		Description: "Create several tasks at once. Entries fail independently; dependencies may reference earlier entries in the same batch.",
	}, s.handleCreateTaskBulk)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "task_list",
		Description: "List tasks filtered by status, category, or effort, sorted by ascending priority.",
	}, s.handleListTasks)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "task_get_by_id",
		Description: "Get one task by id, wherever it currently lives in the lifecycle.",
	}, s.handleGetTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "task_get_next",
		Description: "Pick the highest-priority task whose dependencies are all done. Returns blocked counts when nothing is eligible.",
	}, s.handleGetNext)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "task_get_stats",
		Description: "Get aggregate task counts by status, category, and effort, plus remaining effort in days.",
	}, s.handleStats)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "task_mark_analysing",
		Description: "Mark a task as being analysed. Idempotent: re-marking an analysing task succeeds without resetting timestamps.",
	}, s.handleMarkAnalysing)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "task_mark_analysed",
		Description: "Mark a task's analysis complete, optionally attaching the analysis payload.",
	}, s.handleMarkAnalysed)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "task_mark_in_progress",
		Description: "Claim a task for active work.",
	}, s.handleMarkInProgress)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "task_mark_done",
		Description: "Mark a task done. completed_at is set on the first completion only.",
	}, s.handleMarkDone)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "task_mark_skipped",
		Description: "Skip a task with a reason. Skip history accumulates across repeated skips.",
	}, s.handleMarkSkipped)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "steering_whisper",
		Description: "Send a short instruction to a running agent process. Priority abort conventionally means: stop work, commit WIP, exit.",
	}, s.handleWhisper)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "steering_heartbeat",
		Description: "Report liveness and current activity for a process and receive every whisper sent since the last heartbeat.",
	}, s.handleHeartbeat)
}

// --- Tool handlers ---

func (s *Server) handleCreateTask(_ context.Context, _ *gomcp.CallToolRequest, input createTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	task, err := s.tasks.Create(draftFromInput(input))
	if err != nil {
		return errorResult(fmt.Sprintf("creating task: %s", err)), taskOutput{}, nil
	}
	return nil, taskToOutput(task), nil
}

func (s *Server) handleCreateTaskBulk(_ context.Context, _ *gomcp.CallToolRequest, input createTaskBulkInput) (*gomcp.CallToolResult, createTaskBulkOutput, error) {
	if len(input.Tasks) == 0 {
		return errorResult("tasks is required and must not be empty"), createTaskBulkOutput{}, nil
	}

	drafts := make([]storage.TaskDraft, len(input.Tasks))
	for i, in := range input.Tasks {
		drafts[i] = draftFromInput(in)
	}

	result, err := s.tasks.CreateBulk(drafts)
	if err != nil {
		return errorResult(fmt.Sprintf("creating tasks: %s", err)), createTaskBulkOutput{}, nil
	}

	out := createTaskBulkOutput{Created: make([]taskOutput, len(result.Created))}
	for i, t := range result.Created {
		out.Created[i] = taskToOutput(t)
	}
	for _, be := range result.Errors {
		out.Errors = append(out.Errors, bulkErrorOutput{Index: be.Index, Field: be.Field, Error: be.Error})
	}
	return nil, out, nil
}

func (s *Server) handleListTasks(_ context.Context, _ *gomcp.CallToolRequest, input listTasksInput) (*gomcp.CallToolResult, listTasksOutput, error) {
	filter := storage.TaskFilter{
		Category: models.Category(input.Category),
		Effort:   models.Effort(input.Effort),
		Limit:    input.Limit,
	}
	if input.Status != "" {
		status := models.Status(input.Status)
		if !models.ValidStatus(status) {
			return errorResult(fmt.Sprintf("unknown status %q", input.Status)), listTasksOutput{}, nil
		}
		filter.Statuses = []models.Status{status}
	}

	list, err := s.tasks.List(filter)
	if err != nil {
		return errorResult(fmt.Sprintf("listing tasks: %s", err)), listTasksOutput{}, nil
	}

	out := listTasksOutput{Tasks: make([]taskOutput, len(list)), Count: len(list)}
	for i, t := range list {
		out.Tasks[i] = taskToOutput(t)
	}
	return nil, out, nil
}

func (s *Server) handleGetTask(_ context.Context, _ *gomcp.CallToolRequest, input getTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	if input.ID == "" {
		return errorResult("id is required"), taskOutput{}, nil
	}
	task, err := s.tasks.Get(input.ID)
	if err != nil {
		return errorResult(fmt.Sprintf("getting task %s: %s", input.ID, err)), taskOutput{}, nil
	}
	return nil, taskToOutput(task), nil
}

func (s *Server) handleGetNext(_ context.Context, _ *gomcp.CallToolRequest, input getNextInput) (*gomcp.CallToolResult, getNextOutput, error) {
	pool := core.Pool(input.Pool)
	if pool != "" && !core.ValidPool(pool) {
		return errorResult(fmt.Sprintf("unknown pool %q: must be analysed or todo", input.Pool)), getNextOutput{}, nil
	}

	selection, err := s.tasks.GetNext(pool)
	if err != nil {
		return errorResult(fmt.Sprintf("selecting next task: %s", err)), getNextOutput{}, nil
	}

	out := getNextOutput{
		BlockedCount: selection.BlockedCount,
		StateCounts:  make(map[string]int, len(selection.StateCounts)),
	}
	for status, n := range selection.StateCounts {
		out.StateCounts[string(status)] = n
	}
	if selection.Task != nil {
		t := taskToOutput(selection.Task)
		out.Task = &t
	}
	return nil, out, nil
}

func (s *Server) handleStats(_ context.Context, _ *gomcp.CallToolRequest, _ statsInput) (*gomcp.CallToolResult, statsOutput, error) {
	stats, err := s.tasks.Stats()
	if err != nil {
		return errorResult(fmt.Sprintf("computing stats: %s", err)), statsOutput{}, nil
	}

	out := statsOutput{
		Total:         stats.Total,
		ByStatus:      make(map[string]int, len(stats.ByStatus)),
		ByCategory:    make(map[string]int, len(stats.ByCategory)),
		ByEffort:      make(map[string]int, len(stats.ByEffort)),
		RemainingDays: stats.RemainingDays,
		CompletedDays: stats.CompletedDays,
	}
	for k, v := range stats.ByStatus {
		out.ByStatus[string(k)] = v
	}
	for k, v := range stats.ByCategory {
		out.ByCategory[string(k)] = v
	}
	for k, v := range stats.ByEffort {
		out.ByEffort[string(k)] = v
	}
	return nil, out, nil
}

func (s *Server) handleMarkAnalysing(_ context.Context, _ *gomcp.CallToolRequest, input markTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	return s.mark(input.ID, s.tasks.MarkAnalysing)
}

func (s *Server) handleMarkAnalysed(_ context.Context, _ *gomcp.CallToolRequest, input markAnalysedInput) (*gomcp.CallToolResult, taskOutput, error) {
	return s.mark(input.ID, func(id string) (*models.Task, error) {
		return s.tasks.MarkAnalysed(id, input.Analysis)
	})
}

func (s *Server) handleMarkInProgress(_ context.Context, _ *gomcp.CallToolRequest, input markTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	return s.mark(input.ID, s.tasks.MarkInProgress)
}

func (s *Server) handleMarkDone(_ context.Context, _ *gomcp.CallToolRequest, input markTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	return s.mark(input.ID, s.tasks.MarkDone)
}

func (s *Server) handleMarkSkipped(_ context.Context, _ *gomcp.CallToolRequest, input markSkippedInput) (*gomcp.CallToolResult, taskOutput, error) {
	if input.Reason == "" {
		return errorResult("reason is required"), taskOutput{}, nil
	}
	return s.mark(input.ID, func(id string) (*models.Task, error) {
		return s.tasks.MarkSkipped(id, input.Reason)
	})
}

func (s *Server) mark(id string, run func(string) (*models.Task, error)) (*gomcp.CallToolResult, taskOutput, error) {
	if id == "" {
		return errorResult("id is required"), taskOutput{}, nil
	}
	task, err := run(id)
	if err != nil {
		return errorResult(fmt.Sprintf("updating task %s: %s", id, err)), taskOutput{}, nil
	}
	return nil, taskToOutput(task), nil
}

func (s *Server) handleWhisper(_ context.Context, _ *gomcp.CallToolRequest, input whisperInput) (*gomcp.CallToolResult, whisperOutput, error) {
	if input.ProcessID == "" {
		return errorResult("process_id is required"), whisperOutput{}, nil
	}
	if input.Instruction == "" {
		return errorResult("instruction is required"), whisperOutput{}, nil
	}

	if err := s.steering.Whisper(input.ProcessID, input.Instruction, models.WhisperPriority(input.Priority)); err != nil {
		return errorResult(fmt.Sprintf("sending whisper to %s: %s", input.ProcessID, err)), whisperOutput{}, nil
	}

	return nil, whisperOutput{
		Message: fmt.Sprintf("whisper queued for %s", input.ProcessID),
	}, nil
}

func (s *Server) handleHeartbeat(_ context.Context, _ *gomcp.CallToolRequest, input heartbeatInput) (*gomcp.CallToolResult, heartbeatOutput, error) {
	if input.ProcessID == "" {
		return errorResult("process_id is required"), heartbeatOutput{}, nil
	}

	result, err := s.steering.Heartbeat(input.ProcessID, input.Status, input.NextAction)
	if err != nil {
		return errorResult(fmt.Sprintf("heartbeat for %s: %s", input.ProcessID, err)), heartbeatOutput{}, nil
	}

	out := heartbeatOutput{
		Whispers:     make([]whisperEntry, len(result.Whispers)),
		WhisperCount: result.WhisperCount,
	}
	for i, w := range result.Whispers {
		out.Whispers[i] = whisperEntry{
			Instruction: w.Instruction,
			Priority:    string(w.Priority),
			Timestamp:   w.Timestamp.Format(time.RFC3339),
		}
	}
	return nil, out, nil
}

// --- Helpers ---

func draftFromInput(in createTaskInput) storage.TaskDraft {
	return storage.TaskDraft{
		Name:               in.Name,
		Description:        in.Description,
		Category:           models.Category(in.Category),
		Priority:           in.Priority,
		Effort:             models.Effort(in.Effort),
		Dependencies:       in.Dependencies,
		AcceptanceCriteria: in.AcceptanceCriteria,
		Steps:              in.Steps,
	}
}

func taskToOutput(t *models.Task) taskOutput {
	out := taskOutput{
		ID:                 t.ID,
		Name:               t.Name,
		Slug:               t.Slug(),
		Description:        t.Description,
		Category:           string(t.Category),
		Priority:           t.Priority,
		Effort:             string(t.Effort),
		Dependencies:       t.Dependencies,
		AcceptanceCriteria: t.AcceptanceCriteria,
		Steps:              t.Steps,
		Status:             string(t.Status),
		CreatedAt:          t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          t.UpdatedAt.Format(time.RFC3339),
		PendingQuestion:    t.PendingQuestion,
		SkipCount:          len(t.SkipHistory),
	}
	if t.StartedAt != nil {
		out.StartedAt = t.StartedAt.Format(time.RFC3339)
	}
	if t.AnalysisStartedAt != nil {
		out.AnalysisStartedAt = t.AnalysisStartedAt.Format(time.RFC3339)
	}
	if t.AnalysisCompletedAt != nil {
		out.AnalysisCompletedAt = t.AnalysisCompletedAt.Format(time.RFC3339)
	}
	if t.CompletedAt != nil {
		out.CompletedAt = t.CompletedAt.Format(time.RFC3339)
	}
	return out
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}
