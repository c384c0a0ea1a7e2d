// Package core contains the business logic for taskdeck: the task lifecycle
// service, the scheduler, configuration loading, and the offline dependency
// repair pass.
package core

import (
	"fmt"

	"github.com/valter-silva-au/taskdeck/internal/storage"
	"github.com/valter-silva-au/taskdeck/pkg/models"
)

// EventLogger records observable events. Defining the interface here keeps
// core independent of the observability package; a nil logger disables
// event recording.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}

// TaskService exposes every task lifecycle operation the tool surface needs.
type TaskService interface {
	Create(draft storage.TaskDraft) (*models.Task, error)
	CreateBulk(drafts []storage.TaskDraft) (*storage.BulkResult, error)
	List(filter storage.TaskFilter) ([]*models.Task, error)
	Get(id string) (*models.Task, error)
	GetNext(pool Pool) (*Selection, error)
	Stats() (*storage.Stats, error)

	MarkAnalysing(id string) (*models.Task, error)
	MarkAnalysed(id string, analysis *models.Analysis) (*models.Task, error)
	MarkInProgress(id string) (*models.Task, error)
	MarkDone(id string) (*models.Task, error)
	MarkSkipped(id, reason string) (*models.Task, error)
	MarkNeedsInput(id, question string) (*models.Task, error)
	MarkSplit(id string, proposal *models.SplitProposal, children []string) (*models.Task, error)
	MarkCancelled(id string) (*models.Task, error)
	Requeue(id string) (*models.Task, error)
}

type taskService struct {
	store     storage.TaskStore
	scheduler *Scheduler
	events    EventLogger
}

// NewTaskService creates a TaskService over the given store. events may be
// nil to disable event recording.
func NewTaskService(store storage.TaskStore, events EventLogger) TaskService {
	return &taskService{
		store:     store,
		scheduler: NewScheduler(store),
		events:    events,
	}
}

func (s *taskService) logEvent(eventType string, data map[string]any) {
	if s.events == nil {
		return
	}
	// Event recording is best-effort; a full event log never fails a mutation.
	_ = s.events.LogEvent(eventType, data)
}

func (s *taskService) Create(draft storage.TaskDraft) (*models.Task, error) {
	task, err := s.store.Create(draft)
	if err != nil {
		return nil, err
	}
	s.logEvent("task.created", map[string]any{"task_id": task.ID, "name": task.Name})
	return task, nil
}

func (s *taskService) CreateBulk(drafts []storage.TaskDraft) (*storage.BulkResult, error) {
	result, err := s.store.CreateBulk(drafts)
	if err != nil {
		return nil, err
	}
	for _, task := range result.Created {
		s.logEvent("task.created", map[string]any{"task_id": task.ID, "name": task.Name})
	}
	return result, nil
}

func (s *taskService) List(filter storage.TaskFilter) ([]*models.Task, error) {
	return s.store.List(filter)
}

func (s *taskService) Get(id string) (*models.Task, error) {
	return s.store.GetByID(id)
}

func (s *taskService) GetNext(pool Pool) (*Selection, error) {
	return s.scheduler.GetNext(pool)
}

func (s *taskService) Stats() (*storage.Stats, error) {
	return storage.GetStats(s.store)
}

// transition wraps the store's transition with idempotent re-entry: marking
// a task with the status it already has succeeds without re-mutating any
// timestamps.
func (s *taskService) transition(id string, from []models.Status, to models.Status, mutate func(*models.Task)) (*models.Task, error) {
	current, err := s.store.GetByID(id)
	if err != nil {
		return nil, err
	}
	if current.Status == to {
		return current, nil
	}

	task, err := s.store.Transition(id, from, to, mutate)
	if err != nil {
		return nil, err
	}
	s.logEvent("task.transition", map[string]any{
		"task_id": id,
		"from":    string(current.Status),
		"to":      string(to),
	})
	return task, nil
}

// MarkAnalysing moves a task into analysis. analysis_started_at is set on
// first entry only.
func (s *taskService) MarkAnalysing(id string) (*models.Task, error) {
	return s.transition(id,
		[]models.Status{models.StatusTodo, models.StatusNeedsInput},
		models.StatusAnalysing,
		func(t *models.Task) {
			if t.AnalysisStartedAt == nil {
				now := t.UpdatedAt
				t.AnalysisStartedAt = &now
			}
		})
}

// MarkAnalysed completes analysis, attaching the payload when given.
func (s *taskService) MarkAnalysed(id string, analysis *models.Analysis) (*models.Task, error) {
	return s.transition(id,
		[]models.Status{models.StatusAnalysing, models.StatusNeedsInput},
		models.StatusAnalysed,
		func(t *models.Task) {
			if t.AnalysisCompletedAt == nil {
				now := t.UpdatedAt
				t.AnalysisCompletedAt = &now
			}
			if analysis != nil {
				t.Analysis = analysis
			}
			t.PendingQuestion = ""
		})
}

// MarkInProgress claims a task for active work. started_at is set on the
// first claim only.
func (s *taskService) MarkInProgress(id string) (*models.Task, error) {
	return s.transition(id,
		[]models.Status{models.StatusAnalysed, models.StatusTodo},
		models.StatusInProgress,
		func(t *models.Task) {
			if t.StartedAt == nil {
				now := t.UpdatedAt
				t.StartedAt = &now
			}
		})
}

// MarkDone completes a task. completed_at is set exactly once, on the first
// transition into done; idempotent re-entry never overwrites it.
func (s *taskService) MarkDone(id string) (*models.Task, error) {
	return s.transition(id,
		[]models.Status{models.StatusInProgress, models.StatusAnalysed},
		models.StatusDone,
		func(t *models.Task) {
			if t.CompletedAt == nil {
				now := t.UpdatedAt
				t.CompletedAt = &now
			}
		})
}

// MarkSkipped parks a task, appending to its skip history. History entries
// accumulate across repeated skips and are never overwritten.
func (s *taskService) MarkSkipped(id, reason string) (*models.Task, error) {
	return s.transition(id,
		[]models.Status{
			models.StatusTodo, models.StatusAnalysing, models.StatusAnalysed,
			models.StatusNeedsInput, models.StatusInProgress,
		},
		models.StatusSkipped,
		func(t *models.Task) {
			t.SkipHistory = append(t.SkipHistory, models.SkipEntry{
				SkippedAt: t.UpdatedAt,
				Reason:    reason,
			})
		})
}

// MarkNeedsInput parks a task on a question only a human can answer.
func (s *taskService) MarkNeedsInput(id, question string) (*models.Task, error) {
	if question == "" {
		return nil, &storage.ValidationError{Field: "question", Reason: "must not be empty"}
	}
	return s.transition(id,
		[]models.Status{models.StatusTodo, models.StatusAnalysing, models.StatusAnalysed, models.StatusInProgress},
		models.StatusNeedsInput,
		func(t *models.Task) {
			t.PendingQuestion = question
		})
}

// MarkSplit records that a task was broken into child tasks.
func (s *taskService) MarkSplit(id string, proposal *models.SplitProposal, children []string) (*models.Task, error) {
	return s.transition(id,
		[]models.Status{models.StatusTodo, models.StatusAnalysing, models.StatusAnalysed},
		models.StatusSplit,
		func(t *models.Task) {
			if proposal != nil {
				t.SplitProposal = proposal
			}
			if len(children) > 0 {
				t.ChildTasks = children
			}
		})
}

// MarkCancelled terminates a task without completing it.
func (s *taskService) MarkCancelled(id string) (*models.Task, error) {
	return s.transition(id,
		[]models.Status{
			models.StatusTodo, models.StatusAnalysing, models.StatusAnalysed,
			models.StatusNeedsInput, models.StatusInProgress, models.StatusSkipped,
		},
		models.StatusCancelled,
		nil)
}

// Requeue returns a parked task to the todo queue, keeping its history. A
// requeued task can be skipped again; each skip appends its own entry.
func (s *taskService) Requeue(id string) (*models.Task, error) {
	return s.transition(id,
		[]models.Status{models.StatusSkipped, models.StatusNeedsInput, models.StatusSplit},
		models.StatusTodo,
		func(t *models.Task) {
			t.PendingQuestion = ""
		})
}

// SteeringService layers event recording over the steering store.
type SteeringService struct {
	store  storage.SteeringStore
	events EventLogger
}

// NewSteeringService creates a SteeringService. events may be nil.
func NewSteeringService(store storage.SteeringStore, events EventLogger) *SteeringService {
	return &SteeringService{store: store, events: events}
}

// Whisper appends one operator instruction for a process.
func (s *SteeringService) Whisper(processID, instruction string, priority models.WhisperPriority) error {
	if err := s.store.Send(processID, instruction, priority); err != nil {
		return err
	}
	if s.events != nil {
		_ = s.events.LogEvent("steering.whisper", map[string]any{
			"process_id": processID,
			"priority":   string(priority),
		})
	}
	return nil
}

// Heartbeat reports liveness for a process and drains its new whispers.
func (s *SteeringService) Heartbeat(processID, status, nextAction string) (*storage.HeartbeatResult, error) {
	result, err := s.store.Heartbeat(processID, status, nextAction)
	if err != nil {
		return nil, err
	}
	if s.events != nil {
		_ = s.events.LogEvent("steering.heartbeat", map[string]any{
			"process_id":    processID,
			"whisper_count": result.WhisperCount,
		})
	}
	return result, nil
}

// Processes lists every known process status record.
func (s *SteeringService) Processes() ([]*models.ProcessStatusRecord, error) {
	records, err := s.store.ListProcesses()
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}
	return records, nil
}
