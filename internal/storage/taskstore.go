// Package storage implements the filesystem-backed repositories for
// taskdeck: the task store (one JSON document per task, one directory per
// status) and the steering store (per-process whisper logs plus status
// records). Every query re-scans the filesystem; no cache is kept across
// calls, so concurrent processes always observe fresh state.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/valter-silva-au/taskdeck/internal/logging"
	"github.com/valter-silva-au/taskdeck/pkg/models"
)

// TaskDraft holds the caller-supplied fields for a new task. The store
// assigns id, status, and timestamps.
type TaskDraft struct {
	Name               string          `json:"name"`
	Description        string          `json:"description,omitempty"`
	Category           models.Category `json:"category"`
	Priority           int             `json:"priority"`
	Effort             models.Effort   `json:"effort"`
	Dependencies       []string        `json:"dependencies,omitempty"`
	AcceptanceCriteria []string        `json:"acceptance_criteria,omitempty"`
	Steps              []string        `json:"steps,omitempty"`
}

// TaskFilter selects tasks in List. Zero values match everything.
type TaskFilter struct {
	Statuses    []models.Status
	Category    models.Category
	Effort      models.Effort
	MinPriority *int
	MaxPriority *int
	Limit       int
}

// BulkError reports one failed entry of a CreateBulk call.
type BulkError struct {
	Index int    `json:"index"`
	Field string `json:"field,omitempty"`
	Error string `json:"error"`
}

// BulkResult is the outcome of CreateBulk: entries are processed
// independently, so both slices may be non-empty.
type BulkResult struct {
	Created []*models.Task `json:"created"`
	Errors  []BulkError    `json:"errors"`
}

// Snapshot is one consistent-enough view of the store: every task found in a
// full scan, grouped by the directory it was found in. Directory placement
// is authoritative for status; the in-document status field is rewritten to
// match on load.
type Snapshot struct {
	ByStatus map[models.Status][]*models.Task
}

// All returns every task in the snapshot in scan order.
func (s *Snapshot) All() []*models.Task {
	var all []*models.Task
	for _, status := range models.Statuses {
		all = append(all, s.ByStatus[status]...)
	}
	return all
}

// TaskStore is the authoritative, crash-consistent task repository.
type TaskStore interface {
	Scan() (*Snapshot, error)
	List(filter TaskFilter) ([]*models.Task, error)
	GetByID(id string) (*models.Task, error)
	Create(draft TaskDraft) (*models.Task, error)
	CreateBulk(drafts []TaskDraft) (*BulkResult, error)
	Transition(id string, from []models.Status, to models.Status, mutate func(*models.Task)) (*models.Task, error)
}

type fileTaskStore struct {
	baseDir string
	now     func() time.Time
	newID   func() string
}

// Option customizes a task store; used by tests to pin clocks and ids.
type Option func(*fileTaskStore)

// WithClock overrides the store's time source.
func WithClock(now func() time.Time) Option {
	return func(s *fileTaskStore) { s.now = now }
}

// WithIDGenerator overrides the store's id source.
func WithIDGenerator(gen func() string) Option {
	return func(s *fileTaskStore) { s.newID = gen }
}

// NewTaskStore creates a TaskStore rooted at baseDir and ensures the status
// directories exist.
func NewTaskStore(baseDir string, opts ...Option) (TaskStore, error) {
	s := &fileTaskStore{
		baseDir: baseDir,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, status := range models.Statuses {
		if err := os.MkdirAll(s.statusDir(status), 0o750); err != nil {
			return nil, fmt.Errorf("creating status directory %s: %w", status, err)
		}
	}

	return s, nil
}

func (s *fileTaskStore) statusDir(status models.Status) string {
	return filepath.Join(s.baseDir, string(status))
}

// taskFileName derives the cosmetic on-disk name: slug plus the first eight
// characters of the id. Identity lives inside the document, never in the name.
func taskFileName(t *models.Task) string {
	short := t.ID
	if len(short) > 8 {
		short = short[:8]
	}
	slug := t.Slug()
	if slug == "" {
		return short + ".json"
	}
	return slug + "-" + short + ".json"
}

// Scan walks every status directory and returns a fresh snapshot. Corrupt or
// unreadable files are skipped with a warning so one malformed document
// never hides the rest of the queue.
func (s *fileTaskStore) Scan() (*Snapshot, error) {
	snap := &Snapshot{ByStatus: make(map[models.Status][]*models.Task, len(models.Statuses))}

	for _, status := range models.Statuses {
		dir := s.statusDir(status)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading status directory %s: %w", status, err)
		}

		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			task, err := readTaskFile(path)
			if err != nil {
				logging.Warn().Str("path", path).Err(err).Msg("skipping unreadable task file")
				continue
			}
			// The directory is authoritative.
			task.Status = status
			snap.ByStatus[status] = append(snap.ByStatus[status], task)
		}
	}

	return snap, nil
}

func readTaskFile(path string) (*models.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading task file: %w", err)
	}
	var task models.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("parsing task file: %w", err)
	}
	if task.ID == "" {
		return nil, fmt.Errorf("task file has no id")
	}
	return &task, nil
}

// writeTaskFile persists a task into the directory for its status using a
// write-temp-then-rename sequence so readers never observe a partial
// document.
func (s *fileTaskStore) writeTaskFile(t *models.Task) (string, error) {
	dir := s.statusDir(t.Status)
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshalling task %s: %w", t.ID, err)
	}
	data = append(data, '\n')

	short := t.ID
	if len(short) > 8 {
		short = short[:8]
	}
	tmp, err := os.CreateTemp(dir, ".tmp-"+short+"-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file for task %s: %w", t.ID, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("writing task %s: %w", t.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("closing task file for %s: %w", t.ID, err)
	}

	final := filepath.Join(dir, taskFileName(t))
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("renaming task file for %s: %w", t.ID, err)
	}
	return final, nil
}

// locate finds the file currently holding the task with the given id,
// scanning statuses in their fixed order.
func (s *fileTaskStore) locate(id string) (string, *models.Task, error) {
	for _, status := range models.Statuses {
		dir := s.statusDir(status)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", nil, fmt.Errorf("reading status directory %s: %w", status, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			task, err := readTaskFile(path)
			if err != nil {
				continue
			}
			if task.ID == id {
				task.Status = status
				return path, task, nil
			}
		}
	}
	return "", nil, &NotFoundError{ID: id}
}

// List scans fresh and returns tasks matching the filter, sorted by
// ascending priority with id as the deterministic tie-break.
func (s *fileTaskStore) List(filter TaskFilter) ([]*models.Task, error) {
	snap, err := s.Scan()
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}

	statuses := filter.Statuses
	if len(statuses) == 0 {
		statuses = models.Statuses
	}

	var result []*models.Task
	for _, status := range statuses {
		for _, t := range snap.ByStatus[status] {
			if matchesTaskFilter(t, filter) {
				result = append(result, t)
			}
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Priority != result[j].Priority {
			return result[i].Priority < result[j].Priority
		}
		return result[i].ID < result[j].ID
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func matchesTaskFilter(t *models.Task, filter TaskFilter) bool {
	if filter.Category != "" && t.Category != filter.Category {
		return false
	}
	if filter.Effort != "" && t.Effort != filter.Effort {
		return false
	}
	if filter.MinPriority != nil && t.Priority < *filter.MinPriority {
		return false
	}
	if filter.MaxPriority != nil && t.Priority > *filter.MaxPriority {
		return false
	}
	return true
}

// GetByID returns the task with the given id, wherever it lives.
func (s *fileTaskStore) GetByID(id string) (*models.Task, error) {
	_, task, err := s.locate(id)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Create validates the draft against the current store state and writes the
// new task to todo/. Validation failures surface before any write, so a
// failed create never leaves a partial document behind.
func (s *fileTaskStore) Create(draft TaskDraft) (*models.Task, error) {
	snap, err := s.Scan()
	if err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}
	return s.createInSnapshot(draft, resolutionSet(snap))
}

// resolutionSet builds the identity set dependencies must resolve against:
// the union of todo, in-progress, and done tasks.
func resolutionSet(snap *Snapshot) *IdentitySet {
	var pool []*models.Task
	for _, status := range []models.Status{models.StatusTodo, models.StatusInProgress, models.StatusDone} {
		pool = append(pool, snap.ByStatus[status]...)
	}
	return NewIdentitySet(pool)
}

func validateDraft(draft TaskDraft, deps *IdentitySet) error {
	if strings.TrimSpace(draft.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if !models.ValidCategory(draft.Category) {
		return &ValidationError{Field: "category", Value: string(draft.Category), Reason: "must be one of core, feature, enhancement, bugfix, infrastructure, ui-ux"}
	}
	if !models.ValidEffort(draft.Effort) {
		return &ValidationError{Field: "effort", Value: string(draft.Effort), Reason: "must be one of XS, S, M, L, XL"}
	}
	for _, dep := range draft.Dependencies {
		if !deps.Resolve(dep) {
			return &ValidationError{Field: "dependencies", Value: dep, Reason: "does not match any existing task id, name, or slug"}
		}
	}
	return nil
}

func (s *fileTaskStore) createInSnapshot(draft TaskDraft, deps *IdentitySet) (*models.Task, error) {
	if err := validateDraft(draft, deps); err != nil {
		return nil, err
	}

	now := s.now()
	task := &models.Task{
		ID:                 s.newID(),
		Name:               draft.Name,
		Description:        draft.Description,
		Category:           draft.Category,
		Priority:           draft.Priority,
		Effort:             draft.Effort,
		Dependencies:       draft.Dependencies,
		AcceptanceCriteria: draft.AcceptanceCriteria,
		Steps:              draft.Steps,
		Status:             models.StatusTodo,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if _, err := s.writeTaskFile(task); err != nil {
		return nil, fmt.Errorf("creating task %q: %w", draft.Name, err)
	}

	logging.Debug().Str("task_id", task.ID).Str("name", task.Name).Msg("task created")
	return task, nil
}

// CreateBulk processes drafts independently: one entry's failure never
// blocks the others. Dependencies may reference earlier entries of the same
// batch by name or slug.
func (s *fileTaskStore) CreateBulk(drafts []TaskDraft) (*BulkResult, error) {
	snap, err := s.Scan()
	if err != nil {
		return nil, fmt.Errorf("creating tasks in bulk: %w", err)
	}

	deps := resolutionSet(snap)
	result := &BulkResult{}

	for i, draft := range drafts {
		task, err := s.createInSnapshot(draft, deps)
		if err != nil {
			be := BulkError{Index: i, Error: err.Error()}
			var ve *ValidationError
			if errors.As(err, &ve) {
				be.Field = ve.Field
			}
			result.Errors = append(result.Errors, be)
			continue
		}
		result.Created = append(result.Created, task)
		// Later entries may depend on this one.
		deps.Add(task)
	}

	return result, nil
}

// Transition moves a task from one of the expected source statuses into the
// target status, applying mutate to the record along the way. The new file
// is fully written (temp then rename) before the old one is removed, so a
// crash in between leaves the record recoverable from whichever file
// survives. A per-task lock serializes racing transitions; the loser fails
// with StatusMismatchError.
func (s *fileTaskStore) Transition(id string, from []models.Status, to models.Status, mutate func(*models.Task)) (*models.Task, error) {
	unlock, err := lockTask(s.baseDir, id)
	if err != nil {
		return nil, fmt.Errorf("transitioning task %s: %w", id, err)
	}
	defer func() { _ = unlock() }()

	oldPath, task, err := s.locate(id)
	if err != nil {
		return nil, err
	}

	allowed := false
	for _, status := range from {
		if task.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, &StatusMismatchError{ID: id, Expected: from, Actual: task.Status}
	}

	fromStatus := task.Status
	task.Status = to
	task.UpdatedAt = s.now()
	if mutate != nil {
		mutate(task)
	}

	newPath, err := s.writeTaskFile(task)
	if err != nil {
		return nil, fmt.Errorf("transitioning task %s to %s: %w", id, to, err)
	}
	if newPath != oldPath {
		if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("transitioning task %s: removing old file: %w", id, err)
		}
	}

	logging.Info().
		Str("task_id", id).
		Str("from", string(fromStatus)).
		Str("to", string(to)).
		Msg("task transitioned")
	return task, nil
}
