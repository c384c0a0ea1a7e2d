package core

import (
	"fmt"
	"sort"

	"github.com/valter-silva-au/taskdeck/internal/storage"
	"github.com/valter-silva-au/taskdeck/pkg/models"
)

// Pool selects which candidate pool get-next draws from.
type Pool string

const (
	// PoolAnalysed prefers tasks that already carry an analysis payload.
	PoolAnalysed Pool = "analysed"
	// PoolTodo schedules straight from the todo queue.
	PoolTodo Pool = "todo"
)

// ValidPool reports whether p is a known scheduling pool.
func ValidPool(p Pool) bool {
	return p == PoolAnalysed || p == PoolTodo
}

// Selection is the result of one get-next call. When Task is nil the
// auxiliary counts let the caller distinguish "nothing to do" from
// "everything is blocked".
type Selection struct {
	Task         *models.Task          `json:"task,omitempty"`
	BlockedCount int                   `json:"blocked_count"`
	StateCounts  map[models.Status]int `json:"state_counts"`
}

// Scheduler picks the single highest-priority eligible task from a pool.
type Scheduler struct {
	store storage.TaskStore
}

// NewScheduler creates a Scheduler over the given store.
func NewScheduler(store storage.TaskStore) *Scheduler {
	return &Scheduler{store: store}
}

// GetNext scans fresh, builds the done identity set, and returns the
// highest-priority task from the pool whose every dependency resolves
// against done tasks. A task whose dependency exists but is not yet done is
// never eligible, no matter its priority; a task with zero dependencies is
// always a candidate. Ties break on id so repeated calls are stable.
func (s *Scheduler) GetNext(pool Pool) (*Selection, error) {
	if pool == "" {
		pool = PoolAnalysed
	}
	if !ValidPool(pool) {
		return nil, fmt.Errorf("unknown scheduling pool %q", pool)
	}

	snap, err := s.store.Scan()
	if err != nil {
		return nil, fmt.Errorf("selecting next task: %w", err)
	}

	done := storage.NewIdentitySet(snap.ByStatus[models.StatusDone])

	poolStatus := models.StatusAnalysed
	if pool == PoolTodo {
		poolStatus = models.StatusTodo
	}
	candidates := snap.ByStatus[poolStatus]

	selection := &Selection{StateCounts: make(map[models.Status]int)}
	for _, status := range models.Statuses {
		if status.Terminal() {
			continue
		}
		if n := len(snap.ByStatus[status]); n > 0 {
			selection.StateCounts[status] = n
		}
	}

	var eligible []*models.Task
	for _, t := range candidates {
		if len(done.Unmet(t)) > 0 {
			selection.BlockedCount++
			continue
		}
		eligible = append(eligible, t)
	}

	if len(eligible) == 0 {
		return selection, nil
	}

	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].Priority != eligible[j].Priority {
			return eligible[i].Priority < eligible[j].Priority
		}
		return eligible[i].ID < eligible[j].ID
	})

	selection.Task = eligible[0]
	return selection, nil
}
