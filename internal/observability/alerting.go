package observability

import (
	"fmt"
	"time"

	"github.com/valter-silva-au/taskdeck/internal/storage"
	"github.com/valter-silva-au/taskdeck/pkg/models"
)

// AlertSeverity ranks how urgently an alert needs attention.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert is one active condition found during evaluation.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// AlertThresholds configure when conditions fire.
type AlertThresholds struct {
	// StaleHeartbeat flags processes whose last heartbeat is older than this.
	StaleHeartbeat time.Duration
	// StaleInProgress flags tasks claimed but untouched for this long.
	StaleInProgress time.Duration
	// MaxBlocked flags the queue when more candidates are blocked than this.
	MaxBlocked int
}

// DefaultAlertThresholds returns conservative defaults.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		StaleHeartbeat:  10 * time.Minute,
		StaleInProgress: 72 * time.Hour,
		MaxBlocked:      10,
	}
}

// AlertEngine evaluates the live store state for conditions that need an
// operator's attention. Stale process records are surfaced here rather than
// reaped: the steering channel keeps no TTL, so visibility is the remedy.
type AlertEngine interface {
	Evaluate() ([]Alert, error)
}

type storeAlertEngine struct {
	tasks      storage.TaskStore
	steering   storage.SteeringStore
	thresholds AlertThresholds
	now        func() time.Time
}

// NewAlertEngine creates an AlertEngine over the task and steering stores.
func NewAlertEngine(tasks storage.TaskStore, steering storage.SteeringStore, thresholds AlertThresholds) AlertEngine {
	return &storeAlertEngine{
		tasks:      tasks,
		steering:   steering,
		thresholds: thresholds,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (e *storeAlertEngine) Evaluate() ([]Alert, error) {
	now := e.now()
	var alerts []Alert

	snap, err := e.tasks.Scan()
	if err != nil {
		return nil, fmt.Errorf("evaluating alerts: %w", err)
	}

	// Stale in-progress tasks.
	for _, t := range snap.ByStatus[models.StatusInProgress] {
		if now.Sub(t.UpdatedAt) > e.thresholds.StaleInProgress {
			alerts = append(alerts, Alert{
				ID:          "stale-task-" + t.ID,
				Condition:   "stale_in_progress",
				Severity:    SeverityMedium,
				Message:     fmt.Sprintf("task %s (%s) has been in progress without updates since %s", t.ID, t.Name, t.UpdatedAt.Format(time.RFC3339)),
				TriggeredAt: now,
			})
		}
	}

	// Blocked pile-up: count candidates with unmet dependencies.
	done := storage.NewIdentitySet(snap.ByStatus[models.StatusDone])
	blocked := 0
	for _, status := range []models.Status{models.StatusTodo, models.StatusAnalysed} {
		for _, t := range snap.ByStatus[status] {
			if len(done.Unmet(t)) > 0 {
				blocked++
			}
		}
	}
	if e.thresholds.MaxBlocked > 0 && blocked > e.thresholds.MaxBlocked {
		alerts = append(alerts, Alert{
			ID:          "blocked-pileup",
			Condition:   "blocked_pileup",
			Severity:    SeverityHigh,
			Message:     fmt.Sprintf("%d tasks are blocked on unmet dependencies", blocked),
			TriggeredAt: now,
		})
	}

	// Silent agent processes.
	records, err := e.steering.ListProcesses()
	if err != nil {
		return nil, fmt.Errorf("evaluating alerts: %w", err)
	}
	for _, r := range records {
		if now.Sub(r.LastHeartbeat) > e.thresholds.StaleHeartbeat {
			alerts = append(alerts, Alert{
				ID:          "stale-heartbeat-" + r.ID,
				Condition:   "stale_heartbeat",
				Severity:    SeverityLow,
				Message:     fmt.Sprintf("process %s last heartbeat was %s", r.ID, r.LastHeartbeat.Format(time.RFC3339)),
				TriggeredAt: now,
			})
		}
	}

	return alerts, nil
}
