package observability

import (
	"fmt"
	"time"
)

// Metrics aggregates event counts over a time window.
type Metrics struct {
	TasksCreated      int            `json:"tasks_created"`
	TasksCompleted    int            `json:"tasks_completed"`
	TransitionsByType map[string]int `json:"transitions_by_target"`
	WhispersSent      int            `json:"whispers_sent"`
	Heartbeats        int            `json:"heartbeats"`
	EventCount        int            `json:"event_count"`
	OldestEvent       *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent       *time.Time     `json:"newest_event,omitempty"`
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

type eventMetricsCalculator struct {
	log EventLog
}

// NewMetricsCalculator creates a MetricsCalculator over the given event log.
func NewMetricsCalculator(log EventLog) MetricsCalculator {
	return &eventMetricsCalculator{log: log}
}

// Calculate reads every event since the given time and tallies counts.
func (c *eventMetricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := c.log.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("calculating metrics: %w", err)
	}

	m := &Metrics{TransitionsByType: make(map[string]int)}
	for i := range events {
		event := events[i]
		m.EventCount++
		if m.OldestEvent == nil || event.Time.Before(*m.OldestEvent) {
			t := event.Time
			m.OldestEvent = &t
		}
		if m.NewestEvent == nil || event.Time.After(*m.NewestEvent) {
			t := event.Time
			m.NewestEvent = &t
		}

		switch event.Type {
		case "task.created":
			m.TasksCreated++
		case "task.transition":
			if to, ok := event.Data["to"].(string); ok {
				m.TransitionsByType[to]++
				if to == "done" {
					m.TasksCompleted++
				}
			}
		case "steering.whisper":
			m.WhispersSent++
		case "steering.heartbeat":
			m.Heartbeats++
		}
	}

	return m, nil
}
