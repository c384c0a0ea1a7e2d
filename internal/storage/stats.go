package storage

import (
	"fmt"

	"github.com/valter-silva-au/taskdeck/pkg/models"
)

// Stats is an aggregate view over one fresh scan of the store.
type Stats struct {
	Total      int                     `json:"total"`
	ByStatus   map[models.Status]int   `json:"by_status"`
	ByCategory map[models.Category]int `json:"by_category"`
	ByEffort   map[models.Effort]int   `json:"by_effort"`

	// RemainingDays is the summed effort weight of every task not yet in a
	// terminal state.
	RemainingDays float64 `json:"remaining_days"`

	// CompletedDays is the summed effort weight of done tasks.
	CompletedDays float64 `json:"completed_days"`
}

// ComputeStats derives aggregate counts from a snapshot. It is a pure
// function over the scan; there is no separate stats storage to drift.
func ComputeStats(snap *Snapshot) *Stats {
	stats := &Stats{
		ByStatus:   make(map[models.Status]int),
		ByCategory: make(map[models.Category]int),
		ByEffort:   make(map[models.Effort]int),
	}

	for _, status := range models.Statuses {
		for _, t := range snap.ByStatus[status] {
			stats.Total++
			stats.ByStatus[status]++
			stats.ByCategory[t.Category]++
			stats.ByEffort[t.Effort]++

			switch {
			case status == models.StatusDone:
				stats.CompletedDays += t.Effort.Days()
			case !status.Terminal():
				stats.RemainingDays += t.Effort.Days()
			}
		}
	}

	return stats
}

// GetStats scans the store and returns aggregate counts.
func GetStats(store TaskStore) (*Stats, error) {
	snap, err := store.Scan()
	if err != nil {
		return nil, fmt.Errorf("computing stats: %w", err)
	}
	return ComputeStats(snap), nil
}
