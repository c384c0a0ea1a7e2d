package core

import (
	"fmt"
	"strings"

	"github.com/valter-silva-au/taskdeck/internal/storage"
	"github.com/valter-silva-au/taskdeck/pkg/models"
)

// RepairProposal suggests rewriting one dependency reference of one task.
// Proposals come from fuzzy matching and are only ever applied after review;
// the live resolution path stays exact-match so a near-miss can never
// silently unblock a task.
type RepairProposal struct {
	TaskID     string `yaml:"task_id" json:"task_id"`
	TaskName   string `yaml:"task_name" json:"task_name"`
	Dependency string `yaml:"dependency" json:"dependency"`
	Suggestion string `yaml:"suggestion" json:"suggestion"`
	MatchKind  string `yaml:"match_kind" json:"match_kind"` // case, substring
}

// RepairReport is the outcome of one repair scan.
type RepairReport struct {
	Proposals  []RepairProposal `yaml:"proposals" json:"proposals"`
	Unmatched  []RepairProposal `yaml:"unmatched,omitempty" json:"unmatched,omitempty"`
	Applied    int              `yaml:"applied" json:"applied"`
	TasksSeen  int              `yaml:"tasks_seen" json:"tasks_seen"`
}

// DependencyRepairer is the offline maintenance pass that finds dependency
// references which resolve against nothing and proposes fixes.
type DependencyRepairer struct {
	store storage.TaskStore
}

// NewDependencyRepairer creates a DependencyRepairer over the given store.
func NewDependencyRepairer(store storage.TaskStore) *DependencyRepairer {
	return &DependencyRepairer{store: store}
}

// Scan walks every non-terminal task, checks each dependency against the
// exact-match identity set of all tasks, and proposes a fuzzy fix for each
// unresolved reference: first a case-insensitive name match, then a unique
// substring match. References with no plausible target are reported as
// unmatched so a human can rewrite or delete them.
func (r *DependencyRepairer) Scan() (*RepairReport, error) {
	snap, err := r.store.Scan()
	if err != nil {
		return nil, fmt.Errorf("scanning for dependency repair: %w", err)
	}

	all := snap.All()
	exact := storage.NewIdentitySet(all)

	report := &RepairReport{}
	for _, t := range all {
		if t.Status.Terminal() {
			continue
		}
		report.TasksSeen++
		for _, dep := range t.Dependencies {
			if exact.Resolve(dep) {
				continue
			}
			proposal := RepairProposal{
				TaskID:     t.ID,
				TaskName:   t.Name,
				Dependency: dep,
			}
			if target, kind := fuzzyMatch(dep, all, t.ID); target != nil {
				proposal.Suggestion = target.Name
				proposal.MatchKind = kind
				report.Proposals = append(report.Proposals, proposal)
			} else {
				report.Unmatched = append(report.Unmatched, proposal)
			}
		}
	}

	return report, nil
}

// Apply rewrites the proposed dependencies in place. Only call with a
// reviewed report.
func (r *DependencyRepairer) Apply(report *RepairReport) error {
	byTask := make(map[string][]RepairProposal)
	for _, p := range report.Proposals {
		byTask[p.TaskID] = append(byTask[p.TaskID], p)
	}

	for taskID, proposals := range byTask {
		task, err := r.store.GetByID(taskID)
		if err != nil {
			return fmt.Errorf("applying repairs to %s: %w", taskID, err)
		}
		status := task.Status

		_, err = r.store.Transition(taskID, []models.Status{status}, status, func(t *models.Task) {
			for _, p := range proposals {
				for i, dep := range t.Dependencies {
					if dep == p.Dependency {
						t.Dependencies[i] = p.Suggestion
					}
				}
			}
		})
		if err != nil {
			return fmt.Errorf("applying repairs to %s: %w", taskID, err)
		}
		report.Applied += len(proposals)
	}

	return nil
}

// fuzzyMatch looks for the task a broken reference most plausibly meant.
func fuzzyMatch(ref string, tasks []*models.Task, excludeID string) (*models.Task, string) {
	lowerRef := strings.ToLower(ref)

	// Case-insensitive exact name match first.
	for _, t := range tasks {
		if t.ID == excludeID {
			continue
		}
		if strings.EqualFold(t.Name, ref) {
			return t, "case"
		}
	}

	// Unique substring match second: ambiguous references stay unmatched.
	var found *models.Task
	for _, t := range tasks {
		if t.ID == excludeID {
			continue
		}
		name := strings.ToLower(t.Name)
		if strings.Contains(name, lowerRef) || strings.Contains(lowerRef, name) {
			if found != nil {
				return nil, ""
			}
			found = t
		}
	}
	if found != nil {
		return found, "substring"
	}
	return nil, ""
}
