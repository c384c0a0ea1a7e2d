// Package models defines the data types shared across taskdeck: tasks,
// steering messages, process status records, and the tool result envelope.
// These types are the JSON wire format that external tools (dashboards,
// transports) read and write, so field names are part of the contract.
package models

import (
	"strings"
	"time"
)

// Category classifies what kind of work a task involves.
type Category string

const (
	CategoryCore           Category = "core"
	CategoryFeature        Category = "feature"
	CategoryEnhancement    Category = "enhancement"
	CategoryBugfix         Category = "bugfix"
	CategoryInfrastructure Category = "infrastructure"
	CategoryUIUX           Category = "ui-ux"
)

// Categories lists every valid category value.
var Categories = []Category{
	CategoryCore, CategoryFeature, CategoryEnhancement,
	CategoryBugfix, CategoryInfrastructure, CategoryUIUX,
}

// ValidCategory reports whether c is a known category.
func ValidCategory(c Category) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Effort is a T-shirt size estimate for a task.
type Effort string

const (
	EffortXS Effort = "XS"
	EffortS  Effort = "S"
	EffortM  Effort = "M"
	EffortL  Effort = "L"
	EffortXL Effort = "XL"
)

// Efforts lists every valid effort value.
var Efforts = []Effort{EffortXS, EffortS, EffortM, EffortL, EffortXL}

// ValidEffort reports whether e is a known effort size.
func ValidEffort(e Effort) bool {
	for _, known := range Efforts {
		if e == known {
			return true
		}
	}
	return false
}

// Days returns the estimated-days weight for an effort size. Unknown sizes
// weigh zero so they never inflate remaining-effort totals.
func (e Effort) Days() float64 {
	switch e {
	case EffortXS:
		return 1
	case EffortS:
		return 2.5
	case EffortM:
		return 5
	case EffortL:
		return 10
	case EffortXL:
		return 15
	}
	return 0
}

// Status is a task's lifecycle state. On disk the status is encoded by which
// directory the task file lives in; the in-document field is a denormalized
// hint only, and the directory placement is authoritative.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusAnalysing  Status = "analysing"
	StatusAnalysed   Status = "analysed"
	StatusNeedsInput Status = "needs-input"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
	StatusSplit      Status = "split"
	StatusSkipped    Status = "skipped"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists every status in the fixed scan order used by the store.
var Statuses = []Status{
	StatusTodo, StatusAnalysing, StatusAnalysed, StatusNeedsInput,
	StatusInProgress, StatusDone, StatusSplit, StatusSkipped, StatusCancelled,
}

// ValidStatus reports whether s is a known status.
func ValidStatus(s Status) bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether s is a terminal state. Terminal tasks stay
// queryable but are never candidates for further scheduling.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusSkipped || s == StatusCancelled
}

// Analysis is the payload attached once a task reaches the analysed state.
type Analysis struct {
	Entities               []string `json:"entities,omitempty"`
	Files                  []string `json:"files,omitempty"`
	ResolvedQuestions      []string `json:"resolved_questions,omitempty"`
	ImplementationGuidance string   `json:"implementation_guidance,omitempty"`
}

// SkipEntry records one skip of a task. A task may be skipped more than once
// if it is requeued; entries accumulate and are never overwritten.
type SkipEntry struct {
	SkippedAt time.Time `json:"skipped_at"`
	Reason    string    `json:"reason"`
}

// SplitProposal describes how a too-large task should be broken up.
type SplitProposal struct {
	Reason   string   `json:"reason,omitempty"`
	Children []string `json:"children,omitempty"`
}

// Task is the unit of agent work. One JSON file under a status directory
// represents one task; the id field inside the document is its identity
// (filenames are cosmetic).
type Task struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Description        string   `json:"description,omitempty"`
	Category           Category `json:"category"`
	Priority           int      `json:"priority"`
	Effort             Effort   `json:"effort"`
	Dependencies       []string `json:"dependencies,omitempty"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	Steps              []string `json:"steps,omitempty"`
	Status             Status   `json:"status"`

	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	AnalysisStartedAt   *time.Time `json:"analysis_started_at,omitempty"`
	AnalysisCompletedAt *time.Time `json:"analysis_completed_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`

	Analysis *Analysis `json:"analysis,omitempty"`

	PendingQuestion   string         `json:"pending_question,omitempty"`
	QuestionsResolved []string       `json:"questions_resolved,omitempty"`
	SplitProposal     *SplitProposal `json:"split_proposal,omitempty"`
	ChildTasks        []string       `json:"child_tasks,omitempty"`

	SkipHistory []SkipEntry `json:"skip_history,omitempty"`
}

// Slug returns the task's slug, derived from its name.
func (t *Task) Slug() string {
	return Slug(t.Name)
}

// Slug normalizes a task name for human-friendly dependency references:
// lowercase, spaces become hyphens, every other non-alphanumeric character
// is stripped, and runs of hyphens collapse to one.
func Slug(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))

	var b strings.Builder
	b.Grow(len(lower))
	lastHyphen := false
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case r == ' ' || r == '-':
			if !lastHyphen && b.Len() > 0 {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	return strings.TrimRight(b.String(), "-")
}
