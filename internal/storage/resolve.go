package storage

import (
	"github.com/valter-silva-au/taskdeck/pkg/models"
)

// IdentitySet holds the exact-match identities of a set of tasks: ids and
// names compared case-sensitively, slugs compared case-insensitively (slugs
// are lowercase by construction, so references are lowered before lookup).
type IdentitySet struct {
	ids   map[string]struct{}
	names map[string]struct{}
	slugs map[string]struct{}
}

// NewIdentitySet builds an IdentitySet from the given tasks.
func NewIdentitySet(tasks []*models.Task) *IdentitySet {
	s := &IdentitySet{
		ids:   make(map[string]struct{}, len(tasks)),
		names: make(map[string]struct{}, len(tasks)),
		slugs: make(map[string]struct{}, len(tasks)),
	}
	for _, t := range tasks {
		s.Add(t)
	}
	return s
}

// Add registers a task's id, name, and slug.
func (s *IdentitySet) Add(t *models.Task) {
	s.ids[t.ID] = struct{}{}
	if t.Name != "" {
		s.names[t.Name] = struct{}{}
	}
	if slug := t.Slug(); slug != "" {
		s.slugs[slug] = struct{}{}
	}
}

// Resolve reports whether a dependency reference matches a task in the set.
// Matching is exact only: a reference that differs from every id and name by
// even one character is unmet, unless its slug form matches a task slug.
// There is deliberately no fuzzy or substring matching on this path; the
// offline repair command proposes fuzzy fixes for human review instead.
func (s *IdentitySet) Resolve(ref string) bool {
	if _, ok := s.ids[ref]; ok {
		return true
	}
	if _, ok := s.names[ref]; ok {
		return true
	}
	// Slug derivation lowercases, so slug matches are case-insensitive.
	_, ok := s.slugs[models.Slug(ref)]
	return ok
}

// Unmet returns the dependencies of t that do not resolve against the set.
func (s *IdentitySet) Unmet(t *models.Task) []string {
	var unmet []string
	for _, dep := range t.Dependencies {
		if !s.Resolve(dep) {
			unmet = append(unmet, dep)
		}
	}
	return unmet
}
