package model

import (
	"fmt"
	"slices"
	"strings"
)

// CategoryOther is the fallback category. Every CategorySet contains it.
const CategoryOther = "other"

// CategoryEvent marks messages about bookings; these feed suggestions.
const CategoryEvent = "event"

// CategorySet is the closed set of categories a classifier may return.
// It is built from configuration at startup.
type CategorySet struct {
	names []string
}

// NewCategorySet validates names and returns a set that always includes
// CategoryOther. Names are lowercased; duplicates and blanks are rejected.
func NewCategorySet(names []string) (CategorySet, error) {
	seen := make(map[string]bool, len(names)+1)
	out := make([]string, 0, len(names)+1)
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			return CategorySet{}, fmt.Errorf("category name cannot be empty")
		}
		if seen[n] {
			return CategorySet{}, fmt.Errorf("duplicate category %q", n)
		}
		seen[n] = true
		out = append(out, n)
	}
	if !seen[CategoryOther] {
		out = append(out, CategoryOther)
	}
	return CategorySet{names: out}, nil
}

// Names returns the categories in configured order.
func (s CategorySet) Names() []string {
	if len(s.names) == 0 {
		return []string{CategoryOther}
	}
	return slices.Clone(s.names)
}

// Contains reports whether name is a member of the set.
func (s CategorySet) Contains(name string) bool {
	return slices.Contains(s.Names(), strings.ToLower(strings.TrimSpace(name)))
}

// Validate returns name normalized when it is a member, otherwise
// CategoryOther.
func (s CategorySet) Validate(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if s.Contains(n) {
		return n
	}
	return CategoryOther
}
