package models

import (
	"fmt"
	"sort"
)

// SelectionMode controls whether the buyer can change the selection
type SelectionMode string

// Selection modes
const (
	SelectionModeLocked SelectionMode = "locked"
	SelectionModeToggle SelectionMode = "toggle"
)

// Valid reports whether m is a known mode
func (m SelectionMode) Valid() bool {
	return m == SelectionModeLocked || m == SelectionModeToggle
}

// Selection is the set of offer ids the buyer currently wants.
// Every id it holds exists in the catalog it was created for.
type Selection struct {
	mode    SelectionMode
	catalog *Catalog
	ids     map[string]struct{}
}

// NewLockedSelection pins the selection to a single catalog id
func NewLockedSelection(catalog *Catalog, id string) (*Selection, error) {
	if !catalog.Has(id) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOfferID, id)
	}
	return &Selection{
		mode:    SelectionModeLocked,
		catalog: catalog,
		ids:     map[string]struct{}{id: {}},
	}, nil
}

// NewToggleSelection creates an empty selection the buyer can toggle
func NewToggleSelection(catalog *Catalog) *Selection {
	return &Selection{
		mode:    SelectionModeToggle,
		catalog: catalog,
		ids:     make(map[string]struct{}),
	}
}

// Mode returns the selection mode
func (s *Selection) Mode() SelectionMode {
	return s.mode
}

// Locked reports whether the selection is fixed
func (s *Selection) Locked() bool {
	return s.mode == SelectionModeLocked
}

// Toggle adds id when absent and removes it when present.
// Locked selections ignore toggles. Ids outside the catalog are a caller
// bug and are ignored so the invariant holds.
func (s *Selection) Toggle(id string) {
	if s.mode == SelectionModeLocked || !s.catalog.Has(id) {
		return
	}
	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
		return
	}
	s.ids[id] = struct{}{}
}

// Contains reports whether id is selected
func (s *Selection) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of selected ids
func (s *Selection) Len() int {
	return len(s.ids)
}

// IDs returns the selected ids in catalog order
func (s *Selection) IDs() []string {
	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.catalog.index[ids[i]] < s.catalog.index[ids[j]]
	})
	return ids
}
