/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package conflict detects time overlaps between scheduled items.
//
// Every item is a half-open interval [Start, End). Two items conflict when
// a.Start < b.End && b.Start < a.End, so back-to-back items that share only an
// endpoint never conflict. The relation is symmetric and irreflexive and each
// unordered pair is reported once.
package conflict

import (
	"fmt"
	"sort"
)

// Item is one schedulable interval. Start and End are instants in any single
// consistent unit; callers in this module use unix seconds.
type Item struct {
	ID    string
	Start int64
	End   int64
}

// Valid reports whether the item has positive duration.
func (i Item) Valid() bool {
	return i.End > i.Start
}

// Duration returns End - Start.
func (i Item) Duration() int64 {
	return i.End - i.Start
}

// Pair is one unordered conflicting pair. A is the item that appeared first
// in the input.
type Pair struct {
	A string `json:"a"`
	B string `json:"b"`
}

// Overlaps reports whether two intervals share at least one instant.
func Overlaps(a, b Item) bool {
	return a.Start < b.End && b.Start < a.End
}

// InvalidIntervalError is returned by Validate for an item whose end does not
// come after its start.
type InvalidIntervalError struct {
	ID    string
	Start int64
	End   int64
}

func (e *InvalidIntervalError) Error() string {
	return fmt.Sprintf("item %q has invalid interval [%d, %d)", e.ID, e.Start, e.End)
}

// DuplicateIDError is returned by Validate when two items share an id.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("item id %q appears more than once", e.ID)
}

// Validate checks items for the conditions Find tolerates silently. It
// returns the first problem found, in input order.
func Validate(items []Item) error {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, dup := seen[it.ID]; dup {
			return &DuplicateIDError{ID: it.ID}
		}
		seen[it.ID] = struct{}{}
		if !it.Valid() {
			return &InvalidIntervalError{ID: it.ID, Start: it.Start, End: it.End}
		}
	}
	return nil
}

// prepare filters the input down to the items that take part in comparison.
// Items with End <= Start are dropped and recorded as invalid. For repeated
// ids the first occurrence wins and later ones are recorded as duplicates.
func prepare(items []Item) ([]Item, *Relation) {
	r := newRelation(len(items))
	accepted := make([]Item, 0, len(items))
	for _, it := range items {
		if _, dup := r.order[it.ID]; dup {
			r.duplicates = append(r.duplicates, it.ID)
			continue
		}
		if !it.Valid() {
			if _, seen := r.rejected[it.ID]; seen {
				r.duplicates = append(r.duplicates, it.ID)
				continue
			}
			r.rejected[it.ID] = struct{}{}
			r.invalid = append(r.invalid, it.ID)
			continue
		}
		if _, seen := r.rejected[it.ID]; seen {
			r.duplicates = append(r.duplicates, it.ID)
			continue
		}
		r.order[it.ID] = len(accepted)
		accepted = append(accepted, it)
	}
	return accepted, r
}

// Find computes the conflict relation with a pairwise scan. It performs
// exactly n(n-1)/2 comparisons over the accepted items.
func Find(items []Item) *Relation {
	accepted, r := prepare(items)
	for i := 0; i < len(accepted); i++ {
		for j := i + 1; j < len(accepted); j++ {
			r.comparisons++
			if Overlaps(accepted[i], accepted[j]) {
				r.add(accepted[i].ID, accepted[j].ID)
			}
		}
	}
	return r
}

// FindSweep computes the same relation as Find by sweeping items in start
// order and keeping the set of intervals still open. Pairs come out in the
// same order as Find. It is preferable for large inputs with few overlaps.
func FindSweep(items []Item) *Relation {
	accepted, r := prepare(items)

	byStart := make([]int, len(accepted))
	for i := range byStart {
		byStart[i] = i
	}
	sort.SliceStable(byStart, func(x, y int) bool {
		return accepted[byStart[x]].Start < accepted[byStart[y]].Start
	})

	type indexPair struct{ i, j int }
	var found []indexPair
	active := make([]int, 0, 8)
	for _, k := range byStart {
		cur := accepted[k]
		open := active[:0]
		for _, a := range active {
			r.comparisons++
			if accepted[a].End <= cur.Start {
				continue
			}
			open = append(open, a)
			if a < k {
				found = append(found, indexPair{a, k})
			} else {
				found = append(found, indexPair{k, a})
			}
		}
		active = append(open, k)
	}

	sort.Slice(found, func(x, y int) bool {
		if found[x].i != found[y].i {
			return found[x].i < found[y].i
		}
		return found[x].j < found[y].j
	})
	for _, p := range found {
		r.add(accepted[p.i].ID, accepted[p.j].ID)
	}
	return r
}

// HasAny reports whether any two valid items overlap. It stops at the first
// conflict it finds.
func HasAny(items []Item) bool {
	accepted, _ := prepare(items)
	for i := 0; i < len(accepted); i++ {
		for j := i + 1; j < len(accepted); j++ {
			if Overlaps(accepted[i], accepted[j]) {
				return true
			}
		}
	}
	return false
}
