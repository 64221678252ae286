/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package conflict

import "sort"

// Relation is the result of one conflict computation. It is not modified
// after Find or FindSweep return, and every accessor hands out copies.
type Relation struct {
	pairs       []Pair
	adjacency   map[string]map[string]struct{}
	order       map[string]int
	rejected    map[string]struct{}
	invalid     []string
	duplicates  []string
	comparisons int
}

func newRelation(n int) *Relation {
	return &Relation{
		adjacency: make(map[string]map[string]struct{}),
		order:     make(map[string]int, n),
		rejected:  make(map[string]struct{}),
	}
}

func (r *Relation) add(a, b string) {
	r.pairs = append(r.pairs, Pair{A: a, B: b})
	r.link(a, b)
	r.link(b, a)
}

func (r *Relation) link(from, to string) {
	set, ok := r.adjacency[from]
	if !ok {
		set = make(map[string]struct{})
		r.adjacency[from] = set
	}
	set[to] = struct{}{}
}

// Pairs returns every conflicting pair once, ordered by the input position
// of A and then of B.
func (r *Relation) Pairs() []Pair {
	out := make([]Pair, len(r.pairs))
	copy(out, r.pairs)
	return out
}

// ConflictsFor returns the ids that conflict with id in input order. Unknown
// ids and ids without conflicts yield an empty slice.
func (r *Relation) ConflictsFor(id string) []string {
	set := r.adjacency[id]
	out := make([]string, 0, len(set))
	for other := range set {
		out = append(out, other)
	}
	sort.Slice(out, func(i, j int) bool {
		return r.order[out[i]] < r.order[out[j]]
	})
	return out
}

// Conflicts reports whether a and b were found to overlap.
func (r *Relation) Conflicts(a, b string) bool {
	_, ok := r.adjacency[a][b]
	return ok
}

// HasConflict reports whether id conflicts with anything.
func (r *Relation) HasConflict(id string) bool {
	return len(r.adjacency[id]) > 0
}

// Adjacency returns a copy of the per-item view. Only items that take part
// in at least one conflict have an entry.
func (r *Relation) Adjacency() map[string][]string {
	out := make(map[string][]string, len(r.adjacency))
	for id := range r.adjacency {
		out[id] = r.ConflictsFor(id)
	}
	return out
}

// Len is the number of conflicting pairs.
func (r *Relation) Len() int { return len(r.pairs) }

// Empty reports whether no pair conflicts.
func (r *Relation) Empty() bool { return len(r.pairs) == 0 }

// Comparisons is the number of interval comparisons the computation made.
func (r *Relation) Comparisons() int { return r.comparisons }

// Invalid lists ids whose interval had End <= Start. They were left out of
// the comparison.
func (r *Relation) Invalid() []string {
	return append([]string(nil), r.invalid...)
}

// Duplicates lists ids that appeared again after their first occurrence.
// Only the first occurrence was compared.
func (r *Relation) Duplicates() []string {
	return append([]string(nil), r.duplicates...)
}
