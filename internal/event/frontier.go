package event

import (
	"sort"
	"strings"
)

// Frontier is a set of event IDs, held sorted ascending and
// duplicate-free. A branch head is a Frontier; so is the common-ancestor
// boundary computed during a merge.
type Frontier []ID

// NewFrontier builds a normalized frontier from the given IDs.
func NewFrontier(ids ...ID) Frontier {
	return Frontier(normalizeIDs(ids))
}

// Key returns the canonical string form, usable as a cache or map key.
// Frontiers are sorted, so equal sets always produce equal keys.
func (f Frontier) Key() string {
	parts := make([]string, len(f))
	for i, id := range f {
		parts[i] = string(id)
	}
	return strings.Join(parts, ",")
}

// Equal reports whether two frontiers denote the same event set.
func (f Frontier) Equal(other Frontier) bool {
	if len(f) != len(other) {
		return false
	}
	for i := range f {
		if f[i] != other[i] {
			return false
		}
	}
	return true
}

// Contains reports whether id is a member of the frontier.
func (f Frontier) Contains(id ID) bool {
	i := sort.Search(len(f), func(i int) bool { return f[i] >= id })
	return i < len(f) && f[i] == id
}

// Clone returns an independent copy.
func (f Frontier) Clone() Frontier {
	return append(Frontier(nil), f...)
}

// Union returns the normalized union of f and others.
func (f Frontier) Union(others ...Frontier) Frontier {
	all := append(Frontier(nil), f...)
	for _, o := range others {
		all = append(all, o...)
	}
	return NewFrontier(all...)
}

func normalizeIDs(ids []ID) []ID {
	out := append([]ID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	dedup := out[:0]
	var prev ID
	for i, id := range out {
		if i == 0 || id != prev {
			dedup = append(dedup, id)
		}
		prev = id
	}
	return dedup
}
