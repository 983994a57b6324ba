// Package mutate implements the tag mutation engine.
//
// Every operation is a pure function: it takes a State, never modifies it, and returns
// a Result holding the new State plus the number of objects touched. Tag sets in the
// returned state are always normalized (sorted, deduplicated).
package mutate

import (
	"github.com/zjrosen/tagsync/internal/tags"
)

// State is the registry and index a mutation operates on.
type State struct {
	Registry tags.Registry `json:"registry"`
	Index    tags.Index    `json:"index"`
}

// NewState returns an empty state.
func NewState() State {
	return State{Registry: tags.NewRegistry(), Index: tags.Index{}}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	return State{Registry: s.Registry.Clone(), Index: s.Index.Clone()}
}

// Equal reports whether two states hold the same registry and index.
func (s State) Equal(other State) bool {
	return s.Registry.Clone().Equal(other.Registry.Clone()) && s.Index.Clone().Equal(other.Index.Clone())
}

// Result is the outcome of a mutation.
type Result struct {
	State State
	// Affected is the number of objects whose tag set changed.
	Affected int
	// Changed lists the ids of objects whose tag set changed, in id order.
	Changed []string
	// Skipped lists requested object ids that are not in the index.
	Skipped []string
	// RegistryChanged reports whether the registry differs from the input state.
	RegistryChanged bool
}

// UnknownObjectPolicy controls how AssignTags treats ids missing from the index.
type UnknownObjectPolicy string

const (
	// SkipUnknown drops unknown ids and reports them in Result.Skipped.
	SkipUnknown UnknownObjectPolicy = "skip"
	// CreateUnknown adds a stub object (empty name, kind other) for each unknown id.
	CreateUnknown UnknownObjectPolicy = "create"
)

// ParseUnknownObjectPolicy maps a config value onto a policy, defaulting to SkipUnknown.
func ParseUnknownObjectPolicy(s string) UnknownObjectPolicy {
	if UnknownObjectPolicy(s) == CreateUnknown {
		return CreateUnknown
	}
	return SkipUnknown
}

// retag applies fn to every object's tag set and records which objects changed.
func retag(idx tags.Index, fn func(tags.TaggedObject) []string) (tags.Index, []string) {
	var changed []string
	for _, id := range idx.IDs() {
		obj := idx[id]
		next := fn(obj)
		if tags.Equal(next, obj.Tags) {
			continue
		}
		obj.Tags = next
		idx[id] = obj
		changed = append(changed, id)
	}
	return idx, changed
}

// uniqueIDs returns ids with duplicates removed, preserving first occurrence order.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
