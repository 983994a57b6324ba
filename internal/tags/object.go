package tags

import (
	"maps"
	"slices"
	"strings"
)

// Kind is the canvas-object category.
type Kind string

const (
	KindFrame     Kind = "frame"
	KindGroup     Kind = "group"
	KindComponent Kind = "component"
	KindInstance  Kind = "instance"
	KindText      Kind = "text"
	KindRectangle Kind = "rectangle"
	KindEllipse   Kind = "ellipse"
	KindVector    Kind = "vector"
	KindImage     Kind = "image"
	KindSection   Kind = "section"
	KindSticky    Kind = "sticky"
	KindShape     Kind = "shape"
	KindConnector Kind = "connector"
	KindOther     Kind = "other"
)

var knownKinds = map[Kind]struct{}{
	KindFrame: {}, KindGroup: {}, KindComponent: {}, KindInstance: {}, KindText: {},
	KindRectangle: {}, KindEllipse: {}, KindVector: {}, KindImage: {}, KindSection: {},
	KindSticky: {}, KindShape: {}, KindConnector: {}, KindOther: {},
}

// ParseKind maps a host category string onto the closed Kind set.
// Matching ignores case and surrounding whitespace; unknown categories map to KindOther.
func ParseKind(s string) Kind {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := knownKinds[k]; ok {
		return k
	}
	return KindOther
}

// TaggedObject is a canvas object together with its tag set.
type TaggedObject struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Kind Kind     `json:"kind"`
	Tags []string `json:"tags"`
}

// Clone returns a deep copy with a normalized tag set.
func (o TaggedObject) Clone() TaggedObject {
	o.Tags = Normalize(o.Tags)
	return o
}

// HasTag reports whether the object carries tag.
func (o TaggedObject) HasTag(tag string) bool {
	return Contains(o.Tags, tag)
}

// Index maps object id to its TaggedObject.
type Index map[string]TaggedObject

// NewIndex builds an index from objects, normalizing every tag set.
// Later duplicates of an id replace earlier ones.
func NewIndex(objects ...TaggedObject) Index {
	idx := make(Index, len(objects))
	for _, o := range objects {
		idx[o.ID] = o.Clone()
	}
	return idx
}

// Clone returns an independent copy. A nil index clones to an empty one.
func (idx Index) Clone() Index {
	out := make(Index, len(idx))
	for id, o := range idx {
		out[id] = o.Clone()
	}
	return out
}

// IDs returns object ids in ascending order.
func (idx Index) IDs() []string {
	return slices.Sorted(maps.Keys(idx))
}

// Objects returns every object in id order.
func (idx Index) Objects() []TaggedObject {
	ids := idx.IDs()
	out := make([]TaggedObject, 0, len(ids))
	for _, id := range ids {
		out = append(out, idx[id])
	}
	return out
}

// Tagged returns objects with at least one tag, in id order.
func (idx Index) Tagged() []TaggedObject {
	var out []TaggedObject
	for _, o := range idx.Objects() {
		if len(o.Tags) > 0 {
			out = append(out, o)
		}
	}
	return out
}

// Equal reports whether two indexes hold identical objects.
func (idx Index) Equal(other Index) bool {
	return maps.EqualFunc(idx, other, func(a, b TaggedObject) bool {
		return a.ID == b.ID && a.Name == b.Name && a.Kind == b.Kind && slices.Equal(a.Tags, b.Tags)
	})
}
