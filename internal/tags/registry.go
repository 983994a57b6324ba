package tags

import (
	"maps"
	"slices"
	"strings"

	"github.com/rivo/uniseg"
)

// MaxEmojiClusters is the recommended upper bound on emoji length, in grapheme clusters.
const MaxEmojiClusters = 2

// Meta is the display metadata attached to a tag. Empty strings mean unset.
type Meta struct {
	Color string `json:"color,omitempty"`
	Emoji string `json:"emoji,omitempty"`
}

// IsZero reports whether no field is set.
func (m Meta) IsZero() bool {
	return m.Color == "" && m.Emoji == ""
}

// Normalized trims surrounding whitespace from every field. Applied when a tag is
// created; the blob codec leaves metadata untouched.
func (m Meta) Normalized() Meta {
	return Meta{
		Color: strings.TrimSpace(m.Color),
		Emoji: strings.TrimSpace(m.Emoji),
	}
}

// FillFrom returns m with every unset field adopted from src. Fields already set on m win.
func (m Meta) FillFrom(src Meta) Meta {
	if m.Color == "" {
		m.Color = src.Color
	}
	if m.Emoji == "" {
		m.Emoji = src.Emoji
	}
	return m
}

// EmojiTooLong reports whether the emoji exceeds the recommended display length.
// Length is counted in grapheme clusters so flags and skin-tone sequences count once.
func (m Meta) EmojiTooLong() bool {
	return uniseg.GraphemeClusterCount(m.Emoji) > MaxEmojiClusters
}

// Tag is a named registry entry.
type Tag struct {
	Name string `json:"name"`
	Meta
}

// Registry maps tag name to its metadata.
type Registry map[string]Meta

// NewRegistry returns an empty registry.
func NewRegistry() Registry {
	return Registry{}
}

// Has reports whether name is registered.
func (r Registry) Has(name string) bool {
	_, ok := r[name]
	return ok
}

// Get returns the metadata for name.
func (r Registry) Get(name string) (Meta, bool) {
	m, ok := r[name]
	return m, ok
}

// Clone returns an independent copy. A nil registry clones to an empty one.
func (r Registry) Clone() Registry {
	if r == nil {
		return Registry{}
	}
	return maps.Clone(r)
}

// Names returns registered tag names in ascending order.
func (r Registry) Names() []string {
	return slices.Sorted(maps.Keys(r))
}

// Tags returns registry entries ordered by name.
func (r Registry) Tags() []Tag {
	names := r.Names()
	out := make([]Tag, 0, len(names))
	for _, n := range names {
		out = append(out, Tag{Name: n, Meta: r[n]})
	}
	return out
}

// Equal reports whether two registries hold the same entries.
func (r Registry) Equal(other Registry) bool {
	return maps.Equal(r, other)
}
