package testutil

import "github.com/zjrosen/tagsync/internal/tags"

// objectData holds a canvas object and its stored tag blob.
type objectData struct {
	id   string
	name string
	kind string
	tags []string
	// rawTags, when set, is stored verbatim instead of the serialized tag set.
	rawTags *string
}

// defaultObject returns an objectData with sensible defaults.
func defaultObject(id string) objectData {
	return objectData{
		id:   id,
		name: id, // Default name is the ID
		kind: string(tags.KindFrame),
	}
}

// ObjectOption configures an object during builder setup.
type ObjectOption func(*objectData)

// Name sets the object's display name.
func Name(name string) ObjectOption {
	return func(o *objectData) { o.name = name }
}

// Kind sets the host node type.
func Kind(kind string) ObjectOption {
	return func(o *objectData) { o.kind = kind }
}

// Tags sets the stored tag set. Values are stored as given, without normalization.
func Tags(names ...string) ObjectOption {
	return func(o *objectData) { o.tags = names }
}

// RawTags stores blob as the object's tag set verbatim, e.g. to exercise bad data.
func RawTags(blob string) ObjectOption {
	return func(o *objectData) { o.rawTags = &blob }
}

// tagData holds a registry entry.
type tagData struct {
	name string
	meta tags.Meta
}

// TagOption configures a registry entry.
type TagOption func(*tagData)

// Color sets the tag color.
func Color(c string) TagOption {
	return func(t *tagData) { t.meta.Color = c }
}

// Emoji sets the tag emoji.
func Emoji(e string) TagOption {
	return func(t *tagData) { t.meta.Emoji = e }
}
