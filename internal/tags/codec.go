package tags

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Storage keys for the persisted blobs.
const (
	// RegistryKey is the document-level key holding the serialized Registry.
	RegistryKey = "tagsync.registry"
	// ObjectTagsKey is the per-object key holding the serialized tag set.
	ObjectTagsKey = "tagsync.tags"
)

// SerializeRegistry encodes r as `{ "<tag>": { "color"?: ..., "emoji"?: ... } }`.
// Keys are emitted in sorted order so equal registries encode identically. Names and
// metadata are written verbatim; ParseRegistry restores exactly r.
func SerializeRegistry(r Registry) (string, error) {
	if r == nil {
		r = Registry{}
	}
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encoding registry: %w", err)
	}
	return string(b), nil
}

// ParseRegistry decodes a registry blob. An empty blob yields an empty registry.
func ParseRegistry(blob string) (Registry, error) {
	if strings.TrimSpace(blob) == "" {
		return Registry{}, nil
	}
	var r Registry
	if err := json.Unmarshal([]byte(blob), &r); err != nil {
		return Registry{}, fmt.Errorf("decoding registry: %w", err)
	}
	if r == nil {
		r = Registry{}
	}
	return r, nil
}

// SerializeTagSet encodes a tag set as a sorted, deduplicated JSON string array.
func SerializeTagSet(set []string) (string, error) {
	b, err := json.Marshal(Normalize(set))
	if err != nil {
		return "", fmt.Errorf("encoding tag set: %w", err)
	}
	return string(b), nil
}

// ParseTagSet decodes a tag-set blob and normalizes it. An empty blob yields an empty set.
func ParseTagSet(blob string) ([]string, error) {
	if strings.TrimSpace(blob) == "" {
		return []string{}, nil
	}
	var raw []string
	if err := json.Unmarshal([]byte(blob), &raw); err != nil {
		return []string{}, fmt.Errorf("decoding tag set: %w", err)
	}
	return Normalize(raw), nil
}

// SerializeIndex encodes an index as a JSON array of objects in id order.
func SerializeIndex(idx Index) (string, error) {
	objects := idx.Clone().Objects()
	b, err := json.Marshal(objects)
	if err != nil {
		return "", fmt.Errorf("encoding index: %w", err)
	}
	return string(b), nil
}

// ParseIndex decodes an index blob produced by SerializeIndex.
// Unknown kinds map to KindOther; tag sets are normalized.
func ParseIndex(blob string) (Index, error) {
	if strings.TrimSpace(blob) == "" {
		return Index{}, nil
	}
	var raw []TaggedObject
	if err := json.Unmarshal([]byte(blob), &raw); err != nil {
		return Index{}, fmt.Errorf("decoding index: %w", err)
	}
	for i := range raw {
		raw[i].Kind = ParseKind(string(raw[i].Kind))
	}
	return NewIndex(raw...), nil
}
