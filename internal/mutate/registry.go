package mutate

import (
	"strings"

	"github.com/zjrosen/tagsync/internal/tags"
)

// CreateTag registers name with meta.
// Returns DuplicateTagError if name is already registered (exact, case-sensitive match).
func CreateTag(s State, name string, meta tags.Meta) (Result, error) {
	if strings.TrimSpace(name) == "" {
		return Result{}, ErrBlankTagName
	}
	if s.Registry.Has(name) {
		return Result{}, &DuplicateTagError{Name: name}
	}

	next := s.Clone()
	next.Registry[name] = meta.Normalized()
	return Result{State: next, RegistryChanged: true}, nil
}

// DeleteTag removes name from the registry and strips it from every object.
// Deleting an unknown tag still strips orphaned references; with none it is a no-op.
func DeleteTag(s State, name string) Result {
	next := s.Clone()
	registryChanged := next.Registry.Has(name)
	delete(next.Registry, name)

	var changed []string
	next.Index, changed = retag(next.Index, func(o tags.TaggedObject) []string {
		return tags.Difference(o.Tags, []string{name})
	})

	return Result{
		State:           next,
		Affected:        len(changed),
		Changed:         changed,
		RegistryChanged: registryChanged,
	}
}

// RenameTag relabels from as to in the registry and on every object.
//
// When to is already registered its metadata is replaced by from's and from is removed,
// so the registry never holds two entries for the resulting name. Objects holding both
// end up with a single to. Renaming a tag onto itself is a no-op.
func RenameTag(s State, from, to string) (Result, error) {
	if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
		return Result{}, ErrBlankTagName
	}
	if from == to {
		return Result{State: s.Clone()}, nil
	}

	next := s.Clone()
	registryChanged := false
	if meta, ok := next.Registry.Get(from); ok {
		delete(next.Registry, from)
		next.Registry[to] = meta
		registryChanged = true
	}

	var changed []string
	next.Index, changed = retag(next.Index, func(o tags.TaggedObject) []string {
		if !o.HasTag(from) {
			return o.Tags
		}
		return tags.Replace(o.Tags, []string{from}, to)
	})

	return Result{
		State:           next,
		Affected:        len(changed),
		Changed:         changed,
		RegistryChanged: registryChanged,
	}, nil
}

// MergeTags folds every tag in from into into.
//
// Registered sources contribute metadata to into field by field: a field already set on
// into wins, otherwise the first non-empty value among from (in order) is adopted. The
// sources are then removed from the registry. Every object holding any source loses all
// of them and gains into. Sources that are not registered are ignored for metadata but
// still retagged on objects. into is registered if anything was folded or retagged.
func MergeTags(s State, into string, from []string) (Result, error) {
	if strings.TrimSpace(into) == "" {
		return Result{}, ErrBlankTagName
	}

	sources := make([]string, 0, len(from))
	for _, name := range uniqueIDs(from) {
		if name == into || strings.TrimSpace(name) == "" {
			continue
		}
		sources = append(sources, name)
	}

	next := s.Clone()
	intoMeta, intoRegistered := next.Registry.Get(into)
	folded := false
	for _, name := range sources {
		meta, ok := next.Registry.Get(name)
		if !ok {
			continue
		}
		intoMeta = intoMeta.FillFrom(meta)
		delete(next.Registry, name)
		folded = true
	}

	var changed []string
	next.Index, changed = retag(next.Index, func(o tags.TaggedObject) []string {
		if !tags.ContainsAny(o.Tags, sources) {
			return o.Tags
		}
		return tags.Replace(o.Tags, sources, into)
	})

	registryChanged := folded
	if folded || (!intoRegistered && len(changed) > 0) {
		if !intoRegistered || next.Registry[into] != intoMeta {
			registryChanged = true
		}
		next.Registry[into] = intoMeta
	}

	return Result{
		State:           next,
		Affected:        len(changed),
		Changed:         changed,
		RegistryChanged: registryChanged,
	}, nil
}
