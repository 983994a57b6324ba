package mutate

import (
	"github.com/zjrosen/tagsync/internal/tags"
)

// AssignOpts configures AssignTags.
type AssignOpts struct {
	Unknown UnknownObjectPolicy
}

// AssignTags adds tagsToAdd to every listed object (set union).
// Ids missing from the index are skipped and reported, or stubbed when opts.Unknown is
// CreateUnknown. Affected counts objects whose tag set changed.
func AssignTags(s State, objectIDs []string, tagsToAdd []string, opts AssignOpts) Result {
	add := tags.Normalize(tagsToAdd)
	next := s.Clone()

	var changed, skipped []string
	for _, id := range uniqueIDs(objectIDs) {
		obj, ok := next.Index[id]
		if !ok {
			if opts.Unknown != CreateUnknown || id == "" {
				skipped = append(skipped, id)
				continue
			}
			obj = tags.TaggedObject{ID: id, Kind: tags.KindOther, Tags: []string{}}
			next.Index[id] = obj
		}
		merged := tags.Union(obj.Tags, add)
		if tags.Equal(merged, obj.Tags) {
			continue
		}
		obj.Tags = merged
		next.Index[id] = obj
		changed = append(changed, id)
	}

	return Result{
		State:    next,
		Affected: len(changed),
		Changed:  sortedCopy(changed),
		Skipped:  skipped,
	}
}

// RemoveTags removes tagsToRemove from every listed object (set difference).
// Unknown ids and tags the object does not carry are no-ops.
func RemoveTags(s State, objectIDs []string, tagsToRemove []string) Result {
	remove := tags.Normalize(tagsToRemove)
	next := s.Clone()

	var changed, skipped []string
	for _, id := range uniqueIDs(objectIDs) {
		obj, ok := next.Index[id]
		if !ok {
			skipped = append(skipped, id)
			continue
		}
		remaining := tags.Difference(obj.Tags, remove)
		if tags.Equal(remaining, obj.Tags) {
			continue
		}
		obj.Tags = remaining
		next.Index[id] = obj
		changed = append(changed, id)
	}

	return Result{
		State:    next,
		Affected: len(changed),
		Changed:  sortedCopy(changed),
		Skipped:  skipped,
	}
}

// FindByTag returns every object carrying tag, in id order.
func FindByTag(idx tags.Index, tag string) []tags.TaggedObject {
	var out []tags.TaggedObject
	for _, o := range idx.Objects() {
		if o.HasTag(tag) {
			out = append(out, o)
		}
	}
	return out
}

// TagUsage counts objects per tag, including tags absent from the registry.
func TagUsage(idx tags.Index) map[string]int {
	usage := make(map[string]int)
	for _, o := range idx {
		for _, t := range o.Tags {
			usage[t]++
		}
	}
	return usage
}

// OrphanTags returns tags used on objects but missing from the registry, sorted.
func OrphanTags(s State) []string {
	var orphans []string
	for t := range TagUsage(s.Index) {
		if !s.Registry.Has(t) {
			orphans = append(orphans, t)
		}
	}
	return tags.Normalize(orphans)
}

func sortedCopy(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	return tags.Normalize(ids)
}
