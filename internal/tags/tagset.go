package tags

import (
	"slices"
	"strings"
)

// Normalize returns a sorted, deduplicated copy of tags with blank names removed.
// The result is never nil.
func Normalize(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if strings.TrimSpace(t) == "" {
			continue
		}
		out = append(out, t)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// IsNormalized reports whether tags is sorted ascending with no duplicates or blanks.
func IsNormalized(tags []string) bool {
	for i, t := range tags {
		if strings.TrimSpace(t) == "" {
			return false
		}
		if i > 0 && tags[i-1] >= t {
			return false
		}
	}
	return true
}

// Contains reports whether the normalized set holds tag.
func Contains(set []string, tag string) bool {
	_, found := slices.BinarySearch(set, tag)
	return found
}

// ContainsAny reports whether the normalized set holds any of candidates.
func ContainsAny(set []string, candidates []string) bool {
	for _, c := range candidates {
		if Contains(set, c) {
			return true
		}
	}
	return false
}

// Union returns the normalized union of a and b.
func Union(a, b []string) []string {
	merged := make([]string, 0, len(a)+len(b))
	merged = append(merged, a...)
	merged = append(merged, b...)
	return Normalize(merged)
}

// Difference returns the normalized set of a minus every tag in remove.
func Difference(a, remove []string) []string {
	out := make([]string, 0, len(a))
	for _, t := range a {
		if slices.Contains(remove, t) {
			continue
		}
		out = append(out, t)
	}
	return Normalize(out)
}

// Replace swaps every tag in from for to, keeping the set normalized.
func Replace(set []string, from []string, to string) []string {
	return Union(Difference(set, from), []string{to})
}

// Equal reports whether two normalized sets are identical.
func Equal(a, b []string) bool {
	return slices.Equal(a, b)
}
