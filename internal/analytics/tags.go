// Package analytics computes tag statistics over the events of a single log.
// Everything here is a pure function of its input: no I/O, no shared state,
// and no error returns. Callers pass the snapshot they already hold and get
// freshly allocated results back.
package analytics

import "strings"

// NormalizeTag trims surrounding whitespace and lowercases a tag. The result
// may be empty, in which case the tag must be dropped.
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// NormalizeTags normalizes every tag, drops empty ones and removes duplicates.
// The first occurrence of a tag decides its position in the output.
// Always returns a non-nil slice.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		n := NormalizeTag(t)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// ParseTags splits a comma-separated tag string ("Dinner, dinner, Party")
// and normalizes the pieces.
func ParseTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	return NormalizeTags(strings.Split(raw, ","))
}

// Contains reports whether tags holds tag by exact string equality. Both
// sides are expected to be normalized already.
func Contains(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
