package regs

import "strings"

// CollapseWhitespace trims s and collapses internal whitespace runs
// (including newlines from wrapped PDF text) to single spaces.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeName produces the dedup/lookup key form of a water-body or
// species name: case-folded with collapsed whitespace.
func NormalizeName(s string) string {
	return strings.ToLower(CollapseWhitespace(s))
}

// NormalizeLocality produces the dedup key form of a locality string.
// A trailing "county" token is stripped so "Itasca" and "Itasca County"
// collide, which is how source documents mix the two forms.
func NormalizeLocality(s string) string {
	n := NormalizeName(s)
	n = strings.TrimSuffix(n, " county")
	return strings.TrimSpace(n)
}

// MergeKey is the identity under which extraction results from different
// chunks are deduplicated.
func MergeKey(name, locality string) string {
	return NormalizeName(name) + "|" + NormalizeLocality(locality)
}

// TitleCaseName converts an all-caps header name like "WALLEYE LAKE"
// into display form "Walleye Lake". Already-mixed-case input is left as
// is apart from whitespace collapsing.
func TitleCaseName(s string) string {
	s = CollapseWhitespace(s)
	if s != strings.ToUpper(s) {
		return s
	}
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		// Keep connective words lowercase except at the start.
		if i > 0 && (w == "of" || w == "the" || w == "and") {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
