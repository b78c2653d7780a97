// Package normalize canonicalizes tag names so the write, query and
// suggestion paths all compare the same strings.
package normalize

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// MaxTagLength is the longest accepted tag name, in runes.
const MaxTagLength = 100

// Prefixes the query language reads as directives rather than tags.
var reservedPrefixes = []string{"order:", "date>=", "date<="}

// TagName returns the canonical form of a tag: null bytes dropped, NFC
// composed, lowercased. It rejects names the query language could not
// express as a single bare term.
func TagName(raw string) (string, error) {
	if !utf8.ValidString(raw) {
		return "", fmt.Errorf("tag name is not valid UTF-8")
	}
	s := sanitizeString(raw)
	s = norm.NFC.String(s)
	s = cases.Lower(language.Und).String(s)
	// Lowercasing can produce decomposed sequences for a few scripts.
	s = norm.NFC.String(s)

	if s == "" {
		return "", fmt.Errorf("tag name cannot be empty")
	}
	if n := utf8.RuneCountInString(s); n > MaxTagLength {
		return "", fmt.Errorf("tag name is %d characters, max %d", n, MaxTagLength)
	}
	if strings.HasPrefix(s, "-") {
		return "", fmt.Errorf("tag name %q cannot start with '-'", s)
	}
	for _, p := range reservedPrefixes {
		if strings.HasPrefix(s, p) {
			return "", fmt.Errorf("tag name %q uses reserved prefix %q", s, p)
		}
	}
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", fmt.Errorf("tag name %q contains whitespace or control characters", s)
		}
		switch r {
		case '(', ')', '|', ',':
			return "", fmt.Errorf("tag name %q contains reserved character %q", s, r)
		}
	}
	return s, nil
}

// Tags normalizes every name, drops duplicates and returns the set sorted.
// The first invalid name aborts with its error.
func Tags(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		name, err := TagName(r)
		if err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// SplitTags breaks a free-form tag list on whitespace and commas.
// "cat, outdoor  night" -> ["cat", "outdoor", "night"].
func SplitTags(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}

// IsValidTagPrefix reports whether s could begin a canonical tag name.
// Used by suggestion, where a partial name is allowed to be empty.
func IsValidTagPrefix(s string) bool {
	if s == "" {
		return true
	}
	_, err := TagName(s)
	return err == nil
}

// sanitizeString removes null bytes, which some uploaders and filesystems
// leave in names and which databases reject.
func sanitizeString(s string) string {
	return strings.Map(func(r rune) rune {
		if r == 0 {
			return -1
		}
		return r
	}, s)
}
