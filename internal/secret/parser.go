package secret

import (
	"fmt"
	"regexp"
	"strings"
)

var refPattern = regexp.MustCompile(`\$\{([^:}]+):([^}]+)\}`)

// ParseRef parses a single ${type:name} reference.
func ParseRef(input string) (*Ref, error) {
	m := refPattern.FindStringSubmatch(input)
	if len(m) != 3 {
		return nil, fmt.Errorf("invalid secret reference format: %s", input)
	}
	return &Ref{
		Type:     strings.TrimSpace(m[1]),
		Name:     strings.TrimSpace(m[2]),
		Original: m[0],
	}, nil
}

// IsRef reports whether input contains at least one secret reference.
func IsRef(input string) bool {
	return refPattern.MatchString(input)
}

// FindRefs returns every reference embedded in input, in order of appearance.
func FindRefs(input string) []Ref {
	matches := refPattern.FindAllStringSubmatch(input, -1)
	refs := make([]Ref, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, Ref{
			Type:     strings.TrimSpace(m[1]),
			Name:     strings.TrimSpace(m[2]),
			Original: m[0],
		})
	}
	return refs
}

// Mask hides all but a short prefix and suffix of value.
func Mask(value string) string {
	switch {
	case value == "":
		return ""
	case len(value) <= 4:
		return "****"
	case len(value) <= 8:
		return value[:2] + "****"
	default:
		return value[:3] + "****" + value[len(value)-2:]
	}
}
