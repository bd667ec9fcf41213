// Package naming validates branch and tag names.
package naming

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxNameLength bounds a ref name in bytes after normalization.
const MaxNameLength = 255

// Validator decides whether a branch or tag name is acceptable.
type Validator interface {
	IsValid(name string) bool
	// ExplainInvalid lists every rule name breaks; it is empty for a valid
	// name.
	ExplainInvalid(name string) []string
}

// RefValidator applies git-style ref naming rules to the NFC form of a
// name. Slash-separated hierarchies such as "feature/fillet" are allowed.
type RefValidator struct{}

// Normalize returns the NFC form of name with surrounding space removed.
func Normalize(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

func (RefValidator) IsValid(name string) bool {
	return len(RefValidator{}.ExplainInvalid(name)) == 0
}

func (RefValidator) ExplainInvalid(name string) []string {
	var reasons []string
	if name == "" {
		return []string{"name must not be empty"}
	}
	if !utf8.ValidString(name) {
		return []string{"name must be valid UTF-8"}
	}
	name = norm.NFC.String(name)

	if len(name) > MaxNameLength {
		reasons = append(reasons, fmt.Sprintf("name must be at most %d bytes", MaxNameLength))
	}
	if name == "@" {
		reasons = append(reasons, `name must not be "@"`)
	}
	if strings.Contains(name, "..") {
		reasons = append(reasons, `name must not contain ".."`)
	}
	if strings.Contains(name, "@{") {
		reasons = append(reasons, `name must not contain "@{"`)
	}
	if strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") || strings.Contains(name, "//") {
		reasons = append(reasons, "name must not start or end with '/' or contain empty components")
	}
	if strings.HasSuffix(name, ".") {
		reasons = append(reasons, "name must not end with '.'")
	}
	for _, part := range strings.Split(name, "/") {
		if strings.HasPrefix(part, ".") {
			reasons = append(reasons, fmt.Sprintf("component %q must not start with '.'", part))
		}
		if strings.HasSuffix(part, ".lock") {
			reasons = append(reasons, fmt.Sprintf("component %q must not end with \".lock\"", part))
		}
	}

	var badChars []string
	seen := map[rune]bool{}
	for _, r := range name {
		bad := unicode.IsControl(r) || unicode.IsSpace(r) || strings.ContainsRune(`~^:?*[\`, r)
		if bad && !seen[r] {
			seen[r] = true
			badChars = append(badChars, fmt.Sprintf("%q", r))
		}
	}
	if len(badChars) > 0 {
		reasons = append(reasons, "name contains forbidden characters "+strings.Join(badChars, ", "))
	}
	return reasons
}
