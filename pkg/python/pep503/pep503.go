// Package pep503 implements PEP 503 -- Simple Repository API.
//
// https://www.python.org/dev/peps/pep-0503/
package pep503

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var reNameRuns = regexp.MustCompile(`[-_.]+`)

// NormalizeName canonicalizes a project name.
//
// "This PEP references the concept of a 'normalized' project name.  As per PEP
// 426 the only valid characters in a name are the ASCII alphabet, ASCII
// numbers, `.`, `-`, and `_`.  The name should be lowercased with all runs of
// the characters `.`, `-`, or `_` replaced with a single `-` character."
func NormalizeName(name string) string {
	return strings.ToLower(reNameRuns.ReplaceAllLiteralString(name, "-"))
}

// ValidateName checks that a project name consists only of the characters that
// PEP 426 permits.
func ValidateName(name string) error {
	for _, char := range name {
		if !(('a' <= char && char <= 'z') ||
			('A' <= char && char <= 'Z') ||
			('0' <= char && char <= '9') ||
			char == '.' ||
			char == '-' ||
			char == '_') {
			return fmt.Errorf("illegal character in project name: %q: %s",
				name, strconv.QuoteRuneToASCII(char))
		}
	}
	return nil
}

// ProjectPageURL returns the URL of the index page for the named project:
// "the URL format MUST be `/{normalized-name}/`".
func ProjectPageURL(indexURL, name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	base, err := url.Parse(strings.TrimRight(indexURL, "/") + "/")
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(NormalizeName(name) + "/")
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
