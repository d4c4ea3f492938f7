// Package pep425 implements PEP 425 -- Compatibility Tags for Built
// Distributions.
//
// https://www.python.org/dev/peps/pep-0425/
package pep425

import (
	"fmt"
	"strings"
)

// Tag is a (python, abi, platform) compatibility tag triple.  Each component
// may be a "."-compressed set of values, as in "py2.py3-none-any".
type Tag struct {
	Python   string
	ABI      string
	Platform string
}

// ParseTag parses a "python-abi-platform" tag string.
func ParseTag(str string) (Tag, error) {
	parts := strings.Split(str, "-")
	if len(parts) != 3 {
		return Tag{}, fmt.Errorf("invalid compatibility tag: %q", str)
	}
	return Tag{Python: parts[0], ABI: parts[1], Platform: parts[2]}, nil
}

func (t Tag) String() string {
	return t.Python + "-" + t.ABI + "-" + t.Platform
}

// Decompress expands a compressed tag set into its simple tags;
// "py2.py3-none-any" becomes ["py2-none-any", "py3-none-any"].
func (t Tag) Decompress() []Tag {
	var ret []Tag
	for _, python := range strings.Split(t.Python, ".") {
		for _, abi := range strings.Split(t.ABI, ".") {
			for _, platform := range strings.Split(t.Platform, ".") {
				ret = append(ret, Tag{python, abi, platform})
			}
		}
	}
	return ret
}

// Intersect returns whether any tag in tag-list 'a' matches any tag in
// tag-list 'b', considering compressed tag sets.
func Intersect(a, b []Tag) bool {
	for _, a1 := range a {
		for _, a2 := range a1.Decompress() {
			for _, b1 := range b {
				for _, b2 := range b1.Decompress() {
					if a2 == b2 {
						return true
					}
				}
			}
		}
	}
	return false
}

// Installer is a list of tags that an installer supports, ordered from
// most-preferred to least-preferred.
type Installer []Tag

func (inst Installer) Supports(t Tag) bool {
	return Intersect([]Tag(inst), []Tag{t})
}

// Preference returns a numeric representation of how much this Tag is
// preferred by the installer; may be used to sort things by Tag preference;
// lower values are more preferred.  The returned value is in the range
// [1,len(inst)+1]; len(inst)+1 means "not supported at all".
func (inst Installer) Preference(t Tag) int {
	for i, it := range inst {
		if Intersect([]Tag{it}, []Tag{t}) {
			return i + 1
		}
	}
	return len(inst) + 1
}
