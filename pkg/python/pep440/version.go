// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package pep440 implements PEP 440 -- Version Identification and Dependency
// Specification.
//
// https://www.python.org/dev/peps/pep-0440/
package pep440

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/util/intstr"
)

// Version is a parsed public version identifier, plus an optional local
// version label.
//
// The zero value is the version "0".
type Version struct {
	Epoch   int
	Release []int
	Pre     *PreRelease
	Post    *int
	Dev     *int
	Local   []intstr.IntOrString
}

// PreRelease is a pre-release segment; L is one of "a", "b", or "rc" after
// normalization.
type PreRelease struct {
	L string
	N int
}

// reVersion is the "Appendix B : Parsing version strings with regular
// expressions" regex, anchored, with the separators and spelling variants
// that normalization permits.
var reVersion = regexp.MustCompile(`(?i)^v?` +
	`(?:(?P<epoch>[0-9]+)!)?` +
	`(?P<release>[0-9]+(?:\.[0-9]+)*)` +
	`(?P<pre>[-_.]?(?P<preL>a|b|c|rc|alpha|beta|pre|preview)[-_.]?(?P<preN>[0-9]+)?)?` +
	`(?P<post>(?:-(?P<postN1>[0-9]+))|(?:[-_.]?(?:post|rev|r)[-_.]?(?P<postN2>[0-9]+)?))?` +
	`(?P<dev>[-_.]?dev[-_.]?(?P<devN>[0-9]+)?)?` +
	`(?:\+(?P<local>[a-z0-9]+(?:[-_.][a-z0-9]+)*))?$`)

// ParseVersion parses a version identifier, accepting the normalization
// variants that the spec permits (case insensitivity, alternate pre-release
// spellings, alternate separators, a leading "v").  The returned Version is
// in normalized form.
func ParseVersion(str string) (*Version, error) {
	match := reVersion.FindStringSubmatch(strings.TrimSpace(str))
	if match == nil {
		return nil, fmt.Errorf("invalid version: %q", str)
	}
	group := func(name string) string {
		return match[reVersion.SubexpIndex(name)]
	}

	var ret Version

	if epoch := group("epoch"); epoch != "" {
		n, err := strconv.Atoi(epoch)
		if err != nil {
			return nil, fmt.Errorf("invalid version: %q: %w", str, err)
		}
		ret.Epoch = n
	}

	for _, part := range strings.Split(group("release"), ".") {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid version: %q: %w", str, err)
		}
		ret.Release = append(ret.Release, n)
	}

	if group("pre") != "" {
		letter := strings.ToLower(group("preL"))
		switch letter {
		case "alpha":
			letter = "a"
		case "beta":
			letter = "b"
		case "c", "pre", "preview":
			letter = "rc"
		}
		n := 0
		if numStr := group("preN"); numStr != "" {
			n, _ = strconv.Atoi(numStr)
		}
		ret.Pre = &PreRelease{L: letter, N: n}
	}

	if group("post") != "" {
		n := 0
		if numStr := group("postN1"); numStr != "" {
			n, _ = strconv.Atoi(numStr)
		} else if numStr := group("postN2"); numStr != "" {
			n, _ = strconv.Atoi(numStr)
		}
		ret.Post = &n
	}

	if group("dev") != "" {
		n := 0
		if numStr := group("devN"); numStr != "" {
			n, _ = strconv.Atoi(numStr)
		}
		ret.Dev = &n
	}

	if local := strings.ToLower(group("local")); local != "" {
		for _, part := range strings.FieldsFunc(local, func(r rune) bool {
			return r == '-' || r == '_' || r == '.'
		}) {
			if n, err := strconv.Atoi(part); err == nil {
				ret.Local = append(ret.Local, intstr.FromInt(n))
			} else {
				ret.Local = append(ret.Local, intstr.FromString(part))
			}
		}
	}

	return &ret, nil
}

// MustParseVersion is like ParseVersion, but panics on error; for use with
// version literals.
func MustParseVersion(str string) Version {
	ver, err := ParseVersion(str)
	if err != nil {
		panic(err)
	}
	return *ver
}

// String returns the normalized form of the version.
func (ver Version) String() string {
	var ret strings.Builder
	if ver.Epoch != 0 {
		fmt.Fprintf(&ret, "%d!", ver.Epoch)
	}
	if len(ver.Release) == 0 {
		ret.WriteString("0")
	}
	for i, segment := range ver.Release {
		if i > 0 {
			ret.WriteString(".")
		}
		ret.WriteString(strconv.Itoa(segment))
	}
	if ver.Pre != nil {
		fmt.Fprintf(&ret, "%s%d", ver.Pre.L, ver.Pre.N)
	}
	if ver.Post != nil {
		fmt.Fprintf(&ret, ".post%d", *ver.Post)
	}
	if ver.Dev != nil {
		fmt.Fprintf(&ret, ".dev%d", *ver.Dev)
	}
	if len(ver.Local) > 0 {
		ret.WriteString("+")
		for i, segment := range ver.Local {
			if i > 0 {
				ret.WriteString(".")
			}
			ret.WriteString(segment.String())
		}
	}
	return ret.String()
}

func (ver Version) releaseSegment(n int) int {
	if n < len(ver.Release) {
		return ver.Release[n]
	}
	return 0
}

func (ver Version) Major() int { return ver.releaseSegment(0) }
func (ver Version) Minor() int { return ver.releaseSegment(1) }
func (ver Version) Micro() int { return ver.releaseSegment(2) }

// BaseVersion returns just the epoch and release segments, discarding any
// pre/post/dev/local parts.
func (ver Version) BaseVersion() Version {
	return Version{Epoch: ver.Epoch, Release: ver.Release}
}

// IsPreRelease returns whether the version is a pre-release (which includes
// developmental releases).
func (ver Version) IsPreRelease() bool {
	return ver.Pre != nil || ver.Dev != nil
}

// IsPostRelease returns whether the version has a post-release segment.
func (ver Version) IsPostRelease() bool {
	return ver.Post != nil
}

// IsLocal returns whether the version has a local version label.
func (ver Version) IsLocal() bool {
	return len(ver.Local) > 0
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpRelease(a, b Version) int {
	segments := len(a.Release)
	if len(b.Release) > segments {
		segments = len(b.Release)
	}
	// "When comparing release segments with different numbers of components,
	// the shorter segment is padded out with additional zeros as necessary."
	for i := 0; i < segments; i++ {
		if d := cmpInt(a.releaseSegment(i), b.releaseSegment(i)); d != 0 {
			return d
		}
	}
	return 0
}

var preLetterOrder = map[string]int{
	"a":  1,
	"b":  2,
	"rc": 3,
}

func cmpPre(a, b Version) int {
	// A version that has only a dev segment sorts before its pre-releases;
	// a version with no pre segment otherwise sorts after them.
	rank := func(v Version) int {
		switch {
		case v.Pre != nil:
			return 0
		case v.Post == nil && v.Dev != nil:
			return -1
		default:
			return 1
		}
	}
	if d := cmpInt(rank(a), rank(b)); d != 0 {
		return d
	}
	if a.Pre == nil || b.Pre == nil {
		return 0
	}
	if d := cmpInt(preLetterOrder[a.Pre.L], preLetterOrder[b.Pre.L]); d != 0 {
		return d
	}
	return cmpInt(a.Pre.N, b.Pre.N)
}

func cmpPost(a, b Version) int {
	rank := func(v Version) int {
		if v.Post == nil {
			return -1
		}
		return *v.Post
	}
	return cmpInt(rank(a), rank(b))
}

func cmpDev(a, b Version) int {
	const noDev = int(^uint(0) >> 1) // releases sort after their dev releases
	rank := func(v Version) int {
		if v.Dev == nil {
			return noDev
		}
		return *v.Dev
	}
	return cmpInt(rank(a), rank(b))
}

func cmpLocalSegment(a, b intstr.IntOrString) int {
	// "comparison of alphanumeric segments with numeric segments - numeric
	// is greater"
	switch {
	case a.Type == intstr.Int && b.Type == intstr.Int:
		return cmpInt(a.IntValue(), b.IntValue())
	case a.Type == intstr.Int:
		return 1
	case b.Type == intstr.Int:
		return -1
	default:
		return strings.Compare(a.StrVal, b.StrVal)
	}
}

func cmpLocal(a, b Version) int {
	for i := 0; i < len(a.Local) && i < len(b.Local); i++ {
		if d := cmpLocalSegment(a.Local[i], b.Local[i]); d != 0 {
			return d
		}
	}
	return cmpInt(len(a.Local), len(b.Local))
}

// Cmp compares two versions, returning a negative number if a < b, zero if
// they are equal, or a positive number if a > b.
func (a Version) Cmp(b Version) int {
	if d := cmpInt(a.Epoch, b.Epoch); d != 0 {
		return d
	}
	if d := cmpRelease(a, b); d != 0 {
		return d
	}
	if d := cmpPre(a, b); d != 0 {
		return d
	}
	if d := cmpPost(a, b); d != 0 {
		return d
	}
	if d := cmpDev(a, b); d != 0 {
		return d
	}
	return cmpLocal(a, b)
}
