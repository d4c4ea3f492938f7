// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package bdist implements the file name convention of the binary
// distribution format (the wheel format, originally PEP 427).
//
// https://packaging.python.org/specifications/binary-distribution-format/
package bdist

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/datawire/unearth/pkg/python/pep425"
	"github.com/datawire/unearth/pkg/python/pep440"
)

// FileNameData is the parsed form of a wheel filename:
//
//	{distribution}-{version}(-{build tag})?-{python tag}-{abi tag}-{platform tag}.whl
type FileNameData struct {
	Distribution     string
	Version          pep440.Version
	BuildTag         *BuildTag
	CompatibilityTag pep425.Tag
}

var reFilename = regexp.MustCompile(regexp.MustCompile(`\s+`).ReplaceAllString(`
	^(?P<distribution>[^-]+)
	-(?P<version>[^-]+)
	(?:-(?P<build_n>[0-9]+)(?P<build_l>[^-0-9][^-]*)?)?
	-(?P<python>[^-]+)
	-(?P<abi>[^-]+)
	-(?P<platform>[^-]+)
	\.whl$`, ``))

func ParseFilename(filename string) (*FileNameData, error) {
	match := reFilename.FindStringSubmatch(filename)
	if match == nil {
		return nil, fmt.Errorf("invalid wheel filename: %q", filename)
	}

	var ret FileNameData

	ret.Distribution = match[reFilename.SubexpIndex("distribution")]

	ver, err := pep440.ParseVersion(match[reFilename.SubexpIndex("version")])
	if err != nil {
		return nil, fmt.Errorf("invalid wheel filename: %q: %w", filename, err)
	}
	ret.Version = *ver

	if buildN := match[reFilename.SubexpIndex("build_n")]; buildN != "" {
		n, _ := strconv.Atoi(buildN)
		ret.BuildTag = &BuildTag{
			Int: n,
			Str: match[reFilename.SubexpIndex("build_l")],
		}
	}

	ret.CompatibilityTag = pep425.Tag{
		Python:   match[reFilename.SubexpIndex("python")],
		ABI:      match[reFilename.SubexpIndex("abi")],
		Platform: match[reFilename.SubexpIndex("platform")],
	}

	return &ret, nil
}

// GenerateFilename is the inverse of ParseFilename; the distribution name is
// escaped per the spec (PEP 503 normalization with "-" replaced by "_").
func GenerateFilename(data FileNameData) string {
	var ret strings.Builder
	ret.WriteString(regexp.MustCompile(`[-_.]+`).ReplaceAllLiteralString(data.Distribution, "_"))
	ret.WriteString("-")
	ret.WriteString(data.Version.String())
	if data.BuildTag != nil {
		ret.WriteString("-")
		ret.WriteString(data.BuildTag.String())
	}
	ret.WriteString("-")
	ret.WriteString(data.CompatibilityTag.String())
	ret.WriteString(".whl")
	return ret.String()
}

// BuildTag is the optional build-number tie-breaker: initial digits as an
// int, the remainder as a string.
type BuildTag struct {
	Int int
	Str string
}

func (t BuildTag) String() string {
	return fmt.Sprintf("%d%s", t.Int, t.Str)
}

// Cmp compares two (possibly absent) build tags; an absent tag sorts first.
func (a *BuildTag) Cmp(b *BuildTag) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if d := a.Int - b.Int; d != 0 {
		return d
	}
	return strings.Compare(a.Str, b.Str)
}
