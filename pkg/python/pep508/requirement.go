// Package pep508 implements PEP 508 -- Dependency specification for Python
// Software Packages; just enough of it to drive a package finder.
//
// https://www.python.org/dev/peps/pep-0508/
package pep508

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/datawire/unearth/pkg/python/pep440"
	"github.com/datawire/unearth/pkg/python/pep503"
)

// Requirement is a parsed dependency specification such as
// "requests[security]>=2.8.1,==2.8.*" or "pip @ https://example.com/pip.zip".
//
// The environment marker tail (everything after ";") is retained verbatim
// but never evaluated; candidate selection has no environment to evaluate it
// against.
type Requirement struct {
	Name      string
	Extras    []string
	Specifier pep440.Specifier
	URL       string
	Marker    string
}

var reRequirement = regexp.MustCompile(`^\s*` +
	`(?P<name>[A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?)` +
	`\s*(?:\[(?P<extras>[^\]]*)\])?` +
	`\s*(?P<rest>.*)$`)

// ParseRequirement parses a PEP 508 requirement string.
func ParseRequirement(str string) (*Requirement, error) {
	str, marker, hasMarker := strings.Cut(str, ";")
	match := reRequirement.FindStringSubmatch(str)
	if match == nil {
		return nil, fmt.Errorf("invalid requirement: %q", str)
	}
	group := func(name string) string {
		return match[reRequirement.SubexpIndex(name)]
	}

	ret := &Requirement{
		Name: group("name"),
	}
	if hasMarker {
		ret.Marker = strings.TrimSpace(marker)
	}
	if extras := group("extras"); extras != "" {
		for _, extra := range strings.Split(extras, ",") {
			if extra = strings.TrimSpace(extra); extra != "" {
				ret.Extras = append(ret.Extras, extra)
			}
		}
	}

	rest := strings.TrimSpace(group("rest"))
	switch {
	case rest == "":
		// no specifier
	case strings.HasPrefix(rest, "@"):
		url := strings.TrimSpace(rest[1:])
		if url == "" {
			return nil, fmt.Errorf("invalid requirement: %q: missing URL after @", str)
		}
		ret.URL = url
	case rest[0] == '(' && strings.HasSuffix(rest, ")"):
		rest = strings.TrimSuffix(strings.TrimPrefix(rest, "("), ")")
		fallthrough
	default:
		specifier, err := pep440.ParseSpecifier(rest)
		if err != nil {
			return nil, fmt.Errorf("invalid requirement: %q: %w", str, err)
		}
		ret.Specifier = specifier
	}
	return ret, nil
}

// CanonicalName returns the PEP 503 normalized form of the requirement name.
func (req Requirement) CanonicalName() string {
	return pep503.NormalizeName(req.Name)
}

func (req Requirement) String() string {
	var ret strings.Builder
	ret.WriteString(req.Name)
	if len(req.Extras) > 0 {
		ret.WriteString("[" + strings.Join(req.Extras, ",") + "]")
	}
	if req.URL != "" {
		ret.WriteString(" @ " + req.URL)
	} else if len(req.Specifier) > 0 {
		ret.WriteString(req.Specifier.String())
	}
	if req.Marker != "" {
		ret.WriteString("; " + req.Marker)
	}
	return ret.String()
}
