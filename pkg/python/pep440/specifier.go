// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pep440

import (
	"fmt"
	"regexp"
	"strings"
)

// Specifier is a comma-separated set of version specifier clauses; a version
// must match every clause to match the specifier.
type Specifier []SpecifierClause

// ParseSpecifier parses a version specifier such as ">=1.0,<2.0".
func ParseSpecifier(str string) (Specifier, error) {
	var ret Specifier
	for _, clauseStr := range strings.Split(str, ",") {
		clauseStr = strings.TrimSpace(clauseStr)
		if clauseStr == "" {
			continue
		}
		clause, err := parseSpecifierClause(clauseStr)
		if err != nil {
			return nil, fmt.Errorf("pep440.ParseSpecifier: %w", err)
		}
		ret = append(ret, clause)
	}
	return ret, nil
}

var reLegacyClause = regexp.MustCompile(`(==|!=|<=|>=|<|>)(\s*)([^,;\s)]*)`)

// ParseLegacySpecifier is like ParseSpecifier, but first applies a
// best-effort rewrite of legacy clauses that predate the current spec
// wording: a ".*" suffix on an ordered comparison becomes a ".0" bound
// (">=4.*" => ">=4.0", "<4.*" => "<4.0"), and a local version label on an
// ordered comparison is dropped.
func ParseLegacySpecifier(str string) (Specifier, error) {
	fixed := reLegacyClause.ReplaceAllStringFunc(str, func(clause string) string {
		sub := reLegacyClause.FindStringSubmatch(clause)
		op, version := sub[1], sub[3]
		if op == "==" || op == "!=" {
			return clause
		}
		if strings.Contains(version, ".*") {
			version = strings.ReplaceAll(version, ".*", ".0")
			switch op {
			case "<", "<=":
				op = "<"
			case ">", ">=":
				op = ">="
			}
		} else if plus := strings.IndexByte(version, '+'); plus >= 0 {
			version = version[:plus]
		}
		return op + version
	})
	return ParseSpecifier(fixed)
}

func (spec Specifier) String() string {
	clauses := make([]string, 0, len(spec))
	for _, clause := range spec {
		clauses = append(clauses, clause.String())
	}
	return strings.Join(clauses, ",")
}

// Match returns whether the version matches every clause of the specifier,
// with no additional pre-release policy applied.
func (spec Specifier) Match(ver Version) bool {
	for _, clause := range spec {
		if !clause.Match(ver) {
			return false
		}
	}
	return true
}

// HasPreReleases returns whether any clause of the specifier mentions a
// pre-release version.
func (spec Specifier) HasPreReleases() bool {
	for _, clause := range spec {
		if clause.Version.IsPreRelease() {
			return true
		}
	}
	return false
}

// HasEqualityOperator returns whether any clause pins an exact version with
// "==" or "===".
func (spec Specifier) HasEqualityOperator() bool {
	for _, clause := range spec {
		switch clause.CmpOp {
		case CmpOpEQ, CmpOpArbitraryEQ:
			return true
		}
	}
	return false
}

// Contains is Match plus the pre-release exclusion policy: a pre-release
// version only matches if allowPreReleases is true, or is nil and the
// specifier itself mentions a pre-release version (in which case the intent
// to accept pre-releases is inferred).
func (spec Specifier) Contains(ver Version, allowPreReleases *bool) bool {
	allow := spec.HasPreReleases()
	if allowPreReleases != nil {
		allow = *allowPreReleases
	}
	if ver.IsPreRelease() && !allow {
		return false
	}
	return spec.Match(ver)
}

type CmpOp int

const (
	CmpOpCompatible  CmpOp = iota // ~=
	CmpOpEQ                       // ==
	CmpOpNE                       // !=
	CmpOpLE                       // <=
	CmpOpGE                       // >=
	CmpOpLT                       // <
	CmpOpGT                       // >
	CmpOpArbitraryEQ              // ===
)

func (op CmpOp) String() string {
	str, ok := map[CmpOp]string{
		CmpOpCompatible:  "~=",
		CmpOpEQ:          "==",
		CmpOpNE:          "!=",
		CmpOpLE:          "<=",
		CmpOpGE:          ">=",
		CmpOpLT:          "<",
		CmpOpGT:          ">",
		CmpOpArbitraryEQ: "===",
	}[op]
	if !ok {
		panic(fmt.Errorf("invalid CmpOp: %d", int(op)))
	}
	return str
}

// SpecifierClause is a single operator+version clause.  Wildcard indicates a
// ".*" suffix (prefix match), which is only valid with the == and !=
// operators.  Raw preserves the right-hand side as written, for the ===
// operator.
type SpecifierClause struct {
	CmpOp    CmpOp
	Version  Version
	Wildcard bool
	Raw      string
}

func parseSpecifierClause(str string) (SpecifierClause, error) {
	var ret SpecifierClause
	switch {
	case strings.HasPrefix(str, "~="):
		ret.CmpOp = CmpOpCompatible
		str = str[2:]
	case strings.HasPrefix(str, "==="):
		ret.CmpOp = CmpOpArbitraryEQ
		str = str[3:]
	case strings.HasPrefix(str, "=="):
		ret.CmpOp = CmpOpEQ
		str = str[2:]
	case strings.HasPrefix(str, "!="):
		ret.CmpOp = CmpOpNE
		str = str[2:]
	case strings.HasPrefix(str, "<="):
		ret.CmpOp = CmpOpLE
		str = str[2:]
	case strings.HasPrefix(str, ">="):
		ret.CmpOp = CmpOpGE
		str = str[2:]
	case strings.HasPrefix(str, "<"):
		ret.CmpOp = CmpOpLT
		str = str[1:]
	case strings.HasPrefix(str, ">"):
		ret.CmpOp = CmpOpGT
		str = str[1:]
	default:
		return ret, fmt.Errorf("invalid specifier clause: %q: missing operator", str)
	}
	str = strings.TrimSpace(str)
	ret.Raw = str

	if ret.CmpOp == CmpOpArbitraryEQ {
		// "===" operates on the string form; no version parsing at all.
		return ret, nil
	}

	if strings.HasSuffix(str, ".*") {
		if ret.CmpOp != CmpOpEQ && ret.CmpOp != CmpOpNE {
			return ret, fmt.Errorf("invalid specifier clause: %q: "+
				".* suffix is only allowed with == or !=", ret.Raw)
		}
		ret.Wildcard = true
		str = strings.TrimSuffix(str, ".*")
	}

	ver, err := ParseVersion(str)
	if err != nil {
		return ret, fmt.Errorf("invalid specifier clause: %w", err)
	}
	ret.Version = *ver

	if ret.Wildcard && (ret.Version.Dev != nil || len(ret.Version.Local) > 0) {
		return ret, fmt.Errorf("invalid specifier clause: %q: "+
			".* suffix cannot follow a dev or local version", ret.Raw)
	}
	switch ret.CmpOp {
	case CmpOpCompatible:
		if len(ret.Version.Release) < 2 {
			return ret, fmt.Errorf("invalid specifier clause: %q: "+
				"~= requires at least two release segments", ret.Raw)
		}
		fallthrough
	case CmpOpLE, CmpOpGE, CmpOpLT, CmpOpGT:
		if len(ret.Version.Local) > 0 {
			return ret, fmt.Errorf("invalid specifier clause: %q: "+
				"local version label is only allowed with == or !=", ret.Raw)
		}
	}
	return ret, nil
}

func (spec SpecifierClause) String() string {
	if spec.CmpOp == CmpOpArbitraryEQ {
		return spec.CmpOp.String() + spec.Raw
	}
	str := spec.CmpOp.String() + spec.Version.String()
	if spec.Wildcard {
		str += ".*"
	}
	return str
}

// sameRelease reports whether a and b have equal epoch and (zero-padded)
// release segments.
func sameRelease(a, b Version) bool {
	return a.Epoch == b.Epoch && cmpRelease(a, b) == 0
}

func (spec SpecifierClause) Match(ver Version) bool {
	switch spec.CmpOp {
	case CmpOpCompatible:
		// "~= V.N" is ">= V.N, == V.*" with the last release segment
		// dropped from the prefix.
		ge := SpecifierClause{CmpOp: CmpOpGE, Version: spec.Version}
		prefix := spec.Version
		prefix.Release = prefix.Release[:len(prefix.Release)-1]
		prefix.Pre, prefix.Post, prefix.Dev, prefix.Local = nil, nil, nil, nil
		eq := SpecifierClause{CmpOp: CmpOpEQ, Version: prefix, Wildcard: true}
		return ge.Match(ver) && eq.Match(ver)
	case CmpOpEQ:
		if spec.Wildcard {
			return matchPrefix(spec.Version, ver)
		}
		// Strict equality ignores the candidate's local version label
		// unless the clause itself has one.
		a, b := ver, spec.Version
		if len(b.Local) == 0 {
			a.Local = nil
		}
		return a.Cmp(b) == 0
	case CmpOpNE:
		eq := spec
		eq.CmpOp = CmpOpEQ
		return !eq.Match(ver)
	case CmpOpLE:
		v := ver
		v.Local = nil
		return v.Cmp(spec.Version) <= 0
	case CmpOpGE:
		v := ver
		v.Local = nil
		return v.Cmp(spec.Version) >= 0
	case CmpOpLT:
		v := ver
		v.Local = nil
		if v.Cmp(spec.Version) >= 0 {
			return false
		}
		// "The exclusive ordered comparison <V MUST NOT be used to match a
		// pre-release of the specified version unless the specified version
		// is itself a pre-release."
		if ver.IsPreRelease() && !spec.Version.IsPreRelease() && sameRelease(ver, spec.Version) {
			return false
		}
		return true
	case CmpOpGT:
		v := ver
		v.Local = nil
		if v.Cmp(spec.Version) <= 0 {
			return false
		}
		// ">V MUST NOT be used to match a post-release of the given version
		// unless V itself is a post release", and must not match local
		// versions of the given version.
		if ver.IsPostRelease() && !spec.Version.IsPostRelease() && sameRelease(ver, spec.Version) {
			return false
		}
		return true
	case CmpOpArbitraryEQ:
		raw := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(spec.Raw)), "v")
		return strings.ToLower(ver.String()) == raw
	default:
		panic(fmt.Errorf("invalid CmpOp: %d", int(spec.CmpOp)))
	}
}

// matchPrefix implements the "== V.*" prefix match: the candidate's release
// is truncated (or zero-padded) to the prefix's length and compared, along
// with the epoch and however much of the pre/post/dev tail the prefix spells
// out.
func matchPrefix(prefix, ver Version) bool {
	if prefix.Epoch != ver.Epoch {
		return false
	}
	for i := range prefix.Release {
		if prefix.Release[i] != ver.releaseSegment(i) {
			return false
		}
	}
	if prefix.Pre != nil {
		if ver.Pre == nil || ver.Pre.L != prefix.Pre.L || ver.Pre.N != prefix.Pre.N {
			return false
		}
	}
	if prefix.Post != nil {
		if ver.Post == nil || *ver.Post != *prefix.Post {
			return false
		}
	}
	return true
}
