// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package evaluator decides whether a discovered link is a usable candidate
// for a requirement: right project, right format, right compatibility tags,
// not yanked, not too new.
package evaluator

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/unearth/pkg/link"
	"github.com/datawire/unearth/pkg/python/pep425"
	"github.com/datawire/unearth/pkg/python/pep440"
	"github.com/datawire/unearth/pkg/python/pep503"
	"github.com/datawire/unearth/pkg/python/pep508"
	"github.com/datawire/unearth/pkg/python/pypa/bdist"
)

// LooseFilenameEnv, when set to "1" or "true", switches source-archive
// filename parsing to a scanning mode that tolerates legacy non-normalized
// filenames.
const LooseFilenameEnv = "UNEARTH_LOOSE_FILENAME"

// Package is a successfully evaluated candidate: a project name, a version
// (nil when the requirement pinned a direct URL), and the link it came from.
type Package struct {
	Name    string
	Version *pep440.Version
	Link    *link.Link
}

func (pkg Package) String() string {
	if pkg.Version == nil {
		return pkg.Name + " @ " + pkg.Link.Redacted()
	}
	return pkg.Name + " " + pkg.Version.String()
}

// TargetPython describes the Python to find candidates for.  The zero value
// is a fully unconstrained target.
type TargetPython struct {
	// PyVer is the version tuple, e.g. (3, 9); empty means unknown.
	PyVer []int
	// ABIs, e.g. ["cp39"].
	ABIs []string
	// Impl is the implementation tag, e.g. "cp".
	Impl string
	// Platforms, e.g. ["win_amd64"].
	Platforms []string

	supportedTags pep425.Installer
}

// SupportedTags derives the priority-ordered acceptable tag list, computing
// it on first use and caching it; the TargetPython must not be mutated
// afterwards.
func (t *TargetPython) SupportedTags() pep425.Installer {
	if t.supportedTags == nil {
		t.supportedTags = pep425.Supported(t.PyVer, t.Impl, t.ABIs, t.Platforms)
	}
	return t.supportedTags
}

// VersionString returns the dotted form of PyVer, e.g. "3.9"; empty if the
// version is unknown.
func (t *TargetPython) VersionString() string {
	parts := make([]string, 0, len(t.PyVer))
	for _, segment := range t.PyVer {
		parts = append(parts, strconv.Itoa(segment))
	}
	return strings.Join(parts, ".")
}

// LinkMismatchError is an Evaluator gate failure; it is absorbed (logged at
// debug) rather than propagated — a non-candidate link is not an error.
type LinkMismatchError struct {
	Reason string
}

func (e *LinkMismatchError) Error() string { return e.Reason }

func mismatchf(format string, args ...any) error {
	return &LinkMismatchError{Reason: fmt.Sprintf(format, args...)}
}

// Evaluator evaluates links against one package name and one compatibility
// context.
type Evaluator struct {
	// PackageName is the project the links must belong to.
	PackageName string
	// TargetPython is the compatibility context; nil means unconstrained.
	TargetPython *TargetPython
	// IgnoreCompatibility skips the requires-python and wheel-tag checks.
	IgnoreCompatibility bool
	// AllowYanked accepts links that an index has yanked.
	AllowYanked bool
	// FormatControl is the binary/source policy; nil allows both.
	FormatControl *FormatControl
	// ExcludeNewerThan, if non-zero, rejects links uploaded after the
	// cutoff, and links whose upload time is unknown.
	ExcludeNewerThan time.Time
}

func (e *Evaluator) canonicalName() string {
	return pep503.NormalizeName(e.PackageName)
}

func (e *Evaluator) targetPython() *TargetPython {
	if e.TargetPython == nil {
		return &TargetPython{}
	}
	return e.TargetPython
}

// EvaluateLink runs the candidate gates in order and returns the resulting
// Package, or nil if any gate rejects the link; the first failure wins and
// is logged at debug level.
func (e *Evaluator) EvaluateLink(ctx context.Context, l *link.Link) *Package {
	version, err := e.evaluateLink(l)
	if err != nil {
		dlog.Debugf(ctx, "Skipping link %s: %v", l, err)
		return nil
	}
	return &Package{Name: e.PackageName, Version: version, Link: l}
}

func (e *Evaluator) evaluateLink(l *link.Link) (*pep440.Version, error) {
	if e.FormatControl != nil {
		if err := e.FormatControl.CheckFormat(l, e.PackageName); err != nil {
			return nil, err
		}
	}
	if err := e.checkYanked(l); err != nil {
		return nil, err
	}
	if err := e.checkUploadTime(l); err != nil {
		return nil, err
	}
	if err := e.checkRequiresPython(l); err != nil {
		return nil, err
	}
	if l.IsWheel() {
		return e.evaluateWheel(l)
	}
	return e.evaluateSdist(l)
}

func (e *Evaluator) checkYanked(l *link.Link) error {
	if l.IsYanked() && !e.AllowYanked {
		if reason := *l.YankReason; reason != "" {
			return mismatchf("yanked due to %s", reason)
		}
		return mismatchf("yanked")
	}
	return nil
}

func (e *Evaluator) checkUploadTime(l *link.Link) error {
	if e.ExcludeNewerThan.IsZero() {
		return nil
	}
	if l.UploadTime.IsZero() {
		return mismatchf("upload time is unknown but an exclude-newer cutoff is set")
	}
	if l.UploadTime.After(e.ExcludeNewerThan) {
		return mismatchf("uploaded at %s, after the exclude-newer cutoff %s",
			l.UploadTime.Format(time.RFC3339), e.ExcludeNewerThan.Format(time.RFC3339))
	}
	return nil
}

func (e *Evaluator) checkRequiresPython(l *link.Link) error {
	if e.IgnoreCompatibility || l.RequiresPython == "" {
		return nil
	}
	pyVersionStr := e.targetPython().VersionString()
	if pyVersionStr == "" {
		// No target version to check against.
		return nil
	}
	specifier, err := pep440.ParseLegacySpecifier(l.RequiresPython)
	if err != nil {
		return mismatchf("invalid requires-python: %s", l.RequiresPython)
	}
	pyVersion, err := pep440.ParseVersion(pyVersionStr)
	if err != nil {
		return mismatchf("invalid target python version: %s", pyVersionStr)
	}
	// Match, not Contains: a pre-release interpreter still satisfies
	// ">=3.9".
	if !specifier.Match(*pyVersion) {
		return mismatchf("the target python version (%s) doesn't match the requires-python specifier %s",
			pyVersionStr, l.RequiresPython)
	}
	return nil
}

func (e *Evaluator) evaluateWheel(l *link.Link) (*pep440.Version, error) {
	filenameInfo, err := bdist.ParseFilename(l.Filename())
	if err != nil {
		return nil, &LinkMismatchError{Reason: err.Error()}
	}
	if pep503.NormalizeName(filenameInfo.Distribution) != e.canonicalName() {
		return nil, mismatchf("the package name doesn't match %s", filenameInfo.Distribution)
	}
	if !e.IgnoreCompatibility {
		if !e.targetPython().SupportedTags().Supports(filenameInfo.CompatibilityTag) {
			return nil, mismatchf("none of the wheel tags (%s) are compatible",
				filenameInfo.CompatibilityTag)
		}
	}
	return &filenameInfo.Version, nil
}

func (e *Evaluator) evaluateSdist(l *link.Link) (*pep440.Version, error) {
	var eggInfo string
	if egg := l.EggFragment(); egg != "" {
		// Strip any extras following the name.
		eggInfo, _, _ = strings.Cut(egg, "[")
	} else {
		base, ext := link.Splitext(l.Filename())
		if ext == "" {
			return nil, mismatchf("not a file: %s", l.Filename())
		}
		if !link.IsArchiveFile(l.Filename()) {
			return nil, mismatchf("unsupported archive format: %s", l.Filename())
		}
		eggInfo = base
	}

	var versionStr string
	if looseFilename() {
		versionStr = parseVersionFromEggInfo(eggInfo, e.canonicalName())
		if versionStr == "" {
			return nil, mismatchf("missing version in the filename: %s", eggInfo)
		}
	} else {
		// A normalized sdist version contains no hyphens, so the last
		// hyphen separates the project name from the version.
		prefix, suffix, found := cutLast(eggInfo, "-")
		if !found {
			return nil, mismatchf("missing version in the filename: %s", eggInfo)
		}
		if pep503.NormalizeName(prefix) != e.canonicalName() {
			return nil, mismatchf("the package name doesn't match %s, set env var %s=1 "+
				"to allow legacy filenames", eggInfo, LooseFilenameEnv)
		}
		versionStr = suffix
	}

	version, err := pep440.ParseVersion(versionStr)
	if err != nil {
		return nil, mismatchf("invalid version in the filename %s: %s", eggInfo, versionStr)
	}
	return version, nil
}

func cutLast(s, sep string) (before, after string, found bool) {
	idx := strings.LastIndex(s, sep)
	if idx < 0 {
		return s, "", false
	}
	return s[:idx], s[idx+len(sep):], true
}

// parseVersionFromEggInfo scans for the shortest prefix that canonicalizes
// to the wanted name and is followed by a separator, taking everything after
// as the version.
func parseVersionFromEggInfo(eggInfo, canonicalName string) string {
	for i, char := range eggInfo {
		if (char == '-' || char == '_') && pep503.NormalizeName(eggInfo[:i]) == canonicalName {
			return eggInfo[i+1:]
		}
	}
	return ""
}

func looseFilename() bool {
	switch strings.ToLower(os.Getenv(LooseFilenameEnv)) {
	case "1", "true":
		return true
	}
	return false
}

// EvaluatePackage applies requirement-level filtering after link-level
// evaluation: the name must match, and a versioned package must satisfy the
// requirement's specifier under the given pre-release policy (nil defers to
// the specifier's own inference).  Direct-URL packages have no version and
// always pass the version check.
func EvaluatePackage(ctx context.Context, pkg Package, req *pep508.Requirement, allowPreReleases *bool) bool {
	if req.Name != "" && pep503.NormalizeName(pkg.Name) != req.CanonicalName() {
		dlog.Debugf(ctx, "Skipping package %s: name doesn't match %s", pkg, req.Name)
		return false
	}
	if pkg.Version != nil && !req.Specifier.Contains(*pkg.Version, allowPreReleases) {
		dlog.Debugf(ctx, "Skipping package %s: version doesn't match %s", pkg, req.Specifier)
		return false
	}
	return true
}
