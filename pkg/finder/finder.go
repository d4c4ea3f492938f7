// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package finder ties collection and evaluation together: given index URLs
// and find-links locations, it discovers every candidate for a project,
// ranks them, and picks the best match for a requirement.
package finder

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/unearth/pkg/collector"
	"github.com/datawire/unearth/pkg/evaluator"
	"github.com/datawire/unearth/pkg/fetcher"
	"github.com/datawire/unearth/pkg/link"
	"github.com/datawire/unearth/pkg/python/pep440"
	"github.com/datawire/unearth/pkg/python/pep503"
	"github.com/datawire/unearth/pkg/python/pep508"
	"github.com/datawire/unearth/pkg/python/pypa/bdist"
	"github.com/datawire/unearth/pkg/unpack"
	"github.com/datawire/unearth/pkg/vcs"
)

// Options configures a PackageFinder.
type Options struct {
	// IndexURLs are PEP 503 simple-API index roots, most preferred first.
	IndexURLs []string
	// FindLinks are extra locations to scan: an HTML page of links, a
	// local archive file, or a local directory of archives.  A local path
	// that doesn't exist is a configuration error.
	FindLinks []string
	// TrustedHosts are "host" or "host:port" entries exempted from the
	// secure-origin policy and from TLS verification.
	TrustedHosts []string
	// TargetPython is the interpreter to find candidates for; nil means
	// unconstrained.
	TargetPython *evaluator.TargetPython
	// IgnoreCompatibility accepts wheels for any platform and skips
	// requires-python checks.
	IgnoreCompatibility bool
	// NoBinary and OnlyBinary are package names (or ":all:") whose wheels
	// or sdists, respectively, are excluded.
	NoBinary   []string
	OnlyBinary []string
	// PreferBinary lists package names (or ":all:") whose wheels rank
	// above any sdist regardless of version.
	PreferBinary []string
	// RespectSourceOrder ranks candidates from an earlier source above
	// candidates from a later one, before comparing versions.
	RespectSourceOrder bool
	// ExcludeNewerThan, if non-zero, hides files uploaded after the
	// cutoff (and files whose upload time the index doesn't report).
	ExcludeNewerThan time.Time
	// Fetcher overrides the HTTP transport; nil gets a default session
	// honoring TrustedHosts.
	Fetcher fetcher.Fetcher
}

// PackageFinder finds candidates for requirements.  Build one with
// NewPackageFinder; configuration errors surface there, not at find time.
type PackageFinder struct {
	opts          Options
	formatControl *evaluator.FormatControl
	preferBinary  map[string]struct{}
	fetcher       fetcher.Fetcher
}

// NewPackageFinder validates opts and builds a finder.  Contradictory
// format controls and nonexistent find-links paths are reported here.
func NewPackageFinder(opts Options) (*PackageFinder, error) {
	formatControl, err := evaluator.NewFormatControl(opts.OnlyBinary, opts.NoBinary)
	if err != nil {
		return nil, err
	}
	preferBinary := make(map[string]struct{}, len(opts.PreferBinary))
	for _, name := range opts.PreferBinary {
		if name == evaluator.AllPackages {
			preferBinary[name] = struct{}{}
		} else {
			preferBinary[pep503.NormalizeName(name)] = struct{}{}
		}
	}
	for i, location := range opts.FindLinks {
		normalized, err := normalizeFindLink(location)
		if err != nil {
			return nil, err
		}
		opts.FindLinks[i] = normalized
	}
	f := opts.Fetcher
	if f == nil {
		f = &fetcher.Session{TrustedHosts: opts.TrustedHosts}
	}
	return &PackageFinder{
		opts:          opts,
		formatControl: formatControl,
		preferBinary:  preferBinary,
		fetcher:       f,
	}, nil
}

// normalizeFindLink turns a local find-links path into a file:// URL,
// requiring that the path exist; URLs pass through.
func normalizeFindLink(location string) (string, error) {
	if u, err := url.Parse(location); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		return location, nil
	}
	abs, err := filepath.Abs(location)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("find-links location %q does not exist", location)
	}
	return link.PathToURL(abs), nil
}

// Fetcher exposes the transport the finder collects and downloads through.
func (f *PackageFinder) Fetcher() fetcher.Fetcher { return f.fetcher }

type rootLink struct {
	link *link.Link
	// expand means the location is a find-links directory whose entries
	// are scanned rather than an index page to parse.
	expand bool
}

// rootLinks resolves the configured sources into concrete locations for one
// project: the project's page on each index, then every find-links
// location.
func (f *PackageFinder) rootLinks(ctx context.Context, name string) []rootLink {
	roots := make([]rootLink, 0, len(f.opts.IndexURLs)+len(f.opts.FindLinks))
	for _, indexURL := range f.opts.IndexURLs {
		pageURL, err := pep503.ProjectPageURL(indexURL, name)
		if err != nil {
			dlog.Warnf(ctx, "Skipping index %s: %v", indexURL, err)
			continue
		}
		roots = append(roots, rootLink{link: link.New(pageURL)})
	}
	for _, location := range f.opts.FindLinks {
		roots = append(roots, rootLink{link: link.New(location), expand: true})
	}
	return roots
}

func (f *PackageFinder) buildEvaluator(packageName string, allowYanked bool) *evaluator.Evaluator {
	return &evaluator.Evaluator{
		PackageName:         packageName,
		TargetPython:        f.opts.TargetPython,
		IgnoreCompatibility: f.opts.IgnoreCompatibility,
		AllowYanked:         allowYanked,
		FormatControl:       f.formatControl,
		ExcludeNewerThan:    f.opts.ExcludeNewerThan,
	}
}

// FindAllPackages returns every candidate for the named project, best
// first.  The sequence is lazy: no collection happens until an element is
// asked for, and the results are memoized across walks.
func (f *PackageFinder) FindAllPackages(ctx context.Context, name string, allowYanked bool) *LazySequence[evaluator.Package] {
	var sorted []evaluator.Package
	started := false
	i := 0
	return NewLazySequence(func() (evaluator.Package, bool) {
		if !started {
			sorted = f.collectAndSort(ctx, name, allowYanked)
			started = true
		}
		if i >= len(sorted) {
			return evaluator.Package{}, false
		}
		pkg := sorted[i]
		i++
		return pkg, true
	})
}

func (f *PackageFinder) collectAndSort(ctx context.Context, name string, allowYanked bool) []evaluator.Package {
	roots := f.rootLinks(ctx, name)
	eval := f.buildEvaluator(name, allowYanked)

	seen := make(map[link.Key]struct{})
	var packages []evaluator.Package
	for _, root := range roots {
		for _, l := range collector.Collect(ctx, f.fetcher, root.link, root.expand) {
			if _, dup := seen[l.Key()]; dup {
				continue
			}
			seen[l.Key()] = struct{}{}
			if pkg := eval.EvaluateLink(ctx, l); pkg != nil {
				packages = append(packages, *pkg)
			}
		}
	}
	f.sortPackages(packages, roots)
	return packages
}

// sortPackages orders candidates best first.  Yanked files lose to
// everything; a preferred binary beats any source; then source order (when
// respected), version, wheel-tag preference, and build tag break ties.
func (f *PackageFinder) sortPackages(packages []evaluator.Package, roots []rootLink) {
	type keyed struct {
		pkg evaluator.Package
		key sortKey
	}
	decorated := make([]keyed, len(packages))
	for i, pkg := range packages {
		decorated[i] = keyed{pkg: pkg, key: f.sortKeyFor(pkg, roots)}
	}
	sort.SliceStable(decorated, func(i, j int) bool {
		return decorated[i].key.cmp(decorated[j].key) > 0
	})
	for i := range decorated {
		packages[i] = decorated[i].pkg
	}
}

type sortKey struct {
	notYanked        int
	binaryPreference int
	sourceOrder      int
	version          *pep440.Version
	tagPreference    int
	buildTag         *bdist.BuildTag
}

func (a sortKey) cmp(b sortKey) int {
	if d := a.notYanked - b.notYanked; d != 0 {
		return d
	}
	if d := a.binaryPreference - b.binaryPreference; d != 0 {
		return d
	}
	if d := a.sourceOrder - b.sourceOrder; d != 0 {
		return d
	}
	switch {
	case a.version == nil && b.version != nil:
		return -1
	case a.version != nil && b.version == nil:
		return 1
	case a.version != nil && b.version != nil:
		if d := a.version.Cmp(*b.version); d != 0 {
			return d
		}
	}
	if d := a.tagPreference - b.tagPreference; d != 0 {
		return d
	}
	return a.buildTag.Cmp(b.buildTag)
}

func (f *PackageFinder) sortKeyFor(pkg evaluator.Package, roots []rootLink) sortKey {
	target := f.opts.TargetPython
	if target == nil {
		target = &evaluator.TargetPython{}
	}
	l := pkg.Link
	key := sortKey{
		notYanked: 1,
		version:   pkg.Version,
		// Sources rank below every wheel, including one whose tags don't
		// match at all (Preference len+1, reachable under
		// IgnoreCompatibility).
		tagPreference: -(len(target.SupportedTags()) + 2),
	}
	if l.IsYanked() {
		key.notYanked = 0
	}
	if f.opts.RespectSourceOrder {
		key.sourceOrder = -f.sourceIndex(l, roots)
	}
	if l.IsWheel() {
		if f.prefersBinary(pkg.Name) {
			key.binaryPreference = 1
		}
		if info, err := bdist.ParseFilename(l.Filename()); err == nil {
			key.tagPreference = -target.SupportedTags().Preference(info.CompatibilityTag)
			key.buildTag = info.BuildTag
		}
	}
	return key
}

func (f *PackageFinder) prefersBinary(name string) bool {
	if _, ok := f.preferBinary[evaluator.AllPackages]; ok {
		return true
	}
	_, ok := f.preferBinary[pep503.NormalizeName(name)]
	return ok
}

// sourceIndex attributes a link to the configured source whose location its
// provenance falls under; links with no attributable source rank last.
// Both sides are compared with embedded credentials stripped, so a source
// configured with credentials still claims pages served without them.
func (f *PackageFinder) sourceIndex(l *link.Link, roots []rootLink) int {
	provenance := l.ComesFrom
	if provenance == "" {
		provenance = l.Normalized()
	}
	_, _, provenance = link.New(provenance).SplitAuth()
	for i, root := range roots {
		_, _, rootURL := root.link.SplitAuth()
		if strings.HasPrefix(provenance, rootURL) {
			return i
		}
	}
	return len(roots)
}

// FindMatches returns the candidates satisfying the requirement, best
// first.  allowYanked nil infers the policy from the requirement: a pinning
// specifier (== or ===) accepts yanked files.  allowPreReleases nil defers
// to the specifier, with a fallback pass accepting pre-releases when
// nothing stable matched.
func (f *PackageFinder) FindMatches(ctx context.Context, req *pep508.Requirement, allowYanked, allowPreReleases *bool) []evaluator.Package {
	applicable, _ := f.findMatches(ctx, req, allowYanked, allowPreReleases)
	return applicable
}

func (f *PackageFinder) findMatches(ctx context.Context, req *pep508.Requirement, allowYanked, allowPreReleases *bool) (applicable, candidates []evaluator.Package) {
	yankedOK := req.Specifier.HasEqualityOperator()
	if allowYanked != nil {
		yankedOK = *allowYanked
	}

	if req.URL != "" {
		candidates = []evaluator.Package{{
			Name: req.Name,
			Link: link.New(req.URL),
		}}
	} else {
		candidates = f.FindAllPackages(ctx, req.CanonicalName(), yankedOK).All()
	}

	applicable = filterPackages(ctx, candidates, req, allowPreReleases)
	if allowPreReleases == nil && len(applicable) == 0 {
		// No stable match; see whether pre-releases would satisfy it.
		always := true
		applicable = filterPackages(ctx, candidates, req, &always)
	}
	return applicable, candidates
}

func filterPackages(ctx context.Context, packages []evaluator.Package, req *pep508.Requirement, allowPreReleases *bool) []evaluator.Package {
	var ret []evaluator.Package
	for _, pkg := range packages {
		if evaluator.EvaluatePackage(ctx, pkg, req, allowPreReleases) {
			ret = append(ret, pkg)
		}
	}
	return ret
}

// BestMatch is the result of FindBestMatch: the winner (nil when nothing
// satisfied the requirement), everything that satisfied it, and everything
// that was considered.
type BestMatch struct {
	Best       *evaluator.Package  `json:"best"`
	Applicable []evaluator.Package `json:"applicable"`
	Candidates []evaluator.Package `json:"candidates"`
}

// FindBestMatch finds the best candidate for the requirement; see
// FindMatches for the allowYanked and allowPreReleases semantics.
func (f *PackageFinder) FindBestMatch(ctx context.Context, req *pep508.Requirement, allowYanked, allowPreReleases *bool) BestMatch {
	applicable, candidates := f.findMatches(ctx, req, allowYanked, allowPreReleases)
	ret := BestMatch{Applicable: applicable, Candidates: candidates}
	if len(applicable) > 0 {
		ret.Best = &applicable[0]
	}
	return ret
}

// DownloadAndUnpack obtains the link's content ready for building:
// a VCS link is checked out into location, a wheel is just downloaded, and
// an archive is downloaded and extracted into location.  For wheels the
// returned path is the file; otherwise it is location joined with the
// link's subdirectory fragment, if any.  hashes nil falls back to the
// digests attached to the link itself.
func (f *PackageFinder) DownloadAndUnpack(ctx context.Context, l *link.Link, location, downloadDir string, hashes map[string][]string) (string, error) {
	if hashes == nil {
		hashes = l.HashOption()
	}
	if l.IsVCS() {
		if err := vcs.Fetch(ctx, l, location); err != nil {
			return "", err
		}
		return filepath.Join(location, filepath.FromSlash(l.Subdirectory())), nil
	}
	if l.IsFile() {
		if info, err := os.Stat(l.FilePath()); err == nil && info.IsDir() {
			if err := unpack.CopyDir(l.FilePath(), location); err != nil {
				return "", err
			}
			return filepath.Join(location, filepath.FromSlash(l.Subdirectory())), nil
		}
	}
	if downloadDir == "" {
		downloadDir = location
	}
	file, err := unpack.Download(ctx, f.fetcher, l, downloadDir, hashes)
	if err != nil {
		return "", err
	}
	if l.IsWheel() {
		return file, nil
	}
	if err := unpack.Archive(ctx, file, location); err != nil {
		return "", err
	}
	return filepath.Join(location, filepath.FromSlash(l.Subdirectory())), nil
}
