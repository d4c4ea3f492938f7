// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package link models a candidate URL, remote or local, discovered from a
// package index or a find-links location.
package link

import (
	"net/url"
	"path"
	"strings"
	"time"
)

// VCSSchemes are the version control prefixes recognized in "vcs+url" URLs.
var VCSSchemes = []string{"git", "hg", "svn", "bzr"}

// SupportedHashes are the hash fragment names recognized on a link URL, e.g.
// "#sha256=deadbeef".
var SupportedHashes = []string{"sha1", "sha224", "sha384", "sha256", "sha512", "md5"}

// Link refers to either a remote URL or a local file.
//
// A Link is immutable once constructed, except for the computed-hash cache
// filled in by hash validation; that cache is not safe for concurrent
// writers.
type Link struct {
	// URL is the link target as discovered.
	URL string
	// ComesFrom is the index page that produced this link, if any.
	ComesFrom string
	// YankReason is non-nil iff the link is yanked (PEP 592); the string
	// is the reason, possibly empty.
	YankReason *string
	// RequiresPython is the data-requires-python annotation, if any.
	RequiresPython string
	// Hashes maps hash algorithm names to hex digests, as supplied by
	// index metadata (PEP 691).
	Hashes map[string]string
	// MetadataHashes carries the data-core-metadata annotation: nil if
	// absent, empty if the index only flagged metadata availability, else
	// an algorithm-to-digest mapping.
	MetadataHashes map[string]string
	// UploadTime is the upload timestamp from index metadata; zero if
	// unknown.
	UploadTime time.Time
	// VCS is the version control scheme name ("git", ...) if the URL had a
	// vcs+ prefix.
	VCS string

	normalized string
	parsed     *url.URL

	// computedHashes caches digests computed by downloading the file;
	// single writer at a time.
	computedHashes map[string]string
}

// New constructs a Link from a URL, applying VCS-scheme normalization: a
// "vcs+" prefix is split off, and an SCP-like "user@host:path" remainder is
// rewritten to an explicit "ssh://" URL.
func New(rawURL string) *Link {
	l := &Link{URL: rawURL}
	l.normalized = rawURL
	for _, scheme := range VCSSchemes {
		if rest, ok := strings.CutPrefix(rawURL, scheme+"+"); ok {
			l.VCS = scheme
			l.normalized = scheme + "+" + AddSSHScheme(rest)
			break
		}
	}
	return l
}

// FromPath constructs a Link from a local file path.
func FromPath(filePath string) *Link {
	return New(PathToURL(filePath))
}

// Normalized returns the URL with VCS-scheme normalization applied.
func (l *Link) Normalized() string {
	return l.normalized
}

// Parsed returns the parsed form of the normalized URL; an unparseable URL
// yields an opaque empty result rather than an error, matching the lenient
// treatment of index content.
func (l *Link) Parsed() *url.URL {
	if l.parsed == nil {
		parsed, err := url.Parse(l.normalized)
		if err != nil {
			parsed = &url.URL{}
		}
		l.parsed = parsed
	}
	return l.parsed
}

// Scheme returns the URL scheme with any vcs+ prefix stripped.
func (l *Link) Scheme() string {
	scheme := l.Parsed().Scheme
	if _, after, found := strings.Cut(scheme, "+"); found {
		return after
	}
	return scheme
}

// Filename returns the percent-decoded basename of the URL path.
func (l *Link) Filename() string {
	p := l.Parsed().Path
	return path.Base(strings.TrimRight(p, "/"))
}

func (l *Link) IsWheel() bool {
	return strings.HasSuffix(l.Filename(), ".whl")
}

func (l *Link) IsVCS() bool {
	return l.VCS != ""
}

func (l *Link) IsFile() bool {
	return l.Parsed().Scheme == "file"
}

// FilePath converts a file: link to a local filesystem path.
func (l *Link) FilePath() string {
	return URLToPath(l.URLWithoutFragment())
}

// IsYanked returns whether the link is marked yanked (PEP 592).
func (l *Link) IsYanked() bool {
	return l.YankReason != nil
}

// URLWithoutFragment returns the normalized URL with the fragment removed.
func (l *Link) URLWithoutFragment() string {
	u := *l.Parsed()
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

func (l *Link) fragment() url.Values {
	values, err := url.ParseQuery(l.Parsed().Fragment)
	if err != nil {
		return url.Values{}
	}
	return values
}

// Subdirectory returns the "#subdirectory=" fragment value, if any.
func (l *Link) Subdirectory() string {
	return l.fragment().Get("subdirectory")
}

// EggFragment returns the "#egg=" fragment value, if any.
func (l *Link) EggFragment() string {
	return l.fragment().Get("egg")
}

// FragmentHash returns the (algorithm, hex digest) hash embedded in the URL
// fragment, if any.
func (l *Link) FragmentHash() (name, value string, ok bool) {
	fragment := l.fragment()
	for _, name := range SupportedHashes {
		if fragment.Has(name) {
			return name, fragment.Get(name), true
		}
	}
	return "", "", false
}

// HashOption collects every hash constraint this link carries: index
// metadata hashes, the URL fragment hash, and any digests computed from the
// file contents.
func (l *Link) HashOption() map[string][]string {
	ret := make(map[string][]string)
	for name, value := range l.Hashes {
		ret[name] = append(ret[name], value)
	}
	if name, value, ok := l.FragmentHash(); ok {
		ret[name] = append(ret[name], value)
	}
	for name, value := range l.computedHashes {
		ret[name] = append(ret[name], value)
	}
	if len(ret) == 0 {
		return nil
	}
	return ret
}

// CacheComputedHash records a digest computed from the downloaded file
// contents, so later validations need not re-download.  Single writer at a
// time.
func (l *Link) CacheComputedHash(name, value string) {
	if l.computedHashes == nil {
		l.computedHashes = make(map[string]string)
	}
	l.computedHashes[name] = value
}

// Redacted returns the URL with embedded credentials masked and the fragment
// dropped, for safe display.
func (l *Link) Redacted() string {
	u := *l.Parsed()
	u.Fragment = ""
	u.RawFragment = ""
	if u.User == nil {
		return u.String()
	}
	// url.User("***") would come back percent-encoded from String();
	// splice the mask in by hand.
	u.User = nil
	return strings.Replace(u.String(), "://", "://***@", 1)
}

// SplitAuth returns the embedded (user, password) credentials and the
// normalized URL with them removed.
func (l *Link) SplitAuth() (user, password *string, bare string) {
	u := *l.Parsed()
	if u.User == nil {
		return nil, nil, l.normalized
	}
	username := u.User.Username()
	user = &username
	if pw, ok := u.User.Password(); ok {
		password = &pw
	}
	u.User = nil
	return user, password, u.String()
}

// Key is the identity tuple that Equal and map keys use: embedded
// credentials and provenance do not participate in identity.
type Key struct {
	URL            string
	YankReason     string // "\x00" when not yanked
	RequiresPython string
}

func (l *Link) Key() Key {
	_, _, bare := l.SplitAuth()
	yank := "\x00"
	if l.YankReason != nil {
		yank = *l.YankReason
	}
	return Key{URL: bare, YankReason: yank, RequiresPython: l.RequiresPython}
}

func (l *Link) Equal(other *Link) bool {
	return other != nil && l.Key() == other.Key()
}

func (l *Link) String() string {
	if l.ComesFrom != "" {
		return "<Link " + l.Redacted() + " (from " + l.ComesFrom + ")>"
	}
	return "<Link " + l.Redacted() + ">"
}
