// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package vcs obtains package sources from version-control URLs of the form
// "vcs+transport://...@revision".
package vcs

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/unearth/pkg/link"
)

// Backend is one version-control system.  dest is always the checkout
// directory; rev may be empty, meaning the default branch.
type Backend interface {
	// Name is the URL scheme prefix, e.g. "git".
	Name() string
	// FetchNew clones url into dest (which does not exist yet) at rev.
	FetchNew(ctx context.Context, url, dest, rev string) error
	// Update brings an existing checkout at dest to rev.
	Update(ctx context.Context, dest, rev string) error
	// GetRemoteURL reports which URL the checkout at dest tracks.
	GetRemoteURL(ctx context.Context, dest string) (string, error)
	// GetRevision reports the current revision of the checkout at dest.
	GetRevision(ctx context.Context, dest string) (string, error)
	// IsRepository reports whether dest is a checkout managed by this
	// backend.
	IsRepository(ctx context.Context, dest string) bool
}

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]Backend)
)

// Register makes a backend available to Fetch and GetBackend.  Backends
// self-register from init.
func Register(b Backend) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[b.Name()] = b
}

// GetBackend looks up a registered backend by name.
func GetBackend(name string) (Backend, error) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	if b, ok := backends[name]; ok {
		return b, nil
	}
	names := make([]string, 0, len(backends))
	for n := range backends {
		names = append(names, n)
	}
	sort.Strings(names)
	return nil, fmt.Errorf("unsupported VCS %q, supported: %s", name, strings.Join(names, ", "))
}

// SplitURL takes a "vcs+transport://...@rev" link and returns the backend
// name, the bare URL to hand to the VCS, and the requested revision (empty
// if none).
func SplitURL(l *link.Link) (vcsName, bareURL, rev string, err error) {
	rawURL := l.Normalized()
	vcsName, rest, found := strings.Cut(rawURL, "+")
	if !found {
		return "", "", "", fmt.Errorf("not a VCS link: %s", l.Redacted())
	}
	u, err := url.Parse(rest)
	if err != nil {
		return "", "", "", err
	}
	u.Fragment = ""
	if idx := strings.LastIndex(u.Path, "@"); idx >= 0 {
		rev = u.Path[idx+1:]
		u.Path = u.Path[:idx]
	}
	return vcsName, u.String(), rev, nil
}

// Fetch materializes the VCS link as a checkout at dest.  An existing
// checkout tracking the same URL is updated in place; anything else at dest
// is removed and replaced by a fresh clone.
func Fetch(ctx context.Context, l *link.Link, dest string) error {
	vcsName, bareURL, rev, err := SplitURL(l)
	if err != nil {
		return err
	}
	backend, err := GetBackend(vcsName)
	if err != nil {
		return err
	}

	if _, err := os.Stat(dest); err == nil {
		if reusable(ctx, backend, dest, bareURL, rev) {
			return nil
		}
		if backend.IsRepository(ctx, dest) && sameRemote(ctx, backend, dest, bareURL) {
			dlog.Infof(ctx, "Updating %s checkout at %s", vcsName, dest)
			return backend.Update(ctx, dest, rev)
		}
		dlog.Infof(ctx, "Removing stale checkout at %s", dest)
		if err := os.RemoveAll(dest); err != nil {
			return err
		}
	}
	dlog.Infof(ctx, "Cloning %s into %s", redactURL(bareURL), dest)
	return backend.FetchNew(ctx, bareURL, dest, rev)
}

// reusable reports whether dest already is the wanted URL at the wanted
// commit, so no network round-trip is needed.
func reusable(ctx context.Context, backend Backend, dest, bareURL, rev string) bool {
	if rev == "" || !backend.IsRepository(ctx, dest) {
		return false
	}
	if !sameRemote(ctx, backend, dest, bareURL) {
		return false
	}
	current, err := backend.GetRevision(ctx, dest)
	if err != nil {
		return false
	}
	// A requested revision that is a (possibly abbreviated) commit hash
	// can be compared without talking to the remote.
	return len(rev) >= 7 && strings.HasPrefix(current, rev)
}

func sameRemote(ctx context.Context, backend Backend, dest, bareURL string) bool {
	remote, err := backend.GetRemoteURL(ctx, dest)
	if err != nil {
		return false
	}
	return strings.TrimSuffix(remote, "/") == strings.TrimSuffix(bareURL, "/")
}

func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.User == nil {
		return rawURL
	}
	u.User = url.User("***")
	return u.String()
}
