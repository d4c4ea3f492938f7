// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package evaluator

import (
	"context"
	"crypto/md5"  //nolint:gosec // allowed hash pins may be md5
	"crypto/sha1" //nolint:gosec // allowed hash pins may be sha1
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"sort"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/unearth/pkg/fetcher"
	"github.com/datawire/unearth/pkg/link"
)

func newHasher(name string) (hash.Hash, error) {
	switch name {
	case "md5":
		return md5.New(), nil //nolint:gosec
	case "sha1":
		return sha1.New(), nil //nolint:gosec
	case "sha224":
		return sha256.New224(), nil
	case "sha256":
		return sha256.New(), nil
	case "sha384":
		return sha512.New384(), nil
	case "sha512":
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", name)
	}
}

// ValidateHashes reports whether the package's link satisfies the allowed
// hashes, a map from algorithm name to acceptable hex digests.  An empty map
// allows everything.  Digests attached to the link (from the index page or
// the URL fragment) under a requested algorithm are trusted and decide the
// answer without network; when the link advertises no digest under any
// requested algorithm, the file is downloaded once and hashed, and the
// result is cached on the link so a later validation doesn't re-download.
func ValidateHashes(ctx context.Context, pkg Package, hashes map[string][]string, f fetcher.Fetcher) (bool, error) {
	if len(hashes) == 0 {
		return true, nil
	}
	l := pkg.Link
	given := l.HashOption()
	overlap := false
	for name := range hashes {
		if len(given[name]) > 0 {
			overlap = true
			break
		}
	}
	if overlap {
		for name, allowed := range hashes {
			for _, digest := range given[name] {
				if contains(allowed, digest) {
					return true, nil
				}
			}
		}
		return false, nil
	}

	// No digest advertised under a requested algorithm; hash the file with
	// one of the requested algorithms.  Pick deterministically.
	names := make([]string, 0, len(hashes))
	for name := range hashes {
		names = append(names, name)
	}
	sort.Strings(names)
	name := names[0]

	digest, err := hashLink(ctx, f, l, name)
	if err != nil {
		return false, err
	}
	l.CacheComputedHash(name, digest)
	return contains(hashes[name], digest), nil
}

func hashLink(ctx context.Context, f fetcher.Fetcher, l *link.Link, name string) (string, error) {
	hasher, err := newHasher(name)
	if err != nil {
		return "", err
	}
	dlog.Debugf(ctx, "Downloading link %s to calculate its %s hash", l.Redacted(), name)
	resp, err := f.GetStream(ctx, l.Normalized(), nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Close() }()
	if resp.StatusCode() >= 400 {
		return "", fmt.Errorf("failed to download %s: %d %s",
			l.Redacted(), resp.StatusCode(), resp.ReasonPhrase())
	}
	if _, err := io.Copy(hasher, resp.Body()); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func contains(haystack []string, needle string) bool {
	for _, straw := range haystack {
		if straw == needle {
			return true
		}
	}
	return false
}
