// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package unpack materializes a link on disk: downloading the file (with
// hash validation) and extracting archives.
package unpack

import (
	"context"
	"crypto/md5"  //nolint:gosec // hash pins may use md5
	"crypto/sha1" //nolint:gosec // hash pins may use sha1
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/unearth/pkg/fetcher"
	"github.com/datawire/unearth/pkg/link"
)

// HashMismatchError means a downloaded file did not match any of the
// digests it was pinned to.  It is not recoverable; the file is discarded.
type HashMismatchError struct {
	Filename string
	Allowed  map[string][]string
	Got      map[string]string
}

func (e *HashMismatchError) Error() string {
	names := make([]string, 0, len(e.Got))
	for name := range e.Got {
		names = append(names, name)
	}
	sort.Strings(names)
	var buf strings.Builder
	fmt.Fprintf(&buf, "hash mismatch for %s:", e.Filename)
	for _, name := range names {
		fmt.Fprintf(&buf, "\n  %s: got %s, expected one of %v", name, e.Got[name], e.Allowed[name])
	}
	return buf.String()
}

// validator streams content through every pinned hash algorithm at once.
type validator struct {
	allowed map[string][]string
	hashers map[string]hash.Hash
}

func newValidator(allowed map[string][]string) (*validator, error) {
	v := &validator{
		allowed: allowed,
		hashers: make(map[string]hash.Hash, len(allowed)),
	}
	for name := range allowed {
		h, err := newHasher(name)
		if err != nil {
			return nil, err
		}
		v.hashers[name] = h
	}
	return v, nil
}

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

func (v *validator) Write(p []byte) (int, error) {
	for _, h := range v.hashers {
		_, _ = h.Write(p)
	}
	return len(p), nil
}

// validate returns nil if any computed digest is among its pinned values.
func (v *validator) validate(filename string) error {
	got := make(map[string]string, len(v.hashers))
	for name, h := range v.hashers {
		got[name] = hex.EncodeToString(h.Sum(nil))
	}
	for name, digest := range got {
		for _, want := range v.allowed[name] {
			if digest == want {
				return nil
			}
		}
	}
	return &HashMismatchError{Filename: filename, Allowed: v.allowed, Got: got}
}

// Download fetches the link's file into destDir and returns its path,
// verifying it against hashes (algorithm name to acceptable hex digests;
// empty means unverified).  A local file link is validated in place and its
// own path is returned without copying.
func Download(ctx context.Context, f fetcher.Fetcher, l *link.Link, destDir string, hashes map[string][]string) (string, error) {
	if l.IsVCS() {
		return "", fmt.Errorf("cannot download a VCS link: %s", l.Redacted())
	}
	if l.IsFile() {
		return downloadLocal(l, hashes)
	}
	return downloadRemote(ctx, f, l, destDir, hashes)
}

func downloadLocal(l *link.Link, hashes map[string][]string) (string, error) {
	path := l.FilePath()
	if len(hashes) == 0 {
		return path, nil
	}
	v, err := newValidator(hashes)
	if err != nil {
		return "", err
	}
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = file.Close() }()
	if _, err := io.Copy(v, file); err != nil {
		return "", err
	}
	if err := v.validate(l.Filename()); err != nil {
		return "", err
	}
	return path, nil
}

func downloadRemote(ctx context.Context, f fetcher.Fetcher, l *link.Link, destDir string, hashes map[string][]string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(destDir, l.Filename())
	dlog.Infof(ctx, "Downloading %s to %s", l.Redacted(), dest)

	resp, err := f.GetStream(ctx, l.Normalized(), nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Close() }()
	if resp.StatusCode() >= 400 {
		return "", fmt.Errorf("failed to download %s: %d %s",
			l.Redacted(), resp.StatusCode(), resp.ReasonPhrase())
	}

	v, err := newValidator(hashes)
	if err != nil {
		return "", err
	}
	file, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	_, err = io.Copy(io.MultiWriter(file, v), resp.Body())
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err == nil && len(hashes) > 0 {
		err = v.validate(l.Filename())
	}
	if err != nil {
		_ = os.Remove(dest)
		return "", err
	}
	return dest, nil
}

// CopyDir copies a local source tree into dest, which must not already
// contain conflicting files.
func CopyDir(src, dest string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !info.Mode().IsRegular() {
			// Sockets and devices have no business in an sdist.
			return nil
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dest string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return err
}
