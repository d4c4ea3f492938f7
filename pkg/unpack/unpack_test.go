// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package unpack_test

import (
	"archive/tar"
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/unearth/pkg/fetcher"
	"github.com/datawire/unearth/pkg/link"
	"github.com/datawire/unearth/pkg/unpack"
)

type zipEntry struct {
	Name string
	Body string
	Mode os.FileMode
}

func buildZip(t *testing.T, dir string, entries []zipEntry) string {
	t.Helper()
	path := filepath.Join(dir, "archive.zip")
	file, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(file)
	for _, entry := range entries {
		header := &zip.FileHeader{Name: entry.Name, Method: zip.Deflate}
		if entry.Mode != 0 {
			header.SetMode(entry.Mode)
		}
		w, err := zw.CreateHeader(header)
		require.NoError(t, err)
		_, err = w.Write([]byte(entry.Body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, file.Close())
	return path
}

func buildTarGz(t *testing.T, dir string, headers []*tar.Header, bodies map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, "archive.tar.gz")
	file, err := os.Create(path)
	require.NoError(t, err)
	gw := gzip.NewWriter(file)
	tw := tar.NewWriter(gw)
	for _, header := range headers {
		body := bodies[header.Name]
		if header.Typeflag == tar.TypeReg {
			header.Size = int64(len(body))
		}
		require.NoError(t, tw.WriteHeader(header))
		if header.Typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())
	require.NoError(t, file.Close())
	return path
}

func TestArchiveZip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	archive := buildZip(t, dir, []zipEntry{
		{Name: "demo-1.0/setup.py", Body: "from setuptools import setup\n"},
		{Name: "demo-1.0/bin/tool", Body: "#!/bin/sh\n", Mode: 0o755},
	})

	dest := filepath.Join(dir, "out")
	require.NoError(t, unpack.Archive(ctx, archive, dest))

	// The common leading directory is stripped.
	assert.FileExists(t, filepath.Join(dest, "setup.py"))
	info, err := os.Stat(filepath.Join(dest, "bin", "tool"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o111)
}

func TestArchiveZipNoCommonDir(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	archive := buildZip(t, dir, []zipEntry{
		{Name: "setup.py", Body: "x"},
		{Name: "src/mod.py", Body: "y"},
	})

	dest := filepath.Join(dir, "out")
	require.NoError(t, unpack.Archive(ctx, archive, dest))
	assert.FileExists(t, filepath.Join(dest, "setup.py"))
	assert.FileExists(t, filepath.Join(dest, "src", "mod.py"))
}

func TestArchiveZipTraversal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	archive := buildZip(t, dir, []zipEntry{
		{Name: "good.txt", Body: "good"},
		{Name: "../evil.txt", Body: "evil"},
	})

	dest := filepath.Join(dir, "out")
	require.NoError(t, unpack.Archive(ctx, archive, dest))

	// The traversal member is confined to the destination.
	assert.FileExists(t, filepath.Join(dest, "good.txt"))
	assert.FileExists(t, filepath.Join(dest, "evil.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "evil.txt"))
}

func TestArchiveTarGz(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	archive := buildTarGz(t, dir, []*tar.Header{
		{Name: "demo-1.0/setup.py", Typeflag: tar.TypeReg, Mode: 0o644},
		{Name: "demo-1.0/README", Typeflag: tar.TypeReg, Mode: 0o644},
		{Name: "demo-1.0/README.link", Typeflag: tar.TypeSymlink, Linkname: "README"},
		{Name: "demo-1.0/passwd", Typeflag: tar.TypeSymlink, Linkname: "/etc/passwd"},
	}, map[string]string{
		"demo-1.0/setup.py": "from setuptools import setup\n",
		"demo-1.0/README":   "hello\n",
	})

	dest := filepath.Join(dir, "out")
	require.NoError(t, unpack.Archive(ctx, archive, dest))

	assert.FileExists(t, filepath.Join(dest, "setup.py"))
	target, err := os.Readlink(filepath.Join(dest, "README.link"))
	require.NoError(t, err)
	assert.Equal(t, "README", target)

	// A symlink to an absolute path is dropped.
	assert.NoFileExists(t, filepath.Join(dest, "passwd"))
}

func TestArchiveUnsupported(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "demo.rar")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	assert.Error(t, unpack.Archive(ctx, path, filepath.Join(dir, "out")))
}

func TestDownloadLocal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	content := []byte("archive contents")
	sum := sha256.Sum256(content)
	digest := hex.EncodeToString(sum[:])
	path := filepath.Join(dir, "demo-1.0.tar.gz")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	l := link.FromPath(path)

	// A matching hash returns the file in place.
	got, err := unpack.Download(ctx, &fetcher.Session{}, l, dir,
		map[string][]string{"sha256": {digest}})
	require.NoError(t, err)
	assert.Equal(t, path, got)

	_, err = unpack.Download(ctx, &fetcher.Session{}, l, dir,
		map[string][]string{"sha256": {"0000"}})
	var mismatch *unpack.HashMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "demo-1.0.tar.gz", mismatch.Filename)
	assert.Equal(t, digest, mismatch.Got["sha256"])
}

func TestDownloadRemote(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	content := []byte("archive contents")
	sum := sha256.Sum256(content)
	digest := hex.EncodeToString(sum[:])
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(content)
	}))
	t.Cleanup(server.Close)
	l := link.New(server.URL + "/demo-1.0.tar.gz")

	dir := t.TempDir()
	got, err := unpack.Download(ctx, &fetcher.Session{}, l, dir,
		map[string][]string{"sha256": {digest}})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "demo-1.0.tar.gz"), got)
	onDisk, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, content, onDisk)

	// A failed validation leaves nothing behind.
	dir2 := t.TempDir()
	_, err = unpack.Download(ctx, &fetcher.Session{}, l, dir2,
		map[string][]string{"sha256": {"0000"}})
	var mismatch *unpack.HashMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.NoFileExists(t, filepath.Join(dir2, "demo-1.0.tar.gz"))
}

func TestDownloadVCSLink(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, err := unpack.Download(ctx, &fetcher.Session{},
		link.New("git+https://github.com/pypa/pip.git"), t.TempDir(), nil)
	assert.Error(t, err)
}

func TestCopyDir(t *testing.T) {
	t.Parallel()
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "setup.py"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "pkg", "mod.py"), []byte("y"), 0o644))

	dest := filepath.Join(t.TempDir(), "out")
	require.NoError(t, unpack.CopyDir(src, dest))
	assert.FileExists(t, filepath.Join(dest, "setup.py"))
	assert.FileExists(t, filepath.Join(dest, "pkg", "mod.py"))
}
