// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package unpack

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/unearth/pkg/link"
)

// Archive extracts the archive at archivePath into dest, dispatching on the
// file extension.  If every member lives under one common leading
// directory, that directory is stripped, so "pkg-1.0/setup.py" lands at
// "dest/setup.py".
func Archive(ctx context.Context, archivePath, dest string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	lower := strings.ToLower(filepath.Base(archivePath))
	switch {
	case strings.HasSuffix(lower, ".zip") || strings.HasSuffix(lower, ".whl"):
		return unzip(ctx, archivePath, dest)
	case strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz"),
		strings.HasSuffix(lower, ".tar.bz2") || strings.HasSuffix(lower, ".tbz"),
		strings.HasSuffix(lower, ".tar.xz") || strings.HasSuffix(lower, ".txz"),
		strings.HasSuffix(lower, ".tar"):
		return untar(ctx, archivePath, dest)
	default:
		return fmt.Errorf("unsupported archive format: %s", filepath.Base(archivePath))
	}
}

// IsArchive reports whether Archive knows how to extract the named file.
func IsArchive(filename string) bool {
	return link.IsArchiveFile(filename)
}

// splitLeadingDir splits "a/b/c" into ("a", "b/c"); no separator yields
// (name, "").
func splitLeadingDir(name string) (string, string) {
	name = strings.TrimLeft(name, "/")
	lead, rest, found := strings.Cut(name, "/")
	if !found {
		return name, ""
	}
	return lead, rest
}

// commonLeadingDir returns the single directory every member is under, or
// "" when there is none.
func commonLeadingDir(names []string) string {
	common := ""
	for _, name := range names {
		lead, rest := splitLeadingDir(name)
		if rest == "" {
			return ""
		}
		if common == "" {
			common = lead
		} else if common != lead {
			return ""
		}
	}
	return common
}

// securePath resolves an archive member name under dest, rejecting names
// that escape it.
func securePath(dest, name string) (string, error) {
	cleaned := path.Clean("/" + name)
	target := filepath.Join(dest, filepath.FromSlash(cleaned))
	if target != dest && !strings.HasPrefix(target, dest+string(filepath.Separator)) {
		return "", fmt.Errorf("archive member %q escapes the destination", name)
	}
	return target, nil
}

func unzip(ctx context.Context, archivePath, dest string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer func() { _ = zr.Close() }()

	names := make([]string, 0, len(zr.File))
	for _, member := range zr.File {
		names = append(names, member.Name)
	}
	leading := commonLeadingDir(names)

	for _, member := range zr.File {
		name := member.Name
		if leading != "" {
			_, name = splitLeadingDir(name)
		}
		if name == "" {
			continue
		}
		target, err := securePath(dest, name)
		if err != nil {
			return err
		}
		if strings.HasSuffix(member.Name, "/") {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := extractZipFile(member, target); err != nil {
			return err
		}
	}
	dlog.Debugf(ctx, "Extracted %d members to %s", len(zr.File), dest)
	return nil
}

func extractZipFile(member *zip.File, target string) error {
	mode := os.FileMode(0o644)
	if member.Mode()&0o111 != 0 {
		mode = 0o755
	}
	in, err := member.Open()
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return err
}

func untar(ctx context.Context, archivePath, dest string) error {
	// Pass one collects member names for leading-dir detection; pass two
	// extracts.  A tar stream can't be walked twice, so the file (and its
	// decompressor) is opened fresh for each pass.
	var names []string
	err := walkTar(archivePath, func(hdr *tar.Header, _ io.Reader) error {
		names = append(names, hdr.Name)
		return nil
	})
	if err != nil {
		return err
	}
	leading := commonLeadingDir(names)

	count := 0
	err = walkTar(archivePath, func(hdr *tar.Header, body io.Reader) error {
		name := hdr.Name
		if leading != "" {
			_, name = splitLeadingDir(name)
		}
		if name == "" {
			return nil
		}
		target, err := securePath(dest, name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			return os.MkdirAll(target, 0o755)
		case tar.TypeSymlink:
			if path.IsAbs(hdr.Linkname) || strings.HasPrefix(hdr.Linkname, "..") {
				dlog.Warnf(ctx, "Skipping unsafe symlink %s -> %s", hdr.Name, hdr.Linkname)
				return nil
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			_ = os.Remove(target)
			return os.Symlink(filepath.FromSlash(hdr.Linkname), target)
		case tar.TypeLink:
			linkname := hdr.Linkname
			if leading != "" {
				_, linkname = splitLeadingDir(linkname)
			}
			source, err := securePath(dest, linkname)
			if err != nil {
				dlog.Warnf(ctx, "Skipping unsafe hardlink %s -> %s", hdr.Name, hdr.Linkname)
				return nil
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			_ = os.Remove(target)
			return os.Link(source, target)
		case tar.TypeReg:
			count++
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			mode := os.FileMode(0o644)
			if hdr.FileInfo().Mode()&0o111 != 0 {
				mode = 0o755
			}
			out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
			if err != nil {
				return err
			}
			_, err = io.Copy(out, body)
			if closeErr := out.Close(); err == nil {
				err = closeErr
			}
			return err
		default:
			dlog.Debugf(ctx, "Skipping member %s of unsupported type %q", hdr.Name, hdr.Typeflag)
			return nil
		}
	})
	if err != nil {
		return err
	}
	dlog.Debugf(ctx, "Extracted %d files to %s", count, dest)
	return nil
}

func walkTar(archivePath string, fn func(*tar.Header, io.Reader) error) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	var decompressed io.Reader
	lower := strings.ToLower(filepath.Base(archivePath))
	switch {
	case strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz"):
		gz, err := gzip.NewReader(file)
		if err != nil {
			return err
		}
		defer func() { _ = gz.Close() }()
		decompressed = gz
	case strings.HasSuffix(lower, ".tar.bz2") || strings.HasSuffix(lower, ".tbz"):
		decompressed = bzip2.NewReader(file)
	case strings.HasSuffix(lower, ".tar.xz") || strings.HasSuffix(lower, ".txz"):
		xr, err := xz.NewReader(file)
		if err != nil {
			return err
		}
		decompressed = xr
	default:
		decompressed = file
	}

	tr := tar.NewReader(decompressed)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(hdr, tr); err != nil {
			return err
		}
	}
}
