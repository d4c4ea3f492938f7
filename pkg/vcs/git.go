// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package vcs

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/datawire/dlib/dexec"
)

func init() {
	Register(gitBackend{})
}

type gitBackend struct{}

func (gitBackend) Name() string { return "git" }

func (gitBackend) IsRepository(_ context.Context, dest string) bool {
	info, err := os.Stat(filepath.Join(dest, ".git"))
	return err == nil && info.IsDir()
}

func (g gitBackend) FetchNew(ctx context.Context, url, dest, rev string) error {
	args := []string{"clone", "-q"}
	if partialCloneSupported(ctx) {
		// Skip blob contents until checkout; much cheaper for large
		// histories.
		args = append(args, "--filter=blob:none")
	}
	args = append(args, "--", url, dest)
	if err := dexec.CommandContext(ctx, "git", args...).Run(); err != nil {
		return err
	}
	if rev != "" {
		if err := g.run(ctx, dest, "checkout", "-q", rev, "--"); err != nil {
			return err
		}
	}
	return g.run(ctx, dest, "submodule", "update", "--init", "--recursive", "-q")
}

func (g gitBackend) Update(ctx context.Context, dest, rev string) error {
	if err := g.run(ctx, dest, "fetch", "-q", "--tags"); err != nil {
		return err
	}
	if rev == "" {
		rev = "FETCH_HEAD"
	}
	if err := g.run(ctx, dest, "reset", "--hard", "-q", rev, "--"); err != nil {
		return err
	}
	return g.run(ctx, dest, "submodule", "update", "--init", "--recursive", "-q")
}

func (g gitBackend) GetRemoteURL(ctx context.Context, dest string) (string, error) {
	out, err := g.output(ctx, dest, "config", "--get", "remote.origin.url")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (g gitBackend) GetRevision(ctx context.Context, dest string) (string, error) {
	out, err := g.output(ctx, dest, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (gitBackend) run(ctx context.Context, dir string, args ...string) error {
	cmd := dexec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	return cmd.Run()
}

func (gitBackend) output(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := dexec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	return string(out), err
}

var (
	partialCloneOnce sync.Once
	partialCloneOK   bool

	reGitVersion = regexp.MustCompile(`(\d+)\.(\d+)`)
)

// partialCloneSupported reports whether the installed git understands
// --filter (2.17 or newer).
func partialCloneSupported(ctx context.Context) bool {
	partialCloneOnce.Do(func() {
		out, err := dexec.CommandContext(ctx, "git", "version").Output()
		if err != nil {
			return
		}
		m := reGitVersion.FindStringSubmatch(string(out))
		if m == nil {
			return
		}
		major, _ := strconv.Atoi(m[1])
		minor, _ := strconv.Atoi(m[2])
		partialCloneOK = major > 2 || (major == 2 && minor >= 17)
	})
	return partialCloneOK
}
