// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package evaluator_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/unearth/pkg/evaluator"
	"github.com/datawire/unearth/pkg/fetcher"
	"github.com/datawire/unearth/pkg/link"
	"github.com/datawire/unearth/pkg/python/pep508"
)

func strPtr(s string) *string { return &s }

func cp39Target() *evaluator.TargetPython {
	return &evaluator.TargetPython{
		PyVer:     []int{3, 9},
		Impl:      "cp",
		ABIs:      []string{"cp39"},
		Platforms: []string{"manylinux2014_x86_64"},
	}
}

func TestEvaluateLink(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cutoff := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	type testcase struct {
		Evaluator     evaluator.Evaluator
		Link          *link.Link
		ExpectVersion string // empty means rejected
	}
	yanked := link.New("https://example.com/demo-0.2.tar.gz")
	yanked.YankReason = strPtr("broken")
	needsPy310 := link.New("https://example.com/demo-0.3.tar.gz")
	needsPy310.RequiresPython = ">=3.10"
	needsPy37 := link.New("https://example.com/demo-0.3.tar.gz")
	needsPy37.RequiresPython = ">=3.7"
	uploadedLate := link.New("https://example.com/demo-0.4.tar.gz")
	uploadedLate.UploadTime = time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	uploadedEarly := link.New("https://example.com/demo-0.4.tar.gz")
	uploadedEarly.UploadTime = time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)
	mustFormatControl := func(onlyBinary, noBinary []string) *evaluator.FormatControl {
		fc, err := evaluator.NewFormatControl(onlyBinary, noBinary)
		require.NoError(t, err)
		return fc
	}
	table := map[string]testcase{
		"sdist": {
			Evaluator:     evaluator.Evaluator{PackageName: "demo"},
			Link:          link.New("https://example.com/demo-0.1.tar.gz"),
			ExpectVersion: "0.1",
		},
		"sdist-normalized-name": {
			Evaluator:     evaluator.Evaluator{PackageName: "Demo.Pkg"},
			Link:          link.New("https://example.com/demo_pkg-1.0.zip"),
			ExpectVersion: "1.0",
		},
		"sdist-wrong-name": {
			Evaluator: evaluator.Evaluator{PackageName: "demo"},
			Link:      link.New("https://example.com/other-0.1.tar.gz"),
		},
		"sdist-no-version": {
			Evaluator: evaluator.Evaluator{PackageName: "demo"},
			Link:      link.New("https://example.com/demo.tar.gz"),
		},
		"sdist-bad-version": {
			Evaluator: evaluator.Evaluator{PackageName: "demo"},
			Link:      link.New("https://example.com/demo-foobar.tar.gz"),
		},
		"not-an-archive": {
			Evaluator: evaluator.Evaluator{PackageName: "demo"},
			Link:      link.New("https://example.com/demo-0.1.exe"),
		},
		"egg-fragment": {
			Evaluator:     evaluator.Evaluator{PackageName: "demo"},
			Link:          link.New("https://github.com/demo/archive/main.zip#egg=demo-0.1"),
			ExpectVersion: "0.1",
		},
		"egg-fragment-extras": {
			Evaluator:     evaluator.Evaluator{PackageName: "demo"},
			Link:          link.New("https://github.com/demo/archive/main.zip#egg=demo-0.1[security]"),
			ExpectVersion: "0.1",
		},
		"wheel-compatible": {
			Evaluator:     evaluator.Evaluator{PackageName: "demo", TargetPython: cp39Target()},
			Link:          link.New("https://example.com/demo-0.1-cp39-cp39-manylinux2014_x86_64.whl"),
			ExpectVersion: "0.1",
		},
		"wheel-universal": {
			Evaluator:     evaluator.Evaluator{PackageName: "demo", TargetPython: cp39Target()},
			Link:          link.New("https://example.com/demo-0.1-py3-none-any.whl"),
			ExpectVersion: "0.1",
		},
		"wheel-incompatible": {
			Evaluator: evaluator.Evaluator{PackageName: "demo", TargetPython: cp39Target()},
			Link:      link.New("https://example.com/demo-0.1-cp310-cp310-manylinux2014_x86_64.whl"),
		},
		"wheel-incompatible-ignored": {
			Evaluator: evaluator.Evaluator{
				PackageName:         "demo",
				TargetPython:        cp39Target(),
				IgnoreCompatibility: true,
			},
			Link:          link.New("https://example.com/demo-0.1-cp310-cp310-manylinux2014_x86_64.whl"),
			ExpectVersion: "0.1",
		},
		"wheel-wrong-name": {
			Evaluator: evaluator.Evaluator{PackageName: "demo"},
			Link:      link.New("https://example.com/other-0.1-py3-none-any.whl"),
		},
		"wheel-bad-filename": {
			Evaluator: evaluator.Evaluator{PackageName: "demo"},
			Link:      link.New("https://example.com/demo-0.1.whl"),
		},
		"yanked": {
			Evaluator: evaluator.Evaluator{PackageName: "demo"},
			Link:      yanked,
		},
		"yanked-allowed": {
			Evaluator:     evaluator.Evaluator{PackageName: "demo", AllowYanked: true},
			Link:          yanked,
			ExpectVersion: "0.2",
		},
		"requires-python-mismatch": {
			Evaluator: evaluator.Evaluator{PackageName: "demo", TargetPython: cp39Target()},
			Link:      needsPy310,
		},
		"requires-python-match": {
			Evaluator:     evaluator.Evaluator{PackageName: "demo", TargetPython: cp39Target()},
			Link:          needsPy37,
			ExpectVersion: "0.3",
		},
		"requires-python-unknown-target": {
			Evaluator:     evaluator.Evaluator{PackageName: "demo"},
			Link:          needsPy310,
			ExpectVersion: "0.3",
		},
		"requires-python-ignored": {
			Evaluator: evaluator.Evaluator{
				PackageName:         "demo",
				TargetPython:        cp39Target(),
				IgnoreCompatibility: true,
			},
			Link:          needsPy310,
			ExpectVersion: "0.3",
		},
		"upload-after-cutoff": {
			Evaluator: evaluator.Evaluator{PackageName: "demo", ExcludeNewerThan: cutoff},
			Link:      uploadedLate,
		},
		"upload-before-cutoff": {
			Evaluator:     evaluator.Evaluator{PackageName: "demo", ExcludeNewerThan: cutoff},
			Link:          uploadedEarly,
			ExpectVersion: "0.4",
		},
		"upload-unknown-with-cutoff": {
			Evaluator: evaluator.Evaluator{PackageName: "demo", ExcludeNewerThan: cutoff},
			Link:      link.New("https://example.com/demo-0.4.tar.gz"),
		},
		"no-binary": {
			Evaluator: evaluator.Evaluator{
				PackageName:   "demo",
				FormatControl: mustFormatControl(nil, []string{"demo"}),
			},
			Link: link.New("https://example.com/demo-0.1-py3-none-any.whl"),
		},
		"no-binary-all": {
			Evaluator: evaluator.Evaluator{
				PackageName:   "demo",
				FormatControl: mustFormatControl(nil, []string{evaluator.AllPackages}),
			},
			Link: link.New("https://example.com/demo-0.1-py3-none-any.whl"),
		},
		"only-binary": {
			Evaluator: evaluator.Evaluator{
				PackageName:   "demo",
				FormatControl: mustFormatControl([]string{"demo"}, nil),
			},
			Link: link.New("https://example.com/demo-0.1.tar.gz"),
		},
		"no-binary-name-overrides-only-binary-all": {
			Evaluator: evaluator.Evaluator{
				PackageName:   "demo",
				FormatControl: mustFormatControl([]string{evaluator.AllPackages}, []string{"demo"}),
			},
			Link:          link.New("https://example.com/demo-0.1.tar.gz"),
			ExpectVersion: "0.1",
		},
		"only-binary-other-package": {
			Evaluator: evaluator.Evaluator{
				PackageName:   "demo",
				FormatControl: mustFormatControl([]string{"other"}, nil),
			},
			Link:          link.New("https://example.com/demo-0.1.tar.gz"),
			ExpectVersion: "0.1",
		},
	}
	for tcName, tc := range table {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			pkg := tc.Evaluator.EvaluateLink(ctx, tc.Link)
			if tc.ExpectVersion == "" {
				assert.Nil(t, pkg)
			} else {
				require.NotNil(t, pkg)
				require.NotNil(t, pkg.Version)
				assert.Equal(t, tc.ExpectVersion, pkg.Version.String())
				assert.Equal(t, tc.Evaluator.PackageName, pkg.Name)
			}
		})
	}
}

func TestEvaluateSdistLooseFilename(t *testing.T) {
	// t.Setenv is incompatible with t.Parallel.
	ctx := context.Background()
	e := evaluator.Evaluator{PackageName: "demo"}
	legacy := link.New("https://example.com/demo-0.1-1.tar.gz")

	assert.Nil(t, e.EvaluateLink(ctx, legacy))

	t.Setenv(evaluator.LooseFilenameEnv, "1")
	pkg := e.EvaluateLink(ctx, legacy)
	require.NotNil(t, pkg)
	assert.Equal(t, "0.1.post1", pkg.Version.String())
}

func TestNewFormatControlConflict(t *testing.T) {
	t.Parallel()
	_, err := evaluator.NewFormatControl([]string{"Demo.Pkg"}, []string{"demo-pkg"})
	assert.Error(t, err)

	_, err = evaluator.NewFormatControl([]string{evaluator.AllPackages}, []string{evaluator.AllPackages})
	assert.Error(t, err)

	fc, err := evaluator.NewFormatControl([]string{"demo"}, []string{"other"})
	require.NoError(t, err)
	assert.True(t, fc.AllowsBinary("demo"))
	assert.False(t, fc.AllowsSource("demo"))
	assert.False(t, fc.AllowsBinary("other"))
	assert.True(t, fc.AllowsSource("other"))
}

func TestFormatControlPrecedence(t *testing.T) {
	t.Parallel()

	// A per-name entry overrides the :all: sentinel of the opposite set.
	fc, err := evaluator.NewFormatControl([]string{evaluator.AllPackages}, []string{"demo"})
	require.NoError(t, err)
	assert.True(t, fc.AllowsSource("demo"))
	assert.False(t, fc.AllowsBinary("demo"))
	assert.False(t, fc.AllowsSource("other"))
	assert.True(t, fc.AllowsBinary("other"))

	fc, err = evaluator.NewFormatControl([]string{"demo"}, []string{evaluator.AllPackages})
	require.NoError(t, err)
	assert.False(t, fc.AllowsSource("demo"))
	assert.True(t, fc.AllowsBinary("demo"))
	assert.True(t, fc.AllowsSource("other"))
	assert.False(t, fc.AllowsBinary("other"))
}

func TestEvaluatePackage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := evaluator.Evaluator{PackageName: "demo"}
	pkg10 := e.EvaluateLink(ctx, link.New("https://example.com/demo-1.0.tar.gz"))
	require.NotNil(t, pkg10)
	pkg20a1 := e.EvaluateLink(ctx, link.New("https://example.com/demo-2.0a1.tar.gz"))
	require.NotNil(t, pkg20a1)
	directURL := evaluator.Package{
		Name: "demo",
		Link: link.New("https://example.com/demo.zip"),
	}
	mustReq := func(s string) *pep508.Requirement {
		req, err := pep508.ParseRequirement(s)
		require.NoError(t, err)
		return req
	}
	boolPtr := func(b bool) *bool { return &b }

	assert.True(t, evaluator.EvaluatePackage(ctx, *pkg10, mustReq("demo>=0.5"), nil))
	assert.False(t, evaluator.EvaluatePackage(ctx, *pkg10, mustReq("demo>=2.0"), nil))
	assert.False(t, evaluator.EvaluatePackage(ctx, *pkg10, mustReq("other>=0.5"), nil))

	// Pre-releases are excluded by default, included on request or when
	// the specifier itself mentions one.
	assert.False(t, evaluator.EvaluatePackage(ctx, *pkg20a1, mustReq("demo>=1.0"), nil))
	assert.True(t, evaluator.EvaluatePackage(ctx, *pkg20a1, mustReq("demo>=1.0"), boolPtr(true)))
	assert.True(t, evaluator.EvaluatePackage(ctx, *pkg20a1, mustReq("demo>=2.0a1"), nil))

	// A direct-URL package has no version to check.
	assert.True(t, evaluator.EvaluatePackage(ctx, directURL, mustReq("demo>=99.0"), nil))
}

func TestValidateHashes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	content := []byte("demo archive contents")
	sum := sha256.Sum256(content)
	digest := hex.EncodeToString(sum[:])

	dir := t.TempDir()
	path := filepath.Join(dir, "demo-0.1.tar.gz")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	t.Run("no-hashes", func(t *testing.T) {
		t.Parallel()
		pkg := evaluator.Package{Name: "demo", Link: link.New("https://example.com/demo-0.1.tar.gz")}
		ok, err := evaluator.ValidateHashes(ctx, pkg, nil, &fetcher.Session{})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("advertised-match", func(t *testing.T) {
		t.Parallel()
		l := link.New("https://example.com/demo-0.1.tar.gz")
		l.Hashes = map[string]string{"sha256": digest}
		pkg := evaluator.Package{Name: "demo", Link: l}
		ok, err := evaluator.ValidateHashes(ctx, pkg,
			map[string][]string{"sha256": {digest}}, &fetcher.Session{})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("advertised-mismatch", func(t *testing.T) {
		t.Parallel()
		l := link.New("https://example.com/demo-0.1.tar.gz")
		l.Hashes = map[string]string{"sha256": "0000"}
		pkg := evaluator.Package{Name: "demo", Link: l}
		ok, err := evaluator.ValidateHashes(ctx, pkg,
			map[string][]string{"sha256": {digest}}, &fetcher.Session{})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("advertised-other-algorithm", func(t *testing.T) {
		t.Parallel()
		// A digest under a non-requested algorithm decides nothing; the
		// file is downloaded and hashed with a requested one.
		l := link.FromPath(path)
		l.Hashes = map[string]string{"md5": "ffff"}
		pkg := evaluator.Package{Name: "demo", Link: l}
		ok, err := evaluator.ValidateHashes(ctx, pkg,
			map[string][]string{"sha256": {digest}}, &fetcher.Session{})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("computed", func(t *testing.T) {
		t.Parallel()
		l := link.FromPath(path)
		pkg := evaluator.Package{Name: "demo", Link: l}
		ok, err := evaluator.ValidateHashes(ctx, pkg,
			map[string][]string{"sha256": {digest}}, &fetcher.Session{})
		require.NoError(t, err)
		assert.True(t, ok)

		// The computed digest is cached on the link.
		assert.Equal(t, map[string][]string{"sha256": {digest}}, l.HashOption())
	})
}
