// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package bdist_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/unearth/pkg/python/pep425"
	"github.com/datawire/unearth/pkg/python/pep440"
	"github.com/datawire/unearth/pkg/python/pypa/bdist"
)

func TestParseFilename(t *testing.T) {
	t.Parallel()
	type TestCase struct {
		Filename string
		Expected *bdist.FileNameData // nil means parse error
	}
	testcases := map[string]TestCase{
		"simple": {
			Filename: "pip-21.0-py3-none-any.whl",
			Expected: &bdist.FileNameData{
				Distribution:     "pip",
				Version:          pep440.MustParseVersion("21.0"),
				CompatibilityTag: pep425.Tag{Python: "py3", ABI: "none", Platform: "any"},
			},
		},
		"compressed-tags": {
			Filename: "six-1.16.0-py2.py3-none-any.whl",
			Expected: &bdist.FileNameData{
				Distribution:     "six",
				Version:          pep440.MustParseVersion("1.16.0"),
				CompatibilityTag: pep425.Tag{Python: "py2.py3", ABI: "none", Platform: "any"},
			},
		},
		"platform-wheel": {
			Filename: "cryptography-36.0.1-cp36-abi3-manylinux_2_24_x86_64.whl",
			Expected: &bdist.FileNameData{
				Distribution:     "cryptography",
				Version:          pep440.MustParseVersion("36.0.1"),
				CompatibilityTag: pep425.Tag{Python: "cp36", ABI: "abi3", Platform: "manylinux_2_24_x86_64"},
			},
		},
		"build-tag": {
			Filename: "demo-1.0-2b1-py3-none-any.whl",
			Expected: &bdist.FileNameData{
				Distribution:     "demo",
				Version:          pep440.MustParseVersion("1.0"),
				BuildTag:         &bdist.BuildTag{Int: 2, Str: "b1"},
				CompatibilityTag: pep425.Tag{Python: "py3", ABI: "none", Platform: "any"},
			},
		},
		"not-a-wheel": {
			Filename: "pip-21.0.tar.gz",
		},
		"too-few-parts": {
			Filename: "pip-21.0-py3.whl",
		},
		"bad-version": {
			Filename: "pip-not.a.version-py3-none-any.whl",
		},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			actual, err := bdist.ParseFilename(tc.Filename)
			if tc.Expected == nil {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.Expected, actual)

			// Parsing its own generated form is a fixed point.
			assert.Equal(t, tc.Filename, bdist.GenerateFilename(*actual))
		})
	}
}

func TestBuildTagCmp(t *testing.T) {
	t.Parallel()
	one := &bdist.BuildTag{Int: 1}
	two := &bdist.BuildTag{Int: 2}
	twoB := &bdist.BuildTag{Int: 2, Str: "b"}
	assert.Equal(t, 0, (*bdist.BuildTag)(nil).Cmp(nil))
	assert.Negative(t, (*bdist.BuildTag)(nil).Cmp(one))
	assert.Positive(t, two.Cmp(one))
	assert.Negative(t, two.Cmp(twoB))
}
