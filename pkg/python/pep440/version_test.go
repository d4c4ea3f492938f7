// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pep440_test

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/unearth/pkg/python/pep440"
)

func TestSort(t *testing.T) {
	t.Parallel()
	testcases := map[string][]string{
		"final-releases": {
			"0.9",
			"0.9.1",
			"0.9.2",
			"0.9.10",
			"0.9.11",
			"1.0",
			"1.0.1",
			"1.1",
			"2.0",
		},
		"pre-releases": {
			"4.3a2",
			"4.3b2",
			"4.3rc2",
			"4.3",
		},
		"version-epochs": {
			"2013.10",
			"2014.04",
			"1!1.0",
			"1!1.1",
			"1!2.0",
		},
		"suffixes-and-relative-ordering": {
			"1.0.dev456",
			"1.0a1",
			"1.0a2.dev456",
			"1.0a12.dev456",
			"1.0a12",
			"1.0b1.dev456",
			"1.0b2",
			"1.0b2.post345.dev456",
			"1.0b2.post345",
			"1.0rc1.dev456",
			"1.0rc1",
			"1.0",
			"1.0+abc.5",
			"1.0+abc.7",
			"1.0+5",
			"1.0.post456.dev34",
			"1.0.post456",
			"1.1.dev1",
		},
	}
	for tcName, expectedStrs := range testcases {
		expectedStrs := expectedStrs
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			expected := make([]pep440.Version, len(expectedStrs))
			for i, str := range expectedStrs {
				ver, err := pep440.ParseVersion(str)
				require.NoError(t, err)
				expected[i] = *ver
			}

			actual := make([]pep440.Version, len(expected))
			copy(actual, expected)
			rand.Shuffle(len(actual), func(i, j int) {
				actual[i], actual[j] = actual[j], actual[i]
			})
			sort.SliceStable(actual, func(i, j int) bool {
				return actual[i].Cmp(actual[j]) < 0
			})

			assert.Equal(t, expected, actual)
		})
	}
}

func TestParseVersion(t *testing.T) {
	t.Parallel()
	// input => canonical form; "" means parse error
	testcases := map[string]string{
		"1.0":            "1.0",
		"v1.0":           "1.0",
		"  1.0  ":        "1.0",
		"1.0.alpha1":     "1.0a1",
		"1.0beta2":       "1.0b2",
		"1.0-c3":         "1.0rc3",
		"1.0preview4":    "1.0rc4",
		"1.0-pre5":       "1.0rc5",
		"1.0post":        "1.0.post0",
		"1.0-rev6":       "1.0.post6",
		"1.0-7":          "1.0.post7",
		"1.0dev":         "1.0.dev0",
		"1!2.3.DEV4":     "1!2.3.dev4",
		"1.0+Ubuntu-1":   "1.0+ubuntu.1",
		"1.0+2020.01":    "1.0+2020.1",
		"01.002.003":     "1.2.3",
		"not-a-version":  "",
		"1.0+":           "",
		"1.0.post1.dev":  "1.0.post1.dev0",
		"1.0.dev1.post1": "",
	}
	for input, expected := range testcases {
		input := input
		expected := expected
		t.Run(input, func(t *testing.T) {
			t.Parallel()
			ver, err := pep440.ParseVersion(input)
			if expected == "" {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, expected, ver.String())
		})
	}
}

func TestIsPreRelease(t *testing.T) {
	t.Parallel()
	assert.True(t, pep440.MustParseVersion("1.0a1").IsPreRelease())
	assert.True(t, pep440.MustParseVersion("1.0.dev3").IsPreRelease())
	assert.False(t, pep440.MustParseVersion("1.0").IsPreRelease())
	assert.False(t, pep440.MustParseVersion("1.0.post1").IsPreRelease())
	assert.True(t, pep440.MustParseVersion("1.0.post1").IsPostRelease())
	assert.True(t, pep440.MustParseVersion("1.0+local").IsLocal())
}
