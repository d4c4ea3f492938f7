// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pep508_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/unearth/pkg/python/pep508"
)

func TestParseRequirement(t *testing.T) {
	t.Parallel()
	type TestCase struct {
		Input     string
		Name      string
		Extras    []string
		Specifier string
		URL       string
		Marker    string
	}
	testcases := map[string]TestCase{
		"bare-name": {
			Input: "requests",
			Name:  "requests",
		},
		"with-specifier": {
			Input:     "requests>=2.8.1,==2.8.*",
			Name:      "requests",
			Specifier: ">=2.8.1,==2.8.*",
		},
		"with-extras": {
			Input:     "requests[security,socks]>=2.8.1",
			Name:      "requests",
			Extras:    []string{"security", "socks"},
			Specifier: ">=2.8.1",
		},
		"parenthesized": {
			Input:     "requests (>=2.8.1)",
			Name:      "requests",
			Specifier: ">=2.8.1",
		},
		"direct-url": {
			Input: "pip @ https://github.com/pypa/pip/archive/1.3.1.zip",
			Name:  "pip",
			URL:   "https://github.com/pypa/pip/archive/1.3.1.zip",
		},
		"with-marker": {
			Input:     `requests>=2.8.1; python_version < "3.11"`,
			Name:      "requests",
			Specifier: ">=2.8.1",
			Marker:    `python_version < "3.11"`,
		},
		"spaces": {
			Input:     "  requests >= 2.8.1 ",
			Name:      "requests",
			Specifier: ">=2.8.1",
		},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			req, err := pep508.ParseRequirement(tc.Input)
			require.NoError(t, err)
			assert.Equal(t, tc.Name, req.Name)
			assert.Equal(t, tc.Extras, req.Extras)
			assert.Equal(t, tc.Specifier, req.Specifier.String())
			assert.Equal(t, tc.URL, req.URL)
			assert.Equal(t, tc.Marker, req.Marker)
		})
	}
}

func TestParseRequirementErrors(t *testing.T) {
	t.Parallel()
	for _, str := range []string{
		"",
		"name @",
		"requests >=bogus",
	} {
		str := str
		t.Run(str, func(t *testing.T) {
			t.Parallel()
			_, err := pep508.ParseRequirement(str)
			assert.Error(t, err)
		})
	}
}

func TestCanonicalName(t *testing.T) {
	t.Parallel()
	req, err := pep508.ParseRequirement("Flask_SQLAlchemy>=2.0")
	require.NoError(t, err)
	assert.Equal(t, "flask-sqlalchemy", req.CanonicalName())
}
