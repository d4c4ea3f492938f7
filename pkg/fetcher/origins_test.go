// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package fetcher_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/datawire/unearth/pkg/fetcher"
	"github.com/datawire/unearth/pkg/link"
)

func TestIsSecureOrigin(t *testing.T) {
	t.Parallel()
	type TestCase struct {
		URL      string
		Trusted  []string
		Expected bool
	}
	testcases := map[string]TestCase{
		"https-anywhere":      {URL: "https://pypi.org/simple/", Expected: true},
		"http-rejected":       {URL: "http://pypi.org/simple/", Expected: false},
		"http-localhost":      {URL: "http://localhost:8080/simple/", Expected: true},
		"http-loopback":       {URL: "http://127.0.0.1/simple/", Expected: true},
		"http-loopback-range": {URL: "http://127.1.2.3/simple/", Expected: true},
		"http-ipv6-loopback":  {URL: "http://[::1]:3141/simple/", Expected: true},
		"file-anywhere":       {URL: "file:///srv/wheels/", Expected: true},
		"vcs-https":           {URL: "git+https://github.com/pypa/pip.git", Expected: true},
		"vcs-git-protocol":    {URL: "git+git://github.com/pypa/pip.git", Expected: false},
		"trusted-host": {
			URL:      "http://internal.example.com/simple/",
			Trusted:  []string{"internal.example.com"},
			Expected: true,
		},
		"trusted-host-port-match": {
			URL:      "http://internal.example.com:8080/simple/",
			Trusted:  []string{"internal.example.com:8080"},
			Expected: true,
		},
		"trusted-host-port-mismatch": {
			URL:      "http://internal.example.com:9090/simple/",
			Trusted:  []string{"internal.example.com:8080"},
			Expected: false,
		},
		"trusted-host-any-port": {
			URL:      "http://internal.example.com:9090/simple/",
			Trusted:  []string{"internal.example.com"},
			Expected: true,
		},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			origins := fetcher.DefaultSecureOrigins
			for _, host := range tc.Trusted {
				origins = append(origins, fetcher.TrustedHostOrigin(host))
			}
			assert.Equal(t, tc.Expected, fetcher.IsSecureOrigin(origins, link.New(tc.URL)))
		})
	}
}
