// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"net/url"

	"github.com/datawire/unearth/pkg/link"
	"github.com/datawire/unearth/pkg/python/pep691"
)

// ParseJSONPage parses a PEP 691 project detail page into links.
func ParseJSONPage(page *IndexPage) ([]*link.Link, error) {
	detail, err := pep691.ParseProjectDetail(page.Content)
	if err != nil {
		return nil, err
	}
	baseURL, err := url.Parse(page.Link.URLWithoutFragment())
	if err != nil {
		return nil, err
	}
	links := make([]*link.Link, 0, len(detail.Files))
	for _, file := range detail.Files {
		if file.URL == "" {
			continue
		}
		resolved, err := baseURL.Parse(file.URL)
		if err != nil {
			continue
		}
		l := link.New(resolved.String())
		l.ComesFrom = baseURL.String()
		l.RequiresPython = file.RequiresPython
		l.YankReason = file.Yanked.Reason
		l.Hashes = file.Hashes
		l.MetadataHashes = file.MetadataHashes()
		if file.UploadTime != nil {
			l.UploadTime = file.UploadTime.Time
		}
		links = append(links, l)
	}
	return links, nil
}
