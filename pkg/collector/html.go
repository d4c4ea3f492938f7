// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/datawire/unearth/pkg/htmlutil"
	"github.com/datawire/unearth/pkg/link"
)

// ParseHTMLPage parses a PEP 503 simple index page: every <a href> becomes a
// link, resolved against the first <base href> if the page has one, else the
// page's own URL.
func ParseHTMLPage(page *IndexPage) ([]*link.Link, error) {
	doc, err := html.Parse(bytes.NewReader(page.Content))
	if err != nil {
		return nil, err
	}

	baseURL, err := url.Parse(page.Link.URLWithoutFragment())
	if err != nil {
		return nil, err
	}
	sawBase := false
	var links []*link.Link
	_ = htmlutil.Visit(doc, func(node *html.Node) error {
		switch {
		case htmlutil.IsElement(node, "base") && !sawBase:
			if href, ok := htmlutil.Attr(node, "href"); ok {
				if resolved, err := baseURL.Parse(href); err == nil {
					baseURL = resolved
					sawBase = true
				}
			}
		case htmlutil.IsElement(node, "a"):
			href, ok := htmlutil.Attr(node, "href")
			if !ok {
				return nil
			}
			resolved, err := baseURL.Parse(href)
			if err != nil {
				return nil //nolint:nilerr // skip unparseable hrefs, keep the rest
			}
			links = append(links, anchorToLink(node, resolved.String(), baseURL.String()))
		}
		return nil
	})
	return links, nil
}

func anchorToLink(node *html.Node, resolvedURL, baseURL string) *link.Link {
	l := link.New(resolvedURL)
	l.ComesFrom = baseURL
	if requiresPython, ok := htmlutil.Attr(node, "data-requires-python"); ok {
		l.RequiresPython = requiresPython
	}
	// Attribute presence marks the link yanked, even with an empty value;
	// the value is the reason.
	if reason, ok := htmlutil.Attr(node, "data-yanked"); ok {
		l.YankReason = &reason
	}
	metadata, ok := htmlutil.Attr(node, "data-core-metadata")
	if !ok {
		metadata, ok = htmlutil.Attr(node, "data-dist-info-metadata")
	}
	if ok && metadata != "" {
		if name, digest, hasHash := strings.Cut(metadata, "="); hasHash {
			l.MetadataHashes = map[string]string{name: digest}
		} else {
			l.MetadataHashes = map[string]string{}
		}
	}
	return l
}
