// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package collector turns a source location (simple index page, JSON feed,
// or find-links path) into the candidate links it advertises.
//
// Collection failures are never fatal: every error degrades to "no links
// from this location" with a logged warning, because one bad source must not
// abort a query that other sources can still answer.
package collector

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/unearth/pkg/fetcher"
	"github.com/datawire/unearth/pkg/link"
)

// SupportedContentTypes are the index page types this package understands,
// in no particular order; see AcceptHeader for the preference order.
var SupportedContentTypes = []string{
	"text/html",
	"application/vnd.pypi.simple.v1+html",
	"application/vnd.pypi.simple.v1+json",
}

// AcceptHeader expresses the content-type preference order: the JSON API
// first, then versioned HTML, then plain HTML as a last resort.
const AcceptHeader = "application/vnd.pypi.simple.v1+json, " +
	"application/vnd.pypi.simple.v1+html; q=0.1, " +
	"text/html; q=0.01"

// ErrorKind classifies a collection failure.
type ErrorKind int

const (
	// KindClientError is a 4xx response.
	KindClientError ErrorKind = iota
	// KindServerError is a 5xx response.
	KindServerError
	// KindUnsupportedContentType is a response that is not one of the
	// supported index page types.
	KindUnsupportedContentType
	// KindVCSLink is an attempt to fetch a VCS link as an index page.
	KindVCSLink
)

// Error is a collection failure; callers absorb it rather than propagate it.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// IndexPage is a fetched index page, ready to parse.
type IndexPage struct {
	// Link is the page's own location (after redirects), the base for
	// relative hrefs.
	Link        *link.Link
	Content     []byte
	ContentType string
}

// Collect gathers candidate links from a location:
//
//   - a local regular file is parsed as an index page if it looks like HTML,
//     else yielded directly as a single link;
//   - a local directory is searched for an index.html to parse, unless
//     expand is set, in which case every direct child is yielded (children
//     that look like HTML files are parsed as index pages instead); it does
//     not descend into subdirectories;
//   - a remote location is yielded itself as a candidate and then fetched
//     and parsed as an index page, if its origin is trusted.
func Collect(ctx context.Context, f fetcher.Fetcher, location *link.Link, expand bool) []*link.Link {
	dlog.Debugf(ctx, "Collecting links from %s", location.Redacted())
	if location.IsFile() {
		path := location.FilePath()
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			if !expand {
				index := link.FromPath(filepath.Join(path, "index.html"))
				return collectFromIndex(ctx, f, index)
			}
			entries, err := os.ReadDir(path)
			if err != nil {
				dlog.Warnf(ctx, "Failed to list find-links directory %s: %v", path, err)
				return nil
			}
			var ret []*link.Link
			for _, entry := range entries {
				child := link.FromPath(filepath.Join(path, entry.Name()))
				if !entry.IsDir() && isHTMLFile(entry.Name()) {
					ret = append(ret, collectFromIndex(ctx, f, child)...)
				} else {
					ret = append(ret, child)
				}
			}
			return ret
		}
		if isHTMLFile(path) {
			return collectFromIndex(ctx, f, location)
		}
		return []*link.Link{location}
	}

	var ret []*link.Link
	if !location.IsVCS() && fetcher.IsSecureOrigin(f.SecureOrigins(), location) {
		ret = append(ret, location)
	}
	ret = append(ret, collectFromIndex(ctx, f, location)...)
	return ret
}

func collectFromIndex(ctx context.Context, f fetcher.Fetcher, location *link.Link) []*link.Link {
	if !fetcher.IsSecureOrigin(f.SecureOrigins(), location) {
		dlog.Warnf(ctx, "Skipping %s for not being trusted, "+
			"please add it to the trusted hosts list", location.Redacted())
		return nil
	}
	page, err := FetchPage(ctx, f, location)
	if err != nil {
		dlog.Warnf(ctx, "Failed to collect links from %s: %v", location.Redacted(), err)
		return nil
	}
	if strings.HasPrefix(strings.ToLower(page.ContentType), "application/vnd.pypi.simple.v1+json") {
		links, err := ParseJSONPage(page)
		if err != nil {
			dlog.Warnf(ctx, "Failed to parse JSON index page %s: %v", location.Redacted(), err)
			return nil
		}
		return links
	}
	links, err := ParseHTMLPage(page)
	if err != nil {
		dlog.Warnf(ctx, "Failed to parse index page %s: %v", location.Redacted(), err)
		return nil
	}
	return links
}

// FetchPage fetches an index page, with a HEAD probe first when the URL
// itself looks like an archive, so that a multi-hundred-megabyte file is not
// pulled just to find out it is not an index page.
func FetchPage(ctx context.Context, f fetcher.Fetcher, location *link.Link) (*IndexPage, error) {
	if location.IsVCS() {
		return nil, &Error{Kind: KindVCSLink, Msg: "it is a VCS link"}
	}
	if link.IsArchiveFile(location.Filename()) {
		if err := ensureIndexResponse(ctx, f, location); err != nil {
			return nil, err
		}
	}
	headers := http.Header{}
	headers.Set("Accept", AcceptHeader)
	// The project page must reflect a new upload immediately.
	headers.Set("Cache-Control", "max-age=0")
	resp, err := f.Get(ctx, location.Normalized(), headers)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		_ = resp.Close()
		return nil, err
	}
	if err := checkContentType(resp); err != nil {
		_ = resp.Close()
		return nil, err
	}
	content, err := resp.Content()
	if err != nil {
		return nil, err
	}
	pageURL := resp.URL()
	if pageURL == "" {
		pageURL = location.Normalized()
	}
	dlog.Debugf(ctx, "Fetched index page %s", location.Redacted())
	return &IndexPage{
		Link:        link.New(pageURL),
		Content:     content,
		ContentType: resp.Header("Content-Type"),
	}, nil
}

// ensureIndexResponse issues a HEAD request and checks that the response
// looks like an index page.
func ensureIndexResponse(ctx context.Context, f fetcher.Fetcher, location *link.Link) error {
	switch location.Scheme() {
	case "http", "https":
	default:
		return &Error{
			Kind: KindUnsupportedContentType,
			Msg: "the file looks like an archive but its content-type " +
				"cannot be checked by a HEAD request",
		}
	}
	resp, err := f.Head(ctx, location.URLWithoutFragment(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Close() }()
	if err := checkStatus(resp); err != nil {
		return err
	}
	return checkContentType(resp)
}

func checkStatus(resp fetcher.Response) error {
	code := resp.StatusCode()
	switch {
	case code >= 400 && code < 500:
		return &Error{Kind: KindClientError, Msg: fmt.Sprintf("Client Error(%d): %s", code, resp.ReasonPhrase())}
	case code >= 500 && code < 600:
		return &Error{Kind: KindServerError, Msg: fmt.Sprintf("Server Error(%d): %s", code, resp.ReasonPhrase())}
	}
	return nil
}

func checkContentType(resp fetcher.Response) error {
	contentType := resp.Header("Content-Type")
	if contentType == "" {
		contentType = "Unknown"
	}
	lower := strings.ToLower(contentType)
	for _, supported := range SupportedContentTypes {
		if strings.HasPrefix(lower, supported) {
			return nil
		}
	}
	return &Error{
		Kind: KindUnsupportedContentType,
		Msg: fmt.Sprintf("Content-Type unsupported: %s. The only supported are %s",
			contentType, strings.Join(SupportedContentTypes, ", ")),
	}
}

func isHTMLFile(name string) bool {
	contentType := mime.TypeByExtension(filepath.Ext(name))
	return strings.HasPrefix(contentType, "text/html")
}
