// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package fetcher is the HTTP transport that link collection talks through:
// a narrow Get/Head/stream interface, plus the secure-origin policy that
// decides which locations may be fetched at all.
//
// Retries on transient server errors, TLS trust, and connection pooling are
// this package's business; nothing above it re-implements them.
package fetcher

import (
	"context"
	"io"
	"net/http"
)

// Response is what the collector needs from an HTTP (or file) response.
type Response interface {
	// StatusCode is the HTTP status code; file responses synthesize 200/404.
	StatusCode() int
	// ReasonPhrase is the status text accompanying the code.
	ReasonPhrase() string
	// Header does a case-insensitive header lookup.
	Header(name string) string
	// URL is the final URL after any redirects.
	URL() string
	// Content reads the full body; it may only be called once.
	Content() ([]byte, error)
	// Body is the raw body stream for incremental consumption; the caller
	// closes it (Close on the Response does so too).
	Body() io.Reader
	// Close releases the underlying connection or file handle.
	Close() error
}

// Fetcher is the transport collaborator used by link collection and hash
// validation.
type Fetcher interface {
	Get(ctx context.Context, url string, headers http.Header) (Response, error)
	Head(ctx context.Context, url string, headers http.Header) (Response, error)
	// GetStream is Get without buffering; the caller must Close the
	// returned Response.
	GetStream(ctx context.Context, url string, headers http.Header) (Response, error)
	// SecureOrigins enumerates the (scheme, host, port) triples that may be
	// fetched; see IsSecureOrigin.
	SecureOrigins() []Origin
}
