// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package fetcher

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/datawire/unearth/pkg/link"
)

const DefaultMaxRetries = 5

// Session is the default Fetcher: a retrying HTTP client that serves file:
// URLs from local disk, skips TLS verification for explicitly trusted hosts,
// and exposes the secure-origin allow-list assembled from the defaults plus
// those trusted hosts.
type Session struct {
	// UserAgent is sent on every request; a default is filled in if empty.
	UserAgent string
	// MaxRetries bounds transport-level retries on connection failures and
	// 5xx responses; DefaultMaxRetries if zero.
	MaxRetries int
	// TrustedHosts ("host" or "host:port") are fetched without TLS
	// verification and treated as secure origins on any scheme.
	TrustedHosts []string

	secureClient   *retryablehttp.Client
	insecureClient *retryablehttp.Client
}

var _ Fetcher = (*Session)(nil)

func newRetryClient(retries int, insecure bool) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = retries
	client.RetryWaitMin = 250 * time.Millisecond
	client.RetryWaitMax = 4 * time.Second
	client.Logger = nil
	if insecure {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // trusted-host opt-in
		client.HTTPClient.Transport = transport
	}
	return client
}

func (s *Session) fillDefaults() {
	if s.UserAgent == "" {
		s.UserAgent = "github.com/datawire/unearth"
	}
	if s.MaxRetries == 0 {
		s.MaxRetries = DefaultMaxRetries
	}
	if s.secureClient == nil {
		s.secureClient = newRetryClient(s.MaxRetries, false)
	}
	if s.insecureClient == nil {
		s.insecureClient = newRetryClient(s.MaxRetries, true)
	}
}

// SecureOrigins implements Fetcher.
func (s *Session) SecureOrigins() []Origin {
	ret := make([]Origin, 0, len(DefaultSecureOrigins)+len(s.TrustedHosts))
	ret = append(ret, DefaultSecureOrigins...)
	for _, host := range s.TrustedHosts {
		ret = append(ret, TrustedHostOrigin(host))
	}
	return ret
}

func (s *Session) isTrustedHost(hostport string) bool {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = hostport, ""
	}
	for _, trusted := range s.TrustedHosts {
		tHost, tPort, err := net.SplitHostPort(trusted)
		if err != nil {
			tHost, tPort = trusted, ""
		}
		if tHost != host {
			continue
		}
		if tPort == "" || tPort == port {
			return true
		}
	}
	return false
}

func (s *Session) clientFor(url string) *retryablehttp.Client {
	l := link.New(url)
	if s.isTrustedHost(l.Parsed().Host) {
		return s.insecureClient
	}
	return s.secureClient
}

func (s *Session) do(ctx context.Context, method, url string, headers http.Header) (Response, error) {
	s.fillDefaults()
	if link.New(url).IsFile() {
		return newFileResponse(url), nil
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	for name, values := range headers {
		for _, value := range values {
			req.Header.Add(name, value)
		}
	}
	req.Header.Set("User-Agent", s.UserAgent)
	resp, err := s.clientFor(url).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", method, link.New(url).Redacted(), err)
	}
	return &httpResponse{inner: resp}, nil
}

// Get implements Fetcher.
func (s *Session) Get(ctx context.Context, url string, headers http.Header) (Response, error) {
	return s.do(ctx, http.MethodGet, url, headers)
}

// Head implements Fetcher.
func (s *Session) Head(ctx context.Context, url string, headers http.Header) (Response, error) {
	return s.do(ctx, http.MethodHead, url, headers)
}

// GetStream implements Fetcher.  The bodies returned by Get and GetStream
// are the same thing under the hood; the distinct method exists so callers
// express intent, and so testing fakes can tell bulk fetches from streamed
// ones.
func (s *Session) GetStream(ctx context.Context, url string, headers http.Header) (Response, error) {
	return s.do(ctx, http.MethodGet, url, headers)
}

type httpResponse struct {
	inner *http.Response
}

func (r *httpResponse) StatusCode() int { return r.inner.StatusCode }

func (r *httpResponse) ReasonPhrase() string {
	status := r.inner.Status
	// "200 OK" -> "OK"
	if len(status) > 4 {
		return status[4:]
	}
	return http.StatusText(r.inner.StatusCode)
}

func (r *httpResponse) Header(name string) string { return r.inner.Header.Get(name) }

func (r *httpResponse) URL() string {
	if r.inner.Request != nil && r.inner.Request.URL != nil {
		return r.inner.Request.URL.String()
	}
	return ""
}

func (r *httpResponse) Content() ([]byte, error) {
	defer r.inner.Body.Close()
	return io.ReadAll(r.inner.Body)
}

func (r *httpResponse) Body() io.Reader { return r.inner.Body }

func (r *httpResponse) Close() error { return r.inner.Body.Close() }

// fileResponse adapts a local file to the Response interface, so that
// file: index pages and archives flow through the same code path as remote
// ones.
type fileResponse struct {
	url    string
	path   string
	status int
	reason string
	file   *os.File
}

func newFileResponse(url string) *fileResponse {
	ret := &fileResponse{
		url:    url,
		path:   link.New(url).FilePath(),
		status: http.StatusOK,
		reason: http.StatusText(http.StatusOK),
	}
	file, err := os.Open(ret.path)
	if err != nil {
		ret.status = http.StatusNotFound
		ret.reason = err.Error()
		return ret
	}
	ret.file = file
	return ret
}

func (r *fileResponse) StatusCode() int      { return r.status }
func (r *fileResponse) ReasonPhrase() string { return r.reason }
func (r *fileResponse) URL() string          { return r.url }

func (r *fileResponse) Header(name string) string {
	if http.CanonicalHeaderKey(name) != "Content-Type" {
		return ""
	}
	contentType := mime.TypeByExtension(filepath.Ext(r.path))
	if contentType == "" {
		contentType = "text/plain"
	}
	return contentType
}

func (r *fileResponse) Content() ([]byte, error) {
	if r.file == nil {
		return nil, &os.PathError{Op: "open", Path: r.path, Err: os.ErrNotExist}
	}
	defer r.file.Close()
	return io.ReadAll(r.file)
}

func (r *fileResponse) Body() io.Reader {
	if r.file == nil {
		return bytes.NewReader(nil)
	}
	return r.file
}

func (r *fileResponse) Close() error {
	if r.file == nil {
		return nil
	}
	return r.file.Close()
}
