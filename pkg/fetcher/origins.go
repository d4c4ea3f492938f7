// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package fetcher

import (
	"net"
	"strconv"

	"github.com/datawire/unearth/pkg/link"
)

// Origin is an entry in the secure-origin allow-list.  Each component may be
// a literal or the wildcard "*"; Host may also be a CIDR network.
type Origin struct {
	Scheme string
	Host   string
	Port   string
}

// DefaultSecureOrigins is the built-in allow-list: anything over TLS, any
// scheme against the local host, and local files.
var DefaultSecureOrigins = []Origin{
	{"https", "*", "*"},
	{"wss", "*", "*"},
	{"*", "localhost", "*"},
	{"*", "127.0.0.0/8", "*"},
	{"*", "::1/128", "*"},
	{"file", "*", "*"},
}

func matchOriginPart(allowed, actual string) bool {
	return allowed == "*" || allowed == actual
}

func (o Origin) match(scheme, host, port string) bool {
	if !matchOriginPart(o.Scheme, scheme) {
		return false
	}
	addr := net.ParseIP(host)
	_, network, err := net.ParseCIDR(o.Host)
	if addr == nil || err != nil {
		// Either the host is not an address or the pattern is not a
		// network; fall back to a literal comparison.
		if !matchOriginPart(o.Host, host) {
			return false
		}
	} else if !network.Contains(addr) {
		return false
	}
	return matchOriginPart(o.Port, port)
}

// IsSecureOrigin reports whether the location matches any allow-list entry.
// An absent port is treated as the wildcard.
func IsSecureOrigin(origins []Origin, location *link.Link) bool {
	parsed := location.Parsed()
	scheme := location.Scheme()
	host := parsed.Hostname()
	port := parsed.Port()
	if port == "" {
		port = "*"
	}
	for _, origin := range origins {
		if origin.match(scheme, host, port) {
			return true
		}
	}
	return false
}

// TrustedHostOrigin converts a caller-supplied trusted host ("host" or
// "host:port") into an allow-list entry trusting it on every scheme.
func TrustedHostOrigin(host string) Origin {
	hostname, portStr, err := net.SplitHostPort(host)
	if err != nil {
		return Origin{Scheme: "*", Host: host, Port: "*"}
	}
	if _, err := strconv.Atoi(portStr); err != nil {
		return Origin{Scheme: "*", Host: host, Port: "*"}
	}
	return Origin{Scheme: "*", Host: hostname, Port: portStr}
}
