// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package evaluator

import (
	"fmt"

	"github.com/datawire/unearth/pkg/link"
	"github.com/datawire/unearth/pkg/python/pep503"
)

// AllPackages is the sentinel that applies a format restriction to every
// package rather than a named one.
const AllPackages = ":all:"

// FormatControl restricts which distribution formats are acceptable, per
// package or globally.
type FormatControl struct {
	onlyBinary map[string]struct{}
	noBinary   map[string]struct{}
}

// NewFormatControl builds a FormatControl from the two restriction lists.
// Package names are normalized; a name (or the :all: sentinel) appearing in
// both lists is a configuration error and is reported here, before any link
// is evaluated.
func NewFormatControl(onlyBinary, noBinary []string) (*FormatControl, error) {
	fc := &FormatControl{
		onlyBinary: make(map[string]struct{}, len(onlyBinary)),
		noBinary:   make(map[string]struct{}, len(noBinary)),
	}
	for _, name := range onlyBinary {
		fc.onlyBinary[normalizeFormatName(name)] = struct{}{}
	}
	for _, name := range noBinary {
		fc.noBinary[normalizeFormatName(name)] = struct{}{}
	}
	for name := range fc.onlyBinary {
		if _, conflict := fc.noBinary[name]; conflict {
			return nil, fmt.Errorf("%q appears in both --only-binary and --no-binary", name)
		}
	}
	return fc, nil
}

func normalizeFormatName(name string) string {
	if name == AllPackages {
		return name
	}
	return pep503.NormalizeName(name)
}

// allows resolves the formats acceptable for one package.  A per-name entry
// takes precedence over the :all: sentinel of either set, so
// only-binary=:all: plus no-binary=demo means "source only for demo, wheels
// for everything else".
func (fc *FormatControl) allows(name string) (binary, source bool) {
	canonical := pep503.NormalizeName(name)
	binary, source = true, true
	if _, ok := fc.onlyBinary[canonical]; ok {
		source = false
	} else if _, ok := fc.noBinary[canonical]; ok {
		binary = false
	} else if _, ok := fc.onlyBinary[AllPackages]; ok {
		source = false
	} else if _, ok := fc.noBinary[AllPackages]; ok {
		binary = false
	}
	return binary, source
}

// AllowsBinary reports whether wheels are acceptable for the named package.
func (fc *FormatControl) AllowsBinary(name string) bool {
	binary, _ := fc.allows(name)
	return binary
}

// AllowsSource reports whether source distributions are acceptable for the
// named package.
func (fc *FormatControl) AllowsSource(name string) bool {
	_, source := fc.allows(name)
	return source
}

// CheckFormat rejects the link if its format is excluded for the named
// package.
func (fc *FormatControl) CheckFormat(l *link.Link, name string) error {
	if l.IsWheel() {
		if !fc.AllowsBinary(name) {
			return mismatchf("binary distributions are disabled for %s", name)
		}
	} else if !fc.AllowsSource(name) {
		return mismatchf("source distributions are disabled for %s", name)
	}
	return nil
}
