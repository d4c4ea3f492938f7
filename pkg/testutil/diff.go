// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/datawire/unearth/pkg/evaluator"
)

var spewConfig = spew.ConfigState{
	Indent:                  "  ",
	DisableMethods:          true,
	DisableCapacities:       true,
	DisablePointerAddresses: true,
	SortKeys:                true,
}

// DumpPackageListing renders one line per package: enough to see ordering
// and identity at a glance.
func DumpPackageListing(packages []evaluator.Package) string {
	ret := new(strings.Builder)
	for _, pkg := range packages {
		version := "<nil>"
		if pkg.Version != nil {
			version = pkg.Version.String()
		}
		fmt.Fprintf(ret, "%s %s %s\n", pkg.Name, version, pkg.Link.Redacted())
	}
	return ret.String()
}

// DumpPackagesFull renders every field of every package, for when the
// listing alone can't explain a mismatch.
func DumpPackagesFull(packages []evaluator.Package) string {
	ret := new(strings.Builder)
	for i, pkg := range packages {
		fmt.Fprintf(ret, "package[%d] = %s", i, spewConfig.Sdump(pkg))
	}
	return ret.String()
}

// AssertEqualPackages compares two candidate lists, order included.  It
// first diffs the one-line listings to fail fast with readable output, and
// only then diffs the full dumps.
func AssertEqualPackages(t *testing.T, exp, act []evaluator.Package) bool {
	t.Helper()

	expStr := DumpPackageListing(exp)
	actStr := DumpPackageListing(act)
	if expStr != actStr {
		diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(expStr),
			B:        difflib.SplitLines(actStr),
			FromFile: "Expected",
			FromDate: "",
			ToFile:   "Actual",
			ToDate:   "",
			Context:  1,
		})
		t.Errorf("Listing diff:\n%s", diff)
		return false
	}

	expStr = DumpPackagesFull(exp)
	actStr = DumpPackagesFull(act)
	if expStr != actStr {
		diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(expStr),
			B:        difflib.SplitLines(actStr),
			FromFile: "Expected",
			FromDate: "",
			ToFile:   "Actual",
			ToDate:   "",
			Context:  1,
		})
		t.Errorf("Full diff:\n%s", diff)
		return false
	}

	return true
}
