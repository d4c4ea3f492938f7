// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pep425

import (
	"fmt"
)

// Supported returns the priority-ordered list of tags that an installer
// targeting the described Python accepts, most-preferred first.  It mirrors
// the ordering that `packaging.tags.sys_tags()` produces for a live
// interpreter: implementation-specific tags, then abi3 back-compatibility
// tags, then abi-less tags, then the generic "py" interpreter tags, with
// platform-specific entries ahead of "any".
//
// pyVersion is the (major, minor, ...) version tuple and may be nil or
// shorter; impl is the implementation code ("cp", "pp", ...), defaulting to
// "cp"; abis and platforms may be empty, in which case a default ABI is
// derived from the implementation and only "any" platforms are used.
func Supported(pyVersion []int, impl string, abis, platforms []string) Installer {
	if impl == "" {
		impl = "cp"
	}
	version := ""
	switch {
	case len(pyVersion) >= 2:
		version = fmt.Sprintf("%d%d", pyVersion[0], pyVersion[1])
	case len(pyVersion) == 1:
		version = fmt.Sprintf("%d", pyVersion[0])
	}
	interpreter := impl + version
	if len(platforms) == 0 {
		platforms = []string{"any"}
	}
	if len(abis) == 0 && version != "" {
		abis = []string{interpreter}
	}

	var ret Installer
	seen := make(map[Tag]struct{})
	add := func(python, abi, platform string) {
		tag := Tag{Python: python, ABI: abi, Platform: platform}
		if _, dup := seen[tag]; dup {
			return
		}
		seen[tag] = struct{}{}
		ret = append(ret, tag)
	}

	if version != "" {
		for _, abi := range abis {
			for _, platform := range platforms {
				add(interpreter, abi, platform)
			}
		}
		if impl == "cp" && len(pyVersion) >= 2 && pyVersion[0] == 3 {
			// CPython stable-ABI wheels built against any older 3.x work.
			for minor := pyVersion[1]; minor >= 2; minor-- {
				for _, platform := range platforms {
					add(fmt.Sprintf("cp3%d", minor), "abi3", platform)
				}
			}
		}
		for _, platform := range platforms {
			add(interpreter, "none", platform)
		}
	}

	if len(pyVersion) >= 1 {
		var pythons []string
		if len(pyVersion) >= 2 {
			pythons = append(pythons, fmt.Sprintf("py%d%d", pyVersion[0], pyVersion[1]))
		}
		pythons = append(pythons, fmt.Sprintf("py%d", pyVersion[0]))
		if len(pyVersion) >= 2 {
			for minor := pyVersion[1] - 1; minor >= 0; minor-- {
				pythons = append(pythons, fmt.Sprintf("py%d%d", pyVersion[0], minor))
			}
		}
		for _, python := range pythons {
			for _, platform := range platforms {
				add(python, "none", platform)
			}
		}
		add(interpreter, "none", "any")
		for _, python := range pythons {
			add(python, "none", "any")
		}
	} else {
		// Version-agnostic target: accept anything interpreter-independent.
		add("py3", "none", "any")
		add("py2", "none", "any")
	}

	return ret
}
