// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0
//
// Contains code from
// https://github.com/spf13/pflag/blob/v1.0.5/flag.go (BSD-3-Clause), so that help text wraps the
// same way as pflag's (*FlagSet).FlagUsagesWrapped.

package cliutil

import (
	"strings"
)

// Wrap the string `s` to a maximum width `w`.  Pass `w` == 0 to do no wrapping.
//
// In order to have some room for slop to avoid things like a short word being on a line by itself,
// most lines are actually wrapped to `w - 5`.
func Wrap(w int, s string) string {
	return wrap(0, w, s)
}

// Wrap the string `s` to a maximum width `w` with leading indent `i`.  The first line is not
// indented (this is assumed to be done by caller).  Pass `w` == 0 to do no wrapping
//
// In order to have some room for slop to avoid things like a short word being on a line by itself,
// most lines are actually wrapped to `w - 5`.
func WrapIndent(i, w int, s string) string {
	return wrap(i, w, s)
}

// wrapN splits s on whitespace in to an initial substring up to i bytes long and the remainder.
// It goes up to slop bytes over i if that takes the whole string.
func wrapN(i, slop int, s string) (string, string) {
	if i+slop > len(s) {
		return s, ""
	}

	w := strings.LastIndexAny(s[:i], " \t\n")
	if w <= 0 {
		return s, ""
	}
	nlPos := strings.LastIndex(s[:i], "\n")
	if nlPos > 0 && nlPos < w {
		return s[:nlPos], s[nlPos+1:]
	}
	return s[:w], s[w+1:]
}

func wrap(i, w int, s string) string {
	if w == 0 {
		return strings.ReplaceAll(s, "\n", "\n"+strings.Repeat(" ", i))
	}

	// space between indent i and end of line width w into which we should wrap the text.
	width := w - i

	var ret string

	// Not enough space for sensible wrapping.  Wrap as a block on the next line instead.
	if width < 24 {
		i = 16
		width = w - i
		ret += "\n" + strings.Repeat(" ", i)
	}
	// If still not enough space then don't even try to wrap.
	if width < 24 {
		return strings.ReplaceAll(s, "\n", ret)
	}

	const slop = 5
	width -= slop

	indent := "\n" + strings.Repeat(" ", i)

	line, s := wrapN(width, slop, s)
	ret += strings.ReplaceAll(line, "\n", indent)

	for s != "" {
		line, s = wrapN(width, slop, s)
		ret += indent + strings.ReplaceAll(line, "\n", indent)
	}

	return ret
}
