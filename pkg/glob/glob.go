// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package glob matches archive member paths against shell-style wildcard patterns, using the
// doublestar syntax:
//
//	*       any run of characters except "/"
//	**      as a whole path component, zero or more directories
//	?       any single character except "/"
//	[abc]   a character class; "[!abc]" or "[^abc]" negates it, and "a-z" is a range
//	{a,b}   either alternative
//	\x      the literal character x
//
// Matching is case-sensitive and anchored: the whole path must match.  Member paths always use
// "/" as the separator, whatever the host OS.
package glob

import (
	"errors"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrInvalidPattern is wrapped by every error returned from Compile.
var ErrInvalidPattern = errors.New("invalid glob pattern")

// A Pattern is a validated glob pattern.  It is safe for concurrent use.
type Pattern struct {
	pattern string
}

// Compile checks a glob pattern.
func Compile(pattern string) (*Pattern, error) {
	if pattern == "" {
		return nil, fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, pattern, doublestar.ErrBadPattern)
	}
	return &Pattern{pattern: pattern}, nil
}

// MustCompile is like Compile but panics if the pattern is invalid.
func MustCompile(pattern string) *Pattern {
	pat, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return pat
}

// String returns the source text of the pattern.
func (p *Pattern) String() string {
	return p.pattern
}

// Match reports whether name matches the pattern in its entirety.
func (p *Pattern) Match(name string) bool {
	// The pattern was validated by Compile, so Match cannot return ErrBadPattern.
	ok, _ := doublestar.Match(p.pattern, name)
	return ok
}

// Filter returns the names that match the pattern, in their original order.
func (p *Pattern) Filter(names []string) []string {
	var ret []string
	for _, name := range names {
		if p.Match(name) {
			ret = append(ret, name)
		}
	}
	return ret
}
