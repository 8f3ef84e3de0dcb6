// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package pep425 implements PEP 425 -- Compatibility Tags for Built Distributions.
//
// https://www.python.org/dev/peps/pep-0425/
package pep425

import (
	"fmt"
	"strings"
)

type Tag struct {
	Python   string
	ABI      string
	Platform string
}

// ParseTag parses a "python-abi-platform" triple, as found in a WHEEL file's "Tag" field.  Each
// component may itself be a compressed "."-separated set.
func ParseTag(str string) (Tag, error) {
	parts := strings.Split(str, "-")
	if len(parts) != 3 {
		return Tag{}, fmt.Errorf("pep425.ParseTag: invalid tag %q: expected 3 dash-separated parts, got %d",
			str, len(parts))
	}
	for _, part := range parts {
		if part == "" {
			return Tag{}, fmt.Errorf("pep425.ParseTag: invalid tag %q: empty component", str)
		}
	}
	return Tag{
		Python:   parts[0],
		ABI:      parts[1],
		Platform: parts[2],
	}, nil
}

func (t Tag) Decompress() []Tag {
	var ret []Tag
	for _, x := range strings.Split(t.Python, ".") {
		for _, y := range strings.Split(t.ABI, ".") {
			for _, z := range strings.Split(t.Platform, ".") {
				ret = append(ret, Tag{x, y, z})
			}
		}
	}
	return ret
}

func (t Tag) String() string {
	return t.Python + "-" + t.ABI + "-" + t.Platform
}

// Compress is the inverse of Decompress; it folds a list of tags in to a single compressed tag
// set, as used in a wheel's filename.  Each component keeps the order in which its values were
// first seen.  Compress returns the zero Tag for an empty list.
func Compress(tags []Tag) Tag {
	var pythons, abis, platforms []string
	for _, tag := range tags {
		for _, t := range tag.Decompress() {
			pythons = appendUnique(pythons, t.Python)
			abis = appendUnique(abis, t.ABI)
			platforms = appendUnique(platforms, t.Platform)
		}
	}
	return Tag{
		Python:   strings.Join(pythons, "."),
		ABI:      strings.Join(abis, "."),
		Platform: strings.Join(platforms, "."),
	}
}

func appendUnique(list []string, item string) []string {
	for _, have := range list {
		if have == item {
			return list
		}
	}
	return append(list, item)
}
