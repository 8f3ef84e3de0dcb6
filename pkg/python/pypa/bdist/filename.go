// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package bdist

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/datawire/editwheel/pkg/python/pep425"
)

// The wheel filename is {distribution}-{version}(-{build tag})?-{python tag}-{abi tag}-{platform tag}.whl.
//
// For example, "distribution-1.0-1-py27-none-any.whl" is the first build of a package called
// 'distribution', and is compatible with Python 2.7 (any Python 2.7 implementation), with no ABI
// (pure Python), on any CPU architecture.
//
// The build tag, if present, must start with a digit.  It acts as a tie-breaker if two wheel
// file names are the same in all other respects.

type FileNameData struct {
	Distribution     string
	Version          string
	BuildTag         *BuildTag
	CompatibilityTag pep425.Tag
}

var reFilename = regexp.MustCompile(regexp.MustCompile(`\s+`).ReplaceAllString(`
		^(?P<distribution>[^-]+)
		-(?P<version>[^-]+)
		(?:-(?P<build_n>[0-9]+)(?P<build_l>[^-0-9][^-]*)?)?
		-(?P<python>[^-]+)
		-(?P<abi>[^-]+)
		-(?P<platform>[^-]+)
		\.whl$`, ``))

func ParseFilename(filename string) (*FileNameData, error) {
	match := reFilename.FindStringSubmatch(filename)
	if match == nil {
		return nil, fmt.Errorf("invalid wheel filename: %q", filename)
	}

	var ret FileNameData

	ret.Distribution = match[reFilename.SubexpIndex("distribution")]
	ret.Version = match[reFilename.SubexpIndex("version")]

	if buildN := match[reFilename.SubexpIndex("build_n")]; buildN != "" {
		n, err := strconv.Atoi(buildN)
		if err != nil {
			return nil, fmt.Errorf("invalid wheel filename: %q: %w", filename, err)
		}
		ret.BuildTag = &BuildTag{
			Int: n,
			Str: match[reFilename.SubexpIndex("build_l")],
		}
	}

	ret.CompatibilityTag = pep425.Tag{
		Python:   match[reFilename.SubexpIndex("python")],
		ABI:      match[reFilename.SubexpIndex("abi")],
		Platform: match[reFilename.SubexpIndex("platform")],
	}

	return &ret, nil
}

type BuildTag struct {
	Int int
	Str string
}

var reBuildTag = regexp.MustCompile(`^([0-9]+)([^-0-9][^-]*)?$`)

// ParseBuildTag parses the "Build" field of a WHEEL file.
func ParseBuildTag(str string) (*BuildTag, error) {
	match := reBuildTag.FindStringSubmatch(str)
	if match == nil {
		return nil, fmt.Errorf("invalid build tag: %q", str)
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return nil, fmt.Errorf("invalid build tag: %q: %w", str, err)
	}
	return &BuildTag{Int: n, Str: match[2]}, nil
}

func (t BuildTag) String() string {
	return fmt.Sprintf("%d%s", t.Int, t.Str)
}

func (a *BuildTag) Cmp(b *BuildTag) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil && b != nil:
		return -1
	case a != nil && b == nil:
		return 1
	}
	if d := a.Int - b.Int; d != 0 {
		return d
	}
	switch {
	case a.Str < b.Str:
		return -1
	case a.Str > b.Str:
		return 1
	default:
		return 0
	}
}

var reNameSeparators = regexp.MustCompile("[-_.]+")

// GenerateFilename is the inverse of ParseFilename.
//
// As the components of the filename are separated by a dash, this character cannot appear
// within any component:
//
//  - In distribution names, any run of "-_." characters is replaced with "_".
//  - Versions are expected to be PEP 440 normalized already, which means they have no "-"; any
//    that remain are replaced with "_".
//  - The remaining components may not contain "-" characters, so no escaping is necessary.
func GenerateFilename(data FileNameData) (string, error) {
	if data.Distribution == "" {
		return "", fmt.Errorf("invalid distribution name: %q", data.Distribution)
	}
	if data.Version == "" {
		return "", fmt.Errorf("invalid version: %q", data.Version)
	}
	var ret strings.Builder
	ret.WriteString(reNameSeparators.ReplaceAllLiteralString(data.Distribution, "_"))
	ret.WriteString("-")
	ret.WriteString(strings.ReplaceAll(data.Version, "-", "_"))
	if data.BuildTag != nil {
		build := data.BuildTag.String()
		if strings.Contains(build, "-") {
			return "", fmt.Errorf("invalid build tag: contains dash: %q", build)
		}
		ret.WriteString("-")
		ret.WriteString(build)
	}
	compat := data.CompatibilityTag.String()
	if strings.Count(compat, "-") != 2 {
		return "", fmt.Errorf("invalid compatibility tag: %q", compat)
	}
	ret.WriteString("-")
	ret.WriteString(compat)
	ret.WriteString(".whl")
	return ret.String(), nil
}
