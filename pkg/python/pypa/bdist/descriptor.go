// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package bdist

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/datawire/editwheel/pkg/python/pep425"
	"github.com/datawire/editwheel/pkg/python/pep566"
)

type version []int

var specVersion = version{1, 0}

func parseVersion(str string) (version, error) {
	parts := strings.Split(str, ".")
	ret := make(version, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("could not parse wheel version number: %q: %w", str, err)
		}
		ret = append(ret, n)
	}
	return ret, nil
}

func (v version) String() string {
	parts := make([]string, 0, len(v))
	for _, n := range v {
		parts = append(parts, strconv.Itoa(n))
	}
	return strings.Join(parts, ".")
}

func vercmp(a, b version) int {
	for i := 0; i < len(a) || i < len(b); i++ {
		aPart := 0
		if i < len(a) {
			aPart = a[i]
		}

		bPart := 0
		if i < len(b) {
			bPart = b[i]
		}

		if aPart != bPart {
			return aPart - bPart
		}
	}
	return 0
}

// WheelDescriptor is the "{name}-{version}.dist-info/WHEEL" file: metadata about the archive
// itself, in the same "Key: value" format as METADATA.
//
//     Wheel-Version: 1.0
//     Generator: bdist_wheel 1.0
//     Root-Is-Purelib: true
//     Tag: py2-none-any
//     Tag: py3-none-any
//     Build: 1
type WheelDescriptor struct {
	fields *pep566.Fields
}

var wheelListFields = []string{"Tag"}

// ParseWheelDescriptor parses a WHEEL file.  Wheel-Version and at least one well-formed Tag are
// required, and a Wheel-Version with a major version newer than 1 is rejected.
func ParseWheelDescriptor(data []byte) (*WheelDescriptor, error) {
	fields, body, err := pep566.ParseFields(data, wheelListFields)
	if err != nil {
		return nil, fmt.Errorf("bdist.ParseWheelDescriptor: %w", err)
	}
	if strings.TrimSpace(body) != "" {
		return nil, fmt.Errorf("bdist.ParseWheelDescriptor: %w: unexpected body after header block",
			pep566.ErrMetadataParse)
	}
	desc := &WheelDescriptor{fields: fields}

	wheelVersion, ok, err := fields.Scalar("Wheel-Version")
	if err != nil {
		return nil, fmt.Errorf("bdist.ParseWheelDescriptor: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("bdist.ParseWheelDescriptor: %w: missing required field %q",
			pep566.ErrMetadataParse, "Wheel-Version")
	}
	// Wheel-Version is the version number of the Wheel specification.  A wheel installer should
	// warn if Wheel-Version is greater than the version it supports, and must fail if
	// Wheel-Version has a greater major version than the version it supports.
	ver, err := parseVersion(wheelVersion)
	if err != nil {
		return nil, fmt.Errorf("bdist.ParseWheelDescriptor: %w", err)
	}
	if ver[0] > specVersion[0] {
		return nil, fmt.Errorf("bdist.ParseWheelDescriptor: wheel file's Wheel-Version (%v) is not compatible with this tool (%v)",
			ver, specVersion)
	}

	strs, err := fields.List("Tag")
	if err != nil {
		return nil, fmt.Errorf("bdist.ParseWheelDescriptor: %w", err)
	}
	if len(strs) == 0 {
		return nil, fmt.Errorf("bdist.ParseWheelDescriptor: %w: missing required field %q",
			pep566.ErrMetadataParse, "Tag")
	}
	for _, str := range strs {
		if _, err := pep425.ParseTag(str); err != nil {
			return nil, fmt.Errorf("bdist.ParseWheelDescriptor: %w", err)
		}
	}

	return desc, nil
}

// MarshalText implements encoding.TextMarshaler.
func (d *WheelDescriptor) MarshalText() ([]byte, error) {
	return d.fields.MarshalText()
}

// Fields returns the underlying fields, for generic access.
func (d *WheelDescriptor) Fields() *pep566.Fields {
	return d.fields
}

func (d *WheelDescriptor) scalar(key string) string {
	str, _, _ := d.fields.Scalar(key)
	return str
}

func (d *WheelDescriptor) WheelVersion() string { return d.scalar("Wheel-Version") }
func (d *WheelDescriptor) Generator() string    { return d.scalar("Generator") }
func (d *WheelDescriptor) Build() string        { return d.scalar("Build") }

// RootIsPurelib reports whether the root of the archive should be installed into purelib
// rather than platlib.
func (d *WheelDescriptor) RootIsPurelib() bool {
	return strings.EqualFold(d.scalar("Root-Is-Purelib"), "true")
}

// newerMinor reports whether Wheel-Version is newer than the version this package implements,
// with the same major version.
func (d *WheelDescriptor) newerMinor() bool {
	ver, err := parseVersion(d.WheelVersion())
	if err != nil {
		return false
	}
	return vercmp(ver, specVersion) > 0
}

// Tags returns the expanded compatibility tags, in file order.
func (d *WheelDescriptor) Tags() []pep425.Tag {
	strs, _ := d.fields.List("Tag")
	ret := make([]pep425.Tag, 0, len(strs))
	for _, str := range strs {
		tag, err := pep425.ParseTag(str)
		if err != nil {
			continue
		}
		ret = append(ret, tag)
	}
	return ret
}

// SetTags replaces the Tag lines.  Compressed tag sets are expanded, and duplicates are dropped.
func (d *WheelDescriptor) SetTags(tags []pep425.Tag) error {
	var strs []string
	seen := make(map[string]struct{})
	for _, tag := range tags {
		for _, expanded := range tag.Decompress() {
			str := expanded.String()
			if _, err := pep425.ParseTag(str); err != nil {
				return fmt.Errorf("bdist.WheelDescriptor.SetTags: %w", err)
			}
			if _, dup := seen[str]; dup {
				continue
			}
			seen[str] = struct{}{}
			strs = append(strs, str)
		}
	}
	if len(strs) == 0 {
		return fmt.Errorf("bdist.WheelDescriptor.SetTags: at least one tag is required")
	}
	return d.fields.Set("Tag", pep566.ListValue(strs...))
}

// SetBuild sets the build number; an empty string removes it.
func (d *WheelDescriptor) SetBuild(build string) error {
	if build == "" {
		d.fields.Delete("Build")
		return nil
	}
	if _, err := ParseBuildTag(build); err != nil {
		return fmt.Errorf("bdist.WheelDescriptor.SetBuild: %w", err)
	}
	return d.fields.Set("Build", pep566.ScalarValue(build))
}
