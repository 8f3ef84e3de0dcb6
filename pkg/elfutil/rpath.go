// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package elfutil reads and rewrites the library search path (DT_RUNPATH or DT_RPATH) of ELF
// shared objects, in place.
//
// A rewrite never moves anything: the new value is written over the old string in the dynamic
// string table, so it must be no longer than the old value.
package elfutil

import (
	"debug/elf"
	"fmt"
	"strings"
)

// ReadRPath returns the library search path of an ELF image.  DT_RUNPATH takes precedence over
// DT_RPATH.  If the image has no dynamic table or neither entry, ok is false and err is nil.
func ReadRPath(data []byte) (value string, ok bool, err error) {
	img, err := parseImage(data)
	if err != nil {
		return "", false, err
	}
	ref, err := img.findRPath()
	if err != nil {
		switch KindOf(err) {
		case NoDynamicSection, NoRpathEntry:
			return "", false, nil
		default:
			return "", false, err
		}
	}
	return ref.value, true, nil
}

// RPathTag returns which tag (elf.DT_RUNPATH or elf.DT_RPATH) ReadRPath and WriteRPath use for
// an image.
func RPathTag(data []byte) (elf.DynTag, error) {
	img, err := parseImage(data)
	if err != nil {
		return 0, err
	}
	ref, err := img.findRPath()
	if err != nil {
		return 0, err
	}
	return ref.tag, nil
}

// WriteRPath returns a copy of data with the library search path replaced by newValue.  The old
// string is overwritten in place and any left-over bytes are set to NUL; every other byte of the
// image is unchanged.  data itself is never modified.
func WriteRPath(data []byte, newValue string) ([]byte, error) {
	if strings.IndexByte(newValue, 0) >= 0 {
		return nil, fmt.Errorf("%w: new value %q contains a NUL byte", ErrElfPatch, newValue)
	}
	img, err := parseImage(data)
	if err != nil {
		return nil, err
	}
	ref, err := img.findRPath()
	if err != nil {
		return nil, err
	}
	if uint64(len(newValue)) > ref.span {
		return nil, patchErrorf(NewValueTooLong, "new %v %q needs %d bytes, but only %d are available (old value %q)",
			ref.tag, newValue, len(newValue)+1, ref.span+1, ref.value)
	}

	ret := make([]byte, len(data))
	copy(ret, data)
	copy(ret[ref.off:], newValue)
	for i := ref.off + uint64(len(newValue)); i <= ref.off+ref.span; i++ {
		ret[i] = 0
	}
	return ret, nil
}
