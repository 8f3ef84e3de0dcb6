// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package elfutil

import (
	"errors"
	"fmt"
)

// ErrElfPatch is wrapped by every error returned from this package.
var ErrElfPatch = errors.New("ELF patch error")

// PatchErrorKind classifies a *PatchError.
type PatchErrorKind int

const (
	// UnsupportedElfClass means that the image is neither ELFCLASS32 nor ELFCLASS64.
	UnsupportedElfClass PatchErrorKind = iota + 1
	// NoDynamicSection means that the image has no dynamic table (it is statically linked).
	NoDynamicSection
	// NoRpathEntry means that the dynamic table has neither DT_RUNPATH nor DT_RPATH.
	NoRpathEntry
	// NewValueTooLong means that the new value does not fit in the space of the old one.
	NewValueTooLong
	// MalformedElf means that the image is truncated or has inconsistent offsets.
	MalformedElf
)

func (k PatchErrorKind) String() string {
	switch k {
	case UnsupportedElfClass:
		return "UnsupportedElfClass"
	case NoDynamicSection:
		return "NoDynamicSection"
	case NoRpathEntry:
		return "NoRpathEntry"
	case NewValueTooLong:
		return "NewValueTooLong"
	case MalformedElf:
		return "MalformedElf"
	default:
		return fmt.Sprintf("PatchErrorKind(%d)", int(k))
	}
}

type PatchError struct {
	Kind PatchErrorKind
	Msg  string
}

func (e *PatchError) Error() string {
	return fmt.Sprintf("%v: %v: %s", ErrElfPatch, e.Kind, e.Msg)
}

func (e *PatchError) Unwrap() error {
	return ErrElfPatch
}

func patchErrorf(kind PatchErrorKind, format string, args ...interface{}) *PatchError {
	return &PatchError{
		Kind: kind,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// KindOf returns the kind of the *PatchError in err's chain, or 0 if there is none.
func KindOf(err error) PatchErrorKind {
	var perr *PatchError
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return 0
}
