// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/datawire/dlib/derror"
	"github.com/datawire/dlib/dlog"
)

// ErrHashMismatch is wrapped by every *HashMismatchError.
var ErrHashMismatch = errors.New("hash mismatch")

// HashMismatchError reports that a file's content does not match its RECORD entry.
type HashMismatchError struct {
	Path string
	// Field is "hash" or "size".
	Field    string
	Expected string
	Actual   string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("file %q: %s mismatch: RECORD=%q actual=%q", e.Path, e.Field, e.Expected, e.Actual)
}

func (e *HashMismatchError) Unwrap() error {
	return ErrHashMismatch
}

// MissingFileError reports a file that is listed in RECORD but is not in the archive.
type MissingFileError struct {
	Path string
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("file %q: listed in RECORD but not present", e.Path)
}

func (e *MissingFileError) Unwrap() error {
	return fs.ErrNotExist
}

// UnlistedFileError reports a file that is present in the archive but not listed in RECORD.
type UnlistedFileError struct {
	Path string
}

func (e *UnlistedFileError) Error() string {
	return fmt.Sprintf("file %q: present but not listed in RECORD", e.Path)
}

// Verify checks the record against the files of an archive, returning every problem found as a
// derror.MultiError, or nil if there are none.
//
// recordPath is the name of the RECORD file itself, which (along with the RECORD.jws and
// RECORD.p7s signature files next to it) is not expected to have a hash.  members lists every
// non-directory file in the archive, and contents returns the uncompressed content of a file; it
// should return an error wrapping fs.ErrNotExist for a file that is not present.
func (r *Record) Verify(
	ctx context.Context,
	recordPath string,
	contents func(name string) ([]byte, error),
	members []string,
) error {
	recordPath = path.Clean(recordPath)
	recordDir := path.Dir(recordPath)

	todo := make(map[string]struct{}, len(members))
	for _, name := range members {
		name = path.Clean(name)
		switch name {
		case recordPath, path.Join(recordDir, "RECORD.jws"), path.Join(recordDir, "RECORD.p7s"):
			// skip
		default:
			todo[name] = struct{}{}
		}
	}

	var errs derror.MultiError
	for _, entry := range r.Entries {
		name := path.Clean(entry.Path)
		delete(todo, name)
		if name == recordPath {
			continue
		}
		if entry.Hash == "" || entry.Size < 0 {
			errs = append(errs, fmt.Errorf("file %q: RECORD entry is missing hash or size", entry.Path))
		}

		content, err := contents(name)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, &MissingFileError{Path: entry.Path})
			} else {
				errs = append(errs, fmt.Errorf("file %q: %w", entry.Path, err))
			}
			continue
		}

		if entry.Hash != "" {
			algo := strings.SplitN(entry.Hash, "=", 2)[0]
			actual, err := Sum(algo, content)
			if err != nil {
				errs = append(errs, fmt.Errorf("file %q: %w", entry.Path, err))
			} else if actual != entry.Hash {
				errs = append(errs, &HashMismatchError{
					Path:     entry.Path,
					Field:    "hash",
					Expected: entry.Hash,
					Actual:   actual,
				})
			}
		}
		if entry.Size >= 0 && entry.Size != int64(len(content)) {
			errs = append(errs, &HashMismatchError{
				Path:     entry.Path,
				Field:    "size",
				Expected: strconv.FormatInt(entry.Size, 10),
				Actual:   strconv.Itoa(len(content)),
			})
		}
	}

	unlisted := make([]string, 0, len(todo))
	for name := range todo {
		unlisted = append(unlisted, name)
	}
	sort.Strings(unlisted)
	for _, name := range unlisted {
		errs = append(errs, &UnlistedFileError{Path: name})
	}

	dlog.Debugf(ctx, "record: verified %d entries against %d files: %d problems",
		len(r.Entries), len(members), len(errs))
	if len(errs) > 0 {
		return errs
	}
	return nil
}
