// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"io"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// WriteFileAtomic writes a file by calling write with a temporary file in the same directory,
// and then renaming the temporary file over filename.  If write (or anything else) fails, the
// temporary file is removed and filename is left untouched.
//
// If filename already exists, its permission bits are carried over; otherwise the new file has
// mode 0644 (less the umask).
func WriteFileAtomic(filename string, write func(io.Writer) error) error {
	tmp, err := renameio.NewPendingFile(filename,
		renameio.WithTempDir(filepath.Dir(filename)),
		renameio.WithPermissions(0o644),
		renameio.WithExistingPermissions())
	if err != nil {
		return err
	}
	defer func() {
		// A no-op once CloseAtomicallyReplace has succeeded.
		_ = tmp.Cleanup()
	}()

	if err := write(tmp); err != nil {
		return err
	}
	return tmp.CloseAtomicallyReplace()
}
