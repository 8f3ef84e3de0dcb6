// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"bytes"
	"io"
	"io/fs"
	"os"
)

// RandomAccessFile is an opened file that supports random access.
type RandomAccessFile interface {
	io.ReaderAt
	io.Closer
	Size() int64
}

type osFile struct {
	*os.File
	size int64
}

func (f osFile) Size() int64 { return f.size }

type memFile struct {
	*bytes.Reader
}

func (memFile) Close() error { return nil }

// OpenRandomAccess opens a file for random access.  A regular file is read on demand; anything
// else (such as a pipe) is read in to memory once, and then worked on from there.
func OpenRandomAccess(filename string) (RandomAccessFile, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if info.Mode().IsRegular() {
		return osFile{File: file, size: info.Size()}, nil
	}
	defer file.Close()
	bs, err := io.ReadAll(file)
	if err != nil {
		return nil, &fs.PathError{
			Op:   "read",
			Path: filename,
			Err:  err,
		}
	}
	return memFile{Reader: bytes.NewReader(bs)}, nil
}
