// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package ziputil indexes ZIP archives and writes modified copies of them, copying the compressed
// bytes of untouched members verbatim.
package ziputil

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/datawire/editwheel/pkg/fsutil"
)

var (
	// ErrMalformedArchive means that the end-of-central-directory record or a central directory
	// entry could not be parsed.
	ErrMalformedArchive = errors.New("malformed ZIP archive")
	// ErrUnsupportedCompression means that a member that had to be decompressed uses a
	// compression method other than Store or Deflate.
	ErrUnsupportedCompression = errors.New("unsupported compression method")
	// ErrDecompression means that a member's compressed data is corrupt or fails its CRC-32
	// check.
	ErrDecompression = errors.New("decompression failed")
)

// Member is a single entry of an Index.
type Member struct {
	file  *zip.File
	index int
}

// Name returns the member's path within the archive.
func (m *Member) Name() string { return m.file.Name }

// Index returns the member's position in the central directory.
func (m *Member) Index() int { return m.index }

// Header returns a copy of the member's central directory header.
func (m *Member) Header() zip.FileHeader { return m.file.FileHeader }

func (m *Member) Method() uint16           { return m.file.Method }
func (m *Member) CRC32() uint32            { return m.file.CRC32 }
func (m *Member) CompressedSize() uint64   { return m.file.CompressedSize64 }
func (m *Member) UncompressedSize() uint64 { return m.file.UncompressedSize64 }

// IsDir reports whether the member is a directory entry.
func (m *Member) IsDir() bool { return m.file.FileInfo().IsDir() }

// DataOffset returns the offset of the member's compressed data within the archive.
func (m *Member) DataOffset() (int64, error) { return m.file.DataOffset() }

// RawPayload returns the member's compressed bytes exactly as stored, without decompressing or
// verifying them.
func (m *Member) RawPayload() ([]byte, error) {
	reader, err := m.file.OpenRaw()
	if err != nil {
		return nil, fmt.Errorf("%w: member %q: %v", ErrMalformedArchive, m.Name(), err)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: member %q: %v", ErrMalformedArchive, m.Name(), err)
	}
	return data, nil
}

// Decompressed returns the member's uncompressed content, verifying its CRC-32.
func (m *Member) Decompressed() (_ []byte, err error) {
	switch m.Method() {
	case zip.Store, zip.Deflate:
	default:
		return nil, fmt.Errorf("%w: member %q: method %d", ErrUnsupportedCompression, m.Name(), m.Method())
	}
	reader, err := m.file.Open()
	if err != nil {
		if errors.Is(err, zip.ErrAlgorithm) {
			return nil, fmt.Errorf("%w: member %q: method %d", ErrUnsupportedCompression, m.Name(), m.Method())
		}
		return nil, fmt.Errorf("%w: member %q: %v", ErrDecompression, m.Name(), err)
	}
	defer func() {
		if _err := reader.Close(); _err != nil && err == nil {
			err = fmt.Errorf("%w: member %q: %v", ErrDecompression, m.Name(), _err)
		}
	}()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: member %q: %v", ErrDecompression, m.Name(), err)
	}
	return data, nil
}

// Index is the ordered catalog of an archive's members, read from its central directory.  An
// Index is never modified after it is built, and is safe for concurrent use.
type Index struct {
	reader  *zip.Reader
	members []*Member
	byName  map[string]*Member
	closer  io.Closer
}

func decompressor(r io.Reader) io.ReadCloser {
	return flate.NewReader(r)
}

// Open indexes the archive in r.  Member payloads are not read.
func Open(r io.ReaderAt, size int64) (*Index, error) {
	zipReader, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("ziputil.Open: %w: %v", ErrMalformedArchive, err)
	}
	zipReader.RegisterDecompressor(zip.Deflate, decompressor)

	idx := &Index{
		reader:  zipReader,
		members: make([]*Member, 0, len(zipReader.File)),
		byName:  make(map[string]*Member, len(zipReader.File)),
	}
	for i, file := range zipReader.File {
		if _, dup := idx.byName[file.Name]; dup {
			return nil, fmt.Errorf("ziputil.Open: %w: duplicate member %q", ErrMalformedArchive, file.Name)
		}
		member := &Member{
			file:  file,
			index: i,
		}
		idx.members = append(idx.members, member)
		idx.byName[file.Name] = member
	}
	return idx, nil
}

// OpenBytes indexes an in-memory archive.
func OpenBytes(data []byte) (*Index, error) {
	return Open(bytes.NewReader(data), int64(len(data)))
}

// OpenFile indexes an archive file.  The file stays open until the Index is closed.  A file that
// is not seekable (such as a pipe) is read in to memory first.
func OpenFile(filename string) (*Index, error) {
	file, err := fsutil.OpenRandomAccess(filename)
	if err != nil {
		return nil, err
	}
	idx, err := Open(file, file.Size())
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	idx.closer = file
	return idx, nil
}

// Close releases the file opened by OpenFile.  It is a no-op for an Index made by Open or
// OpenBytes.
func (idx *Index) Close() error {
	if idx.closer == nil {
		return nil
	}
	return idx.closer.Close()
}

// Members returns every member, in central directory order.
func (idx *Index) Members() []*Member {
	return append([]*Member(nil), idx.members...)
}

// Member returns the named member, or nil.
func (idx *Index) Member(name string) *Member {
	return idx.byName[name]
}

// Files returns the names of the non-directory members, in central directory order.
func (idx *Index) Files() []string {
	ret := make([]string, 0, len(idx.members))
	for _, member := range idx.members {
		if !member.IsDir() {
			ret = append(ret, member.Name())
		}
	}
	return ret
}

// Comment returns the archive comment.
func (idx *Index) Comment() string {
	return idx.reader.Comment
}
