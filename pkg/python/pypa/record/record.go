// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package record implements the RECORD file of a wheel's .dist-info directory, as specified by
// PEP 376 and the binary distribution format specification.
//
// https://packaging.python.org/specifications/recording-installed-packages/#the-record-file
package record

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"hash"
	"path"
	"strconv"
)

// DefaultAlgorithm is the algorithm used for newly computed entries.
const DefaultAlgorithm = "sha256"

//nolint:gochecknoglobals // Would be 'const'.
var hashAlgorithms = map[string]func() hash.Hash{
	// PEP 376 leaves open the list of hashes, so here's what PIP 20.3.4
	// pip/_internal/utils/hashes.py includes:
	"sha256": sha256.New,
	"sha384": sha512.New384,
	"sha512": sha512.New,
}

// Entry is a single row of a RECORD file.
type Entry struct {
	Path string
	// Hash is "{algorithm}={urlsafe_b64encode_nopad(digest)}", or empty.
	Hash string
	// Size is the length of the uncompressed file, or -1 if empty.
	Size int64

	raw []string
}

// Fields returns the CSV columns for the entry.  An entry that was read from a RECORD file and
// not since recomputed returns exactly the columns that were read.
func (e Entry) Fields() []string {
	if e.raw != nil {
		return append([]string(nil), e.raw...)
	}
	size := ""
	if e.Size >= 0 {
		size = strconv.FormatInt(e.Size, 10)
	}
	return []string{e.Path, e.Hash, size}
}

// Record is the parsed contents of a RECORD file, in file order.
type Record struct {
	Entries []Entry
}

// Parse parses a RECORD file.  Rows with an empty path are ignored.
func Parse(data []byte) (*Record, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("record.Parse: %w", err)
	}
	ret := &Record{
		Entries: make([]Entry, 0, len(rows)),
	}
	for i, row := range rows {
		if len(row) == 0 || row[0] == "" {
			continue
		}
		entry := Entry{
			Path: row[0],
			Size: -1,
			raw:  row,
		}
		if len(row) > 1 {
			entry.Hash = row[1]
		}
		if len(row) > 2 && row[2] != "" {
			size, err := strconv.ParseInt(row[2], 10, 64)
			if err != nil || size < 0 {
				return nil, fmt.Errorf("record.Parse: row %d: file %q: invalid size %q", i+1, row[0], row[2])
			}
			entry.Size = size
		}
		ret.Entries = append(ret.Entries, entry)
	}
	return ret, nil
}

// MarshalText encodes the record as CSV with LF line endings, as Python's `csv` module is used
// by bdist_wheel with lineterminator='\n'.
func (r *Record) MarshalText() ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	for _, entry := range r.Entries {
		if err := writer.Write(entry.Fields()); err != nil {
			return nil, fmt.Errorf("record.MarshalText: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("record.MarshalText: %w", err)
	}
	return buf.Bytes(), nil
}

// Lookup returns the entry for the named file.
func (r *Record) Lookup(name string) (Entry, bool) {
	name = path.Clean(name)
	for _, entry := range r.Entries {
		if path.Clean(entry.Path) == name {
			return entry, true
		}
	}
	return Entry{}, false
}

// Recompute returns a fresh entry for a file with the given content, using DefaultAlgorithm.
func Recompute(name string, content []byte) Entry {
	hashsum, _ := Sum(DefaultAlgorithm, content)
	return Entry{
		Path: name,
		Hash: hashsum,
		Size: int64(len(content)),
	}
}

// Sum returns "{algo}={urlsafe_b64encode_nopad(digest)}" for content.
func Sum(algo string, content []byte) (string, error) {
	newHasher, ok := hashAlgorithms[algo]
	if !ok {
		return "", fmt.Errorf("unsupported hash algorithm: %q", algo)
	}
	hasher := newHasher()
	_, _ = hasher.Write(content)
	return algo + "=" + base64.RawURLEncoding.EncodeToString(hasher.Sum(nil)), nil
}

// Rewrite returns a new Record reflecting changed file contents.
//
//  - Entries for files not in changed are carried over unmodified, in their original order.
//  - Entries for files in changed are recomputed, but keep their position.
//  - The entry for recordPath itself has its hash and size emptied; if it was absent, it is
//    added last.
//  - The extra entries, for files that RECORD did not mention, are added before the entry for
//    recordPath if that had to be added.
//
// r is not modified.
func (r *Record) Rewrite(recordPath string, changed map[string][]byte, extra []Entry) *Record {
	recordPath = path.Clean(recordPath)
	ret := &Record{
		Entries: make([]Entry, 0, len(r.Entries)+len(extra)+1),
	}
	haveSelf := false
	for _, entry := range r.Entries {
		name := path.Clean(entry.Path)
		switch {
		case name == recordPath:
			haveSelf = true
			entry = Entry{Path: entry.Path, Size: -1}
		default:
			if content, ok := changed[name]; ok {
				entry = Recompute(entry.Path, content)
			}
		}
		ret.Entries = append(ret.Entries, entry)
	}
	ret.Entries = append(ret.Entries, extra...)
	if !haveSelf {
		ret.Entries = append(ret.Entries, Entry{Path: recordPath, Size: -1})
	}
	return ret
}
