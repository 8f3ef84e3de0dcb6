// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"
	"text/tabwriter"

	"github.com/davecgh/go-spew/spew"
	"github.com/pmezard/go-difflib/difflib"
)

func openZip(archive []byte) (*zip.Reader, error) {
	return zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
}

// DumpArchiveFull returns a textual dump of every member of a ZIP archive: its header, its raw
// compressed bytes, and its uncompressed content.
func DumpArchiveFull(archive []byte) (string, error) {
	var spewConfig = spew.ConfigState{
		Indent:                  "  ",
		DisableMethods:          true,
		DisableCapacities:       true,
		DisablePointerAddresses: true,
		SortKeys:                true,
	}

	zipReader, err := openZip(archive)
	if err != nil {
		return "", err
	}

	ret := new(strings.Builder)
	for _, file := range zipReader.File {
		if _, err := fmt.Fprintf(ret, "zipHeader = %s", spewConfig.Sdump(file.FileHeader)); err != nil {
			return "", err
		}

		raw, err := readRaw(file)
		if err != nil {
			return "", err
		}
		if _, err := fmt.Fprintf(ret, "zipRaw =%s", spewConfig.Sdump(raw)); err != nil {
			return "", err
		}

		content, err := readContent(file)
		if err != nil {
			return "", err
		}
		if _, err := fmt.Fprintf(ret, "zipContent =%s", spewConfig.Sdump(content)); err != nil {
			return "", err
		}
	}
	if _, err := fmt.Fprintf(ret, "comment = %q\n", zipReader.Comment); err != nil {
		return "", err
	}

	return ret.String(), nil
}

// DumpArchiveListing returns a one-line-per-member listing of a ZIP archive.
func DumpArchiveListing(archive []byte) (string, error) {
	zipReader, err := openZip(archive)
	if err != nil {
		return "", err
	}

	ret := new(strings.Builder)
	table := tabwriter.NewWriter(
		ret, // output
		0,   // minwidth
		1,   // tabwidth
		1,   // padding
		' ', // padchar
		0)   // flags
	for _, file := range zipReader.File {
		if _, err := fmt.Fprintln(table, strings.Join([]string{
			"",
			file.Mode().String(),
			fmt.Sprintf("method=%d", file.Method),
			fmt.Sprintf("crc=%08x", file.CRC32),
			fmt.Sprintf("% 10d", file.CompressedSize64),
			fmt.Sprintf("% 10d", file.UncompressedSize64),
			file.Name,
		}, "\t")); err != nil {
			return "", err
		}
	}
	if err := table.Flush(); err != nil {
		return "", err
	}

	return ret.String(), nil
}

func readRaw(file *zip.File) ([]byte, error) {
	reader, err := file.OpenRaw()
	if err != nil {
		return nil, err
	}
	return io.ReadAll(reader)
}

func readContent(file *zip.File) (_ []byte, err error) {
	reader, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer func() {
		if _err := reader.Close(); _err != nil && err == nil {
			err = _err
		}
	}()
	return io.ReadAll(reader)
}

// ReadMember returns the uncompressed content of the named member of a ZIP archive.
func ReadMember(t *testing.T, archive []byte, name string) []byte {
	t.Helper()
	zipReader, err := openZip(archive)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	for _, file := range zipReader.File {
		if file.Name == name {
			content, err := readContent(file)
			if err != nil {
				t.Fatalf("read %q: %v", name, err)
			}
			return content
		}
	}
	t.Fatalf("archive has no member %q", name)
	return nil
}

// RawMember returns the header and raw compressed bytes of the named member of a ZIP archive.
func RawMember(t *testing.T, archive []byte, name string) (zip.FileHeader, []byte) {
	t.Helper()
	zipReader, err := openZip(archive)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	for _, file := range zipReader.File {
		if file.Name == name {
			raw, err := readRaw(file)
			if err != nil {
				t.Fatalf("read %q: %v", name, err)
			}
			return file.FileHeader, raw
		}
	}
	t.Fatalf("archive has no member %q", name)
	return zip.FileHeader{}, nil
}

func diffStrings(exp, act string) string {
	diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(exp),
		B:        difflib.SplitLines(act),
		FromFile: "Expected",
		FromDate: "",
		ToFile:   "Actual",
		ToDate:   "",
		Context:  1,
	})
	return diff
}

// AssertEqualArchives asserts that two ZIP archives have the same members, with the same headers
// and the same compressed and uncompressed bytes.
func AssertEqualArchives(t *testing.T, exp, act []byte) bool {
	t.Helper()

	// First just compare the listings, in order to "fail fast" and give more readable output.
	expStr, err := DumpArchiveListing(exp)
	if err != nil {
		t.Errorf("error dumping expected archive listing: %v", err)
		return false
	}
	actStr, err := DumpArchiveListing(act)
	if err != nil {
		t.Errorf("error dumping actual archive listing: %v", err)
		return false
	}
	if expStr != actStr {
		t.Errorf("Listing diff:\n%s", diffStrings(expStr, actStr))
		return false
	}

	// OK, that passed, now do a more comprehensive diff.
	expStr, err = DumpArchiveFull(exp)
	if err != nil {
		t.Errorf("error dumping expected archive: %v", err)
		return false
	}
	actStr, err = DumpArchiveFull(act)
	if err != nil {
		t.Errorf("error dumping actual archive: %v", err)
		return false
	}
	if expStr != actStr {
		t.Errorf("Full diff:\n%s", diffStrings(expStr, actStr))
		return false
	}

	return true
}
