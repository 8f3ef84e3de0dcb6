// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/flate"
)

// WheelFile is a member of an archive built by BuildWheel.
type WheelFile struct {
	Name    string
	Content []byte
	// Method is zip.Store or zip.Deflate; the zero value is zip.Store.
	Method uint16
	// Mode defaults to 0644 for files and 0755 for directories (names ending in "/").
	Mode fs.FileMode
}

// WheelTime is the modification time of every member of an archive built by BuildWheel.
var WheelTime = time.Date(2021, time.November, 13, 12, 0, 0, 0, time.UTC) //nolint:gochecknoglobals // Would be 'const'.

// BuildWheel returns a ZIP archive containing the given files, in order.  If recordName is
// non-empty, a RECORD file of that name listing every non-directory file is added last.
func BuildWheel(t *testing.T, recordName string, files ...WheelFile) []byte {
	t.Helper()

	if recordName != "" {
		var record strings.Builder
		for _, file := range files {
			if strings.HasSuffix(file.Name, "/") {
				continue
			}
			sum := sha256.Sum256(file.Content)
			fmt.Fprintf(&record, "%s,sha256=%s,%d\n",
				file.Name, base64.RawURLEncoding.EncodeToString(sum[:]), len(file.Content))
		}
		fmt.Fprintf(&record, "%s,,\n", recordName)
		files = append(files, WheelFile{
			Name:    recordName,
			Content: []byte(record.String()),
			Method:  zip.Deflate,
		})
	}

	var buf bytes.Buffer
	zipWriter := zip.NewWriter(&buf)
	zipWriter.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})
	for _, file := range files {
		header := &zip.FileHeader{
			Name:     file.Name,
			Method:   file.Method,
			Modified: WheelTime,
		}
		mode := file.Mode
		switch {
		case strings.HasSuffix(file.Name, "/"):
			if mode == 0 {
				mode = 0o755
			}
			mode |= fs.ModeDir
			header.Method = zip.Store
		case mode == 0:
			mode = 0o644
		}
		header.SetMode(mode)
		writer, err := zipWriter.CreateHeader(header)
		if err != nil {
			t.Fatalf("create %q: %v", file.Name, err)
		}
		if _, err := writer.Write(file.Content); err != nil {
			t.Fatalf("write %q: %v", file.Name, err)
		}
	}
	if err := zipWriter.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	return buf.Bytes()
}

// Names and contents of the members of SampleWheel.
const (
	SampleDistInfo = "demo-1.0.0.dist-info"
	SampleMetadata = SampleDistInfo + "/METADATA"
	SampleWHEEL    = SampleDistInfo + "/WHEEL"
	SampleRECORD   = SampleDistInfo + "/RECORD"

	SampleNative = "demo/_native.so"        // ELF with DT_RUNPATH=SampleNativeRunPath
	SampleLib    = "demo.libs/libdemo.so.1" // ELF with DT_RPATH="$ORIGIN"
	SampleNotELF = "demo/not_elf.so"        // a text file with a ".so" name
	SampleData   = "demo/data.txt"          // stored rather than deflated
	SampleInitPy = "demo/__init__.py"

	SampleNativeRunPath = "$ORIGIN/../demo.libs:$ORIGIN/../lib"

	SampleMetadataContent = `Metadata-Version: 2.1
Name: demo
Version: 1.0.0
Summary: A demonstration package
Author: Jane Doe
Author-email: jane@example.com
License: MIT
Classifier: Programming Language :: Python :: 3
Classifier: Operating System :: POSIX :: Linux
Requires-Python: >=3.7
Requires-Dist: requests (>=2.0)
Description-Content-Type: text/markdown

# demo

A package for testing.
`

	SampleWHEELContent = `Wheel-Version: 1.0
Generator: bdist_wheel (0.37.1)
Root-Is-Purelib: false
Tag: cp39-cp39-linux_x86_64
`
)

// SampleWheelFiles returns the members of SampleWheel, less RECORD.
func SampleWheelFiles() []WheelFile {
	native := BuildELF(ELFOptions{
		Needed:   "libdemo.so.1",
		RunPath:  SampleNativeRunPath,
		Sections: true,
	})
	lib := BuildELF(ELFOptions{
		Needed: "libc.so.6",
		RPath:  "$ORIGIN",
	})
	return []WheelFile{
		{Name: "demo/"},
		{Name: SampleInitPy, Content: []byte("from demo._native import hello\n"), Method: zip.Deflate},
		{Name: SampleNative, Content: native, Method: zip.Deflate, Mode: 0o755},
		{Name: SampleNotELF, Content: []byte("not an ELF file\n"), Method: zip.Deflate},
		{Name: SampleData, Content: []byte("some data\n"), Method: zip.Store},
		{Name: SampleLib, Content: lib, Method: zip.Deflate, Mode: 0o755},
		{Name: SampleMetadata, Content: []byte(SampleMetadataContent), Method: zip.Deflate},
		{Name: SampleWHEEL, Content: []byte(SampleWHEELContent), Method: zip.Deflate},
	}
}

// SampleWheel returns a small but realistic platform wheel, named
// "demo-1.0.0-cp39-cp39-linux_x86_64.whl".
func SampleWheel(t *testing.T) []byte {
	t.Helper()
	return BuildWheel(t, SampleRECORD, SampleWheelFiles()...)
}
