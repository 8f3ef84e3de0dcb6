// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package bdist_test

import (
	"archive/zip"
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/datawire/dlib/derror"
	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/editwheel/pkg/elfutil"
	"github.com/datawire/editwheel/pkg/glob"
	"github.com/datawire/editwheel/pkg/python/pep425"
	"github.com/datawire/editwheel/pkg/python/pep566"
	"github.com/datawire/editwheel/pkg/python/pypa/bdist"
	"github.com/datawire/editwheel/pkg/python/pypa/record"
	"github.com/datawire/editwheel/pkg/testutil"
	"github.com/datawire/editwheel/pkg/ziputil"
)

const sampleFilename = "demo-1.0.0-cp39-cp39-linux_x86_64.whl"

func writeSample(t *testing.T) (string, []byte) {
	t.Helper()
	data := testutil.SampleWheel(t)
	filename := filepath.Join(t.TempDir(), sampleFilename)
	require.NoError(t, os.WriteFile(filename, data, 0o644))
	return filename, data
}

func writeWheel(t *testing.T, e *bdist.Editor) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, e.WriteWheel(dlog.NewTestContext(t, true), &buf))
	return buf.Bytes()
}

func TestAccessors(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	filename, _ := writeSample(t)

	e, err := bdist.Open(ctx, filename)
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, e.Close())
	}()

	assert.Equal(t, testutil.SampleDistInfo, e.DistInfoDir())
	assert.Equal(t, "demo", e.Name())
	assert.Equal(t, "1.0.0", e.Version())
	assert.Equal(t, "A demonstration package", e.Summary())
	assert.Equal(t, "Jane Doe", e.Author())
	assert.Equal(t, "jane@example.com", e.AuthorEmail())
	assert.Equal(t, "MIT", e.License())
	assert.Equal(t, ">=3.7", e.RequiresPython())
	assert.Equal(t, "# demo\n\nA package for testing.\n", e.Description())
	assert.Equal(t, []string{
		"Programming Language :: Python :: 3",
		"Operating System :: POSIX :: Linux",
	}, e.Classifiers())
	assert.Equal(t, []string{"requests (>=2.0)"}, e.RequiresDist())
	assert.Empty(t, e.ProjectURLs())

	assert.Equal(t, []pep425.Tag{{Python: "cp39", ABI: "cp39", Platform: "linux_x86_64"}}, e.Tags())
	assert.Equal(t, "cp39", e.PythonTag())
	assert.Equal(t, "cp39", e.ABITag())
	assert.Equal(t, "linux_x86_64", e.PlatformTag())
	assert.Equal(t, "1.0", e.WheelVersion())
	assert.Equal(t, "bdist_wheel (0.37.1)", e.Generator())
	assert.False(t, e.RootIsPurelib())
	assert.Equal(t, "", e.Build())

	name, err := e.Filename()
	require.NoError(t, err)
	assert.Equal(t, sampleFilename, name)

	assert.Len(t, e.Members(), 9)
	assert.False(t, e.Dirty())
}

func TestNoEditRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	filename, orig := writeSample(t)

	e, err := bdist.Open(ctx, filename)
	require.NoError(t, err)
	defer e.Close()

	testutil.AssertEqualArchives(t, orig, writeWheel(t, e))

	require.NoError(t, e.Save(ctx, ""))
	saved, err := os.ReadFile(filename)
	require.NoError(t, err)
	testutil.AssertEqualArchives(t, orig, saved)
	for _, name := range e.Members() {
		expHeader, expRaw := testutil.RawMember(t, orig, name)
		actHeader, actRaw := testutil.RawMember(t, saved, name)
		assert.Equal(t, expRaw, actRaw, name)
		assert.Equal(t, expHeader.CRC32, actHeader.CRC32, name)
		assert.Equal(t, expHeader.Method, actHeader.Method, name)
	}
}

func TestSetToCurrentValue(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	orig := testutil.SampleWheel(t)

	e, err := bdist.OpenBytes(ctx, sampleFilename, orig)
	require.NoError(t, err)

	e.SetName(e.Name())
	e.SetVersion(e.Version())
	e.SetSummary(e.Summary())
	e.SetDescription(e.Description())
	e.SetClassifiers(e.Classifiers())
	e.SetRequiresDist(e.RequiresDist())
	require.NoError(t, e.SetPlatformTag(e.PlatformTag()))
	require.NoError(t, e.SetPythonTag(e.PythonTag()))
	require.NoError(t, e.SetMetadata("License", pep566.ScalarValue("MIT")))
	require.NoError(t, e.SetRPath(testutil.SampleNative, testutil.SampleNativeRunPath))
	assert.True(t, e.Dirty())

	// The RPATH edit is a no-op, so nothing is regenerated.
	testutil.AssertEqualArchives(t, orig, writeWheel(t, e))
}

func TestUntouchedMembersIdentical(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	orig := testutil.SampleWheel(t)

	e, err := bdist.OpenBytes(ctx, sampleFilename, orig)
	require.NoError(t, err)
	e.SetSummary("A changed summary")
	require.NoError(t, e.SetRPath(testutil.SampleNative, "$ORIGIN"))
	out := writeWheel(t, e)

	for _, name := range []string{
		"demo/",
		testutil.SampleInitPy,
		testutil.SampleNotELF,
		testutil.SampleData,
		testutil.SampleLib,
		testutil.SampleWHEEL,
	} {
		expHeader, expRaw := testutil.RawMember(t, orig, name)
		actHeader, actRaw := testutil.RawMember(t, out, name)
		assert.Equal(t, expRaw, actRaw, name)
		assert.Equal(t, expHeader.CRC32, actHeader.CRC32, name)
		assert.Equal(t, expHeader.CompressedSize64, actHeader.CompressedSize64, name)
		assert.Equal(t, expHeader.UncompressedSize64, actHeader.UncompressedSize64, name)
		assert.Equal(t, expHeader.Method, actHeader.Method, name)
		assert.Equal(t, expHeader.Modified.Unix(), actHeader.Modified.Unix(), name)
	}

	metadata := string(testutil.ReadMember(t, out, testutil.SampleMetadata))
	assert.Contains(t, metadata, "Summary: A changed summary\n")
	assert.NotContains(t, metadata, "A demonstration package")
	native := testutil.ReadMember(t, out, testutil.SampleNative)
	val, ok, err := elfutil.ReadRPath(native)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "$ORIGIN", val)
	nativeHeader, _ := testutil.RawMember(t, out, testutil.SampleNative)
	assert.Equal(t, fs.FileMode(0o755), nativeHeader.Mode().Perm())

	// Same member order.
	reopened, err := bdist.OpenBytes(ctx, "out.whl", out)
	require.NoError(t, err)
	assert.Equal(t, e.Members(), reopened.Members())
}

func TestListAppendOrder(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)

	e, err := bdist.OpenBytes(ctx, sampleFilename, testutil.SampleWheel(t))
	require.NoError(t, err)
	e.AddClassifier("Topic :: Software Development")
	e.AddClassifier("Typing :: Typed")
	e.AddProjectURL("Homepage, https://example.com/")
	exp := []string{
		"Programming Language :: Python :: 3",
		"Operating System :: POSIX :: Linux",
		"Topic :: Software Development",
		"Typing :: Typed",
	}
	assert.Equal(t, exp, e.Classifiers())

	out := writeWheel(t, e)
	reopened, err := bdist.OpenBytes(ctx, "out.whl", out)
	require.NoError(t, err)
	assert.Equal(t, exp, reopened.Classifiers())
	assert.Equal(t, []string{"Homepage, https://example.com/"}, reopened.ProjectURLs())

	metadata := string(testutil.ReadMember(t, out, testutil.SampleMetadata))
	assert.Contains(t, metadata, strings.Join([]string{
		"Classifier: Programming Language :: Python :: 3",
		"Classifier: Operating System :: POSIX :: Linux",
		"Classifier: Topic :: Software Development",
		"Classifier: Typing :: Typed",
		"Requires-Python: >=3.7",
	}, "\n"))
	assert.True(t, strings.HasSuffix(metadata, "\n\n# demo\n\nA package for testing.\n"), metadata)
}

func TestRecordConsistency(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	orig := testutil.SampleWheel(t)

	e, err := bdist.OpenBytes(ctx, sampleFilename, orig)
	require.NoError(t, err)
	e.SetVersion("1.0.1")
	require.NoError(t, e.SetRPath("**/*.so*", "/opt"))
	out := writeWheel(t, e)

	newRecord, err := record.Parse(testutil.ReadMember(t, out, testutil.SampleRECORD))
	require.NoError(t, err)
	for _, entry := range newRecord.Entries {
		if entry.Path == testutil.SampleRECORD {
			assert.Equal(t, "", entry.Hash)
			assert.Equal(t, int64(-1), entry.Size)
			continue
		}
		exp := record.Recompute(entry.Path, testutil.ReadMember(t, out, entry.Path))
		assert.Equal(t, exp.Hash, entry.Hash, entry.Path)
		assert.Equal(t, exp.Size, entry.Size, entry.Path)
	}
	assert.Equal(t, testutil.SampleRECORD, newRecord.Entries[len(newRecord.Entries)-1].Path)

	// Rows for untouched files are carried over verbatim, in their original order.
	origLines := strings.Split(string(testutil.ReadMember(t, orig, testutil.SampleRECORD)), "\n")
	newLines := strings.Split(string(testutil.ReadMember(t, out, testutil.SampleRECORD)), "\n")
	require.Equal(t, len(origLines), len(newLines))
	for i := range origLines {
		switch {
		case strings.HasPrefix(origLines[i], testutil.SampleMetadata+","),
			strings.HasPrefix(origLines[i], testutil.SampleNative+","),
			strings.HasPrefix(origLines[i], testutil.SampleLib+","):
			assert.NotEqual(t, origLines[i], newLines[i])
		default:
			assert.Equal(t, origLines[i], newLines[i])
		}
	}

	reopened, err := bdist.OpenBytes(ctx, "out.whl", out)
	require.NoError(t, err)
	assert.NoError(t, reopened.Validate(ctx))
	assert.Equal(t, "1.0.1", reopened.Version())
}

func TestValidateAfterSave(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	filename, _ := writeSample(t)
	dst := filepath.Join(filepath.Dir(filename), "demo-2.0.0-cp39-cp39-linux_x86_64.whl")

	e, err := bdist.Open(ctx, filename)
	require.NoError(t, err)
	defer e.Close()
	assert.NoError(t, e.Validate(ctx))

	e.SetVersion("2.0.0")
	e.AddRequiresDist("urllib3")
	require.NoError(t, e.SetRPath("demo.libs/*", ""))
	assert.True(t, e.Dirty())
	name, err := e.Filename()
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(dst), name)

	require.NoError(t, e.Save(ctx, dst))
	assert.False(t, e.Dirty())
	assert.NoError(t, e.Validate(ctx))
	assert.Equal(t, "2.0.0", e.Version())
	val, ok, err := e.GetRPath(ctx, testutil.SampleLib)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "", val)

	// The source file is untouched.
	src, err := bdist.Open(ctx, filename)
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, "1.0.0", src.Version())
}

func TestValidateReportsEverything(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)

	good := testutil.SampleWheel(t)
	var files []testutil.WheelFile
	for _, file := range testutil.SampleWheelFiles() {
		switch file.Name {
		case testutil.SampleNotELF:
			continue
		case testutil.SampleData:
			file.Content = []byte("tampered\n")
		}
		files = append(files, file)
	}
	files = append(files,
		testutil.WheelFile{Name: "demo/extra.txt", Content: []byte("extra\n")},
		testutil.WheelFile{Name: testutil.SampleRECORD, Content: testutil.ReadMember(t, good, testutil.SampleRECORD)})
	bad := testutil.BuildWheel(t, "", files...)

	e, err := bdist.OpenBytes(ctx, "bad.whl", bad)
	require.NoError(t, err)
	err = e.Validate(ctx)
	require.Error(t, err)
	var errs derror.MultiError
	require.True(t, errors.As(err, &errs))
	assert.Len(t, errs, 4)

	var mismatches []string
	var missing, unlisted []string
	for _, err := range errs {
		var mismatch *record.HashMismatchError
		var missingErr *record.MissingFileError
		var unlistedErr *record.UnlistedFileError
		switch {
		case errors.As(err, &mismatch):
			assert.True(t, errors.Is(err, record.ErrHashMismatch))
			mismatches = append(mismatches, mismatch.Path+":"+mismatch.Field)
		case errors.As(err, &missingErr):
			assert.True(t, errors.Is(err, fs.ErrNotExist))
			missing = append(missing, missingErr.Path)
		case errors.As(err, &unlistedErr):
			unlisted = append(unlisted, unlistedErr.Path)
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, []string{testutil.SampleData + ":hash", testutil.SampleData + ":size"}, mismatches)
	assert.Equal(t, []string{testutil.SampleNotELF}, missing)
	assert.Equal(t, []string{"demo/extra.txt"}, unlisted)
}

func TestMissingRecordRowsAdded(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)

	files := append(testutil.SampleWheelFiles(),
		testutil.WheelFile{Name: testutil.SampleRECORD, Content: []byte(testutil.SampleMetadata + ",,\n")})
	e, err := bdist.OpenBytes(ctx, "partial.whl", testutil.BuildWheel(t, "", files...))
	require.NoError(t, err)
	assert.Error(t, e.Validate(ctx))
	assert.False(t, e.Dirty())
	// RECORD is rewritten even without edits, to add the missing rows.
	changes, err := e.Changes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{testutil.SampleRECORD}, changes)

	out := writeWheel(t, e)
	reopened, err := bdist.OpenBytes(ctx, "out.whl", out)
	require.NoError(t, err)
	// The METADATA row was there already, just without a hash.
	err = reopened.Validate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), testutil.SampleMetadata)
	assert.NotContains(t, err.Error(), "not listed")

	newRecord, err := record.Parse(testutil.ReadMember(t, out, testutil.SampleRECORD))
	require.NoError(t, err)
	var paths []string
	for _, entry := range newRecord.Entries {
		paths = append(paths, entry.Path)
	}
	assert.Equal(t, []string{
		testutil.SampleMetadata,
		testutil.SampleInitPy,
		testutil.SampleNative,
		testutil.SampleNotELF,
		testutil.SampleData,
		testutil.SampleLib,
		testutil.SampleWHEEL,
		testutil.SampleRECORD,
	}, paths)
}

// appendRawMember returns a copy of wheel with an extra member written as-is, so that the member
// can use a compression method that archive/zip cannot produce.
func appendRawMember(t *testing.T, wheel []byte, header zip.FileHeader, payload []byte) []byte {
	t.Helper()
	zipReader, err := zip.NewReader(bytes.NewReader(wheel), int64(len(wheel)))
	require.NoError(t, err)
	var buf bytes.Buffer
	zipWriter := zip.NewWriter(&buf)
	for _, file := range zipReader.File {
		require.NoError(t, zipWriter.Copy(file))
	}
	header.CompressedSize64 = uint64(len(payload))
	writer, err := zipWriter.CreateRaw(&header)
	require.NoError(t, err)
	_, err = writer.Write(payload)
	require.NoError(t, err)
	require.NoError(t, zipWriter.Close())
	return buf.Bytes()
}

func TestMissingRecordRowUnsupportedMethod(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	data := appendRawMember(t, testutil.SampleWheel(t),
		zip.FileHeader{Name: "demo/blob.bz2", Method: 12, UncompressedSize64: 100},
		[]byte("not really bzip2"))
	filename := filepath.Join(t.TempDir(), sampleFilename)
	require.NoError(t, os.WriteFile(filename, data, 0o644))

	e, err := bdist.Open(ctx, filename)
	require.NoError(t, err)
	defer e.Close()
	assert.False(t, e.Dirty())

	// The missing row needs the member's hash, which needs its content.
	_, err = e.Changes(ctx)
	assert.True(t, errors.Is(err, ziputil.ErrUnsupportedCompression), "%v", err)
	e.SetSummary("edited")
	err = e.Save(ctx, "")
	assert.True(t, errors.Is(err, ziputil.ErrUnsupportedCompression), "%v", err)

	after, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.Equal(t, data, after)
	entries, err := os.ReadDir(filepath.Dir(filename))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSaveFailureIsAtomic(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	filename, orig := writeSample(t)

	e, err := bdist.Open(ctx, filename)
	require.NoError(t, err)
	defer e.Close()
	e.SetSummary("should not be written")
	// Fits in demo/_native.so, but not in demo.libs/libdemo.so.1.
	require.NoError(t, e.SetRPath("**/*.so*", "$ORIGIN/../../lib64"))

	err = e.Save(ctx, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, elfutil.ErrElfPatch))
	assert.Equal(t, elfutil.NewValueTooLong, elfutil.KindOf(err))
	assert.Contains(t, err.Error(), testutil.SampleLib)

	after, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.Equal(t, orig, after)
	entries, err := os.ReadDir(filepath.Dir(filename))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// The edits are still pending.
	assert.True(t, e.Dirty())
	assert.Equal(t, "should not be written", e.Summary())
}

func TestSetMetadataShapeRules(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	e, err := bdist.OpenBytes(ctx, sampleFilename, testutil.SampleWheel(t))
	require.NoError(t, err)

	err = e.SetMetadata("Summary", pep566.ListValue("a", "b"))
	assert.True(t, errors.Is(err, pep566.ErrWrongFieldShape), err)
	err = e.SetMetadata("Version", pep566.ListValue())
	assert.True(t, errors.Is(err, pep566.ErrWrongFieldShape), err)
	err = e.SetMetadata("Version", pep566.ScalarValue(""))
	assert.True(t, errors.Is(err, pep566.ErrMetadataParse), err)

	assert.Equal(t, "A demonstration package", e.Summary())
	assert.Equal(t, "1.0.0", e.Version())
	assert.False(t, e.Dirty())

	// Unknown fields may still be lists.
	require.NoError(t, e.SetMetadata("X-Tags", pep566.ListValue("a", "b")))
}

func TestSaveRejectsUnreadableMetadata(t *testing.T) {
	t.Parallel()
	type testcase struct {
		Edit func(*bdist.Editor)
	}
	testcases := map[string]testcase{
		"empty-version": {Edit: func(e *bdist.Editor) { e.SetVersion("") }},
		"empty-name":    {Edit: func(e *bdist.Editor) { e.SetName("") }},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			ctx := dlog.NewTestContext(t, true)
			filename, orig := writeSample(t)

			e, err := bdist.Open(ctx, filename)
			require.NoError(t, err)
			defer e.Close()
			e.SetSummary("should not be written")
			tc.Edit(e)

			err = e.Save(ctx, "")
			require.Error(t, err)
			assert.True(t, errors.Is(err, pep566.ErrMetadataParse), err)
			assert.NotContains(t, err.Error(), "could not re-open")

			after, err := os.ReadFile(filename)
			require.NoError(t, err)
			assert.Equal(t, orig, after)
			entries, err := os.ReadDir(filepath.Dir(filename))
			require.NoError(t, err)
			assert.Len(t, entries, 1)
		})
	}
}

func TestCloseReleasesFile(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	filename, _ := writeSample(t)

	e, err := bdist.Open(ctx, filename)
	require.NoError(t, err)
	require.NoError(t, e.Close())
	assert.NoError(t, e.Close())
	assert.Error(t, e.Save(ctx, ""))

	// An Editor that started in memory reads from its destination after saving to it.
	e, err = bdist.OpenBytes(ctx, sampleFilename, testutil.SampleWheel(t))
	require.NoError(t, err)
	e.SetLicense("MIT")
	require.NoError(t, e.Save(ctx, filename))
	e.SetLicense("Apache-2.0")
	require.NoError(t, e.Save(ctx, ""))
	require.NoError(t, e.Close())

	reopened, err := bdist.Open(ctx, filename)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, "Apache-2.0", reopened.License())
}

func TestNonELFMatchesSkipped(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	orig := testutil.SampleWheel(t)

	e, err := bdist.OpenBytes(ctx, sampleFilename, orig)
	require.NoError(t, err)
	matches, err := e.Match("demo/*.so")
	require.NoError(t, err)
	assert.Equal(t, []string{testutil.SampleNative, testutil.SampleNotELF}, matches)

	require.NoError(t, e.SetRPath("demo/*.so", "$ORIGIN/lib"))
	out := writeWheel(t, e)

	_, expRaw := testutil.RawMember(t, orig, testutil.SampleNotELF)
	_, actRaw := testutil.RawMember(t, out, testutil.SampleNotELF)
	assert.Equal(t, expRaw, actRaw)

	reopened, err := bdist.OpenBytes(ctx, "out.whl", out)
	require.NoError(t, err)
	val, ok, err := reopened.GetRPath(ctx, testutil.SampleNative)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "$ORIGIN/lib", val)
	assert.NoError(t, reopened.Validate(ctx))
}

func TestRPathAccess(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)

	e, err := bdist.OpenBytes(ctx, sampleFilename, testutil.SampleWheel(t))
	require.NoError(t, err)

	val, ok, err := e.GetRPath(ctx, testutil.SampleNative)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, testutil.SampleNativeRunPath, val)

	infos, err := e.ListRPaths(ctx)
	require.NoError(t, err)
	assert.Equal(t, []bdist.RPathInfo{
		{Member: testutil.SampleNative, Value: testutil.SampleNativeRunPath, Present: true},
		{Member: testutil.SampleLib, Value: "$ORIGIN", Present: true},
	}, infos)

	_, _, err = e.GetRPath(ctx, testutil.SampleNotELF)
	assert.Equal(t, elfutil.MalformedElf, elfutil.KindOf(err))
	_, _, err = e.GetRPath(ctx, "no/such/file.so")
	assert.True(t, errors.Is(err, fs.ErrNotExist), "%v", err)

	// Pending edits are not reflected until saved.
	require.NoError(t, e.SetRPath(testutil.SampleLib, "/opt"))
	val, _, err = e.GetRPath(ctx, testutil.SampleLib)
	require.NoError(t, err)
	assert.Equal(t, "$ORIGIN", val)

	err = e.SetRPath("demo/[", "$ORIGIN")
	assert.True(t, errors.Is(err, glob.ErrInvalidPattern), "%v", err)
	err = e.SetRPath("**", "a\x00b")
	assert.True(t, errors.Is(err, elfutil.ErrElfPatch), "%v", err)
}

func TestGenericMetadata(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	orig := testutil.SampleWheel(t)

	e, err := bdist.OpenBytes(ctx, sampleFilename, orig)
	require.NoError(t, err)

	val, ok, err := e.GetMetadata("classifier")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, pep566.List, val.Kind)
	assert.Len(t, val.Values, 2)

	_, _, err = e.GetMetadata("X-Nope")
	assert.NoError(t, err)

	_, _, err = e.GetScalar("Classifier")
	assert.True(t, errors.Is(err, pep566.ErrWrongFieldShape), "%v", err)
	_, err = e.GetList("Name")
	assert.True(t, errors.Is(err, pep566.ErrWrongFieldShape), "%v", err)
	err = e.SetMetadata("Classifier", pep566.ScalarValue("x"))
	assert.True(t, errors.Is(err, pep566.ErrWrongFieldShape), "%v", err)

	require.NoError(t, e.SetMetadata("X-Custom", pep566.ScalarValue("1")))
	str, ok, err := e.GetScalar("X-Custom")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", str)

	deleted, err := e.DeleteMetadata("License")
	require.NoError(t, err)
	assert.True(t, deleted)
	_, err = e.DeleteMetadata("Name")
	assert.Error(t, err)

	metadata := string(testutil.ReadMember(t, writeWheel(t, e), testutil.SampleMetadata))
	assert.Contains(t, metadata, "X-Custom: 1\n")
	assert.NotContains(t, metadata, "License:")

	strict, err := bdist.OpenBytes(ctx, sampleFilename, orig, bdist.WithStrictFields())
	require.NoError(t, err)
	err = strict.SetMetadata("X-Custom", pep566.ScalarValue("1"))
	assert.True(t, errors.Is(err, bdist.ErrUnknownField), "%v", err)
	_, _, err = strict.GetMetadata("X-Custom")
	assert.True(t, errors.Is(err, bdist.ErrUnknownField), "%v", err)
	_, err = strict.GetList("Requires-Dist")
	assert.NoError(t, err)
}

func TestTags(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)

	e, err := bdist.OpenBytes(ctx, sampleFilename, testutil.SampleWheel(t))
	require.NoError(t, err)

	require.NoError(t, e.SetPlatformTag("manylinux1_x86_64.manylinux2014_x86_64"))
	assert.Equal(t, []pep425.Tag{
		{Python: "cp39", ABI: "cp39", Platform: "manylinux1_x86_64"},
		{Python: "cp39", ABI: "cp39", Platform: "manylinux2014_x86_64"},
	}, e.Tags())
	assert.Equal(t, "manylinux1_x86_64.manylinux2014_x86_64", e.PlatformTag())

	require.NoError(t, e.SetABITag("abi3"))
	require.NoError(t, e.SetBuild("2"))
	name, err := e.Filename()
	require.NoError(t, err)
	assert.Equal(t, "demo-1.0.0-2-cp39-abi3-manylinux1_x86_64.manylinux2014_x86_64.whl", name)

	assert.Error(t, e.SetBuild("x2"))
	assert.Error(t, e.SetPlatformTag(""))
	assert.Error(t, e.SetPythonTag("py3-py2"))
	assert.Equal(t, "cp39", e.PythonTag())

	wheel := string(testutil.ReadMember(t, writeWheel(t, e), testutil.SampleWHEEL))
	assert.Equal(t, `Wheel-Version: 1.0
Generator: bdist_wheel (0.37.1)
Root-Is-Purelib: false
Tag: cp39-abi3-manylinux1_x86_64
Tag: cp39-abi3-manylinux2014_x86_64
Build: 2
`, wheel)
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()

	metadata := testutil.WheelFile{Name: "x-1.dist-info/METADATA", Content: []byte("Name: x\nVersion: 1\n")}
	wheel := testutil.WheelFile{Name: "x-1.dist-info/WHEEL", Content: []byte("Wheel-Version: 1.0\nTag: py3-none-any\n")}

	type TestCase struct {
		Input  func(t *testing.T) []byte
		ErrIs  error
		ErrStr string
	}
	testcases := map[string]TestCase{
		"not-a-zip": {
			Input: func(*testing.T) []byte { return []byte("PK but not really") },
			ErrIs: ziputil.ErrMalformedArchive,
		},
		"no-dist-info": {
			Input: func(t *testing.T) []byte {
				return testutil.BuildWheel(t, "RECORD", testutil.WheelFile{Name: "a.py"})
			},
			ErrStr: ".dist-info directory not found",
		},
		"two-dist-infos": {
			Input: func(t *testing.T) []byte {
				return testutil.BuildWheel(t, "x-1.dist-info/RECORD", metadata, wheel,
					testutil.WheelFile{Name: "y-1.dist-info/METADATA"})
			},
			ErrStr: "multiple .dist-info directories found",
		},
		"no-record": {
			Input: func(t *testing.T) []byte {
				return testutil.BuildWheel(t, "", metadata, wheel)
			},
			ErrIs: fs.ErrNotExist,
		},
		"no-version": {
			Input: func(t *testing.T) []byte {
				return testutil.BuildWheel(t, "x-1.dist-info/RECORD", wheel,
					testutil.WheelFile{Name: metadata.Name, Content: []byte("Name: x\n")})
			},
			ErrIs: pep566.ErrMetadataParse,
		},
		"bad-metadata-line": {
			Input: func(t *testing.T) []byte {
				return testutil.BuildWheel(t, "x-1.dist-info/RECORD", wheel,
					testutil.WheelFile{Name: metadata.Name, Content: []byte("Name: x\nVersion 1\n")})
			},
			ErrIs: pep566.ErrMetadataParse,
		},
		"no-tag": {
			Input: func(t *testing.T) []byte {
				return testutil.BuildWheel(t, "x-1.dist-info/RECORD", metadata,
					testutil.WheelFile{Name: wheel.Name, Content: []byte("Wheel-Version: 1.0\n")})
			},
			ErrStr: `missing required field "Tag"`,
		},
		"bad-tag": {
			Input: func(t *testing.T) []byte {
				return testutil.BuildWheel(t, "x-1.dist-info/RECORD", metadata,
					testutil.WheelFile{Name: wheel.Name, Content: []byte("Wheel-Version: 1.0\nTag: py3-none\n")})
			},
			ErrStr: "expected 3 dash-separated parts",
		},
		"future-wheel-version": {
			Input: func(t *testing.T) []byte {
				return testutil.BuildWheel(t, "x-1.dist-info/RECORD", metadata,
					testutil.WheelFile{Name: wheel.Name, Content: []byte("Wheel-Version: 2.0\nTag: py3-none-any\n")})
			},
			ErrStr: "is not compatible with this tool",
		},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			ctx := dlog.NewTestContext(t, true)
			_, err := bdist.OpenBytes(ctx, "test.whl", tc.Input(t))
			require.Error(t, err)
			if tc.ErrIs != nil {
				assert.True(t, errors.Is(err, tc.ErrIs), "%v", err)
			}
			if tc.ErrStr != "" {
				assert.Contains(t, err.Error(), tc.ErrStr)
			}
		})
	}

	ctx := dlog.NewTestContext(t, true)
	_, err := bdist.Open(ctx, filepath.Join(t.TempDir(), "missing.whl"))
	assert.True(t, errors.Is(err, fs.ErrNotExist), "%v", err)
}

func TestNewerMinorWheelVersion(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	data := testutil.BuildWheel(t, "x-1.dist-info/RECORD",
		testutil.WheelFile{Name: "x-1.dist-info/METADATA", Content: []byte("Name: x\nVersion: 1\n")},
		testutil.WheelFile{Name: "x-1.dist-info/WHEEL", Content: []byte("Wheel-Version: 1.9\nTag: py3-none-any\n")})
	e, err := bdist.OpenBytes(ctx, "x-1-py3-none-any.whl", data)
	require.NoError(t, err)
	assert.Equal(t, "1.9", e.WheelVersion())
	assert.NoError(t, e.Validate(ctx))
}

func TestSaveNeedsDestination(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	e, err := bdist.OpenBytes(ctx, sampleFilename, testutil.SampleWheel(t))
	require.NoError(t, err)
	assert.Error(t, e.Save(ctx, ""))

	dst := filepath.Join(t.TempDir(), sampleFilename)
	e.SetLicense("Apache-2.0")
	require.NoError(t, e.Save(ctx, dst))
	assert.NoError(t, e.Validate(ctx))
	assert.Equal(t, "Apache-2.0", e.License())
	// Now it has a file to default to.
	e.SetLicense("MIT")
	require.NoError(t, e.Save(ctx, ""))
	reopened, err := bdist.Open(ctx, dst)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, "MIT", reopened.License())
	assert.NoError(t, e.Close())
}
