// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package bdist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/editwheel/pkg/glob"
	"github.com/datawire/editwheel/pkg/python/pep425"
	"github.com/datawire/editwheel/pkg/python/pep566"
	"github.com/datawire/editwheel/pkg/python/pypa/record"
	"github.com/datawire/editwheel/pkg/ziputil"
)

// ErrUnknownField is returned by the generic metadata accessors of an Editor in strict mode,
// for a key that is not a known core metadata field.
var ErrUnknownField = errors.New("unknown metadata field")

// Editor is an open wheel file with pending edits.  Edits are held in memory until Save or
// WriteWheel; members that no edit touches are written back byte-for-byte.
//
// An Editor is safe for concurrent use; calls are serialized.
type Editor struct {
	mu sync.Mutex

	filename string
	fromFile bool
	index    *ziputil.Index
	strict   bool

	distInfo string
	metadata *pep566.Metadata
	wheel    *WheelDescriptor
	record   *record.Record

	// Encodings of metadata and wheel as opened, to tell whether they need to be regenerated.
	metadataBase []byte
	wheelBase    []byte

	rpathEdits []rpathEdit
	// Decompressed content of ELF members, by name.
	elfCache map[string][]byte
}

type rpathEdit struct {
	pattern *glob.Pattern
	value   string
}

// Option configures an Editor.
type Option func(*Editor)

// WithStrictFields makes the generic metadata accessors reject keys that are not known core
// metadata fields.
func WithStrictFields() Option {
	return func(e *Editor) {
		e.strict = true
	}
}

// Open opens a wheel file for editing.  The file stays open until the Editor is closed.
func Open(ctx context.Context, filename string, opts ...Option) (*Editor, error) {
	idx, err := ziputil.OpenFile(filename)
	if err != nil {
		return nil, fmt.Errorf("bdist.Open: %w", err)
	}
	e, err := newEditor(ctx, filename, idx, opts)
	if err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("bdist.Open: %s: %w", filename, err)
	}
	e.fromFile = true
	return e, nil
}

// OpenBytes opens an in-memory wheel for editing.  name is only used for log and error messages;
// Save needs an explicit destination.
func OpenBytes(ctx context.Context, name string, data []byte, opts ...Option) (*Editor, error) {
	idx, err := ziputil.OpenBytes(data)
	if err != nil {
		return nil, fmt.Errorf("bdist.OpenBytes: %s: %w", name, err)
	}
	e, err := newEditor(ctx, name, idx, opts)
	if err != nil {
		return nil, fmt.Errorf("bdist.OpenBytes: %s: %w", name, err)
	}
	return e, nil
}

func newEditor(ctx context.Context, filename string, idx *ziputil.Index, opts []Option) (*Editor, error) {
	e := &Editor{
		filename: filename,
		index:    idx,
		elfCache: make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.load(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// load (re-)reads the dist-info files from e.index, discarding any pending edits.
func (e *Editor) load(ctx context.Context) error {
	distInfo, err := distInfoDir(e.index)
	if err != nil {
		return err
	}

	metadataBytes, err := readMember(e.index, path.Join(distInfo, "METADATA"))
	if err != nil {
		return err
	}
	metadata, err := pep566.ParseMetadata(metadataBytes)
	if err != nil {
		return fmt.Errorf("%s: %w", path.Join(distInfo, "METADATA"), err)
	}

	wheelBytes, err := readMember(e.index, path.Join(distInfo, "WHEEL"))
	if err != nil {
		return err
	}
	wheel, err := ParseWheelDescriptor(wheelBytes)
	if err != nil {
		return fmt.Errorf("%s: %w", path.Join(distInfo, "WHEEL"), err)
	}
	if wheel.newerMinor() {
		dlog.Warnf(ctx, "%s: Wheel-Version (%s) is newer than this tool supports (%v)",
			e.filename, wheel.WheelVersion(), specVersion)
	}

	recordBytes, err := readMember(e.index, path.Join(distInfo, "RECORD"))
	if err != nil {
		return err
	}
	rec, err := record.Parse(recordBytes)
	if err != nil {
		return fmt.Errorf("%s: %w", path.Join(distInfo, "RECORD"), err)
	}

	e.distInfo = distInfo
	e.metadata = metadata
	e.wheel = wheel
	e.record = rec
	if e.metadataBase, err = metadata.MarshalText(); err != nil {
		return err
	}
	if e.wheelBase, err = wheel.MarshalText(); err != nil {
		return err
	}
	e.rpathEdits = nil
	e.elfCache = make(map[string][]byte)
	dlog.Debugf(ctx, "bdist: opened %q: %d members, dist-info %q",
		e.filename, len(e.index.Members()), distInfo)
	return nil
}

// Close releases the underlying file.  Pending edits are discarded.
func (e *Editor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.fromFile {
		return nil
	}
	e.fromFile = false
	return e.index.Close()
}

func (e *Editor) metadataPath() string { return path.Join(e.distInfo, "METADATA") }
func (e *Editor) wheelPath() string    { return path.Join(e.distInfo, "WHEEL") }
func (e *Editor) recordPath() string   { return path.Join(e.distInfo, "RECORD") }

// DistInfoDir returns the name of the wheel's ".dist-info" directory.
func (e *Editor) DistInfoDir() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.distInfo
}

// Members returns the names of the archive's members, in archive order.
func (e *Editor) Members() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	members := e.index.Members()
	ret := make([]string, 0, len(members))
	for _, member := range members {
		ret = append(ret, member.Name())
	}
	return ret
}

// Dirty reports whether there are edits that Save would write.
func (e *Editor) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	metadataBytes, wheelBytes := e.encodings()
	return !bytes.Equal(metadataBytes, e.metadataBase) ||
		!bytes.Equal(wheelBytes, e.wheelBase) ||
		len(e.rpathEdits) > 0
}

func (e *Editor) encodings() (metadataBytes, wheelBytes []byte) {
	// Neither encoder can fail.
	metadataBytes, _ = e.metadata.MarshalText()
	wheelBytes, _ = e.wheel.MarshalText()
	return metadataBytes, wheelBytes
}

func (e *Editor) withMetadata(fn func(*pep566.Metadata)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.metadata)
}

func (e *Editor) scalar(get func(*pep566.Metadata) string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return get(e.metadata)
}

func (e *Editor) list(get func(*pep566.Metadata) []string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return get(e.metadata)
}

func (e *Editor) Name() string           { return e.scalar((*pep566.Metadata).Name) }
func (e *Editor) Version() string        { return e.scalar((*pep566.Metadata).Version) }
func (e *Editor) Summary() string        { return e.scalar((*pep566.Metadata).Summary) }
func (e *Editor) Description() string    { return e.scalar((*pep566.Metadata).Description) }
func (e *Editor) Author() string         { return e.scalar((*pep566.Metadata).Author) }
func (e *Editor) AuthorEmail() string    { return e.scalar((*pep566.Metadata).AuthorEmail) }
func (e *Editor) License() string        { return e.scalar((*pep566.Metadata).License) }
func (e *Editor) RequiresPython() string { return e.scalar((*pep566.Metadata).RequiresPython) }
func (e *Editor) Classifiers() []string  { return e.list((*pep566.Metadata).Classifiers) }
func (e *Editor) RequiresDist() []string { return e.list((*pep566.Metadata).RequiresDist) }
func (e *Editor) ProjectURLs() []string  { return e.list((*pep566.Metadata).ProjectURLs) }

func (e *Editor) SetName(str string) {
	e.withMetadata(func(m *pep566.Metadata) { m.SetName(str) })
}

func (e *Editor) SetVersion(str string) {
	e.withMetadata(func(m *pep566.Metadata) { m.SetVersion(str) })
}

func (e *Editor) SetSummary(str string) {
	e.withMetadata(func(m *pep566.Metadata) { m.SetSummary(str) })
}

func (e *Editor) SetDescription(str string) {
	e.withMetadata(func(m *pep566.Metadata) { m.SetDescription(str) })
}

func (e *Editor) SetAuthor(str string) {
	e.withMetadata(func(m *pep566.Metadata) { m.SetAuthor(str) })
}

func (e *Editor) SetAuthorEmail(str string) {
	e.withMetadata(func(m *pep566.Metadata) { m.SetAuthorEmail(str) })
}

func (e *Editor) SetLicense(str string) {
	e.withMetadata(func(m *pep566.Metadata) { m.SetLicense(str) })
}

func (e *Editor) SetRequiresPython(str string) {
	e.withMetadata(func(m *pep566.Metadata) { m.SetRequiresPython(str) })
}

func (e *Editor) SetClassifiers(strs []string) {
	e.withMetadata(func(m *pep566.Metadata) { m.SetClassifiers(strs) })
}

func (e *Editor) SetRequiresDist(strs []string) {
	e.withMetadata(func(m *pep566.Metadata) { m.SetRequiresDist(strs) })
}

func (e *Editor) SetProjectURLs(strs []string) {
	e.withMetadata(func(m *pep566.Metadata) { m.SetProjectURLs(strs) })
}

func (e *Editor) AddClassifier(str string) {
	e.withMetadata(func(m *pep566.Metadata) { m.AddClassifier(str) })
}

func (e *Editor) AddRequiresDist(str string) {
	e.withMetadata(func(m *pep566.Metadata) { m.AddRequiresDist(str) })
}

func (e *Editor) AddProjectURL(str string) {
	e.withMetadata(func(m *pep566.Metadata) { m.AddProjectURL(str) })
}

func (e *Editor) checkKey(key string) error {
	if e.strict && !pep566.IsKnownField(key) {
		return fmt.Errorf("%w: %q", ErrUnknownField, key)
	}
	return nil
}

// MetadataKeys returns the names of the METADATA fields, in file order.
func (e *Editor) MetadataKeys() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metadata.Fields().Keys()
}

// GetMetadata returns any METADATA field as a tagged value.
func (e *Editor) GetMetadata(key string) (pep566.Value, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkKey(key); err != nil {
		return pep566.Value{}, false, err
	}
	val, ok := e.metadata.Fields().Get(key)
	return val, ok, nil
}

// GetScalar returns a single-valued METADATA field.  It is an error wrapping
// pep566.ErrWrongFieldShape if the field is a list.
func (e *Editor) GetScalar(key string) (string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkKey(key); err != nil {
		return "", false, err
	}
	return e.metadata.Fields().Scalar(key)
}

// GetList returns a multi-valued METADATA field.  It is an error wrapping
// pep566.ErrWrongFieldShape if the field is a scalar.
func (e *Editor) GetList(key string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkKey(key); err != nil {
		return nil, err
	}
	return e.metadata.Fields().List(key)
}

// SetMetadata sets any METADATA field.
func (e *Editor) SetMetadata(key string, val pep566.Value) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkKey(key); err != nil {
		return err
	}
	if err := e.metadata.Set(key, val); err != nil {
		return fmt.Errorf("bdist.SetMetadata: %w", err)
	}
	return nil
}

// DeleteMetadata removes a METADATA field, reporting whether it was present.  Name and Version
// are required and cannot be deleted.
func (e *Editor) DeleteMetadata(key string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkKey(key); err != nil {
		return false, err
	}
	if strings.EqualFold(key, "Name") || strings.EqualFold(key, "Version") {
		return false, fmt.Errorf("bdist.DeleteMetadata: cannot delete required field %q", key)
	}
	return e.metadata.Delete(key), nil
}

// Tags returns the wheel's expanded compatibility tags, in WHEEL file order.
func (e *Editor) Tags() []pep425.Tag {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wheel.Tags()
}

// SetTags replaces the wheel's compatibility tags.
func (e *Editor) SetTags(tags []pep425.Tag) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wheel.SetTags(tags)
}

// compressedTag returns the tag set in the compressed form used in filenames.
func (e *Editor) compressedTag() pep425.Tag {
	return pep425.Compress(e.wheel.Tags())
}

// PythonTag returns the compressed set of Python tags, for example "py2.py3".
func (e *Editor) PythonTag() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.compressedTag().Python
}

// ABITag returns the compressed set of ABI tags, for example "none".
func (e *Editor) ABITag() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.compressedTag().ABI
}

// PlatformTag returns the compressed set of platform tags, for example
// "manylinux_2_17_x86_64.manylinux2014_x86_64".
func (e *Editor) PlatformTag() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.compressedTag().Platform
}

func (e *Editor) mapTags(fn func(pep425.Tag) pep425.Tag) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	tags := e.wheel.Tags()
	for i := range tags {
		tags[i] = fn(tags[i])
	}
	return e.wheel.SetTags(tags)
}

// SetPythonTag replaces the Python component of every tag.  A compressed set ("py2.py3") is
// expanded to one tag per value.
func (e *Editor) SetPythonTag(python string) error {
	return e.mapTags(func(tag pep425.Tag) pep425.Tag {
		tag.Python = python
		return tag
	})
}

// SetABITag replaces the ABI component of every tag.
func (e *Editor) SetABITag(abi string) error {
	return e.mapTags(func(tag pep425.Tag) pep425.Tag {
		tag.ABI = abi
		return tag
	})
}

// SetPlatformTag replaces the platform component of every tag.
func (e *Editor) SetPlatformTag(platform string) error {
	return e.mapTags(func(tag pep425.Tag) pep425.Tag {
		tag.Platform = platform
		return tag
	})
}

// Build returns the WHEEL file's build number, or "".
func (e *Editor) Build() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wheel.Build()
}

// SetBuild sets the WHEEL file's build number; "" removes it.
func (e *Editor) SetBuild(build string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wheel.SetBuild(build)
}

// WheelVersion returns the WHEEL file's Wheel-Version.
func (e *Editor) WheelVersion() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wheel.WheelVersion()
}

// Generator returns the WHEEL file's Generator.
func (e *Editor) Generator() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wheel.Generator()
}

// RootIsPurelib returns the WHEEL file's Root-Is-Purelib.
func (e *Editor) RootIsPurelib() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wheel.RootIsPurelib()
}

// Filename returns the wheel filename implied by the current name, version, build number, and
// tags, for example "demo-1.0.0-cp39-cp39-linux_x86_64.whl".
func (e *Editor) Filename() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	data := FileNameData{
		Distribution:     e.metadata.Name(),
		Version:          e.metadata.Version(),
		CompatibilityTag: e.compressedTag(),
	}
	if build := e.wheel.Build(); build != "" {
		tag, err := ParseBuildTag(build)
		if err != nil {
			return "", fmt.Errorf("bdist.Filename: %w", err)
		}
		data.BuildTag = tag
	}
	name, err := GenerateFilename(data)
	if err != nil {
		return "", fmt.Errorf("bdist.Filename: %w", err)
	}
	return name, nil
}
