// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package pep566 implements the core metadata file format for Python packages, as specified by
// PEP 566 -- Metadata for Python Software Packages 2.1, and amended by later metadata versions.
//
// https://www.python.org/dev/peps/pep-0566/
// https://packaging.python.org/specifications/core-metadata/
package pep566

import (
	"fmt"
	"strings"
)

// ListFields are the fields that may be given multiple times.
var ListFields = []string{
	"Dynamic",
	"Platform",
	"Supported-Platform",
	"Classifier",
	"Requires-Dist",
	"Requires-External",
	"Project-URL",
	"Provides-Extra",
	"Provides-Dist",
	"Obsoletes-Dist",
	"License-File",
}

// KnownFields are all of the fields defined by the core metadata specifications, in the order
// that they are documented.
var KnownFields = []string{
	"Metadata-Version",
	"Name",
	"Version",
	"Dynamic",
	"Platform",
	"Supported-Platform",
	"Summary",
	"Description",
	"Description-Content-Type",
	"Keywords",
	"Home-page",
	"Download-URL",
	"Author",
	"Author-email",
	"Maintainer",
	"Maintainer-email",
	"License",
	"License-Expression",
	"License-File",
	"Classifier",
	"Requires-Dist",
	"Requires-Python",
	"Requires-External",
	"Project-URL",
	"Provides-Extra",
	"Provides-Dist",
	"Obsoletes-Dist",
}

// IsKnownField reports whether key is one of KnownFields, compared case-insensitively.
func IsKnownField(key string) bool {
	for _, known := range KnownFields {
		if strings.EqualFold(known, key) {
			return true
		}
	}
	return false
}

const descriptionKey = "Description"

// Metadata is the decoded contents of a distribution's METADATA file.
//
// The Description may be carried either as a header field or as the message body following the
// headers; Metadata remembers which, and encodes it the same way.
type Metadata struct {
	fields            *Fields
	descriptionInBody bool
}

// ParseMetadata parses a METADATA file.  The Name and Version fields are required.
func ParseMetadata(data []byte) (*Metadata, error) {
	fields, body, err := ParseFields(data, ListFields)
	if err != nil {
		return nil, fmt.Errorf("pep566.ParseMetadata: %w", err)
	}
	ret := &Metadata{fields: fields}
	if body != "" {
		ret.fields.put(descriptionKey, ScalarValue(body))
		ret.descriptionInBody = true
	}
	for _, key := range []string{"Name", "Version"} {
		val, ok, err := fields.Scalar(key)
		if err != nil {
			return nil, fmt.Errorf("pep566.ParseMetadata: %w", err)
		}
		if !ok || val == "" {
			return nil, fmt.Errorf("pep566.ParseMetadata: %w: missing required field %q", ErrMetadataParse, key)
		}
	}
	return ret, nil
}

// MarshalText encodes the metadata.  Fields are written in first-occurrence order, and a
// body-form Description is written after a blank line.
func (m *Metadata) MarshalText() ([]byte, error) {
	var buf strings.Builder
	var skip func(string) bool
	if m.descriptionInBody {
		skip = func(key string) bool { return strings.EqualFold(key, descriptionKey) }
	}
	m.fields.encode(&buf, skip)
	if m.descriptionInBody {
		if desc := m.scalar(descriptionKey); desc != "" {
			buf.WriteByte('\n')
			buf.WriteString(desc)
		}
	}
	return []byte(buf.String()), nil
}

// Fields returns the underlying field mapping.  Changes made to it are reflected in m.
func (m *Metadata) Fields() *Fields {
	return m.fields
}

// Set sets a field through the generic tagged-value interface.  A known single-valued field must
// be given a Scalar, and Name and Version must not be empty.
func (m *Metadata) Set(key string, val Value) error {
	if val.Kind == List && IsKnownField(key) && !m.fields.IsList(key) {
		return fmt.Errorf("field %q: %w: have %v, want %v", key, ErrWrongFieldShape, List, Scalar)
	}
	if strings.EqualFold(key, "Name") || strings.EqualFold(key, "Version") {
		if val.Kind == Scalar && len(val.Values) == 1 && val.Values[0] == "" {
			return fmt.Errorf("field %q: %w: required field must not be empty", key, ErrMetadataParse)
		}
	}
	if err := m.fields.Set(key, val); err != nil {
		return err
	}
	if strings.EqualFold(key, descriptionKey) && val.Kind == Scalar {
		m.descriptionInBody = true
	}
	return nil
}

// Delete removes a field, reporting whether it was present.
func (m *Metadata) Delete(key string) bool {
	if strings.EqualFold(key, descriptionKey) {
		m.descriptionInBody = false
	}
	return m.fields.Delete(key)
}

// scalar returns the first value of key, or "" if it is absent.
func (m *Metadata) scalar(key string) string {
	val, ok := m.fields.Get(key)
	if !ok || len(val.Values) == 0 {
		return ""
	}
	return val.Values[0]
}

func (m *Metadata) list(key string) []string {
	val, _ := m.fields.Get(key)
	return val.Values
}

func (m *Metadata) Name() string           { return m.scalar("Name") }
func (m *Metadata) Version() string        { return m.scalar("Version") }
func (m *Metadata) Summary() string        { return m.scalar("Summary") }
func (m *Metadata) Description() string    { return m.scalar(descriptionKey) }
func (m *Metadata) Author() string         { return m.scalar("Author") }
func (m *Metadata) AuthorEmail() string    { return m.scalar("Author-email") }
func (m *Metadata) License() string        { return m.scalar("License") }
func (m *Metadata) RequiresPython() string { return m.scalar("Requires-Python") }
func (m *Metadata) Classifiers() []string  { return m.list("Classifier") }
func (m *Metadata) RequiresDist() []string { return m.list("Requires-Dist") }
func (m *Metadata) ProjectURLs() []string  { return m.list("Project-URL") }

func (m *Metadata) SetName(str string)           { m.fields.put("Name", ScalarValue(str)) }
func (m *Metadata) SetVersion(str string)        { m.fields.put("Version", ScalarValue(str)) }
func (m *Metadata) SetSummary(str string)        { m.fields.put("Summary", ScalarValue(str)) }
func (m *Metadata) SetAuthor(str string)         { m.fields.put("Author", ScalarValue(str)) }
func (m *Metadata) SetAuthorEmail(str string)    { m.fields.put("Author-email", ScalarValue(str)) }
func (m *Metadata) SetLicense(str string)        { m.fields.put("License", ScalarValue(str)) }
func (m *Metadata) SetRequiresPython(str string) { m.fields.put("Requires-Python", ScalarValue(str)) }

// SetDescription sets the long description; it is always encoded as the message body.
func (m *Metadata) SetDescription(str string) {
	m.fields.put(descriptionKey, ScalarValue(str))
	m.descriptionInBody = true
}

func (m *Metadata) SetClassifiers(strs []string)  { m.fields.put("Classifier", ListValue(strs...)) }
func (m *Metadata) SetRequiresDist(strs []string) { m.fields.put("Requires-Dist", ListValue(strs...)) }
func (m *Metadata) SetProjectURLs(strs []string)  { m.fields.put("Project-URL", ListValue(strs...)) }

func (m *Metadata) AddClassifier(str string)  { m.addList("Classifier", str) }
func (m *Metadata) AddRequiresDist(str string) { m.addList("Requires-Dist", str) }
func (m *Metadata) AddProjectURL(str string)  { m.addList("Project-URL", str) }

func (m *Metadata) addList(key, str string) {
	// Declared list keys are always parsed as Lists, so Add cannot see a Scalar here.
	if err := m.fields.Add(key, str); err != nil {
		panic(err)
	}
}
