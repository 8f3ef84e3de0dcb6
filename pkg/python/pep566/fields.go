// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pep566

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMetadataParse is wrapped by every *ParseError.
	ErrMetadataParse = errors.New("malformed metadata")
	// ErrWrongFieldShape is returned when a scalar field is accessed as a list, or vice-versa.
	ErrWrongFieldShape = errors.New("wrong field shape")
)

// ParseError describes a malformed line in an RFC 822-style manifest.
type ParseError struct {
	Line   int // 1-based
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v: line %d: %s: %q", ErrMetadataParse, e.Line, e.Reason, e.Text)
}

func (e *ParseError) Unwrap() error {
	return ErrMetadataParse
}

// Kind identifies the shape of a field's Value.
type Kind int

const (
	Scalar Kind = iota
	List
)

func (k Kind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case List:
		return "list"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value is a tagged field value: either a Scalar holding exactly one string, or a List holding
// zero or more strings in insertion order.
type Value struct {
	Kind   Kind
	Values []string
}

func ScalarValue(str string) Value {
	return Value{Kind: Scalar, Values: []string{str}}
}

func ListValue(strs ...string) Value {
	return Value{Kind: List, Values: append([]string(nil), strs...)}
}

// Scalar returns the value of a Scalar, or ErrWrongFieldShape if v is a List.
func (v Value) Scalar() (string, error) {
	if v.Kind != Scalar || len(v.Values) != 1 {
		return "", fmt.Errorf("%w: have %v, want %v", ErrWrongFieldShape, v.Kind, Scalar)
	}
	return v.Values[0], nil
}

// List returns the values of a List, or ErrWrongFieldShape if v is a Scalar.
func (v Value) List() ([]string, error) {
	if v.Kind != List {
		return nil, fmt.Errorf("%w: have %v, want %v", ErrWrongFieldShape, v.Kind, List)
	}
	return append([]string(nil), v.Values...), nil
}

func (v Value) clone() Value {
	return Value{Kind: v.Kind, Values: append([]string(nil), v.Values...)}
}

type field struct {
	key string
	val Value
}

// Fields is an ordered, case-insensitive mapping from field name to Value.  The spelling of a
// key is preserved from wherever it was first set.
//
// Keys named in the list-key set given to NewFields or ParseFields are always Lists; any other key
// is a Scalar unless it was repeated in the parsed input, in which case it is a List.
type Fields struct {
	fields   []field
	listKeys map[string]struct{}
}

func NewFields(listKeys []string) *Fields {
	ret := &Fields{
		listKeys: make(map[string]struct{}, len(listKeys)),
	}
	for _, key := range listKeys {
		ret.listKeys[strings.ToLower(key)] = struct{}{}
	}
	return ret
}

// IsList reports whether key is declared as a list field.
func (f *Fields) IsList(key string) bool {
	_, ok := f.listKeys[strings.ToLower(key)]
	return ok
}

func (f *Fields) index(key string) int {
	for i := range f.fields {
		if strings.EqualFold(f.fields[i].key, key) {
			return i
		}
	}
	return -1
}

// Keys returns the field names in first-occurrence order, as spelled when they were first set.
func (f *Fields) Keys() []string {
	ret := make([]string, 0, len(f.fields))
	for _, fld := range f.fields {
		ret = append(ret, fld.key)
	}
	return ret
}

// Has reports whether key is present.
func (f *Fields) Has(key string) bool {
	return f.index(key) >= 0
}

// Get returns a copy of the value stored for key.
func (f *Fields) Get(key string) (Value, bool) {
	idx := f.index(key)
	if idx < 0 {
		return Value{}, false
	}
	return f.fields[idx].val.clone(), true
}

// Scalar returns the scalar value of key; ok is false if key is not present.
func (f *Fields) Scalar(key string) (val string, ok bool, err error) {
	v, ok := f.Get(key)
	if !ok {
		return "", false, nil
	}
	val, err = v.Scalar()
	if err != nil {
		return "", true, fmt.Errorf("field %q: %w", key, err)
	}
	return val, true, nil
}

// List returns the values of the list field key; an absent key is an empty list.
func (f *Fields) List(key string) ([]string, error) {
	v, ok := f.Get(key)
	if !ok {
		return nil, nil
	}
	vals, err := v.List()
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", key, err)
	}
	return vals, nil
}

// Set stores val for key, keeping the key's position if it is already present.  A declared list
// key must be given a List; a Scalar must hold exactly one string.
func (f *Fields) Set(key string, val Value) error {
	switch val.Kind {
	case Scalar:
		if len(val.Values) != 1 {
			return fmt.Errorf("field %q: %w: scalar must have exactly 1 value, got %d",
				key, ErrWrongFieldShape, len(val.Values))
		}
		if f.IsList(key) {
			return fmt.Errorf("field %q: %w: have %v, want %v", key, ErrWrongFieldShape, Scalar, List)
		}
	case List:
	default:
		return fmt.Errorf("field %q: %w: invalid kind %v", key, ErrWrongFieldShape, val.Kind)
	}
	f.put(key, val.clone())
	return nil
}

func (f *Fields) put(key string, val Value) {
	if idx := f.index(key); idx >= 0 {
		f.fields[idx].val = val
		return
	}
	f.fields = append(f.fields, field{key: key, val: val})
}

// Add appends str to the list field key, creating it at the end if absent.
func (f *Fields) Add(key, str string) error {
	idx := f.index(key)
	if idx < 0 {
		f.fields = append(f.fields, field{key: key, val: ListValue(str)})
		return nil
	}
	if f.fields[idx].val.Kind != List {
		return fmt.Errorf("field %q: %w: have %v, want %v",
			key, ErrWrongFieldShape, f.fields[idx].val.Kind, List)
	}
	f.fields[idx].val.Values = append(f.fields[idx].val.Values, str)
	return nil
}

// Delete removes key, reporting whether it was present.
func (f *Fields) Delete(key string) bool {
	idx := f.index(key)
	if idx < 0 {
		return false
	}
	f.fields = append(f.fields[:idx], f.fields[idx+1:]...)
	return true
}

// ParseFields parses an RFC 822-style header block.
//
// Each line is "Key: value".  A line beginning with a space or tab continues the previous value;
// it is joined with "\n" after its indentation is removed (exactly 8 spaces, or 7 spaces and a
// "|", or otherwise all leading whitespace).  A blank line ends the headers, and everything after
// it is returned as body.  Both LF and CRLF line endings are accepted.
func ParseFields(data []byte, listKeys []string) (*Fields, string, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	ret := NewFields(listKeys)

	lastIdx := -1
	for pos, lineno := 0, 1; pos < len(text); lineno++ {
		var line string
		if nl := strings.IndexByte(text[pos:], '\n'); nl < 0 {
			line = text[pos:]
			pos = len(text)
		} else {
			line = text[pos : pos+nl]
			pos += nl + 1
		}

		switch {
		case line == "":
			return ret, text[pos:], nil
		case line[0] == ' ' || line[0] == '\t':
			if lastIdx < 0 {
				return nil, "", &ParseError{Line: lineno, Text: line, Reason: "continuation line before any field"}
			}
			vals := ret.fields[lastIdx].val.Values
			vals[len(vals)-1] += "\n" + unindent(line)
		default:
			colon := strings.IndexByte(line, ':')
			if colon < 0 {
				return nil, "", &ParseError{Line: lineno, Text: line, Reason: "missing ':'"}
			}
			key := line[:colon]
			if key == "" || strings.ContainsAny(key, " \t") {
				return nil, "", &ParseError{Line: lineno, Text: line, Reason: "invalid field name"}
			}
			lastIdx = ret.appendParsed(key, strings.TrimSpace(line[colon+1:]))
		}
	}
	return ret, "", nil
}

// appendParsed adds a value read from the input, promoting a repeated key to a List, and returns
// the index of the key's field.
func (f *Fields) appendParsed(key, str string) int {
	idx := f.index(key)
	if idx < 0 {
		kind := Scalar
		if f.IsList(key) {
			kind = List
		}
		f.fields = append(f.fields, field{key: key, val: Value{Kind: kind, Values: []string{str}}})
		return len(f.fields) - 1
	}
	f.fields[idx].val.Kind = List
	f.fields[idx].val.Values = append(f.fields[idx].val.Values, str)
	return idx
}

func unindent(line string) string {
	switch {
	case strings.HasPrefix(line, "       |"):
		return line[8:]
	case strings.HasPrefix(line, "        "):
		return line[8:]
	default:
		return strings.TrimLeft(line, " \t")
	}
}

const continuationIndent = "        "

// MarshalText encodes the fields in first-occurrence order.  The values of a List are written as
// repeated lines at the key's position; an empty List is omitted.  Multi-line values are written
// with continuation lines indented by 8 spaces.
func (f *Fields) MarshalText() ([]byte, error) {
	var buf strings.Builder
	f.encode(&buf, nil)
	return []byte(buf.String()), nil
}

func (f *Fields) encode(buf *strings.Builder, skip func(key string) bool) {
	for _, fld := range f.fields {
		if skip != nil && skip(fld.key) {
			continue
		}
		for _, str := range fld.val.Values {
			lines := strings.Split(str, "\n")
			buf.WriteString(fld.key)
			buf.WriteString(": ")
			buf.WriteString(lines[0])
			buf.WriteByte('\n')
			for _, line := range lines[1:] {
				buf.WriteString(continuationIndent)
				buf.WriteString(line)
				buf.WriteByte('\n')
			}
		}
	}
}
