// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/datawire/editwheel/pkg/cliutil"
	"github.com/datawire/editwheel/pkg/python/pep566"
	"github.com/datawire/editwheel/pkg/python/pypa/bdist"
)

type metadataField struct {
	Key   string
	Value pep566.Value
}

func (f metadataField) plain() interface{} {
	if f.Value.Kind == pep566.List {
		return f.Value.Values
	}
	return f.Value.Values[0]
}

// metadataFields is an ordered mapping; it marshals as an object/mapping in file order.
type metadataFields []metadataField

func (fs metadataFields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fs {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.plain())
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (fs metadataFields) MarshalYAML() (interface{}, error) {
	ret := make(yaml.MapSlice, 0, len(fs))
	for _, f := range fs {
		ret = append(ret, yaml.MapItem{Key: f.Key, Value: f.plain()})
	}
	return ret, nil
}

type wheelInfo struct {
	File          string            `json:"file" yaml:"file"`
	DistInfo      string            `json:"distInfo" yaml:"distInfo"`
	WheelVersion  string            `json:"wheelVersion" yaml:"wheelVersion"`
	Generator     string            `json:"generator,omitempty" yaml:"generator,omitempty"`
	RootIsPurelib bool              `json:"rootIsPurelib" yaml:"rootIsPurelib"`
	Build         string            `json:"build,omitempty" yaml:"build,omitempty"`
	Tags          []string          `json:"tags" yaml:"tags"`
	Metadata      metadataFields    `json:"metadata" yaml:"metadata"`
	RPaths        []bdist.RPathInfo `json:"rpaths,omitempty" yaml:"rpaths,omitempty"`
}

// collectInfo gathers what `show` displays.  If fields is non-empty, only those metadata fields
// are included, in the order given, and it is an error for one to be missing.
func collectInfo(ctx context.Context, filename string, editor *bdist.Editor, fields []string) (*wheelInfo, error) {
	info := &wheelInfo{
		File:          filename,
		DistInfo:      editor.DistInfoDir(),
		WheelVersion:  editor.WheelVersion(),
		Generator:     editor.Generator(),
		RootIsPurelib: editor.RootIsPurelib(),
		Build:         editor.Build(),
	}
	for _, tag := range editor.Tags() {
		info.Tags = append(info.Tags, tag.String())
	}

	keys := fields
	if len(keys) == 0 {
		keys = editor.MetadataKeys()
	}
	for _, key := range keys {
		val, ok, err := editor.GetMetadata(key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%s: metadata field %q is not set", filename, key)
		}
		info.Metadata = append(info.Metadata, metadataField{Key: key, Value: val})
	}

	if len(fields) == 0 {
		rpaths, err := editor.ListRPaths(ctx)
		if err != nil {
			return nil, err
		}
		info.RPaths = rpaths
	}
	return info, nil
}

func writeTextField(w io.Writer, indent, key, val string) {
	val = strings.TrimRight(val, "\n")
	val = strings.ReplaceAll(val, "\n", "\n"+indent+strings.Repeat(" ", len(key)+2))
	fmt.Fprintf(w, "%s%s: %s\n", indent, key, val)
}

func (info *wheelInfo) writeText(w io.Writer) {
	writeTextField(w, "", "File", info.File)
	writeTextField(w, "", "Dist-Info", info.DistInfo)
	writeTextField(w, "", "Wheel-Version", info.WheelVersion)
	if info.Generator != "" {
		writeTextField(w, "", "Generator", info.Generator)
	}
	writeTextField(w, "", "Root-Is-Purelib", fmt.Sprint(info.RootIsPurelib))
	if info.Build != "" {
		writeTextField(w, "", "Build", info.Build)
	}
	for _, tag := range info.Tags {
		writeTextField(w, "", "Tag", tag)
	}
	fmt.Fprintln(w, "Metadata:")
	for _, field := range info.Metadata {
		for _, val := range field.Value.Values {
			writeTextField(w, "  ", field.Key, val)
		}
	}
	if len(info.RPaths) > 0 {
		fmt.Fprintln(w, "RPaths:")
		for _, rpath := range info.RPaths {
			val := rpath.Value
			if !rpath.Present {
				val = "(none)"
			}
			writeTextField(w, "  ", rpath.Member, val)
		}
	}
}

// writeFieldValues writes just the values of the selected fields, one per line.
func (info *wheelInfo) writeFieldValues(w io.Writer) {
	for _, field := range info.Metadata {
		for _, val := range field.Value.Values {
			fmt.Fprintln(w, val)
		}
	}
}

func init() {
	var flags struct {
		Output string
		Fields []string
	}
	cmd := &cobra.Command{
		Use:   "show [flags] WHEEL_FILE",
		Short: "Show the metadata, tags, and ELF library paths of a wheel file",
		Long: "Show what `editwheel edit` can change about a wheel file." +
			"\n\n" +
			"With --field, only the named metadata fields are shown; with the default " +
			"text output, that is just their values, one per line.",
		Args: cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			switch flags.Output {
			case "text", "json", "yaml":
			default:
				return cliutil.FlagErrorFunc(cmd, fmt.Errorf("--output: invalid format %q: must be one of text, json, yaml", flags.Output))
			}

			editor, err := bdist.Open(ctx, args[0])
			if err != nil {
				return err
			}
			defer editor.Close()

			info, err := collectInfo(ctx, args[0], editor, flags.Fields)
			if err != nil {
				return err
			}
			return info.write(cmd.OutOrStdout(), flags.Output, len(flags.Fields) > 0)
		},
	}
	cmd.Flags().StringVarP(&flags.Output, "output", "o", "text",
		"Output `FORMAT`: one of text, json, yaml")
	cmd.Flags().StringArrayVarP(&flags.Fields, "field", "f", nil,
		"Show only the metadata `FIELD` (may be given multiple times)")

	argparser.AddCommand(cmd)
}

func (info *wheelInfo) write(w io.Writer, format string, fieldsOnly bool) error {
	switch format {
	case "json":
		var out interface{} = info
		if fieldsOnly {
			out = info.Metadata
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "yaml":
		var out interface{} = info
		if fieldsOnly {
			out = info.Metadata
		}
		bs, err := yaml.Marshal(out)
		if err != nil {
			return err
		}
		_, err = w.Write(bs)
		return err
	default:
		if fieldsOnly {
			info.writeFieldValues(w)
		} else {
			info.writeText(w)
		}
		return nil
	}
}
