// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/datawire/dlib/dlog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"sigs.k8s.io/yaml"

	"github.com/datawire/editwheel/pkg/cliutil"
	"github.com/datawire/editwheel/pkg/python/pep566"
	"github.com/datawire/editwheel/pkg/python/pypa/bdist"
)

type rpathSetting struct {
	Pattern string `json:"pattern"`
	Value   string `json:"value"`
}

// wheelEdits is a batch of edits to apply to a wheel, either from an --edits-file or from
// command-line flags.
type wheelEdits struct {
	Name           *string `json:"name,omitempty"`
	Version        *string `json:"version,omitempty"`
	Summary        *string `json:"summary,omitempty"`
	Description    *string `json:"description,omitempty"`
	Author         *string `json:"author,omitempty"`
	AuthorEmail    *string `json:"authorEmail,omitempty"`
	License        *string `json:"license,omitempty"`
	RequiresPython *string `json:"requiresPython,omitempty"`

	AddClassifiers  []string `json:"addClassifiers,omitempty"`
	AddRequiresDist []string `json:"addRequiresDist,omitempty"`
	AddProjectURLs  []string `json:"addProjectURLs,omitempty"`

	Delete []string            `json:"delete,omitempty"`
	Set    map[string]string   `json:"set,omitempty"`
	Add    map[string][]string `json:"add,omitempty"`

	PythonTag   *string `json:"pythonTag,omitempty"`
	ABITag      *string `json:"abiTag,omitempty"`
	PlatformTag *string `json:"platformTag,omitempty"`
	Build       *string `json:"build,omitempty"`

	RPaths []rpathSetting `json:"rpaths,omitempty"`
}

func loadEditsFile(filename string) (*wheelEdits, error) {
	yamlBytes, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var edits wheelEdits
	if err := yaml.Unmarshal(yamlBytes, &edits, yaml.DisallowUnknownFields); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return &edits, nil
}

// parseAssignment splits "KEY=VALUE" at the first "=".
func parseAssignment(str string) (key, val string, err error) {
	eq := strings.IndexByte(str, '=')
	if eq <= 0 {
		return "", "", fmt.Errorf("invalid assignment %q: must be of the form KEY=VALUE", str)
	}
	return str[:eq], str[eq+1:], nil
}

func sortedKeys(m interface{}) []string {
	var keys []string
	switch m := m.(type) {
	case map[string]string:
		for k := range m {
			keys = append(keys, k)
		}
	case map[string][]string:
		for k := range m {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// appendMetadata appends vals to the list field key, creating it if need be.
func appendMetadata(editor *bdist.Editor, key string, vals ...string) error {
	cur, ok, err := editor.GetMetadata(key)
	if err != nil {
		return err
	}
	var list []string
	if ok {
		if list, err = cur.List(); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
	}
	return editor.SetMetadata(key, pep566.ListValue(append(list, vals...)...))
}

// apply applies the edits to editor.  Deletions happen first, so that a field may be deleted and
// then set afresh.
func (edits *wheelEdits) apply(editor *bdist.Editor) error {
	for _, key := range edits.Delete {
		if _, err := editor.DeleteMetadata(key); err != nil {
			return err
		}
	}

	for _, scalar := range []struct {
		val *string
		set func(string)
	}{
		{edits.Name, editor.SetName},
		{edits.Version, editor.SetVersion},
		{edits.Summary, editor.SetSummary},
		{edits.Description, editor.SetDescription},
		{edits.Author, editor.SetAuthor},
		{edits.AuthorEmail, editor.SetAuthorEmail},
		{edits.License, editor.SetLicense},
		{edits.RequiresPython, editor.SetRequiresPython},
	} {
		if scalar.val != nil {
			scalar.set(*scalar.val)
		}
	}
	for _, str := range edits.AddClassifiers {
		editor.AddClassifier(str)
	}
	for _, str := range edits.AddRequiresDist {
		editor.AddRequiresDist(str)
	}
	for _, str := range edits.AddProjectURLs {
		editor.AddProjectURL(str)
	}

	for _, key := range sortedKeys(edits.Set) {
		if err := editor.SetMetadata(key, pep566.ScalarValue(edits.Set[key])); err != nil {
			return err
		}
	}
	for _, key := range sortedKeys(edits.Add) {
		if err := appendMetadata(editor, key, edits.Add[key]...); err != nil {
			return err
		}
	}

	for _, tag := range []struct {
		val *string
		set func(string) error
	}{
		{edits.PythonTag, editor.SetPythonTag},
		{edits.ABITag, editor.SetABITag},
		{edits.PlatformTag, editor.SetPlatformTag},
		{edits.Build, editor.SetBuild},
	} {
		if tag.val != nil {
			if err := tag.set(*tag.val); err != nil {
				return err
			}
		}
	}

	for _, rpath := range edits.RPaths {
		if err := editor.SetRPath(rpath.Pattern, rpath.Value); err != nil {
			return err
		}
	}
	return nil
}

// editFlags holds the raw values of the `edit` command's flags.
type editFlags struct {
	Scalars map[string]*string

	AddClassifiers  []string
	AddRequiresDist []string
	AddProjectURLs  []string

	Set      []string
	Add      []string
	Delete   []string
	SetRPath []string

	EditsFile string
	Strict    bool
	Output    string
	OutputDir string
	DryRun    bool
}

// scalarFlags maps each single-valued flag to the wheelEdits field it fills in.
var scalarFlags = []struct {
	name  string
	usage string
	field func(*wheelEdits) **string
}{
	{"name", "Set the distribution name", func(e *wheelEdits) **string { return &e.Name }},
	{"version", "Set the distribution version", func(e *wheelEdits) **string { return &e.Version }},
	{"summary", "Set the one-line summary", func(e *wheelEdits) **string { return &e.Summary }},
	{"description", "Set the long description", func(e *wheelEdits) **string { return &e.Description }},
	{"author", "Set the author", func(e *wheelEdits) **string { return &e.Author }},
	{"author-email", "Set the author's email address", func(e *wheelEdits) **string { return &e.AuthorEmail }},
	{"license", "Set the license", func(e *wheelEdits) **string { return &e.License }},
	{"requires-python", "Set the supported Python versions", func(e *wheelEdits) **string { return &e.RequiresPython }},
	{"python-tag", "Replace the Python part of every compatibility tag", func(e *wheelEdits) **string { return &e.PythonTag }},
	{"abi-tag", "Replace the ABI part of every compatibility tag", func(e *wheelEdits) **string { return &e.ABITag }},
	{"platform-tag", "Replace the platform part of every compatibility tag", func(e *wheelEdits) **string { return &e.PlatformTag }},
	{"build", "Set the build tag; an empty value removes it", func(e *wheelEdits) **string { return &e.Build }},
}

// edits turns the flags that were given on the command line in to a wheelEdits.
func (f *editFlags) edits(flags *pflag.FlagSet) (*wheelEdits, error) {
	ret := &wheelEdits{
		AddClassifiers:  f.AddClassifiers,
		AddRequiresDist: f.AddRequiresDist,
		AddProjectURLs:  f.AddProjectURLs,
		Delete:          f.Delete,
	}
	for _, scalar := range scalarFlags {
		if flags.Changed(scalar.name) {
			*scalar.field(ret) = f.Scalars[scalar.name]
		}
	}
	for _, str := range f.Set {
		key, val, err := parseAssignment(str)
		if err != nil {
			return nil, fmt.Errorf("--set: %w", err)
		}
		if ret.Set == nil {
			ret.Set = make(map[string]string)
		}
		ret.Set[key] = val
	}
	for _, str := range f.Add {
		key, val, err := parseAssignment(str)
		if err != nil {
			return nil, fmt.Errorf("--add: %w", err)
		}
		if ret.Add == nil {
			ret.Add = make(map[string][]string)
		}
		ret.Add[key] = append(ret.Add[key], val)
	}
	for _, str := range f.SetRPath {
		pattern, val, err := parseAssignment(str)
		if err != nil {
			return nil, fmt.Errorf("--set-rpath: %w", err)
		}
		ret.RPaths = append(ret.RPaths, rpathSetting{Pattern: pattern, Value: val})
	}
	return ret, nil
}

// register adds the flags to a flag set.
func (f *editFlags) register(flags *pflag.FlagSet) {
	if f.Scalars == nil {
		f.Scalars = make(map[string]*string)
	}
	for _, scalar := range scalarFlags {
		f.Scalars[scalar.name] = flags.String(scalar.name, "", scalar.usage)
	}
	flags.StringArrayVar(&f.AddClassifiers, "add-classifier", nil,
		"Append a Classifier (may be given multiple times)")
	flags.StringArrayVar(&f.AddRequiresDist, "add-requires-dist", nil,
		"Append a Requires-Dist requirement (may be given multiple times)")
	flags.StringArrayVar(&f.AddProjectURLs, "add-project-url", nil,
		"Append a Project-URL (may be given multiple times)")
	flags.StringArrayVar(&f.Set, "set", nil,
		"Set any single-valued metadata field: `FIELD=VALUE`")
	flags.StringArrayVar(&f.Add, "add", nil,
		"Append to any multi-valued metadata field: `FIELD=VALUE`")
	flags.StringArrayVar(&f.Delete, "delete", nil,
		"Remove a metadata `FIELD`")
	flags.StringArrayVar(&f.SetRPath, "set-rpath", nil,
		"Set the library search path of the ELF files matching a glob: `PATTERN=VALUE`")
	flags.StringVar(&f.EditsFile, "edits-file", "",
		"Read edits from a YAML `FILE`")
	flags.BoolVar(&f.Strict, "strict", false,
		"Refuse to --set, --add, or --delete metadata fields that are not standard")
	flags.StringVarP(&f.Output, "output", "o", "",
		"Write the result to `FILE` (or \"-\" for stdout) instead of replacing the input")
	flags.StringVar(&f.OutputDir, "output-dir", "",
		"Write the result to `DIR`, named after the edited metadata and tags")
	flags.BoolVarP(&f.DryRun, "dry-run", "n", false,
		"Print which members would be regenerated, without writing anything")
}

func init() {
	var flags editFlags
	cmd := &cobra.Command{
		Use:   "edit [flags] WHEEL_FILE",
		Short: "Edit the metadata, tags, and ELF library paths of a wheel file",
		Long: "Edit a wheel file.  Members that no edit touches are copied byte-for-byte, " +
			"and RECORD is updated to match whatever does change.  The wheel file is " +
			"replaced atomically unless --output or --output-dir is given." +
			"\n\n" +
			"Edits from --edits-file are applied before edits given as flags.  The file " +
			"is YAML, for example:" +
			"\n\n" +
			"    version: 1.0.1\n" +
			"    addClassifiers: ['Topic :: Utilities']\n" +
			"    set: {Home-page: 'https://example.com/'}\n" +
			"    delete: [Keywords]\n" +
			"    platformTag: manylinux2014_x86_64\n" +
			"    rpaths:\n" +
			"      - pattern: '**/*.so'\n" +
			"        value: '$ORIGIN/../mypkg.libs'\n",
		Example: "" +
			"  editwheel edit --set-rpath='demo.libs/*=$ORIGIN' demo-1.0.0-cp39-cp39-linux_x86_64.whl\n" +
			"  editwheel edit --platform-tag=manylinux2014_x86_64 --output-dir=dist/ demo-1.0.0-cp39-cp39-linux_x86_64.whl",
		Args: cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if flags.Output != "" && flags.OutputDir != "" {
				return cliutil.FlagErrorFunc(cmd, fmt.Errorf("--output and --output-dir are mutually exclusive"))
			}

			var batches []*wheelEdits
			if flags.EditsFile != "" {
				fileEdits, err := loadEditsFile(flags.EditsFile)
				if err != nil {
					return err
				}
				batches = append(batches, fileEdits)
			}
			flagEdits, err := flags.edits(cmd.Flags())
			if err != nil {
				return cliutil.FlagErrorFunc(cmd, err)
			}
			batches = append(batches, flagEdits)

			var opts []bdist.Option
			if flags.Strict {
				opts = append(opts, bdist.WithStrictFields())
			}
			editor, err := bdist.Open(ctx, args[0], opts...)
			if err != nil {
				return err
			}
			defer editor.Close()

			for _, batch := range batches {
				if err := batch.apply(editor); err != nil {
					return err
				}
			}

			if flags.DryRun {
				changes, err := editor.Changes(ctx)
				if err != nil {
					return err
				}
				for _, name := range changes {
					fmt.Fprintf(cmd.OutOrStdout(), "would regenerate %s\n", name)
				}
				return nil
			}

			dest := flags.Output
			switch {
			case dest == "-":
				return editor.WriteWheel(ctx, cmd.OutOrStdout())
			case flags.OutputDir != "":
				name, err := editor.Filename()
				if err != nil {
					return err
				}
				dest = filepath.Join(flags.OutputDir, name)
			}
			if !editor.Dirty() && dest == "" {
				dlog.Infof(ctx, "%s: nothing to do", args[0])
				return nil
			}
			return editor.Save(ctx, dest)
		},
	}

	flags.register(cmd.Flags())

	argparser.AddCommand(cmd)
}
