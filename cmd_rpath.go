// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datawire/editwheel/pkg/cliutil"
	"github.com/datawire/editwheel/pkg/glob"
	"github.com/datawire/editwheel/pkg/python/pypa/bdist"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rpath [flags] WHEEL_FILE [MEMBER_PATTERN]",
		Short: "Show the library search path of the ELF files in a wheel file",
		Long: "Print the DT_RUNPATH (or, failing that, DT_RPATH) of each ELF file in a wheel " +
			"file, or of just those matching a glob pattern.  ELF files with neither are " +
			"shown as \"(none)\".",
		Args: cliutil.WrapPositionalArgs(cobra.RangeArgs(1, 2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			editor, err := bdist.Open(ctx, args[0])
			if err != nil {
				return err
			}
			defer editor.Close()

			pattern := glob.MustCompile("**")
			if len(args) > 1 {
				if pattern, err = glob.Compile(args[1]); err != nil {
					return cliutil.FlagErrorFunc(cmd, err)
				}
			}

			rpaths, err := editor.ListRPaths(ctx)
			if err != nil {
				return err
			}
			matched := 0
			for _, rpath := range rpaths {
				if !pattern.Match(rpath.Member) {
					continue
				}
				matched++
				val := rpath.Value
				if !rpath.Present {
					val = "(none)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", rpath.Member, val)
			}
			if matched == 0 && len(args) > 1 {
				return fmt.Errorf("%s: no ELF files match %q", args[0], args[1])
			}
			return nil
		},
	}
	argparser.AddCommand(cmd)
}
