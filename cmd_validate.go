// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/datawire/dlib/derror"
	"github.com/spf13/cobra"

	"github.com/datawire/editwheel/pkg/cliutil"
	"github.com/datawire/editwheel/pkg/python/pypa/bdist"
)

// reportProblems writes each of the problems in err on its own line, and returns how many
// there were.
func reportProblems(w io.Writer, filename string, err error) int {
	var problems derror.MultiError
	if !errors.As(err, &problems) {
		problems = derror.MultiError{err}
	}
	for _, problem := range problems {
		fmt.Fprintf(w, "%s: %v\n", filename, problem)
	}
	return len(problems)
}

func init() {
	cmd := &cobra.Command{
		Use:   "validate [flags] WHEEL_FILE...",
		Short: "Check wheel files' contents against their RECORD, reporting every file that does not match",
		Args:  cliutil.WrapPositionalArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			count := 0
			for _, filename := range args {
				editor, err := bdist.Open(ctx, filename)
				if err != nil {
					count += reportProblems(cmd.OutOrStdout(), filename, err)
					continue
				}
				if err := editor.Validate(ctx); err != nil {
					count += reportProblems(cmd.OutOrStdout(), filename, err)
				}
				_ = editor.Close()
			}
			if count > 0 {
				return fmt.Errorf("found %d problems", count)
			}
			return nil
		},
	}
	argparser.AddCommand(cmd)
}
