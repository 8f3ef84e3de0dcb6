// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

//go:build aux
// +build aux

package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/datawire/editwheel/pkg/cliutil"
)

// genDocs returns the RunE for a hidden documentation-generating command.
func genDocs(gen func(root *cobra.Command, dir string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		dir := args[0]
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o777); err != nil {
			return err
		}
		root := cmd.Root()
		root.DisableAutoGenTag = true
		return gen(root, dir)
	}
}

func init() {
	// completion
	argparser.CompletionOptions.DisableDefaultCmd = false
	preRunHooks = append(preRunHooks, func(cmd *cobra.Command) error {
		if completionCmd, _, err := cmd.Root().Find([]string{"completion"}); err == nil && completionCmd.Name() == "completion" {
			completionCmd.Hidden = true
		}
		return nil
	})

	argparser.AddCommand(&cobra.Command{
		Hidden: true,
		Use:    "man OUT_DIRECTORY",
		Short:  "Generate man pages",
		Args:   cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		RunE: genDocs(func(root *cobra.Command, dir string) error {
			header := &doc.GenManHeader{
				Source: "Ambassador Labs",
				Manual: root.Name(),
			}
			return doc.GenManTree(root, header, dir)
		}),
	})

	argparser.AddCommand(&cobra.Command{
		Hidden: true,
		Use:    "mddoc OUT_DIRECTORY",
		Short:  "Generate markdown documentation",
		Args:   cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		RunE:   genDocs(doc.GenMarkdownTree),
	})
}
