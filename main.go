// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Command editwheel edits Python wheel files in place.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/datawire/dlib/dlog"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/datawire/editwheel/pkg/cliutil"
)

var argparser = &cobra.Command{
	Use:   "editwheel {[flags]|SUBCOMMAND...}",
	Short: "Edit Python wheel files in place",
	Long: "Edit the metadata, compatibility tags, and ELF library search paths of Python " +
		"wheel files.  Members of the wheel that are not edited are copied byte-for-byte, " +
		"and the RECORD file is kept consistent with whatever does change.",

	Args: cliutil.OnlySubcommands,
	RunE: cliutil.RunSubcommands,

	SilenceErrors: true, // main() will handle this after .ExecuteContext() returns
	SilenceUsage:  true, // cliutil.Report will handle it

	// The "aux" build turns this back on.
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

var (
	logger   = logrus.New()
	logLevel string

	// preRunHooks are run before any subcommand, after flags are parsed.
	preRunHooks []func(*cobra.Command) error
)

func init() {
	argparser.SetFlagErrorFunc(cliutil.FlagErrorFunc)
	argparser.SetHelpTemplate(cliutil.HelpTemplate)

	argparser.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log messages at `LEVEL` (one of error, warning, info, debug, trace) and above to stderr")
	preRunHooks = append(preRunHooks, func(cmd *cobra.Command) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return cliutil.FlagErrorFunc(cmd, fmt.Errorf("--log-level: %w", err))
		}
		logger.SetLevel(level)
		return nil
	})
	argparser.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		for _, hook := range preRunHooks {
			if err := hook(cmd); err != nil {
				return err
			}
		}
		return nil
	}
}

func main() {
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
	})
	ctx := dlog.WithLogger(context.Background(), dlog.WrapLogrus(logger))

	err := argparser.ExecuteContext(ctx)
	os.Exit(cliutil.Report(argparser.ErrOrStderr(), argparser, err))
}
