// Copyright (C) 2020  Ambassador Labs (for Telepresence)
// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0
//
// Based on
// https://github.com/telepresenceio/telepresence/blob/3b63073ceafae6b548c664a83f7ac90497eab2ae/pkg/client/cli/command.go

package cliutil

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// UsageError is an invalid invocation of a command, as opposed to a failure while running it.
type UsageError struct {
	CommandPath string
	Err         error
}

func (e *UsageError) Error() string { return e.Err.Error() }
func (e *UsageError) Unwrap() error { return e.Err }

// OnlySubcommands is a cobra.PositionalArgs that is similar to cobra.NoArgs, but suggests
// similarly-named subcommands.
func OnlySubcommands(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return nil
	}
	err := fmt.Errorf("invalid subcommand %q", args[0])
	if cmd.SuggestionsMinimumDistance <= 0 {
		cmd.SuggestionsMinimumDistance = 2
	}
	if suggestions := cmd.SuggestionsFor(args[0]); len(suggestions) > 0 {
		err = fmt.Errorf("%w\nDid you mean one of these?\n\t%s", err, strings.Join(suggestions, "\n\t"))
	}
	return FlagErrorFunc(cmd, err)
}

// WrapPositionalArgs wraps a cobra.PositionalArgs so that its errors are UsageErrors.
func WrapPositionalArgs(inner cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return FlagErrorFunc(cmd, inner(cmd, args))
	}
}

// RunSubcommands is a cobra.Command.RunE for commands that do nothing themselves but have
// subcommands.  Running such a command without a subcommand prints the help text to stderr and
// is a usage error, rather than a silent success.
func RunSubcommands(cmd *cobra.Command, args []string) error {
	cmd.SetOut(cmd.ErrOrStderr())
	cmd.HelpFunc()(cmd, args)
	return &UsageError{
		CommandPath: cmd.CommandPath(),
		Err:         errors.New("a subcommand is required"),
	}
}

// FlagErrorFunc is for (*cobra.Command).SetFlagErrorFunc; it turns err in to a *UsageError, so
// that Report can tell bad usage apart from execution errors.  A nil err stays nil.
func FlagErrorFunc(cmd *cobra.Command, err error) error {
	if err == nil {
		return nil
	}
	var usageErr *UsageError
	if errors.As(err, &usageErr) {
		return err
	}
	return &UsageError{
		CommandPath: cmd.CommandPath(),
		Err:         err,
	}
}

// Report writes err, as returned from (*cobra.Command).Execute, to w in a GNU-ish style, and
// returns the exit code that the program should exit with: 0 for no error, 2 for a usage error,
// and 1 for anything else.
func Report(w io.Writer, root *cobra.Command, err error) int {
	if err == nil {
		return 0
	}
	var usageErr *UsageError
	if !errors.As(err, &usageErr) {
		fmt.Fprintf(w, "%s: error: %v\n", root.CommandPath(), err)
		return 1
	}

	// A multi-line message gets a blank line before the "See --help" line.
	msg := strings.TrimRight(usageErr.Err.Error(), "\n")
	if strings.Contains(msg, "\n") {
		msg += "\n"
	}
	fmt.Fprintf(w, "%s: %s\nSee '%s --help' for more information.\n",
		usageErr.CommandPath, msg, usageErr.CommandPath)
	return 2
}
