// Copyright (C) 2020  Ambassador Labs (for Telepresence)
// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0
//
// Based on
// https://github.com/telepresenceio/telepresence/blob/b6dfa04ff014915b47386191cc3d8b1352522fea/pkg/client/cli/command_group.go#L35-L63

package cliutil

import (
	"os"
	"strconv"

	"golang.org/x/term"
)

const stdoutFd = 1

// TerminalWidth returns the width that help text should be wrapped to, or 0 for "don't wrap".
//
// $COLUMNS wins if it is set.  Otherwise it is the width of stdout if stdout is a terminal (80
// if the size can't be had), or 0 if stdout is not a terminal.
func TerminalWidth() int {
	if cols, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && cols >= 0 {
		return cols
	}
	if !term.IsTerminal(stdoutFd) {
		return 0
	}
	if cols, _, err := term.GetSize(stdoutFd); err == nil {
		return cols
	}
	return 80
}
