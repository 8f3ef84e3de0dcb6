// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package bdist

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/datawire/editwheel/pkg/ziputil"
)

// distInfoDir returns the "{name}.dist-info" directory for the wheel file.
//
// This is based off of `pip/_internal/utils/wheel.py:wheel_dist_info_dir()`, since PEP 427 doesn't
// actually have much to say about resolving ambiguity.
func distInfoDir(idx *ziputil.Index) (string, error) {
	infoDirs := make(map[string]struct{})
	for _, member := range idx.Members() {
		dirname := strings.Split(path.Clean(member.Name()), "/")[0]
		if !strings.HasSuffix(dirname, ".dist-info") {
			continue
		}
		infoDirs[dirname] = struct{}{}
	}

	switch len(infoDirs) {
	case 0:
		return "", fmt.Errorf(".dist-info directory not found")
	case 1:
		for infoDir := range infoDirs {
			return infoDir, nil
		}
		panic("not reached")
	default:
		list := make([]string, 0, len(infoDirs))
		for dir := range infoDirs {
			list = append(list, dir)
		}
		sort.Strings(list)
		return "", fmt.Errorf("multiple .dist-info directories found: %v", list)
	}
}

// readMember returns the uncompressed content of the named member.  A missing member is an
// error wrapping fs.ErrNotExist.
func readMember(idx *ziputil.Index, name string) ([]byte, error) {
	member := idx.Member(name)
	if member == nil || member.IsDir() {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return member.Decompressed()
}
