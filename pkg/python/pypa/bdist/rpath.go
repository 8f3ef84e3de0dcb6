// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package bdist

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/datawire/dlib/dlog"
	"golang.org/x/sync/errgroup"

	"github.com/datawire/editwheel/pkg/elfutil"
	"github.com/datawire/editwheel/pkg/glob"
)

// SetRPath arranges for the library search path of every ELF file matching pattern to be set to
// value when the wheel is saved.  The pattern is compiled immediately, but the archive is not
// touched until Save.  Matching files that are not ELF files are skipped.  If several patterns
// match the same file, the last one set wins.
func (e *Editor) SetRPath(pattern, value string) error {
	pat, err := glob.Compile(pattern)
	if err != nil {
		return fmt.Errorf("bdist.SetRPath: %w", err)
	}
	if strings.IndexByte(value, 0) >= 0 {
		return fmt.Errorf("bdist.SetRPath: %w: new value %q contains a NUL byte", elfutil.ErrElfPatch, value)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rpathEdits = append(e.rpathEdits, rpathEdit{
		pattern: pat,
		value:   value,
	})
	return nil
}

// Match returns the non-directory members matching a glob pattern, in archive order.
func (e *Editor) Match(pattern string) ([]string, error) {
	pat, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("bdist.Match: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return pat.Filter(e.index.Files()), nil
}

// elfContent returns the decompressed content of a member, from the cache if it has been read
// before.  ok is false if the member is not an ELF file.
func (e *Editor) elfContent(name string) (content []byte, ok bool, err error) {
	if content, ok := e.elfCache[name]; ok {
		return content, true, nil
	}
	content, err = readMember(e.index, name)
	if err != nil {
		return nil, false, err
	}
	if !elfutil.IsELF(content) {
		return content, false, nil
	}
	e.elfCache[name] = content
	return content, true, nil
}

// GetRPath returns the library search path of an ELF member, as it is in the archive (pending
// SetRPath edits are not reflected).  ok is false if the file has neither DT_RUNPATH nor
// DT_RPATH.
func (e *Editor) GetRPath(ctx context.Context, member string) (value string, ok bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	content, isELF, err := e.elfContent(member)
	if err != nil {
		return "", false, fmt.Errorf("bdist.GetRPath: %w", err)
	}
	if !isELF {
		return "", false, fmt.Errorf("bdist.GetRPath: %q: %w", member,
			&elfutil.PatchError{Kind: elfutil.MalformedElf, Msg: "not an ELF file"})
	}
	value, ok, err = elfutil.ReadRPath(content)
	if err != nil {
		return "", false, fmt.Errorf("bdist.GetRPath: %q: %w", member, err)
	}
	dlog.Debugf(ctx, "bdist.GetRPath: %q: %q (present=%v)", member, value, ok)
	return value, ok, nil
}

// RPathInfo describes the library search path of one ELF member.
type RPathInfo struct {
	Member string `json:"member"`
	Value  string `json:"value"`
	// Present is false if the file has neither DT_RUNPATH nor DT_RPATH.
	Present bool `json:"present"`
}

// ListRPaths returns the library search path of every ELF member, in archive order.
func (e *Editor) ListRPaths(ctx context.Context) ([]RPathInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var ret []RPathInfo
	for _, name := range e.index.Files() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, isELF, err := e.elfContent(name)
		if err != nil {
			return nil, fmt.Errorf("bdist.ListRPaths: %w", err)
		}
		if !isELF {
			continue
		}
		value, ok, err := elfutil.ReadRPath(content)
		if err != nil {
			return nil, fmt.Errorf("bdist.ListRPaths: %q: %w", name, err)
		}
		ret = append(ret, RPathInfo{Member: name, Value: value, Present: ok})
	}
	return ret, nil
}

type rpathTarget struct {
	name  string
	value string
}

// rpathTargets resolves the pending SetRPath edits to a value per member, in archive order.
func (e *Editor) rpathTargets() []rpathTarget {
	if len(e.rpathEdits) == 0 {
		return nil
	}
	var ret []rpathTarget
	for _, name := range e.index.Files() {
		matched := false
		var value string
		for _, edit := range e.rpathEdits {
			if edit.pattern.Match(name) {
				matched = true
				value = edit.value
			}
		}
		if matched {
			ret = append(ret, rpathTarget{name: name, value: value})
		}
	}
	return ret
}

type rpathResult struct {
	content []byte
	isELF   bool
	patched []byte
}

// patchELFs computes the new content of every ELF member that a pending SetRPath edit applies
// to, returning only the members whose content actually changes.  Members are read and patched
// in parallel; the first failure cancels the rest.
func (e *Editor) patchELFs(ctx context.Context) (map[string][]byte, error) {
	targets := e.rpathTargets()
	if len(targets) == 0 {
		return nil, nil
	}

	results := make([]rpathResult, len(targets))
	grp, grpCtx := errgroup.WithContext(ctx)
	for i, target := range targets {
		i, target := i, target
		cached, haveCached := e.elfCache[target.name]
		member := e.index.Member(target.name)
		grp.Go(func() error {
			if err := grpCtx.Err(); err != nil {
				return err
			}
			content := cached
			if !haveCached {
				var err error
				content, err = member.Decompressed()
				if err != nil {
					return err
				}
			}
			results[i].content = content
			if !elfutil.IsELF(content) {
				return nil
			}
			results[i].isELF = true
			patched, err := elfutil.WriteRPath(content, target.value)
			if err != nil {
				return fmt.Errorf("member %q: %w", target.name, err)
			}
			results[i].patched = patched
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	ret := make(map[string][]byte)
	for i, target := range targets {
		result := results[i]
		if !result.isELF {
			dlog.Warnf(ctx, "bdist: set-rpath: skipping %q: not an ELF file", target.name)
			continue
		}
		e.elfCache[target.name] = result.content
		if bytes.Equal(result.patched, result.content) {
			dlog.Debugf(ctx, "bdist: set-rpath: %q: already %q", target.name, target.value)
			continue
		}
		dlog.Debugf(ctx, "bdist: set-rpath: %q: %q", target.name, target.value)
		ret[target.name] = result.patched
	}
	return ret, nil
}
