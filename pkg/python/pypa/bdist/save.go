// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package bdist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/editwheel/pkg/fsutil"
	"github.com/datawire/editwheel/pkg/python/pep566"
	"github.com/datawire/editwheel/pkg/python/pypa/record"
	"github.com/datawire/editwheel/pkg/ziputil"
)

// plan works out the new content of every member that has to change, and classifies the
// members accordingly.  It is called with e.mu held.
func (e *Editor) plan(ctx context.Context) (ziputil.Plan, error) {
	// The edited manifests must be readable by Open, or the saved wheel could not be reopened.
	metadataBytes, wheelBytes := e.encodings()
	metadataChanged := !bytes.Equal(metadataBytes, e.metadataBase)
	wheelChanged := !bytes.Equal(wheelBytes, e.wheelBase)
	if metadataChanged {
		if _, err := pep566.ParseMetadata(metadataBytes); err != nil {
			return nil, fmt.Errorf("%s: %w", e.metadataPath(), err)
		}
	}
	if wheelChanged {
		if _, err := ParseWheelDescriptor(wheelBytes); err != nil {
			return nil, fmt.Errorf("%s: %w", e.wheelPath(), err)
		}
	}

	regenerate, err := e.patchELFs(ctx)
	if err != nil {
		return nil, err
	}
	if regenerate == nil {
		regenerate = make(map[string][]byte)
	}
	if metadataChanged {
		regenerate[e.metadataPath()] = metadataBytes
	}
	if wheelChanged {
		regenerate[e.wheelPath()] = wheelBytes
	}

	// Files that RECORD does not mention get a row, so that the result is consistent.
	recordPath := e.recordPath()
	var extra []record.Entry
	for _, name := range e.index.Files() {
		switch path.Clean(name) {
		case recordPath, recordPath + ".jws", recordPath + ".p7s":
			continue
		}
		if _, ok := e.record.Lookup(name); ok {
			continue
		}
		content, ok := regenerate[name]
		if !ok {
			if content, err = readMember(e.index, name); err != nil {
				return nil, err
			}
		}
		dlog.Debugf(ctx, "bdist: %q is missing from RECORD; adding it", name)
		extra = append(extra, record.Recompute(name, content))
	}

	if len(regenerate) > 0 || len(extra) > 0 {
		newRecord, err := e.record.Rewrite(recordPath, regenerate, extra).MarshalText()
		if err != nil {
			return nil, err
		}
		regenerate[recordPath] = newRecord
	}

	return ziputil.Classify(e.index, regenerate)
}

// Changes returns the names of the members that WriteWheel or Save would regenerate, sorted.
// Every other member would be copied unchanged.
func (e *Editor) Changes(ctx context.Context) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	plan, err := e.plan(ctx)
	if err != nil {
		return nil, fmt.Errorf("bdist.Changes: %s: %w", e.filename, err)
	}
	return plan.Regenerated(), nil
}

// WriteWheel writes the edited wheel to w.  The Editor itself is unchanged; pending edits stay
// pending.
func (e *Editor) WriteWheel(ctx context.Context, w io.Writer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	plan, err := e.plan(ctx)
	if err != nil {
		return fmt.Errorf("bdist.WriteWheel: %s: %w", e.filename, err)
	}
	if err := ziputil.Rewrite(ctx, e.index, plan, w); err != nil {
		return fmt.Errorf("bdist.WriteWheel: %s: %w", e.filename, err)
	}
	return nil
}

// Save writes the edited wheel to filename, or over the file it was opened from if filename is
// "".  The new file is written next to the destination and renamed in to place, so on failure the
// destination is left untouched.
//
// After a successful Save the Editor reads from the saved file, with no pending edits.
func (e *Editor) Save(ctx context.Context, filename string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if filename == "" {
		if !e.fromFile {
			return errors.New("bdist.Save: no destination: the wheel was not opened from a file")
		}
		filename = e.filename
	}

	plan, err := e.plan(ctx)
	if err != nil {
		return fmt.Errorf("bdist.Save: %s: %w", filename, err)
	}
	err = fsutil.WriteFileAtomic(filename, func(w io.Writer) error {
		return ziputil.Rewrite(ctx, e.index, plan, w)
	})
	if err != nil {
		return fmt.Errorf("bdist.Save: %s: %w", filename, err)
	}
	if regenerated := plan.Regenerated(); len(regenerated) > 0 {
		dlog.Infof(ctx, "bdist.Save: wrote %q: regenerated %q", filename, regenerated)
	} else {
		dlog.Infof(ctx, "bdist.Save: wrote %q: no changes", filename)
	}

	if err := e.rebase(ctx, filename); err != nil {
		return fmt.Errorf("bdist.Save: %s: saved, but could not re-open: %w", filename, err)
	}
	return nil
}

// rebase switches e over to reading filename.  It is called with e.mu held.
func (e *Editor) rebase(ctx context.Context, filename string) error {
	idx, err := ziputil.OpenFile(filename)
	if err != nil {
		return err
	}

	oldFilename, oldIndex := e.filename, e.index
	e.filename, e.index = filename, idx
	if err := e.load(ctx); err != nil {
		e.filename, e.index = oldFilename, oldIndex
		_ = idx.Close()
		return err
	}
	if e.fromFile {
		_ = oldIndex.Close()
	}
	e.fromFile = true
	return nil
}

// Validate checks the archive's files against its RECORD, as it is in the file that the Editor
// reads from; pending edits are not considered.  Every problem is reported, as a
// derror.MultiError of *record.HashMismatchError, *record.MissingFileError,
// *record.UnlistedFileError and other errors; the result is nil if the wheel is consistent.
func (e *Editor) Validate(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	contents := func(name string) ([]byte, error) {
		return readMember(e.index, name)
	}
	if err := e.record.Verify(ctx, e.recordPath(), contents, e.index.Files()); err != nil {
		dlog.Debugf(ctx, "bdist.Validate: %s: %v", e.filename, err)
		return err
	}
	return nil
}
