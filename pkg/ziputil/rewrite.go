// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package ziputil

import (
	"archive/zip"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/datawire/dlib/dlog"
	"github.com/klauspost/compress/flate"

	"github.com/datawire/editwheel/pkg/reproducible"
)

// ActionKind says what Rewrite does with a member.
type ActionKind int

const (
	// Copy writes the member's original header and compressed bytes unchanged.
	Copy ActionKind = iota
	// Regenerate writes new content for the member, compressed with Deflate.
	Regenerate
)

func (k ActionKind) String() string {
	switch k {
	case Copy:
		return "copy"
	case Regenerate:
		return "regenerate"
	default:
		return fmt.Sprintf("ActionKind(%d)", int(k))
	}
}

// Action is the plan for a single member.
type Action struct {
	Kind   ActionKind
	Member *Member
	// Content is the new uncompressed content, for Regenerate.
	Content []byte
}

// Plan has exactly one Action per member of an Index, in central directory order.
type Plan []Action

// Classify builds the Plan for writing idx with the given members' content replaced.  It is an
// error for regenerate to name a member that idx does not have, or a directory.
func Classify(idx *Index, regenerate map[string][]byte) (Plan, error) {
	for name := range regenerate {
		member := idx.Member(name)
		if member == nil {
			return nil, fmt.Errorf("ziputil.Classify: no such member: %q", name)
		}
		if member.IsDir() {
			return nil, fmt.Errorf("ziputil.Classify: cannot regenerate directory %q", name)
		}
	}
	plan := make(Plan, 0, len(idx.members))
	for _, member := range idx.members {
		if content, ok := regenerate[member.Name()]; ok {
			plan = append(plan, Action{Kind: Regenerate, Member: member, Content: content})
		} else {
			plan = append(plan, Action{Kind: Copy, Member: member})
		}
	}
	return plan, nil
}

// Regenerated returns the names of the members that the plan regenerates, sorted.
func (plan Plan) Regenerated() []string {
	var ret []string
	for _, action := range plan {
		if action.Kind == Regenerate {
			ret = append(ret, action.Member.Name())
		}
	}
	sort.Strings(ret)
	return ret
}

func compressor(w io.Writer) (io.WriteCloser, error) {
	return flate.NewWriter(w, flate.DefaultCompression)
}

// Rewrite writes a new archive to w, executing the plan in order, followed by a fresh central
// directory and end-of-central-directory record.
//
// Copied members keep their header, CRC-32, sizes, and compressed bytes.  Regenerated members
// keep the rest of their original header (name, modification time, permissions, comment), but
// are compressed with Deflate.  A regenerated member without a modification time is stamped
// with reproducible.Now().
func Rewrite(ctx context.Context, idx *Index, plan Plan, w io.Writer) error {
	zipWriter := zip.NewWriter(w)
	zipWriter.RegisterCompressor(zip.Deflate, compressor)

	var nCopied, nRegenerated int
	for _, action := range plan {
		var err error
		switch action.Kind {
		case Copy:
			err = copyMember(zipWriter, action.Member)
			nCopied++
		case Regenerate:
			err = regenerateMember(zipWriter, action.Member, action.Content)
			nRegenerated++
		default:
			err = fmt.Errorf("invalid action %v", action.Kind)
		}
		if err != nil {
			return fmt.Errorf("ziputil.Rewrite: %s %q: %w", action.Kind, action.Member.Name(), err)
		}
		dlog.Tracef(ctx, "ziputil.Rewrite: %s %q", action.Kind, action.Member.Name())
	}

	if err := zipWriter.SetComment(idx.Comment()); err != nil {
		return fmt.Errorf("ziputil.Rewrite: %w", err)
	}
	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("ziputil.Rewrite: %w", err)
	}
	dlog.Debugf(ctx, "ziputil.Rewrite: copied %d members, regenerated %d", nCopied, nRegenerated)
	return nil
}

func copyMember(zipWriter *zip.Writer, member *Member) error {
	header := member.Header()
	dst, err := zipWriter.CreateRaw(&header)
	if err != nil {
		return err
	}
	src, err := member.file.OpenRaw()
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}

func regenerateMember(zipWriter *zip.Writer, member *Member, content []byte) error {
	header := member.Header()
	header.Method = zip.Deflate
	// CreateHeader computes these, and re-adds the extended-timestamp field from Modified.
	header.CRC32 = 0
	header.CompressedSize = 0
	header.CompressedSize64 = 0
	header.UncompressedSize = 0
	header.UncompressedSize64 = 0
	header.Extra = keptExtra(header.Extra)
	header.Modified = reproducible.Timestamp(header.Modified)

	dst, err := zipWriter.CreateHeader(&header)
	if err != nil {
		return err
	}
	_, err = dst.Write(content)
	return err
}

// Extra-field tags that describe the old payload's sizes or duplicate its timestamp.
const (
	extraZip64        = 0x0001
	extraNTFS         = 0x000a
	extraExtendedTime = 0x5455
	extraInfoZIPUnix  = 0x5855
)

// keptExtra returns the blocks of a member's extra field that stay valid when the member's
// content is replaced.  A truncated trailing block is dropped.
func keptExtra(extra []byte) []byte {
	var ret []byte
	for len(extra) >= 4 {
		tag := binary.LittleEndian.Uint16(extra[0:2])
		size := 4 + int(binary.LittleEndian.Uint16(extra[2:4]))
		if size > len(extra) {
			break
		}
		switch tag {
		case extraZip64, extraNTFS, extraExtendedTime, extraInfoZIPUnix:
		default:
			ret = append(ret, extra[:size]...)
		}
		extra = extra[size:]
	}
	return ret
}
