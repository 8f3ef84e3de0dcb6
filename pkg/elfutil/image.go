// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package elfutil

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

// image is a bounds-checked view of an ELF file.  It never modifies data.
type image struct {
	data  []byte
	class elf.Class
	order binary.ByteOrder
	file  *elf.File
}

// IsELF reports whether data begins with the ELF magic number.
func IsELF(data []byte) bool {
	return len(data) >= len(elf.ELFMAG) && string(data[:len(elf.ELFMAG)]) == elf.ELFMAG
}

func parseImage(data []byte) (*image, error) {
	if len(data) < elf.EI_NIDENT || !IsELF(data) {
		return nil, patchErrorf(MalformedElf, "not an ELF image")
	}
	img := &image{
		data:  data,
		class: elf.Class(data[elf.EI_CLASS]),
	}
	switch img.class {
	case elf.ELFCLASS32, elf.ELFCLASS64:
	default:
		return nil, patchErrorf(UnsupportedElfClass, "%v", img.class)
	}
	switch elf.Data(data[elf.EI_DATA]) {
	case elf.ELFDATA2LSB:
		img.order = binary.LittleEndian
	case elf.ELFDATA2MSB:
		img.order = binary.BigEndian
	default:
		return nil, patchErrorf(MalformedElf, "invalid data encoding %v", elf.Data(data[elf.EI_DATA]))
	}
	file, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, patchErrorf(MalformedElf, "%v", err)
	}
	img.file = file
	return img, nil
}

func (img *image) wordSize() uint64 {
	if img.class == elf.ELFCLASS64 {
		return 8
	}
	return 4
}

// checkRange validates that [off, off+size) lies within the image.
func (img *image) checkRange(off, size uint64) error {
	total := uint64(len(img.data))
	if off > total || size > total-off {
		return patchErrorf(MalformedElf, "range [%#x, %#x+%#x) is outside of the %d-byte image",
			off, off, size, total)
	}
	return nil
}

// word reads a target-sized unsigned word at off.
func (img *image) word(off uint64) (uint64, error) {
	if err := img.checkRange(off, img.wordSize()); err != nil {
		return 0, err
	}
	if img.class == elf.ELFCLASS64 {
		return img.order.Uint64(img.data[off:]), nil
	}
	return uint64(img.order.Uint32(img.data[off:])), nil
}

// dynTag reads a target-sized signed d_tag at off.
func (img *image) dynTag(off uint64) (elf.DynTag, error) {
	val, err := img.word(off)
	if err != nil {
		return 0, err
	}
	if img.class == elf.ELFCLASS64 {
		return elf.DynTag(int64(val)), nil
	}
	return elf.DynTag(int32(uint32(val))), nil
}

// vaddrToOffset translates a virtual address to a file offset through the PT_LOAD segments.
func (img *image) vaddrToOffset(vaddr uint64) (uint64, error) {
	for _, prog := range img.file.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if vaddr < prog.Vaddr || vaddr-prog.Vaddr >= prog.Filesz {
			continue
		}
		off := prog.Off + (vaddr - prog.Vaddr)
		if off < prog.Off {
			return 0, patchErrorf(MalformedElf, "address %#x overflows the file offset", vaddr)
		}
		return off, nil
	}
	return 0, patchErrorf(MalformedElf, "address %#x is not in any PT_LOAD segment", vaddr)
}

type dynEntry struct {
	tag elf.DynTag
	val uint64
}

// dynamicView is the parsed dynamic table, up to and excluding DT_NULL.
type dynamicView struct {
	off, size uint64
	entries   []dynEntry
}

// dynamic locates and reads the dynamic table, preferring the PT_DYNAMIC segment and falling
// back to the SHT_DYNAMIC section.
func (img *image) dynamic() (*dynamicView, error) {
	view := new(dynamicView)
	found := false
	for _, prog := range img.file.Progs {
		if prog.Type == elf.PT_DYNAMIC {
			view.off, view.size = prog.Off, prog.Filesz
			found = true
			break
		}
	}
	if !found {
		for _, section := range img.file.Sections {
			if section.Type == elf.SHT_DYNAMIC {
				view.off, view.size = section.Offset, section.Size
				found = true
				break
			}
		}
	}
	if !found {
		return nil, patchErrorf(NoDynamicSection, "no PT_DYNAMIC segment or SHT_DYNAMIC section")
	}
	if err := img.checkRange(view.off, view.size); err != nil {
		return nil, err
	}

	entSize := 2 * img.wordSize()
	for off := view.off; off+entSize <= view.off+view.size; off += entSize {
		tag, err := img.dynTag(off)
		if err != nil {
			return nil, err
		}
		if tag == elf.DT_NULL {
			break
		}
		val, err := img.word(off + img.wordSize())
		if err != nil {
			return nil, err
		}
		view.entries = append(view.entries, dynEntry{tag: tag, val: val})
	}
	return view, nil
}

func (view *dynamicView) lookup(tag elf.DynTag) (dynEntry, bool) {
	for _, entry := range view.entries {
		if entry.tag == tag {
			return entry, true
		}
	}
	return dynEntry{}, false
}

// stringTable returns the file offset and size of the dynamic string table: from DT_STRTAB and
// DT_STRSZ if possible, or else from the section linked to the SHT_DYNAMIC section (or, failing
// that, the ".dynstr" section).
func (img *image) stringTable(view *dynamicView) (off, size uint64, err error) {
	strtab, haveTab := view.lookup(elf.DT_STRTAB)
	strsz, haveSz := view.lookup(elf.DT_STRSZ)
	if haveTab && haveSz {
		off, err = img.vaddrToOffset(strtab.val)
		if err == nil {
			err = img.checkRange(off, strsz.val)
		}
		if err == nil {
			return off, strsz.val, nil
		}
	}

	var section *elf.Section
	for _, sec := range img.file.Sections {
		if sec.Type == elf.SHT_DYNAMIC && sec.Offset == view.off &&
			int(sec.Link) < len(img.file.Sections) && img.file.Sections[sec.Link].Type == elf.SHT_STRTAB {
			section = img.file.Sections[sec.Link]
			break
		}
	}
	if section == nil {
		section = img.file.Section(".dynstr")
	}
	if section == nil {
		if err == nil {
			err = patchErrorf(MalformedElf, "no dynamic string table")
		}
		return 0, 0, err
	}
	if err := img.checkRange(section.Offset, section.Size); err != nil {
		return 0, 0, err
	}
	return section.Offset, section.Size, nil
}

// rpathRef identifies the string that a DT_RUNPATH or DT_RPATH entry points to.
type rpathRef struct {
	tag   elf.DynTag
	off   uint64 // file offset of the first byte of the string
	span  uint64 // length of the string, excluding the NUL terminator
	value string
}

// findRPath locates the search-path string, preferring DT_RUNPATH over DT_RPATH.
func (img *image) findRPath() (*rpathRef, error) {
	view, err := img.dynamic()
	if err != nil {
		return nil, err
	}
	entry, ok := view.lookup(elf.DT_RUNPATH)
	if !ok {
		entry, ok = view.lookup(elf.DT_RPATH)
	}
	if !ok {
		return nil, patchErrorf(NoRpathEntry, "no DT_RUNPATH or DT_RPATH entry")
	}

	tabOff, tabSize, err := img.stringTable(view)
	if err != nil {
		return nil, err
	}
	if entry.val >= tabSize {
		return nil, patchErrorf(MalformedElf, "%v string offset %#x is outside of the %d-byte string table",
			entry.tag, entry.val, tabSize)
	}
	str := img.data[tabOff+entry.val : tabOff+tabSize]
	nul := bytes.IndexByte(str, 0)
	if nul < 0 {
		return nil, patchErrorf(MalformedElf, "%v string is not NUL-terminated within the string table", entry.tag)
	}
	return &rpathRef{
		tag:   entry.tag,
		off:   tabOff + entry.val,
		span:  uint64(nul),
		value: string(str[:nul]),
	}, nil
}
