// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

// ELFOptions describes a synthetic shared object for BuildELF.
type ELFOptions struct {
	Class elf.Class        // default: ELFCLASS64
	Order binary.ByteOrder // default: binary.LittleEndian

	Needed  string // DT_NEEDED value, omitted if empty
	RPath   string // DT_RPATH value, omitted if empty
	RunPath string // DT_RUNPATH value, omitted if empty

	// NoDynamic omits the dynamic table altogether.
	NoDynamic bool
	// Sections adds a section header table with .dynstr, .dynamic, and .shstrtab sections.
	Sections bool
	// NoDynamicSegment omits the PT_DYNAMIC program header, so that the dynamic table can only be
	// found through the section header table.
	NoDynamicSegment bool
}

// ELFBase is the virtual address at which BuildELF's single PT_LOAD segment is mapped.
const ELFBase = 0x10000

// BuildELF returns a minimal ET_DYN image: an ELF header, a PT_LOAD segment covering the whole
// file, a PT_DYNAMIC segment, the dynamic table, and the dynamic string table, in that order.
func BuildELF(opts ELFOptions) []byte {
	if opts.Class == elf.ELFCLASSNONE {
		opts.Class = elf.ELFCLASS64
	}
	if opts.Order == nil {
		opts.Order = binary.LittleEndian
	}
	is64 := opts.Class == elf.ELFCLASS64

	var ehsize, phentsize, dynentsize, shentsize int
	if is64 {
		ehsize, phentsize, dynentsize, shentsize = 64, 56, 16, 64
	} else {
		ehsize, phentsize, dynentsize, shentsize = 52, 32, 8, 40
	}

	// string table
	strtab := []byte{0}
	addString := func(str string) uint64 {
		off := uint64(len(strtab))
		strtab = append(append(strtab, str...), 0)
		return off
	}
	type dyn struct {
		tag elf.DynTag
		val uint64
	}
	var dyns []dyn
	if !opts.NoDynamic {
		if opts.Needed != "" {
			dyns = append(dyns, dyn{elf.DT_NEEDED, addString(opts.Needed)})
		}
		if opts.RPath != "" {
			dyns = append(dyns, dyn{elf.DT_RPATH, addString(opts.RPath)})
		}
		if opts.RunPath != "" {
			dyns = append(dyns, dyn{elf.DT_RUNPATH, addString(opts.RunPath)})
		}
		// DT_STRTAB and DT_STRSZ are filled in below, once the layout is known.
		dyns = append(dyns,
			dyn{elf.DT_STRTAB, 0},
			dyn{elf.DT_STRSZ, uint64(len(strtab))},
			dyn{elf.DT_NULL, 0})
	}

	phnum := 1
	if !opts.NoDynamic && !opts.NoDynamicSegment {
		phnum++
	}
	dynOff := ehsize + phnum*phentsize
	dynSize := len(dyns) * dynentsize
	strOff := dynOff + dynSize
	for i := range dyns {
		if dyns[i].tag == elf.DT_STRTAB {
			dyns[i].val = uint64(ELFBase + strOff)
		}
	}
	shstrtab := []byte("\x00.dynstr\x00.dynamic\x00.shstrtab\x00")
	shstrOff := strOff + len(strtab)
	shOff, shnum, shstrndx := 0, 0, 0
	if opts.Sections {
		shOff = (shstrOff + len(shstrtab) + 7) &^ 7
		shnum = 4
		shstrndx = 3
	}
	fileSize := shstrOff
	if opts.Sections {
		fileSize = shOff + shnum*shentsize
	}

	buf := new(bytes.Buffer)
	write := func(data interface{}) {
		if err := binary.Write(buf, opts.Order, data); err != nil {
			panic(err)
		}
	}
	pad := func(off int) {
		for buf.Len() < off {
			buf.WriteByte(0)
		}
	}

	var ident [elf.EI_NIDENT]byte
	copy(ident[:], elf.ELFMAG)
	ident[elf.EI_CLASS] = byte(opts.Class)
	if opts.Order == binary.BigEndian {
		ident[elf.EI_DATA] = byte(elf.ELFDATA2MSB)
	} else {
		ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	}
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	type prog struct {
		typ         elf.ProgType
		flags       elf.ProgFlag
		off, vaddr  uint64
		size, align uint64
	}
	progs := []prog{
		{elf.PT_LOAD, elf.PF_R | elf.PF_X, 0, ELFBase, uint64(fileSize), 0x1000},
	}
	if phnum > 1 {
		progs = append(progs, prog{elf.PT_DYNAMIC, elf.PF_R | elf.PF_W, uint64(dynOff), uint64(ELFBase + dynOff), uint64(dynSize), 8})
	}
	type section struct {
		name, typ       uint32
		addr, off, size uint64
		link            uint32
		align, entsize  uint64
	}
	sections := []section{
		{},
		{1, uint32(elf.SHT_STRTAB), uint64(ELFBase + strOff), uint64(strOff), uint64(len(strtab)), 0, 1, 0},
		{9, uint32(elf.SHT_DYNAMIC), uint64(ELFBase + dynOff), uint64(dynOff), uint64(dynSize), 1, 8, uint64(dynentsize)},
		{18, uint32(elf.SHT_STRTAB), 0, uint64(shstrOff), uint64(len(shstrtab)), 0, 1, 0},
	}

	if is64 {
		write(elf.Header64{
			Ident:     ident,
			Type:      uint16(elf.ET_DYN),
			Machine:   uint16(elf.EM_X86_64),
			Version:   uint32(elf.EV_CURRENT),
			Phoff:     uint64(ehsize),
			Shoff:     uint64(shOff),
			Ehsize:    uint16(ehsize),
			Phentsize: uint16(phentsize),
			Phnum:     uint16(phnum),
			Shentsize: uint16(shentsize),
			Shnum:     uint16(shnum),
			Shstrndx:  uint16(shstrndx),
		})
		for _, p := range progs {
			write(elf.Prog64{
				Type: uint32(p.typ), Flags: uint32(p.flags),
				Off: p.off, Vaddr: p.vaddr, Paddr: p.vaddr,
				Filesz: p.size, Memsz: p.size, Align: p.align,
			})
		}
		for _, d := range dyns {
			write(elf.Dyn64{Tag: int64(d.tag), Val: d.val})
		}
	} else {
		write(elf.Header32{
			Ident:     ident,
			Type:      uint16(elf.ET_DYN),
			Machine:   uint16(elf.EM_386),
			Version:   uint32(elf.EV_CURRENT),
			Phoff:     uint32(ehsize),
			Shoff:     uint32(shOff),
			Ehsize:    uint16(ehsize),
			Phentsize: uint16(phentsize),
			Phnum:     uint16(phnum),
			Shentsize: uint16(shentsize),
			Shnum:     uint16(shnum),
			Shstrndx:  uint16(shstrndx),
		})
		for _, p := range progs {
			write(elf.Prog32{
				Type: uint32(p.typ), Flags: uint32(p.flags),
				Off: uint32(p.off), Vaddr: uint32(p.vaddr), Paddr: uint32(p.vaddr),
				Filesz: uint32(p.size), Memsz: uint32(p.size), Align: uint32(p.align),
			})
		}
		for _, d := range dyns {
			write(elf.Dyn32{Tag: int32(d.tag), Val: uint32(d.val)})
		}
	}
	buf.Write(strtab)
	if opts.Sections {
		buf.Write(shstrtab)
		pad(shOff)
		for _, s := range sections {
			if is64 {
				write(elf.Section64{
					Name: s.name, Type: s.typ, Addr: s.addr, Off: s.off, Size: s.size,
					Link: s.link, Addralign: s.align, Entsize: s.entsize,
				})
			} else {
				write(elf.Section32{
					Name: s.name, Type: s.typ, Addr: uint32(s.addr), Off: uint32(s.off), Size: uint32(s.size),
					Link: s.link, Addralign: uint32(s.align), Entsize: uint32(s.entsize),
				})
			}
		}
	}
	return buf.Bytes()
}
