// Package elfimage implements a minimal ELF32 read/write surface: a
// loadable image is just its entry point plus the program headers that
// carry virtual address, data, and R/W/X flags into a mounted memory.
package elfimage

import (
	"bytes"
	stdelf "debug/elf"
	"encoding/binary"
	"fmt"
	"io"
)

// Flags mirrors the {R,W,X} triad a loaded segment's permissions need;
// any other ELF program-header flag (e.g. PF_MASKOS bits) is ignored.
type Flags struct {
	R, W, X bool
}

// ProgramHeader is one PT_LOAD segment: where it maps in the emulated
// address space, its backing bytes, and its mapping permissions.
type ProgramHeader struct {
	VirtualAddress uint32
	Data           []byte
	Flags          Flags
}

// Elf is the parsed or to-be-written image.
type Elf struct {
	Entry          uint32
	ProgramHeaders []ProgramHeader
}

// Read parses an ELF32 image, keeping only PT_LOAD segments — the only
// segment kind a standalone MIPS32 program image needs (dynamic
// linking, interpreter, note sections and the like have no meaning
// here and are ignored).
func Read(data []byte) (Elf, error) {
	f, err := stdelf.NewFile(bytes.NewReader(data))
	if err != nil {
		return Elf{}, fmt.Errorf("elfimage: %w", err)
	}
	defer f.Close()

	if f.Class != stdelf.ELFCLASS32 {
		return Elf{}, fmt.Errorf("elfimage: only 32-bit ELF images are supported, got %s", f.Class)
	}

	out := Elf{Entry: uint32(f.Entry)}
	for _, prog := range f.Progs {
		if prog.Type != stdelf.PT_LOAD {
			continue
		}
		buf := make([]byte, prog.Filesz)
		if _, err := io.ReadFull(prog.Open(), buf); err != nil {
			return Elf{}, fmt.Errorf("elfimage: reading PT_LOAD segment at 0x%x: %w", prog.Vaddr, err)
		}
		if prog.Memsz > prog.Filesz {
			buf = append(buf, make([]byte, prog.Memsz-prog.Filesz)...)
		}
		out.ProgramHeaders = append(out.ProgramHeaders, ProgramHeader{
			VirtualAddress: uint32(prog.Vaddr),
			Data:           buf,
			Flags: Flags{
				R: prog.Flags&stdelf.PF_R != 0,
				W: prog.Flags&stdelf.PF_W != 0,
				X: prog.Flags&stdelf.PF_X != 0,
			},
		})
	}
	return out, nil
}

const (
	elfHeaderSize     = 52
	progHeaderSize    = 32
	elfDataLittleEndian = 1
)

// Write emits a minimal static ELF32 MIPS image: one ELF header,
// one program header per segment, and the segment bytes back to back.
// There is no section header table, no dynamic section, and no
// interpreter — this writer targets the same standalone, statically
// loaded image shape the assembler produces, not a dynamically-linked
// executable.
func (e Elf) Write(w io.Writer) error {
	numHeaders := len(e.ProgramHeaders)
	offset := uint32(elfHeaderSize + progHeaderSize*numHeaders)

	offsets := make([]uint32, numHeaders)
	for i, ph := range e.ProgramHeaders {
		offsets[i] = offset
		offset += uint32(len(ph.Data))
	}

	var buf bytes.Buffer

	// e_ident
	buf.Write([]byte{0x7f, 'E', 'L', 'F'})
	buf.WriteByte(1) // ELFCLASS32
	buf.WriteByte(elfDataLittleEndian)
	buf.WriteByte(1) // EV_CURRENT
	buf.WriteByte(0) // ELFOSABI_NONE
	buf.Write(make([]byte, 8))

	write16 := func(v uint16) { binary.Write(&buf, binary.LittleEndian, v) }
	write32 := func(v uint32) { binary.Write(&buf, binary.LittleEndian, v) }

	write16(uint16(stdelf.ET_EXEC)) // e_type
	write16(uint16(stdelf.EM_MIPS)) // e_machine
	write32(1)                      // e_version
	write32(e.Entry)                // e_entry
	write32(elfHeaderSize)          // e_phoff
	write32(0)                      // e_shoff
	write32(0)                      // e_flags
	write16(elfHeaderSize)          // e_ehsize
	write16(progHeaderSize)         // e_phentsize
	write16(uint16(numHeaders))     // e_phnum
	write16(0)                      // e_shentsize
	write16(0)                      // e_shnum
	write16(0)                      // e_shstrndx

	if buf.Len() != elfHeaderSize {
		return fmt.Errorf("elfimage: internal error, wrote %d byte ELF header, want %d", buf.Len(), elfHeaderSize)
	}

	for i, ph := range e.ProgramHeaders {
		write32(uint32(stdelf.PT_LOAD))
		write32(offsets[i])            // p_offset
		write32(ph.VirtualAddress)     // p_vaddr
		write32(ph.VirtualAddress)     // p_paddr
		write32(uint32(len(ph.Data)))  // p_filesz
		write32(uint32(len(ph.Data)))  // p_memsz
		write32(progFlags(ph.Flags))   // p_flags
		write32(4)                     // p_align
	}

	for _, ph := range e.ProgramHeaders {
		buf.Write(ph.Data)
	}

	_, err := w.Write(buf.Bytes())
	return err
}

func progFlags(f Flags) uint32 {
	var v uint32
	if f.R {
		v |= uint32(stdelf.PF_R)
	}
	if f.W {
		v |= uint32(stdelf.PF_W)
	}
	if f.X {
		v |= uint32(stdelf.PF_X)
	}
	return v
}
