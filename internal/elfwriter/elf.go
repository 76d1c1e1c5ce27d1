// Package elfwriter implements C10: it compiles an ASTC entry function
// to a small x86-64 machine-code subset and wraps it in a minimal
// ELF64 executable image — a single PT_LOAD segment with no sections,
// symbol table, or dynamic linking, loadable directly by the kernel.
package elfwriter

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"astctool.dev/astc/internal/astc"
)

var (
	errFrameTooLarge  = fmt.Errorf("elfwriter: frame exceeds disp8 addressing range")
	errStackTooDeep   = fmt.Errorf("elfwriter: expression depth exceeds the codegen subset's native-stack limit")
	errStackUnderflow = fmt.Errorf("elfwriter: value stack underflow")
)

const (
	elfHeaderSize  = 64
	phdrSize       = 56
	loadAddr       = 0x401000
	loadFileOffset = 0x1000
)

// elfMachineX8664 is e_machine's EM_X86_64 value.
const elfMachineX8664 = 0x3e

// Write compiles prog's entry function to the x86-64 AOT subset and
// writes a freestanding ELF64 executable to path, mode 0755.
func Write(prog *astc.Program, path string) error {
	code, err := compileProgram(prog)
	if err != nil {
		return err
	}
	image := buildImage(code)
	if err := os.WriteFile(path, image, 0o755); err != nil {
		return errors.Wrapf(err, "elfwriter: write %q", path)
	}
	return nil
}

func compileProgram(prog *astc.Program) ([]byte, error) {
	funcIdx := int(prog.EntryPoint)
	if funcIdx < 0 || funcIdx >= len(prog.Instructions) || prog.Instructions[funcIdx].Op != astc.OpFunc {
		return nil, fmt.Errorf("elfwriter: entry point %d is not a func marker", funcIdx)
	}
	body, ok := funcBody(prog, funcIdx)
	if !ok {
		return nil, fmt.Errorf("elfwriter: entry function has no matching end")
	}
	meta := prog.FuncMeta[prog.Instructions[funcIdx].Index]
	return compileEntry(body, meta)
}

// buildImage lays out the 64-byte ELF header directly followed by the
// 56-byte program header, pads to file offset 0x1000, and places code
// there — one PT_LOAD segment, no sections.
func buildImage(code []byte) []byte {
	totalSize := loadFileOffset + len(code)
	img := make([]byte, totalSize)

	img[0] = 0x7f
	img[1] = 'E'
	img[2] = 'L'
	img[3] = 'F'
	img[4] = 2 // ELFCLASS64
	img[5] = 1 // ELFDATA2LSB
	img[6] = 1 // EV_CURRENT
	img[7] = 0 // ELFOSABI_NONE (SysV)
	// bytes 8-15 (ABI version + padding) stay zero.
	binary.LittleEndian.PutUint16(img[16:], 2)               // e_type: ET_EXEC
	binary.LittleEndian.PutUint16(img[18:], elfMachineX8664) // e_machine
	binary.LittleEndian.PutUint32(img[20:], 1)               // e_version
	binary.LittleEndian.PutUint64(img[24:], loadAddr)        // e_entry
	binary.LittleEndian.PutUint64(img[32:], elfHeaderSize)   // e_phoff
	binary.LittleEndian.PutUint64(img[40:], 0)               // e_shoff
	binary.LittleEndian.PutUint32(img[48:], 0)               // e_flags
	binary.LittleEndian.PutUint16(img[52:], elfHeaderSize)   // e_ehsize
	binary.LittleEndian.PutUint16(img[54:], phdrSize)        // e_phentsize
	binary.LittleEndian.PutUint16(img[56:], 1)               // e_phnum
	binary.LittleEndian.PutUint16(img[58:], 0)               // e_shentsize
	binary.LittleEndian.PutUint16(img[60:], 0)               // e_shnum
	binary.LittleEndian.PutUint16(img[62:], 0)               // e_shstrndx

	phdr := img[elfHeaderSize:]
	binary.LittleEndian.PutUint32(phdr[0:], 1)                  // p_type: PT_LOAD
	binary.LittleEndian.PutUint32(phdr[4:], 5)                  // p_flags: PF_R|PF_X
	binary.LittleEndian.PutUint64(phdr[8:], loadFileOffset)     // p_offset
	binary.LittleEndian.PutUint64(phdr[16:], loadAddr)          // p_vaddr
	binary.LittleEndian.PutUint64(phdr[24:], loadAddr)          // p_paddr
	binary.LittleEndian.PutUint64(phdr[32:], uint64(len(code))) // p_filesz
	binary.LittleEndian.PutUint64(phdr[40:], uint64(len(code))) // p_memsz
	binary.LittleEndian.PutUint64(phdr[48:], 0x1000)            // p_align

	copy(img[loadFileOffset:], code)
	return img
}
