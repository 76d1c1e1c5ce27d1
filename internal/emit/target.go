// Package emit implements C7: a textual assembly emitter for six
// target ISAs, driven by a small target descriptor rather than one
// code path per architecture.
package emit

import "fmt"

// ID names one of the six supported target instruction sets.
type ID int

const (
	X86_64 ID = iota
	X86
	ARM64
	ARM32
	RISCV64
	RISCV32
)

func (id ID) String() string {
	switch id {
	case X86_64:
		return "x86-64"
	case X86:
		return "x86"
	case ARM64:
		return "arm64"
	case ARM32:
		return "arm32"
	case RISCV64:
		return "riscv64"
	case RISCV32:
		return "riscv32"
	default:
		return "unknown"
	}
}

// ParseID maps a target's String() form back to its ID, for CLI flags
// and config that name targets textually.
func ParseID(name string) (ID, error) {
	for _, id := range []ID{X86_64, X86, ARM64, ARM32, RISCV64, RISCV32} {
		if id.String() == name {
			return id, nil
		}
	}
	return 0, fmt.Errorf("emit: unknown target %q", name)
}

// Descriptor supplies everything the generic emitter needs to render
// one target's textual assembly: its conventional 8-register subset,
// word size, line indentation, and prologue/epilogue sequences.
type Descriptor struct {
	ID         ID
	Regs       [8]string // regs[0], regs[1] are the scratch pair expressions compute into
	WordSize   int
	Indent     string
	Prologue   []string
	Epilogue   []string
	CommentTok string
}

var descriptors = map[ID]Descriptor{
	X86_64: {
		ID:       X86_64,
		Regs:     [8]string{"rax", "rbx", "rcx", "rdx", "rsi", "rdi", "r8", "r9"},
		WordSize: 8,
		Indent:   "    ",
		Prologue: []string{"push bp", "mov bp, sp"},
		Epilogue: []string{"pop bp", "ret"},
	},
	X86: {
		ID:       X86,
		Regs:     [8]string{"eax", "ebx", "ecx", "edx", "esi", "edi", "ebp", "esp"},
		WordSize: 4,
		Indent:   "    ",
		Prologue: []string{"push bp", "mov bp, sp"},
		Epilogue: []string{"pop bp", "ret"},
	},
	ARM64: {
		ID:       ARM64,
		Regs:     [8]string{"x0", "x1", "x2", "x3", "x4", "x5", "x6", "x7"},
		WordSize: 8,
		Indent:   "    ",
		Prologue: []string{"stp x29, x30, [sp, #-16]!", "mov x29, sp"},
		Epilogue: []string{"ldp x29, x30, [sp], #16", "ret"},
	},
	ARM32: {
		ID:       ARM32,
		Regs:     [8]string{"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7"},
		WordSize: 4,
		Indent:   "    ",
		Prologue: []string{"push {lr}"},
		Epilogue: []string{"pop {pc}"},
	},
	RISCV64: {
		ID:       RISCV64,
		Regs:     [8]string{"a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7"},
		WordSize: 8,
		Indent:   "    ",
		Prologue: []string{"addi sp, sp, -16", "sd ra, 8(sp)"},
		Epilogue: []string{"ld ra, 8(sp)", "addi sp, sp, 16", "ret"},
	},
	RISCV32: {
		ID:       RISCV32,
		Regs:     [8]string{"a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7"},
		WordSize: 4,
		Indent:   "    ",
		Prologue: []string{"addi sp, sp, -16", "sw ra, 8(sp)"},
		Epilogue: []string{"lw ra, 8(sp)", "addi sp, sp, 16", "ret"},
	},
}

// Lookup returns the Descriptor for id, or an error if id is unknown.
func Lookup(id ID) (Descriptor, error) {
	d, ok := descriptors[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("emit: unsupported target %d", id)
	}
	return d, nil
}
