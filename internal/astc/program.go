package astc

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Magic/version identify the ASTC program container.
const (
	Magic   = "ASTC"
	Version = uint32(1)
)

// OperandKind discriminates the operand union carried by an Inst.
type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandI32
	OperandI64
	OperandF32Bits
	OperandF64Bits
	OperandIndex // u32 index: data offset, symbol index, or block depth
)

// Inst is one ASTC instruction: an opcode plus a discriminated-union
// operand.
type Inst struct {
	Op      Opcode
	Operand OperandKind
	I32     int32
	I64     int64
	Bits32  uint32
	Bits64  uint64
	Index   uint32
}

func (in Inst) String() string {
	switch in.Operand {
	case OperandI32:
		return fmt.Sprintf("%s %d", in.Op, in.I32)
	case OperandI64:
		return fmt.Sprintf("%s %d", in.Op, in.I64)
	case OperandF32Bits:
		return fmt.Sprintf("%s %g", in.Op, math.Float32frombits(in.Bits32))
	case OperandF64Bits:
		return fmt.Sprintf("%s %g", in.Op, math.Float64frombits(in.Bits64))
	case OperandIndex:
		return fmt.Sprintf("%s %d", in.Op, in.Index)
	default:
		return in.Op.String()
	}
}

// SymKind tags a Symbol table entry.
type SymKind uint8

const (
	SymLocal SymKind = iota
	SymFunction
)

// Symbol is one deduplicated symbol-table entry.
type Symbol struct {
	Name  string
	Index uint32
	Kind  SymKind
}

// Program is the in-memory ASTC container C5 lowers into and C6/C7/C8/C10
// consume.
type Program struct {
	Flags uint32

	// Instructions is append-only during lowering.
	Instructions []Inst

	// Data is the append-only string-literal data segment.
	Data []byte

	// stringTable interns string contents → the data offset of the
	// first occurrence.
	stringTable map[string]uint32

	// symbolTable dedups (name, kind) → index; insertion returns the
	// existing index if present else the next sequential index
	// insertion returns the existing index if present, else a fresh one.
	symbolTable map[symKey]uint32
	Symbols     []Symbol

	// EntryPoint indexes Instructions; defaults to 0.
	EntryPoint uint32

	// FuncMeta carries the per-function frame shape lowering computed
	// (parameter count, total local slot count) keyed by the function's
	// symbol index — the VM (C6) needs it to size call frames since the
	// instruction stream alone doesn't say how many locals a function has.
	FuncMeta map[uint32]FuncMeta
}

// FuncMeta describes one function's call-frame shape.
type FuncMeta struct {
	Params uint32
	Locals uint32
}

type symKey struct {
	name string
	kind SymKind
}

// New returns an empty Program ready for lowering to append into.
func New() *Program {
	return &Program{
		stringTable: make(map[string]uint32),
		symbolTable: make(map[symKey]uint32),
		FuncMeta:    make(map[uint32]FuncMeta),
	}
}

// Emit appends one instruction and returns its index.
func (p *Program) Emit(in Inst) uint32 {
	idx := uint32(len(p.Instructions))
	p.Instructions = append(p.Instructions, in)
	return idx
}

// InternString appends s (NUL-terminated) to the data segment unless an
// identical string is already present, in which case it returns the
// offset of the first occurrence.
func (p *Program) InternString(s string) uint32 {
	if off, ok := p.stringTable[s]; ok {
		return off
	}
	off := uint32(len(p.Data))
	p.Data = append(p.Data, s...)
	p.Data = append(p.Data, 0)
	p.stringTable[s] = off
	return off
}

// StringAt returns the NUL-terminated string starting at a data-segment
// offset, validating the NUL falls within bounds — a STRING_CONST
// operand always refers to a valid data-segment offset with a NUL
// within bounds.
func (p *Program) StringAt(offset uint32) (string, bool) {
	if int(offset) >= len(p.Data) {
		return "", false
	}
	end := int(offset)
	for end < len(p.Data) && p.Data[end] != 0 {
		end++
	}
	if end >= len(p.Data) {
		return "", false
	}
	return string(p.Data[offset:end]), true
}

// InternSymbol dedups (name, kind) and returns a dense, stable index —
// the existing index if the pair was already registered, else a fresh
// sequential one.
func (p *Program) InternSymbol(name string, kind SymKind) uint32 {
	key := symKey{name, kind}
	if idx, ok := p.symbolTable[key]; ok {
		return idx
	}
	idx := uint32(len(p.Symbols))
	p.symbolTable[key] = idx
	p.Symbols = append(p.Symbols, Symbol{Name: name, Index: idx, Kind: kind})
	return idx
}

// --- Constructors for the operand-carrying instruction forms ---

func I32Const(v int32) Inst   { return Inst{Op: OpI32Const, Operand: OperandI32, I32: v} }
func I64Const(v int64) Inst   { return Inst{Op: OpI64Const, Operand: OperandI64, I64: v} }
func F32Const(bits uint32) Inst {
	return Inst{Op: OpF32Const, Operand: OperandF32Bits, Bits32: bits}
}
func F64Const(bits uint64) Inst {
	return Inst{Op: OpF64Const, Operand: OperandF64Bits, Bits64: bits}
}
func StringConst(offset uint32) Inst {
	return Inst{Op: OpStringConst, Operand: OperandIndex, Index: offset}
}
func Idx(op Opcode, i uint32) Inst { return Inst{Op: op, Operand: OperandIndex, Index: i} }
func Plain(op Opcode) Inst         { return Inst{Op: op} }

// --- Packed on-disk compatibility codec ---
//
// The in-memory (opcode, operand-union) dialect above is canonical
// (DESIGN.md open-question decision #1). The packed format is a
// compatibility subset for exactly three opcodes (0=nop, 1=load_const,
// 2=return), each packed as a big-picture little-endian u32:
// ((opcode<<24) | (operand & 0x00FFFFFF)), with bit 23 of the operand
// sign-extended to the full 32 bits on decode — preserved exactly
// because existing .astc files depend on it.

const (
	PackedOpNop       = 0
	PackedOpLoadConst = 1
	PackedOpReturn    = 2
)

// EncodePacked renders a Program's instructions through the 3-opcode
// packed subset. Instructions outside {nop, i32.const, return} are
// dropped; callers that need full fidelity should persist the ASTC
// file header + the full Instructions slice via a richer codec instead
// (the packed form exists solely for the legacy loader path).
func EncodePacked(prog *Program) []byte {
	header := make([]byte, 16)
	copy(header[0:4], Magic)
	binary.LittleEndian.PutUint32(header[4:8], Version)
	binary.LittleEndian.PutUint32(header[12:16], prog.EntryPoint)

	var body []byte
	for _, in := range prog.Instructions {
		var packedOp uint32
		var operand uint32
		switch in.Op {
		case OpNop:
			packedOp = PackedOpNop
		case OpI32Const:
			packedOp = PackedOpLoadConst
			operand = uint32(in.I32) & 0x00FFFFFF
		case OpReturn:
			packedOp = PackedOpReturn
		default:
			continue
		}
		word := (packedOp << 24) | operand
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, word)
		body = append(body, buf...)
	}
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(body)))
	return append(header, body...)
}

// DecodePacked parses the packed on-disk form, sign-extending bit 23 of
// each operand into the full width exactly as the legacy loader does,
// and rejects anything with a bad magic, truncated size, or an opcode
// outside the 3-entry packed table.
func DecodePacked(data []byte) (*Program, error) {
	if len(data) < 16 {
		return nil, fmt.Errorf("astc: truncated header (%d bytes)", len(data))
	}
	if string(data[0:4]) != Magic {
		return nil, fmt.Errorf("astc: bad magic %q", data[0:4])
	}
	version := binary.LittleEndian.Uint32(data[4:8])
	if version != Version {
		return nil, fmt.Errorf("astc: unsupported version %d", version)
	}
	size := binary.LittleEndian.Uint32(data[8:12])
	entry := binary.LittleEndian.Uint32(data[12:16])
	body := data[16:]
	if uint32(len(body)) < size {
		return nil, fmt.Errorf("astc: truncated body: want %d bytes, have %d", size, len(body))
	}
	body = body[:size]
	if len(body)%4 != 0 {
		return nil, fmt.Errorf("astc: body size %d not a multiple of 4", len(body))
	}

	prog := New()
	prog.EntryPoint = entry
	for i := 0; i+4 <= len(body); i += 4 {
		word := binary.LittleEndian.Uint32(body[i : i+4])
		packedOp := word >> 24
		operand := word & 0x00FFFFFF
		switch packedOp {
		case PackedOpNop:
			prog.Emit(Plain(OpNop))
		case PackedOpLoadConst:
			v := int32(operand)
			if operand&0x00800000 != 0 {
				v = int32(operand | 0xFF000000) // sign-extend bit 23
			}
			prog.Emit(I32Const(v))
		case PackedOpReturn:
			prog.Emit(Plain(OpReturn))
		default:
			return nil, fmt.Errorf("astc: unknown packed opcode %d at instruction %d", packedOp, i/4)
		}
	}
	return prog, nil
}
