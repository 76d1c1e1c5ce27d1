package jit

import (
	"hash/fnv"

	"astctool.dev/astc/internal/astc"
)

// hashBody mixes (opcode, operand) pairs across a function's
// instruction slice into a single hash used as the cache key. Two
// syntactically identical functions hash identically, so recompiling
// the same program is a cache hit rather than a second compilation.
func hashBody(body []astc.Inst) uint64 {
	h := fnv.New64a()
	var buf [9]byte
	for _, in := range body {
		buf[0] = byte(in.Op)
		operand := operandBits(in)
		for i := 0; i < 8; i++ {
			buf[1+i] = byte(operand >> (8 * i))
		}
		h.Write(buf[:])
	}
	return h.Sum64()
}

func operandBits(in astc.Inst) uint64 {
	switch in.Operand {
	case astc.OperandI32:
		return uint64(uint32(in.I32))
	case astc.OperandI64:
		return uint64(in.I64)
	case astc.OperandF32Bits:
		return uint64(in.Bits32)
	case astc.OperandF64Bits:
		return in.Bits64
	case astc.OperandIndex:
		return uint64(in.Index)
	default:
		return 0
	}
}
