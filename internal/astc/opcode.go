// Package astc implements C4: the ASTC bytecode program model — a
// header, an append-only instruction vector, a data segment, a string
// table, and a symbol table.
package astc

// Opcode is the single authoritative ASTC opcode table: one
// authoritative dialect shared by lowering, the VM, the JIT, and the
// ELF writer. The VM rejects unknown opcodes when a program is loaded
// (vm.New) rather than tolerating a second encoding.
type Opcode uint8

const (
	OpUnreachable Opcode = iota
	OpNop
	OpBlock
	OpLoop
	OpIf
	OpElse
	OpEnd
	OpBr
	OpBrIf
	OpReturn
	OpCall
	OpFunc
	OpDrop

	OpLocalGet
	OpLocalSet
	OpLocalTee
	OpGlobalGet
	OpGlobalSet

	OpI32Load
	OpI64Load
	OpF32Load
	OpF64Load
	OpI32Store
	OpI64Store
	OpF32Store
	OpF64Store
	OpI32Store8
	OpI32Store16

	OpI32Const
	OpI64Const
	OpF32Const
	OpF64Const
	OpStringConst

	OpAdd
	OpSub
	OpMul
	OpDivS
	OpDivU
	OpRemS
	OpRemU
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShrS
	OpShrU

	OpEqz
	OpEq
	OpNe
	OpLtS
	OpLtU
	OpLeS
	OpLeU
	OpGtS
	OpGtU
	OpGeS
	OpGeU

	OpI32TruncF32S
	OpI32TruncF64S
	OpI32WrapI64

	// c99 meta opcodes: no-op in the VM, meaningful only to the
	// emitter.
	OpC99Compile
	OpC99Parse
	OpC99Codegen
	OpC99Optimize
	OpC99Link

	opcodeCount
)

var opcodeNames = [opcodeCount]string{
	OpUnreachable: "unreachable", OpNop: "nop", OpBlock: "block", OpLoop: "loop",
	OpIf: "if", OpElse: "else", OpEnd: "end", OpBr: "br", OpBrIf: "br_if",
	OpReturn: "return", OpCall: "call", OpFunc: "func", OpDrop: "drop",
	OpLocalGet: "local.get", OpLocalSet: "local.set", OpLocalTee: "local.tee",
	OpGlobalGet: "global.get", OpGlobalSet: "global.set",
	OpI32Load: "i32.load", OpI64Load: "i64.load", OpF32Load: "f32.load", OpF64Load: "f64.load",
	OpI32Store: "i32.store", OpI64Store: "i64.store", OpF32Store: "f32.store", OpF64Store: "f64.store",
	OpI32Store8: "i32.store8", OpI32Store16: "i32.store16",
	OpI32Const: "i32.const", OpI64Const: "i64.const", OpF32Const: "f32.const",
	OpF64Const: "f64.const", OpStringConst: "string.const",
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDivS: "div_s", OpDivU: "div_u",
	OpRemS: "rem_s", OpRemU: "rem_u", OpAnd: "and", OpOr: "or", OpXor: "xor",
	OpShl: "shl", OpShrS: "shr_s", OpShrU: "shr_u",
	OpEqz: "eqz", OpEq: "eq", OpNe: "ne", OpLtS: "lt_s", OpLtU: "lt_u",
	OpLeS: "le_s", OpLeU: "le_u", OpGtS: "gt_s", OpGtU: "gt_u", OpGeS: "ge_s", OpGeU: "ge_u",
	OpI32TruncF32S: "i32.trunc_f32_s", OpI32TruncF64S: "i32.trunc_f64_s", OpI32WrapI64: "i32.wrap_i64",
	OpC99Compile: "c99.compile", OpC99Parse: "c99.parse", OpC99Codegen: "c99.codegen",
	OpC99Optimize: "c99.optimize", OpC99Link: "c99.link",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return "invalid"
}

// Valid reports whether op is a member of the single opcode table
// above. Loaders must reject anything else.
func (op Opcode) Valid() bool { return op < opcodeCount }

// IsC99Meta reports whether op is one of the no-op-in-the-VM c99.*
// family.
func (op Opcode) IsC99Meta() bool { return op >= OpC99Compile && op <= OpC99Link }
