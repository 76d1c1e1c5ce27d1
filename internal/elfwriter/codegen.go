package elfwriter

import (
	"encoding/binary"
	"fmt"

	"astctool.dev/astc/internal/astc"
)

// x86-64 register numbers for the codegen subset's two scratch
// registers.
const (
	regEAX = 0
	regEBX = 3
)

// maxCodegenDepth bounds how many values compileEntry will keep live
// on the native stack at once — generous for any expression shape this
// subset's grammar can produce, but still a hard ceiling against a
// pathological input driving unbounded stack growth.
const maxCodegenDepth = 4096

// codegen accumulates machine code for one function body. It mirrors
// the JIT's amd64 code generator (i32 const, local get/set, add/sub/mul,
// return) but ends the function in an exit syscall instead of a ret,
// since an AOT image has no caller to return to.
type codegen struct {
	code      []byte
	depth     int // values currently spilled onto the native stack
	locals    map[uint32]int
	frameSize int
}

func newCodegen(meta astc.FuncMeta) *codegen {
	g := &codegen{locals: make(map[uint32]int)}
	count := meta.Params + meta.Locals
	for i := uint32(0); i < count; i++ {
		g.locals[i] = int(i+1) * 8
	}
	g.frameSize = align16(int(count) * 8)
	return g
}

func align16(n int) int { return (n + 15) &^ 15 }

func (g *codegen) emit(b ...byte) { g.code = append(g.code, b...) }

// prologue saves the caller's frame pointer and reserves frameSize
// bytes below rbp for locals, so the operand stack's push/pop spills
// (which grow rsp downward from there) never land on top of a local's
// fixed rbp-relative slot.
func (g *codegen) prologue() {
	g.emit(0x55)             // push rbp
	g.emit(0x48, 0x89, 0xe5) // mov rbp, rsp
	if g.frameSize > 0 {
		g.emit(0x48, 0x81, 0xec) // sub rsp, imm32
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(g.frameSize))
		g.emit(buf[:]...)
	}
}

// exitEpilogue moves the value in eax into edi (the exit status) and
// issues the exit syscall. There is no ret: the process terminates
// here, matching the AOT entry point rather than a callable function.
func (g *codegen) exitEpilogue() {
	g.emit(0x89, 0xc7)     // mov edi, eax
	g.movImm32(regEAX, 60) // sys_exit
	g.emit(0x0f, 0x05)     // syscall
}

func modrmDirect(reg, rm int) byte { return byte(0xc0 | (reg&7)<<3 | rm&7) }

func (g *codegen) movImm32(reg int, v int32) {
	g.emit(byte(0xb8 + reg))
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	g.emit(buf[:]...)
}

func (g *codegen) addRR(dst, src int)  { g.emit(0x01, modrmDirect(src, dst)) }
func (g *codegen) subRR(dst, src int)  { g.emit(0x29, modrmDirect(src, dst)) }
func (g *codegen) imulRR(dst, src int) { g.emit(0x0f, 0xaf, modrmDirect(dst, src)) }

// loadLocal/storeLocal only support the disp8 encoding (offsets up to
// 127 bytes, i.e. 15 locals at 8 bytes each) — plenty for the function
// shapes this subset targets; anything larger fails with
// errFrameTooLarge, which Write returns to its caller.
func (g *codegen) loadLocal(reg, offset int) error {
	if offset > 127 {
		return errFrameTooLarge
	}
	g.emit(0x8b, byte(0x45|(reg&7)<<3), byte(-offset))
	return nil
}

func (g *codegen) storeLocal(offset, reg int) error {
	if offset > 127 {
		return errFrameTooLarge
	}
	g.emit(0x89, byte(0x45|(reg&7)<<3), byte(-offset))
	return nil
}

// push spills reg onto the native stack via a real push instruction,
// so a freshly computed value never has to wait in a named register
// while further operands are evaluated — there's no register left for
// them to clobber.
func (g *codegen) push(reg int) error {
	if g.depth >= maxCodegenDepth {
		return errStackTooDeep
	}
	g.emit(byte(0x50 + reg)) // push r64
	g.depth++
	return nil
}

// pop reloads the top spilled value into reg via a real pop instruction.
func (g *codegen) pop(reg int) error {
	if g.depth == 0 {
		return errStackUnderflow
	}
	g.emit(byte(0x58 + reg)) // pop r64
	g.depth--
	return nil
}

// compileEntry translates an entry function's ASTC body to the same
// i32/local/add-sub-mul/return subset the JIT compiles, except `return`
// emits an exit syscall carrying the top-of-stack value as the process
// exit status rather than a function return. Every computed value is
// pushed to the native stack immediately and popped back for
// consumption, so expressions of any shape the grammar produces
// evaluate correctly regardless of how many operands are live at once.
func compileEntry(body []astc.Inst, meta astc.FuncMeta) ([]byte, error) {
	g := newCodegen(meta)
	g.prologue()
	returned := false

	for _, in := range body {
		switch in.Op {
		case astc.OpI32Const:
			g.movImm32(regEAX, in.I32)
			if err := g.push(regEAX); err != nil {
				return nil, err
			}
		case astc.OpLocalGet:
			off, ok := g.locals[in.Index]
			if !ok {
				return nil, fmt.Errorf("elfwriter: unknown local slot %d", in.Index)
			}
			if err := g.loadLocal(regEAX, off); err != nil {
				return nil, err
			}
			if err := g.push(regEAX); err != nil {
				return nil, err
			}
		case astc.OpLocalSet:
			off, ok := g.locals[in.Index]
			if !ok {
				return nil, fmt.Errorf("elfwriter: unknown local slot %d", in.Index)
			}
			if err := g.pop(regEAX); err != nil {
				return nil, err
			}
			if err := g.storeLocal(off, regEAX); err != nil {
				return nil, err
			}
		case astc.OpAdd, astc.OpSub, astc.OpMul:
			if err := g.pop(regEBX); err != nil { // right
				return nil, err
			}
			if err := g.pop(regEAX); err != nil { // left
				return nil, err
			}
			switch in.Op {
			case astc.OpAdd:
				g.addRR(regEAX, regEBX)
			case astc.OpMul:
				g.imulRR(regEAX, regEBX)
			case astc.OpSub:
				g.subRR(regEAX, regEBX)
			}
			if err := g.push(regEAX); err != nil {
				return nil, err
			}
		case astc.OpReturn:
			if err := g.pop(regEAX); err != nil {
				return nil, err
			}
			g.exitEpilogue()
			returned = true
		default:
			return nil, fmt.Errorf("elfwriter: opcode %s outside the AOT subset", in.Op)
		}
	}

	if !returned {
		g.movImm32(regEAX, 0)
		g.exitEpilogue()
	}
	return g.code, nil
}

// funcBody returns the instructions strictly between a function's
// OpFunc and its matching OpEnd, tracking nested blocks the same way
// the VM's jump precomputation does: OpElse never changes depth.
func funcBody(prog *astc.Program, funcIdx int) ([]astc.Inst, bool) {
	depth := 0
	for i := funcIdx + 1; i < len(prog.Instructions); i++ {
		switch prog.Instructions[i].Op {
		case astc.OpBlock, astc.OpLoop, astc.OpIf, astc.OpFunc:
			depth++
		case astc.OpEnd:
			if depth == 0 {
				return prog.Instructions[funcIdx+1 : i], true
			}
			depth--
		}
	}
	return nil, false
}
