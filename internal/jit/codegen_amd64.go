package jit

import (
	"encoding/binary"
	"fmt"

	"astctool.dev/astc/internal/astc"
)

// x86-64 register numbers for the two scratch registers this codegen
// subset combines binary operations in.
const (
	regEAX = 0
	regEBX = 3
)

// maxCodegenDepth bounds how many values compileAMD64 will keep live
// on the native stack at once — generous for any expression shape this
// subset's grammar can produce, but still a hard ceiling against a
// pathological input driving unbounded stack growth.
const maxCodegenDepth = 4096

type amd64Gen struct {
	code      []byte
	depth     int // values currently spilled onto the native stack
	locals    map[uint32]int
	frameSize int
}

func newAMD64Gen(meta astc.FuncMeta) *amd64Gen {
	g := &amd64Gen{locals: make(map[uint32]int)}
	count := meta.Params + meta.Locals
	for i := uint32(0); i < count; i++ {
		g.locals[i] = int(i+1) * 8
	}
	g.frameSize = align16(int(count) * 8)
	return g
}

func align16(n int) int { return (n + 15) &^ 15 }

func (g *amd64Gen) emit(b ...byte) { g.code = append(g.code, b...) }

// prologue saves the caller's frame pointer and reserves frameSize
// bytes below rbp for locals, so the operand stack's push/pop spills
// (which grow rsp downward from there) never land on top of a local's
// fixed rbp-relative slot.
func (g *amd64Gen) prologue() {
	g.emit(0x55)             // push rbp
	g.emit(0x48, 0x89, 0xe5) // mov rbp, rsp
	if g.frameSize > 0 {
		g.emit(0x48, 0x81, 0xec) // sub rsp, imm32
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(g.frameSize))
		g.emit(buf[:]...)
	}
}

func (g *amd64Gen) epilogue() {
	g.emit(0x48, 0x89, 0xec) // mov rsp, rbp
	g.emit(0x5d)             // pop rbp
	g.emit(0xc3)             // ret
}

func modrmDirect(reg, rm int) byte { return byte(0xc0 | (reg&7)<<3 | rm&7) }

func (g *amd64Gen) movImm32(reg int, v int32) {
	g.emit(byte(0xb8 + reg))
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	g.emit(buf[:]...)
}

func (g *amd64Gen) addRR(dst, src int)  { g.emit(0x01, modrmDirect(src, dst)) }
func (g *amd64Gen) subRR(dst, src int)  { g.emit(0x29, modrmDirect(src, dst)) }
func (g *amd64Gen) imulRR(dst, src int) { g.emit(0x0f, 0xaf, modrmDirect(dst, src)) }

// loadLocal/storeLocal only support the disp8 encoding (offsets up to
// 127 bytes, i.e. 15 locals at 8 bytes each) — plenty for the function
// shapes this subset targets; anything larger fails with
// errFrameTooLarge, which Compile returns to its caller.
func (g *amd64Gen) loadLocal(reg, offset int) error {
	if offset > 127 {
		return errFrameTooLarge
	}
	g.emit(0x8b, byte(0x45|(reg&7)<<3), byte(-offset))
	return nil
}

func (g *amd64Gen) storeLocal(offset, reg int) error {
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
func (g *amd64Gen) push(reg int) error {
	if g.depth >= maxCodegenDepth {
		return errStackTooDeep
	}
	g.emit(byte(0x50 + reg)) // push r64
	g.depth++
	return nil
}

// pop reloads the top spilled value into reg via a real pop instruction.
func (g *amd64Gen) pop(reg int) error {
	if g.depth == 0 {
		return errStackUnderflow
	}
	g.emit(byte(0x58 + reg)) // pop r64
	g.depth--
	return nil
}

// compileAMD64 translates one function's ASTC body (the instructions
// strictly between its Func and matching End) into the x86-64 subset:
// i32 constants, local get/set, add/sub/mul, and return. Every
// computed value is pushed to the native stack immediately and popped
// back for consumption, so expressions of any shape the grammar
// produces evaluate correctly regardless of how many operands are
// live at once. Anything outside the opcode subset returns an error
// rather than silently emitting wrong code.
func compileAMD64(body []astc.Inst, meta astc.FuncMeta) ([]byte, error) {
	g := newAMD64Gen(meta)
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
				return nil, fmt.Errorf("jit: unknown local slot %d", in.Index)
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
				return nil, fmt.Errorf("jit: unknown local slot %d", in.Index)
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
			g.epilogue()
			returned = true
		default:
			return nil, fmt.Errorf("jit: opcode %s outside the amd64 subset", in.Op)
		}
	}

	if !returned {
		g.movImm32(regEAX, 0)
		g.epilogue()
	}
	return g.code, nil
}
