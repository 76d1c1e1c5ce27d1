package emit

import "fmt"

// The methods below translate the generic operations Emitter needs
// (move, load immediate, local load/store, binary op, branch, call)
// into each target's concrete mnemonic and operand order. Keeping
// them in one place is what lets Emitter itself stay target-agnostic.

func (e *Emitter) mov(dst, src string) string {
	switch e.desc.ID {
	case ARM64, ARM32:
		return fmt.Sprintf("mov %s, %s", dst, src)
	case RISCV64, RISCV32:
		return fmt.Sprintf("mv %s, %s", dst, src)
	default: // x86-64, x86
		return fmt.Sprintf("mov %s, %s", dst, src)
	}
}

func (e *Emitter) loadImm(dst string, val int64) string {
	switch e.desc.ID {
	case ARM64, ARM32:
		return fmt.Sprintf("mov %s, #%d", dst, val)
	case RISCV64, RISCV32:
		return fmt.Sprintf("li %s, %d", dst, val)
	default:
		return fmt.Sprintf("mov %s, %d", dst, val)
	}
}

// binOp combines the just-evaluated right operand (held in right) with
// the previously materialized left operand (held in left), leaving the
// result in Regs[0]. Subtraction is order-sensitive, so it gets its
// own case instead of sharing add/mul's symmetric form.
func (e *Emitter) binOp(mnemonic, right, left string) string {
	switch e.desc.ID {
	case ARM64, ARM32, RISCV64, RISCV32:
		if mnemonic == "sub" {
			return fmt.Sprintf("sub %s, %s, %s", right, left, right)
		}
		return fmt.Sprintf("%s %s, %s, %s", mnemonic, right, left, right)
	default: // x86-64, x86: two-operand, dst is accumulated in place
		if mnemonic == "sub" {
			return fmt.Sprintf("sub %s, %s\n    mov %s, %s", left, right, right, left)
		}
		return fmt.Sprintf("%s %s, %s", x86Mnemonic(mnemonic), right, left)
	}
}

func x86Mnemonic(m string) string {
	if m == "mul" {
		return "imul"
	}
	return m
}

func (e *Emitter) negate(dst string) string {
	switch e.desc.ID {
	case ARM64, ARM32:
		return fmt.Sprintf("neg %s, %s", dst, dst)
	case RISCV64, RISCV32:
		return fmt.Sprintf("neg %s, %s", dst, dst)
	default:
		return fmt.Sprintf("neg %s", dst)
	}
}

func (e *Emitter) logicalNot(dst string) string {
	switch e.desc.ID {
	case ARM64, ARM32:
		return fmt.Sprintf("cmp %s, #0\n    cset %s, eq", dst, dst)
	default:
		return fmt.Sprintf("cmp %s, 0\n    sete %s", dst, dst)
	}
}

func (e *Emitter) localAddr(offset int) string {
	switch e.desc.ID {
	case X86_64, X86:
		return fmt.Sprintf("[bp - %d]", offset)
	case ARM64:
		return fmt.Sprintf("[x29, #-%d]", offset)
	case ARM32:
		return fmt.Sprintf("[r7, #-%d]", offset)
	case RISCV64, RISCV32:
		return fmt.Sprintf("-%d(s0)", offset)
	default:
		return fmt.Sprintf("[bp - %d]", offset)
	}
}

func (e *Emitter) loadLocal(dst string, offset int) string {
	switch e.desc.ID {
	case ARM64:
		return fmt.Sprintf("ldr %s, %s", dst, e.localAddr(offset))
	case ARM32:
		return fmt.Sprintf("ldr %s, %s", dst, e.localAddr(offset))
	case RISCV64:
		return fmt.Sprintf("ld %s, %s", dst, e.localAddr(offset))
	case RISCV32:
		return fmt.Sprintf("lw %s, %s", dst, e.localAddr(offset))
	default:
		return fmt.Sprintf("mov %s, %s", dst, e.localAddr(offset))
	}
}

func (e *Emitter) storeLocal(offset int, src string) string {
	switch e.desc.ID {
	case ARM64:
		return fmt.Sprintf("str %s, %s", src, e.localAddr(offset))
	case ARM32:
		return fmt.Sprintf("str %s, %s", src, e.localAddr(offset))
	case RISCV64:
		return fmt.Sprintf("sd %s, %s", src, e.localAddr(offset))
	case RISCV32:
		return fmt.Sprintf("sw %s, %s", src, e.localAddr(offset))
	default:
		return fmt.Sprintf("mov %s, %s", e.localAddr(offset), src)
	}
}

func (e *Emitter) jump(label string) string {
	switch e.desc.ID {
	case ARM64, ARM32:
		return "b " + label
	case RISCV64, RISCV32:
		return "j " + label
	default:
		return "jmp " + label
	}
}

// testAndJumpZero compares Regs[0] against zero and emits a branch to
// label when it is false (zero).
func (e *Emitter) testAndJumpZero(label string) string {
	switch e.desc.ID {
	case ARM64, ARM32:
		return fmt.Sprintf("cmp %s, #0\n    beq %s", e.desc.Regs[0], label)
	case RISCV64, RISCV32:
		return fmt.Sprintf("beqz %s, %s", e.desc.Regs[0], label)
	default:
		return fmt.Sprintf("cmp %s, 0\n    je %s", e.desc.Regs[0], label)
	}
}

func (e *Emitter) callInstr(name string) string {
	switch e.desc.ID {
	case ARM64, ARM32:
		return "bl " + name
	case RISCV64, RISCV32:
		return "call " + name
	default:
		return "call " + name
	}
}
