package emit

import (
	"fmt"
	"strings"

	"astctool.dev/astc/internal/ast"
)

// Emitter renders one function's AST into one target's textual
// assembly. Expressions always compute into Regs[0]; a binary op
// materializes its left operand, moves it into Regs[1], evaluates the
// right operand into Regs[0], then issues the target's add/sub/mul
// over that pair.
type Emitter struct {
	desc   Descriptor
	out    strings.Builder
	locals map[string]int // name -> byte offset below the frame pointer
	frame  int            // running size of the locals area, in bytes
	labels int
}

// New returns an Emitter for the given target.
func New(target ID) (*Emitter, error) {
	d, err := Lookup(target)
	if err != nil {
		return nil, err
	}
	return &Emitter{desc: d, locals: make(map[string]int)}, nil
}

// Function renders fn (an ast.FuncDecl with a non-nil body) and
// returns the textual assembly. The AST is consumed at function
// granularity: each call to Function starts a fresh local-slot table.
func (e *Emitter) Function(fn *ast.Node) (string, error) {
	if fn.Kind != ast.FuncDecl {
		return "", fmt.Errorf("emit: Function requires a FuncDecl node, got %v", fn.Kind)
	}
	if fn.X == nil {
		return "", fmt.Errorf("emit: %q has no body to emit", fn.Name)
	}
	e.out.Reset()
	e.locals = make(map[string]int)
	e.frame = 0
	e.labels = 0

	for _, p := range fn.List {
		e.allocLocal(p.Name)
	}
	e.scanLocals(fn.X)

	e.line(fn.Name + ":")
	for _, l := range e.desc.Prologue {
		e.line(l)
	}
	if e.frame > 0 {
		e.reserveFrame()
	}
	for i, p := range fn.List {
		if i >= len(e.desc.Regs) {
			break
		}
		e.line(e.storeLocal(e.locals[p.Name], e.desc.Regs[i]))
	}
	if err := e.stmt(fn.X); err != nil {
		return "", err
	}
	for _, l := range e.desc.Epilogue {
		e.line(l)
	}
	return e.out.String(), nil
}

func (e *Emitter) line(s string) {
	e.out.WriteString(e.desc.Indent)
	e.out.WriteString(s)
	e.out.WriteByte('\n')
}

func (e *Emitter) rawLabel(name string) {
	e.out.WriteString(name)
	e.out.WriteString(":\n")
}

func (e *Emitter) newLabel(prefix string) string {
	e.labels++
	return fmt.Sprintf(".L%s%d", prefix, e.labels)
}

func (e *Emitter) allocLocal(name string) int {
	if off, ok := e.locals[name]; ok {
		return off
	}
	e.frame += e.desc.WordSize
	off := e.frame
	e.locals[name] = off
	return off
}

// scanLocals walks a compound body pre-pass so every VarDecl gets a
// slot before codegen — a two-pass frame-sizing scheme, since the
// frame's total size has to be known before the prologue is emitted.
func (e *Emitter) scanLocals(n *ast.Node) {
	if n == nil {
		return
	}
	switch n.Kind {
	case ast.VarDecl:
		e.allocLocal(n.Name)
	case ast.CompoundStmt:
		for _, c := range n.List {
			e.scanLocals(c)
		}
	case ast.IfStmt:
		e.scanLocals(n.Y)
		e.scanLocals(n.Z)
	case ast.WhileStmt:
		e.scanLocals(n.Y)
	case ast.ForStmt:
		e.scanLocals(n.X)
		e.scanLocals(n.Y)
	}
}

func (e *Emitter) reserveFrame() {
	switch e.desc.ID {
	case X86_64, X86:
		e.line(fmt.Sprintf("sub sp, %d", e.frame))
	case ARM64:
		e.line(fmt.Sprintf("sub sp, sp, #%d", align16(e.frame)))
	case ARM32:
		e.line(fmt.Sprintf("sub sp, sp, #%d", align16(e.frame)))
	case RISCV64, RISCV32:
		e.line(fmt.Sprintf("addi sp, sp, -%d", align16(e.frame)))
	}
}

func align16(n int) int {
	return (n + 15) &^ 15
}

func (e *Emitter) stmt(n *ast.Node) error {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case ast.CompoundStmt:
		for _, c := range n.List {
			if err := e.stmt(c); err != nil {
				return err
			}
		}
		return nil
	case ast.VarDecl:
		if n.X == nil {
			return nil
		}
		if err := e.expr(n.X); err != nil {
			return err
		}
		e.line(e.storeLocal(e.locals[n.Name], e.desc.Regs[0]))
		return nil
	case ast.ExprStmt:
		return e.expr(n.X)
	case ast.ReturnStmt:
		if n.X != nil {
			if err := e.expr(n.X); err != nil {
				return err
			}
			if e.desc.Regs[0] != e.returnReg() {
				e.line(e.mov(e.returnReg(), e.desc.Regs[0]))
			}
		}
		for _, l := range e.desc.Epilogue {
			e.line(l)
		}
		return nil
	case ast.IfStmt:
		return e.ifStmt(n)
	case ast.WhileStmt:
		return e.whileStmt(n)
	case ast.ForStmt:
		return e.forStmt(n)
	case ast.BreakStmt, ast.ContinueStmt:
		return fmt.Errorf("emit: break/continue requires an enclosing loop label, unsupported at function top level")
	default:
		return fmt.Errorf("emit: unsupported statement kind %v", n.Kind)
	}
}

func (e *Emitter) returnReg() string { return e.desc.Regs[0] }

func (e *Emitter) ifStmt(n *ast.Node) error {
	elseLabel := e.newLabel("else")
	endLabel := e.newLabel("endif")
	if err := e.branchIfZero(n.X, elseLabel); err != nil {
		return err
	}
	if err := e.stmt(n.Y); err != nil {
		return err
	}
	e.line(e.jump(endLabel))
	e.rawLabel(elseLabel)
	if n.Z != nil {
		if err := e.stmt(n.Z); err != nil {
			return err
		}
	}
	e.rawLabel(endLabel)
	return nil
}

func (e *Emitter) whileStmt(n *ast.Node) error {
	top := e.newLabel("loop")
	end := e.newLabel("endloop")
	e.rawLabel(top)
	if err := e.branchIfZero(n.X, end); err != nil {
		return err
	}
	if err := e.stmt(n.Y); err != nil {
		return err
	}
	e.line(e.jump(top))
	e.rawLabel(end)
	return nil
}

func (e *Emitter) forStmt(n *ast.Node) error {
	if n.X != nil {
		if err := e.stmt(n.X); err != nil {
			return err
		}
	}
	top := e.newLabel("loop")
	end := e.newLabel("endloop")
	e.rawLabel(top)
	if n.Z != nil {
		if err := e.branchIfZero(n.Z, end); err != nil {
			return err
		}
	}
	if err := e.stmt(n.Y); err != nil {
		return err
	}
	if len(n.List) > 0 {
		if err := e.expr(n.List[0]); err != nil {
			return err
		}
	}
	e.line(e.jump(top))
	e.rawLabel(end)
	return nil
}

// branchIfZero evaluates cond into Regs[0] and jumps to label when it
// is zero (false).
func (e *Emitter) branchIfZero(cond *ast.Node, label string) error {
	if err := e.expr(cond); err != nil {
		return err
	}
	e.line(e.testAndJumpZero(label))
	return nil
}

func (e *Emitter) expr(n *ast.Node) error {
	switch n.Kind {
	case ast.IntConstant:
		e.line(e.loadImm(e.desc.Regs[0], n.IntVal))
		return nil
	case ast.Identifier:
		off, ok := e.locals[n.Name]
		if !ok {
			return fmt.Errorf("emit: unresolved identifier %q at %d:%d", n.Name, n.Line, n.Col)
		}
		e.line(e.loadLocal(e.desc.Regs[0], off))
		return nil
	case ast.UnaryOp:
		return e.unary(n)
	case ast.BinaryOp:
		return e.binary(n)
	case ast.CallExpr:
		return e.call(n)
	default:
		return fmt.Errorf("emit: unsupported expression kind %v", n.Kind)
	}
}

func (e *Emitter) unary(n *ast.Node) error {
	if err := e.expr(n.X); err != nil {
		return err
	}
	switch n.UnOp {
	case ast.OpNeg:
		e.line(e.negate(e.desc.Regs[0]))
		return nil
	case ast.OpNot:
		e.line(e.logicalNot(e.desc.Regs[0]))
		return nil
	default:
		return fmt.Errorf("emit: unsupported unary operator %v", n.UnOp)
	}
}

var binMnemonic = map[ast.BinOp]string{
	ast.OpAdd: "add",
	ast.OpSub: "sub",
	ast.OpMul: "mul",
}

// binary materializes the left operand, moves it into Regs[1],
// evaluates the right operand into Regs[0], then issues the target's
// add/sub/mul over that pair, result left in Regs[0].
func (e *Emitter) binary(n *ast.Node) error {
	if n.BinOp == ast.OpAssign {
		return e.assign(n)
	}
	mnem, ok := binMnemonic[n.BinOp]
	if !ok {
		return fmt.Errorf("emit: unsupported binary operator %v", n.BinOp)
	}
	if err := e.expr(n.X); err != nil {
		return err
	}
	e.line(e.mov(e.desc.Regs[1], e.desc.Regs[0]))
	if err := e.expr(n.Y); err != nil {
		return err
	}
	e.line(e.binOp(mnem, e.desc.Regs[0], e.desc.Regs[1]))
	return nil
}

func (e *Emitter) assign(n *ast.Node) error {
	if n.X.Kind != ast.Identifier {
		return fmt.Errorf("emit: unsupported assignment target kind %v", n.X.Kind)
	}
	off, ok := e.locals[n.X.Name]
	if !ok {
		return fmt.Errorf("emit: unresolved identifier %q at %d:%d", n.X.Name, n.X.Line, n.X.Col)
	}
	if err := e.expr(n.Y); err != nil {
		return err
	}
	e.line(e.storeLocal(off, e.desc.Regs[0]))
	return nil
}

func (e *Emitter) call(n *ast.Node) error {
	for i, arg := range n.List {
		if i >= len(e.desc.Regs) {
			return fmt.Errorf("emit: call %q exceeds %d-register argument convention", n.X.Name, len(e.desc.Regs))
		}
		if err := e.expr(arg); err != nil {
			return err
		}
		if i > 0 {
			e.line(e.mov(e.desc.Regs[i], e.desc.Regs[0]))
		}
	}
	e.line(e.callInstr(n.X.Name))
	return nil
}
