package lowering_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astctool.dev/astc/internal/ast"
	"astctool.dev/astc/internal/astc"
	"astctool.dev/astc/internal/lexer"
	"astctool.dev/astc/internal/lowering"
	"astctool.dev/astc/internal/parser"
)

func lower(t *testing.T, src string) *astc.Program {
	t.Helper()
	toks, err := lexer.Tokenize([]byte(src))
	require.NoError(t, err)
	root, errs := parser.ParseFile(toks)
	require.Empty(t, errs)
	prog, err := lowering.Lower(root)
	require.NoError(t, err)
	return prog
}

func opSeq(prog *astc.Program) []astc.Opcode {
	ops := make([]astc.Opcode, len(prog.Instructions))
	for i, in := range prog.Instructions {
		ops[i] = in.Op
	}
	return ops
}

// S1: int main(){ return 42; } -> func, i32.const 42, return, end.
func TestLowerReturnConstant(t *testing.T) {
	prog := lower(t, "int main(){ return 42; }")
	assert.Equal(t, []astc.Opcode{astc.OpFunc, astc.OpI32Const, astc.OpReturn, astc.OpEnd}, opSeq(prog))
	assert.EqualValues(t, 42, prog.Instructions[1].I32)
	assert.EqualValues(t, 0, prog.EntryPoint)
}

// S2: int main(){ return 1+2*3; } lowers with mul before add (precedence
// preserved into postfix stack order).
func TestLowerBinaryPrecedence(t *testing.T) {
	prog := lower(t, "int main(){ return 1+2*3; }")
	ops := opSeq(prog)
	mulIdx, addIdx := -1, -1
	for i, op := range ops {
		if op == astc.OpMul {
			mulIdx = i
		}
		if op == astc.OpAdd {
			addIdx = i
		}
	}
	require.NotEqual(t, -1, mulIdx)
	require.NotEqual(t, -1, addIdx)
	assert.Less(t, mulIdx, addIdx)
}

// S3: while-loop lowers to a block-wrapped loop with a computed br_if
// exit depth of 1 and a continue br depth of 0.
func TestLowerWhileLoopShape(t *testing.T) {
	prog := lower(t, "int main(){ int i=0; while(i<10){ i=i+1; } return i; }")
	ops := opSeq(prog)
	assert.Contains(t, ops, astc.OpBlock)
	assert.Contains(t, ops, astc.OpLoop)

	var brIf, br *astc.Inst
	for i := range prog.Instructions {
		in := &prog.Instructions[i]
		if in.Op == astc.OpBrIf && brIf == nil {
			brIf = in
		}
		if in.Op == astc.OpBr && br == nil {
			br = in
		}
	}
	require.NotNil(t, brIf)
	require.NotNil(t, br)
	assert.EqualValues(t, 1, brIf.Index)
	assert.EqualValues(t, 0, br.Index)
}

func TestLowerForLoopEmitsIncrementBeforeBranch(t *testing.T) {
	prog := lower(t, "int main(){ for(int i=0;i<10;i=i+1){} return 0; }")
	ops := opSeq(prog)
	assert.Contains(t, ops, astc.OpLoop)
	assert.Contains(t, ops, astc.OpBr)

	// The increment (i=i+1 ends in local.tee, then drop) sits right
	// before the loop's back-edge br.
	brIdx := -1
	for i, op := range ops {
		if op == astc.OpBr {
			brIdx = i
		}
	}
	require.Greater(t, brIdx, 1)
	assert.Equal(t, astc.OpLocalTee, ops[brIdx-2])
	assert.Equal(t, astc.OpDrop, ops[brIdx-1])
}

func TestLowerBreakContinueDepths(t *testing.T) {
	prog := lower(t, "int main(){ while(1){ break; } return 0; }")
	found := false
	for _, in := range prog.Instructions {
		if in.Op == astc.OpBr && in.Index == 1 {
			found = true
		}
	}
	assert.True(t, found, "expected a br with depth 1 (break target = wrapping block)")

	prog = lower(t, "int main(){ while(1){ if(1){ continue; } } return 0; }")
	found = false
	for _, in := range prog.Instructions {
		if in.Op == astc.OpBr && in.Index == 1 {
			found = true
		}
	}
	assert.True(t, found, "expected a br with depth 1 (continue inside an if targets the loop)")
}

func TestLowerLogicalAndShortCircuitShape(t *testing.T) {
	prog := lower(t, "int main(){ return 1 && 0; }")
	ops := opSeq(prog)
	assert.Contains(t, ops, astc.OpIf)
	assert.Contains(t, ops, astc.OpElse)
}

func TestLowerLogicalOrShortCircuitShape(t *testing.T) {
	prog := lower(t, "int main(){ return 1 || 0; }")
	ops := opSeq(prog)
	assert.Contains(t, ops, astc.OpIf)
	assert.Contains(t, ops, astc.OpElse)
}

// S4: string literal interning at data offset 0, host call resolved
// as a function symbol.
func TestLowerStringLiteralAndHostCall(t *testing.T) {
	prog := lower(t, `int main(){ printf("x=%d\n", 5); return 0; }`)
	require.NotEmpty(t, prog.Symbols)
	var sawCall bool
	for _, in := range prog.Instructions {
		if in.Op == astc.OpCall {
			sawCall = true
		}
	}
	assert.True(t, sawCall)
	s, ok := prog.StringAt(0)
	require.True(t, ok)
	assert.Equal(t, "x=%d\n", s)
}

func TestLowerAssignmentIsExpression(t *testing.T) {
	prog := lower(t, "int f(){ int a; int b; a = b = 1; return a; }")
	ops := opSeq(prog)
	assert.Contains(t, ops, astc.OpLocalTee)
}

func TestLowerMemberAccessRefusesWithoutLayout(t *testing.T) {
	root := ast.NewNode(ast.TranslationUnit, 1, 1)
	fn := ast.NewNode(ast.FuncDecl, 1, 1)
	fn.Name = "main"
	body := ast.NewNode(ast.CompoundStmt, 1, 1)
	ret := ast.NewNode(ast.ReturnStmt, 1, 1)
	obj := ast.NewNode(ast.Identifier, 1, 1)
	obj.Name = "p"
	member := ast.NewNode(ast.MemberAccess, 1, 1)
	member.X = obj
	member.Name = "field" // Layout intentionally left nil
	ret.X = member
	body.List = []*ast.Node{ret}
	fn.X = body
	root.List = []*ast.Node{fn}

	_, err := lowering.Lower(root)
	require.Error(t, err)
	var bcErr *lowering.Error
	require.ErrorAs(t, err, &bcErr)
	assert.Equal(t, "struct layout unavailable", bcErr.Reason)
}

func TestLowerFunctionParamsGetSequentialSlots(t *testing.T) {
	prog := lower(t, "int add(int a, int b){ return a+b; }")
	var gets []uint32
	for _, in := range prog.Instructions {
		if in.Op == astc.OpLocalGet {
			gets = append(gets, in.Index)
		}
	}
	require.Len(t, gets, 2)
	assert.EqualValues(t, 0, gets[0])
	assert.EqualValues(t, 1, gets[1])
}

func TestLowerRejectsUnresolvedIdentifier(t *testing.T) {
	toks, err := lexer.Tokenize([]byte("int main(){ return undeclared; }"))
	require.NoError(t, err)
	root, errs := parser.ParseFile(toks)
	require.Empty(t, errs)
	_, lowerErr := lowering.Lower(root)
	require.Error(t, lowerErr)
}

// A cast to int narrows a double operand, so it must emit a wrap/trunc
// conversion rather than falling through as a no-op.
func TestLowerCastEmitsTruncForDoubleToInt(t *testing.T) {
	prog := lower(t, "int f(double d){ return (int)d; }")
	assert.Contains(t, opSeq(prog), astc.OpI32TruncF64S)
}

func TestLowerCastEmitsTruncForFloatToInt(t *testing.T) {
	prog := lower(t, "int f(float x){ return (int)x; }")
	assert.Contains(t, opSeq(prog), astc.OpI32TruncF32S)
}
