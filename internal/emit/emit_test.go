package emit_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astctool.dev/astc/internal/emit"
	"astctool.dev/astc/internal/lexer"
	"astctool.dev/astc/internal/parser"
)

func TestEmitAllTargetsProduceFunctionLabel(t *testing.T) {
	targets := []emit.ID{emit.X86_64, emit.X86, emit.ARM64, emit.ARM32, emit.RISCV64, emit.RISCV32}
	for _, target := range targets {
		toks, err := lexer.Tokenize([]byte("int add(int a, int b){ return a+b; }"))
		require.NoError(t, err)
		root, errs := parser.ParseFile(toks)
		require.Empty(t, errs)
		require.NotEmpty(t, root.List)

		e, err := emit.New(target)
		require.NoError(t, err)
		out, err := e.Function(root.List[0])
		require.NoError(t, err, "target %v", target)
		assert.True(t, strings.HasPrefix(out, "add:\n"), "target %v: %s", target, out)
		assert.NotEmpty(t, out)
	}
}

func TestEmitX86_64PrologueEpilogue(t *testing.T) {
	toks, err := lexer.Tokenize([]byte("int main(){ return 42; }"))
	require.NoError(t, err)
	root, errs := parser.ParseFile(toks)
	require.Empty(t, errs)

	e, err := emit.New(emit.X86_64)
	require.NoError(t, err)
	out, err := e.Function(root.List[0])
	require.NoError(t, err)

	assert.Contains(t, out, "push bp")
	assert.Contains(t, out, "mov bp, sp")
	assert.Contains(t, out, "mov rax, 42")
	assert.Contains(t, out, "pop bp")
	assert.Contains(t, out, "ret")
}

func TestEmitARM64PrologueEpilogue(t *testing.T) {
	toks, err := lexer.Tokenize([]byte("int main(){ return 1; }"))
	require.NoError(t, err)
	root, errs := parser.ParseFile(toks)
	require.Empty(t, errs)

	e, err := emit.New(emit.ARM64)
	require.NoError(t, err)
	out, err := e.Function(root.List[0])
	require.NoError(t, err)

	assert.Contains(t, out, "stp x29, x30, [sp, #-16]!")
	assert.Contains(t, out, "mov x29, sp")
	assert.Contains(t, out, "ldp x29, x30, [sp], #16")
	assert.Contains(t, out, "ret")
}

func TestEmitRISCV64PrologueEpilogue(t *testing.T) {
	toks, err := lexer.Tokenize([]byte("int main(){ return 1; }"))
	require.NoError(t, err)
	root, errs := parser.ParseFile(toks)
	require.Empty(t, errs)

	e, err := emit.New(emit.RISCV64)
	require.NoError(t, err)
	out, err := e.Function(root.List[0])
	require.NoError(t, err)

	assert.Contains(t, out, "addi sp, sp, -16")
	assert.Contains(t, out, "sd ra, 8(sp)")
	assert.Contains(t, out, "ld ra, 8(sp)")
	assert.Contains(t, out, "ret")
}

func TestEmitBinaryOpMaterializesLeftThenRight(t *testing.T) {
	toks, err := lexer.Tokenize([]byte("int add(int a, int b){ return a+b; }"))
	require.NoError(t, err)
	root, errs := parser.ParseFile(toks)
	require.Empty(t, errs)

	e, err := emit.New(emit.X86_64)
	require.NoError(t, err)
	out, err := e.Function(root.List[0])
	require.NoError(t, err)

	movIdx := strings.Index(out, "mov rbx, rax")
	addIdx := strings.Index(out, "add rax, rbx")
	require.GreaterOrEqual(t, movIdx, 0)
	require.GreaterOrEqual(t, addIdx, 0)
	assert.Less(t, movIdx, addIdx)
}

func TestEmitWhileLoopEmitsLabelsAndBranch(t *testing.T) {
	// The emitter's binary operators are add/sub/mul only, so the loop
	// condition is a plain variable rather than a comparison.
	toks, err := lexer.Tokenize([]byte("int main(){ int i=10; while(i){ i=i-1; } return i; }"))
	require.NoError(t, err)
	root, errs := parser.ParseFile(toks)
	require.Empty(t, errs)

	e, err := emit.New(emit.X86_64)
	require.NoError(t, err)
	out, err := e.Function(root.List[0])
	require.NoError(t, err)

	assert.Contains(t, out, ".Lloop1:")
	assert.Contains(t, out, "jmp .Lloop1")
}

func TestEmitRejectsDeclOnlyFunction(t *testing.T) {
	toks, err := lexer.Tokenize([]byte("int foo(int a);"))
	require.NoError(t, err)
	root, errs := parser.ParseFile(toks)
	require.Empty(t, errs)

	e, err := emit.New(emit.X86_64)
	require.NoError(t, err)
	_, err = e.Function(root.List[0])
	require.Error(t, err)
}

func TestEmitUnsupportedTarget(t *testing.T) {
	_, err := emit.New(emit.ID(99))
	require.Error(t, err)
}

func TestEmitCallPassesArgumentsInOrder(t *testing.T) {
	toks, err := lexer.Tokenize([]byte("int add(int a,int b){ return a+b; } int main(){ return add(1,2); }"))
	require.NoError(t, err)
	root, errs := parser.ParseFile(toks)
	require.Empty(t, errs)
	require.Len(t, root.List, 2)

	e, err := emit.New(emit.X86_64)
	require.NoError(t, err)
	out, err := e.Function(root.List[1])
	require.NoError(t, err)
	assert.Contains(t, out, "call add")
}
