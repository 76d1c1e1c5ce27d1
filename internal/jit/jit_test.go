package jit_test

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astctool.dev/astc/internal/astc"
	"astctool.dev/astc/internal/jit"
	"astctool.dev/astc/internal/lexer"
	"astctool.dev/astc/internal/lowering"
	"astctool.dev/astc/internal/parser"
	"astctool.dev/astc/internal/vm"
)

func requireJITArch(t *testing.T) {
	t.Helper()
	if runtime.GOARCH != "amd64" && runtime.GOARCH != "arm64" {
		t.Skipf("jit codegen subset only targets amd64/arm64, host is %s", runtime.GOARCH)
	}
}

func lowerProgram(t *testing.T, src string) (*astc.Program, uint32) {
	t.Helper()
	toks, err := lexer.Tokenize([]byte(src))
	require.NoError(t, err)
	root, errs := parser.ParseFile(toks)
	require.Empty(t, errs)
	prog, err := lowering.Lower(root)
	require.NoError(t, err)
	var mainIdx uint32
	for _, s := range prog.Symbols {
		if s.Kind == astc.SymFunction && s.Name == "main" {
			mainIdx = s.Index
		}
	}
	return prog, mainIdx
}

// S1 equivalence: interpreter and JIT agree on a trivial return.
func TestCompileAndInvokeReturnConstant(t *testing.T) {
	requireJITArch(t)
	prog, mainIdx := lowerProgram(t, "int main(){ return 42; }")

	ctx, err := jit.New()
	require.NoError(t, err)
	defer ctx.Close()

	ptr, size, err := ctx.Compile(prog, mainIdx)
	require.NoError(t, err)
	assert.Greater(t, size, 0)
	assert.EqualValues(t, 42, jit.Invoke(ptr))

	machine, err := vm.New(prog, nil)
	require.NoError(t, err)
	want, err := machine.Execute()
	require.NoError(t, err)
	assert.EqualValues(t, want, jit.Invoke(ptr))
}

func TestCompileAndInvokeArithmetic(t *testing.T) {
	requireJITArch(t)
	prog, mainIdx := lowerProgram(t, "int main(){ int a=10; int b=3; return a-b; }")

	ctx, err := jit.New()
	require.NoError(t, err)
	defer ctx.Close()

	ptr, _, err := ctx.Compile(prog, mainIdx)
	require.NoError(t, err)
	assert.EqualValues(t, 7, jit.Invoke(ptr))
}

func TestCompileCacheHitReturnsSamePointer(t *testing.T) {
	requireJITArch(t)
	prog, mainIdx := lowerProgram(t, "int main(){ return 1+2*3; }")

	ctx, err := jit.New()
	require.NoError(t, err)
	defer ctx.Close()

	ptr1, _, err := ctx.Compile(prog, mainIdx)
	require.NoError(t, err)
	ptr2, _, err := ctx.Compile(prog, mainIdx)
	require.NoError(t, err)

	assert.Equal(t, ptr1, ptr2)
	stats := ctx.Stats()
	assert.Equal(t, 1, stats.Compilations)
	assert.Equal(t, 1, stats.Hits)
	assert.Equal(t, 1, stats.Misses)
}

func TestCompileRejectsUnsupportedOpcodes(t *testing.T) {
	requireJITArch(t)
	// A while loop uses block/loop/br_if, outside the JIT subset.
	prog, mainIdx := lowerProgram(t, "int main(){ int i=0; while(i<10){ i=i+1; } return i; }")

	ctx, err := jit.New()
	require.NoError(t, err)
	defer ctx.Close()

	_, _, err = ctx.Compile(prog, mainIdx)
	require.Error(t, err)
}

func TestArenaOverflowIsAHardError(t *testing.T) {
	requireJITArch(t)
	prog, mainIdx := lowerProgram(t, "int main(){ return 1+2*3-4; }")

	ctx, err := jit.NewSized(4) // far smaller than any real compiled fragment
	require.NoError(t, err)
	defer ctx.Close()

	_, _, err = ctx.Compile(prog, mainIdx)
	require.ErrorIs(t, err, jit.ErrArenaFull)
}
