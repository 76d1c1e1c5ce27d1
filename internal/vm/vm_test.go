package vm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astctool.dev/astc/internal/lexer"
	"astctool.dev/astc/internal/lowering"
	"astctool.dev/astc/internal/parser"
	"astctool.dev/astc/internal/vm"
)

func compileAndRun(t *testing.T, src string, host vm.HostCaller) int64 {
	t.Helper()
	toks, err := lexer.Tokenize([]byte(src))
	require.NoError(t, err)
	root, errs := parser.ParseFile(toks)
	require.Empty(t, errs)
	prog, err := lowering.Lower(root)
	require.NoError(t, err)
	machine, err := vm.New(prog, host)
	require.NoError(t, err)
	result, err := machine.Execute()
	require.NoError(t, err)
	return result
}

// S1: int main(){ return 42; } -> VM returns 42.
func TestExecuteReturnConstant(t *testing.T) {
	assert.EqualValues(t, 42, compileAndRun(t, "int main(){ return 42; }", nil))
}

// S2: int main(){ return 1+2*3; } -> VM top-of-stack 7.
func TestExecuteBinaryPrecedence(t *testing.T) {
	assert.EqualValues(t, 7, compileAndRun(t, "int main(){ return 1+2*3; }", nil))
}

// S3: while loop counts to 10.
func TestExecuteWhileLoop(t *testing.T) {
	got := compileAndRun(t, "int main(){ int i=0; while(i<10){ i=i+1; } return i; }", nil)
	assert.EqualValues(t, 10, got)
}

func TestExecuteForLoop(t *testing.T) {
	got := compileAndRun(t, "int main(){ int s=0; for(int i=0;i<5;i=i+1){ s=s+i; } return s; }", nil)
	assert.EqualValues(t, 10, got)
}

func TestExecuteBreakContinue(t *testing.T) {
	got := compileAndRun(t, `int main(){
		int i=0; int s=0;
		while(i<10){
			i=i+1;
			if(i==5){ break; }
			s=s+1;
		}
		return s;
	}`, nil)
	assert.EqualValues(t, 4, got)
}

func TestExecuteIfElse(t *testing.T) {
	assert.EqualValues(t, 1, compileAndRun(t, "int main(){ if(1){ return 1; } else { return 0; } }", nil))
	assert.EqualValues(t, 0, compileAndRun(t, "int main(){ if(0){ return 1; } else { return 0; } }", nil))
}

func TestExecuteLogicalAndOr(t *testing.T) {
	assert.EqualValues(t, 1, compileAndRun(t, "int main(){ return 1 && 1; }", nil))
	assert.EqualValues(t, 0, compileAndRun(t, "int main(){ return 1 && 0; }", nil))
	assert.EqualValues(t, 1, compileAndRun(t, "int main(){ return 0 || 1; }", nil))
	assert.EqualValues(t, 0, compileAndRun(t, "int main(){ return 0 || 0; }", nil))
}

func TestExecuteUserFunctionCall(t *testing.T) {
	got := compileAndRun(t, "int add(int a,int b){ return a+b; } int main(){ return add(3,4); }", nil)
	assert.EqualValues(t, 7, got)
}

func TestExecuteRecursiveCall(t *testing.T) {
	got := compileAndRun(t, `
		int fact(int n){ if(n<=1){ return 1; } return n*fact(n-1); }
		int main(){ return fact(5); }
	`, nil)
	assert.EqualValues(t, 120, got)
}

// VM determinism: executing the same program twice yields the same result.
func TestExecuteDeterminism(t *testing.T) {
	src := "int main(){ return 1+2*3-4; }"
	a := compileAndRun(t, src, nil)
	b := compileAndRun(t, src, nil)
	assert.Equal(t, a, b)
}

func TestExecuteDivisionByZero(t *testing.T) {
	toks, err := lexer.Tokenize([]byte("int main(){ int z=0; return 1/z; }"))
	require.NoError(t, err)
	root, errs := parser.ParseFile(toks)
	require.Empty(t, errs)
	prog, err := lowering.Lower(root)
	require.NoError(t, err)
	machine, err := vm.New(prog, nil)
	require.NoError(t, err)
	_, execErr := machine.Execute()
	require.Error(t, execErr)
	var vmErr *vm.Error
	require.ErrorAs(t, execErr, &vmErr)
	assert.Equal(t, vm.StateError, machine.State())
}

type stubHost struct {
	calls []string
	reply int64
}

func (s *stubHost) IsHost(name string) bool { return name == "printf" || name == "add_host" }
func (s *stubHost) Arity(name string) (int, bool) {
	switch name {
	case "printf":
		return 2, true
	case "add_host":
		return 2, true
	}
	return 0, false
}
func (s *stubHost) Call(name string, args []int64) (int64, error) {
	s.calls = append(s.calls, name)
	if name == "add_host" {
		return args[0] + args[1], nil
	}
	return s.reply, nil
}

func TestExecuteHostCallDispatch(t *testing.T) {
	host := &stubHost{reply: 0}
	got := compileAndRun(t, `int main(){ printf("x=%d\n", 5); return 0; }`, host)
	assert.EqualValues(t, 0, got)
	assert.Equal(t, []string{"printf"}, host.calls)
}

func TestExecuteHostCallReturnValue(t *testing.T) {
	host := &stubHost{}
	got := compileAndRun(t, "int main(){ return add_host(3,4); }", host)
	assert.EqualValues(t, 7, got)
}
