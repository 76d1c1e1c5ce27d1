package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astctool.dev/astc/internal/ast"
	"astctool.dev/astc/internal/lexer"
	"astctool.dev/astc/internal/parser"
)

func parse(t *testing.T, src string) *ast.Node {
	t.Helper()
	toks, err := lexer.Tokenize([]byte(src))
	require.NoError(t, err)
	root, errs := parser.ParseFile(toks)
	require.Empty(t, errs, "parse errors: %v", errs)
	require.NotNil(t, root)
	return root
}

func TestParseMainReturn42(t *testing.T) {
	root := parse(t, "int main(){ return 42; }")
	assert.Equal(t, ast.TranslationUnit, root.Kind)
	require.Len(t, root.List, 1)
	fn := root.List[0]
	assert.Equal(t, ast.FuncDecl, fn.Kind)
	assert.Equal(t, "main", fn.Name)
	require.NotNil(t, fn.X)
	assert.Equal(t, ast.CompoundStmt, fn.X.Kind)
	require.Len(t, fn.X.List, 1)
	ret := fn.X.List[0]
	assert.Equal(t, ast.ReturnStmt, ret.Kind)
	require.NotNil(t, ret.X)
	assert.Equal(t, ast.IntConstant, ret.X.Kind)
	assert.EqualValues(t, 42, ret.X.IntVal)
}

func TestParseBinaryPrecedence(t *testing.T) {
	root := parse(t, "int main(){ return 1+2*3; }")
	ret := root.List[0].X.List[0]
	top := ret.X
	require.Equal(t, ast.BinaryOp, top.Kind)
	assert.Equal(t, ast.OpAdd, top.BinOp)
	assert.EqualValues(t, 1, top.X.IntVal)
	require.Equal(t, ast.BinaryOp, top.Y.Kind)
	assert.Equal(t, ast.OpMul, top.Y.BinOp)
}

func TestParseParams(t *testing.T) {
	root := parse(t, "int add(int a, int b){ return a+b; }")
	fn := root.List[0]
	require.Len(t, fn.List, 2)
	assert.Equal(t, "a", fn.List[0].Name)
	assert.Equal(t, "b", fn.List[1].Name)
}

func TestParseWhileLoop(t *testing.T) {
	root := parse(t, "int main(){ int i=0; while(i<10){ i=i+1; } return i; }")
	body := root.List[0].X
	require.Len(t, body.List, 3)
	assert.Equal(t, ast.VarDecl, body.List[0].Kind)
	assert.Equal(t, ast.WhileStmt, body.List[1].Kind)
	assert.Equal(t, ast.ReturnStmt, body.List[2].Kind)
}

func TestParseForLoop(t *testing.T) {
	root := parse(t, "int main(){ for(int i=0;i<10;i=i+1){} return 0; }")
	body := root.List[0].X
	require.Len(t, body.List, 2)
	forNode := body.List[0]
	assert.Equal(t, ast.ForStmt, forNode.Kind)
	require.NotNil(t, forNode.X)
	require.NotNil(t, forNode.Z)
	require.Len(t, forNode.List, 1)
}

func TestParseCallHostVsUser(t *testing.T) {
	root := parse(t, "int main(){ printf(\"hi\"); add(1,2); return 0; }")
	body := root.List[0].X
	call1 := body.List[0].X
	call2 := body.List[1].X
	assert.True(t, call1.IsHostCall)
	assert.False(t, call2.IsHostCall)
}

func TestParseTotalityOnValidSubset(t *testing.T) {
	srcs := []string{
		"int main(){ return 0; }",
		"int f(int a){ if(a>0){ return a; } else { return 0; } }",
		"int f(){ int x; x = 1; return x; }",
	}
	for _, src := range srcs {
		toks, err := lexer.Tokenize([]byte(src))
		require.NoError(t, err)
		root, errs := parser.ParseFile(toks)
		assert.Emptyf(t, errs, "src=%q", src)
		assert.NotNil(t, root)
	}
}

func TestParseErrorRecoverySkipsOneToken(t *testing.T) {
	toks, err := lexer.Tokenize([]byte(");; int main(){ return 1; }"))
	require.NoError(t, err)
	root, errs := parser.ParseFile(toks)
	require.NotEmpty(t, errs)
	require.Len(t, root.List, 1)
	assert.Equal(t, "main", root.List[0].Name)
}
