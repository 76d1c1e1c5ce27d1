package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileCommandPrintsAssembly(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "main.c")
	require.NoError(t, os.WriteFile(src, []byte("int main(){ return 1 + 2; }"), 0o644))

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"compile", src, "--target", "arm64"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "main:")
}

func TestAOTCommandWritesExecutable(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "main.c")
	require.NoError(t, os.WriteFile(src, []byte("int main(){ return 42; }"), 0o644))
	out := filepath.Join(dir, "out")

	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"aot", src, out})
	require.NoError(t, root.Execute())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x7f, 'E', 'L', 'F'}, data[0:4])
}

func TestCompileCommandRejectsUnknownTarget(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "main.c")
	require.NoError(t, os.WriteFile(src, []byte("int main(){ return 1; }"), 0o644))

	root := newRootCmd()
	root.SetArgs([]string{"compile", src, "--target", "not-a-target"})
	root.SilenceErrors = true
	root.SilenceUsage = true
	assert.Error(t, root.Execute())
}
