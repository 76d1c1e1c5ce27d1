package ffi_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astctool.dev/astc/internal/ffi"
)

var libcSelf = ffi.LibcPath()

func uintptrOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}

func TestNewPreregistersBaselineSymbols(t *testing.T) {
	r, err := ffi.New()
	require.NoError(t, err)

	for _, name := range []string{"printf", "malloc", "free", "strlen", "memcpy", "exit"} {
		assert.True(t, r.IsHost(name), "expected %q to be pre-registered", name)
	}
	assert.False(t, r.IsHost("not_a_real_symbol"))
}

func TestArityReflectsRegisteredParamCount(t *testing.T) {
	r, err := ffi.New()
	require.NoError(t, err)

	n, ok := r.Arity("memcpy")
	require.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok = r.Arity("not_registered")
	assert.False(t, ok)
}

func TestCallStrlen(t *testing.T) {
	r, err := ffi.New()
	require.NoError(t, err)

	s := []byte("hello\x00")
	ptr := int64(uintptrOf(s))
	n, err := r.Call("strlen", []int64{ptr})
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)
}

func TestCallRejectsUnregisteredName(t *testing.T) {
	r, err := ffi.New()
	require.NoError(t, err)

	_, err = r.Call("definitely_not_registered", nil)
	require.Error(t, err)
}

func TestCallRejectsTooManyArguments(t *testing.T) {
	r, err := ffi.New()
	require.NoError(t, err)

	idx, ok := indexOf(r, "printf")
	require.True(t, ok)
	_, err = r.CallIndex(idx, []int64{1, 2, 3, 4})
	require.Error(t, err)
}

func TestLoadLibraryEnforcesCap(t *testing.T) {
	r, err := ffi.New()
	require.NoError(t, err)

	// New already holds the baseline libc handle, so 15 more loads fill
	// the 16-library cap.
	for i := 0; i < 15; i++ {
		_, err := r.LoadLibrary(libcSelf)
		require.NoError(t, err)
	}
	_, err = r.LoadLibrary(libcSelf)
	require.Error(t, err)
}

func indexOf(r *ffi.Registry, name string) (int, bool) {
	for i, e := range r.Entries() {
		if e.Name == name {
			return i, true
		}
	}
	return 0, false
}
