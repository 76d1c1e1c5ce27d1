// Package ffi implements C9: a registry of host C functions callable
// from ASTC `call` instructions, plus dynamic-library loading through
// purego's cgo-free dlopen/dlsym bridge.
package ffi

import (
	"github.com/ebitengine/purego"
	"github.com/pkg/errors"
)

// Kind tags an FFI parameter or return value's C-ABI shape.
type Kind int

const (
	KindVoid Kind = iota
	KindInt32
	KindInt64
	KindPointer
	KindFloat64
)

// Entry is one registered host function: its call signature and the
// native pointer purego should invoke.
type Entry struct {
	Name       string
	ReturnKind Kind
	ParamKinds []Kind
	Callee     uintptr
}

const maxLibraries = 16

// Registry is an append-only table of host functions plus the
// dynamic libraries they were resolved from. It implements
// vm.HostCaller so a VM or JIT context can dispatch `call`
// instructions straight into it.
type Registry struct {
	entries []Entry
	byName  map[string]int
	libs    []uintptr
}

// New returns an empty registry with the six baseline C functions the
// parser already recognizes as host calls (printf, malloc, free,
// strlen, memcpy, exit) pre-registered against libc.
func New() (*Registry, error) {
	r := &Registry{byName: make(map[string]int)}
	if err := r.registerBaseline(); err != nil {
		return nil, err
	}
	return r, nil
}

// Register appends a host function entry and returns its index.
// Re-registering an existing name shadows the prior entry for lookups
// by name but does not remove it from Entries — indices handed out
// earlier stay valid.
func (r *Registry) Register(name string, returnKind Kind, paramKinds []Kind, callee uintptr) int {
	idx := len(r.entries)
	r.entries = append(r.entries, Entry{
		Name:       name,
		ReturnKind: returnKind,
		ParamKinds: append([]Kind(nil), paramKinds...),
		Callee:     callee,
	})
	r.byName[name] = idx
	return idx
}

// IsHost reports whether name is registered, satisfying vm.HostCaller.
func (r *Registry) IsHost(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Arity reports a registered function's declared parameter count,
// satisfying vm.HostCaller's optional Arity method.
func (r *Registry) Arity(name string) (int, bool) {
	idx, ok := r.byName[name]
	if !ok {
		return 0, false
	}
	return len(r.entries[idx].ParamKinds), true
}

// Call dispatches to a registered entry by name, satisfying
// vm.HostCaller. Only 0-, 1-, 2-, and 3-argument trampolines are
// wired, matching the prototype's hand-written shapes; anything wider
// needs libffi-style trampolines or a fixed-shape argument block and
// is rejected here rather than guessed at.
func (r *Registry) Call(name string, args []int64) (int64, error) {
	idx, ok := r.byName[name]
	if !ok {
		return 0, errors.Errorf("ffi: %q is not registered", name)
	}
	return r.CallIndex(idx, args)
}

// CallIndex dispatches by registry index instead of name.
func (r *Registry) CallIndex(index int, args []int64) (int64, error) {
	if index < 0 || index >= len(r.entries) {
		return 0, errors.Errorf("ffi: index %d out of range", index)
	}
	entry := r.entries[index]
	if entry.Callee == 0 {
		return 0, errors.Errorf("ffi: %q has no resolved callee pointer", entry.Name)
	}
	switch len(args) {
	case 0:
		return trampoline0(entry.Callee), nil
	case 1:
		return trampoline1(entry.Callee, args[0]), nil
	case 2:
		return trampoline2(entry.Callee, args[0], args[1]), nil
	case 3:
		return trampoline3(entry.Callee, args[0], args[1], args[2]), nil
	default:
		return 0, errors.Errorf("ffi: %q called with %d args, only 0-3 are wired", entry.Name, len(args))
	}
}

// trampolineN call purego.SyscallN with a fixed argument count; the
// wrapper functions keep the Call/CallIndex dispatch table free of
// purego's variadic uintptr signature at every call site.

func trampoline0(fn uintptr) int64 {
	r1, _, _ := purego.SyscallN(fn)
	return int64(r1)
}

func trampoline1(fn uintptr, a0 int64) int64 {
	r1, _, _ := purego.SyscallN(fn, uintptr(a0))
	return int64(r1)
}

func trampoline2(fn uintptr, a0, a1 int64) int64 {
	r1, _, _ := purego.SyscallN(fn, uintptr(a0), uintptr(a1))
	return int64(r1)
}

func trampoline3(fn uintptr, a0, a1, a2 int64) int64 {
	r1, _, _ := purego.SyscallN(fn, uintptr(a0), uintptr(a1), uintptr(a2))
	return int64(r1)
}

// LoadLibrary opens an OS dynamic-library handle, enforcing the
// 16-concurrent-library limit.
func (r *Registry) LoadLibrary(path string) (uintptr, error) {
	if len(r.libs) >= maxLibraries {
		return 0, errors.Errorf("ffi: %d libraries already loaded, limit is %d", len(r.libs), maxLibraries)
	}
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return 0, errors.Wrapf(err, "ffi: load library %q", path)
	}
	r.libs = append(r.libs, handle)
	return handle, nil
}

// Resolve returns a function pointer for name from any loaded
// library, trying the most recently loaded first.
func (r *Registry) Resolve(name string) (uintptr, error) {
	for i := len(r.libs) - 1; i >= 0; i-- {
		if ptr, err := purego.Dlsym(r.libs[i], name); err == nil {
			return ptr, nil
		}
	}
	return 0, errors.Errorf("ffi: %q not found in any loaded library", name)
}

// Entries returns the registry's entries in registration order.
func (r *Registry) Entries() []Entry {
	return append([]Entry(nil), r.entries...)
}

// LibcPath returns the platform's baseline C library path, exported
// chiefly so tests can exercise LoadLibrary against a library that is
// guaranteed to be present.
func LibcPath() string { return libcPath }
