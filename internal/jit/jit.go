// Package jit implements C8: a just-in-time compiler that translates
// a narrow subset of ASTC function bodies to native machine code,
// runs them out of a toggled write/execute memory arena, and caches
// compiled fragments behind an LRU eviction policy.
package jit

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	lru "github.com/hashicorp/golang-lru/v2"

	"astctool.dev/astc/internal/astc"
)

var (
	errStackTooDeep   = fmt.Errorf("jit: expression exceeds the codegen subset's native-stack limit")
	errStackUnderflow = fmt.Errorf("jit: stack underflow during codegen")
	errFrameTooLarge  = fmt.Errorf("jit: local frame exceeds the subset's addressing range")
)

const defaultArenaSize = 1 << 20 // 1 MiB, per the prototype's sizing note
const cacheCapacity = 100

// compiled is one cache entry: a stable pointer into the arena plus
// its byte size and access bookkeeping.
type compiled struct {
	offset      int
	size        int
	accessCount int
	lastAccess  int64
}

// Stats tracks aggregate JIT activity for diagnostics.
type Stats struct {
	Compilations int
	Hits         int
	Misses       int
}

// Context owns one JIT arena and cache. It is not safe for concurrent
// use from multiple goroutines — the concurrency model is
// single-threaded, matching the rest of the pipeline.
type Context struct {
	mu    sync.Mutex
	arena *Arena
	cache *lru.Cache[uint64, *compiled]
	clock int64
	stats Stats
}

// New allocates a fresh JIT context with a 1 MiB code arena.
func New() (*Context, error) {
	return NewSized(defaultArenaSize)
}

// NewSized allocates a JIT context with an arena of the given size,
// primarily for tests that want to exercise ErrArenaFull without
// compiling a megabyte of functions first.
func NewSized(arenaSize int) (*Context, error) {
	arena, err := NewArena(arenaSize)
	if err != nil {
		return nil, err
	}
	cache, err := lru.New[uint64, *compiled](cacheCapacity)
	if err != nil {
		return nil, fmt.Errorf("jit: cache init: %w", err)
	}
	return &Context{arena: arena, cache: cache}, nil
}

// Close releases the arena's mapped memory.
func (c *Context) Close() error { return c.arena.Close() }

// Stats returns a snapshot of the context's compilation counters.
func (c *Context) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Compile returns a callable pointer for the function named by
// funcSymIdx (an ASTC symbol-table index into prog.Symbols), either
// from cache or by freshly generating native code for the host's
// architecture. The function body must stay within the codegen
// subset (i32 constants, local get/set, add/sub/mul, return) — any
// other opcode surfaces an error so the caller can fall back to the
// interpreter rather than risk silently wrong machine code.
func (c *Context) Compile(prog *astc.Program, funcSymIdx uint32) (uintptr, int, error) {
	funcIdx, ok := findFunc(prog, funcSymIdx)
	if !ok {
		return 0, 0, fmt.Errorf("jit: no function with symbol index %d", funcSymIdx)
	}
	body, ok := funcBody(prog, funcIdx)
	if !ok {
		return 0, 0, fmt.Errorf("jit: unterminated function body at instruction %d", funcIdx)
	}
	meta := prog.FuncMeta[funcSymIdx]
	hash := hashBody(body)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock++
	if entry, ok := c.cache.Get(hash); ok {
		entry.accessCount++
		entry.lastAccess = c.clock
		c.stats.Hits++
		return c.codePtr(entry.offset), entry.size, nil
	}

	code, err := c.generate(body, meta)
	if err != nil {
		return 0, 0, err
	}
	offset, err := c.arena.Alloc(code)
	if err != nil {
		return 0, 0, err
	}
	entry := &compiled{offset: offset, size: len(code), accessCount: 1, lastAccess: c.clock}
	c.cache.Add(hash, entry) // eviction does not reclaim arena bytes; see Arena doc comment
	c.stats.Compilations++
	c.stats.Misses++
	return c.codePtr(offset), entry.size, nil
}

func (c *Context) codePtr(offset int) uintptr {
	return uintptr(unsafe.Pointer(&c.arena.Bytes()[offset]))
}

func (c *Context) generate(body []astc.Inst, meta astc.FuncMeta) ([]byte, error) {
	switch runtime.GOARCH {
	case "amd64":
		return compileAMD64(body, meta)
	case "arm64":
		return compileARM64(body, meta)
	default:
		return nil, fmt.Errorf("jit: unsupported host architecture %q", runtime.GOARCH)
	}
}

// Invoke calls a previously compiled zero-argument, int64-returning
// fragment at ptr. This relies on the generated code honoring the
// host's C-style calling convention well enough to return through rax
// (amd64) or x0 (arm64), which is all the codegen subset above ever
// touches before its epilogue.
func Invoke(ptr uintptr) int64 {
	// A Go func value points at a word holding the code address, so ptr
	// needs one extra level of indirection.
	fnPtr := &ptr
	fn := *(*func() int64)(unsafe.Pointer(&fnPtr))
	return fn()
}

// findFunc locates the instruction index of the Func opcode carrying
// the given symbol index.
func findFunc(prog *astc.Program, symIdx uint32) (int, bool) {
	for i, in := range prog.Instructions {
		if in.Op == astc.OpFunc && in.Index == symIdx {
			return i, true
		}
	}
	return 0, false
}

// funcBody returns the instructions strictly between funcIdx's Func
// opcode and its matching End, via the same bracket-counting scheme
// the VM uses to precompute jump targets.
func funcBody(prog *astc.Program, funcIdx int) ([]astc.Inst, bool) {
	depth := 0
	for i := funcIdx + 1; i < len(prog.Instructions); i++ {
		switch prog.Instructions[i].Op {
		case astc.OpBlock, astc.OpLoop, astc.OpIf, astc.OpFunc:
			depth++
		case astc.OpEnd:
			if depth == 0 {
				return prog.Instructions[funcIdx+1 : i], true
			}
			depth--
		}
	}
	return nil, false
}
