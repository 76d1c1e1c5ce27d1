package jit

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// ErrArenaFull is returned when Alloc would overflow the arena's
// fixed capacity.
var ErrArenaFull = fmt.Errorf("jit: arena exhausted")

// Arena is a single monotonically growing executable-memory region.
// Code pointers handed out by Alloc never move: the arena only grows,
// it is never compacted, matching the cache's "evicting does not
// reclaim arena bytes" design.
//
// The region toggles between writable and executable instead of ever
// being mapped W+X at the same time: Alloc makes it writable, copies
// the new fragment in, then makes it executable again before
// returning. Exactly one toggle pair per Alloc call.
type Arena struct {
	mem      []byte
	used     int
	writable bool
}

// NewArena mmaps a fresh size-byte region, initially executable (and
// empty, so there is nothing unsafe about that start state).
func NewArena(size int) (*Arena, error) {
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_EXEC, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("jit: mmap arena: %w", err)
	}
	return &Arena{mem: mem}, nil
}

// Close unmaps the arena. Any code pointers it handed out become
// invalid; callers must not invoke them afterward.
func (a *Arena) Close() error {
	if a.mem == nil {
		return nil
	}
	err := unix.Munmap(a.mem)
	a.mem = nil
	return err
}

// Cap returns the arena's total capacity in bytes.
func (a *Arena) Cap() int { return len(a.mem) }

// Used returns the number of bytes already published.
func (a *Arena) Used() int { return a.used }

func (a *Arena) setWritable(w bool) error {
	if a.writable == w {
		return nil
	}
	prot := unix.PROT_READ | unix.PROT_EXEC
	if w {
		prot = unix.PROT_READ | unix.PROT_WRITE
	}
	if err := unix.Mprotect(a.mem, prot); err != nil {
		return fmt.Errorf("jit: mprotect: %w", err)
	}
	a.writable = w
	return nil
}

// Alloc copies code into the arena and returns its byte offset. The
// returned offset is stable for the arena's lifetime.
func (a *Arena) Alloc(code []byte) (offset int, err error) {
	if a.used+len(code) > len(a.mem) {
		return 0, ErrArenaFull
	}
	if err := a.setWritable(true); err != nil {
		return 0, err
	}
	offset = a.used
	copy(a.mem[offset:], code)
	a.used += len(code)
	if err := a.setWritable(false); err != nil {
		return 0, err
	}
	return offset, nil
}

// Bytes returns the arena's backing slice, for pointer-taking by the
// invoker. It must only be read, never written outside Alloc.
func (a *Arena) Bytes() []byte { return a.mem }
