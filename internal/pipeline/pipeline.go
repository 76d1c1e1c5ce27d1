// Package pipeline implements C11: a facade that owns one
// compilation's state end to end — source, AST, ASTC program,
// assembly text, legacy packed bytecode, and the VM used to execute
// it — and coordinates the lexer, parser, lowering, emitter, JIT, FFI
// registry, and ELF writer behind a small surface: Compile, Execute,
// CompileAndRun, ASTC2Native.
package pipeline

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"astctool.dev/astc/internal/ast"
	"astctool.dev/astc/internal/astc"
	"astctool.dev/astc/internal/clog"
	"astctool.dev/astc/internal/elfwriter"
	"astctool.dev/astc/internal/emit"
	"astctool.dev/astc/internal/jit"
	"astctool.dev/astc/internal/lexer"
	"astctool.dev/astc/internal/lowering"
	"astctool.dev/astc/internal/parser"
	"astctool.dev/astc/internal/vm"
)

// Kind tags which stage an error surfaced from, mirroring the error
// taxonomy each stage already raises on its own (LexError, ParseError,
// BytecodeError, VmError, JitError, AotError, IoError) one level up so
// callers that only see the facade can still branch on it.
type Kind int

const (
	KindNone Kind = iota
	KindLex
	KindParse
	KindBytecode
	KindVM
	KindJIT
	KindAot
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindLex:
		return "lex"
	case KindParse:
		return "parse"
	case KindBytecode:
		return "bytecode"
	case KindVM:
		return "vm"
	case KindJIT:
		return "jit"
	case KindAot:
		return "aot"
	case KindIO:
		return "io"
	default:
		return "none"
	}
}

// Error is the facade's tagged error wrapper: Kind identifies which
// stage failed, Err is the underlying cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

func tagged(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// Options controls an individual Compile call.
type Options struct {
	// Target selects the textual assembly ISA to render alongside
	// lowering. Assembly rendering is skipped whenever NoAssembly is
	// true, whatever Target holds.
	Target     emit.ID
	NoAssembly bool
	// PackLegacy additionally renders the 3-opcode packed on-disk form
	// (EncodePacked) into Bytecode().
	PackLegacy bool
}

// Pipeline owns one compilation's resources at a time. Calling Compile
// again releases everything the previous call installed before
// building new state, and any failure along the way leaves no partial
// state behind — fields are only assigned once every prior stage of
// that call has already succeeded.
type Pipeline struct {
	host vm.HostCaller

	source   []byte
	root     *ast.Node
	prog     *astc.Program
	assembly string
	bytecode []byte
	machine  *vm.VM
	lastErr  error
}

// New returns an empty Pipeline. host supplies the FFI dispatch the VM
// uses for host calls; it may be nil for programs that make no host
// calls.
func New(host vm.HostCaller) *Pipeline {
	return &Pipeline{host: host}
}

// reset releases all state owned by a prior Compile call. Called both
// at the top of Compile (so failures never compound on stale state)
// and is safe to call on a fresh Pipeline.
func (p *Pipeline) reset() {
	p.source = nil
	p.root = nil
	p.prog = nil
	p.assembly = ""
	p.bytecode = nil
	p.machine = nil
	p.lastErr = nil
}

// Compile runs source through lex, parse, and lowering, optionally
// rendering assembly and/or packed legacy bytecode. On any failure the
// facade's state is left exactly as reset() leaves it — no partial AST
// or program survives a failed compile.
func (p *Pipeline) Compile(source string, opts Options) error {
	p.reset()
	logger := clog.Named("pipeline")

	toks, err := lexer.Tokenize([]byte(source))
	if err != nil {
		return p.fail(KindLex, err)
	}

	root, errs := parser.ParseFile(toks)
	if len(errs) > 0 {
		return p.fail(KindParse, errs[0])
	}

	prog, err := lowering.Lower(root)
	if err != nil {
		return p.fail(KindBytecode, err)
	}

	var assembly string
	if !opts.NoAssembly {
		assembly, err = renderAssembly(root, opts.Target)
		if err != nil {
			return p.fail(KindBytecode, err)
		}
	}

	var bytecode []byte
	if opts.PackLegacy {
		bytecode = astc.EncodePacked(prog)
	}

	// Every stage succeeded: commit state in one shot.
	p.source = []byte(source)
	p.root = root
	p.prog = prog
	p.assembly = assembly
	p.bytecode = bytecode
	logger.Info("compiled", zap.Int("instructions", len(prog.Instructions)))
	return nil
}

// renderAssembly emits every top-level function in the translation
// unit through the target ISA's Emitter, concatenating the results.
func renderAssembly(root *ast.Node, target emit.ID) (string, error) {
	e, err := emit.New(target)
	if err != nil {
		return "", err
	}
	var out string
	for _, decl := range root.List {
		if decl.Kind != ast.FuncDecl || decl.X == nil {
			continue
		}
		text, err := e.Function(decl)
		if err != nil {
			return "", err
		}
		out += text
	}
	return out, nil
}

func (p *Pipeline) fail(kind Kind, err error) error {
	wrapped := tagged(kind, err)
	p.lastErr = wrapped
	return wrapped
}

// Execute runs the most recently compiled program on a fresh VM
// instance and returns main's return value.
func (p *Pipeline) Execute() (int64, error) {
	if p.prog == nil {
		return 0, p.fail(KindVM, errors.New("pipeline: nothing compiled"))
	}
	machine, err := vm.New(p.prog, p.host)
	if err != nil {
		return 0, p.fail(KindVM, err)
	}
	p.machine = machine
	result, err := machine.Execute()
	if err != nil {
		return 0, p.fail(KindVM, err)
	}
	return result, nil
}

// CompileAndRun compiles source then immediately executes it,
// returning success only if both stages succeed.
func (p *Pipeline) CompileAndRun(source string, opts Options) (int64, error) {
	if err := p.Compile(source, opts); err != nil {
		return 0, err
	}
	return p.Execute()
}

// ASTC2Native AOT-compiles the most recently compiled program's entry
// function to a standalone ELF64 executable at outPath.
func (p *Pipeline) ASTC2Native(outPath string) error {
	if p.prog == nil {
		return p.fail(KindAot, errors.New("pipeline: nothing compiled"))
	}
	if err := elfwriter.Write(p.prog, outPath); err != nil {
		return p.fail(KindAot, err)
	}
	return nil
}

// CompileJIT compiles the named function (by symbol index) through
// the JIT and returns a context the caller can Invoke repeatedly.
// Errors here are tagged KindJIT so callers can fall back to Execute.
func (p *Pipeline) CompileJIT(funcSymIdx uint32) (*jit.Context, uintptr, error) {
	if p.prog == nil {
		return nil, 0, p.fail(KindJIT, errors.New("pipeline: nothing compiled"))
	}
	ctx, err := jit.New()
	if err != nil {
		return nil, 0, p.fail(KindJIT, err)
	}
	ptr, _, err := ctx.Compile(p.prog, funcSymIdx)
	if err != nil {
		ctx.Close()
		return nil, 0, p.fail(KindJIT, err)
	}
	return ctx, ptr, nil
}

// GetError returns the last error's human-readable message, or "" if
// the most recent operation succeeded.
func (p *Pipeline) GetError() string {
	if p.lastErr == nil {
		return ""
	}
	return p.lastErr.Error()
}

// Assembly returns the most recently rendered assembly text.
func (p *Pipeline) Assembly() string { return p.assembly }

// Bytecode returns the most recently packed legacy bytecode buffer.
func (p *Pipeline) Bytecode() []byte { return p.bytecode }

// Program returns the most recently lowered ASTC program.
func (p *Pipeline) Program() *astc.Program { return p.prog }
