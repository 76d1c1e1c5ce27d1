package ffi

import (
	"github.com/ebitengine/purego"
	"github.com/pkg/errors"
)

// baselineSignature describes one of the six host functions the
// parser already recognizes as calls into the FFI registry rather
// than user-defined functions.
type baselineSignature struct {
	name       string
	returnKind Kind
	paramKinds []Kind
}

var baselineSignatures = []baselineSignature{
	{"printf", KindInt32, []Kind{KindPointer}}, // variadic; extra args ride along untyped
	{"malloc", KindPointer, []Kind{KindInt64}},
	{"free", KindVoid, []Kind{KindPointer}},
	{"strlen", KindInt64, []Kind{KindPointer}},
	{"memcpy", KindPointer, []Kind{KindPointer, KindPointer, KindInt64}},
	{"exit", KindVoid, []Kind{KindInt32}},
}

// registerBaseline opens the platform libc and resolves+registers the
// six baseline host symbols against it.
func (r *Registry) registerBaseline() error {
	handle, err := purego.Dlopen(libcPath, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return errors.Wrapf(err, "ffi: open baseline library %q", libcPath)
	}
	r.libs = append(r.libs, handle)

	for _, sig := range baselineSignatures {
		ptr, err := purego.Dlsym(handle, sig.name)
		if err != nil {
			return errors.Wrapf(err, "ffi: resolve baseline symbol %q", sig.name)
		}
		r.Register(sig.name, sig.returnKind, sig.paramKinds, ptr)
	}
	return nil
}
