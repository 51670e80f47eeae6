// Package sandbox provides the CEL-based restricted execution layer.
//
// Every scoring program in the system runs through a process-wide Registry:
// a program is compiled once per distinct (source, options) pair and cached
// for the process lifetime, then executed against a fresh input activation
// on every call. Nothing persists between runs beyond the compiled program,
// so identical inputs always produce identical outputs.
package sandbox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
	"github.com/google/cel-go/ext"
)

// Options select the compilation mode for a program. The zero value parses
// without type checking and runs without a timeout.
type Options struct {
	// TypeCheck enables full CEL type checking. Checked programs must
	// declare every input in Stubs.
	TypeCheck bool

	// Stubs declares input names and types for type-checked compilation.
	Stubs map[string]*cel.Type

	// Timeout bounds a single run. Zero means no timeout. Expiry aborts
	// only the affected run; the cached program stays valid.
	Timeout time.Duration
}

// CompileError reports a program that failed to compile. Compile failures
// indicate a defect in a shipped scoring program and are never swallowed.
type CompileError struct {
	Err error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("scoring program failed to compile: %v", e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// Registry is the process-wide cache of compiled scoring programs.
// Safe for concurrent use; concurrent first use of the same key compiles
// exactly once.
type Registry struct {
	base *cel.Env

	mu       sync.Mutex
	programs map[string]*entry
}

// entry is a memoized compilation slot. The mutex-guarded map insert plus
// sync.Once gives atomic insert-or-fetch without duplicate compiles.
type entry struct {
	once sync.Once
	prog cel.Program
	err  error
}

// NewRegistry creates an empty program registry. The environment carries the
// cel.bind, math, and string extensions the shipped scoring programs use.
func NewRegistry() (*Registry, error) {
	env, err := cel.NewEnv(
		ext.Bindings(),
		ext.Math(),
		ext.Strings(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Registry{
		base:     env,
		programs: make(map[string]*entry),
	}, nil
}

// Run executes a scoring program with the given input bindings and returns
// its result as a native Go value. The first call for a distinct
// (source, options) pair compiles the program; later calls reuse the cached
// compiled form. Each call evaluates against only the supplied inputs.
func (r *Registry) Run(ctx context.Context, source string, inputs map[string]any, opts Options) (any, error) {
	ent := r.lookup(source, opts)
	ent.once.Do(func() {
		ent.prog, ent.err = r.compile(source, opts)
	})
	if ent.err != nil {
		return nil, ent.err
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	out, _, err := ent.prog.ContextEval(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("program evaluation failed: %w", err)
	}

	return nativeValue(out)
}

// Warm compiles a program without running it, surfacing compile errors at
// startup rather than on first use.
func (r *Registry) Warm(source string, opts Options) error {
	ent := r.lookup(source, opts)
	ent.once.Do(func() {
		ent.prog, ent.err = r.compile(source, opts)
	})
	return ent.err
}

// Size returns the number of cached program slots.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.programs)
}

// lookup returns the entry for a cache key, inserting an empty slot on
// first use. Compilation happens outside the lock, guarded by the entry's
// own once.
func (r *Registry) lookup(source string, opts Options) *entry {
	key := cacheKey(source, opts)

	r.mu.Lock()
	defer r.mu.Unlock()

	ent, ok := r.programs[key]
	if !ok {
		ent = &entry{}
		r.programs[key] = ent
	}
	return ent
}

// cacheKey hashes the program source together with everything that affects
// compilation output: the type-check flag and the declared input stubs.
func cacheKey(source string, opts Options) string {
	h := sha256.New()
	h.Write([]byte(source))
	if opts.TypeCheck {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}

	names := make([]string, 0, len(opts.Stubs))
	for name := range opts.Stubs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write([]byte(opts.Stubs[name].String()))
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil))
}

func (r *Registry) compile(source string, opts Options) (cel.Program, error) {
	env := r.base
	if len(opts.Stubs) > 0 {
		decls := make([]cel.EnvOption, 0, len(opts.Stubs))
		for name, t := range opts.Stubs {
			decls = append(decls, cel.Variable(name, t))
		}
		var err error
		env, err = r.base.Extend(decls...)
		if err != nil {
			return nil, &CompileError{Err: err}
		}
	}

	var ast *cel.Ast
	if opts.TypeCheck {
		checked, issues := env.Compile(source)
		if issues != nil && issues.Err() != nil {
			return nil, &CompileError{Err: issues.Err()}
		}
		ast = checked
	} else {
		parsed, issues := env.Parse(source)
		if issues != nil && issues.Err() != nil {
			return nil, &CompileError{Err: issues.Err()}
		}
		ast = parsed
	}

	prog, err := env.Program(ast, cel.InterruptCheckFrequency(64))
	if err != nil {
		return nil, &CompileError{Err: err}
	}
	return prog, nil
}

// nativeValue converts a CEL result into the closed set of value kinds the
// sandbox boundary admits: bool, int64, float64, string, nil, []any, and
// map[string]any.
func nativeValue(val ref.Val) (any, error) {
	switch v := val.(type) {
	case types.Bool:
		return bool(v), nil
	case types.Int:
		return int64(v), nil
	case types.Uint:
		return int64(v), nil
	case types.Double:
		return float64(v), nil
	case types.String:
		return string(v), nil
	case types.Null:
		return nil, nil
	}

	if lister, ok := val.(traits.Lister); ok {
		size, ok := lister.Size().(types.Int)
		if !ok {
			return nil, fmt.Errorf("list size is not an int")
		}
		out := make([]any, 0, int(size))
		for i := types.Int(0); i < size; i++ {
			elem, err := nativeValue(lister.Get(i))
			if err != nil {
				return nil, err
			}
			out = append(out, elem)
		}
		return out, nil
	}

	if mapper, ok := val.(traits.Mapper); ok {
		out := make(map[string]any)
		it := mapper.Iterator()
		for it.HasNext() == types.True {
			key := it.Next()
			keyStr, ok := key.(types.String)
			if !ok {
				return nil, fmt.Errorf("map key %v is not a string", key)
			}
			elem, found := mapper.Find(key)
			if !found {
				continue
			}
			native, err := nativeValue(elem)
			if err != nil {
				return nil, err
			}
			out[string(keyStr)] = native
		}
		return out, nil
	}

	return nil, fmt.Errorf("unsupported result type %s", val.Type().TypeName())
}
