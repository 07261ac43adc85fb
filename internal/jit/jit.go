// Package jit implements the driver that takes a lowered
// pool.Template through analysis, unboxing, specialization, and dead-code
// elimination, then hands the result to internal/backend and caches the
// resulting entry point on the template: compiling the same template
// twice must return the same entry point.
//
// Compilation is memoized per template index with
// golang.org/x/sync/singleflight so that recursive or reentrant eval (a
// function whose body evaluates code that calls back into the same
// template while it's mid-compile) collapses onto a single compilation
// instead of racing two compiles of the same template.
package jit

import (
	stderrors "errors"
	"fmt"
	"unsafe"

	"golang.org/x/sync/singleflight"

	"rift/internal/analysis"
	"rift/internal/backend"
	"rift/internal/dce"
	"rift/internal/errors"
	"rift/internal/gc"
	rift "rift/internal/ir"
	"rift/internal/lexer"
	"rift/internal/lower"
	"rift/internal/parser"
	"rift/internal/pool"
	"rift/internal/runtime"
	"rift/internal/specialize"
	"rift/internal/unboxing"
	"rift/internal/value"
)

// retainModules keeps every compiled backend module alive for the life of
// the process. Releasing a module once its entry is linked would reclaim
// the debug bitcode, but unwinding through removed object code can corrupt
// exception metadata on some platforms, so removal stays disabled.
const retainModules = true

// Driver owns the process-wide pool, collector, and runtime, and compiles
// templates on demand. One Driver exists per running Rift instance.
type Driver struct {
	Pool    *pool.Pool
	GC      *gc.Collector
	RT      *runtime.Runtime
	File    string
	group   singleflight.Group
	Debug   bool // -d: dump each template's IR as it compiles
	dumpOut func(string)

	// globalEnv is the persistent top-level environment every Run
	// executes against, so consecutive REPL statements see each other's
	// bindings. Registered as a global root for the life of the Driver.
	globalEnv *value.Environment
}

// New wires a Driver's Pool/GC/RT together and installs RT.Eval so
// genericEval/characterEval can parse and compile fresh source through this
// same Driver. dumpOut receives each compiled template's debug LLVM IR text
// when debug is true; pass nil to discard it.
func New(debug bool, dumpOut func(string)) *Driver {
	p := pool.New()
	c := gc.NewCollector(value.ChildrenOf)
	d := &Driver{Pool: p, GC: c, Debug: debug, dumpOut: dumpOut, File: "<eval>"}
	d.RT = runtime.New(c, p, d.eval)
	d.globalEnv = value.NewEnvironment(c, nil)
	c.AddGlobalRoot(unsafe.Pointer(d.globalEnv.Header()))
	return d
}

// eval implements runtime.Eval: dynamically evaluated source runs against
// the environment of the frame that called eval, so its assignments land
// in the caller's scope rather than a throwaway one.
func (d *Driver) eval(rt *runtime.Runtime, env *value.Environment, source string) (value.Value, error) {
	return d.evalIn(env, source)
}

// Run parses, lowers, compiles, and executes source as a top-level
// program against the Driver's persistent global environment, returning
// the value of its final statement. An allocation failure deep inside the
// collector surfaces here as an ordinary *errors.RiftError (see
// gc.Collector.Alloc's doc comment) rather than as a propagating panic, so
// every caller of Run sees the same error contract.
func (d *Driver) Run(source string) (v value.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			if rerr, ok := r.(*errors.RiftError); ok {
				err = rerr
				return
			}
			// A panic raised inside compile's singleflight group arrives
			// re-wrapped in singleflight's own error type; unwrap so an
			// allocation failure mid-compile still surfaces as an error.
			if e, ok := r.(error); ok {
				var rerr *errors.RiftError
				if stderrors.As(e, &rerr) {
					err = rerr
					return
				}
			}
			panic(r) // not ours to handle: a genuine internal invariant violation
		}
	}()
	return d.evalIn(d.globalEnv, source)
}

// evalIn compiles source as a top-level program and executes it against
// env.
func (d *Driver) evalIn(env *value.Environment, source string) (value.Value, error) {
	tokens := lexer.NewScanner(source).ScanTokens()
	seq, err := parser.NewParser(tokens, d.Pool, d.File).Parse()
	if err != nil {
		return nil, err
	}
	_, tmplIdx := lower.Lower(d.Pool, "<program>", nil, seq)
	closure, err := d.compile(tmplIdx)
	if err != nil {
		return nil, err
	}
	return closure.Code(env, nil)
}

// compile runs the fixed pipeline over one template, caching its entry
// point and its unclosed function record on the pool entry, and
// deduplicating concurrent/reentrant requests for the same templateIdx
// through the singleflight group. The record is registered as a global
// root — compiled function records live for the rest of the process, so a
// later createFunction can copy-and-close one without the source record
// ever being collectible.
func (d *Driver) compile(templateIdx int) (*value.Function, error) {
	tmpl := d.Pool.Template(templateIdx)
	if tmpl.Record != nil {
		return tmpl.Record.(*value.Function), nil
	}
	key := fmt.Sprintf("tmpl:%d", templateIdx)
	v, err, _ := d.group.Do(key, func() (interface{}, error) {
		if tmpl.Record != nil {
			return tmpl.Record.(*value.Function), nil
		}
		fn, ok := tmpl.Body.(*rift.Function)
		if !ok {
			panic(fmt.Sprintf("jit: template %d has no lowered body", templateIdx))
		}

		res := analysis.Run(fn)
		unboxing.Run(fn, res)
		specialize.Run(fn, res)
		dce.Run(fn)

		if d.Debug && d.dumpOut != nil {
			d.dumpOut(backend.EmitDebugModule(fn).String())
		}

		entry := backend.NewEntry(fn, d.RT, d.compile)
		paramIdx := make([]int, len(tmpl.Params))
		for i, name := range tmpl.Params {
			paramIdx[i] = d.Pool.Intern(name)
		}
		args := value.NewFunctionArgs(d.GC, paramIdx)
		argsRoot := d.GC.PushRoot(unsafe.Pointer(args.Header()))
		record := value.NewFunctionTemplate(d.GC, templateIdx, args, entry, fn)
		d.GC.PopRoots(argsRoot)
		d.GC.AddGlobalRoot(unsafe.Pointer(record.Header()))

		tmpl.Entry = entry
		tmpl.Bitcode = fn
		if !retainModules {
			tmpl.Bitcode = nil
		}
		tmpl.Record = record
		return record, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*value.Function), nil
}
