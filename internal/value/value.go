// Package value implements Rift's heap object model.
//
// Every heap object is allocated exclusively through internal/gc, never
// through Go's own allocator. Each struct embeds gc.Header as its first
// field so a gc.Collector can read the type tag and mark byte straight
// off any unsafe.Pointer it holds.
package value

import (
	"unsafe"

	"rift/internal/errors"
	"rift/internal/gc"
)

// Value is implemented by every heap object kind. It exists so call sites
// that only need the header (type/mark) can stay untyped; concrete
// operations still go through a type switch or assertion, matching the
// generic-intrinsic dispatch the runtime performs.
type Value interface {
	Header() *gc.Header
}

func typeOf(v Value) gc.Type { return v.Header().Type }

// TypeName implements the `type()` builtin's string.
func TypeName(v Value) string { return typeOf(v).String() }

// --- DoubleVector ---------------------------------------------------------

// DoubleVector is a heap-allocated, fixed-length vector of float64s.
// Rift has no vector literals shorter than length 1; a scalar is simply
// a DoubleVector of length 1.
type DoubleVector struct {
	Hdr gc.Header
	Data []float64
}

func (d *DoubleVector) Header() *gc.Header { return &d.Hdr }

// NewDoubleVector allocates a DoubleVector of n elements through c. The
// backing slice lives on the Go heap, not inside the gc arena: the arena
// only needs to host the fixed-size header that the collector scans,
// because internal/gc's conservative pointer recognition (block-aligned,
// inside the arena envelope) cannot validate pointers into an
// arbitrary-length Go slice. A DoubleVector's Data slice is kept alive by
// Go's own GC for as long as the Rift object that owns it is reachable from
// the shadow stack; see DESIGN.md for the rationale.
func NewDoubleVector(c *gc.Collector, data []float64) *DoubleVector {
	p := c.Alloc(int(unsafe.Sizeof(DoubleVector{})), gc.DoubleVector)
	dv := (*DoubleVector)(p)
	dv.Data = data
	return dv
}

func (d *DoubleVector) Len() int { return len(d.Data) }

// --- CharacterVector -------------------------------------------------------

// CharacterVector is a heap-allocated vector of individual characters,
// one byte per element, not a vector of
// interned whole-string tokens. A string literal's full text is interned
// through internal/pool once (so repeated literals share storage), but the
// CharacterVector materialized from it holds the decoded bytes themselves:
// that's what makes "aba" == "aca" compare element-wise per character.
type CharacterVector struct {
	Hdr gc.Header
	Bytes []byte
}

func (cv *CharacterVector) Header() *gc.Header { return &cv.Hdr }

func NewCharacterVector(c *gc.Collector, data []byte) *CharacterVector {
	p := c.Alloc(int(unsafe.Sizeof(CharacterVector{})), gc.CharacterVector)
	v := (*CharacterVector)(p)
	v.Bytes = data
	return v
}

func (cv *CharacterVector) Len() int { return len(cv.Bytes) }

// --- FunctionArgs -----------------------------------------------------------

// FunctionArgs is the lowered representation of a function's formal
// parameter list: a symbol array holding each parameter name's pool index.
type FunctionArgs struct {
	Hdr gc.Header
	Names []int
}

func (a *FunctionArgs) Header() *gc.Header { return &a.Hdr }

func NewFunctionArgs(c *gc.Collector, names []int) *FunctionArgs {
	p := c.Alloc(int(unsafe.Sizeof(FunctionArgs{})), gc.FunctionArgs)
	a := (*FunctionArgs)(p)
	a.Names = names
	return a
}

// --- Bindings / Environment -------------------------------------------------

const (
	bindingsInitialSize = 4
	bindingsGrowSize    = 4
)

// Bindings is a flat, linearly-scanned symbol table: parallel Names/Vals
// slices grown by fixed increments (copied into a new, growSize-larger
// backing array; never shrinks).
type Bindings struct {
	Hdr gc.Header
	Names []int
	Vals  []Value
}

func (b *Bindings) Header() *gc.Header { return &b.Hdr }

func NewBindings(c *gc.Collector) *Bindings {
	p := c.Alloc(int(unsafe.Sizeof(Bindings{})), gc.Bindings)
	b := (*Bindings)(p)
	b.Names = make([]int, 0, bindingsInitialSize)
	b.Vals = make([]Value, 0, bindingsInitialSize)
	return b
}

// Get performs the Bindings' own linear scan — it does NOT walk a parent
// Environment; that's Environment.Get's job.
func (b *Bindings) Get(nameIdx int) (Value, bool) {
	for i, n := range b.Names {
		if n == nameIdx {
			return b.Vals[i], true
		}
	}
	return nil, false
}

// Set overwrites an existing binding or appends a new one, growing by
// bindingsGrowSize when the backing arrays are full.
func (b *Bindings) Set(nameIdx int, v Value) {
	for i, n := range b.Names {
		if n == nameIdx {
			b.Vals[i] = v
			return
		}
	}
	if len(b.Names) == cap(b.Names) {
		grown := make([]int, len(b.Names), cap(b.Names)+bindingsGrowSize)
		copy(grown, b.Names)
		b.Names = grown
		grownVals := make([]Value, len(b.Vals), cap(b.Vals)+bindingsGrowSize)
		copy(grownVals, b.Vals)
		b.Vals = grownVals
	}
	b.Names = append(b.Names, nameIdx)
	b.Vals = append(b.Vals, v)
}

// Environment is a lexical scope: an optional parent plus a lazily-created
// Bindings block. envGet walks the parent chain and fails with a
// LookupError if the symbol is unbound anywhere in the chain; envSet never
// walks the parent chain — it always binds in the current frame, never
// reaching outward to rebind an enclosing scope's variable.
type Environment struct {
	Hdr gc.Header
	Parent   *Environment
	Bindings *Bindings
}

func (e *Environment) Header() *gc.Header { return &e.Hdr }

func NewEnvironment(c *gc.Collector, parent *Environment) *Environment {
	p := c.Alloc(int(unsafe.Sizeof(Environment{})), gc.Environment)
	env := (*Environment)(p)
	env.Parent = parent
	return env
}

// Get implements envGet: walk this frame, then each parent, in order.
func (e *Environment) Get(nameIdx int, name string) (Value, error) {
	for env := e; env != nil; env = env.Parent {
		if env.Bindings == nil {
			continue
		}
		if v, ok := env.Bindings.Get(nameIdx); ok {
			return v, nil
		}
	}
	return nil, errors.NewLookupError(name)
}

// Set implements envSet: bind (or rebind) nameIdx in this frame only,
// creating the Bindings block on first use.
func (e *Environment) Set(c *gc.Collector, nameIdx int, v Value) {
	if e.Bindings == nil {
		e.Bindings = NewBindings(c)
	}
	e.Bindings.Set(nameIdx, v)
}

// --- Function (closure record) ---------------------------------------------

// Entry is the native entry point a closed Function record invokes, given
// the environment the call bound its parameters into. The backend package
// supplies concrete Entry values; value doesn't depend on backend to avoid
// an import cycle (backend depends on value for argument and result
// types).
type Entry func(callEnv *Environment, args []Value) (Value, error)

// Function is a closure: a template's compiled code paired with the
// environment it closed over. Args is the formal parameter list, one
// FunctionArgs block shared by every closure derived from the same source
// function.
type Function struct {
	Hdr gc.Header
	TemplateIndex int
	Args          *FunctionArgs
	Env           *Environment
	Code          Entry
	Bitcode       interface{} // backend debug handle, opaque here
}

func (f *Function) Header() *gc.Header { return &f.Hdr }

// NewFunctionTemplate allocates an unclosed function record: Env is nil
// until Close binds it. The template is constructed once per compiled
// template; copy-and-close happens per call to createFunction at runtime.
func NewFunctionTemplate(c *gc.Collector, templateIdx int, args *FunctionArgs, code Entry, bitcode interface{}) *Function {
	p := c.Alloc(int(unsafe.Sizeof(Function{})), gc.Function)
	fn := (*Function)(p)
	fn.TemplateIndex = templateIdx
	fn.Args = args
	fn.Code = code
	fn.Bitcode = bitcode
	return fn
}

// Close binds env to a copy of the template, producing the runtime closure
// that createFunction returns. It asserts the record being closed has no
// environment bound yet — a panic, not a *RiftError: an internal invariant
// violation that can only fire from a bug in the lowering/runtime, never
// from Rift source text.
func (f *Function) Close(c *gc.Collector, env *Environment) *Function {
	if f.Env != nil {
		panic("value: Function.Close called on an already-closed record")
	}
	p := c.Alloc(int(unsafe.Sizeof(Function{})), gc.Function)
	closed := (*Function)(p)
	*closed = *f
	closed.Hdr = gc.Header{Type: gc.Function}
	closed.Env = env
	return closed
}

func (f *Function) Arity() int {
	if f.Args == nil {
		return 0
	}
	return len(f.Args.Names)
}

// --- GC child visitation -----------------------------------------------------

// VisitChildren implements gc.ChildVisitor for Environment: its parent and
// its Bindings block are the only outgoing pointers (Bindings.Vals is
// visited through the owning Bindings' own VisitChildren).
func (e *Environment) VisitChildren(visit func(unsafe.Pointer)) {
	if e.Parent != nil {
		visit(unsafe.Pointer(e.Parent))
	}
	if e.Bindings != nil {
		visit(unsafe.Pointer(e.Bindings))
	}
}

// VisitChildren implements gc.ChildVisitor for Bindings: every bound value.
func (b *Bindings) VisitChildren(visit func(unsafe.Pointer)) {
	for _, v := range b.Vals {
		if v == nil {
			continue
		}
		visit(headerPtr(v))
	}
}

// VisitChildren implements gc.ChildVisitor for Function: its closed-over
// environment and its shared parameter block.
func (f *Function) VisitChildren(visit func(unsafe.Pointer)) {
	if f.Env != nil {
		visit(unsafe.Pointer(f.Env))
	}
	if f.Args != nil {
		visit(unsafe.Pointer(f.Args))
	}
}

func headerPtr(v Value) unsafe.Pointer {
	return unsafe.Pointer(v.Header())
}

// ChildrenOf adapts any heap pointer the collector holds back into a
// gc.ChildVisitor, dispatching on the stored type tag. Passed to
// gc.NewCollector so internal/gc never needs to import internal/value.
func ChildrenOf(p unsafe.Pointer) gc.ChildVisitor {
	switch (*gc.Header)(p).Type {
	case gc.Environment:
		return (*Environment)(p)
	case gc.Bindings:
		return (*Bindings)(p)
	case gc.Function:
		return (*Function)(p)
	default:
		return nil
	}
}
