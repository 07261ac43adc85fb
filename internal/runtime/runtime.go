// Package runtime implements the generic and specialized intrinsic
// semantics that drive Rift's interpreter and JIT-compiled code alike.
// Every function here operates on internal/value heap objects allocated
// through an internal/gc.Collector; nothing in this package allocates
// through Go's own `new`/composite literals for a heap object.
package runtime

import (
	"unsafe"

	"rift/internal/errors"
	"rift/internal/gc"
	"rift/internal/pool"
	"rift/internal/value"
)

// Eval is supplied by the JIT driver (internal/jit) so genericEval and
// characterEval can parse, lower, compile, and run a character vector as
// Rift source without internal/runtime importing internal/jit (which
// itself imports internal/runtime for intrinsic execution — the cycle this
// indirection avoids). env is the environment the evaluated code runs
// against: the calling frame's own environment, so eval'd assignments land
// in the caller's scope.
type Eval func(rt *Runtime, env *value.Environment, source string) (value.Value, error)

// Runtime bundles the process-wide collaborators every intrinsic needs:
// the collector to allocate through, the pool to resolve interned strings
// and function templates, and the Eval hook for self-hosted evaluation.
type Runtime struct {
	GC   *gc.Collector
	Pool *pool.Pool
	Eval Eval
}

func New(c *gc.Collector, p *pool.Pool, eval Eval) *Runtime {
	return &Runtime{GC: c, Pool: p, Eval: eval}
}

// --- literals ---------------------------------------------------------------

func (rt *Runtime) DoubleVectorLiteral(lit []float64) *value.DoubleVector {
	cp := make([]float64, len(lit))
	copy(cp, lit)
	return value.NewDoubleVector(rt.GC, cp)
}

// CharacterVectorLiteral implements characterVectorLiteral(i): decodes the
// pool's string at poolIdx into a byte-per-element CharacterVector. The pool
// index names the whole literal's text (so equal literals share one pool
// entry); the resulting heap object holds its individual characters.
func (rt *Runtime) CharacterVectorLiteral(poolIdx int) *value.CharacterVector {
	return rt.characterVectorFromBytes([]byte(rt.Pool.String(poolIdx)))
}

func (rt *Runtime) characterVectorFromBytes(data []byte) *value.CharacterVector {
	cp := make([]byte, len(data))
	copy(cp, data)
	return value.NewCharacterVector(rt.GC, cp)
}

// --- environment --------------------------------------------------------

func (rt *Runtime) EnvGet(env *value.Environment, nameIdx int) (value.Value, error) {
	return env.Get(nameIdx, rt.Pool.String(nameIdx))
}

func (rt *Runtime) EnvSet(env *value.Environment, nameIdx int, v value.Value) {
	env.Set(rt.GC, nameIdx, v)
}

// --- generic dispatch helpers --------------------------------------------

func asDoubleVector(v value.Value) (*value.DoubleVector, bool) {
	dv, ok := v.(*value.DoubleVector)
	return dv, ok
}

func asCharacterVector(v value.Value) (*value.CharacterVector, bool) {
	cv, ok := v.(*value.CharacterVector)
	return cv, ok
}

// recycle returns the index into a vector of length n that result position
// i reads, cycling through a shorter vector the way every vector language's broadcasting rule does: the
// result length is the longer operand's length, and the shorter operand's
// elements repeat.
func recycle(i, n int) int { return i % n }

func broadcastLen(a, b int) (int, error) {
	if a == 0 || b == 0 {
		return 0, errors.NewBoundsError(0, 0)
	}
	if a > b {
		return a, nil
	}
	return b, nil
}

// --- generic arithmetic ---------------------------------------------------

type doubleOp func(x, y float64) float64

func (rt *Runtime) genericDoubleArith(a, b *value.DoubleVector, op doubleOp) (value.Value, error) {
	n, err := broadcastLen(a.Len(), b.Len())
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = op(a.Data[recycle(i, a.Len())], b.Data[recycle(i, b.Len())])
	}
	return rt.DoubleVectorLiteral(out), nil
}

func (rt *Runtime) GenericAdd(a, b value.Value) (value.Value, error) {
	if da, ok := asDoubleVector(a); ok {
		if db, ok := asDoubleVector(b); ok {
			return rt.genericDoubleArith(da, db, func(x, y float64) float64 { return x + y })
		}
	}
	if ca, ok := asCharacterVector(a); ok {
		if cb, ok := asCharacterVector(b); ok {
			return rt.CharacterAdd(ca, cb)
		}
	}
	return nil, errors.NewTypeError("+ requires two double vectors or two character vectors, got %s and %s", value.TypeName(a), value.TypeName(b))
}

func (rt *Runtime) genericArith(name string, a, b value.Value, op doubleOp) (value.Value, error) {
	da, ok1 := asDoubleVector(a)
	db, ok2 := asDoubleVector(b)
	if !ok1 || !ok2 {
		return nil, errors.NewTypeError("%s requires two double vectors, got %s and %s", name, value.TypeName(a), value.TypeName(b))
	}
	return rt.genericDoubleArith(da, db, op)
}

func (rt *Runtime) GenericSub(a, b value.Value) (value.Value, error) {
	return rt.genericArith("-", a, b, func(x, y float64) float64 { return x - y })
}

func (rt *Runtime) GenericMul(a, b value.Value) (value.Value, error) {
	return rt.genericArith("*", a, b, func(x, y float64) float64 { return x * y })
}

func (rt *Runtime) GenericDiv(a, b value.Value) (value.Value, error) {
	return rt.genericArith("/", a, b, func(x, y float64) float64 { return x / y })
}

// --- generic comparison ---------------------------------------------------

func (rt *Runtime) scalarBool(b bool) value.Value {
	if b {
		return rt.DoubleVectorLiteral([]float64{1})
	}
	return rt.DoubleVectorLiteral([]float64{0})
}

// GenericEq: cross-class operands are never equal; same-class vectors
// delegate to the class comparison; two functions compare equal iff they
// share a compiled entry, which holds exactly when they close over the
// same template.
func (rt *Runtime) GenericEq(a, b value.Value) (value.Value, error) {
	if value.TypeName(a) != value.TypeName(b) {
		return rt.scalarBool(false), nil
	}
	if da, ok := asDoubleVector(a); ok {
		db, _ := asDoubleVector(b)
		return rt.DoubleEq(da, db)
	}
	if fa, ok := a.(*value.Function); ok {
		fb := b.(*value.Function)
		return rt.scalarBool(fa.TemplateIndex == fb.TemplateIndex), nil
	}
	ca, _ := asCharacterVector(a)
	cb, _ := asCharacterVector(b)
	return rt.CharacterEq(ca, cb)
}

// GenericNeq mirrors GenericEq but, for the character class, delegates to
// CharacterNeq — which (see CharacterNeq's doc) computes element-wise
// equality rather than inequality.
func (rt *Runtime) GenericNeq(a, b value.Value) (value.Value, error) {
	if value.TypeName(a) != value.TypeName(b) {
		return rt.scalarBool(true), nil
	}
	if da, ok := asDoubleVector(a); ok {
		db, _ := asDoubleVector(b)
		return rt.DoubleNeq(da, db)
	}
	if fa, ok := a.(*value.Function); ok {
		fb := b.(*value.Function)
		return rt.scalarBool(fa.TemplateIndex != fb.TemplateIndex), nil
	}
	ca, _ := asCharacterVector(a)
	cb, _ := asCharacterVector(b)
	return rt.CharacterNeq(ca, cb)
}

func (rt *Runtime) GenericLt(a, b value.Value) (value.Value, error) {
	da, db, err := requireDoublePair("<", a, b)
	if err != nil {
		return nil, err
	}
	return rt.DoubleLt(da, db)
}

func (rt *Runtime) GenericGt(a, b value.Value) (value.Value, error) {
	da, db, err := requireDoublePair(">", a, b)
	if err != nil {
		return nil, err
	}
	return rt.DoubleGt(da, db)
}

func requireDoublePair(op string, a, b value.Value) (*value.DoubleVector, *value.DoubleVector, error) {
	da, ok1 := asDoubleVector(a)
	db, ok2 := asDoubleVector(b)
	if !ok1 || !ok2 {
		return nil, nil, errors.NewTypeError("%s requires two double vectors, got %s and %s", op, value.TypeName(a), value.TypeName(b))
	}
	return da, db, nil
}

// --- generic structural ---------------------------------------------------

// GenericGetElement indexes with a full double-vector index, 0-based: the
// result has the index vector's length, one lookup per index element (a
// scalar index is simply the length-1 case), matching genericGetElement's
// analysis type (DV unless the index is itself proven D1).
func (rt *Runtime) GenericGetElement(target, idx value.Value) (value.Value, error) {
	di, ok := asDoubleVector(idx)
	if !ok {
		return nil, errors.NewTypeError("index must be a double vector")
	}
	switch t := target.(type) {
	case *value.DoubleVector:
		return rt.DoubleGetElement(t, di)
	case *value.CharacterVector:
		return rt.CharacterGetElement(t, di)
	default:
		return nil, errors.NewTypeError("cannot index a %s", value.TypeName(target))
	}
}

// GenericSetElement assigns with a full double-vector index, 0-based: val
// recycles modulo its own length across the index positions, the same
// broadcast discipline as arithmetic.
func (rt *Runtime) GenericSetElement(target, idx, val value.Value) error {
	di, ok := asDoubleVector(idx)
	if !ok {
		return errors.NewTypeError("index must be a double vector")
	}
	switch t := target.(type) {
	case *value.DoubleVector:
		dv, ok := asDoubleVector(val)
		if !ok {
			return errors.NewTypeError("assigned value must be a double vector")
		}
		return rt.DoubleSetElement(t, di, dv)
	case *value.CharacterVector:
		cv, ok := asCharacterVector(val)
		if !ok {
			return errors.NewTypeError("assigned value must be a character vector")
		}
		return rt.CharacterSetElement(t, di, cv)
	default:
		return errors.NewTypeError("cannot index-assign into a %s", value.TypeName(target))
	}
}

// GenericC concatenates vectors sharing one class, dispatching an
// all-double argument list to DoubleC and an all-character list to
// CharacterC. Mixing the two classes (or passing a function) is a type
// error; zero arguments yield the empty double vector.
func (rt *Runtime) GenericC(args []value.Value) (value.Value, error) {
	if len(args) == 0 {
		return rt.DoubleVectorLiteral(nil), nil
	}
	allDouble, allChar := true, true
	for _, a := range args {
		if _, ok := asDoubleVector(a); !ok {
			allDouble = false
		}
		if _, ok := asCharacterVector(a); !ok {
			allChar = false
		}
	}
	switch {
	case allDouble:
		dvs := make([]*value.DoubleVector, len(args))
		for i, a := range args {
			dvs[i], _ = asDoubleVector(a)
		}
		return rt.DoubleC(dvs)
	case allChar:
		cvs := make([]*value.CharacterVector, len(args))
		for i, a := range args {
			cvs[i], _ = asCharacterVector(a)
		}
		return rt.CharacterC(cvs)
	default:
		return nil, errors.NewTypeError("c() cannot mix double and character vectors")
	}
}

// GenericLength implements length(): defined for vectors, a type error for
// functions.
func (rt *Runtime) GenericLength(v value.Value) (value.Value, error) {
	var n int
	switch t := v.(type) {
	case *value.DoubleVector:
		n = t.Len()
	case *value.CharacterVector:
		n = t.Len()
	case *value.FunctionArgs:
		n = len(t.Names)
	default:
		return nil, errors.NewTypeError("length() requires a vector, got %s", value.TypeName(v))
	}
	return rt.DoubleVectorLiteral([]float64{float64(n)}), nil
}

func (rt *Runtime) GenericType(v value.Value) value.Value {
	idx := rt.Pool.Intern(value.TypeName(v))
	return rt.CharacterVectorLiteral(idx)
}

// GenericEval parses, lowers, compiles, and runs source text held in a
// character vector, against the calling frame's environment. A
// non-character argument is a type error — eval never stringifies a double
// vector.
func (rt *Runtime) GenericEval(env *value.Environment, arg value.Value) (value.Value, error) {
	cv, ok := asCharacterVector(arg)
	if !ok {
		return nil, errors.NewTypeError("eval() requires a character vector, got %s", value.TypeName(arg))
	}
	return rt.CharacterEval(env, cv)
}

func (rt *Runtime) CharacterEval(env *value.Environment, cv *value.CharacterVector) (value.Value, error) {
	if rt.Eval == nil {
		panic("runtime: Eval hook not installed")
	}
	return rt.Eval(rt, env, string(cv.Bytes))
}

// --- closures and calls ----------------------------------------------------

func (rt *Runtime) CreateFunction(tmpl *value.Function, env *value.Environment) *value.Function {
	return tmpl.Close(rt.GC, env)
}

// Call: arity must match exactly, a fresh child environment binds each
// parameter, and the closed-over environment is this call's parent — not
// the caller's.
func (rt *Runtime) Call(fn *value.Function, args []value.Value) (value.Value, error) {
	if len(args) != fn.Arity() {
		return nil, errors.NewArityError(fn.Arity(), len(args))
	}
	callEnv := value.NewEnvironment(rt.GC, fn.Env)
	mark := rt.GC.PushRoot(unsafe.Pointer(callEnv.Header()))
	defer rt.GC.PopRoots(mark)
	if fn.Args != nil {
		for i, paramIdx := range fn.Args.Names {
			callEnv.Set(rt.GC, paramIdx, args[i])
		}
	}
	return fn.Code(callEnv, args)
}

// --- toBoolean --------------------------------------------------------------

// ToBoolean implements truthiness: a function is always
// true; a vector (of either class) is true iff it is non-empty and its
// first element is non-zero. Unlike arithmetic and comparison, this never
// requires length 1 — only the first element is consulted.
func (rt *Runtime) ToBoolean(v value.Value) (bool, error) {
	switch t := v.(type) {
	case *value.Function:
		return true, nil
	case *value.DoubleVector:
		return t.Len() > 0 && t.Data[0] != 0, nil
	case *value.CharacterVector:
		return t.Len() > 0 && t.Bytes[0] != 0, nil
	default:
		return false, errors.NewTypeError("cannot convert %s to a boolean", value.TypeName(v))
	}
}
