// Package analysis implements a fixed-point abstract-type analysis over
// Rift's SSA form, assigning every register one of a small lattice of
// static types.
package analysis

import (
	"rift/internal/ir"
)

// AType is one of the lattice points below. Values compare by
// identity; use the exported singletons, never construct an AType directly.
type AType struct {
	name string
	rank int
}

// The lattice points, ordered bottom to top.
var (
	Bottom          = AType{"bottom", 0}
	ScalarDouble    = AType{"D1", 1} // a DoubleVector statically known to have length 1
	DoubleVectorT   = AType{"DV", 2}
	CharacterVector = AType{"CV", 2}
	FunctionT       = AType{"F", 2}
	Top             = AType{"T", 3}
)

func (a AType) IsBottom() bool { return a == Bottom }
func (a AType) IsTop() bool    { return a == Top }
func (a AType) IsDoubleScalar() bool { return a == ScalarDouble }
func (a AType) IsDouble() bool { return a == ScalarDouble || a == DoubleVectorT }
func (a AType) IsCharacter() bool { return a == CharacterVector }
func (a AType) IsFunction() bool { return a == FunctionT }

// IsClass reports whether a names a single resolved value class — double
// vector (of either precision of length knowledge), character vector, or
// function — as opposed to Bottom or Top.
func (a AType) IsClass() bool {
	return a.IsDouble() || a.IsCharacter() || a.IsFunction()
}

// SameClass reports whether two resolved class points name the same value
// class (D1 and DV are both the double class).
func SameClass(a, b AType) bool {
	switch {
	case a.IsDouble():
		return b.IsDouble()
	case a.IsCharacter():
		return b.IsCharacter()
	case a.IsFunction():
		return b.IsFunction()
	default:
		return false
	}
}

// Merge is the lattice join: symmetric, idempotent, and defined pointwise
// over the lattice points. D1 merged with DV widens to DV (a scalar is a
// special case of a double vector); any two unrelated non-bottom points
// merge to Top; anything merged with Bottom is the other operand.
func Merge(a, b AType) AType {
	if a == b {
		return a
	}
	if a.IsBottom() {
		return b
	}
	if b.IsBottom() {
		return a
	}
	if (a == ScalarDouble && b == DoubleVectorT) || (a == DoubleVectorT && b == ScalarDouble) {
		return DoubleVectorT
	}
	return Top
}

// Scalar identifies the unboxed double behind a boxed scalar value: either
// an inline constant (a lowered literal's immediate) or the result register
// of an unboxed scalar instruction introduced by the unboxing rewrite.
type Scalar struct {
	Reg   ir.Reg
	Const float64
	IsReg bool
}

func ConstScalar(x float64) Scalar { return Scalar{Const: x} }
func RegScalar(r ir.Reg) Scalar    { return Scalar{Reg: r, IsReg: true} }

// Result holds the analysis's fixed point: one AType per SSA register,
// plus, for each register proven ScalarDouble by a boxing literal, a
// metadata link to the unboxed scalar that produced it. The metadata is
// what the unboxing rewriter consumes and maintains: it never widens, so
// it doesn't participate in the fixed-point iteration's change tracking.
type Result struct {
	regType  map[ir.Reg]AType
	metadata map[ir.Reg]Scalar
}

func (r *Result) TypeOf(reg ir.Reg) AType {
	if t, ok := r.regType[reg]; ok {
		return t
	}
	return Bottom
}

// Metadata returns the unboxed-scalar link for reg, if the analysis (or a
// later rewrite) recorded one.
func (r *Result) Metadata(reg ir.Reg) (Scalar, bool) {
	s, ok := r.metadata[reg]
	return s, ok
}

// MarkScalarBox records that reg is a boxed scalar whose unboxed source is
// s — the state update the unboxing rewrite performs after replacing an
// instruction, so the fresh literal is again ScalarDouble with metadata
// pointing at its scalar.
func (r *Result) MarkScalarBox(reg ir.Reg, s Scalar) {
	r.regType[reg] = ScalarDouble
	r.metadata[reg] = s
}

func (r *Result) set(reg ir.Reg, t AType) bool {
	old := r.TypeOf(reg)
	merged := Merge(old, t)
	if merged == old {
		return false
	}
	r.regType[reg] = merged
	return true
}

// Run computes the analysis's fixed point over fn by repeatedly visiting
// every instruction in every block until no register's abstract type
// changes. Flow is block-insensitive within one pass (every instruction is
// revisited every iteration) — acceptable because Merge is monotone and the
// lattice has finite height, so the loop always terminates.
func Run(fn *ir.Function) *Result {
	res := &Result{
		regType:  make(map[ir.Reg]AType),
		metadata: make(map[ir.Reg]Scalar),
	}
	for _, p := range fn.Params {
		res.set(p, Top) // arguments arrive with no static type
	}
	changed := true
	for changed {
		changed = false
		for _, b := range fn.Blocks {
			for _, instr := range b.Instrs {
				if transfer(res, instr) {
					changed = true
				}
			}
			if b.Term != nil && b.Term.Op == ir.Phi {
				if transfer(res, b.Term) {
					changed = true
				}
			}
		}
		for _, b := range fn.Blocks {
			for _, instr := range b.Instrs {
				if instr.Op == ir.Phi {
					if transfer(res, instr) {
						changed = true
					}
				}
			}
		}
	}
	return res
}

func transfer(res *Result, instr *ir.Instr) bool {
	switch instr.Op {
	case ir.DoubleVectorLiteral:
		if len(instr.Args) == 1 {
			// Rebox form: the literal boxes an unboxed scalar register.
			res.metadata[instr.Result] = RegScalar(instr.Args[0])
			return res.set(instr.Result, ScalarDouble)
		}
		lit, _ := instr.Imm.([]float64)
		if len(lit) == 1 {
			res.metadata[instr.Result] = ConstScalar(lit[0])
			return res.set(instr.Result, ScalarDouble)
		}
		return res.set(instr.Result, DoubleVectorT)
	case ir.CharacterVectorLiteral:
		return res.set(instr.Result, CharacterVector)
	case ir.GenericAdd, ir.GenericSub, ir.GenericMul, ir.GenericDiv:
		return res.set(instr.Result, Merge(res.TypeOf(instr.Args[0]), res.TypeOf(instr.Args[1])))
	case ir.GenericEq, ir.GenericNeq, ir.GenericLt, ir.GenericGt:
		return res.set(instr.Result, comparisonResult(res.TypeOf(instr.Args[0]), res.TypeOf(instr.Args[1])))
	case ir.GenericGetElement:
		return res.set(instr.Result, elementResult(res.TypeOf(instr.Args[0]), res.TypeOf(instr.Args[1])))
	case ir.GenericC:
		t := Bottom
		for _, a := range instr.Args {
			t = Merge(t, res.TypeOf(a))
		}
		if t.IsDouble() {
			t = DoubleVectorT // c() always widens to a vector, never a scalar
		}
		return res.set(instr.Result, t)
	case ir.GenericLength:
		return res.set(instr.Result, ScalarDouble)
	case ir.GenericType:
		return res.set(instr.Result, CharacterVector)
	case ir.Phi:
		t := Bottom
		for _, a := range instr.PhiArgs {
			t = Merge(t, res.TypeOf(a))
		}
		return res.set(instr.Result, t)
	case ir.CreateFunction:
		return res.set(instr.Result, FunctionT)
	case ir.EnvGet, ir.GenericEval:
		return res.set(instr.Result, Top)
	default:
		return false
	}
}

// comparisonResult implements the table's "D1 if both operands are D1 else
// DV": a comparison always produces a double vector (booleans are doubles),
// narrowing to a scalar only when both operands are themselves proven
// scalar; this holds regardless of class, since a cross-class comparison's
// scalar {0,1} result is itself a length-1 double vector.
func comparisonResult(a, b AType) AType {
	if a == ScalarDouble && b == ScalarDouble {
		return ScalarDouble
	}
	return DoubleVectorT
}

// elementResult mirrors the analysis table: indexing a double vector
// yields D1 only when the index is itself proven D1 (a single lookup),
// otherwise a full DV (the index vector's length, unknown until runtime);
// indexing a character vector always yields CV regardless of index shape.
func elementResult(target, idx AType) AType {
	switch {
	case target == CharacterVector:
		return CharacterVector
	case target.IsDouble():
		if idx.IsDoubleScalar() {
			return ScalarDouble
		}
		return DoubleVectorT
	default:
		return Top
	}
}
