// Package specialize implements the specialization rewrite pass. Where
// internal/unboxing folds proven-scalar arithmetic to primitive float ops,
// this pass replaces generic vector/character intrinsics with their
// type-monomorphic variants once internal/analysis has proven both
// operands' class, leaving anything analysis couldn't resolve as the
// generic (runtime-dispatching) intrinsic.
package specialize

import (
	"rift/internal/analysis"
	"rift/internal/ir"
)

var doubleArith = map[ir.Intrinsic]ir.Intrinsic{
	ir.GenericAdd: ir.DoubleAdd,
	ir.GenericSub: ir.DoubleSub,
	ir.GenericMul: ir.DoubleMul,
	ir.GenericDiv: ir.DoubleDiv,
}

// Run specializes every instruction in fn it can, using res's fixed point.
// Each case below either rewrites instr.Op in place or leaves it generic.
func Run(fn *ir.Function, res *analysis.Result) {
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			specializeInstr(instr, res)
		}
	}
}

func specializeInstr(instr *ir.Instr, res *analysis.Result) {
	switch instr.Op {
	case ir.GenericAdd, ir.GenericSub, ir.GenericMul, ir.GenericDiv:
		genericArithmetic(instr, res)
	case ir.GenericEq, ir.GenericNeq, ir.GenericLt, ir.GenericGt:
		genericRelational(instr, res)
	case ir.GenericGetElement:
		genericGetElement(instr, res)
	case ir.GenericC:
		genericC(instr, res)
	case ir.GenericEval:
		genericEval(instr, res)
	}
}

// genericArithmetic specializes arithmetic when both operands resolve to
// the same class. Character operands only ever flow through GenericAdd for
// string concatenation — Rift has no character subtraction/mul/div, so
// Sub/Mul/Div specialize only in the double case and Add additionally
// specializes two character operands to CharacterAdd; anything else is
// left generic so the
// runtime's own class check (internal/runtime genericAdd) can fail loudly
// on a real type mismatch.
func genericArithmetic(instr *ir.Instr, res *analysis.Result) {
	lt, rt := res.TypeOf(instr.Args[0]), res.TypeOf(instr.Args[1])
	if lt.IsDouble() && rt.IsDouble() {
		if sp, ok := doubleArith[instr.Op]; ok {
			instr.Op = sp
		}
		return
	}
	if instr.Op == ir.GenericAdd && lt.IsCharacter() && rt.IsCharacter() {
		instr.Op = ir.CharacterAdd
	}
}

// genericRelational handles both Eq and Neq dispatch: same-class operands
// delegate to the class's own comparison intrinsic, and operands whose
// classes provably differ constant-fold — two values of different classes
// are never equal, so == folds to the boxed scalar 0 and != to 1 without
// any runtime comparison at all. Lt/Gt on provably-mismatched classes are
// left generic so the runtime's own class check fails with the usual type
// error.
func genericRelational(instr *ir.Instr, res *analysis.Result) {
	lt, rt := res.TypeOf(instr.Args[0]), res.TypeOf(instr.Args[1])
	if lt.IsClass() && rt.IsClass() && !analysis.SameClass(lt, rt) {
		switch instr.Op {
		case ir.GenericEq:
			foldToScalar(instr, 0)
			return
		case ir.GenericNeq:
			foldToScalar(instr, 1)
			return
		}
	}
	switch {
	case lt.IsDouble() && rt.IsDouble():
		switch instr.Op {
		case ir.GenericEq:
			instr.Op = ir.DoubleEq
		case ir.GenericNeq:
			instr.Op = ir.DoubleNeq
		case ir.GenericLt:
			instr.Op = ir.DoubleLt
		case ir.GenericGt:
			instr.Op = ir.DoubleGt
		}
	case lt.IsCharacter() && rt.IsCharacter():
		switch instr.Op {
		case ir.GenericEq:
			instr.Op = ir.CharacterEq
		case ir.GenericNeq:
			// CharacterNeq computes element-wise equality rather than
			// inequality; internal/runtime.CharacterNeq reproduces that
			// bug-for-bug rather than silently fixing it.
			instr.Op = ir.CharacterNeq
		}
	}
}

// foldToScalar rewrites instr into a boxed length-1 literal holding x,
// dropping its operand uses (the operand instructions, if pure and
// otherwise unused, disappear in the dead-code pass that follows).
func foldToScalar(instr *ir.Instr, x float64) {
	instr.Op = ir.DoubleVectorLiteral
	instr.Args = nil
	instr.Imm = []float64{x}
}

// genericGetElement handles the vectorized cases left generic by
// unboxing's D1-index fold: a double target with a non-scalar double index
// specializes to the gather form, and likewise for a character target.
func genericGetElement(instr *ir.Instr, res *analysis.Result) {
	target := res.TypeOf(instr.Args[0])
	idx := res.TypeOf(instr.Args[1])
	switch {
	case target.IsDouble() && idx.IsDouble():
		instr.Op = ir.DoubleGetElement
	case target == analysis.CharacterVector && idx.IsDouble():
		instr.Op = ir.CharacterGetElement
	}
}

// genericC only fires when every operand resolved to the same class.
func genericC(instr *ir.Instr, res *analysis.Result) {
	if len(instr.Args) == 0 {
		return
	}
	allDouble, allChar := true, true
	for _, a := range instr.Args {
		t := res.TypeOf(a)
		if !t.IsDouble() {
			allDouble = false
		}
		if !t.IsCharacter() {
			allChar = false
		}
	}
	switch {
	case allDouble:
		instr.Op = ir.DoubleC
	case allChar:
		instr.Op = ir.CharacterC
	}
}

func genericEval(instr *ir.Instr, res *analysis.Result) {
	if res.TypeOf(instr.Args[0]).IsCharacter() {
		instr.Op = ir.CharacterEval
	}
}
