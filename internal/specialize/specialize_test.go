package specialize

import (
	"testing"

	"rift/internal/analysis"
	"rift/internal/ir"
)

func oneBlockFunc() (*ir.Function, *ir.Block) {
	fn := &ir.Function{Name: "test"}
	b := fn.NewBlock("entry")
	fn.Entry = b
	return fn, b
}

func literal(fn *ir.Function, b *ir.Block, lit []float64) ir.Reg {
	r := fn.NewReg()
	b.Emit(&ir.Instr{Op: ir.DoubleVectorLiteral, Result: r, Imm: lit})
	return r
}

func charLiteral(fn *ir.Function, b *ir.Block) ir.Reg {
	r := fn.NewReg()
	b.Emit(&ir.Instr{Op: ir.CharacterVectorLiteral, Result: r})
	return r
}

func TestSpecializeVectorArithmetic(t *testing.T) {
	fn, b := oneBlockFunc()
	x := literal(fn, b, []float64{1, 2, 3})
	y := literal(fn, b, []float64{1, 2})
	sum := fn.NewReg()
	addInstr := &ir.Instr{Op: ir.GenericAdd, Args: []ir.Reg{x, y}, Result: sum}
	b.Emit(addInstr)
	b.SetTerm(&ir.Instr{Op: ir.Return, Args: []ir.Reg{sum}})

	res := analysis.Run(fn)
	Run(fn, res)

	if addInstr.Op != ir.DoubleAdd {
		t.Fatalf("got op %v, want DoubleAdd", addInstr.Op)
	}
}

func TestSpecializeCharacterAdd(t *testing.T) {
	fn, b := oneBlockFunc()
	s1 := charLiteral(fn, b)
	s2 := charLiteral(fn, b)
	catInstr := &ir.Instr{Op: ir.GenericAdd, Args: []ir.Reg{s1, s2}, Result: fn.NewReg()}
	b.Emit(catInstr)
	b.SetTerm(&ir.Instr{Op: ir.Return, Args: []ir.Reg{catInstr.Result}})

	res := analysis.Run(fn)
	Run(fn, res)

	if catInstr.Op != ir.CharacterAdd {
		t.Fatalf("got op %v, want CharacterAdd", catInstr.Op)
	}
}

// TestSpecializeEqDispatchesByClass covers same-class specialization and
// the documented CharacterNeq-computes-equality bug-for-bug behavior.
func TestSpecializeEqDispatchesByClass(t *testing.T) {
	fn, b := oneBlockFunc()
	x := literal(fn, b, []float64{1, 2, 3})
	y := literal(fn, b, []float64{1, 2, 3})
	eqInstr := &ir.Instr{Op: ir.GenericEq, Args: []ir.Reg{x, y}, Result: fn.NewReg()}
	b.Emit(eqInstr)

	s1 := charLiteral(fn, b)
	s2 := charLiteral(fn, b)
	neqInstr := &ir.Instr{Op: ir.GenericNeq, Args: []ir.Reg{s1, s2}, Result: fn.NewReg()}
	b.Emit(neqInstr)
	b.SetTerm(&ir.Instr{Op: ir.Return, Args: []ir.Reg{eqInstr.Result}})

	res := analysis.Run(fn)
	Run(fn, res)

	if eqInstr.Op != ir.DoubleEq {
		t.Fatalf("got op %v, want DoubleEq", eqInstr.Op)
	}
	if neqInstr.Op != ir.CharacterNeq {
		t.Fatalf("got op %v, want CharacterNeq", neqInstr.Op)
	}
}

// TestCrossClassEqConstantFolds: once analysis proves the two operand
// classes differ, == folds to the boxed scalar 0 and != to 1 at compile
// time — no runtime comparison remains.
func TestCrossClassEqConstantFolds(t *testing.T) {
	fn, b := oneBlockFunc()
	x := literal(fn, b, []float64{1})
	s := charLiteral(fn, b)
	eqInstr := &ir.Instr{Op: ir.GenericEq, Args: []ir.Reg{x, s}, Result: fn.NewReg()}
	b.Emit(eqInstr)
	neqInstr := &ir.Instr{Op: ir.GenericNeq, Args: []ir.Reg{x, s}, Result: fn.NewReg()}
	b.Emit(neqInstr)
	b.SetTerm(&ir.Instr{Op: ir.Return, Args: []ir.Reg{eqInstr.Result}})

	res := analysis.Run(fn)
	Run(fn, res)

	if eqInstr.Op != ir.DoubleVectorLiteral {
		t.Fatalf("got op %v, want DoubleVectorLiteral (folded)", eqInstr.Op)
	}
	if lit := eqInstr.Imm.([]float64); len(lit) != 1 || lit[0] != 0 {
		t.Fatalf("cross-class == folded to %v, want [0]", lit)
	}
	if lit := neqInstr.Imm.([]float64); neqInstr.Op != ir.DoubleVectorLiteral || len(lit) != 1 || lit[0] != 1 {
		t.Fatalf("cross-class != folded to (%v, %v), want DoubleVectorLiteral [1]", neqInstr.Op, neqInstr.Imm)
	}
}

// TestCrossClassLtStaysGeneric: only ==/!= fold on a proven class
// mismatch; < and > keep their generic form so the runtime raises the
// type error a mismatched ordering comparison deserves.
func TestCrossClassLtStaysGeneric(t *testing.T) {
	fn, b := oneBlockFunc()
	x := literal(fn, b, []float64{1})
	s := charLiteral(fn, b)
	ltInstr := &ir.Instr{Op: ir.GenericLt, Args: []ir.Reg{x, s}, Result: fn.NewReg()}
	b.Emit(ltInstr)
	b.SetTerm(&ir.Instr{Op: ir.Return, Args: []ir.Reg{ltInstr.Result}})

	res := analysis.Run(fn)
	Run(fn, res)

	if ltInstr.Op != ir.GenericLt {
		t.Fatalf("got op %v, want GenericLt (left generic)", ltInstr.Op)
	}
}

func TestSpecializeGetElementByTargetClass(t *testing.T) {
	fn, b := oneBlockFunc()
	vec := literal(fn, b, []float64{1, 2, 3})
	idx := literal(fn, b, []float64{0, 1})
	doubleGet := &ir.Instr{Op: ir.GenericGetElement, Args: []ir.Reg{vec, idx}, Result: fn.NewReg()}
	b.Emit(doubleGet)

	cv := charLiteral(fn, b)
	charGet := &ir.Instr{Op: ir.GenericGetElement, Args: []ir.Reg{cv, idx}, Result: fn.NewReg()}
	b.Emit(charGet)
	b.SetTerm(&ir.Instr{Op: ir.Return, Args: []ir.Reg{doubleGet.Result}})

	res := analysis.Run(fn)
	Run(fn, res)

	if doubleGet.Op != ir.DoubleGetElement {
		t.Fatalf("got op %v, want DoubleGetElement", doubleGet.Op)
	}
	if charGet.Op != ir.CharacterGetElement {
		t.Fatalf("got op %v, want CharacterGetElement", charGet.Op)
	}
}

func TestSpecializeC(t *testing.T) {
	fn, b := oneBlockFunc()
	x := literal(fn, b, []float64{1})
	y := literal(fn, b, []float64{2, 3})
	cInstr := &ir.Instr{Op: ir.GenericC, Args: []ir.Reg{x, y}, Result: fn.NewReg()}
	b.Emit(cInstr)
	b.SetTerm(&ir.Instr{Op: ir.Return, Args: []ir.Reg{cInstr.Result}})

	res := analysis.Run(fn)
	Run(fn, res)

	if cInstr.Op != ir.DoubleC {
		t.Fatalf("got op %v, want DoubleC", cInstr.Op)
	}
}

// TestIdempotentSpecialize covers property 4 on the specialize pass: a
// second run over already-specialized IR leaves it unchanged, since a
// specialized opcode no longer matches any of specializeInstr's generic
// cases.
func TestIdempotentSpecialize(t *testing.T) {
	fn, b := oneBlockFunc()
	x := literal(fn, b, []float64{1, 2, 3})
	y := literal(fn, b, []float64{1, 2})
	sum := fn.NewReg()
	b.Emit(&ir.Instr{Op: ir.GenericAdd, Args: []ir.Reg{x, y}, Result: sum})
	b.SetTerm(&ir.Instr{Op: ir.Return, Args: []ir.Reg{sum}})

	res := analysis.Run(fn)
	Run(fn, res)

	firstPass := make([]ir.Intrinsic, len(b.Instrs))
	for i, instr := range b.Instrs {
		firstPass[i] = instr.Op
	}

	Run(fn, res)

	for i, instr := range b.Instrs {
		if instr.Op != firstPass[i] {
			t.Fatalf("instruction %d changed on second run: %v -> %v", i, firstPass[i], instr.Op)
		}
	}
}
