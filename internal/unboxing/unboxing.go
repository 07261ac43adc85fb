// Package unboxing implements the unboxing rewrite: generic arithmetic,
// comparison, and indexing over values the analysis proved to be boxed
// scalars is replaced by primitive IEEE-754 instructions on unboxed
// doubles, with the result boxed back through a fresh doubleVectorLiteral.
//
// The rewrite is metadata-directed. The analysis records, for every
// register a boxing literal proved ScalarDouble, a link to the unboxed
// scalar behind it (the literal's constant, or a scalar register an
// earlier rewrite introduced). Each rewritten instruction's replacement
// literal is marked ScalarDouble with metadata pointing at its own scalar,
// so a chain like 1+2+3 unboxes end to end; every use of the old result is
// redirected to the new literal and the old instruction is deleted.
package unboxing

import (
	"rift/internal/analysis"
	"rift/internal/ir"
)

// scalarArith maps a generic arithmetic/comparison intrinsic to the
// primitive scalar instruction it unboxes to.
var scalarArith = map[ir.Intrinsic]ir.Intrinsic{
	ir.GenericAdd: ir.PrimAdd,
	ir.GenericSub: ir.PrimSub,
	ir.GenericMul: ir.PrimMul,
	ir.GenericDiv: ir.PrimDiv,
	ir.GenericEq:  ir.PrimEq,
	ir.GenericNeq: ir.PrimNeq,
	ir.GenericLt:  ir.PrimLt,
	ir.GenericGt:  ir.PrimGt,
}

// Run rewrites fn in place, updating res as it goes. It is idempotent: a
// rewritten site no longer carries a generic opcode, so a second Run over
// the same fn and res changes nothing.
func Run(fn *ir.Function, res *analysis.Result) {
	u := &rewriter{fn: fn, res: res, repl: make(map[ir.Reg]ir.Reg)}
	for _, b := range fn.Blocks {
		u.rewriteBlock(b)
	}
	u.replaceUses()
}

type rewriter struct {
	fn   *ir.Function
	res  *analysis.Result
	out  []*ir.Instr
	repl map[ir.Reg]ir.Reg // old result -> replacement literal's result
}

func (u *rewriter) rewriteBlock(b *ir.Block) {
	u.out = b.Instrs[:0:0]
	for _, instr := range b.Instrs {
		if prim, ok := scalarArith[instr.Op]; ok && u.rewriteArith(instr, prim) {
			continue
		}
		if instr.Op == ir.GenericGetElement && u.rewriteGetElement(instr) {
			continue
		}
		u.out = append(u.out, instr)
	}
	b.Instrs = u.out
}

// rewriteArith unboxes one generic arithmetic/comparison site whose
// operands are both proven boxed scalars with known unboxed sources:
// the primitive op runs on the scalars and a fresh literal boxes the
// result. The old instruction is dropped from the block; its uses are
// redirected to the new literal at the end of the pass.
func (u *rewriter) rewriteArith(instr *ir.Instr, prim ir.Intrinsic) bool {
	la, aok := u.scalarOperand(instr.Args[0])
	lb, bok := u.scalarOperand(instr.Args[1])
	if !aok || !bok {
		return false
	}
	sa := u.materialize(la)
	sb := u.materialize(lb)
	p := &ir.Instr{Op: prim, Args: []ir.Reg{sa, sb}, Result: u.fn.NewReg()}
	u.out = append(u.out, p)
	u.box(instr.Result, p.Result)
	return true
}

// rewriteGetElement unboxes genericGetElement over a double vector with a
// proven-scalar index: a doubleGetSingleElement yields the raw double,
// boxed back the same way as arithmetic.
func (u *rewriter) rewriteGetElement(instr *ir.Instr) bool {
	if !u.res.TypeOf(instr.Args[0]).IsDouble() {
		return false
	}
	idx, ok := u.scalarOperand(instr.Args[1])
	if !ok {
		return false
	}
	si := u.materialize(idx)
	get := &ir.Instr{Op: ir.DoubleGetSingleElement, Args: []ir.Reg{instr.Args[0], si}, Result: u.fn.NewReg()}
	u.out = append(u.out, get)
	u.box(instr.Result, get.Result)
	return true
}

// scalarOperand reports the unboxed scalar behind reg, requiring both the
// ScalarDouble proof and the metadata link.
func (u *rewriter) scalarOperand(reg ir.Reg) (analysis.Scalar, bool) {
	if !u.res.TypeOf(reg).IsDoubleScalar() {
		return analysis.Scalar{}, false
	}
	return u.res.Metadata(reg)
}

// materialize turns a Scalar into a scalar register at the current
// insertion point. A register link is used as-is (its defining instruction
// sits with the boxed definition it came from, which dominates every use
// of that definition); a constant gets a fresh ScalarLiteral per use site,
// since hoisting one shared literal could place it on a path that doesn't
// dominate a sibling branch's use.
func (u *rewriter) materialize(s analysis.Scalar) ir.Reg {
	if s.IsReg {
		return s.Reg
	}
	lit := &ir.Instr{Op: ir.ScalarLiteral, Result: u.fn.NewReg(), Imm: s.Const}
	u.out = append(u.out, lit)
	return lit.Result
}

// box emits the rebox literal for scalar, records the replacement for the
// old result, and updates the analysis state: the new literal is again
// ScalarDouble with metadata pointing at scalar. The old result gets the
// same metadata so a later instruction in this same pass that still names
// it (its operands are rewritten only at the end) can keep unboxing
// through it.
func (u *rewriter) box(old, scalar ir.Reg) {
	lit := &ir.Instr{Op: ir.DoubleVectorLiteral, Args: []ir.Reg{scalar}, Result: u.fn.NewReg()}
	u.out = append(u.out, lit)
	u.res.MarkScalarBox(lit.Result, analysis.RegScalar(scalar))
	u.res.MarkScalarBox(old, analysis.RegScalar(scalar))
	u.repl[old] = lit.Result
}

// replaceUses redirects every remaining use of a deleted instruction's
// result to its replacement literal, across all blocks and terminators.
func (u *rewriter) replaceUses() {
	if len(u.repl) == 0 {
		return
	}
	sub := func(r ir.Reg) ir.Reg {
		if n, ok := u.repl[r]; ok {
			return n
		}
		return r
	}
	for _, b := range u.fn.Blocks {
		for _, instr := range b.Instrs {
			for i, a := range instr.Args {
				instr.Args[i] = sub(a)
			}
			for i, a := range instr.PhiArgs {
				instr.PhiArgs[i] = sub(a)
			}
		}
		if b.Term != nil {
			for i, a := range b.Term.Args {
				b.Term.Args[i] = sub(a)
			}
		}
	}
}
