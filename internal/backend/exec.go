package backend

import (
	"fmt"
	"unsafe"

	"rift/internal/errors"
	rift "rift/internal/ir"
	"rift/internal/runtime"
	"rift/internal/value"
)

// Compiler resolves a function template (by its pool index) to a closed-
// enough *value.Function carrying its own compiled Entry, compiling it on
// first use. internal/jit supplies the concrete implementation (with
// singleflight memoization against reentrant/recursive eval); backend only
// depends on the function type to avoid importing jit, which itself
// imports backend to build each template's Entry.
type Compiler func(templateIdx int) (*value.Function, error)

// NewEntry returns the value.Entry that invokes fn's compiled body: a
// closure-threaded interpreter walking fn's basic blocks directly rather
// than executing real machine code (see backend.go's package doc).
func NewEntry(fn *rift.Function, rt *runtime.Runtime, compile Compiler) value.Entry {
	return func(callEnv *value.Environment, args []value.Value) (value.Value, error) {
		in := &interp{fn: fn, rt: rt, compile: compile, callEnv: callEnv}
		return in.run(args)
	}
}

type interp struct {
	fn      *rift.Function
	rt      *runtime.Runtime
	compile Compiler
	callEnv *value.Environment
	regs    []value.Value
	// scalars is the unboxed register file: the instructions the unboxing
	// rewrite introduces read and write raw doubles here instead of boxed
	// heap values. Scalar registers never hold heap pointers, so they need
	// no shadow-stack rooting.
	scalars  []float64
	rootBase int
}

// setReg writes both the register itself and its shadow-stack root slot, so
// a value computed here but not yet stored anywhere else stays reachable
// across any allocation a later instruction in this frame (or a nested
// call/eval) triggers. Rooting only the call environment (as runtime.Call
// does for its own frame) isn't enough: an instruction's result can be a
// freshly allocated object that nothing but this register holds onto yet.
func (in *interp) setReg(r rift.Reg, v value.Value) {
	in.regs[r] = v
	var p unsafe.Pointer
	if v != nil {
		p = unsafe.Pointer(v.Header())
	}
	in.rt.GC.SetRoot(in.rootBase+int(r), p)
}

func (in *interp) run(args []value.Value) (value.Value, error) {
	in.regs = make([]value.Value, in.fn.NumRegs)
	in.scalars = make([]float64, in.fn.NumRegs)
	in.rootBase = in.rt.GC.ReserveRoots(in.fn.NumRegs)
	defer in.rt.GC.PopRoots(in.rootBase)
	for i, p := range in.fn.Params {
		in.setReg(p, args[i])
	}

	var prev *rift.Block
	cur := in.fn.Entry
	for {
		for _, instr := range cur.Instrs {
			if instr.Op == rift.Phi {
				in.setReg(instr.Result, in.regs[instr.PhiArgs[predIndex(cur, prev)]])
				continue
			}
			if done, err := in.execScalar(instr); err != nil {
				return nil, err
			} else if done {
				continue
			}
			v, err := in.exec(instr)
			if err != nil {
				return nil, err
			}
			in.setReg(instr.Result, v)
		}
		term := cur.Term
		if term == nil {
			panic(fmt.Sprintf("backend: block %q has no terminator", cur.Name))
		}
		switch term.Op {
		case rift.Return:
			return in.regs[term.Args[0]], nil
		case rift.Jump:
			prev, cur = cur, cur.Succs[0]
		case rift.Branch:
			cond, err := in.rt.ToBoolean(in.regs[term.Args[0]])
			if err != nil {
				return nil, err
			}
			prev = cur
			if cond {
				cur = cur.Succs[0]
			} else {
				cur = cur.Succs[1]
			}
		default:
			panic(fmt.Sprintf("backend: block %q ends with non-terminator %v", cur.Name, term.Op))
		}
	}
}

func predIndex(b, prev *rift.Block) int {
	for i, p := range b.Preds {
		if p == prev {
			return i
		}
	}
	return 0
}

func (in *interp) reg(r rift.Reg) value.Value { return in.regs[r] }

// execScalar handles the unboxed-scalar instructions; their results live
// in the scalar register file, not the boxed one. Returns false for any
// instruction that belongs to the boxed dispatch in exec.
func (in *interp) execScalar(instr *rift.Instr) (bool, error) {
	s := in.scalars
	switch instr.Op {
	case rift.ScalarLiteral:
		s[instr.Result] = instr.Imm.(float64)
	case rift.PrimAdd:
		s[instr.Result] = s[instr.Args[0]] + s[instr.Args[1]]
	case rift.PrimSub:
		s[instr.Result] = s[instr.Args[0]] - s[instr.Args[1]]
	case rift.PrimMul:
		s[instr.Result] = s[instr.Args[0]] * s[instr.Args[1]]
	case rift.PrimDiv:
		s[instr.Result] = s[instr.Args[0]] / s[instr.Args[1]]
	case rift.PrimEq:
		s[instr.Result] = boolToDouble(s[instr.Args[0]] == s[instr.Args[1]])
	case rift.PrimNeq:
		s[instr.Result] = boolToDouble(s[instr.Args[0]] != s[instr.Args[1]])
	case rift.PrimLt:
		s[instr.Result] = boolToDouble(s[instr.Args[0]] < s[instr.Args[1]])
	case rift.PrimGt:
		s[instr.Result] = boolToDouble(s[instr.Args[0]] > s[instr.Args[1]])
	case rift.ScalarFromVector:
		s[instr.Result] = in.rt.ScalarFromVector(in.dv(instr.Args[0]))
	case rift.DoubleGetSingleElement:
		x, err := in.rt.DoubleGetSingleElement(in.dv(instr.Args[0]), int(s[instr.Args[1]]))
		if err != nil {
			return true, err
		}
		s[instr.Result] = x
	default:
		return false, nil
	}
	return true, nil
}

func boolToDouble(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (in *interp) exec(instr *rift.Instr) (value.Value, error) {
	rt := in.rt
	switch instr.Op {
	case rift.DoubleVectorLiteral:
		if len(instr.Args) == 1 { // rebox form: box an unboxed scalar register
			return rt.DoubleVectorLiteral([]float64{in.scalars[instr.Args[0]]}), nil
		}
		return rt.DoubleVectorLiteral(instr.Imm.([]float64)), nil
	case rift.CharacterVectorLiteral:
		return rt.CharacterVectorLiteral(instr.Imm.(int)), nil
	case rift.EnvGet:
		return rt.EnvGet(in.callEnv, instr.Imm.(int))
	case rift.EnvSet:
		rt.EnvSet(in.callEnv, instr.Imm.(int), in.reg(instr.Args[0]))
		return in.reg(instr.Args[0]), nil
	case rift.GenericAdd:
		return rt.GenericAdd(in.reg(instr.Args[0]), in.reg(instr.Args[1]))
	case rift.GenericSub:
		return rt.GenericSub(in.reg(instr.Args[0]), in.reg(instr.Args[1]))
	case rift.GenericMul:
		return rt.GenericMul(in.reg(instr.Args[0]), in.reg(instr.Args[1]))
	case rift.GenericDiv:
		return rt.GenericDiv(in.reg(instr.Args[0]), in.reg(instr.Args[1]))
	case rift.GenericEq:
		return rt.GenericEq(in.reg(instr.Args[0]), in.reg(instr.Args[1]))
	case rift.GenericNeq:
		return rt.GenericNeq(in.reg(instr.Args[0]), in.reg(instr.Args[1]))
	case rift.GenericLt:
		return rt.GenericLt(in.reg(instr.Args[0]), in.reg(instr.Args[1]))
	case rift.GenericGt:
		return rt.GenericGt(in.reg(instr.Args[0]), in.reg(instr.Args[1]))
	case rift.GenericGetElement:
		return rt.GenericGetElement(in.reg(instr.Args[0]), in.reg(instr.Args[1]))
	case rift.GenericSetElement:
		if err := rt.GenericSetElement(in.reg(instr.Args[0]), in.reg(instr.Args[1]), in.reg(instr.Args[2])); err != nil {
			return nil, err
		}
		return in.reg(instr.Args[2]), nil
	case rift.GenericC:
		return rt.GenericC(in.regSlice(instr.Args))
	case rift.GenericLength:
		return rt.GenericLength(in.reg(instr.Args[0]))
	case rift.GenericType:
		return rt.GenericType(in.reg(instr.Args[0])), nil
	case rift.GenericEval:
		return rt.GenericEval(in.callEnv, in.reg(instr.Args[0]))
	case rift.CreateFunction:
		tmpl, err := in.compile(instr.Imm.(int))
		if err != nil {
			return nil, err
		}
		return rt.CreateFunction(tmpl, in.callEnv), nil
	case rift.Call:
		callee, ok := in.reg(instr.Args[0]).(*value.Function)
		if !ok {
			return nil, errors.NewTypeError("cannot call a %s", value.TypeName(in.reg(instr.Args[0])))
		}
		return rt.Call(callee, in.regSlice(instr.Args[1:]))
	case rift.ToBoolean:
		b, err := rt.ToBoolean(in.reg(instr.Args[0]))
		if err != nil {
			return nil, err
		}
		if b {
			return rt.DoubleVectorLiteral([]float64{1}), nil
		}
		return rt.DoubleVectorLiteral([]float64{0}), nil

	case rift.DoubleAdd:
		return rt.DoubleAdd(in.dv(instr.Args[0]), in.dv(instr.Args[1]))
	case rift.DoubleSub:
		return rt.DoubleSub(in.dv(instr.Args[0]), in.dv(instr.Args[1]))
	case rift.DoubleMul:
		return rt.DoubleMul(in.dv(instr.Args[0]), in.dv(instr.Args[1]))
	case rift.DoubleDiv:
		return rt.DoubleDiv(in.dv(instr.Args[0]), in.dv(instr.Args[1]))
	case rift.DoubleEq:
		return rt.DoubleEq(in.dv(instr.Args[0]), in.dv(instr.Args[1]))
	case rift.DoubleNeq:
		return rt.DoubleNeq(in.dv(instr.Args[0]), in.dv(instr.Args[1]))
	case rift.DoubleLt:
		return rt.DoubleLt(in.dv(instr.Args[0]), in.dv(instr.Args[1]))
	case rift.DoubleGt:
		return rt.DoubleGt(in.dv(instr.Args[0]), in.dv(instr.Args[1]))
	case rift.DoubleGetElement:
		return rt.DoubleGetElement(in.dv(instr.Args[0]), in.dv(instr.Args[1]))
	case rift.CharacterGetElement:
		return rt.CharacterGetElement(in.cv(instr.Args[0]), in.dv(instr.Args[1]))
	case rift.DoubleSetElement:
		v := in.dv(instr.Args[0])
		if err := rt.DoubleSetElement(v, in.dv(instr.Args[1]), in.dv(instr.Args[2])); err != nil {
			return nil, err
		}
		return in.reg(instr.Args[2]), nil
	case rift.ScalarSetElement:
		v := in.dv(instr.Args[0])
		idx := in.dv(instr.Args[1]).Data[0]
		val := in.dv(instr.Args[2]).Data[0]
		if err := rt.ScalarSetElement(v, idx, val); err != nil {
			return nil, err
		}
		return in.reg(instr.Args[2]), nil
	case rift.CharacterSetElement:
		v := in.cv(instr.Args[0])
		if err := rt.CharacterSetElement(v, in.dv(instr.Args[1]), in.cv(instr.Args[2])); err != nil {
			return nil, err
		}
		return in.reg(instr.Args[2]), nil
	case rift.CharacterAdd:
		return rt.CharacterAdd(in.cv(instr.Args[0]), in.cv(instr.Args[1]))
	case rift.CharacterEq:
		return rt.CharacterEq(in.cv(instr.Args[0]), in.cv(instr.Args[1]))
	case rift.CharacterNeq:
		return rt.CharacterNeq(in.cv(instr.Args[0]), in.cv(instr.Args[1]))
	case rift.CharacterEval:
		return rt.CharacterEval(in.callEnv, in.cv(instr.Args[0]))
	case rift.DoubleC:
		dvs := make([]*value.DoubleVector, len(instr.Args))
		for i, a := range instr.Args {
			dvs[i] = in.dv(a)
		}
		return rt.DoubleC(dvs)
	case rift.CharacterC:
		cvs := make([]*value.CharacterVector, len(instr.Args))
		for i, a := range instr.Args {
			cvs[i] = in.cv(a)
		}
		return rt.CharacterC(cvs)
	default:
		panic(fmt.Sprintf("backend: unimplemented intrinsic %v", instr.Op))
	}
}

func (in *interp) regSlice(regs []rift.Reg) []value.Value {
	out := make([]value.Value, len(regs))
	for i, r := range regs {
		out[i] = in.reg(r)
	}
	return out
}

func (in *interp) dv(r rift.Reg) *value.DoubleVector {
	v, _ := in.reg(r).(*value.DoubleVector)
	return v
}

func (in *interp) cv(r rift.Reg) *value.CharacterVector {
	v, _ := in.reg(r).(*value.CharacterVector)
	return v
}
