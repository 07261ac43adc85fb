// Package lower implements AST-to-SSA lowering. It walks
// the parser AST with the Accept/Visitor protocol and emits internal/ir
// instructions via a Lowerer struct holding mutable compile state, one
// Visit method per node kind, targeting SSA form with explicit basic
// blocks and PHI nodes at every join point.
package lower

import (
	"rift/internal/ir"
	"rift/internal/parser"
	"rift/internal/pool"
)

// Lowerer turns one Fun (or the top-level program, treated as a zero-
// parameter Fun) into an ir.Function. A fresh Lowerer is used per function
// literal; nested function literals recurse into a child Lowerer that
// shares the same pool so lexical references to enclosing names resolve at
// runtime through envGet's parent-chain walk rather than at lowering time —
// Rift has no static closure capture analysis.
type Lowerer struct {
	pool *pool.Pool
	fn   *ir.Function
	cur  *ir.Block
	// There is no locals table: Rift has no lexical slot allocation, so
	// every variable reference lowers to an envGet/envSet on the name's
	// pool index.
}

// Lower lowers one top-level program or function body into an ir.Function
// and registers it as a new template in p, returning the template's pool
// index.
func Lower(p *pool.Pool, name string, params []string, body *parser.Seq) (*ir.Function, int) {
	paramIdx := make([]int, len(params))
	for i, name := range params {
		paramIdx[i] = p.Intern(name)
	}
	tmpl := p.NewTemplate(params)
	fn := &ir.Function{Name: name, PoolIndex: tmpl.Index}
	l := &Lowerer{pool: p, fn: fn}
	fn.Entry = fn.NewBlock("entry")
	l.cur = fn.Entry
	fn.Params = make([]ir.Reg, len(params))
	for i := range params {
		fn.Params[i] = fn.NewReg()
	}
	result := l.lowerSeq(body)
	if l.cur.Term == nil {
		l.cur.SetTerm(&ir.Instr{Op: ir.Return, Args: []ir.Reg{result}})
	}
	tmpl.Body = fn
	return fn, tmpl.Index
}

func (l *Lowerer) emit(op ir.Intrinsic, imm interface{}, args ...ir.Reg) ir.Reg {
	r := l.fn.NewReg()
	l.cur.Emit(&ir.Instr{Op: op, Args: args, Result: r, Imm: imm})
	return r
}

// lowerSeq lowers a statement list, returning the register holding the
// value of its final statement: every Seq evaluates to the
// value of its last statement, or 0 if empty.
func (l *Lowerer) lowerSeq(s *parser.Seq) ir.Reg {
	var last ir.Reg
	any := false
	for _, stmt := range s.Stmts {
		last = l.lower(stmt)
		any = true
	}
	if !any {
		return l.emit(ir.DoubleVectorLiteral, []float64{0})
	}
	return last
}

func (l *Lowerer) lower(n parser.Node) ir.Reg {
	return n.Accept(l).(ir.Reg)
}

func (l *Lowerer) VisitNum(n *parser.Num) interface{} {
	return l.emit(ir.DoubleVectorLiteral, []float64{n.Value})
}

func (l *Lowerer) VisitStr(n *parser.Str) interface{} {
	return l.emit(ir.CharacterVectorLiteral, n.PoolIndex)
}

func (l *Lowerer) VisitVar(n *parser.Var) interface{} {
	idx := l.pool.Intern(n.Name)
	return l.emit(ir.EnvGet, idx)
}

func (l *Lowerer) VisitSeq(n *parser.Seq) interface{} {
	return l.lowerSeq(n)
}

func (l *Lowerer) VisitFun(n *parser.Fun) interface{} {
	_, tmplIdx := Lower(l.pool, "<anonymous>", n.Params, n.Body)
	return l.emit(ir.CreateFunction, tmplIdx)
}

var binOpIntrinsic = map[parser.BinOp]ir.Intrinsic{
	parser.OpAdd: ir.GenericAdd,
	parser.OpSub: ir.GenericSub,
	parser.OpMul: ir.GenericMul,
	parser.OpDiv: ir.GenericDiv,
	parser.OpEq:  ir.GenericEq,
	parser.OpNeq: ir.GenericNeq,
	parser.OpLt:  ir.GenericLt,
	parser.OpGt:  ir.GenericGt,
}

func (l *Lowerer) VisitBinExp(n *parser.BinExp) interface{} {
	left := l.lower(n.Left)
	right := l.lower(n.Right)
	return l.emit(binOpIntrinsic[n.Op], nil, left, right)
}

func (l *Lowerer) VisitUserCall(n *parser.UserCall) interface{} {
	callee := l.lower(n.Callee)
	args := make([]ir.Reg, 0, len(n.Args)+1)
	args = append(args, callee)
	for _, a := range n.Args {
		args = append(args, l.lower(a))
	}
	return l.emit(ir.Call, nil, args...)
}

func (l *Lowerer) VisitCCall(n *parser.CCall) interface{} {
	args := make([]ir.Reg, len(n.Args))
	for i, a := range n.Args {
		args[i] = l.lower(a)
	}
	return l.emit(ir.GenericC, nil, args...)
}

func (l *Lowerer) VisitEvalCall(n *parser.EvalCall) interface{} {
	arg := l.lower(n.Arg)
	return l.emit(ir.GenericEval, nil, arg)
}

func (l *Lowerer) VisitTypeCall(n *parser.TypeCall) interface{} {
	arg := l.lower(n.Arg)
	return l.emit(ir.GenericType, nil, arg)
}

func (l *Lowerer) VisitLengthCall(n *parser.LengthCall) interface{} {
	arg := l.lower(n.Arg)
	return l.emit(ir.GenericLength, nil, arg)
}

func (l *Lowerer) VisitIndex(n *parser.Index) interface{} {
	target := l.lower(n.Target)
	idx := l.lower(n.Idx)
	return l.emit(ir.GenericGetElement, nil, target, idx)
}

func (l *Lowerer) VisitSimpleAssignment(n *parser.SimpleAssignment) interface{} {
	val := l.lower(n.Value)
	idx := l.pool.Intern(n.Name)
	l.emit(ir.EnvSet, idx, val)
	return val
}

func (l *Lowerer) VisitIndexAssignment(n *parser.IndexAssignment) interface{} {
	target := l.lower(n.Target)
	idx := l.lower(n.Idx)
	val := l.lower(n.Value)
	l.emit(ir.GenericSetElement, nil, target, idx, val)
	return val
}

// VisitIfElse lowers to a three-block diamond (cond/then/else) merging into
// a join block with a single Phi over the two arm results.
func (l *Lowerer) VisitIfElse(n *parser.IfElse) interface{} {
	cond := l.lower(n.Cond)
	boolReg := l.emit(ir.ToBoolean, nil, cond)
	thenBlock := l.fn.NewBlock("if.then")
	elseBlock := l.fn.NewBlock("if.else")
	joinBlock := l.fn.NewBlock("if.join")

	condBlock := l.cur
	condBlock.SetTerm(&ir.Instr{Op: ir.Branch, Args: []ir.Reg{boolReg}})
	ir.Link(condBlock, thenBlock)
	ir.Link(condBlock, elseBlock)

	l.cur = thenBlock
	thenVal := l.lowerSeq(n.Then)
	thenEnd := l.cur
	thenEnd.SetTerm(&ir.Instr{Op: ir.Jump})
	ir.Link(thenEnd, joinBlock)

	l.cur = elseBlock
	elseVal := l.lowerSeq(n.Else)
	elseEnd := l.cur
	elseEnd.SetTerm(&ir.Instr{Op: ir.Jump})
	ir.Link(elseEnd, joinBlock)

	l.cur = joinBlock
	result := l.fn.NewReg()
	joinBlock.Emit(&ir.Instr{Op: ir.Phi, Result: result, PhiArgs: []ir.Reg{thenVal, elseVal}})
	return result
}

// VisitWhileLoop lowers to a header/body/exit triangle. Per the pre-header
// feeds a doubleVectorLiteral(0) into a φ at the guard block; the body's
// final result becomes the φ's back-edge input, and the loop's overall
// value is that φ, not a fixed literal.
func (l *Lowerer) VisitWhileLoop(n *parser.WhileLoop) interface{} {
	header := l.fn.NewBlock("while.header")
	body := l.fn.NewBlock("while.body")
	exit := l.fn.NewBlock("while.exit")

	entryPred := l.cur
	zero := l.emit(ir.DoubleVectorLiteral, []float64{0})
	entryPred.SetTerm(&ir.Instr{Op: ir.Jump})
	ir.Link(entryPred, header)

	l.cur = header
	phi := &ir.Instr{Op: ir.Phi, Result: l.fn.NewReg(), PhiArgs: []ir.Reg{zero, 0}}
	header.Emit(phi)
	cond := l.lower(n.Cond)
	boolReg := l.emit(ir.ToBoolean, nil, cond)
	header.SetTerm(&ir.Instr{Op: ir.Branch, Args: []ir.Reg{boolReg}})
	ir.Link(header, body)
	ir.Link(header, exit)

	l.cur = body
	bodyVal := l.lowerSeq(n.Body)
	bodyEnd := l.cur
	bodyEnd.SetTerm(&ir.Instr{Op: ir.Jump})
	ir.Link(bodyEnd, header)
	phi.PhiArgs[1] = bodyVal

	l.cur = exit
	return phi.Result
}
