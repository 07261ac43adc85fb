// Package parser builds the Rift AST from a token stream.
//
// Like internal/lexer, this package is a thin grammar layer — the
// interesting engineering lives downstream in the lowering pass. The node
// set covers Num, Str, Var, Seq, Fun, BinExp, UserCall, CCall, EvalCall,
// TypeCall, LengthCall, Index, SimpleAssignment, IndexAssignment, IfElse,
// WhileLoop, each visited through the Accept/Visitor pair below.
package parser

type Node interface {
	Accept(v Visitor) interface{}
}

type Visitor interface {
	VisitNum(n *Num) interface{}
	VisitStr(n *Str) interface{}
	VisitVar(n *Var) interface{}
	VisitSeq(n *Seq) interface{}
	VisitFun(n *Fun) interface{}
	VisitBinExp(n *BinExp) interface{}
	VisitUserCall(n *UserCall) interface{}
	VisitCCall(n *CCall) interface{}
	VisitEvalCall(n *EvalCall) interface{}
	VisitTypeCall(n *TypeCall) interface{}
	VisitLengthCall(n *LengthCall) interface{}
	VisitIndex(n *Index) interface{}
	VisitSimpleAssignment(n *SimpleAssignment) interface{}
	VisitIndexAssignment(n *IndexAssignment) interface{}
	VisitIfElse(n *IfElse) interface{}
	VisitWhileLoop(n *WhileLoop) interface{}
}

// BinOp is one of Rift's eight binary operators.
type BinOp string

const (
	OpAdd BinOp = "+"
	OpSub BinOp = "-"
	OpMul BinOp = "*"
	OpDiv BinOp = "/"
	OpEq  BinOp = "=="
	OpNeq BinOp = "!="
	OpLt  BinOp = "<"
	OpGt  BinOp = ">"
)

type Num struct{ Value float64 }

func (n *Num) Accept(v Visitor) interface{} { return v.VisitNum(n) }

// Str holds the pool index assigned to its literal text by the parser.
type Str struct {
	PoolIndex int
	Text      string
}

func (n *Str) Accept(v Visitor) interface{} { return v.VisitStr(n) }

type Var struct{ Name string }

func (n *Var) Accept(v Visitor) interface{} { return v.VisitVar(n) }

// Seq is an ordered statement list: a function body or a block.
type Seq struct{ Stmts []Node }

func (n *Seq) Accept(v Visitor) interface{} { return v.VisitSeq(n) }

type Fun struct {
	Params []string
	Body   *Seq
}

func (n *Fun) Accept(v Visitor) interface{} { return v.VisitFun(n) }

type BinExp struct {
	Op          BinOp
	Left, Right Node
}

func (n *BinExp) Accept(v Visitor) interface{} { return v.VisitBinExp(n) }

type UserCall struct {
	Callee Node
	Args   []Node
}

func (n *UserCall) Accept(v Visitor) interface{} { return v.VisitUserCall(n) }

type CCall struct{ Args []Node }

func (n *CCall) Accept(v Visitor) interface{} { return v.VisitCCall(n) }

type EvalCall struct{ Arg Node }

func (n *EvalCall) Accept(v Visitor) interface{} { return v.VisitEvalCall(n) }

type TypeCall struct{ Arg Node }

func (n *TypeCall) Accept(v Visitor) interface{} { return v.VisitTypeCall(n) }

type LengthCall struct{ Arg Node }

func (n *LengthCall) Accept(v Visitor) interface{} { return v.VisitLengthCall(n) }

type Index struct {
	Target Node
	Idx    Node
}

func (n *Index) Accept(v Visitor) interface{} { return v.VisitIndex(n) }

type SimpleAssignment struct {
	Name  string
	Value Node
}

func (n *SimpleAssignment) Accept(v Visitor) interface{} { return v.VisitSimpleAssignment(n) }

type IndexAssignment struct {
	Target Node
	Idx    Node
	Value  Node
}

func (n *IndexAssignment) Accept(v Visitor) interface{} { return v.VisitIndexAssignment(n) }

// IfElse always carries an Else; a missing else clause lowers (in the
// parser) to a Seq wrapping a single Num(0).
type IfElse struct {
	Cond       Node
	Then, Else *Seq
}

func (n *IfElse) Accept(v Visitor) interface{} { return v.VisitIfElse(n) }

type WhileLoop struct {
	Cond Node
	Body *Seq
}

func (n *WhileLoop) Accept(v Visitor) interface{} { return v.VisitWhileLoop(n) }
