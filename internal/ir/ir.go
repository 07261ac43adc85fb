// Package ir defines Rift's SSA intermediate representation: a closed
// intrinsic vocabulary, basic blocks, and PHI nodes. The grouped-iota enum
// with purity annotations uses byte-sized iota constants in blank-line-
// separated groups, one intrinsic set for a native-code JIT backend rather
// than a bytecode interpreter.
package ir

// Intrinsic is an opcode in Rift's closed IR vocabulary. Every
// instruction in a Function names exactly one Intrinsic.
type Intrinsic byte

const (
	// Literals and environment access.
	DoubleVectorLiteral Intrinsic = iota
	CharacterVectorLiteral
	EnvGet
	EnvSet

	// Generic arithmetic and comparison (type-oblivious).
	GenericAdd
	GenericSub
	GenericMul
	GenericDiv
	GenericEq
	GenericNeq
	GenericLt
	GenericGt

	// Generic structural operations.
	GenericGetElement
	GenericSetElement
	GenericC
	GenericLength
	GenericType
	GenericEval

	// Closures and calls.
	CreateFunction
	Call

	// Control flow.
	ToBoolean
	Branch
	Jump
	Phi
	Return

	// Specialized double-vector arithmetic, introduced post-specialization.
	DoubleAdd
	DoubleSub
	DoubleMul
	DoubleDiv
	DoubleEq
	DoubleNeq
	DoubleLt
	DoubleGt

	// Specialized element access.
	ScalarFromVector
	DoubleGetSingleElement
	DoubleGetElement
	CharacterGetElement
	DoubleSetElement
	ScalarSetElement
	CharacterSetElement

	// Specialized character-vector operations.
	CharacterAdd
	CharacterEq
	CharacterNeq
	CharacterEval

	// Specialized concatenation.
	DoubleC
	CharacterC

	// Unboxed scalar instructions, introduced by the unboxing rewrite.
	// These are not runtime intrinsics: a scalar register holds a raw
	// IEEE-754 double, and the Prim ops are primitive machine operations
	// the backend executes directly. DoubleVectorLiteral with a single
	// scalar-register argument (instead of an immediate) is the matching
	// rebox form.
	ScalarLiteral
	PrimAdd
	PrimSub
	PrimMul
	PrimDiv
	PrimEq
	PrimNeq
	PrimLt
	PrimGt
)

// Purity marks whether an intrinsic may be dropped by dead-code elimination
// when its result is unused. Impure intrinsics — anything that
// mutates an environment or a vector in place, calls into user code or
// eval, or transfers control — are never eliminated even if their result
// is dead. Allocating or possibly failing alone does not make an intrinsic
// impure: the generic arithmetic and comparison intrinsics are Pure.
type Purity byte

const (
	Pure Purity = iota
	Impure
)

// purityTable classifies every Intrinsic. Unlisted intrinsics default to
// Impure (the safe default for control flow and anything with side effects).
var purityTable = map[Intrinsic]Purity{
	DoubleVectorLiteral:    Pure,
	CharacterVectorLiteral: Pure,
	EnvGet:                 Pure,
	GenericAdd:             Pure,
	GenericSub:             Pure,
	GenericMul:             Pure,
	GenericDiv:             Pure,
	GenericEq:              Pure,
	GenericNeq:             Pure,
	GenericLt:              Pure,
	GenericGt:              Pure,
	GenericGetElement:      Pure,
	GenericC:               Pure,
	GenericLength:          Pure,
	GenericType:            Pure,
	CreateFunction:         Pure,
	ToBoolean:              Pure,
	Phi:                    Pure,
	DoubleAdd:              Pure,
	DoubleSub:              Pure,
	DoubleMul:              Pure,
	DoubleDiv:              Pure,
	DoubleEq:               Pure,
	DoubleNeq:              Pure,
	DoubleLt:               Pure,
	DoubleGt:               Pure,
	ScalarFromVector:       Pure,
	DoubleGetSingleElement: Pure,
	DoubleGetElement:       Pure,
	CharacterGetElement:    Pure,
	CharacterAdd:           Pure,
	CharacterEq:            Pure,
	CharacterNeq:           Pure,
	DoubleC:                Pure,
	CharacterC:             Pure,
	ScalarLiteral:          Pure,
	PrimAdd:                Pure,
	PrimSub:                Pure,
	PrimMul:                Pure,
	PrimDiv:                Pure,
	PrimEq:                 Pure,
	PrimNeq:                Pure,
	PrimLt:                 Pure,
	PrimGt:                 Pure,
	// EnvSet, GenericSetElement, DoubleSetElement, ScalarSetElement,
	// CharacterSetElement, GenericEval, CharacterEval, Call, Branch, Jump,
	// Return all mutate state or transfer control: Impure (default, omitted).
}

func (op Intrinsic) Purity() Purity {
	if p, ok := purityTable[op]; ok {
		return p
	}
	return Impure
}

// Reg names an SSA virtual register, unique within one Function.
type Reg int

// Instr is one SSA instruction: an intrinsic applied to operand registers
// (or immediate data carried in Imm), producing Result.
type Instr struct {
	Op     Intrinsic
	Args   []Reg
	Result Reg

	// Imm carries literal data the intrinsic needs that isn't itself an SSA
	// value: a pool index for a character literal or identifier, a
	// []float64 for a double-vector literal, a float64 for ScalarLiteral, or
	// the template's pool index (an int) for CreateFunction. Phi operands
	// are held in PhiArgs, not here.
	Imm interface{}

	// Phi operands: parallel to the owning Block's Preds.
	PhiArgs []Reg
}

// Block is a basic block: a straight-line instruction list ending in
// exactly one terminator (Branch, Jump, or Return).
type Block struct {
	Name  string
	Instrs []*Instr
	Term  *Instr
	Preds []*Block
	Succs []*Block
}

// Function is one lowered Rift function body (top-level program or a
// function literal), in SSA form with an explicit entry block.
type Function struct {
	Name    string
	Params  []Reg
	Entry   *Block
	Blocks  []*Block
	NumRegs int
	// PoolIndex is the pool.Template index this Function was lowered from,
	// set once the lowering pass registers the template.
	PoolIndex int
}

func (f *Function) NewReg() Reg {
	r := Reg(f.NumRegs)
	f.NumRegs++
	return r
}

func (f *Function) NewBlock(name string) *Block {
	b := &Block{Name: name}
	f.Blocks = append(f.Blocks, b)
	return b
}

func (b *Block) Emit(i *Instr) {
	b.Instrs = append(b.Instrs, i)
}

func (b *Block) SetTerm(i *Instr) {
	b.Term = i
}

func link(pred, succ *Block) {
	pred.Succs = append(pred.Succs, succ)
	succ.Preds = append(succ.Preds, pred)
}

// Link records a control-flow edge between two blocks of the same Function.
func Link(pred, succ *Block) { link(pred, succ) }
