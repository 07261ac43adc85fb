package lower

import (
	"testing"

	"rift/internal/ir"
	"rift/internal/lexer"
	"rift/internal/parser"
	"rift/internal/pool"
)

func lowerProgram(t *testing.T, src string) *ir.Function {
	t.Helper()
	p := pool.New()
	tokens := lexer.NewScanner(src).ScanTokens()
	seq, err := parser.NewParser(tokens, p, "<test>").Parse()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	fn, _ := Lower(p, "<program>", nil, seq)
	return fn
}

func findBlock(fn *ir.Function, name string) *ir.Block {
	for _, b := range fn.Blocks {
		if b.Name == name {
			return b
		}
	}
	return nil
}

func findPhi(b *ir.Block) *ir.Instr {
	if b == nil {
		return nil
	}
	if b.Term != nil && b.Term.Op == ir.Phi {
		return b.Term
	}
	for _, instr := range b.Instrs {
		if instr.Op == ir.Phi {
			return instr
		}
	}
	return nil
}

// TestWhileLoopPhiFeedsZeroAndBodyResult covers the redesigned while-loop
// lowering: the header's phi takes the pre-header's zero literal on the
// entry edge and the body's own last value on the back edge, so the
// loop's value as an expression is whichever one actually executes last,
// not a fixed literal.
func TestWhileLoopPhiFeedsZeroAndBodyResult(t *testing.T) {
	// The body's last statement is a bare variable read, so its lowered
	// register is both the last instruction emitted to while.body and the
	// value lowerSeq returns for the phi's back-edge arg.
	fn := lowerProgram(t, "a <- 1; while (a) { a <- 0; a }")

	header := findBlock(fn, "while.header")
	if header == nil {
		t.Fatalf("expected a while.header block")
	}
	phi := findPhi(header)
	if phi == nil {
		t.Fatalf("expected a phi in while.header")
	}
	if len(phi.PhiArgs) != 2 {
		t.Fatalf("expected 2 phi args, got %d", len(phi.PhiArgs))
	}

	body := findBlock(fn, "while.body")
	if body == nil {
		t.Fatalf("expected a while.body block")
	}
	if len(body.Instrs) == 0 {
		t.Fatalf("expected the body to lower at least one instruction")
	}
	bodyLast := body.Instrs[len(body.Instrs)-1]
	if bodyLast.Op != ir.EnvGet {
		t.Fatalf("expected the body's last instruction to be the trailing variable read, got %v", bodyLast.Op)
	}
	if phi.PhiArgs[1] != bodyLast.Result {
		t.Fatalf("expected phi's back-edge arg to be the body's last result (%v), got %v", bodyLast.Result, phi.PhiArgs[1])
	}
}

// TestIfElsePhiMergesBothArms covers VisitIfElse: the join block's single
// phi takes the then-arm's and else-arm's final values.
func TestIfElsePhiMergesBothArms(t *testing.T) {
	fn := lowerProgram(t, "if (1) { 2 } else { 3 }")

	join := findBlock(fn, "if.join")
	if join == nil {
		t.Fatalf("expected an if.join block")
	}
	phi := findPhi(join)
	if phi == nil {
		t.Fatalf("expected a phi in if.join")
	}
	if len(phi.PhiArgs) != 2 {
		t.Fatalf("expected 2 phi args (then, else), got %d", len(phi.PhiArgs))
	}
}

// TestIfWithoutElseDefaultsToZero covers the parser/lowering pairing for
// a bodyless else branch: omitting else still lowers a join with a
// literal-zero else arm rather than failing to produce a value.
func TestIfWithoutElseDefaultsToZero(t *testing.T) {
	fn := lowerProgram(t, "if (1) { 2 }")

	join := findBlock(fn, "if.join")
	if join == nil {
		t.Fatalf("expected an if.join block")
	}
	phi := findPhi(join)
	if phi == nil {
		t.Fatalf("expected a phi in if.join")
	}
	if len(phi.PhiArgs) != 2 {
		t.Fatalf("expected 2 phi args even without an explicit else, got %d", len(phi.PhiArgs))
	}
}

// TestStrLowersToSinglePoolIndexImmediate covers the CharacterVectorLiteral
// lowering fix: Imm now carries the literal's pool index directly, not a
// slice wrapping it.
func TestStrLowersToSinglePoolIndexImmediate(t *testing.T) {
	fn := lowerProgram(t, `"hi"`)
	var found *ir.Instr
	for _, instr := range fn.Entry.Instrs {
		if instr.Op == ir.CharacterVectorLiteral {
			found = instr
			break
		}
	}
	if found == nil {
		t.Fatalf("expected a CharacterVectorLiteral instruction")
	}
	if _, ok := found.Imm.(int); !ok {
		t.Fatalf("expected Imm to be a plain int pool index, got %T", found.Imm)
	}
}

// TestFunLiteralLowersNestedTemplate covers VisitFun: a nested function
// literal registers its own template and the enclosing block only emits
// a CreateFunction referencing it by pool index.
func TestFunLiteralLowersNestedTemplate(t *testing.T) {
	fn := lowerProgram(t, "function(a,b){a+b}")
	var found *ir.Instr
	for _, instr := range fn.Entry.Instrs {
		if instr.Op == ir.CreateFunction {
			found = instr
			break
		}
	}
	if found == nil {
		t.Fatalf("expected a CreateFunction instruction")
	}
	if _, ok := found.Imm.(int); !ok {
		t.Fatalf("expected Imm to be the nested template's int pool index, got %T", found.Imm)
	}
}
