package parser

import (
	stderrors "errors"
	"strconv"
	"strings"
	"testing"

	rifterrors "rift/internal/errors"
	"rift/internal/lexer"
	"rift/internal/pool"
)

func parseString(t *testing.T, input string) *Seq {
	t.Helper()
	tokens := lexer.NewScanner(input).ScanTokens()
	seq, err := NewParser(tokens, pool.New(), "test").Parse()
	if err != nil {
		t.Fatalf("parse %q: %v", input, err)
	}
	return seq
}

func TestParseNumberLiteral(t *testing.T) {
	seq := parseString(t, "1.5;")
	if len(seq.Stmts) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(seq.Stmts))
	}
	n, ok := seq.Stmts[0].(*Num)
	if !ok || n.Value != 1.5 {
		t.Fatalf("expected Num(1.5), got %#v", seq.Stmts[0])
	}
}

func TestParseBinaryPrecedence(t *testing.T) {
	seq := parseString(t, "1 + 2 * 3;")
	bin, ok := seq.Stmts[0].(*BinExp)
	if !ok || bin.Op != OpAdd {
		t.Fatalf("expected top-level '+', got %#v", seq.Stmts[0])
	}
	rhs, ok := bin.Right.(*BinExp)
	if !ok || rhs.Op != OpMul {
		t.Fatalf("expected '*' nested on the right, got %#v", bin.Right)
	}
}

func TestParseAssignmentBothForms(t *testing.T) {
	for _, src := range []string{"x = 1;", "x <- 1;"} {
		seq := parseString(t, src)
		a, ok := seq.Stmts[0].(*SimpleAssignment)
		if !ok || a.Name != "x" {
			t.Fatalf("%q: expected SimpleAssignment(x), got %#v", src, seq.Stmts[0])
		}
	}
}

func TestParseIndexAssignment(t *testing.T) {
	seq := parseString(t, "x[1] = 2;")
	a, ok := seq.Stmts[0].(*IndexAssignment)
	if !ok {
		t.Fatalf("expected IndexAssignment, got %#v", seq.Stmts[0])
	}
	if _, ok := a.Target.(*Var); !ok {
		t.Fatalf("expected indexed target to be a Var, got %#v", a.Target)
	}
}

func TestParseIfWithoutElseLowersToZero(t *testing.T) {
	seq := parseString(t, "if (1) { 2; }")
	ifNode, ok := seq.Stmts[0].(*IfElse)
	if !ok {
		t.Fatalf("expected IfElse, got %#v", seq.Stmts[0])
	}
	if len(ifNode.Else.Stmts) != 1 {
		t.Fatalf("expected synthesized else body, got %#v", ifNode.Else)
	}
	n, ok := ifNode.Else.Stmts[0].(*Num)
	if !ok || n.Value != 0 {
		t.Fatalf("expected synthesized else to be Num(0), got %#v", ifNode.Else.Stmts[0])
	}
}

func TestParseWhileLoop(t *testing.T) {
	seq := parseString(t, "while (x < 10) { x = x + 1; }")
	w, ok := seq.Stmts[0].(*WhileLoop)
	if !ok {
		t.Fatalf("expected WhileLoop, got %#v", seq.Stmts[0])
	}
	if _, ok := w.Cond.(*BinExp); !ok {
		t.Fatalf("expected condition to be a BinExp, got %#v", w.Cond)
	}
}

func TestParseFunctionLiteralAndCall(t *testing.T) {
	seq := parseString(t, "f = function(a, b) { a + b; }; f(1, 2);")
	assign, ok := seq.Stmts[0].(*SimpleAssignment)
	if !ok {
		t.Fatalf("expected SimpleAssignment, got %#v", seq.Stmts[0])
	}
	fn, ok := assign.Value.(*Fun)
	if !ok || len(fn.Params) != 2 {
		t.Fatalf("expected a 2-param Fun, got %#v", assign.Value)
	}
	call, ok := seq.Stmts[1].(*UserCall)
	if !ok || len(call.Args) != 2 {
		t.Fatalf("expected a 2-arg UserCall, got %#v", seq.Stmts[1])
	}
}

func TestParseCCallAndBuiltins(t *testing.T) {
	seq := parseString(t, `length(c(1, 2, 3));`)
	lc, ok := seq.Stmts[0].(*LengthCall)
	if !ok {
		t.Fatalf("expected LengthCall, got %#v", seq.Stmts[0])
	}
	cc, ok := lc.Arg.(*CCall)
	if !ok || len(cc.Args) != 3 {
		t.Fatalf("expected a 3-arg CCall, got %#v", lc.Arg)
	}
}

func TestParseUnterminatedBlockIsSyntaxError(t *testing.T) {
	tokens := lexer.NewScanner("if (1) { 2;").ScanTokens()
	_, err := NewParser(tokens, pool.New(), "test").Parse()
	if err == nil {
		t.Fatal("expected a syntax error for an unterminated block")
	}
}

// TestParseOverRangeNumberWrapsCause: a literal too large for a float64
// fails with a syntax error that keeps the strconv range error as its
// cause.
func TestParseOverRangeNumberWrapsCause(t *testing.T) {
	src := "1" + strings.Repeat("0", 400) + ";"
	tokens := lexer.NewScanner(src).ScanTokens()
	_, err := NewParser(tokens, pool.New(), "test").Parse()
	if err == nil {
		t.Fatal("expected a syntax error for an over-range number literal")
	}
	if !rifterrors.Is(err, rifterrors.Syntax) {
		t.Fatalf("got %v, want a SyntaxError", err)
	}
	if !stderrors.Is(err, strconv.ErrRange) {
		t.Fatalf("expected the strconv range error to survive as the cause, got %v", err)
	}
}
