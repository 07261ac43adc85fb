// internal/parser/parser.go
package parser

import (
	"strconv"

	"rift/internal/errors"
	"rift/internal/lexer"
	"rift/internal/pool"
)

// Parser is a hand-written recursive-descent parser for Rift's grammar.
type Parser struct {
	tokens  []lexer.Token
	current int
	file    string
	pool    *pool.Pool
}

func NewParser(tokens []lexer.Token, p *pool.Pool, file string) *Parser {
	return &Parser{tokens: tokens, pool: p, file: file}
}

// Parse consumes the whole token stream as an implicit top-level sequence —
// the grammar's `seq` rule requires braces, but a Rift program (or REPL
// line) is itself an unbraced statement list, treated the same way as a
// top-level function body.
func (p *Parser) Parse() (*Seq, error) {
	seq := &Seq{}
	for !p.check(lexer.TokenEOF) {
		stmt, err := p.statement()
		if err != nil {
			return nil, err
		}
		seq.Stmts = append(seq.Stmts, stmt)
	}
	return seq, nil
}

func (p *Parser) statement() (Node, error) {
	var n Node
	var err error
	switch {
	case p.check(lexer.TokenIf):
		n, err = p.ifStmt()
	case p.check(lexer.TokenWhile):
		n, err = p.whileStmt()
	default:
		n, err = p.expr()
	}
	if err != nil {
		return nil, err
	}
	p.matchTok(lexer.TokenSemi)
	return n, nil
}

func (p *Parser) seq() (*Seq, error) {
	if _, err := p.expect(lexer.TokenLBrace); err != nil {
		return nil, err
	}
	s := &Seq{}
	for !p.check(lexer.TokenRBrace) {
		if p.check(lexer.TokenEOF) {
			return nil, p.errf("unterminated block, expected '}'")
		}
		stmt, err := p.statement()
		if err != nil {
			return nil, err
		}
		s.Stmts = append(s.Stmts, stmt)
	}
	p.advance()
	return s, nil
}

func emptyElse() *Seq {
	return &Seq{Stmts: []Node{&Num{Value: 0}}}
}

func (p *Parser) ifStmt() (Node, error) {
	p.advance() // "if"
	if _, err := p.expect(lexer.TokenLParen); err != nil {
		return nil, err
	}
	cond, err := p.expr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenRParen); err != nil {
		return nil, err
	}
	then, err := p.seq()
	if err != nil {
		return nil, err
	}
	elseSeq := emptyElse()
	if p.check(lexer.TokenElse) {
		p.advance()
		elseSeq, err = p.seq()
		if err != nil {
			return nil, err
		}
	}
	return &IfElse{Cond: cond, Then: then, Else: elseSeq}, nil
}

func (p *Parser) whileStmt() (Node, error) {
	p.advance() // "while"
	if _, err := p.expect(lexer.TokenLParen); err != nil {
		return nil, err
	}
	cond, err := p.expr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenRParen); err != nil {
		return nil, err
	}
	body, err := p.seq()
	if err != nil {
		return nil, err
	}
	return &WhileLoop{Cond: cond, Body: body}, nil
}

var comparisonOps = map[lexer.TokenType]BinOp{
	lexer.TokenEq:  OpEq,
	lexer.TokenNeq: OpNeq,
	lexer.TokenLt:  OpLt,
	lexer.TokenGt:  OpGt,
}

var addOps = map[lexer.TokenType]BinOp{
	lexer.TokenPlus:  OpAdd,
	lexer.TokenMinus: OpSub,
}

var mulOps = map[lexer.TokenType]BinOp{
	lexer.TokenStar:  OpMul,
	lexer.TokenSlash: OpDiv,
}

func (p *Parser) expr() (Node, error) {
	return p.binary(p.e1, comparisonOps)
}

func (p *Parser) e1() (Node, error) {
	return p.binary(p.e2, addOps)
}

func (p *Parser) e2() (Node, error) {
	return p.binary(p.e3, mulOps)
}

func (p *Parser) binary(next func() (Node, error), ops map[lexer.TokenType]BinOp) (Node, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := ops[p.peek().Type]
		if !ok {
			return left, nil
		}
		p.advance()
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = &BinExp{Op: op, Left: left, Right: right}
	}
}

func (p *Parser) e3() (Node, error) {
	node, err := p.atom()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.check(lexer.TokenLBrack):
			p.advance()
			idx, err := p.expr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.TokenRBrack); err != nil {
				return nil, err
			}
			if val, isAssign, err := p.maybeAssign(); err != nil {
				return nil, err
			} else if isAssign {
				return &IndexAssignment{Target: node, Idx: idx, Value: val}, nil
			}
			node = &Index{Target: node, Idx: idx}
		case p.check(lexer.TokenLParen):
			p.advance()
			args, err := p.argList()
			if err != nil {
				return nil, err
			}
			node = &UserCall{Callee: node, Args: args}
		default:
			if val, isAssign, err := p.maybeAssign(); err != nil {
				return nil, err
			} else if isAssign {
				v, ok := node.(*Var)
				if !ok {
					return nil, p.errf("left-hand side of assignment must be a variable")
				}
				return &SimpleAssignment{Name: v.Name, Value: val}, nil
			}
			return node, nil
		}
	}
}

func (p *Parser) maybeAssign() (Node, bool, error) {
	if !p.check(lexer.TokenAssign) && !p.check(lexer.TokenLArrow) {
		return nil, false, nil
	}
	p.advance()
	val, err := p.expr()
	return val, true, err
}

func (p *Parser) argList() ([]Node, error) {
	var args []Node
	if !p.check(lexer.TokenRParen) {
		for {
			a, err := p.expr()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if !p.matchTok(lexer.TokenComma) {
				break
			}
		}
	}
	if _, err := p.expect(lexer.TokenRParen); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Parser) atom() (Node, error) {
	tok := p.peek()
	switch tok.Type {
	case lexer.TokenNumber:
		p.advance()
		f, err := strconv.ParseFloat(tok.Lexeme, 64)
		if err != nil {
			return nil, p.wrapf(err, "invalid number literal %q", tok.Lexeme)
		}
		return &Num{Value: f}, nil
	case lexer.TokenString:
		p.advance()
		return &Str{PoolIndex: p.pool.Intern(tok.Lexeme), Text: tok.Lexeme}, nil
	case lexer.TokenIdent:
		p.advance()
		return &Var{Name: tok.Lexeme}, nil
	case lexer.TokenLParen:
		p.advance()
		n, err := p.expr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenRParen); err != nil {
			return nil, err
		}
		return n, nil
	case lexer.TokenFunction:
		return p.funLit()
	case lexer.TokenEval:
		p.advance()
		arg, err := p.parenExpr()
		if err != nil {
			return nil, err
		}
		return &EvalCall{Arg: arg}, nil
	case lexer.TokenLength:
		p.advance()
		arg, err := p.parenExpr()
		if err != nil {
			return nil, err
		}
		return &LengthCall{Arg: arg}, nil
	case lexer.TokenType_:
		p.advance()
		arg, err := p.parenExpr()
		if err != nil {
			return nil, err
		}
		return &TypeCall{Arg: arg}, nil
	case lexer.TokenC:
		p.advance()
		if _, err := p.expect(lexer.TokenLParen); err != nil {
			return nil, err
		}
		args, err := p.argList()
		if err != nil {
			return nil, err
		}
		return &CCall{Args: args}, nil
	default:
		return nil, p.errf("unexpected token %s", tok)
	}
}

func (p *Parser) parenExpr() (Node, error) {
	if _, err := p.expect(lexer.TokenLParen); err != nil {
		return nil, err
	}
	n, err := p.expr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenRParen); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *Parser) funLit() (Node, error) {
	p.advance() // "function"
	if _, err := p.expect(lexer.TokenLParen); err != nil {
		return nil, err
	}
	var params []string
	if !p.check(lexer.TokenRParen) {
		for {
			tok, err := p.expect(lexer.TokenIdent)
			if err != nil {
				return nil, err
			}
			params = append(params, tok.Lexeme)
			if !p.matchTok(lexer.TokenComma) {
				break
			}
		}
	}
	if _, err := p.expect(lexer.TokenRParen); err != nil {
		return nil, err
	}
	body, err := p.seq()
	if err != nil {
		return nil, err
	}
	return &Fun{Params: params, Body: body}, nil
}

// --- token plumbing ---

func (p *Parser) peek() lexer.Token { return p.tokens[p.current] }

func (p *Parser) check(t lexer.TokenType) bool { return p.peek().Type == t }

func (p *Parser) advance() lexer.Token {
	tok := p.tokens[p.current]
	if p.current < len(p.tokens)-1 {
		p.current++
	}
	return tok
}

func (p *Parser) matchTok(t lexer.TokenType) bool {
	if p.check(t) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expect(t lexer.TokenType) (lexer.Token, error) {
	if p.check(t) {
		return p.advance(), nil
	}
	return lexer.Token{}, p.errf("expected %s, got %s", t, p.peek())
}

func (p *Parser) errf(format string, args ...interface{}) error {
	tok := p.peek()
	loc := errors.Location{File: p.file, Line: tok.Line, Column: tok.Column}
	return errors.NewSyntaxError(loc, format, args...)
}

// wrapf is errf for failures with an underlying cause worth keeping (the
// strconv error behind a malformed number literal); the cause and its
// stack ride along on the syntax error.
func (p *Parser) wrapf(cause error, format string, args ...interface{}) error {
	tok := p.peek()
	loc := errors.Location{File: p.file, Line: tok.Line, Column: tok.Column}
	return errors.Wrap(errors.Syntax, cause, format, args...).At(loc)
}
