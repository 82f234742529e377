package parser

import (
	"github.com/xplshn/egcc/pkg/ast"
	"github.com/xplshn/egcc/pkg/config"
	"github.com/xplshn/egcc/pkg/diag"
	"github.com/xplshn/egcc/pkg/scope"
	"github.com/xplshn/egcc/pkg/token"
)

// Parser holds the state for the parsing process
type Parser struct {
	tokens   []token.Token
	pos      int
	current  token.Token
	previous token.Token
	scope    *scope.Scope
	cfg      *config.Config
	sink     *diag.Sink
}

// NewParser creates a Parser over a token stream produced by lexer.Tokenize.
// A missing trailing EOF token is supplied. sink may be nil.
func NewParser(tokens []token.Token, cfg *config.Config, sink *diag.Sink) *Parser {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if len(tokens) == 0 || tokens[len(tokens)-1].Kind != token.EOF {
		eof := token.Token{Kind: token.EOF}
		if len(tokens) > 0 {
			last := tokens[len(tokens)-1]
			eof.Pos = last.Pos + last.Len
		}
		tokens = append(tokens, eof)
	}
	return &Parser{tokens: tokens, current: tokens[0], scope: scope.New(), cfg: cfg, sink: sink}
}

// Parser helpers
func (p *Parser) advance() {
	if p.current.Kind == token.EOF {
		return
	}
	p.previous = p.current
	p.pos++
	p.current = p.tokens[p.pos]
}

func (p *Parser) atEOF() bool { return p.current.Kind == token.EOF }

func (p *Parser) check(op string) bool { return p.current.Is(op) }

func (p *Parser) match(op string) bool {
	if !p.check(op) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) expect(op string) error {
	if p.match(op) {
		return nil
	}
	return diag.Expected(p.current, "'"+op+"'")
}

// Parse consumes every token up to EOF.
func (p *Parser) Parse() (*ast.Program, error) {
	var stmts []*ast.Node
	for !p.atEOF() {
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	p.checkReachability(stmts)
	return &ast.Program{Stmts: stmts, FrameSize: p.scope.FrameSize(), Locals: p.scope.Vars()}, nil
}

// Statement Parsing
func (p *Parser) parseStmt() (*ast.Node, error) {
	tok := p.current
	switch {
	case p.match("return"):
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(";"); err != nil {
			return nil, err
		}
		return ast.NewReturn(tok, expr), nil

	case p.match("if"):
		cond, err := p.parseParenExpr()
		if err != nil {
			return nil, err
		}
		then, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		var els *ast.Node
		if p.match("else") {
			if els, err = p.parseStmt(); err != nil {
				return nil, err
			}
		}
		return ast.NewIf(tok, cond, then, els), nil

	case p.match("while"):
		cond, err := p.parseParenExpr()
		if err != nil {
			return nil, err
		}
		body, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		return ast.NewWhile(tok, cond, body), nil

	case p.match("for"):
		return p.parseFor(tok)

	case p.check("{"):
		return p.parseBlock()

	default:
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(";"); err != nil {
			return nil, err
		}
		return expr, nil
	}
}

func (p *Parser) parseParenExpr() (*ast.Node, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	return expr, nil
}

// parseOptionalExpr parses an expression unless the next token is end.
func (p *Parser) parseOptionalExpr(end string) (*ast.Node, error) {
	if p.check(end) {
		return nil, nil
	}
	return p.parseExpr()
}

func (p *Parser) parseFor(tok token.Token) (*ast.Node, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	init, err := p.parseOptionalExpr(";")
	if err != nil {
		return nil, err
	}
	if err := p.expect(";"); err != nil {
		return nil, err
	}
	cond, err := p.parseOptionalExpr(";")
	if err != nil {
		return nil, err
	}
	if err := p.expect(";"); err != nil {
		return nil, err
	}
	inc, err := p.parseOptionalExpr(")")
	if err != nil {
		return nil, err
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	body, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	return ast.NewFor(tok, init, cond, inc, body), nil
}

func (p *Parser) parseBlock() (*ast.Node, error) {
	tok := p.current
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	var stmts []*ast.Node
	for !p.check("}") && !p.atEOF() {
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	if err := p.expect("}"); err != nil {
		return nil, err
	}
	p.checkReachability(stmts)
	return ast.NewBlock(tok, stmts), nil
}

// checkReachability warns once per statement list about code after a return.
func (p *Parser) checkReachability(stmts []*ast.Node) {
	for i := 0; i+1 < len(stmts); i++ {
		if stmts[i].Type == ast.Return {
			p.sink.Warn(config.WarnUnreachableCode, stmts[i+1].Tok, "statement is unreachable after 'return'")
			return
		}
	}
}

// Expression Parsing
func (p *Parser) parseExpr() (*ast.Node, error) {
	return p.parseAssign()
}

func (p *Parser) parseAssign() (*ast.Node, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	if !p.check("=") {
		return left, nil
	}
	tok := p.current
	if left.Type != ast.LocalVar {
		return nil, diag.Syntaxf(left.Tok, "left-hand side of assignment is not a variable")
	}
	p.advance()
	right, err := p.parseAssign()
	if err != nil {
		return nil, err
	}
	return ast.NewAssign(tok, left, right), nil
}

func (p *Parser) parseEquality() (*ast.Node, error) {
	node, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.current
		var op ast.Op
		switch {
		case p.match("=="):
			op = ast.OpEq
		case p.match("!="):
			op = ast.OpNe
		default:
			return node, nil
		}
		right, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		node = ast.NewBinaryOp(tok, op, node, right)
	}
}

// parseRelational only ever builds Lt and Le: a > b is b < a.
func (p *Parser) parseRelational() (*ast.Node, error) {
	node, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.current
		var op ast.Op
		swap := false
		switch {
		case p.match("<"):
			op = ast.OpLt
		case p.match("<="):
			op = ast.OpLe
		case p.match(">"):
			op, swap = ast.OpLt, true
		case p.match(">="):
			op, swap = ast.OpLe, true
		default:
			return node, nil
		}
		right, err := p.parseAdd()
		if err != nil {
			return nil, err
		}
		if swap {
			node = ast.NewBinaryOp(tok, op, right, node)
		} else {
			node = ast.NewBinaryOp(tok, op, node, right)
		}
	}
}

func (p *Parser) parseAdd() (*ast.Node, error) {
	node, err := p.parseMul()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.current
		var op ast.Op
		switch {
		case p.match("+"):
			op = ast.OpAdd
		case p.match("-"):
			op = ast.OpSub
		default:
			return node, nil
		}
		right, err := p.parseMul()
		if err != nil {
			return nil, err
		}
		node = ast.NewBinaryOp(tok, op, node, right)
	}
}

func (p *Parser) parseMul() (*ast.Node, error) {
	node, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.current
		var op ast.Op
		switch {
		case p.match("*"):
			op = ast.OpMul
		case p.match("/"):
			op = ast.OpDiv
		default:
			return node, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		node = ast.NewBinaryOp(tok, op, node, right)
	}
}

// parseUnary: -x is 0 - x, +x is x.
func (p *Parser) parseUnary() (*ast.Node, error) {
	tok := p.current
	if p.match("+") {
		return p.parsePrimary()
	}
	if p.match("-") {
		operand, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return ast.NewBinaryOp(tok, ast.OpSub, ast.NewNumber(tok, 0), operand), nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (*ast.Node, error) {
	tok := p.current
	switch tok.Kind {
	case token.Number:
		p.advance()
		return ast.NewNumber(tok, tok.Value), nil
	case token.Ident:
		p.advance()
		if p.check("(") {
			return p.parseCall(tok)
		}
		v, created := p.scope.Resolve(tok.Text)
		if created && !p.check("=") {
			p.sink.Warn(config.WarnImplicitDecl, tok, "variable '%s' is read before it is assigned", tok.Text)
		}
		return ast.NewLocalVar(tok, v), nil
	}

	if p.match("(") {
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return expr, nil
	}
	return nil, diag.Expected(tok, "an expression")
}

func (p *Parser) parseCall(name token.Token) (*ast.Node, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	var args []*ast.Node
	if !p.check(")") {
		for {
			if len(args) == p.cfg.MaxCallArgs {
				return nil, diag.Syntaxf(p.current, "too many arguments in call to '%s' (at most %d are supported)", name.Text, p.cfg.MaxCallArgs)
			}
			arg, err := p.parseAssign()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if !p.match(",") {
				break
			}
		}
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	return ast.NewFuncCall(name, name.Text, args), nil
}
