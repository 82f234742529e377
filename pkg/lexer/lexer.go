package lexer

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xplshn/egcc/pkg/config"
	"github.com/xplshn/egcc/pkg/diag"
	"github.com/xplshn/egcc/pkg/token"
)

type Lexer struct {
	source string
	pos    int
	line   int
	column int
	cfg    *config.Config
}

func NewLexer(source string, cfg *config.Config) *Lexer {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return &Lexer{source: source, line: 1, column: 1, cfg: cfg}
}

// Tokenize scans the whole source, appends the EOF token and relabels
// keywords as reserved words.
func Tokenize(source string, cfg *config.Config) ([]token.Token, error) {
	l := NewLexer(source, cfg)
	var toks []token.Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Kind == token.EOF {
			break
		}
	}
	convertKeywords(toks)
	return toks, nil
}

func convertKeywords(toks []token.Token) {
	for i := range toks {
		if toks[i].Kind == token.Ident && token.Keywords[toks[i].Text] {
			toks[i].Kind = token.Reserved
		}
	}
}

// Next returns the next raw token. Keywords come back as identifiers.
// Calling Next after EOF has been returned keeps returning EOF.
func (l *Lexer) Next() (token.Token, error) {
	for {
		if l.isAtEnd() {
			return l.makeToken(token.EOF, l.pos, l.column, l.line), nil
		}
		startPos, startCol, startLine := l.pos, l.column, l.line

		if op := l.twoCharOp(); op != "" {
			l.advance()
			l.advance()
			return l.makeToken(token.Reserved, startPos, startCol, startLine), nil
		}

		ch := l.peek()
		if isSpace(ch) {
			l.advance()
			continue
		}

		if ch == '/' && l.peekNext() == '/' && l.cfg.IsFeatureEnabled(config.FeatCComments) {
			l.lineComment()
			continue
		}

		if strings.IndexByte(token.Punctuators, ch) >= 0 {
			l.advance()
			return l.makeToken(token.Reserved, startPos, startCol, startLine), nil
		}

		if isDigit(ch) {
			return l.numberLiteral(startPos, startCol, startLine)
		}

		if isAlpha(ch) {
			l.advance()
			for isAlnum(l.peek()) {
				l.advance()
			}
			return l.makeToken(token.Ident, startPos, startCol, startLine), nil
		}

		r, width := utf8.DecodeRuneInString(l.source[l.pos:])
		return token.Token{}, diag.Lexicalf(startPos, width, "invalid token '%c'", r)
	}
}

func (l *Lexer) twoCharOp() string {
	for _, op := range token.TwoCharOps {
		if strings.HasPrefix(l.source[l.pos:], op) {
			return op
		}
	}
	return ""
}

func (l *Lexer) peek() byte {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) peekNext() byte {
	if l.pos+1 >= len(l.source) {
		return 0
	}
	return l.source[l.pos+1]
}

func (l *Lexer) advance() byte {
	if l.isAtEnd() {
		return 0
	}
	ch := l.source[l.pos]
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	l.pos++
	return ch
}

func (l *Lexer) isAtEnd() bool { return l.pos >= len(l.source) }

func (l *Lexer) makeToken(kind token.Kind, startPos, startCol, startLine int) token.Token {
	return token.Token{
		Kind: kind, Text: l.source[startPos:l.pos], Pos: startPos,
		Len: l.pos - startPos, Line: startLine, Column: startCol,
	}
}

func (l *Lexer) lineComment() {
	for !l.isAtEnd() && l.peek() != '\n' {
		l.advance()
	}
}

func (l *Lexer) numberLiteral(startPos, startCol, startLine int) (token.Token, error) {
	for isDigit(l.peek()) {
		l.advance()
	}
	tok := l.makeToken(token.Number, startPos, startCol, startLine)
	val, err := strconv.ParseInt(tok.Text, 10, 64)
	if err != nil {
		return token.Token{}, diag.Lexicalf(startPos, tok.Len, "integer literal %s is out of range", tok.Text)
	}
	tok.Value = val
	return tok, nil
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

func isAlpha(c byte) bool { return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') }

func isAlnum(c byte) bool { return isAlpha(c) || isDigit(c) || c == '_' }
