package token

import "fmt"

type Kind int

const (
	EOF Kind = iota
	Reserved
	Ident
	Number
)

var kindNames = map[Kind]string{
	EOF:      "EOF",
	Reserved: "Reserved",
	Ident:    "Ident",
	Number:   "Number",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Keywords are scanned as identifiers and relabelled Reserved afterwards,
// so the parser matches them exactly like punctuators.
var Keywords = map[string]bool{
	"return": true,
	"if":     true,
	"else":   true,
	"while":  true,
	"for":    true,
}

// TwoCharOps are tried before any single-character punctuator.
var TwoCharOps = []string{"==", "!=", "<=", ">="}

// Punctuators is the set of single-character reserved symbols.
const Punctuators = "+-*/()<>=;{},"

// Token is one lexeme. Pos and Len index into the original source in bytes.
type Token struct {
	Kind   Kind
	Text   string
	Value  int64
	Pos    int
	Len    int
	Line   int
	Column int
}

// Is reports whether the token is the reserved symbol or keyword op.
func (t Token) Is(op string) bool {
	return t.Kind == Reserved && t.Text == op
}

// Describe renders the token for "found ..." parts of diagnostics.
func (t Token) Describe() string {
	switch t.Kind {
	case EOF:
		return "end of input"
	case Number:
		return fmt.Sprintf("number %d", t.Value)
	case Ident:
		return fmt.Sprintf("identifier '%s'", t.Text)
	default:
		return fmt.Sprintf("'%s'", t.Text)
	}
}
