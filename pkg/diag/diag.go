// Package diag holds the compiler's structured errors and the sink that
// renders errors and warnings against the source text.
package diag

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/xplshn/egcc/pkg/config"
	"github.com/xplshn/egcc/pkg/token"
	"golang.org/x/term"
)

type Kind int

const (
	Lexical Kind = iota
	Syntactic
)

func (k Kind) String() string {
	switch k {
	case Lexical:
		return "lexical error"
	case Syntactic:
		return "syntax error"
	default:
		return "error"
	}
}

// Error is a fatal compilation error anchored at a byte offset of the source.
type Error struct {
	Kind     Kind
	Pos      int
	Len      int
	Expected string
	Found    string
	Msg      string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at offset %d: %s", e.Kind, e.Pos, e.Message())
}

// Message is the human part of the error without the position prefix.
func (e *Error) Message() string {
	switch {
	case e.Msg != "":
		return e.Msg
	case e.Expected != "" && e.Found != "":
		return fmt.Sprintf("expected %s, found %s", e.Expected, e.Found)
	case e.Expected != "":
		return "expected " + e.Expected
	default:
		return e.Kind.String()
	}
}

func Lexicalf(pos, length int, format string, args ...interface{}) *Error {
	return &Error{Kind: Lexical, Pos: pos, Len: length, Msg: fmt.Sprintf(format, args...)}
}

// Expected builds the usual syntax error: wanted something, got tok.
func Expected(tok token.Token, what string) *Error {
	return &Error{Kind: Syntactic, Pos: tok.Pos, Len: tok.Len, Expected: what, Found: tok.Describe()}
}

func Syntaxf(tok token.Token, format string, args ...interface{}) *Error {
	return &Error{Kind: Syntactic, Pos: tok.Pos, Len: tok.Len, Msg: fmt.Sprintf(format, args...)}
}

// Source tracks the name and content of the program being compiled.
type Source struct {
	Name    string
	Content string
}

// Position converts a byte offset into a 1-based line and column.
func (s *Source) Position(offset int) (line, col int) {
	if offset > len(s.Content) {
		offset = len(s.Content)
	}
	line = 1 + strings.Count(s.Content[:offset], "\n")
	lineStart := strings.LastIndexByte(s.Content[:offset], '\n') + 1
	return line, offset - lineStart + 1
}

func (s *Source) lineAt(offset int) string {
	if offset > len(s.Content) {
		offset = len(s.Content)
	}
	start := strings.LastIndexByte(s.Content[:offset], '\n') + 1
	end := strings.IndexByte(s.Content[offset:], '\n')
	if end < 0 {
		return s.Content[start:]
	}
	return s.Content[start : offset+end]
}

const (
	cRed    = "\033[31m"
	cYellow = "\033[33m"
	cGreen  = "\033[32m"
	cNone   = "\033[0m"
)

// Sink writes diagnostics. A nil *Sink discards warnings.
type Sink struct {
	Out    io.Writer
	Source *Source
	Cfg    *config.Config
	Color  bool

	warnings int
}

func NewSink(out io.Writer, src *Source, cfg *config.Config) *Sink {
	s := &Sink{Out: out, Source: src, Cfg: cfg}
	if f, ok := out.(*os.File); ok {
		s.Color = term.IsTerminal(int(f.Fd()))
	}
	return s
}

func (s *Sink) paint(color, text string) string {
	if !s.Color {
		return text
	}
	return color + text + cNone
}

func (s *Sink) header(pos int, label string) {
	name := "<input>"
	line, col := 0, 0
	if s.Source != nil {
		if s.Source.Name != "" {
			name = s.Source.Name
		}
		line, col = s.Source.Position(pos)
	}
	fmt.Fprintf(s.Out, "%s:%d:%d: %s ", name, line, col, label)
}

// caret prints the source line and marks [pos, pos+length), counting
// characters rather than bytes so the mark lines up under UTF-8 text.
func (s *Sink) caret(pos, length int) {
	if s.Source == nil {
		return
	}
	content := s.Source.Content
	pos = min(pos, len(content))
	end := min(pos+length, len(content))
	_, col := s.Source.Position(pos)
	fmt.Fprintf(s.Out, "  %s\n", s.Source.lineAt(pos))
	mark := "^"
	if n := utf8.RuneCountInString(content[pos:end]); n > 1 {
		mark += strings.Repeat("~", n-1)
	}
	pad := utf8.RuneCountInString(content[pos-(col-1) : pos])
	fmt.Fprintf(s.Out, "  %s%s\n", strings.Repeat(" ", pad), s.paint(cGreen, mark))
}

// Error renders err. Errors that are not *Error have no position to show.
func (s *Sink) Error(err error) {
	var de *Error
	if !errors.As(err, &de) {
		fmt.Fprintf(s.Out, "%s %v\n", s.paint(cRed, "error:"), err)
		return
	}
	s.header(de.Pos, s.paint(cRed, de.Kind.String()+":"))
	fmt.Fprintln(s.Out, de.Message())
	s.caret(de.Pos, de.Len)
}

// Warn prints a warning if it is enabled in the sink's config.
func (s *Sink) Warn(wt config.Warning, tok token.Token, format string, args ...interface{}) {
	if s == nil || s.Cfg == nil || !s.Cfg.IsWarningEnabled(wt) {
		return
	}
	s.warnings++
	s.header(tok.Pos, s.paint(cYellow, "warning:"))
	fmt.Fprintf(s.Out, format, args...)
	fmt.Fprintf(s.Out, " [-W%s]\n", s.Cfg.Warnings[wt].Name)
	s.caret(tok.Pos, tok.Len)
}

func (s *Sink) Warnings() int {
	if s == nil {
		return 0
	}
	return s.warnings
}
