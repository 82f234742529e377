// Package compiler wires the lexer, parser and a code generation backend into
// a single compilation. Each call builds its own state, so separate
// compilations may run in parallel.
package compiler

import (
	"fmt"

	"github.com/xplshn/egcc/pkg/ast"
	"github.com/xplshn/egcc/pkg/codegen"
	"github.com/xplshn/egcc/pkg/config"
	"github.com/xplshn/egcc/pkg/diag"
	"github.com/xplshn/egcc/pkg/lexer"
	"github.com/xplshn/egcc/pkg/parser"
	"github.com/xplshn/egcc/pkg/token"
)

// Unit holds the intermediate products of one compilation.
type Unit struct {
	Source  string
	Tokens  []token.Token
	Program *ast.Program
	Asm     string
}

// Parse runs the front end only. Lexical and syntax errors come back as
// *diag.Error.
func Parse(src string, cfg *config.Config, sink *diag.Sink) (*Unit, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	toks, err := lexer.Tokenize(src, cfg)
	if err != nil {
		return nil, err
	}
	prog, err := parser.NewParser(toks, cfg, sink).Parse()
	if err != nil {
		return nil, err
	}
	return &Unit{Source: src, Tokens: toks, Program: prog}, nil
}

// Build runs the whole pipeline and keeps every stage's output.
func Build(src string, cfg *config.Config, sink *diag.Sink) (*Unit, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	unit, err := Parse(src, cfg, sink)
	if err != nil {
		return nil, err
	}
	backend, err := codegen.SelectBackend(cfg)
	if err != nil {
		return nil, err
	}
	buf, err := backend.Generate(unit.Program, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s backend: %w", cfg.BackendName, err)
	}
	unit.Asm = buf.String()
	return unit, nil
}

// Compile turns source text into assembly for the configured target.
func Compile(src string, cfg *config.Config, sink *diag.Sink) (string, error) {
	unit, err := Build(src, cfg, sink)
	if err != nil {
		return "", err
	}
	return unit.Asm, nil
}
