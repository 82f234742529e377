package codegen

import (
	"bytes"
	"fmt"

	"github.com/xplshn/egcc/pkg/ast"
	"github.com/xplshn/egcc/pkg/config"
)

// Backend is the interface that all code generation backends must implement.
type Backend interface {
	// Generate takes a parsed program and a configuration, and produces the
	// target assembly as a byte buffer.
	Generate(prog *ast.Program, cfg *config.Config) (*bytes.Buffer, error)
}

// SelectBackend picks the backend named by cfg.BackendName.
func SelectBackend(cfg *config.Config) (Backend, error) {
	switch cfg.BackendName {
	case config.BackendARM64, "":
		return NewARM64Backend(), nil
	case config.BackendQBE:
		return NewQBEBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported backend '%s'", cfg.BackendName)
	}
}
