// Package ir is a small SSA-style intermediate form consumed by the QBE
// backend. Every value is a 64-bit word.
package ir

import (
	"fmt"
	"sort"
)

type Op int

const (
	OpAlloc Op = iota
	OpLoad
	OpStore
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpCEq
	OpCNeq
	OpCLt
	OpCLe
	OpCopy
	OpJmp
	OpJnz
	OpRet
	OpCall
)

var opNames = [...]string{
	OpAlloc: "alloc", OpLoad: "load", OpStore: "store", OpAdd: "add", OpSub: "sub",
	OpMul: "mul", OpDiv: "div", OpCEq: "ceq", OpCNeq: "cne", OpCLt: "clt", OpCLe: "cle",
	OpCopy: "copy", OpJmp: "jmp", OpJnz: "jnz", OpRet: "ret", OpCall: "call",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// IsTerminator reports whether op ends a basic block.
func (o Op) IsTerminator() bool { return o == OpJmp || o == OpJnz || o == OpRet }

type Value interface {
	isValue()
	String() string
}

type Const struct{ Value int64 }
type Global struct{ Name string }
type Temporary struct {
	Name string
	ID   int
}
type Label struct{ Name string }

func (c *Const) isValue()     {}
func (g *Global) isValue()    {}
func (t *Temporary) isValue() {}
func (l *Label) isValue()     {}

func (c *Const) String() string  { return fmt.Sprintf("%d", c.Value) }
func (g *Global) String() string { return g.Name }
func (l *Label) String() string  { return l.Name }

// String names numbered temporaries t<ID>, as they print in QBE.
func (t *Temporary) String() string {
	if t.Name == "" {
		return fmt.Sprintf("t%d", t.ID)
	}
	return t.Name
}

type Func struct {
	Name   string
	Blocks []*BasicBlock
}

type BasicBlock struct {
	Label        *Label
	Instructions []*Instruction
}

// Terminated reports whether the block already ends in a jump or return.
func (b *BasicBlock) Terminated() bool {
	n := len(b.Instructions)
	return n > 0 && b.Instructions[n-1].Op.IsTerminator()
}

type Instruction struct {
	Op     Op
	Result Value
	Args   []Value
	Align  int
}

type Program struct {
	Funcs    []*Func
	WordSize int
	// ExtrnFuncs holds every callee name, which is always external.
	ExtrnFuncs map[string]int
}

// Callees lists the external function names in order. Their arity is
// ExtrnFuncs[name].
func (p *Program) Callees() []string {
	names := make([]string, 0, len(p.ExtrnFuncs))
	for name := range p.ExtrnFuncs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
