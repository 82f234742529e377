// Package ast defines the types used to represent the Abstract Syntax Tree (AST)
package ast

import (
	"fmt"
	"io"
	"strings"

	"github.com/xplshn/egcc/pkg/scope"
	"github.com/xplshn/egcc/pkg/token"
)

// NodeType defines the kind of a node in the AST
type NodeType int

// Node types enum
const (
	// Expressions
	Number NodeType = iota
	LocalVar
	Assign
	BinaryOp
	FuncCall

	// Statements
	Return
	If
	While
	For
	Block
)

var nodeTypeNames = [...]string{
	Number: "Number", LocalVar: "LocalVar", Assign: "Assign", BinaryOp: "BinaryOp",
	FuncCall: "FuncCall", Return: "Return", If: "If", While: "While", For: "For", Block: "Block",
}

func (t NodeType) String() string {
	if int(t) < len(nodeTypeNames) {
		return nodeTypeNames[t]
	}
	return fmt.Sprintf("NodeType(%d)", int(t))
}

// Op is a binary operator. Greater-than forms are rewritten to Lt/Le by the parser.
type Op int

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpEq
	OpNe
	OpLt
	OpLe
)

var opSymbols = [...]string{OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpEq: "==", OpNe: "!=", OpLt: "<", OpLe: "<="}

func (o Op) String() string {
	if int(o) < len(opSymbols) {
		return opSymbols[o]
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Node represents a node in the Abstract Syntax Tree
type Node struct {
	Type NodeType
	Tok  token.Token
	Data interface{}
}

// --- Node Data Structs ---
type NumberNode struct{ Value int64 }
type LocalVarNode struct {
	Name   string
	Offset int
}
type AssignNode struct{ Lhs, Rhs *Node }
type BinaryOpNode struct {
	Op          Op
	Left, Right *Node
}
type FuncCallNode struct {
	Name string
	Args []*Node
}
type ReturnNode struct{ Expr *Node }
type IfNode struct{ Cond, Then, Else *Node }
type WhileNode struct{ Cond, Body *Node }
type ForNode struct{ Init, Cond, Inc, Body *Node }
type BlockNode struct{ Stmts []*Node }

// Program is the parser's output: top-level statements in source order
// plus the stack frame they need.
type Program struct {
	Stmts     []*Node
	FrameSize int
	Locals    []scope.Var
}

// --- Node Constructors ---

func NewNumber(tok token.Token, value int64) *Node {
	return &Node{Type: Number, Tok: tok, Data: NumberNode{Value: value}}
}
func NewLocalVar(tok token.Token, v *scope.Var) *Node {
	return &Node{Type: LocalVar, Tok: tok, Data: LocalVarNode{Name: v.Name, Offset: v.Offset}}
}
func NewAssign(tok token.Token, lhs, rhs *Node) *Node {
	return &Node{Type: Assign, Tok: tok, Data: AssignNode{Lhs: lhs, Rhs: rhs}}
}
func NewBinaryOp(tok token.Token, op Op, left, right *Node) *Node {
	return &Node{Type: BinaryOp, Tok: tok, Data: BinaryOpNode{Op: op, Left: left, Right: right}}
}
func NewFuncCall(tok token.Token, name string, args []*Node) *Node {
	return &Node{Type: FuncCall, Tok: tok, Data: FuncCallNode{Name: name, Args: args}}
}
func NewReturn(tok token.Token, expr *Node) *Node {
	return &Node{Type: Return, Tok: tok, Data: ReturnNode{Expr: expr}}
}
func NewIf(tok token.Token, cond, then, els *Node) *Node {
	return &Node{Type: If, Tok: tok, Data: IfNode{Cond: cond, Then: then, Else: els}}
}
func NewWhile(tok token.Token, cond, body *Node) *Node {
	return &Node{Type: While, Tok: tok, Data: WhileNode{Cond: cond, Body: body}}
}
func NewFor(tok token.Token, init, cond, inc, body *Node) *Node {
	return &Node{Type: For, Tok: tok, Data: ForNode{Init: init, Cond: cond, Inc: inc, Body: body}}
}
func NewBlock(tok token.Token, stmts []*Node) *Node {
	return &Node{Type: Block, Tok: tok, Data: BlockNode{Stmts: stmts}}
}

// Dump writes an indented, one-node-per-line rendering of the program.
func Dump(w io.Writer, prog *Program) {
	fmt.Fprintf(w, "frame %d\n", prog.FrameSize)
	for _, v := range prog.Locals {
		fmt.Fprintf(w, "local %s @%d\n", v.Name, v.Offset)
	}
	for _, stmt := range prog.Stmts {
		dumpNode(w, stmt, 0, "")
	}
}

func dumpNode(w io.Writer, n *Node, depth int, label string) {
	indent := strings.Repeat("  ", depth)
	if label != "" {
		label += ": "
	}
	if n == nil {
		fmt.Fprintf(w, "%s%s<none>\n", indent, label)
		return
	}
	switch d := n.Data.(type) {
	case NumberNode:
		fmt.Fprintf(w, "%s%sNumber %d\n", indent, label, d.Value)
	case LocalVarNode:
		fmt.Fprintf(w, "%s%sLocalVar %s @%d\n", indent, label, d.Name, d.Offset)
	case AssignNode:
		fmt.Fprintf(w, "%s%sAssign\n", indent, label)
		dumpNode(w, d.Lhs, depth+1, "")
		dumpNode(w, d.Rhs, depth+1, "")
	case BinaryOpNode:
		fmt.Fprintf(w, "%s%sBinaryOp %s\n", indent, label, d.Op)
		dumpNode(w, d.Left, depth+1, "")
		dumpNode(w, d.Right, depth+1, "")
	case FuncCallNode:
		fmt.Fprintf(w, "%s%sFuncCall %s/%d\n", indent, label, d.Name, len(d.Args))
		for _, a := range d.Args {
			dumpNode(w, a, depth+1, "")
		}
	case ReturnNode:
		fmt.Fprintf(w, "%s%sReturn\n", indent, label)
		dumpNode(w, d.Expr, depth+1, "")
	case IfNode:
		fmt.Fprintf(w, "%s%sIf\n", indent, label)
		dumpNode(w, d.Cond, depth+1, "cond")
		dumpNode(w, d.Then, depth+1, "then")
		if d.Else != nil {
			dumpNode(w, d.Else, depth+1, "else")
		}
	case WhileNode:
		fmt.Fprintf(w, "%s%sWhile\n", indent, label)
		dumpNode(w, d.Cond, depth+1, "cond")
		dumpNode(w, d.Body, depth+1, "body")
	case ForNode:
		fmt.Fprintf(w, "%s%sFor\n", indent, label)
		dumpNode(w, d.Init, depth+1, "init")
		dumpNode(w, d.Cond, depth+1, "cond")
		dumpNode(w, d.Inc, depth+1, "inc")
		dumpNode(w, d.Body, depth+1, "body")
	case BlockNode:
		fmt.Fprintf(w, "%s%sBlock\n", indent, label)
		for _, s := range d.Stmts {
			dumpNode(w, s, depth+1, "")
		}
	default:
		fmt.Fprintf(w, "%s%s%s ?\n", indent, label, n.Type)
	}
}
