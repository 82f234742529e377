package codegen

import (
	"fmt"

	"github.com/xplshn/egcc/pkg/ast"
	"github.com/xplshn/egcc/pkg/config"
	"github.com/xplshn/egcc/pkg/ir"
)

// Context lowers a parsed program into IR for the QBE backend. The whole
// program becomes the body of a single entry function whose result is the
// value of the last statement executed.
type Context struct {
	prog         *ir.Program
	tempCount    int
	labelCount   int
	currentFunc  *ir.Func
	currentBlock *ir.BasicBlock
	slots        map[int]*ir.Temporary
	wordSize     int
	cfg          *config.Config
}

func NewContext(cfg *config.Config) *Context {
	return &Context{
		prog: &ir.Program{
			WordSize:   cfg.WordSize,
			ExtrnFuncs: make(map[string]int),
		},
		slots:    make(map[int]*ir.Temporary),
		wordSize: cfg.WordSize,
		cfg:      cfg,
	}
}

func (ctx *Context) newTemp() *ir.Temporary {
	t := &ir.Temporary{ID: ctx.tempCount}
	ctx.tempCount++
	return t
}

func (ctx *Context) newLabel() *ir.Label {
	l := &ir.Label{Name: fmt.Sprintf("L%d", ctx.labelCount)}
	ctx.labelCount++
	return l
}

func (ctx *Context) startBlock(label *ir.Label) {
	block := &ir.BasicBlock{Label: label}
	ctx.currentFunc.Blocks = append(ctx.currentFunc.Blocks, block)
	ctx.currentBlock = block
}

func (ctx *Context) addInstr(instr *ir.Instruction) {
	if ctx.currentBlock == nil {
		ctx.startBlock(ctx.newLabel())
	}
	ctx.currentBlock.Instructions = append(ctx.currentBlock.Instructions, instr)
}

// jumpTo closes the current block with a jump unless it is already closed.
func (ctx *Context) jumpTo(label *ir.Label) {
	if ctx.currentBlock != nil && !ctx.currentBlock.Terminated() {
		ctx.addInstr(&ir.Instruction{Op: ir.OpJmp, Args: []ir.Value{label}})
	}
}

// GenerateIR lowers prog. The returned program holds exactly one function.
func (ctx *Context) GenerateIR(prog *ast.Program) *ir.Program {
	ctx.currentFunc = &ir.Func{Name: "main"}
	ctx.prog.Funcs = append(ctx.prog.Funcs, ctx.currentFunc)
	ctx.startBlock(&ir.Label{Name: "start"})

	for _, v := range prog.Locals {
		slot := &ir.Temporary{Name: "v." + v.Name, ID: -1}
		ctx.slots[v.Offset] = slot
		ctx.addInstr(&ir.Instruction{Op: ir.OpAlloc, Result: slot, Args: []ir.Value{&ir.Const{Value: int64(ctx.wordSize)}}, Align: ctx.wordSize})
	}
	for _, v := range prog.Locals {
		ctx.addInstr(&ir.Instruction{Op: ir.OpStore, Args: []ir.Value{&ir.Const{Value: 0}, ctx.slots[v.Offset]}})
	}

	var last ir.Value = &ir.Const{Value: 0}
	for _, stmt := range prog.Stmts {
		last = ctx.codegenNode(stmt)
	}
	if ctx.currentBlock != nil && !ctx.currentBlock.Terminated() {
		ctx.addInstr(&ir.Instruction{Op: ir.OpRet, Args: []ir.Value{last}})
	}
	return ctx.prog
}

// codegenNode lowers one node and returns the value it leaves behind. After a
// return the value is irrelevant and a fresh unreachable block is opened
// lazily by addInstr.
func (ctx *Context) codegenNode(node *ast.Node) ir.Value {
	switch d := node.Data.(type) {
	case ast.NumberNode:
		return &ir.Const{Value: d.Value}

	case ast.LocalVarNode:
		res := ctx.newTemp()
		ctx.addInstr(&ir.Instruction{Op: ir.OpLoad, Result: res, Args: []ir.Value{ctx.slots[d.Offset]}})
		return res

	case ast.AssignNode:
		val := ctx.codegenNode(d.Rhs)
		slot := ctx.slots[d.Lhs.Data.(ast.LocalVarNode).Offset]
		ctx.addInstr(&ir.Instruction{Op: ir.OpStore, Args: []ir.Value{val, slot}})
		return val

	case ast.BinaryOpNode:
		left := ctx.codegenNode(d.Left)
		right := ctx.codegenNode(d.Right)
		res := ctx.newTemp()
		ctx.addInstr(&ir.Instruction{Op: binaryOps[d.Op], Result: res, Args: []ir.Value{left, right}})
		return res

	case ast.FuncCallNode:
		return ctx.codegenFuncCall(d)

	case ast.ReturnNode:
		val := ctx.codegenNode(d.Expr)
		ctx.addInstr(&ir.Instruction{Op: ir.OpRet, Args: []ir.Value{val}})
		ctx.currentBlock = nil
		return &ir.Const{Value: 0}

	case ast.IfNode:
		return ctx.codegenIf(d)

	case ast.WhileNode:
		ctx.codegenLoop(nil, d.Cond, nil, d.Body)
		return &ir.Const{Value: 0}

	case ast.ForNode:
		ctx.codegenLoop(d.Init, d.Cond, d.Inc, d.Body)
		return &ir.Const{Value: 0}

	case ast.BlockNode:
		var last ir.Value = &ir.Const{Value: 0}
		for _, s := range d.Stmts {
			last = ctx.codegenNode(s)
		}
		return last
	}
	panic(fmt.Sprintf("codegen: unhandled node %s", node.Type))
}

var binaryOps = map[ast.Op]ir.Op{
	ast.OpAdd: ir.OpAdd, ast.OpSub: ir.OpSub, ast.OpMul: ir.OpMul, ast.OpDiv: ir.OpDiv,
	ast.OpEq: ir.OpCEq, ast.OpNe: ir.OpCNeq, ast.OpLt: ir.OpCLt, ast.OpLe: ir.OpCLe,
}

func (ctx *Context) codegenFuncCall(d ast.FuncCallNode) ir.Value {
	args := make([]ir.Value, 0, len(d.Args)+1)
	args = append(args, &ir.Global{Name: d.Name})
	for _, a := range d.Args {
		args = append(args, ctx.codegenNode(a))
	}
	ctx.prog.ExtrnFuncs[d.Name] = len(d.Args)
	res := ctx.newTemp()
	ctx.addInstr(&ir.Instruction{Op: ir.OpCall, Result: res, Args: args})
	return res
}

// codegenIf yields the branch value, or the zero condition when the
// condition fails and there is no else branch.
func (ctx *Context) codegenIf(d ast.IfNode) ir.Value {
	cond := ctx.truth(ctx.codegenNode(d.Cond))
	res := ctx.newTemp()
	thenL, elseL, endL := ctx.newLabel(), ctx.newLabel(), ctx.newLabel()

	ctx.addInstr(&ir.Instruction{Op: ir.OpJnz, Args: []ir.Value{cond, thenL, elseL}})

	ctx.startBlock(thenL)
	thenVal := ctx.codegenNode(d.Then)
	if ctx.currentBlock != nil {
		ctx.addInstr(&ir.Instruction{Op: ir.OpCopy, Result: res, Args: []ir.Value{thenVal}})
	}
	ctx.jumpTo(endL)

	ctx.startBlock(elseL)
	var elseVal ir.Value = &ir.Const{Value: 0}
	if d.Else != nil {
		elseVal = ctx.codegenNode(d.Else)
	}
	if ctx.currentBlock != nil {
		ctx.addInstr(&ir.Instruction{Op: ir.OpCopy, Result: res, Args: []ir.Value{elseVal}})
	}
	ctx.jumpTo(endL)

	ctx.startBlock(endL)
	return res
}

// truth widens a condition to a full-word test, since jnz only looks at the
// low 32 bits of its operand.
func (ctx *Context) truth(v ir.Value) ir.Value {
	if _, ok := v.(*ir.Const); ok {
		return v
	}
	res := ctx.newTemp()
	ctx.addInstr(&ir.Instruction{Op: ir.OpCNeq, Result: res, Args: []ir.Value{v, &ir.Const{Value: 0}}})
	return res
}

// codegenLoop covers both while and for. A missing condition loops forever.
func (ctx *Context) codegenLoop(init, cond, inc, body *ast.Node) {
	if init != nil {
		ctx.codegenNode(init)
	}
	startL, bodyL, endL := ctx.newLabel(), ctx.newLabel(), ctx.newLabel()
	ctx.jumpTo(startL)

	ctx.startBlock(startL)
	if cond != nil {
		c := ctx.truth(ctx.codegenNode(cond))
		ctx.addInstr(&ir.Instruction{Op: ir.OpJnz, Args: []ir.Value{c, bodyL, endL}})
	} else {
		ctx.addInstr(&ir.Instruction{Op: ir.OpJmp, Args: []ir.Value{bodyL}})
	}

	ctx.startBlock(bodyL)
	ctx.codegenNode(body)
	if inc != nil {
		ctx.codegenNode(inc)
	}
	ctx.jumpTo(startL)

	ctx.startBlock(endL)
}
