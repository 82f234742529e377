package codegen

import (
	"bytes"
	"fmt"

	"github.com/xplshn/egcc/pkg/ast"
	"github.com/xplshn/egcc/pkg/config"
)

type arm64Backend struct{}

// NewARM64Backend emits AArch64 assembly directly from the AST using a
// runtime operand stack.
func NewARM64Backend() Backend { return &arm64Backend{} }

func (b *arm64Backend) Generate(prog *ast.Program, cfg *config.Config) (*bytes.Buffer, error) {
	e := NewEmitter(cfg)
	if err := e.EmitProgram(prog); err != nil {
		return nil, err
	}
	return &e.out, nil
}

// slotSize is the stack distance of one pushed word. sp must stay 16-byte
// aligned on AArch64, so each 8-byte value occupies a 16-byte slot.
const slotSize = 16

// maxImm12 is the largest unshifted immediate accepted by add/sub.
const maxImm12 = 4095

// Emitter writes the assembly for one compilation. Every node it emits
// leaves exactly one more word on the operand stack than it found.
type Emitter struct {
	out        bytes.Buffer
	labelCount int
	cfg        *config.Config
}

func NewEmitter(cfg *config.Config) *Emitter {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return &Emitter{labelCount: 1, cfg: cfg}
}

func (e *Emitter) String() string { return e.out.String() }

func (e *Emitter) newLabel() int {
	l := e.labelCount
	e.labelCount++
	return l
}

func (e *Emitter) emit(format string, args ...interface{}) {
	e.out.WriteByte('\t')
	fmt.Fprintf(&e.out, format, args...)
	e.out.WriteByte('\n')
}

func (e *Emitter) label(format string, args ...interface{}) {
	fmt.Fprintf(&e.out, format, args...)
	e.out.WriteString(":\n")
}

func (e *Emitter) push(reg string) { e.emit("str %s, [sp, #-%d]!", reg, slotSize) }
func (e *Emitter) pop(reg string)  { e.emit("ldr %s, [sp], #%d", reg, slotSize) }
func (e *Emitter) drop()           { e.emit("add sp, sp, #%d", slotSize) }

// symbol applies the platform's C symbol prefix.
func (e *Emitter) symbol(name string) string {
	if e.cfg.BackendName == config.BackendARM64 && e.cfg.BackendTarget == "apple" {
		return "_" + name
	}
	return name
}

// loadImm materializes v in reg, using movz/movk for values that do not fit
// a single 16-bit move.
func (e *Emitter) loadImm(reg string, v int64) {
	if v >= 0 && v <= 0xffff {
		e.emit("mov %s, #%d", reg, v)
		return
	}
	u := uint64(v)
	e.emit("movz %s, #%d", reg, u&0xffff)
	for shift := uint(16); shift < 64; shift += 16 {
		if chunk := (u >> shift) & 0xffff; chunk != 0 {
			e.emit("movk %s, #%d, lsl #%d", reg, chunk, shift)
		}
	}
}

// EmitProgram writes the entry symbol, prologue, every top-level statement
// and the shared epilogue.
func (e *Emitter) EmitProgram(prog *ast.Program) error {
	entry := e.cfg.EntrySymbol
	frame := alignTo(prog.FrameSize, e.cfg.StackAlignment)

	e.emit(".globl %s", entry)
	e.label("%s", entry)
	e.push("x29")
	e.emit("mov x29, sp")
	switch {
	case frame == 0:
	case frame <= maxImm12:
		e.emit("sub sp, sp, #%d", frame)
	default:
		e.loadImm("x9", int64(frame))
		e.emit("sub sp, sp, x9")
	}

	if len(prog.Stmts) == 0 {
		e.emit("mov x0, #0")
	}
	for _, stmt := range prog.Stmts {
		if err := e.gen(stmt); err != nil {
			return err
		}
		e.pop("x0")
	}

	e.label(".L.return")
	e.emit("mov sp, x29")
	e.pop("x29")
	e.emit("ret")
	return nil
}

func alignTo(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}

// genAddr pushes the address of a local variable.
func (e *Emitter) genAddr(node *ast.Node) error {
	v, ok := node.Data.(ast.LocalVarNode)
	if !ok {
		return fmt.Errorf("codegen: %s is not an lvalue", node.Type)
	}
	if v.Offset <= maxImm12 {
		e.emit("sub x0, x29, #%d", v.Offset)
	} else {
		e.loadImm("x1", int64(v.Offset))
		e.emit("sub x0, x29, x1")
	}
	e.push("x0")
	return nil
}

var conditionCodes = map[ast.Op]string{ast.OpEq: "eq", ast.OpNe: "ne", ast.OpLt: "lt", ast.OpLe: "le"}

func (e *Emitter) gen(node *ast.Node) error {
	switch d := node.Data.(type) {
	case ast.NumberNode:
		e.loadImm("x0", d.Value)
		e.push("x0")

	case ast.LocalVarNode:
		if err := e.genAddr(node); err != nil {
			return err
		}
		e.pop("x1")
		e.emit("ldr x0, [x1]")
		e.push("x0")

	case ast.AssignNode:
		if err := e.genAddr(d.Lhs); err != nil {
			return err
		}
		if err := e.gen(d.Rhs); err != nil {
			return err
		}
		e.pop("x1")
		e.pop("x0")
		e.emit("str x1, [x0]")
		e.push("x1")

	case ast.BinaryOpNode:
		return e.genBinary(d)

	case ast.FuncCallNode:
		return e.genCall(d)

	case ast.ReturnNode:
		if err := e.gen(d.Expr); err != nil {
			return err
		}
		e.pop("x0")
		e.emit("b .L.return")

	case ast.IfNode:
		return e.genIf(d)

	case ast.WhileNode:
		return e.genLoop(nil, d.Cond, nil, d.Body)

	case ast.ForNode:
		return e.genLoop(d.Init, d.Cond, d.Inc, d.Body)

	case ast.BlockNode:
		if len(d.Stmts) == 0 {
			e.emit("mov x0, #0")
			e.push("x0")
			return nil
		}
		for i, s := range d.Stmts {
			if err := e.gen(s); err != nil {
				return err
			}
			if i < len(d.Stmts)-1 {
				e.drop()
			}
		}

	default:
		return fmt.Errorf("codegen: unhandled node %s", node.Type)
	}
	return nil
}

func (e *Emitter) genBinary(d ast.BinaryOpNode) error {
	if err := e.gen(d.Left); err != nil {
		return err
	}
	if err := e.gen(d.Right); err != nil {
		return err
	}
	e.pop("x1")
	e.pop("x0")

	switch d.Op {
	case ast.OpAdd:
		e.emit("add x0, x0, x1")
	case ast.OpSub:
		e.emit("sub x0, x0, x1")
	case ast.OpMul:
		e.emit("mul x0, x0, x1")
	case ast.OpDiv:
		e.emit("udiv x0, x0, x1")
	case ast.OpEq, ast.OpNe, ast.OpLt, ast.OpLe:
		e.emit("cmp x0, x1")
		e.emit("cset x0, %s", conditionCodes[d.Op])
	default:
		return fmt.Errorf("codegen: unknown operator %s", d.Op)
	}
	e.push("x0")
	return nil
}

func (e *Emitter) genCall(d ast.FuncCallNode) error {
	if len(d.Args) > e.cfg.MaxCallArgs {
		return fmt.Errorf("codegen: call to '%s' has %d arguments, at most %d are supported", d.Name, len(d.Args), e.cfg.MaxCallArgs)
	}
	for _, arg := range d.Args {
		if err := e.gen(arg); err != nil {
			return err
		}
	}
	for i := len(d.Args) - 1; i >= 0; i-- {
		e.pop(fmt.Sprintf("x%d", i))
	}
	e.push("x30")
	e.emit("bl %s", e.symbol(d.Name))
	e.pop("x30")
	e.push("x0")
	return nil
}

// genIf leaves the branch value, or without an else branch the false
// condition itself, which is zero.
func (e *Emitter) genIf(d ast.IfNode) error {
	seq := e.newLabel()
	if err := e.gen(d.Cond); err != nil {
		return err
	}

	if d.Else == nil {
		e.emit("ldr x0, [sp]")
		e.emit("cmp x0, #0")
		e.emit("beq .L.end.%d", seq)
		e.drop()
		if err := e.gen(d.Then); err != nil {
			return err
		}
		e.label(".L.end.%d", seq)
		return nil
	}

	e.pop("x0")
	e.emit("cmp x0, #0")
	e.emit("beq .L.else.%d", seq)
	if err := e.gen(d.Then); err != nil {
		return err
	}
	e.emit("b .L.end.%d", seq)
	e.label(".L.else.%d", seq)
	if err := e.gen(d.Else); err != nil {
		return err
	}
	e.label(".L.end.%d", seq)
	return nil
}

// genLoop emits while and for loops. A missing condition never exits. The
// loop's own value is always zero.
func (e *Emitter) genLoop(init, cond, inc, body *ast.Node) error {
	seq := e.newLabel()
	if init != nil {
		if err := e.gen(init); err != nil {
			return err
		}
		e.drop()
	}

	e.label(".L.begin.%d", seq)
	if cond != nil {
		if err := e.gen(cond); err != nil {
			return err
		}
		e.pop("x0")
		e.emit("cmp x0, #0")
		e.emit("beq .L.end.%d", seq)
	}
	if err := e.gen(body); err != nil {
		return err
	}
	e.drop()
	if inc != nil {
		if err := e.gen(inc); err != nil {
			return err
		}
		e.drop()
	}
	e.emit("b .L.begin.%d", seq)
	e.label(".L.end.%d", seq)
	e.emit("mov x0, #0")
	e.push("x0")
	return nil
}
