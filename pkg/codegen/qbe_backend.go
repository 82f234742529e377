package codegen

import (
	"fmt"
	"strings"

	"github.com/xplshn/egcc/pkg/ast"
	"github.com/xplshn/egcc/pkg/config"
	"github.com/xplshn/egcc/pkg/ir"
)

type qbeBackend struct {
	out  *strings.Builder
	prog *ir.Program
}

// NewQBEBackend lowers the program to IR and hands it to QBE, which
// produces assembly for cfg.BackendTarget.
func NewQBEBackend() Backend { return &qbeBackend{} }

// GenerateIR renders prog as QBE intermediate language.
func (b *qbeBackend) GenerateIR(prog *ast.Program, cfg *config.Config) (string, error) {
	var qbeIRBuilder strings.Builder
	b.out = &qbeIRBuilder
	b.prog = NewContext(cfg).GenerateIR(prog)

	for _, name := range b.prog.Callees() {
		fmt.Fprintf(b.out, "# extern $%s/%d\n", name, b.prog.ExtrnFuncs[name])
	}
	for _, fn := range b.prog.Funcs {
		b.genFunc(fn)
	}
	return qbeIRBuilder.String(), nil
}

// GenerateQBE is the --dump-ir entry point.
func GenerateQBE(prog *ast.Program, cfg *config.Config) (string, error) {
	return (&qbeBackend{}).GenerateIR(prog, cfg)
}

func (b *qbeBackend) genFunc(fn *ir.Func) {
	wordType := b.wordType()
	fmt.Fprintf(b.out, "export function %s $%s() {\n", wordType, fn.Name)
	for _, block := range fn.Blocks {
		b.genBlock(block)
	}
	b.out.WriteString("}\n")
}

func (b *qbeBackend) genBlock(block *ir.BasicBlock) {
	fmt.Fprintf(b.out, "@%s\n", block.Label.Name)
	for _, instr := range block.Instructions {
		b.genInstr(instr)
	}
}

func (b *qbeBackend) genInstr(instr *ir.Instruction) {
	b.out.WriteString("\t")
	if instr.Op == ir.OpCall {
		b.genCall(instr)
		return
	}

	if instr.Result != nil {
		fmt.Fprintf(b.out, "%s =%s ", b.formatValue(instr.Result), b.wordType())
	}
	b.out.WriteString(b.formatOp(instr))

	for i, arg := range instr.Args {
		if instr.Op == ir.OpAlloc {
			fmt.Fprintf(b.out, " %d", instr.Args[0].(*ir.Const).Value)
			break
		}
		b.out.WriteString(" ")
		b.out.WriteString(b.formatValue(arg))
		if i < len(instr.Args)-1 {
			b.out.WriteString(",")
		}
	}
	b.out.WriteString("\n")
}

func (b *qbeBackend) genCall(instr *ir.Instruction) {
	fmt.Fprintf(b.out, "%s =%s call %s(", b.formatValue(instr.Result), b.wordType(), b.formatValue(instr.Args[0]))
	for i, arg := range instr.Args[1:] {
		fmt.Fprintf(b.out, "%s %s", b.wordType(), b.formatValue(arg))
		if i < len(instr.Args)-2 {
			b.out.WriteString(", ")
		}
	}
	b.out.WriteString(")\n")
}

func (b *qbeBackend) wordType() string {
	if b.prog.WordSize == 4 {
		return "w"
	}
	return "l"
}

func (b *qbeBackend) formatValue(v ir.Value) string {
	switch val := v.(type) {
	case *ir.Const:
		return fmt.Sprintf("%d", val.Value)
	case *ir.Global:
		return "$" + val.Name
	case *ir.Temporary:
		if val.ID == -1 {
			return "%" + strings.ReplaceAll(val.Name, ".", "_")
		}
		return fmt.Sprintf("%%t%d", val.ID)
	case *ir.Label:
		return "@" + val.Name
	default:
		return ""
	}
}

func (b *qbeBackend) formatOp(instr *ir.Instruction) string {
	t := b.wordType()
	switch instr.Op {
	case ir.OpAlloc:
		if instr.Align <= 4 {
			return "alloc4"
		}
		if instr.Align <= 8 {
			return "alloc8"
		}
		return "alloc16"
	case ir.OpLoad:
		return "load" + t
	case ir.OpStore:
		return "store" + t
	case ir.OpAdd:
		return "add"
	case ir.OpSub:
		return "sub"
	case ir.OpMul:
		return "mul"
	case ir.OpDiv:
		return "udiv"
	case ir.OpCEq:
		return "ceq" + t
	case ir.OpCNeq:
		return "cne" + t
	case ir.OpCLt:
		return "cslt" + t
	case ir.OpCLe:
		return "csle" + t
	case ir.OpCopy:
		return "copy"
	case ir.OpJmp:
		return "jmp"
	case ir.OpJnz:
		return "jnz"
	case ir.OpRet:
		return "ret"
	default:
		return "unknown_op"
	}
}
