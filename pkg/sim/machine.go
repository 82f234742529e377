package sim

import (
	"encoding/binary"
	"fmt"
	"strings"
)

const (
	DefaultStackSize = 1 << 20
	DefaultMaxSteps  = 50_000_000

	stackBase = 0x7ff0_0000
	codeBase  = 0x40_0000

	// haltAddr is the return address planted in x30 before entry; returning
	// to it ends the run.
	haltAddr = 0
)

// Extern implements a function called with bl that has no label in the
// program. It receives x0-x7 and its result lands in x0.
type Extern func(args []int64) int64

// Fault is a runtime error pinned to the instruction that raised it.
type Fault struct {
	Line  int
	Instr string
	Msg   string
}

func (f *Fault) Error() string {
	if f.Line == 0 {
		return "sim: " + f.Msg
	}
	return fmt.Sprintf("sim: line %d (%s): %s", f.Line, f.Instr, f.Msg)
}

type Machine struct {
	Prog       *Program
	Regs       [numRegs]int64
	N, Z, C, V bool

	Externs   map[string]Extern
	StackSize int
	MaxSteps  int
	Steps     int

	mem []byte
	pc  int
}

func NewMachine(prog *Program) *Machine {
	return &Machine{
		Prog:      prog,
		Externs:   make(map[string]Extern),
		StackSize: DefaultStackSize,
		MaxSteps:  DefaultMaxSteps,
	}
}

// Run assembles code and executes it from entry with a fresh machine.
func Run(code, entry string, externs map[string]Extern) (int64, error) {
	prog, err := Assemble(code)
	if err != nil {
		return 0, err
	}
	m := NewMachine(prog)
	for name, fn := range externs {
		m.Externs[name] = fn
	}
	return m.Run(entry)
}

// StackTop is the initial value of sp.
func (m *Machine) StackTop() int64 { return stackBase + int64(m.StackSize) }

func (m *Machine) SP() int64 { return m.Regs[RegSP] }

func (m *Machine) reset() {
	m.Regs = [numRegs]int64{}
	m.N, m.Z, m.C, m.V = false, false, false, false
	m.Steps = 0
	m.mem = make([]byte, m.StackSize)
	m.Regs[RegSP] = m.StackTop()
	m.Regs[RegLR] = haltAddr
}

// Run executes from the entry label until it returns to the caller that
// Run simulates, and reports x0. The entry must be declared with .globl.
func (m *Machine) Run(entry string) (int64, error) {
	idx, ok := m.Prog.Labels[entry]
	if !ok {
		return 0, &Fault{Msg: fmt.Sprintf("entry symbol '%s' not found", entry)}
	}
	if !m.Prog.IsGlobal(entry) {
		return 0, &Fault{Msg: fmt.Sprintf("entry symbol '%s' is not declared .globl", entry)}
	}
	m.reset()
	m.pc = idx

	for {
		if m.Steps >= m.MaxSteps {
			return 0, &Fault{Msg: fmt.Sprintf("step limit of %d exceeded", m.MaxSteps)}
		}
		if m.pc < 0 || m.pc >= len(m.Prog.Instrs) {
			return 0, &Fault{Msg: fmt.Sprintf("pc ran off the program at index %d", m.pc)}
		}
		m.Steps++
		halted, err := m.step(&m.Prog.Instrs[m.pc])
		if err != nil {
			return 0, err
		}
		if halted {
			return m.Regs[0], nil
		}
	}
}

func (m *Machine) get(r int) int64 {
	if r == RegXZR {
		return 0
	}
	return m.Regs[r]
}

func (m *Machine) set(r int, v int64) {
	if r != RegXZR {
		m.Regs[r] = v
	}
}

func (m *Machine) operand(in *Instr) int64 {
	if in.UseImm {
		return in.Imm
	}
	return m.get(in.Rm)
}

func (m *Machine) setFlags(a, b int64) {
	res := a - b
	m.N = res < 0
	m.Z = res == 0
	m.C = uint64(a) >= uint64(b)
	m.V = ((a^b)&(a^res)) < 0
}

func (m *Machine) holds(c Cond) bool {
	switch c {
	case CondEQ:
		return m.Z
	case CondNE:
		return !m.Z
	case CondLT:
		return m.N != m.V
	case CondLE:
		return m.Z || m.N != m.V
	case CondGT:
		return !m.Z && m.N == m.V
	case CondGE:
		return m.N == m.V
	case CondHS:
		return m.C
	case CondLO:
		return !m.C
	}
	return false
}

func boolWord(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func (m *Machine) fault(in *Instr, format string, args ...interface{}) *Fault {
	return &Fault{Line: in.Line, Instr: in.Text, Msg: fmt.Sprintf(format, args...)}
}

// memIndex maps a stack address to an offset in m.mem.
func (m *Machine) memIndex(in *Instr, addr int64) (int, error) {
	if addr < stackBase || addr+8 > m.StackTop() {
		if addr < stackBase && addr >= stackBase-4096 {
			return 0, m.fault(in, "stack overflow at 0x%x", addr)
		}
		return 0, m.fault(in, "access to unmapped address 0x%x", addr)
	}
	return int(addr - stackBase), nil
}

func (m *Machine) Load64(addr int64) (int64, error) {
	i, err := m.memIndex(&Instr{}, addr)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(m.mem[i:])), nil
}

func (m *Machine) memory(in *Instr) error {
	base := m.get(in.Rn)
	if in.Rn == RegSP && base%16 != 0 {
		return m.fault(in, "sp 0x%x is not 16-byte aligned", base)
	}

	addr := base
	if in.Mode != addrPostIndex {
		addr += in.Imm
	}
	i, err := m.memIndex(in, addr)
	if err != nil {
		return err
	}

	if in.Op == OpLdr {
		m.set(in.Rd, int64(binary.LittleEndian.Uint64(m.mem[i:])))
	} else {
		binary.LittleEndian.PutUint64(m.mem[i:], uint64(m.get(in.Rd)))
	}

	switch in.Mode {
	case addrPreIndex:
		m.set(in.Rn, addr)
	case addrPostIndex:
		m.set(in.Rn, base+in.Imm)
	}
	return nil
}

func (m *Machine) callExtern(in *Instr) error {
	fn, ok := m.Externs[in.Symbol]
	if !ok {
		fn, ok = m.Externs[strings.TrimPrefix(in.Symbol, "_")]
	}
	if !ok {
		return m.fault(in, "undefined symbol '%s'", in.Symbol)
	}
	args := make([]int64, 8)
	copy(args, m.Regs[:8])
	m.Regs[0] = fn(args)
	return nil
}

// step executes one instruction and reports whether the program finished.
func (m *Machine) step(in *Instr) (bool, error) {
	next := m.pc + 1

	switch in.Op {
	case OpMov:
		m.set(in.Rd, m.operand(in))
	case OpMovz:
		m.set(in.Rd, in.Imm<<in.Shift)
	case OpMovk:
		mask := uint64(0xffff) << in.Shift
		v := uint64(m.get(in.Rd))&^mask | uint64(in.Imm)<<in.Shift
		m.set(in.Rd, int64(v))
	case OpAdd:
		m.set(in.Rd, m.get(in.Rn)+m.operand(in))
	case OpSub:
		m.set(in.Rd, m.get(in.Rn)-m.operand(in))
	case OpMul:
		m.set(in.Rd, m.get(in.Rn)*m.get(in.Rm))
	case OpUDiv:
		var q int64
		if d := uint64(m.get(in.Rm)); d != 0 {
			q = int64(uint64(m.get(in.Rn)) / d)
		}
		m.set(in.Rd, q)
	case OpCmp:
		m.setFlags(m.get(in.Rn), m.operand(in))
	case OpCset:
		m.set(in.Rd, boolWord(m.holds(in.Cond)))
	case OpLdr, OpStr:
		if err := m.memory(in); err != nil {
			return false, err
		}
	case OpB:
		next = in.Target
	case OpBCond:
		if m.holds(in.Cond) {
			next = in.Target
		}
	case OpBl:
		if in.Target >= 0 {
			m.Regs[RegLR] = codeBase + 4*int64(m.pc+1)
			next = in.Target
		} else if err := m.callExtern(in); err != nil {
			return false, err
		}
	case OpRet:
		target := m.get(in.Rn)
		if target == haltAddr {
			return true, nil
		}
		idx := (target - codeBase) / 4
		if target < codeBase || (target-codeBase)%4 != 0 || idx >= int64(len(m.Prog.Instrs)) {
			return false, m.fault(in, "return to invalid address 0x%x", target)
		}
		next = int(idx)
	default:
		return false, m.fault(in, "unimplemented op %d", in.Op)
	}

	m.pc = next
	return false, nil
}
