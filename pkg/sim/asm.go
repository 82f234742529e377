// Package sim assembles and executes the subset of AArch64 assembly that the
// arm64 backend emits, so generated code can be run without an AArch64 host.
package sim

import (
	"fmt"
	"strconv"
	"strings"
)

type Op int

const (
	OpMov Op = iota
	OpMovz
	OpMovk
	OpAdd
	OpSub
	OpMul
	OpUDiv
	OpCmp
	OpCset
	OpLdr
	OpStr
	OpB
	OpBCond
	OpBl
	OpRet
)

var mnemonics = map[string]Op{
	"mov": OpMov, "movz": OpMovz, "movk": OpMovk, "add": OpAdd, "sub": OpSub,
	"mul": OpMul, "udiv": OpUDiv, "cmp": OpCmp, "cset": OpCset, "ldr": OpLdr,
	"str": OpStr, "b": OpB, "bl": OpBl, "ret": OpRet,
}

// Register numbers. 0-30 are x0-x30; sp and xzr share encoding 31 on real
// hardware but are kept apart here.
const (
	RegFP  = 29
	RegLR  = 30
	RegSP  = 31
	RegXZR = 32

	numRegs = 33
)

type Cond int

const (
	CondEQ Cond = iota
	CondNE
	CondLT
	CondLE
	CondGT
	CondGE
	CondHS
	CondLO
)

var condNames = map[string]Cond{
	"eq": CondEQ, "ne": CondNE, "lt": CondLT, "le": CondLE,
	"gt": CondGT, "ge": CondGE, "hs": CondHS, "cs": CondHS, "lo": CondLO, "cc": CondLO,
}

type addrMode int

const (
	addrOffset addrMode = iota // [rn, #imm]
	addrPreIndex               // [rn, #imm]!
	addrPostIndex              // [rn], #imm
)

// Instr is one decoded instruction.
type Instr struct {
	Op     Op
	Rd     int
	Rn     int
	Rm     int
	UseImm bool
	Imm    int64
	Shift  uint
	Cond   Cond
	Mode   addrMode
	Target int
	Symbol string
	Line   int
	Text   string
}

// Program is an assembled listing. Labels map to instruction indexes.
type Program struct {
	Instrs  []Instr
	Labels  map[string]int
	Globals []string
}

func (p *Program) IsGlobal(name string) bool {
	for _, g := range p.Globals {
		if g == name {
			return true
		}
	}
	return false
}

type parsedLine struct {
	lineNo   int
	labels   []string
	mnemonic string
	operands []string
}

type Assembler struct {
	labels map[string]int
}

func NewAssembler() *Assembler {
	return &Assembler{labels: make(map[string]int)}
}

func Assemble(code string) (*Program, error) {
	return NewAssembler().Assemble(code)
}

func (a *Assembler) Assemble(code string) (*Program, error) {
	lines := strings.Split(code, "\n")
	parsed := make([]parsedLine, 0, len(lines))
	for i, raw := range lines {
		p, err := parseLine(raw, i+1)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, p)
	}

	if err := a.pass1(parsed); err != nil {
		return nil, err
	}
	return a.pass2(parsed)
}

// pass1 assigns every label the index of the next instruction.
func (a *Assembler) pass1(lines []parsedLine) error {
	index := 0
	for _, p := range lines {
		for _, lbl := range p.labels {
			if _, exists := a.labels[lbl]; exists {
				return fmt.Errorf("duplicate label '%s' on line %d", lbl, p.lineNo)
			}
			a.labels[lbl] = index
		}
		if p.mnemonic != "" && !isDirective(p.mnemonic) {
			index++
		}
	}
	return nil
}

func (a *Assembler) pass2(lines []parsedLine) (*Program, error) {
	prog := &Program{Labels: a.labels}
	for _, p := range lines {
		if p.mnemonic == "" {
			continue
		}
		if isDirective(p.mnemonic) {
			if p.mnemonic == ".globl" || p.mnemonic == ".global" {
				prog.Globals = append(prog.Globals, p.operands...)
			}
			continue
		}
		in, err := a.decode(p)
		if err != nil {
			return nil, err
		}
		prog.Instrs = append(prog.Instrs, in)
	}
	return prog, nil
}

func isDirective(mnemonic string) bool { return strings.HasPrefix(mnemonic, ".") }

func parseLine(raw string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo}
	line := stripComments(raw)
	line = strings.TrimSpace(line)

	for {
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			break
		}
		before := strings.TrimSpace(line[:colon])
		if strings.ContainsAny(before, " \t[,") {
			break
		}
		if !isLabel(before) {
			return p, fmt.Errorf("invalid label '%s' on line %d", before, lineNo)
		}
		p.labels = append(p.labels, before)
		line = strings.TrimSpace(line[colon+1:])
	}
	if line == "" {
		return p, nil
	}

	mnemonic, rest := line, ""
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		mnemonic, rest = line[:i], line[i+1:]
	}
	p.mnemonic = strings.ToLower(mnemonic)
	p.operands = splitOperands(rest)
	return p, nil
}

func stripComments(line string) string {
	if i := strings.Index(line, "//"); i >= 0 {
		line = line[:i]
	}
	return line
}

// splitOperands splits on commas that are not inside brackets.
func splitOperands(s string) []string {
	var ops []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				ops = append(ops, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if last := strings.TrimSpace(s[start:]); last != "" {
		ops = append(ops, last)
	}
	return ops
}

func isLabel(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_' || c == '.' || c == '$':
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case '0' <= c && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func parseRegister(tok string, lineNo int) (int, error) {
	switch tok = strings.ToLower(tok); tok {
	case "sp":
		return RegSP, nil
	case "xzr":
		return RegXZR, nil
	case "fp":
		return RegFP, nil
	case "lr":
		return RegLR, nil
	}
	if strings.HasPrefix(tok, "x") {
		if n, err := strconv.Atoi(tok[1:]); err == nil && n >= 0 && n <= 30 {
			return n, nil
		}
	}
	return 0, fmt.Errorf("invalid register '%s' on line %d", tok, lineNo)
}

func isImmediate(tok string) bool { return strings.HasPrefix(tok, "#") }

func parseImmediate(tok string, lineNo int) (int64, error) {
	body := strings.TrimPrefix(tok, "#")
	if v, err := strconv.ParseInt(body, 0, 64); err == nil {
		return v, nil
	}
	if v, err := strconv.ParseUint(body, 0, 64); err == nil {
		return int64(v), nil
	}
	return 0, fmt.Errorf("invalid immediate '%s' on line %d", tok, lineNo)
}

// parseShift reads an optional "lsl #n" operand.
func parseShift(ops []string, lineNo int) (uint, error) {
	if len(ops) == 0 {
		return 0, nil
	}
	kind, amount, _ := strings.Cut(strings.TrimSpace(ops[0]), " ")
	if strings.ToLower(kind) != "lsl" {
		return 0, fmt.Errorf("unsupported shift '%s' on line %d", ops[0], lineNo)
	}
	n, err := parseImmediate(strings.TrimSpace(amount), lineNo)
	if err != nil {
		return 0, err
	}
	if n%16 != 0 || n < 0 || n > 48 {
		return 0, fmt.Errorf("shift must be 0, 16, 32 or 48 on line %d", lineNo)
	}
	return uint(n), nil
}

func wantOperands(p parsedLine, lo, hi int) error {
	if n := len(p.operands); n < lo || n > hi {
		return fmt.Errorf("%s expects %d operand(s), got %d on line %d", p.mnemonic, lo, n, p.lineNo)
	}
	return nil
}

// regOrImm fills Rm or Imm from the last operand of an ALU instruction.
func regOrImm(in *Instr, tok string, lineNo int) error {
	if isImmediate(tok) {
		v, err := parseImmediate(tok, lineNo)
		if err != nil {
			return err
		}
		in.UseImm, in.Imm = true, v
		return nil
	}
	r, err := parseRegister(tok, lineNo)
	in.Rm = r
	return err
}

func (a *Assembler) resolve(label string, lineNo int) (int, error) {
	idx, ok := a.labels[label]
	if !ok {
		return 0, fmt.Errorf("undefined label '%s' on line %d", label, lineNo)
	}
	return idx, nil
}

func (a *Assembler) decode(p parsedLine) (Instr, error) {
	in := Instr{Line: p.lineNo, Text: p.mnemonic + " " + strings.Join(p.operands, ", ")}
	ops := p.operands
	var err error

	if cond, ok := branchCond(p.mnemonic); ok {
		if err := wantOperands(p, 1, 1); err != nil {
			return in, err
		}
		in.Op, in.Cond = OpBCond, cond
		in.Target, err = a.resolve(ops[0], p.lineNo)
		return in, err
	}

	op, ok := mnemonics[p.mnemonic]
	if !ok {
		return in, fmt.Errorf("unknown instruction on line %d: %s", p.lineNo, p.mnemonic)
	}
	in.Op = op

	switch op {
	case OpMov:
		if err := wantOperands(p, 2, 2); err != nil {
			return in, err
		}
		if in.Rd, err = parseRegister(ops[0], p.lineNo); err != nil {
			return in, err
		}
		err = regOrImm(&in, ops[1], p.lineNo)

	case OpMovz, OpMovk:
		if err := wantOperands(p, 2, 3); err != nil {
			return in, err
		}
		if in.Rd, err = parseRegister(ops[0], p.lineNo); err != nil {
			return in, err
		}
		if in.Imm, err = parseImmediate(ops[1], p.lineNo); err != nil {
			return in, err
		}
		if in.Imm < 0 || in.Imm > 0xffff {
			return in, fmt.Errorf("%s immediate out of range on line %d", p.mnemonic, p.lineNo)
		}
		in.Shift, err = parseShift(ops[2:], p.lineNo)

	case OpAdd, OpSub, OpMul, OpUDiv:
		if err := wantOperands(p, 3, 3); err != nil {
			return in, err
		}
		if in.Rd, err = parseRegister(ops[0], p.lineNo); err != nil {
			return in, err
		}
		if in.Rn, err = parseRegister(ops[1], p.lineNo); err != nil {
			return in, err
		}
		if err = regOrImm(&in, ops[2], p.lineNo); err != nil {
			return in, err
		}
		if in.UseImm && (op == OpMul || op == OpUDiv) {
			return in, fmt.Errorf("%s takes no immediate on line %d", p.mnemonic, p.lineNo)
		}
		if in.UseImm && (in.Imm < 0 || in.Imm > 4095) {
			return in, fmt.Errorf("%s immediate out of range on line %d", p.mnemonic, p.lineNo)
		}

	case OpCmp:
		if err := wantOperands(p, 2, 2); err != nil {
			return in, err
		}
		if in.Rn, err = parseRegister(ops[0], p.lineNo); err != nil {
			return in, err
		}
		err = regOrImm(&in, ops[1], p.lineNo)

	case OpCset:
		if err := wantOperands(p, 2, 2); err != nil {
			return in, err
		}
		if in.Rd, err = parseRegister(ops[0], p.lineNo); err != nil {
			return in, err
		}
		cond, ok := condNames[strings.ToLower(ops[1])]
		if !ok {
			return in, fmt.Errorf("unknown condition '%s' on line %d", ops[1], p.lineNo)
		}
		in.Cond = cond

	case OpLdr, OpStr:
		if err := wantOperands(p, 2, 3); err != nil {
			return in, err
		}
		if in.Rd, err = parseRegister(ops[0], p.lineNo); err != nil {
			return in, err
		}
		err = parseMemory(&in, ops[1:], p.lineNo)

	case OpB:
		if err := wantOperands(p, 1, 1); err != nil {
			return in, err
		}
		in.Target, err = a.resolve(ops[0], p.lineNo)

	case OpBl:
		if err := wantOperands(p, 1, 1); err != nil {
			return in, err
		}
		in.Symbol = ops[0]
		in.Target = -1
		if idx, ok := a.labels[ops[0]]; ok {
			in.Target = idx
		}

	case OpRet:
		if err := wantOperands(p, 0, 1); err != nil {
			return in, err
		}
		in.Rn = RegLR
		if len(ops) == 1 {
			in.Rn, err = parseRegister(ops[0], p.lineNo)
		}
	}
	return in, err
}

// branchCond recognizes both "b.eq" and the "beq" shorthand.
func branchCond(mnemonic string) (Cond, bool) {
	var name string
	switch {
	case strings.HasPrefix(mnemonic, "b."):
		name = mnemonic[2:]
	case len(mnemonic) == 3 && mnemonic[0] == 'b':
		name = mnemonic[1:]
	default:
		return 0, false
	}
	c, ok := condNames[name]
	return c, ok
}

// parseMemory handles [rn], [rn, #imm], [rn, #imm]! and [rn], #imm.
func parseMemory(in *Instr, ops []string, lineNo int) error {
	mem := ops[0]
	writeback := strings.HasSuffix(mem, "!")
	mem = strings.TrimSuffix(mem, "!")
	if !strings.HasPrefix(mem, "[") || !strings.HasSuffix(mem, "]") {
		return fmt.Errorf("invalid memory operand '%s' on line %d", ops[0], lineNo)
	}
	parts := splitOperands(mem[1 : len(mem)-1])
	if len(parts) == 0 || len(parts) > 2 {
		return fmt.Errorf("invalid memory operand '%s' on line %d", ops[0], lineNo)
	}
	var err error
	if in.Rn, err = parseRegister(parts[0], lineNo); err != nil {
		return err
	}
	if len(parts) == 2 {
		if in.Imm, err = parseImmediate(parts[1], lineNo); err != nil {
			return err
		}
	}

	switch {
	case len(ops) == 2:
		if writeback || len(parts) == 2 {
			return fmt.Errorf("post-index form must be [reg], #imm on line %d", lineNo)
		}
		in.Mode = addrPostIndex
		in.Imm, err = parseImmediate(ops[1], lineNo)
	case writeback:
		in.Mode = addrPreIndex
	default:
		in.Mode = addrOffset
	}
	return err
}
