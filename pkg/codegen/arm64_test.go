package codegen

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/egcc/pkg/ast"
	"github.com/xplshn/egcc/pkg/config"
	"github.com/xplshn/egcc/pkg/lexer"
	"github.com/xplshn/egcc/pkg/parser"
	"github.com/xplshn/egcc/pkg/sim"
)

func parseSource(t *testing.T, src string, cfg *config.Config) *ast.Program {
	t.Helper()
	toks, err := lexer.Tokenize(src, cfg)
	if err != nil {
		t.Fatalf("Tokenize(%q): %v", src, err)
	}
	prog, err := parser.NewParser(toks, cfg, nil).Parse()
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	return prog
}

func emitSource(t *testing.T, src string, cfg *config.Config) string {
	t.Helper()
	buf, err := NewARM64Backend().Generate(parseSource(t, src, cfg), cfg)
	if err != nil {
		t.Fatalf("Generate(%q): %v", src, err)
	}
	return buf.String()
}

var testExterns = map[string]sim.Extern{
	"add":   func(a []int64) int64 { return a[0] + a[1] },
	"nine":  func([]int64) int64 { return 9 },
	"pick8": func(a []int64) int64 { return a[7] },
}

func TestEmitMinimalProgram(t *testing.T) {
	want := `	.globl main
main:
	str x29, [sp, #-16]!
	mov x29, sp
	mov x0, #1
	str x0, [sp, #-16]!
	ldr x0, [sp], #16
.L.return:
	mov sp, x29
	ldr x29, [sp], #16
	ret
`
	if diff := cmp.Diff(want, emitSource(t, "1;", config.NewConfig())); diff != "" {
		t.Errorf("assembly mismatch (-want +got):\n%s", diff)
	}
}

func TestEmitFrameIsAligned(t *testing.T) {
	asm := emitSource(t, "a=1; b=2; c=3;", config.NewConfig())
	if !strings.Contains(asm, "\tsub sp, sp, #32\n") {
		t.Errorf("24-byte frame should be rounded to 32:\n%s", asm)
	}
}

func TestEmitCallPopsArgumentsInReverse(t *testing.T) {
	asm := emitSource(t, "foo(1,2);", config.NewConfig())
	want := "\tldr x1, [sp], #16\n\tldr x0, [sp], #16\n\tstr x30, [sp, #-16]!\n\tbl foo\n\tldr x30, [sp], #16\n\tstr x0, [sp, #-16]!\n"
	if !strings.Contains(asm, want) {
		t.Errorf("call sequence not found in:\n%s", asm)
	}
}

func TestEmitLabelsAreDistinct(t *testing.T) {
	asm := emitSource(t, "if (1) 2; while (0) 1; for (;0;) 1; if (1) 2; else 3;", config.NewConfig())
	for _, lbl := range []string{".L.end.1:", ".L.begin.2:", ".L.end.2:", ".L.begin.3:", ".L.end.3:", ".L.else.4:", ".L.end.4:"} {
		if strings.Count(asm, "\n"+lbl+"\n") != 1 {
			t.Errorf("label %s should be defined exactly once:\n%s", lbl, asm)
		}
	}
	if _, err := sim.Assemble(asm); err != nil {
		t.Errorf("emitted assembly does not assemble: %v", err)
	}
}

func TestEmitAppleTarget(t *testing.T) {
	cfg := config.NewConfig()
	if err := cfg.SetTarget("darwin", "arm64", "arm64"); err != nil {
		t.Fatalf("SetTarget: %v", err)
	}
	asm := emitSource(t, "nine();", cfg)
	for _, want := range []string{".globl _main\n", "\n_main:\n", "\tbl _nine\n"} {
		if !strings.Contains(asm, want) {
			t.Errorf("missing %q in:\n%s", want, asm)
		}
	}
	got, err := sim.Run(asm, "_main", testExterns)
	if err != nil {
		t.Fatalf("sim.Run: %v", err)
	}
	if got != 9 {
		t.Errorf("result = %d; want 9", got)
	}
}

// isolate wraps the code of a single statement so it can run on its own:
// x29 is set up as the frame base but nothing is popped afterwards.
func isolate(t *testing.T, stmt *ast.Node, frameSize int) string {
	t.Helper()
	e := NewEmitter(config.NewConfig())
	if err := e.gen(stmt); err != nil {
		t.Fatalf("gen: %v", err)
	}
	var sb strings.Builder
	sb.WriteString("\t.globl t\nt:\n\tmov x29, sp\n")
	if frameSize > 0 {
		fmt.Fprintf(&sb, "\tsub sp, sp, #%d\n", frameSize)
	}
	sb.WriteString(e.String())
	sb.WriteString("\tret\n")
	return sb.String()
}

func TestStackNeutrality(t *testing.T) {
	tests := []struct {
		src  string
		want int64
	}{
		{"42;", 42},
		{"65536;", 65536},
		{"4294967297;", 4294967297},
		{"1+2*3;", 7},
		{"10-4-3;", 3},
		{"7/2;", 3},
		{"-5+8;", 3},
		{"2<3;", 1},
		{"3<=2;", 0},
		{"3>2;", 1},
		{"2>=3;", 0},
		{"4==4;", 1},
		{"4!=4;", 0},
		{"a=5;", 5},
		{"a=b=7;", 7},
		{"if (1) 2;", 2},
		{"if (0) 2;", 0},
		{"if (1) 2; else 3;", 2},
		{"if (0) 2; else 3;", 3},
		{"while (i<3) i=i+1;", 0},
		{"for (i=0; i<4; i=i+1) {}", 0},
		{"for (;0;) 1;", 0},
		{"{ 1; 2; 3; }", 3},
		{"{}", 0},
		{"{ a=2; b=a*a; b+1; }", 5},
		{"add(1, 2);", 3},
		{"nine();", 9},
		{"pick8(1,2,3,4,5,6,7,8);", 8},
		{"add(add(1,2), nine());", 12},
	}
	for _, tc := range tests {
		t.Run(tc.src, func(t *testing.T) {
			prog := parseSource(t, tc.src, nil)
			if len(prog.Stmts) != 1 {
				t.Fatalf("want a single statement, got %d", len(prog.Stmts))
			}
			frame := alignTo(prog.FrameSize, 16)
			code := isolate(t, prog.Stmts[0], frame)

			asmProg, err := sim.Assemble(code)
			if err != nil {
				t.Fatalf("Assemble: %v\n%s", err, code)
			}
			m := sim.NewMachine(asmProg)
			for name, fn := range testExterns {
				m.Externs[name] = fn
			}
			if _, err := m.Run("t"); err != nil {
				t.Fatalf("Run: %v\n%s", err, code)
			}

			if delta := m.StackTop() - int64(frame) - m.SP(); delta != 16 {
				t.Errorf("statement pushed %d bytes; want exactly one 16-byte slot\n%s", delta, code)
			}
			top, err := m.Load64(m.SP())
			if err != nil {
				t.Fatalf("Load64: %v", err)
			}
			if top != tc.want {
				t.Errorf("value on stack = %d; want %d", top, tc.want)
			}
		})
	}
}

func TestRunPrograms(t *testing.T) {
	tests := []struct {
		src  string
		want int64
	}{
		{"a=3; b=5; return a+b;", 8},
		{"a=1; if(a==1){a=2;}else{a=3;} return a;", 2},
		{"a=0; if(a==1){a=2;}else{a=3;} return a;", 3},
		{"i=0; j=0; for(i=0;i<5;i=i+1){j=j+i;} return j;", 10},
		{"return 1; return 2;", 1},
		{"i=0; while(1) { i=i+1; if (i==5) return i; }", 5},
		{"x = 2; x * 21;", 42},
		{"", 0},
		{"if (0) 5;", 0},
		{"a = add(nine(), 1); for (;;) return a;", 10},
	}
	for _, tc := range tests {
		t.Run(tc.src, func(t *testing.T) {
			asm := emitSource(t, tc.src, config.NewConfig())
			got, err := sim.Run(asm, "main", testExterns)
			if err != nil {
				t.Fatalf("sim.Run: %v\n%s", err, asm)
			}
			if got != tc.want {
				t.Errorf("result = %d; want %d\n%s", got, tc.want, asm)
			}
		})
	}
}

func TestLargeFrame(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 600; i++ {
		fmt.Fprintf(&sb, "v%d=%d; ", i, i+1)
	}
	sb.WriteString("return v0+v599;")

	asm := emitSource(t, sb.String(), config.NewConfig())
	if !strings.Contains(asm, "\tsub sp, sp, x9\n") {
		t.Errorf("a 4800-byte frame should be reserved through a scratch register")
	}
	got, err := sim.Run(asm, "main", nil)
	if err != nil {
		t.Fatalf("sim.Run: %v", err)
	}
	if got != 601 {
		t.Errorf("result = %d; want 601", got)
	}
}
