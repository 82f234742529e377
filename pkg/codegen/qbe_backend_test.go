package codegen

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/egcc/pkg/config"
	"github.com/xplshn/egcc/pkg/ir"
)

func TestGenerateQBE(t *testing.T) {
	cfg := config.NewConfig()
	got, err := GenerateQBE(parseSource(t, "a=3; b=5; return a+b;", cfg), cfg)
	if err != nil {
		t.Fatalf("GenerateQBE: %v", err)
	}
	want := `export function l $main() {
@start
	%v_a =l alloc8 8
	%v_b =l alloc8 8
	storel 0, %v_a
	storel 0, %v_b
	storel 3, %v_a
	storel 5, %v_b
	%t0 =l loadl %v_a
	%t1 =l loadl %v_b
	%t2 =l add %t0, %t1
	ret %t2
}
`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("QBE IR mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateQBEOperators(t *testing.T) {
	cfg := config.NewConfig()
	got, err := GenerateQBE(parseSource(t, "x=1; x/2; x==1; x!=1; x<1; x<=1; x>1; f(x, 2);", cfg), cfg)
	if err != nil {
		t.Fatalf("GenerateQBE: %v", err)
	}
	for _, want := range []string{" udiv ", " ceql ", " cnel ", " csltl ", " cslel ", "call $f(l %t", ", l 2)"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}
}

func TestLowerControlFlow(t *testing.T) {
	cfg := config.NewConfig()
	prog := NewContext(cfg).GenerateIR(parseSource(t, "i=0; while (i<3) i=i+1; if (i) 1; else 2; return i; 7;", cfg))
	if len(prog.Funcs) != 1 || prog.Funcs[0].Name != "main" {
		t.Fatalf("want a single main function, got %d", len(prog.Funcs))
	}
	fn := prog.Funcs[0]

	labels := map[string]bool{}
	for _, b := range fn.Blocks {
		if labels[b.Label.Name] {
			t.Errorf("duplicate block label %s", b.Label.Name)
		}
		labels[b.Label.Name] = true
		for i, in := range b.Instructions {
			if in.Op.IsTerminator() && i != len(b.Instructions)-1 {
				t.Errorf("block %s: %s is not the last instruction", b.Label.Name, in.Op)
			}
		}
	}
	last := fn.Blocks[len(fn.Blocks)-1]
	if !last.Terminated() {
		t.Errorf("final block %s does not end in a terminator", last.Label.Name)
	}
	if got := last.Instructions[len(last.Instructions)-1]; got.Op != ir.OpRet {
		t.Errorf("final instruction = %s; want ret", got.Op)
	}
}

func TestLowerRecordsCallees(t *testing.T) {
	cfg := config.NewConfig()
	prog := NewContext(cfg).GenerateIR(parseSource(t, "b(1); a(); b(2);", cfg))
	if diff := cmp.Diff([]string{"a", "b"}, prog.Callees()); diff != "" {
		t.Errorf("Callees mismatch (-want +got):\n%s", diff)
	}
	if prog.ExtrnFuncs["b"] != 1 {
		t.Errorf("arity of b = %d; want 1", prog.ExtrnFuncs["b"])
	}
}

func TestGenerateQBEListsExterns(t *testing.T) {
	cfg := config.NewConfig()
	got, err := GenerateQBE(parseSource(t, "b(1, 2); a();", cfg), cfg)
	if err != nil {
		t.Fatalf("GenerateQBE: %v", err)
	}
	want := "# extern $a/0\n# extern $b/2\nexport function l $main() {\n"
	if !strings.HasPrefix(got, want) {
		t.Errorf("IR does not start with the extern header %q:\n%s", want, got)
	}
}

func TestTemporaryString(t *testing.T) {
	if got := (&ir.Temporary{ID: 3}).String(); got != "t3" {
		t.Errorf("numbered temporary = %q; want t3", got)
	}
	if got := (&ir.Temporary{Name: "v.a", ID: -1}).String(); got != "v.a" {
		t.Errorf("named temporary = %q; want v.a", got)
	}
}

func TestSelectBackend(t *testing.T) {
	cfg := config.NewConfig()
	if b, err := SelectBackend(cfg); err != nil {
		t.Errorf("SelectBackend(arm64): %v", err)
	} else if _, ok := b.(*arm64Backend); !ok {
		t.Errorf("SelectBackend(arm64) = %T", b)
	}
	cfg.BackendName = config.BackendQBE
	if b, err := SelectBackend(cfg); err != nil {
		t.Errorf("SelectBackend(qbe): %v", err)
	} else if _, ok := b.(*qbeBackend); !ok {
		t.Errorf("SelectBackend(qbe) = %T", b)
	}
	cfg.BackendName = "z80"
	if _, err := SelectBackend(cfg); err == nil {
		t.Error("SelectBackend(z80) should fail")
	}
}
