package compiler

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/xplshn/egcc/pkg/config"
	"github.com/xplshn/egcc/pkg/diag"
	"github.com/xplshn/egcc/pkg/sim"
)

func TestScenarios(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want int64
	}{
		{"sum of locals", "a=3; b=5; return a+b;", 8},
		{"if taken", "a=1; if(a==1){a=2;}else{a=3;} return a;", 2},
		{"else taken", "a=0; if(a==1){a=2;}else{a=3;} return a;", 3},
		{"for loop", "i=0; j=0; for(i=0;i<5;i=i+1){j=j+i;} return j;", 10},
		{"precedence", "return 5+6*7;", 47},
		{"parens", "return (5+6)*7;", 77},
		{"unary minus", "return -10+20;", 10},
		{"relational swap", "return (3>2)+(2>=2)+(1>2);", 2},
		{"nested loops", "s=0; for(i=0;i<3;i=i+1) for(j=0;j<4;j=j+1) s=s+1; return s;", 12},
		{"while countdown", "n=10; while(n) n=n-1; return n;", 0},
		{"fallthrough value", "a=4; a*a;", 16},
		{"comments", "// header\nreturn 6; // trailing", 6},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.NewConfig()
			cfg.SetFeature(config.FeatCComments, true)
			asm, err := Compile(tc.src, cfg, nil)
			if err != nil {
				t.Fatalf("Compile(%q): %v", tc.src, err)
			}
			got, err := sim.Run(asm, cfg.EntrySymbol, nil)
			if err != nil {
				t.Fatalf("sim.Run: %v\n%s", err, asm)
			}
			if got != tc.want {
				t.Errorf("%q = %d; want %d", tc.src, got, tc.want)
			}
		})
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		src     string
		kind    diag.Kind
		pos     int
		comment bool
	}{
		{"1+", diag.Syntactic, 2, false},
		{"a = 1 @ 2;", diag.Lexical, 6, false},
		{"// not a comment", diag.Syntactic, 0, false},
		{"99999999999999999999;", diag.Lexical, 0, false},
		{"return 1", diag.Syntactic, 8, false},
		{"// fine\n1 = 2;", diag.Syntactic, 8, true},
	}
	for _, tc := range tests {
		t.Run(tc.src, func(t *testing.T) {
			cfg := config.NewConfig()
			cfg.SetFeature(config.FeatCComments, tc.comment)
			asm, err := Compile(tc.src, cfg, nil)
			if asm != "" {
				t.Errorf("Compile produced output on error:\n%s", asm)
			}
			var de *diag.Error
			if !errors.As(err, &de) {
				t.Fatalf("Compile error = %v; want *diag.Error", err)
			}
			if de.Kind != tc.kind || de.Pos != tc.pos {
				t.Errorf("got %v at %d; want %v at %d", de.Kind, de.Pos, tc.kind, tc.pos)
			}
		})
	}
}

func TestErrorRendering(t *testing.T) {
	src := "a = 1;\nb = a +;\n"
	_, err := Compile(src, nil, nil)
	if err == nil {
		t.Fatal("Compile should fail")
	}
	var out bytes.Buffer
	sink := diag.NewSink(&out, &diag.Source{Name: "prog.c", Content: src}, config.NewConfig())
	sink.Error(err)

	want := "prog.c:2:8: syntax error: expected an expression, found ';'\n  b = a +;\n         ^\n"
	if out.String() != want {
		t.Errorf("rendered error:\n%q\nwant:\n%q", out.String(), want)
	}
}

func TestBuildKeepsStages(t *testing.T) {
	unit, err := Build("x = 1; return x;", nil, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if n := len(unit.Tokens); n != 8 {
		t.Errorf("len(Tokens) = %d; want 8", n)
	}
	if unit.Program.FrameSize != 8 {
		t.Errorf("FrameSize = %d; want 8", unit.Program.FrameSize)
	}
	if !strings.HasPrefix(unit.Asm, "\t.globl main\n") {
		t.Errorf("Asm does not start with the entry directive:\n%s", unit.Asm)
	}
}

func TestConcurrentCompilations(t *testing.T) {
	srcs := []string{"return 1;", "a=2; return a;", "if (1) 3; else 4;", "for(i=0;i<4;i=i+1) {} return i;"}
	want := []int64{1, 2, 3, 4}

	var wg sync.WaitGroup
	got := make([]int64, len(srcs)*8)
	errs := make([]error, len(got))
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			asm, err := Compile(srcs[i%len(srcs)], nil, nil)
			if err != nil {
				errs[i] = err
				return
			}
			got[i], errs[i] = sim.Run(asm, "main", nil)
		}(i)
	}
	wg.Wait()

	for i := range got {
		if errs[i] != nil {
			t.Errorf("compilation %d: %v", i, errs[i])
			continue
		}
		if got[i] != want[i%len(srcs)] {
			t.Errorf("compilation %d = %d; want %d", i, got[i], want[i%len(srcs)])
		}
	}
}
