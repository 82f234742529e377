package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runEgcc(t *testing.T, stdin string, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = run(args, strings.NewReader(stdin), &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestRunExitStatus(t *testing.T) {
	tests := []struct {
		args []string
		want int
	}{
		{[]string{"--run", "a=3; b=5; return a+b;"}, 8},
		{[]string{"--run", "return 0;"}, 0},
		{[]string{"--run", "return 256+7;"}, 7},
		{[]string{"--run", "-t", "arm64/apple", "return 4;"}, 4},
	}
	for _, tc := range tests {
		t.Run(strings.Join(tc.args, " "), func(t *testing.T) {
			code, _, stderr := runEgcc(t, "", tc.args...)
			if code != tc.want {
				t.Errorf("exit = %d; want %d (stderr %q)", code, tc.want, stderr)
			}
		})
	}
}

func TestRunPutchar(t *testing.T) {
	code, stdout, _ := runEgcc(t, "", "--run", "putchar(104); putchar(105); 0;")
	if code != 0 || stdout != "hi" {
		t.Errorf("got exit %d, stdout %q; want 0, \"hi\"", code, stdout)
	}
}

func TestAssemblyToStdout(t *testing.T) {
	code, stdout, _ := runEgcc(t, "", "-t", "arm64/linux", "1;")
	if code != 0 {
		t.Fatalf("exit = %d", code)
	}
	if !strings.HasPrefix(stdout, "\t.globl main\nmain:\n") {
		t.Errorf("unexpected assembly:\n%s", stdout)
	}
}

func TestInputFromStdinAndFile(t *testing.T) {
	code, _, stderr := runEgcc(t, "return 9;", "--run", "-i", "-")
	if code != 9 {
		t.Errorf("stdin program exit = %d; want 9 (%s)", code, stderr)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "prog.c")
	if err := os.WriteFile(path, []byte("// six\nreturn 6;\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	code, _, stderr = runEgcc(t, "", "-Fc-comments", "--run", "-i", path)
	if code != 6 {
		t.Errorf("file program exit = %d; want 6 (%s)", code, stderr)
	}
}

func TestOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.s")
	code, stdout, _ := runEgcc(t, "", "-o", path, "return 1;")
	if code != 0 || stdout != "" {
		t.Fatalf("exit %d, stdout %q", code, stdout)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), ".L.return:") {
		t.Errorf("output file does not hold the assembly:\n%s", data)
	}
}

func TestDiagnostics(t *testing.T) {
	code, stdout, stderr := runEgcc(t, "", "a = 1 +;")
	if code != 1 {
		t.Errorf("exit = %d; want 1", code)
	}
	if stdout != "" {
		t.Errorf("no assembly may be written on error, got:\n%s", stdout)
	}
	want := "<arg>:1:8: syntax error: expected an expression, found ';'\n  a = 1 +;\n         ^\n"
	if stderr != want {
		t.Errorf("stderr = %q; want %q", stderr, want)
	}
}

func TestWarningsCanBeDisabled(t *testing.T) {
	_, _, stderr := runEgcc(t, "", "return 1; 2;")
	if !strings.Contains(stderr, "[-Wunreachable-code]") {
		t.Errorf("expected an unreachable-code warning, got %q", stderr)
	}
	_, _, stderr = runEgcc(t, "", "-Wno-all", "return 1; 2;")
	if stderr != "" {
		t.Errorf("-Wno-all should silence warnings, got %q", stderr)
	}
}

func TestDumps(t *testing.T) {
	_, stdout, _ := runEgcc(t, "", "--dump-tokens", "x=1;")
	want := "1:1\tIdent\tx\n1:2\tReserved\t=\n1:3\tNumber\t1\n1:4\tReserved\t;\n1:5\tEOF\n"
	if stdout != want {
		t.Errorf("--dump-tokens = %q; want %q", stdout, want)
	}

	_, stdout, _ = runEgcc(t, "", "--dump-ast", "x=1;")
	if !strings.HasPrefix(stdout, "frame 8\nlocal x @8\nAssign\n") {
		t.Errorf("--dump-ast output:\n%s", stdout)
	}

	_, stdout, _ = runEgcc(t, "", "--dump-ir", "x=1;")
	if !strings.HasPrefix(stdout, "export function l $main() {\n") {
		t.Errorf("--dump-ir output:\n%s", stdout)
	}
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{nil, "no input program"},
		{[]string{"a;", "b;"}, "expected a single program argument, got 2"},
		{[]string{"-t", "z80", "1;"}, "unsupported backend 'z80'"},
		{[]string{"-Wbogus", "1;"}, "unknown warning 'bogus'"},
		{[]string{"-t", "qbe", "--run", "1;"}, "--run needs the arm64 backend"},
		{[]string{"-i", "/nonexistent/prog.c"}, "could not read file"},
	}
	for _, tc := range tests {
		t.Run(strings.Join(tc.args, " "), func(t *testing.T) {
			code, _, stderr := runEgcc(t, "", tc.args...)
			if code != 1 {
				t.Errorf("exit = %d; want 1", code)
			}
			if !strings.Contains(stderr, tc.want) {
				t.Errorf("stderr = %q; want it to mention %q", stderr, tc.want)
			}
		})
	}
}

func TestHelp(t *testing.T) {
	code, stdout, _ := runEgcc(t, "", "--help")
	if code != 0 {
		t.Errorf("exit = %d", code)
	}
	for _, want := range []string{"--dump-ast", "-W<warning>", "unreachable-code", "c-comments"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("help is missing %q", want)
		}
	}
}
