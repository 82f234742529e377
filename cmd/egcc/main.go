package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"

	"github.com/xplshn/egcc/pkg/ast"
	"github.com/xplshn/egcc/pkg/cli"
	"github.com/xplshn/egcc/pkg/codegen"
	"github.com/xplshn/egcc/pkg/compiler"
	"github.com/xplshn/egcc/pkg/config"
	"github.com/xplshn/egcc/pkg/diag"
	"github.com/xplshn/egcc/pkg/sim"
	"github.com/xplshn/egcc/pkg/token"
)

// exitError carries a process exit status out of the action without
// printing anything else.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

type driver struct {
	input      string
	outFile    string
	target     string
	diagFlags  []string
	verbose    bool
	dumpTokens bool
	dumpAST    bool
	dumpIR     bool
	link       bool
	run        bool

	cfg    *config.Config
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func newApp(d *driver) *cli.App {
	app := cli.NewApp("egcc")
	app.Synopsis = "[options] <program> | -i <file|->"
	app.Description = "Compiles a tiny C-like expression language to AArch64 assembly. The whole program is a sequence of statements whose last value, or the first value returned, becomes the exit status."
	app.Stdout, app.Stderr = d.stdout, d.stderr

	fs := app.FlagSet
	fs.String(&d.input, "input", "i", "", "Read the program from <file>, or from stdin when <file> is '-'.", "file")
	fs.String(&d.outFile, "output", "o", "", "Write the assembly (or the executable with --link) to <file>.", "file")
	fs.String(&d.target, "target", "t", config.BackendARM64, "Set the backend and target, e.g. arm64/apple or qbe/amd64_sysv.", "backend/target")
	fs.Prefix(&d.diagFlags, "W", "Enable a warning, -Wno-<warning> disables it, -Wall toggles all.", "warning")
	fs.Prefix(&d.diagFlags, "F", "Enable a feature, -Fno-<feature> disables it.", "feature")
	fs.Bool(&d.verbose, "verbose", "v", false, "Report each compilation stage on stderr.")
	fs.Bool(&d.dumpTokens, "dump-tokens", "", false, "Print the token stream and exit.")
	fs.Bool(&d.dumpAST, "dump-ast", "", false, "Print the syntax tree and exit.")
	fs.Bool(&d.dumpIR, "dump-ir", "d", false, "Print the QBE intermediate representation and exit.")
	fs.Bool(&d.link, "link", "", false, "Assemble and link the output with the system C compiler.")
	fs.Bool(&d.run, "run", "", false, "Run the arm64 output in the built-in simulator and exit with its result.")

	var warnings, features []cli.Entry
	for i := config.Warning(0); i < config.WarnCount; i++ {
		info := d.cfg.Warnings[i]
		warnings = append(warnings, cli.Entry{Name: info.Name, Usage: info.Description, Enabled: info.Enabled})
	}
	for i := config.Feature(0); i < config.FeatCount; i++ {
		info := d.cfg.Features[i]
		features = append(features, cli.Entry{Name: info.Name, Usage: info.Description, Enabled: info.Enabled})
	}
	app.Sections = []cli.Section{{Title: "Warnings", Entries: warnings}, {Title: "Features", Entries: features}}

	app.Action = d.action
	return app
}

func (d *driver) logf(format string, args ...interface{}) {
	if d.verbose {
		fmt.Fprintf(d.stderr, format+"\n", args...)
	}
}

func (d *driver) readSource(args []string) (*diag.Source, error) {
	switch {
	case d.input != "" && len(args) > 0:
		return nil, errors.New("give the program either as an argument or with -i, not both")
	case d.input == "-":
		content, err := io.ReadAll(d.stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return &diag.Source{Name: "<stdin>", Content: string(content)}, nil
	case d.input != "":
		content, err := os.ReadFile(d.input)
		if err != nil {
			return nil, fmt.Errorf("could not read file '%s': %w", d.input, err)
		}
		return &diag.Source{Name: d.input, Content: string(content)}, nil
	case len(args) == 1:
		return &diag.Source{Name: "<arg>", Content: args[0]}, nil
	case len(args) == 0:
		return nil, errors.New("no input program")
	default:
		return nil, fmt.Errorf("expected a single program argument, got %d", len(args))
	}
}

func (d *driver) action(args []string) error {
	errSink := diag.NewSink(d.stderr, nil, d.cfg)
	fail := func(err error) error {
		errSink.Error(err)
		return &exitError{1}
	}

	for _, flag := range d.diagFlags {
		if err := d.cfg.ApplyFlag(flag); err != nil {
			return fail(err)
		}
	}
	if err := d.cfg.SetTarget(runtime.GOOS, runtime.GOARCH, d.target); err != nil {
		return fail(err)
	}
	if d.run && d.cfg.BackendName != config.BackendARM64 {
		return fail(fmt.Errorf("--run needs the arm64 backend, not '%s'", d.cfg.BackendName))
	}

	src, err := d.readSource(args)
	if err != nil {
		return fail(err)
	}
	sink := diag.NewSink(d.stderr, src, d.cfg)
	errSink.Source = src

	d.logf("Parsing %s for %s...", src.Name, d.cfg.Target())
	unit, err := compiler.Parse(src.Content, d.cfg, sink)
	if err != nil {
		return fail(err)
	}

	switch {
	case d.dumpTokens:
		dumpTokens(d.stdout, unit.Tokens)
		return nil
	case d.dumpAST:
		ast.Dump(d.stdout, unit.Program)
		return nil
	case d.dumpIR:
		text, err := codegen.GenerateQBE(unit.Program, d.cfg)
		if err != nil {
			return fail(err)
		}
		fmt.Fprint(d.stdout, text)
		return nil
	}

	d.logf("Generating code with '%s' backend...", d.cfg.BackendName)
	backend, err := codegen.SelectBackend(d.cfg)
	if err != nil {
		return fail(err)
	}
	buf, err := backend.Generate(unit.Program, d.cfg)
	if err != nil {
		return fail(fmt.Errorf("%s backend: %w", d.cfg.BackendName, err))
	}
	asm := buf.String()

	switch {
	case d.run:
		d.logf("Running in the simulator...")
		result, err := sim.Run(asm, d.cfg.EntrySymbol, runtimeExterns(d.stdout))
		if err != nil {
			return fail(err)
		}
		if code := int(result & 0xff); code != 0 {
			return &exitError{code}
		}
		return nil
	case d.link:
		out := d.outFile
		if out == "" {
			out = "a.out"
		}
		d.logf("Linking to create '%s'...", out)
		if err := assembleAndLink(out, asm); err != nil {
			return fail(fmt.Errorf("assembler/linker failed: %w", err))
		}
		return nil
	case d.outFile != "":
		if err := os.WriteFile(d.outFile, []byte(asm), 0o644); err != nil {
			return fail(err)
		}
		return nil
	default:
		fmt.Fprint(d.stdout, asm)
		return nil
	}
}

// runtimeExterns are the library functions available to --run.
func runtimeExterns(stdout io.Writer) map[string]sim.Extern {
	return map[string]sim.Extern{
		"putchar": func(args []int64) int64 {
			stdout.Write([]byte{byte(args[0])})
			return args[0]
		},
		"printn": func(args []int64) int64 {
			fmt.Fprintf(stdout, "%d\n", args[0])
			return 0
		},
	}
}

func dumpTokens(w io.Writer, toks []token.Token) {
	for _, tok := range toks {
		switch tok.Kind {
		case token.EOF:
			fmt.Fprintf(w, "%d:%d\t%s\n", tok.Line, tok.Column, tok.Kind)
		case token.Number:
			fmt.Fprintf(w, "%d:%d\t%s\t%d\n", tok.Line, tok.Column, tok.Kind, tok.Value)
		default:
			fmt.Fprintf(w, "%d:%d\t%s\t%s\n", tok.Line, tok.Column, tok.Kind, tok.Text)
		}
	}
}

func assembleAndLink(outFile, asm string) error {
	asmFile, err := os.CreateTemp("", "egcc-*.s")
	if err != nil {
		return fmt.Errorf("failed to create temp file for asm: %w", err)
	}
	defer os.Remove(asmFile.Name())
	if _, err := asmFile.WriteString(asm); err != nil {
		asmFile.Close()
		return fmt.Errorf("failed to write asm: %w", err)
	}
	asmFile.Close()

	cmd := exec.Command("cc", "-no-pie", "-o", outFile, asmFile.Name())
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("cc command failed: %w\nOutput:\n%s", err, string(output))
	}
	return nil
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	d := &driver{cfg: config.NewConfig(), stdin: stdin, stdout: stdout, stderr: stderr}
	err := newApp(d).Run(args)
	var ee *exitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ee):
		return ee.code
	default:
		return 1
	}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
