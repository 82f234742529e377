// egtest compiles every sample program, runs it in the simulator and checks
// the result against the "// expect: N" header on its first line. When a
// golden file exists next to the sample, the generated assembly, QBE IR and
// output are compared with it as well.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/egcc/pkg/codegen"
	"github.com/xplshn/egcc/pkg/compiler"
	"github.com/xplshn/egcc/pkg/config"
	"github.com/xplshn/egcc/pkg/sim"
)

const (
	cRed    = "\x1b[91m"
	cYellow = "\x1b[93m"
	cGreen  = "\x1b[92m"
	cCyan   = "\x1b[96m"
	cBold   = "\x1b[1m"
	cNone   = "\x1b[0m"
)

const expectPrefix = "// expect:"

// Golden is the recorded outcome of one sample, keyed by the hash of the
// source it was produced from.
type Golden struct {
	Hash     string `json:"hash"`
	Asm      string `json:"asm"`
	IR       string `json:"ir"`
	Stdout   string `json:"stdout"`
	ExitCode int64  `json:"exitCode"`
}

type FileTestResult struct {
	File     string        `json:"file"`
	Status   string        `json:"status"` // PASS, FAIL, SKIP, ERROR
	Message  string        `json:"message,omitempty"`
	Diff     string        `json:"diff,omitempty"`
	Steps    int           `json:"steps,omitempty"`
	Duration time.Duration `json:"duration"`
}

type options struct {
	testFiles      string
	jsonDir        string
	outputJSON     string
	generateGolden bool
	jobs           int
	verbose        bool
}

func main() {
	var opts options
	flag.StringVar(&opts.testFiles, "test-files", "testdata/*.c", "Glob pattern(s) for files to test (space-separated).")
	flag.StringVar(&opts.jsonDir, "dir", "", "Directory to store/read golden JSON files (defaults to source file dir).")
	flag.StringVar(&opts.outputJSON, "output", ".test_results.json", "Output file for the JSON test report.")
	flag.BoolVar(&opts.generateGolden, "generate-golden", false, "Write golden files for every sample instead of comparing.")
	flag.IntVar(&opts.jobs, "j", 4, "Number of parallel test jobs.")
	flag.BoolVar(&opts.verbose, "v", false, "Enable verbose logging.")
	flag.Parse()
	log.SetFlags(0)

	files, err := expandGlobPatterns(opts.testFiles)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Invalid glob pattern(s): %v\n", cRed, cNone, err)
	}
	if len(files) == 0 {
		log.Println("No test files found matching the pattern(s).")
		return
	}

	results := runSuite(files, opts)
	printSummary(os.Stdout, results, opts.verbose)
	writeJSONReport(results, opts)
	if hasFailures(results) {
		os.Exit(1)
	}
}

func goldenPath(sourceFile, jsonDir string) string {
	name := "." + filepath.Base(sourceFile) + ".json"
	if jsonDir != "" {
		return filepath.Join(jsonDir, name)
	}
	return filepath.Join(filepath.Dir(sourceFile), name)
}

func hashSource(src []byte) string {
	return fmt.Sprintf("%x", xxhash.Sum64(src))
}

// parseExpectation reads the expected exit value from the first line.
func parseExpectation(src string) (int64, error) {
	first, _, _ := strings.Cut(src, "\n")
	first = strings.TrimSpace(first)
	if !strings.HasPrefix(first, expectPrefix) {
		return 0, fmt.Errorf("first line must be '%s N'", expectPrefix)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(first[len(expectPrefix):]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad expectation %q: %w", first, err)
	}
	return v, nil
}

// execute compiles src for arm64/linux, whatever the host is, so golden
// assembly stays comparable between machines.
func execute(src string) (*Golden, int, error) {
	cfg := config.NewConfig()
	cfg.SetFeature(config.FeatCComments, true)
	if err := cfg.SetTarget("linux", "arm64", "arm64/linux"); err != nil {
		return nil, 0, err
	}
	unit, err := compiler.Build(src, cfg, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("compile: %w", err)
	}
	ir, err := codegen.GenerateQBE(unit.Program, cfg)
	if err != nil {
		return nil, 0, fmt.Errorf("qbe: %w", err)
	}

	prog, err := sim.Assemble(unit.Asm)
	if err != nil {
		return nil, 0, fmt.Errorf("assemble: %w", err)
	}
	var stdout bytes.Buffer
	m := sim.NewMachine(prog)
	m.Externs["putchar"] = func(args []int64) int64 {
		stdout.WriteByte(byte(args[0]))
		return args[0]
	}
	m.Externs["printn"] = func(args []int64) int64 {
		fmt.Fprintf(&stdout, "%d\n", args[0])
		return 0
	}
	code, err := m.Run(cfg.EntrySymbol)
	if err != nil {
		return nil, m.Steps, fmt.Errorf("run: %w", err)
	}
	return &Golden{Hash: hashSource([]byte(src)), Asm: unit.Asm, IR: ir, Stdout: stdout.String(), ExitCode: code}, m.Steps, nil
}

func testFile(file string, opts options) *FileTestResult {
	start := time.Now()
	res := &FileTestResult{File: file}
	defer func() { res.Duration = time.Since(start) }()

	data, err := os.ReadFile(file)
	if err != nil {
		res.Status, res.Message = "ERROR", fmt.Sprintf("Could not read source: %v", err)
		return res
	}
	src := string(data)
	want, err := parseExpectation(src)
	if err != nil {
		res.Status, res.Message = "ERROR", err.Error()
		return res
	}

	got, steps, err := execute(src)
	res.Steps = steps
	if err != nil {
		res.Status, res.Message = "FAIL", err.Error()
		return res
	}
	if got.ExitCode != want {
		res.Status = "FAIL"
		res.Message = fmt.Sprintf("Exit value mismatch: expected %d, got %d", want, got.ExitCode)
		return res
	}

	path := goldenPath(file, opts.jsonDir)
	if opts.generateGolden {
		if err := writeGolden(path, got); err != nil {
			res.Status, res.Message = "ERROR", err.Error()
			return res
		}
		res.Status, res.Message = "PASS", "Golden file written to "+path
		return res
	}

	golden, err := readGolden(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		res.Status, res.Message = "PASS", "Exit value matches (no golden file)"
		return res
	case err != nil:
		res.Status, res.Message = "ERROR", err.Error()
		return res
	case golden.Hash != got.Hash:
		res.Status, res.Message = "FAIL", "Golden file is stale, rerun with -generate-golden"
		return res
	}

	if diff := cmp.Diff(golden, got); diff != "" {
		res.Status, res.Message, res.Diff = "FAIL", "Output differs from golden file", diff
		return res
	}
	res.Status, res.Message = "PASS", "Exit value and golden output match"
	return res
}

func readGolden(path string) (*Golden, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var g Golden
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("could not parse golden file %s: %w", path, err)
	}
	return &g, nil
}

func writeGolden(path string, g *Golden) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal golden data: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// runSuite tests files on opts.jobs workers. Files whose content hashes
// the same as an earlier one are skipped.
func runSuite(files []string, opts options) []*FileTestResult {
	tasks := make(chan string, len(files))
	resultsChan := make(chan *FileTestResult, len(files))
	var wg sync.WaitGroup

	for i := 0; i < max(opts.jobs, 1); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range tasks {
				resultsChan <- testFile(file, opts)
			}
		}()
	}

	seen := make(map[string]string)
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			resultsChan <- &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Failed to read file for hashing: %v", err)}
			continue
		}
		h := hashSource(data)
		if original, ok := seen[h]; ok {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: fmt.Sprintf("Content is identical to %s", original)}
			continue
		}
		seen[h] = file
		tasks <- file
	}
	close(tasks)
	wg.Wait()
	close(resultsChan)

	var results []*FileTestResult
	for r := range resultsChan {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].File < results[j].File })
	return results
}

func printSummary(w io.Writer, results []*FileTestResult, verbose bool) {
	var passed, failed, skipped, errored int
	for _, r := range results {
		fmt.Fprintln(w, "----------------------------------------------------------------------")
		fmt.Fprintf(w, "Testing %s%s%s...\n", cCyan, r.File, cNone)
		switch r.Status {
		case "PASS":
			passed++
			fmt.Fprintf(w, "  [%sPASS%s] %s\n", cGreen, cNone, r.Message)
		case "FAIL":
			failed++
			fmt.Fprintf(w, "  [%sFAIL%s] %s\n", cRed, cNone, r.Message)
			fmt.Fprint(w, formatDiff(r.Diff))
		case "SKIP":
			skipped++
			fmt.Fprintf(w, "  [%sSKIP%s] %s\n", cYellow, cNone, r.Message)
		case "ERROR":
			errored++
			fmt.Fprintf(w, "  [%sERROR%s] %s\n", cRed, cNone, r.Message)
		}
		if verbose && r.Steps > 0 {
			fmt.Fprintf(w, "  %d instructions simulated in %s\n", r.Steps, r.Duration)
		}
	}
	fmt.Fprintln(w, "----------------------------------------------------------------------")
	fmt.Fprintf(w, "%sTest Summary:%s %s%d Passed%s, %s%d Failed%s, %s%d Skipped%s, %s%d Errored%s, %d Total\n",
		cBold, cNone, cGreen, passed, cNone, cRed, failed, cNone, cYellow, skipped, cNone, cRed, errored, cNone, len(results))
}

func formatDiff(diff string) string {
	if diff == "" {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("    --- Diff ---\n")
	for _, line := range strings.Split(diff, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "-"):
			sb.WriteString(cRed)
		case strings.HasPrefix(trimmed, "+"):
			sb.WriteString(cGreen)
		}
		sb.WriteString("    " + line + cNone + "\n")
	}
	return sb.String()
}

func writeJSONReport(results []*FileTestResult, opts options) {
	byFile := make(map[string]*FileTestResult, len(results))
	for _, r := range results {
		byFile[r.File] = r
	}
	data, err := json.MarshalIndent(byFile, "", "  ")
	if err != nil {
		log.Printf("%s[ERROR]%s Failed to marshal results to JSON: %v\n", cRed, cNone, err)
		return
	}
	out := opts.outputJSON
	if opts.jsonDir != "" {
		out = filepath.Join(opts.jsonDir, opts.outputJSON)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		log.Printf("%s[ERROR]%s Failed to write JSON report to %s: %v\n", cRed, cNone, out, err)
		return
	}
	fmt.Printf("Full test report saved to %s\n", out)
}

func hasFailures(results []*FileTestResult) bool {
	for _, r := range results {
		if r.Status == "FAIL" || r.Status == "ERROR" {
			return true
		}
	}
	return false
}

func expandGlobPatterns(patterns string) ([]string, error) {
	var all []string
	seen := make(map[string]bool)
	for _, pattern := range strings.Fields(patterns) {
		files, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %s: %w", pattern, err)
		}
		for _, file := range files {
			abs, err := filepath.Abs(file)
			if err != nil || seen[abs] {
				continue
			}
			if info, err := os.Stat(abs); err == nil && info.Mode().IsRegular() {
				all = append(all, abs)
				seen[abs] = true
			}
		}
	}
	return all, nil
}
