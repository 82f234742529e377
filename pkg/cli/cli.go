// Package cli is a small flag parser for egcc's command line. It understands
// long flags (--name, --name=value), shorthands (-o file, -ofile), and
// prefix flags such as -Wno-all whose name is the rest of the argument.
package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/term"
)

type Value interface {
	String() string
	Set(string) error
}

type stringValue struct{ p *string }

func (v *stringValue) Set(s string) error { *v.p = s; return nil }
func (v *stringValue) String() string     { return *v.p }

type boolValue struct{ p *bool }

func (v *boolValue) Set(s string) error {
	if s == "" {
		*v.p = true
		return nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid boolean value %q", s)
	}
	*v.p = b
	return nil
}
func (v *boolValue) String() string { return strconv.FormatBool(*v.p) }

type listValue struct{ p *[]string }

func (v *listValue) Set(s string) error { *v.p = append(*v.p, s); return nil }
func (v *listValue) String() string     { return strings.Join(*v.p, ",") }

type Flag struct {
	Name      string
	Shorthand string
	Usage     string
	Value     Value
	DefValue  string
	ArgName   string
	prefix    bool
}

func (f *Flag) isBool() bool {
	_, ok := f.Value.(*boolValue)
	return ok
}

// Entry is one line of a help section that is not a flag of its own, such as
// a warning name accepted by -W.
type Entry struct {
	Name    string
	Usage   string
	Enabled bool
}

type Section struct {
	Title   string
	Entries []Entry
}

type FlagSet struct {
	name       string
	flags      map[string]*Flag
	shorthands map[string]*Flag
	prefixes   []*Flag
	args       []string
}

func NewFlagSet(name string) *FlagSet {
	return &FlagSet{
		name:       name,
		flags:      make(map[string]*Flag),
		shorthands: make(map[string]*Flag),
	}
}

func (f *FlagSet) Args() []string { return f.args }

func (f *FlagSet) Lookup(name string) *Flag { return f.flags[name] }

func (f *FlagSet) String(p *string, name, shorthand, value, usage, argName string) {
	*p = value
	f.Var(&stringValue{p}, name, shorthand, usage, value, argName)
}

func (f *FlagSet) Bool(p *bool, name, shorthand string, value bool, usage string) {
	*p = value
	f.Var(&boolValue{p}, name, shorthand, usage, strconv.FormatBool(value), "")
}

// Prefix collects every argument of the form -<prefix><rest>. The stored
// value keeps the prefix, so -Wno-all is recorded as "Wno-all".
func (f *FlagSet) Prefix(p *[]string, prefix, usage, argName string) {
	*p = nil
	f.Var(&listValue{p}, prefix, "", usage, "", argName)
	flag := f.flags[prefix]
	flag.prefix = true
	f.prefixes = append(f.prefixes, flag)
	sort.Slice(f.prefixes, func(i, j int) bool { return len(f.prefixes[i].Name) > len(f.prefixes[j].Name) })
}

func (f *FlagSet) Var(value Value, name, shorthand, usage, defValue, argName string) {
	if name == "" {
		panic("flag name cannot be empty")
	}
	if _, ok := f.flags[name]; ok {
		panic(fmt.Sprintf("flag redefined: %s", name))
	}
	flag := &Flag{Name: name, Shorthand: shorthand, Usage: usage, Value: value, DefValue: defValue, ArgName: argName}
	f.flags[name] = flag
	if shorthand != "" {
		if _, ok := f.shorthands[shorthand]; ok {
			panic(fmt.Sprintf("shorthand flag redefined: %s", shorthand))
		}
		f.shorthands[shorthand] = flag
	}
}

func (f *FlagSet) Parse(arguments []string) error {
	f.args = nil
	for i := 0; i < len(arguments); i++ {
		arg := arguments[i]
		switch {
		case arg == "--":
			f.args = append(f.args, arguments[i+1:]...)
			return nil
		case len(arg) < 2 || arg[0] != '-':
			// "-" on its own is an operand (stdin).
			f.args = append(f.args, arg)
		case strings.HasPrefix(arg, "--"):
			if err := f.parseLong(arg[2:], arguments, &i); err != nil {
				return err
			}
		default:
			if err := f.parseShort(arg[1:], arguments, &i); err != nil {
				return err
			}
		}
	}
	return nil
}

// value fetches the argument of a non-boolean flag, either inline or from
// the next command line word.
func value(flag *Flag, display, inline string, hasInline bool, arguments []string, i *int) (string, error) {
	if hasInline {
		return inline, nil
	}
	if flag.isBool() {
		return "", nil
	}
	if *i+1 >= len(arguments) {
		return "", fmt.Errorf("flag needs an argument: %s", display)
	}
	*i++
	return arguments[*i], nil
}

func (f *FlagSet) parseLong(body string, arguments []string, i *int) error {
	name, inline, hasInline := strings.Cut(body, "=")
	if name == "" {
		return fmt.Errorf("empty flag name")
	}
	flag, ok := f.flags[name]
	if !ok || flag.prefix {
		return fmt.Errorf("unknown flag: --%s", name)
	}
	v, err := value(flag, "--"+name, inline, hasInline, arguments, i)
	if err != nil {
		return err
	}
	return flag.Value.Set(v)
}

func (f *FlagSet) parseShort(body string, arguments []string, i *int) error {
	// Single-dash long names (-help, -o=x) are accepted like gcc does.
	name, inline, hasInline := strings.Cut(body, "=")
	if flag, ok := f.flags[name]; ok && !flag.prefix {
		v, err := value(flag, "-"+name, inline, hasInline, arguments, i)
		if err != nil {
			return err
		}
		return flag.Value.Set(v)
	}

	for _, flag := range f.prefixes {
		if strings.HasPrefix(body, flag.Name) && len(body) > len(flag.Name) {
			return flag.Value.Set(body)
		}
	}

	short := body[:1]
	flag, ok := f.shorthands[short]
	if !ok {
		return fmt.Errorf("unknown shorthand flag: -%s", short)
	}
	if flag.isBool() {
		return flag.Value.Set("")
	}
	if rest := body[1:]; rest != "" {
		return flag.Value.Set(strings.TrimPrefix(rest, "="))
	}
	v, err := value(flag, "-"+short, "", false, arguments, i)
	if err != nil {
		return err
	}
	return flag.Value.Set(v)
}

type App struct {
	Name        string
	Synopsis    string
	Description string
	Sections    []Section
	FlagSet     *FlagSet
	Action      func(args []string) error

	Stdout io.Writer
	Stderr io.Writer
}

func NewApp(name string) *App {
	return &App{
		Name:    name,
		FlagSet: NewFlagSet(name),
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
}

func (a *App) Run(arguments []string) error {
	help := false
	a.FlagSet.Bool(&help, "help", "h", false, "Display this information")

	if err := a.FlagSet.Parse(arguments); err != nil {
		fmt.Fprintf(a.Stderr, "%s: %v\n", a.Name, err)
		fmt.Fprintf(a.Stderr, "Run '%s --help' for the list of options.\n", a.Name)
		return err
	}
	if help {
		a.WriteHelp(a.Stdout, terminalWidth(a.Stdout))
		return nil
	}
	if a.Action != nil {
		return a.Action(a.FlagSet.Args())
	}
	return nil
}

// WriteHelp renders the full help page wrapped to width columns.
func (a *App) WriteHelp(w io.Writer, width int) {
	var sb strings.Builder
	const indent1, indent2 = "  ", "    "

	if a.Synopsis != "" {
		fmt.Fprintf(&sb, "Usage: %s %s\n", a.Name, a.Synopsis)
	}
	if a.Description != "" {
		sb.WriteString("\n")
		for _, line := range wrapText(a.Description, width-len(indent1)) {
			fmt.Fprintf(&sb, "%s%s\n", indent1, line)
		}
	}

	flags := make([]*Flag, 0, len(a.FlagSet.flags))
	for _, flag := range a.FlagSet.flags {
		flags = append(flags, flag)
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i].Name < flags[j].Name })

	left := make([]string, len(flags))
	leftWidth := 0
	for i, flag := range flags {
		left[i] = flagString(flag)
		leftWidth = max(leftWidth, len(left[i]))
	}
	for _, sec := range a.Sections {
		for _, e := range sec.Entries {
			leftWidth = max(leftWidth, len(e.Name))
		}
	}

	if len(flags) > 0 {
		fmt.Fprintf(&sb, "\n%sOptions\n", indent1)
		for i, flag := range flags {
			usage := flag.Usage
			if flag.DefValue != "" && !flag.isBool() {
				usage += fmt.Sprintf(" (default %s)", flag.DefValue)
			}
			writeEntry(&sb, indent2, left[i], usage, leftWidth, width)
		}
	}

	for _, sec := range a.Sections {
		fmt.Fprintf(&sb, "\n%s%s\n", indent1, sec.Title)
		entries := append([]Entry(nil), sec.Entries...)
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		for _, e := range entries {
			mark := "|-|"
			if e.Enabled {
				mark = "|x|"
			}
			writeEntry(&sb, indent2, e.Name, mark+" "+e.Usage, leftWidth, width)
		}
	}
	fmt.Fprint(w, sb.String())
}

func flagString(flag *Flag) string {
	if flag.prefix {
		return fmt.Sprintf("-%s<%s>", flag.Name, flag.ArgName)
	}
	var sb strings.Builder
	if flag.Shorthand != "" {
		fmt.Fprintf(&sb, "-%s, ", flag.Shorthand)
	}
	fmt.Fprintf(&sb, "--%s", flag.Name)
	if !flag.isBool() && flag.ArgName != "" {
		fmt.Fprintf(&sb, " <%s>", flag.ArgName)
	}
	return sb.String()
}

// writeEntry prints "left  usage" with usage wrapped and continuation lines
// aligned under the first usage column.
func writeEntry(sb *strings.Builder, indent, left, usage string, leftWidth, width int) {
	lines := wrapText(usage, max(width-len(indent)-leftWidth-2, 10))
	if len(lines) == 0 {
		lines = []string{""}
	}
	fmt.Fprintf(sb, "%s%-*s  %s\n", indent, leftWidth, left, lines[0])
	pad := strings.Repeat(" ", len(indent)+leftWidth+2)
	for _, line := range lines[1:] {
		fmt.Fprintf(sb, "%s%s\n", pad, line)
	}
}

func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 80
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 80
	}
	return max(width, 20)
}

func wrapText(text string, maxWidth int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	var line strings.Builder
	for _, word := range words {
		if line.Len() > 0 && line.Len()+1+len(word) > maxWidth {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(word)
	}
	return append(lines, line.String())
}
