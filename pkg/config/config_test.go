package config

import (
	"strings"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := NewConfig()
	if cfg.IsFeatureEnabled(FeatCComments) {
		t.Error("c-comments should be off by default")
	}
	for _, w := range []Warning{WarnUnreachableCode, WarnImplicitDecl} {
		if !cfg.IsWarningEnabled(w) {
			t.Errorf("warning %s should be on by default", cfg.Warnings[w].Name)
		}
	}
	if cfg.Target() != "arm64/linux" || cfg.EntrySymbol != "main" {
		t.Errorf("default target %s entry %s", cfg.Target(), cfg.EntrySymbol)
	}
}

func TestApplyFlag(t *testing.T) {
	tests := []struct {
		flags    []string
		comments bool
		unreach  bool
		implicit bool
	}{
		{[]string{"-Fc-comments"}, true, true, true},
		{[]string{"Fc-comments", "-Fno-c-comments"}, false, true, true},
		{[]string{"-Wno-all"}, false, false, false},
		{[]string{"-Wno-all", "-Wimplicit-decl"}, false, false, true},
		{[]string{"-Wno-unreachable-code"}, false, false, true},
		{[]string{"-Wno-all", "-Wall"}, false, true, true},
	}
	for _, tc := range tests {
		t.Run(strings.Join(tc.flags, " "), func(t *testing.T) {
			cfg := NewConfig()
			for _, f := range tc.flags {
				if err := cfg.ApplyFlag(f); err != nil {
					t.Fatalf("ApplyFlag(%q): %v", f, err)
				}
			}
			if got := cfg.IsFeatureEnabled(FeatCComments); got != tc.comments {
				t.Errorf("c-comments = %v; want %v", got, tc.comments)
			}
			if got := cfg.IsWarningEnabled(WarnUnreachableCode); got != tc.unreach {
				t.Errorf("unreachable-code = %v; want %v", got, tc.unreach)
			}
			if got := cfg.IsWarningEnabled(WarnImplicitDecl); got != tc.implicit {
				t.Errorf("implicit-decl = %v; want %v", got, tc.implicit)
			}
		})
	}
}

func TestApplyFlagErrors(t *testing.T) {
	for flag, want := range map[string]string{
		"-Wbogus":  "unknown warning 'bogus'",
		"-Fbogus":  "unknown feature 'bogus'",
		"-Xfoo":    "unrecognized flag '-Xfoo'",
		"-Fno-all": "unknown feature 'all'",
	} {
		err := NewConfig().ApplyFlag(flag)
		if err == nil || err.Error() != want {
			t.Errorf("ApplyFlag(%q) = %v; want %q", flag, err, want)
		}
	}
}

func TestSetTarget(t *testing.T) {
	tests := []struct {
		goos, goarch, sel string
		target, entry     string
	}{
		{"linux", "arm64", "", "arm64/linux", "main"},
		{"linux", "amd64", "arm64", "arm64/linux", "main"},
		{"darwin", "arm64", "arm64", "arm64/apple", "_main"},
		{"linux", "arm64", "arm64/apple", "arm64/apple", "_main"},
		{"linux", "amd64", "qbe/amd64_sysv", "qbe/amd64_sysv", "main"},
		{"linux", "amd64", "qbe/arm64_apple", "qbe/arm64_apple", "_main"},
		{"linux", "riscv64", "qbe/rv64", "qbe/rv64", "main"},
	}
	for _, tc := range tests {
		t.Run(tc.goos+"/"+tc.goarch+" "+tc.sel, func(t *testing.T) {
			cfg := NewConfig()
			if err := cfg.SetTarget(tc.goos, tc.goarch, tc.sel); err != nil {
				t.Fatalf("SetTarget: %v", err)
			}
			if cfg.Target() != tc.target || cfg.EntrySymbol != tc.entry {
				t.Errorf("got %s entry %s; want %s entry %s", cfg.Target(), cfg.EntrySymbol, tc.target, tc.entry)
			}
		})
	}
}

func TestSetTargetErrors(t *testing.T) {
	for _, sel := range []string{"z80", "arm64/windows", "qbe/vax"} {
		cfg := NewConfig()
		if err := cfg.SetTarget("linux", "arm64", sel); err == nil {
			t.Errorf("SetTarget(%q) should fail", sel)
		}
		if cfg.Target() != "arm64/linux" {
			t.Errorf("a failed SetTarget(%q) changed the target to %s", sel, cfg.Target())
		}
	}
}
