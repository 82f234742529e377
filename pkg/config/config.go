package config

import (
	"fmt"
	"strings"

	"modernc.org/libqbe"
)

type Feature int

const (
	FeatCComments Feature = iota
	FeatCount
)

type Warning int

const (
	WarnUnreachableCode Warning = iota
	WarnImplicitDecl
	WarnCount
)

const (
	BackendARM64 = "arm64"
	BackendQBE   = "qbe"
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

type Config struct {
	Features   map[Feature]Info
	Warnings   map[Warning]Info
	FeatureMap map[string]Feature
	WarningMap map[string]Warning

	BackendName    string
	BackendTarget  string
	EntrySymbol    string
	WordSize       int
	StackAlignment int
	MaxCallArgs    int
}

func NewConfig() *Config {
	cfg := &Config{
		Features:       make(map[Feature]Info),
		Warnings:       make(map[Warning]Info),
		FeatureMap:     make(map[string]Feature),
		WarningMap:     make(map[string]Warning),
		BackendName:    BackendARM64,
		BackendTarget:  "linux",
		EntrySymbol:    "main",
		WordSize:       8,
		StackAlignment: 16,
		MaxCallArgs:    8,
	}

	features := map[Feature]Info{
		FeatCComments: {"c-comments", false, "Recognize C-style '//' line comments."},
	}

	warnings := map[Warning]Info{
		WarnUnreachableCode: {"unreachable-code", true, "Warn about statements that follow a 'return'."},
		WarnImplicitDecl:    {"implicit-decl", true, "Warn when a variable is read before it is ever assigned."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}

	return cfg
}

// SetTarget parses a "backend/target" selector. An empty target picks the
// host default for the backend.
func (c *Config) SetTarget(goos, goarch, selector string) error {
	backend, target, _ := strings.Cut(selector, "/")
	if backend == "" {
		backend = BackendARM64
	}

	switch backend {
	case BackendARM64:
		if target == "" {
			target = "linux"
			if goos == "darwin" || goos == "ios" {
				target = "apple"
			}
		}
		switch target {
		case "linux":
			c.EntrySymbol = "main"
		case "apple":
			c.EntrySymbol = "_main"
		default:
			return fmt.Errorf("unsupported arm64 target '%s'. Supported: 'linux', 'apple'", target)
		}
	case BackendQBE:
		if target == "" {
			target = libqbe.DefaultTarget(goos, goarch)
		}
		switch target {
		case "amd64_sysv", "arm64", "rv64":
			c.EntrySymbol = "main"
		case "amd64_apple", "arm64_apple":
			c.EntrySymbol = "_main"
		default:
			return fmt.Errorf("unsupported QBE target '%s'", target)
		}
	default:
		return fmt.Errorf("unsupported backend '%s'. Supported: 'arm64', 'qbe'", backend)
	}

	c.BackendName, c.BackendTarget = backend, target
	return nil
}

// Target renders the current selection in the same form SetTarget accepts.
func (c *Config) Target() string { return c.BackendName + "/" + c.BackendTarget }

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

// ApplyFlag handles one -W/-F style flag, with or without the leading dash.
func (c *Config) ApplyFlag(flag string) error {
	trimmed := strings.TrimPrefix(flag, "-")
	isWarning := strings.HasPrefix(trimmed, "W")
	if !isWarning && !strings.HasPrefix(trimmed, "F") {
		return fmt.Errorf("unrecognized flag '%s'", flag)
	}

	name := trimmed[1:]
	enable := !strings.HasPrefix(name, "no-")
	name = strings.TrimPrefix(name, "no-")

	if isWarning {
		if name == "all" {
			for i := Warning(0); i < WarnCount; i++ {
				c.SetWarning(i, enable)
			}
			return nil
		}
		w, ok := c.WarningMap[name]
		if !ok {
			return fmt.Errorf("unknown warning '%s'", name)
		}
		c.SetWarning(w, enable)
		return nil
	}

	f, ok := c.FeatureMap[name]
	if !ok {
		return fmt.Errorf("unknown feature '%s'", name)
	}
	c.SetFeature(f, enable)
	return nil
}
