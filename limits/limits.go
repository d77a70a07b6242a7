// Package limits defines the ExecutionLimits configuration of spec.md §5/§6:
// bounds on command count and brace-expansion size, plus the shell
// option/shopt defaults a fresh interpreter starts with. The executor
// enforces MaxCommandCount; the brace-expansion fields are carried in Config
// but brace expansion does not read them, so its output is not capped.
package limits

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config bounds a single script invocation and seeds its initial shell
// options, per spec.md §6 "Execution limits" and §3's options/shoptOptions.
type Config struct {
	MaxCommandCount          int `toml:"max_command_count"`
	MaxBraceExpansionResults int `toml:"max_brace_expansion_results"`
	MaxBraceOperations       int `toml:"max_brace_operations"`

	Options map[string]bool `toml:"options"`
	Shopt   map[string]bool `toml:"shopt"`
}

// Default returns the limits a fresh interpreter uses absent an explicit
// config file, matching spec.md §4.3's "≤ 10,000 results, ≤ 100,000 total
// operations" brace cap and a generous but finite command count.
func Default() Config {
	return Config{
		MaxCommandCount:          1_000_000,
		MaxBraceExpansionResults: 10_000,
		MaxBraceOperations:       100_000,
		Options: map[string]bool{
			"errexit":   false,
			"pipefail":  false,
			"nounset":   false,
			"noglob":    false,
			"allexport": false,
			"verbose":   false,
			"noexec":    false,
			"posix":     false,
			"xtrace":    false,
		},
		Shopt: map[string]bool{
			"extglob":        false,
			"globstar":       false,
			"nullglob":       false,
			"failglob":       false,
			"dotglob":        false,
			"expand_aliases": false,
		},
	}
}

// LoadFile decodes a TOML config file (e.g. sandboshell.toml) on top of
// Default, so a host can ship one beside its binary instead of wiring flags
// by hand. This is a pure struct-from-file decoder; it does not reintroduce
// the excluded CLI entry point.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("limits: %w", err)
	}
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return cfg, fmt.Errorf("limits: decoding %s: %w", path, err)
	}
	return cfg, nil
}
