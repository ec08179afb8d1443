// SPDX-License-Identifier: Apache-2.0
package config

// Tool configuration, loaded from an ebb.toml next to the analyzed file or
// in any parent directory. Everything has a default; a missing file is not
// an error.

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const FileName = "ebb.toml"

// Config controls the CLI and the language server.
type Config struct {
	// Verbosity is the commonlog verbosity: 0 silences debug output, higher
	// values get noisier.
	Verbosity int `toml:"verbosity"`

	// PrintIR makes the CLI echo the module, annotated with analysis facts.
	PrintIR bool `toml:"print_ir"`

	Checks Checks `toml:"checks"`
}

// Checks toggles individual finding families.
type Checks struct {
	Unreachable bool `toml:"unreachable"`
	Unused      bool `toml:"unused"`
	Constants   bool `toml:"constants"`
}

func Default() Config {
	return Config{
		PrintIR: true,
		Checks: Checks{
			Unreachable: true,
			Unused:      true,
			Constants:   true,
		},
	}
}

// Load finds and parses the nearest ebb.toml above dir. Absent file means
// defaults; a present but malformed file is an error.
func Load(dir string) (Config, error) {
	cfg := Default()
	path, ok := find(dir)
	if !ok {
		return cfg, nil
	}
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("loading %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("loading %s: unknown key %q", path, undecoded[0].String())
	}
	return cfg, nil
}

func find(dir string) (string, bool) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
