/*
	Timelinize
	Copyright (c) 2013 Matthew Holt

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package gccmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/timelinize/geoconvert/geodata"
)

// Config describes how files are converted.
type Config struct {
	// Where to write converted files. If empty, each output
	// is written next to its input.
	OutputDir string `json:"output_dir,omitempty"`

	// The format to convert to.
	Target geodata.Format `json:"target,omitempty"`

	// Maximum number of files to convert at once.
	Concurrency int `json:"concurrency,omitempty"`

	// Path simplification factor, 0 (off) to 10.
	Simplification float64 `json:"simplification,omitempty"`

	// Document name and description for outputs that have them.
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`

	// Accept slightly non-compliant input where possible.
	Lenient bool `json:"lenient,omitempty"`

	// One of debug, info, warn, or error.
	LogLevel string `json:"log_level,omitempty"`
}

// Environment variables that override the config file.
const (
	envOutputDir   = "GEOCONVERT_OUTPUT_DIR"
	envConcurrency = "GEOCONVERT_CONCURRENCY"
)

const defaultTarget = geodata.FormatGPX

// DefaultConfigFilePath returns the file path where
// configuration is read from by default.
func DefaultConfigFilePath() string {
	cfgDir, err := os.UserConfigDir()
	if err == nil {
		return filepath.Join(cfgDir, "geoconvert", "config.json")
	}
	cfgDir, err = os.UserHomeDir()
	if err == nil {
		return filepath.Join(cfgDir, ".geoconvert", "config.json")
	}
	return filepath.Join(".geoconvert", "config.json")
}

// loadConfigFile reads the config at filename. A missing file is only
// an error if it is not the default config file.
func loadConfigFile(filename string) (*Config, error) {
	cfgBytes, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && filename == DefaultConfigFilePath() {
			return new(Config), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg := new(Config)
	if err := json.Unmarshal(cfgBytes, cfg); err != nil {
		return nil, fmt.Errorf("decoding config file %s: %w", filename, err)
	}
	return cfg, nil
}

// applyEnv overrides config values with those set in the environment.
func (cfg *Config) applyEnv(getenv func(string) string) error {
	if envVal := getenv(envOutputDir); envVal != "" {
		cfg.OutputDir = envVal
	}
	if envVal := getenv(envConcurrency); envVal != "" {
		n, err := strconv.Atoi(envVal)
		if err != nil {
			return fmt.Errorf("%s: %w", envConcurrency, err)
		}
		cfg.Concurrency = n
	}
	return nil
}

func (cfg *Config) fillDefaults() {
	if cfg.Target == "" {
		cfg.Target = defaultTarget
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.GOMAXPROCS(0)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

func (cfg *Config) validate() error {
	codec, err := geodata.GetCodec(cfg.Target)
	if err != nil {
		return err
	}
	if !codec.CanSerialize() {
		return fmt.Errorf("cannot convert to %s; it is only supported as an input format", cfg.Target)
	}
	if _, err := geodata.SimplificationEpsilon(cfg.Simplification); err != nil {
		return err
	}
	if cfg.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", cfg.Concurrency)
	}
	return nil
}
