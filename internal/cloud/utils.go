// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cloud: this file implements the hierarchical configuration loader.
//
// The config directory comes from HAR_CONFIG_PREFIX and the runtime from
// HAR_RUNTIME (default "local"). With HAR_CONFIG_PREFIX=configs and
// HAR_RUNTIME=test the loader reads `configs/.env.toml` and then
// `configs/.env.test.toml`; either file may be absent. Environment variable
// overrides are applied last with caarlos0/env.
package cloud

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

const (
	ConfigFileBaseName  = ".env"
	ConfigFileExtension = ".toml"
	ConfigSeparator     = "."
	EnvConfigFilePrefix = "HAR_CONFIG_PREFIX"
	EnvConfigRuntime    = "HAR_RUNTIME"
	DefaultRuntime      = "local"
)

func fileExists(in string) bool {
	_, err := os.Stat(in)
	return !errors.Is(err, os.ErrNotExist)
}

// ConfigFiles returns the base and runtime-specific config file paths for dir and runtime.
func ConfigFiles(dir, runtime string) (base string, override string) {
	base = filepath.Join(dir, ConfigFileBaseName+ConfigFileExtension)
	override = filepath.Join(dir, ConfigFileBaseName+ConfigSeparator+runtime+ConfigFileExtension)
	return base, override
}

// LoadConfig fills baseConfig from the TOML files named by HAR_CONFIG_PREFIX
// and HAR_RUNTIME, then from environment variables.
func LoadConfig(baseConfig interface{}) error {
	runtime := os.Getenv(EnvConfigRuntime)
	if runtime == "" {
		runtime = DefaultRuntime
	}
	return LoadConfigFrom(os.Getenv(EnvConfigFilePrefix), runtime, baseConfig)
}

// LoadConfigFrom is LoadConfig with an explicit directory and runtime.
//
// Inputs:
//   - dir: Directory holding the `.env*.toml` files; empty means the working directory.
//   - runtime: Selects the override file, e.g. "test" for `.env.test.toml`.
//   - baseConfig: Pointer to the struct to populate.
//
// Outputs:
//   - error: A decode error naming the file, or an environment parse error.
func LoadConfigFrom(dir, runtime string, baseConfig interface{}) error {
	base, override := ConfigFiles(dir, runtime)
	for _, file := range []string{base, override} {
		if !fileExists(file) {
			slog.Debug("configuration file not found", "file", file)
			continue
		}
		if _, err := toml.DecodeFile(file, baseConfig); err != nil {
			return fmt.Errorf("failed to decode configuration file %s: %w", file, err)
		}
		slog.Debug("loaded configuration file", "file", file)
	}
	if err := env.Parse(baseConfig); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	return nil
}
