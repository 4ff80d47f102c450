// Copyright 2020-2021 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config unmarshals the small set of knobs an embedding program
// exposes over the evaluation core: the transaction loop's iteration and
// frame limits (spec.md §5), the log level its logger runs at, and
// whether the builtin function registry should be bootstrapped.
package config

import (
	"io"

	"github.com/evecore/dataflow/core/funcs"
	"github.com/evecore/dataflow/core/txn"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Config is the top-level configuration document, unmarshaled from YAML
// the way the teacher's own server configuration is.
type Config struct {
	// MaxIterations caps the derivation steps a single transaction may
	// take before it is considered non-terminating. Zero means "use the
	// built-in default" (EvalConfig substitutes it; the zero value is
	// never passed through to txn.Config).
	MaxIterations int `yaml:"max_iterations"`
	// MaxFrames caps the commit frames a single transaction may pass
	// through. Zero means "use the built-in default", same as above.
	MaxFrames int `yaml:"max_frames"`

	// LogLevel is a logrus level name ("debug", "info", "warn", ...).
	// Empty defaults to "info".
	LogLevel string `yaml:"log_level"`

	// RegisterBuiltins controls whether FuncRegistry bootstraps the
	// arithmetic/comparison/string builtins (spec §6 "Function
	// registry... registered by name at startup").
	RegisterBuiltins bool `yaml:"register_builtins"`
}

// Default returns the built-in defaults: the transaction loop's own
// defaults (txn.DefaultConfig), info-level logging, and builtins
// registered.
func Default() Config {
	d := txn.DefaultConfig()
	return Config{
		MaxIterations:    d.MaxIterations,
		MaxFrames:        d.MaxFrames,
		LogLevel:         "info",
		RegisterBuiltins: true,
	}
}

// Load unmarshals a YAML document from r into a Config seeded with
// Default, so an omitted field falls back to its default rather than
// its Go zero value.
func Load(r io.Reader) (Config, error) {
	cfg := Default()
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// EvalConfig extracts the txn.Config this configuration implies.
func (c Config) EvalConfig() txn.Config {
	d := txn.DefaultConfig()
	cfg := txn.Config{MaxIterations: c.MaxIterations, MaxFrames: c.MaxFrames}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = d.MaxIterations
	}
	if cfg.MaxFrames == 0 {
		cfg.MaxFrames = d.MaxFrames
	}
	return cfg
}

// Logger builds a logrus.Logger at the configured level, falling back
// to logrus.InfoLevel for an empty or unparseable LogLevel.
func (c Config) Logger() *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

// FuncRegistry builds a function registry, bootstrapped with the
// builtins when c.RegisterBuiltins is set.
func (c Config) FuncRegistry() (*funcs.Registry, error) {
	r := funcs.NewRegistry()
	if c.RegisterBuiltins {
		if err := funcs.RegisterBuiltins(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}
