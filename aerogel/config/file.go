// Copyright 2026 The AerogelOS Authors.
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

package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/Rangdy-Kor/AerogelOS/aerogel/flag"
)

// ApplyFile sets flags from the TOML file at path. Keys are flag names, for
// example:
//
//	debug = true
//	irq-lines = [0, 1]
//	tick-rate = "5ms"
//
// Flags already set on the command line are left alone.
func ApplyFile(flagSet *flag.FlagSet, path string) error {
	var opts map[string]any
	if _, err := toml.DecodeFile(path, &opts); err != nil {
		return fmt.Errorf("reading config file %q: %w", path, err)
	}
	names := make([]string, 0, len(opts))
	for name := range opts {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if name == "config" {
			return fmt.Errorf("config file %q: option %q cannot be set from a file", path, name)
		}
		if flagSet.Lookup(name) == nil {
			return fmt.Errorf("config file %q: unknown option %q", path, name)
		}
		if flag.IsSet(flagSet, name) {
			continue
		}
		val, err := tomlValue(opts[name])
		if err != nil {
			return fmt.Errorf("config file %q: option %q: %w", path, name, err)
		}
		if err := flagSet.Set(name, val); err != nil {
			return fmt.Errorf("config file %q: option %q: %w", path, name, err)
		}
	}
	return nil
}

// tomlValue formats a decoded TOML value the way it would be written on the
// command line. Arrays become comma separated lists.
func tomlValue(v any) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case []any:
		strs := make([]string, 0, len(v))
		for _, e := range v {
			if _, ok := e.([]any); ok {
				return "", fmt.Errorf("nested arrays are not supported")
			}
			s, err := tomlValue(e)
			if err != nil {
				return "", err
			}
			strs = append(strs, s)
		}
		return strings.Join(strs, ","), nil
	default:
		return "", fmt.Errorf("unsupported value %v (%T)", v, v)
	}
}
