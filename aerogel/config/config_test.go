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
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Rangdy-Kor/AerogelOS/aerogel/flag"
	"github.com/Rangdy-Kor/AerogelOS/pkg/interrupts"
	"github.com/Rangdy-Kor/AerogelOS/pkg/pic"
)

func newFlags(t *testing.T) *flag.FlagSet {
	t.Helper()
	testFlags := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(testFlags)
	return testFlags
}

func TestDefault(t *testing.T) {
	c, err := NewFromFlags(newFlags(t))
	if err != nil {
		t.Fatal(err)
	}
	// All defaults doesn't require setting flags.
	if flags := c.ToFlags(); len(flags) > 0 {
		t.Errorf("default flags not set correctly for: %s", flags)
	}
	if diff := cmp.Diff(interrupts.DefaultConfig(), c.Interrupts()); diff != "" {
		t.Errorf("Interrupts() mismatch (-want +got):\n%s", diff)
	}
	if c.TickRate != DefaultTickRate {
		t.Errorf("TickRate = %v, want %v", c.TickRate, DefaultTickRate)
	}
}

func TestFromFlags(t *testing.T) {
	testFlags := newFlags(t)
	for name, val := range map[string]string{
		"debug":         "true",
		"irq-lines":     "1",
		"master-offset": "48",
		"slave-offset":  "64",
		"queue-size":    "32",
		"tick-rate":     "1s",
	} {
		if err := testFlags.Set(name, val); err != nil {
			t.Fatalf("Flag set %q: %v", name, err)
		}
	}
	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}
	if !c.Debug {
		t.Errorf("Debug = false, want true")
	}
	if c.TickRate != time.Second {
		t.Errorf("TickRate = %v, want 1s", c.TickRate)
	}
	want := interrupts.Config{
		MasterOffset: 48,
		SlaveOffset:  64,
		Lines:        []int{interrupts.KeyboardLine},
		QueueSize:    32,
	}
	if diff := cmp.Diff(want, c.Interrupts()); diff != "" {
		t.Errorf("Interrupts() mismatch (-want +got):\n%s", diff)
	}
}

func TestToFlagsFromFlags(t *testing.T) {
	testFlags := newFlags(t)
	testFlags.Set("debug", "true")
	testFlags.Set("log-format", "text") // Matches default value.
	testFlags.Set("irq-lines", "0")
	testFlags.Set("tick-rate", "0s")
	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"--debug=true", "--irq-lines=0", "--tick-rate=0s"}
	if diff := cmp.Diff(want, c.ToFlags()); diff != "" {
		t.Errorf("ToFlags() mismatch (-want +got):\n%s", diff)
	}

	// Feeding the flags back must reproduce the config.
	again := newFlags(t)
	if err := again.Parse(c.ToFlags()); err != nil {
		t.Fatal(err)
	}
	c2, err := NewFromFlags(again)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(c, c2); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLineList(t *testing.T) {
	for _, tc := range []struct {
		in      string
		want    LineList
		wantErr bool
	}{
		{in: "0,1", want: LineList{0, 1}},
		{in: " 1 , 12 ", want: LineList{1, 12}},
		{in: "", want: nil},
		{in: "16", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "a", wantErr: true},
		{in: "0,,1", wantErr: true},
	} {
		t.Run(tc.in, func(t *testing.T) {
			var l LineList
			err := l.Set(tc.in)
			if gotErr := err != nil; gotErr != tc.wantErr {
				t.Fatalf("Set(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			}
			if tc.wantErr {
				return
			}
			if diff := cmp.Diff(tc.want, l); diff != "" {
				t.Errorf("Set(%q) mismatch (-want +got):\n%s", tc.in, diff)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		flag string
		val  string
		is   error
	}{
		{name: "log format", flag: "log-format", val: "json-k8s"},
		{name: "master in exceptions", flag: "master-offset", val: "8", is: pic.ErrBadOffset},
		{name: "unaligned slave", flag: "slave-offset", val: "44", is: pic.ErrBadOffset},
		{name: "overlap", flag: "slave-offset", val: "32", is: pic.ErrBadOffset},
		{name: "too large", flag: "slave-offset", val: "256", is: pic.ErrBadOffset},
		{name: "queue not power of 2", flag: "queue-size", val: "12"},
		{name: "queue zero", flag: "queue-size", val: "0"},
		{name: "negative tick", flag: "tick-rate", val: "-1ms"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			testFlags := newFlags(t)
			if err := testFlags.Set(tc.flag, tc.val); err != nil {
				t.Fatalf("Flag set: %v", err)
			}
			_, err := NewFromFlags(testFlags)
			if err == nil {
				t.Fatalf("NewFromFlags() succeeded with %s=%s", tc.flag, tc.val)
			}
			if tc.is != nil && !errors.Is(err, tc.is) {
				t.Errorf("NewFromFlags() error = %v, want %v", err, tc.is)
			}
		})
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aerogel.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestApplyFile(t *testing.T) {
	path := writeFile(t, strings.Join([]string{
		"debug = true",
		"irq-lines = [1]",
		"queue-size = 64",
		`tick-rate = "5ms"`,
		`log-format = "json"`,
	}, "\n"))

	testFlags := newFlags(t)
	// Explicit flags win over the file.
	if err := testFlags.Parse([]string{"--queue-size=8"}); err != nil {
		t.Fatal(err)
	}
	if err := ApplyFile(testFlags, path); err != nil {
		t.Fatalf("ApplyFile: %v", err)
	}
	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}
	want := &Config{
		LogFormat:    "json",
		Debug:        true,
		IRQLines:     LineList{1},
		MasterOffset: pic.DefaultMasterOffset,
		SlaveOffset:  pic.DefaultSlaveOffset,
		QueueSize:    8,
		TickRate:     5 * time.Millisecond,
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyFileErrors(t *testing.T) {
	for _, tc := range []struct {
		name    string
		content string
	}{
		{name: "unknown option", content: "platform = \"kvm\""},
		{name: "nested config", content: "config = \"other.toml\""},
		{name: "bad value", content: "queue-size = \"many\""},
		{name: "float", content: "queue-size = 1.5"},
		{name: "table", content: "[irq]\nlines = [0]"},
		{name: "syntax", content: "debug = "},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if err := ApplyFile(newFlags(t), writeFile(t, tc.content)); err == nil {
				t.Errorf("ApplyFile(%q) succeeded", tc.content)
			}
		})
	}
}
