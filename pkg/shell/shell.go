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

// Package shell implements the line shell fed by decoded keystrokes.
package shell

import (
	"fmt"
	"strings"
)

// Version is reported by the version command.
const Version = "AerogelOS v0.1.0"

// MaxLine is the longest line the shell accepts. Further characters are
// dropped.
const MaxLine = 255

// Kind classifies a command result.
type Kind int

const (
	// Empty means nothing was entered.
	Empty Kind = iota

	// Output carries text to print.
	Output

	// Clear asks for the screen to be cleared.
	Clear
)

// Result is the outcome of Execute.
type Result struct {
	Kind Kind
	Text string
}

// Stats reports the interrupt counters shown by the ticks command.
type Stats interface {
	ReadTickCount() uint64
	KeyboardInterrupts() uint64
}

// Shell accumulates one line of input.
type Shell struct {
	line  []byte
	stats Stats
}

// New returns an empty shell. stats may be nil, in which case the ticks
// command is not available.
func New(stats Stats) *Shell {
	return &Shell{
		line:  make([]byte, 0, MaxLine),
		stats: stats,
	}
}

// AddChar appends ch to the line.
func (s *Shell) AddChar(ch byte) {
	if len(s.line) < MaxLine {
		s.line = append(s.line, ch)
	}
}

// Backspace removes the last character, if any.
func (s *Shell) Backspace() bool {
	if len(s.line) == 0 {
		return false
	}
	s.line = s.line[:len(s.line)-1]
	return true
}

// Line returns the pending line.
func (s *Shell) Line() string {
	return string(s.line)
}

// Reset discards the pending line.
func (s *Shell) Reset() {
	s.line = s.line[:0]
}

func (s *Shell) commands() []string {
	cmds := []string{"help", "clear", "echo", "version"}
	if s.stats != nil {
		cmds = append(cmds, "ticks")
	}
	return cmds
}

// Execute runs the pending line and resets it.
func (s *Shell) Execute() Result {
	defer s.Reset()
	cmd := strings.TrimSpace(string(s.line))
	switch {
	case cmd == "":
		return Result{Kind: Empty}
	case cmd == "help":
		return Result{Kind: Output, Text: "Commands: " + strings.Join(s.commands(), ", ")}
	case cmd == "clear":
		return Result{Kind: Clear}
	case cmd == "version":
		return Result{Kind: Output, Text: Version}
	case cmd == "echo":
		return Result{Kind: Output}
	case strings.HasPrefix(cmd, "echo "):
		return Result{Kind: Output, Text: strings.TrimPrefix(cmd, "echo ")}
	case cmd == "ticks" && s.stats != nil:
		return Result{Kind: Output, Text: fmt.Sprintf("ticks=%d keyboard=%d", s.stats.ReadTickCount(), s.stats.KeyboardInterrupts())}
	default:
		return Result{Kind: Output, Text: "Unknown command. Type 'help' for commands."}
	}
}
