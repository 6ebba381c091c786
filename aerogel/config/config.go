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

// Package config provides basic infrastructure to set configuration settings
// for aerogel. Each setting that can be changed from the command line must
// be declared in Config with a flag tag and registered in RegisterFlags.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Rangdy-Kor/AerogelOS/pkg/interrupts"
	"github.com/Rangdy-Kor/AerogelOS/pkg/pic"
)

// Config holds configuration that is not part of the machine itself.
type Config struct {
	// ConfigFile is a TOML file whose keys are flag names. Flags given on
	// the command line override it.
	ConfigFile string `flag:"config"`

	// LogFilename is the filename to log to, if not empty.
	LogFilename string `flag:"log"`

	// LogFormat is the log format: "text" or "json".
	LogFormat string `flag:"log-format"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug"`

	// IRQLines are the controller lines unmasked at bring-up.
	IRQLines LineList `flag:"irq-lines"`

	// MasterOffset is the vector of IRQ 0.
	MasterOffset uint `flag:"master-offset"`

	// SlaveOffset is the vector of IRQ 8.
	SlaveOffset uint `flag:"slave-offset"`

	// QueueSize is the scancode queue capacity. It must be a power of 2.
	QueueSize int `flag:"queue-size"`

	// TickRate is the period of the simulated timer. Zero stops the timer.
	TickRate time.Duration `flag:"tick-rate"`
}

func (c *Config) validate() error {
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q, must be 'text' or 'json'", c.LogFormat)
	}
	if c.MasterOffset > 0xff || c.SlaveOffset > 0xff {
		return fmt.Errorf("vector offsets %d/%d must be below 256: %w", c.MasterOffset, c.SlaveOffset, pic.ErrBadOffset)
	}
	if err := pic.CheckOffsets(uint8(c.MasterOffset), uint8(c.SlaveOffset)); err != nil {
		return err
	}
	if c.QueueSize <= 0 || c.QueueSize&(c.QueueSize-1) != 0 {
		return fmt.Errorf("queue-size %d must be a positive power of 2", c.QueueSize)
	}
	if c.TickRate < 0 {
		return fmt.Errorf("tick-rate %v must not be negative", c.TickRate)
	}
	return nil
}

// Interrupts returns the interrupt subsystem configuration.
func (c *Config) Interrupts() interrupts.Config {
	return interrupts.Config{
		MasterOffset: uint8(c.MasterOffset),
		SlaveOffset:  uint8(c.SlaveOffset),
		Lines:        append([]int(nil), c.IRQLines...),
		QueueSize:    c.QueueSize,
	}
}

// LineList is a comma separated list of IRQ lines.
type LineList []int

func lineListPtr(l LineList) *LineList {
	return &l
}

// String implements flag.Value.
func (l *LineList) String() string {
	strs := make([]string, 0, len(*l))
	for _, line := range *l {
		strs = append(strs, strconv.Itoa(line))
	}
	return strings.Join(strs, ",")
}

// Get implements flag.Getter.
func (l *LineList) Get() any {
	return *l
}

// Set implements flag.Value. An empty string leaves every line masked.
func (l *LineList) Set(v string) error {
	var lines LineList
	if v = strings.TrimSpace(v); v != "" {
		for _, s := range strings.Split(v, ",") {
			line, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil {
				return fmt.Errorf("invalid IRQ line %q: %v", s, err)
			}
			if line < 0 || line >= pic.NumLines {
				return fmt.Errorf("IRQ line %d out of range 0-%d: %w", line, pic.NumLines-1, pic.ErrBadLine)
			}
			lines = append(lines, line)
		}
	}
	*l = lines
	return nil
}
