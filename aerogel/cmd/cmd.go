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

// Package cmd holds implementations of the aerogel commands.
package cmd

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/Rangdy-Kor/AerogelOS/aerogel/config"
	"github.com/Rangdy-Kor/AerogelOS/pkg/interrupts"
	"github.com/Rangdy-Kor/AerogelOS/pkg/kbd"
	"github.com/Rangdy-Kor/AerogelOS/pkg/log"
	"github.com/Rangdy-Kor/AerogelOS/pkg/mainline"
	"github.com/Rangdy-Kor/AerogelOS/pkg/sim"
	"github.com/Rangdy-Kor/AerogelOS/pkg/vga"
)

// machine is a simulated PC with the interrupt front end installed as the
// process default.
type machine struct {
	sim     *sim.Machine
	sub     *interrupts.Subsystem
	screen  *vga.TextBuffer
	console *vga.Console
}

func newMachine(conf *config.Config) (*machine, error) {
	m := sim.New(sim.Opts{TickInterval: conf.TickRate})
	screen := vga.NewTextBuffer()
	sub, err := interrupts.New(m.CPU(), m.Bus(), screen, conf.Interrupts())
	if err != nil {
		return nil, fmt.Errorf("creating interrupt subsystem: %w", err)
	}
	interrupts.Install(sub)
	return &machine{
		sim:     m,
		sub:     sub,
		screen:  screen,
		console: vga.NewConsole(screen, nil),
	}, nil
}

// start runs the machine in g and brings up interrupts.
func (mc *machine) start(ctx context.Context, g *errgroup.Group) error {
	g.Go(func() error {
		return mc.sim.Run(ctx)
	})
	if err := interrupts.InitInterrupts(); err != nil {
		return fmt.Errorf("initializing interrupts: %w", err)
	}
	if err := interrupts.EnableInterrupts(); err != nil {
		return fmt.Errorf("enabling interrupts: %w", err)
	}
	log.Infof("Interrupts enabled")
	return nil
}

// mainline returns the kernel main loop reading the default subsystem.
func (mc *machine) mainline() *mainline.Loop {
	return mainline.New(mainline.SourceFunc(interrupts.PollScancode), mc.console, mc.sub)
}

// press types r on the simulated keyboard as a press and release.
func (mc *machine) press(r rune) bool {
	sc, ok := kbd.Encode(r)
	if !ok {
		return false
	}
	mc.sim.Press(uint8(sc), uint8(sc.Release()))
	return true
}

// crlfWriter translates newlines for a terminal in raw mode.
type crlfWriter struct {
	w io.Writer
}

// Write implements io.Writer.
func (c crlfWriter) Write(p []byte) (int, error) {
	start := 0
	for i, b := range p {
		if b != '\n' {
			continue
		}
		if _, err := c.w.Write(p[start:i]); err != nil {
			return start, err
		}
		if _, err := io.WriteString(c.w, "\r\n"); err != nil {
			return i, err
		}
		start = i + 1
	}
	if _, err := c.w.Write(p[start:]); err != nil {
		return start, err
	}
	return len(p), nil
}
