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

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/subcommands"
	"github.com/jroimartin/gocui"
	"golang.org/x/sync/errgroup"

	"github.com/Rangdy-Kor/AerogelOS/aerogel/cmd/util"
	"github.com/Rangdy-Kor/AerogelOS/aerogel/config"
	"github.com/Rangdy-Kor/AerogelOS/aerogel/flag"
	"github.com/Rangdy-Kor/AerogelOS/pkg/kbd"
	"github.com/Rangdy-Kor/AerogelOS/pkg/log"
	"github.com/Rangdy-Kor/AerogelOS/pkg/ring0"
	"github.com/Rangdy-Kor/AerogelOS/pkg/vga"
)

// View names.
const (
	screenView = "screen"
	statusView = "status"
	helpView   = "keys"
)

// monitorKeys lists the function keys that inject events.
const monitorKeys = `F1 breakpoint  F2 spurious IRQ 7  F3 spurious IRQ 15
F4 page fault  F5 double fault  Ctrl-C quit`

// Monitor implements subcommands.Command for the "monitor" command.
type Monitor struct {
	refresh time.Duration
}

// Name implements subcommands.Command.Name.
func (*Monitor) Name() string {
	return "monitor"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Monitor) Synopsis() string {
	return "boot the simulated machine in a terminal UI showing controller state"
}

// Usage implements subcommands.Command.Usage.
func (*Monitor) Usage() string {
	return `monitor [flags] - boot the simulated machine in a terminal UI.

The left pane is the text screen and takes keyboard input. The right pane
shows interrupt counters and the controller registers. Function keys inject
exceptions and spurious interrupts.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (m *Monitor) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&m.refresh, "refresh", 100*time.Millisecond, "status pane refresh period.")
}

// Execute implements subcommands.Command.Execute.
func (m *Monitor) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	if m.refresh <= 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	mc, err := newMachine(conf)
	if err != nil {
		return util.Errorf("%v", err)
	}

	// The terminal belongs to the UI from here on.
	if conf.LogFilename == "" {
		log.SetTarget(log.GoogleEmitter{Writer: &log.Writer{Next: io.Discard}})
	}

	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		return util.Errorf("creating terminal UI: %v", err)
	}
	defer g.Close()
	g.Cursor = true
	g.SetManagerFunc(layout(mc))
	if err := m.bindKeys(g, mc); err != nil {
		return util.Errorf("binding keys: %v", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, egctx := errgroup.WithContext(ctx)
	if err := mc.start(egctx, eg); err != nil {
		cancel()
		eg.Wait()
		return util.Errorf("%v", err)
	}
	redraw := func() {
		g.Update(func(g *gocui.Gui) error {
			return drawScreen(g, mc)
		})
	}
	eg.Go(func() error {
		mc.mainline().Run(egctx, mc.sim.CPU(), redraw)
		return nil
	})
	eg.Go(func() error {
		t := time.NewTicker(m.refresh)
		defer t.Stop()
		for {
			select {
			case <-egctx.Done():
				return nil
			case <-t.C:
				g.Update(func(g *gocui.Gui) error {
					return drawStatus(g, mc)
				})
			case <-mc.sim.Halted():
				redraw()
				log.Warningf("Processor halted, press Ctrl-C to quit")
				<-egctx.Done()
				return nil
			}
		}
	})

	loopErr := g.MainLoop()
	cancel()
	runErr := eg.Wait()
	if loopErr != nil && !errors.Is(loopErr, gocui.ErrQuit) {
		return util.Errorf("terminal UI: %v", loopErr)
	}
	if runErr != nil {
		return util.Errorf("running machine: %v", runErr)
	}
	return subcommands.ExitSuccess
}

// bindKeys installs the quit key and the event injection keys.
func (m *Monitor) bindKeys(g *gocui.Gui, mc *machine) error {
	if err := g.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, quit); err != nil {
		return err
	}
	for key, inject := range map[gocui.Key]func(){
		gocui.KeyF1: func() { mc.sim.RaiseException(ring0.Breakpoint, 0) },
		gocui.KeyF2: func() { mc.sim.RaiseSpurious(false) },
		gocui.KeyF3: func() { mc.sim.RaiseSpurious(true) },
		gocui.KeyF4: func() { mc.sim.RaiseException(ring0.PageFault, 0x2) },
		gocui.KeyF5: func() { mc.sim.RaiseException(ring0.DoubleFault, 0) },
	} {
		if err := g.SetKeybinding("", key, gocui.ModNone, func(*gocui.Gui, *gocui.View) error {
			// Exceptions block until the handler returns.
			go inject()
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

func quit(*gocui.Gui, *gocui.View) error {
	return gocui.ErrQuit
}

// layout places the screen pane at its text mode size, the status pane to
// its right and the key help below.
func layout(mc *machine) func(*gocui.Gui) error {
	return func(g *gocui.Gui) error {
		maxX, maxY := g.Size()
		if v, err := g.SetView(screenView, 0, 0, vga.Width+1, vga.Height+1); err != nil {
			if err != gocui.ErrUnknownView {
				return err
			}
			v.Title = "Screen"
			v.Editable = true
			v.Editor = keyboardEditor(mc)
			if _, err := g.SetCurrentView(screenView); err != nil {
				return err
			}
		}
		if v, err := g.SetView(statusView, vga.Width+2, 0, max(maxX-1, vga.Width+40), vga.Height+1); err != nil {
			if err != gocui.ErrUnknownView {
				return err
			}
			v.Title = "Interrupts"
		}
		if v, err := g.SetView(helpView, 0, vga.Height+2, max(maxX-1, vga.Width+1), max(maxY-1, vga.Height+5)); err != nil {
			if err != gocui.ErrUnknownView {
				return err
			}
			v.Title = "Keys"
			fmt.Fprint(v, monitorKeys)
		}
		return nil
	}
}

// keyboardEditor turns key presses in the screen pane into scancodes.
func keyboardEditor(mc *machine) gocui.Editor {
	return gocui.EditorFunc(func(v *gocui.View, key gocui.Key, ch rune, mod gocui.Modifier) {
		switch {
		case ch != 0 && mod == gocui.ModNone:
			mc.press(ch)
		case key == gocui.KeySpace:
			mc.press(' ')
		case key == gocui.KeyEnter:
			mc.press('\n')
		case key == gocui.KeyBackspace || key == gocui.KeyBackspace2:
			mc.press('\b')
		case key == gocui.KeyEsc:
			mc.sim.Press(uint8(kbd.Escape), uint8(kbd.Escape.Release()))
		}
	})
}

func drawScreen(g *gocui.Gui, mc *machine) error {
	v, err := g.View(screenView)
	if err != nil {
		return err
	}
	v.Clear()
	fmt.Fprint(v, mc.screen.Text())
	x, y := mc.console.Cursor()
	return v.SetCursor(min(x, vga.Width-1), y)
}

func drawStatus(g *gocui.Gui, mc *machine) error {
	v, err := g.View(statusView)
	if err != nil {
		return err
	}
	v.Clear()
	writeStatus(v, mc)
	return nil
}

// writeStatus writes counters and the controller registers as the driver
// reads them.
func writeStatus(w io.Writer, mc *machine) {
	s := mc.sub
	pics := s.Controllers()
	masterOffset, slaveOffset := pics.Offsets()
	masterIMR, slaveIMR := pics.Masks()
	irr, isr := pics.ReadIRR(), pics.ReadISR()
	state := "running"
	if mc.sim.Dead() {
		state = "halted"
	}
	fmt.Fprintf(w, "cpu        %s\n", state)
	fmt.Fprintf(w, "IF         %t\n", s.InterruptsEnabled())
	fmt.Fprintf(w, "ticks      %d\n", s.ReadTickCount())
	fmt.Fprintf(w, "keyboard   %d\n", s.KeyboardInterrupts())
	fmt.Fprintf(w, "dropped    %d\n", s.Dropped())
	fmt.Fprintf(w, "spurious   %d\n", s.Spurious())
	fmt.Fprintf(w, "traps      %d\n", s.Traps())
	fmt.Fprintf(w, "driver     %v\n\n", s.Controllers().State())
	fmt.Fprintf(w, "           master  slave\n")
	fmt.Fprintf(w, "offset     %#02x    %#02x\n", masterOffset, slaveOffset)
	fmt.Fprintf(w, "IMR        %08b %08b\n", masterIMR, slaveIMR)
	fmt.Fprintf(w, "IRR        %08b %08b\n", uint8(irr), uint8(irr>>8))
	fmt.Fprintf(w, "ISR        %08b %08b\n", uint8(isr), uint8(isr>>8))
	frame := mc.sim.LastFrame()
	fmt.Fprintf(w, "\nlast       %v\n", frame.Vector)
	fmt.Fprintf(w, "rip        %#x\n", frame.RIP)
	fmt.Fprintf(w, "rsp        %#x\n", frame.RSP)
}
