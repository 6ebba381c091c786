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
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/signal"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/Rangdy-Kor/AerogelOS/aerogel/cmd/util"
	"github.com/Rangdy-Kor/AerogelOS/aerogel/config"
	"github.com/Rangdy-Kor/AerogelOS/aerogel/flag"
	"github.com/Rangdy-Kor/AerogelOS/pkg/cleanup"
	"github.com/Rangdy-Kor/AerogelOS/pkg/log"
	"github.com/Rangdy-Kor/AerogelOS/pkg/sim"
	"github.com/Rangdy-Kor/AerogelOS/pkg/sync"
	"github.com/Rangdy-Kor/AerogelOS/pkg/vga"
)

// errHalted is returned when the processor halts after a fatal exception.
var errHalted = errors.New("processor halted")

// Control characters that stop the machine.
const (
	ctrlC = 0x03
	ctrlD = 0x04
)

// Boot implements subcommands.Command for the "boot" command.
type Boot struct {
	noRaw bool
}

// Name implements subcommands.Command.Name.
func (*Boot) Name() string {
	return "boot"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Boot) Synopsis() string {
	return "boot the simulated machine with the terminal as keyboard and screen"
}

// Usage implements subcommands.Command.Usage.
func (*Boot) Usage() string {
	return `boot [flags] - boot the simulated machine.

Key presses on stdin become keyboard interrupts and the text screen is drawn
on stdout. Ctrl-C or Ctrl-D stops the machine.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (b *Boot) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&b.noRaw, "no-raw", false, "do not put the terminal in raw mode.")
}

// Execute implements subcommands.Command.Execute.
func (b *Boot) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	mc, err := newMachine(conf)
	if err != nil {
		return util.Errorf("%v", err)
	}

	ctx, stop := signal.NotifyContext(ctx, unix.SIGINT, unix.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	cu := cleanup.Make(cancel)
	defer cu.Clean()

	var out io.Writer = os.Stdout
	raw := false
	if fd := int(os.Stdin.Fd()); !b.noRaw && term.IsTerminal(fd) {
		old, err := term.MakeRaw(fd)
		if err != nil {
			return util.Errorf("setting terminal to raw mode: %v", err)
		}
		cu.Add(func() { term.Restore(fd, old) })
		out = crlfWriter{w: os.Stdout}
		raw = true
	}
	scr := &screen{buf: mc.screen, out: out, home: raw}

	g, gctx := errgroup.WithContext(ctx)
	if err := mc.start(gctx, g); err != nil {
		cancel()
		g.Wait()
		return util.Errorf("%v", err)
	}

	// Reads from stdin cannot be interrupted, so the reader is not part of
	// the group.
	go feedKeys(os.Stdin, mc, cancel)

	g.Go(func() error {
		select {
		case <-mc.sim.Halted():
			scr.redraw()
			return errHalted
		case <-gctx.Done():
			return nil
		}
	})
	g.Go(func() error {
		mc.mainline().Run(gctx, mc.sim.CPU(), scr.redraw)
		return nil
	})

	err = g.Wait()
	cu.Clean()
	log.Infof("Machine stopped after %d ticks, %d keyboard interrupts, %d dropped scancodes", mc.sub.ReadTickCount(), mc.sub.KeyboardInterrupts(), mc.sub.Dropped())
	switch {
	case err == nil:
		return subcommands.ExitSuccess
	case errors.Is(err, errHalted), errors.Is(err, sim.ErrTripleFault):
		return util.Errorf("machine stopped: %v", err)
	default:
		return util.Errorf("running machine: %v", err)
	}
}

// feedKeys types bytes from r on the simulated keyboard until EOF or a stop
// character, then calls quit.
func feedKeys(r io.Reader, mc *machine, quit func()) {
	defer quit()
	br := bufio.NewReader(r)
	for {
		c, err := br.ReadByte()
		if err != nil {
			return
		}
		if c == ctrlC || c == ctrlD {
			return
		}
		if !mc.press(rune(c)) {
			log.Debugf("No scancode for input byte %#x", c)
		}
	}
}

// screen draws a text buffer on a terminal.
type screen struct {
	mu   sync.Mutex
	buf  *vga.TextBuffer
	out  io.Writer
	home bool
}

func (s *screen) redraw() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.home {
		io.WriteString(s.out, "\x1b[H")
	}
	if err := s.buf.RenderANSI(s.out); err != nil {
		log.Warningf("Drawing screen: %v", err)
	}
}
