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

// Package mainline is the non-interrupt half of the kernel. It drains the
// scancode queue filled by the keyboard handler, feeds the shell and echoes
// to the console, halting between interrupts.
package mainline

import (
	"context"

	"github.com/Rangdy-Kor/AerogelOS/pkg/kbd"
	"github.com/Rangdy-Kor/AerogelOS/pkg/shell"
	"github.com/Rangdy-Kor/AerogelOS/pkg/vga"
)

// Prompt precedes every input line.
const Prompt = "> "

// BannerAttr is the attribute of the greeting line.
var BannerAttr = vga.MakeAttr(vga.LightCyan, vga.Black)

// Source yields scancodes queued in interrupt context.
type Source interface {
	PollScancode() (kbd.Scancode, bool)
}

// SourceFunc adapts a function to Source.
type SourceFunc func() (kbd.Scancode, bool)

// PollScancode implements Source.PollScancode.
func (f SourceFunc) PollScancode() (kbd.Scancode, bool) {
	return f()
}

// CPU is the part of the processor the loop needs to sleep between
// interrupts.
type CPU interface {
	DisableInterrupts()
	EnableInterrupts()
	EnableAndHalt()
}

// Loop ties the scancode source to a shell and a console.
type Loop struct {
	src     Source
	console *vga.Console
	shell   *shell.Shell
}

// New returns a loop reading from src and writing to console. stats backs
// the shell's ticks command and may be nil.
func New(src Source, console *vga.Console, stats shell.Stats) *Loop {
	return &Loop{
		src:     src,
		console: console,
		shell:   shell.New(stats),
	}
}

// Banner clears the screen and prints the greeting and the first prompt.
func (l *Loop) Banner() {
	l.console.Clear()
	l.console.Print(shell.Version+"\n", BannerAttr)
	l.console.WriteString("Type 'help' for commands.\n")
	l.console.WriteString(Prompt)
}

// Drain handles every queued scancode and returns how many were consumed.
func (l *Loop) Drain() int {
	n := 0
	for {
		sc, ok := l.src.PollScancode()
		if !ok {
			return n
		}
		n++
		l.HandleScancode(sc)
	}
}

// HandleScancode applies one scancode. Releases and keys without a
// character are ignored.
func (l *Loop) HandleScancode(sc kbd.Scancode) {
	r, ok := kbd.Decode(sc)
	if !ok {
		return
	}
	switch r {
	case '\n':
		l.console.WriteString("\n")
		l.execute()
	case '\b':
		if l.shell.Backspace() {
			l.console.WriteString("\b")
		}
	default:
		if len(l.shell.Line()) >= shell.MaxLine {
			return
		}
		l.shell.AddChar(byte(r))
		l.console.Write([]byte{byte(r)})
	}
}

func (l *Loop) execute() {
	res := l.shell.Execute()
	switch res.Kind {
	case shell.Clear:
		l.console.Clear()
	case shell.Output:
		l.console.WriteString(res.Text + "\n")
	}
	l.console.WriteString(Prompt)
}

// Run prints the banner and then drains the queue after every interrupt
// until ctx is done. redraw is called whenever the console changed.
//
// The last poll before halting runs with interrupts disabled, so a key
// queued after it is either seen by that poll or wakes the halt.
func (l *Loop) Run(ctx context.Context, cpu CPU, redraw func()) {
	l.Banner()
	redraw()
	for ctx.Err() == nil {
		if l.Drain() > 0 {
			redraw()
		}
		cpu.DisableInterrupts()
		if sc, ok := l.src.PollScancode(); ok {
			cpu.EnableInterrupts()
			l.HandleScancode(sc)
			redraw()
			continue
		}
		cpu.EnableAndHalt()
	}
}
