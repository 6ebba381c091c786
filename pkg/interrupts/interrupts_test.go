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

package interrupts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Rangdy-Kor/AerogelOS/pkg/ioport"
	"github.com/Rangdy-Kor/AerogelOS/pkg/kbd"
	"github.com/Rangdy-Kor/AerogelOS/pkg/pic"
	"github.com/Rangdy-Kor/AerogelOS/pkg/ring0"
	"github.com/Rangdy-Kor/AerogelOS/pkg/sim"
	"github.com/Rangdy-Kor/AerogelOS/pkg/vga"
)

// traceCPU records processor operations and shares the trace with a port
// recorder.
type traceCPU struct {
	trace *[]string
	on    bool
}

func (c *traceCPU) add(op string) { *c.trace = append(*c.trace, op) }

func (c *traceCPU) LoadGDT(*ring0.GDT)                         { c.add("lgdt") }
func (c *traceCPU) LoadCodeSegment(ring0.Selector)             { c.add("cs") }
func (c *traceCPU) LoadTSS(ring0.Selector, *ring0.TaskState64) { c.add("ltr") }
func (c *traceCPU) LoadIDT(*ring0.IDT, ring0.Entry)            { c.add("lidt") }
func (c *traceCPU) InterruptsEnabled() bool                    { return c.on }
func (c *traceCPU) Halt()                                      { c.add("hlt") }

func (c *traceCPU) DisableInterrupts() {
	c.add("cli")
	c.on = false
}

func (c *traceCPU) EnableInterrupts() {
	c.add("sti")
	c.on = true
}

func (c *traceCPU) EnableAndHalt() {
	c.add("sti; hlt")
	c.on = true
}

// traceBus appends port writes to the shared trace.
type traceBus struct {
	ioport.Recorder
	trace *[]string
}

func (b *traceBus) Outb(port ioport.Port, v uint8) {
	b.Recorder.Outb(port, v)
	if port != ioport.Delay {
		*b.trace = append(*b.trace, ioport.Op{Write: true, Port: port, Value: v}.String())
	}
}

func TestNewValidates(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  func(*Config)
		want error
	}{
		{"unhandled line", func(c *Config) { c.Lines = []int{0, 3} }, ErrNoHandler},
		{"offset in exceptions", func(c *Config) { c.MasterOffset = 8 }, pic.ErrBadOffset},
		{"overlapping offsets", func(c *Config) { c.SlaveOffset = c.MasterOffset }, pic.ErrBadOffset},
	} {
		cfg := DefaultConfig()
		tc.cfg(&cfg)
		if _, err := New(&traceCPU{trace: new([]string)}, &ioport.Recorder{}, nil, cfg); !errors.Is(err, tc.want) {
			t.Errorf("%s: New = %v, want %v", tc.name, err, tc.want)
		}
	}
	cfg := DefaultConfig()
	cfg.QueueSize = 12
	if _, err := New(&traceCPU{trace: new([]string)}, &ioport.Recorder{}, nil, cfg); err == nil {
		t.Errorf("New accepted queue size 12")
	}
}

func TestBringUpSequence(t *testing.T) {
	var trace []string
	cpu := &traceCPU{trace: &trace}
	bus := &traceBus{trace: &trace}
	s, err := New(cpu, bus, nil, DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := s.Enable(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Enable before Init = %v, want %v", err, ErrNotInitialized)
	}
	if len(trace) != 0 {
		t.Fatalf("Enable before Init touched hardware: %v", trace)
	}

	if err := s.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	out := func(p ioport.Port, v uint8) string {
		return ioport.Op{Write: true, Port: p, Value: v}.String()
	}
	want := []string{
		"cli", "lgdt", "cs", "ltr", "lidt",
		out(ioport.MasterCommand, 0x11),
		out(ioport.SlaveCommand, 0x11),
		out(ioport.MasterData, 32),
		out(ioport.SlaveData, 40),
		out(ioport.MasterData, 0x04),
		out(ioport.SlaveData, 0x02),
		out(ioport.MasterData, 0x01),
		out(ioport.SlaveData, 0x01),
		out(ioport.MasterData, 0xff),
		out(ioport.SlaveData, 0xff),
		out(ioport.MasterData, 0xfc),
	}
	if diff := cmp.Diff(want, trace); diff != "" {
		t.Errorf("bring-up sequence mismatch (-want +got):\n%s", diff)
	}
	if s.InterruptsEnabled() {
		t.Errorf("interrupts enabled by Init")
	}
	if err := s.Init(); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("second Init = %v, want %v", err, ErrAlreadyInitialized)
	}

	trace = nil
	if err := s.Enable(); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	if err := s.Enable(); !errors.Is(err, ErrAlreadyEnabled) {
		t.Errorf("second Enable = %v, want %v", err, ErrAlreadyEnabled)
	}
	if diff := cmp.Diff([]string{"sti"}, trace); diff != "" {
		t.Errorf("Enable sequence mismatch (-want +got):\n%s", diff)
	}
	if !s.InterruptsEnabled() {
		t.Errorf("InterruptsEnabled = false after Enable")
	}
}

func TestVectorTable(t *testing.T) {
	s, err := New(&traceCPU{trace: new([]string)}, &ioport.Recorder{}, nil, DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	idt := s.Kernel().IDT()
	for v := ring0.Vector(0); v < ring0.NumExceptions; v++ {
		if !idt[v].Present() {
			t.Errorf("exception %v has no gate", v)
		}
	}
	for _, v := range []ring0.Vector{32, 33, 39, 47} {
		if !idt[v].Present() {
			t.Errorf("device vector %d has no gate", v)
		}
	}
	if got := idt[ring0.DoubleFault].IST(); got != 1 {
		t.Errorf("double fault IST = %d, want 1", got)
	}
	if got := idt[ring0.PageFault].IST(); got != 0 {
		t.Errorf("page fault IST = %d, want 0", got)
	}
}

func TestDispatchTimer(t *testing.T) {
	var rec ioport.Recorder
	s, err := New(&traceCPU{trace: new([]string)}, &rec, nil, DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	rec.Reset()
	if !s.Dispatch(&ring0.Frame{Vector: 32}) {
		t.Fatalf("Dispatch(32) found no gate")
	}
	if got := s.ReadTickCount(); got != 1 {
		t.Errorf("ReadTickCount = %d, want 1", got)
	}
	if diff := cmp.Diff([]ioport.Op{{Write: true, Port: ioport.MasterCommand, Value: 0x20}}, rec.Writes()); diff != "" {
		t.Errorf("EOI mismatch (-want +got):\n%s", diff)
	}
	if s.Dispatch(&ring0.Frame{Vector: 40}) {
		t.Errorf("Dispatch(40) found a gate")
	}
}

type machine struct {
	*sim.Machine
	s       *Subsystem
	rec     *ioport.Recorder
	display *vga.TextBuffer
}

func start(t *testing.T, cfg Config) *machine {
	t.Helper()
	m := &machine{
		Machine: sim.New(sim.Opts{}),
		display: vga.NewTextBuffer(),
	}
	m.rec = &ioport.Recorder{Next: m.Bus()}
	var err error
	if m.s, err = New(m.CPU(), m.rec, m.display, cfg); err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := m.s.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run failed: %v", err)
			}
		case <-time.After(10 * time.Second):
			t.Errorf("machine did not stop")
		}
	})

	if err := m.s.Enable(); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	if got := m.CPU().EnableCount(); got != 1 {
		t.Fatalf("sti executed %d times, want 1", got)
	}
	return m
}

func (m *machine) drain() []kbd.Scancode {
	var out []kbd.Scancode
	for {
		sc, ok := m.s.PollScancode()
		if !ok {
			return out
		}
		out = append(out, sc)
	}
}

func TestKeyPressThenRelease(t *testing.T) {
	m := start(t, DefaultConfig())
	m.Press(0x1e, 0x9e)
	m.Sync()
	if diff := cmp.Diff([]kbd.Scancode{0x1e}, m.drain()); diff != "" {
		t.Errorf("scancodes mismatch (-want +got):\n%s", diff)
	}
	if _, ok := m.s.PollScancode(); ok {
		t.Errorf("PollScancode on drained queue succeeded")
	}
	if got := m.s.KeyboardInterrupts(); got != 2 {
		t.Errorf("KeyboardInterrupts = %d, want 2", got)
	}
}

func TestExtendedKeys(t *testing.T) {
	m := start(t, DefaultConfig())
	// Keypad Enter, up arrow.
	m.Press(uint8(kbd.ExtendedPrefix), 0x1c, uint8(kbd.ExtendedPrefix), 0x9c)
	m.Press(uint8(kbd.ExtendedPrefix), 0x48, uint8(kbd.ExtendedPrefix), 0xc8)
	m.Sync()
	got := m.drain()
	if diff := cmp.Diff([]kbd.Scancode{kbd.Enter, 0x48}, got); diff != "" {
		t.Fatalf("scancodes mismatch (-want +got):\n%s", diff)
	}
	if r, ok := kbd.Decode(got[0]); !ok || r != '\n' {
		t.Errorf("keypad Enter decodes to %q, %t", r, ok)
	}
	if r, ok := kbd.Decode(got[1]); ok {
		t.Errorf("up arrow decodes to %q", r)
	}
}

func TestQueueOverflow(t *testing.T) {
	m := start(t, DefaultConfig())
	var want []kbd.Scancode
	for i := 0; i < 17; i++ {
		m.Press(uint8(0x02 + i))
		if i < 16 {
			want = append(want, kbd.Scancode(0x02+i))
		}
	}
	m.Sync()
	if diff := cmp.Diff(want, m.drain()); diff != "" {
		t.Errorf("scancodes mismatch (-want +got):\n%s", diff)
	}
	if got := m.s.Dropped(); got != 1 {
		t.Errorf("Dropped = %d, want 1", got)
	}
	if got := m.s.KeyboardInterrupts(); got != 17 {
		t.Errorf("KeyboardInterrupts = %d, want 17", got)
	}
}

func TestTicks(t *testing.T) {
	m := start(t, DefaultConfig())
	for i := 0; i < 3; i++ {
		m.RaiseIRQ(sim.TimerLine)
		m.Sync()
	}
	if got := m.s.ReadTickCount(); got != 3 {
		t.Errorf("ReadTickCount = %d, want 3", got)
	}
}

func TestTimerMasked(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Lines = []int{KeyboardLine}
	m := start(t, cfg)
	m.RaiseIRQ(sim.TimerLine)
	m.Press(0x1e)
	m.Sync()
	if got := m.s.ReadTickCount(); got != 0 {
		t.Errorf("ReadTickCount = %d with the timer masked", got)
	}
	if diff := cmp.Diff([]kbd.Scancode{0x1e}, m.drain()); diff != "" {
		t.Errorf("scancodes mismatch (-want +got):\n%s", diff)
	}
}

func TestEndOfInterruptWrites(t *testing.T) {
	m := start(t, DefaultConfig())
	m.rec.Reset()
	m.Press(0x1e)
	m.Sync()
	want := []ioport.Op{{Write: true, Port: ioport.MasterCommand, Value: 0x20}}
	if diff := cmp.Diff(want, m.rec.Writes()); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}
}

func TestBreakpointIsRecoverable(t *testing.T) {
	m := start(t, DefaultConfig())
	m.RaiseException(ring0.Breakpoint, 0)
	if m.Dead() {
		t.Fatalf("machine halted on a breakpoint")
	}
	if got := m.s.Traps(); got != 1 {
		t.Errorf("Traps = %d, want 1", got)
	}
	m.RaiseIRQ(sim.TimerLine)
	m.Sync()
	if got := m.s.ReadTickCount(); got != 1 {
		t.Errorf("ReadTickCount = %d after breakpoint, want 1", got)
	}
}

func TestFatalException(t *testing.T) {
	m := start(t, DefaultConfig())
	m.RaiseException(ring0.GeneralProtectionFault, 0)
	if !m.Dead() {
		t.Fatalf("machine alive after a general protection fault")
	}
	if got, want := m.display.Row(0), "GENERAL PROTECTION FAULT!"; got != want {
		t.Errorf("row 0 = %q, want %q", got, want)
	}
	if _, attr := m.display.Glyph(0, 0); attr != vga.FaultAttr {
		t.Errorf("attr = %#x, want %#x", attr, vga.FaultAttr)
	}
	if m.s.InterruptsEnabled() {
		t.Errorf("interrupts still enabled after a fatal fault")
	}
}

func TestDoubleFault(t *testing.T) {
	m := start(t, DefaultConfig())
	// Vector 100 has no gate; the failed delivery escalates.
	m.RaiseException(100, 0)
	if !m.Dead() {
		t.Fatalf("machine alive after a double fault")
	}
	if got := m.display.Row(0); got != "DOUBLE FAULT!" {
		t.Errorf("row 0 = %q", got)
	}
	f := m.LastFrame()
	if f.Vector != ring0.DoubleFault || f.RSP != m.s.Kernel().DoubleFaultStackTop() {
		t.Errorf("double fault frame = %v, want RSP %#x", &f, m.s.Kernel().DoubleFaultStackTop())
	}
}

func TestSpuriousInterrupts(t *testing.T) {
	cfg := DefaultConfig()
	m := start(t, cfg)
	m.rec.Reset()
	m.RaiseSpurious(false)
	m.Sync()
	if got := m.s.Spurious(); got != 1 {
		t.Errorf("Spurious = %d, want 1", got)
	}
	// No acknowledgment for a spurious master interrupt.
	want := []ioport.Op{
		{Write: true, Port: ioport.MasterCommand, Value: 0x0b},
		{Write: true, Port: ioport.SlaveCommand, Value: 0x0b},
	}
	if diff := cmp.Diff(want, m.rec.Writes()); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}
	if m.s.ReadTickCount() != 0 || m.s.KeyboardInterrupts() != 0 {
		t.Errorf("spurious interrupt counted as a device interrupt")
	}
}

func TestPackageFunctions(t *testing.T) {
	Install(nil)
	defer Install(nil)
	if err := InitInterrupts(); !errors.Is(err, ErrNotInstalled) {
		t.Errorf("InitInterrupts = %v, want %v", err, ErrNotInstalled)
	}
	if _, ok := PollScancode(); ok {
		t.Errorf("PollScancode succeeded without a subsystem")
	}

	var rec ioport.Recorder
	s, err := New(&traceCPU{trace: new([]string)}, &rec, nil, DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	Install(s)
	if err := EnableInterrupts(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("EnableInterrupts before init = %v, want %v", err, ErrNotInitialized)
	}
	if err := InitInterrupts(); err != nil {
		t.Fatalf("InitInterrupts failed: %v", err)
	}
	if err := EnableInterrupts(); err != nil {
		t.Fatalf("EnableInterrupts failed: %v", err)
	}
	rec.Script(ioport.KeyboardData, 0x30)
	s.Dispatch(&ring0.Frame{Vector: 33})
	s.Dispatch(&ring0.Frame{Vector: 32})
	if sc, ok := PollScancode(); !ok || sc != 0x30 {
		t.Errorf("PollScancode = %v, %v; want 0x30", sc, ok)
	}
	if got := ReadTickCount(); got != 1 {
		t.Errorf("ReadTickCount = %d, want 1", got)
	}
}
