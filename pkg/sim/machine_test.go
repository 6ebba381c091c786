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

package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Rangdy-Kor/AerogelOS/pkg/ioport"
	"github.com/Rangdy-Kor/AerogelOS/pkg/pic"
	"github.com/Rangdy-Kor/AerogelOS/pkg/ring0"
	"github.com/Rangdy-Kor/AerogelOS/pkg/sync"
)

type harness struct {
	m      *Machine
	k      *ring0.Kernel
	pics   *pic.Chained
	cancel context.CancelFunc
	done   chan error

	mu     sync.Mutex
	frames []ring0.Frame
	codes  []uint8
}

func (h *harness) record(f *ring0.Frame) {
	h.mu.Lock()
	h.frames = append(h.frames, *f)
	h.mu.Unlock()
}

func (h *harness) vectors() []ring0.Vector {
	h.mu.Lock()
	defer h.mu.Unlock()
	var vs []ring0.Vector
	for _, f := range h.frames {
		vs = append(vs, f.Vector)
	}
	return vs
}

// boot builds tables, programs the controllers with lines enabled and starts
// the machine. extra handlers override the recording defaults.
func boot(t *testing.T, opts Opts, lines []int, extra map[ring0.Vector]ring0.Handler) *harness {
	t.Helper()
	h := &harness{m: New(opts), k: new(ring0.Kernel)}
	handlers := map[ring0.Vector]ring0.Handler{
		32: func(f *ring0.Frame) {
			h.record(f)
			h.pics.EndOfInterrupt(f.Vector)
		},
		33: func(f *ring0.Frame) {
			h.record(f)
			code := h.m.Bus().Inb(ioport.KeyboardData)
			h.mu.Lock()
			h.codes = append(h.codes, code)
			h.mu.Unlock()
			h.pics.EndOfInterrupt(f.Vector)
		},
		39: h.record,
		47: h.record,
	}
	for v, fn := range extra {
		handlers[v] = fn
	}
	if err := h.k.Init(ring0.KernelOpts{Handlers: handlers, Default: h.record}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := h.k.Load(h.m.CPU()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	var err error
	if h.pics, err = pic.New(h.m.Bus(), 32, 40); err != nil {
		t.Fatalf("pic.New failed: %v", err)
	}
	h.pics.Remap()
	if err := h.pics.EnableLines(lines...); err != nil {
		t.Fatalf("EnableLines failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan error, 1)
	go func() { h.done <- h.m.Run(ctx) }()
	t.Cleanup(func() {
		h.cancel()
		<-h.done
	})
	return h
}

func (h *harness) stop(t *testing.T) error {
	t.Helper()
	h.cancel()
	select {
	case err := <-h.done:
		h.done <- err
		return err
	case <-time.After(10 * time.Second):
		t.Fatalf("machine did not stop")
		return nil
	}
}

func TestRemapProgramsChips(t *testing.T) {
	h := boot(t, Opts{}, []int{0, 1}, nil)
	got := h.m.PICState()
	want := PICState{
		MasterOffset: 32,
		SlaveOffset:  40,
		MasterIMR:    0xfc,
		SlaveIMR:     0xff,
		Initialized:  true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("PIC state mismatch (-want +got):\n%s", diff)
	}
}

func TestInterruptFlagGatesDelivery(t *testing.T) {
	h := boot(t, Opts{}, []int{0, 1}, nil)
	h.m.RaiseIRQ(TimerLine)
	h.m.Sync()
	if got := h.m.Deliveries(32); got != 0 {
		t.Fatalf("delivered %d timer interrupts with IF clear", got)
	}
	h.m.CPU().EnableInterrupts()
	h.m.Sync()
	if got := h.m.Deliveries(32); got != 1 {
		t.Errorf("delivered %d timer interrupts after sti, want 1", got)
	}
}

func TestKeyboardFIFO(t *testing.T) {
	h := boot(t, Opts{}, []int{0, 1}, nil)
	h.m.CPU().EnableInterrupts()
	h.m.Press(0x1e, 0x9e, 0x30)
	h.m.Sync()
	h.mu.Lock()
	codes := append([]uint8(nil), h.codes...)
	h.mu.Unlock()
	if diff := cmp.Diff([]uint8{0x1e, 0x9e, 0x30}, codes); diff != "" {
		t.Errorf("scancodes mismatch (-want +got):\n%s", diff)
	}
	if got := h.m.Bus().Inb(ioport.KeyboardStatus); got != 0 {
		t.Errorf("status = %#x after draining, want 0", got)
	}
}

func TestMaskedLine(t *testing.T) {
	h := boot(t, Opts{}, []int{0}, nil)
	h.m.CPU().EnableInterrupts()
	h.m.Press(0x1e)
	h.m.Sync()
	if got := h.m.Deliveries(33); got != 0 {
		t.Errorf("masked keyboard delivered %d times", got)
	}
	if got := h.m.PICState().MasterIRR; got&0x02 == 0 {
		t.Errorf("IRR = %#x, want line 1 latched", got)
	}
	if err := h.pics.Enable(1); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	h.m.Sync()
	if got := h.m.Deliveries(33); got != 1 {
		t.Errorf("keyboard delivered %d times after unmask, want 1", got)
	}
}

func TestMissingEOIBlocksLowerPriority(t *testing.T) {
	h := boot(t, Opts{}, []int{0, 1}, map[ring0.Vector]ring0.Handler{
		32: func(f *ring0.Frame) {},
	})
	h.m.CPU().EnableInterrupts()
	h.m.RaiseIRQ(TimerLine)
	h.m.Sync()
	h.m.RaiseIRQ(TimerLine)
	h.m.Press(0x1e)
	h.m.Sync()
	if got := h.m.Deliveries(32); got != 1 {
		t.Errorf("timer delivered %d times, want 1", got)
	}
	if got := h.m.Deliveries(33); got != 0 {
		t.Errorf("keyboard delivered %d times behind an unacknowledged timer", got)
	}

	// The latched timer edge wins over the keyboard and blocks it again.
	h.pics.EndOfInterrupt(32)
	h.m.Sync()
	if got, want := [2]uint64{h.m.Deliveries(32), h.m.Deliveries(33)}, [2]uint64{2, 0}; got != want {
		t.Errorf("deliveries after first EOI = %v, want %v", got, want)
	}
	h.pics.EndOfInterrupt(32)
	h.m.Sync()
	if got := h.m.Deliveries(33); got != 1 {
		t.Errorf("keyboard delivered %d times after second EOI, want 1", got)
	}
}

func TestDoubleFaultUsesIST(t *testing.T) {
	h := boot(t, Opts{}, []int{0, 1, 3}, nil)
	h.m.CPU().EnableInterrupts()

	// Line 3 is unmasked but vector 35 has no gate.
	h.m.RaiseIRQ(3)
	h.m.Sync()
	if diff := cmp.Diff([]ring0.Vector{ring0.DoubleFault}, h.vectors()); diff != "" {
		t.Fatalf("vectors mismatch (-want +got):\n%s", diff)
	}
	f := h.m.LastFrame()
	if f.RSP != h.k.DoubleFaultStackTop() {
		t.Errorf("double fault RSP = %#x, want IST1 top %#x", f.RSP, h.k.DoubleFaultStackTop())
	}

	h.m.RaiseException(ring0.GeneralProtectionFault, 0x18)
	f = h.m.LastFrame()
	if f.Vector != ring0.GeneralProtectionFault || f.ErrorCode != 0x18 || f.RSP == h.k.DoubleFaultStackTop() {
		t.Errorf("GP frame = %v", &f)
	}
}

func TestTripleFault(t *testing.T) {
	h := boot(t, Opts{}, nil, nil)
	h.m.CPU().LoadIDT(new(ring0.IDT), h.k)
	h.m.RaiseException(ring0.PageFault, 0)
	select {
	case err := <-h.done:
		h.done <- err
		if !errors.Is(err, ErrTripleFault) {
			t.Errorf("Run = %v, want %v", err, ErrTripleFault)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("machine survived a fault with an empty IDT")
	}
}

func TestSpurious(t *testing.T) {
	h := boot(t, Opts{}, []int{0, 1, 15}, nil)
	h.m.CPU().EnableInterrupts()
	h.m.RaiseSpurious(false)
	h.m.Sync()
	h.m.RaiseSpurious(true)
	h.m.Sync()
	if diff := cmp.Diff([]ring0.Vector{39, 47}, h.vectors()); diff != "" {
		t.Errorf("vectors mismatch (-want +got):\n%s", diff)
	}
	st := h.m.PICState()
	if st.MasterISR != 1<<2 || st.SlaveISR != 0 {
		t.Errorf("ISR = %#x/%#x, want only the cascade line in service", st.MasterISR, st.SlaveISR)
	}
}

func TestHaltWithInterruptsDisabled(t *testing.T) {
	var cpu *CPU
	h := boot(t, Opts{}, nil, map[ring0.Vector]ring0.Handler{
		ring0.GeneralProtectionFault: func(*ring0.Frame) {
			cpu.DisableInterrupts()
			cpu.Halt()
		},
	})
	cpu = h.m.CPU()
	h.m.RaiseException(ring0.GeneralProtectionFault, 0)
	if !h.m.Dead() {
		t.Fatalf("machine not dead after cli; hlt")
	}
	if err := h.stop(t); err != nil {
		t.Errorf("Run = %v, want nil", err)
	}
}

func TestHaltWakesOnTick(t *testing.T) {
	h := boot(t, Opts{TickInterval: time.Millisecond}, []int{0}, nil)
	cpu := h.m.CPU()
	cpu.EnableInterrupts()
	for i := 0; i < 3; i++ {
		cpu.Halt()
	}
	if got := h.m.Deliveries(32); got < 1 {
		t.Errorf("Halt returned without a timer delivery")
	}
}

// haltReturns runs EnableAndHalt and reports whether it returned in time.
func haltReturns(cpu *CPU) bool {
	done := make(chan struct{})
	go func() {
		cpu.EnableAndHalt()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(5 * time.Second):
		return false
	}
}

func TestEnableAndHaltServicesPending(t *testing.T) {
	h := boot(t, Opts{}, []int{1}, nil)
	cpu := h.m.CPU()
	cpu.DisableInterrupts()
	h.m.Press(0x1e)
	h.m.Sync()
	if got := h.m.Deliveries(33); got != 0 {
		t.Fatalf("delivered %d keyboard interrupts with IF clear", got)
	}
	if !haltReturns(cpu) {
		t.Fatalf("EnableAndHalt slept through a pending keyboard interrupt")
	}
	if got := h.m.Deliveries(33); got != 1 {
		t.Errorf("keyboard deliveries = %d, want 1", got)
	}
	if !cpu.InterruptsEnabled() {
		t.Errorf("IF clear after EnableAndHalt")
	}
}

func TestEnableAndHaltAfterLateDelivery(t *testing.T) {
	h := boot(t, Opts{}, []int{1}, nil)
	cpu := h.m.CPU()
	cpu.EnableInterrupts()
	cpu.DisableInterrupts()
	// A handler that was already running when the flag was cleared.
	h.m.delivered(33)
	if !haltReturns(cpu) {
		t.Fatalf("EnableAndHalt slept after a delivery that followed cli")
	}
}

func TestLoadValidatesSelectors(t *testing.T) {
	m := New(Opts{})
	m.CPU().LoadCodeSegment(ring0.Kcode)
	if err := m.Run(context.Background()); err == nil {
		t.Errorf("Run succeeded after loading CS without a GDT")
	}
}
