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

package ring0

import (
	"errors"
	"fmt"

	"github.com/Rangdy-Kor/AerogelOS/pkg/sync"
)

// Entry stub area. Each vector owns a StubSize slot starting at StubBase;
// a gate's offset is the address of its slot.
const (
	StubBase uint64 = 0xffffffff80100000
	StubSize uint64 = 16
)

// StubAddr returns the entry stub address of v.
func StubAddr(v Vector) uint64 {
	return StubBase + uint64(v)*StubSize
}

var (
	// ErrAlreadyInitialized is returned by Init on a second call.
	ErrAlreadyInitialized = errors.New("kernel already initialized")

	// ErrNotInitialized is returned by Load before Init.
	ErrNotInitialized = errors.New("kernel not initialized")
)

// Frame is the state pushed on interrupt entry.
type Frame struct {
	Vector    Vector
	ErrorCode uint64
	RIP       uint64
	CS        uint64
	RFLAGS    uint64
	RSP       uint64
	SS        uint64
}

// String implements fmt.Stringer.
func (f *Frame) String() string {
	return fmt.Sprintf("%v error=%#x rip=%#x cs=%#x rflags=%#x rsp=%#x ss=%#x",
		f.Vector, f.ErrorCode, f.RIP, f.CS, f.RFLAGS, f.RSP, f.SS)
}

// Handler services a single vector. It runs with interrupts disabled.
type Handler func(f *Frame)

// Entry resolves gate offsets to handler code.
type Entry interface {
	// Enter runs the code at addr with frame f. It returns false if addr
	// is not an entry stub.
	Enter(addr uint64, f *Frame) bool
}

// CPU is the processor control surface the kernel needs.
type CPU interface {
	// LoadGDT loads the global descriptor table (lgdt).
	LoadGDT(gdt *GDT)

	// LoadCodeSegment reloads CS.
	LoadCodeSegment(sel Selector)

	// LoadTSS loads the task register (ltr).
	LoadTSS(sel Selector, tss *TaskState64)

	// LoadIDT loads the interrupt descriptor table (lidt). Gate offsets
	// are resolved through entry.
	LoadIDT(idt *IDT, entry Entry)

	// DisableInterrupts clears the interrupt flag (cli).
	DisableInterrupts()

	// EnableInterrupts sets the interrupt flag (sti).
	EnableInterrupts()

	// InterruptsEnabled returns the interrupt flag.
	InterruptsEnabled() bool

	// Halt waits for the next interrupt (hlt). With interrupts disabled it
	// never returns.
	Halt()

	// EnableAndHalt sets the interrupt flag and waits for the next
	// interrupt as one step (sti; hlt). An interrupt that became pending
	// while the flag was clear ends the wait.
	EnableAndHalt()
}

// KernelOpts are the options for Init.
type KernelOpts struct {
	// Handlers are installed by vector.
	Handlers map[Vector]Handler

	// Default is installed for every exception vector without an entry in
	// Handlers. It must be set unless all exceptions are covered.
	Default Handler
}

// Kernel holds the descriptor tables and fault stack.
//
// A Kernel is built once by Init and is read-only afterwards.
type Kernel struct {
	mu          sync.Mutex
	initialized bool

	gdt      GDT
	tss      TaskState64
	idt      IDT
	handlers [NumVectors]Handler

	// doubleFaultStack is referenced by IST slot 1.
	doubleFaultStack Stack
}

// Init builds the GDT, TSS and IDT.
func (k *Kernel) Init(opts KernelOpts) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.initialized {
		return ErrAlreadyInitialized
	}

	for v := Vector(0); v < NumExceptions; v++ {
		h, ok := opts.Handlers[v]
		if !ok {
			h = opts.Default
		}
		if h == nil {
			return fmt.Errorf("no handler for exception %v", v)
		}
		k.handlers[v] = h
	}
	for v, h := range opts.Handlers {
		if v >= NumVectors {
			return fmt.Errorf("vector %d out of range", uintptr(v))
		}
		if h == nil {
			return fmt.Errorf("nil handler for %v", v)
		}
		k.handlers[v] = h
	}

	// Null segment.
	k.gdt[segNull].setNull()

	// Kernel segments.
	k.gdt[segKcode] = KernelCodeSegment
	k.gdt[segKdata] = KernelDataSegment

	// The double fault runs on its own stack so that a corrupt stack
	// pointer cannot escalate into a triple fault.
	k.tss.SetIST(DoubleFaultIST, k.doubleFaultStack.Top())

	// Block all port access from the TSS bitmap.
	k.tss.ioPerm = uint16(tssLimit + 1)

	// The task segment, this spans two entries.
	k.gdt.setTSS(k.tss.base(), tssLimit)

	for v, h := range k.handlers {
		if h == nil {
			continue
		}
		// Allow Breakpoint and Overflow to be called from all
		// privilege levels.
		dpl := 0
		if Vector(v) == Breakpoint || Vector(v) == Overflow {
			dpl = 3
		}
		ist := 0
		if Vector(v) == DoubleFault {
			ist = DoubleFaultIST
		}
		k.idt[v].setInterrupt(Kcode, StubAddr(Vector(v)), dpl, ist)
	}

	k.initialized = true
	return nil
}

// Load installs the tables on cpu. The IDT is loaded last, once the TSS it
// refers to is in place.
func (k *Kernel) Load(cpu CPU) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.initialized {
		return ErrNotInitialized
	}
	cpu.LoadGDT(&k.gdt)
	cpu.LoadCodeSegment(Kcode)
	cpu.LoadTSS(Tss, &k.tss)
	cpu.LoadIDT(&k.idt, k)
	return nil
}

// Enter implements Entry.Enter.
func (k *Kernel) Enter(addr uint64, f *Frame) bool {
	if addr < StubBase || (addr-StubBase)%StubSize != 0 {
		return false
	}
	v := (addr - StubBase) / StubSize
	if v >= NumVectors {
		return false
	}
	h := k.handlers[v]
	if h == nil {
		return false
	}
	h(f)
	return true
}

// Dispatch runs the handler installed for f.Vector through its gate. It
// returns false if the gate is not present.
func (k *Kernel) Dispatch(f *Frame) bool {
	if f.Vector >= NumVectors {
		return false
	}
	g := &k.idt[f.Vector]
	if !g.Present() {
		return false
	}
	return k.Enter(g.Offset(), f)
}

// IDT returns the interrupt descriptor table.
func (k *Kernel) IDT() *IDT {
	return &k.idt
}

// GDT returns the global descriptor table.
func (k *Kernel) GDT() *GDT {
	return &k.gdt
}

// TSS returns the task state segment.
func (k *Kernel) TSS() *TaskState64 {
	return &k.tss
}

// DoubleFaultStackTop returns the top of the double fault stack.
func (k *Kernel) DoubleFaultStackTop() uint64 {
	return k.doubleFaultStack.Top()
}
