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
	"fmt"

	"github.com/Rangdy-Kor/AerogelOS/pkg/atomicbitops"
	"github.com/Rangdy-Kor/AerogelOS/pkg/log"
	"github.com/Rangdy-Kor/AerogelOS/pkg/ring0"
	"github.com/Rangdy-Kor/AerogelOS/pkg/sync"
)

// CPU is the simulated processor. It implements ring0.CPU.
type CPU struct {
	m *Machine

	// mu protects the loaded tables.
	mu    sync.Mutex
	gdt   *ring0.GDT
	cs    ring0.Selector
	tss   *ring0.TaskState64
	idt   *ring0.IDT
	entry ring0.Entry

	// interrupts is the interrupt flag.
	interrupts atomicbitops.Bool

	// enables counts sti instructions.
	enables atomicbitops.Uint64

	// cliGen is the delivery generation sampled by the last cli.
	cliGen atomicbitops.Uint64
}

var _ ring0.CPU = (*CPU)(nil)

// LoadGDT implements ring0.CPU.LoadGDT.
func (c *CPU) LoadGDT(gdt *ring0.GDT) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gdt = gdt
}

// LoadCodeSegment implements ring0.CPU.LoadCodeSegment.
func (c *CPU) LoadCodeSegment(sel ring0.Selector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gdt == nil || !c.gdt.Entry(sel).Present() {
		c.m.fail(fmt.Errorf("load of CS %#x without a present descriptor", sel))
		return
	}
	c.cs = sel
}

// LoadTSS implements ring0.CPU.LoadTSS.
func (c *CPU) LoadTSS(sel ring0.Selector, tss *ring0.TaskState64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gdt == nil || !c.gdt.Entry(sel).Present() {
		c.m.fail(fmt.Errorf("load of task register %#x without a present descriptor", sel))
		return
	}
	c.tss = tss
}

// LoadIDT implements ring0.CPU.LoadIDT.
func (c *CPU) LoadIDT(idt *ring0.IDT, entry ring0.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idt = idt
	c.entry = entry
}

// DisableInterrupts implements ring0.CPU.DisableInterrupts.
func (c *CPU) DisableInterrupts() {
	c.cliGen.Store(c.m.generation())
	c.interrupts.Store(false)
}

// EnableInterrupts implements ring0.CPU.EnableInterrupts.
func (c *CPU) EnableInterrupts() {
	c.enables.Add(1)
	c.interrupts.Store(true)
	c.m.poke()
}

// InterruptsEnabled implements ring0.CPU.InterruptsEnabled.
func (c *CPU) InterruptsEnabled() bool {
	return c.interrupts.Load()
}

// Halt implements ring0.CPU.Halt.
//
// With interrupts enabled it returns after the next interrupt has been
// serviced. With interrupts disabled the machine is dead; Halt returns only
// once the machine has been stopped.
func (c *CPU) Halt() {
	if !c.interrupts.Load() {
		c.m.die()
		<-c.m.quit
		return
	}
	c.m.waitDelivery()
}

// EnableAndHalt implements ring0.CPU.EnableAndHalt.
//
// A handler that finished after the last DisableInterrupts counts as the
// wakeup, as does anything made deliverable by setting the flag.
func (c *CPU) EnableAndHalt() {
	ch, ok := c.m.armHalt(c.cliGen.Load())
	c.EnableInterrupts()
	if ok {
		c.m.waitOn(ch)
	}
}

// EnableCount returns the number of times interrupts were enabled.
func (c *CPU) EnableCount() uint64 {
	return c.enables.Load()
}

// Tables returns the loaded descriptor tables.
func (c *CPU) Tables() (*ring0.GDT, *ring0.TaskState64, *ring0.IDT) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gdt, c.tss, c.idt
}

// CodeSegment returns the loaded CS selector.
func (c *CPU) CodeSegment() ring0.Selector {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cs
}

// mainlineRSP is the stack pointer reported for the interrupted mainline.
const mainlineRSP = 0xffffffff80400000

// mainlineRIP is the instruction pointer reported for the interrupted
// mainline.
const mainlineRIP = 0xffffffff80200000

// rflagsIF is the interrupt flag in RFLAGS.
const rflagsIF = 1 << 9

// deliver runs the gate for v. Faults raised by the delivery itself escalate
// to a double fault, and a fault while delivering a double fault is a triple
// fault, returned as an error.
//
// Preconditions: called on the CPU goroutine.
func (c *CPU) deliver(v ring0.Vector, code uint64) error {
	c.mu.Lock()
	idt, entry, tss, cs := c.idt, c.entry, c.tss, c.cs
	c.mu.Unlock()

	escalate := func(reason string) error {
		if v == ring0.DoubleFault {
			return fmt.Errorf("%w: %s while delivering %v", ErrTripleFault, reason, v)
		}
		log.Debugf("Delivery of %v failed (%s), raising double fault", v, reason)
		return c.deliver(ring0.DoubleFault, 0)
	}

	if v >= ring0.NumVectors {
		return escalate("vector out of range")
	}
	if idt == nil {
		return escalate("no IDT loaded")
	}
	g := &idt[v]
	if !g.Present() {
		return escalate("gate not present")
	}
	if g.Selector() != cs {
		return escalate(fmt.Sprintf("gate selector %#x differs from CS %#x", g.Selector(), cs))
	}

	rflags := uint64(0x2)
	if c.interrupts.Load() {
		rflags |= rflagsIF
	}
	f := &ring0.Frame{
		Vector:    v,
		ErrorCode: code,
		RIP:       mainlineRIP,
		CS:        uint64(cs),
		RFLAGS:    rflags,
		RSP:       mainlineRSP,
	}
	if ist := g.IST(); ist != 0 {
		if tss == nil || tss.IST(ist) == 0 {
			return escalate(fmt.Sprintf("IST%d not set", ist))
		}
		f.RSP = tss.IST(ist)
	}
	c.m.record(f)
	if !entry.Enter(g.Offset(), f) {
		return escalate(fmt.Sprintf("no code at %#x", g.Offset()))
	}
	c.m.delivered(v)
	return nil
}
