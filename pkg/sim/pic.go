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
	"math/bits"

	"github.com/Rangdy-Kor/AerogelOS/pkg/sync"
)

// 8259 command bits.
const (
	icw1Init   = 0x10
	icw1ICW4   = 0x01
	icw1Single = 0x02
	icw4AEOI   = 0x02

	ocw3Mask    = 0x18
	ocw3Ident   = 0x08
	ocw3ReadReg = 0x02
	ocw3ISR     = 0x01

	ocw2EOI      = 0x20
	ocw2Specific = 0x40

	cascadeLine  = 2
	spuriousLine = 7
)

// chip is one simulated 8259 in edge triggered, fully nested mode.
type chip struct {
	offset uint8
	imr    uint8
	irr    uint8
	isr    uint8

	// icw is the next initialization word expected on the data port, or
	// zero once initialization is complete.
	icw      int
	needICW4 bool
	single   bool
	cascade  uint8
	autoEOI  bool

	// readISR selects the register returned by command port reads.
	readISR bool

	// spurious is set when a request was withdrawn and the chip will
	// answer the next acknowledge cycle with line 7.
	spurious bool
}

func (c *chip) writeCommand(v uint8) {
	switch {
	case v&icw1Init != 0:
		c.icw = 2
		c.needICW4 = v&icw1ICW4 != 0
		c.single = v&icw1Single != 0
		c.imr, c.irr, c.isr = 0, 0, 0
		c.readISR = false
		c.autoEOI = false
	case v&ocw3Mask == ocw3Ident:
		if v&ocw3ReadReg != 0 {
			c.readISR = v&ocw3ISR != 0
		}
	case v&ocw2EOI != 0:
		if v&ocw2Specific != 0 {
			c.isr &^= 1 << (v & 7)
		} else if c.isr != 0 {
			// Clear the highest priority bit in service.
			c.isr &^= 1 << bits.TrailingZeros8(c.isr)
		}
	}
}

func (c *chip) writeData(v uint8) {
	switch c.icw {
	case 2:
		c.offset = v &^ 7
		switch {
		case !c.single:
			c.icw = 3
		case c.needICW4:
			c.icw = 4
		default:
			c.icw = 0
		}
	case 3:
		c.cascade = v
		if c.needICW4 {
			c.icw = 4
		} else {
			c.icw = 0
		}
	case 4:
		c.autoEOI = v&icw4AEOI != 0
		c.icw = 0
	default:
		c.imr = v
	}
}

func (c *chip) readCommand() uint8 {
	if c.readISR {
		return c.isr
	}
	return c.irr
}

// next returns the highest priority line that may interrupt now. extra adds
// requests not latched in irr (the slave's output on the cascade line).
func (c *chip) next(extra uint8) (int, bool) {
	if c.icw != 0 {
		return 0, false
	}
	req := (c.irr | extra) &^ c.imr
	for line := 0; line < 8; line++ {
		bit := uint8(1) << line
		if c.isr&bit != 0 {
			// Equal or higher priority in service.
			return 0, false
		}
		if req&bit != 0 {
			return line, true
		}
	}
	return 0, false
}

// pending returns true if the chip would answer an acknowledge cycle.
func (c *chip) pending(extra uint8) bool {
	_, ok := c.next(extra)
	return ok || (c.spurious && c.icw == 0)
}

func (c *chip) accept(line int) {
	bit := uint8(1) << line
	c.irr &^= bit
	if !c.autoEOI {
		c.isr |= bit
	}
}

// picPair is the cascaded master/slave pair.
type picPair struct {
	mu     sync.Mutex
	master chip
	slave  chip
}

func newPICPair() *picPair {
	// Power-on offsets and masks as left by a typical BIOS.
	return &picPair{
		master: chip{offset: 0x08, imr: 0xb8},
		slave:  chip{offset: 0x70, imr: 0x8f},
	}
}

// raise latches a rising edge on line.
func (p *picPair) raise(line int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if line < 8 {
		p.master.irr |= 1 << line
	} else {
		p.slave.irr |= 1 << (line - 8)
	}
}

// raiseSpurious makes the chip answer the next acknowledge cycle with line 7
// without setting it in service.
func (p *picPair) raiseSpurious(slave bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if slave {
		p.slave.spurious = true
	} else {
		p.master.spurious = true
	}
}

func (p *picPair) slaveOutput() uint8 {
	if p.slave.pending(0) {
		return 1 << cascadeLine
	}
	return 0
}

// acknowledge runs an interrupt acknowledge cycle and returns the vector
// supplied by the pair.
func (p *picPair) acknowledge() (uint8, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	line, ok := p.master.next(p.slaveOutput())
	if !ok {
		if p.master.spurious && p.master.icw == 0 {
			p.master.spurious = false
			return p.master.offset + spuriousLine, true
		}
		return 0, false
	}
	p.master.accept(line)
	if line != cascadeLine || p.master.cascade&(1<<cascadeLine) == 0 {
		return p.master.offset + uint8(line), true
	}

	sline, ok := p.slave.next(0)
	if !ok {
		p.slave.spurious = false
		return p.slave.offset + spuriousLine, true
	}
	p.slave.accept(sline)
	return p.slave.offset + uint8(sline), true
}

func (p *picPair) inb(port uint16) uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch port {
	case 0x20:
		return p.master.readCommand()
	case 0x21:
		return p.master.imr
	case 0xa0:
		return p.slave.readCommand()
	default:
		return p.slave.imr
	}
}

func (p *picPair) outb(port uint16, v uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch port {
	case 0x20:
		p.master.writeCommand(v)
	case 0x21:
		p.master.writeData(v)
	case 0xa0:
		p.slave.writeCommand(v)
	default:
		p.slave.writeData(v)
	}
}

// snapshot returns offsets and registers for inspection.
func (p *picPair) snapshot() PICState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PICState{
		MasterOffset: p.master.offset,
		SlaveOffset:  p.slave.offset,
		MasterIMR:    p.master.imr,
		SlaveIMR:     p.slave.imr,
		MasterISR:    p.master.isr,
		SlaveISR:     p.slave.isr,
		MasterIRR:    p.master.irr,
		SlaveIRR:     p.slave.irr,
		Initialized:  p.master.icw == 0 && p.slave.icw == 0,
	}
}

// PICState is a snapshot of the simulated controller pair.
type PICState struct {
	MasterOffset, SlaveOffset uint8
	MasterIMR, SlaveIMR       uint8
	MasterISR, SlaveISR       uint8
	MasterIRR, SlaveIRR       uint8
	Initialized               bool
}
