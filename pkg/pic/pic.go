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

// Package pic drives the cascaded pair of 8259 programmable interrupt
// controllers found on every PC.
//
// The master chip owns IRQ lines 0-7 and the slave owns lines 8-15. The slave
// is wired to master line 2. After Remap both chips are fully masked; callers
// unmask exactly the lines they have handlers for.
//
// Mask changes are serialized by a spin lock and must only be made from the
// mainline. EndOfInterrupt and the register reads take no lock and are safe
// to call from interrupt context.
package pic

import (
	"errors"
	"fmt"

	"github.com/Rangdy-Kor/AerogelOS/pkg/atomicbitops"
	"github.com/Rangdy-Kor/AerogelOS/pkg/ioport"
	"github.com/Rangdy-Kor/AerogelOS/pkg/ring0"
	"github.com/Rangdy-Kor/AerogelOS/pkg/sync"
)

// Command bytes.
const (
	// icw1Init starts initialization; ICW4 follows.
	icw1Init = 0x11

	// icw4Mode8086 selects 8086/88 mode.
	icw4Mode8086 = 0x01

	// ocw2EOI is a non-specific end of interrupt.
	ocw2EOI = 0x20

	// ocw3ReadIRR and ocw3ReadISR select the register returned by the next
	// command port read.
	ocw3ReadIRR = 0x0a
	ocw3ReadISR = 0x0b
)

// Line layout.
const (
	// LinesPerChip is the number of IRQ lines on one chip.
	LinesPerChip = 8

	// NumLines is the number of IRQ lines on the pair.
	NumLines = 2 * LinesPerChip

	// CascadeLine is the master line the slave is wired to.
	CascadeLine = 2

	// AllMasked disables every line of a chip.
	AllMasked = 0xff

	// spuriousLine is the lowest priority line of a chip, which the chip
	// reports when a request disappears before it is acknowledged.
	spuriousLine = 7
)

// DefaultMasterOffset and DefaultSlaveOffset place the sixteen IRQ vectors
// directly after the architectural exceptions.
const (
	DefaultMasterOffset = 32
	DefaultSlaveOffset  = 40
)

var (
	// ErrBadOffset is returned for vector offsets that overlap the
	// exceptions, each other, or are not a multiple of eight.
	ErrBadOffset = errors.New("invalid vector offset")

	// ErrBadLine is returned for IRQ lines outside 0-15.
	ErrBadLine = errors.New("invalid IRQ line")

	// ErrNotRemapped is returned by mask operations before Remap.
	ErrNotRemapped = errors.New("controllers not remapped")
)

// State is the controller pair's bring-up state.
type State uint32

const (
	// Uninitialized is the power-on state. Vector offsets are the BIOS
	// defaults, which collide with CPU exceptions.
	Uninitialized State = iota

	// Remapping is held while the initialization sequence is written.
	Remapping

	// Masked means the offsets are set and every line is disabled.
	Masked

	// Active means at least one line is enabled.
	Active
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Remapping:
		return "remapping"
	case Masked:
		return "masked"
	case Active:
		return "active"
	default:
		return fmt.Sprintf("State(%d)", uint32(s))
	}
}

// Chip is one 8259.
type Chip struct {
	command ioport.Port
	data    ioport.Port
	offset  uint8
	mask    uint8
}

// Offset returns the vector of the chip's line 0.
func (c *Chip) Offset() uint8 {
	return c.offset
}

func (c *Chip) handles(v ring0.Vector) bool {
	return v >= ring0.Vector(c.offset) && v < ring0.Vector(c.offset)+LinesPerChip
}

func (c *Chip) endOfInterrupt(bus ioport.Bus) {
	bus.Outb(c.command, ocw2EOI)
}

// Chained is the master/slave pair.
type Chained struct {
	bus ioport.Bus

	// mu serializes mask updates.
	mu     sync.SpinMutex
	master Chip
	slave  Chip

	state atomicbitops.Uint32
}

// CheckOffsets returns ErrBadOffset if the vector offsets overlap the CPU
// exceptions or each other, or are not a multiple of eight.
func CheckOffsets(masterOffset, slaveOffset uint8) error {
	switch {
	case masterOffset < ring0.NumExceptions:
		return fmt.Errorf("master offset %d overlaps CPU exceptions: %w", masterOffset, ErrBadOffset)
	case masterOffset%LinesPerChip != 0 || slaveOffset%LinesPerChip != 0:
		return fmt.Errorf("offsets %d/%d not aligned to %d: %w", masterOffset, slaveOffset, LinesPerChip, ErrBadOffset)
	case int(slaveOffset) < int(masterOffset)+LinesPerChip:
		return fmt.Errorf("slave offset %d overlaps master offset %d: %w", slaveOffset, masterOffset, ErrBadOffset)
	}
	return nil
}

// New returns a driver for the pair behind bus. Nothing is written until
// Remap.
func New(bus ioport.Bus, masterOffset, slaveOffset uint8) (*Chained, error) {
	if err := CheckOffsets(masterOffset, slaveOffset); err != nil {
		return nil, err
	}
	return &Chained{
		bus: bus,
		master: Chip{
			command: ioport.MasterCommand,
			data:    ioport.MasterData,
			offset:  masterOffset,
			mask:    AllMasked,
		},
		slave: Chip{
			command: ioport.SlaveCommand,
			data:    ioport.SlaveData,
			offset:  slaveOffset,
			mask:    AllMasked,
		},
	}, nil
}

// State returns the current bring-up state.
func (p *Chained) State() State {
	return State(p.state.Load())
}

// Remap programs both chips with their vector offsets and cascade wiring,
// then masks every line. It returns the masks that were in effect before.
//
// Interrupts must be disabled on the CPU.
func (p *Chained) Remap() (prevMaster, prevSlave uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Store(uint32(Remapping))

	prevMaster = p.bus.Inb(p.master.data)
	prevSlave = p.bus.Inb(p.slave.data)

	// The two chips are programmed in lockstep with a delay after every
	// byte. ICW1 goes to the command ports, ICW2-4 to the data ports.
	p.bus.Outb(p.master.command, icw1Init)
	ioport.Wait(p.bus)
	p.bus.Outb(p.slave.command, icw1Init)
	ioport.Wait(p.bus)
	for _, icw := range [...][2]uint8{
		{p.master.offset, p.slave.offset},
		{1 << CascadeLine, CascadeLine},
		{icw4Mode8086, icw4Mode8086},
	} {
		p.bus.Outb(p.master.data, icw[0])
		ioport.Wait(p.bus)
		p.bus.Outb(p.slave.data, icw[1])
		ioport.Wait(p.bus)
	}

	p.writeMasksLocked(AllMasked, AllMasked)
	return prevMaster, prevSlave
}

// MaskFor returns the mask bytes that enable exactly lines. The cascade
// line is enabled if and only if some slave line is; naming it in lines has
// no effect.
func MaskFor(lines ...int) (master, slave uint8, err error) {
	master, slave = AllMasked, AllMasked
	for _, line := range lines {
		switch {
		case line < 0 || line >= NumLines:
			return AllMasked, AllMasked, fmt.Errorf("line %d: %w", line, ErrBadLine)
		case line < LinesPerChip:
			master &^= 1 << line
		default:
			slave &^= 1 << (line - LinesPerChip)
		}
	}
	return withCascade(master, slave), slave, nil
}

// withCascade returns master with the cascade bit derived from slave.
func withCascade(master, slave uint8) uint8 {
	if slave == AllMasked {
		return master | 1<<CascadeLine
	}
	return master &^ (1 << CascadeLine)
}

// SetMasks writes both mask bytes.
func (p *Chained) SetMasks(master, slave uint8) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.remappedLocked() {
		return ErrNotRemapped
	}
	p.writeMasksLocked(master, slave)
	return nil
}

// EnableLines masks every line except lines.
func (p *Chained) EnableLines(lines ...int) error {
	master, slave, err := MaskFor(lines...)
	if err != nil {
		return err
	}
	return p.SetMasks(master, slave)
}

// Enable unmasks one line. The cascade line cannot be changed on its own.
func (p *Chained) Enable(line int) error {
	return p.update(line, func(m, bit uint8) uint8 { return m &^ bit })
}

// Disable masks one line. The cascade line cannot be changed on its own.
func (p *Chained) Disable(line int) error {
	return p.update(line, func(m, bit uint8) uint8 { return m | bit })
}

func (p *Chained) update(line int, op func(mask, bit uint8) uint8) error {
	if line < 0 || line >= NumLines {
		return fmt.Errorf("line %d: %w", line, ErrBadLine)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.remappedLocked() {
		return ErrNotRemapped
	}
	master, slave := p.master.mask, p.slave.mask
	if line < LinesPerChip {
		master = op(master, 1<<line)
	} else {
		slave = op(slave, 1<<(line-LinesPerChip))
	}
	// The cascade line follows the slave, whatever line was named.
	p.writeMasksLocked(withCascade(master, slave), slave)
	return nil
}

// writeMasksLocked writes the mask bytes that differ from the cached ones,
// or both if the chips were just remapped.
//
// Preconditions: p.mu is held.
func (p *Chained) writeMasksLocked(master, slave uint8) {
	force := p.State() == Remapping
	if force || master != p.master.mask {
		p.bus.Outb(p.master.data, master)
		p.master.mask = master
	}
	if force || slave != p.slave.mask {
		p.bus.Outb(p.slave.data, slave)
		p.slave.mask = slave
	}
	if master == AllMasked && slave == AllMasked {
		p.state.Store(uint32(Masked))
	} else {
		p.state.Store(uint32(Active))
	}
}

func (p *Chained) remappedLocked() bool {
	s := p.State()
	return s == Masked || s == Active
}

// Masks returns the current mask bytes.
func (p *Chained) Masks() (master, slave uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.master.mask, p.slave.mask
}

// Offsets returns the vector offsets of both chips.
func (p *Chained) Offsets() (master, slave uint8) {
	return p.master.offset, p.slave.offset
}

// Handles returns true if v is raised by one of the chips.
func (p *Chained) Handles(v ring0.Vector) bool {
	return p.master.handles(v) || p.slave.handles(v)
}

// Line returns the IRQ line raising v.
func (p *Chained) Line(v ring0.Vector) (int, bool) {
	switch {
	case p.master.handles(v):
		return int(v) - int(p.master.offset), true
	case p.slave.handles(v):
		return int(v) - int(p.slave.offset) + LinesPerChip, true
	default:
		return 0, false
	}
}

// Vector returns the vector raised by IRQ line.
func (p *Chained) Vector(line int) ring0.Vector {
	if line < LinesPerChip {
		return ring0.Vector(p.master.offset) + ring0.Vector(line)
	}
	return ring0.Vector(p.slave.offset) + ring0.Vector(line-LinesPerChip)
}

// EndOfInterrupt acknowledges v. Slave vectors are acknowledged on the slave
// and then on the master; master vectors on the master only. Vectors not
// owned by either chip are ignored.
//
// Every device handler must call this exactly once, or its line and all
// lower priority lines stay blocked.
func (p *Chained) EndOfInterrupt(v ring0.Vector) {
	switch {
	case p.slave.handles(v):
		p.slave.endOfInterrupt(p.bus)
		p.master.endOfInterrupt(p.bus)
	case p.master.handles(v):
		p.master.endOfInterrupt(p.bus)
	}
}

// ReadIRR returns the combined interrupt request registers, slave in the
// high byte.
func (p *Chained) ReadIRR() uint16 {
	return p.readRegister(ocw3ReadIRR)
}

// ReadISR returns the combined in-service registers, slave in the high byte.
func (p *Chained) ReadISR() uint16 {
	return p.readRegister(ocw3ReadISR)
}

func (p *Chained) readRegister(ocw3 uint8) uint16 {
	// The register select is chip state shared by every reader.
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bus.Outb(p.master.command, ocw3)
	p.bus.Outb(p.slave.command, ocw3)
	return uint16(p.bus.Inb(p.slave.command))<<8 | uint16(p.bus.Inb(p.master.command))
}

// IsSpurious returns true if v arrived on line 7 or 15 without the line being
// in service. A chip raises such a vector when a request is withdrawn before
// the CPU acknowledges it.
func (p *Chained) IsSpurious(v ring0.Vector) bool {
	line, ok := p.Line(v)
	if !ok || line%LinesPerChip != spuriousLine {
		return false
	}
	return p.ReadISR()&(1<<line) == 0
}

// AcknowledgeSpurious completes a spurious interrupt. The chip that raised
// it is not acknowledged; a spurious slave interrupt still occupied the
// cascade line on the master, which is.
func (p *Chained) AcknowledgeSpurious(v ring0.Vector) {
	if p.slave.handles(v) {
		p.master.endOfInterrupt(p.bus)
	}
}
