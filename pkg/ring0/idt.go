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
	"unsafe"
)

// Gate64 is a 64-bit task, trap, or interrupt gate.
type Gate64 struct {
	bits [4]uint32
}

// gateTypeInterrupt is the 64-bit interrupt gate type.
const gateTypeInterrupt = 0xE

// setInterrupt configures g to be an interrupt gate. Interrupt gates clear
// the interrupt flag on entry, so device handlers never nest.
func (g *Gate64) setInterrupt(cs Selector, rip uint64, dpl int, ist int) {
	g.bits[0] = uint32(cs)<<16 | uint32(rip)&0xFFFF
	g.bits[1] = uint32(rip)&0xFFFF0000 | SegmentDescriptorPresent | uint32(dpl&3)<<13 | gateTypeInterrupt<<8 | uint32(ist)&0x7
	g.bits[2] = uint32(rip >> 32)
	g.bits[3] = 0
}

// Offset returns the handler entry address.
func (g *Gate64) Offset() uint64 {
	return uint64(g.bits[2])<<32 | uint64(g.bits[1]&0xFFFF0000) | uint64(g.bits[0]&0xFFFF)
}

// Selector returns the code segment selector.
func (g *Gate64) Selector() Selector {
	return Selector(g.bits[0] >> 16)
}

// IST returns the interrupt stack table slot, or zero.
func (g *Gate64) IST() int {
	return int(g.bits[1] & 0x7)
}

// DPL returns the gate privilege level.
func (g *Gate64) DPL() int {
	return int((g.bits[1] >> 13) & 3)
}

// Present returns true if the gate is present.
func (g *Gate64) Present() bool {
	return g.bits[1]&SegmentDescriptorPresent != 0
}

// ClearsInterrupts returns true if entering through g clears the interrupt
// flag.
func (g *Gate64) ClearsInterrupts() bool {
	return (g.bits[1]>>8)&0xF == gateTypeInterrupt
}

// Words returns the raw gate as two little-endian quadwords.
func (g *Gate64) Words() (lo, hi uint64) {
	return uint64(g.bits[1])<<32 | uint64(g.bits[0]), uint64(g.bits[3])<<32 | uint64(g.bits[2])
}

// IDT is a 64-bit interrupt descriptor table.
type IDT [NumVectors]Gate64

// Limit returns the IDT limit as loaded into IDTR.
func (t *IDT) Limit() uint16 {
	return uint16(unsafe.Sizeof(*t) - 1)
}

// Base returns the linear address of the table.
func (t *IDT) Base() uint64 {
	return uint64(uintptr(unsafe.Pointer(t)))
}
