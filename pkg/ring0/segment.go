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

// Selector is a segment selector.
type Selector uint16

// SegmentDescriptorFlags are typed flags within a descriptor's high word.
type SegmentDescriptorFlags uint32

// SegmentDescriptorFlag declarations.
const (
	SegmentDescriptorAccess   SegmentDescriptorFlags = 1 << 8  // Access bit (always set).
	SegmentDescriptorWrite                           = 1 << 9  // Write permission (data), read permission (code).
	SegmentDescriptorExpandDown                      = 1 << 10 // Grows down, not used.
	SegmentDescriptorExecute                         = 1 << 11 // Execute permission.
	SegmentDescriptorCodeData                        = 1 << 12 // Code or data (clear for system segments).
	SegmentDescriptorPresent                         = 1 << 15 // Present.
	SegmentDescriptorLong                            = 1 << 21 // Long mode code segment.
	SegmentDescriptorDB                              = 1 << 22 // 32-bit default size (data).
	SegmentDescriptorG                               = 1 << 23 // Limit in 4K pages.
)

// Descriptor types for system segments, stored in bits 8-11.
const (
	segmentTypeTSS64Available = 0x9
)

// SegmentDescriptor is a segment descriptor.
type SegmentDescriptor struct {
	bits [2]uint32
}

// Uint64 returns the descriptor as the processor sees it in memory.
func (d *SegmentDescriptor) Uint64() uint64 {
	return uint64(d.bits[1])<<32 | uint64(d.bits[0])
}

// Base returns the 32-bit base address.
func (d *SegmentDescriptor) Base() uint32 {
	return d.bits[1]&0xFF000000 | (d.bits[1]&0x000000FF)<<16 | d.bits[0]>>16
}

// Limit returns the raw 20-bit limit field.
func (d *SegmentDescriptor) Limit() uint32 {
	return d.bits[1]&0x000F0000 | d.bits[0]&0x0000FFFF
}

// DPL returns the descriptor privilege level.
func (d *SegmentDescriptor) DPL() int {
	return int((d.bits[1] >> 13) & 3)
}

// Flags returns the descriptor flags.
func (d *SegmentDescriptor) Flags() SegmentDescriptorFlags {
	return SegmentDescriptorFlags(d.bits[1] & 0x00F0FF00 &^ (3 << 13))
}

// Present returns true if the descriptor is present.
func (d *SegmentDescriptor) Present() bool {
	return d.bits[1]&SegmentDescriptorPresent != 0
}

func (d *SegmentDescriptor) setNull() {
	d.bits[0] = 0
	d.bits[1] = 0
}

// set encodes a segment. The limit is the raw 20-bit field; callers select
// page granularity through SegmentDescriptorG.
func (d *SegmentDescriptor) set(base, limit uint32, dpl int, flags SegmentDescriptorFlags) {
	flags |= SegmentDescriptorPresent
	d.bits[0] = base<<16 | limit&0xFFFF
	d.bits[1] = base&0xFF000000 | (base>>16)&0xFF | limit&0x000F0000 | uint32(flags) | uint32(dpl&3)<<13
}

// setHi sets the high word of a 16-byte system descriptor.
func (d *SegmentDescriptor) setHi(base uint32) {
	d.bits[0] = base
	d.bits[1] = 0
}

// Global descriptor table layout.
const (
	segNull = iota
	segKcode
	segKdata
	segTss
	segTssHi
	segLast
)

// Selectors.
const (
	Kcode Selector = segKcode << 3
	Kdata Selector = segKdata << 3
	Tss   Selector = segTss << 3
)

// GDT is the global descriptor table.
type GDT [segLast]SegmentDescriptor

// Entry returns the descriptor for sel.
func (g *GDT) Entry(sel Selector) *SegmentDescriptor {
	return &g[sel>>3]
}

// Limit returns the GDT limit as loaded into GDTR.
func (g *GDT) Limit() uint16 {
	return uint16(8*segLast - 1)
}

// KernelCodeSegment and KernelDataSegment are the flat ring 0 segments.
var (
	KernelCodeSegment = func() (d SegmentDescriptor) {
		d.set(0, 0xFFFFF, 0, SegmentDescriptorWrite|SegmentDescriptorExecute|SegmentDescriptorCodeData|SegmentDescriptorLong|SegmentDescriptorG)
		return
	}()
	KernelDataSegment = func() (d SegmentDescriptor) {
		d.set(0, 0xFFFFF, 0, SegmentDescriptorWrite|SegmentDescriptorCodeData|SegmentDescriptorDB|SegmentDescriptorG)
		return
	}()
)

// setTSS fills the two GDT slots describing a 64-bit TSS at base.
func (g *GDT) setTSS(base uint64, limit uint32) {
	g[segTss].set(uint32(base), limit, 0, segmentTypeTSS64Available<<8)
	g[segTssHi].setHi(uint32(base >> 32))
}

// TSSBase returns the full 64-bit base recorded in the TSS descriptor pair.
func (g *GDT) TSSBase() uint64 {
	return uint64(g[segTssHi].bits[0])<<32 | uint64(g[segTss].Base())
}
