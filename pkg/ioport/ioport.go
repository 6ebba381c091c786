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

// Package ioport describes the x86 I/O port space used by the interrupt front
// end and provides buses that read and write it.
package ioport

import (
	"fmt"
)

// Port is an x86 I/O port number.
type Port uint16

// Ports used by the interrupt front end. These are fixed by the PC platform.
const (
	// KeyboardData is read to fetch one scancode byte.
	KeyboardData Port = 0x60

	// KeyboardStatus is the keyboard controller status register. Bit 0 is
	// set while the output buffer holds an unread byte.
	KeyboardStatus Port = 0x64

	// MasterCommand and MasterData are the master 8259 ports.
	MasterCommand Port = 0x20
	MasterData    Port = 0x21

	// SlaveCommand and SlaveData are the slave 8259 ports.
	SlaveCommand Port = 0xa0
	SlaveData    Port = 0xa1

	// Delay is an unused port; accessing it takes roughly a microsecond.
	Delay Port = 0x80
)

// String implements fmt.Stringer.
func (p Port) String() string {
	return fmt.Sprintf("%#04x", uint16(p))
}

// Bus performs byte-wide port I/O.
//
// Implementations must be safe to call from interrupt context: no blocking
// and no allocation.
type Bus interface {
	// Inb reads one byte from port.
	Inb(port Port) uint8

	// Outb writes one byte to port.
	Outb(port Port, value uint8)
}

// Wait performs the conventional I/O delay: a throwaway read of the Delay
// port. Old 8259 parts need it between consecutive initialization writes.
func Wait(bus Bus) {
	_ = bus.Inb(Delay)
}
