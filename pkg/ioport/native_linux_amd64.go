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

package ioport

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// inb executes IN AL, DX.
func inb(port uint16) uint8

// outb executes OUT DX, AL.
func outb(port uint16, value uint8)

// Range is a contiguous span of ports.
type Range struct {
	From Port
	Len  int
}

// LegacyRanges are the ranges touched by the interrupt front end.
var LegacyRanges = []Range{
	{From: MasterCommand, Len: 2},
	{From: KeyboardData, Len: 1},
	{From: KeyboardStatus, Len: 1},
	{From: Delay, Len: 1},
	{From: SlaveCommand, Len: 2},
}

// Native is a Bus backed by the host's real I/O ports.
//
// The calling process needs CAP_SYS_RAWIO. Only ports granted through
// OpenNative may be accessed; touching any other port raises SIGSEGV.
type Native struct {
	ranges []Range
}

// OpenNative grants the calling thread access to the given ranges with
// ioperm(2). Callers should lock the OS thread: the permission bitmap is
// per-thread on Linux.
func OpenNative(ranges ...Range) (*Native, error) {
	n := &Native{}
	for _, r := range ranges {
		if err := unix.Ioperm(int(r.From), r.Len, 1); err != nil {
			n.Close()
			return nil, fmt.Errorf("ioperm(%v, %d): %w", r.From, r.Len, err)
		}
		n.ranges = append(n.ranges, r)
	}
	return n, nil
}

// Close revokes the granted ranges.
func (n *Native) Close() error {
	var firstErr error
	for _, r := range n.ranges {
		if err := unix.Ioperm(int(r.From), r.Len, 0); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	n.ranges = nil
	return firstErr
}

// Inb implements Bus.Inb.
//
//go:nosplit
func (*Native) Inb(port Port) uint8 {
	return inb(uint16(port))
}

// Outb implements Bus.Outb.
//
//go:nosplit
func (*Native) Outb(port Port, value uint8) {
	outb(uint16(port), value)
}
