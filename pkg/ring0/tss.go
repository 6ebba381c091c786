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

// StackSize is the size of each isolated fault stack. It is far larger than
// any fault handler frame: the handlers only format a message and halt.
const StackSize = 5 * 4096

// Stack is a statically sized isolated stack region.
type Stack [StackSize]byte

// Top returns the address one past the highest byte of s. Stacks grow down.
func (s *Stack) Top() uint64 {
	return uint64(uintptr(unsafe.Pointer(&s[0]))) + StackSize
}

// Interrupt stack table slots. Slot numbers are as written into a gate:
// zero means "no stack switch".
const (
	// DoubleFaultIST is the IST slot reserved for the double fault handler.
	DoubleFaultIST = 1

	maxIST = 7
)

// TaskState64 is a 64-bit task state segment. The layout is fixed by the
// architecture; 64-bit fields are split to avoid Go struct padding.
type TaskState64 struct {
	_              uint32
	rsp0Lo, rsp0Hi uint32
	rsp1Lo, rsp1Hi uint32
	rsp2Lo, rsp2Hi uint32
	_              [2]uint32
	ist            [2 * maxIST]uint32
	_              [2]uint32
	_              uint16
	ioPerm         uint16
}

// tssLimit is the limit recorded in the TSS descriptor.
const tssLimit = uint32(unsafe.Sizeof(TaskState64{}) - 1)

// SetIST sets IST slot n (1-7) to the stack top addr.
func (t *TaskState64) SetIST(n int, addr uint64) {
	if n < 1 || n > maxIST {
		panic("invalid IST slot")
	}
	t.ist[2*(n-1)] = uint32(addr)
	t.ist[2*(n-1)+1] = uint32(addr >> 32)
}

// IST returns the stack top stored in IST slot n (1-7).
func (t *TaskState64) IST(n int) uint64 {
	if n < 1 || n > maxIST {
		return 0
	}
	return uint64(t.ist[2*(n-1)+1])<<32 | uint64(t.ist[2*(n-1)])
}

// IOPermBase returns the I/O permission bitmap offset.
func (t *TaskState64) IOPermBase() uint16 {
	return t.ioPerm
}

// base returns the linear address of t.
func (t *TaskState64) base() uint64 {
	return uint64(uintptr(unsafe.Pointer(t)))
}
