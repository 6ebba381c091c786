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
	"fmt"
)

// Vector is an exception or interrupt vector.
type Vector uintptr

// Exception vectors.
const (
	DivideByZero Vector = iota
	Debug
	NMI
	Breakpoint
	Overflow
	BoundRangeExceeded
	InvalidOpcode
	DeviceNotAvailable
	DoubleFault
	CoprocessorSegmentOverrun
	InvalidTSS
	SegmentNotPresent
	StackSegmentFault
	GeneralProtectionFault
	PageFault
	_
	X87FloatingPointException
	AlignmentCheck
	MachineCheck
	SIMDFloatingPointException
	VirtualizationException
	ControlProtectionException
	HypervisorInjectionException Vector = 0x1c
	VMMCommunicationException    Vector = 0x1d
	SecurityException            Vector = 0x1e

	// NumExceptions is the number of vectors reserved by the architecture.
	NumExceptions = 0x20

	// NumVectors is the number of entries in an IDT.
	NumVectors = 0x100
)

var exceptionNames = [NumExceptions]string{
	DivideByZero:                 "divide error",
	Debug:                        "debug",
	NMI:                          "non-maskable interrupt",
	Breakpoint:                   "breakpoint",
	Overflow:                     "overflow",
	BoundRangeExceeded:           "bound range exceeded",
	InvalidOpcode:                "invalid opcode",
	DeviceNotAvailable:           "device not available",
	DoubleFault:                  "double fault",
	CoprocessorSegmentOverrun:    "coprocessor segment overrun",
	InvalidTSS:                   "invalid TSS",
	SegmentNotPresent:            "segment not present",
	StackSegmentFault:            "stack segment fault",
	GeneralProtectionFault:       "general protection fault",
	PageFault:                    "page fault",
	X87FloatingPointException:    "x87 floating point exception",
	AlignmentCheck:               "alignment check",
	MachineCheck:                 "machine check",
	SIMDFloatingPointException:   "SIMD floating point exception",
	VirtualizationException:      "virtualization exception",
	ControlProtectionException:   "control protection exception",
	HypervisorInjectionException: "hypervisor injection exception",
	VMMCommunicationException:    "VMM communication exception",
	SecurityException:            "security exception",
}

// String implements fmt.Stringer.
func (v Vector) String() string {
	if v < NumExceptions {
		if name := exceptionNames[v]; name != "" {
			return name
		}
		return fmt.Sprintf("reserved exception %d", uintptr(v))
	}
	return fmt.Sprintf("vector %d", uintptr(v))
}

// IsException returns true if v is one of the architecturally reserved
// vectors.
func (v Vector) IsException() bool {
	return v < NumExceptions
}

// HasErrorCode returns true if the processor pushes an error code for v.
func (v Vector) HasErrorCode() bool {
	switch v {
	case DoubleFault, InvalidTSS, SegmentNotPresent, StackSegmentFault,
		GeneralProtectionFault, PageFault, AlignmentCheck,
		ControlProtectionException, VMMCommunicationException, SecurityException:
		return true
	default:
		return false
	}
}

// Class is the handling policy for an exception.
type Class int

const (
	// Recoverable exceptions are reported and execution resumes.
	Recoverable Class = iota

	// Fatal exceptions are reported and the processor halts forever.
	Fatal
)

// String implements fmt.Stringer.
func (c Class) String() string {
	switch c {
	case Recoverable:
		return "recoverable"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

// Classify returns the handling policy for exception v.
//
// Only traps that leave the machine in a consistent state are recoverable.
// There is no process boundary to contain anything else.
func Classify(v Vector) Class {
	switch v {
	case Debug, Breakpoint, Overflow:
		return Recoverable
	default:
		return Fatal
	}
}
