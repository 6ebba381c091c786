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
	"strings"
	"sync"
)

// Op is one recorded port access.
type Op struct {
	// Write is true for Outb and false for Inb.
	Write bool

	// Port is the accessed port.
	Port Port

	// Value is the byte written, or the byte returned by a read.
	Value uint8
}

// String implements fmt.Stringer.
func (o Op) String() string {
	if o.Write {
		return fmt.Sprintf("outb %v <- %#02x", o.Port, o.Value)
	}
	return fmt.Sprintf("inb  %v -> %#02x", o.Port, o.Value)
}

// Recorder is a Bus that records every access and forwards it to Next.
//
// With a nil Next, reads return queued values from Script (per port) and 0xff
// once the script is exhausted, and writes are dropped.
type Recorder struct {
	// Next receives forwarded accesses. May be nil.
	Next Bus

	mu     sync.Mutex
	ops    []Op
	script map[Port][]uint8
}

// Script queues values to be returned by subsequent reads of port when Next
// is nil.
func (r *Recorder) Script(port Port, values ...uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.script == nil {
		r.script = make(map[Port][]uint8)
	}
	r.script[port] = append(r.script[port], values...)
}

// Inb implements Bus.Inb.
func (r *Recorder) Inb(port Port) uint8 {
	var v uint8
	if r.Next != nil {
		v = r.Next.Inb(port)
	} else {
		v = r.scripted(port)
	}
	r.mu.Lock()
	r.ops = append(r.ops, Op{Port: port, Value: v})
	r.mu.Unlock()
	return v
}

func (r *Recorder) scripted(port Port) uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	vs := r.script[port]
	if len(vs) == 0 {
		return 0xff
	}
	r.script[port] = vs[1:]
	return vs[0]
}

// Outb implements Bus.Outb.
func (r *Recorder) Outb(port Port, value uint8) {
	if r.Next != nil {
		r.Next.Outb(port, value)
	}
	r.mu.Lock()
	r.ops = append(r.ops, Op{Write: true, Port: port, Value: value})
	r.mu.Unlock()
}

// Ops returns a copy of all recorded accesses.
func (r *Recorder) Ops() []Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Op(nil), r.ops...)
}

// Writes returns the recorded writes, optionally limited to the given ports.
func (r *Recorder) Writes(ports ...Port) []Op {
	var out []Op
	for _, op := range r.Ops() {
		if !op.Write {
			continue
		}
		if len(ports) == 0 || containsPort(ports, op.Port) {
			out = append(out, op)
		}
	}
	return out
}

// Reset drops all recorded accesses.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = nil
}

// String renders the recorded trace, one access per line.
func (r *Recorder) String() string {
	var b strings.Builder
	for _, op := range r.Ops() {
		b.WriteString(op.String())
		b.WriteByte('\n')
	}
	return b.String()
}

func containsPort(ports []Port, p Port) bool {
	for _, q := range ports {
		if q == p {
			return true
		}
	}
	return false
}
