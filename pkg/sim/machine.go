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

// Package sim implements a simulated single-core PC: a cascaded 8259 pair, a
// PS/2 keyboard controller, a periodic timer and a CPU that delivers vectors
// through the loaded IDT.
//
// Interrupt context is the machine's CPU goroutine. Handlers therefore run
// concurrently with the goroutine that plays the mainline, but never with each
// other.
package sim

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Rangdy-Kor/AerogelOS/pkg/atomicbitops"
	"github.com/Rangdy-Kor/AerogelOS/pkg/ioport"
	"github.com/Rangdy-Kor/AerogelOS/pkg/log"
	"github.com/Rangdy-Kor/AerogelOS/pkg/ring0"
	"github.com/Rangdy-Kor/AerogelOS/pkg/sync"
)

// IRQ lines of the simulated devices.
const (
	TimerLine    = 0
	KeyboardLine = 1
)

// ErrTripleFault is returned by Run when the processor shuts down.
var ErrTripleFault = errors.New("triple fault")

// Opts are machine options.
type Opts struct {
	// TickInterval is the timer period. Zero disables the timer.
	TickInterval time.Duration
}

type exception struct {
	vector ring0.Vector
	code   uint64
	done   chan struct{}
}

// Machine is a simulated PC.
type Machine struct {
	opts Opts
	cpu  CPU
	pics *picPair
	kbd  keyboardController

	// wake is poked whenever an interrupt may have become deliverable.
	wake chan struct{}

	// exceptions and syncs are serviced by the CPU goroutine.
	exceptions chan exception
	syncs      chan chan struct{}

	// quit is closed when the machine stops.
	quit     chan struct{}
	quitOnce sync.Once

	// halted is closed when the processor halts with interrupts disabled.
	halted   chan struct{}
	haltOnce sync.Once

	// failed carries a processor error raised outside the CPU goroutine.
	failed   chan error
	failOnce sync.Once

	mu sync.Mutex
	// deliveredCh is closed and replaced after every delivery.
	deliveredCh chan struct{}
	// gen counts deliveries.
	gen uint64
	// last is the most recent frame.
	last ring0.Frame

	counts [ring0.NumVectors]atomicbitops.Uint64
}

// New returns a powered-on machine. Call Run to start it.
func New(opts Opts) *Machine {
	m := &Machine{
		opts:        opts,
		pics:        newPICPair(),
		wake:        make(chan struct{}, 1),
		exceptions:  make(chan exception),
		syncs:       make(chan chan struct{}),
		quit:        make(chan struct{}),
		halted:      make(chan struct{}),
		failed:      make(chan error, 1),
		deliveredCh: make(chan struct{}),
	}
	m.cpu.m = m
	return m
}

// CPU returns the processor.
func (m *Machine) CPU() *CPU {
	return &m.cpu
}

// Bus returns the I/O port bus.
func (m *Machine) Bus() ioport.Bus {
	return (*bus)(m)
}

// Run runs the machine until ctx is cancelled or the processor triple
// faults.
func (m *Machine) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		m.stop()
		return nil
	})
	g.Go(func() error {
		return m.cpuLoop(gctx)
	})
	if m.opts.TickInterval > 0 {
		g.Go(func() error {
			return m.timer(gctx)
		})
	}
	err := g.Wait()
	m.stop()
	return err
}

func (m *Machine) stop() {
	m.quitOnce.Do(func() { close(m.quit) })
}

func (m *Machine) cpuLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-m.failed:
			return err
		case e := <-m.exceptions:
			err := m.cpu.deliver(e.vector, e.code)
			close(e.done)
			if err != nil {
				return err
			}
		case done := <-m.syncs:
			err := m.deliverPending()
			close(done)
			if err != nil {
				return err
			}
		case <-m.wake:
			if err := m.deliverPending(); err != nil {
				return err
			}
		}
	}
}

// deliverPending services device interrupts while the interrupt flag is
// set.
func (m *Machine) deliverPending() error {
	for m.cpu.interrupts.Load() && !m.Dead() {
		v, ok := m.pics.acknowledge()
		if !ok {
			return nil
		}
		if err := m.cpu.deliver(ring0.Vector(v), 0); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) timer(ctx context.Context) error {
	t := time.NewTicker(m.opts.TickInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			m.RaiseIRQ(TimerLine)
		}
	}
}

func (m *Machine) poke() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Machine) fail(err error) {
	m.failOnce.Do(func() {
		log.Warningf("Simulated processor failure: %v", err)
		m.failed <- err
	})
}

func (m *Machine) die() {
	m.haltOnce.Do(func() {
		log.Warningf("Processor halted with interrupts disabled")
		close(m.halted)
	})
}

// Halted returns a channel that is closed when the processor halts with
// interrupts disabled.
func (m *Machine) Halted() <-chan struct{} {
	return m.halted
}

// Dead returns true once the processor has halted with interrupts disabled.
func (m *Machine) Dead() bool {
	select {
	case <-m.halted:
		return true
	default:
		return false
	}
}

func (m *Machine) record(f *ring0.Frame) {
	m.mu.Lock()
	m.last = *f
	m.mu.Unlock()
}

func (m *Machine) delivered(v ring0.Vector) {
	m.counts[v].Add(1)
	m.mu.Lock()
	m.gen++
	close(m.deliveredCh)
	m.deliveredCh = make(chan struct{})
	m.mu.Unlock()
}

func (m *Machine) generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

// armHalt returns the channel closed by the next delivery, or false if a
// delivery completed since generation gen.
func (m *Machine) armHalt(gen uint64) (<-chan struct{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return nil, false
	}
	return m.deliveredCh, true
}

func (m *Machine) waitDelivery() {
	m.mu.Lock()
	ch := m.deliveredCh
	m.mu.Unlock()
	m.waitOn(ch)
}

// waitOn blocks until ch is closed or the machine dies or stops.
func (m *Machine) waitOn(ch <-chan struct{}) {
	select {
	case <-ch:
	case <-m.halted:
	case <-m.quit:
	}
}

// LastFrame returns the frame of the most recent delivery.
func (m *Machine) LastFrame() ring0.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Deliveries returns how many times v has been serviced.
func (m *Machine) Deliveries(v ring0.Vector) uint64 {
	return m.counts[v].Load()
}

// RaiseIRQ signals a rising edge on IRQ line.
func (m *Machine) RaiseIRQ(line int) {
	m.pics.raise(line)
	m.poke()
}

// RaiseSpurious makes the master (or slave) answer the next acknowledge
// cycle with its line 7 while nothing is in service.
func (m *Machine) RaiseSpurious(slave bool) {
	m.pics.raiseSpurious(slave)
	m.poke()
}

// RaiseException delivers exception v on the CPU goroutine and waits for the
// handler to return. It returns early if the machine dies or stops.
func (m *Machine) RaiseException(v ring0.Vector, code uint64) {
	e := exception{vector: v, code: code, done: make(chan struct{})}
	select {
	case m.exceptions <- e:
	case <-m.halted:
		return
	case <-m.quit:
		return
	}
	select {
	case <-e.done:
	case <-m.halted:
	case <-m.quit:
	}
}

// Press queues scancodes in the keyboard controller.
func (m *Machine) Press(codes ...uint8) {
	if m.kbd.push(codes...) {
		m.RaiseIRQ(KeyboardLine)
	}
}

// Sync waits until every deliverable interrupt has been serviced.
func (m *Machine) Sync() {
	done := make(chan struct{})
	select {
	case m.syncs <- done:
	case <-m.halted:
		return
	case <-m.quit:
		return
	}
	select {
	case <-done:
	case <-m.halted:
	case <-m.quit:
	}
}

// PICState returns a snapshot of the controller pair.
func (m *Machine) PICState() PICState {
	return m.pics.snapshot()
}

// bus routes port accesses to the devices.
type bus Machine

// Inb implements ioport.Bus.Inb.
func (b *bus) Inb(port ioport.Port) uint8 {
	m := (*Machine)(b)
	switch port {
	case ioport.MasterCommand, ioport.MasterData, ioport.SlaveCommand, ioport.SlaveData:
		return m.pics.inb(uint16(port))
	case ioport.KeyboardData:
		v, more := m.kbd.read()
		if more {
			m.RaiseIRQ(KeyboardLine)
		}
		return v
	case ioport.KeyboardStatus:
		return m.kbd.status()
	case ioport.Delay:
		return 0
	default:
		return 0xff
	}
}

// Outb implements ioport.Bus.Outb.
func (b *bus) Outb(port ioport.Port, v uint8) {
	m := (*Machine)(b)
	switch port {
	case ioport.MasterCommand, ioport.MasterData, ioport.SlaveCommand, ioport.SlaveData:
		m.pics.outb(uint16(port), v)
		// Unmasking or acknowledging may release a pending request.
		m.poke()
	}
}
