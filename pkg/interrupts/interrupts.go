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

// Package interrupts brings up the hardware interrupt front end and owns the
// state shared between interrupt handlers and the mainline.
//
// Bring-up is two steps. Init builds and loads the descriptor tables and
// programs the controllers with interrupts disabled. Enable then sets the
// interrupt flag, exactly once. Afterwards the timer handler advances a tick
// counter and the keyboard handler queues key presses, which the mainline
// drains with PollScancode.
package interrupts

import (
	"errors"
	"fmt"
	"time"

	"github.com/Rangdy-Kor/AerogelOS/pkg/atomicbitops"
	"github.com/Rangdy-Kor/AerogelOS/pkg/eventq"
	"github.com/Rangdy-Kor/AerogelOS/pkg/ioport"
	"github.com/Rangdy-Kor/AerogelOS/pkg/kbd"
	"github.com/Rangdy-Kor/AerogelOS/pkg/log"
	"github.com/Rangdy-Kor/AerogelOS/pkg/pic"
	"github.com/Rangdy-Kor/AerogelOS/pkg/ring0"
	"github.com/Rangdy-Kor/AerogelOS/pkg/sync"
	"github.com/Rangdy-Kor/AerogelOS/pkg/vga"
)

// Device lines with handlers.
const (
	TimerLine    = 0
	KeyboardLine = 1
)

var (
	// ErrNotInitialized is returned by Enable before Init.
	ErrNotInitialized = errors.New("interrupts not initialized")

	// ErrAlreadyInitialized is returned by a second Init.
	ErrAlreadyInitialized = errors.New("interrupts already initialized")

	// ErrAlreadyEnabled is returned by a second Enable.
	ErrAlreadyEnabled = errors.New("interrupts already enabled")

	// ErrNoHandler is returned for configured lines without a handler.
	ErrNoHandler = errors.New("no handler for IRQ line")
)

// Config configures the subsystem.
type Config struct {
	// MasterOffset and SlaveOffset are the vectors of IRQ 0 and IRQ 8.
	MasterOffset uint8
	SlaveOffset  uint8

	// Lines are the IRQ lines to unmask. Only the timer and keyboard lines
	// have handlers.
	Lines []int

	// QueueSize is the scancode queue capacity, a power of 2.
	QueueSize int
}

// DefaultConfig returns the standard PC configuration with the timer and
// keyboard enabled.
func DefaultConfig() Config {
	return Config{
		MasterOffset: pic.DefaultMasterOffset,
		SlaveOffset:  pic.DefaultSlaveOffset,
		Lines:        []int{TimerLine, KeyboardLine},
		QueueSize:    eventq.DefaultCapacity,
	}
}

// Subsystem states.
const (
	stateNew uint32 = iota
	stateInitialized
	stateEnabled
)

// Subsystem is the interrupt front end of one processor.
type Subsystem struct {
	cfg     Config
	cpu     ring0.CPU
	bus     ioport.Bus
	display vga.Display

	// mu serializes Init and Enable.
	mu    sync.Mutex
	state atomicbitops.Uint32

	kernel ring0.Kernel
	pics   *pic.Chained

	// scancodes is produced by the keyboard handler and consumed by
	// PollScancode.
	scancodes *eventq.Queue[kbd.Scancode]

	ticks              atomicbitops.Uint64
	keyboardInterrupts atomicbitops.Uint64
	dropped            atomicbitops.Uint64
	spurious           atomicbitops.Uint64
	traps              atomicbitops.Uint64

	// logger is used from interrupt context.
	logger log.Logger
}

// New returns a subsystem for the given processor, port bus and display.
// Nothing is touched until Init.
func New(cpu ring0.CPU, bus ioport.Bus, display vga.Display, cfg Config) (*Subsystem, error) {
	if cfg.QueueSize == 0 {
		cfg.QueueSize = eventq.DefaultCapacity
	}
	if cfg.QueueSize < 0 || cfg.QueueSize&(cfg.QueueSize-1) != 0 {
		return nil, fmt.Errorf("queue size %d is not a power of 2", cfg.QueueSize)
	}
	for _, line := range cfg.Lines {
		if line != TimerLine && line != KeyboardLine {
			return nil, fmt.Errorf("line %d: %w", line, ErrNoHandler)
		}
	}
	pics, err := pic.New(bus, cfg.MasterOffset, cfg.SlaveOffset)
	if err != nil {
		return nil, fmt.Errorf("configuring interrupt controllers: %w", err)
	}
	return &Subsystem{
		cfg:       cfg,
		cpu:       cpu,
		bus:       bus,
		display:   display,
		pics:      pics,
		scancodes: eventq.New[kbd.Scancode](cfg.QueueSize),
		logger:    log.BasicRateLimitedLogger(time.Second),
	}, nil
}

// Init builds and loads the descriptor tables, remaps the controllers and
// unmasks the configured lines. Interrupts stay disabled.
func (s *Subsystem) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Load() != stateNew {
		return ErrAlreadyInitialized
	}

	s.cpu.DisableInterrupts()

	timer := s.pics.Vector(TimerLine)
	keyboard := s.pics.Vector(KeyboardLine)
	handlers := map[ring0.Vector]ring0.Handler{
		ring0.DoubleFault: s.handleDoubleFault,
		timer:             s.handleTimer,
		keyboard:          s.handleKeyboard,
		// Lines 7 and 15 can fire spuriously even while masked.
		s.pics.Vector(7):  s.handleSpurious,
		s.pics.Vector(15): s.handleSpurious,
	}
	if err := s.kernel.Init(ring0.KernelOpts{
		Handlers: handlers,
		Default:  s.handleException,
	}); err != nil {
		return fmt.Errorf("building descriptor tables: %w", err)
	}
	if err := s.kernel.Load(s.cpu); err != nil {
		return fmt.Errorf("loading descriptor tables: %w", err)
	}

	s.pics.Remap()
	if err := s.pics.EnableLines(s.cfg.Lines...); err != nil {
		return fmt.Errorf("unmasking lines %v: %w", s.cfg.Lines, err)
	}
	master, slave := s.pics.Masks()
	log.Infof("Interrupts initialized: vectors %d/%d, masks %#02x/%#02x, lines %v",
		s.cfg.MasterOffset, s.cfg.SlaveOffset, master, slave, s.cfg.Lines)

	s.state.Store(stateInitialized)
	return nil
}

// Enable sets the processor interrupt flag. It must follow Init and may only
// be called once.
func (s *Subsystem) Enable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state.Load() {
	case stateNew:
		return ErrNotInitialized
	case stateEnabled:
		return ErrAlreadyEnabled
	}
	s.state.Store(stateEnabled)
	s.cpu.EnableInterrupts()
	log.Infof("Interrupts enabled")
	return nil
}

// PollScancode returns the oldest queued key press without blocking.
func (s *Subsystem) PollScancode() (kbd.Scancode, bool) {
	return s.scancodes.TryPop()
}

// ReadTickCount returns the number of timer interrupts serviced.
func (s *Subsystem) ReadTickCount() uint64 {
	return s.ticks.Load()
}

// KeyboardInterrupts returns the number of keyboard interrupts serviced,
// including releases and dropped presses.
func (s *Subsystem) KeyboardInterrupts() uint64 {
	return s.keyboardInterrupts.Load()
}

// Dropped returns the number of key presses lost to a full queue.
func (s *Subsystem) Dropped() uint64 {
	return s.dropped.Load()
}

// Spurious returns the number of spurious interrupts seen.
func (s *Subsystem) Spurious() uint64 {
	return s.spurious.Load()
}

// Traps returns the number of recoverable exceptions handled.
func (s *Subsystem) Traps() uint64 {
	return s.traps.Load()
}

// InterruptsEnabled returns the processor interrupt flag.
func (s *Subsystem) InterruptsEnabled() bool {
	return s.cpu.InterruptsEnabled()
}

// Initialized returns true once Init has completed.
func (s *Subsystem) Initialized() bool {
	return s.state.Load() != stateNew
}

// Dispatch runs the handler for f.Vector as if the processor had delivered
// it. It returns false if the vector has no gate.
func (s *Subsystem) Dispatch(f *ring0.Frame) bool {
	return s.kernel.Dispatch(f)
}

// Kernel returns the descriptor tables.
func (s *Subsystem) Kernel() *ring0.Kernel {
	return &s.kernel
}

// Controllers returns the interrupt controller driver.
func (s *Subsystem) Controllers() *pic.Chained {
	return s.pics
}

// Config returns the configuration.
func (s *Subsystem) Config() Config {
	return s.cfg
}
