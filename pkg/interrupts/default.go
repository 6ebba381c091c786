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

package interrupts

import (
	"errors"
	"sync/atomic"

	"github.com/Rangdy-Kor/AerogelOS/pkg/kbd"
)

// ErrNotInstalled is returned by the package functions before Install.
var ErrNotInstalled = errors.New("no interrupt subsystem installed")

// defaultSubsystem is the process-wide subsystem.
var defaultSubsystem atomic.Pointer[Subsystem]

// Install makes s the process-wide subsystem used by the package functions.
func Install(s *Subsystem) {
	defaultSubsystem.Store(s)
}

// Default returns the process-wide subsystem, or nil.
func Default() *Subsystem {
	return defaultSubsystem.Load()
}

// InitInterrupts initializes the process-wide subsystem.
func InitInterrupts() error {
	s := Default()
	if s == nil {
		return ErrNotInstalled
	}
	return s.Init()
}

// EnableInterrupts enables interrupts on the process-wide subsystem.
func EnableInterrupts() error {
	s := Default()
	if s == nil {
		return ErrNotInstalled
	}
	return s.Enable()
}

// PollScancode polls the process-wide subsystem.
func PollScancode() (kbd.Scancode, bool) {
	s := Default()
	if s == nil {
		return 0, false
	}
	return s.PollScancode()
}

// ReadTickCount reads the process-wide tick counter.
func ReadTickCount() uint64 {
	s := Default()
	if s == nil {
		return 0
	}
	return s.ReadTickCount()
}
