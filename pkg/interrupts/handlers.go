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
	"github.com/Rangdy-Kor/AerogelOS/pkg/ioport"
	"github.com/Rangdy-Kor/AerogelOS/pkg/kbd"
	"github.com/Rangdy-Kor/AerogelOS/pkg/ring0"
)

// Device handlers run with interrupts disabled. They must not block and must
// acknowledge the controller exactly once.

func (s *Subsystem) handleTimer(f *ring0.Frame) {
	s.ticks.Add(1)
	s.pics.EndOfInterrupt(f.Vector)
}

func (s *Subsystem) handleKeyboard(f *ring0.Frame) {
	s.keyboardInterrupts.Add(1)
	sc := kbd.Scancode(s.bus.Inb(ioport.KeyboardData))
	// kbd.ExtendedPrefix reads as a release and is dropped; the code after
	// it is queued as its base key. Keypad Enter and '/' decode like their
	// main block twins and the navigation keys decode to nothing.
	if !sc.Released() && !s.scancodes.TryPush(sc) {
		s.dropped.Add(1)
		s.logger.Warningf("Scancode queue full, dropped %v", sc)
	}
	s.pics.EndOfInterrupt(f.Vector)
}

func (s *Subsystem) handleSpurious(f *ring0.Frame) {
	if s.pics.IsSpurious(f.Vector) {
		s.spurious.Add(1)
		s.logger.Debugf("Spurious interrupt on %v", f.Vector)
		s.pics.AcknowledgeSpurious(f.Vector)
		return
	}
	// A real request on a line nobody unmasked.
	s.logger.Warningf("Unexpected interrupt on %v", f.Vector)
	s.pics.EndOfInterrupt(f.Vector)
}
