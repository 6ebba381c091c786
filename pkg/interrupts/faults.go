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
	"fmt"
	"strings"

	"github.com/Rangdy-Kor/AerogelOS/pkg/log"
	"github.com/Rangdy-Kor/AerogelOS/pkg/ring0"
	"github.com/Rangdy-Kor/AerogelOS/pkg/vga"
)

// doubleFaultMessage is shown in the top left corner on a double fault.
const doubleFaultMessage = "DOUBLE FAULT!"

// handleException is installed for every exception without a dedicated
// handler.
func (s *Subsystem) handleException(f *ring0.Frame) {
	if ring0.Classify(f.Vector) == ring0.Recoverable {
		s.traps.Add(1)
		s.logger.Infof("Trap: %v", f)
		return
	}
	s.fatal(f, strings.ToUpper(f.Vector.String())+"!")
}

// handleDoubleFault runs on the IST1 stack.
func (s *Subsystem) handleDoubleFault(f *ring0.Frame) {
	s.fatal(f, doubleFaultMessage)
}

// fatal reports f on the first two display rows and halts forever. There is
// nothing to return to.
func (s *Subsystem) fatal(f *ring0.Frame, msg string) {
	if s.display != nil {
		writeRow(s.display, 0, msg)
		writeRow(s.display, 1, fmt.Sprintf("error=%#x rip=%#x rsp=%#x", f.ErrorCode, f.RIP, f.RSP))
	}
	log.Warningf("Fatal exception: %v", f)
	s.cpu.DisableInterrupts()
	s.cpu.Halt()
}

func writeRow(d vga.Display, y int, msg string) {
	for x := 0; x < len(msg) && x < vga.Width; x++ {
		d.WriteGlyph(x, y, msg[x], vga.FaultAttr)
	}
}
