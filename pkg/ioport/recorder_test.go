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
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRecorderScript(t *testing.T) {
	var r Recorder
	r.Script(KeyboardData, 0x1e, 0x9e)
	got := []uint8{r.Inb(KeyboardData), r.Inb(KeyboardData), r.Inb(KeyboardData)}
	if diff := cmp.Diff([]uint8{0x1e, 0x9e, 0xff}, got); diff != "" {
		t.Errorf("scripted reads mismatch (-want +got):\n%s", diff)
	}
}

func TestRecorderForwards(t *testing.T) {
	inner := &Recorder{}
	inner.Script(MasterData, 0xfc)
	r := &Recorder{Next: inner}
	r.Outb(MasterCommand, 0x20)
	if v := r.Inb(MasterData); v != 0xfc {
		t.Errorf("Inb(MasterData) = %#x, want 0xfc", v)
	}
	want := []Op{
		{Write: true, Port: MasterCommand, Value: 0x20},
		{Port: MasterData, Value: 0xfc},
	}
	if diff := cmp.Diff(want, r.Ops()); diff != "" {
		t.Errorf("outer trace mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, inner.Ops()); diff != "" {
		t.Errorf("inner trace mismatch (-want +got):\n%s", diff)
	}
}

func TestWaitReadsDelayPort(t *testing.T) {
	var r Recorder
	Wait(&r)
	want := []Op{{Port: Delay, Value: 0xff}}
	if diff := cmp.Diff(want, r.Ops()); diff != "" {
		t.Errorf("Wait trace mismatch (-want +got):\n%s", diff)
	}
	if len(r.Writes()) != 0 {
		t.Errorf("Wait wrote to the bus: %v", r.Writes())
	}
}
