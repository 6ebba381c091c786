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

package sim

import (
	"github.com/Rangdy-Kor/AerogelOS/pkg/kbd"
	"github.com/Rangdy-Kor/AerogelOS/pkg/sync"
)

// keyboardController is a PS/2 controller with an unbounded input FIFO. The
// head of the FIFO is the output buffer; each byte raises IRQ 1 once it
// reaches the head.
type keyboardController struct {
	mu   sync.Mutex
	fifo []uint8
	last uint8
}

// push appends codes and returns true if the output buffer was empty.
func (k *keyboardController) push(codes ...uint8) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	empty := len(k.fifo) == 0
	k.fifo = append(k.fifo, codes...)
	return empty && len(codes) > 0
}

// read returns the output buffer and whether another byte follows. Reading
// an empty buffer returns the previous byte again.
func (k *keyboardController) read() (uint8, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.fifo) == 0 {
		return k.last, false
	}
	k.last = k.fifo[0]
	k.fifo = k.fifo[1:]
	return k.last, len(k.fifo) > 0
}

func (k *keyboardController) status() uint8 {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.fifo) > 0 {
		return kbd.StatusOutputFull
	}
	return 0
}
