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

package sync

import (
	"runtime"
	"sync/atomic"
)

// SpinMutex is a mutual exclusion lock that never parks the caller.
//
// It is meant for critical sections that may be entered from interrupt
// context, where sleeping is not an option. Critical sections must be a
// handful of loads and stores.
//
// The zero value is unlocked.
type SpinMutex struct {
	_      NoCopy
	locked atomic.Uint32
}

// Lock locks m, spinning until it is available.
//
//go:nosplit
func (m *SpinMutex) Lock() {
	for i := 0; !m.locked.CompareAndSwap(0, 1); i++ {
		if i > spinYieldThreshold {
			runtime.Gosched()
		}
	}
}

// TryLock tries to lock m and reports whether it succeeded.
//
//go:nosplit
func (m *SpinMutex) TryLock() bool {
	return m.locked.CompareAndSwap(0, 1)
}

// Unlock unlocks m.
//
// Preconditions: m is locked.
//
//go:nosplit
func (m *SpinMutex) Unlock() {
	if !m.locked.CompareAndSwap(1, 0) {
		panic("unlock of unlocked SpinMutex")
	}
}

// spinYieldThreshold is the number of failed acquisitions after which Lock
// starts yielding the processor between attempts.
const spinYieldThreshold = 64
