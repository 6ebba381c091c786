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

// Package sync provides the locks used by the interrupt front end: aliases
// of the standard library for mainline-only state, and SpinMutex for state
// shared with interrupt context.
package sync

import (
	"sync"
)

type (
	// Mutex may park the caller. Never take one from a handler.
	Mutex = sync.Mutex

	// Once is an alias of sync.Once.
	Once = sync.Once
)

// NoCopy marks a struct that must not be copied after first use. go vet's
// copylocks check reports copies of structs embedding it.
type NoCopy struct{}

// Lock is a no-op.
func (*NoCopy) Lock() {}

// Unlock is a no-op.
func (*NoCopy) Unlock() {}
