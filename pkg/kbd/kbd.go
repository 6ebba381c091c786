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

// Package kbd classifies and decodes PS/2 scancode set 1 bytes.
package kbd

import (
	"fmt"
	"unicode"
)

// StatusOutputFull is set in the keyboard controller status register while
// a byte waits in the data port.
const StatusOutputFull = 0x01

// releaseBit marks a key release (break code).
const releaseBit = 0x80

// Scancode is one raw byte read from the keyboard data port.
type Scancode uint8

// Well known make codes.
const (
	Escape    Scancode = 0x01
	Backspace Scancode = 0x0e
	Enter     Scancode = 0x1c
	Space     Scancode = 0x39
)

// ExtendedPrefix precedes the codes of keys added after the original
// keyboard (arrows, keypad Enter, right Ctrl). It has the release bit set.
const ExtendedPrefix Scancode = 0xe0

// Released returns true for a break code.
func (s Scancode) Released() bool {
	return s&releaseBit != 0
}

// Code returns the key number with the release bit cleared.
func (s Scancode) Code() Scancode {
	return s &^ releaseBit
}

// Release returns the break code for s.
func (s Scancode) Release() Scancode {
	return s | releaseBit
}

// String implements fmt.Stringer.
func (s Scancode) String() string {
	if s.Released() {
		return fmt.Sprintf("%#02x (release)", uint8(s))
	}
	return fmt.Sprintf("%#02x", uint8(s))
}

// ascii maps make codes to characters for an unshifted US layout. Zero
// entries have no printable character.
var ascii = [...]rune{
	0x02: '1', '2', '3', '4', '5', '6', '7', '8', '9', '0', '-', '=',
	0x0e: '\b',
	0x10: 'q', 'w', 'e', 'r', 't', 'y', 'u', 'i', 'o', 'p', '[', ']', '\n',
	0x1e: 'a', 's', 'd', 'f', 'g', 'h', 'j', 'k', 'l', ';', '\'', '`',
	0x2b: '\\', 'z', 'x', 'c', 'v', 'b', 'n', 'm', ',', '.', '/',
	0x37: '*',
	0x39: ' ',
}

// Decode returns the character for a key press. Releases and keys without a
// character return false.
func Decode(s Scancode) (rune, bool) {
	if s.Released() || int(s) >= len(ascii) || ascii[s] == 0 {
		return 0, false
	}
	return ascii[s], true
}

var codes = func() map[rune]Scancode {
	m := make(map[rune]Scancode, len(ascii))
	for s, r := range ascii {
		if r != 0 {
			m[r] = Scancode(s)
		}
	}
	m['\r'] = Enter
	m[0x7f] = Backspace
	return m
}()

// Encode returns the make code that produces r. Upper case letters map to
// their unshifted key.
func Encode(r rune) (Scancode, bool) {
	s, ok := codes[unicode.ToLower(r)]
	return s, ok
}
