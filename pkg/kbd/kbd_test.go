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

package kbd

import (
	"testing"
)

func TestRelease(t *testing.T) {
	s := Scancode(0x1e)
	if s.Released() {
		t.Errorf("%v reported as release", s)
	}
	r := s.Release()
	if r != 0x9e || !r.Released() || r.Code() != s {
		t.Errorf("Release(%v) = %v, code %v", s, r, r.Code())
	}
}

func TestDecode(t *testing.T) {
	for _, tc := range []struct {
		s    Scancode
		want rune
		ok   bool
	}{
		{0x1e, 'a', true},
		{0x02, '1', true},
		{0x0b, '0', true},
		{0x1c, '\n', true},
		{0x0e, '\b', true},
		{0x2b, '\\', true},
		{0x35, '/', true},
		{0x39, ' ', true},
		{0x01, 0, false},
		{0x1d, 0, false},
		{0x9e, 0, false},
		{0x58, 0, false},
	} {
		got, ok := Decode(tc.s)
		if got != tc.want || ok != tc.ok {
			t.Errorf("Decode(%v) = %q, %v; want %q, %v", tc.s, got, ok, tc.want, tc.ok)
		}
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	for _, r := range "abcxyz0123456789-=[];',./\\` *\n" {
		s, ok := Encode(r)
		if !ok {
			t.Errorf("Encode(%q) failed", r)
			continue
		}
		if got, ok := Decode(s); !ok || got != r {
			t.Errorf("Decode(Encode(%q)) = %q, %v", r, got, ok)
		}
	}
	if s, ok := Encode('Q'); !ok || s != 0x10 {
		t.Errorf("Encode('Q') = %v, %v; want 0x10", s, ok)
	}
	if s, ok := Encode('\r'); !ok || s != Enter {
		t.Errorf("Encode('\\r') = %v, %v; want %v", s, ok, Enter)
	}
	if _, ok := Encode('!'); ok {
		t.Errorf("Encode('!') succeeded")
	}
}
