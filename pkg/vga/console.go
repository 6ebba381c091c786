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

package vga

import (
	"io"

	"github.com/Rangdy-Kor/AerogelOS/pkg/sync"
)

// Console is a scrolling teletype on top of a TextBuffer.
type Console struct {
	mu     sync.Mutex
	buf    *TextBuffer
	x, y   int
	attr   Attr
	mirror io.Writer
}

// NewConsole returns a console writing to buf. Bytes written are also
// copied to mirror, if not nil.
func NewConsole(buf *TextBuffer, mirror io.Writer) *Console {
	return &Console{
		buf:    buf,
		attr:   DefaultAttr,
		mirror: mirror,
	}
}

// Buffer returns the underlying text buffer.
func (c *Console) Buffer() *TextBuffer {
	return c.buf
}

// SetAttr sets the attribute for subsequent writes.
func (c *Console) SetAttr(attr Attr) {
	c.mu.Lock()
	c.attr = attr
	c.mu.Unlock()
}

// Cursor returns the cursor position.
func (c *Console) Cursor() (x, y int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.x, c.y
}

// Write implements io.Writer. It handles newline and backspace; other bytes
// are placed as glyphs.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range p {
		c.putLocked(ch)
	}
	if c.mirror != nil {
		if _, err := c.mirror.Write(p); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// WriteString writes s.
func (c *Console) WriteString(s string) (int, error) {
	return c.Write([]byte(s))
}

// Print writes s with attr, restoring the previous attribute afterwards.
func (c *Console) Print(s string, attr Attr) {
	c.mu.Lock()
	prev := c.attr
	c.attr = attr
	c.mu.Unlock()
	c.WriteString(s)
	c.SetAttr(prev)
}

// Clear blanks the screen and homes the cursor.
func (c *Console) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf.Clear()
	c.x, c.y = 0, 0
}

// Preconditions: c.mu is held.
func (c *Console) putLocked(ch byte) {
	switch ch {
	case '\n':
		c.newlineLocked()
	case '\r':
		c.x = 0
	case '\b':
		if c.x > 0 {
			c.x--
			c.buf.WriteGlyph(c.x, c.y, ' ', c.attr)
		}
	default:
		if c.x >= Width {
			c.newlineLocked()
		}
		c.buf.WriteGlyph(c.x, c.y, ch, c.attr)
		c.x++
	}
}

// Preconditions: c.mu is held.
func (c *Console) newlineLocked() {
	c.x = 0
	if c.y < Height-1 {
		c.y++
		return
	}
	c.buf.scroll(c.attr)
}
