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

// Package vga models the 80x25 color text mode display.
package vga

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/Rangdy-Kor/AerogelOS/pkg/sync"
)

// Text mode geometry.
const (
	Width  = 80
	Height = 25
)

// Color is one of the sixteen text mode colors.
type Color uint8

// Colors.
const (
	Black Color = iota
	Blue
	Green
	Cyan
	Red
	Magenta
	Brown
	LightGray
	DarkGray
	LightBlue
	LightGreen
	LightCyan
	LightRed
	Pink
	Yellow
	White
)

// Attr is a glyph attribute byte: background in the high nibble, foreground
// in the low nibble.
type Attr uint8

// MakeAttr returns the attribute for fg on bg.
func MakeAttr(fg, bg Color) Attr {
	return Attr(bg&0xf)<<4 | Attr(fg&0xf)
}

// Foreground returns the foreground color.
func (a Attr) Foreground() Color {
	return Color(a & 0xf)
}

// Background returns the background color.
func (a Attr) Background() Color {
	return Color(a >> 4)
}

// Common attributes.
const (
	// DefaultAttr is light gray on black.
	DefaultAttr Attr = 0x07

	// FaultAttr is white on red, used for fatal diagnostics.
	FaultAttr Attr = 0x4f
)

// Display is the glyph sink used by fault handlers.
type Display interface {
	// WriteGlyph places ch with attr at column x, row y. Out of range
	// positions are ignored.
	WriteGlyph(x, y int, ch byte, attr Attr)
}

// TextBuffer is an in-memory text mode frame buffer. Each cell holds the
// character in the low byte and the attribute in the high byte, as the
// hardware buffer at 0xb8000 does.
//
// WriteGlyph may be called from interrupt context, so the buffer is guarded
// by a spin lock and every critical section is a copy.
type TextBuffer struct {
	mu    sync.SpinMutex
	cells [Height][Width]uint16
}

// NewTextBuffer returns a buffer filled with blanks.
func NewTextBuffer() *TextBuffer {
	b := new(TextBuffer)
	b.Clear()
	return b
}

func blank(attr Attr) uint16 {
	return uint16(attr)<<8 | ' '
}

// WriteGlyph implements Display.WriteGlyph.
func (b *TextBuffer) WriteGlyph(x, y int, ch byte, attr Attr) {
	if x < 0 || x >= Width || y < 0 || y >= Height {
		return
	}
	b.mu.Lock()
	b.cells[y][x] = uint16(attr)<<8 | uint16(ch)
	b.mu.Unlock()
}

// Glyph returns the cell at x, y.
func (b *TextBuffer) Glyph(x, y int) (byte, Attr) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.cells[y][x]
	return byte(c), Attr(c >> 8)
}

// Clear blanks the whole buffer.
func (b *TextBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for y := range b.cells {
		for x := range b.cells[y] {
			b.cells[y][x] = blank(DefaultAttr)
		}
	}
}

// scroll moves every row up by one and blanks the last row.
func (b *TextBuffer) scroll(attr Attr) {
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(b.cells[:], b.cells[1:])
	for x := range b.cells[Height-1] {
		b.cells[Height-1][x] = blank(attr)
	}
}

// Row returns row y with trailing blanks removed.
func (b *TextBuffer) Row(y int) string {
	b.mu.Lock()
	row := b.cells[y]
	b.mu.Unlock()
	var sb strings.Builder
	for _, c := range row {
		sb.WriteByte(byte(c))
	}
	return strings.TrimRight(sb.String(), " ")
}

// Text returns all rows joined by newlines, with trailing empty rows
// removed.
func (b *TextBuffer) Text() string {
	rows := make([]string, Height)
	for y := range rows {
		rows[y] = b.Row(y)
	}
	return strings.TrimRight(strings.Join(rows, "\n"), "\n")
}

// ansiColor maps text mode colors to ANSI SGR foreground codes.
var ansiColor = [16]int{30, 34, 32, 36, 31, 35, 33, 37, 90, 94, 92, 96, 91, 95, 93, 97}

// RenderANSI writes the buffer to w using ANSI color escapes, one line per
// row.
func (b *TextBuffer) RenderANSI(w io.Writer) error {
	b.mu.Lock()
	cells := b.cells
	b.mu.Unlock()

	bw := bufio.NewWriter(w)
	for y := range cells {
		last := -1
		for _, c := range cells[y] {
			if a := int(c >> 8); a != last {
				attr := Attr(a)
				fmt.Fprintf(bw, "\x1b[%d;%dm", ansiColor[attr.Foreground()], ansiColor[attr.Background()&7]+10)
				last = a
			}
			bw.WriteByte(byte(c))
		}
		bw.WriteString("\x1b[0m\n")
	}
	return bw.Flush()
}
