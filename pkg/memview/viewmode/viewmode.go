// Package viewmode converts fixed-size byte sequences to and from the typed
// textual representations used by the memory inspector.
package viewmode

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Mode is one of the typed representations a memory view can display.
type Mode int

const (
	Byte Mode = iota
	Word
	Dword
	Qword
	Float
	Pointer
)

var modeNames = map[Mode]string{
	Byte:    "byte",
	Word:    "word",
	Dword:   "dword",
	Qword:   "qword",
	Float:   "float",
	Pointer: "pointer",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return "unknown"
}

// Parse returns the mode named by s.
func Parse(s string) (Mode, bool) {
	for m, name := range modeNames {
		if name == strings.ToLower(s) {
			return m, true
		}
	}
	return Byte, false
}

// Modes lists every mode in display order.
func Modes() []Mode {
	return []Mode{Byte, Word, Dword, Qword, Float, Pointer}
}

// BytesPerUnit returns the number of memory bytes one rendered unit covers.
func (m Mode) BytesPerUnit() int {
	switch m {
	case Byte:
		return 1
	case Word:
		return 2
	case Dword, Float:
		return 4
	case Qword, Pointer:
		return 8
	}
	return 1
}

// DisplayWidth returns the character count of a fixed-width rendered unit.
func (m Mode) DisplayWidth() int {
	switch m {
	case Byte:
		return 2
	case Word:
		return 4
	case Dword:
		return 8
	case Qword:
		return 16
	case Float:
		return 14
	case Pointer:
		return 18
	}
	return 2
}

func order(littleEndian bool) binary.ByteOrder {
	if littleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// Decode renders a byte sequence of exactly BytesPerUnit length. Integer
// modes render as zero-padded uppercase hex, Pointer adds a 0x prefix and
// Float renders the IEEE-754 single precision value at 7 significant digits.
// Short or overlong input renders as a run of '?' so a truncated chunk tail
// stays visible instead of shifting the row.
func (m Mode) Decode(b []byte, littleEndian bool) string {
	if len(b) != m.BytesPerUnit() {
		return strings.Repeat("?", m.DisplayWidth())
	}
	switch m {
	case Byte:
		return fmt.Sprintf("%02X", b[0])
	case Word:
		return fmt.Sprintf("%04X", order(littleEndian).Uint16(b))
	case Dword:
		return fmt.Sprintf("%08X", order(littleEndian).Uint32(b))
	case Qword:
		return fmt.Sprintf("%016X", order(littleEndian).Uint64(b))
	case Pointer:
		return fmt.Sprintf("0x%016X", order(littleEndian).Uint64(b))
	case Float:
		f := math.Float32frombits(order(littleEndian).Uint32(b))
		return strconv.FormatFloat(float64(f), 'g', 7, 32)
	}
	return strings.Repeat("?", m.DisplayWidth())
}

// Encode parses typed input into the unit's byte sequence. It reports false
// for malformed or out-of-range input (negative values, too many hex digits,
// non-finite floats) and never panics.
func (m Mode) Encode(text string, littleEndian bool) ([]byte, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}
	if m == Float {
		f, err := strconv.ParseFloat(text, 32)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, false
		}
		out := make([]byte, 4)
		order(littleEndian).PutUint32(out, math.Float32bits(float32(f)))
		return out, true
	}

	digits := strings.TrimPrefix(strings.TrimPrefix(text, "0x"), "0X")
	n := m.BytesPerUnit()
	if digits == "" || len(digits) > n*2 {
		return nil, false
	}
	v, err := strconv.ParseUint(digits, 16, n*8)
	if err != nil {
		return nil, false
	}
	out := make([]byte, n)
	switch n {
	case 1:
		out[0] = byte(v)
	case 2:
		order(littleEndian).PutUint16(out, uint16(v))
	case 4:
		order(littleEndian).PutUint32(out, uint32(v))
	case 8:
		order(littleEndian).PutUint64(out, v)
	}
	return out, true
}
