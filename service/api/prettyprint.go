package api

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/go-memview/memview/pkg/memview/viewmode"
)

// DefaultBytesPerRow is the number of memory bytes rendered on one line of a
// dump when the caller does not override it.
const DefaultBytesPerRow = 16

// PrettyMemory formats a block of memory the way the inspector displays it:
// one address column, fixed-width units in the current view mode, and an
// ASCII gutter. Units whose offset appears in modified are suffixed with '*'
// to mark uncommitted edits. A bytesPerRow of 0 or less selects the default
// row width; rows narrower than one unit are widened to a single unit.
func PrettyMemory(address uint64, mem []byte, littleEndian bool, mode viewmode.Mode, modified map[int]bool, bytesPerRow int) string {
	if bytesPerRow <= 0 {
		bytesPerRow = DefaultBytesPerRow
	}
	unit := mode.BytesPerUnit()
	cols := bytesPerRow / unit
	if cols == 0 {
		cols = 1
	}

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)

	for row := 0; row*cols*unit < len(mem); row++ {
		base := row * cols * unit
		fmt.Fprintf(w, "0x%08X:\t", address+uint64(base))

		for col := 0; col < cols; col++ {
			off := base + col*unit
			if off >= len(mem) {
				break
			}
			end := off + unit
			if end > len(mem) {
				end = len(mem)
			}
			cell := mode.Decode(mem[off:end], littleEndian)
			if unitModified(modified, off, unit) {
				cell += "*"
			}
			fmt.Fprintf(w, "%s\t", cell)
		}

		fmt.Fprintf(w, "%s\n", asciiGutter(mem[base:min(base+cols*unit, len(mem))]))
	}
	w.Flush()
	return b.String()
}

func unitModified(modified map[int]bool, off, unit int) bool {
	for i := off; i < off+unit; i++ {
		if modified[i] {
			return true
		}
	}
	return false
}

func asciiGutter(row []byte) string {
	out := make([]byte, len(row))
	for i, c := range row {
		if c >= 0x20 && c < 0x7f {
			out[i] = c
		} else {
			out[i] = '.'
		}
	}
	return string(out)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
