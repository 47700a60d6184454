// Package display implements Saturn's framebuffer reader: a pure
// conversion from a 0xAARRGGBB-packed memory region into RGBA bytes
// suitable for a GUI backend, grounded on video_chip.go's front-buffer
// HandleRead and its little-endian pixel packing.
package display

import (
	"github.com/saturn-mips/saturn/internal/memory"
)

// Read renders a width*height block of the framebuffer starting at
// address into RGBA8888 bytes (alpha always 0xFF; the source alpha
// channel is discarded). It returns ok==false if width*height
// overflows, or any source word cannot be read.
func Read(mem memory.Memory, address, width, height uint32) ([]byte, bool) {
	count := uint64(width) * uint64(height)
	if count > 1<<28 {
		// Guards against a pathological width/height pair turning into
		// an absurd allocation; no real mode ever approaches this.
		return nil, false
	}

	out := make([]byte, count*4)
	for i := uint64(0); i < count; i++ {
		addr := address + uint32(i)*4
		word, err := mem.GetU32(addr)
		if err != nil {
			return nil, false
		}
		// word is 0xAARRGGBB.
		r := byte(word >> 16)
		g := byte(word >> 8)
		b := byte(word)
		out[i*4+0] = r
		out[i*4+1] = g
		out[i*4+2] = b
		out[i*4+3] = 0xFF
	}
	return out, true
}

