// Package keyboard implements the memory-mapped keyboard device: a
// status/data register pair plus a 128-entry key-hold map, addressed
// at selector 0xFFFF. Grounded on terminal_io.go's TerminalMMIO
// register layout and mutex discipline.
package keyboard

import (
	"sync"

	"github.com/saturn-mips/saturn/internal/memory"
)

const (
	Selector = 0xFFFF

	statusAddr = 0xFFFF0000
	dataAddr   = 0xFFFF0004
	holdBase   = 0xFFFF0080
	holdCount  = 128
)

// Device is the keyboard MMIO listener. It owns a pending-key queue,
// the sticky "last popped" value, and the hold map.
type Device struct {
	mu    sync.Mutex
	queue []byte
	last  byte
	held  [holdCount]bool
}

// New returns an empty keyboard device.
func New() *Device {
	return &Device{}
}

// PushKey is the host-side input entry point. up==false means a key
// press: the character is enqueued for the data register. Regardless
// of up/down, the hold map for codes < 128 is updated.
func (d *Device) PushKey(c byte, up bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !up {
		d.queue = append(d.queue, c)
	}
	if int(c) < holdCount {
		d.held[c] = !up
	}
}

// Read implements memory.Listener.
func (d *Device) Read(addr uint32) (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case addr>>2<<2 == statusAddr:
		// A lw of the status register reads 4 bytes; only byte 0
		// carries data, bytes 1-3 of the word are zero.
		if addr != statusAddr {
			return 0, nil
		}
		if len(d.queue) > 0 {
			return 1, nil
		}
		return 0, nil

	case addr>>2<<2 == dataAddr:
		if addr != dataAddr {
			return 0, nil
		}
		if len(d.queue) > 0 {
			d.last = d.queue[0]
			d.queue = d.queue[1:]
		}
		return d.last, nil

	case addr >= holdBase && addr < holdBase+holdCount:
		k := addr - holdBase
		if d.held[k] {
			return 1, nil
		}
		return 0, nil
	}
	return 0, &memory.UnmappedError{Addr: addr}
}

// Write implements memory.Listener. The whole selector is read-only.
func (d *Device) Write(addr uint32, _ byte) error {
	return &memory.UnmappedError{Addr: addr}
}
