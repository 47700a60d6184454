// Package tracker implements Saturn's write-observer and its two
// variants: a no-op and a bounded instruction history used for
// register/memory rewind. Grounded on debug_snapshot.go's
// MachineSnapshot (register capture before a step) and
// debug_monitor.go's stepHistory ring with its maxBackstep eviction.
package tracker

import "github.com/saturn-mips/saturn/internal/cpu"

// historyCapacity is the fixed ring size for rewindable history.
const historyCapacity = 1000

// edit is one byte write recorded during a single instruction.
type edit struct {
	addr uint32
	prev byte
}

// Frame is one tracker entry: the register file as it was before the
// instruction executed, plus the ordered pre-write byte values touched
// during that instruction. Applying a Frame in reverse edit order,
// then restoring Registers, undoes exactly one instruction.
type Frame struct {
	Registers cpu.Registers
	edits     []edit
}

// Tracker is the write-observer the interpreter's memory wrapper
// reports to, plus the per-instruction framing and rewind machinery
// the executor drives.
type Tracker interface {
	// Begin opens a new frame, snapshotting regs as the pre-instruction
	// state. Call once before each Step.
	Begin(regs cpu.Registers)
	// ObserveWrite implements memory.WriteObserver, appending to the
	// currently open frame.
	ObserveWrite(addr uint32, prevByte byte)
	// Pop removes and returns the most recent closed frame, or ok=false
	// if none remain.
	Pop() (Frame, bool)
	// Len reports how many frames are available to rewind.
	Len() int
}

// EmptyTracker observes nothing and never has anything to pop; used
// for runs that don't need rewind, avoiding the memory cost of a
// history buffer.
type EmptyTracker struct{}

func (EmptyTracker) Begin(cpu.Registers)            {}
func (EmptyTracker) ObserveWrite(uint32, byte)      {}
func (EmptyTracker) Pop() (Frame, bool)             { return Frame{}, false }
func (EmptyTracker) Len() int                       { return 0 }

// HistoryTracker keeps the last historyCapacity frames, evicting the
// oldest silently on overflow.
type HistoryTracker struct {
	frames []Frame
	open   *Frame
}

// NewHistory returns an empty history tracker.
func NewHistory() *HistoryTracker {
	return &HistoryTracker{frames: make([]Frame, 0, historyCapacity)}
}

func (h *HistoryTracker) Begin(regs cpu.Registers) {
	h.closeOpen()
	// Leave room for the frame being opened, so closed plus open frames
	// never exceed historyCapacity.
	if len(h.frames) >= historyCapacity {
		h.frames = h.frames[len(h.frames)-historyCapacity+1:]
	}
	h.open = &Frame{Registers: regs}
}

func (h *HistoryTracker) ObserveWrite(addr uint32, prevByte byte) {
	if h.open == nil {
		// A write with no open frame (e.g. a direct host write outside
		// Step) is not undoable; silently ignored rather than panicking,
		// matching the "tracker observes what it is given" contract.
		return
	}
	h.open.edits = append(h.open.edits, edit{addr: addr, prev: prevByte})
}

func (h *HistoryTracker) closeOpen() {
	if h.open == nil {
		return
	}
	h.frames = append(h.frames, *h.open)
	if len(h.frames) > historyCapacity {
		h.frames = h.frames[len(h.frames)-historyCapacity:]
	}
	h.open = nil
}

// Pop closes any still-open frame first, then removes and returns the
// most recent frame.
func (h *HistoryTracker) Pop() (Frame, bool) {
	h.closeOpen()
	if len(h.frames) == 0 {
		return Frame{}, false
	}
	last := h.frames[len(h.frames)-1]
	h.frames = h.frames[:len(h.frames)-1]
	return last, true
}

func (h *HistoryTracker) Len() int {
	n := len(h.frames)
	if h.open != nil {
		n++
	}
	return n
}

// Apply restores registers to f.Registers and replays f's byte edits
// in reverse order against mem, undoing the instruction the frame
// recorded.
func Apply(f Frame, regs *cpu.Registers, mem interface {
	Set(addr uint32, v byte) error
}) error {
	for i := len(f.edits) - 1; i >= 0; i-- {
		e := f.edits[i]
		if err := mem.Set(e.addr, e.prev); err != nil {
			return err
		}
	}
	*regs = f.Registers
	return nil
}
