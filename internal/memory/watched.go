package memory

// WriteObserver receives the previous byte value every time a write
// through a WatchedMemory succeeds. internal/tracker's HistoryTracker
// implements this; EmptyTracker can too, trivially, by ignoring it.
type WriteObserver interface {
	ObserveWrite(addr uint32, prevByte byte)
}

// WatchedMemory wraps an inner Memory and reports every successful
// byte write to a WriteObserver once the write has been applied,
// passing the byte read just before it, so a tracker can reconstruct
// the pre-write state later. Reads pass straight through.
// A write that fails is never reported.
type WatchedMemory struct {
	Inner    Memory
	Observer WriteObserver
}

// NewWatched wraps inner with a single-byte write journal.
func NewWatched(inner Memory, observer WriteObserver) *WatchedMemory {
	return &WatchedMemory{Inner: inner, Observer: observer}
}

func (w *WatchedMemory) Get(addr uint32) (byte, error) { return w.Inner.Get(addr) }

func (w *WatchedMemory) GetU16(addr uint32) (uint16, error) { return w.Inner.GetU16(addr) }

func (w *WatchedMemory) GetU32(addr uint32) (uint32, error) { return w.Inner.GetU32(addr) }

func (w *WatchedMemory) Set(addr uint32, v byte) error {
	prev, err := w.Inner.Get(addr)
	hadPrev := err == nil
	if err := w.Inner.Set(addr, v); err != nil {
		return err
	}
	if hadPrev {
		w.Observer.ObserveWrite(addr, prev)
	} else {
		w.Observer.ObserveWrite(addr, 0)
	}
	return nil
}

func (w *WatchedMemory) SetU16(addr uint32, v uint16) error {
	if addr&1 != 0 {
		return &AlignError{Addr: addr, Size: 2}
	}
	b0, _ := w.Inner.Get(addr)
	b1, _ := w.Inner.Get(addr + 1)
	if err := w.Inner.SetU16(addr, v); err != nil {
		return err
	}
	w.Observer.ObserveWrite(addr, b0)
	w.Observer.ObserveWrite(addr+1, b1)
	return nil
}

func (w *WatchedMemory) SetU32(addr uint32, v uint32) error {
	if addr&3 != 0 {
		return &AlignError{Addr: addr, Size: 4}
	}
	var prev [4]byte
	for i := 0; i < 4; i++ {
		prev[i], _ = w.Inner.Get(addr + uint32(i))
	}
	if err := w.Inner.SetU32(addr, v); err != nil {
		return err
	}
	for i := 0; i < 4; i++ {
		w.Observer.ObserveWrite(addr+uint32(i), prev[i])
	}
	return nil
}
