package syscallx

import (
	"context"
	"sync"

	"github.com/saturn-mips/saturn/internal/bytechan"
)

// heapBase is the address sbrk grows from; negative requests never
// shrink the break below it.
const heapBase uint32 = 0x20000000

// State is the syscall dispatcher's private state: everything a
// dispatch needs that isn't a CPU register or a memory cell. One State
// belongs to one running program.
type State struct {
	mu      sync.Mutex
	cond    *sync.Cond
	woken   bool
	heap    uint32
	input   *bytechan.Chan
	files   *fileTable
	rng     *rngTable
	console Console
	midi    MIDI
	clock   Clock
}

// NewState builds a fresh syscall state. sandboxRoot bounds open/read/
// write_file paths; input feeds read_int/read_char/read_string.
func NewState(sandboxRoot string, input *bytechan.Chan, console Console, midi MIDI, clock Clock) *State {
	s := &State{
		heap:    heapBase,
		input:   input,
		files:   newFileTable(sandboxRoot),
		rng:     newRNGTable(),
		console: console,
		midi:    midi,
		clock:   clock,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// WakeSync releases one pending midi_out_sync wait. A no-op if nothing
// is currently waiting.
func (s *State) WakeSync() {
	s.mu.Lock()
	s.woken = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// waitForSync blocks until WakeSync is called or ctx is cancelled.
func (s *State) waitForSync(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	stop := context.AfterFunc(ctx, s.cond.Broadcast)
	defer stop()
	// Drop any wake that arrived while nothing was waiting.
	s.woken = false
	for !s.woken {
		if ctx.Err() != nil {
			return false
		}
		s.cond.Wait()
	}
	s.woken = false
	return true
}

func (s *State) sbrk(n int32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.heap
	next := int64(s.heap) + int64(n)
	if next < int64(heapBase) {
		next = int64(heapBase)
	}
	s.heap = uint32(next)
	return old
}
