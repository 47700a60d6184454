package syscallx

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/saturn-mips/saturn/internal/bytechan"
	"github.com/saturn-mips/saturn/internal/memory"
)

type fakeRegs struct {
	r [32]uint32
}

func (f *fakeRegs) Get(i uint32) uint32    { return f.r[i] }
func (f *fakeRegs) Set(i uint32, v uint32) { f.r[i] = v }

type fakeConsole struct{ out []string }

func (c *fakeConsole) Print(text string) { c.out = append(c.out, text) }

type fakeMIDI struct{ plays []MIDIRequest }

func (m *fakeMIDI) Play(req MIDIRequest) { m.plays = append(m.plays, req) }

type fakeClock struct{ millis int64 }

func (c *fakeClock) NowUnixMillis() int64 { return c.millis }

func (c *fakeClock) Sleep(ctx context.Context, millis uint32) error {
	select {
	case <-time.After(time.Duration(millis) * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newTestState(t *testing.T) (*State, *fakeConsole, *fakeMIDI) {
	t.Helper()
	console := &fakeConsole{}
	midi := &fakeMIDI{}
	s := NewState(t.TempDir(), bytechan.New(), console, midi, &fakeClock{})
	return s, console, midi
}

func TestExitReturnsTerminatedWithCode(t *testing.T) {
	s, _, _ := newTestState(t)
	regs := &fakeRegs{}
	regs.Set(2, 17)
	regs.Set(4, 7)
	mem := memory.New()

	r := Dispatch(context.Background(), s, regs, mem)
	if r.Outcome != Terminated || r.Code != 7 {
		t.Fatalf("got %+v, want Terminated(7)", r)
	}
}

func TestHaltReturnsTerminatedWithZero(t *testing.T) {
	s, _, _ := newTestState(t)
	regs := &fakeRegs{}
	regs.Set(2, 10)
	mem := memory.New()

	r := Dispatch(context.Background(), s, regs, mem)
	if r.Outcome != Terminated || r.Code != 0 {
		t.Fatalf("got %+v, want Terminated(0)", r)
	}
}

func TestPrintIntFormatsSignedDecimal(t *testing.T) {
	s, console, _ := newTestState(t)
	regs := &fakeRegs{}
	regs.Set(2, 1)
	regs.Set(4, ^uint32(41)) // -42
	mem := memory.New()

	r := Dispatch(context.Background(), s, regs, mem)
	if r.Outcome != Completed {
		t.Fatalf("got %+v, want Completed", r)
	}
	if len(console.out) != 1 || console.out[0] != "-42" {
		t.Fatalf("console output = %v, want [-42]", console.out)
	}
}

func TestPrintStringReadsUntilNUL(t *testing.T) {
	s, console, _ := newTestState(t)
	mem := memory.New()
	if err := mem.MountWritable(0x0040, 0); err != nil {
		t.Fatalf("mount: %v", err)
	}
	addr := uint32(0x00400000)
	msg := "hi\x00trailing ignored"
	for i, b := range []byte(msg) {
		if err := mem.Set(addr+uint32(i), b); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	regs := &fakeRegs{}
	regs.Set(2, 4)
	regs.Set(4, addr)

	r := Dispatch(context.Background(), s, regs, mem)
	if r.Outcome != Completed {
		t.Fatalf("got %+v, want Completed", r)
	}
	if len(console.out) != 1 || console.out[0] != "hi" {
		t.Fatalf("console output = %v, want [hi]", console.out)
	}
}

func TestReadIntParsesSignAndStopsAtNonDigit(t *testing.T) {
	ch := bytechan.New()
	ch.Send([]byte("  -042x"))

	v, ok := readInt(context.Background(), ch)
	if !ok {
		t.Fatal("expected success")
	}
	if v != -42 {
		t.Fatalf("got %d, want -42", v)
	}
	if uint32(v) != 0xFFFFFFD6 {
		t.Fatalf("got 0x%08X, want 0xFFFFFFD6", uint32(v))
	}

	rest, ok := ch.Read(context.Background(), 1)
	if !ok || rest[0] != 'x' {
		t.Fatalf("expected 'x' left in the queue, got %v ok=%v", rest, ok)
	}
}

func TestReadStringCountLessThanOneIsNoOp(t *testing.T) {
	s, _, _ := newTestState(t)
	mem := memory.New()
	regs := &fakeRegs{}
	regs.Set(2, 8)
	regs.Set(4, 0x1000)
	regs.Set(5, 0)

	r := Dispatch(context.Background(), s, regs, mem)
	if r.Outcome != Completed {
		t.Fatalf("got %+v, want Completed (no-op)", r)
	}
}

func TestSbrkPointerMathDiffersByExactlyN(t *testing.T) {
	s, _, _ := newTestState(t)
	regs := &fakeRegs{}
	mem := memory.New()

	regs.Set(2, 9)
	regs.Set(4, uint32(256))
	r := Dispatch(context.Background(), s, regs, mem)
	if r.Outcome != Completed {
		t.Fatalf("got %+v, want Completed", r)
	}
	first := regs.Get(2)

	regs.Set(2, 9)
	regs.Set(4, uint32(64))
	Dispatch(context.Background(), s, regs, mem)
	second := regs.Get(2)

	if second-first != 256 {
		t.Fatalf("second sbrk returned %d bytes after first, want 256", second-first)
	}
}

func TestSbrkNeverShrinksBelowHeapBase(t *testing.T) {
	s, _, _ := newTestState(t)
	if got := s.sbrk(-4096); got != heapBase {
		t.Fatalf("first sbrk = 0x%X, want heapBase 0x%X", got, heapBase)
	}
	if s.heap != heapBase {
		t.Fatalf("heap clamped to %X, want heapBase", s.heap)
	}
}

func TestSleepIsAbortedByCancellation(t *testing.T) {
	s, _, _ := newTestState(t)
	regs := &fakeRegs{}
	regs.Set(2, 32)
	regs.Set(4, 60000)
	mem := memory.New()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	r := Dispatch(ctx, s, regs, mem)
	if r.Outcome != Aborted {
		t.Fatalf("got %+v, want Aborted", r)
	}
	if time.Since(start) > time.Second {
		t.Fatal("sleep was not actually cancelled promptly")
	}
}

func TestUnknownSyscallCodeIsReported(t *testing.T) {
	s, _, _ := newTestState(t)
	regs := &fakeRegs{}
	regs.Set(2, 999)
	mem := memory.New()

	r := Dispatch(context.Background(), s, regs, mem)
	if r.Outcome != Unknown || r.Syscall != 999 {
		t.Fatalf("got %+v, want Unknown(999)", r)
	}
}

func TestFloatingPointSyscallsAreUnimplemented(t *testing.T) {
	s, _, _ := newTestState(t)
	mem := memory.New()
	for _, code := range []uint32{2, 3, 6, 7, 43, 44} {
		regs := &fakeRegs{}
		regs.Set(2, code)
		r := Dispatch(context.Background(), s, regs, mem)
		if r.Outcome != Unimplemented || r.Syscall != code {
			t.Fatalf("code %d: got %+v, want Unimplemented", code, r)
		}
	}
}

func TestMidiOutSyncWaitsForWakeSync(t *testing.T) {
	s, _, midi := newTestState(t)
	regs := &fakeRegs{}
	regs.Set(2, 33)
	regs.Set(4, 60) // pitch
	mem := memory.New()

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.WakeSync()
	}()

	r := Dispatch(context.Background(), s, regs, mem)
	if r.Outcome != Completed {
		t.Fatalf("got %+v, want Completed", r)
	}
	if len(midi.plays) != 1 || midi.plays[0].Pitch != 60 {
		t.Fatalf("midi plays = %v, want one play with pitch 60", midi.plays)
	}
}

func TestOpenRejectsPathTraversal(t *testing.T) {
	s, _, _ := newTestState(t)
	mem := memory.New()
	if err := mem.MountWritable(0x0040, 0); err != nil {
		t.Fatalf("mount: %v", err)
	}
	path := "../../etc/passwd\x00"
	for i, b := range []byte(path) {
		if err := mem.Set(0x00400000+uint32(i), b); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	regs := &fakeRegs{}
	regs.Set(2, 13)
	regs.Set(4, 0x00400000)
	regs.Set(5, 0)

	r := Dispatch(context.Background(), s, regs, mem)
	if r.Outcome != Completed {
		t.Fatalf("got %+v, want Completed", r)
	}
	if int32(regs.Get(2)) != -1 {
		t.Fatalf("fd = %d, want -1 for a rejected path", int32(regs.Get(2)))
	}
}

func TestPrintStringFromUnmappedAddressIsException(t *testing.T) {
	s, _, _ := newTestState(t)
	mem := memory.New()
	regs := &fakeRegs{}
	regs.Set(2, 4)
	regs.Set(4, 0x00500000) // never mounted
	r := Dispatch(context.Background(), s, regs, mem)
	if r.Outcome != Exception {
		t.Fatalf("got %+v, want Exception", r)
	}
	if !strings.Contains(r.Message, "print_string") {
		t.Fatalf("message = %q, want it to mention print_string", r.Message)
	}
}
