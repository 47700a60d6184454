package device

import (
	"context"
	"testing"
	"time"

	"github.com/saturn-mips/saturn/internal/keyboard"
	"github.com/saturn-mips/saturn/internal/memory"
	"github.com/saturn-mips/saturn/internal/syscallx"
)

type stubConsole struct{ out []string }

func (c *stubConsole) Print(text string) { c.out = append(c.out, text) }

type stubMIDI struct{}

func (stubMIDI) Play(syscallx.MIDIRequest) {}

type stubClock struct{}

func (stubClock) NowUnixMillis() int64 { return 0 }
func (stubClock) Sleep(ctx context.Context, millis uint32) error {
	select {
	case <-time.After(time.Duration(millis) * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

const base = uint32(0x00400000)

func asmI(op, rs, rt uint32, imm int32) uint32 {
	return (op << 26) | (rs << 21) | (rt << 16) | (uint32(imm) & 0xFFFF)
}

func newDevice(t *testing.T, words []uint32) (*Device, *stubConsole) {
	t.Helper()
	mem := memory.New()
	if err := mem.MountWritable(0x0040, 0); err != nil {
		t.Fatalf("mount: %v", err)
	}
	if err := mem.MountWritable(0x0000, 0); err != nil {
		t.Fatalf("mount: %v", err)
	}
	for i, w := range words {
		if err := mem.SetU32(base+uint32(i)*4, w); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	console := &stubConsole{}
	d := New(mem, keyboard.New(), base, base+uint32(len(words))*4, t.TempDir(), console, stubMIDI{}, stubClock{})
	return d, console
}

func TestHaltSyscallFinishesTheProgram(t *testing.T) {
	// addi $v0, $zero, 10 ; syscall
	li := asmI(0x08, 0, 2, 10)
	syscallWord := uint32(0x0000000C)
	d, _ := newDevice(t, []uint32{li, syscallWord})

	r := d.RunBatch(context.Background(), 10, true)
	if r.Kind != ResumeFinished || r.Code != 0 {
		t.Fatalf("got %+v, want ResumeFinished(0)", r)
	}
}

func TestExit2SyscallCarriesExitCode(t *testing.T) {
	li2 := asmI(0x08, 0, 2, 17)
	liA0 := asmI(0x08, 0, 4, 9)
	syscallWord := uint32(0x0000000C)
	d, _ := newDevice(t, []uint32{liA0, li2, syscallWord})

	r := d.RunBatch(context.Background(), 10, true)
	if r.Kind != ResumeFinished || r.Code != 9 {
		t.Fatalf("got %+v, want ResumeFinished(9)", r)
	}
}

func TestPrintIntSyscallThenHalt(t *testing.T) {
	liA0 := asmI(0x08, 0, 4, -7)
	liV0Print := asmI(0x08, 0, 2, 1)
	syscallWord := uint32(0x0000000C)
	liV0Exit := asmI(0x08, 0, 2, 10)
	d, console := newDevice(t, []uint32{liA0, liV0Print, syscallWord, liV0Exit, syscallWord})

	r := d.RunBatch(context.Background(), 20, true)
	if r.Kind != ResumeFinished {
		t.Fatalf("got %+v, want ResumeFinished", r)
	}
	if len(console.out) != 1 || console.out[0] != "-7" {
		t.Fatalf("console = %v, want [-7]", console.out)
	}
}

func TestBreakpointStopsABatch(t *testing.T) {
	nop := uint32(0)
	d, _ := newDevice(t, []uint32{nop, nop, nop})
	bp := base + 4
	d.SetBreakpoints([]uint32{bp})

	r := d.RunBatch(context.Background(), 10, true)
	if r.Kind != ResumeBreakpoint || r.Registers.PC != bp {
		t.Fatalf("got %+v, want ResumeBreakpoint at 0x%X", r, bp)
	}
}

func TestOverflowFaultReportsInvalid(t *testing.T) {
	// $t0 = 0x7FFFFFFF via lhi/llo, then add $t1, $t0, $t0 overflows.
	lhi := (uint32(0x18) << 26) | (uint32(8) << 16) | uint32(0x7FFF)
	llo := (uint32(0x19) << 26) | (uint32(8) << 16) | uint32(0xFFFF)
	addOverflow := (uint32(8) << 21) | (uint32(8) << 16) | (uint32(9) << 11) | 0x20 // add $t1,$t0,$t0
	d, _ := newDevice(t, []uint32{lhi, llo, addOverflow})

	r := d.RunBatch(context.Background(), 10, true)
	if r.Kind != ResumeInvalid {
		t.Fatalf("got %+v, want ResumeInvalid", r)
	}
}

func TestReadCharSyscallConsumesPostedInput(t *testing.T) {
	liV0 := asmI(0x08, 0, 2, 12) // read_char
	syscallWord := uint32(0x0000000C)
	d, _ := newDevice(t, []uint32{liV0, syscallWord})

	d.PostInput([]byte("Q"))
	r := d.RunBatch(context.Background(), 10, true)
	if r.Kind != ResumeFinished {
		t.Fatalf("got %+v, want ResumeFinished once the completed syscall reaches the end of the program", r)
	}
	if got := r.Registers.Get(2); got != 'Q' {
		t.Fatalf("$v0 = %d, want 'Q'", got)
	}
}

func TestRewindUndoesLastInstructionThroughTheFacade(t *testing.T) {
	addi := asmI(0x08, 0, 8, 5) // addi $t0, $zero, 5
	d, _ := newDevice(t, []uint32{addi})

	d.RunBatch(context.Background(), 1, true)
	if regs := d.exec.Frame().Registers; regs.Get(8) != 5 {
		t.Fatal("expected $t0 == 5 after the addi")
	}
	if !d.Rewind() {
		t.Fatal("expected rewind to succeed")
	}
	if regs := d.exec.Frame().Registers; regs.Get(8) != 0 {
		t.Fatal("expected $t0 restored to 0 after rewind")
	}
}

func TestSleepAbortedThenRetriedOnNextBatch(t *testing.T) {
	liV0 := asmI(0x08, 0, 2, 32) // sleep
	liA0 := asmI(0x08, 0, 4, 200)
	syscallWord := uint32(0x0000000C)
	d, _ := newDevice(t, []uint32{liA0, liV0, syscallWord})

	shortCtx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	r := d.RunBatch(shortCtx, 10, true)
	if r.Kind != ResumePaused {
		t.Fatalf("got %+v, want ResumePaused after an aborted sleep", r)
	}

	r = d.RunBatch(context.Background(), 10, false)
	if r.Kind != ResumeFinished {
		t.Fatalf("got %+v, want the retried sleep to finish the program", r)
	}
}

func TestWriteRegisterSetsSpecialRegisters(t *testing.T) {
	d, _ := newDevice(t, []uint32{0})
	d.WriteRegister(RegPC, 0x00400010)
	if d.LastPC() != 0x00400010 {
		t.Fatalf("pc = 0x%X, want 0x00400010", d.LastPC())
	}
}
