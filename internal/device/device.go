// Package device implements the ExecutionDevice facade: the single
// object a host (CLI, GUI, test harness) drives to load a program,
// run/pause/step it, feed it input, and inspect its state. Grounded on
// program_executor.go's ProgramExecutor, a "one struct gluing CPU, bus
// and IO together" facade.
package device

import (
	"context"
	"strconv"

	"github.com/saturn-mips/saturn/internal/bytechan"
	"github.com/saturn-mips/saturn/internal/cpu"
	"github.com/saturn-mips/saturn/internal/display"
	"github.com/saturn-mips/saturn/internal/executor"
	"github.com/saturn-mips/saturn/internal/keyboard"
	"github.com/saturn-mips/saturn/internal/memory"
	"github.com/saturn-mips/saturn/internal/syscallx"
	"github.com/saturn-mips/saturn/internal/tracker"
)

// Register indices for WriteRegister/ReadRegister: 0-31 are the GPRs,
// the rest name HI/LO/PC.
const (
	RegHI = 32
	RegLO = 33
	RegPC = 34
)

// ResumeKind is the outer tag of a ResumeResult.
type ResumeKind int

const (
	ResumeRunning ResumeKind = iota
	ResumePaused
	ResumeBreakpoint
	ResumeFinished
	ResumeInvalid
)

// ResumeResult is what RunBatch/Resume returns after advancing.
type ResumeResult struct {
	Kind      ResumeKind
	Registers cpu.Registers
	PC        uint32 // set for ResumeFinished
	Code      int32  // set for ResumeFinished (the program's exit code, if any)
	Message   string // set for ResumeInvalid
}

// Device owns one loaded program: its memory, interpreter, tracker,
// breakpoints, keyboard, and syscall state.
type Device struct {
	exec       *executor.Executor
	mem        memory.Memory
	tracker    tracker.Tracker
	keyboard   *keyboard.Device
	input      *bytechan.Chan
	syscalls   *syscallx.State
	finishedPC uint32
}

// execRegs adapts Executor's locked register access to syscallx's
// narrow Registers interface, taking the executor lock per access
// rather than for the whole syscall so a long-blocking syscall (e.g.
// read_char) never starves Frame()/PostKey callers.
type execRegs struct{ exec *executor.Executor }

func (r execRegs) Get(i uint32) uint32 {
	var v uint32
	r.exec.WithState(func(s *cpu.State) { v = s.Registers.Get(i) })
	return v
}

func (r execRegs) Set(i uint32, v uint32) {
	r.exec.WithState(func(s *cpu.State) { s.Registers.Set(i, v) })
}

// New builds a device around an already-mounted memory image. entry
// is the interpreter's starting PC; finishedPC is one past the end of
// the loaded executable region — reaching it without a syscall exit
// is treated as normal completion rather than a fault.
func New(mem *memory.SectionMemory, kb *keyboard.Device, entry, finishedPC uint32, sandboxRoot string, console syscallx.Console, midi syscallx.MIDI, clock syscallx.Clock) *Device {
	hist := tracker.NewHistory()
	watched := memory.NewWatched(mem, hist)

	state := cpu.NewState(watched)
	state.Registers.PC = entry

	input := bytechan.New()
	return &Device{
		exec:       executor.New(state, hist),
		mem:        watched,
		tracker:    hist,
		keyboard:   kb,
		input:      input,
		syscalls:   syscallx.NewState(sandboxRoot, input, console, midi, clock),
		finishedPC: finishedPC,
	}
}

// Pause stops the run loop as soon as the current cycle returns.
func (d *Device) Pause() { d.exec.Pause() }

// SetBreakpoints replaces the breakpoint set.
func (d *Device) SetBreakpoints(pcs []uint32) { d.exec.SetBreakpoints(pcs) }

// PostKey feeds a keypress (or release, if up) into the keyboard
// device's queue and hold map.
func (d *Device) PostKey(c byte, up bool) { d.keyboard.PushKey(c, up) }

// PostInput feeds raw bytes to the stdin stream read_int/read_char/
// read_string consume from.
func (d *Device) PostInput(data []byte) { d.input.Send(data) }

// WakeSync releases a pending midi_out_sync wait.
func (d *Device) WakeSync() { d.syscalls.WakeSync() }

// LastPC reports the interpreter's current program counter.
func (d *Device) LastPC() uint32 { return d.exec.Frame().Registers.PC }

// Rewind pops the most recent history frame and applies its inverse,
// undoing exactly the last instruction's register and memory effects.
func (d *Device) Rewind() bool {
	var ok bool
	d.exec.WithState(func(s *cpu.State) {
		var f tracker.Frame
		f, ok = d.tracker.Pop()
		if !ok {
			return
		}
		if err := tracker.Apply(f, &s.Registers, d.mem); err != nil {
			ok = false
		}
	})
	return ok
}

// ReadBytes copies n bytes starting at addr out of memory. ok is false
// if any byte in the range is unmapped.
func (d *Device) ReadBytes(addr uint32, n int) ([]byte, bool) {
	out := make([]byte, n)
	var ok = true
	d.exec.WithMemory(func(mem memory.Memory) {
		for i := 0; i < n; i++ {
			b, err := mem.Get(addr + uint32(i))
			if err != nil {
				ok = false
				return
			}
			out[i] = b
		}
	})
	if !ok {
		return nil, false
	}
	return out, true
}

// WriteBytes writes data starting at addr. ok is false if any byte in
// the range is unmapped or read-only.
func (d *Device) WriteBytes(addr uint32, data []byte) bool {
	ok := true
	d.exec.WithMemory(func(mem memory.Memory) {
		for i, b := range data {
			if err := mem.Set(addr+uint32(i), b); err != nil {
				ok = false
				return
			}
		}
	})
	return ok
}

// ReadDisplay renders the width*height framebuffer at addr to RGBA8888.
func (d *Device) ReadDisplay(addr, width, height uint32) ([]byte, bool) {
	var out []byte
	var ok bool
	d.exec.WithMemory(func(mem memory.Memory) { out, ok = display.Read(mem, addr, width, height) })
	return out, ok
}

// WriteRegister sets GPR i (0-31), HI (32), LO (33), or PC (34).
func (d *Device) WriteRegister(index int, value uint32) {
	d.exec.WithState(func(s *cpu.State) {
		switch {
		case index >= 0 && index < 32:
			s.Registers.Set(uint32(index), value)
		case index == RegHI:
			s.Registers.HI = value
		case index == RegLO:
			s.Registers.LO = value
		case index == RegPC:
			s.Registers.PC = value
		}
	})
}

// RunBatch advances up to count instructions, stopping early on a
// breakpoint, a fault, normal completion, or ctx cancellation. An
// Aborted syscall (sleep, midi_out_sync, a blocking read) leaves the
// executor parked on the syscall sentinel rather than consuming it, so
// the next RunBatch call retries that same syscall against whatever
// ctx it is given — callers pass firstBatch true on the first call of
// a fresh resume purely so the caller itself knows to hand in a new,
// uncancelled ctx rather than the one that just aborted; RunBatch does
// not need to inspect it to get this right.
func (d *Device) RunBatch(ctx context.Context, count int, firstBatch bool) ResumeResult {
	frame := d.exec.Frame()
	if frame.Mode == executor.ModeBreakpoint {
		frame, _ = d.exec.Cycle(false)
	}

	for i := 0; i < count; i++ {
		if ctx.Err() != nil {
			d.exec.Pause()
			return ResumeResult{Kind: ResumePaused, Registers: d.exec.Frame().Registers}
		}
		if i > 0 {
			if f := d.exec.Frame(); f.Mode == executor.ModePaused {
				return ResumeResult{Kind: ResumePaused, Registers: f.Registers}
			}
		}

		var advanced bool
		frame, advanced = d.exec.Cycle(true)
		if !advanced {
			result, resumeLoop := d.handleInvalid(ctx, frame)
			if !resumeLoop {
				return result
			}
			frame = d.exec.Frame()
			if frame.Registers.PC >= d.finishedPC {
				return ResumeResult{Kind: ResumeFinished, PC: frame.Registers.PC, Registers: frame.Registers}
			}
			continue
		}

		switch frame.Mode {
		case executor.ModeBreakpoint:
			return ResumeResult{Kind: ResumeBreakpoint, Registers: frame.Registers}
		case executor.ModeInvalid:
			result, resumeLoop := d.handleInvalid(ctx, frame)
			if !resumeLoop {
				return result
			}
			frame = d.exec.Frame()
			if frame.Registers.PC >= d.finishedPC {
				return ResumeResult{Kind: ResumeFinished, PC: frame.Registers.PC, Registers: frame.Registers}
			}
		case executor.ModeRunning:
			if frame.Registers.PC >= d.finishedPC {
				return ResumeResult{Kind: ResumeFinished, PC: frame.Registers.PC, Registers: frame.Registers}
			}
		}
	}
	return ResumeResult{Kind: ResumeRunning, Registers: frame.Registers}
}

// handleInvalid resolves a parked Invalid mode: it either dispatches a
// syscall and recovers (resumeLoop true, so RunBatch keeps spending its
// count budget) or reports a terminal condition (resumeLoop false).
func (d *Device) handleInvalid(ctx context.Context, frame executor.DebugFrame) (result ResumeResult, resumeLoop bool) {
	if frame.Fault == nil {
		return ResumeResult{Kind: ResumeInvalid, Registers: frame.Registers, Message: "unknown fault"}, false
	}
	if frame.Fault.Kind != cpu.FaultSyscall {
		return ResumeResult{Kind: ResumeInvalid, Registers: frame.Registers, Message: frame.Fault.Kind.String() + ": " + frame.Fault.Message}, false
	}

	outcome := syscallx.Dispatch(ctx, d.syscalls, execRegs{d.exec}, d.mem)
	switch outcome.Outcome {
	case syscallx.Terminated:
		d.exec.InvalidHandled()
		return ResumeResult{Kind: ResumeFinished, PC: d.exec.Frame().Registers.PC, Code: outcome.Code, Registers: d.exec.Frame().Registers}, false
	case syscallx.Aborted:
		return ResumeResult{Kind: ResumePaused, Registers: d.exec.Frame().Registers}, false
	case syscallx.Unimplemented, syscallx.Unknown:
		d.exec.InvalidHandled()
		return ResumeResult{Kind: ResumeInvalid, Registers: d.exec.Frame().Registers, Message: unrecognizedSyscallMessage(outcome)}, false
	case syscallx.Exception, syscallx.Failure:
		return ResumeResult{Kind: ResumeInvalid, Registers: frame.Registers, Message: outcome.Message}, false
	default: // Completed
		d.exec.InvalidHandled()
		return ResumeResult{}, true
	}
}

func unrecognizedSyscallMessage(r syscallx.Result) string {
	if r.Outcome == syscallx.Unimplemented {
		return "syscall not implemented: v0=" + strconv.FormatUint(uint64(r.Syscall), 10)
	}
	return "unknown syscall: v0=" + strconv.FormatUint(uint64(r.Syscall), 10)
}
