// Package executor implements Saturn's debugger wrapper around the
// interpreter: breakpoints, pause/step/run, and the mode state machine
// that the syscall dispatcher drives. Grounded on debug_monitor.go's
// MachineMonitor mutex discipline (state mutated only under a single
// lock, scoped accessor methods) and debug_interface.go's
// DebuggableCPU split between inspection and control.
package executor

import (
	"sync"

	"github.com/saturn-mips/saturn/internal/cpu"
	"github.com/saturn-mips/saturn/internal/memory"
	"github.com/saturn-mips/saturn/internal/tracker"
)

// Mode is the executor's outer state: paused, running, stopped at a
// breakpoint, or recovered from a fault.
type Mode int

const (
	ModePaused Mode = iota
	ModeRunning
	ModeBreakpoint
	ModeRecovered
	ModeInvalid
)

func (m Mode) String() string {
	switch m {
	case ModePaused:
		return "paused"
	case ModeRunning:
		return "running"
	case ModeBreakpoint:
		return "breakpoint"
	case ModeRecovered:
		return "recovered"
	case ModeInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// DebugFrame is the cheap snapshot returned by Frame, Run, and Cycle.
type DebugFrame struct {
	Mode      Mode
	Fault     *cpu.Fault // non-nil only when Mode == ModeInvalid
	Registers cpu.Registers
}

// Executor owns the interpreter state, the tracker, the breakpoint
// set, and the current mode. All mutation happens under mu; the
// with_* accessors guarantee the lock is released on every exit path.
type Executor struct {
	mu          sync.Mutex
	state       *cpu.State
	tracker     tracker.Tracker
	mode        Mode
	fault       *cpu.Fault
	breakpoints map[uint32]struct{}
}

// New returns a paused executor over state, recording writes (if any)
// into trk.
func New(state *cpu.State, trk tracker.Tracker) *Executor {
	return &Executor{
		state:       state,
		tracker:     trk,
		mode:        ModePaused,
		breakpoints: make(map[uint32]struct{}),
	}
}

func (e *Executor) frameLocked() DebugFrame {
	return DebugFrame{
		Mode:      e.mode,
		Fault:     e.fault,
		Registers: e.state.Registers,
	}
}

// Frame returns a cheap snapshot of the current mode and registers.
func (e *Executor) Frame() DebugFrame {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frameLocked()
}

// WithState runs f with exclusive access to the interpreter state.
func (e *Executor) WithState(f func(*cpu.State)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f(e.state)
}

// WithMemory runs f with exclusive access to the bound memory.
func (e *Executor) WithMemory(f func(memory.Memory)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f(e.state.Memory)
}

// WithTracker runs f with exclusive access to the tracker.
func (e *Executor) WithTracker(f func(tracker.Tracker)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f(e.tracker)
}

// SetBreakpoints replaces the breakpoint set wholesale.
func (e *Executor) SetBreakpoints(pcs []uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.breakpoints = make(map[uint32]struct{}, len(pcs))
	for _, pc := range pcs {
		e.breakpoints[pc] = struct{}{}
	}
}

// Pause transitions to Paused regardless of the current mode.
func (e *Executor) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = ModePaused
}

// OverrideMode directly sets the mode, e.g. to re-arm after a one-shot
// step or to acknowledge a fault the host has decided to proceed past.
func (e *Executor) OverrideMode(mode Mode, fault *cpu.Fault) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = mode
	e.fault = fault
}

// IsBreakpoint reports whether the executor is currently sitting at an
// unexecuted breakpoint.
func (e *Executor) IsBreakpoint() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode == ModeBreakpoint
}

// InvalidHandled transitions Invalid(syscall) to Recovered once the
// dispatcher has completed the syscall. A no-op if the executor is not
// currently parked on the syscall sentinel.
func (e *Executor) InvalidHandled() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode == ModeInvalid && e.fault != nil && e.fault.Kind == cpu.FaultSyscall {
		e.mode = ModeRecovered
		e.fault = nil
	}
}

// Cycle advances at most one instruction. advanced is false when the
// executor is parked in Invalid and cannot proceed without
// OverrideMode or InvalidHandled.
//
// Breakpoint policy: a breakpoint at the current PC fires before that
// PC executes, unless the executor was already sitting at a breakpoint
// and allowInterrupt is false — the mechanism used to single-step off
// a breakpoint without immediately re-triggering it.
func (e *Executor) Cycle(allowInterrupt bool) (DebugFrame, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	priorMode := e.mode
	if priorMode == ModeInvalid {
		return e.frameLocked(), false
	}

	pc := e.state.Registers.PC
	_, atBreakpoint := e.breakpoints[pc]
	skipBreakpointCheck := priorMode == ModeBreakpoint && !allowInterrupt

	if atBreakpoint && !skipBreakpointCheck {
		e.mode = ModeBreakpoint
		return e.frameLocked(), true
	}

	e.mode = ModeRunning
	if e.tracker != nil {
		e.tracker.Begin(e.state.Registers)
	}
	if fault := cpu.Step(e.state); fault != nil {
		e.fault = fault
		e.mode = ModeInvalid
	}
	return e.frameLocked(), true
}

// Run advances until a terminating (non-Running) mode is reached.
func (e *Executor) Run() DebugFrame {
	for {
		frame, advanced := e.Cycle(true)
		if !advanced || frame.Mode != ModeRunning {
			return frame
		}
	}
}
