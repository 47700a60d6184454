package syscallx

import (
	"context"
	"fmt"
	"strconv"

	"github.com/saturn-mips/saturn/internal/bytechan"
	"github.com/saturn-mips/saturn/internal/memory"
)

// Registers is the slice of cpu.Registers that dispatch needs. A
// *cpu.Registers satisfies this directly.
type Registers interface {
	Get(i uint32) uint32
	Set(i uint32, v uint32)
}

const maxCString = 1 << 20

// Dispatch performs the syscall named by $v0, reading/writing
// registers and mem as needed, and returns once it completes, is
// cancelled via ctx, or the program exits. It never panics on bad
// guest input; out-of-range addresses surface as Exception results.
func Dispatch(ctx context.Context, s *State, regs Registers, mem memory.Memory) Result {
	v0 := regs.Get(2)

	done := make(chan Result, 1)
	go func() { done <- s.run(ctx, v0, regs, mem) }()

	select {
	case <-ctx.Done():
		return Result{Outcome: Aborted}
	case r := <-done:
		return r
	}
}

func (s *State) run(ctx context.Context, code uint32, regs Registers, mem memory.Memory) Result {
	switch code {
	case 1: // print_int
		s.console.Print(strconv.FormatInt(int64(int32(regs.Get(4))), 10))
		return Result{Outcome: Completed}

	case 4: // print_string
		str, err := readCString(mem, regs.Get(4))
		if err != nil {
			return Result{Outcome: Exception, Message: err.Error()}
		}
		s.console.Print(str)
		return Result{Outcome: Completed}

	case 5: // read_int
		v, ok := readInt(ctx, s.input)
		if !ok {
			return Result{Outcome: Aborted}
		}
		regs.Set(2, uint32(v))
		return Result{Outcome: Completed}

	case 8: // read_string
		addr, n := regs.Get(4), int32(regs.Get(5))
		if n < 1 {
			return Result{Outcome: Completed}
		}
		buf, ok := readLine(ctx, s.input, int(n)-1)
		if !ok {
			return Result{Outcome: Aborted}
		}
		buf = append(buf, 0)
		if err := writeBytes(mem, addr, buf); err != nil {
			return Result{Outcome: Exception, Message: err.Error()}
		}
		return Result{Outcome: Completed}

	case 9: // sbrk
		n := int32(regs.Get(4))
		regs.Set(2, s.sbrk(n))
		return Result{Outcome: Completed}

	case 10: // exit
		return Result{Outcome: Terminated, Code: 0}

	case 11: // print_char
		s.console.Print(string(rune(byte(regs.Get(4)))))
		return Result{Outcome: Completed}

	case 12: // read_char
		b, ok := s.input.Read(ctx, 1)
		if !ok {
			return Result{Outcome: Aborted}
		}
		regs.Set(2, uint32(b[0]))
		return Result{Outcome: Completed}

	case 13: // open
		path, err := readCString(mem, regs.Get(4))
		if err != nil {
			return Result{Outcome: Exception, Message: err.Error()}
		}
		regs.Set(2, uint32(s.files.open(path, regs.Get(5))))
		return Result{Outcome: Completed}

	case 14: // read_file
		fd, addr, n := int32(regs.Get(4)), regs.Get(5), regs.Get(6)
		buf := make([]byte, n)
		read, status := s.files.read(fd, buf)
		switch status {
		case fileNotFound:
			regs.Set(2, ^uint32(0)) // -1
			return Result{Outcome: Completed}
		case fileWrongMode:
			regs.Set(2, ^uint32(1)) // -2
			return Result{Outcome: Completed}
		}
		if err := writeBytes(mem, addr, buf[:read]); err != nil {
			return Result{Outcome: Exception, Message: err.Error()}
		}
		regs.Set(2, uint32(int32(read)))
		return Result{Outcome: Completed}

	case 15: // write_file
		fd, addr, n := int32(regs.Get(4)), regs.Get(5), regs.Get(6)
		buf, err := readBytes(mem, addr, int(n))
		if err != nil {
			return Result{Outcome: Exception, Message: err.Error()}
		}
		written, status := s.files.write(fd, buf)
		switch status {
		case fileNotFound:
			regs.Set(2, ^uint32(0)) // -1
			return Result{Outcome: Completed}
		case fileWrongMode:
			regs.Set(2, ^uint32(1)) // -2
			return Result{Outcome: Completed}
		}
		regs.Set(2, uint32(int32(written)))
		return Result{Outcome: Completed}

	case 16: // close
		s.files.close(int32(regs.Get(4)))
		regs.Set(2, 0)
		return Result{Outcome: Completed}

	case 17: // exit2
		return Result{Outcome: Terminated, Code: int32(regs.Get(4))}

	case 30: // time_ms
		millis := s.clock.NowUnixMillis()
		regs.Set(4, uint32(millis))
		regs.Set(5, uint32(millis>>32))
		return Result{Outcome: Completed}

	case 31: // midi_out (fire and forget)
		s.midi.Play(readMIDIRequest(regs))
		return Result{Outcome: Completed}

	case 32: // sleep
		if err := s.clock.Sleep(ctx, regs.Get(4)); err != nil {
			return Result{Outcome: Aborted}
		}
		return Result{Outcome: Completed}

	case 33: // midi_out_sync
		s.midi.Play(readMIDIRequest(regs))
		if !s.waitForSync(ctx) {
			return Result{Outcome: Aborted}
		}
		return Result{Outcome: Completed}

	case 34: // print_hex
		s.console.Print(fmt.Sprintf("0x%08x", regs.Get(4)))
		return Result{Outcome: Completed}

	case 35: // print_bin
		s.console.Print(fmt.Sprintf("%032b", regs.Get(4)))
		return Result{Outcome: Completed}

	case 36: // print_unsigned
		s.console.Print(strconv.FormatUint(uint64(regs.Get(4)), 10))
		return Result{Outcome: Completed}

	case 40: // seed_rng
		s.rng.seed(regs.Get(4), regs.Get(5))
		return Result{Outcome: Completed}

	case 41: // rand_int
		regs.Set(4, uint32(s.rng.get(regs.Get(4)).Uint64()))
		return Result{Outcome: Completed}

	case 42: // rand_int_ranged
		max := regs.Get(5)
		if max == 0 {
			regs.Set(4, 0)
			return Result{Outcome: Completed}
		}
		regs.Set(4, uint32(s.rng.get(regs.Get(4)).Uint64()%uint64(max)))
		return Result{Outcome: Completed}

	case 2, 3, 6, 7, 43, 44: // floating point, never implemented
		return Result{Outcome: Unimplemented, Syscall: code}

	default:
		return Result{Outcome: Unknown, Syscall: code}
	}
}

func readMIDIRequest(regs Registers) MIDIRequest {
	return MIDIRequest{
		Pitch:      regs.Get(4),
		Duration:   regs.Get(5),
		Instrument: regs.Get(6),
		Volume:     regs.Get(7),
	}
}

func readCString(mem memory.Memory, addr uint32) (string, error) {
	var out []byte
	for i := 0; i < maxCString; i++ {
		b, err := mem.Get(addr + uint32(i))
		if err != nil {
			return "", fmt.Errorf("print_string: %w", err)
		}
		if b == 0 {
			return string(out), nil
		}
		out = append(out, b)
	}
	return "", fmt.Errorf("print_string: no NUL terminator within %d bytes", maxCString)
}

func readBytes(mem memory.Memory, addr uint32, n int) ([]byte, error) {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		b, err := mem.Get(addr + uint32(i))
		if err != nil {
			return nil, fmt.Errorf("write_file: %w", err)
		}
		out[i] = b
	}
	return out, nil
}

func writeBytes(mem memory.Memory, addr uint32, data []byte) error {
	for i, b := range data {
		if err := mem.Set(addr+uint32(i), b); err != nil {
			return fmt.Errorf("write at 0x%08X: %w", addr+uint32(i), err)
		}
	}
	return nil
}

// readInt skips leading whitespace, consumes an optional sign and a
// run of digits, and leaves the first non-digit byte (if any) queued
// for the next read — e.g. "  -042x" yields -42 and leaves "x".
func readInt(ctx context.Context, ch *bytechan.Chan) (int32, bool) {
	phase := 0
	neg := false
	var digits []byte

	_, ok := ch.ReadUntil(ctx, func(b byte) bytechan.Action {
		if phase == 0 {
			switch {
			case b == ' ' || b == '\t' || b == '\n' || b == '\r':
				return bytechan.ConsumeAndContinue
			case b == '-':
				neg = true
				phase = 1
				return bytechan.ConsumeAndContinue
			case b == '+':
				phase = 1
				return bytechan.ConsumeAndContinue
			case b >= '0' && b <= '9':
				phase = 1
				digits = append(digits, b)
				return bytechan.ConsumeAndContinue
			default:
				return bytechan.IgnoreAndStop
			}
		}
		if b >= '0' && b <= '9' {
			digits = append(digits, b)
			return bytechan.ConsumeAndContinue
		}
		return bytechan.IgnoreAndStop
	})
	if !ok {
		return 0, false
	}
	if len(digits) == 0 {
		return 0, true
	}
	val, _ := strconv.ParseUint(string(digits), 10, 64)
	signed := int64(val)
	if neg {
		signed = -signed
	}
	return int32(signed), true
}

// readLine pulls bytes up to a trailing newline (included) or until
// max bytes have been taken, whichever comes first.
func readLine(ctx context.Context, ch *bytechan.Chan, max int) ([]byte, bool) {
	count := 0
	return ch.ReadUntil(ctx, func(b byte) bytechan.Action {
		if count >= max {
			return bytechan.IgnoreAndStop
		}
		count++
		if b == '\n' {
			return bytechan.ConsumeAndStop
		}
		return bytechan.ConsumeAndContinue
	})
}
