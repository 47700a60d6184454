package cpu

import "github.com/saturn-mips/saturn/internal/memory"

// State is the interpreter's working set: the register file plus the
// memory it executes against. The executor owns a State and advances
// it one instruction at a time via Step.
type State struct {
	Registers Registers
	Memory    memory.Memory
}

// NewState returns a State with PC and all registers zeroed; callers
// set up the stack pointer, $gp, and entry PC themselves.
func NewState(mem memory.Memory) *State {
	return &State{Memory: mem}
}

// Step executes exactly one instruction. A nil return means normal
// advancement; a non-nil *Fault means the interpreter cannot continue
// without outside intervention (a trap, a reserved word, a syscall, or
// a memory access failure) and the caller should transition to an
// Invalid/syscall-handling mode rather than call Step again.
func Step(s *State) *Fault {
	word, err := s.Memory.GetU32(s.Registers.PC)
	if err != nil {
		return fetchFault(s.Registers.PC, err)
	}

	instrPC := s.Registers.PC
	s.Registers.PC += 4

	inst, ok := Decode(word)
	if !ok {
		return reservedFault(instrPC, word)
	}

	r := &s.Registers

	switch inst.Mnemonic {
	// --- arithmetic, trapping on signed overflow ---
	case "add":
		res := int64(int32(r.Get(inst.Rs))) + int64(int32(r.Get(inst.Rt)))
		if res < -(1<<31) || res >= (1<<31) {
			return overflowFault(instrPC, word)
		}
		r.Set(inst.Rd, uint32(int32(res)))
	case "sub":
		res := int64(int32(r.Get(inst.Rs))) - int64(int32(r.Get(inst.Rt)))
		if res < -(1<<31) || res >= (1<<31) {
			return overflowFault(instrPC, word)
		}
		r.Set(inst.Rd, uint32(int32(res)))
	case "addi":
		res := int64(int32(r.Get(inst.Rs))) + int64(inst.Imm)
		if res < -(1<<31) || res >= (1<<31) {
			return overflowFault(instrPC, word)
		}
		r.Set(inst.Rt, uint32(int32(res)))

	// --- arithmetic, wrapping ---
	case "addu":
		r.Set(inst.Rd, r.Get(inst.Rs)+r.Get(inst.Rt))
	case "subu":
		r.Set(inst.Rd, r.Get(inst.Rs)-r.Get(inst.Rt))
	case "addiu":
		r.Set(inst.Rt, r.Get(inst.Rs)+uint32(inst.Imm))

	// --- logic ---
	case "and":
		r.Set(inst.Rd, r.Get(inst.Rs)&r.Get(inst.Rt))
	case "or":
		r.Set(inst.Rd, r.Get(inst.Rs)|r.Get(inst.Rt))
	case "xor":
		r.Set(inst.Rd, r.Get(inst.Rs)^r.Get(inst.Rt))
	case "nor":
		r.Set(inst.Rd, ^(r.Get(inst.Rs) | r.Get(inst.Rt)))
	case "andi":
		r.Set(inst.Rt, r.Get(inst.Rs)&(uint32(inst.Imm)&0xFFFF))
	case "ori":
		r.Set(inst.Rt, r.Get(inst.Rs)|(uint32(inst.Imm)&0xFFFF))
	case "xori":
		r.Set(inst.Rt, r.Get(inst.Rs)^(uint32(inst.Imm)&0xFFFF))

	// --- set-less-than ---
	case "slt":
		if int32(r.Get(inst.Rs)) < int32(r.Get(inst.Rt)) {
			r.Set(inst.Rd, 1)
		} else {
			r.Set(inst.Rd, 0)
		}
	case "sltu":
		if r.Get(inst.Rs) < r.Get(inst.Rt) {
			r.Set(inst.Rd, 1)
		} else {
			r.Set(inst.Rd, 0)
		}
	case "slti":
		if int32(r.Get(inst.Rs)) < inst.Imm {
			r.Set(inst.Rt, 1)
		} else {
			r.Set(inst.Rt, 0)
		}
	case "sltiu":
		if r.Get(inst.Rs) < uint32(inst.Imm) {
			r.Set(inst.Rt, 1)
		} else {
			r.Set(inst.Rt, 0)
		}

	// --- shifts, fixed and variable ---
	case "sll":
		r.Set(inst.Rd, r.Get(inst.Rt)<<inst.Shamt)
	case "srl":
		r.Set(inst.Rd, r.Get(inst.Rt)>>inst.Shamt)
	case "sra":
		r.Set(inst.Rd, uint32(int32(r.Get(inst.Rt))>>inst.Shamt))
	case "sllv":
		r.Set(inst.Rd, r.Get(inst.Rt)<<(r.Get(inst.Rs)&0x1F))
	case "srlv":
		r.Set(inst.Rd, r.Get(inst.Rt)>>(r.Get(inst.Rs)&0x1F))
	case "srav":
		r.Set(inst.Rd, uint32(int32(r.Get(inst.Rt))>>(r.Get(inst.Rs)&0x1F)))

	// --- multiply/divide, HI:LO ---
	case "mult":
		res := int64(int32(r.Get(inst.Rs))) * int64(int32(r.Get(inst.Rt)))
		r.HI = uint32(res >> 32)
		r.LO = uint32(res)
	case "multu":
		res := uint64(r.Get(inst.Rs)) * uint64(r.Get(inst.Rt))
		r.HI = uint32(res >> 32)
		r.LO = uint32(res)
	case "div":
		a, b := int32(r.Get(inst.Rs)), int32(r.Get(inst.Rt))
		if b == 0 {
			r.HI, r.LO = 0, 0
		} else {
			r.LO = uint32(a / b)
			r.HI = uint32(a % b)
		}
	case "divu":
		a, b := r.Get(inst.Rs), r.Get(inst.Rt)
		if b == 0 {
			r.HI, r.LO = 0, 0
		} else {
			r.LO = a / b
			r.HI = a % b
		}
	case "mfhi":
		r.Set(inst.Rd, r.HI)
	case "mflo":
		r.Set(inst.Rd, r.LO)
	case "mthi":
		r.HI = r.Get(inst.Rs)
	case "mtlo":
		r.LO = r.Get(inst.Rs)

	// --- upper/lower half immediate loads ---
	case "lhi":
		r.Set(inst.Rt, (uint32(inst.Imm)&0xFFFF)<<16|(r.Get(inst.Rt)&0xFFFF))
	case "llo":
		r.Set(inst.Rt, (r.Get(inst.Rt)&0xFFFF0000)|(uint32(inst.Imm)&0xFFFF))

	// --- loads ---
	case "lb":
		addr := r.Get(inst.Rs) + uint32(inst.Imm)
		b, err := s.Memory.Get(addr)
		if err != nil {
			return execMemoryFault(instrPC, word, err)
		}
		r.Set(inst.Rt, uint32(int32(int8(b))))
	case "lbu":
		addr := r.Get(inst.Rs) + uint32(inst.Imm)
		b, err := s.Memory.Get(addr)
		if err != nil {
			return execMemoryFault(instrPC, word, err)
		}
		r.Set(inst.Rt, uint32(b))
	case "lh":
		addr := r.Get(inst.Rs) + uint32(inst.Imm)
		h, err := s.Memory.GetU16(addr)
		if err != nil {
			return execMemoryFault(instrPC, word, err)
		}
		r.Set(inst.Rt, uint32(int32(int16(h))))
	case "lhu":
		addr := r.Get(inst.Rs) + uint32(inst.Imm)
		h, err := s.Memory.GetU16(addr)
		if err != nil {
			return execMemoryFault(instrPC, word, err)
		}
		r.Set(inst.Rt, uint32(h))
	case "lw":
		addr := r.Get(inst.Rs) + uint32(inst.Imm)
		w, err := s.Memory.GetU32(addr)
		if err != nil {
			return execMemoryFault(instrPC, word, err)
		}
		r.Set(inst.Rt, w)

	// --- stores ---
	case "sb":
		addr := r.Get(inst.Rs) + uint32(inst.Imm)
		if err := s.Memory.Set(addr, byte(r.Get(inst.Rt))); err != nil {
			return execMemoryFault(instrPC, word, err)
		}
	case "sh":
		addr := r.Get(inst.Rs) + uint32(inst.Imm)
		if err := s.Memory.SetU16(addr, uint16(r.Get(inst.Rt))); err != nil {
			return execMemoryFault(instrPC, word, err)
		}
	case "sw":
		addr := r.Get(inst.Rs) + uint32(inst.Imm)
		if err := s.Memory.SetU32(addr, r.Get(inst.Rt)); err != nil {
			return execMemoryFault(instrPC, word, err)
		}

	// --- branches, no delay slot ---
	case "beq":
		if r.Get(inst.Rs) == r.Get(inst.Rt) {
			r.PC = uint32(int32(r.PC) + (inst.Imm << 2))
		}
	case "bne":
		if r.Get(inst.Rs) != r.Get(inst.Rt) {
			r.PC = uint32(int32(r.PC) + (inst.Imm << 2))
		}
	case "blez":
		if int32(r.Get(inst.Rs)) <= 0 {
			r.PC = uint32(int32(r.PC) + (inst.Imm << 2))
		}
	case "bgtz":
		if int32(r.Get(inst.Rs)) > 0 {
			r.PC = uint32(int32(r.PC) + (inst.Imm << 2))
		}
	case "bltz":
		if int32(r.Get(inst.Rs)) < 0 {
			r.PC = uint32(int32(r.PC) + (inst.Imm << 2))
		}
	case "bgez":
		if int32(r.Get(inst.Rs)) >= 0 {
			r.PC = uint32(int32(r.PC) + (inst.Imm << 2))
		}
	case "bltzal":
		r.Set(31, r.PC)
		if int32(r.Get(inst.Rs)) < 0 {
			r.PC = uint32(int32(r.PC) + (inst.Imm << 2))
		}
	case "bgezal":
		r.Set(31, r.PC)
		if int32(r.Get(inst.Rs)) >= 0 {
			r.PC = uint32(int32(r.PC) + (inst.Imm << 2))
		}

	// --- jumps ---
	case "j":
		r.PC = (r.PC & 0xF0000000) | (inst.Target << 2)
	case "jal":
		r.Set(31, r.PC)
		r.PC = (r.PC & 0xF0000000) | (inst.Target << 2)
	case "jr":
		r.PC = r.Get(inst.Rs)
	case "jalr":
		dest := r.Get(inst.Rs)
		r.Set(inst.Rd, r.PC)
		r.PC = dest

	case "syscall":
		return &Fault{Kind: FaultSyscall, Message: "syscall"}

	default:
		return reservedFault(instrPC, word)
	}

	return nil
}
