// Package cpu implements the MIPS32 integer register file, instruction
// decoder, and one-cycle interpreter, grounded on the opcode/funct
// dispatch shape of danielcbailey-MIPSEmulator's emulator.go and the
// register-writeback discipline of cpu_ie32.go.
package cpu

// RegNames gives the conventional ABI name for each of the 32 general
// purpose registers, used when describing a faulting instruction.
var RegNames = [32]string{
	"zero", "at", "v0", "v1", "a0", "a1", "a2", "a3",
	"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7",
	"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7",
	"t8", "t9", "k0", "k1", "gp", "sp", "fp", "ra",
}

// Registers is the MIPS32 integer register file: 32 general purpose
// registers plus PC and the HI/LO multiply/divide result pair.
// line[0] is wired to zero; Get/Set enforce that, the raw field may
// hold stale data but is never observed as such.
type Registers struct {
	PC   uint32
	Line [32]uint32
	HI   uint32
	LO   uint32
}

// Get reads register i, returning 0 for $zero regardless of Line[0]'s
// raw contents.
func (r *Registers) Get(i uint32) uint32 {
	if i == 0 {
		return 0
	}
	return r.Line[i&0x1F]
}

// Set writes register i; writes to $zero are silently dropped.
func (r *Registers) Set(i uint32, v uint32) {
	if i == 0 {
		return
	}
	r.Line[i&0x1F] = v
}
