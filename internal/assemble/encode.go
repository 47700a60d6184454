package assemble

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/saturn-mips/saturn/internal/cpu"
)

// Opcode/funct values mirror internal/cpu's decoder exactly — the
// assembler and the interpreter must agree bit-for-bit on encoding,
// so these are kept in lockstep with decoder.go's unexported table by
// hand rather than via a shared (and here unexported) constant set.
const (
	opSpecial = 0x00
	opRegimm  = 0x01
	opJ       = 0x02
	opJal     = 0x03
	opBeq     = 0x04
	opBne     = 0x05
	opBlez    = 0x06
	opBgtz    = 0x07
	opAddi    = 0x08
	opAddiu   = 0x09
	opSlti    = 0x0A
	opSltiu   = 0x0B
	opAndi    = 0x0C
	opOri     = 0x0D
	opXori    = 0x0E
	opLhi     = 0x18
	opLlo     = 0x19
	opLb      = 0x20
	opLh      = 0x21
	opLw      = 0x23
	opLbu     = 0x24
	opLhu     = 0x25
	opSb      = 0x28
	opSh      = 0x29
	opSw      = 0x2B
)

const (
	fnSll     = 0x00
	fnSrl     = 0x02
	fnSra     = 0x03
	fnSllv    = 0x04
	fnSrlv    = 0x06
	fnSrav    = 0x07
	fnJr      = 0x08
	fnJalr    = 0x09
	fnSyscall = 0x0C
	fnMfhi    = 0x10
	fnMthi    = 0x11
	fnMflo    = 0x12
	fnMtlo    = 0x13
	fnMult    = 0x18
	fnMultu   = 0x19
	fnDiv     = 0x1A
	fnDivu    = 0x1B
	fnAdd     = 0x20
	fnAddu    = 0x21
	fnSub     = 0x22
	fnSubu    = 0x23
	fnAnd     = 0x24
	fnOr      = 0x25
	fnXor     = 0x26
	fnNor     = 0x27
	fnSlt     = 0x2A
	fnSltu    = 0x2B
)

const (
	rtBltz   = 0x00
	rtBgez   = 0x01
	rtBltzal = 0x10
	rtBgezal = 0x11
)

func regWord(op, rs, rt, rd, shamt, funct uint32) uint32 {
	return (op << 26) | (rs << 21) | (rt << 16) | (rd << 11) | (shamt << 6) | funct
}

func immWord(op, rs, rt uint32, imm int32) uint32 {
	return (op << 26) | (rs << 21) | (rt << 16) | (uint32(imm) & 0xFFFF)
}

func jumpWord(op, target uint32) uint32 {
	return (op << 26) | (target & 0x3FFFFFF)
}

var regByName = buildRegByName()

func buildRegByName() map[string]uint32 {
	m := make(map[string]uint32, 64)
	for i, name := range cpu.RegNames {
		m[name] = uint32(i)
	}
	return m
}

// parseRegister accepts "$t0".."$ra" and the numeric "$0".."$31" form.
func parseRegister(tok string) (uint32, error) {
	tok = strings.TrimSpace(tok)
	if !strings.HasPrefix(tok, "$") {
		return 0, fmt.Errorf("expected a register, got %q", tok)
	}
	name := tok[1:]
	if n, ok := regByName[name]; ok {
		return n, nil
	}
	if n, err := strconv.Atoi(name); err == nil && n >= 0 && n <= 31 {
		return uint32(n), nil
	}
	return 0, fmt.Errorf("unknown register %q", tok)
}

// operandKind classifies how an instruction's operand list is parsed
// and encoded, matching cpu/decoder.go's format groups plus the
// narrower one/two-register and shift shapes MIPS32's R-type family
// actually uses.
type operandKind int

const (
	kindRRR    operandKind = iota // op rd, rs, rt
	kindShift                     // op rd, rt, shamt
	kindRR                        // op rs, rt            (mult/div family)
	kindR1                        // op rs                (jr)
	kindRdRs                      // op rd, rs            (jalr)
	kindRdOnly                    // op rd                (mfhi, mflo)
	kindRsOnly                    // op rs                (mthi, mtlo)
	kindNone                      // syscall
	kindImm                       // op rt, rs, imm
	kindImmRt                     // op rt, imm            (lhi/llo)
	kindMem                       // op rt, imm(rs)
	kindBranch2                   // op rs, rt, label
	kindBranch1                   // op rs, label
	kindJump                      // op label
)

type opcodeDef struct {
	kind     operandKind
	op       uint32 // opcode, or 0 (opSpecial/opRegimm) for R-type/regimm
	funct    uint32
	rtField  uint32 // for opRegimm forms: fixed rt selecting bltz/bgez/...
	special  bool   // true if this is an opSpecial R-type
	regimm   bool   // true if this is an opRegimm form
	swapRsRt bool   // kindRRR: operand order is rd, rt, rs (the *v shift family)
}

var opcodes = map[string]opcodeDef{
	"add":  {kind: kindRRR, special: true, funct: fnAdd},
	"addu": {kind: kindRRR, special: true, funct: fnAddu},
	"sub":  {kind: kindRRR, special: true, funct: fnSub},
	"subu": {kind: kindRRR, special: true, funct: fnSubu},
	"and":  {kind: kindRRR, special: true, funct: fnAnd},
	"or":   {kind: kindRRR, special: true, funct: fnOr},
	"xor":  {kind: kindRRR, special: true, funct: fnXor},
	"nor":  {kind: kindRRR, special: true, funct: fnNor},
	"slt":  {kind: kindRRR, special: true, funct: fnSlt},
	"sltu": {kind: kindRRR, special: true, funct: fnSltu},

	"sll": {kind: kindShift, special: true, funct: fnSll},
	"srl": {kind: kindShift, special: true, funct: fnSrl},
	"sra": {kind: kindShift, special: true, funct: fnSra},

	"sllv": {kind: kindRRR, special: true, funct: fnSllv, swapRsRt: true}, // sllv rd, rt, rs
	"srlv": {kind: kindRRR, special: true, funct: fnSrlv, swapRsRt: true},
	"srav": {kind: kindRRR, special: true, funct: fnSrav, swapRsRt: true},

	"mult":  {kind: kindRR, special: true, funct: fnMult},
	"multu": {kind: kindRR, special: true, funct: fnMultu},
	"div":   {kind: kindRR, special: true, funct: fnDiv},
	"divu":  {kind: kindRR, special: true, funct: fnDivu},

	"jr":      {kind: kindR1, special: true, funct: fnJr},
	"jalr":    {kind: kindRdRs, special: true, funct: fnJalr},
	"syscall": {kind: kindNone, special: true, funct: fnSyscall},
	"mfhi":    {kind: kindRdOnly, special: true, funct: fnMfhi},
	"mflo":    {kind: kindRdOnly, special: true, funct: fnMflo},
	"mthi":    {kind: kindRsOnly, special: true, funct: fnMthi},
	"mtlo":    {kind: kindRsOnly, special: true, funct: fnMtlo},

	"addi":  {kind: kindImm, op: opAddi},
	"addiu": {kind: kindImm, op: opAddiu},
	"slti":  {kind: kindImm, op: opSlti},
	"sltiu": {kind: kindImm, op: opSltiu},
	"andi":  {kind: kindImm, op: opAndi},
	"ori":   {kind: kindImm, op: opOri},
	"xori":  {kind: kindImm, op: opXori},

	"lhi": {kind: kindImmRt, op: opLhi},
	"llo": {kind: kindImmRt, op: opLlo},

	"lb":  {kind: kindMem, op: opLb},
	"lh":  {kind: kindMem, op: opLh},
	"lw":  {kind: kindMem, op: opLw},
	"lbu": {kind: kindMem, op: opLbu},
	"lhu": {kind: kindMem, op: opLhu},
	"sb":  {kind: kindMem, op: opSb},
	"sh":  {kind: kindMem, op: opSh},
	"sw":  {kind: kindMem, op: opSw},

	"beq": {kind: kindBranch2, op: opBeq},
	"bne": {kind: kindBranch2, op: opBne},

	"blez": {kind: kindBranch1, op: opBlez},
	"bgtz": {kind: kindBranch1, op: opBgtz},
	"bltz": {kind: kindBranch1, regimm: true, rtField: rtBltz},
	"bgez": {kind: kindBranch1, regimm: true, rtField: rtBgez},

	"bltzal": {kind: kindBranch1, regimm: true, rtField: rtBltzal},
	"bgezal": {kind: kindBranch1, regimm: true, rtField: rtBgezal},

	"j":   {kind: kindJump, op: opJ},
	"jal": {kind: kindJump, op: opJal},
}

// pseudoOps names every mnemonic expandPseudo recognizes, so the
// two-pass size calculation can account for their expansion without
// re-running the expansion itself.
var pseudoOps = map[string]bool{
	"li": true, "la": true, "move": true, "nop": true, "b": true, "bal": true,
}
