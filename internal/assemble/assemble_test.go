package assemble

import (
	"testing"

	"github.com/saturn-mips/saturn/internal/cpu"
)

func findRegion(t *testing.T, b Binary, addr uint32) Region {
	t.Helper()
	for _, r := range b.Regions {
		if r.Address == addr {
			return r
		}
	}
	t.Fatalf("no region at 0x%X", addr)
	return Region{}
}

func decodeAt(t *testing.T, r Region, offset uint32) cpu.Instruction {
	t.Helper()
	word := uint32(r.Data[offset]) | uint32(r.Data[offset+1])<<8 | uint32(r.Data[offset+2])<<16 | uint32(r.Data[offset+3])<<24
	inst, ok := cpu.Decode(word)
	if !ok {
		t.Fatalf("offset %d: word 0x%08X did not decode", offset, word)
	}
	return inst
}

func TestSimpleArithmeticAssemblesToKnownWords(t *testing.T) {
	src := `
main:
	addi $t0, $zero, 5
	add  $t1, $t0, $t0
	syscall
`
	bin, err := Assemble(src, "")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if bin.Entry != textBase {
		t.Fatalf("entry = 0x%X, want 0x%X", bin.Entry, textBase)
	}
	text := findRegion(t, bin, textBase)
	if len(text.Data) != 12 {
		t.Fatalf("text size = %d, want 12", len(text.Data))
	}

	i0 := decodeAt(t, text, 0)
	if i0.Mnemonic != "addi" || i0.Rt != 8 || i0.Imm != 5 {
		t.Fatalf("instr 0 = %+v", i0)
	}
	i1 := decodeAt(t, text, 4)
	if i1.Mnemonic != "add" || i1.Rd != 9 || i1.Rs != 8 || i1.Rt != 8 {
		t.Fatalf("instr 1 = %+v", i1)
	}
	i2 := decodeAt(t, text, 8)
	if i2.Mnemonic != "syscall" {
		t.Fatalf("instr 2 = %+v", i2)
	}
}

func TestLiExpandsToThreeInstructionsBuildingTheFullImmediate(t *testing.T) {
	src := "main:\n\tli $t0, 0x12345678\n\tsyscall\n"
	bin, err := Assemble(src, "")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	text := findRegion(t, bin, textBase)
	if len(text.Data) != 16 {
		t.Fatalf("text size = %d, want 16 (3 li words + syscall)", len(text.Data))
	}

	lhi := decodeAt(t, text, 0)
	llo := decodeAt(t, text, 4)
	or := decodeAt(t, text, 8)
	if lhi.Mnemonic != "lhi" || lhi.Rt != 1 || uint16(lhi.Imm) != 0x1234 {
		t.Fatalf("lhi = %+v", lhi)
	}
	if llo.Mnemonic != "llo" || llo.Rt != 1 || uint16(llo.Imm) != 0x5678 {
		t.Fatalf("llo = %+v", llo)
	}
	if or.Mnemonic != "or" || or.Rd != 8 || or.Rs != 0 || or.Rt != 1 {
		t.Fatalf("or = %+v", or)
	}
}

func TestBackwardBranchResolvesToNegativeOffset(t *testing.T) {
	src := `
main:
loop:
	addi $t0, $t0, -1
	bne  $t0, $zero, loop
	syscall
`
	bin, err := Assemble(src, "")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	text := findRegion(t, bin, textBase)
	bne := decodeAt(t, text, 4)
	if bne.Mnemonic != "bne" {
		t.Fatalf("instr 1 = %+v, want bne", bne)
	}
	if bne.Imm != -2 {
		t.Fatalf("branch offset = %d, want -2 (branch back to loop)", bne.Imm)
	}
}

func TestForwardJumpResolvesAfterLabelIsDefined(t *testing.T) {
	src := `
main:
	j skip
	addi $t0, $zero, 99
skip:
	syscall
`
	bin, err := Assemble(src, "")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	text := findRegion(t, bin, textBase)
	j := decodeAt(t, text, 0)
	if j.Mnemonic != "j" {
		t.Fatalf("instr 0 = %+v, want j", j)
	}
	wantTarget := (textBase + 8) >> 2
	if j.Target != wantTarget {
		t.Fatalf("jump target = 0x%X, want 0x%X", j.Target, wantTarget)
	}
}

func TestDataDirectivesLayOutTheDataSegment(t *testing.T) {
	src := `
	.data
msg:
	.asciiz "hi"
	.align 2
count:
	.word 7
	.text
main:
	syscall
`
	bin, err := Assemble(src, "")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	data := findRegion(t, bin, dataBase)
	if string(data.Data[:2]) != "hi" || data.Data[2] != 0 {
		t.Fatalf("data = %v, want \"hi\\x00...\"", data.Data[:3])
	}
	word := uint32(data.Data[4]) | uint32(data.Data[5])<<8 | uint32(data.Data[6])<<16 | uint32(data.Data[7])<<24
	if word != 7 {
		t.Fatalf("count = %d, want 7 (after .align 2 padding to a 4-byte boundary)", word)
	}
}

func TestUndefinedLabelIsReportedWithLineNumber(t *testing.T) {
	src := "main:\n\tj nowhere\n"
	_, err := Assemble(src, "")
	if err == nil {
		t.Fatal("expected an error for an undefined label")
	}
	se, ok := err.(*SourceError)
	if !ok {
		t.Fatalf("error type = %T, want *SourceError", err)
	}
	if se.Line != 2 {
		t.Fatalf("error line = %d, want 2", se.Line)
	}
}

func TestSourceBreakpointsMapsLinesToProgramCounters(t *testing.T) {
	src := "main:\n\taddi $t0, $zero, 1\n\taddi $t1, $zero, 2\n\tsyscall\n"
	bin, err := Assemble(src, "")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	bps := bin.SourceBreakpoints(src, 0)
	found := false
	for _, bp := range bps {
		if bp.Line == 3 {
			found = true
			if len(bp.PCs) != 1 || bp.PCs[0] != textBase+4 {
				t.Fatalf("line 3 pcs = %v, want [0x%X]", bp.PCs, textBase+4)
			}
		}
	}
	if !found {
		t.Fatal("expected a breakpoint entry for line 3")
	}
}

func TestNopAndMoveAndBPseudoInstructions(t *testing.T) {
	src := `
main:
	nop
	move $t1, $t0
	b done
done:
	syscall
`
	bin, err := Assemble(src, "")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	text := findRegion(t, bin, textBase)
	if text.Data[0] != 0 || text.Data[1] != 0 || text.Data[2] != 0 || text.Data[3] != 0 {
		t.Fatalf("nop word = %v, want all zero", text.Data[:4])
	}
	mv := decodeAt(t, text, 4)
	if mv.Mnemonic != "or" || mv.Rd != 9 || mv.Rs != 8 || mv.Rt != 0 {
		t.Fatalf("move = %+v", mv)
	}
	b := decodeAt(t, text, 8)
	if b.Mnemonic != "beq" || b.Rs != 0 || b.Rt != 0 {
		t.Fatalf("b = %+v", b)
	}
}
