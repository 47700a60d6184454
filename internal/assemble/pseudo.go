package assemble

import "fmt"

// expandPseudo lowers the handful of pseudo-instructions a MIPS32
// program actually needs into real machine words. $at (r1)
// is reserved as the scratch register for li/la, the conventional MIPS
// assembler convention carried over from the IE64 "li rd, #imm64"
// lowering: lhi/llo build the 32-bit value in $at, then a final or
// moves it into the destination so a multi-word immediate never
// clobbers a register the instruction didn't name.
func expandPseudo(mnemonic string, operands []string, line int) ([]string, error) {
	switch mnemonic {
	case "li":
		if len(operands) != 2 {
			return nil, errf(line, "li expects 2 operands, got %d", len(operands))
		}
		rd := operands[0]
		imm := operands[1]
		return []string{
			fmt.Sprintf("lhi $at, hi16(%s)", imm),
			fmt.Sprintf("llo $at, lo16(%s)", imm),
			fmt.Sprintf("or %s, $zero, $at", rd),
		}, nil

	case "la":
		if len(operands) != 2 {
			return nil, errf(line, "la expects 2 operands, got %d", len(operands))
		}
		rd := operands[0]
		addr := operands[1]
		return []string{
			fmt.Sprintf("lhi $at, hi16(%s)", addr),
			fmt.Sprintf("llo $at, lo16(%s)", addr),
			fmt.Sprintf("or %s, $zero, $at", rd),
		}, nil

	case "move":
		if len(operands) != 2 {
			return nil, errf(line, "move expects 2 operands, got %d", len(operands))
		}
		return []string{fmt.Sprintf("or %s, %s, $zero", operands[0], operands[1])}, nil

	case "nop":
		if len(operands) != 0 {
			return nil, errf(line, "nop takes no operands")
		}
		return []string{"sll $zero, $zero, 0"}, nil

	case "b":
		if len(operands) != 1 {
			return nil, errf(line, "b expects 1 operand, got %d", len(operands))
		}
		return []string{fmt.Sprintf("beq $zero, $zero, %s", operands[0])}, nil

	case "bal":
		if len(operands) != 1 {
			return nil, errf(line, "bal expects 1 operand, got %d", len(operands))
		}
		return []string{fmt.Sprintf("bgezal $zero, %s", operands[0])}, nil

	default:
		return nil, fmt.Errorf("not a pseudo-instruction: %s", mnemonic)
	}
}
