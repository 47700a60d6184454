// Package assemble implements a minimal two-pass MIPS32 assembler:
// source text and an optional path in, a loadable Binary or a
// SourceError out. Grounded on the IE64 assembler's
// (_examples/IntuitionAmiga-IntuitionEngine/assembler/ie64asm.go)
// label-table-then-codegen shape, retargeted from IE64's 8-byte
// encoding to the MIPS32 words internal/cpu decodes.
package assemble

import (
	"fmt"
	"strings"
)

// Flags describes a region's mapping permissions, mirroring the
// spec's {R,W,X} triad.
type Flags struct {
	R, W, X bool
}

// Region is one contiguous span of the assembled image.
type Region struct {
	Address uint32
	Data    []byte
	Flags   Flags
}

// Binary is the assembled program: an entry PC plus the regions a
// loader mounts into memory before execution starts.
type Binary struct {
	Entry   uint32
	Regions []Region

	lineTable map[int][]uint32
}

// LineBreakpoints is one source line's resolved program counters.
type LineBreakpoints struct {
	Line int
	PCs  []uint32
}

// SourceBreakpoints maps editor line numbers (shifted by offset, for
// callers juggling a combined multi-file buffer) to the PCs that line
// assembled to. A line that produced no instruction (a label, a data
// directive, a comment) has no entry. text is accepted to match the
// external contract's signature; the mapping was already built while
// assembling that same text, so it isn't re-parsed here.
func (b Binary) SourceBreakpoints(text string, offset int) []LineBreakpoints {
	out := make([]LineBreakpoints, 0, len(b.lineTable))
	for line, pcs := range b.lineTable {
		out = append(out, LineBreakpoints{Line: line + offset, PCs: pcs})
	}
	return out
}

const (
	textBase uint32 = 0x00400000
	dataBase uint32 = 0x10000000
)

type segmentID int

const (
	segText segmentID = iota
	segData
)

type lineKind int

const (
	kindLabelOnly lineKind = iota
	kindDirective
	kindInstruction
)

type workLine struct {
	num   int
	label string
	text  string
	kind  lineKind
}

// Assemble assembles source text into a Binary. path is carried only
// for future use by include-style directives and diagnostics; this
// implementation does not follow includes.
func Assemble(source string, path string) (Binary, error) {
	lines, err := preprocess(source)
	if err != nil {
		return Binary{}, err
	}

	labels := make(map[string]uint32)
	eqv := make(map[string]int64)
	syms := &symbolTable{labels: labels, eqv: eqv, final: false}

	textSize, dataSize, err := sizePass(lines, labels, syms)
	if err != nil {
		return Binary{}, err
	}

	syms.final = true
	textBytes, dataBytes, lineTable, err := codePass(lines, textSize, dataSize, syms)
	if err != nil {
		return Binary{}, err
	}

	entry := textBase
	if addr, ok := labels["main"]; ok {
		entry = addr
	}

	regions := []Region{{Address: textBase, Data: textBytes, Flags: Flags{R: true, X: true}}}
	if len(dataBytes) > 0 {
		regions = append(regions, Region{Address: dataBase, Data: dataBytes, Flags: Flags{R: true, W: true}})
	}

	return Binary{Entry: entry, Regions: regions, lineTable: lineTable}, nil
}

// preprocess strips comments, splits off labels, and expands
// pseudo-instructions into one or more real-instruction work lines.
func preprocess(source string) ([]workLine, error) {
	var out []workLine
	for i, raw := range strings.Split(source, "\n") {
		num := i + 1
		trimmed := strings.TrimSpace(stripComment(raw))
		if trimmed == "" {
			continue
		}

		label, rest := splitLabel(trimmed)
		if rest == "" {
			out = append(out, workLine{num: num, label: label, kind: kindLabelOnly})
			continue
		}

		fields := strings.Fields(rest)
		mnemonic := strings.ToLower(fields[0])

		if strings.HasPrefix(mnemonic, ".") {
			out = append(out, workLine{num: num, label: label, text: rest, kind: kindDirective})
			continue
		}

		if pseudoOps[mnemonic] {
			operandStr := strings.TrimSpace(rest[len(fields[0]):])
			operands := trimAll(splitOperands(operandStr))
			expanded, err := expandPseudo(mnemonic, operands, num)
			if err != nil {
				return nil, err
			}
			for j, e := range expanded {
				l := ""
				if j == 0 {
					l = label
				}
				out = append(out, workLine{num: num, label: l, text: e, kind: kindInstruction})
			}
			continue
		}

		out = append(out, workLine{num: num, label: label, text: rest, kind: kindInstruction})
	}
	return out, nil
}

// sizePass is pass 1: it assigns every label an address and returns
// the final byte size of each segment, without emitting any bytes.
func sizePass(lines []workLine, labels map[string]uint32, syms *symbolTable) (textSize, dataSize uint32, err error) {
	seg := segText
	var textOff, dataOff uint32

	offset := func() uint32 {
		if seg == segText {
			return textOff
		}
		return dataOff
	}
	advance := func(n uint32) {
		if seg == segText {
			textOff += n
		} else {
			dataOff += n
		}
	}

	for _, l := range lines {
		if l.label != "" {
			if _, exists := labels[l.label]; exists {
				return 0, 0, errf(l.num, "label %q already defined", l.label)
			}
			base := textBase
			if seg == segData {
				base = dataBase
			}
			labels[l.label] = base + offset()
		}

		switch l.kind {
		case kindLabelOnly:
			continue
		case kindInstruction:
			advance(4)
		case kindDirective:
			newSeg, size, serr := sizeDirective(l.text, seg, offset(), syms, l.num)
			if serr != nil {
				return 0, 0, serr
			}
			seg = newSeg
			advance(size)
		}
	}
	return textOff, dataOff, nil
}

// codePass is pass 2: with every label resolved, it walks the same
// work-line list again and actually emits bytes.
func codePass(lines []workLine, textSize, dataSize uint32, syms *symbolTable) (textBytes, dataBytes []byte, lineTable map[int][]uint32, err error) {
	textBytes = make([]byte, textSize)
	dataBytes = make([]byte, dataSize)
	lineTable = make(map[int][]uint32)

	seg := segText
	var textOff, dataOff uint32

	buf := func() []byte {
		if seg == segText {
			return textBytes
		}
		return dataBytes
	}
	offset := func() uint32 {
		if seg == segText {
			return textOff
		}
		return dataOff
	}
	base := func() uint32 {
		if seg == segText {
			return textBase
		}
		return dataBase
	}
	advance := func(n uint32) {
		if seg == segText {
			textOff += n
		} else {
			dataOff += n
		}
	}

	for _, l := range lines {
		switch l.kind {
		case kindLabelOnly:
			continue
		case kindInstruction:
			pc := base() + offset()
			word, ierr := encodeInstruction(l.text, pc, syms)
			if ierr != nil {
				return nil, nil, nil, errf(l.num, "%v", ierr)
			}
			putU32LE(buf(), offset(), word)
			lineTable[l.num] = append(lineTable[l.num], pc)
			advance(4)
		case kindDirective:
			newSeg, n, derr := emitDirective(l.text, seg, buf(), offset(), syms, l.num)
			if derr != nil {
				return nil, nil, nil, derr
			}
			seg = newSeg
			advance(n)
		}
	}
	return textBytes, dataBytes, lineTable, nil
}

func putU32LE(buf []byte, off, v uint32) {
	buf[off] = byte(v)
	buf[off+1] = byte(v >> 8)
	buf[off+2] = byte(v >> 16)
	buf[off+3] = byte(v >> 24)
}

func putU16LE(buf []byte, off uint32, v uint16) {
	buf[off] = byte(v)
	buf[off+1] = byte(v >> 8)
}

// stripComment removes a # comment from a line, respecting quoted
// strings (so a '#' inside "..." isn't treated as a comment start).
func stripComment(line string) string {
	inQuote := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			inQuote = !inQuote
		case '#':
			if !inQuote {
				return line[:i]
			}
		}
	}
	return line
}

// splitLabel peels a leading "name:" off a trimmed line, if present.
func splitLabel(trimmed string) (label string, rest string) {
	colon := strings.IndexByte(trimmed, ':')
	if colon < 0 {
		return "", trimmed
	}
	candidate := strings.TrimSpace(trimmed[:colon])
	if candidate == "" || !isIdentStart(candidate[0]) {
		return "", trimmed
	}
	for i := 0; i < len(candidate); i++ {
		if !isIdentChar(candidate[i]) {
			return "", trimmed
		}
	}
	return candidate, strings.TrimSpace(trimmed[colon+1:])
}

// splitOperands splits on commas but respects parentheses, so
// "4($t0)" survives as one operand.
func splitOperands(s string) []string {
	var out []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	tail := strings.TrimSpace(s[start:])
	if tail != "" || len(out) > 0 {
		out = append(out, s[start:])
	}
	return out
}

func trimAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.TrimSpace(s)
	}
	return out
}

// parseMem splits a load/store operand into its immediate expression
// and base register: "4($t0)" -> ("4", "$t0"); a bare "label" -> the
// expression with an implied $zero base.
func parseMem(tok string) (immExpr string, regTok string) {
	open := strings.IndexByte(tok, '(')
	if open < 0 {
		return strings.TrimSpace(tok), "$zero"
	}
	closeIdx := strings.LastIndexByte(tok, ')')
	if closeIdx < open {
		return strings.TrimSpace(tok), "$zero"
	}
	imm := strings.TrimSpace(tok[:open])
	if imm == "" {
		imm = "0"
	}
	return imm, strings.TrimSpace(tok[open+1 : closeIdx])
}

func evalInt32(expr string, syms *symbolTable, line int) (int32, error) {
	v, err := evalExpr(expr, syms)
	if err != nil {
		return 0, errf(line, "%v", err)
	}
	return int32(v), nil
}

// encodeInstruction assembles one non-pseudo instruction line into its
// 32-bit word, given the address it will live at (needed for
// PC-relative branch offsets).
func encodeInstruction(text string, pc uint32, syms *symbolTable) (uint32, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty instruction")
	}
	mnemonic := strings.ToLower(fields[0])
	def, ok := opcodes[mnemonic]
	if !ok {
		return 0, fmt.Errorf("unknown instruction %q", mnemonic)
	}
	operandStr := strings.TrimSpace(text[len(fields[0]):])
	ops := trimAll(splitOperands(operandStr))

	need := func(n int) error {
		if len(ops) != n {
			return fmt.Errorf("%s expects %d operand(s), got %d", mnemonic, n, len(ops))
		}
		return nil
	}
	reg := func(i int) (uint32, error) { return parseRegister(ops[i]) }

	switch def.kind {
	case kindRRR:
		if err := need(3); err != nil {
			return 0, err
		}
		rd, err := reg(0)
		if err != nil {
			return 0, err
		}
		// add rd, rs, rt reads operands in field order; sllv rd, rt, rs
		// (swapRsRt) gives the rs field from the third operand instead.
		rsOperand, rtOperand := 1, 2
		if def.swapRsRt {
			rsOperand, rtOperand = 2, 1
		}
		rs, err := reg(rsOperand)
		if err != nil {
			return 0, err
		}
		rt, err := reg(rtOperand)
		if err != nil {
			return 0, err
		}
		return regWord(opSpecial, rs, rt, rd, 0, def.funct), nil

	case kindShift:
		if err := need(3); err != nil {
			return 0, err
		}
		rd, err := reg(0)
		if err != nil {
			return 0, err
		}
		rt, err := reg(1)
		if err != nil {
			return 0, err
		}
		shamt, err := evalExpr(ops[2], syms)
		if err != nil {
			return 0, err
		}
		return regWord(opSpecial, 0, rt, rd, uint32(shamt)&0x1F, def.funct), nil

	case kindRR:
		if err := need(2); err != nil {
			return 0, err
		}
		rs, err := reg(0)
		if err != nil {
			return 0, err
		}
		rt, err := reg(1)
		if err != nil {
			return 0, err
		}
		return regWord(opSpecial, rs, rt, 0, 0, def.funct), nil

	case kindR1:
		if err := need(1); err != nil {
			return 0, err
		}
		rs, err := reg(0)
		if err != nil {
			return 0, err
		}
		return regWord(opSpecial, rs, 0, 0, 0, def.funct), nil

	case kindRdRs:
		switch len(ops) {
		case 1:
			rs, err := reg(0)
			if err != nil {
				return 0, err
			}
			return regWord(opSpecial, rs, 0, 31, 0, def.funct), nil
		case 2:
			rd, err := reg(0)
			if err != nil {
				return 0, err
			}
			rs, err := reg(1)
			if err != nil {
				return 0, err
			}
			return regWord(opSpecial, rs, 0, rd, 0, def.funct), nil
		default:
			return 0, fmt.Errorf("%s expects 1 or 2 operands, got %d", mnemonic, len(ops))
		}

	case kindRdOnly:
		if err := need(1); err != nil {
			return 0, err
		}
		rd, err := reg(0)
		if err != nil {
			return 0, err
		}
		return regWord(opSpecial, 0, 0, rd, 0, def.funct), nil

	case kindRsOnly:
		if err := need(1); err != nil {
			return 0, err
		}
		rs, err := reg(0)
		if err != nil {
			return 0, err
		}
		return regWord(opSpecial, rs, 0, 0, 0, def.funct), nil

	case kindNone:
		if err := need(0); err != nil {
			return 0, err
		}
		return regWord(opSpecial, 0, 0, 0, 0, def.funct), nil

	case kindImm:
		if err := need(3); err != nil {
			return 0, err
		}
		rt, err := reg(0)
		if err != nil {
			return 0, err
		}
		rs, err := reg(1)
		if err != nil {
			return 0, err
		}
		imm, err := evalExpr(ops[2], syms)
		if err != nil {
			return 0, err
		}
		return immWord(def.op, rs, rt, int32(imm)), nil

	case kindImmRt:
		if err := need(2); err != nil {
			return 0, err
		}
		rt, err := reg(0)
		if err != nil {
			return 0, err
		}
		imm, err := evalExpr(ops[1], syms)
		if err != nil {
			return 0, err
		}
		return immWord(def.op, 0, rt, int32(imm)), nil

	case kindMem:
		if err := need(2); err != nil {
			return 0, err
		}
		rt, err := reg(0)
		if err != nil {
			return 0, err
		}
		immExpr, regTok := parseMem(ops[1])
		rs, err := parseRegister(regTok)
		if err != nil {
			return 0, err
		}
		imm, err := evalExpr(immExpr, syms)
		if err != nil {
			return 0, err
		}
		return immWord(def.op, rs, rt, int32(imm)), nil

	case kindBranch2:
		if err := need(3); err != nil {
			return 0, err
		}
		rs, err := reg(0)
		if err != nil {
			return 0, err
		}
		rt, err := reg(1)
		if err != nil {
			return 0, err
		}
		imm, err := branchOffset(ops[2], pc, syms)
		if err != nil {
			return 0, err
		}
		return immWord(def.op, rs, rt, imm), nil

	case kindBranch1:
		if err := need(2); err != nil {
			return 0, err
		}
		rs, err := reg(0)
		if err != nil {
			return 0, err
		}
		imm, err := branchOffset(ops[1], pc, syms)
		if err != nil {
			return 0, err
		}
		if def.regimm {
			return immWord(opRegimm, rs, def.rtField, imm), nil
		}
		return immWord(def.op, rs, 0, imm), nil

	case kindJump:
		if err := need(1); err != nil {
			return 0, err
		}
		target, err := evalExpr(ops[0], syms)
		if err != nil {
			return 0, err
		}
		return jumpWord(def.op, uint32(target)>>2), nil

	default:
		return 0, fmt.Errorf("unhandled operand shape for %s", mnemonic)
	}
}

// branchOffset resolves a branch target expression into the
// instruction's signed word-granular displacement. MIPS32 has no
// branch delay slot here, so the base for the offset is pc+4 — the
// address the interpreter has already advanced to by the time a
// branch's condition is evaluated.
func branchOffset(expr string, pc uint32, syms *symbolTable) (int32, error) {
	target, err := evalExpr(expr, syms)
	if err != nil {
		return 0, err
	}
	delta := int64(target) - int64(pc+4)
	if delta%4 != 0 {
		return 0, fmt.Errorf("branch target %s is not word-aligned relative to pc", expr)
	}
	word := delta / 4
	if word < -(1<<15) || word >= (1<<15) {
		return 0, fmt.Errorf("branch target %s is out of range", expr)
	}
	return int32(word), nil
}

// sizeDirective is pass 1's view of a directive: it must return the
// exact byte count pass 2 will emit, without writing anything.
func sizeDirective(text string, seg segmentID, offset uint32, syms *symbolTable, line int) (segmentID, uint32, error) {
	fields := strings.Fields(text)
	directive := strings.ToLower(fields[0])

	switch directive {
	case ".text":
		return segText, 0, nil
	case ".data":
		return segData, 0, nil
	case ".globl", ".global":
		return seg, 0, nil
	case ".eqv":
		return seg, 0, nil
	case ".word":
		return seg, uint32(len(listOperands(text))) * 4, nil
	case ".half":
		return seg, uint32(len(listOperands(text))) * 2, nil
	case ".byte":
		return seg, uint32(len(listOperands(text))), nil
	case ".ascii":
		s, err := quotedString(text, line)
		if err != nil {
			return seg, 0, err
		}
		return seg, uint32(len(s)), nil
	case ".asciiz":
		s, err := quotedString(text, line)
		if err != nil {
			return seg, 0, err
		}
		return seg, uint32(len(s)) + 1, nil
	case ".space":
		if len(fields) < 2 {
			return seg, 0, errf(line, ".space requires a count")
		}
		n, err := evalInt32(fields[1], syms, line)
		if err != nil {
			return seg, 0, err
		}
		if n < 0 {
			return seg, 0, errf(line, ".space count must be non-negative")
		}
		return seg, uint32(n), nil
	case ".align":
		if len(fields) < 2 {
			return seg, 0, errf(line, ".align requires a count")
		}
		n, err := evalInt32(fields[1], syms, line)
		if err != nil {
			return seg, 0, err
		}
		align := uint32(1) << uint(n)
		pad := (align - (offset % align)) % align
		return seg, pad, nil
	default:
		return seg, 0, errf(line, "unknown directive %q", directive)
	}
}

// emitDirective is pass 2's counterpart to sizeDirective: it writes
// bytes into buf starting at offset and returns how many it wrote.
func emitDirective(text string, seg segmentID, buf []byte, offset uint32, syms *symbolTable, line int) (segmentID, uint32, error) {
	fields := strings.Fields(text)
	directive := strings.ToLower(fields[0])

	switch directive {
	case ".text":
		return segText, 0, nil
	case ".data":
		return segData, 0, nil
	case ".globl", ".global":
		return seg, 0, nil
	case ".eqv":
		rest := strings.TrimSpace(text[len(fields[0]):])
		parts := splitOperands(rest)
		if len(parts) != 2 {
			return seg, 0, errf(line, ".eqv requires a name and a value")
		}
		name := strings.TrimSpace(parts[0])
		v, err := evalExpr(strings.TrimSpace(parts[1]), syms)
		if err != nil {
			return seg, 0, errf(line, "%v", err)
		}
		syms.eqv[name] = v
		return seg, 0, nil
	case ".word":
		vals := listOperands(text)
		for i, v := range vals {
			n, err := evalInt32(v, syms, line)
			if err != nil {
				return seg, 0, err
			}
			putU32LE(buf, offset+uint32(i)*4, uint32(n))
		}
		return seg, uint32(len(vals)) * 4, nil
	case ".half":
		vals := listOperands(text)
		for i, v := range vals {
			n, err := evalInt32(v, syms, line)
			if err != nil {
				return seg, 0, err
			}
			putU16LE(buf, offset+uint32(i)*2, uint16(n))
		}
		return seg, uint32(len(vals)) * 2, nil
	case ".byte":
		vals := listOperands(text)
		for i, v := range vals {
			n, err := evalInt32(v, syms, line)
			if err != nil {
				return seg, 0, err
			}
			buf[offset+uint32(i)] = byte(n)
		}
		return seg, uint32(len(vals)), nil
	case ".ascii":
		s, err := quotedString(text, line)
		if err != nil {
			return seg, 0, err
		}
		copy(buf[offset:], s)
		return seg, uint32(len(s)), nil
	case ".asciiz":
		s, err := quotedString(text, line)
		if err != nil {
			return seg, 0, err
		}
		copy(buf[offset:], s)
		buf[offset+uint32(len(s))] = 0
		return seg, uint32(len(s)) + 1, nil
	case ".space":
		n, err := evalInt32(fields[1], syms, line)
		if err != nil {
			return seg, 0, err
		}
		return seg, uint32(n), nil
	case ".align":
		n, err := evalInt32(fields[1], syms, line)
		if err != nil {
			return seg, 0, err
		}
		align := uint32(1) << uint(n)
		pad := (align - (offset % align)) % align
		return seg, pad, nil
	default:
		return seg, 0, errf(line, "unknown directive %q", directive)
	}
}

// listOperands splits a directive's operand list off its mnemonic.
func listOperands(text string) []string {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return nil
	}
	rest := strings.TrimSpace(text[len(fields[0]):])
	return trimAll(splitOperands(rest))
}

// quotedString extracts a "..." literal from a .ascii/.asciiz
// directive, processing backslash escapes.
func quotedString(text string, line int) (string, error) {
	rest := strings.TrimSpace(text[strings.IndexByte(text, ' ')+1:])
	if len(rest) < 2 || rest[0] != '"' {
		return "", errf(line, "expected a quoted string")
	}
	var b strings.Builder
	i := 1
	for i < len(rest) && rest[i] != '"' {
		c := rest[i]
		if c == '\\' && i+1 < len(rest) {
			i++
			c = unescapeByte(rest[i])
		}
		b.WriteByte(c)
		i++
	}
	if i >= len(rest) {
		return "", errf(line, "unterminated string literal")
	}
	return b.String(), nil
}
