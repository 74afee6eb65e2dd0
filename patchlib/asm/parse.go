package asm

import (
	"fmt"
	"strconv"
	"strings"

	"rsc.io/arm/armasm"
)

// Cond is an ARM condition code, in encoding order.
type Cond uint8

const (
	EQ Cond = iota
	NE
	CS
	CC
	MI
	PL
	VS
	VC
	HI
	LS
	GE
	LT
	GT
	LE
	AL
)

var condNames = map[string]Cond{
	"eq": EQ, "ne": NE,
	"cs": CS, "hs": CS,
	"cc": CC, "lo": CC,
	"mi": MI, "pl": PL,
	"vs": VS, "vc": VC,
	"hi": HI, "ls": LS,
	"ge": GE, "lt": LT,
	"gt": GT, "le": LE,
	"al": AL,
}

var regNames = map[string]armasm.Reg{
	"r0": armasm.R0, "r1": armasm.R1, "r2": armasm.R2, "r3": armasm.R3,
	"r4": armasm.R4, "r5": armasm.R5, "r6": armasm.R6, "r7": armasm.R7,
	"r8": armasm.R8, "r9": armasm.R9, "r10": armasm.R10, "r11": armasm.R11,
	"r12": armasm.R12, "r13": armasm.R13, "r14": armasm.R14, "r15": armasm.R15,
	"sb": armasm.R9, "sl": armasm.R10, "fp": armasm.R11, "ip": armasm.R12,
	"sp": armasm.SP, "lr": armasm.LR, "pc": armasm.PC,
}

type argKind int

const (
	argReg argKind = iota
	argImm
	argLabel
	argMem
)

// arg is a single parsed operand. For argMem, reg is the base register and
// imm the offset.
type arg struct {
	kind  argKind
	reg   armasm.Reg
	imm   int64
	label string
	text  string
}

// stmt is one instruction or directive of a block.
type stmt struct {
	line   int
	src    string
	labels []string

	op    string // base mnemonic, or directive including the leading dot
	s     bool   // flag-setting suffix
	cond  Cond
	width byte // 'n', 'w' or 0
	args  []arg

	addr uint32
	size int
	wide bool // sticky once a relaxable instruction needed its long form
}

// split parses src into statements. Statements are separated by newlines or
// semicolons, and comments start with @ or //.
func split(src string) ([]*stmt, error) {
	var stmts []*stmt
	var pending []string
	for i, line := range strings.Split(src, "\n") {
		if j := strings.Index(line, "//"); j >= 0 {
			line = line[:j]
		}
		if j := strings.IndexByte(line, '@'); j >= 0 {
			line = line[:j]
		}
		for _, piece := range strings.Split(line, ";") {
			piece = strings.TrimSpace(piece)
			for {
				j := strings.IndexByte(piece, ':')
				if j <= 0 || !isIdent(strings.TrimSpace(piece[:j])) {
					break
				}
				pending = append(pending, strings.TrimSpace(piece[:j]))
				piece = strings.TrimSpace(piece[j+1:])
			}
			if piece == "" {
				continue
			}
			st := &stmt{line: i + 1, src: piece, labels: pending, cond: AL}
			pending = nil
			if err := st.parseOperands(); err != nil {
				return nil, &Error{Line: st.line, Source: piece, Msg: err.Error()}
			}
			stmts = append(stmts, st)
		}
	}
	if len(pending) != 0 {
		// trailing labels point at the end of the block
		stmts = append(stmts, &stmt{line: -1, labels: pending, op: ".end", cond: AL})
	}
	return stmts, nil
}

func (st *stmt) parseOperands() error {
	mn, rest := st.src, ""
	if i := strings.IndexAny(mn, " \t"); i >= 0 {
		mn, rest = mn[:i], strings.TrimSpace(mn[i+1:])
	}
	st.op = strings.ToLower(mn)
	if !strings.HasPrefix(st.op, ".") {
		if i := strings.IndexByte(st.op, '.'); i >= 0 {
			switch st.op[i+1:] {
			case "w":
				st.width = 'w'
				st.wide = true
			case "n":
				st.width = 'n'
			default:
				return fmt.Errorf("unknown qualifier %q", st.op[i:])
			}
			st.op = st.op[:i]
		}
	}
	if rest == "" {
		return nil
	}
	for _, a := range splitArgs(rest) {
		p, err := parseArg(a)
		if err != nil {
			return err
		}
		st.args = append(st.args, p)
	}
	return nil
}

// resolve splits the mnemonic into its base, flag-setting suffix and
// condition, using the known base mnemonics in table.
func (st *stmt) resolve(table map[string]encoder) (encoder, error) {
	if strings.HasPrefix(st.op, ".") {
		if enc, ok := directives[st.op]; ok {
			return enc, nil
		}
		return nil, fmt.Errorf("unknown directive %s", st.op)
	}
	m := st.op
	if enc, ok := table[m]; ok {
		return enc, nil
	}
	try := func(base string, s bool, c Cond) (encoder, bool) {
		enc, ok := table[base]
		if ok {
			st.op, st.s, st.cond = base, s, c
		}
		return enc, ok
	}
	if len(m) > 2 {
		if c, ok := condNames[m[len(m)-2:]]; ok {
			rest := m[:len(m)-2]
			if enc, ok := try(rest, false, c); ok {
				return enc, nil
			}
			if strings.HasSuffix(rest, "s") {
				if enc, ok := try(rest[:len(rest)-1], true, c); ok {
					return enc, nil
				}
			}
		}
	}
	if strings.HasSuffix(m, "s") {
		rest := m[:len(m)-1]
		if enc, ok := try(rest, true, AL); ok {
			return enc, nil
		}
		if len(rest) > 2 {
			if c, ok := condNames[rest[len(rest)-2:]]; ok {
				if enc, ok := try(rest[:len(rest)-2], true, c); ok {
					return enc, nil
				}
			}
		}
	}
	return nil, fmt.Errorf("unknown instruction %q", m)
}

func splitArgs(s string) []string {
	var args []string
	var depth, start int
	for i, c := range s {
		switch c {
		case '[', '{':
			depth++
		case ']', '}':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(args, strings.TrimSpace(s[start:]))
}

func parseArg(s string) (arg, error) {
	a := arg{text: s}
	switch {
	case s == "":
		return a, fmt.Errorf("empty operand")
	case strings.HasPrefix(s, "["):
		if !strings.HasSuffix(s, "]") {
			if strings.HasSuffix(s, "]!") {
				return a, fmt.Errorf("writeback addressing is not supported: %s", s)
			}
			return a, fmt.Errorf("unterminated memory operand %s", s)
		}
		parts := splitArgs(s[1 : len(s)-1])
		r, ok := regNames[strings.ToLower(parts[0])]
		if !ok {
			return a, fmt.Errorf("bad base register %q", parts[0])
		}
		a.kind, a.reg = argMem, r
		switch len(parts) {
		case 1:
		case 2:
			n, err := parseImm(parts[1])
			if err != nil {
				return a, err
			}
			a.imm = n
		default:
			return a, fmt.Errorf("unsupported memory operand %s", s)
		}
		return a, nil
	case strings.HasPrefix(s, "#"):
		n, err := parseImm(s)
		if err != nil {
			return a, err
		}
		a.kind, a.imm = argImm, n
		return a, nil
	}
	if r, ok := regNames[strings.ToLower(s)]; ok {
		a.kind, a.reg = argReg, r
		return a, nil
	}
	if n, err := parseImm(s); err == nil {
		a.kind, a.imm = argImm, n
		return a, nil
	}
	if isIdent(s) {
		a.kind, a.label = argLabel, s
		return a, nil
	}
	return a, fmt.Errorf("bad operand %q", s)
}

func parseImm(s string) (int64, error) {
	t := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "#"))
	neg := false
	switch {
	case strings.HasPrefix(t, "-"):
		neg, t = true, t[1:]
	case strings.HasPrefix(t, "+"):
		t = t[1:]
	}
	n, err := strconv.ParseUint(strings.TrimSpace(t), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("bad immediate %q", s)
	}
	if neg {
		return -int64(n), nil
	}
	return int64(n), nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_' || c == '.' || c == '$':
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
