// Package asm assembles small blocks of ARM unified-syntax assembly (Thumb-2
// or ARM) into machine code which can be patched directly into a binary.
//
// Only the instructions commonly needed for binary patching are supported:
// branches, moves, compares, simple arithmetic, and immediate-offset loads and
// stores. Labels may be used as branch targets, and immediate branch targets
// (e.g. b #0x24) are addresses relative to the base address of the block,
// which defaults to 0.
package asm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"rsc.io/arm/armasm"
)

// maxPasses bounds the relaxation of label-dependent branches. Sizes only grow,
// so this is never reached for valid input.
const maxPasses = 16

// Error is returned for malformed or unencodable assembly.
type Error struct {
	Line   int
	Source string
	Msg    string
}

func (e *Error) Error() string {
	if e.Line <= 0 {
		return e.Msg
	}
	return fmt.Sprintf("line %d: %s: %s", e.Line, e.Source, e.Msg)
}

// Assembler assembles blocks for a single instruction set.
type Assembler struct {
	Mode armasm.Mode
	Base uint32
}

// New returns an assembler for mode (armasm.ModeThumb or armasm.ModeARM).
func New(mode armasm.Mode) *Assembler {
	return &Assembler{Mode: mode}
}

// ParseMode parses a mode name (thumb, thumb2, t32, arm, a32).
func ParseMode(s string) (armasm.Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "thumb", "thumb2", "thumb-2", "t32":
		return armasm.ModeThumb, nil
	case "arm", "a32":
		return armasm.ModeARM, nil
	}
	return 0, fmt.Errorf("unknown instruction set %q", s)
}

// Assemble assembles src at the assembler's base address.
func (a *Assembler) Assemble(src string) ([]byte, error) {
	return a.AssembleAt(src, a.Base)
}

// NOP returns n bytes of NOPs, using the widest encoding which fits.
func (a *Assembler) NOP(n int) ([]byte, error) {
	if a.Mode == armasm.ModeThumb {
		return ThumbNOP(n)
	}
	nop, err := a.AssembleAt("nop", 0)
	if err != nil {
		return nil, err
	}
	if n <= 0 || n%len(nop) != 0 {
		return nil, fmt.Errorf("cannot fill %d bytes with %d-byte instructions", n, len(nop))
	}
	return bytes.Repeat(nop, n/len(nop)), nil
}

// AssembleAt assembles src as if it were located at base. The result is never
// padded or truncated.
func (a *Assembler) AssembleAt(src string, base uint32) ([]byte, error) {
	var table map[string]encoder
	var pcOffset uint32
	switch a.Mode {
	case armasm.ModeThumb:
		table, pcOffset = thumbOps, 4
	case armasm.ModeARM:
		table, pcOffset = armOps, 8
	default:
		return nil, &Error{Msg: fmt.Sprintf("unsupported mode %s", a.Mode)}
	}

	stmts, err := split(src)
	if err != nil {
		return nil, err
	}
	if len(stmts) == 0 {
		return nil, &Error{Msg: "no instructions"}
	}

	encs := make([]encoder, len(stmts))
	labels := map[string]uint32{}
	for i, st := range stmts {
		for _, l := range st.labels {
			if _, dup := labels[l]; dup {
				return nil, &Error{Line: st.line, Source: st.src, Msg: fmt.Sprintf("duplicate label %q", l)}
			}
			labels[l] = 0
		}
		if encs[i], err = st.resolve(table); err != nil {
			return nil, &Error{Line: st.line, Source: st.src, Msg: err.Error()}
		}
	}

	ctx := &state{mode: a.Mode, pcOffset: pcOffset, labels: labels}
	out := make([][]byte, len(stmts))
	for pass := 0; ; pass++ {
		if pass == maxPasses {
			return nil, &Error{Msg: "branch relaxation did not converge"}
		}

		addr := base
		for _, st := range stmts {
			st.addr = addr
			for _, l := range st.labels {
				labels[l] = addr
			}
			addr += uint32(st.size)
		}

		ctx.final = pass > 0
		changed := false
		for i, st := range stmts {
			ctx.st = st
			b, err := encs[i](ctx, st)
			if err != nil {
				if _, ok := err.(*Error); ok {
					return nil, err
				}
				return nil, &Error{Line: st.line, Source: st.src, Msg: err.Error()}
			}
			if len(b) < st.size && !st.wide {
				// keep the layout monotonic
				st.wide = true
				if b, err = encs[i](ctx, st); err != nil {
					return nil, &Error{Line: st.line, Source: st.src, Msg: err.Error()}
				}
			}
			if len(b) != st.size {
				st.size = len(b)
				changed = true
			}
			out[i] = b
		}
		if !changed && ctx.final {
			break
		}
	}

	var buf []byte
	for _, b := range out {
		buf = append(buf, b...)
	}
	return buf, nil
}

type encoder func(ctx *state, st *stmt) ([]byte, error)

// state is the state shared by the encoders during a pass.
type state struct {
	mode     armasm.Mode
	pcOffset uint32
	labels   map[string]uint32
	final    bool
	st       *stmt
}

// target returns the absolute address referred to by a branch operand. Before
// the final passes, unknown labels resolve to the instruction itself.
func (c *state) target(a arg) (uint32, error) {
	switch a.kind {
	case argImm:
		return uint32(a.imm), nil
	case argLabel:
		if v, ok := c.labels[a.label]; ok && c.final {
			return v, nil
		} else if ok || !c.final {
			return c.st.addr, nil
		}
		return 0, fmt.Errorf("undefined label %q", a.label)
	}
	return 0, fmt.Errorf("bad branch target %q", a.text)
}

// disp returns the displacement from the instruction's PC value to a.
func (c *state) disp(a arg) (int64, error) {
	t, err := c.target(a)
	if err != nil {
		return 0, err
	}
	return int64(int32(t - (c.st.addr + c.pcOffset))), nil
}

var directives = map[string]encoder{
	".byte":   data(1),
	".short":  data(2),
	".hword":  data(2),
	".2byte":  data(2),
	".word":   data(4),
	".long":   data(4),
	".4byte":  data(4),
	".syntax": ignore,
	".end":    ignore,
	".thumb": func(c *state, st *stmt) ([]byte, error) {
		if c.mode != armasm.ModeThumb {
			return nil, fmt.Errorf(".thumb in %s block", c.mode)
		}
		return nil, nil
	},
	".arm": func(c *state, st *stmt) ([]byte, error) {
		if c.mode != armasm.ModeARM {
			return nil, fmt.Errorf(".arm in %s block", c.mode)
		}
		return nil, nil
	},
}

func ignore(*state, *stmt) ([]byte, error) {
	return nil, nil
}

func data(n int) encoder {
	return func(c *state, st *stmt) ([]byte, error) {
		if len(st.args) == 0 {
			return nil, fmt.Errorf("%s needs at least one value", st.op)
		}
		var buf []byte
		for _, a := range st.args {
			if a.kind != argImm {
				return nil, fmt.Errorf("bad value %q", a.text)
			}
			if max := int64(1) << (8 * n); a.imm >= max || a.imm < -max/2 {
				return nil, fmt.Errorf("value %q does not fit in %d bytes", a.text, n)
			}
			b := make([]byte, 4)
			binary.LittleEndian.PutUint32(b, uint32(a.imm))
			buf = append(buf, b[:n]...)
		}
		return buf, nil
	}
}
