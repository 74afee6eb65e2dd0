package asm

import (
	"encoding/binary"
	"fmt"
	"strings"

	"rsc.io/arm/armasm"
)

// note: ARM (A32) encodings, see the ARMv7-A/R architecture reference manual,
// section A8.8. Every encoded instruction is decoded again with armasm and
// rejected if it doesn't round-trip to the same mnemonic.

var armOps = map[string]encoder{
	"nop":  armEnc(armNOP, "NOP"),
	"b":    armEnc(armBranch(0x0a000000), "B"),
	"bl":   armEnc(armBranch(0x0b000000), "BL"),
	"bx":   armEnc(armBranchReg(0x012fff10), "BX"),
	"blx":  armEnc(armBranchReg(0x012fff30), "BLX"),
	"mov":  armEnc(armMov, "MOV", "MOVW", "MVN"),
	"cmp":  armEnc(armCmp, "CMP"),
	"add":  armEnc(armDataProc(0x00800000), "ADD", "SUB"),
	"sub":  armEnc(armDataProc(0x00400000), "SUB", "ADD"),
	"ldr":  armEnc(armMem(0x04100000), "LDR"),
	"str":  armEnc(armMem(0x04000000), "STR"),
	"ldrb": armEnc(armMem(0x04500000), "LDRB"),
	"strb": armEnc(armMem(0x04400000), "STRB"),
}

// armEnc adds the condition field to an instruction and verifies it against
// the armasm decoder.
func armEnc(fn func(c *state, st *stmt) (uint32, error), want ...string) encoder {
	return func(c *state, st *stmt) ([]byte, error) {
		if st.width != 0 {
			return nil, fmt.Errorf("width qualifiers are not valid in ARM mode")
		}
		inst, err := fn(c, st)
		if err != nil {
			return nil, err
		}
		inst |= uint32(st.cond) << 28
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, inst)

		d, err := armasm.Decode(buf, armasm.ModeARM)
		if err != nil {
			return nil, fmt.Errorf("encoded %08x does not decode: %v", inst, err)
		}
		got := strings.SplitN(d.Op.String(), ".", 2)[0]
		for _, w := range want {
			if got == w {
				return buf, nil
			}
		}
		return nil, fmt.Errorf("encoded %08x decodes as %s, not %s", inst, d, strings.ToLower(want[0]))
	}
}

// A8.8.119 NOP: cond 0011 0010 0000 1111 0000 0000 0000
func armNOP(c *state, st *stmt) (uint32, error) {
	if len(st.args) != 0 || st.s {
		return 0, errArgs(st)
	}
	return 0x0320f000, nil
}

// A8.8.18 B, A8.8.25 BL: cond 101 L imm24, imm32 = SignExtend(imm24:'00')
// relative to PC+8.
func armBranch(op uint32) func(c *state, st *stmt) (uint32, error) {
	return func(c *state, st *stmt) (uint32, error) {
		if len(st.args) != 1 || st.s {
			return 0, errArgs(st)
		}
		d, err := c.disp(st.args[0])
		if err != nil {
			return 0, err
		}
		if d&3 != 0 {
			return 0, fmt.Errorf("branch target %s is not word aligned", st.args[0].text)
		}
		if d < -1<<25 || d >= 1<<25 {
			return 0, errRange
		}
		return op | uint32(d>>2)&0xffffff, nil
	}
}

// A8.8.27 BX, A8.8.26 BLX (register): cond 0001 0010 1111 1111 1111 00L1 Rm
func armBranchReg(op uint32) func(c *state, st *stmt) (uint32, error) {
	return func(c *state, st *stmt) (uint32, error) {
		if len(st.args) != 1 || st.args[0].kind != argReg || st.s {
			return 0, errArgs(st)
		}
		return op | uint32(st.args[0].reg), nil
	}
}

// A8.8.102 MOV (immediate), A8.8.104 MOV (register), A8.8.115 MVN (immediate)
//
//	A1 cond 0011 101 S 0000 Rd imm12                   (MOV, modified immediate)
//	A2 cond 0011 0000 imm4 Rd imm12                    (MOVW)
//	A1 cond 0001 101 S 0000 Rd 0000 0000 Rm            (MOV register)
//	A1 cond 0011 111 S 0000 Rd imm12                   (MVN, for inverted immediates)
func armMov(c *state, st *stmt) (uint32, error) {
	if len(st.args) != 2 || st.args[0].kind != argReg {
		return 0, errArgs(st)
	}
	rd, src, s := uint32(st.args[0].reg), st.args[1], uint32(bi(st.s))
	switch src.kind {
	case argImm:
		if enc, ok := armImm(src.imm); ok {
			return 0x03a00000 | s<<20 | rd<<12 | enc, nil
		}
		if enc, ok := armImm(int64(^uint32(src.imm))); ok {
			return 0x03e00000 | s<<20 | rd<<12 | enc, nil
		}
		if !st.s && src.imm >= 0 && src.imm <= 0xffff {
			v := uint32(src.imm)
			return 0x03000000 | v>>12<<16 | rd<<12 | v&0xfff, nil
		}
		return 0, fmt.Errorf("immediate %s cannot be encoded", src.text)
	case argReg:
		return 0x01a00000 | s<<20 | rd<<12 | uint32(src.reg), nil
	}
	return 0, errArgs(st)
}

// A8.8.37 CMP (immediate) cond 0011 0101 Rn 0000 imm12, A8.8.38 CMP
// (register) cond 0001 0101 Rn 0000 00000 00 0 Rm
func armCmp(c *state, st *stmt) (uint32, error) {
	if len(st.args) != 2 || st.args[0].kind != argReg || st.s {
		return 0, errArgs(st)
	}
	rn, src := uint32(st.args[0].reg), st.args[1]
	switch src.kind {
	case argImm:
		if enc, ok := armImm(src.imm); ok {
			return 0x03500000 | rn<<16 | enc, nil
		}
		return 0, fmt.Errorf("immediate %s cannot be encoded", src.text)
	case argReg:
		return 0x01500000 | rn<<16 | uint32(src.reg), nil
	}
	return 0, errArgs(st)
}

// A8.8.5 ADD (immediate) cond 0010 100 S Rn Rd imm12, A8.8.7 ADD (register)
// cond 0000 100 S Rn Rd 00000 00 0 Rm, and the matching SUB (0010 010 S).
func armDataProc(op uint32) func(c *state, st *stmt) (uint32, error) {
	return func(c *state, st *stmt) (uint32, error) {
		if len(st.args) < 2 || len(st.args) > 3 || st.args[0].kind != argReg {
			return 0, errArgs(st)
		}
		rd, rn, src := uint32(st.args[0].reg), uint32(st.args[0].reg), st.args[len(st.args)-1]
		if len(st.args) == 3 {
			if st.args[1].kind != argReg {
				return 0, errArgs(st)
			}
			rn = uint32(st.args[1].reg)
		}
		s := uint32(bi(st.s)) << 20
		switch src.kind {
		case argImm:
			if enc, ok := armImm(src.imm); ok {
				return 0x02000000 | op | s | rn<<16 | rd<<12 | enc, nil
			}
			// add r0, #-1 is sub r0, #1
			if enc, ok := armImm(-src.imm); ok {
				return 0x02000000 | (0x00c00000 ^ op) | s | rn<<16 | rd<<12 | enc, nil
			}
			return 0, fmt.Errorf("immediate %s cannot be encoded", src.text)
		case argReg:
			return op | s | rn<<16 | rd<<12 | uint32(src.reg), nil
		}
		return 0, errArgs(st)
	}
}

// A8.8.63 LDR (immediate), A8.8.204 STR (immediate), and the byte variants:
// cond 010 P U B W L Rn Rt imm12 (offset addressing, P=1 W=0).
func armMem(op uint32) func(c *state, st *stmt) (uint32, error) {
	return func(c *state, st *stmt) (uint32, error) {
		if len(st.args) != 2 || st.args[0].kind != argReg || st.args[1].kind != argMem || st.s {
			return 0, errArgs(st)
		}
		rt, rn, off := uint32(st.args[0].reg), uint32(st.args[1].reg), st.args[1].imm
		u := uint32(1)
		if off < 0 {
			u, off = 0, -off
		}
		if off > 0xfff {
			return 0, fmt.Errorf("offset %s out of range", st.args[1].text)
		}
		return op | 1<<24 | u<<23 | rn<<16 | rt<<12 | uint32(off), nil
	}
}

// A5.2.4 ARMExpandImm, in reverse: an 8-bit value rotated right by twice the
// 4-bit rotation field.
func armImm(v int64) (uint32, bool) {
	if v < -1<<31 || v > 0xffffffff {
		return 0, false
	}
	x := uint32(v)
	for rot := uint32(0); rot < 16; rot++ {
		u := x<<(2*rot) | x>>((32-2*rot)&31)
		if rot == 0 {
			u = x
		}
		if u <= 0xff {
			return rot<<8 | u, true
		}
	}
	return 0, false
}
