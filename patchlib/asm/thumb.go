package asm

import (
	"errors"
	"fmt"

	"rsc.io/arm/armasm"
)

// note: instruction references are to the ARMv7-M architecture reference
// manual, section A7.7. 32-bit instructions are stored as two little-endian
// halfwords, first halfword first.

var thumbOps = map[string]encoder{
	"nop":  thumbNOP,
	"b":    thumbB,
	"bl":   thumbBL,
	"blx":  thumbBLX,
	"bx":   thumbBX,
	"cbz":  thumbCBZ(false),
	"cbnz": thumbCBZ(true),
	"mov":  thumbMov,
	"movw": thumbMovImm16(0xf240),
	"movt": thumbMovImm16(0xf2c0),
	"cmp":  thumbCmp,
	"add":  thumbAddSub(false),
	"sub":  thumbAddSub(true),
	"mul":  thumbMul,
	"lsl":  thumbShift(0),
	"lsr":  thumbShift(1),
	"asr":  thumbShift(2),
	"ldr":  thumbMem(memOp{narrow: 0x6800, scale: 4, wide: 0xf8d0, neg: 0xf850, sp: 0x9800}),
	"str":  thumbMem(memOp{narrow: 0x6000, scale: 4, wide: 0xf8c0, neg: 0xf840, sp: 0x9000}),
	"ldrb": thumbMem(memOp{narrow: 0x7800, scale: 1, wide: 0xf890, neg: 0xf810}),
	"strb": thumbMem(memOp{narrow: 0x7000, scale: 1, wide: 0xf880, neg: 0xf800}),
	"ldrh": thumbMem(memOp{narrow: 0x8800, scale: 2, wide: 0xf8b0, neg: 0xf830}),
	"strh": thumbMem(memOp{narrow: 0x8000, scale: 2, wide: 0xf8a0, neg: 0xf820}),
}

var (
	errNarrow = errors.New("no 16-bit encoding for these operands")
	errRange  = errors.New("branch target out of range")
)

// ThumbNOP returns n bytes of Thumb NOPs, using NOP.W where possible.
func ThumbNOP(n int) ([]byte, error) {
	if n <= 0 || n%2 != 0 {
		return nil, fmt.Errorf("cannot fill %d bytes with thumb instructions", n)
	}
	var buf []byte
	for ; n >= 4; n -= 4 {
		buf = append(buf, hw2(0xf3af, 0x8000)...)
	}
	if n == 2 {
		buf = append(buf, hw(0xbf00)...)
	}
	return buf, nil
}

// A7.7.88 NOP: T1 1011 1111 0000 0000, T2 1111 0011 1010 1111 | 1000 0000 0000 0000
func thumbNOP(c *state, st *stmt) ([]byte, error) {
	if err := plain(st, 0); err != nil {
		return nil, err
	}
	if st.wide {
		return hw2(0xf3af, 0x8000), nil
	}
	return hw(0xbf00), nil
}

// A7.7.12 B
//
//	T1 1101 cond imm8                                  imm32 = SignExtend(imm8:'0')
//	T2 1110 0 imm11                                    imm32 = SignExtend(imm11:'0')
//	T3 1111 0 S cond imm6 | 1 0 J1 0 J2 imm11          imm32 = SignExtend(S:J2:J1:imm6:imm11:'0')
//	T4 1111 0 S imm10 | 1 0 J1 1 J2 imm11              see branch24
//
//	BranchWritePC(PC + imm32)                          thus...  imm32 = target - pc - 4
func thumbB(c *state, st *stmt) ([]byte, error) {
	d, err := thumbDisp(c, st)
	if err != nil {
		return nil, err
	}
	if st.cond == AL {
		if !st.wide && d >= -2048 && d <= 2046 {
			return hw(0xe000 | uint16(d>>1)&0x7ff), nil
		}
		if st.width == 'n' {
			return nil, errRange
		}
		return branch24(d, 0x9000)
	}
	if !st.wide && d >= -256 && d <= 254 {
		return hw(0xd000 | uint16(st.cond)<<8 | uint16(d>>1)&0xff), nil
	}
	if st.width == 'n' || d < -1<<20 || d >= 1<<20 {
		return nil, errRange
	}
	S := bi(d < 0)
	J2 := uint16(d>>19) & 1
	J1 := uint16(d>>18) & 1
	imm6 := uint16(d>>12) & 0x3f
	imm11 := uint16(d>>1) & 0x7ff
	return hw2(0xf000|S<<10|uint16(st.cond)<<6|imm6, 0x8000|J1<<13|J2<<11|imm11), nil
}

// A7.7.18 BL T1 1111 0 S imm10 | 1 1 J1 1 J2 imm11
func thumbBL(c *state, st *stmt) ([]byte, error) {
	if st.cond != AL {
		return nil, errIT
	}
	if st.width == 'n' {
		return nil, errNarrow
	}
	d, err := thumbDisp(c, st)
	if err != nil {
		return nil, err
	}
	return branch24(d, 0xd000)
}

// branch24 encodes B.W (T4) or BL (T1), which share their immediate layout.
//
//	I1    = NOT(J1 EOR S)                            thus...  J1    = NOT(I1) EOR S
//	I2    = NOT(J2 EOR S)                            thus...  J2    = NOT(I2) EOR S
//	imm32 = SignExtend(S:I1:I2:imm10:imm11:'0', 32)  thus...  S     = SIGN(imm32)
//	                                                          I1    = imm32[23]
//	                                                          I2    = imm32[22]
//	                                                          imm10 = imm32[12:22]
//	                                                          imm11 = imm32[1:12]
//
//	imm32 must be between -16777216 and 16777214
func branch24(d int64, op uint16) ([]byte, error) {
	if d < -1<<24 || d >= 1<<24 {
		return nil, errRange
	}
	S := bi(d < 0)
	I1 := uint16(d>>23) & 1
	I2 := uint16(d>>22) & 1
	J1 := (^I1 ^ S) & 1
	J2 := (^I2 ^ S) & 1
	imm10 := uint16(d>>12) & 0x3ff
	imm11 := uint16(d>>1) & 0x7ff
	return hw2(0xf000|S<<10|imm10, op|J1<<13|J2<<11|imm11), nil
}

// A7.7.19 BLX
//
//	T1 0100 0111 1 Rm 000 (register)
//	T2 1111 0 S imm10H | 1 1 J1 0 J2 imm10L 0 (thumb to arm)
//
//	BranchWritePC(Align(PC, 4) + imm32)              thus...  imm32 = target - (pc & ~3) - 4
//
//	imm32 must be multiples of 4 between -16777216 and 16777212
func thumbBLX(c *state, st *stmt) ([]byte, error) {
	if st.cond != AL {
		return nil, errIT
	}
	if len(st.args) == 1 && st.args[0].kind == argReg {
		if st.wide {
			return nil, fmt.Errorf("no 32-bit encoding for blx register")
		}
		return hw(0x4780 | r16(st.args[0].reg)<<3), nil
	}
	if st.width == 'n' {
		return nil, errNarrow
	}
	if len(st.args) != 1 {
		return nil, errArgs(st)
	}
	t, err := c.target(st.args[0])
	if err != nil {
		return nil, err
	}
	if t&3 != 0 {
		return nil, fmt.Errorf("blx target %#x is not word aligned", t)
	}
	d := int64(int32(t - c.st.addr&^3 - 4))
	if d < -1<<24 || d >= 1<<24 {
		return nil, errRange
	}
	S := bi(d < 0)
	I1 := uint16(d>>23) & 1
	I2 := uint16(d>>22) & 1
	J1 := (^I1 ^ S) & 1
	J2 := (^I2 ^ S) & 1
	imm10H := uint16(d>>12) & 0x3ff
	imm10L := uint16(d>>2) & 0x3ff
	return hw2(0xf000|S<<10|imm10H, 0xc000|J1<<13|J2<<11|imm10L<<1), nil
}

// A7.7.20 BX T1 0100 0111 0 Rm 000
func thumbBX(c *state, st *stmt) ([]byte, error) {
	if err := plain(st, 1); err != nil {
		return nil, err
	}
	if st.args[0].kind != argReg || st.wide {
		return nil, errArgs(st)
	}
	return hw(0x4700 | r16(st.args[0].reg)<<3), nil
}

// A7.7.21 CBNZ, CBZ T1 1011 op 0 i 1 imm5 Rn
func thumbCBZ(nz bool) encoder {
	return func(c *state, st *stmt) ([]byte, error) {
		if err := plain(st, 2); err != nil {
			return nil, err
		}
		if st.args[0].kind != argReg || !low(st.args[0].reg) || st.wide {
			return nil, errArgs(st)
		}
		d, err := c.disp(st.args[1])
		if err != nil {
			return nil, err
		}
		if !c.final {
			d = 0
		}
		if d < 0 || d > 126 || d&1 != 0 {
			return nil, errRange
		}
		op := uint16(0xb100)
		if nz {
			op = 0xb900
		}
		return hw(op | uint16(d>>6)<<9 | uint16(d>>1&0x1f)<<3 | r16(st.args[0].reg)), nil
	}
}

// A7.7.75 MOV (immediate) and A7.7.76 MOV (register)
//
//	T1 001 00 Rd imm8                                  (MOVS, outside IT)
//	T2 1111 0 i 0 0010 S 1111 | 0 imm3 Rd imm8         (MOV.W, modified immediate)
//	T3 1111 0 i 10 0 1 0 0 imm4 | 0 imm3 Rd imm8       (MOVW)
//
//	T1 0100 0110 D Rm Rd                               (MOV, any registers)
//	T2 0000 0000 00 Rm Rd                              (MOVS, low registers)
//	T3 1110 1010 010 S 1111 | 0 000 Rd 0000 Rm         (MOV.W)
func thumbMov(c *state, st *stmt) ([]byte, error) {
	if st.cond != AL {
		return nil, errIT
	}
	if len(st.args) != 2 || st.args[0].kind != argReg {
		return nil, errArgs(st)
	}
	rd, src := st.args[0].reg, st.args[1]
	switch src.kind {
	case argImm:
		v := src.imm
		if st.s && low(rd) && v >= 0 && v <= 0xff && !st.wide {
			return hw(0x2000 | r16(rd)<<8 | uint16(v)), nil
		}
		if st.width == 'n' {
			return nil, errNarrow
		}
		if rd == armasm.SP || rd == armasm.PC {
			return nil, errArgs(st)
		}
		if enc, ok := expandImm(v); ok {
			return modImm(0xf04f|bi(st.s)<<4, rd, enc), nil
		}
		if !st.s && v >= 0 && v <= 0xffff {
			return imm16(0xf240, rd, uint16(v)), nil
		}
		return nil, fmt.Errorf("immediate %s cannot be encoded", src.text)
	case argReg:
		rm := src.reg
		if !st.wide {
			if st.s && low(rd, rm) {
				return hw(r16(rm)<<3 | r16(rd)), nil
			}
			if !st.s {
				return hw(0x4600 | r16(rd>>3)<<7 | r16(rm)<<3 | r16(rd&7)), nil
			}
		}
		if st.width == 'n' {
			return nil, errNarrow
		}
		return hw2(0xea4f|bi(st.s)<<4, r16(rd)<<8|r16(rm)), nil
	}
	return nil, errArgs(st)
}

// A7.7.75 MOVW T3 and A7.7.78 MOVT T1
func thumbMovImm16(op uint16) encoder {
	return func(c *state, st *stmt) ([]byte, error) {
		if err := plain(st, 2); err != nil {
			return nil, err
		}
		if st.args[0].kind != argReg || st.args[1].kind != argImm || st.width == 'n' {
			return nil, errArgs(st)
		}
		if v := st.args[1].imm; v < 0 || v > 0xffff {
			return nil, fmt.Errorf("immediate %s out of range", st.args[1].text)
		}
		return imm16(op, st.args[0].reg, uint16(st.args[1].imm)), nil
	}
}

// A7.7.27 CMP (immediate) and A7.7.28 CMP (register)
//
//	T1 001 01 Rn imm8
//	T2 1111 0 i 0 1101 1 Rn | 0 imm3 1111 imm8
//
//	T1 0100 0010 10 Rm Rn                              (low registers)
//	T2 0100 0101 N Rm Rn                               (any registers)
//	T3 1110 1011 1011 Rn | 0 000 1111 0000 Rm
func thumbCmp(c *state, st *stmt) ([]byte, error) {
	if st.cond != AL {
		return nil, errIT
	}
	if st.s || len(st.args) != 2 || st.args[0].kind != argReg {
		return nil, errArgs(st)
	}
	rn, src := st.args[0].reg, st.args[1]
	switch src.kind {
	case argImm:
		v := src.imm
		if low(rn) && v >= 0 && v <= 0xff && !st.wide {
			return hw(0x2800 | r16(rn)<<8 | uint16(v)), nil
		}
		if st.width == 'n' {
			return nil, errNarrow
		}
		if enc, ok := expandImm(v); ok {
			return modImm(0xf1b0|r16(rn), armasm.PC, enc), nil
		}
		return nil, fmt.Errorf("immediate %s cannot be encoded", src.text)
	case argReg:
		rm := src.reg
		if !st.wide {
			if low(rn, rm) {
				return hw(0x4280 | r16(rm)<<3 | r16(rn)), nil
			}
			return hw(0x4500 | r16(rn>>3)<<7 | r16(rm)<<3 | r16(rn&7)), nil
		}
		return hw2(0xebb0|r16(rn), 0x0f00|r16(rm)), nil
	}
	return nil, errArgs(st)
}

// A7.7.3 ADD (immediate), A7.7.4 ADD (register), A7.7.5 ADD (SP plus
// immediate), and the matching SUB encodings.
//
//	T1 000 111 0 imm3 Rn Rd                            (ADDS/SUBS, imm3)
//	T2 001 10 Rdn imm8                                 (ADDS/SUBS, imm8)
//	T3 1111 0 i 0 1000 S Rn | 0 imm3 Rd imm8           (ADD.W/SUB.W, modified immediate)
//	T4 1111 0 i 1 0000 0 Rn | 0 imm3 Rd imm8           (ADDW/SUBW, imm12)
//
//	T1 000 1100 Rm Rn Rd                               (ADDS/SUBS, low registers)
//	T2 0100 0100 DN Rm Rdn                             (ADD, any registers)
//	T3 1110 1011 000 S Rn | 0 000 Rd 00 00 Rm          (ADD.W/SUB.W)
func thumbAddSub(sub bool) encoder {
	return func(c *state, st *stmt) ([]byte, error) {
		if st.cond != AL {
			return nil, errIT
		}
		if len(st.args) < 2 || len(st.args) > 3 || st.args[0].kind != argReg {
			return nil, errArgs(st)
		}
		three := len(st.args) == 3
		rd, rn, src := st.args[0].reg, st.args[0].reg, st.args[len(st.args)-1]
		if three {
			if st.args[1].kind != argReg {
				return nil, errArgs(st)
			}
			rn = st.args[1].reg
		}
		switch src.kind {
		case argImm:
			v, neg := src.imm, sub
			if v < 0 {
				v, neg = -v, !neg
			}
			if !st.wide {
				t1 := uint16(0x1c00)
				t2 := uint16(0x3000)
				if neg {
					t1, t2 = 0x1e00, 0x3800
				}
				if st.s && low(rd, rn) {
					if three && v <= 7 {
						return hw(t1 | uint16(v)<<6 | r16(rn)<<3 | r16(rd)), nil
					}
					if rd == rn && v <= 0xff {
						return hw(t2 | r16(rd)<<8 | uint16(v)), nil
					}
					if v <= 7 {
						return hw(t1 | uint16(v)<<6 | r16(rn)<<3 | r16(rd)), nil
					}
				}
				if !st.s && rd == armasm.SP && rn == armasm.SP && v%4 == 0 && v <= 508 {
					op := uint16(0xb000)
					if neg {
						op = 0xb080
					}
					return hw(op | uint16(v/4)), nil
				}
				if !st.s && !neg && low(rd) && rn == armasm.SP && v%4 == 0 && v <= 1020 {
					return hw(0xa800 | r16(rd)<<8 | uint16(v/4)), nil
				}
			}
			if st.width == 'n' {
				return nil, errNarrow
			}
			t3, t4 := uint16(0xf100), uint16(0xf200)
			if neg {
				t3, t4 = 0xf1a0, 0xf2a0
			}
			if enc, ok := expandImm(v); ok {
				return modImm(t3|bi(st.s)<<4|r16(rn), rd, enc), nil
			}
			if !st.s && v <= 0xfff {
				return hw2(t4|uint16(v>>11)<<10|r16(rn), uint16(v>>8&7)<<12|r16(rd)<<8|uint16(v&0xff)), nil
			}
			return nil, fmt.Errorf("immediate %s cannot be encoded", src.text)
		case argReg:
			rm := src.reg
			if !st.wide {
				if st.s && low(rd, rn, rm) {
					op := uint16(0x1800)
					if sub {
						op = 0x1a00
					}
					return hw(op | r16(rm)<<6 | r16(rn)<<3 | r16(rd)), nil
				}
				if !st.s && !sub && rd == rn {
					return hw(0x4400 | r16(rd>>3)<<7 | r16(rm)<<3 | r16(rd&7)), nil
				}
			}
			if st.width == 'n' {
				return nil, errNarrow
			}
			op := uint16(0xeb00)
			if sub {
				op = 0xeba0
			}
			return hw2(op|bi(st.s)<<4|r16(rn), r16(rd)<<8|r16(rm)), nil
		}
		return nil, errArgs(st)
	}
}

// A7.7.84 MUL
//
//	T1 0100 0011 01 Rn Rdm                             (MULS, Rd must equal Rm)
//	T2 1111 1011 0000 Rn | 1111 Rd 0000 Rm
func thumbMul(c *state, st *stmt) ([]byte, error) {
	if st.cond != AL {
		return nil, errIT
	}
	if len(st.args) < 2 || len(st.args) > 3 {
		return nil, errArgs(st)
	}
	for _, a := range st.args {
		if a.kind != argReg {
			return nil, errArgs(st)
		}
	}
	rd, rn, rm := st.args[0].reg, st.args[0].reg, st.args[len(st.args)-1].reg
	if len(st.args) == 3 {
		rn = st.args[1].reg
	}
	if st.s {
		if st.wide || !low(rd, rn, rm) {
			return nil, fmt.Errorf("muls needs low registers and has no 32-bit encoding")
		}
		// multiplication commutes, so either source may share the destination
		switch rd {
		case rm:
			return hw(0x4340 | r16(rn)<<3 | r16(rd)), nil
		case rn:
			return hw(0x4340 | r16(rm)<<3 | r16(rd)), nil
		}
		return nil, fmt.Errorf("muls destination must be one of the sources")
	}
	if st.width == 'n' {
		return nil, errNarrow
	}
	return hw2(0xfb00|r16(rn), 0xf000|r16(rd)<<8|r16(rm)), nil
}

// A7.7.67 LSL, A7.7.69 LSR, A7.7.10 ASR (immediate)
//
//	T1 000 op imm5 Rm Rd                               (LSLS/LSRS/ASRS, low registers)
//	T2 1110 1010 010 S 1111 | 0 imm3 Rd imm2 type Rm
func thumbShift(typ uint16) encoder {
	return func(c *state, st *stmt) ([]byte, error) {
		if st.cond != AL {
			return nil, errIT
		}
		if len(st.args) < 2 || len(st.args) > 3 || st.args[0].kind != argReg {
			return nil, errArgs(st)
		}
		rd, rm, amt := st.args[0].reg, st.args[0].reg, st.args[len(st.args)-1]
		if len(st.args) == 3 {
			if st.args[1].kind != argReg {
				return nil, errArgs(st)
			}
			rm = st.args[1].reg
		}
		if amt.kind != argImm {
			return nil, fmt.Errorf("register shifts are not supported")
		}
		v := amt.imm
		if (typ == 0 && (v < 0 || v > 31)) || (typ != 0 && (v < 1 || v > 32)) {
			return nil, fmt.Errorf("shift amount %s out of range", amt.text)
		}
		imm5 := uint16(v) & 0x1f
		if !st.wide && st.s && low(rd, rm) {
			return hw(typ<<11 | imm5<<6 | r16(rm)<<3 | r16(rd)), nil
		}
		if st.width == 'n' {
			return nil, errNarrow
		}
		return hw2(0xea4f|bi(st.s)<<4, imm5>>2<<12|r16(rd)<<8|(imm5&3)<<6|typ<<4|r16(rm)), nil
	}
}

// memOp holds the encodings of an immediate-offset load or store.
//
//	T1 011 B L imm5 Rn Rt / 1000 L imm5 Rn Rt          (narrow, scaled imm5)
//	T2 1001 L Rt imm8                                  (SP relative, LDR/STR only)
//	T3 1111 1000 1 size L Rn | Rt imm12                (wide, positive imm12)
//	T4 1111 1000 0 size L Rn | Rt 1 P U W imm8         (wide, negative imm8)
type memOp struct {
	narrow uint16
	scale  int64
	wide   uint16
	neg    uint16
	sp     uint16
}

func thumbMem(m memOp) encoder {
	return func(c *state, st *stmt) ([]byte, error) {
		if err := plain(st, 2); err != nil {
			return nil, err
		}
		if st.args[0].kind != argReg || st.args[1].kind != argMem {
			return nil, errArgs(st)
		}
		rt, rn, off := st.args[0].reg, st.args[1].reg, st.args[1].imm
		if !st.wide && off >= 0 && off%m.scale == 0 {
			if low(rt, rn) && off/m.scale <= 31 {
				return hw(m.narrow | uint16(off/m.scale)<<6 | r16(rn)<<3 | r16(rt)), nil
			}
			if m.sp != 0 && rn == armasm.SP && low(rt) && off/4 <= 0xff {
				return hw(m.sp | r16(rt)<<8 | uint16(off/4)), nil
			}
		}
		if st.width == 'n' {
			return nil, errNarrow
		}
		switch {
		case off >= 0 && off <= 0xfff:
			return hw2(m.wide|r16(rn), r16(rt)<<12|uint16(off)), nil
		case off < 0 && off >= -0xff:
			return hw2(m.neg|r16(rn), r16(rt)<<12|0xc00|uint16(-off)), nil
		}
		return nil, fmt.Errorf("offset %d out of range", off)
	}
}

// A5.3.2 ThumbExpandImm, in reverse. The 12-bit result is i:imm3:imm8.
func expandImm(v int64) (uint16, bool) {
	if v < -1<<31 || v > 0xffffffff {
		return 0, false
	}
	x := uint32(v)
	b, h := x&0xff, x>>8&0xff
	switch {
	case x == b:
		return uint16(b), true
	case x == b<<16|b:
		return 0x100 | uint16(b), true
	case x == h<<24|h<<8:
		return 0x200 | uint16(h), true
	case x == b<<24|b<<16|b<<8|b:
		return 0x300 | uint16(b), true
	}
	for rot := uint(8); rot < 32; rot++ {
		u := x<<rot | x>>(32-rot) // undo the rotate right
		if u <= 0xff && u&0x80 != 0 {
			return uint16(rot)<<7 | uint16(u&0x7f), true
		}
	}
	return 0, false
}

// modImm builds the 32-bit data-processing (modified immediate) layout
// 1111 0 i xxxxx Rn | 0 imm3 Rd imm8.
func modImm(op uint16, rd armasm.Reg, enc uint16) []byte {
	return hw2(op|(enc>>11&1)<<10, (enc>>8&7)<<12|r16(rd)<<8|enc&0xff)
}

// imm16 builds the MOVW/MOVT layout 1111 0 i 10 x 1 0 0 imm4 | 0 imm3 Rd imm8.
func imm16(op uint16, rd armasm.Reg, v uint16) []byte {
	return hw2(op|(v>>11&1)<<10|v>>12, (v>>8&7)<<12|r16(rd)<<8|v&0xff)
}

func thumbDisp(c *state, st *stmt) (int64, error) {
	if st.s || len(st.args) != 1 {
		return 0, errArgs(st)
	}
	d, err := c.disp(st.args[0])
	if err != nil {
		return 0, err
	}
	if d&1 != 0 {
		return 0, fmt.Errorf("branch target %s is not halfword aligned", st.args[0].text)
	}
	return d, nil
}

var errIT = errors.New("conditional execution needs an IT block, which is not supported")

// plain checks an instruction without flag-setting or condition suffixes.
func plain(st *stmt, nargs int) error {
	if st.cond != AL {
		return errIT
	}
	if st.s || len(st.args) != nargs {
		return errArgs(st)
	}
	return nil
}

func errArgs(st *stmt) error {
	return fmt.Errorf("invalid operands for %s", st.op)
}

func low(rs ...armasm.Reg) bool {
	for _, r := range rs {
		if r > armasm.R7 {
			return false
		}
	}
	return true
}

func r16(r armasm.Reg) uint16 {
	return uint16(r)
}

func hw(v uint16) []byte {
	return []byte{byte(v), byte(v >> 8)}
}

func hw2(a, b uint16) []byte {
	return []byte{byte(a), byte(a >> 8), byte(b), byte(b >> 8)}
}

func bi(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}
