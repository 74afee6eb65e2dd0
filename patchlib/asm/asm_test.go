package asm

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"testing"

	"rsc.io/arm/armasm"
)

func mustHex(s string) []byte {
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		panic(err)
	}
	return b
}

func TestThumb(t *testing.T) {
	for _, tc := range []struct{ src, out string }{
		{"movs r0, #0x29", "29 20"},
		{"nop", "00 bf"},
		{"nop.w", "af f3 00 80"},
		{"ldrb.w r12, [r12, #0x5]", "9c f8 05 c0"},
		{"strb.w r11, [r6, #0x5]", "86 f8 05 b0"},
		{"strb.w r4, [r7, #0x4f]", "87 f8 4f 40"},
		{"strh.w r0, [r10, #0x38]", "aa f8 38 00"},
		{"ldrb.w r0, [r8, #0x4a]", "98 f8 4a 00"},
		{"ldrb r0, [r8, #0x4a]", "98 f8 4a 00"},
		{"mov.w r0, #0x1", "4f f0 01 00"},
		{"mov r0, #1", "4f f0 01 00"},
		{"mov.w r1, #0xff00", "4f f4 7f 41"},
		{"mov r0, #0x1234", "41 f2 34 20"},
		{"movw r0, #0x1234", "41 f2 34 20"},
		{"mov r0, r1", "08 46"},
		{"movs r0, r1", "08 00"},
		{"mov r8, r0", "80 46"},
		{"cmp r0, #0x4e", "4e 28"},
		{"cmp r0, #0x10", "10 28"},
		{"cmp.w r0, #0x100", "b0 f5 80 7f"},
		{"cmp r0, r1", "88 42"},
		{"adds r0, #1", "01 30"},
		{"adds r0, r1, #1", "48 1c"},
		{"subs r1, r1, r2", "89 1a"},
		{"add sp, sp, #8", "02 b0"},
		{"sub sp, #16", "84 b0"},
		{"add r0, r1", "08 44"},
		{"muls r0, r0, r2", "50 43"},
		{"muls r0, r2", "50 43"},
		{"mul r0, r1, r2", "01 fb 02 f0"},
		{"lsrs r0, r0, #0xb", "c0 0a"},
		{"lsl.w r0, r1, #2", "4f ea 81 00"},
		{"ldr r0, [r1, #4]", "48 68"},
		{"str r0, [sp, #8]", "02 90"},
		{"ldrb r2, [r3]", "1a 78"},
		{"ldrb r0, [r1, #-4]", "11 f8 04 0c"},
		{"ldr.w r0, [r1, #0x100]", "d1 f8 00 01"},
		{"bx lr", "70 47"},
		{"b #0", "fe e7"},
		{"b #0x24", "10 e0"},
		{"b.w #0x1000", "00 f0 fe bf"},
		{"b #-8", "fa e7"},
		{"b #-130", "bd e7"},
		{"b.w #-0x1000", "fe f7 fe bf"},
		{"bl #0x1000", "00 f0 fe ff"},
		{"beq #0x10", "06 d0"},
		{"bne.w #0x10", "40 f0 06 80"},
		{"bls #8", "02 d9"},
		{"blt #8", "02 db"},
		{"bhs #8", "02 d2"},
		{"cbz r0, #0x10", "30 b1"},
		{"movs r0, #0x29 @ comment", "29 20"},
		{"nop; nop", "00 bf 00 bf"},
		{"// header\nNOP", "00 bf"},
		{".short 0x1234", "34 12"},
		{".byte 1, 2, 3", "01 02 03"},
	} {
		t.Run(tc.src, func(t *testing.T) {
			buf, err := New(armasm.ModeThumb).Assemble(tc.src)
			if err != nil {
				t.Fatalf("%q: unexpected error: %v", tc.src, err)
			}
			if exp := mustHex(tc.out); !bytes.Equal(buf, exp) {
				t.Errorf("%q: expected % x, got % x", tc.src, exp, buf)
			}
		})
	}
}

func TestThumbBLX(t *testing.T) {
	for _, tc := range []struct {
		pc, target uint32
		out        string
	}{
		{0x83EDE8, 0x40EF40, "d0 f7 aa e0"},
		{0x83EDE8, 0x41A4A0, "db f7 5a e3"},
		{0x83D426, 0x40EF40, "d1 f7 8c e5"},
		{0x83D426, 0x41A4A0, "dd f7 3c e0"},
	} {
		t.Run(fmt.Sprintf("%X_%X", tc.pc, tc.target), func(t *testing.T) {
			buf, err := New(armasm.ModeThumb).AssembleAt(fmt.Sprintf("blx #%#x", tc.target), tc.pc)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if exp := mustHex(tc.out); !bytes.Equal(buf, exp) {
				t.Errorf("%X: BLX #0x%X - expected % x, got % x", tc.pc, tc.target, exp, buf)
			}
		})
	}
}

func TestThumbLabels(t *testing.T) {
	src := `
		movs  r2, #6
		b  MULT
		nop.w
		nop.w
		nop
		movs  r2, #12
		b MULT
		nop.w
		nop.w
		nop
		movs  r2, #20
		nop
		MULT:
		muls  r0, r0, r2
		lsrs  r0, r0, #0xb
		strh.w  r0, [r10, #0x38]
	`
	exp := mustHex("06 22 0d e0 af f3 00 80 af f3 00 80 00 bf" +
		"0c 22 06 e0 af f3 00 80 af f3 00 80 00 bf" +
		"14 22 00 bf 50 43 c0 0a aa f8 38 00")

	buf, err := New(armasm.ModeThumb).Assemble(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(buf) != 40 {
		t.Errorf("expected 40 bytes, got %d", len(buf))
	}
	if !bytes.Equal(buf, exp) {
		t.Errorf("expected\n% x\ngot\n% x", exp, buf)
	}

	t.Run("Backward", func(t *testing.T) {
		buf, err := New(armasm.ModeThumb).Assemble("loop: subs r0, #1\nbne loop")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if exp := mustHex("01 38 fd d1"); !bytes.Equal(buf, exp) {
			t.Errorf("expected % x, got % x", exp, buf)
		}
	})

	t.Run("TrailingLabel", func(t *testing.T) {
		buf, err := New(armasm.ModeThumb).Assemble("b end\nnop\nend:")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if exp := mustHex("00 e0 00 bf"); !bytes.Equal(buf, exp) {
			t.Errorf("expected % x, got % x", exp, buf)
		}
	})
}

func TestThumbRelaxation(t *testing.T) {
	t.Run("Unconditional", func(t *testing.T) {
		buf, err := New(armasm.ModeThumb).Assemble("b end\n" + strings.Repeat("nop.w\n", 600) + "end: nop")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(buf) != 4+2400+2 {
			t.Fatalf("expected %d bytes, got %d", 4+2400+2, len(buf))
		}
		if exp := mustHex("00 f0 b0 bc"); !bytes.Equal(buf[:4], exp) {
			t.Errorf("expected b.w % x, got % x", exp, buf[:4])
		}
	})
	t.Run("Conditional", func(t *testing.T) {
		buf, err := New(armasm.ModeThumb).Assemble("beq end\n" + strings.Repeat("nop.w\n", 100) + "end: nop")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// 400 = imm6:imm11:'0' = 0:200
		if exp := mustHex("00 f0 c8 80"); !bytes.Equal(buf[:4], exp) {
			t.Errorf("expected beq.w % x, got % x", exp, buf[:4])
		}
	})
}

func TestARM(t *testing.T) {
	for _, tc := range []struct{ src, out string }{
		{"nop", "00 f0 20 e3"},
		{"b #8", "00 00 00 ea"},
		{"bl #0x100", "3e 00 00 eb"},
		{"mov r0, #1", "01 00 a0 e3"},
		{"movs r0, #1", "01 00 b0 e3"},
		{"moveq r0, #0", "00 00 a0 03"},
		{"mov r0, #0xff000000", "ff 04 a0 e3"},
		{"mov r0, #-1", "00 00 e0 e3"},
		{"mov r0, r1", "01 00 a0 e1"},
		{"cmp r0, #0x4e", "4e 00 50 e3"},
		{"add r0, r0, #-1", "01 00 40 e2"},
		{"ldrb r0, [r1, #4]", "04 00 d1 e5"},
		{"str r2, [sp, #-8]", "08 20 0d e5"},
		{"bx lr", "1e ff 2f e1"},
	} {
		t.Run(tc.src, func(t *testing.T) {
			buf, err := New(armasm.ModeARM).Assemble(tc.src)
			if err != nil {
				t.Fatalf("%q: unexpected error: %v", tc.src, err)
			}
			if exp := mustHex(tc.out); !bytes.Equal(buf, exp) {
				t.Errorf("%q: expected % x, got % x", tc.src, exp, buf)
			}
		})
	}
}

func TestErrors(t *testing.T) {
	for _, tc := range []struct {
		mode armasm.Mode
		src  string
		msg  string
	}{
		{armasm.ModeThumb, "", "no instructions"},
		{armasm.ModeThumb, "frob r0", "unknown instruction"},
		{armasm.ModeThumb, "movs.n r0, #0x100", "no 16-bit encoding"},
		{armasm.ModeThumb, "b.n #0x1000", "out of range"},
		{armasm.ModeThumb, "b #3", "not halfword aligned"},
		{armasm.ModeThumb, "b missing", "undefined label"},
		{armasm.ModeThumb, "x: nop\nx: nop", "duplicate label"},
		{armasm.ModeThumb, "moveq r0, #1", "IT block"},
		{armasm.ModeThumb, "ldr r0, [r1, #0x1000]", "out of range"},
		{armasm.ModeThumb, "cbz r0, #0x200", "out of range"},
		{armasm.ModeThumb, "movs r0, #0x29, r1", "invalid operands"},
		{armasm.ModeThumb, "ldr r0, [r1, #4]!", "writeback"},
		{armasm.ModeThumb, "movs r0, #zz", "bad immediate"},
		{armasm.ModeARM, "b #6", "not word aligned"},
		{armasm.ModeARM, "movs r0, #0x101", "cannot be encoded"},
		{armasm.ModeARM, "nop.w", "width qualifiers"},
	} {
		t.Run(tc.src, func(t *testing.T) {
			_, err := New(tc.mode).Assemble(tc.src)
			if err == nil {
				t.Fatalf("%q: expected error", tc.src)
			}
			var aerr *Error
			if !errors.As(err, &aerr) {
				t.Errorf("%q: expected *Error, got %T", tc.src, err)
			}
			if !strings.Contains(err.Error(), tc.msg) {
				t.Errorf("%q: expected error to contain %q, got %q", tc.src, tc.msg, err)
			}
		})
	}
}

func TestErrorLine(t *testing.T) {
	_, err := New(armasm.ModeThumb).Assemble("nop\nnop\nfrob r0")
	var aerr *Error
	if !errors.As(err, &aerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if aerr.Line != 3 || aerr.Source != "frob r0" {
		t.Errorf("expected line 3 (frob r0), got line %d (%s)", aerr.Line, aerr.Source)
	}
}

func TestExpandImm(t *testing.T) {
	for _, tc := range []struct {
		v   int64
		enc uint16
		ok  bool
	}{
		{0, 0x000, true},
		{0xab, 0x0ab, true},
		{0x00ab00ab, 0x1ab, true},
		{0xab00ab00, 0x2ab, true},
		{0xabababab, 0x3ab, true},
		{0x100, 0xf80, true},
		{0xff00, 0xc7f, true},
		{-1, 0x3ff, true},
		{0x101, 0, false},
		{0x1234, 0, false},
	} {
		t.Run(fmt.Sprintf("%X", tc.v), func(t *testing.T) {
			if enc, ok := expandImm(tc.v); ok != tc.ok || enc != tc.enc {
				t.Errorf("%#x - expected (%#x, %t), got (%#x, %t)", tc.v, tc.enc, tc.ok, enc, ok)
			}
		})
	}
}

func TestThumbNOP(t *testing.T) {
	for _, tc := range []struct {
		n   int
		out string
	}{
		{2, "00 bf"},
		{4, "af f3 00 80"},
		{6, "af f3 00 80 00 bf"},
	} {
		t.Run(fmt.Sprint(tc.n), func(t *testing.T) {
			buf, err := ThumbNOP(tc.n)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if exp := mustHex(tc.out); !bytes.Equal(buf, exp) {
				t.Errorf("expected % x, got % x", exp, buf)
			}
		})
	}
	if _, err := ThumbNOP(3); err == nil {
		t.Errorf("expected error for odd length")
	}
}

func TestAssemblerNOP(t *testing.T) {
	for _, tc := range []struct {
		mode armasm.Mode
		n    int
		out  string
	}{
		{armasm.ModeThumb, 6, "af f3 00 80 00 bf"},
		{armasm.ModeARM, 8, "00 f0 20 e3 00 f0 20 e3"},
	} {
		buf, err := NewCache(New(tc.mode)).NOP(tc.n)
		if err != nil {
			t.Errorf("%s/%d: unexpected error: %v", tc.mode, tc.n, err)
		} else if exp := mustHex(tc.out); !bytes.Equal(buf, exp) {
			t.Errorf("%s/%d: expected % x, got % x", tc.mode, tc.n, exp, buf)
		}
	}
	if _, err := New(armasm.ModeARM).NOP(6); err == nil {
		t.Errorf("expected error for a partial arm instruction")
	}
}

func TestParseMode(t *testing.T) {
	for s, m := range map[string]armasm.Mode{"": armasm.ModeThumb, "Thumb": armasm.ModeThumb, "arm": armasm.ModeARM} {
		if v, err := ParseMode(s); err != nil || v != m {
			t.Errorf("%q - expected %s, got %s (%v)", s, m, v, err)
		}
	}
	if _, err := ParseMode("mips"); err == nil {
		t.Errorf("expected error for unknown mode")
	}
}
