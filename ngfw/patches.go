package ngfw

import (
	"fmt"

	"github.com/ngfw-tools/ngpatch/patchlib"
)

// the region code handling lives past the bootloader area
const regionStart = 0x8000

// byte offset of the region field in the settings struct
var regionField = patchlib.Variants[int]{
	F2Pro:  0x4f,
	F2Plus: 0x59,
	F2:     0x61,
}

// KERSBlock is the original KERS multiplier block replaced by kers_multi.
var KERSBlock = patchlib.MustParseSignature("" +
	"00 eb 40 00 c0 f3 94 20 aa f8 38 00 0c e0 " +
	"00 eb 40 00 c0 f3 54 20 aa f8 38 00 05 e0 " +
	"00 eb 80 00 c0 f3 54 20 aa f8 38 00")

const kersAsm = `
	movs r2, #%d
	b mult
	nop.w
	nop.w
	nop
	movs r2, #%d
	b mult
	nop.w
	nop.w
	nop
	movs r2, #%d
	nop
mult:
	muls r0, r0, r2
	lsrs r0, r0, #0xb
	strh.w r0, [r10, #0x38]
`

func init() {
	register(&Patch{
		Name:        "disable_motor_ntc",
		Description: "Disables error 41, which is raised when the motor NTC is missing.",
		Author:      "Turbojeet",
		apply: func(op *patchlib.Op, model string, args []int) error {
			off, n, err := op.FindAsm("movs r0, #0x29", 0)
			if err != nil {
				return err
			}
			off += int32(n)
			_, err = op.ReplaceAsm(off, 4, "nop.w")
			return err
		},
	})
	register(&Patch{
		Name:        "skip_key_check",
		Description: "Skips the key check.",
		Author:      "WallyCZ",
		apply: func(op *patchlib.Op, model string, args []int) error {
			off, _, err := op.FindAsm("ldrb.w r12, [r12, #0x5]", 0)
			if err != nil {
				return err
			}
			// skip the cmp and the conditional branch after it
			off, _, err = op.FindAsm("cmp r0, #0x10", off)
			if err != nil {
				return err
			}
			off += 4
			dst, _, err := op.FindAsm("strb.w r11, [r6, #0x5]", off)
			if err != nil {
				return err
			}
			dst -= 2
			Log("skip_key_check: branch %#x -> %#x\n", off, dst)
			_, err = op.Branch(off, dst, 2)
			return err
		},
	})
	register(&Patch{
		Name:        "allow_sn_change",
		Description: "Allows changing the serial number.",
		Author:      "WallyCZ",
		apply: func(op *patchlib.Op, model string, args []int) error {
			off, n, err := op.FindAsm("ldrb.w r0, [r8, #0x4a]", 0)
			if err != nil {
				return err
			}
			_, err = op.ReplaceAsm(off, n, "mov.w r0, #0x1")
			return err
		},
	})
	register(&Patch{
		Name:        "region_free",
		Description: "Sets the global region.",
		Author:      "Turbojeet",
		apply: func(op *patchlib.Op, model string, args []int) error {
			field, err := regionField.Get(model)
			if err != nil {
				return err
			}
			off, n, err := op.FindAsm("cmp r0, #0x4e", regionStart)
			if err != nil {
				return err
			}
			off += int32(n)
			dst, _, err := op.FindAsm(fmt.Sprintf("strb.w r4, [r7, #%#x]", field), regionStart)
			if err != nil {
				return err
			}
			Log("region_free: %s: branch %#x -> %#x\n", model, off, dst)
			_, err = op.Branch(off, dst, 2)
			return err
		},
	})
	register(&Patch{
		Name:        "kers_multi",
		Description: "Sets the multipliers for the KERS levels.",
		Author:      "Turbojeet",
		Params: []Param{
			{Name: "l0", Default: 6, Min: 0, Max: 0xff},
			{Name: "l1", Default: 12, Min: 0, Max: 0xff},
			{Name: "l2", Default: 20, Min: 0, Max: 0xff},
		},
		apply: func(op *patchlib.Op, model string, args []int) error {
			off, err := op.Find(KERSBlock, 0)
			if err != nil {
				return err
			}
			_, err = op.ReplaceAsm(off, KERSBlock.Len(), fmt.Sprintf(kersAsm, args[0], args[1], args[2]))
			return err
		},
	})
}
