package ngfw

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngfw-tools/ngpatch/patchlib"
)

func mustHex(s string) []byte {
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		panic(err)
	}
	return b
}

// testImage returns a fake DRV image containing the code each patch looks for.
func testImage() []byte {
	buf := bytes.Repeat([]byte{0x00, 0xbf}, 0x4800)
	put := func(off int, s string) {
		copy(buf[off:], mustHex(s))
	}

	put(0x100, "29 20 0a 43 0b 60") // movs r0, #0x29

	put(0x200, "9c f8 05 c0") // ldrb.w r12, [r12, #0x5]
	put(0x210, "10 28 0c d1") // cmp r0, #0x10; bne
	put(0x214, "2a 46")
	put(0x240, "86 f8 05 b0") // strb.w r11, [r6, #0x5]

	put(0x300, "98 f8 4a 00") // ldrb.w r0, [r8, #0x4a]

	put(0x400, KERSBlock.String())

	put(0x500, "4e 28")       // cmp r0, #0x4e (before the search start)
	put(0x600, "87 f8 4f 40") // strb.w r4, [r7, #0x4f] (before the search start)

	put(0x8080, "87 f8 61 40") // strb.w r4, [r7, #0x61]
	put(0x8100, "4e 28 01 d1") // cmp r0, #0x4e; bne
	put(0x8140, "87 f8 4f 40") // strb.w r4, [r7, #0x4f]
	put(0x8180, "87 f8 59 40") // strb.w r4, [r7, #0x59]
	return buf
}

func TestPatches(t *testing.T) {
	var names []string
	for _, pt := range Patches() {
		names = append(names, pt.Name)
	}
	assert.Equal(t, []string{"disable_motor_ntc", "skip_key_check", "allow_sn_change", "region_free", "kers_multi"}, names)

	pt, err := Get("kers_multi")
	require.NoError(t, err)
	assert.Equal(t, "kers_multi(l0=6,l1=12,l2=20)", pt.Usage())

	_, err = Get("turbo")
	assert.EqualError(t, err, `no such patch "turbo" (available: allow_sn_change, disable_motor_ntc, kers_multi, region_free, skip_key_check)`)
}

func TestApply(t *testing.T) {
	for _, tc := range []struct {
		name  string
		model string
		args  []int
		recs  []patchlib.Record
	}{
		{"disable_motor_ntc", F2Pro, nil, []patchlib.Record{
			{Offset: 0x102, Original: mustHex("0a 43 0b 60"), New: mustHex("af f3 00 80")},
		}},
		{"skip_key_check", F2Pro, nil, []patchlib.Record{
			{Offset: 0x214, Original: mustHex("2a 46"), New: mustHex("13 e0")}, // b #0x2a
		}},
		{"allow_sn_change", F2Pro, nil, []patchlib.Record{
			{Offset: 0x300, Original: mustHex("98 f8 4a 00"), New: mustHex("4f f0 01 00")},
		}},
		{"region_free", F2Pro, nil, []patchlib.Record{
			{Offset: 0x8102, Original: mustHex("01 d1"), New: mustHex("1d e0")}, // b #0x3e
		}},
		{"region_free", F2Plus, nil, []patchlib.Record{
			{Offset: 0x8102, Original: mustHex("01 d1"), New: mustHex("3d e0")}, // b #0x7e
		}},
		{"region_free", F2, nil, []patchlib.Record{
			{Offset: 0x8102, Original: mustHex("01 d1"), New: mustHex("bd e7")}, // b #-0x82
		}},
		{"kers_multi", F2Pro, nil, []patchlib.Record{
			{Offset: 0x400, Original: KERSBlock.Bytes, New: mustHex("" +
				"06 22 0d e0 af f3 00 80 af f3 00 80 00 bf " +
				"0c 22 06 e0 af f3 00 80 af f3 00 80 00 bf " +
				"14 22 00 bf 50 43 c0 0a aa f8 38 00")},
		}},
		{"kers_multi", F2Pro, []int{8, 16, 0x20}, []patchlib.Record{
			{Offset: 0x400, Original: KERSBlock.Bytes, New: mustHex("" +
				"08 22 0d e0 af f3 00 80 af f3 00 80 00 bf " +
				"10 22 06 e0 af f3 00 80 af f3 00 80 00 bf " +
				"20 22 00 bf 50 43 c0 0a aa f8 38 00")},
		}},
	} {
		t.Run(tc.name+"/"+tc.model, func(t *testing.T) {
			pt, err := Get(tc.name)
			require.NoError(t, err)

			buf := testImage()
			recs, err := pt.Apply(NewPatcher(buf), tc.model, tc.args...)
			require.NoError(t, err)

			for i := range tc.recs {
				tc.recs[i].Name = tc.name
			}
			if diff := cmp.Diff(tc.recs, recs); diff != "" {
				t.Errorf("unexpected records (-want +got):\n%s", diff)
			}
			for _, r := range recs {
				assert.Equal(t, r.New, buf[r.Offset:int(r.Offset)+len(r.New)])
			}

			require.NoError(t, patchlib.Revert(buf, recs))
			assert.Equal(t, testImage(), buf)
		})
	}
}

func TestApplyErrors(t *testing.T) {
	t.Run("UnsupportedVariant", func(t *testing.T) {
		pt, _ := Get("region_free")
		buf := testImage()
		_, err := pt.Apply(NewPatcher(buf), "g30")
		assert.True(t, errors.Is(err, patchlib.ErrUnsupportedVariant))
		assert.EqualError(t, err, `region_free: unsupported variant "g30" (supported: f2, f2plus, f2pro)`)
		assert.Equal(t, testImage(), buf)
	})
	t.Run("PatternNotFound", func(t *testing.T) {
		pt, _ := Get("skip_key_check")
		buf := testImage()
		copy(buf[0x240:], []byte{0x00, 0xbf, 0x00, 0xbf})
		_, err := pt.Apply(NewPatcher(buf), F2)

		var pnf *patchlib.PatternNotFoundError
		require.True(t, errors.As(err, &pnf))
		assert.Equal(t, "skip_key_check", pnf.Op)
		assert.Equal(t, int32(0x214), pnf.Start)
		assert.Equal(t, "86 f8 05 b0", pnf.Signature.String())
	})
	t.Run("Args", func(t *testing.T) {
		pt, _ := Get("kers_multi")
		_, err := pt.Apply(NewPatcher(testImage()), F2, 1, 2, 3, 4)
		assert.EqualError(t, err, "kers_multi: too many arguments (expected at most 3, got 4)")
		_, err = pt.Apply(NewPatcher(testImage()), F2, 256)
		assert.EqualError(t, err, "kers_multi: l0 must be between 0 and 255, got 256")

		pt, _ = Get("allow_sn_change")
		_, err = pt.Apply(NewPatcher(testImage()), F2, 1)
		assert.Error(t, err)
	})
	t.Run("Twice", func(t *testing.T) {
		// the anchor of allow_sn_change is the instruction it replaces
		pt, _ := Get("allow_sn_change")
		p := NewPatcher(testImage())
		_, err := pt.Apply(p, F2)
		require.NoError(t, err)
		_, err = pt.Apply(p, F2)
		assert.True(t, errors.Is(err, patchlib.ErrPatternNotFound))
	})
}

func TestParseSelection(t *testing.T) {
	sel, err := ParseSelection("kers_multi=8, 0x10,32")
	require.NoError(t, err)
	assert.Equal(t, "kers_multi", sel.Patch.Name)
	assert.Equal(t, []int{8, 16, 32}, sel.Args)
	assert.Equal(t, "kers_multi=8,16,32", sel.String())

	sel, err = ParseSelection(" region_free ")
	require.NoError(t, err)
	assert.Equal(t, "region_free", sel.String())

	for _, s := range []string{"nope", "kers_multi=x", "kers_multi=1,2,3,4", "kers_multi=-1"} {
		_, err := ParseSelection(s)
		assert.Error(t, err, s)
	}
}

func TestSession(t *testing.T) {
	t.Run("All", func(t *testing.T) {
		buf := testImage()
		rpt, err := (&Session{Model: F2Plus, Tool: "test"}).Run(buf, All())
		require.NoError(t, err)
		assert.Equal(t, []string{"disable_motor_ntc", "skip_key_check", "allow_sn_change", "region_free", "kers_multi"}, rpt.Applied)
		assert.Empty(t, rpt.Failed)
		assert.Len(t, rpt.Records, 5)
		assert.NoError(t, rpt.Verify(testImage(), false))
		assert.NoError(t, rpt.Verify(buf, true))

		require.NoError(t, patchlib.Revert(buf, rpt.Records))
		assert.Equal(t, testImage(), buf)
	})
	t.Run("Abort", func(t *testing.T) {
		buf := testImage()
		copy(buf[0x300:], []byte{0x00, 0xbf, 0x00, 0xbf})
		orig := append([]byte(nil), buf...)

		rpt, err := (&Session{Model: F2}).Run(buf, All())
		assert.Nil(t, rpt)
		assert.True(t, errors.Is(err, patchlib.ErrPatternNotFound))
		assert.Contains(t, err.Error(), "allow_sn_change")
		assert.Equal(t, orig, buf, "the image should be left unchanged")
	})
	t.Run("KeepGoing", func(t *testing.T) {
		buf := testImage()
		copy(buf[0x300:], []byte{0x00, 0xbf, 0x00, 0xbf})

		rpt, err := (&Session{Model: F2, KeepGoing: true}).Run(buf, All())
		require.Error(t, err)
		require.NotNil(t, rpt)
		assert.True(t, errors.Is(err, patchlib.ErrPatternNotFound))
		assert.Equal(t, []string{"allow_sn_change"}, rpt.Failed)
		assert.Len(t, rpt.Applied, 4)
		assert.Len(t, rpt.Records, 4)
		assert.Equal(t, mustHex("bd e7"), buf[0x8102:0x8104])
	})
	t.Run("Model", func(t *testing.T) {
		_, err := (&Session{Model: "esx"}).Run(testImage(), All())
		assert.True(t, errors.Is(err, patchlib.ErrUnsupportedVariant))
	})
}
