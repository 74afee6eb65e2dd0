package patchlib

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSignature(t *testing.T) {
	for _, tc := range []struct {
		in   string
		b    []byte
		mask []bool
		err  bool
	}{
		{in: "9c f8 05 c0", b: []byte{0x9c, 0xf8, 0x05, 0xc0}},
		{in: "9cf805c0", b: []byte{0x9c, 0xf8, 0x05, 0xc0}},
		{in: "9c f8 ?? c0", b: []byte{0x9c, 0xf8, 0x00, 0xc0}, mask: []bool{false, false, true, false}},
		{in: "9c ? f8", b: []byte{0x9c, 0x00, 0xf8}, mask: []bool{false, true, false}},
		{in: "9cf8??", b: []byte{0x9c, 0xf8, 0x00}, mask: []bool{false, false, true}},
		{in: "", err: true},
		{in: "   ", err: true},
		{in: "9c f", err: true},
		{in: "zz", err: true},
	} {
		sig, err := ParseSignature(tc.in)
		if tc.err {
			assert.Error(t, err, "%q", tc.in)
			continue
		}
		require.NoError(t, err, "%q", tc.in)
		assert.Equal(t, tc.b, sig.Bytes, "%q", tc.in)
		assert.Equal(t, tc.mask, sig.Mask, "%q", tc.in)
	}

	_, err := ParseSignature("")
	assert.True(t, errors.Is(err, ErrInvalidSearch))

	assert.Equal(t, "9c f8 ?? c0", MustParseSignature("9cf8??c0").String())
	assert.Panics(t, func() { MustParseSignature("x") })
}

func TestFind(t *testing.T) {
	buf := []byte{0x00, 0x01, 0x02, 0x03, 0x29, 0x20, 0x00, 0xbf, 0x29, 0x20, 0x70, 0x47}

	t.Run("First", func(t *testing.T) {
		off, err := Find(buf, Literal([]byte{0x29, 0x20}), 0)
		require.NoError(t, err)
		assert.Equal(t, int32(4), off)
	})
	t.Run("Floor", func(t *testing.T) {
		for k := int32(0); k <= int32(len(buf)); k++ {
			off, err := Find(buf, Literal([]byte{0x29, 0x20}), k)
			if err != nil {
				assert.True(t, errors.Is(err, ErrPatternNotFound), "start %d", k)
				assert.Greater(t, k, int32(8))
				continue
			}
			assert.GreaterOrEqual(t, off, k, "start %d", k)
		}
	})
	t.Run("Deterministic", func(t *testing.T) {
		sig := MustParseSignature("29 20 ?? ??")
		a, err := Find(buf, sig, 1)
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			b, err := Find(buf, sig, 1)
			require.NoError(t, err)
			assert.Equal(t, a, b)
		}
	})
	t.Run("Wildcard", func(t *testing.T) {
		off, err := Find(buf, MustParseSignature("29 20 ?? 47"), 0)
		require.NoError(t, err)
		assert.Equal(t, int32(8), off)

		off, err = Find(buf, MustParseSignature("?? 01"), 0)
		require.NoError(t, err)
		assert.Equal(t, int32(0), off)
	})
	t.Run("NotFound", func(t *testing.T) {
		_, err := Find(buf, Literal([]byte{0x29, 0x21}), 0)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrPatternNotFound))

		var pnf *PatternNotFoundError
		require.True(t, errors.As(err, &pnf))
		assert.Equal(t, int32(0), pnf.Start)
		assert.Equal(t, int32(len(buf)), pnf.End)
		assert.Contains(t, err.Error(), "29 21")
	})
	t.Run("AtEnd", func(t *testing.T) {
		_, err := Find(buf, Literal([]byte{0x29}), int32(len(buf)))
		assert.True(t, errors.Is(err, ErrPatternNotFound))
	})
	t.Run("Invalid", func(t *testing.T) {
		_, err := Find(buf, Signature{}, 0)
		assert.True(t, errors.Is(err, ErrInvalidSearch))
		_, err = Find(buf, Literal([]byte{0x29}), -1)
		assert.True(t, errors.Is(err, ErrInvalidSearch))
		_, err = Find(buf, Literal([]byte{0x29}), int32(len(buf))+1)
		assert.True(t, errors.Is(err, ErrInvalidSearch))
		_, err = Find(buf, Signature{Bytes: []byte{1, 2}, Mask: []bool{true}}, 0)
		assert.True(t, errors.Is(err, ErrInvalidSearch))
	})
	t.Run("Exhaustive", func(t *testing.T) {
		big := bytes.Repeat([]byte{0xaa}, 4096)
		copy(big[3001:], []byte{0x9c, 0xf8, 0x05, 0xc0})
		off, err := Find(big, MustParseSignature("9c f8 05 c0"), 0)
		require.NoError(t, err)
		assert.Equal(t, int32(3001), off)
	})
}

func TestFindAll(t *testing.T) {
	buf := []byte{0x00, 0xbf, 0x00, 0xbf, 0x00, 0xbf, 0x70, 0x47}
	offs, err := FindAll(buf, Literal([]byte{0x00, 0xbf}), 0)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 2, 4}, offs)

	offs, err = FindAll(buf, Literal([]byte{0x00, 0xbf}), 3)
	require.NoError(t, err)
	assert.Equal(t, []int32{4}, offs)

	offs, err = FindAll(buf, Literal([]byte{0x01}), 0)
	require.NoError(t, err)
	assert.Empty(t, offs)
}
