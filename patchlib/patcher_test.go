package patchlib

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapAsm is an Assembler backed by literal fixtures.
type mapAsm map[string][]byte

func (m mapAsm) Assemble(src string) ([]byte, error) {
	if b, ok := m[src]; ok {
		return append([]byte(nil), b...), nil
	}
	return nil, fmt.Errorf("unknown instruction %q", src)
}

var fixtures = mapAsm{
	"movs r0, #0x29": {0x29, 0x20},
	"nop":            {0x00, 0xbf},
	"nop.w":          {0xaf, 0xf3, 0x00, 0x80},
	"b #36":          {0x10, 0xe0},
	"b #-8":          {0xfa, 0xe7},
	"b #4":           {0x00, 0xe0},
	"b.w #4":         {0x00, 0xf0, 0x00, 0xb8},
}

func TestGetBytes(t *testing.T) {
	p := NewPatcher([]byte(`this is a test`), nil)
	assert.Equal(t, []byte(`this is a test`), p.GetBytes())
}

func TestBaseAddress(t *testing.T) {
	p := NewPatcher([]byte(`this is a test`), nil)
	assert.Error(t, p.BaseAddress(14)) // past buf len
	assert.Error(t, p.BaseAddress(-1)) // negative
	require.NoError(t, p.BaseAddress(4))
	assert.Equal(t, int32(4), p.GetCur())
	p.ResetBaseAddress()
	assert.Equal(t, int32(0), p.GetCur())
}

func TestFindBaseAddress(t *testing.T) {
	p := NewPatcher([]byte{0x00, 0x01, 0x29, 0x20, 0x70, 0x47}, fixtures)
	assert.True(t, errors.Is(p.FindBaseAddress(Literal([]byte{0x29, 0x21})), ErrPatternNotFound))
	require.NoError(t, p.FindBaseAddress(MustParseSignature("?? 20 70")))
	assert.Equal(t, int32(2), p.GetCur())

	// searching starts at cur
	require.NoError(t, p.BaseAddress(3))
	assert.True(t, errors.Is(p.FindBaseAddress(MustParseSignature("?? 20 70")), ErrPatternNotFound))
	assert.Equal(t, int32(3), p.GetCur())
	require.NoError(t, p.FindBaseAddress(Literal([]byte{0x47})))
	assert.Equal(t, int32(5), p.GetCur())

	p.ResetBaseAddress()
	require.NoError(t, p.FindBaseAddressAsm("movs r0, #0x29"))
	assert.Equal(t, int32(2), p.GetCur())
	assert.True(t, errors.Is(p.FindBaseAddressAsm("bogus"), ErrAssembly))
}

func TestReplaceBytes(t *testing.T) {
	p := NewPatcher([]byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05}, nil)
	assert.True(t, errors.Is(p.ReplaceBytes(0, []byte{0x00}, []byte{0x00, 0x01}), ErrSizeMismatch))
	assert.True(t, errors.Is(p.ReplaceBytes(3, []byte{0x02, 0x03}, []byte{0x03, 0x02}), ErrPatternNotFound))
	assert.True(t, errors.Is(p.ReplaceBytes(5, []byte{0x05, 0x06}, []byte{0x03, 0x02}), ErrOutOfRange))
	require.NoError(t, p.BaseAddress(2))
	require.NoError(t, p.ReplaceBytes(0, []byte{0x02, 0x03}, []byte{0x03, 0x02}))
	assert.Error(t, p.ReplaceBytes(0, []byte{0x02, 0x03}, []byte{0x03, 0x02}))
	assert.Equal(t, []byte{0x00, 0x01, 0x03, 0x02, 0x04, 0x05}, p.GetBytes())

	recs := p.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, Record{Offset: 2, Original: []byte{0x02, 0x03}, New: []byte{0x03, 0x02}}, recs[0])
}

func TestHook(t *testing.T) {
	var calls []string
	p := NewPatcher([]byte{0x00, 0x01, 0x02, 0x03}, nil)
	p.Hook(func(offset int32, find, replace []byte) error {
		calls = append(calls, fmt.Sprintf("%d % x -> % x", offset, find, replace))
		if replace[0] == 0xff {
			return errors.New("denied")
		}
		return nil
	})

	require.NoError(t, p.ReplaceBytes(1, []byte{0x01}, []byte{0x11}))
	assert.EqualError(t, p.ReplaceBytes(2, []byte{0x02}, []byte{0xff}), "ReplaceBytes: hook returned error: denied")
	assert.Equal(t, []byte{0x00, 0x11, 0x02, 0x03}, p.GetBytes())

	require.NoError(t, p.Revert(p.Records()))
	assert.Equal(t, []byte{0x00, 0x01, 0x02, 0x03}, p.GetBytes())
	assert.Equal(t, []string{"1 01 -> 11", "2 02 -> ff", "1 11 -> 01"}, calls)

	p.Hook(nil)
	require.NoError(t, p.ReplaceBytes(2, []byte{0x02}, []byte{0xff}))
}

func TestHookRestore(t *testing.T) {
	var calls []string
	p := NewPatcher([]byte{0x00, 0x01, 0x02, 0x03}, nil)
	p.Hook(func(offset int32, find, replace []byte) error {
		calls = append(calls, fmt.Sprintf("%d % x -> % x", offset, find, replace))
		return nil
	})

	_, err := p.Apply("fails", func(op *Op) error {
		if _, err := op.Replace(1, 1, []byte{0x11}); err != nil {
			return err
		}
		return errors.New("oops")
	})
	assert.EqualError(t, err, "fails: oops")
	assert.Equal(t, []byte{0x00, 0x01, 0x02, 0x03}, p.GetBytes())
	assert.Equal(t, []string{"1 01 -> 11", "1 11 -> 01"}, calls)

	// nothing is reported for a revert which does not match
	calls = nil
	err = p.Revert([]Record{{Offset: 0, Original: []byte{0xee}, New: []byte{0x11}}, {Offset: 2, Original: []byte{0x22}, New: []byte{0x02}}})
	assert.True(t, errors.Is(err, ErrRevertMismatch))
	assert.Empty(t, calls)
	assert.Equal(t, []byte{0x00, 0x01, 0x02, 0x03}, p.GetBytes())

	// a hook refusing a restore leaves the image as it was
	recs, err := p.Apply("ok", func(op *Op) error {
		if _, err := op.Replace(0, 1, []byte{0x10}); err != nil {
			return err
		}
		_, err := op.Replace(3, 1, []byte{0x13})
		return err
	})
	require.NoError(t, err)
	p.Hook(func(offset int32, find, replace []byte) error {
		if offset == 0 {
			return errors.New("denied")
		}
		return nil
	})
	assert.EqualError(t, p.Revert(recs), "hook returned error: denied")
	assert.Equal(t, []byte{0x10, 0x01, 0x02, 0x13}, p.GetBytes())
	assert.Len(t, p.Records(), 2)
}

func TestAssemble(t *testing.T) {
	_, err := NewPatcher(nil, nil).Assemble("nop")
	assert.True(t, errors.Is(err, ErrAssembly))

	_, err = NewPatcher(nil, fixtures).Assemble("bogus")
	var ae *AssemblyError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "bogus", ae.Text)
	assert.EqualError(t, ae.Err, `unknown instruction "bogus"`)

	b, err := NewPatcher(nil, fixtures).Assemble("nop")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xbf}, b)
}
