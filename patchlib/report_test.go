package patchlib

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngfw-tools/ngpatch/fwimage"
)

func testReport() (*Report, []byte, []byte) {
	orig := scenarioImage()
	patched := scenarioImage()
	copy(patched[14:], []byte{0xaf, 0xf3, 0x00, 0x80})

	before, after := fwimage.Sum(orig), fwimage.Sum(patched)
	return &Report{
		Tool:    "ngpatch",
		Model:   "f2pro",
		Input:   "DRV.bin",
		Before:  &before,
		After:   &after,
		Applied: []string{"disable_motor_ntc"},
		Records: []Record{{Name: "disable_motor_ntc", Offset: 14, Original: []byte{0x0a, 0x43, 0x0b, 0x60}, New: []byte{0xaf, 0xf3, 0x00, 0x80}}},
	}, orig, patched
}

func TestReport(t *testing.T) {
	rpt, orig, patched := testReport()

	t.Run("JSON", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, rpt.WriteJSON(&buf))
		assert.Contains(t, buf.String(), `"offset": "0xe"`)

		got, err := ReadReport(&buf)
		require.NoError(t, err)
		if diff := cmp.Diff(rpt, got); diff != "" {
			t.Errorf("unexpected report (-want +got):\n%s", diff)
		}
	})
	t.Run("YAML", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, rpt.WriteYAML(&buf))
		assert.Contains(t, buf.String(), "operation_name: disable_motor_ntc")

		got, err := ReadReport(&buf)
		require.NoError(t, err)
		if diff := cmp.Diff(rpt, got); diff != "" {
			t.Errorf("unexpected report (-want +got):\n%s", diff)
		}
	})
	t.Run("List", func(t *testing.T) {
		got, err := ReadReport(strings.NewReader(`[["disable_motor_ntc", "0xe", "0a430b60", "aff30080"]]`))
		require.NoError(t, err)
		assert.Equal(t, rpt.Records, got.Records)
		assert.Nil(t, got.Before)

		got, err = ReadReport(strings.NewReader("- [disable_motor_ntc, \"0xe\", 0a430b60, aff30080]\n"))
		require.NoError(t, err)
		assert.Equal(t, rpt.Records, got.Records)
	})
	t.Run("Invalid", func(t *testing.T) {
		for _, in := range []string{``, `{"records": [], "bogus": 1}`, `[1, 2]`, "records: {}\n"} {
			_, err := ReadReport(strings.NewReader(in))
			assert.Error(t, err, "%q", in)
		}
	})
	t.Run("Verify", func(t *testing.T) {
		assert.NoError(t, rpt.Verify(orig, false))
		assert.NoError(t, rpt.Verify(patched, true))
		assert.Error(t, rpt.Verify(patched, false))
		assert.Error(t, rpt.Verify(orig, true))
		assert.NoError(t, (&Report{}).Verify(orig, true))

		buf := append([]byte(nil), patched...)
		require.NoError(t, Revert(buf, rpt.Records))
		assert.NoError(t, rpt.Verify(buf, false))
	})
}
