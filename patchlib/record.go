package patchlib

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Record describes a single change made to an image. Writing Original back at
// Offset reverts it.
type Record struct {
	Name     string
	Offset   int32
	Original []byte
	New      []byte
}

// recordHex is the serialized form of a Record.
type recordHex struct {
	Name     string `json:"operation_name" yaml:"operation_name"`
	Offset   string `json:"offset" yaml:"offset"`
	Original string `json:"original_bytes" yaml:"original_bytes"`
	New      string `json:"new_bytes" yaml:"new_bytes"`
}

func (r Record) encode() recordHex {
	return recordHex{
		Name:     r.Name,
		Offset:   fmt.Sprintf("%#x", r.Offset),
		Original: hex.EncodeToString(r.Original),
		New:      hex.EncodeToString(r.New),
	}
}

func (r *Record) fromHex(h recordHex) error {
	off, err := strconv.ParseInt(strings.TrimSpace(h.Offset), 0, 32)
	if err != nil {
		return fmt.Errorf("invalid offset %q: %w", h.Offset, err)
	}
	orig, err := hex.DecodeString(strings.ReplaceAll(h.Original, " ", ""))
	if err != nil {
		return fmt.Errorf("invalid original_bytes: %w", err)
	}
	nw, err := hex.DecodeString(strings.ReplaceAll(h.New, " ", ""))
	if err != nil {
		return fmt.Errorf("invalid new_bytes: %w", err)
	}
	if len(orig) != len(nw) {
		return &SizeMismatchError{Op: h.Name, Offset: int32(off), Original: len(orig), New: len(nw)}
	}
	*r = Record{Name: h.Name, Offset: int32(off), Original: orig, New: nw}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.encode())
}

// UnmarshalJSON implements json.Unmarshaler. Records are also accepted in the
// list form ["name", "0x1f2c", "2920", "00bf"].
func (r *Record) UnmarshalJSON(buf []byte) error {
	var h recordHex
	if bytes.HasPrefix(bytes.TrimSpace(buf), []byte("[")) {
		var l []string
		if err := json.Unmarshal(buf, &l); err != nil {
			return err
		}
		if len(l) != 4 {
			return fmt.Errorf("record list must have 4 items, got %d", len(l))
		}
		h = recordHex{l[0], l[1], l[2], l[3]}
	} else if err := json.Unmarshal(buf, &h); err != nil {
		return err
	}
	return r.fromHex(h)
}

// MarshalYAML implements yaml.Marshaler.
func (r Record) MarshalYAML() (interface{}, error) {
	return r.encode(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *Record) UnmarshalYAML(n *yaml.Node) error {
	var h recordHex
	if n.Kind == yaml.SequenceNode {
		var l []string
		if err := n.DecodeStrict(&l); err != nil {
			return err
		}
		if len(l) != 4 {
			return fmt.Errorf("line %d: record list must have 4 items, got %d", n.Line, len(l))
		}
		h = recordHex{l[0], l[1], l[2], l[3]}
	} else if err := n.DecodeStrict(&h); err != nil {
		return err
	}
	return r.fromHex(h)
}

func (r Record) equal(o Record) bool {
	return r.Name == o.Name && r.Offset == o.Offset && bytes.Equal(r.Original, o.Original) && bytes.Equal(r.New, o.New)
}

func (r Record) String() string {
	return fmt.Sprintf("%s: %#x: % x -> % x", r.Name, r.Offset, r.Original, r.New)
}

// Revert restores the original bytes of recs, latest first. Every record's new
// bytes must currently be present at its offset; if one isn't, the records
// restored so far are re-applied and buf is left as it was.
func Revert(buf []byte, recs []Record) error {
	for i := len(recs) - 1; i >= 0; i-- {
		r := recs[i]
		if err := checkRange(buf, r.Offset, len(r.New)); err != nil {
			redo(buf, recs[i+1:])
			return fmt.Errorf("revert: %s%w", opPrefix(r.Name), err)
		}
		if len(r.Original) != len(r.New) {
			redo(buf, recs[i+1:])
			return &SizeMismatchError{Op: r.Name, Offset: r.Offset, Original: len(r.Original), New: len(r.New)}
		}
		if cur := buf[r.Offset : r.Offset+int32(len(r.New))]; !bytes.Equal(cur, r.New) {
			redo(buf, recs[i+1:])
			return fmt.Errorf("revert: %s%w: at %#x, expected % x, found % x", opPrefix(r.Name), ErrRevertMismatch, r.Offset, r.New, cur)
		}
		copy(buf[r.Offset:], r.Original)
	}
	return nil
}

func redo(buf []byte, recs []Record) {
	for _, r := range recs {
		copy(buf[r.Offset:], r.New)
	}
}

// Diff returns records describing the differences between two images of the
// same size. Runs separated by a single unchanged byte are merged, up to 16
// bytes per record.
func Diff(name string, orig, patched []byte) ([]Record, error) {
	if len(orig) != len(patched) {
		return nil, fmt.Errorf("diff: %w: images are %d and %d bytes", ErrSizeMismatch, len(orig), len(patched))
	}
	var recs []Record
	extend := func(i int) {
		c := &recs[len(recs)-1]
		c.Original = append(c.Original, orig[i])
		c.New = append(c.New, patched[i])
	}
	for i := range orig {
		cur := len(recs) - 1
		switch {
		case orig[i] != patched[i]:
			if cur >= 0 && int(recs[cur].Offset)+len(recs[cur].Original) == i && len(recs[cur].Original) < 16 {
				extend(i)
			} else {
				recs = append(recs, Record{Name: name, Offset: int32(i), Original: []byte{orig[i]}, New: []byte{patched[i]}})
			}
		case cur >= 0 && i > 0 && i+1 < len(orig) && orig[i-1] != patched[i-1] && orig[i+1] != patched[i+1] && len(recs[cur].Original) < 15:
			// bridge a single unchanged byte
			extend(i)
		}
	}
	return recs, nil
}

func checkRange(buf []byte, offset int32, n int) error {
	if offset < 0 || n < 0 || int64(offset)+int64(n) > int64(len(buf)) {
		return fmt.Errorf("%w: %#x+%d (image is %#x bytes)", ErrOutOfRange, offset, n, len(buf))
	}
	return nil
}
