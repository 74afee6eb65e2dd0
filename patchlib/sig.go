package patchlib

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

// Signature is a byte pattern with optional wildcard positions.
type Signature struct {
	Bytes []byte
	Mask  []bool // true for wildcard positions, nil if there are none
}

// Literal returns a signature matching b exactly.
func Literal(b []byte) Signature {
	return Signature{Bytes: append([]byte(nil), b...)}
}

// ParseSignature parses a hex pattern like "9c f8 ?? c0" or "9cf8??c0". A
// wildcard is written as ?? (or a lone ? between spaces).
func ParseSignature(s string) (Signature, error) {
	var sig Signature
	var wild bool
	add := func(b byte, w bool) {
		sig.Bytes = append(sig.Bytes, b)
		sig.Mask = append(sig.Mask, w)
		wild = wild || w
	}
	for _, f := range strings.Fields(s) {
		if f == "?" {
			add(0, true)
			continue
		}
		if len(f)%2 != 0 {
			return Signature{}, fmt.Errorf("parse signature %q: odd number of digits in %q", s, f)
		}
		for i := 0; i < len(f); i += 2 {
			if tok := f[i : i+2]; tok == "??" {
				add(0, true)
			} else if b, err := hex.DecodeString(tok); err != nil {
				return Signature{}, fmt.Errorf("parse signature %q: invalid byte %q", s, tok)
			} else {
				add(b[0], false)
			}
		}
	}
	if len(sig.Bytes) == 0 {
		return Signature{}, fmt.Errorf("parse signature %q: %w: empty signature", s, ErrInvalidSearch)
	}
	if !wild {
		sig.Mask = nil
	}
	return sig, nil
}

// MustParseSignature is like ParseSignature, but panics on error.
func MustParseSignature(s string) Signature {
	sig, err := ParseSignature(s)
	if err != nil {
		panic(err)
	}
	return sig
}

// Len returns the length of the signature in bytes.
func (s Signature) Len() int {
	return len(s.Bytes)
}

// HasWildcards returns true if any position of s is a wildcard.
func (s Signature) HasWildcards() bool {
	for _, w := range s.Mask {
		if w {
			return true
		}
	}
	return false
}

// MatchAt returns true if s matches buf at off.
func (s Signature) MatchAt(buf []byte, off int) bool {
	if off < 0 || off+len(s.Bytes) > len(buf) {
		return false
	}
	for i, b := range s.Bytes {
		if s.Mask != nil && s.Mask[i] {
			continue
		}
		if buf[off+i] != b {
			return false
		}
	}
	return true
}

func (s Signature) String() string {
	var sb strings.Builder
	for i, b := range s.Bytes {
		if i != 0 {
			sb.WriteByte(' ')
		}
		if s.Mask != nil && s.Mask[i] {
			sb.WriteString("??")
		} else {
			fmt.Fprintf(&sb, "%02x", b)
		}
	}
	return sb.String()
}

// Find returns the offset of the first match of sig at or after start. If there
// is none, a *PatternNotFoundError is returned. An empty signature or a start
// outside of buf is an ErrInvalidSearch.
func Find(buf []byte, sig Signature, start int32) (int32, error) {
	if err := checkSearch(buf, sig, start); err != nil {
		return 0, err
	}
	if i := index(buf, sig, int(start)); i >= 0 {
		return int32(i), nil
	}
	return 0, &PatternNotFoundError{Signature: sig, Start: start, End: int32(len(buf))}
}

// FindAll returns the offsets of every match of sig at or after start, in
// increasing order. Matches may overlap.
func FindAll(buf []byte, sig Signature, start int32) ([]int32, error) {
	if err := checkSearch(buf, sig, start); err != nil {
		return nil, err
	}
	var offs []int32
	for i := int(start); ; i++ {
		if i = index(buf, sig, i); i < 0 {
			break
		}
		offs = append(offs, int32(i))
	}
	return offs, nil
}

func checkSearch(buf []byte, sig Signature, start int32) error {
	if sig.Len() == 0 {
		return fmt.Errorf("%w: empty signature", ErrInvalidSearch)
	}
	if sig.Mask != nil && len(sig.Mask) != len(sig.Bytes) {
		return fmt.Errorf("%w: signature mask length %d does not match %d bytes", ErrInvalidSearch, len(sig.Mask), len(sig.Bytes))
	}
	if start < 0 || int(start) > len(buf) {
		return fmt.Errorf("%w: start %#x outside image of %#x bytes", ErrInvalidSearch, start, len(buf))
	}
	return nil
}

func index(buf []byte, sig Signature, start int) int {
	if !sig.HasWildcards() {
		if i := bytes.Index(buf[start:], sig.Bytes); i >= 0 {
			return start + i
		}
		return -1
	}

	// anchor the scan on the first concrete byte
	a := -1
	for i := range sig.Bytes {
		if !sig.Mask[i] {
			a = i
			break
		}
	}
	if a < 0 {
		if start+sig.Len() <= len(buf) {
			return start
		}
		return -1
	}
	for i := start; i+sig.Len() <= len(buf); i++ {
		j := bytes.IndexByte(buf[i+a:len(buf)-sig.Len()+a+1], sig.Bytes[a])
		if j < 0 {
			return -1
		}
		if i += j; sig.MatchAt(buf, i) {
			return i
		}
	}
	return -1
}
