// Package patchlib locates code in firmware images by signature and patches it
// in place, recording every change so it can be reverted.
package patchlib

import (
	"bytes"
	"errors"
	"fmt"
)

// Assembler turns assembly text into machine code. Immediate branch targets
// are relative to the start of the text.
type Assembler interface {
	Assemble(src string) ([]byte, error)
}

// NOPFiller is implemented by Assemblers which can produce NOP padding of an
// exact length directly.
type NOPFiller interface {
	NOP(n int) ([]byte, error)
}

// Patcher applies patches to a byte array. The cursor-based functions work
// starting from cur.
type Patcher struct {
	buf  []byte
	cur  int32
	hook func(offset int32, find, replace []byte) error
	asm  Assembler

	recs   []Record
	active *Op

	symsLoaded bool // for lazy-loading on first use
	syms       []*Symbol
}

// NewPatcher creates a new Patcher for in, which is modified in place. The
// assembler may be nil if no assembly is used.
func NewPatcher(in []byte, asm Assembler) *Patcher {
	return &Patcher{buf: in, asm: asm}
}

// GetBytes returns the current content of the Patcher.
func (p *Patcher) GetBytes() []byte {
	return p.buf
}

// Records returns every change made so far, in order.
func (p *Patcher) Records() []Record {
	return append([]Record(nil), p.recs...)
}

// ResetBaseAddress moves cur to 0.
func (p *Patcher) ResetBaseAddress() {
	p.cur = 0
}

// GetCur gets the current base address.
func (p *Patcher) GetCur() int32 {
	return p.cur
}

// Hook sets a hook to be called right before every change. If it returns an
// error, it will be passed on and nothing is written. If nil (the default), the
// hook will be removed. The find and replace arguments MUST NOT be modified by
// the hook. Restores made while rolling back a failed operation are reported
// too, but are always written.
func (p *Patcher) Hook(fn func(offset int32, find, replace []byte) error) {
	p.hook = fn
}

// BaseAddress moves cur to an offset. The offset starts at 0.
func (p *Patcher) BaseAddress(offset int32) error {
	if offset < 0 {
		return errors.New("BaseAddress: offset less than 0")
	}
	if offset >= int32(len(p.buf)) {
		return errors.New("BaseAddress: offset greater than length of buf")
	}
	p.cur = offset
	return nil
}

// FindBaseAddress moves cur to the first match of sig at or after cur.
func (p *Patcher) FindBaseAddress(sig Signature) error {
	i, err := Find(p.buf, sig, p.cur)
	if err != nil {
		return fmt.Errorf("FindBaseAddress: %w", err)
	}
	p.cur = i
	return nil
}

// FindBaseAddressAsm moves cur to the first match of the assembled src at or
// after cur.
func (p *Patcher) FindBaseAddressAsm(src string) error {
	b, err := p.Assemble(src)
	if err != nil {
		return fmt.Errorf("FindBaseAddressAsm: %w", err)
	}
	if err := p.FindBaseAddress(Literal(b)); err != nil {
		return fmt.Errorf("FindBaseAddressAsm: %w", err)
	}
	return nil
}

// ReplaceBytes replaces find, which must be at cur+offset, with replace of
// the same length.
func (p *Patcher) ReplaceBytes(offset int32, find, replace []byte) error {
	if err := checkRange(p.buf, p.cur+offset, len(find)); err != nil {
		return fmt.Errorf("ReplaceBytes: %w", err)
	}
	if !bytes.HasPrefix(p.buf[p.cur+offset:], find) {
		return fmt.Errorf("ReplaceBytes: could not find specified bytes at offset %#x (cur %#x + %#x): %w",
			p.cur+offset, p.cur, offset, &PatternNotFoundError{Signature: Literal(find), Start: p.cur + offset, End: p.cur + offset + int32(len(find))})
	}
	if _, err := p.write(p.cur+offset, len(find), replace); err != nil {
		return fmt.Errorf("ReplaceBytes: %w", err)
	}
	return nil
}

// Assemble assembles src with the Patcher's assembler.
func (p *Patcher) Assemble(src string) ([]byte, error) {
	if p.asm == nil {
		return nil, &AssemblyError{Text: src, Err: errors.New("no assembler configured")}
	}
	b, err := p.asm.Assemble(src)
	if err != nil {
		return nil, &AssemblyError{Text: src, Err: err}
	}
	return b, nil
}

// Revert restores the original bytes of recs (see Revert). The hook is only
// called once every record is known to be revertible.
func (p *Patcher) Revert(recs []Record) error {
	if p.hook == nil {
		if err := Revert(p.buf, recs); err != nil {
			return err
		}
	} else {
		if err := Revert(append([]byte(nil), p.buf...), recs); err != nil {
			return err
		}
		for i := len(recs) - 1; i >= 0; i-- {
			r := recs[i]
			if err := p.hook(r.Offset, r.New, r.Original); err != nil {
				redo(p.buf, recs[i+1:])
				return fmt.Errorf("hook returned error: %w", err)
			}
			copy(p.buf[r.Offset:], r.Original)
		}
	}
	// forget them if they were the latest changes
	for i := len(recs) - 1; i >= 0 && len(p.recs) != 0; i-- {
		if !recs[i].equal(p.recs[len(p.recs)-1]) {
			break
		}
		p.recs = p.recs[:len(p.recs)-1]
	}
	return nil
}

// restore writes back the original bytes of a change made by the active
// operation.
func (p *Patcher) restore(r Record) {
	if p.hook != nil {
		_ = p.hook(r.Offset, r.New, r.Original)
	}
	copy(p.buf[r.Offset:], r.Original)
}

// write replaces the n bytes at offset with new, after checking the range and
// the length. Every change is made here; only restores bypass it.
func (p *Patcher) write(offset int32, n int, new []byte) (Record, error) {
	if err := checkRange(p.buf, offset, n); err != nil {
		return Record{}, err
	}
	if len(new) != n {
		return Record{}, &SizeMismatchError{Offset: offset, Original: n, New: len(new)}
	}
	r := Record{
		Offset:   offset,
		Original: append([]byte(nil), p.buf[offset:offset+int32(n)]...),
		New:      append([]byte(nil), new...),
	}
	if p.active != nil {
		r.Name = p.active.name
	}
	if p.hook != nil {
		if err := p.hook(offset, r.Original, r.New); err != nil {
			return Record{}, fmt.Errorf("hook returned error: %w", err)
		}
	}
	copy(p.buf[offset:], r.New)
	p.recs = append(p.recs, r)
	if p.active != nil {
		p.active.recs = append(p.active.recs, r)
	}
	return r, nil
}
