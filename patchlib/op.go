package patchlib

import (
	"bytes"
	"fmt"
)

// Op is a single named patching operation in progress. It is only valid inside
// the function passed to Patcher.Apply.
type Op struct {
	p    *Patcher
	name string
	recs []Record
}

// Apply runs fn as the operation name. If fn returns an error, every change it
// made is undone and the returned error carries the operation name. On success,
// the records of the changes made by fn are returned.
func (p *Patcher) Apply(name string, fn func(op *Op) error) ([]Record, error) {
	if p.active != nil {
		return nil, fmt.Errorf("%s: operation %s is still running", name, p.active.name)
	}

	op := &Op{p: p, name: name}
	n := len(p.recs)

	p.active = op
	defer func() { p.active = nil }()

	if err := fn(op); err != nil {
		for i := len(op.recs) - 1; i >= 0; i-- {
			p.restore(op.recs[i])
		}
		p.recs = p.recs[:n]
		return nil, withOp(name, err)
	}
	return op.recs, nil
}

// Name returns the name of the operation.
func (o *Op) Name() string {
	return o.name
}

// Bytes returns the current image. It must not be modified directly.
func (o *Op) Bytes() []byte {
	return o.p.buf
}

// Find returns the offset of the first match of sig at or after start.
func (o *Op) Find(sig Signature, start int32) (int32, error) {
	return Find(o.p.buf, sig, start)
}

// FindHex is like Find, but parses the signature from hex first.
func (o *Op) FindHex(pattern string, start int32) (int32, error) {
	sig, err := ParseSignature(pattern)
	if err != nil {
		return 0, err
	}
	return Find(o.p.buf, sig, start)
}

// FindAsm assembles src and returns the offset of its first match at or after
// start, along with the length of the assembled code.
func (o *Op) FindAsm(src string, start int32) (int32, int, error) {
	b, err := o.p.Assemble(src)
	if err != nil {
		return 0, 0, err
	}
	off, err := Find(o.p.buf, Literal(b), start)
	if err != nil {
		return 0, 0, err
	}
	return off, len(b), nil
}

// Asm assembles src.
func (o *Op) Asm(src string) ([]byte, error) {
	return o.p.Assemble(src)
}

// Expect checks that sig matches at offset.
func (o *Op) Expect(offset int32, sig Signature) error {
	if err := checkRange(o.p.buf, offset, sig.Len()); err != nil {
		return err
	}
	if !sig.MatchAt(o.p.buf, int(offset)) {
		return &PatternNotFoundError{Signature: sig, Start: offset, End: offset + int32(sig.Len())}
	}
	return nil
}

// Replace overwrites the n bytes at offset with new, which must be exactly n
// bytes long.
func (o *Op) Replace(offset int32, n int, new []byte) (Record, error) {
	return o.p.write(offset, n, new)
}

// ReplaceAsm overwrites the n bytes at offset with the assembled src.
func (o *Op) ReplaceAsm(offset int32, n int, src string) (Record, error) {
	b, err := o.p.Assemble(src)
	if err != nil {
		return Record{}, err
	}
	return o.p.write(offset, n, b)
}

// ReplaceNOP overwrites the n bytes at offset with NOPs.
func (o *Op) ReplaceNOP(offset int32, n int) (Record, error) {
	if f, ok := o.p.asm.(NOPFiller); ok {
		b, err := f.NOP(n)
		if err != nil {
			return Record{}, fmt.Errorf("%w at %#x: %v", ErrSizeMismatch, offset, err)
		}
		return o.p.write(offset, n, b)
	}
	nop, err := o.p.Assemble("nop")
	if err != nil {
		return Record{}, err
	}
	var wide []byte
	if len(nop) == 2 {
		if b, err := o.p.Assemble("nop.w"); err == nil && len(b) == 4 {
			wide = b
		}
	}
	if n <= 0 || n%len(nop) != 0 {
		return Record{}, &SizeMismatchError{Offset: offset, Original: n, New: len(nop) * (n/len(nop) + 1)}
	}
	var buf bytes.Buffer
	for m := n; m > 0; {
		if wide != nil && m >= 4 {
			buf.Write(wide)
			m -= 4
			continue
		}
		buf.Write(nop)
		m -= len(nop)
	}
	return o.p.write(offset, n, buf.Bytes())
}

// Branch overwrites the n bytes at origin with an unconditional branch to dest.
// If the short form does not fill n bytes, the wide form is tried.
func (o *Op) Branch(origin, dest int32, n int) (Record, error) {
	rel := dest - origin
	b, err := o.p.Assemble(fmt.Sprintf("b #%d", rel))
	if err != nil {
		return Record{}, err
	}
	if len(b) < n {
		if w, err := o.p.Assemble(fmt.Sprintf("b.w #%d", rel)); err == nil {
			b = w
		}
	}
	return o.p.write(origin, n, b)
}
