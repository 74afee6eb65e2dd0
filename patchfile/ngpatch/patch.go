package ngpatch

import (
	"encoding/hex"
	"fmt"
	"reflect"
	"strings"

	"github.com/ngfw-tools/ngpatch/patchlib"
	"gopkg.in/yaml.v3"
)

type Patch []*Instruction

type Instruction struct {
	Enabled      *Enabled      `yaml:"Enabled,omitempty"`
	Description  *Description  `yaml:"Description,omitempty"`
	PatchGroup   *PatchGroup   `yaml:"PatchGroup,omitempty"`
	BaseAddress  *BaseAddress  `yaml:"BaseAddress,omitempty,flow"`
	FindHex      *FindHex      `yaml:"FindHex,omitempty"`
	FindAsm      *FindAsm      `yaml:"FindAsm,omitempty"`
	ReplaceBytes *ReplaceBytes `yaml:"ReplaceBytes,omitempty"`
	ReplaceInstB *ReplaceInstB `yaml:"ReplaceInstB,omitempty"`
}

type InstructionNode map[string]yaml.Node

func (i InstructionNode) ToInstruction() (*Instruction, error) {
	if len(i) == 0 {
		return nil, fmt.Errorf("expected instruction, got nothing")
	}
	var found bool
	var n Instruction
	for name, node := range i {
		if found {
			return nil, fmt.Errorf("line %d: multiple types found in instruction, maybe you forgot a '-'", node.Line)
		} else if field := reflect.ValueOf(&n).Elem().FieldByName(name); !field.IsValid() {
			return nil, fmt.Errorf("line %d: unknown instruction type %#v", node.Line, name)
		} else if err := node.DecodeStrict(field.Addr().Interface()); err != nil {
			return nil, fmt.Errorf("line %d: error decoding instruction: %w", node.Line, err)
		} else {
			found = true
		}
	}
	return &n, nil
}

func (i Instruction) ToSingleInstruction() interface{} {
	iv := reflect.ValueOf(i)
	for i := 0; i < iv.NumField(); i++ {
		if !iv.Field(i).IsNil() {
			return iv.Field(i).Elem().Interface()
		}
	}
	return nil
}

// env is the state shared by the instructions of a single patch.
type env struct {
	pt      *patchlib.Patcher
	op      *patchlib.Op
	model   string
	anchors map[string]int32
	log     func(string, ...interface{})
}

type patchableInstruction interface {
	ApplyTo(*env) error
}

// FlexAbsOffset allows specifying an absolute offset with either a direct
// integer (absolute offset - Offset), string (anchor set by a previous Find -
// Anchor), or a field.
type FlexAbsOffset struct {
	Offset *int32  `yaml:"Offset,omitempty"` // can be specified in place of this object
	Anchor *string `yaml:"Anchor,omitempty"` // can be specified in place of this object
	Sym    *string `yaml:"Sym,omitempty"`
	Inline bool    `yaml:"-"`             // whether the Offset/Anchor was inline
	Rel    *int32  `yaml:"Rel,omitempty"` // optional, gets added to the absolute offset found
}

func (f *FlexAbsOffset) UnmarshalYAML(n *yaml.Node) error {
	*f = FlexAbsOffset{} // reset

	var offset int32
	if err := n.DecodeStrict(&offset); err == nil {
		f.Offset = &offset
		f.Inline = true
		return nil
	}

	var anchor string
	if err := n.DecodeStrict(&anchor); err == nil {
		f.Anchor = &anchor
		f.Inline = true
		return nil
	}

	type FlexAbsOffsetData FlexAbsOffset // keeps the struct tags without the methods
	var obj FlexAbsOffsetData
	if err := n.DecodeStrict(&obj); err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*f = FlexAbsOffset(obj)
	return nil
}

func (f FlexAbsOffset) MarshalYAML() (interface{}, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	if f.Inline {
		if f.Offset != nil {
			return f.Offset, nil
		}
		if f.Anchor != nil {
			return f.Anchor, nil
		}
	}
	type FlexAbsOffsetData FlexAbsOffset
	return FlexAbsOffsetData(f), nil
}

func (f FlexAbsOffset) Resolve(e *env) (int32, error) {
	if err := f.validate(); err != nil {
		return 0, err
	}
	var rel int32
	if f.Rel != nil {
		rel = *f.Rel
	}
	off, err := func() (int32, error) {
		switch {
		case f.Offset != nil:
			return *f.Offset, nil
		case f.Anchor != nil:
			if v, ok := e.anchors[*f.Anchor]; ok {
				return v, nil
			}
			return 0, fmt.Errorf("no anchor called %q (it must be set by an earlier Find in the same patch)", *f.Anchor)
		case f.Sym != nil:
			return e.pt.ResolveSym(*f.Sym)
		default:
			panic("this should have been caught by FlexAbsOffset.validate")
		}
	}()
	return off + rel, err
}

func (f FlexAbsOffset) validate() error {
	if f.Offset != nil && *f.Offset < 0 {
		return fmt.Errorf("offset must be positive, got %d", *f.Offset)
	}
	var c int
	for _, v := range []bool{f.Offset != nil, f.Anchor != nil, f.Sym != nil} {
		if v {
			c++
		}
	}
	if c == 0 {
		return fmt.Errorf("no offset method specified (%#v)", f)
	}
	if c > 1 {
		return fmt.Errorf("multiple offset methods specified (%#v)", f)
	}
	return nil
}

type Enabled bool
type Description string
type PatchGroup string

type BaseAddress FlexAbsOffset

func (b BaseAddress) ApplyTo(e *env) error {
	e.log("BaseAddress(%#v)", b)
	offset, err := FlexAbsOffset(b).Resolve(e)
	if err != nil {
		return fmt.Errorf("BaseAddress: resolve address (%#v): %w", b, err)
	}
	e.log("  BaseAddress(%#v)", offset)
	return e.pt.BaseAddress(offset)
}

func (b *BaseAddress) UnmarshalYAML(n *yaml.Node) error {
	return (*FlexAbsOffset)(b).UnmarshalYAML(n)
}

func (b BaseAddress) MarshalYAML() (interface{}, error) {
	return (FlexAbsOffset)(b).MarshalYAML()
}

// Find searches for code starting at Start (the current offset by default).
// The result is the offset of the match, moved past it if End is set, plus
// Rel. It is stored as Anchor if specified, or becomes the current offset
// otherwise.
type Find struct {
	Hex      *string           `yaml:"Hex,omitempty"`
	Asm      *string           `yaml:"Asm,omitempty"`
	Variants map[string]string `yaml:"Variants,omitempty"` // by model, Hex for FindHex and Asm for FindAsm
	Start    *FlexAbsOffset    `yaml:"Start,omitempty,flow"`
	Skip     int               `yaml:"Skip,omitempty"` // number of matches to skip
	End      bool              `yaml:"End,omitempty"`
	Rel      int32             `yaml:"Rel,omitempty"`
	Anchor   *string           `yaml:"Anchor,omitempty"`
}

type FindHex Find
type FindAsm Find

func (f *FindHex) UnmarshalYAML(n *yaml.Node) error {
	return (*Find)(f).unmarshal(n, func(s string) { *f = FindHex{Hex: &s} })
}

func (f *FindAsm) UnmarshalYAML(n *yaml.Node) error {
	return (*Find)(f).unmarshal(n, func(s string) { *f = FindAsm{Asm: &s} })
}

func (f *Find) unmarshal(n *yaml.Node, inline func(string)) error {
	var s string
	if n.Kind == yaml.ScalarNode {
		if err := n.DecodeStrict(&s); err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		inline(s)
		return nil
	}
	type FindData Find
	var obj FindData
	if err := n.DecodeStrict(&obj); err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*f = Find(obj)
	return nil
}

func (f Find) validate(what string, v *string) error {
	var c int
	if v != nil {
		c++
	}
	if f.Variants != nil {
		c++
	}
	if c != 1 {
		return fmt.Errorf("exactly one of %s or Variants must be specified", what)
	}
	if f.Skip < 0 {
		return fmt.Errorf("skip must not be negative")
	}
	return nil
}

func (f Find) apply(e *env, name string, v *string, sig func(string) (patchlib.Signature, error), seek func(string, patchlib.Signature) error) error {
	src := ""
	if v != nil {
		src = *v
	} else {
		var err error
		if src, err = patchlib.Variants[string](f.Variants).Get(e.model); err != nil {
			return err
		}
	}
	s, err := sig(src)
	if err != nil {
		return err
	}

	start := e.pt.GetCur()
	if f.Start != nil {
		if start, err = f.Start.Resolve(e); err != nil {
			return fmt.Errorf("%s: resolve start: %w", name, err)
		}
	}

	if f.Anchor == nil {
		return f.moveCur(e, s, start, func() error { return seek(src, s) })
	}

	off := start
	for i := 0; i <= f.Skip; i++ {
		if i != 0 {
			start = off + 1
		}
		if off, err = e.op.Find(s, start); err != nil {
			return err
		}
	}
	e.log("  match of [%s] from 0x%X: 0x%X", s, start, off)

	if f.End {
		off += int32(s.Len())
	}
	off += f.Rel

	e.log("  anchor %s = 0x%X", *f.Anchor, off)
	e.anchors[*f.Anchor] = off
	return nil
}

// moveCur finds s by moving the current offset with seek, starting at start.
func (f Find) moveCur(e *env, s patchlib.Signature, start int32, seek func() error) error {
	if err := e.pt.BaseAddress(start); err != nil {
		return err
	}
	for i := 0; i <= f.Skip; i++ {
		if i != 0 {
			next := e.pt.GetCur() + 1
			if next >= int32(len(e.op.Bytes())) {
				return &patchlib.PatternNotFoundError{Signature: s, Start: next, End: int32(len(e.op.Bytes()))}
			}
			if err := e.pt.BaseAddress(next); err != nil {
				return err
			}
		}
		if err := seek(); err != nil {
			return err
		}
	}
	off := e.pt.GetCur()
	e.log("  match of [%s] from 0x%X: 0x%X", s, start, off)

	if f.End {
		off += int32(s.Len())
	}
	off += f.Rel
	e.log("  BaseAddress(0x%X)", off)
	return e.pt.BaseAddress(off)
}

func (f FindHex) ApplyTo(e *env) error {
	e.log("FindHex(%#v)", f)
	return Find(f).apply(e, "FindHex", f.Hex, patchlib.ParseSignature, func(_ string, s patchlib.Signature) error {
		return e.pt.FindBaseAddress(s)
	})
}

func (f FindAsm) ApplyTo(e *env) error {
	e.log("FindAsm(%#v)", f)
	return Find(f).apply(e, "FindAsm", f.Asm, func(src string) (patchlib.Signature, error) {
		buf, err := e.op.Asm(src)
		if err != nil {
			return patchlib.Signature{}, err
		}
		return patchlib.Literal(buf), nil
	}, func(src string, _ patchlib.Signature) error {
		return e.pt.FindBaseAddressAsm(src)
	})
}

type ReplaceBytes struct {
	Base    *FlexAbsOffset `yaml:"Base,omitempty,flow"` // if specified, Offset is based on this rather than the current offset
	Offset  int32          `yaml:"Offset,omitempty"`
	Find    []byte         `yaml:"Find,omitempty"`
	Replace []byte         `yaml:"Replace,omitempty"`
	// generators
	FindH          *string `yaml:"FindH,omitempty"` // may contain ?? wildcards
	ReplaceH       *string `yaml:"ReplaceH,omitempty"`
	ReplaceAsm     *string `yaml:"ReplaceAsm,omitempty"`
	ReplaceInstNOP *bool   `yaml:"ReplaceInstNOP,omitempty,flow"` // if specified, must be true
	// special
	CheckOnly *bool `yaml:"CheckOnly,omitempty"` // if specified and true, it will only ensure the presence of the find string
}

func (r ReplaceBytes) validate() error {
	if r.FindH != nil && len(r.Find) != 0 {
		return fmt.Errorf("only one of Find or FindH may be specified")
	}
	if r.FindH == nil && len(r.Find) == 0 {
		return fmt.Errorf("one of Find or FindH must be specified")
	}
	if r.ReplaceInstNOP != nil && !*r.ReplaceInstNOP {
		return fmt.Errorf("ReplaceInstNOP must either be true or unspecified")
	}
	var c int
	for _, v := range []bool{len(r.Replace) != 0, r.ReplaceH != nil, r.ReplaceAsm != nil, r.ReplaceInstNOP != nil} {
		if v {
			c++
		}
	}
	if r.CheckOnly != nil && *r.CheckOnly {
		if c != 0 {
			return fmt.Errorf("CheckOnly is true, but a replacement is specified")
		}
		return nil
	}
	if c != 1 {
		return fmt.Errorf("exactly one of Replace, ReplaceH, ReplaceAsm or ReplaceInstNOP must be specified")
	}
	return nil
}

func (r ReplaceBytes) ApplyTo(e *env) error {
	e.log("ReplaceBytes(%#v)", r)
	if err := r.validate(); err != nil {
		return fmt.Errorf("ReplaceBytes: %w", err)
	}

	cur := e.pt.GetCur()
	if r.Base != nil {
		e.log("  Base.Resolve(%#v)", *r.Base)
		off, err := r.Base.Resolve(e)
		if err != nil {
			return fmt.Errorf("ReplaceBytes: expand Base=%#v: %w", *r.Base, err)
		}
		cur = off
		e.log("    -> Offset: 0x%X", off)
	}
	abs := cur + r.Offset

	if r.ReplaceH != nil {
		buf, err := hex.DecodeString(strings.ReplaceAll(*r.ReplaceH, " ", ""))
		if err != nil {
			return fmt.Errorf("ReplaceBytes: expand ReplaceH=%#v: %w", *r.ReplaceH, err)
		}
		r.Replace = buf
	}

	if r.Base == nil && r.FindH == nil && len(r.Replace) != 0 {
		e.log("  ReplaceBytes(%d, %x, %x) [cur:0x%X]", r.Offset, r.Find, r.Replace, cur)
		return e.pt.ReplaceBytes(r.Offset, r.Find, r.Replace)
	}

	find := patchlib.Literal(r.Find)
	if r.FindH != nil {
		sig, err := patchlib.ParseSignature(*r.FindH)
		if err != nil {
			return fmt.Errorf("ReplaceBytes: expand FindH=%#v: %w", *r.FindH, err)
		}
		find = sig
		e.log("  FindH -> [%s]", find)
	}

	e.log("  Expect(0x%X, [%s]) [cur:0x%X + off:%d]", abs, find, cur, r.Offset)
	if err := e.op.Expect(abs, find); err != nil {
		return fmt.Errorf("ReplaceBytes: %w", err)
	}

	switch {
	case r.CheckOnly != nil && *r.CheckOnly:
		return nil
	case r.ReplaceInstNOP != nil:
		e.log("  ReplaceNOP(0x%X, %d)", abs, find.Len())
		_, err := e.op.ReplaceNOP(abs, find.Len())
		return err
	case r.ReplaceAsm != nil:
		e.log("  ReplaceAsm(0x%X, %d, %#v)", abs, find.Len(), *r.ReplaceAsm)
		_, err := e.op.ReplaceAsm(abs, find.Len(), *r.ReplaceAsm)
		return err
	}
	e.log("  Replace(0x%X, %d, %x)", abs, find.Len(), r.Replace)
	_, err := e.op.Replace(abs, find.Len(), r.Replace)
	return err
}

// ReplaceInstB replaces the instruction at Offset (from the current offset)
// with an unconditional branch to Target.
type ReplaceInstB struct {
	Offset int32         `yaml:"Offset,omitempty"`
	Width  int           `yaml:"Width,omitempty"` // 2 (default) or 4
	Target FlexAbsOffset `yaml:"Target,flow"`
}

func (r ReplaceInstB) ApplyTo(e *env) error {
	e.log("ReplaceInstB(%#v)", r)
	width := r.Width
	if width == 0 {
		width = 2
	}
	if width != 2 && width != 4 {
		return fmt.Errorf("ReplaceInstB: Width must be 2 or 4, got %d", width)
	}
	dst, err := r.Target.Resolve(e)
	if err != nil {
		return fmt.Errorf("ReplaceInstB: resolve target: %w", err)
	}
	origin := e.pt.GetCur() + r.Offset
	e.log("  Branch(0x%X, 0x%X, %d)", origin, dst, width)
	_, err = e.op.Branch(origin, dst, width)
	return err
}
