package patchlib

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"

	"github.com/ianlancetaylor/demangle"
)

// Symbol is a function or object from the symbol tables of an ELF image.
type Symbol struct {
	Name      string      `json:"name"`
	Demangled string      `json:"demangled,omitempty"`
	Offset    int32       `json:"offset"` // in the file, not the virtual address
	Size      uint32      `json:"size,omitempty"`
	Type      elf.SymType `json:"-"`
	Dynamic   bool        `json:"dynamic,omitempty"`
}

// IsELF returns true if buf starts with the ELF magic.
func IsELF(buf []byte) bool {
	return bytes.HasPrefix(buf, []byte(elf.ELFMAG))
}

// ResolveSym gets the file offset of a symbol by its mangled or demangled
// name. The symbols are loaded on first use.
func (p *Patcher) ResolveSym(name string) (int32, error) {
	syms, err := p.ExtractSyms()
	if err != nil {
		return 0, fmt.Errorf("ResolveSym(%q): %w", name, err)
	}
	for _, s := range syms {
		if s.Name == name || (s.Demangled != "" && s.Demangled == name) {
			return s.Offset, nil
		}
	}
	return 0, fmt.Errorf("ResolveSym(%q): could not find symbol", name)
}

// ExtractSyms returns the functions and objects from the static and dynamic
// symbol tables of the image, which must be a 32-bit ARM ELF.
func (p *Patcher) ExtractSyms() ([]*Symbol, error) {
	if !p.symsLoaded {
		syms, err := decsyms(p.buf)
		if err != nil {
			return nil, err
		}
		p.syms, p.symsLoaded = syms, true
	}
	return p.syms, nil
}

func decsyms(buf []byte) ([]*Symbol, error) {
	if !IsELF(buf) {
		return nil, errors.New("not an elf image")
	}

	e, err := elf.NewFile(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("read elf: %w", err)
	}
	defer e.Close()

	if e.Class != elf.ELFCLASS32 || e.Machine != elf.EM_ARM {
		return nil, errors.New("not a 32-bit arm elf")
	}

	var syms []*Symbol
	seen := map[string]bool{}
	for _, tbl := range []struct {
		dyn bool
		fn  func() ([]elf.Symbol, error)
	}{{false, e.Symbols}, {true, e.DynamicSymbols}} {
		esyms, err := tbl.fn()
		if errors.Is(err, elf.ErrNoSymbols) {
			continue
		} else if err != nil {
			return nil, fmt.Errorf("read symbols: %w", err)
		}
		for _, esym := range esyms {
			typ := elf.ST_TYPE(esym.Info)
			if esym.Name == "" || (typ != elf.STT_FUNC && typ != elf.STT_OBJECT) || esym.Section == elf.SHN_UNDEF {
				continue
			}
			if seen[esym.Name] {
				continue
			}
			// for functions, bit 0 of the value is the thumb bit
			off, ok := vaddrOffset(e, uint32(esym.Value)&^1)
			if !ok {
				continue
			}
			d, err := demangle.ToString(esym.Name)
			if err != nil {
				d = ""
			}
			seen[esym.Name] = true
			syms = append(syms, &Symbol{
				Name:      esym.Name,
				Demangled: d,
				Offset:    off,
				Size:      uint32(esym.Size),
				Type:      typ,
				Dynamic:   tbl.dyn,
			})
		}
	}
	if len(syms) == 0 {
		return nil, errors.New("no symbols in elf")
	}
	return syms, nil
}

// vaddrOffset maps a virtual address to a file offset using the loadable
// segments.
func vaddrOffset(e *elf.File, addr uint32) (int32, bool) {
	for _, prog := range e.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if uint64(addr) >= prog.Vaddr && uint64(addr) < prog.Vaddr+prog.Filesz {
			return int32(uint64(addr) - prog.Vaddr + prog.Off), true
		}
	}
	return 0, false
}
