package patchlib

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels for the error kinds returned by the Patcher. The typed errors below
// match them with errors.Is.
var (
	ErrPatternNotFound    = errors.New("pattern not found")
	ErrAssembly           = errors.New("assembly failed")
	ErrSizeMismatch       = errors.New("size mismatch")
	ErrUnsupportedVariant = errors.New("unsupported variant")

	// programmer errors
	ErrInvalidSearch = errors.New("invalid search")
	ErrOutOfRange    = errors.New("range outside image")

	ErrRevertMismatch = errors.New("image does not contain the patched bytes")
)

// PatternNotFoundError is returned when a signature does not occur in the
// searched range.
type PatternNotFoundError struct {
	Op        string
	Signature Signature
	Start     int32
	End       int32
}

func (e *PatternNotFoundError) Error() string {
	return fmt.Sprintf("%spattern not found: [%s] in %#x-%#x", opPrefix(e.Op), e.Signature, e.Start, e.End)
}

func (e *PatternNotFoundError) Is(target error) bool {
	return target == ErrPatternNotFound
}

// AssemblyError is returned when assembly text cannot be encoded.
type AssemblyError struct {
	Op   string
	Text string
	Err  error
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("%scould not assemble %q: %v", opPrefix(e.Op), oneLine(e.Text), e.Err)
}

func (e *AssemblyError) Is(target error) bool {
	return target == ErrAssembly
}

func (e *AssemblyError) Unwrap() error {
	return e.Err
}

// SizeMismatchError is returned when replacement bytes would not exactly cover
// the range they replace. It is always returned before anything is written.
type SizeMismatchError struct {
	Op       string
	Offset   int32
	Original int
	New      int
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("%ssize mismatch at %#x: replacing %d bytes with %d", opPrefix(e.Op), e.Offset, e.Original, e.New)
}

func (e *SizeMismatchError) Is(target error) bool {
	return target == ErrSizeMismatch
}

// UnsupportedVariantError is returned when a variant-specific constant has no
// entry for the requested variant.
type UnsupportedVariantError struct {
	Op      string
	Variant string
	Known   []string
}

func (e *UnsupportedVariantError) Error() string {
	return fmt.Sprintf("%sunsupported variant %q (supported: %s)", opPrefix(e.Op), e.Variant, strings.Join(e.Known, ", "))
}

func (e *UnsupportedVariantError) Is(target error) bool {
	return target == ErrUnsupportedVariant
}

// withOp returns err with the operation name. A typed error returned directly
// gets a copy with its Op set, anything else is prefixed.
func withOp(op string, err error) error {
	if err == nil {
		return nil
	}
	switch e := err.(type) {
	case *PatternNotFoundError:
		if e.Op != "" {
			return err
		}
		c := *e
		c.Op = op
		return &c
	case *AssemblyError:
		if e.Op != "" {
			return err
		}
		c := *e
		c.Op = op
		return &c
	case *SizeMismatchError:
		if e.Op != "" {
			return err
		}
		c := *e
		c.Op = op
		return &c
	case *UnsupportedVariantError:
		if e.Op != "" {
			return err
		}
		c := *e
		c.Op = op
		return &c
	}
	return fmt.Errorf("%s: %w", op, err)
}

func opPrefix(op string) string {
	if op == "" {
		return ""
	}
	return op + ": "
}

func oneLine(s string) string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "; ")
}
