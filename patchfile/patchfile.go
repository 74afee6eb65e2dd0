// Package patchfile provides a standard interface to read patchsets from files.
package patchfile

import (
	"errors"
	"fmt"
	"io/ioutil"
	"sort"

	"github.com/ngfw-tools/ngpatch/patchlib"
)

// Log is used to log debugging messages.
var Log = func(format string, a ...interface{}) {}

// Options controls how a PatchSet is applied.
type Options struct {
	// Model selects the variant-specific values of the patches.
	Model string
	// KeepGoing skips patches which fail instead of stopping. Otherwise, the
	// patches applied so far are reverted when one fails.
	KeepGoing bool
	// Result, if not nil, receives the outcome of each patch.
	Result *Result
}

// Result lists the patches which were applied and which failed, in order.
// When a failure aborts the PatchSet, Applied is empty since everything was
// reverted.
type Result struct {
	Applied []string
	Failed  []string
}

// PatchSet represents a set of patches which can be applied to a Patcher.
type PatchSet interface {
	// Validate validates the PatchSet.
	Validate() error
	// ApplyTo applies a PatchSet to a Patcher.
	ApplyTo(*patchlib.Patcher, Options) error
	// SetEnabled sets the Enabled state of a Patch in a PatchSet.
	SetEnabled(string, bool) error
}

var formats = map[string]func([]byte) (PatchSet, error){}

// RegisterFormat registers a format.
func RegisterFormat(name string, f func([]byte) (PatchSet, error)) {
	if _, ok := formats[name]; ok {
		panic("attempt to register duplicate format " + name)
	}
	formats[name] = f
}

// GetFormat gets a format.
func GetFormat(name string) (func([]byte) (PatchSet, error), bool) {
	f, ok := formats[name]
	return f, ok
}

// GetFormats gets all registered formats.
func GetFormats() []string {
	f := []string{}
	for n := range formats {
		f = append(f, n)
	}
	sort.Strings(f)
	return f
}

// ReadFromFile reads a patchset from a file (but does not validate it).
func ReadFromFile(format, filename string) (PatchSet, error) {
	f, ok := GetFormat(format)
	if !ok {
		return nil, fmt.Errorf("no format called '%s'", format)
	}

	buf, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not open patch file: %w", err)
	}

	ps, err := f(buf)
	if err != nil {
		return nil, fmt.Errorf("could not parse patch file: %w", err)
	}

	return ps, nil
}

// Step is a single named patch of a PatchSet.
type Step struct {
	Name  string
	Apply func(op *patchlib.Op) error
}

// Run applies steps to pt in order, with the failure handling selected by opt.
// It is meant to be used by implementations of PatchSet.ApplyTo.
func Run(pt *patchlib.Patcher, opt Options, steps []Step) error {
	res := opt.Result
	if res == nil {
		res = &Result{}
	}
	*res = Result{}

	var applied [][]patchlib.Record
	var errs []error
	for i, s := range steps {
		Log("[%d/%d] applying %s\n", i+1, len(steps), s.Name)
		recs, err := pt.Apply(s.Name, s.Apply)
		if err != nil {
			Log("  error: %v\n", err)
			res.Failed = append(res.Failed, s.Name)
			if !opt.KeepGoing {
				res.Applied = nil
				for j := len(applied) - 1; j >= 0; j-- {
					if rerr := pt.Revert(applied[j]); rerr != nil {
						return fmt.Errorf("%w (revert: %v)", err, rerr)
					}
				}
				return err
			}
			errs = append(errs, err)
			continue
		}
		for _, r := range recs {
			Log("  %s\n", r)
		}
		applied = append(applied, recs)
		res.Applied = append(res.Applied, s.Name)
	}
	return errors.Join(errs...)
}
