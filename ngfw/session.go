package ngfw

import (
	"errors"
	"fmt"

	"github.com/ngfw-tools/ngpatch/fwimage"
	"github.com/ngfw-tools/ngpatch/patchlib"
)

// Session applies a list of patches to a single image.
type Session struct {
	Model string

	// KeepGoing skips patches which fail instead of aborting the session.
	KeepGoing bool

	// Tool and Input are copied into the report.
	Tool  string
	Input string
}

// Run applies sel to buf in order, modifying it in place.
//
// If a patch fails and KeepGoing is false, the patches applied so far are
// reverted, leaving buf unchanged, and the error is returned. Otherwise, the
// failed patch is skipped, the remaining ones are applied, and the failures are
// returned together with the report.
func (s *Session) Run(buf []byte, sel []Selection) (*patchlib.Report, error) {
	if err := CheckModel(s.Model); err != nil {
		return nil, err
	}

	before := fwimage.Sum(buf)
	rpt := &patchlib.Report{
		Tool:   s.Tool,
		Model:  s.Model,
		Input:  s.Input,
		Before: &before,
	}

	p := NewPatcher(buf)
	var errs []error
	for _, x := range sel {
		Log("applying %s\n", x)
		recs, err := x.Patch.Apply(p, s.Model, x.Args...)
		if err != nil {
			Log("  failed: %v\n", err)
			if !s.KeepGoing {
				if rerr := p.Revert(p.Records()); rerr != nil {
					return nil, fmt.Errorf("%w (revert: %v)", err, rerr)
				}
				return nil, err
			}
			rpt.Failed = append(rpt.Failed, x.Patch.Name)
			errs = append(errs, err)
			continue
		}
		for _, r := range recs {
			Log("  %s\n", r)
		}
		rpt.Applied = append(rpt.Applied, x.Patch.Name)
	}

	after := fwimage.Sum(buf)
	rpt.After = &after
	rpt.Records = p.Records()
	if rpt.Records == nil {
		rpt.Records = []patchlib.Record{}
	}
	return rpt, errors.Join(errs...)
}

// All selects every patch with its default arguments.
func All() []Selection {
	var sel []Selection
	for _, pt := range Patches() {
		sel = append(sel, Selection{Patch: pt})
	}
	return sel
}
