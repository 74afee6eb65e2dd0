// Package report replays the changes recorded in a patch report.
package report

import (
	"bytes"

	"github.com/ngfw-tools/ngpatch/patchfile"
	"github.com/ngfw-tools/ngpatch/patchlib"
	"github.com/pkg/errors"
)

// PatchSet is a report with its records grouped by operation name. Every
// group is enabled by default.
type PatchSet struct {
	rpt     *patchlib.Report
	names   []string
	groups  map[string][]patchlib.Record
	enabled map[string]bool
}

// Parse parses a report (in any of the forms accepted by patchlib.ReadReport).
func Parse(buf []byte) (patchfile.PatchSet, error) {
	patchfile.Log("parsing report\n")
	rpt, err := patchlib.ReadReport(bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	ps := &PatchSet{
		rpt:     rpt,
		groups:  map[string][]patchlib.Record{},
		enabled: map[string]bool{},
	}
	for _, r := range rpt.Records {
		if _, ok := ps.groups[r.Name]; !ok {
			ps.names = append(ps.names, r.Name)
			ps.enabled[r.Name] = true
		}
		ps.groups[r.Name] = append(ps.groups[r.Name], r)
	}
	patchfile.Log("  %d records in %d groups\n", len(rpt.Records), len(ps.names))
	return ps, nil
}

// Report returns the parsed report.
func (ps *PatchSet) Report() *patchlib.Report {
	return ps.rpt
}

// Validate checks that the records of each group do not overlap.
func (ps *PatchSet) Validate() error {
	for _, n := range ps.names {
		recs := ps.groups[n]
		for i, a := range recs {
			if len(a.Original) != len(a.New) {
				return errors.Errorf("record %d of `%s` replaces %d bytes with %d", i+1, n, len(a.Original), len(a.New))
			}
			for _, b := range recs[:i] {
				if a.Offset < b.Offset+int32(len(b.New)) && b.Offset < a.Offset+int32(len(a.New)) {
					return errors.Errorf("records of `%s` overlap at %#x and %#x", n, b.Offset, a.Offset)
				}
			}
		}
	}
	return nil
}

// ApplyTo applies the enabled groups to pt. Every record's original bytes must
// be present at its offset.
func (ps *PatchSet) ApplyTo(pt *patchlib.Patcher, opt patchfile.Options) error {
	if err := ps.Validate(); err != nil {
		return errors.Wrap(err, "invalid report")
	}
	if ps.rpt.Model != "" && opt.Model != "" && ps.rpt.Model != opt.Model {
		patchfile.Log("warning: report is for %s, not %s\n", ps.rpt.Model, opt.Model)
	}
	if err := ps.rpt.Verify(pt.GetBytes(), false); err != nil {
		patchfile.Log("warning: %v\n", err)
	}

	var steps []patchfile.Step
	for _, n := range ps.names {
		if !ps.enabled[n] {
			patchfile.Log("skipping disabled group `%s`\n", n)
			continue
		}
		recs := ps.groups[n]
		steps = append(steps, patchfile.Step{
			Name: n,
			Apply: func(op *patchlib.Op) error {
				for _, r := range recs {
					if err := op.Expect(r.Offset, patchlib.Literal(r.Original)); err != nil {
						return err
					}
					if _, err := op.Replace(r.Offset, len(r.Original), r.New); err != nil {
						return err
					}
				}
				return nil
			},
		})
	}
	return patchfile.Run(pt, opt, steps)
}

// SetEnabled enables or disables a group of records.
func (ps *PatchSet) SetEnabled(name string, enabled bool) error {
	if _, ok := ps.groups[name]; !ok {
		if enabled {
			return errors.Errorf("could not set enabled state of '%s' to %t: no records with that name", name, enabled)
		}
		return nil
	}
	ps.enabled[name] = enabled
	return nil
}

func init() {
	patchfile.RegisterFormat("report", Parse)
}
