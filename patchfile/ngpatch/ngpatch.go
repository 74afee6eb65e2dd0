// Package ngpatch reads ngpatch style patches.
package ngpatch

import (
	"github.com/ngfw-tools/ngpatch/patchfile"
	"github.com/ngfw-tools/ngpatch/patchlib"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// PatchSet represents a series of patches, in the order they appear in the
// file.
type PatchSet struct {
	names   []string
	patches map[string]Patch
}

// Parse parses a PatchSet from a buf.
func Parse(buf []byte) (patchfile.PatchSet, error) {
	patchfile.Log("parsing patch file\n")

	var doc yaml.Node
	if err := yaml.Unmarshal(buf, &doc); err != nil {
		return nil, errors.Wrap(err, "error parsing patch file")
	}
	if len(doc.Content) == 0 {
		return nil, errors.New("error parsing patch file: empty file")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errors.Errorf("error parsing patch file: line %d: expected a map of patch names to instructions", root.Line)
	}

	ps := &PatchSet{patches: map[string]Patch{}}
	for i := 0; i+1 < len(root.Content); i += 2 {
		k, v := root.Content[i], root.Content[i+1]

		var name string
		if err := k.DecodeStrict(&name); err != nil {
			return nil, errors.Wrapf(err, "error parsing patch file: line %d", k.Line)
		}
		if _, ok := ps.patches[name]; ok {
			return nil, errors.Errorf("error parsing patch file: line %d: duplicate patch `%s`", k.Line, name)
		}
		patchfile.Log("  patch `%s`\n", name)

		var nodes []InstructionNode
		if err := v.DecodeStrict(&nodes); err != nil {
			return nil, errors.Wrapf(err, "error parsing patch file: patch `%s`", name)
		}
		p := make(Patch, len(nodes))
		for j, n := range nodes {
			inst, err := n.ToInstruction()
			if err != nil {
				return nil, errors.Wrapf(err, "error parsing patch file: patch `%s`: instruction %d", name, j+1)
			}
			p[j] = inst
		}
		ps.names = append(ps.names, name)
		ps.patches[name] = p
	}
	return ps, nil
}

// Names returns the names of the patches in order.
func (ps *PatchSet) Names() []string {
	return append([]string(nil), ps.names...)
}

// Validate validates the PatchSet.
func (ps *PatchSet) Validate() error {
	enabledPatchGroups := map[string]bool{}
	for _, n := range ps.names {
		p := ps.patches[n]

		ec := 0
		e := false
		pgc := 0
		pg := ""
		dc := 0

		for _, i := range p {
			switch v := i.ToSingleInstruction().(type) {
			case Enabled:
				ec++
				e = bool(v)
			case Description:
				dc++
			case PatchGroup:
				pgc++
				pg = string(v)
			case BaseAddress:
				if err := FlexAbsOffset(v).validate(); err != nil {
					return errors.Wrapf(err, "invalid BaseAddress in `%s`", n)
				}
			case FindHex:
				if v.Asm != nil {
					return errors.Errorf("Asm is not valid for FindHex in `%s` (use FindAsm)", n)
				}
				if err := Find(v).validate("Hex", v.Hex); err != nil {
					return errors.Wrapf(err, "invalid FindHex in `%s`", n)
				}
			case FindAsm:
				if v.Hex != nil {
					return errors.Errorf("Hex is not valid for FindAsm in `%s` (use FindHex)", n)
				}
				if err := Find(v).validate("Asm", v.Asm); err != nil {
					return errors.Wrapf(err, "invalid FindAsm in `%s`", n)
				}
			case ReplaceBytes:
				if err := v.validate(); err != nil {
					return errors.Wrapf(err, "invalid ReplaceBytes in `%s`", n)
				}
			case ReplaceInstB:
				if err := v.Target.validate(); err != nil {
					return errors.Wrapf(err, "invalid ReplaceInstB target in `%s`", n)
				}
			case nil:
				return errors.Errorf("internal error while validating `%s` (you should report this as a bug)", n)
			}
		}
		patchfile.Log("  `%s`: ec:%d, e:%t, pgc:%d, pg:%s, dc:%d\n", n, ec, e, pgc, pg, dc)
		if ec < 1 {
			return errors.Errorf("no `Enabled` option in `%s`", n)
		} else if ec > 1 {
			return errors.Errorf("more than one `Enabled` option in `%s`", n)
		}
		if dc > 1 {
			return errors.Errorf("more than one `Description` option in `%s` (use comments to describe individual lines)", n)
		}
		if pgc > 1 {
			return errors.Errorf("more than one `PatchGroup` option in `%s`", n)
		}
		if pg != "" && e {
			if _, ok := enabledPatchGroups[pg]; ok {
				return errors.Errorf("more than one patch enabled in PatchGroup `%s`", pg)
			}
			enabledPatchGroups[pg] = true
		}
	}
	patchfile.Log("  enabledPatchGroups:%v\n", enabledPatchGroups)
	return nil
}

// ApplyTo applies the enabled patches of a PatchSet to a Patcher.
func (ps *PatchSet) ApplyTo(pt *patchlib.Patcher, opt patchfile.Options) error {
	patchfile.Log("validating patch file\n")
	if err := ps.Validate(); err != nil {
		return errors.Wrap(err, "invalid patch file")
	}

	var steps []patchfile.Step
	for _, n := range ps.names {
		p := ps.patches[n]
		if !p.enabled() {
			patchfile.Log("skipping disabled patch `%s`\n", n)
			continue
		}
		steps = append(steps, patchfile.Step{
			Name: n,
			Apply: func(op *patchlib.Op) error {
				return p.apply(pt, op, opt.Model)
			},
		})
	}
	return patchfile.Run(pt, opt, steps)
}

func (p Patch) enabled() bool {
	for _, i := range p {
		if i.Enabled != nil {
			return bool(*i.Enabled)
		}
	}
	return false
}

func (p Patch) apply(pt *patchlib.Patcher, op *patchlib.Op, model string) error {
	e := &env{
		pt:      pt,
		op:      op,
		model:   model,
		anchors: map[string]int32{},
		log: func(format string, a ...interface{}) {
			patchfile.Log("    "+format+"\n", a...)
		},
	}
	pt.ResetBaseAddress()
	for _, i := range p {
		pi, ok := i.ToSingleInstruction().(patchableInstruction)
		if !ok {
			continue // Enabled, Description, PatchGroup
		}
		if err := pi.ApplyTo(e); err != nil {
			return err
		}
	}
	return nil
}

// SetEnabled sets the Enabled state of a Patch in a PatchSet.
func (ps *PatchSet) SetEnabled(patch string, enabled bool) error {
	p, ok := ps.patches[patch]
	if !ok {
		if enabled {
			return errors.Errorf("could not set enabled state of '%s' to %t: no such patch", patch, enabled)
		}
		return nil
	}
	for _, i := range p {
		if i.Enabled != nil {
			*i.Enabled = Enabled(enabled)
			return nil
		}
	}
	return errors.Errorf("could not set enabled state of '%s' to %t: no Enabled instruction in patch", patch, enabled)
}

func init() {
	patchfile.RegisterFormat("ngpatch", Parse)
}
