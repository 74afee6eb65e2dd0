// Package ngfw contains the patches for the firmware of the Ninebot G2/F2
// family of scooters (DRV images).
package ngfw

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ngfw-tools/ngpatch/patchlib"
	"github.com/ngfw-tools/ngpatch/patchlib/asm"
	"rsc.io/arm/armasm"
)

// Log is called to log informational messages. It is a no-op by default.
var Log = func(format string, a ...interface{}) {}

// Models which have patches.
const (
	F2     = "f2"
	F2Plus = "f2plus"
	F2Pro  = "f2pro"
)

// Models returns the supported models.
func Models() []string {
	return []string{F2, F2Plus, F2Pro}
}

// CheckModel returns an error if model is not supported.
func CheckModel(model string) error {
	for _, m := range Models() {
		if m == model {
			return nil
		}
	}
	return fmt.Errorf("%w: model %q (supported: %s)", patchlib.ErrUnsupportedVariant, model, strings.Join(Models(), ", "))
}

// the DRV firmware runs in Thumb-2 mode only
var thumb = asm.NewCache(asm.New(armasm.ModeThumb))

// NewPatcher returns a Patcher for a DRV image, which is modified in place.
func NewPatcher(buf []byte) *patchlib.Patcher {
	return patchlib.NewPatcher(buf, thumb)
}

// Param is a numeric parameter of a Patch.
type Param struct {
	Name     string
	Default  int
	Min, Max int
}

// Patch is a single named modification of the firmware.
type Patch struct {
	Name        string
	Description string
	Author      string
	Params      []Param

	apply func(op *patchlib.Op, model string, args []int) error
}

// Apply applies the patch to p for model. Missing trailing args take the
// parameter defaults. If it fails, p is left unchanged.
func (pt *Patch) Apply(p *patchlib.Patcher, model string, args ...int) ([]patchlib.Record, error) {
	args, err := pt.args(args)
	if err != nil {
		return nil, err
	}
	return p.Apply(pt.Name, func(op *patchlib.Op) error {
		return pt.apply(op, model, args)
	})
}

func (pt *Patch) args(args []int) ([]int, error) {
	if len(args) > len(pt.Params) {
		return nil, fmt.Errorf("%s: too many arguments (expected at most %d, got %d)", pt.Name, len(pt.Params), len(args))
	}
	full := make([]int, len(pt.Params))
	for i, prm := range pt.Params {
		full[i] = prm.Default
		if i < len(args) {
			full[i] = args[i]
		}
		if full[i] < prm.Min || full[i] > prm.Max {
			return nil, fmt.Errorf("%s: %s must be between %d and %d, got %d", pt.Name, prm.Name, prm.Min, prm.Max, full[i])
		}
	}
	return full, nil
}

// Usage returns the name of the patch along with its parameters.
func (pt *Patch) Usage() string {
	if len(pt.Params) == 0 {
		return pt.Name
	}
	var ps []string
	for _, prm := range pt.Params {
		ps = append(ps, fmt.Sprintf("%s=%d", prm.Name, prm.Default))
	}
	return pt.Name + "(" + strings.Join(ps, ",") + ")"
}

var patches = map[string]*Patch{}
var order []string

func register(pt *Patch) {
	if _, ok := patches[pt.Name]; ok {
		panic("patch " + pt.Name + " already registered")
	}
	patches[pt.Name] = pt
	order = append(order, pt.Name)
}

// Patches returns all patches in the order they should be applied.
func Patches() []*Patch {
	pts := make([]*Patch, len(order))
	for i, n := range order {
		pts[i] = patches[n]
	}
	return pts
}

// Get returns the patch called name.
func Get(name string) (*Patch, error) {
	pt, ok := patches[name]
	if !ok {
		known := append([]string(nil), order...)
		sort.Strings(known)
		return nil, fmt.Errorf("no such patch %q (available: %s)", name, strings.Join(known, ", "))
	}
	return pt, nil
}

// Selection is a patch along with its arguments.
type Selection struct {
	Patch *Patch
	Args  []int
}

func (s Selection) String() string {
	if len(s.Args) == 0 {
		return s.Patch.Name
	}
	as := make([]string, len(s.Args))
	for i, a := range s.Args {
		as[i] = strconv.Itoa(a)
	}
	return s.Patch.Name + "=" + strings.Join(as, ",")
}

// ParseSelection parses a patch name with optional comma-separated arguments,
// like "kers_multi=6,12,20". Arguments may be decimal or prefixed hex.
func ParseSelection(s string) (Selection, error) {
	name, rest, hasArgs := strings.Cut(strings.TrimSpace(s), "=")
	pt, err := Get(strings.TrimSpace(name))
	if err != nil {
		return Selection{}, err
	}
	sel := Selection{Patch: pt}
	if !hasArgs {
		return sel, nil
	}
	for _, f := range strings.Split(rest, ",") {
		v, err := strconv.ParseInt(strings.TrimSpace(f), 0, 32)
		if err != nil {
			return Selection{}, fmt.Errorf("%s: invalid argument %q", pt.Name, f)
		}
		sel.Args = append(sel.Args, int(v))
	}
	if _, err := pt.args(sel.Args); err != nil {
		return Selection{}, err
	}
	return sel, nil
}
