package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ngfw-tools/ngpatch/fwimage"
	"github.com/ngfw-tools/ngpatch/ngfw"
	"github.com/ngfw-tools/ngpatch/patchfile"
	_ "github.com/ngfw-tools/ngpatch/patchfile/ngpatch"
	_ "github.com/ngfw-tools/ngpatch/patchfile/report"
	"github.com/ngfw-tools/ngpatch/patchlib"
	"github.com/ngfw-tools/ngpatch/patchlib/asm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var applyOpts struct {
	patches []string
	all     bool
	recipe  string
	format  string
	dryRun  bool
}

var applyCmd = &cobra.Command{
	Use:   "apply INPUT OUTPUT",
	Short: "Apply patches to a firmware image",
	Long: `Apply patches to a firmware image.

The built-in patches are selected with --patch (e.g. --patch region_free
--patch kers_multi=8,16,32), --all, or the patches map of the config file.
Alternatively, a recipe file can be applied with --recipe.

By default, nothing is written if any patch fails. With --keep-going, failed
patches are skipped, the output is written, and the exit status is non-zero.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		buf, err := fwimage.Load(args[0])
		if err != nil {
			return err
		}

		var rpt *patchlib.Report
		var aerr error
		if applyOpts.recipe != "" {
			rpt, aerr = applyRecipe(buf, applyOpts.format, applyOpts.recipe)
		} else {
			sel, err := applySelection()
			if err != nil {
				return err
			}
			s := &ngfw.Session{
				Model:     viper.GetString("model"),
				KeepGoing: viper.GetBool("keep_going"),
				Tool:      "ngpatch " + version,
				Input:     filepath.Base(args[0]),
			}
			rpt, aerr = s.Run(buf, sel)
		}
		if rpt == nil {
			return aerr
		}
		for _, n := range rpt.Failed {
			log.Warnf("skipped failed patch %s", n)
		}

		fmt.Printf("Applied %d patches (%d changes)\n", len(rpt.Applied), len(rpt.Records))
		for _, r := range rpt.Records {
			log.Infof("%s", r)
		}

		if applyOpts.dryRun {
			fmt.Print(rpt)
			return aerr
		}
		if err := fwimage.Save(args[1], buf); err != nil {
			return err
		}
		fmt.Printf("Saved patched image to %s\n", args[1])

		if fn := viper.GetString("report"); fn != "" {
			if err := writeReport(fn, rpt); err != nil {
				return err
			}
			fmt.Printf("Saved report to %s\n", fn)
		}
		return aerr
	},
}

// applySelection returns the catalog patches selected by the flags, or by the
// config if no flags were given.
func applySelection() ([]ngfw.Selection, error) {
	if applyOpts.all {
		if len(applyOpts.patches) != 0 {
			return nil, fmt.Errorf("--all and --patch cannot be used together")
		}
		return ngfw.All(), nil
	}
	if len(applyOpts.patches) != 0 {
		var sel []ngfw.Selection
		for _, s := range applyOpts.patches {
			x, err := ngfw.ParseSelection(s)
			if err != nil {
				return nil, err
			}
			sel = append(sel, x)
		}
		return sel, nil
	}
	sel, err := selections(configPatches())
	if err != nil {
		return nil, err
	}
	if len(sel) == 0 {
		return nil, fmt.Errorf("no patches selected (use --patch, --all, or the patches config)")
	}
	return sel, nil
}

// applyRecipe applies a recipe file to buf.
func applyRecipe(buf []byte, format, fn string) (*patchlib.Report, error) {
	mode, err := asm.ParseMode(viper.GetString("mode"))
	if err != nil {
		return nil, err
	}

	ps, err := patchfile.ReadFromFile(format, fn)
	if err != nil {
		return nil, err
	}

	var res patchfile.Result
	opt := patchfile.Options{
		Model:     viper.GetString("model"),
		KeepGoing: viper.GetBool("keep_going"),
		Result:    &res,
	}
	before := fwimage.Sum(buf)
	pt := patchlib.NewPatcher(buf, asm.NewCache(asm.New(mode)))
	pt.Hook(func(offset int32, find, replace []byte) error {
		log.Debugf("write %#x: % x -> % x", offset, find, replace)
		return nil
	})

	aerr := ps.ApplyTo(pt, opt)
	if aerr != nil && (!opt.KeepGoing || len(res.Applied)+len(res.Failed) == 0) {
		return nil, aerr
	}

	after := fwimage.Sum(buf)
	rpt := &patchlib.Report{
		Tool:    "ngpatch " + version,
		Model:   opt.Model,
		Input:   filepath.Base(fn),
		Before:  &before,
		After:   &after,
		Applied: res.Applied,
		Failed:  res.Failed,
		Records: pt.Records(),
	}
	if rpt.Records == nil {
		rpt.Records = []patchlib.Record{}
	}
	return rpt, aerr
}

// writeReport writes rpt to fn as YAML or JSON depending on the extension. If
// fn is -, JSON is written to stdout.
func writeReport(fn string, rpt *patchlib.Report) error {
	if fn == "-" {
		return rpt.WriteJSON(os.Stdout)
	}
	f, err := os.Create(fn)
	if err != nil {
		return fmt.Errorf("could not create report: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(fn)) {
	case ".yaml", ".yml":
		err = rpt.WriteYAML(f)
	default:
		err = rpt.WriteJSON(f)
	}
	if err != nil {
		return fmt.Errorf("could not write report: %w", err)
	}
	return f.Close()
}

func readReport(fn string) (*patchlib.Report, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, fmt.Errorf("could not open report: %w", err)
	}
	defer f.Close()
	return patchlib.ReadReport(f)
}

func init() {
	f := applyCmd.Flags()
	f.StringArrayVarP(&applyOpts.patches, "patch", "p", nil, "a built-in patch to apply, with optional arguments (e.g. kers_multi=8,16,32)")
	f.BoolVarP(&applyOpts.all, "all", "a", false, "apply every built-in patch with its default arguments")
	f.StringVarP(&applyOpts.recipe, "recipe", "r", "", "apply a recipe file instead of the built-in patches")
	f.StringVarP(&applyOpts.format, "format", "f", "ngpatch", fmt.Sprintf("the recipe format (one of: %s)", strings.Join(patchfile.GetFormats(), ", ")))
	f.BoolVarP(&applyOpts.dryRun, "dry-run", "n", false, "print the changes instead of writing the output")
	f.BoolP("keep-going", "k", false, "skip failed patches instead of aborting")
	f.String("report", "", "write a report of the changes to this file (.json or .yaml, - for stdout)")

	if err := viper.BindPFlag("keep_going", f.Lookup("keep-going")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("report", f.Lookup("report")); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(applyCmd)
}
