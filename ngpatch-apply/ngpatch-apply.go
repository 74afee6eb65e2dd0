// Command ngpatch-apply applies a single recipe file to a firmware image.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/ngfw-tools/ngpatch/fwimage"
	"github.com/ngfw-tools/ngpatch/patchlib"
	"github.com/ngfw-tools/ngpatch/patchlib/asm"

	"github.com/ngfw-tools/ngpatch/patchfile"
	_ "github.com/ngfw-tools/ngpatch/patchfile/ngpatch"
	_ "github.com/ngfw-tools/ngpatch/patchfile/report"
	"github.com/spf13/pflag"
)

var version = "unknown"

func errexit(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	os.Exit(1)
}

func main() {
	input := pflag.StringP("input", "i", "", "the image to patch (required)")
	patchFile := pflag.StringP("patch-file", "p", "", "the file containing the patches (required)")
	output := pflag.StringP("output", "o", "", "the file to write the patched output to (will be overwritten if exists) (required)")
	patchFormat := pflag.StringP("patch-format", "f", "ngpatch", fmt.Sprintf("the patch format (one of: %s)", strings.Join(patchfile.GetFormats(), ",")))
	model := pflag.StringP("model", "m", "", "the model to select variant-specific values for")
	mode := pflag.String("mode", "thumb", "the instruction set used for assembly (thumb or arm)")
	keepGoing := pflag.BoolP("keep-going", "k", false, "skip patches which fail instead of stopping")
	report := pflag.StringP("report", "r", "", "write a JSON report of the changes to this file")
	verbose := pflag.BoolP("verbose", "v", false, "show verbose output from patchlib")
	help := pflag.BoolP("help", "h", false, "show this help text")
	pflag.Parse()

	if *help || pflag.NArg() != 0 {
		fmt.Fprintf(os.Stderr, "Usage: ngpatch-apply [OPTIONS]\n")
		fmt.Fprintf(os.Stderr, "\nVersion: %s\n\nOptions:\n", version)
		pflag.PrintDefaults()
		os.Exit(1)
	}

	if *input == "" || *patchFile == "" || *output == "" {
		errexit("Error: input, patch-file, and output flags are required. See --help for more info.\n")
	}

	if _, ok := patchfile.GetFormat(*patchFormat); !ok {
		errexit("Error: invalid format %s. See --help for more info.\n", *patchFormat)
	}

	am, err := asm.ParseMode(*mode)
	if err != nil {
		errexit("Error: %v. See --help for more info.\n", err)
	}

	if *verbose {
		patchfile.Log = func(format string, a ...interface{}) {
			fmt.Printf(format, a...)
		}
		fwimage.Log = patchfile.Log
	}

	ps, err := patchfile.ReadFromFile(*patchFormat, *patchFile)
	if err != nil {
		errexit("Error: could not read patch file: %v\n", err)
	}

	err = ps.Validate()
	if err != nil {
		errexit("Error: could not validate patch file: %v\n", err)
	}

	buf, err := fwimage.Load(*input)
	if err != nil {
		errexit("Error: could not read input file: %v\n", err)
	}
	before := fwimage.Sum(buf)

	pt := patchlib.NewPatcher(buf, asm.NewCache(asm.New(am)))

	var res patchfile.Result
	aerr := ps.ApplyTo(pt, patchfile.Options{Model: *model, KeepGoing: *keepGoing, Result: &res})
	if aerr != nil && (!*keepGoing || len(res.Applied)+len(res.Failed) == 0) {
		errexit("Error: could not apply patch file: %v\n", aerr)
	}

	if err := fwimage.Save(*output, pt.GetBytes()); err != nil {
		errexit("Error: could not write output file: %v\n", err)
	}

	if *report != "" {
		after := fwimage.Sum(pt.GetBytes())
		rpt := &patchlib.Report{
			Tool:    "ngpatch-apply " + version,
			Model:   *model,
			Input:   *patchFile,
			Before:  &before,
			After:   &after,
			Applied: res.Applied,
			Failed:  res.Failed,
			Records: pt.Records(),
		}
		if rpt.Records == nil {
			rpt.Records = []patchlib.Record{}
		}
		f, err := os.Create(*report)
		if err != nil {
			errexit("Error: could not create report: %v\n", err)
		}
		if err := rpt.WriteJSON(f); err != nil {
			errexit("Error: could not write report: %v\n", err)
		}
		f.Close()
	}

	if aerr != nil {
		errexit("Patched '%s' using '%s' to '%s', but some patches failed: %v\n", *input, *patchFile, *output, aerr)
	}
	fmt.Printf("Successfully patched '%s' using '%s' to '%s'\n", *input, *patchFile, *output)
	os.Exit(0)
}
