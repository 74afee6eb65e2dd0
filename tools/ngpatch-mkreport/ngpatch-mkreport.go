// Command ngpatch-mkreport converts a single patch of a recipe file into a
// report which replaces the same bytes at fixed offsets, for use with images
// where the patch has been verified.
package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ngfw-tools/ngpatch/fwimage"
	"github.com/ngfw-tools/ngpatch/ngfw"
	"github.com/ngfw-tools/ngpatch/patchfile"
	"github.com/ngfw-tools/ngpatch/patchfile/ngpatch"
	"github.com/ngfw-tools/ngpatch/patchlib"
	"github.com/spf13/pflag"

	_ "github.com/ngfw-tools/ngpatch/patchfile/report"
)

var version = "unknown"

func errexit(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	os.Exit(1)
}

func main() {
	input := pflag.StringP("input", "i", "", "the original image (required)")
	patchFile := pflag.StringP("patch-file", "p", "", "the file containing the patches in ngpatch format (required)")
	patchName := pflag.StringP("patch-name", "n", "", "the name of the patch to convert (required)")
	model := pflag.StringP("model", "m", "", "the model to select variant-specific values for")
	output := pflag.StringP("output", "o", "", "write the report to this file instead of stdout")
	help := pflag.BoolP("help", "h", false, "show this help text")
	pflag.Parse()

	if *help || pflag.NArg() != 0 {
		fmt.Fprintf(os.Stderr, "Usage: ngpatch-mkreport [OPTIONS]\n")
		fmt.Fprintf(os.Stderr, "\nVersion: %s\n\nOptions:\n", version)
		pflag.PrintDefaults()
		os.Exit(1)
	}

	if *input == "" || *patchFile == "" || *patchName == "" {
		errexit("Error: input, patch-file, and patch-name flags are required. See --help for more info.\n")
	}

	fmt.Fprintf(os.Stderr, "\nAPPLYING PATCH TO FIND CHANGES:\n")
	ps, err := patchfile.ReadFromFile("ngpatch", *patchFile)
	if err != nil {
		errexit("Error: could not read patch file: %v\n", err)
	}
	found := false
	for _, n := range ps.(*ngpatch.PatchSet).Names() {
		m := n == *patchName
		if err := ps.SetEnabled(n, m); err != nil {
			errexit("Error: could not SetEnabled patch '%s': unknown error: %v\n", n, err)
		}
		found = found || m
	}
	if !found {
		errexit("Error: could not enable patch '%s': no such patch\n", *patchName)
	}
	if err := ps.Validate(); err != nil {
		errexit("Error: could not validate patch file: %v\n", err)
	}
	buf, err := fwimage.Load(*input)
	if err != nil {
		errexit("Error: could not read input file: %v\n", err)
	}
	ibuf := append([]byte(nil), buf...)
	pt := ngfw.NewPatcher(buf)
	if err := ps.ApplyTo(pt, patchfile.Options{Model: *model}); err != nil {
		errexit("Error: could not apply patch file: %v\n", err)
	}
	obuf := pt.GetBytes()
	if bytes.Equal(ibuf, obuf) {
		errexit("Error: no changes made.\n")
	}
	fmt.Fprintf(os.Stderr, "--> SUCCESS\n")

	fmt.Fprintf(os.Stderr, "\nGENERATING REPORT:\n")
	recs, err := patchlib.Diff(*patchName, ibuf, obuf)
	if err != nil {
		errexit("Error: internal error: %v. Please report this as a bug.\n", err)
	}
	before, after := fwimage.Sum(ibuf), fwimage.Sum(obuf)
	rpt := &patchlib.Report{
		Tool:    "ngpatch-mkreport " + version,
		Model:   *model,
		Input:   filepath.Base(*input),
		Before:  &before,
		After:   &after,
		Applied: []string{*patchName},
		Records: recs,
	}
	var rbuf bytes.Buffer
	if err := rpt.WriteJSON(&rbuf); err != nil {
		errexit("Error: internal error: could not encode report: %v. Please report this as a bug.\n", err)
	}
	fmt.Fprintf(os.Stderr, "--> SUCCESS\n")

	fmt.Fprintf(os.Stderr, "\nTESTING GENERATED REPORT:\n")
	parse, ok := patchfile.GetFormat("report")
	if !ok {
		errexit("Error: internal error: could not load report format. Please report this as a bug.\n")
	}
	rps, err := parse(rbuf.Bytes())
	if err != nil {
		errexit("Error: internal error: could not parse generated report to test: %v. Please report this as a bug.\n", err)
	}
	if err := rps.Validate(); err != nil {
		errexit("Error: internal error: could not validate generated report to test: %v. Please report this as a bug.\n", err)
	}
	tbuf := append([]byte(nil), ibuf...)
	if err := rps.ApplyTo(patchlib.NewPatcher(tbuf, nil), patchfile.Options{}); err != nil {
		errexit("Error: internal error: could not apply generated report to test: %v. Please report this as a bug.\n", err)
	}
	if !bytes.Equal(tbuf, obuf) {
		errexit("Error: internal error: applied generated report, wrong output. Please report this as a bug.\n")
	}
	fmt.Fprintf(os.Stderr, "--> SUCCESS\n")

	if *output == "" {
		os.Stdout.Write(rbuf.Bytes())
	} else if err := os.WriteFile(*output, rbuf.Bytes(), 0644); err != nil {
		errexit("Error: could not write report: %v\n", err)
	}
	os.Exit(0)
}
