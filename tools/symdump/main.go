// Command symdump dumps the function and object symbols of a 32-bit ARM ELF
// firmware build, with their file offsets, as JSON.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ngfw-tools/ngpatch/fwimage"
	"github.com/ngfw-tools/ngpatch/patchlib"
	"github.com/spf13/pflag"
)

func main() {
	output := pflag.StringP("output", "o", "symdump.out.json", "the file to write the symbols to (- for stdout)")
	help := pflag.BoolP("help", "h", false, "show this help text")
	pflag.Parse()

	if *help || pflag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "symdump dumps symbol offsets from a 32-bit ARM ELF executable")
		fmt.Fprintln(os.Stderr, "Usage: symdump [OPTIONS] BINARY_FILE")
		pflag.PrintDefaults()
		os.Exit(1)
	}

	buf, err := fwimage.Load(pflag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	syms, err := patchlib.NewPatcher(buf, nil).ExtractSyms()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	f := os.Stdout
	if *output != "-" {
		if f, err = os.Create(*output); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Fprintf(f, "[\n")
	for i, s := range syms {
		if i != 0 {
			fmt.Fprintf(f, ",\n")
		}
		buf, _ := json.Marshal(s)
		f.Write(buf)
	}
	fmt.Fprintf(f, "\n]\n")

	f.Close()
	os.Exit(0)
}
