package main

import (
	"fmt"
	"strings"

	"github.com/ngfw-tools/ngpatch/fwimage"
	"github.com/ngfw-tools/ngpatch/patchlib"
	"github.com/ngfw-tools/ngpatch/patchlib/asm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var findOpts struct {
	asm   bool
	sym   string
	start int32
	all   bool
}

var findCmd = &cobra.Command{
	Use:   "find IMAGE PATTERN...",
	Short: "Search a firmware image for a byte pattern or assembly",
	Long: `Search a firmware image for a byte pattern (hex, with ?? wildcards) or, with
--asm, for assembled code (statements separated by ;).`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		buf, err := fwimage.Load(args[0])
		if err != nil {
			return err
		}
		sig, err := findSignature(strings.Join(args[1:], " "))
		if err != nil {
			return err
		}

		start := findOpts.start
		if findOpts.sym != "" {
			if start, err = patchlib.NewPatcher(buf, nil).ResolveSym(findOpts.sym); err != nil {
				return err
			}
		}
		log.Debugf("searching for [%s] from %#x", sig, start)

		if !findOpts.all {
			off, err := patchlib.Find(buf, sig, start)
			if err != nil {
				return err
			}
			fmt.Printf("%#x\n", off)
			return nil
		}
		offs, err := patchlib.FindAll(buf, sig, start)
		if err != nil {
			return err
		}
		if len(offs) == 0 {
			return fmt.Errorf("%w: [%s]", patchlib.ErrPatternNotFound, sig)
		}
		for _, off := range offs {
			fmt.Printf("%#x\n", off)
		}
		return nil
	},
}

func findSignature(s string) (patchlib.Signature, error) {
	if !findOpts.asm {
		return patchlib.ParseSignature(s)
	}
	mode, err := asm.ParseMode(viper.GetString("mode"))
	if err != nil {
		return patchlib.Signature{}, err
	}
	b, err := asm.New(mode).Assemble(s)
	if err != nil {
		return patchlib.Signature{}, err
	}
	return patchlib.Literal(b), nil
}

func init() {
	f := findCmd.Flags()
	f.BoolVar(&findOpts.asm, "asm", false, "assemble the pattern instead of parsing it as hex")
	f.StringVar(&findOpts.sym, "sym", "", "start searching at an ELF symbol (mangled or demangled name)")
	f.Int32VarP(&findOpts.start, "start", "s", 0, "the offset to start searching at")
	f.BoolVar(&findOpts.all, "all", false, "print every match instead of the first one")
	rootCmd.AddCommand(findCmd)
}
