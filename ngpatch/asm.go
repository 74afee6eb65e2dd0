package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"strings"

	"github.com/ngfw-tools/ngpatch/patchlib/asm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var asmBase uint32

var asmCmd = &cobra.Command{
	Use:   "asm SOURCE...",
	Short: "Assemble instructions and print the machine code",
	Long: `Assemble instructions and print the machine code as hex. The arguments are
joined with ; (use - to read the source from stdin). Immediate branch targets
are addresses relative to --base.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := asm.ParseMode(viper.GetString("mode"))
		if err != nil {
			return err
		}

		src := strings.Join(args, "; ")
		if len(args) == 1 && args[0] == "-" {
			buf, err := ioutil.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("could not read stdin: %w", err)
			}
			src = string(buf)
		}

		b, err := asm.New(mode).AssembleAt(src, asmBase)
		if err != nil {
			return err
		}
		fmt.Printf("% x\n", b)
		return nil
	},
}

func init() {
	asmCmd.Flags().Uint32VarP(&asmBase, "base", "b", 0, "the address of the first instruction")
	rootCmd.AddCommand(asmCmd)
}
