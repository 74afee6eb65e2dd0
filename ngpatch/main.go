// Command ngpatch patches Ninebot G2/F2 DRV firmware images.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "unknown"

var rootCmd = &cobra.Command{
	Use:   "ngpatch",
	Short: "Patch Ninebot G2/F2 DRV firmware images",
	Long: `ngpatch applies the built-in patches (or a recipe file) to a DRV firmware
image, and writes a report which can be used to revert the changes later.

Settings are read from ngpatch.yaml in the current directory or in
$HOME/.config/ngpatch, from NGPATCH_* environment variables, and from the
command line, in increasing order of precedence.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return err
		}
		return initLogger()
	},
}

func errexit(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	os.Exit(1)
}

func main() {
	err := rootCmd.Execute()
	if cerr := closeLogger(); cerr != nil && err == nil {
		err = fmt.Errorf("could not close log file: %w", cerr)
	}
	if err != nil {
		errexit("Error: %v\n", err)
	}
}
