package main

import (
	"fmt"

	"github.com/ngfw-tools/ngpatch/fwimage"
	"github.com/ngfw-tools/ngpatch/patchlib"
	"github.com/spf13/cobra"
)

var revertForce bool

var revertCmd = &cobra.Command{
	Use:   "revert INPUT REPORT OUTPUT",
	Short: "Undo the changes described by a report",
	Long: `Undo the changes described by a report written by apply or diff.

The input must be the patched image the report describes, unless --force is
given. Every change is checked before anything is written.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		buf, err := fwimage.Load(args[0])
		if err != nil {
			return err
		}
		rpt, err := readReport(args[1])
		if err != nil {
			return err
		}

		if err := rpt.Verify(buf, true); err != nil {
			if !revertForce {
				return fmt.Errorf("%w (use --force to revert anyway)", err)
			}
			log.Warnf("%v", err)
		}

		if err := patchlib.Revert(buf, rpt.Records); err != nil {
			return err
		}
		if err := rpt.Verify(buf, false); err != nil {
			log.Warnf("reverted image: %v", err)
		}

		if err := fwimage.Save(args[2], buf); err != nil {
			return err
		}
		fmt.Printf("Reverted %d changes, saved to %s\n", len(rpt.Records), args[2])
		return nil
	},
}

func init() {
	revertCmd.Flags().BoolVar(&revertForce, "force", false, "revert even if the input does not match the checksum in the report")
	rootCmd.AddCommand(revertCmd)
}
