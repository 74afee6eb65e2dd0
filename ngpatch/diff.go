package main

import (
	"path/filepath"

	"github.com/ngfw-tools/ngpatch/fwimage"
	"github.com/ngfw-tools/ngpatch/patchlib"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var diffName, diffOut string

var diffCmd = &cobra.Command{
	Use:   "diff ORIGINAL PATCHED",
	Short: "Write a report of the differences between two images",
	Long: `Write a report of the differences between two images of the same size. The
report can be replayed with apply --format report, or undone with revert.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		orig, err := fwimage.Load(args[0])
		if err != nil {
			return err
		}
		patched, err := fwimage.Load(args[1])
		if err != nil {
			return err
		}

		recs, err := patchlib.Diff(diffName, orig, patched)
		if err != nil {
			return err
		}
		if recs == nil {
			recs = []patchlib.Record{}
		}
		log.Infof("%d differences", len(recs))

		before, after := fwimage.Sum(orig), fwimage.Sum(patched)
		return writeReport(diffOut, &patchlib.Report{
			Tool:    "ngpatch " + version,
			Model:   viper.GetString("model"),
			Input:   filepath.Base(args[0]),
			Before:  &before,
			After:   &after,
			Applied: []string{diffName},
			Records: recs,
		})
	},
}

func init() {
	diffCmd.Flags().StringVar(&diffName, "name", "diff", "the operation name of the records")
	diffCmd.Flags().StringVarP(&diffOut, "output", "o", "-", "the report file (.json or .yaml, - for stdout)")
	rootCmd.AddCommand(diffCmd)
}
