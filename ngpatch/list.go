package main

import (
	"fmt"
	"strings"

	"github.com/ngfw-tools/ngpatch/ngfw"
	"github.com/ngfw-tools/ngpatch/patchfile"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the built-in patches",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, pt := range ngfw.Patches() {
			fmt.Printf("%s\n", pt.Usage())
			fmt.Printf("    %s\n", pt.Description)
			if pt.Author != "" {
				fmt.Printf("    author: %s\n", pt.Author)
			}
		}
		fmt.Printf("\nmodels: %s\n", strings.Join(ngfw.Models(), ", "))
		fmt.Printf("recipe formats: %s\n", strings.Join(patchfile.GetFormats(), ", "))
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
