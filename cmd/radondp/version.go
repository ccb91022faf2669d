package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version can be overridden via -ldflags at build time.
var version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("radondp", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
