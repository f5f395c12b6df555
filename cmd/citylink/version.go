package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/citylink"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of citylink",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "citylink version %s\n", strings.TrimSpace(citylink.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
