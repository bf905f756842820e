package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codefionn/amchat/internal/consts"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "amchat %s (protocol version %d)\n", version, consts.ProtocolVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
