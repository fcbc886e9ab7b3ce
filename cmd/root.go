// Package cmd implements the civet CLI.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is checked against the config's requires constraint.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "civet",
	Short: "A local-first CI pipeline runner",
	Long: `civet replays a declared CI pipeline on the local machine: it expands the
channel/OS matrix, discovers the per-project stage scripts and runs them
sequentially with fail-fast semantics.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Prints the civet version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
