package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/civet-run/civet/pkg"
	"github.com/civet-run/civet/pkg/tools"
)

var fetchToolsCmd = &cobra.Command{
	Use:   "fetch-tools",
	Short: "Downloads and unpacks the helper tools",
	Long: `Downloads and unpacks the tools listed in the project's TOOLS.yml. The
resulting bin directory is prepended to PATH for every pipeline job.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		update, err := cmd.Flags().GetBool("update")
		if err != nil {
			return err
		}

		manifest, err := cmd.Flags().GetString("manifest")
		if err != nil {
			return err
		}

		wd, err := os.Getwd()
		if err != nil {
			return err
		}

		root, _, err := pkg.FindProjectRoot(wd)
		if err != nil {
			return err
		}

		if manifest == "" {
			manifest = tools.DefaultManifest
		}

		return tools.Fetch(root, filepath.Join(root, manifest), update)
	},
}

var installToolsCmd = &cobra.Command{
	Use:   "install-tools",
	Short: "Installs Go CLI tools",
	Long: `Installs the tools listed in the project's tools.go into the workspace
.tools directory. If you have direnv enabled, they will be available in your
PATH.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}

		root, _, err := pkg.FindProjectRoot(wd)
		if err != nil {
			return err
		}

		return pkg.InstallTools(root)
	},
}

func init() {
	fetchToolsCmd.Flags().BoolP("update", "u", false, "update checksums in the manifest")
	fetchToolsCmd.Flags().String("manifest", "", "manifest path relative to the project root")

	rootCmd.AddCommand(fetchToolsCmd)
	rootCmd.AddCommand(installToolsCmd)
}
