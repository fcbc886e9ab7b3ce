package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/civet-run/civet/pkg"
	"github.com/civet-run/civet/pkg/copyright"
)

var copyrightCmd = &cobra.Command{
	Use:   "check-copyright [paths...]",
	Short: "Checks that source files start with a copyright comment",
	Long: `Scans the given paths (the whole project when none are given) and reports
every source file whose leading comment block doesn't match the pattern.
This is the same check that runs as the final stage of every pipeline job.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pattern, err := cmd.Flags().GetString("pattern")
		if err != nil {
			return err
		}

		extensions, err := cmd.Flags().GetStringSlice("ext")
		if err != nil {
			return err
		}

		ignore, err := cmd.Flags().GetStringSlice("ignore")
		if err != nil {
			return err
		}

		wd, err := os.Getwd()
		if err != nil {
			return err
		}

		root, _, err := pkg.FindProjectRoot(wd)
		if err != nil {
			// not inside a project, check relative to the working directory
			root = wd
		}

		checker, err := copyright.New(args, extensions, ignore, pattern)
		if err != nil {
			return err
		}

		err = checker.Check(context.Background(), root)
		if err != nil {
			return err
		}

		pkg.PrintTask("All files carry a copyright comment")
		return nil
	},
}

func init() {
	copyrightCmd.Flags().String("pattern", "", "regexp the leading comment has to match")
	copyrightCmd.Flags().StringSlice("ext", nil, "file extensions to check (defaults to all known)")
	copyrightCmd.Flags().StringSlice("ignore", nil, "path patterns to skip")

	rootCmd.AddCommand(copyrightCmd)
}
