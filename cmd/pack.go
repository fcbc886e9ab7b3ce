package cmd

import (
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/civet-run/civet/pkg"
	"github.com/civet-run/civet/pkg/artifact"
)

var packCmd = &cobra.Command{
	Use:   "pack <bundle> <dir...>",
	Short: "Bundles run artifacts into a .cart file",
	Long: `Collects the given directories (job logs, build outputs) into a single
brotli-compressed bundle that can be attached to a CI run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) < 2 {
			return eris.New("expects a bundle path and at least one directory")
		}

		writer, err := artifact.NewWriter(args[0])
		if err != nil {
			return eris.Wrapf(err, "failed to create %s", args[0])
		}

		for _, dir := range args[1:] {
			pkg.PrintSubtask(dir)
			err = writer.OpenDirectory(filepath.Base(filepath.Clean(dir)))
			if err != nil {
				return err
			}

			err = writer.AddTree(dir)
			if err != nil {
				return err
			}

			err = writer.CloseDirectory()
			if err != nil {
				return err
			}
		}

		err = writer.Close()
		if err != nil {
			return eris.Wrapf(err, "failed to finish %s", args[0])
		}

		pkg.PrintTask("Done")
		return nil
	},
}

var unpackCmd = &cobra.Command{
	Use:   "unpack <bundle> [dest]",
	Short: "Extracts a .cart bundle",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) < 1 {
			return eris.New("expects a bundle path")
		}

		dest := "."
		if len(args) > 1 {
			dest = args[1]
		}

		reader, err := artifact.OpenReader(args[0])
		if err != nil {
			return err
		}
		defer reader.Close()

		err = reader.Extract(dest)
		if err != nil {
			return err
		}

		pkg.PrintTask("Done")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(packCmd)
	rootCmd.AddCommand(unpackCmd)
}
