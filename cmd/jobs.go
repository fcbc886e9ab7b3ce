package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/civet-run/civet/pkg/pipeline"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Prints the expanded job matrix",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgFlag, err := cmd.Flags().GetString("config")
		if err != nil {
			return err
		}

		logger := zerolog.New(NewConsoleWriter())
		ctx := pipeline.WithLogger(context.Background(), &logger)

		project, err := loadProject(ctx, cfgFlag, map[string]string{})
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to load the pipeline config")
		}

		jobs := pipeline.Expand(project.Pipeline, pipeline.HostOS())
		fmt.Println("Job matrix:")

		maxNameLen := 0
		for _, job := range jobs {
			if nameLen := len(job.Name()); nameLen > maxNameLen {
				maxNameLen = nameLen
			}
		}

		lineFmt := fmt.Sprintf(" * %%-%ds %%s\n", maxNameLen+3)
		for _, job := range jobs {
			notes := make([]string, 0, 2)
			if job.Skipped {
				notes = append(notes, "skipped on this host")
			}
			if job.AllowFailure {
				notes = append(notes, "failures allowed")
			}

			fmt.Printf(lineFmt, job.Name()+":", strings.Join(notes, ", "))
		}

		return nil
	},
}

func init() {
	jobsCmd.Flags().StringP("config", "c", "", "config file (defaults to the nearest .civet.yml or .civet.star)")
	rootCmd.AddCommand(jobsCmd)
}
