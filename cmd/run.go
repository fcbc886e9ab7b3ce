package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/civet-run/civet/pkg"
	"github.com/civet-run/civet/pkg/copyright"
	"github.com/civet-run/civet/pkg/pipeline"
	"github.com/civet-run/civet/pkg/tools"
)

var runCmd = &cobra.Command{
	Use:   "run [job...]",
	Short: "Runs the pipeline",
	Long: `Loads the nearest .civet.yml or .civet.star, expands the matrix and runs
every job (or only the jobs named on the command line). key=value arguments
are passed to Starlark configs as option values.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, err := cmd.Flags().GetBool("dry")
		if err != nil {
			return err
		}

		force, err := cmd.Flags().GetBool("force")
		if err != nil {
			return err
		}

		resume, err := cmd.Flags().GetBool("resume")
		if err != nil {
			return err
		}

		cfgFlag, err := cmd.Flags().GetString("config")
		if err != nil {
			return err
		}

		jobArgs := make([]string, 0)
		options := make(map[string]string)
		for _, part := range args {
			pos := strings.Index(part, "=")
			if pos > -1 {
				options[part[:pos]] = part[pos+1:]
			} else {
				jobArgs = append(jobArgs, part)
			}
		}

		logger := zerolog.New(NewConsoleWriter())
		ctx := pipeline.WithLogger(context.Background(), &logger)

		project, err := loadProject(ctx, cfgFlag, options)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to load the pipeline config")
		}

		err = project.Pipeline.CheckRequires(Version)
		if err != nil {
			logger.Fatal().Err(err).Msg("Version check failed")
		}

		jobs := pipeline.Expand(project.Pipeline, pipeline.HostOS())
		if len(jobArgs) > 0 {
			jobs, err = selectJobs(jobs, jobArgs)
			if err != nil {
				logger.Fatal().Err(err).Msg("Unknown job")
			}
		}

		opts := pipeline.RunOptions{
			DryRun:    dryRun,
			Force:     force,
			Resume:    resume,
			StatePath: filepath.Join(project.Root, ".civet-state"),
		}

		if project.Pipeline.Tools != "" {
			manifestPath := filepath.Join(project.Root, project.Pipeline.Tools)
			if !dryRun {
				err = tools.Fetch(project.Root, manifestPath, false)
				if err != nil {
					logger.Fatal().Err(err).Msg("Failed to fetch tools")
				}
			}
			opts.ToolsBin = tools.BinDir(project.Root)
		}

		if project.Pipeline.Copyright != nil {
			cfg := project.Pipeline.Copyright
			opts.Checker, err = copyright.New(cfg.Paths, cfg.Extensions, cfg.Ignore, cfg.Pattern)
			if err != nil {
				logger.Fatal().Err(err).Msg("Invalid copyright config")
			}
		}

		err = pipeline.Run(ctx, project, jobs, opts)
		if err != nil {
			logger.Fatal().Err(err).Msg("Pipeline failed")
		}

		return nil
	},
}

func loadProject(ctx context.Context, cfgFlag string, options map[string]string) (*pipeline.Project, error) {
	cfgPath := cfgFlag
	if cfgPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}

		_, cfgPath, err = pkg.FindProjectRoot(wd)
		if err != nil {
			return nil, err
		}
	}

	return pipeline.LoadProject(ctx, cfgPath, options)
}

func selectJobs(jobs []*pipeline.Job, names []string) ([]*pipeline.Job, error) {
	byName := make(map[string]*pipeline.Job, len(jobs))
	for _, job := range jobs {
		byName[job.Name()] = job
	}

	selected := make([]*pipeline.Job, 0, len(names))
	for _, name := range names {
		job, ok := byName[name]
		if !ok {
			return nil, eris.Errorf("job %s not found, try `civet jobs` to list the matrix", name)
		}
		selected = append(selected, job)
	}
	return selected, nil
}

func init() {
	runCmd.Flags().BoolP("dry", "n", false, "dry run; only print the commands, don't execute anything")
	runCmd.Flags().BoolP("force", "f", false, "rerun jobs even when a previous run recorded them as passed")
	runCmd.Flags().Bool("resume", false, "skip jobs that passed in the previous run")
	runCmd.Flags().StringP("config", "c", "", "config file (defaults to the nearest .civet.yml or .civet.star)")

	rootCmd.AddCommand(runCmd)
}
