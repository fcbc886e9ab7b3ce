package pipeline

import (
	"context"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// Checker is a native stage that runs after all shell stages of a job. The
// copyright scanner implements this.
type Checker interface {
	Name() string
	Check(ctx context.Context, root string) error
}

// RunOptions control a single Run call.
type RunOptions struct {
	// DryRun only prints the parsed commands without executing anything.
	DryRun bool
	// Force reruns jobs even when the state file records them as passed.
	Force bool
	// Resume skips jobs that passed in the previous run.
	Resume bool
	// StatePath is where the run state is persisted. Empty disables the
	// state file.
	StatePath string
	// ToolsBin is prepended to PATH for every stage when set.
	ToolsBin string
	// Checker runs as the final, fixed stage of every job.
	Checker Checker
}

// Stage is one sequential step of a job: a hook from the config or a
// discovered script.
type Stage struct {
	Name string
	Dir  string
	Cmds []StageCmd
}

// StageCmd is a single shell fragment within a stage.
type StageCmd struct {
	Label  string
	Script string
}

var defaultExecHandler = interp.DefaultExecHandler(2)

func execHandler(ctx context.Context, args []string) error {
	if len(args) > 0 {
		switch args[0] {
		case "mv":
			fallthrough
		case "rm":
			fallthrough
		case "mkdir":
			// always use our cross-platform implementation for these operations to make sure
			// they behave consistently
			args = append([]string{"civet"}, args...)
		}
	}

	return defaultExecHandler(ctx, args)
}

var defaultOpenHandler = interp.DefaultOpenHandler()

func openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return defaultOpenHandler(ctx, path, flag, perm)
}

// BuildStages assembles the sequential stage list for one job:
// before_script entries, then every discovered script in lexical order, then
// the script entries. The copyright check is appended by the runner itself.
func BuildStages(project *Project, job *Job) ([]Stage, error) {
	p := project.Pipeline
	stages := make([]Stage, 0, len(p.BeforeScript)+len(p.Script)+2)

	if len(p.BeforeScript) > 0 {
		stages = append(stages, hookStage("before_script", project.Root, p.BeforeScript))
	}

	scripts, err := DiscoverScripts(project.Root, p.Discover)
	if err != nil {
		return nil, err
	}

	for _, script := range scripts {
		name := script
		if rel, err := filepath.Rel(project.Root, script); err == nil {
			name = filepath.ToSlash(rel)
		}

		content, err := ioutil.ReadFile(script)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to read %s", script)
		}

		stages = append(stages, Stage{
			Name: name,
			// every script runs from its containing directory; the process
			// working directory is never touched
			Dir:  filepath.Dir(script),
			Cmds: []StageCmd{{Label: name, Script: string(content)}},
		})
	}

	if len(p.Script) > 0 {
		stages = append(stages, hookStage("script", project.Root, p.Script))
	}

	return stages, nil
}

func hookStage(name, dir string, entries []string) Stage {
	cmds := make([]StageCmd, len(entries))
	for idx, entry := range entries {
		cmds[idx] = StageCmd{Label: name, Script: entry}
	}

	return Stage{Name: name, Dir: dir, Cmds: cmds}
}

func jobEnviron(project *Project, job *Job, opts *RunOptions) []string {
	injected := map[string]string{
		"CI":            "true",
		"CIVET_JOB":     job.Name(),
		"CIVET_CHANNEL": job.Channel,
		"CIVET_OS":      job.OS,
	}

	environ := MergeEnv(project.DotEnv, project.Pipeline.Env.Global, job.Env, injected)
	if opts.ToolsBin == "" {
		return environ
	}

	// prepend the tools dir to whatever PATH survived the merge
	for idx, entry := range environ {
		if strings.HasPrefix(entry, "PATH=") {
			environ[idx] = "PATH=" + opts.ToolsBin + string(os.PathListSeparator) + entry[len("PATH="):]
			return environ
		}
	}

	return append(environ, "PATH="+opts.ToolsBin)
}

// Run executes the given jobs strictly sequentially. The first failing job
// aborts the run unless it is marked allow_failures. Returns an error when
// the run as a whole failed.
func Run(ctx context.Context, project *Project, jobs []*Job, opts RunOptions) error {
	state := &RunState{
		RunID:   nanoid.New(),
		Results: map[string]JobResult{},
	}

	if opts.Resume && opts.StatePath != "" {
		prev, err := ReadState(opts.StatePath)
		if err == nil {
			state.Results = prev.Results
		} else if !eris.Is(err, os.ErrNotExist) {
			return eris.Wrapf(err, "failed to read state file %s", opts.StatePath)
		}
	}

	var runErr error
	for _, job := range jobs {
		if ctx.Err() != nil {
			runErr = ctx.Err()
			break
		}

		name := job.Name()
		if job.Skipped {
			log(ctx).Info().
				Str("job", name).
				Msgf("skipped (requires %s)", job.OS)
			state.Results[name] = JobResult{Status: StatusSkipped}
			continue
		}

		if opts.Resume && !opts.Force && state.Results[name].Status == StatusPassed {
			log(ctx).Info().
				Str("job", name).
				Msg("already passed, resuming")
			continue
		}

		log(ctx).Info().
			Str("job", name).
			Msgf("running on channel %q", job.Channel)

		stage, err := runJob(ctx, project, job, &opts)
		if err == nil {
			state.Results[name] = JobResult{Status: StatusPassed}
			continue
		}

		state.Results[name] = JobResult{Status: StatusFailed, Stage: stage}
		if job.AllowFailure {
			log(ctx).Warn().
				Str("job", name).
				Msgf("failed in %s but failures are allowed: %s", stage, eris.ToString(err, false))
			continue
		}

		runErr = eris.Wrapf(err, "job %s failed in stage %s", name, stage)
		break
	}

	if opts.StatePath != "" && !opts.DryRun {
		err := WriteState(opts.StatePath, state)
		if err != nil {
			log(ctx).Error().Err(err).Msgf("failed to write state file %s", opts.StatePath)
		}
	}

	return runErr
}

// runJob executes every stage of one job and reports the stage a failure
// happened in.
func runJob(ctx context.Context, project *Project, job *Job, opts *RunOptions) (string, error) {
	stages, err := BuildStages(project, job)
	if err != nil {
		return "discovery", err
	}

	environ := jobEnviron(project, job, opts)
	parser := syntax.NewParser()
	printer := syntax.NewPrinter(
		syntax.Minify(true),
	)

	for _, stage := range stages {
		err = runStage(ctx, job, stage, environ, parser, printer, opts)
		if err != nil {
			return stage.Name, err
		}
	}

	if checkErr := runChecker(ctx, project, job, opts); checkErr != nil {
		return opts.Checker.Name(), checkErr
	}

	return "", nil
}

// runStage executes every command of one stage in a fresh interpreter. A
// plain exit ends the stage; a nonzero status (or exit with a nonzero code)
// is an error that aborts the job.
func runStage(ctx context.Context, job *Job, stage Stage, environ []string, parser *syntax.Parser, printer *syntax.Printer, opts *RunOptions) error {
	runner, err := interp.New(
		interp.Dir(stage.Dir),
		interp.Env(expand.ListEnviron(environ...)),
		interp.ExecHandler(execHandler),
		interp.OpenHandler(openHandler),
		interp.StdIO(nil, os.Stdout, os.Stderr),
		interp.Params("-e"),
	)
	if err != nil {
		return eris.Wrap(err, "failed to initialize runner")
	}

	strBuffer := strings.Builder{}
	for _, item := range stage.Cmds {
		result, err := parser.Parse(strings.NewReader(item.Script), item.Label)
		if err != nil {
			return eris.Wrapf(err, "failed to parse %s", item.Label)
		}

		for _, stm := range result.Stmts {
			strBuffer.Reset()
			printer.Print(&strBuffer, stm)
			log(ctx).Info().
				Str("job", job.Name()).
				Str("stage", stage.Name).
				Bool("command", true).
				Msg(strBuffer.String())

			if !opts.DryRun {
				err = runner.Run(ctx, stm)
				if err != nil {
					return err
				}

				if runner.Exited() {
					return nil
				}
			}
		}

		if err = ctx.Err(); err != nil {
			return err
		}
	}

	return nil
}

func runChecker(ctx context.Context, project *Project, job *Job, opts *RunOptions) error {
	if opts.Checker == nil {
		return nil
	}

	log(ctx).Info().
		Str("job", job.Name()).
		Str("stage", opts.Checker.Name()).
		Msg("running check")

	if opts.DryRun {
		return nil
	}

	return opts.Checker.Check(ctx, project.Root)
}
