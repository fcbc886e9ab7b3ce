package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	starsyntax "go.starlark.net/syntax"
)

// CopyrightConfig configures the built-in copyright comment check that runs
// as the final stage of every job.
type CopyrightConfig struct {
	Paths      []string `yaml:"paths"`
	Extensions []string `yaml:"extensions"`
	Ignore     []string `yaml:"ignore"`
	Pattern    string   `yaml:"pattern"`
}

// Selector matches matrix cells. Empty fields act as wildcards.
type Selector struct {
	Channel string            `yaml:"channel,omitempty"`
	OS      string            `yaml:"os,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
}

// Matches reports whether the given cell is covered by this selector.
func (s Selector) Matches(channel, os string, env map[string]string) bool {
	if s.Channel != "" && s.Channel != channel {
		return false
	}
	if s.OS != "" && s.OS != os {
		return false
	}
	for key, value := range s.Env {
		if env[key] != value {
			return false
		}
	}
	return true
}

// MatrixRules holds the cell-level adjustments applied after expansion.
type MatrixRules struct {
	Exclude       []Selector `yaml:"exclude"`
	AllowFailures []Selector `yaml:"allow_failures"`
}

// EnvConfig mirrors the env section of the config: a global map applied to
// every job plus one optional row per matrix cell.
type EnvConfig struct {
	Global map[string]string   `yaml:"global"`
	Matrix []map[string]string `yaml:"matrix"`
}

// Pipeline is the fully parsed pipeline declaration.
type Pipeline struct {
	Language     string           `yaml:"language"`
	Channels     []string         `yaml:"channels"`
	OS           []string         `yaml:"os"`
	Env          EnvConfig        `yaml:"env"`
	BeforeScript []string         `yaml:"before_script"`
	Discover     string           `yaml:"discover"`
	Script       []string         `yaml:"script"`
	Copyright    *CopyrightConfig `yaml:"copyright"`
	Tools        string           `yaml:"tools"`
	Requires     string           `yaml:"requires"`
	Matrix       MatrixRules      `yaml:"matrix"`
}

// Project ties a pipeline to the directory it was loaded from.
type Project struct {
	Root       string
	ConfigPath string
	Pipeline   *Pipeline
	// DotEnv holds the variables loaded from the project's .env file. They
	// rank below the pipeline's global env during merging.
	DotEnv map[string]string
}

// Job is a single cell of the expanded matrix.
type Job struct {
	ID           string
	Channel      string
	OS           string
	Env          map[string]string
	AllowFailure bool
	// Skipped is set when the job's OS doesn't match the host. Such jobs are
	// reported but never executed.
	Skipped bool
}

// Name returns the stable, human-readable job name used for selection on the
// command line.
func (j *Job) Name() string {
	parts := make([]string, 0, 3)
	if j.Channel != "" {
		parts = append(parts, j.Channel)
	}
	if j.OS != "" {
		parts = append(parts, j.OS)
	}

	keys := make([]string, 0, len(j.Env))
	for key := range j.Env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", key, j.Env[key]))
	}

	if len(parts) == 0 {
		return "default"
	}
	return strings.Join(parts, "/")
}

// JobResult records the outcome of one job for the run cache.
type JobResult struct {
	Status string
	Stage  string
}

const (
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Path is a filesystem path value exposed to Starlark configs.
type Path string

func (p Path) String() string {
	return starlark.String(p).String()
}

func (p Path) Type() string {
	return "path"
}

func (p Path) Freeze() {}

func (p Path) Truth() starlark.Bool {
	return p != ""
}

func (p Path) Hash() (uint32, error) {
	return starlark.String(p).Hash()
}

func (p Path) CompareSameType(op starsyntax.Token, y_ starlark.Value, depth int) (bool, error) {
	y := y_.(Path)

	switch op {
	case starsyntax.EQL:
		return p == y, nil
	case starsyntax.NEQ:
		return p != y, nil
	case starsyntax.LT:
		return p < y, nil
	case starsyntax.LE:
		return p <= y, nil
	case starsyntax.GT:
		return p > y, nil
	case starsyntax.GE:
		return p >= y, nil
	}

	return false, eris.Errorf("unknown operator %v", op)
}

func (p Path) Index(i int) starlark.Value {
	return starlark.String(p[i])
}

func (p Path) Len() int {
	return len(p)
}

func (p Path) Slice(start, end, step int) starlark.Value {
	return starlark.String(p).Slice(start, end, step)
}

// ScriptOption describes an option() declared by a Starlark config.
type ScriptOption struct {
	DefaultValue starlark.String
	Help         string
}

func (o ScriptOption) Default() string {
	return o.DefaultValue.GoString()
}
