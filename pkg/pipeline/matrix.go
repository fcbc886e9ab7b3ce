package pipeline

import (
	"os"
	"regexp"
	"runtime"
	"strings"

	"github.com/aidarkhanov/nanoid"
)

// hostOS maps GOOS values to the OS labels used in pipeline configs.
var hostOS = map[string]string{
	"darwin": "osx",
}

// HostOS returns the matrix label of the current host.
func HostOS() string {
	if label, ok := hostOS[runtime.GOOS]; ok {
		return label
	}
	return runtime.GOOS
}

// Expand produces one job per matrix cell, channels-major: every OS for the
// first channel, then every OS for the second channel, and for each
// channel/OS pair one job per env row. Excluded cells are dropped,
// allow_failures cells are flagged and cells whose OS doesn't match host are
// marked skipped.
func Expand(p *Pipeline, host string) []*Job {
	envRows := p.Env.Matrix
	if len(envRows) == 0 {
		envRows = []map[string]string{nil}
	}

	jobs := make([]*Job, 0, len(p.Channels)*len(p.OS)*len(envRows))
	for _, channel := range p.Channels {
		for _, osName := range p.OS {
			for _, row := range envRows {
				if matchesAny(p.Matrix.Exclude, channel, osName, row) {
					continue
				}

				job := &Job{
					ID:           nanoid.New(),
					Channel:      channel,
					OS:           osName,
					Env:          row,
					AllowFailure: matchesAny(p.Matrix.AllowFailures, channel, osName, row),
					Skipped:      osName != "" && osName != host,
				}
				jobs = append(jobs, job)
			}
		}
	}

	return jobs
}

func matchesAny(selectors []Selector, channel, osName string, env map[string]string) bool {
	for _, sel := range selectors {
		if sel.Matches(channel, osName, env) {
			return true
		}
	}
	return false
}

// ConditionVars builds the variable map tool conditions are evaluated
// against: the host GOOS and GOARCH, plus ci when running in CI.
func ConditionVars() map[string]string {
	vars := map[string]string{
		runtime.GOOS:   "true",
		runtime.GOARCH: "true",
	}

	if os.Getenv("CI") == "true" {
		vars["ci"] = "true"
	}

	return vars
}

var varMatcher = regexp.MustCompile(`\{([A-Z0-9_]+)\}`)

// SubstituteVars replaces {NAME} placeholders with values from vars. Unknown
// placeholders expand to the empty string.
func SubstituteVars(input string, vars map[string]string) string {
	return varMatcher.ReplaceAllStringFunc(input, func(varName string) string {
		value, ok := vars[varName[1:len(varName)-1]]
		if ok {
			return value
		}
		return ""
	})
}

// EvalConditions checks a comma-separated list of required vars and a list of
// rejected vars against the given var map. Every condition var must be set
// and non-empty, every rejection var must be unset or empty.
func EvalConditions(condition, rejection string, vars map[string]string) bool {
	for _, cond := range strings.Split(condition, ",") {
		if cond == "" {
			continue
		}

		value, ok := vars[strings.TrimSpace(cond)]
		if !ok || value == "" {
			return false
		}
	}

	for _, cond := range strings.Split(rejection, ",") {
		if cond == "" {
			continue
		}

		value, ok := vars[strings.TrimSpace(cond)]
		if ok && value != "" {
			return false
		}
	}
	return true
}
