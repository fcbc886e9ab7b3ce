package pipeline

import (
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// DefaultDiscover is the glob used to find stage scripts when the config
// doesn't override it.
const DefaultDiscover = "*/ci.sh"

// LoadProject reads the config file at cfgPath (YAML or Starlark, decided by
// the file extension) and returns the project it declares. options is only
// consulted by Starlark configs (option() values).
func LoadProject(ctx context.Context, cfgPath string, options map[string]string) (*Project, error) {
	cfgPath, err := filepath.Abs(cfgPath)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to resolve %s", cfgPath)
	}

	root := filepath.Dir(cfgPath)
	var pipeline *Pipeline
	if strings.HasSuffix(cfgPath, ".star") {
		pipeline, _, err = RunConfigScript(ctx, cfgPath, root, options, true)
	} else {
		pipeline, err = parseConfigFile(cfgPath)
	}
	if err != nil {
		return nil, err
	}

	applyDefaults(pipeline)
	err = validate(pipeline)
	if err != nil {
		return nil, eris.Wrapf(err, "invalid config %s", cfgPath)
	}

	project := &Project{
		Root:       root,
		ConfigPath: cfgPath,
		Pipeline:   pipeline,
	}

	dotEnvPath := filepath.Join(root, ".env")
	dotEnv, err := godotenv.Read(dotEnvPath)
	if err == nil {
		project.DotEnv = dotEnv
	} else if !eris.Is(err, os.ErrNotExist) {
		return nil, eris.Wrapf(err, "failed to read %s", dotEnvPath)
	}

	return project, nil
}

func parseConfigFile(cfgPath string) (*Pipeline, error) {
	data, err := ioutil.ReadFile(cfgPath)
	if err != nil {
		return nil, eris.Wrapf(err, "could not open file %s", cfgPath)
	}

	var pipeline Pipeline
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	err = decoder.Decode(&pipeline)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse %s", cfgPath)
	}

	return &pipeline, nil
}

func applyDefaults(p *Pipeline) {
	// an empty axis still produces one cell
	if len(p.Channels) == 0 {
		p.Channels = []string{""}
	}
	if len(p.OS) == 0 {
		p.OS = []string{""}
	}
	if p.Discover == "" {
		p.Discover = DefaultDiscover
	}
	if p.Copyright != nil && p.Copyright.Pattern == "" {
		p.Copyright.Pattern = `Copyright`
	}
}

func validate(p *Pipeline) error {
	seen := map[string]bool{}
	for _, channel := range p.Channels {
		if seen[channel] {
			return eris.Errorf("duplicate channel %q", channel)
		}
		seen[channel] = true
	}

	seen = map[string]bool{}
	for _, name := range p.OS {
		if seen[name] {
			return eris.Errorf("duplicate os %q", name)
		}
		seen[name] = true
	}

	if p.Requires != "" {
		_, err := semver.NewConstraint(p.Requires)
		if err != nil {
			return eris.Wrapf(err, "invalid requires constraint %q", p.Requires)
		}
	}

	return nil
}

// CheckRequires validates the tool version against the config's requires
// constraint.
func (p *Pipeline) CheckRequires(version string) error {
	if p.Requires == "" {
		return nil
	}

	constraint, err := semver.NewConstraint(p.Requires)
	if err != nil {
		return eris.Wrapf(err, "invalid requires constraint %q", p.Requires)
	}

	current, err := semver.NewVersion(version)
	if err != nil {
		return eris.Wrapf(err, "invalid version %q", version)
	}

	if !constraint.Check(current) {
		return eris.Errorf("this project requires civet %s but this is %s", p.Requires, version)
	}
	return nil
}
