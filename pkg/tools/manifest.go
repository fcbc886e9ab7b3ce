// Package tools downloads and unpacks the helper tools a pipeline needs
// before its scripts run. The manifest lists each tool with a download URL,
// checksum and destination; the resulting bin directory is prepended to PATH
// for every job.
package tools

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// DefaultManifest is the manifest filename looked up at the project root.
const DefaultManifest = "TOOLS.yml"

// Spec describes a single downloadable tool.
type Spec struct {
	Condition  string `yaml:"if,omitempty"`
	Rejections string `yaml:"ifNot,omitempty"`
	URL        string
	Dest       string
	Sha256     string
	Strip      int
	MarkExec   []string `yaml:"markExec,omitempty"`
}

// Manifest is the parsed TOOLS.yml.
type Manifest struct {
	Vars  map[string]string
	Tools map[string]Spec
}

// LoadManifest reads and parses the manifest. The raw file content is
// returned as well so checksum updates can edit it in place.
func LoadManifest(path string) (*Manifest, string, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, "", eris.Wrapf(err, "could not open file %s", path)
	}

	var manifest Manifest
	err = yaml.Unmarshal(data, &manifest)
	if err != nil {
		return nil, "", eris.Wrapf(err, "failed to parse %s", path)
	}

	if manifest.Vars == nil {
		manifest.Vars = map[string]string{}
	}

	return &manifest, string(data), nil
}

func stampPath(manifestPath string) string {
	return manifestPath + ".stamps"
}

// loadStamps reads the url#sha256 tokens recorded for previously installed
// tools. A missing stamp file yields an empty map.
func loadStamps(manifestPath string) (map[string]string, error) {
	stamps := map[string]string{}
	data, err := ioutil.ReadFile(stampPath(manifestPath))
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return stamps, nil
		}
		return nil, eris.Wrapf(err, "failed to read stamps file %s", stampPath(manifestPath))
	}

	err = json.Unmarshal(data, &stamps)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse JSON file %s", stampPath(manifestPath))
	}
	return stamps, nil
}

func saveStamps(manifestPath string, stamps map[string]string) error {
	data, err := json.Marshal(stamps)
	if err != nil {
		return eris.Wrap(err, "failed to serialize stamps")
	}

	err = ioutil.WriteFile(stampPath(manifestPath), data, os.FileMode(0660))
	if err != nil {
		return eris.Wrapf(err, "failed to write stamps file %s", stampPath(manifestPath))
	}
	return nil
}

// BinDir returns the directory job PATHs are extended with.
func BinDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".tools")
}
