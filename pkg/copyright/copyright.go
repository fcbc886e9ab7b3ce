// Package copyright implements the copyright comment check that runs as the
// final stage of every pipeline job. It scans the leading comment block of
// each source file and requires it to match a pattern.
package copyright

import (
	"context"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

type commentStyle struct {
	line       string
	blockStart string
	blockEnd   string
}

var commentStyles = map[string]commentStyle{
	".c":    {"//", "/*", "*/"},
	".cpp":  {"//", "/*", "*/"},
	".go":   {"//", "/*", "*/"},
	".h":    {"//", "/*", "*/"},
	".hpp":  {"//", "/*", "*/"},
	".js":   {"//", "/*", "*/"},
	".rs":   {"//", "/*", "*/"},
	".ts":   {"//", "/*", "*/"},
	".py":   {"#", "", ""},
	".sh":   {"#", "", ""},
	".toml": {"#", "", ""},
	".yaml": {"#", "", ""},
	".yml":  {"#", "", ""},
}

// skipDirs are never descended into, independent of the ignore list.
var skipDirs = map[string]bool{
	".git":         true,
	".tools":       true,
	"node_modules": true,
}

// DefaultPattern matches the usual "Copyright <year> <holder>" line.
const DefaultPattern = `Copyright`

// Checker scans source trees for missing copyright comments.
type Checker struct {
	paths      []string
	extensions map[string]bool
	ignore     []string
	pattern    *regexp.Regexp
}

// New builds a Checker. paths defaults to the whole project, extensions to
// every known comment style and pattern to DefaultPattern.
func New(paths, extensions, ignore []string, pattern string) (*Checker, error) {
	if len(paths) == 0 {
		paths = []string{"."}
	}
	if pattern == "" {
		pattern = DefaultPattern
	}

	matcher, err := regexp.Compile(pattern)
	if err != nil {
		return nil, eris.Wrapf(err, "invalid copyright pattern %q", pattern)
	}

	extSet := map[string]bool{}
	for _, ext := range extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, known := commentStyles[ext]; !known {
			return nil, eris.Errorf("no comment style known for extension %s", ext)
		}
		extSet[ext] = true
	}
	if len(extSet) == 0 {
		for ext := range commentStyles {
			extSet[ext] = true
		}
	}

	return &Checker{
		paths:      paths,
		extensions: extSet,
		ignore:     ignore,
		pattern:    matcher,
	}, nil
}

// Name implements the pipeline checker interface.
func (c *Checker) Name() string {
	return "copyright"
}

// Check walks the configured paths below root and fails when any matching
// file lacks a leading comment that matches the pattern. Every offender is
// reported, not just the first.
func (c *Checker) Check(ctx context.Context, root string) error {
	offenders := []string{}

	for _, item := range c.paths {
		base := filepath.Join(root, item)
		err := filepath.Walk(base, func(curPath string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}

			rel, relErr := filepath.Rel(root, curPath)
			if relErr != nil {
				rel = curPath
			}
			rel = filepath.ToSlash(rel)

			if info.IsDir() {
				if skipDirs[info.Name()] || c.ignored(rel) {
					return filepath.SkipDir
				}
				return nil
			}

			if !info.Mode().IsRegular() || c.ignored(rel) {
				return nil
			}

			style, ok := commentStyles[filepath.Ext(curPath)]
			if !ok || !c.extensions[filepath.Ext(curPath)] {
				return nil
			}

			content, err := ioutil.ReadFile(curPath)
			if err != nil {
				return eris.Wrapf(err, "failed to read %s", curPath)
			}

			if !c.pattern.MatchString(leadingComment(string(content), style)) {
				offenders = append(offenders, rel)
			}
			return nil
		})
		if err != nil {
			return eris.Wrapf(err, "failed to scan %s", base)
		}
	}

	if len(offenders) > 0 {
		sort.Strings(offenders)
		return eris.Errorf("%d file(s) are missing a copyright comment:\n  %s",
			len(offenders), strings.Join(offenders, "\n  "))
	}
	return nil
}

func (c *Checker) ignored(rel string) bool {
	for _, pattern := range c.ignore {
		match, err := path.Match(pattern, rel)
		if err == nil && match {
			return true
		}

		// also test against the base name so patterns like *.gen.go work
		match, err = path.Match(pattern, path.Base(rel))
		if err == nil && match {
			return true
		}
	}
	return false
}

// leadingComment extracts the comment block at the top of a file. A shebang
// line and blank lines before the comment are skipped.
func leadingComment(content string, style commentStyle) string {
	lines := strings.Split(content, "\n")
	collected := []string{}
	inBlock := false

	for idx, line := range lines {
		trimmed := strings.TrimSpace(line)

		if inBlock {
			collected = append(collected, trimmed)
			if strings.Contains(trimmed, style.blockEnd) {
				break
			}
			continue
		}

		if trimmed == "" {
			continue
		}

		if idx == 0 && strings.HasPrefix(trimmed, "#!") {
			continue
		}

		if strings.HasPrefix(trimmed, style.line) {
			collected = append(collected, strings.TrimPrefix(trimmed, style.line))
			continue
		}

		if style.blockStart != "" && strings.HasPrefix(trimmed, style.blockStart) {
			collected = append(collected, trimmed)
			if strings.Contains(trimmed[len(style.blockStart):], style.blockEnd) {
				break
			}
			inBlock = true
			continue
		}

		// first non-comment line ends the header
		break
	}

	return strings.Join(collected, "\n")
}
