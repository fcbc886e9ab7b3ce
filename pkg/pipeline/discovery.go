package pipeline

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"
)

func shellReadDir(path string) ([]os.FileInfo, error) {
	if path == "" {
		path = "."
	}

	return ioutil.ReadDir(path)
}

// DiscoverScripts expands the given glob patterns relative to root and
// returns the matching files in lexical order (the discovery order stage
// scripts run in). Patterns that match nothing are silently dropped; a
// literal path without glob characters must exist.
func DiscoverScripts(root string, patterns ...string) ([]string, error) {
	result := []string{}
	seen := map[string]bool{}
	cfg := expand.Config{
		ReadDir:  shellReadDir,
		GlobStar: true,
	}

	parser := syntax.NewParser()
	for _, item := range patterns {
		literal := !strings.ContainsAny(item, "*?[")
		item = filepath.ToSlash(filepath.Join(root, item))

		words := make([]*syntax.Word, 0)
		parser.Words(strings.NewReader(item), func(w *syntax.Word) bool {
			words = append(words, w)
			return true
		})

		matches, err := expand.Fields(&cfg, words...)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to resolve pattern %s", item)
		}

		for _, match := range matches {
			// An unmatched pattern is returned verbatim. Skip those results.
			if strings.Contains(match, "*") {
				continue
			}

			info, err := os.Stat(match)
			if err != nil {
				if literal {
					return nil, eris.Wrapf(err, "script %s not found", match)
				}
				continue
			}

			if !info.Mode().IsRegular() || seen[match] {
				continue
			}

			seen[match] = true
			result = append(result, match)
		}

		if literal && len(matches) == 0 {
			return nil, eris.Errorf("script %s not found", item)
		}
	}

	sort.Strings(result)
	return result, nil
}
