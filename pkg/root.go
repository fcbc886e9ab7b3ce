package pkg

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"
)

// ConfigNames lists the config files that mark a project root, in the order
// they are checked.
var ConfigNames = []string{".civet.yml", ".civet.star"}

// FindProjectRoot walks from the given directory towards the filesystem root
// and returns the first directory that contains a civet config file or a .git
// directory. The second return value is the path of the config file that was
// found ("" if the root was detected through .git).
func FindProjectRoot(start string) (string, string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", "", eris.Wrapf(err, "failed to resolve %s", start)
	}

	for {
		for _, name := range ConfigNames {
			cfgPath := filepath.Join(dir, name)
			info, err := os.Stat(cfgPath)
			if err == nil && info.Mode().IsRegular() {
				return dir, cfgPath, nil
			}
			if err != nil && !eris.Is(err, os.ErrNotExist) {
				return "", "", eris.Wrapf(err, "failed to check %s", cfgPath)
			}
		}

		_, err := os.Stat(filepath.Join(dir, ".git"))
		if err == nil {
			return dir, "", nil
		}
		if !eris.Is(err, os.ErrNotExist) {
			return "", "", eris.Wrap(err, "error occurred while searching for the project root")
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", "", eris.New("no project root found")
}

func PrintTask(msg string) {
	colorstring.Printf("[blue][bold]==>[default] %s\n", msg)
}

func PrintSubtask(msg string) {
	colorstring.Printf("[green][bold]  ->[reset] %s\n", msg)
}

func PrintError(msg string) {
	colorstring.Printf("[red][bold]  ->[reset] %s\n", msg)
}
