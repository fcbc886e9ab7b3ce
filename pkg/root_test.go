package pkg

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
)

func TestFindProjectRootConfig(t *testing.T) {
	root := t.TempDir()
	cfgPath := filepath.Join(root, ".civet.yml")
	err := ioutil.WriteFile(cfgPath, []byte("language: rust\n"), 0600)
	if err != nil {
		t.Fatal(err)
	}

	nested := filepath.Join(root, "alpha", "src")
	err = os.MkdirAll(nested, 0700)
	if err != nil {
		t.Fatal(err)
	}

	foundRoot, foundCfg, err := FindProjectRoot(nested)
	if err != nil {
		t.Fatalf("FindProjectRoot() failed: %+v", err)
	}

	if foundRoot != root {
		t.Errorf("root = %q, want %q", foundRoot, root)
	}
	if foundCfg != cfgPath {
		t.Errorf("config = %q, want %q", foundCfg, cfgPath)
	}
}

func TestFindProjectRootGit(t *testing.T) {
	root := t.TempDir()
	err := os.MkdirAll(filepath.Join(root, ".git"), 0700)
	if err != nil {
		t.Fatal(err)
	}

	nested := filepath.Join(root, "alpha")
	err = os.MkdirAll(nested, 0700)
	if err != nil {
		t.Fatal(err)
	}

	foundRoot, foundCfg, err := FindProjectRoot(nested)
	if err != nil {
		t.Fatalf("FindProjectRoot() failed: %+v", err)
	}

	if foundRoot != root {
		t.Errorf("root = %q, want %q", foundRoot, root)
	}
	if foundCfg != "" {
		t.Errorf("config = %q, want empty", foundCfg)
	}
}

func TestFindProjectRootPrefersConfig(t *testing.T) {
	root := t.TempDir()
	err := os.MkdirAll(filepath.Join(root, ".git"), 0700)
	if err != nil {
		t.Fatal(err)
	}

	nested := filepath.Join(root, "alpha")
	err = os.MkdirAll(nested, 0700)
	if err != nil {
		t.Fatal(err)
	}

	cfgPath := filepath.Join(nested, ".civet.star")
	err = ioutil.WriteFile(cfgPath, []byte("def configure():\n    pass\n"), 0600)
	if err != nil {
		t.Fatal(err)
	}

	foundRoot, foundCfg, err := FindProjectRoot(nested)
	if err != nil {
		t.Fatalf("FindProjectRoot() failed: %+v", err)
	}

	if foundRoot != nested || foundCfg != cfgPath {
		t.Errorf("found %q / %q, want the nested config", foundRoot, foundCfg)
	}
}
