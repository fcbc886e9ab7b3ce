package pipeline

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
)

func writeScript(t *testing.T, root, relPath string) {
	t.Helper()

	absPath := filepath.Join(root, relPath)
	err := os.MkdirAll(filepath.Dir(absPath), 0700)
	if err != nil {
		t.Fatal(err)
	}

	err = ioutil.WriteFile(absPath, []byte("#!/bin/sh\n"), 0700)
	if err != nil {
		t.Fatal(err)
	}
}

func TestDiscoverScriptsOrder(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "zeta/ci.sh")
	writeScript(t, root, "alpha/ci.sh")
	writeScript(t, root, "midway/ci.sh")
	// directories without a script are skipped
	err := os.MkdirAll(filepath.Join(root, "empty"), 0700)
	if err != nil {
		t.Fatal(err)
	}

	scripts, err := DiscoverScripts(root, "*/ci.sh")
	if err != nil {
		t.Fatalf("DiscoverScripts() failed: %+v", err)
	}

	if len(scripts) != 3 {
		t.Fatalf("found %d scripts, want 3: %v", len(scripts), scripts)
	}

	want := []string{"alpha", "midway", "zeta"}
	for idx, script := range scripts {
		dir := filepath.Base(filepath.Dir(script))
		if dir != want[idx] {
			t.Errorf("script %d is in %s, want %s", idx, dir, want[idx])
		}
	}
}

func TestDiscoverScriptsDedupe(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "alpha/ci.sh")

	scripts, err := DiscoverScripts(root, "*/ci.sh", "alpha/ci.sh")
	if err != nil {
		t.Fatalf("DiscoverScripts() failed: %+v", err)
	}

	if len(scripts) != 1 {
		t.Errorf("found %d scripts, want 1: %v", len(scripts), scripts)
	}
}

func TestDiscoverScriptsNoMatches(t *testing.T) {
	root := t.TempDir()

	scripts, err := DiscoverScripts(root, "*/ci.sh")
	if err != nil {
		t.Fatalf("DiscoverScripts() failed: %+v", err)
	}

	if len(scripts) != 0 {
		t.Errorf("found %d scripts in empty dir: %v", len(scripts), scripts)
	}
}

func TestDiscoverScriptsLiteralMissing(t *testing.T) {
	root := t.TempDir()

	_, err := DiscoverScripts(root, "setup/ci.sh")
	if err == nil {
		t.Fatal("DiscoverScripts() accepted a missing literal path")
	}
}

func TestDiscoverScriptsSkipsDirectories(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "alpha/ci.sh")
	err := os.MkdirAll(filepath.Join(root, "beta", "ci.sh"), 0700)
	if err != nil {
		t.Fatal(err)
	}

	scripts, err := DiscoverScripts(root, "*/ci.sh")
	if err != nil {
		t.Fatalf("DiscoverScripts() failed: %+v", err)
	}

	if len(scripts) != 1 {
		t.Errorf("found %d scripts, want 1: %v", len(scripts), scripts)
	}
}
