package tools

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestUpdateChecksums(t *testing.T) {
	manifestPath := filepath.Join(t.TempDir(), DefaultManifest)
	err := ioutil.WriteFile(manifestPath, []byte(`vars: {}
tools:
  helper:
    url: "https://example.com/helper.tar.gz"
    dest: .tools
    sha256: oldsum
  second:
    url: "https://example.com/second.tar.gz"
    dest: .tools
`), 0600)
	if err != nil {
		t.Fatal(err)
	}

	manifest, raw, err := LoadManifest(manifestPath)
	if err != nil {
		t.Fatal(err)
	}

	changes := map[string]string{
		"helper": "newsum",
		"second": "addedsum",
	}
	err = updateChecksums(manifestPath, raw, manifest, changes)
	if err != nil {
		t.Fatalf("updateChecksums() failed: %+v", err)
	}

	updated, rawUpdated, err := LoadManifest(manifestPath)
	if err != nil {
		t.Fatalf("rewritten manifest no longer parses: %+v", err)
	}

	if updated.Tools["helper"].Sha256 != "newsum" {
		t.Errorf("helper sha256 = %q", updated.Tools["helper"].Sha256)
	}
	if updated.Tools["second"].Sha256 != "addedsum" {
		t.Errorf("second sha256 = %q", updated.Tools["second"].Sha256)
	}
	if strings.Contains(rawUpdated, "oldsum") {
		t.Error("old checksum still present in the manifest")
	}
	if updated.Tools["helper"].URL != "https://example.com/helper.tar.gz" {
		t.Errorf("url was touched: %q", updated.Tools["helper"].URL)
	}
}

func TestFetchSkipsUnmatchedConditions(t *testing.T) {
	root := t.TempDir()
	manifestPath := filepath.Join(root, DefaultManifest)
	err := ioutil.WriteFile(manifestPath, []byte(`tools:
  helper:
    if: someotheros
    url: "https://example.invalid/helper.tar.gz"
    dest: .tools
    sha256: abcdef
`), 0600)
	if err != nil {
		t.Fatal(err)
	}

	// the URL is unreachable, so this only passes when the condition
	// filter skips the download entirely
	err = Fetch(root, manifestPath, false)
	if err != nil {
		t.Fatalf("Fetch() failed: %+v", err)
	}

	if _, err := os.Stat(filepath.Join(root, ".tools")); !os.IsNotExist(err) {
		t.Error("skipped tool was extracted anyway")
	}
}
