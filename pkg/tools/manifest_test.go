package tools

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadManifest(t *testing.T) {
	manifestPath := filepath.Join(t.TempDir(), DefaultManifest)
	err := ioutil.WriteFile(manifestPath, []byte(`
vars:
  VERSION: "1.4.2"
tools:
  helper:
    if: linux
    url: "https://example.com/helper-{VERSION}.tar.gz"
    dest: .tools
    sha256: abcdef
    strip: 1
    markExec:
      - helper
`), 0600)
	if err != nil {
		t.Fatal(err)
	}

	manifest, raw, err := LoadManifest(manifestPath)
	if err != nil {
		t.Fatalf("LoadManifest() failed: %+v", err)
	}

	if manifest.Vars["VERSION"] != "1.4.2" {
		t.Errorf("vars = %v", manifest.Vars)
	}

	spec, ok := manifest.Tools["helper"]
	if !ok {
		t.Fatalf("tools = %v", manifest.Tools)
	}
	if spec.Condition != "linux" || spec.Strip != 1 || spec.Sha256 != "abcdef" {
		t.Errorf("spec = %+v", spec)
	}
	if len(spec.MarkExec) != 1 || spec.MarkExec[0] != "helper" {
		t.Errorf("markExec = %v", spec.MarkExec)
	}
	if raw == "" {
		t.Error("raw manifest content missing")
	}
}

func TestLoadManifestMissing(t *testing.T) {
	_, _, err := LoadManifest(filepath.Join(t.TempDir(), DefaultManifest))
	if err == nil {
		t.Fatal("LoadManifest() succeeded on a missing file")
	}
}

func TestStampsRoundtrip(t *testing.T) {
	manifestPath := filepath.Join(t.TempDir(), DefaultManifest)

	stamps, err := loadStamps(manifestPath)
	if err != nil {
		t.Fatalf("loadStamps() failed on missing file: %+v", err)
	}
	if len(stamps) != 0 {
		t.Errorf("stamps = %v, want empty", stamps)
	}

	stamps["helper"] = "https://example.com/helper.tar.gz#abcdef"
	err = saveStamps(manifestPath, stamps)
	if err != nil {
		t.Fatalf("saveStamps() failed: %+v", err)
	}

	loaded, err := loadStamps(manifestPath)
	if err != nil {
		t.Fatalf("loadStamps() failed: %+v", err)
	}
	if loaded["helper"] != stamps["helper"] {
		t.Errorf("stamps = %v", loaded)
	}
}

func TestCreateDestStrip(t *testing.T) {
	destPath := t.TempDir()

	handle, dest, err := createDest(destPath, "helper-1.4.2/bin/helper", Spec{Strip: 1})
	if err != nil {
		t.Fatalf("createDest() failed: %+v", err)
	}
	handle.Close()

	want := filepath.Join(destPath, "bin", "helper")
	if dest != want {
		t.Errorf("dest = %q, want %q", dest, want)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Errorf("destination was not created: %v", err)
	}
}

func TestCreateDestStripsWholePath(t *testing.T) {
	destPath := t.TempDir()

	handle, _, err := createDest(destPath, "helper-1.4.2", Spec{Strip: 1})
	if err != nil {
		t.Fatalf("createDest() failed: %+v", err)
	}
	if handle != nil {
		handle.Close()
		t.Error("createDest() opened a file for a fully stripped path")
	}
}

func TestExtractorFor(t *testing.T) {
	for _, url := range []string{"a.zip", "a.tar.gz", "a.tar.bz2", "a.tar.xz"} {
		if _, err := extractorFor(url); err != nil {
			t.Errorf("extractorFor(%q) failed: %v", url, err)
		}
	}

	if _, err := extractorFor("a.rar"); err == nil {
		t.Error("extractorFor() accepted an unsupported format")
	}
}

func TestBinDir(t *testing.T) {
	if BinDir("/project") != filepath.Join("/project", ".tools") {
		t.Errorf("BinDir() = %q", BinDir("/project"))
	}
}
