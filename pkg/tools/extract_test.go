package tools

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/schollz/progressbar/v3"
)

func writeTarGz(t *testing.T, archivePath string, files map[string]string) {
	t.Helper()

	handle, err := os.Create(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	defer handle.Close()

	gzWriter := gzip.NewWriter(handle)
	tarWriter := tar.NewWriter(gzWriter)

	for name, content := range files {
		err = tarWriter.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0644,
			Size: int64(len(content)),
		})
		if err != nil {
			t.Fatal(err)
		}

		_, err = tarWriter.Write([]byte(content))
		if err != nil {
			t.Fatal(err)
		}
	}

	if err = tarWriter.Close(); err != nil {
		t.Fatal(err)
	}
	if err = gzWriter.Close(); err != nil {
		t.Fatal(err)
	}
}

func writeZip(t *testing.T, archivePath string, files map[string]string) {
	t.Helper()

	handle, err := os.Create(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	defer handle.Close()

	zipWriter := zip.NewWriter(handle)
	for name, content := range files {
		entry, err := zipWriter.Create(name)
		if err != nil {
			t.Fatal(err)
		}

		_, err = entry.Write([]byte(content))
		if err != nil {
			t.Fatal(err)
		}
	}

	if err = zipWriter.Close(); err != nil {
		t.Fatal(err)
	}
}

func runExtract(t *testing.T, archivePath, projectRoot string, spec Spec) {
	t.Helper()

	handler, err := extractorFor(archivePath)
	if err != nil {
		t.Fatal(err)
	}

	handle, err := os.Open(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	defer handle.Close()

	bar := progressbar.NewOptions64(-1, progressbar.OptionSetVisibility(false))
	err = handler(handle, bar, projectRoot, spec)
	if err != nil {
		t.Fatalf("extraction failed: %+v", err)
	}
}

func TestExtractTarGz(t *testing.T) {
	workDir := t.TempDir()
	archivePath := filepath.Join(workDir, "helper.tar.gz")
	writeTarGz(t, archivePath, map[string]string{
		"helper-1.4.2/bin/helper": "binary contents",
		"helper-1.4.2/README":     "docs",
	})

	projectRoot := filepath.Join(workDir, "project")
	runExtract(t, archivePath, projectRoot, Spec{Dest: ".tools", Strip: 1})

	content, err := ioutil.ReadFile(filepath.Join(projectRoot, ".tools", "bin", "helper"))
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "binary contents" {
		t.Errorf("extracted content = %q", content)
	}

	if _, err := os.Stat(filepath.Join(projectRoot, ".tools", "README")); err != nil {
		t.Errorf("second entry missing: %v", err)
	}
}

func TestExtractZip(t *testing.T) {
	workDir := t.TempDir()
	archivePath := filepath.Join(workDir, "helper.zip")
	writeZip(t, archivePath, map[string]string{
		"helper-1.4.2/helper.exe": "binary contents",
	})

	projectRoot := filepath.Join(workDir, "project")
	runExtract(t, archivePath, projectRoot, Spec{Dest: ".tools", Strip: 1})

	content, err := ioutil.ReadFile(filepath.Join(projectRoot, ".tools", "helper.exe"))
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "binary contents" {
		t.Errorf("extracted content = %q", content)
	}
}
