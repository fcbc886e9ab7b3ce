package artifact

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func buildTree(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()
	for relPath, content := range files {
		absPath := filepath.Join(root, relPath)
		err := os.MkdirAll(filepath.Dir(absPath), 0700)
		if err != nil {
			t.Fatal(err)
		}

		err = ioutil.WriteFile(absPath, []byte(content), 0600)
		if err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestArtifactRoundtrip(t *testing.T) {
	files := map[string]string{
		"logs/alpha.log": "alpha stage output\n",
		"logs/beta.log":  strings.Repeat("beta stage output\n", 200),
		"target/helper":  "binary contents",
		"results.yml":    "status: passed\n",
	}
	root := buildTree(t, files)

	bundlePath := filepath.Join(t.TempDir(), "run.cart")
	writer, err := NewWriter(bundlePath)
	if err != nil {
		t.Fatalf("NewWriter() failed: %+v", err)
	}

	err = writer.AddTree(root)
	if err != nil {
		t.Fatalf("AddTree() failed: %+v", err)
	}

	err = writer.Close()
	if err != nil {
		t.Fatalf("Close() failed: %+v", err)
	}

	reader, err := OpenReader(bundlePath)
	if err != nil {
		t.Fatalf("OpenReader() failed: %+v", err)
	}
	defer reader.Close()

	listed := reader.List()
	if len(listed) != len(files) {
		t.Fatalf("List() = %v, want %d entries", listed, len(files))
	}
	for _, item := range listed {
		if _, ok := files[item]; !ok {
			t.Errorf("unexpected entry %q", item)
		}
	}

	dest := t.TempDir()
	err = reader.Extract(dest)
	if err != nil {
		t.Fatalf("Extract() failed: %+v", err)
	}

	for relPath, want := range files {
		content, err := ioutil.ReadFile(filepath.Join(dest, relPath))
		if err != nil {
			t.Errorf("missing %s: %v", relPath, err)
			continue
		}
		if string(content) != want {
			t.Errorf("%s content mismatch (%d bytes, want %d)", relPath, len(content), len(want))
		}
	}
}

func TestArtifactNestedDirectories(t *testing.T) {
	bundlePath := filepath.Join(t.TempDir(), "run.cart")
	writer, err := NewWriter(bundlePath)
	if err != nil {
		t.Fatal(err)
	}

	err = writer.OpenDirectory("stable")
	if err != nil {
		t.Fatal(err)
	}
	err = writer.WriteFile("job.log", strings.NewReader("stable output"))
	if err != nil {
		t.Fatal(err)
	}
	err = writer.CloseDirectory()
	if err != nil {
		t.Fatal(err)
	}

	err = writer.WriteFile("summary.log", strings.NewReader("all passed"))
	if err != nil {
		t.Fatal(err)
	}

	if err = writer.Close(); err != nil {
		t.Fatal(err)
	}

	reader, err := OpenReader(bundlePath)
	if err != nil {
		t.Fatalf("OpenReader() failed: %+v", err)
	}
	defer reader.Close()

	listed := strings.Join(reader.List(), " ")
	if listed != "stable/job.log summary.log" {
		t.Errorf("List() = %q", listed)
	}
}

func TestOpenReaderRejectsGarbage(t *testing.T) {
	bundlePath := filepath.Join(t.TempDir(), "not-a-bundle")
	err := ioutil.WriteFile(bundlePath, []byte("random contents that are long enough"), 0600)
	if err != nil {
		t.Fatal(err)
	}

	_, err = OpenReader(bundlePath)
	if err == nil {
		t.Fatal("OpenReader() accepted a file without the bundle magic")
	}
}
