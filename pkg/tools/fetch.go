package tools

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"

	"github.com/civet-run/civet/pkg"
	"github.com/civet-run/civet/pkg/pipeline"
)

func getProgressBar(length int64, desc string) *progressbar.ProgressBar {
	if os.Getenv("CI") == "true" {
		// progress bars just clutter CI logs
		return progressbar.NewOptions64(length, progressbar.OptionSetVisibility(false))
	}

	return progressbar.DefaultBytes(length, desc)
}

// Fetch downloads, verifies and unpacks every tool from the manifest whose
// conditions hold on this host. Tools whose stamp still matches are skipped.
// With update set, mismatched checksums are written back to the manifest
// instead of failing.
func Fetch(projectRoot, manifestPath string, update bool) error {
	pkg.PrintTask("Loading manifest")
	manifest, rawManifest, err := LoadManifest(manifestPath)
	if err != nil {
		return err
	}

	stamps, err := loadStamps(manifestPath)
	if err != nil {
		return err
	}

	pkg.PrintTask("Downloading tools")
	changes, err := downloadAndExtract(manifest, stamps, projectRoot, update)

	sErr := saveStamps(manifestPath, stamps)
	if sErr != nil {
		pkg.PrintError(sErr.Error())
	}

	if err != nil {
		return err
	}

	if update && len(changes) > 0 {
		pkg.PrintTask("Updating " + filepath.Base(manifestPath))
		err = updateChecksums(manifestPath, rawManifest, manifest, changes)
		if err != nil {
			return err
		}
	}

	pkg.PrintTask("Done")
	return nil
}

func downloadAndExtract(manifest *Manifest, stamps map[string]string, projectRoot string, update bool) (map[string]string, error) {
	client := &http.Client{
		Timeout: time.Minute * 30,
	}
	buf := make([]byte, 4096)

	vars := pipeline.ConditionVars()
	for key, value := range manifest.Vars {
		vars[key] = value
	}

	changes := map[string]string{}
	for name, meta := range manifest.Tools {
		// conditions are evaluated even when updating because the variable
		// placeholders in the URL have to be expanded either way
		meta.URL = pipeline.SubstituteVars(meta.URL, vars)
		skip := !pipeline.EvalConditions(meta.Condition, meta.Rejections, vars)
		if skip && !update {
			continue
		}

		destPath := filepath.Join(projectRoot, meta.Dest)
		destInfo, err := os.Stat(destPath)
		destExists := err == nil

		stampToken := meta.URL + "#" + meta.Sha256
		stamp, ok := stamps[name]
		if ok && stampToken == stamp && destExists {
			continue
		}

		pkg.PrintSubtask(name + ":  " + meta.URL)
		if meta.Sha256 == "" && !update {
			return changes, eris.Errorf("tool %s doesn't have a checksum", name)
		}

		digest, arHandle, cleanup, err := download(client, meta.URL, buf)
		if err != nil {
			return changes, err
		}

		if digest != meta.Sha256 {
			if !update {
				cleanup()
				return changes, eris.Errorf("checksum check failed for %s", name)
			}

			fmt.Println("      Updating checksum")
			changes[name] = digest
		}

		if skip {
			cleanup()
			continue
		}

		if destExists {
			pkg.PrintSubtask(fmt.Sprintf("Remove %s", destPath))
			if destInfo.IsDir() {
				err = os.RemoveAll(destPath)
			} else {
				err = os.Remove(destPath)
			}
			if err != nil {
				cleanup()
				return changes, err
			}
		}

		extractor, err := extractorFor(meta.URL)
		if err != nil {
			cleanup()
			return changes, err
		}

		arHandle.Seek(0, io.SeekStart)
		arInfo, err := arHandle.Stat()
		if err != nil {
			cleanup()
			return changes, err
		}

		bar := getProgressBar(arInfo.Size(), "      extract")
		err = extractor(arHandle, bar, projectRoot, meta)
		cleanup()
		if err != nil {
			return changes, err
		}

		if runtime.GOOS != "windows" {
			// .zip files don't carry permissions which means we have to manually fix permissions for binaries in .zip files
			for _, binPath := range meta.MarkExec {
				binPath = filepath.Join(projectRoot, meta.Dest, binPath)
				fi, err := os.Stat(binPath)
				if err != nil {
					return changes, eris.Wrapf(err, "failed to read permissions for %s", binPath)
				}

				err = os.Chmod(binPath, fi.Mode()|0700)
				if err != nil {
					return changes, eris.Wrapf(err, "failed to mark %s as executable", binPath)
				}
			}
		}

		stamps[name] = stampToken
	}

	return changes, nil
}

// download streams the URL into a temp file while hashing it and returns the
// hex digest, the open file and a cleanup func.
func download(client *http.Client, url string, buf []byte) (string, *os.File, func(), error) {
	arHandle, err := ioutil.TempFile("", "civet-tool-*.tmp")
	if err != nil {
		return "", nil, nil, eris.Wrap(err, "failed to create temporary download file")
	}

	cleanup := func() {
		arHandle.Close()
		os.Remove(arHandle.Name())
	}

	resp, err := client.Get(url)
	if err != nil {
		cleanup()
		return "", nil, nil, eris.Wrapf(err, "failed to start download for %s", url)
	}
	defer resp.Body.Close()

	hash := sha256.New()
	bar := getProgressBar(resp.ContentLength, "     download")
	for {
		n, err := resp.Body.Read(buf)
		if err != nil && n < 1 {
			if err == io.EOF {
				break
			}
			cleanup()
			return "", nil, nil, eris.Wrapf(err, "failed during download of %s", url)
		}

		_, err = hash.Write(buf[:n])
		if err != nil {
			cleanup()
			return "", nil, nil, eris.Wrapf(err, "failed to calculate checksum for %s", url)
		}

		_, err = arHandle.Write(buf[:n])
		if err != nil {
			cleanup()
			return "", nil, nil, eris.Wrap(err, "failed to write download to temporary file")
		}

		bar.Write(buf[:n])
	}
	bar.Finish()

	return hex.EncodeToString(hash.Sum(nil)), arHandle, cleanup, nil
}

// updateChecksums rewrites the sha256 entries of the named tools inside the
// raw manifest text, preserving everything else byte for byte.
func updateChecksums(manifestPath, rawManifest string, manifest *Manifest, changes map[string]string) error {
	generated := rawManifest
	for name, newChecksum := range changes {
		pos := strings.Index(generated, name+":\n")
		if pos == -1 {
			return eris.Errorf("failed to find the section for %s", name)
		}

		oldChecksum := manifest.Tools[name].Sha256
		if oldChecksum == "" {
			start := pos + len(name) + 2
			generated = generated[:start] + "    sha256: " + newChecksum + "\n" + generated[start:]
			continue
		}

		subPos := strings.Index(generated[pos:], "sha256: "+oldChecksum)
		if subPos == -1 {
			fmt.Printf("     Couldn't find checksum section for %s.\n", name)
			continue
		}

		start := pos + subPos + 8
		end := start + len(oldChecksum)
		generated = generated[:start] + newChecksum + generated[end:]
	}

	return ioutil.WriteFile(manifestPath, []byte(generated), os.FileMode(0660))
}
