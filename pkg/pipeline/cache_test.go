package pipeline

import (
	"path/filepath"
	"testing"
)

func TestStateRoundtrip(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), ".civet-state")

	state := &RunState{
		RunID: "test-run",
		Results: map[string]JobResult{
			"stable/linux":  {Status: StatusPassed},
			"nightly/linux": {Status: StatusFailed, Stage: "alpha/ci.sh"},
		},
	}

	err := WriteState(statePath, state)
	if err != nil {
		t.Fatalf("WriteState() failed: %v", err)
	}

	loaded, err := ReadState(statePath)
	if err != nil {
		t.Fatalf("ReadState() failed: %v", err)
	}

	if loaded.RunID != "test-run" {
		t.Errorf("RunID = %q", loaded.RunID)
	}
	if loaded.Results["stable/linux"].Status != StatusPassed {
		t.Errorf("stable/linux = %v", loaded.Results["stable/linux"])
	}
	if loaded.Results["nightly/linux"].Stage != "alpha/ci.sh" {
		t.Errorf("nightly/linux = %v", loaded.Results["nightly/linux"])
	}
}

func TestReadStateMissing(t *testing.T) {
	_, err := ReadState(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatal("ReadState() succeeded on a missing file")
	}
}
