package pipeline

import (
	"encoding/gob"
	"os"
)

// RunState tracks per-job outcomes across runs so --resume can skip jobs
// that already passed. Keys are job names, not IDs, because IDs change with
// every expansion.
type RunState struct {
	RunID   string
	Results map[string]JobResult
}

func init() {
	gob.Register(RunState{})
	gob.Register(JobResult{})
}

func WriteState(file string, state *RunState) error {
	handle, err := os.Create(file)
	if err != nil {
		return err
	}
	defer handle.Close()

	encoder := gob.NewEncoder(handle)
	return encoder.Encode(state)
}

func ReadState(file string) (*RunState, error) {
	handle, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer handle.Close()

	decoder := gob.NewDecoder(handle)

	var state RunState
	err = decoder.Decode(&state)
	if err != nil {
		return nil, err
	}

	return &state, nil
}
