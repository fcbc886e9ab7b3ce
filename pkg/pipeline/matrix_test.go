package pipeline

import (
	"os"
	"runtime"
	"testing"
)

func TestExpandOrder(t *testing.T) {
	p := &Pipeline{
		Channels: []string{"stable", "nightly"},
		OS:       []string{"linux", "osx"},
	}

	jobs := Expand(p, "linux")
	if len(jobs) != 4 {
		t.Fatalf("Expand() produced %d jobs, want 4", len(jobs))
	}

	want := []string{"stable/linux", "stable/osx", "nightly/linux", "nightly/osx"}
	for idx, job := range jobs {
		if job.Name() != want[idx] {
			t.Errorf("job %d = %q, want %q", idx, job.Name(), want[idx])
		}
	}
}

func TestExpandEnvRows(t *testing.T) {
	p := &Pipeline{
		Channels: []string{"stable"},
		OS:       []string{"linux"},
		Env: EnvConfig{
			Matrix: []map[string]string{
				{"FEATURES": "default"},
				{"FEATURES": "all"},
			},
		},
	}

	jobs := Expand(p, "linux")
	if len(jobs) != 2 {
		t.Fatalf("Expand() produced %d jobs, want 2", len(jobs))
	}

	if jobs[0].Name() != "stable/linux/FEATURES=default" {
		t.Errorf("unexpected first job %q", jobs[0].Name())
	}
	if jobs[1].Env["FEATURES"] != "all" {
		t.Errorf("second job env = %v", jobs[1].Env)
	}
}

func TestExpandExclude(t *testing.T) {
	p := &Pipeline{
		Channels: []string{"stable", "nightly"},
		OS:       []string{"linux", "osx"},
		Matrix: MatrixRules{
			Exclude: []Selector{{Channel: "nightly", OS: "osx"}},
		},
	}

	jobs := Expand(p, "linux")
	if len(jobs) != 3 {
		t.Fatalf("Expand() produced %d jobs, want 3", len(jobs))
	}

	for _, job := range jobs {
		if job.Channel == "nightly" && job.OS == "osx" {
			t.Error("excluded cell was not removed")
		}
	}
}

func TestExpandAllowFailures(t *testing.T) {
	p := &Pipeline{
		Channels: []string{"stable", "nightly"},
		OS:       []string{"linux"},
		Matrix: MatrixRules{
			AllowFailures: []Selector{{Channel: "nightly"}},
		},
	}

	jobs := Expand(p, "linux")
	for _, job := range jobs {
		want := job.Channel == "nightly"
		if job.AllowFailure != want {
			t.Errorf("job %s AllowFailure = %v, want %v", job.Name(), job.AllowFailure, want)
		}
	}
}

func TestExpandSkipsForeignOS(t *testing.T) {
	p := &Pipeline{
		Channels: []string{"stable"},
		OS:       []string{"linux", "osx", "windows"},
	}

	jobs := Expand(p, "osx")
	for _, job := range jobs {
		want := job.OS != "osx"
		if job.Skipped != want {
			t.Errorf("job %s Skipped = %v, want %v", job.Name(), job.Skipped, want)
		}
	}
}

func TestExpandUniqueIDs(t *testing.T) {
	p := &Pipeline{
		Channels: []string{"a", "b", "c"},
		OS:       []string{"linux"},
	}

	seen := map[string]bool{}
	for _, job := range Expand(p, "linux") {
		if job.ID == "" {
			t.Fatal("job without ID")
		}
		if seen[job.ID] {
			t.Fatalf("duplicate job ID %s", job.ID)
		}
		seen[job.ID] = true
	}
}

func TestSubstituteVars(t *testing.T) {
	vars := map[string]string{"VERSION": "1.2", "OS_NAME": "linux"}
	result := SubstituteVars("https://example.com/{VERSION}/tool-{OS_NAME}-{MISSING}.tar.gz", vars)
	want := "https://example.com/1.2/tool-linux-.tar.gz"
	if result != want {
		t.Errorf("SubstituteVars() = %q, want %q", result, want)
	}
}

func TestConditionVars(t *testing.T) {
	prevCI, hadCI := os.LookupEnv("CI")
	defer func() {
		if hadCI {
			os.Setenv("CI", prevCI)
		} else {
			os.Unsetenv("CI")
		}
	}()

	os.Setenv("CI", "true")
	vars := ConditionVars()
	if vars[runtime.GOOS] != "true" || vars[runtime.GOARCH] != "true" {
		t.Errorf("host vars missing: %v", vars)
	}
	if vars["ci"] != "true" {
		t.Errorf("ci var missing: %v", vars)
	}

	os.Unsetenv("CI")
	vars = ConditionVars()
	if _, ok := vars["ci"]; ok {
		t.Errorf("ci var set outside CI: %v", vars)
	}
}

func TestEvalConditions(t *testing.T) {
	vars := map[string]string{"linux": "true", "ci": "true"}

	cases := []struct {
		condition string
		rejection string
		want      bool
	}{
		{"", "", true},
		{"linux", "", true},
		{"linux, ci", "", true},
		{"windows", "", false},
		{"", "linux", false},
		{"", "windows", true},
		{"linux", "ci", false},
	}

	for _, tc := range cases {
		got := EvalConditions(tc.condition, tc.rejection, vars)
		if got != tc.want {
			t.Errorf("EvalConditions(%q, %q) = %v, want %v", tc.condition, tc.rejection, got, tc.want)
		}
	}
}
