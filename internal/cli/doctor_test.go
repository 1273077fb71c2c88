package cli

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/example/ambiguity-runner/internal/config"
	"github.com/example/ambiguity-runner/internal/engine"
)

// stubAnalyser only answers EnsureBinary.
type stubAnalyser struct {
	engine.Analyser
	err error
}

func (s stubAnalyser) EnsureBinary() error { return s.err }

func TestCheckGoVersion(t *testing.T) {
	check := checkGoVersion()
	if check.Status != "✓" || !strings.HasPrefix(check.Detail, "Version go") {
		t.Fatalf("unexpected go check: %+v", check)
	}
}

func TestCheckEngineBinary(t *testing.T) {
	ok := checkEngineBinary([]string{"java", "driver.Main"}, stubAnalyser{})
	if ok.Status != "✓" || ok.Detail != "java driver.Main" {
		t.Fatalf("unexpected engine check: %+v", ok)
	}

	missing := checkEngineBinary([]string{"java"}, stubAnalyser{err: errors.New("engine binary not found")})
	if missing.Status != "✗" || missing.Error == nil {
		t.Fatalf("expected failed engine check: %+v", missing)
	}
}

func TestCheckConfiguration(t *testing.T) {
	cfg := config.DefaultRuntimeConfig()
	if check := checkConfiguration(cfg); check.Error != nil {
		t.Fatalf("default configuration should pass: %v", check.Error)
	}

	cfg.ResultsDir = ""
	if check := checkConfiguration(cfg); check.Status != "✗" {
		t.Fatalf("empty results dir should fail: %+v", check)
	}
}

func TestCheckInputs(t *testing.T) {
	if checks := checkInputs(nil); len(checks) != 1 || checks[0].Status != "⊘" {
		t.Fatalf("expected a skipped check without inputs, got %+v", checks)
	}

	dir := t.TempDir()
	good := writeInput(t, dir, "good.txt", "a*\nb*\n")
	checks := checkInputs([]string{good, filepath.Join(dir, "missing.txt")})
	if len(checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(checks))
	}
	if checks[0].Detail != "2 regexes" || checks[0].Error != nil {
		t.Errorf("unexpected check for readable input: %+v", checks[0])
	}
	if checks[1].Status != "✗" || checks[1].Error == nil {
		t.Errorf("missing input should fail: %+v", checks[1])
	}
}

func TestCheckOutputDirectory(t *testing.T) {
	if check := checkOutputDirectory(filepath.Join(t.TempDir(), "results")); check.Error != nil {
		t.Fatalf("results dir should be creatable: %v", check.Error)
	}
	if check := checkOutputDirectory(""); check.Error == nil {
		t.Fatal("empty results dir should fail")
	}
}

func TestPrintDoctorReport(t *testing.T) {
	cmd := &cobra.Command{}
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	printDoctorReport(cmd, []doctorCheck{
		{Name: "Go Runtime", Status: "✓", Detail: "Version go1.22"},
		{Name: "Engine Binary", Status: "✗", Detail: "Not found in PATH", Error: errors.New("boom")},
	})

	if !strings.Contains(stdout.String(), "✓ Go Runtime:") || !strings.Contains(stdout.String(), "✗ Engine Binary:") {
		t.Fatalf("unexpected report: %s", stdout.String())
	}
	if !strings.Contains(stderr.String(), "Error: boom") {
		t.Fatalf("errors should go to stderr: %s", stderr.String())
	}
}

func TestDoctorCmd(t *testing.T) {
	work := t.TempDir()
	input := writeInput(t, work, "in.txt", "a*\n")

	stdout, _, err := executeRoot(t, "doctor",
		"--engine", fakeEngineCommand(t),
		"--results-dir", filepath.Join(work, "results"),
		input,
	)
	if err != nil {
		t.Fatalf("doctor should pass: %v\n%s", err, stdout)
	}
	if !strings.Contains(stdout, "All checks passed") {
		t.Fatalf("unexpected doctor output: %s", stdout)
	}

	_, _, err = executeRoot(t, "doctor",
		"--engine", "nonexistent-engine-12345",
		"--results-dir", filepath.Join(work, "results"),
		input,
	)
	if err == nil {
		t.Fatal("doctor should fail for a missing engine")
	}
}
