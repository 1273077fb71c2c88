package engine

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/example/ambiguity-runner/internal/outcome"
)

// fakeEngine echoes each input line as a record, classifying patterns that
// contain "+)+" as EDA and everything else as NO IDA.
const fakeEngine = `#!/bin/sh
for arg in "$@"; do
  case "$arg" in
    --if=*) input="${arg#--if=}" ;;
  esac
done
if [ -n "$ARGS_FILE" ]; then
  printf '%s\n' "$@" > "$ARGS_FILE"
fi
echo "Warming up"
n=0
while IFS= read -r line || [ -n "$line" ]; do
  n=$((n+1))
  echo "$n: $line"
  case "$line" in
    *'+)+'*) echo "EDA MATCHER_CONFIRMED_EXP_TIME" ;;
    *) echo "NO IDA" ;;
  esac
done < "$input"
echo "Construction: JAVA"
echo "Total running time: 5"
exit ${FAKE_EXIT:-0}
`

func writeScript(t *testing.T, body string) []string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "engine.sh")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return []string{"sh", path}
}

func records(patterns ...string) []outcome.Record {
	out := make([]outcome.Record, len(patterns))
	for i, p := range patterns {
		out[i] = outcome.Record{Ordinal: i + 1, Pattern: p}
	}
	return out
}

func TestNewRunnerDefaultsCommand(t *testing.T) {
	r := NewRunner(nil)
	if len(r.Command) == 0 || r.Command[0] != "java" {
		t.Fatalf("expected default java command, got %v", r.Command)
	}
}

func TestEnsureBinary(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	if err := NewRunner([]string{"sh"}).EnsureBinary(); err != nil {
		t.Fatalf("EnsureBinary should succeed for sh: %v", err)
	}
	if err := NewRunner([]string{"nonexistent-engine-12345"}).EnsureBinary(); err == nil {
		t.Fatal("EnsureBinary should fail for a missing binary")
	}
}

func TestArgs(t *testing.T) {
	inv := Invocation{
		Mode:    Full,
		Timeout: 1500 * time.Millisecond,
		Exploit: ExploitOptions{ConstructEDA: false, TestEDA: true, ConstructIDA: true},
	}
	got := Args(inv, "/tmp/in.txt")
	want := []string{
		"--full",
		"--verbose=false",
		"--ida=true",
		"--timeout=2",
		"--construct-eda-exploit-string=false",
		"--test-eda-exploit-string=false",
		"--construct-ida-exploit-string=true",
		"--if=/tmp/in.txt",
	}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("unexpected args:\n got %v\nwant %v", got, want)
	}
}

func TestTimeoutSeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int
	}{
		{0, 0},
		{-time.Second, 0},
		{time.Millisecond, 1},
		{10 * time.Second, 10},
		{10*time.Second + 1, 11},
	}
	for _, tt := range tests {
		if got := TimeoutSeconds(tt.in); got != tt.want {
			t.Errorf("TimeoutSeconds(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestAnalyseStreamsAndPreservesOrdinals(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args.txt")
	t.Setenv("ARGS_FILE", argsFile)

	r := NewRunner(writeScript(t, fakeEngine))
	input := []outcome.Record{
		{Ordinal: 4, Pattern: "a*"},
		{Ordinal: 7, Pattern: "(a+)+"},
		{Ordinal: 11, Pattern: "abc"},
	}

	var progress []int
	pass, err := r.Analyse(context.Background(), Invocation{
		Mode:     Simple,
		Records:  input,
		Timeout:  10 * time.Second,
		Progress: func(done, total int) { progress = append(progress, done*100+total) },
	})
	if err != nil {
		t.Fatalf("Analyse: %v", err)
	}

	if len(pass.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(pass.Entries))
	}
	for i, e := range pass.Entries {
		if e.Record != input[i] {
			t.Errorf("entry %d: record %+v, want %+v", i, e.Record, input[i])
		}
	}
	if got := pass.Entries[1].Outcome; got.Category != outcome.EDA || got.Verdict != outcome.ConfirmedExponential {
		t.Errorf("unexpected outcome for (a+)+: %v", got)
	}
	if pass.Tally.Count(outcome.NoIDA) != 2 {
		t.Errorf("expected streaming tally of 2 NO IDA, got %d", pass.Tally.Count(outcome.NoIDA))
	}
	if want := []int{103, 203, 303}; !reflect.DeepEqual(progress, want) {
		t.Errorf("progress = %v, want %v", progress, want)
	}
	if !strings.HasPrefix(pass.Raw, "Warming up\n1: a*\nNO IDA\n") {
		t.Errorf("raw output not preserved verbatim: %q", pass.Raw)
	}
	if pass.Stats.RunningTime != 5*time.Millisecond {
		t.Errorf("running time = %v", pass.Stats.RunningTime)
	}

	args, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	for _, want := range []string{"--simple", "--timeout=10", "--construct-eda-exploit-string=false"} {
		if !strings.Contains(string(args), want+"\n") {
			t.Errorf("engine args missing %s: %s", want, args)
		}
	}
}

func TestAnalyseNonZeroExit(t *testing.T) {
	t.Setenv("FAKE_EXIT", "3")
	r := NewRunner(writeScript(t, fakeEngine))

	pass, err := r.Analyse(context.Background(), Invocation{Mode: Full, Records: records("a")})
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected exit error, got %v", err)
	}
	if len(pass.Entries) != 0 {
		t.Fatal("no partial results should be returned")
	}
}

func TestAnalyseStartFailure(t *testing.T) {
	r := NewRunner([]string{"nonexistent-engine-12345"})
	if _, err := r.Analyse(context.Background(), Invocation{Mode: Simple, Records: records("a")}); err == nil {
		t.Fatal("expected start failure")
	}
}

func TestAnalyseRecordCountMismatch(t *testing.T) {
	r := NewRunner(writeScript(t, "#!/bin/sh\necho '1: a'\necho 'NO IDA'\n"))

	_, err := r.Analyse(context.Background(), Invocation{Mode: Simple, Records: records("a", "b")})
	if !errors.Is(err, ErrRecordCount) {
		t.Fatalf("expected ErrRecordCount, got %v", err)
	}
}

func TestAnalyseProtocolViolation(t *testing.T) {
	r := NewRunner(writeScript(t, "#!/bin/sh\necho '1: a'\necho 'FDA'\n"))

	_, err := r.Analyse(context.Background(), Invocation{Mode: Simple, Records: records("a")})
	var perr *outcome.ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	if perr.Token != "FDA" {
		t.Fatalf("expected offending token FDA, got %q", perr.Token)
	}
}

func TestAnalyseEmptyInputSkipsEngine(t *testing.T) {
	r := NewRunner([]string{"nonexistent-engine-12345"})
	pass, err := r.Analyse(context.Background(), Invocation{Mode: Full})
	if err != nil {
		t.Fatalf("empty input should not start the engine: %v", err)
	}
	if pass.Mode != Full || len(pass.Entries) != 0 {
		t.Fatalf("unexpected pass: %+v", pass)
	}
}
