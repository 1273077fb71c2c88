package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/example/ambiguity-runner/internal/outcome"
)

// Mode selects the engine's cost/accuracy tradeoff.
type Mode string

const (
	Simple Mode = "simple"
	Full   Mode = "full"
)

// ErrRecordCount means the engine reported a different number of records
// than it was given.
var ErrRecordCount = errors.New("engine record count mismatch")

// DefaultCommand launches the engine from a compiled class tree.
var DefaultCommand = []string{"java", "-Xms2048m", "-cp", "./bin/", "driver.Main"}

// ExploitOptions controls exploit-string construction and testing.
type ExploitOptions struct {
	ConstructEDA bool `yaml:"constructEda" json:"constructEda"`
	TestEDA      bool `yaml:"testEda" json:"testEda"`
	ConstructIDA bool `yaml:"constructIda" json:"constructIda"`
}

// Invocation describes a single engine run over an ordered input set.
type Invocation struct {
	Mode    Mode
	Records []outcome.Record
	Timeout time.Duration
	Exploit ExploitOptions
	// Progress, if set, is called each time a new record header is read.
	Progress func(done, total int)
}

// Pass is the classified result of one invocation. Entries carry the
// submitted records, so ordinals are those of the original input.
type Pass struct {
	Mode    Mode
	Timeout time.Duration
	Entries []outcome.Entry
	// Raw is the engine's stdout exactly as read, kept for archival.
	Raw   string
	Stats outcome.Stats
	Tally outcome.Tally
}

// Analyser defines the operations needed to drive the analysis engine.
type Analyser interface {
	EnsureBinary() error
	Analyse(ctx context.Context, inv Invocation) (Pass, error)
}

// CommandRunner executes the engine as a subprocess.
type CommandRunner struct {
	// Command is the engine executable followed by its fixed arguments.
	Command []string
	Stderr  io.Writer
	// TempDir holds input files; empty means os.TempDir.
	TempDir string
	Logger  *slog.Logger
}

// NewRunner returns a runner for the given engine command.
func NewRunner(command []string) *CommandRunner {
	if len(command) == 0 {
		command = DefaultCommand
	}
	return &CommandRunner{Command: command}
}

// EnsureBinary verifies that the engine executable is discoverable on PATH.
func (r *CommandRunner) EnsureBinary() error {
	if len(r.Command) == 0 {
		return errors.New("engine command is empty")
	}
	if _, err := exec.LookPath(r.Command[0]); err != nil {
		return fmt.Errorf("engine binary not found: %w", err)
	}
	return nil
}

// Args returns the engine arguments for an invocation reading inputFile.
func Args(inv Invocation, inputFile string) []string {
	constructEDA := inv.Exploit.ConstructEDA
	// the engine refuses to test a string it did not construct
	testEDA := constructEDA && inv.Exploit.TestEDA

	return []string{
		"--" + string(inv.Mode),
		"--verbose=false",
		"--ida=true",
		"--timeout=" + strconv.Itoa(TimeoutSeconds(inv.Timeout)),
		"--construct-eda-exploit-string=" + strconv.FormatBool(constructEDA),
		"--test-eda-exploit-string=" + strconv.FormatBool(testEDA),
		"--construct-ida-exploit-string=" + strconv.FormatBool(inv.Exploit.ConstructIDA),
		"--if=" + inputFile,
	}
}

// TimeoutSeconds converts a timeout to the engine's whole-second setting,
// rounding up. Zero or negative disables the engine timeout.
func TimeoutSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	s := int(d / time.Second)
	if d%time.Second != 0 {
		s++
	}
	return s
}

// Analyse runs the engine over inv.Records and parses its output as it streams.
func (r *CommandRunner) Analyse(ctx context.Context, inv Invocation) (Pass, error) {
	pass := Pass{Mode: inv.Mode, Timeout: inv.Timeout}
	if len(inv.Records) == 0 {
		return pass, nil
	}
	if len(r.Command) == 0 {
		return pass, errors.New("engine command is empty")
	}

	inputFile, err := r.writeInput(inv.Records)
	if err != nil {
		return pass, fmt.Errorf("%s analysis: write input: %w", inv.Mode, err)
	}
	defer os.Remove(inputFile)

	args := append(append([]string{}, r.Command[1:]...), Args(inv, inputFile)...)
	// The executable comes from configuration and arguments are built
	// programmatically; nothing is passed through a shell.
	cmd := exec.CommandContext(ctx, r.Command[0], args...) // #nosec G204
	cmd.Stderr = r.Stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return pass, fmt.Errorf("%s analysis: %w", inv.Mode, err)
	}
	if err := cmd.Start(); err != nil {
		return pass, fmt.Errorf("%s analysis: start engine: %w", inv.Mode, err)
	}

	parsed, raw, err := r.read(stdout, inv)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return pass, fmt.Errorf("%s analysis: %w", inv.Mode, err)
	}
	if err := cmd.Wait(); err != nil {
		return pass, fmt.Errorf("%s analysis: engine exited: %w", inv.Mode, err)
	}

	if len(parsed.Entries) != len(inv.Records) {
		return pass, fmt.Errorf("%s analysis: %w: submitted %d, engine reported %d",
			inv.Mode, ErrRecordCount, len(inv.Records), len(parsed.Entries))
	}

	for i := range parsed.Entries {
		echoed := parsed.Entries[i].Record.Pattern
		parsed.Entries[i].Record = inv.Records[i]
		if echoed != inv.Records[i].Pattern && r.Logger != nil {
			r.Logger.Debug("engine echoed a different pattern",
				"ordinal", inv.Records[i].Ordinal, "submitted", inv.Records[i].Pattern, "echoed", echoed)
		}
	}

	pass.Entries = parsed.Entries
	pass.Raw = raw
	pass.Stats = parsed.Stats
	pass.Tally = parsed.Tally
	return pass, nil
}

// read blocks on the engine's stdout until it closes.
func (r *CommandRunner) read(stdout io.Reader, inv Invocation) (outcome.Parsed, string, error) {
	parser := outcome.NewParser()
	reader := bufio.NewReader(stdout)
	var raw strings.Builder
	seen := 0

	for {
		line, readErr := reader.ReadString('\n')
		if line != "" {
			raw.WriteString(line)
			if err := parser.Feed(strings.TrimSuffix(line, "\n")); err != nil {
				return outcome.Parsed{}, "", err
			}
			if n := parser.Tally().Records(); n != seen {
				seen = n
				if inv.Progress != nil {
					inv.Progress(seen, len(inv.Records))
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return outcome.Parsed{}, "", fmt.Errorf("read engine output: %w", readErr)
		}
	}

	parsed, err := parser.Finish()
	if err != nil {
		return outcome.Parsed{}, "", err
	}
	return parsed, raw.String(), nil
}

func (r *CommandRunner) writeInput(records []outcome.Record) (string, error) {
	file, err := os.CreateTemp(r.TempDir, "ambiguity-input-*.txt")
	if err != nil {
		return "", err
	}

	w := bufio.NewWriter(file)
	for _, rec := range records {
		if _, err := fmt.Fprintln(w, rec.Pattern); err != nil {
			file.Close()
			os.Remove(file.Name())
			return "", err
		}
	}
	if err := w.Flush(); err != nil {
		file.Close()
		os.Remove(file.Name())
		return "", err
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return "", err
	}

	return file.Name(), nil
}
