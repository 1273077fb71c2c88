// Package artifacts persists a run's inputs, raw engine output, bucket lists
// and reports under a run-scoped directory.
package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/example/ambiguity-runner/internal/classify"
	"github.com/example/ambiguity-runner/internal/engine"
	"github.com/example/ambiguity-runner/internal/outcome"
	"github.com/example/ambiguity-runner/internal/pipeline"
	"github.com/example/ambiguity-runner/internal/summary"
)

const (
	InputFile       = "test_regexes.txt"
	SimpleRawFile   = "simple_analysis_results.txt"
	SummaryFile     = "summary.txt"
	SummaryJSONFile = "summary.json"
)

// Store writes files into one run directory.
type Store struct {
	Dir string
}

// maxRunDirAttempts bounds the numeric suffixes tried by Create.
const maxRunDirAttempts = 100

// Create makes a fresh run directory named after the input file and time.
// An existing directory is never reused: a clash gets a "_2", "_3", ...
// suffix.
func Create(root, input string, now time.Time) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("results directory cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	name := filepath.Join(root, base+"_"+now.Format("150405_02Jan2006"))
	dir := name
	for attempt := 2; ; attempt++ {
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return &Store{Dir: dir}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, err
		}
		if attempt > maxRunDirAttempts {
			return nil, fmt.Errorf("run directory %s: %d attempts exhausted: %w", name, maxRunDirAttempts, err)
		}
		dir = fmt.Sprintf("%s_%d", name, attempt)
	}
}

// WriteLines writes one entry per line and returns the file path.
func (s *Store) WriteLines(name string, lines []string) (string, error) {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return s.WriteText(name, b.String())
}

// WriteText writes text verbatim and returns the file path.
func (s *Store) WriteText(name, text string) (string, error) {
	path := filepath.Join(s.Dir, name)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// WriteJSON writes v as indented JSON and returns the file path.
func (s *Store) WriteJSON(name string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return s.WriteText(name, string(append(data, '\n')))
}

// WriteRun persists the full artifact set for a completed run and returns
// the paths written, in order.
func (s *Store) WriteRun(res *pipeline.Result, sum summary.Summary) ([]string, error) {
	w := &batch{store: s}

	inputs := make([]string, len(res.Records))
	for i, r := range res.Records {
		inputs[i] = r.Pattern
	}
	w.lines(InputFile, inputs)

	w.text(SimpleRawFile, res.Simple.Raw)
	w.buckets("simple", res.SimpleBuckets, res.Simple)

	for _, origin := range res.FullBuckets.Origins() {
		prefix := "full_" + origin.Slug()
		w.text(prefix+"_analysis_results.txt", res.Full[origin].Raw)
		w.buckets(prefix, res.FullBuckets[origin], res.Full[origin])
	}

	var report strings.Builder
	if err := summary.Render(&report, sum, summary.RenderOptions{}); err != nil {
		return w.paths, err
	}
	w.text(SummaryFile, report.String())
	if w.err == nil {
		w.add(s.WriteJSON(SummaryJSONFile, sum))
	}
	return w.paths, w.err
}

// batch stops at the first failed write.
type batch struct {
	store *Store
	paths []string
	err   error
}

func (b *batch) add(path string, err error) {
	if err != nil {
		b.err = err
		return
	}
	b.paths = append(b.paths, path)
}

func (b *batch) lines(name string, lines []string) {
	if b.err == nil {
		b.add(b.store.WriteLines(name, lines))
	}
}

func (b *batch) text(name, text string) {
	if b.err == nil {
		b.add(b.store.WriteText(name, text))
	}
}

func (b *batch) buckets(prefix string, bs classify.Buckets, pass engine.Pass) {
	for _, bucket := range bs.All() {
		b.lines(BucketFile(prefix, bucket.Category), bucket.Patterns())
		b.lines(AnnotatedFile(prefix, bucket.Category), bucket.Annotated())
	}
	timeouts := bs.Timeouts()
	b.lines(fmt.Sprintf("%s_timeouts_%ds.txt", prefix, engine.TimeoutSeconds(pass.Timeout)), timeouts.Annotated())
}

// BucketFile names the plain pattern list for a bucket.
func BucketFile(prefix string, c outcome.Category) string {
	return prefix + "_" + c.Slug() + ".txt"
}

// AnnotatedFile names the ordinal-annotated list for a bucket.
func AnnotatedFile(prefix string, c outcome.Category) string {
	return prefix + "_" + c.Slug() + "_annotated.txt"
}
