// Package pipeline runs the two-phase analysis: a cheap simple pass over
// every regex, then a full pass over each bucket the simple pass flagged.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/ambiguity-runner/internal/classify"
	"github.com/example/ambiguity-runner/internal/engine"
	"github.com/example/ambiguity-runner/internal/outcome"
)

// Stage is the controller's position in a run.
type Stage string

const (
	StageSimple Stage = "simple"
	StageFull   Stage = "full"
	StageDone   Stage = "done"
)

// Settings is the immutable per-run configuration threaded into every
// engine invocation.
type Settings struct {
	SimpleTimeout time.Duration
	FullTimeout   time.Duration
	// Exploit applies to full passes over the EDA and IDA buckets.
	Exploit engine.ExploitOptions
}

// PassInfo identifies one engine invocation within a run.
type PassInfo struct {
	Mode engine.Mode
	// Origin is the simple-pass bucket a full pass re-analyses; Unknown for
	// the simple pass.
	Origin outcome.Category
	Size   int
}

// Label names the pass for logs and progress output.
func (p PassInfo) Label() string {
	if p.Mode == engine.Simple {
		return string(engine.Simple)
	}
	return fmt.Sprintf("%s/%s", p.Mode, p.Origin.Slug())
}

// Hooks receive notifications as the run progresses. Any may be nil.
type Hooks struct {
	PassStarted  func(PassInfo)
	Progress     func(info PassInfo, done, total int)
	PassFinished func(PassInfo, engine.Pass)
}

// Result is everything a completed run produced.
type Result struct {
	Records       []outcome.Record
	Settings      Settings
	Simple        engine.Pass
	SimpleBuckets classify.Buckets
	// Full holds the full pass for each escalated simple-pass bucket.
	Full        map[outcome.Category]engine.Pass
	FullBuckets classify.CrossTab
	Started     time.Time
	Elapsed     time.Duration
}

// Controller drives the engine through SIMPLE, FULL and DONE.
type Controller struct {
	Analyser engine.Analyser
	Settings Settings
	Hooks    Hooks
	Logger   *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// New returns a controller using the given analyser and settings.
func New(a engine.Analyser, s Settings, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{Analyser: a, Settings: s, Logger: logger, Now: time.Now}
}

// Run executes both phases over records. Any engine failure aborts the run
// and no partial result is returned.
func (c *Controller) Run(ctx context.Context, records []outcome.Record) (*Result, error) {
	now := c.Now
	if now == nil {
		now = time.Now
	}
	res := &Result{
		Records:     records,
		Settings:    c.Settings,
		Full:        make(map[outcome.Category]engine.Pass),
		FullBuckets: make(classify.CrossTab),
		Started:     now(),
	}

	stage := StageSimple
	c.Logger.Info("stage", "stage", stage, "regexes", len(records))
	simple, err := c.invoke(ctx, PassInfo{Mode: engine.Simple, Size: len(records)}, records, c.Settings.SimpleTimeout, engine.ExploitOptions{})
	if err != nil {
		return nil, err
	}
	buckets, err := classify.Classify(simple.Entries)
	if err != nil {
		return nil, fmt.Errorf("simple analysis: %w", err)
	}
	if buckets.Total() != len(records) {
		return nil, fmt.Errorf("simple analysis: classified %d of %d regexes", buckets.Total(), len(records))
	}
	res.Simple = simple
	res.SimpleBuckets = buckets

	stage = StageFull
	for _, origin := range classify.Escalated {
		bucket := buckets.Get(origin)
		if bucket.Len() == 0 {
			continue
		}
		c.Logger.Info("stage", "stage", stage, "bucket", origin.String(), "regexes", bucket.Len())

		exploit := engine.ExploitOptions{}
		if origin == outcome.EDA || origin == outcome.IDA {
			exploit = c.Settings.Exploit
		}
		info := PassInfo{Mode: engine.Full, Origin: origin, Size: bucket.Len()}
		full, err := c.invoke(ctx, info, bucket.Records(), c.Settings.FullTimeout, exploit)
		if err != nil {
			return nil, err
		}
		scoped, err := classify.Classify(full.Entries)
		if err != nil {
			return nil, fmt.Errorf("full analysis of %s: %w", origin, err)
		}
		if scoped.Total() != bucket.Len() {
			return nil, fmt.Errorf("full analysis of %s: classified %d of %d regexes", origin, scoped.Total(), bucket.Len())
		}
		res.Full[origin] = full
		res.FullBuckets[origin] = scoped
	}

	stage = StageDone
	res.Elapsed = now().Sub(res.Started)
	c.Logger.Info("stage", "stage", stage, "elapsed", res.Elapsed)
	return res, nil
}

func (c *Controller) invoke(ctx context.Context, info PassInfo, records []outcome.Record, timeout time.Duration, exploit engine.ExploitOptions) (engine.Pass, error) {
	if c.Hooks.PassStarted != nil {
		c.Hooks.PassStarted(info)
	}

	inv := engine.Invocation{
		Mode:    info.Mode,
		Records: records,
		Timeout: timeout,
		Exploit: exploit,
	}
	if c.Hooks.Progress != nil {
		inv.Progress = func(done, total int) { c.Hooks.Progress(info, done, total) }
	}

	pass, err := c.Analyser.Analyse(ctx, inv)
	if err != nil {
		c.Logger.Error("analysis failed", "pass", info.Label(), "err", err)
		return engine.Pass{}, err
	}

	c.Logger.Debug("pass finished",
		"pass", info.Label(),
		"regexes", pass.Tally.Records(),
		"eda", pass.Tally.Count(outcome.EDA),
		"ida", pass.Tally.Count(outcome.IDA),
		"no_ida", pass.Tally.Count(outcome.NoIDA),
		"skipped", pass.Tally.Count(outcome.Skipped),
		"timeouts", pass.Tally.Count(outcome.TimeoutInEDA)+pass.Tally.Count(outcome.TimeoutInIDA),
	)
	if c.Hooks.PassFinished != nil {
		c.Hooks.PassFinished(info, pass)
	}
	return pass, nil
}
