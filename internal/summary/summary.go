// Package summary aggregates a completed run into nested counts and renders
// the human-readable report.
package summary

import (
	"fmt"
	"sort"
	"time"

	"github.com/example/ambiguity-runner/internal/classify"
	"github.com/example/ambiguity-runner/internal/engine"
	"github.com/example/ambiguity-runner/internal/outcome"
	"github.com/example/ambiguity-runner/internal/pipeline"
)

// Duration marshals as a Go duration string.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) String() string { return time.Duration(d).String() }

// DegreeCount is one histogram bar.
type DegreeCount struct {
	Degree string `json:"degree"`
	Count  int    `json:"count"`
}

// Histogram counts IDA results per degree, numeric degrees ascending and
// "?" last.
type Histogram []DegreeCount

// Total sums the histogram.
func (h Histogram) Total() int {
	n := 0
	for _, dc := range h {
		n += dc.Count
	}
	return n
}

// VerdictTally counts exploit-string verdicts within one cell.
type VerdictTally struct {
	Confirmed            int `json:"confirmed"`
	NotConfirmed         int `json:"notConfirmed"`
	ConstructionTimedOut int `json:"constructionTimeout"`
	// Untested counts entries for which the engine printed no verdict.
	Untested int `json:"untested"`
}

// Total sums the tally.
func (v VerdictTally) Total() int {
	return v.Confirmed + v.NotConfirmed + v.ConstructionTimedOut + v.Untested
}

// Level is the per-category breakdown of one pass over one input set.
type Level struct {
	Total    int                               `json:"total"`
	Counts   map[outcome.Category]int          `json:"counts"`
	Degrees  Histogram                         `json:"idaDegrees"`
	Timeouts int                               `json:"timeouts"`
	Verdicts map[outcome.Category]VerdictTally `json:"verdicts,omitempty"`
	Timeout  Duration                          `json:"timeout"`
	// EngineTime is the engine's own reported running time.
	EngineTime Duration `json:"engineTime"`
}

// Count returns the count for c, zero if absent.
func (l Level) Count(c outcome.Category) int {
	return l.Counts[c]
}

// Escalation is the full-pass breakdown of one simple-pass bucket.
type Escalation struct {
	From outcome.Category `json:"from"`
	Level
}

// Summary is the hierarchical report of one run.
type Summary struct {
	RunID   string       `json:"runId"`
	Input   string       `json:"input"`
	Started time.Time    `json:"started"`
	Elapsed Duration     `json:"elapsed"`
	Total   int          `json:"total"`
	Simple  Level        `json:"simple"`
	Full    []Escalation `json:"full"`
}

// Escalation returns the full-pass breakdown for a simple-pass category.
func (s Summary) Escalation(from outcome.Category) (Escalation, bool) {
	for _, e := range s.Full {
		if e.From == from {
			return e, true
		}
	}
	return Escalation{}, false
}

// Build aggregates a run.
func Build(res *pipeline.Result, input, runID string) Summary {
	s := Summary{
		RunID:   runID,
		Input:   input,
		Started: res.Started,
		Elapsed: Duration(res.Elapsed),
		Total:   len(res.Records),
		Simple:  levelOf(res.SimpleBuckets, res.Simple, false),
	}
	for _, origin := range res.FullBuckets.Origins() {
		s.Full = append(s.Full, Escalation{
			From:  origin,
			Level: levelOf(res.FullBuckets[origin], res.Full[origin], true),
		})
	}
	return s
}

func levelOf(bs classify.Buckets, pass engine.Pass, withVerdicts bool) Level {
	l := Level{
		Total:      bs.Total(),
		Counts:     make(map[outcome.Category]int, len(outcome.Categories)),
		Degrees:    histogramOf(bs.Get(outcome.IDA)),
		Timeout:    Duration(pass.Timeout),
		EngineTime: Duration(pass.Stats.RunningTime),
	}
	for _, b := range bs.All() {
		l.Counts[b.Category] = b.Len()
	}
	l.Timeouts = l.Counts[outcome.TimeoutInEDA] + l.Counts[outcome.TimeoutInIDA]

	if withVerdicts {
		l.Verdicts = map[outcome.Category]VerdictTally{
			outcome.EDA: verdictsOf(bs.Get(outcome.EDA)),
			outcome.IDA: verdictsOf(bs.Get(outcome.IDA)),
		}
	}
	return l
}

func histogramOf(b classify.Bucket) Histogram {
	counts := make(map[outcome.Degree]int)
	for _, e := range b.Entries {
		counts[e.Outcome.Degree]++
	}
	degrees := make([]outcome.Degree, 0, len(counts))
	for d := range counts {
		degrees = append(degrees, d)
	}
	sort.Slice(degrees, func(i, j int) bool { return degrees[i].Less(degrees[j]) })

	h := make(Histogram, 0, len(degrees))
	for _, d := range degrees {
		h = append(h, DegreeCount{Degree: d.String(), Count: counts[d]})
	}
	return h
}

func verdictsOf(b classify.Bucket) VerdictTally {
	var v VerdictTally
	for _, e := range b.Entries {
		switch e.Outcome.Verdict {
		case outcome.ConfirmedExponential:
			v.Confirmed++
		case outcome.NotConfirmed:
			v.NotConfirmed++
		case outcome.ConstructionTimedOut:
			v.ConstructionTimedOut++
		default:
			v.Untested++
		}
	}
	return v
}
