package summary

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ambiguity-runner/internal/classify"
	"github.com/example/ambiguity-runner/internal/engine"
	"github.com/example/ambiguity-runner/internal/outcome"
	"github.com/example/ambiguity-runner/internal/pipeline"
)

func passOf(t *testing.T, mode engine.Mode, text string, records []outcome.Record) (engine.Pass, classify.Buckets) {
	t.Helper()
	parsed, err := outcome.Parse(text)
	require.NoError(t, err)
	require.Len(t, parsed.Entries, len(records))
	for i := range parsed.Entries {
		parsed.Entries[i].Record = records[i]
	}
	buckets, err := classify.Classify(parsed.Entries)
	require.NoError(t, err)
	return engine.Pass{Mode: mode, Timeout: 10 * time.Second, Entries: parsed.Entries, Stats: parsed.Stats, Tally: parsed.Tally}, buckets
}

func rec(ordinal int, pattern string) outcome.Record {
	return outcome.Record{Ordinal: ordinal, Pattern: pattern}
}

// buildResult assembles a run from synthetic engine output.
func buildResult(t *testing.T) *pipeline.Result {
	t.Helper()
	records := []outcome.Record{
		rec(1, "a*"), rec(2, "(a+)+"), rec(3, "abc"), rec(4, "(a|a)*b"),
		rec(5, "a*a*a*"), rec(6, "x*x*"), rec(7, "(b*)*c"), rec(8, "q"),
	}
	simpleText := "1: a*\nNO IDA\n2: (a+)+\nEDA\n3: abc\nSKIPPED\n4: (a|a)*b\nEDA\n" +
		"5: a*a*a*\nIDA_?\n6: x*x*\nIDA_2\n7: (b*)*c\nTIMEOUT in EDA\n8: q\nNO IDA\n" +
		"Construction: JAVA\nTotal running time: 250\n"
	simple, simpleBuckets := passOf(t, engine.Simple, simpleText, records)

	res := &pipeline.Result{
		Records:       records,
		Simple:        simple,
		SimpleBuckets: simpleBuckets,
		Full:          map[outcome.Category]engine.Pass{},
		FullBuckets:   classify.CrossTab{},
		Started:       time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC),
		Elapsed:       3 * time.Second,
	}

	full := map[outcome.Category]string{
		outcome.EDA: "1: (a+)+\nEDA MATCHER_CONFIRMED_EXP_TIME\n2: (a|a)*b\nTIMEOUT in IDA\n",
		outcome.IDA: "1: a*a*a*\nIDA_3\n2: x*x*\nIDA_2 NO_EXPLOIT_STRING_CONSTRUCTED\n",
		outcome.NoIDA: "1: a*\nNO IDA\n2: q\nEDA\n",
	}
	for origin, text := range full {
		pass, buckets := passOf(t, engine.Full, text, simpleBuckets.Get(origin).Records())
		res.Full[origin] = pass
		res.FullBuckets[origin] = buckets
	}
	return res
}

func TestBuildSimpleLevel(t *testing.T) {
	s := Build(buildResult(t), "tests/small.txt", "run-1")

	assert.Equal(t, 8, s.Total)
	assert.Equal(t, 8, s.Simple.Total)
	assert.Equal(t, 2, s.Simple.Count(outcome.EDA))
	assert.Equal(t, 2, s.Simple.Count(outcome.IDA))
	assert.Equal(t, 2, s.Simple.Count(outcome.NoIDA))
	assert.Equal(t, 1, s.Simple.Count(outcome.Skipped))
	assert.Equal(t, 1, s.Simple.Count(outcome.TimeoutInEDA))
	assert.Equal(t, 0, s.Simple.Count(outcome.TimeoutInIDA))
	assert.Equal(t, 1, s.Simple.Timeouts)
	assert.Equal(t, Duration(250*time.Millisecond), s.Simple.EngineTime)
	assert.Nil(t, s.Simple.Verdicts)

	assert.Equal(t, Histogram{{Degree: "2", Count: 1}, {Degree: "?", Count: 1}}, s.Simple.Degrees)
	assert.Equal(t, s.Simple.Count(outcome.IDA), s.Simple.Degrees.Total())

	sum := 0
	for _, c := range outcome.Categories {
		sum += s.Simple.Count(c)
	}
	assert.Equal(t, s.Total, sum)
}

func TestBuildCrossTabulation(t *testing.T) {
	s := Build(buildResult(t), "tests/small.txt", "run-1")

	var origins []outcome.Category
	for _, e := range s.Full {
		origins = append(origins, e.From)
	}
	assert.Equal(t, []outcome.Category{outcome.EDA, outcome.IDA, outcome.NoIDA}, origins)

	eda, ok := s.Escalation(outcome.EDA)
	require.True(t, ok)
	assert.Equal(t, 2, eda.Total)
	assert.Equal(t, 1, eda.Count(outcome.EDA))
	assert.Equal(t, 1, eda.Count(outcome.TimeoutInIDA))
	assert.Equal(t, 1, eda.Timeouts)
	assert.Equal(t, VerdictTally{Confirmed: 1}, eda.Verdicts[outcome.EDA])

	ida, ok := s.Escalation(outcome.IDA)
	require.True(t, ok)
	assert.Equal(t, Histogram{{Degree: "2", Count: 1}, {Degree: "3", Count: 1}}, ida.Degrees)
	assert.Equal(t, ida.Count(outcome.IDA), ida.Degrees.Total())
	assert.Equal(t, VerdictTally{ConstructionTimedOut: 1, Untested: 1}, ida.Verdicts[outcome.IDA])

	noIDA, ok := s.Escalation(outcome.NoIDA)
	require.True(t, ok)
	assert.Equal(t, 1, noIDA.Count(outcome.EDA))
	assert.Equal(t, VerdictTally{Untested: 1}, noIDA.Verdicts[outcome.EDA])

	_, ok = s.Escalation(outcome.Skipped)
	assert.False(t, ok)
}

func TestConfirmedExponentialScenario(t *testing.T) {
	records := []outcome.Record{rec(2, "(a+)+")}
	simple, simpleBuckets := passOf(t, engine.Simple, "1: (a+)+\nEDA\n", records)
	full, fullBuckets := passOf(t, engine.Full, "1: (a+)+\nEDA MATCHER_CONFIRMED_EXP_TIME\n", simpleBuckets.Get(outcome.EDA).Records())

	s := Build(&pipeline.Result{
		Records:       records,
		Simple:        simple,
		SimpleBuckets: simpleBuckets,
		Full:          map[outcome.Category]engine.Pass{outcome.EDA: full},
		FullBuckets:   classify.CrossTab{outcome.EDA: fullBuckets},
	}, "one.txt", "")

	eda, ok := s.Escalation(outcome.EDA)
	require.True(t, ok)
	assert.Equal(t, VerdictTally{Confirmed: 1, NotConfirmed: 0, ConstructionTimedOut: 0}, eda.Verdicts[outcome.EDA])
}

func TestRenderIsDeterministic(t *testing.T) {
	s := Build(buildResult(t), "tests/small.txt", "run-1")

	var first, second bytes.Buffer
	require.NoError(t, Render(&first, s, RenderOptions{}))
	require.NoError(t, Render(&second, s, RenderOptions{}))
	assert.Equal(t, first.String(), second.String())

	out := first.String()
	for _, want := range []string{
		"Input:     tests/small.txt",
		"Regexes:   8",
		"Simple analysis (8 regexes, timeout 10s)",
		"  EDA:             2",
		"  TIMEOUT in EDA:  1",
		"    degree ?:",
		"Full analysis",
		"  EDA (2 regexes, timeout 10s)",
		"      confirmed exponential:   1",
		"  NO IDA (2 regexes, timeout 10s)",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "\x1b[", "no ANSI codes without color")

	// "?" is listed after every numeric degree
	assert.Less(t, strings.Index(out, "degree 2:"), strings.Index(out, "degree ?:"))
}

func TestRenderWithColor(t *testing.T) {
	s := Build(buildResult(t), "tests/small.txt", "")
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, s, RenderOptions{Color: true}))
	assert.Contains(t, buf.String(), "\x1b[")
}

func TestRenderNothingEscalated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, Summary{Input: "empty.txt"}, RenderOptions{}))
	assert.Contains(t, buf.String(), "nothing escalated")
}

func TestSummaryJSONShape(t *testing.T) {
	s := Build(buildResult(t), "tests/small.txt", "run-1")
	data, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded Summary
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, s, decoded)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "3s", raw["elapsed"])
	full := raw["full"].([]any)
	first := full[0].(map[string]any)
	assert.Equal(t, "eda", first["from"])
	assert.Equal(t, float64(1), first["counts"].(map[string]any)["eda"])
}
