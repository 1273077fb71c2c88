package summary

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/example/ambiguity-runner/internal/outcome"
)

// RenderOptions controls report styling.
type RenderOptions struct {
	// Color enables ANSI styling; leave off when writing to a file.
	Color bool
}

type renderer struct {
	w       io.Writer
	err     error
	heading *color.Color
	alert   *color.Color
}

// Render writes the nested report for s to w. The layout is deterministic
// for a given summary.
func Render(w io.Writer, s Summary, opts RenderOptions) error {
	r := &renderer{
		w:       w,
		heading: color.New(color.Bold),
		alert:   color.New(color.FgRed, color.Bold),
	}
	for _, c := range []*color.Color{r.heading, r.alert} {
		if opts.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	if s.RunID != "" {
		r.printf("Run:       %s\n", s.RunID)
	}
	r.printf("Input:     %s\n", s.Input)
	if !s.Started.IsZero() {
		r.printf("Started:   %s\n", s.Started.UTC().Format(time.RFC3339))
	}
	r.printf("Elapsed:   %s\n", s.Elapsed)
	r.printf("Regexes:   %d\n", s.Total)

	r.printf("\n%s\n", r.heading.Sprintf("Simple analysis (%d regexes, timeout %s)", s.Simple.Total, s.Simple.Timeout))
	r.level(s.Simple, 1)

	r.printf("\n%s\n", r.heading.Sprint("Full analysis"))
	if len(s.Full) == 0 {
		r.printf("  nothing escalated\n")
	}
	for _, e := range s.Full {
		r.printf("  %s\n", r.heading.Sprintf("%s (%d regexes, timeout %s)", e.From, e.Total, e.Timeout))
		r.level(e.Level, 2)
	}
	return r.err
}

func (r *renderer) level(l Level, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, c := range outcome.Categories {
		n := l.Count(c)
		label := fmt.Sprintf("%-16s %d", c.String()+":", n)
		if n > 0 && (c == outcome.EDA || c == outcome.IDA) {
			label = r.alert.Sprint(label)
		}
		r.printf("%s%s\n", indent, label)

		if c == outcome.IDA {
			for _, dc := range l.Degrees {
				r.printf("%s  %-24s %d\n", indent, "degree "+dc.Degree+":", dc.Count)
			}
		}
		if v, ok := l.Verdicts[c]; ok && n > 0 {
			r.verdicts(v, indent+"  ")
		}
	}
	r.printf("%s%-16s %d\n", indent, "Timeouts:", l.Timeouts)
	if l.EngineTime > 0 {
		r.printf("%s%-16s %s\n", indent, "Engine time:", l.EngineTime)
	}
}

func (r *renderer) verdicts(v VerdictTally, indent string) {
	rows := []struct {
		label string
		n     int
	}{
		{"confirmed exponential:", v.Confirmed},
		{"not confirmed:", v.NotConfirmed},
		{"construction timed out:", v.ConstructionTimedOut},
		{"untested:", v.Untested},
	}
	for _, row := range rows {
		r.printf("%s%-24s %d\n", indent, row.label, row.n)
	}
}

func (r *renderer) printf(format string, args ...any) {
	if r.err != nil {
		return
	}
	_, r.err = fmt.Fprintf(r.w, format, args...)
}
