// Package classify partitions a pass's outcomes into per-category buckets.
package classify

import (
	"fmt"

	"github.com/example/ambiguity-runner/internal/outcome"
)

// Escalated lists, in run order, the simple-pass categories that are
// re-analysed by the full pass.
var Escalated = []outcome.Category{outcome.EDA, outcome.IDA, outcome.NoIDA}

// Eligible reports whether a simple-pass bucket is re-analysed by the full pass.
func Eligible(c outcome.Category) bool {
	for _, e := range Escalated {
		if e == c {
			return true
		}
	}
	return false
}

// Bucket is the ordered subset of a pass sharing one category.
type Bucket struct {
	Category outcome.Category
	Entries  []outcome.Entry
}

// Len returns the number of entries in the bucket.
func (b Bucket) Len() int { return len(b.Entries) }

// Records returns the bucket's records in order.
func (b Bucket) Records() []outcome.Record {
	out := make([]outcome.Record, len(b.Entries))
	for i, e := range b.Entries {
		out[i] = e.Record
	}
	return out
}

// Patterns returns the bucket as a flat pattern list, suitable as engine input.
func (b Bucket) Patterns() []string {
	out := make([]string, len(b.Entries))
	for i, e := range b.Entries {
		out[i] = e.Record.Pattern
	}
	return out
}

// Annotated returns "<ordinal>: <pattern>" lines for traceability.
func (b Bucket) Annotated() []string {
	out := make([]string, len(b.Entries))
	for i, e := range b.Entries {
		out[i] = fmt.Sprintf("%d: %s", e.Record.Ordinal, e.Record.Pattern)
	}
	return out
}

// Buckets holds all six buckets of one pass.
type Buckets struct {
	byCategory map[outcome.Category]*Bucket
}

// Classify routes every entry into exactly one bucket, keeping input order.
func Classify(entries []outcome.Entry) (Buckets, error) {
	bs := newBuckets()
	for _, e := range entries {
		b, ok := bs.byCategory[e.Outcome.Category]
		if !ok {
			return Buckets{}, fmt.Errorf("record %d has no category", e.Record.Ordinal)
		}
		b.Entries = append(b.Entries, e)
	}
	return bs, nil
}

func newBuckets() Buckets {
	m := make(map[outcome.Category]*Bucket, len(outcome.Categories))
	for _, c := range outcome.Categories {
		m[c] = &Bucket{Category: c}
	}
	return Buckets{byCategory: m}
}

// Get returns the bucket for c. Unknown categories yield an empty bucket.
func (bs Buckets) Get(c outcome.Category) Bucket {
	if b, ok := bs.byCategory[c]; ok {
		return *b
	}
	return Bucket{Category: c}
}

// All returns the six buckets in report order.
func (bs Buckets) All() []Bucket {
	out := make([]Bucket, 0, len(outcome.Categories))
	for _, c := range outcome.Categories {
		out = append(out, bs.Get(c))
	}
	return out
}

// Total returns the number of entries across all buckets.
func (bs Buckets) Total() int {
	n := 0
	for _, b := range bs.byCategory {
		n += len(b.Entries)
	}
	return n
}

// Timeouts returns the entries of both timeout buckets, ordered by ordinal.
func (bs Buckets) Timeouts() Bucket {
	eda := bs.Get(outcome.TimeoutInEDA).Entries
	ida := bs.Get(outcome.TimeoutInIDA).Entries
	merged := make([]outcome.Entry, 0, len(eda)+len(ida))
	i, j := 0, 0
	for i < len(eda) && j < len(ida) {
		if eda[i].Record.Ordinal < ida[j].Record.Ordinal {
			merged = append(merged, eda[i])
			i++
		} else {
			merged = append(merged, ida[j])
			j++
		}
	}
	merged = append(merged, eda[i:]...)
	merged = append(merged, ida[j:]...)
	return Bucket{Entries: merged}
}

// CrossTab holds the full-pass buckets keyed by the simple-pass bucket that
// produced their input.
type CrossTab map[outcome.Category]Buckets

// Origins returns the simple-pass categories present, in escalation order.
func (ct CrossTab) Origins() []outcome.Category {
	var out []outcome.Category
	for _, c := range Escalated {
		if _, ok := ct[c]; ok {
			out = append(out, c)
		}
	}
	return out
}
