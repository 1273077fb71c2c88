package outcome

import (
	"fmt"
	"strconv"
)

// Category is the top-level classification the engine assigns to a regex.
type Category int

const (
	Unknown Category = iota
	EDA
	IDA
	NoIDA
	Skipped
	TimeoutInEDA
	TimeoutInIDA
)

// Categories lists every category in report order.
var Categories = []Category{EDA, IDA, NoIDA, Skipped, TimeoutInEDA, TimeoutInIDA}

var categoryTokens = map[Category]string{
	EDA:          "EDA",
	IDA:          "IDA",
	NoIDA:        "NO IDA",
	Skipped:      "SKIPPED",
	TimeoutInEDA: "TIMEOUT in EDA",
	TimeoutInIDA: "TIMEOUT in IDA",
}

var categorySlugs = map[Category]string{
	EDA:          "eda",
	IDA:          "ida",
	NoIDA:        "no_ida",
	Skipped:      "skipped",
	TimeoutInEDA: "timeout_in_eda",
	TimeoutInIDA: "timeout_in_ida",
}

// String returns the category as the engine prints it.
func (c Category) String() string {
	if s, ok := categoryTokens[c]; ok {
		return s
	}
	return "UNKNOWN"
}

// Slug returns a lowercase identifier usable in file names and JSON keys.
func (c Category) Slug() string {
	if s, ok := categorySlugs[c]; ok {
		return s
	}
	return "unknown"
}

// IsTimeout reports whether the engine gave up on the regex.
func (c Category) IsTimeout() bool {
	return c == TimeoutInEDA || c == TimeoutInIDA
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	if c == Unknown {
		return nil, fmt.Errorf("cannot marshal unknown category")
	}
	return []byte(c.Slug()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(text []byte) error {
	for cat, slug := range categorySlugs {
		if slug == string(text) {
			*c = cat
			return nil
		}
	}
	return fmt.Errorf("unknown category %q", string(text))
}

// Degree is the polynomial degree of an IDA result. The engine prints "?"
// when it could not determine the degree.
type Degree struct {
	value int
	known bool
}

// KnownDegree returns a numeric degree.
func KnownDegree(n int) Degree {
	return Degree{value: n, known: true}
}

// UnknownDegree is the "?" degree.
var UnknownDegree = Degree{}

// ParseDegree parses the token following "IDA_".
func ParseDegree(token string) (Degree, error) {
	if token == "?" {
		return UnknownDegree, nil
	}
	if token == "" {
		return Degree{}, fmt.Errorf("empty degree")
	}
	for _, r := range token {
		if r < '0' || r > '9' {
			return Degree{}, fmt.Errorf("invalid degree %q", token)
		}
	}
	n, err := strconv.Atoi(token)
	if err != nil {
		return Degree{}, fmt.Errorf("invalid degree %q: %w", token, err)
	}
	return KnownDegree(n), nil
}

// Known reports whether the degree is numeric.
func (d Degree) Known() bool { return d.known }

// Value returns the numeric degree; it is zero for the unknown degree.
func (d Degree) Value() int { return d.value }

func (d Degree) String() string {
	if !d.known {
		return "?"
	}
	return strconv.Itoa(d.value)
}

// Less orders numeric degrees ascending, with the unknown degree last.
func (d Degree) Less(other Degree) bool {
	switch {
	case d.known && other.known:
		return d.value < other.value
	case d.known:
		return true
	default:
		return false
	}
}

// Verdict is the result of constructing and testing an exploit string.
type Verdict int

const (
	NoVerdict Verdict = iota
	ConfirmedExponential
	NotConfirmed
	ConstructionTimedOut
)

var verdictTokens = map[Verdict]string{
	ConfirmedExponential: "MATCHER_CONFIRMED_EXP_TIME",
	NotConfirmed:         "MATCHER_DID_NOT_DISPLAY_EXP_TIME",
	ConstructionTimedOut: "NO_EXPLOIT_STRING_CONSTRUCTED",
}

// ParseVerdict maps an engine verdict token to a Verdict.
func ParseVerdict(token string) (Verdict, bool) {
	for v, t := range verdictTokens {
		if t == token {
			return v, true
		}
	}
	return NoVerdict, false
}

func (v Verdict) String() string {
	if s, ok := verdictTokens[v]; ok {
		return s
	}
	return "NONE"
}

// Record is one input regex. Ordinal is 1-based and stable across passes.
type Record struct {
	Ordinal int    `json:"ordinal"`
	Pattern string `json:"pattern"`
}

// Outcome is the engine's verdict on a single regex.
type Outcome struct {
	Category Category
	// Degree is meaningful only when Category is IDA.
	Degree  Degree
	Verdict Verdict
	// Detail holds the reason the engine prints with an inline SKIPPED line.
	Detail string
}

func (o Outcome) String() string {
	s := o.Category.String()
	if o.Category == IDA {
		s = "IDA_" + o.Degree.String()
	}
	if o.Verdict != NoVerdict {
		s += " " + o.Verdict.String()
	}
	return s
}

// Entry pairs a record with its outcome for one pass.
type Entry struct {
	Record  Record
	Outcome Outcome
}

// Tally is a running count of outcomes, updated while engine output streams in.
type Tally struct {
	records int
	counts  map[Category]int
}

// Add counts one classified outcome.
func (t *Tally) Add(o Outcome) {
	if t.counts == nil {
		t.counts = make(map[Category]int, len(Categories))
	}
	t.counts[o.Category]++
}

// Count returns the number of outcomes seen in category c.
func (t Tally) Count(c Category) int {
	return t.counts[c]
}

// Records returns how many record headers were seen.
func (t Tally) Records() int {
	return t.records
}

// Classified returns how many records have received a category.
func (t Tally) Classified() int {
	n := 0
	for _, c := range t.counts {
		n += c
	}
	return n
}
