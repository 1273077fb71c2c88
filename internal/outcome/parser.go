package outcome

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// StatsMarker opens the run statistics block the engine prints after the
// last record.
const StatsMarker = "Construction: "

const runningTimePrefix = "Total running time: "

// ProtocolError reports engine output that does not fit the record grammar.
type ProtocolError struct {
	Line   int
	Token  string
	Reason string
}

func (e *ProtocolError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("engine protocol violation at line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("engine protocol violation at line %d: %s (token %q)", e.Line, e.Reason, e.Token)
}

// Stats is the trailing statistics block, kept apart from the records.
type Stats struct {
	Lines []string
	// RunningTime is the engine's own "Total running time" value, zero if absent.
	RunningTime time.Duration
}

// Parsed is the outcome of parsing one engine invocation.
type Parsed struct {
	Entries []Entry
	Stats   Stats
	Tally   Tally
}

type parserState int

const (
	statePreamble parserState = iota
	stateAwaitCategory
	stateInRecord
	stateStats
)

// Parser is a line-oriented state machine over the engine's stdout protocol.
// Feed it one line at a time; the zero value is ready to use.
type Parser struct {
	state        parserState
	line         int
	awaitVerdict bool
	entries      []Entry
	stats        Stats
	tally        Tally
}

// NewParser returns an empty parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse runs a Parser over a complete block of engine output.
func Parse(text string) (Parsed, error) {
	p := NewParser()
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	for scanner.Scan() {
		if err := p.Feed(scanner.Text()); err != nil {
			return Parsed{}, err
		}
	}
	if err := scanner.Err(); err != nil {
		return Parsed{}, err
	}
	return p.Finish()
}

// MaxLineSize bounds a single line of engine output.
const MaxLineSize = 4 * 1024 * 1024

// Tally returns the counts accumulated so far.
func (p *Parser) Tally() Tally {
	return p.tally
}

// Feed consumes one line of engine output, without its line terminator.
func (p *Parser) Feed(raw string) error {
	p.line++
	line := strings.TrimRight(raw, " \t\r")

	if p.state == stateStats {
		p.addStatsLine(line)
		return nil
	}

	if strings.HasPrefix(line, StatsMarker) {
		if p.state == stateAwaitCategory {
			return p.errorf("", "record %d has no category before the statistics block", p.current().Record.Ordinal)
		}
		p.state = stateStats
		p.addStatsLine(line)
		return nil
	}

	if ordinal, rest, ok := splitHeader(line); ok {
		return p.header(ordinal, rest)
	}

	if p.state == statePreamble {
		return nil
	}

	fields := strings.Fields(line)
	if len(fields) == 0 || !isToken(fields[0]) {
		// progress and diagnostic noise
		return nil
	}

	if p.state == stateAwaitCategory {
		out, err := p.parseCategory(line, fields)
		if err != nil {
			return err
		}
		p.classify(out)
		return nil
	}

	// Once classified, only a pending verdict is read; anything else is noise.
	if p.awaitVerdict && len(fields) == 1 {
		if v, ok := ParseVerdict(fields[0]); ok {
			p.current().Outcome.Verdict = v
			p.awaitVerdict = false
		}
	}
	return nil
}

// Finish validates the final record and returns everything parsed.
func (p *Parser) Finish() (Parsed, error) {
	if p.state == stateAwaitCategory {
		return Parsed{}, p.errorf("", "record %d has no category", p.current().Record.Ordinal)
	}
	return Parsed{Entries: p.entries, Stats: p.stats, Tally: p.tally}, nil
}

func (p *Parser) header(ordinal int, rest string) error {
	if p.state == stateAwaitCategory {
		cur := p.current()
		// The engine reports analysis exceptions as "<n>: SKIPPED: <reason>".
		if ordinal == cur.Record.Ordinal && (rest == "SKIPPED" || strings.HasPrefix(rest, "SKIPPED:")) {
			p.classify(Outcome{Category: Skipped, Detail: skipDetail(rest)})
			return nil
		}
		return p.errorf("", "record %d has no category", cur.Record.Ordinal)
	}

	if want := len(p.entries) + 1; ordinal != want {
		return p.errorf(strconv.Itoa(ordinal), "expected record ordinal %d", want)
	}

	p.entries = append(p.entries, Entry{Record: Record{Ordinal: ordinal, Pattern: rest}})
	p.tally.records++
	p.state = stateAwaitCategory
	p.awaitVerdict = false
	return nil
}

func (p *Parser) classify(out Outcome) {
	p.current().Outcome = out
	p.tally.Add(out)
	p.state = stateInRecord
	p.awaitVerdict = (out.Category == EDA || out.Category == IDA) && out.Verdict == NoVerdict
}

func (p *Parser) parseCategory(line string, fields []string) (Outcome, error) {
	head := fields[0]
	switch {
	case head == "EDA":
		out := Outcome{Category: EDA}
		return p.withVerdict(out, fields)
	case strings.HasPrefix(head, "IDA_"):
		deg, err := ParseDegree(strings.TrimPrefix(head, "IDA_"))
		if err != nil {
			return Outcome{}, p.errorf(head, "invalid IDA degree")
		}
		return p.withVerdict(Outcome{Category: IDA, Degree: deg}, fields)
	case line == "NO IDA":
		return Outcome{Category: NoIDA}, nil
	case head == "SKIPPED" || head == "SKIPPED:":
		return Outcome{Category: Skipped, Detail: skipDetail(line)}, nil
	case line == "TIMEOUT in EDA":
		return Outcome{Category: TimeoutInEDA}, nil
	case line == "TIMEOUT in IDA":
		return Outcome{Category: TimeoutInIDA}, nil
	}
	return Outcome{}, p.errorf(line, "unrecognized category for record %d", p.current().Record.Ordinal)
}

func (p *Parser) withVerdict(out Outcome, fields []string) (Outcome, error) {
	switch len(fields) {
	case 1:
		return out, nil
	case 2:
		v, ok := ParseVerdict(fields[1])
		if !ok {
			return Outcome{}, p.errorf(fields[1], "unrecognized exploit verdict")
		}
		out.Verdict = v
		return out, nil
	default:
		return Outcome{}, p.errorf(strings.Join(fields[2:], " "), "trailing tokens after exploit verdict")
	}
}

func (p *Parser) addStatsLine(line string) {
	p.stats.Lines = append(p.stats.Lines, line)
	if v, ok := strings.CutPrefix(line, runningTimePrefix); ok {
		if ms, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			p.stats.RunningTime = time.Duration(ms) * time.Millisecond
		}
	}
}

func (p *Parser) current() *Entry {
	return &p.entries[len(p.entries)-1]
}

func (p *Parser) errorf(token, format string, args ...any) error {
	return &ProtocolError{Line: p.line, Token: token, Reason: fmt.Sprintf(format, args...)}
}

// IsHeader reports whether line opens a record ("<ordinal>: <pattern>").
func IsHeader(line string) bool {
	_, _, ok := splitHeader(strings.TrimRight(line, "\r"))
	return ok
}

// splitHeader recognises "<digits>: <pattern>" and "<digits>:" (empty pattern
// after trailing whitespace is stripped).
func splitHeader(line string) (int, string, bool) {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(line) || line[i] != ':' {
		return 0, "", false
	}
	rest := line[i+1:]
	if rest != "" && rest[0] != ' ' {
		return 0, "", false
	}
	n, err := strconv.Atoi(line[:i])
	if err != nil || n < 1 {
		return 0, "", false
	}
	return n, strings.TrimPrefix(rest, " "), true
}

// isToken matches the shape of a category or verdict token: upper case
// letters, digits, '_' and '?', optionally ending in ':'. Anything prefixed
// "IDA_" counts so a malformed degree is rejected rather than skipped.
func isToken(s string) bool {
	if strings.HasPrefix(s, "IDA_") {
		return true
	}
	s = strings.TrimSuffix(s, ":")
	if s == "" || s[0] < 'A' || s[0] > 'Z' {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '?':
		default:
			return false
		}
	}
	return true
}

func skipDetail(s string) string {
	s = strings.TrimPrefix(s, "SKIPPED")
	s = strings.TrimPrefix(s, ":")
	return strings.TrimSpace(s)
}
