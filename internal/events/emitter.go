package events

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event types written during a run.
const (
	RunStarted      = "run-start"
	PassStarted     = "pass-start"
	PassFinished    = "pass-finished"
	ArtifactWritten = "artifact-written"
	RunFinished     = "run-finished"
	RunFailed       = "run-failed"
)

// Event represents a single NDJSON record for machine-readable progress.
type Event struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	RunID     string                 `json:"runId,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Emitter writes NDJSON events to an io.Writer safely across goroutines.
type Emitter struct {
	writer io.Writer
	mu     *sync.Mutex
	runID  string
}

// NewEmitter returns a new NDJSON emitter.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{writer: w, mu: &sync.Mutex{}}
}

// WithRun returns an emitter sharing the same writer that stamps every
// event with runID.
func (e *Emitter) WithRun(runID string) *Emitter {
	return &Emitter{writer: e.writer, mu: e.mu, runID: runID}
}

// RunID returns the id stamped on events, if any.
func (e *Emitter) RunID() string {
	return e.runID
}

// Emit serializes the event to JSON and appends a newline.
func (e *Emitter) Emit(evt Event) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if evt.RunID == "" {
		evt.RunID = e.runID
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.writer.Write(append(payload, '\n')); err != nil {
		return err
	}

	return nil
}
