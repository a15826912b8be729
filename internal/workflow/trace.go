package workflow

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

const (
	defaultTraceMaxStages = 50
	defaultTraceMaxMB     = 1.0
)

// StageRecord is one executed stage as seen by the trace endpoints.
type StageRecord struct {
	Stage    string         `json:"stage"`
	Input    any            `json:"input"`
	Output   any            `json:"output"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Ms       float64        `json:"processing_time_ms"`
	At       time.Time      `json:"timestamp"`
}

// ContextEvolution shows how the conversation context changed over one
// traced request.
type ContextEvolution struct {
	Before  map[string]any `json:"before,omitempty"`
	After   map[string]any `json:"after,omitempty"`
	Changes []string       `json:"changes,omitempty"`
}

// Performance aggregates stage timings for the trace report.
type Performance struct {
	TotalProcessingTimeMs float64            `json:"total_processing_time_ms"`
	StageBreakdown        map[string]float64 `json:"stage_breakdown"`
	TotalStages           int                `json:"total_stages"`
}

// Report is the JSON shape the trace endpoints return.
type Report struct {
	RequestID        string           `json:"request_id"`
	PipelineStages   []StageRecord    `json:"pipeline_stages"`
	ContextEvolution ContextEvolution `json:"context_evolution"`
	Performance      Performance      `json:"performance_metrics"`
	Metadata         map[string]any   `json:"metadata,omitempty"`
}

// Trace records the stages of one request. It is safe for use from the
// goroutines a streaming request fans out to. Recording is bounded: past
// MaxStages further records are counted but dropped, and payloads that
// would push the trace past its byte budget are replaced with a sentinel.
// Overflow lands in the report metadata under trace_overflow, never in
// the request outcome.
type Trace struct {
	mu        sync.Mutex
	requestID string
	start     time.Time
	stages    []StageRecord
	before    map[string]any
	after     map[string]any
	bytes     int
	dropped   int
	elided    int
	maxStages int
	maxBytes  int
}

// TraceOption adjusts trace limits.
type TraceOption func(*Trace)

// WithMaxStages caps how many stage records are kept.
func WithMaxStages(n int) TraceOption {
	return func(t *Trace) {
		if n > 0 {
			t.maxStages = n
		}
	}
}

// WithMaxDataSize caps the total recorded payload size in megabytes.
func WithMaxDataSize(mb float64) TraceOption {
	return func(t *Trace) {
		if mb > 0 {
			t.maxBytes = int(mb * 1024 * 1024)
		}
	}
}

func NewTrace(requestID string, opts ...TraceOption) *Trace {
	t := &Trace{
		requestID: requestID,
		start:     time.Now(),
		maxStages: defaultTraceMaxStages,
		maxBytes:  int(defaultTraceMaxMB * 1024 * 1024),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Trace) RequestID() string { return t.requestID }

// Record appends one stage. Input and output must be JSON-encodable;
// audio payloads are recorded as descriptors by the engine, never as raw
// bytes.
func (t *Trace) Record(stage string, input, output any, md map[string]any, took time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.stages) >= t.maxStages {
		t.dropped++
		return
	}
	input = t.fit(input)
	output = t.fit(output)
	t.stages = append(t.stages, StageRecord{
		Stage:    stage,
		Input:    input,
		Output:   output,
		Metadata: md,
		Ms:       float64(took.Microseconds()) / 1000,
		At:       time.Now(),
	})
}

// fit charges a payload against the byte budget, eliding it when it does
// not fit. Callers hold the mutex.
func (t *Trace) fit(payload any) any {
	size := payloadSize(payload)
	if t.bytes+size > t.maxBytes {
		t.elided++
		return fmt.Sprintf("<elided: %d bytes>", size)
	}
	t.bytes += size
	return payload
}

// SnapshotBefore stores the conversation state seen before the first
// stage ran.
func (t *Trace) SnapshotBefore(snap map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.before = snap
}

// SnapshotAfter stores the conversation state after the last stage.
func (t *Trace) SnapshotAfter(snap map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.after = snap
}

// Report assembles the final trace. It can be called more than once; a
// streaming request reads it after every utterance.
func (t *Trace) Report() Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	breakdown := make(map[string]float64, len(t.stages))
	for _, s := range t.stages {
		breakdown[s.Stage] += s.Ms
	}
	r := Report{
		RequestID:      t.requestID,
		PipelineStages: append([]StageRecord(nil), t.stages...),
		ContextEvolution: ContextEvolution{
			Before:  t.before,
			After:   t.after,
			Changes: contextChanges(t.before, t.after),
		},
		Performance: Performance{
			TotalProcessingTimeMs: float64(time.Since(t.start).Microseconds()) / 1000,
			StageBreakdown:        breakdown,
			TotalStages:           len(t.stages),
		},
	}
	if t.dropped > 0 || t.elided > 0 {
		r.Metadata = map[string]any{
			"trace_overflow": true,
			"dropped_stages": t.dropped,
			"elided_payloads": t.elided,
		}
	}
	return r
}

// payloadSize approximates the JSON-encoded size of a payload.
func payloadSize(v any) int {
	if v == nil {
		return 0
	}
	if s, ok := v.(string); ok {
		return len(s)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return len(fmt.Sprint(v))
	}
	return len(b)
}

// contextChanges lists the keys whose value differs between the two
// snapshots, with the transition spelled out.
func contextChanges(before, after map[string]any) []string {
	if before == nil || after == nil {
		return nil
	}
	keys := make(map[string]struct{}, len(before)+len(after))
	for k := range before {
		keys[k] = struct{}{}
	}
	for k := range after {
		keys[k] = struct{}{}
	}

	var changes []string
	for k := range keys {
		b, a := before[k], after[k]
		if fmt.Sprint(b) != fmt.Sprint(a) {
			changes = append(changes, fmt.Sprintf("%s: %v -> %v", k, b, a))
		}
	}
	sort.Strings(changes)
	return changes
}
