package observe

import (
	"context"
	"maps"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/attalus-io/vestibule/pkg/types"
)

// Summary accumulates a stream of observations as a running total and count.
// Averages are derived, never stored.
type Summary struct {
	Total float64 `json:"total"`
	Count uint64  `json:"count"`
}

func (s *Summary) add(v float64) {
	s.Total += v
	s.Count++
}

// Avg returns the mean observation, or 0 when nothing has been recorded.
func (s Summary) Avg() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Total / float64(s.Count)
}

// IntentExecutionStats aggregates executions of a single intent.
type IntentExecutionStats struct {
	Executions uint64            `json:"executions"`
	Succeeded  uint64            `json:"succeeded"`
	Failed     uint64            `json:"failed"`
	Errors     map[string]uint64 `json:"errors,omitempty"`
	LatencyMs  Summary           `json:"latency_ms"`
}

// ResampleStats aggregates sample-rate conversions performed on behalf of one
// component.
type ResampleStats struct {
	Operations uint64  `json:"operations"`
	Succeeded  uint64  `json:"succeeded"`
	Failed     uint64  `json:"failed"`
	LatencyMs  Summary `json:"latency_ms"`
}

// DisambiguationStats aggregates contextual command resolutions.
type DisambiguationStats struct {
	Resolutions uint64            `json:"resolutions"`
	ByCommand   map[string]uint64 `json:"by_command,omitempty"`
	ByDomain    map[string]uint64 `json:"by_domain,omitempty"`
	ByMethod    map[string]uint64 `json:"by_method,omitempty"`
	CacheHits   uint64            `json:"cache_hits"`
	CacheMisses uint64            `json:"cache_misses"`
	LatencyMs   Summary           `json:"latency_ms"`
	Confidence  Summary           `json:"confidence"`
}

// SessionLifecycleStats counts session starts and ends, the latter keyed by
// reason ("expired", "cleared", "shutdown").
type SessionLifecycleStats struct {
	Started uint64            `json:"started"`
	Ended   map[string]uint64 `json:"ended,omitempty"`
}

// Snapshot is a point-in-time copy of everything the collector has counted.
// It is detached from the collector and safe to serialise.
type Snapshot struct {
	UptimeS        float64                         `json:"uptime_s"`
	Intents        map[string]IntentExecutionStats `json:"intents"`
	Sessions       SessionLifecycleStats           `json:"sessions"`
	Resampling     map[string]ResampleStats        `json:"resampling"`
	Disambiguation DisambiguationStats             `json:"disambiguation"`
}

// DisambiguationRecord describes one contextual command resolution for
// [Collector.RecordDisambiguation].
type DisambiguationRecord struct {
	// Command is the bare contextual command that was resolved ("stop",
	// "pause", "continue", ...).
	Command string

	// Domain is the target domain the command resolved to.
	Domain string

	// Method names how the resolution was reached ("single_candidate",
	// "score", "cache", "confirmation").
	Method string

	// Confidence is the score-derived confidence of the winning candidate.
	Confidence float64

	// Latency is how long scoring took.
	Latency time.Duration

	// CacheHit reports whether the resolution was served from the
	// disambiguation cache rather than scored fresh.
	CacheHit bool
}

// Collector aggregates pipeline events into monotonic counters and
// total+count summaries for the status endpoints, and mirrors every event
// into the OTel instruments of an optional [Metrics] so Prometheus sees the
// same numbers. All methods are safe for concurrent use.
type Collector struct {
	metrics *Metrics
	started time.Time

	mu             sync.Mutex
	intents        map[string]*IntentExecutionStats
	resampling     map[string]*ResampleStats
	disambiguation DisambiguationStats
	sessions       SessionLifecycleStats
}

// NewCollector returns an empty collector. metrics may be nil, in which case
// events are only aggregated locally.
func NewCollector(metrics *Metrics) *Collector {
	return &Collector{
		metrics:    metrics,
		started:    time.Now(),
		intents:    make(map[string]*IntentExecutionStats),
		resampling: make(map[string]*ResampleStats),
	}
}

// RecordIntentExecution records one intent handler execution. errorKind is
// only consulted when success is false and may be empty.
func (c *Collector) RecordIntentExecution(ctx context.Context, intentName string, success bool, latency time.Duration, errorKind string) {
	c.mu.Lock()
	st := c.intents[intentName]
	if st == nil {
		st = &IntentExecutionStats{}
		c.intents[intentName] = st
	}
	st.Executions++
	if success {
		st.Succeeded++
	} else {
		st.Failed++
		if errorKind != "" {
			if st.Errors == nil {
				st.Errors = make(map[string]uint64)
			}
			st.Errors[errorKind]++
		}
	}
	st.LatencyMs.add(float64(latency) / float64(time.Millisecond))
	c.mu.Unlock()

	if c.metrics != nil {
		domain, _ := types.SplitIntentName(intentName)
		status := "ok"
		if !success {
			status = "error"
		}
		c.metrics.IntentExecutions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("intent", intentName),
			attribute.String("domain", domain),
			attribute.String("status", status),
		))
		c.metrics.IntentDuration.Record(ctx, latency.Seconds())
	}
}

// RecordResample records one sample-rate conversion performed for the named
// component.
func (c *Collector) RecordResample(ctx context.Context, component string, success bool, latency time.Duration) {
	c.mu.Lock()
	st := c.resampling[component]
	if st == nil {
		st = &ResampleStats{}
		c.resampling[component] = st
	}
	st.Operations++
	if success {
		st.Succeeded++
	} else {
		st.Failed++
	}
	st.LatencyMs.add(float64(latency) / float64(time.Millisecond))
	c.mu.Unlock()

	if c.metrics != nil {
		status := "ok"
		if !success {
			status = "error"
		}
		c.metrics.ResampleOperations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("component", component),
			attribute.String("status", status),
		))
		c.metrics.ResampleDuration.Record(ctx, latency.Seconds(), metric.WithAttributes(
			attribute.String("component", component),
		))
	}
}

// RecordDisambiguation records one contextual command resolution.
func (c *Collector) RecordDisambiguation(ctx context.Context, rec DisambiguationRecord) {
	c.mu.Lock()
	d := &c.disambiguation
	d.Resolutions++
	if d.ByCommand == nil {
		d.ByCommand = make(map[string]uint64)
		d.ByDomain = make(map[string]uint64)
		d.ByMethod = make(map[string]uint64)
	}
	d.ByCommand[rec.Command]++
	d.ByDomain[rec.Domain]++
	d.ByMethod[rec.Method]++
	if rec.CacheHit {
		d.CacheHits++
	} else {
		d.CacheMisses++
	}
	d.LatencyMs.add(float64(rec.Latency) / float64(time.Millisecond))
	d.Confidence.add(rec.Confidence)
	c.mu.Unlock()

	if c.metrics != nil {
		cache := "miss"
		if rec.CacheHit {
			cache = "hit"
		}
		c.metrics.DisambiguationResolutions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("method", rec.Method),
			attribute.String("domain", rec.Domain),
			attribute.String("cache", cache),
		))
		c.metrics.DisambiguationDuration.Record(ctx, rec.Latency.Seconds())
	}
}

// RecordSessionStarted records a session creation.
func (c *Collector) RecordSessionStarted(ctx context.Context) {
	c.mu.Lock()
	c.sessions.Started++
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordSessionEvent(ctx, "started")
	}
}

// RecordSessionEnded records a session end with the given reason.
func (c *Collector) RecordSessionEnded(ctx context.Context, reason string) {
	c.mu.Lock()
	if c.sessions.Ended == nil {
		c.sessions.Ended = make(map[string]uint64)
	}
	c.sessions.Ended[reason]++
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordSessionEvent(ctx, reason)
	}
}

// Snapshot returns a detached copy of all aggregated statistics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		UptimeS:        time.Since(c.started).Seconds(),
		Intents:        make(map[string]IntentExecutionStats, len(c.intents)),
		Resampling:     make(map[string]ResampleStats, len(c.resampling)),
		Disambiguation: c.disambiguation,
		Sessions:       c.sessions,
	}
	for name, st := range c.intents {
		cp := *st
		cp.Errors = maps.Clone(st.Errors)
		snap.Intents[name] = cp
	}
	for name, st := range c.resampling {
		snap.Resampling[name] = *st
	}
	snap.Disambiguation.ByCommand = maps.Clone(c.disambiguation.ByCommand)
	snap.Disambiguation.ByDomain = maps.Clone(c.disambiguation.ByDomain)
	snap.Disambiguation.ByMethod = maps.Clone(c.disambiguation.ByMethod)
	snap.Sessions.Ended = maps.Clone(c.sessions.Ended)
	return snap
}
