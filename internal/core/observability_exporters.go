package core

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"agritrace/pkg/domain"

	"github.com/google/uuid"
)

// DefaultTraceRetention bounds the spans kept in memory by JSONTraceTracer.
const DefaultTraceRetention = 1024

// JSONTraceEntry represents a serialized span emitted by JSONTraceTracer.
type JSONTraceEntry struct {
	SpanID     string    `json:"span_id"`
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Rules      []string  `json:"rules,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTraceTracer writes spans as JSON lines and retains the most recent ones.
type JSONTraceTracer struct {
	mu        sync.Mutex
	entries   []JSONTraceEntry
	retention int
	enc       *json.Encoder
}

// NewJSONTracer constructs a tracer writing to w (nil keeps spans in memory only).
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	var enc *json.Encoder
	if w != nil {
		enc = json.NewEncoder(w)
	}
	return &JSONTraceTracer{enc: enc, retention: DefaultTraceRetention}
}

// Entries returns a copy of the retained spans, oldest first.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]JSONTraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Start implements Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	span := &jsonTraceSpan{
		tracer:    t,
		id:        uuid.NewString(),
		operation: operation,
		started:   time.Now().UTC(),
	}
	return ctx, span
}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	id        string
	operation string
	started   time.Time
	once      sync.Once
}

func (s *jsonTraceSpan) End(err error) {
	s.once.Do(func() { s.tracer.append(s.entry(err)) })
}

func (s *jsonTraceSpan) entry(err error) JSONTraceEntry {
	ended := time.Now().UTC()
	entry := JSONTraceEntry{
		SpanID:     s.id,
		Operation:  s.operation,
		Status:     "success",
		DurationMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
		StartedAt:  s.started,
		EndedAt:    ended,
	}
	if err == nil {
		return entry
	}
	entry.Status = "error"
	entry.Error = err.Error()
	var blocked RuleViolationError
	if errors.As(err, &blocked) {
		for _, v := range blocked.Result.Violations {
			entry.Rules = append(entry.Rules, string(v.Rule))
		}
	} else if vf, ok := domain.AsValidationFailure(err); ok {
		entry.Rules = []string{string(vf.Rule)}
	}
	return entry
}

func (t *JSONTraceTracer) append(entry JSONTraceEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, entry)
	if t.retention > 0 && len(t.entries) > t.retention {
		t.entries = append([]JSONTraceEntry(nil), t.entries[len(t.entries)-t.retention:]...)
	}
	if t.enc != nil {
		_ = t.enc.Encode(entry)
	}
}
