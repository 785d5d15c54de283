// Package audit keeps the change history recorded by the traceability service.
package audit

import (
	"context"
	"sync"

	"agritrace/internal/core"

	"go.uber.org/zap"
)

// DefaultCapacity bounds the in-memory history when none is given.
const DefaultCapacity = 1000

// Log is a bounded, thread-safe ring of audit entries. When full the oldest
// entry is dropped. Entries are optionally mirrored to a zap logger.
type Log struct {
	mu       sync.Mutex
	entries  []core.AuditEntry
	head     int
	count    int
	dropped  int64
	sink     *zap.Logger
	capacity int
}

// Option configures a Log.
type Option func(*Log)

// WithZapSink mirrors every entry to logger under the "audit" name.
func WithZapSink(logger *zap.Logger) Option {
	return func(l *Log) {
		if logger != nil {
			l.sink = logger.Named("audit")
		}
	}
}

// NewLog returns a Log holding at most capacity entries.
func NewLog(capacity int, opts ...Option) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l := &Log{entries: make([]core.AuditEntry, capacity), capacity: capacity}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record implements core.AuditRecorder.
func (l *Log) Record(_ context.Context, entry core.AuditEntry) {
	l.mu.Lock()
	if l.count == l.capacity {
		l.dropped++
	} else {
		l.count++
	}
	l.entries[l.head] = entry
	l.head = (l.head + 1) % l.capacity
	l.mu.Unlock()

	if l.sink != nil {
		l.emit(entry)
	}
}

func (l *Log) emit(entry core.AuditEntry) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("entity", string(entry.Entity)),
		zap.String("action", string(entry.Action)),
		zap.String("entity_id", entry.EntityID),
		zap.String("status", string(entry.Status)),
		zap.Duration("duration", entry.Duration),
		zap.Time("at", entry.Timestamp),
	}
	if entry.Field != "" {
		fields = append(fields, zap.String("field", entry.Field), zap.String("old", entry.OldValue), zap.String("new", entry.NewValue))
	}
	if entry.Actor != "" {
		fields = append(fields, zap.String("actor", entry.Actor))
	}
	if entry.Status == core.AuditStatusError {
		l.sink.Warn("audit", append(fields, zap.String("error", entry.Error))...)
		return
	}
	l.sink.Info("audit", fields...)
}

// Recent returns up to limit entries, newest first. A non-positive limit
// returns everything retained.
func (l *Log) Recent(limit int) []core.AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]core.AuditEntry, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, l.entries[(l.head-i+l.capacity)%l.capacity])
	}
	return out
}

// ForEntity returns the retained entries of one record, oldest first.
func (l *Log) ForEntity(entity core.EntityType, id string) []core.AuditEntry {
	all := l.Recent(0)
	var out []core.AuditEntry
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Entity == entity && all[i].EntityID == id {
			out = append(out, all[i])
		}
	}
	return out
}

// Len reports how many entries are retained.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Dropped reports how many entries were evicted.
func (l *Log) Dropped() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}
