package core

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"agritrace/pkg/domain"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type captureAuditRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) find(op string, status AuditStatus) (AuditEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			return entry, true
		}
	}
	return AuditEntry{}, false
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	calls      []metricsCall
	violations []domain.RuleID
	assigned   int
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) ViolationObserved(_ context.Context, rule domain.RuleID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.violations = append(c.violations, rule)
}

func (c *captureMetricsRecorder) TraceCodeAssigned(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assigned++
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

func TestServiceAuditsStateChangeAndTraceCode(t *testing.T) {
	audit := &captureAuditRecorder{}
	svc := newTestService(t, fixedSource("ABCD1234"), WithAuditRecorder(audit))
	chain := createServiceChain(t, svc, "GUIA-0001")

	if _, _, err := svc.UpdateLogistics(context.Background(), chain.logistics.ID, deliver); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	for _, op := range []string{"create_lot", "create_transformation", "create_logistics", "update_logistics"} {
		if _, ok := audit.find(op, AuditStatusSuccess); !ok {
			t.Fatalf("expected success audit entry for %s", op)
		}
	}
	state, ok := audit.find("update_logistics_state", AuditStatusSuccess)
	if !ok {
		t.Fatalf("expected state transition audit entry")
	}
	if state.OldValue != string(domain.StateInTransit) || state.NewValue != string(domain.StateDelivered) {
		t.Fatalf("unexpected state transition %s -> %s", state.OldValue, state.NewValue)
	}
	assigned, ok := audit.find("assign_trace_code", AuditStatusSuccess)
	if !ok {
		t.Fatalf("expected trace code audit entry")
	}
	if assigned.Field != "trace_code" || assigned.NewValue != "TRZ-LOTE2024001-ABCD1234" || assigned.OldValue != "" {
		t.Fatalf("unexpected trace code entry %+v", assigned)
	}
	if !assigned.Timestamp.Equal(testNow) {
		t.Fatalf("expected audit timestamp from clock, got %v", assigned.Timestamp)
	}
}

func TestServiceAuditsFailures(t *testing.T) {
	audit := &captureAuditRecorder{}
	svc := newTestService(t, sequenceSource(), WithAuditRecorder(audit))
	lot := fixtureLot()
	lot.AreaHectares = 0
	if _, _, err := svc.CreateLot(context.Background(), lot); err == nil {
		t.Fatalf("expected area failure")
	}
	entry, ok := audit.find("create_lot", AuditStatusError)
	if !ok {
		t.Fatalf("expected error audit entry")
	}
	if entry.Error == "" || entry.Entity != EntityLot || entry.Action != ActionCreate {
		t.Fatalf("unexpected error entry %+v", entry)
	}
}

func TestServiceMetricsObserveOperationsAndViolations(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	svc := newTestService(t, sequenceSource(), WithMetricsRecorder(metrics))
	chain := createServiceChain(t, svc, "GUIA-0001")
	if _, _, err := svc.UpdateLogistics(context.Background(), chain.logistics.ID, deliver); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	_, _, err := svc.UpdateLogistics(context.Background(), chain.logistics.ID, func(l *Logistics) error {
		l.MinTemperature = 1
		return nil
	})
	if err == nil {
		t.Fatalf("expected temperature failure")
	}

	if !metrics.has("create_lot", true) || !metrics.has("update_logistics", true) || !metrics.has("update_logistics", false) {
		t.Fatalf("missing metric observations: %+v", metrics.calls)
	}
	if metrics.assigned != 1 {
		t.Fatalf("expected one trace code assignment, got %d", metrics.assigned)
	}
	if len(metrics.violations) != 1 || metrics.violations[0] != domain.RuleTransportTemperature {
		t.Fatalf("unexpected violations %+v", metrics.violations)
	}
}

func TestServiceTracerRecordsRules(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	svc := newTestService(t, sequenceSource(), WithTracer(tracer))
	lot := fixtureLot()
	lot.Code = "X"
	if _, _, err := svc.CreateLot(context.Background(), lot); err == nil {
		t.Fatalf("expected code failure")
	}
	if _, _, err := svc.CreateLot(context.Background(), fixtureLot()); err != nil {
		t.Fatalf("create lot: %v", err)
	}

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(entries))
	}
	if entries[0].Status != "error" || len(entries[0].Rules) != 1 || entries[0].Rules[0] != string(domain.RuleLotCodeFormat) {
		t.Fatalf("unexpected failing span %+v", entries[0])
	}
	if entries[1].Status != "success" || entries[1].Operation != "create_lot" || entries[1].SpanID == "" {
		t.Fatalf("unexpected success span %+v", entries[1])
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 json lines, got %d", len(lines))
	}
	var decoded JSONTraceEntry
	if err := json.Unmarshal([]byte(lines[1]), &decoded); err != nil {
		t.Fatalf("decode span: %v", err)
	}
	if decoded.SpanID != entries[1].SpanID {
		t.Fatalf("written span does not match retained span")
	}
}

func TestJSONTracerRetention(t *testing.T) {
	tracer := NewJSONTracer(nil)
	tracer.retention = 3
	for i := 0; i < 5; i++ {
		_, span := tracer.Start(context.Background(), "op")
		span.End(nil)
		span.End(nil)
	}
	if got := len(tracer.Entries()); got != 3 {
		t.Fatalf("expected 3 retained spans, got %d", got)
	}
}

func TestServiceZapLoggerLevels(t *testing.T) {
	observed, logs := observer.New(zapcore.DebugLevel)
	svc := newTestService(t, sequenceSource(), WithLogger(NewZapLogger(zap.New(observed))))
	chain := createServiceChain(t, svc, "GUIA-0001")
	if _, _, err := svc.UpdateLogistics(context.Background(), chain.logistics.ID, deliver); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if _, err := svc.DeleteLot(context.Background(), "missing"); err == nil {
		t.Fatalf("expected not found")
	}

	if logs.FilterMessage("trace code assigned").FilterLevelExact(zapcore.InfoLevel).Len() != 1 {
		t.Fatalf("expected trace code info log")
	}
	rejected := logs.FilterMessage("operation rejected").FilterLevelExact(zapcore.WarnLevel).All()
	if len(rejected) != 1 || rejected[0].ContextMap()["operation"] != "delete_lot" {
		t.Fatalf("expected one rejected delete_lot warning, got %+v", rejected)
	}
	if logs.FilterMessage("operation completed").Len() == 0 {
		t.Fatalf("expected debug completion logs")
	}
}

func TestNoopDefaults(t *testing.T) {
	var logger Logger = noopLogger{}
	logger.Debug("d")
	logger.Info("i")
	logger.Warn("w")
	logger.Error("e")
	if _, ok := NewZapLogger(nil).(noopLogger); !ok {
		t.Fatalf("nil zap logger should fall back to noop")
	}
	if now := ClockFunc(nil).Now(); now.Location() != time.UTC {
		t.Fatalf("expected UTC clock")
	}
	svc := NewService(newTestStore(nil), nil, WithLogger(nil), WithClock(nil))
	if svc.logger == nil || svc.clock == nil {
		t.Fatalf("nil options must keep defaults")
	}
}
