package metrics

import (
	"context"
	"testing"
	"time"

	"agritrace/internal/core"
	"agritrace/pkg/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

var _ core.DomainMetricsRecorder = (*Recorder)(nil)

func TestRecorderCounts(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	rec := New(reg)

	rec.Observe(ctx, "create_lot", true, 20*time.Millisecond)
	rec.Observe(ctx, "create_lot", false, time.Millisecond)
	rec.Observe(ctx, "update_logistics_state", true, time.Millisecond)
	rec.ViolationObserved(ctx, domain.RuleTransportTemperature)
	rec.ViolationObserved(ctx, domain.RuleTransportTemperature)
	rec.TraceCodeAssigned(ctx)

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.operations.WithLabelValues("create_lot", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.operations.WithLabelValues("create_lot", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(rec.violations.WithLabelValues("transport_temperature")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.assigned))
	assert.Equal(t, 2, testutil.CollectAndCount(rec.duration))
}

func TestNewRegistersOnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := New(reg)
	rec.TraceCodeAssigned(context.Background())
	families, err := reg.Gather()
	assert.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["agritrace_trace_codes_assigned_total"])
}
