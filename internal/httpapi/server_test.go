package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"agritrace/internal/blob"
	"agritrace/internal/core"
	"agritrace/internal/infra/persistence/memory"
	"agritrace/internal/platform/metrics"
	"agritrace/pkg/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(opts ...core.ServiceOption) *core.Service {
	assignor := core.NewTraceCodeAssignor(func() string { return "ABCD1234" })
	store := memory.NewStore(core.NewDefaultRulesEngine(), core.NewTraceCodeHook(assignor))
	return core.NewService(store, opts...)
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

var lotBody = map[string]any{
	"code":          "LOTE-2024-001",
	"location":      "Finca El Mirador, Piura",
	"area_hectares": 4.5,
	"harvest_date":  "2024-05-30",
	"responsible":   "Juan Pérez",
	"organic":       true,
}

func transformationBody(lotID string) map[string]any {
	wash := time.Date(2024, 5, 31, 8, 0, 0, 0, time.UTC)
	return map[string]any{
		"lot_id":              lotID,
		"washed_at":           wash,
		"wash_temperature":    18.5,
		"wash_responsible":    "María López",
		"packed_at":           wash.Add(6 * time.Hour),
		"package_type":        "Caja 4kg",
		"unit_count":          250,
		"pack_responsible":    "Carlos Ruiz",
		"quality_checked_at":  wash.Add(10 * time.Hour),
		"quality_outcome":     "APPROVED",
		"quality_responsible": "Ana Torres",
	}
}

func logisticsBody(trID string) map[string]any {
	departed := time.Date(2024, 5, 31, 20, 0, 0, 0, time.UTC)
	return map[string]any{
		"transformation_id": trID,
		"guide_number":      "GU-2024-001",
		"vehicle":           "ABC-123",
		"driver":            "Pedro Gómez",
		"min_temperature":   3,
		"max_temperature":   7,
		"avg_temperature":   5,
		"departed_at":       departed,
		"delivered_at":      departed.Add(8 * time.Hour),
		"destination":       "Supermercado Central",
		"state":             "IN_TRANSIT",
	}
}

type chain struct {
	lot            core.Lot
	transformation core.Transformation
	logistics      core.Logistics
}

func createChain(t *testing.T, h http.Handler) chain {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/lots", lotBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	lot := decodeBody[core.Lot](t, rec)

	rec = do(t, h, http.MethodPost, "/transformations", transformationBody(lot.ID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tr := decodeBody[core.Transformation](t, rec)

	rec = do(t, h, http.MethodPost, "/logistics", logisticsBody(tr.ID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return chain{lot: lot, transformation: tr, logistics: decodeBody[core.Logistics](t, rec)}
}

func TestChainLifecycleOverHTTP(t *testing.T) {
	h := NewServer(newTestService()).Handler()
	c := createChain(t, h)
	assert.Equal(t, domain.DefaultProductType, c.lot.ProductType)
	assert.Nil(t, c.logistics.TraceCode)

	rec := do(t, h, http.MethodPatch, "/logistics/"+c.logistics.ID, map[string]any{"state": "DELIVERED"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	delivered := decodeBody[core.Logistics](t, rec)
	require.NotNil(t, delivered.TraceCode)
	assert.Equal(t, "TRZ-LOTE2024001-ABCD1234", *delivered.TraceCode)

	rec = do(t, h, http.MethodGet, "/traces/search?code=TRZ-LOTE2024001-ABCD1234", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	found := decodeBody[core.Chain](t, rec)
	assert.Equal(t, c.lot.ID, found.Lot.ID)
	assert.Equal(t, c.transformation.ID, found.Transformation.ID)

	rec = do(t, h, http.MethodGet, "/lots/"+c.lot.ID+"/trace", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeBody[core.TraceReport](t, rec)
	assert.Empty(t, report.Diagnosis.Violations)
	require.Len(t, report.Transformations, 1)

	rec = do(t, h, http.MethodGet, "/traces", nil)
	summaries := decodeBody[[]core.TraceSummary](t, rec)
	require.Len(t, summaries, 1)
	assert.True(t, summaries[0].Complete)
	assert.Equal(t, []string{"TRZ-LOTE2024001-ABCD1234"}, summaries[0].TraceCodes)

	rec = do(t, h, http.MethodGet, "/stats", nil)
	stats := decodeBody[core.Stats](t, rec)
	assert.Equal(t, 1, stats.Lots)
	assert.Equal(t, 1, stats.ByState["DELIVERED"])

	rec = do(t, h, http.MethodGet, "/logistics?state=delivered", nil)
	assert.Len(t, decodeBody[[]core.Logistics](t, rec), 1)
	rec = do(t, h, http.MethodGet, "/transformations?lot_id=other", nil)
	assert.Empty(t, decodeBody[[]core.Transformation](t, rec))

	rec = do(t, h, http.MethodDelete, "/lots/"+c.lot.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodGet, "/logistics/"+c.logistics.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	h := NewServer(newTestService()).Handler()
	c := createChain(t, h)

	bad := map[string]any{}
	for k, v := range lotBody {
		bad[k] = v
	}
	bad["code"] = "1X"
	rec := do(t, h, http.MethodPost, "/lots", bad)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeBody[errorResponse](t, rec)
	require.Len(t, resp.Violations, 1)
	assert.Equal(t, domain.RuleLotCodeFormat, resp.Violations[0].Rule)
	assert.Equal(t, resp.Violations[0].Message, resp.Error)

	rec = do(t, h, http.MethodPost, "/lots", lotBody)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/transformations", transformationBody("missing"))
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPatch, "/logistics/"+c.logistics.ID, map[string]any{"state": "LOST"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	resp = decodeBody[errorResponse](t, rec)
	require.NotEmpty(t, resp.Violations)
	assert.Equal(t, domain.RuleDeliveryStateValue, resp.Violations[0].Rule)

	rec = do(t, h, http.MethodPatch, "/logistics/"+c.logistics.ID, map[string]any{"max_temperature": 12})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodGet, "/traces/search?code=%20", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodGet, "/traces/search?code=TRZ-NOPE-00000000", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/lots", `{"code":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodPost, "/lots", `{"unknown":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodPost, "/lots", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	bad["code"] = "LOTE-2024-002"
	bad["harvest_date"] = "30/05/2024"
	rec = do(t, h, http.MethodPost, "/lots", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/lots/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, h, http.MethodPost, "/lots/"+c.lot.ID+"/trace/export", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTraceExport(t *testing.T) {
	store := blob.NewMemory()
	h := NewServer(newTestService(core.WithBlobStore(store))).Handler()
	c := createChain(t, h)

	rec := do(t, h, http.MethodPost, "/lots/"+c.lot.ID+"/trace/export", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	info := decodeBody[blob.Info](t, rec)
	assert.True(t, strings.HasPrefix(info.Key, "reports/LOTE2024001/"))

	rec = do(t, h, http.MethodGet, "/lots/"+c.lot.ID+"/trace/exports", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decodeBody[[]blob.Info](t, rec)
	require.Len(t, listed, 1)
	assert.Equal(t, info.Key, listed[0].Key)
}

type staticAudit []core.AuditEntry

func (a staticAudit) Recent(limit int) []core.AuditEntry {
	if limit > 0 && limit < len(a) {
		return a[:limit]
	}
	return a
}

func TestAuditEndpoint(t *testing.T) {
	h := NewServer(newTestService()).Handler()
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/audit", nil).Code)

	entries := staticAudit{{Operation: "create_lot"}, {Operation: "create_transformation"}}
	h = NewServer(newTestService(), WithAuditReader(entries)).Handler()
	rec := do(t, h, http.MethodGet, "/audit?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[[]core.AuditEntry](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "create_lot", got[0].Operation)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/audit?limit=x", nil).Code)
}

func TestOperationalEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc := newTestService(core.WithMetricsRecorder(metrics.New(reg)))
	h := NewServer(svc, WithGatherer(reg), WithAllowedOrigins([]string{"https://dashboard.example"})).Handler()

	rec := do(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	createChain(t, h)
	rec = do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `agritrace_operation_total{operation="create_lot",status="success"} 1`)

	rec = do(t, h, http.MethodGet, "/openapi.yaml", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "openapi: 3.0.3")

	req := httptest.NewRequest(http.MethodOptions, "/lots", nil)
	req.Header.Set("Origin", "https://dashboard.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	pre := httptest.NewRecorder()
	h.ServeHTTP(pre, req)
	assert.Equal(t, "https://dashboard.example", pre.Header().Get("Access-Control-Allow-Origin"))
}
