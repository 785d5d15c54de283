package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agritrace/internal/blob"
)

// ErrNoBlobStore is returned by ExportTraceReport when no blob store is configured.
var ErrNoBlobStore = errors.New("trace report export requires a blob store")

const reportTimeLayout = "20060102T150405.000000000Z"

// TraceReportKey returns the blob key of a report generated at the given time.
func TraceReportKey(lotCode string, generatedAt time.Time) string {
	return fmt.Sprintf("reports/%s/%s.json", StripLotCode(lotCode), generatedAt.UTC().Format(reportTimeLayout))
}

// ExportTraceReport builds the diagnostic trace report of a lot and writes it
// as JSON to the configured blob store.
func (s *Service) ExportTraceReport(ctx context.Context, lotID string) (blob.Info, error) {
	var info blob.Info
	err := s.run(ctx, "export_trace_report", EntityLot, ActionUpdate, func(ctx context.Context) (string, error) {
		if s.blobs == nil {
			return lotID, ErrNoBlobStore
		}
		report, err := s.TraceLot(ctx, lotID)
		if err != nil {
			return lotID, err
		}
		payload, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return lotID, fmt.Errorf("encode trace report: %w", err)
		}
		info, err = s.blobs.Put(ctx, TraceReportKey(report.Lot.Code, report.GeneratedAt), bytes.NewReader(payload), blob.PutOptions{
			ContentType: "application/json",
			Metadata: map[string]string{
				"lot-code":   report.Lot.Code,
				"violations": fmt.Sprintf("%d", len(report.Diagnosis.Violations)),
			},
		})
		if err != nil {
			return lotID, fmt.Errorf("store trace report: %w", err)
		}
		return lotID, nil
	})
	return info, err
}

// ListTraceReports lists the exported reports of a lot code.
func (s *Service) ListTraceReports(ctx context.Context, lotCode string) ([]blob.Info, error) {
	if s.blobs == nil {
		return nil, ErrNoBlobStore
	}
	return s.blobs.List(ctx, "reports/"+StripLotCode(lotCode)+"/")
}
