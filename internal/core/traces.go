package core

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

// TransformationTrace pairs a transformation with its logistics records.
type TransformationTrace struct {
	Transformation Transformation `json:"transformation"`
	Logistics      []Logistics    `json:"logistics"`
}

// TraceReport is the full chain of a lot together with its diagnostic result.
type TraceReport struct {
	Lot             Lot                   `json:"lot"`
	Transformations []TransformationTrace `json:"transformations"`
	Diagnosis       Diagnosis             `json:"diagnosis"`
	GeneratedAt     time.Time             `json:"generated_at"`
}

// Chain is a single lot → transformation → logistics path.
type Chain struct {
	Lot            Lot            `json:"lot"`
	Transformation Transformation `json:"transformation"`
	Logistics      Logistics      `json:"logistics"`
}

// TraceSummary describes how complete the chain of one lot is.
type TraceSummary struct {
	Lot                 Lot      `json:"lot"`
	TransformationCount int      `json:"transformation_count"`
	LogisticsCount      int      `json:"logistics_count"`
	HasTransformation   bool     `json:"has_transformation"`
	HasLogistics        bool     `json:"has_logistics"`
	Complete            bool     `json:"complete"`
	TraceCodes          []string `json:"trace_codes"`
}

// Stats is the dashboard summary of stored records.
type Stats struct {
	Lots                  int              `json:"lots"`
	Transformations       int              `json:"transformations"`
	Logistics             int              `json:"logistics"`
	ByState               map[string]int   `json:"by_state"`
	ByQualityOutcome      map[string]int   `json:"by_quality_outcome"`
	RecentLots            []Lot            `json:"recent_lots"`
	RecentTransformations []Transformation `json:"recent_transformations"`
	RecentLogistics       []Logistics      `json:"recent_logistics"`
}

// RecentLimit caps the recent records listed in Stats.
const RecentLimit = 5

// ErrEmptyTraceCode is returned when a lookup is attempted with a blank code.
var ErrEmptyTraceCode = errors.New("trace code is required")

func buildTraceReport(view TransactionView, lot Lot, generatedAt time.Time) TraceReport {
	transformations := view.TransformationsForLot(lot.ID)
	report := TraceReport{
		Lot:             lot,
		Transformations: make([]TransformationTrace, 0, len(transformations)),
		GeneratedAt:     generatedAt,
	}
	var logistics []Logistics
	for _, t := range transformations {
		ls := view.LogisticsForTransformation(t.ID)
		logistics = append(logistics, ls...)
		report.Transformations = append(report.Transformations, TransformationTrace{
			Transformation: t,
			Logistics:      append([]Logistics{}, ls...),
		})
	}
	report.Diagnosis = DiagnoseLot(lot, transformations, logistics)
	return report
}

// TraceLot builds the diagnostic trace report of a lot. Violations never fail
// the call; they are returned in the report's Diagnosis.
func (s *Service) TraceLot(ctx context.Context, lotID string) (TraceReport, error) {
	var report TraceReport
	err := s.store.View(ctx, func(view TransactionView) error {
		lot, ok := view.FindLot(lotID)
		if !ok {
			return ErrNotFound{Entity: EntityLot, ID: lotID}
		}
		report = buildTraceReport(view, lot, s.now())
		return nil
	})
	if err == nil && !report.Diagnosis.Valid() {
		s.logger.Warn("trace diagnosis found violations", "lot_code", report.Lot.Code, "violations", len(report.Diagnosis.Violations))
	}
	return report, err
}

// TraceLotByCode is TraceLot addressed by lot code.
func (s *Service) TraceLotByCode(ctx context.Context, code string) (TraceReport, error) {
	var report TraceReport
	err := s.store.View(ctx, func(view TransactionView) error {
		lot, ok := view.FindLotByCode(code)
		if !ok {
			return ErrNotFound{Entity: EntityLot, ID: code}
		}
		report = buildTraceReport(view, lot, s.now())
		return nil
	})
	return report, err
}

// TraceSummaries reports the chain completeness of every lot.
func (s *Service) TraceSummaries(ctx context.Context) ([]TraceSummary, error) {
	var out []TraceSummary
	err := s.store.View(ctx, func(view TransactionView) error {
		lots := view.ListLots()
		out = make([]TraceSummary, 0, len(lots))
		for _, lot := range lots {
			summary := TraceSummary{Lot: lot, TraceCodes: []string{}}
			for _, t := range view.TransformationsForLot(lot.ID) {
				summary.TransformationCount++
				for _, l := range view.LogisticsForTransformation(t.ID) {
					summary.LogisticsCount++
					if l.HasTraceCode() {
						summary.TraceCodes = append(summary.TraceCodes, l.TraceCodeValue())
					}
				}
			}
			summary.HasTransformation = summary.TransformationCount > 0
			summary.HasLogistics = summary.LogisticsCount > 0
			summary.Complete = summary.HasTransformation && summary.HasLogistics
			out = append(out, summary)
		}
		return nil
	})
	return out, err
}

// FindByTraceCode resolves a traceability code to its full chain.
func (s *Service) FindByTraceCode(ctx context.Context, code string) (Chain, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Chain{}, ErrEmptyTraceCode
	}
	var chain Chain
	err := s.store.View(ctx, func(view TransactionView) error {
		logistics, ok := view.FindLogisticsByTraceCode(code)
		if !ok {
			return ErrNotFound{Entity: EntityLogistics, ID: code}
		}
		transformation, ok := view.FindTransformation(logistics.TransformationID)
		if !ok {
			return ErrNotFound{Entity: EntityTransformation, ID: logistics.TransformationID}
		}
		lot, ok := view.FindLot(transformation.LotID)
		if !ok {
			return ErrNotFound{Entity: EntityLot, ID: transformation.LotID}
		}
		chain = Chain{Lot: lot, Transformation: transformation, Logistics: logistics}
		return nil
	})
	return chain, err
}

// Stats returns record counts and the most recently created records.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.store.View(ctx, func(view TransactionView) error {
		lots := view.ListLots()
		transformations := view.ListTransformations()
		logistics := view.ListLogistics()
		stats = Stats{
			Lots:             len(lots),
			Transformations:  len(transformations),
			Logistics:        len(logistics),
			ByState:          map[string]int{},
			ByQualityOutcome: map[string]int{},
		}
		for _, l := range logistics {
			stats.ByState[string(l.State)]++
		}
		for _, t := range transformations {
			stats.ByQualityOutcome[string(t.QualityOutcome)]++
		}
		sort.SliceStable(lots, func(i, j int) bool { return lots[i].CreatedAt.After(lots[j].CreatedAt) })
		sort.SliceStable(transformations, func(i, j int) bool { return transformations[i].CreatedAt.After(transformations[j].CreatedAt) })
		sort.SliceStable(logistics, func(i, j int) bool { return logistics[i].CreatedAt.After(logistics[j].CreatedAt) })
		stats.RecentLots = head(lots, RecentLimit)
		stats.RecentTransformations = head(transformations, RecentLimit)
		stats.RecentLogistics = head(logistics, RecentLimit)
		return nil
	})
	return stats, err
}

func head[T any](items []T, n int) []T {
	if len(items) > n {
		items = items[:n]
	}
	return append([]T{}, items...)
}
