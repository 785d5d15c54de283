package core

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"agritrace/internal/infra/persistence/memory"
	"agritrace/pkg/domain"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func fixtureLot() Lot {
	return Lot{
		Code:         "LOTE-2024-001",
		Location:     "Finca El Mirador, Piura",
		AreaHectares: 4.5,
		HarvestDate:  time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC),
		Responsible:  "Juan Pérez",
		Organic:      true,
	}
}

func fixtureTransformation(lotID string) Transformation {
	wash := time.Date(2024, 5, 31, 8, 0, 0, 0, time.UTC)
	return Transformation{
		LotID:              lotID,
		WashedAt:           wash,
		WashTemperature:    18.5,
		WashResponsible:    "María López",
		PackedAt:           wash.Add(6 * time.Hour),
		PackageType:        "Caja 4kg",
		UnitCount:          250,
		PackResponsible:    "Carlos Ruiz",
		QualityCheckedAt:   wash.Add(10 * time.Hour),
		QualityOutcome:     domain.QualityApproved,
		QualityResponsible: "Ana Torres",
	}
}

func fixtureLogistics(transformationID, guide string) Logistics {
	departed := time.Date(2024, 5, 31, 20, 0, 0, 0, time.UTC)
	return Logistics{
		TransformationID: transformationID,
		GuideNumber:      guide,
		Vehicle:          "ABC-123",
		Driver:           "Pedro Gómez",
		MinTemperature:   3,
		MaxTemperature:   7,
		AvgTemperature:   5,
		DepartedAt:       departed,
		DeliveredAt:      departed.Add(8 * time.Hour),
		Destination:      "Supermercado Central",
		State:            domain.StateInTransit,
	}
}

// sequenceSource yields ABCD0001, ABCD0002, ...
func sequenceSource() CodeSource {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("ABCD%04d", n.Add(1))
	}
}

func newTestStore(source CodeSource) *memory.Store {
	store := memory.NewStore(NewDefaultRulesEngine(), NewTraceCodeHook(NewTraceCodeAssignor(source)))
	store.SetNowFunc(func() time.Time { return testNow })
	return store
}

func newTestService(t *testing.T, source CodeSource, opts ...ServiceOption) *Service {
	t.Helper()
	opts = append([]ServiceOption{WithClock(ClockFunc(func() time.Time { return testNow }))}, opts...)
	return NewService(newTestStore(source), opts...)
}
