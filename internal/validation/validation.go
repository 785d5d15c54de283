// Package validation implements the per-stage business rules of the
// traceability chain. Every check is a pure function: it returns nil on success
// or a *domain.ValidationFailure naming the rule, the offending fields and the
// reason. Limits are inclusive: only values strictly beyond them fail.
package validation

import (
	"math"
	"time"

	"agritrace/pkg/domain"
)

// Stage limits.
const (
	MinLotCodeLength     = 3
	MinLotAreaHectares   = 0.01
	MinWashTemperature   = 10.0
	MaxWashTemperature   = 40.0
	MaxUnitCount         = 100000
	MinTransportTemp     = 2.0
	MaxTransportTemp     = 8.0
	MinTransportDuration = time.Minute
	MaxTransportDuration = 72 * time.Hour
	MinGuideNumberLength = 5
)

// finite reports whether v is a usable measurement. NaN compares false against
// every limit and would otherwise slip through the range checks.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Lot runs every lot check, fail-fast, against the reference instant now.
func Lot(lot domain.Lot, now time.Time) error {
	checks := []func() error{
		func() error { return LotCode(lot.Code) },
		func() error { return LotArea(lot.AreaHectares) },
		func() error { return HarvestDate(lot.HarvestDate, now) },
	}
	return attribute(domain.EntityLot, lot.ID, checks)
}

// Transformation runs the field checks of a transformation before its
// sub-stage sequence check.
func Transformation(t domain.Transformation) error {
	checks := []func() error{
		func() error { return WashTemperature(t.WashTemperature) },
		func() error { return UnitCount(t.UnitCount) },
		func() error { return QualityOutcome(t.QualityOutcome) },
		func() error { return StageSequence(t.WashedAt, t.PackedAt, t.QualityCheckedAt) },
	}
	return attribute(domain.EntityTransformation, t.ID, checks)
}

// Logistics runs the field checks of a logistics record before its temperature
// and date relationship checks.
func Logistics(l domain.Logistics) error {
	checks := []func() error{
		func() error { return GuideNumber(l.GuideNumber) },
		func() error { return DeliveryState(l.State) },
		func() error { return TransportTemperatures(l.MinTemperature, l.MaxTemperature, l.AvgTemperature) },
		func() error { return TransportDates(l.DepartedAt, l.DeliveredAt) },
	}
	return attribute(domain.EntityLogistics, l.ID, checks)
}

func attribute(entity domain.EntityType, id string, checks []func() error) error {
	for _, check := range checks {
		if err := check(); err != nil {
			if vf, ok := domain.AsValidationFailure(err); ok {
				return vf.On(entity, id)
			}
			return err
		}
	}
	return nil
}
