package validation

import (
	"time"

	"agritrace/pkg/domain"
)

// WashTemperature requires 10.0 <= celsius <= 40.0.
func WashTemperature(celsius float64) error {
	if !finite(celsius) {
		return domain.Failuref(domain.RuleWashTemperatureRange, []string{"wash_temperature"},
			"wash temperature (%v) is not a number", celsius)
	}
	if celsius < MinWashTemperature {
		return domain.Failuref(domain.RuleWashTemperatureRange, []string{"wash_temperature"},
			"wash temperature (%v°C) is below the allowed minimum (%v°C)", celsius, MinWashTemperature)
	}
	if celsius > MaxWashTemperature {
		return domain.Failuref(domain.RuleWashTemperatureRange, []string{"wash_temperature"},
			"wash temperature (%v°C) is above the allowed maximum (%v°C)", celsius, MaxWashTemperature)
	}
	return nil
}

// StageSequence checks the three sub-stage timestamps together:
// wash <= pack <= quality control.
func StageSequence(washed, packed, checked time.Time) error {
	if packed.Before(washed) {
		return domain.NewFailure(domain.RuleTransformationSequence,
			"packing cannot happen before washing", "washed_at", "packed_at")
	}
	if checked.Before(packed) {
		return domain.NewFailure(domain.RuleTransformationSequence,
			"quality control cannot happen before packing", "packed_at", "quality_checked_at")
	}
	return nil
}

// UnitCount requires 0 < n <= 100000.
func UnitCount(n int) error {
	if n <= 0 {
		return domain.NewFailure(domain.RuleUnitCountRange, "unit count must be greater than zero", "unit_count")
	}
	if n > MaxUnitCount {
		return domain.Failuref(domain.RuleUnitCountRange, []string{"unit_count"},
			"unit count (%d) cannot exceed %d", n, MaxUnitCount)
	}
	return nil
}

// QualityOutcome requires one of APPROVED, CONDITIONAL or REJECTED.
func QualityOutcome(outcome domain.QualityOutcome) error {
	if !outcome.Valid() {
		return domain.Failuref(domain.RuleQualityOutcomeValue, []string{"quality_outcome"},
			"quality outcome %q is not one of %s, %s, %s", outcome,
			domain.QualityApproved, domain.QualityConditional, domain.QualityRejected)
	}
	return nil
}
