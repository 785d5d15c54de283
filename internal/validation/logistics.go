package validation

import (
	"time"

	"agritrace/pkg/domain"
)

var temperatureFields = []string{"min_temperature", "max_temperature", "avg_temperature"}

// TransportTemperatures requires 2.0 <= min <= avg <= max <= 8.0. Bounds are
// checked before coherence.
func TransportTemperatures(minC, maxC, avgC float64) error {
	switch {
	case !finite(minC):
		return domain.Failuref(domain.RuleTransportTemperature, []string{"min_temperature"},
			"minimum temperature (%v) is not a number", minC)
	case !finite(maxC):
		return domain.Failuref(domain.RuleTransportTemperature, []string{"max_temperature"},
			"maximum temperature (%v) is not a number", maxC)
	case !finite(avgC):
		return domain.Failuref(domain.RuleTransportTemperature, []string{"avg_temperature"},
			"average temperature (%v) is not a number", avgC)
	case minC < MinTransportTemp:
		return domain.Failuref(domain.RuleTransportTemperature, []string{"min_temperature"},
			"minimum temperature (%v°C) is below the allowed minimum (%v°C); the product may have deteriorated",
			minC, MinTransportTemp)
	case maxC > MaxTransportTemp:
		return domain.Failuref(domain.RuleTransportTemperature, []string{"max_temperature"},
			"maximum temperature (%v°C) is above the allowed maximum (%v°C); the product may have deteriorated",
			maxC, MaxTransportTemp)
	case avgC < MinTransportTemp:
		return domain.Failuref(domain.RuleTransportTemperature, []string{"avg_temperature"},
			"average temperature (%v°C) is below the allowed minimum (%v°C)", avgC, MinTransportTemp)
	case avgC > MaxTransportTemp:
		return domain.Failuref(domain.RuleTransportTemperature, []string{"avg_temperature"},
			"average temperature (%v°C) is above the allowed maximum (%v°C)", avgC, MaxTransportTemp)
	case minC > maxC:
		return domain.NewFailure(domain.RuleTransportTemperature,
			"minimum temperature cannot be greater than the maximum", "min_temperature", "max_temperature")
	case avgC < minC || avgC > maxC:
		return domain.NewFailure(domain.RuleTransportTemperature,
			"average temperature must lie between the minimum and the maximum", temperatureFields...)
	}
	return nil
}

// TransportDates requires delivery >= departure and a transport duration
// between one minute and 72 hours inclusive.
func TransportDates(departed, delivered time.Time) error {
	fields := []string{"departed_at", "delivered_at"}
	if delivered.Before(departed) {
		return domain.NewFailure(domain.RuleTransportDates,
			"delivery date cannot be earlier than the departure date", fields...)
	}
	elapsed := delivered.Sub(departed)
	if elapsed > MaxTransportDuration {
		return domain.Failuref(domain.RuleTransportDates, fields,
			"transport time (%s) cannot exceed 72 hours", elapsed)
	}
	if elapsed < MinTransportDuration {
		return domain.Failuref(domain.RuleTransportDates, fields,
			"transport time (%s) must be at least 1 minute", elapsed)
	}
	return nil
}

// GuideNumber requires a guide number of at least five characters.
func GuideNumber(guide string) error {
	if guide == "" {
		return domain.NewFailure(domain.RuleGuideNumberFormat, "guide number is required", "guide_number")
	}
	if len([]rune(guide)) < MinGuideNumberLength {
		return domain.Failuref(domain.RuleGuideNumberFormat, []string{"guide_number"},
			"guide number %q must have at least %d characters", guide, MinGuideNumberLength)
	}
	return nil
}

// DeliveryState requires one of IN_TRANSIT, DELIVERED or DELAYED.
func DeliveryState(state domain.DeliveryState) error {
	if !state.Valid() {
		return domain.Failuref(domain.RuleDeliveryStateValue, []string{"state"},
			"delivery state %q is not one of %s, %s, %s", state,
			domain.StateInTransit, domain.StateDelivered, domain.StateDelayed)
	}
	return nil
}
