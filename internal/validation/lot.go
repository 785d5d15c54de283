package validation

import (
	"time"
	"unicode"
	"unicode/utf8"

	"agritrace/pkg/domain"
)

// LotCode requires a code of at least three characters starting with a letter.
func LotCode(code string) error {
	if code == "" {
		return domain.NewFailure(domain.RuleLotCodeFormat, "lot code is required", "code")
	}
	if utf8.RuneCountInString(code) < MinLotCodeLength {
		return domain.Failuref(domain.RuleLotCodeFormat, []string{"code"},
			"lot code %q must have at least %d characters", code, MinLotCodeLength)
	}
	first, _ := utf8.DecodeRuneInString(code)
	if !unicode.IsLetter(first) {
		return domain.Failuref(domain.RuleLotCodeFormat, []string{"code"},
			"lot code %q must start with a letter", code)
	}
	return nil
}

// HarvestDate fails when the harvest day is after the day of now. Both are
// compared as UTC calendar dates.
func HarvestDate(harvest, now time.Time) error {
	if domain.CivilDate(harvest).After(domain.CivilDate(now)) {
		return domain.Failuref(domain.RuleHarvestDateFuture, []string{"harvest_date"},
			"harvest date %s cannot be in the future", harvest.UTC().Format(time.DateOnly))
	}
	return nil
}

// LotArea requires a cultivated area of at least 0.01 hectares.
func LotArea(hectares float64) error {
	if !finite(hectares) {
		return domain.Failuref(domain.RuleLotAreaPositive, []string{"area_hectares"},
			"lot area (%v) is not a number", hectares)
	}
	if hectares < MinLotAreaHectares {
		return domain.Failuref(domain.RuleLotAreaPositive, []string{"area_hectares"},
			"lot area (%v ha) must be at least %v ha", hectares, MinLotAreaHectares)
	}
	return nil
}
