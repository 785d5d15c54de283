package core

import "agritrace/pkg/domain"

// ValidateChain certifies, in strict mode, that lot, transformation and
// logistics form one consistent chain. Referential linkage is checked before
// any temporal rule and the first failure is returned. The stage records are
// expected to have passed their own validators already.
func ValidateChain(lot Lot, transformation Transformation, logistics Logistics) error {
	if transformation.LotID != lot.ID {
		return domain.Failuref(domain.RuleChainLotReference, []string{"lot_id"},
			"transformation %s does not belong to lot %s", transformation.ID, lot.Code).
			On(EntityTransformation, transformation.ID)
	}
	if logistics.TransformationID != transformation.ID {
		return domain.Failuref(domain.RuleChainTransformationReference, []string{"transformation_id"},
			"logistics %s does not belong to transformation %s", logistics.GuideNumber, transformation.ID).
			On(EntityLogistics, logistics.ID)
	}
	if domain.CivilDate(transformation.WashedAt).Before(domain.CivilDate(lot.HarvestDate)) {
		return domain.NewFailure(domain.RuleChainWashAfterHarvest,
			"washing cannot happen before the harvest", "washed_at", "harvest_date").
			On(EntityTransformation, transformation.ID)
	}
	if logistics.DepartedAt.Before(transformation.QualityCheckedAt) {
		return domain.NewFailure(domain.RuleChainDepartureAfterQC,
			"transport cannot start before quality control", "departed_at", "quality_checked_at").
			On(EntityLogistics, logistics.ID)
	}
	return nil
}

// Diagnosis is the collect-all outcome of DiagnoseLot.
type Diagnosis struct {
	LotID string `json:"lot_id"`
	// Pairings counts the (transformation, logistics) pairs that were checked.
	Pairings int `json:"pairings"`
	// Unpaired counts transformations without logistics; they are not checked.
	Unpaired   int                        `json:"unpaired"`
	Violations []domain.ValidationFailure `json:"violations"`
}

// Valid reports whether no pairing produced a violation.
func (d Diagnosis) Valid() bool { return len(d.Violations) == 0 }

// Result exposes the violations as a domain.Result.
func (d Diagnosis) Result() Result {
	return Result{Violations: append([]domain.ValidationFailure(nil), d.Violations...)}
}

// DiagnoseLot runs ValidateChain over every (transformation, logistics) pairing
// under lot and collects every failure instead of stopping at the first one.
// Logistics are paired with the transformation they reference; transformations
// without logistics are skipped.
func DiagnoseLot(lot Lot, transformations []Transformation, logistics []Logistics) Diagnosis {
	byTransformation := make(map[string][]Logistics, len(transformations))
	for _, l := range logistics {
		byTransformation[l.TransformationID] = append(byTransformation[l.TransformationID], l)
	}
	diagnosis := Diagnosis{LotID: lot.ID, Violations: []domain.ValidationFailure{}}
	for _, t := range transformations {
		pairs := byTransformation[t.ID]
		if len(pairs) == 0 {
			diagnosis.Unpaired++
			continue
		}
		for _, l := range pairs {
			diagnosis.Pairings++
			if err := ValidateChain(lot, t, l); err != nil {
				if vf, ok := domain.AsValidationFailure(err); ok {
					diagnosis.Violations = append(diagnosis.Violations, *vf)
				}
			}
		}
	}
	return diagnosis
}
