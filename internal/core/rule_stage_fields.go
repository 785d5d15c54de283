package core

import (
	"context"

	"agritrace/internal/validation"
	"agritrace/pkg/domain"
)

// StageFieldsRule runs the stage validators on every record written in the
// transaction, using the transaction time as the reference instant.
func StageFieldsRule() domain.Rule {
	return stageFieldsRule{}
}

type stageFieldsRule struct{}

func (stageFieldsRule) Name() string { return "stage_fields" }

func (stageFieldsRule) Evaluate(_ context.Context, view domain.RuleView, changes []Change) (Result, error) {
	res := Result{}
	for _, id := range touched(changes, EntityLot) {
		if lot, ok := view.FindLot(id); ok {
			if err := appendFailure(&res, validation.Lot(lot, view.Now())); err != nil {
				return Result{}, err
			}
		}
	}
	for _, id := range touched(changes, EntityTransformation) {
		if t, ok := view.FindTransformation(id); ok {
			if err := appendFailure(&res, validation.Transformation(t)); err != nil {
				return Result{}, err
			}
		}
	}
	for _, id := range touched(changes, EntityLogistics) {
		if l, ok := view.FindLogistics(id); ok {
			if err := appendFailure(&res, validation.Logistics(l)); err != nil {
				return Result{}, err
			}
		}
	}
	return res, nil
}
