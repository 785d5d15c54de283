package core

import (
	"context"

	"agritrace/pkg/domain"
)

// ChainIntegrityRule runs strict ValidateChain for every logistics record whose
// chain was touched by the transaction: written logistics, and the logistics
// depending on written transformations or lots.
func ChainIntegrityRule() domain.Rule {
	return chainIntegrityRule{}
}

type chainIntegrityRule struct{}

func (chainIntegrityRule) Name() string { return "chain_integrity" }

func (chainIntegrityRule) Evaluate(_ context.Context, view domain.RuleView, changes []Change) (Result, error) {
	affected := make(map[string]struct{})
	var order []string
	add := func(id string) {
		if _, ok := affected[id]; ok {
			return
		}
		affected[id] = struct{}{}
		order = append(order, id)
	}
	for _, id := range touched(changes, EntityLogistics) {
		add(id)
	}
	for _, id := range touched(changes, EntityTransformation) {
		for _, l := range view.LogisticsForTransformation(id) {
			add(l.ID)
		}
	}
	for _, id := range touched(changes, EntityLot) {
		for _, t := range view.TransformationsForLot(id) {
			for _, l := range view.LogisticsForTransformation(t.ID) {
				add(l.ID)
			}
		}
	}

	res := Result{}
	for _, id := range order {
		logistics, ok := view.FindLogistics(id)
		if !ok {
			continue
		}
		transformation, ok := view.FindTransformation(logistics.TransformationID)
		if !ok {
			res.Add(domain.Failuref(domain.RuleChainTransformationReference, []string{"transformation_id"},
				"logistics %s references missing transformation %s", logistics.GuideNumber, logistics.TransformationID).
				On(EntityLogistics, logistics.ID))
			continue
		}
		lot, ok := view.FindLot(transformation.LotID)
		if !ok {
			res.Add(domain.Failuref(domain.RuleChainLotReference, []string{"lot_id"},
				"transformation %s references missing lot %s", transformation.ID, transformation.LotID).
				On(EntityTransformation, transformation.ID))
			continue
		}
		if err := appendFailure(&res, ValidateChain(lot, transformation, logistics)); err != nil {
			return Result{}, err
		}
	}
	return res, nil
}
