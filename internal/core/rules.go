package core

import "agritrace/pkg/domain"

// NewRulesEngine constructs an empty engine instance.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set:
// stage field checks, strict chain integrity and the delivery transition guard.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(StageFieldsRule())
	engine.Register(ChainIntegrityRule())
	engine.Register(DeliveryTransitionRule())
	return engine
}

// touched returns the ids of entity records created or updated in changes, in
// first-seen order.
func touched(changes []Change, entity EntityType) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, change := range changes {
		if change.Entity != entity || change.Action == ActionDelete {
			continue
		}
		id := changeID(change.After)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

func changeID(payload any) string {
	switch v := payload.(type) {
	case Lot:
		return v.ID
	case Transformation:
		return v.ID
	case Logistics:
		return v.ID
	}
	return ""
}

func appendFailure(res *Result, err error) error {
	if err == nil {
		return nil
	}
	if vf, ok := domain.AsValidationFailure(err); ok {
		res.Add(vf)
		return nil
	}
	return err
}
