package core

import (
	"context"
	"strings"

	"agritrace/pkg/domain"
)

// DeliveryTransitionRule guards the logistics delivery state machine. States
// must be canonical and an assigned trace code never changes. A newly assigned
// code must belong to a DELIVERED record and be well formed for its lot, and no
// DELIVERED record commits without a code.
func DeliveryTransitionRule() domain.Rule {
	return deliveryTransitionRule{}
}

type deliveryTransitionRule struct{}

func (deliveryTransitionRule) Name() string { return "delivery_transition" }

func (deliveryTransitionRule) Evaluate(_ context.Context, view domain.RuleView, changes []Change) (Result, error) {
	initial := make(map[string]*Logistics)
	for _, change := range changes {
		if change.Entity != EntityLogistics || change.Action == ActionDelete {
			continue
		}
		after, ok := change.After.(Logistics)
		if !ok {
			continue
		}
		if _, seen := initial[after.ID]; seen {
			continue
		}
		if before, ok := change.Before.(Logistics); ok {
			initial[after.ID] = &before
		} else {
			initial[after.ID] = nil
		}
	}

	res := Result{}
	for _, id := range touched(changes, EntityLogistics) {
		final, ok := view.FindLogistics(id)
		if !ok {
			continue
		}
		if !final.State.Valid() {
			res.Add(domain.Failuref(domain.RuleDeliveryStateValue, []string{"state"},
				"logistics %s is set to invalid state %q", final.GuideNumber, final.State).
				On(EntityLogistics, id))
			continue
		}
		if before := initial[id]; before != nil && before.HasTraceCode() &&
			final.TraceCodeValue() != before.TraceCodeValue() {
			res.Add(domain.Failuref(domain.RuleTraceCodeImmutable, []string{"trace_code"},
				"trace code %s of logistics %s cannot be changed", before.TraceCodeValue(), final.GuideNumber).
				On(EntityLogistics, id))
			continue
		}
		if before := initial[id]; (before == nil || !before.HasTraceCode()) && final.HasTraceCode() {
			if reason := issuedCodeProblem(view, final); reason != "" {
				res.Add(domain.Failuref(domain.RuleTraceCodeInvalid, []string{"trace_code"},
					"trace code %q of logistics %s %s", final.TraceCodeValue(), final.GuideNumber, reason).
					On(EntityLogistics, id))
				continue
			}
		}
		if final.State == domain.StateDelivered && !final.HasTraceCode() {
			res.Add(domain.Failuref(domain.RuleTraceCodeMissing, []string{"trace_code"},
				"delivered logistics %s has no trace code", final.GuideNumber).
				On(EntityLogistics, id))
		}
	}
	return res, nil
}

// issuedCodeProblem describes why a freshly assigned code is unacceptable, or
// returns "" when it is well formed for the record's lot.
func issuedCodeProblem(view domain.RuleView, l Logistics) string {
	if l.State != domain.StateDelivered {
		return "was set before delivery"
	}
	code := l.TraceCodeValue()
	if !TraceCodePattern.MatchString(code) {
		return "is malformed"
	}
	tr, ok := view.FindTransformation(l.TransformationID)
	if !ok {
		return ""
	}
	lot, ok := view.FindLot(tr.LotID)
	if !ok {
		return ""
	}
	if !strings.HasPrefix(code, TraceCodePrefix+StripLotCode(lot.Code)+"-") {
		return "does not belong to lot " + lot.Code
	}
	return ""
}
