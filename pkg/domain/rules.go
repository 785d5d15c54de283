package domain

import (
	"context"
	"time"
)

// RuleView provides read-only access to traceability records for rule evaluation.
type RuleView interface {
	// Now returns the reference instant of the enclosing transaction.
	Now() time.Time
	ListLots() []Lot
	ListTransformations() []Transformation
	ListLogistics() []Logistics
	FindLot(id string) (Lot, bool)
	FindLotByCode(code string) (Lot, bool)
	FindTransformation(id string) (Transformation, bool)
	FindLogistics(id string) (Logistics, bool)
	FindLogisticsByTraceCode(code string) (Logistics, bool)
	TransformationsForLot(lotID string) []Transformation
	LogisticsForTransformation(transformationID string) []Logistics
}

// Rule defines an evaluation executed within a transaction boundary.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error)
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Rules returns the registered rule names in evaluation order.
func (e *RulesEngine) Rules() []string {
	names := make([]string, 0, len(e.rules))
	for _, rule := range e.rules {
		names = append(names, rule.Name())
	}
	return names
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}
