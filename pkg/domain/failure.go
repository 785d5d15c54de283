package domain

import (
	"errors"
	"fmt"
)

// RuleID identifies the rule that produced a ValidationFailure.
type RuleID string

// Stage rule identifiers.
const (
	RuleLotCodeFormat          RuleID = "lot_code_format"
	RuleHarvestDateFuture      RuleID = "harvest_date_future"
	RuleLotAreaPositive        RuleID = "lot_area_positive"
	RuleWashTemperatureRange   RuleID = "wash_temperature_range"
	RuleTransformationSequence RuleID = "transformation_sequence"
	RuleUnitCountRange         RuleID = "unit_count_range"
	RuleQualityOutcomeValue    RuleID = "quality_outcome_value"
	RuleTransportTemperature   RuleID = "transport_temperature"
	RuleTransportDates         RuleID = "transport_dates"
	RuleGuideNumberFormat      RuleID = "guide_number_format"
	RuleDeliveryStateValue     RuleID = "delivery_state_value"
)

// Chain and state-transition rule identifiers.
const (
	RuleChainLotReference            RuleID = "chain_lot_reference"
	RuleChainTransformationReference RuleID = "chain_transformation_reference"
	RuleChainWashAfterHarvest        RuleID = "chain_wash_after_harvest"
	RuleChainDepartureAfterQC        RuleID = "chain_departure_after_qc"
	RuleTraceCodeImmutable           RuleID = "trace_code_immutable"
	RuleTraceCodeMissing             RuleID = "trace_code_missing"
	RuleTraceCodeInvalid             RuleID = "trace_code_invalid"
)

// ValidationFailure is the single failure taxonomy of the traceability core. It
// names the failing rule, the offending fields and a human-readable reason.
type ValidationFailure struct {
	Rule     RuleID     `json:"rule"`
	Severity Severity   `json:"severity"`
	Entity   EntityType `json:"entity,omitempty"`
	EntityID string     `json:"entity_id,omitempty"`
	Fields   []string   `json:"fields,omitempty"`
	Message  string     `json:"message"`
}

// NewFailure builds a blocking failure for rule over the given fields.
func NewFailure(rule RuleID, message string, fields ...string) *ValidationFailure {
	return &ValidationFailure{
		Rule:     rule,
		Severity: SeverityBlock,
		Fields:   append([]string(nil), fields...),
		Message:  message,
	}
}

// Failuref is NewFailure with a formatted message.
func Failuref(rule RuleID, fields []string, format string, args ...any) *ValidationFailure {
	return NewFailure(rule, fmt.Sprintf(format, args...), fields...)
}

func (f *ValidationFailure) Error() string {
	return f.Message
}

// On returns a copy of the failure attributed to the given entity record.
func (f *ValidationFailure) On(entity EntityType, id string) *ValidationFailure {
	cp := *f
	cp.Fields = append([]string(nil), f.Fields...)
	cp.Entity = entity
	cp.EntityID = id
	return &cp
}

// AsValidationFailure unwraps err into a ValidationFailure when it carries one.
func AsValidationFailure(err error) (*ValidationFailure, bool) {
	var vf *ValidationFailure
	if errors.As(err, &vf) {
		return vf, true
	}
	return nil, false
}

// Result aggregates violations from the rules engine or a diagnostic pass.
type Result struct {
	Violations []ValidationFailure `json:"violations"`
}

// Add appends a single failure.
func (r *Result) Add(f *ValidationFailure) {
	if f == nil {
		return
	}
	r.Violations = append(r.Violations, *f)
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Message
		}
	}
	return "transaction blocked by rules"
}

// ErrNotFound is returned when a referenced record does not exist.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ErrDuplicate is returned when a write violates a uniqueness constraint.
type ErrDuplicate struct {
	Entity EntityType
	Field  string
	Value  string
}

func (e ErrDuplicate) Error() string {
	return fmt.Sprintf("%s with %s %q already exists", e.Entity, e.Field, e.Value)
}
