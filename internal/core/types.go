package core

import "agritrace/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Base               = domain.Base
	Lot                = domain.Lot
	Transformation     = domain.Transformation
	Logistics          = domain.Logistics
	DeliveryState      = domain.DeliveryState
	QualityOutcome     = domain.QualityOutcome
	Change             = domain.Change
	Action             = domain.Action
	Result             = domain.Result
	ValidationFailure  = domain.ValidationFailure
	RuleViolationError = domain.RuleViolationError
	RulesEngine        = domain.RulesEngine
	ErrNotFound        = domain.ErrNotFound
	ErrDuplicate       = domain.ErrDuplicate
)

const (
	EntityLot            = domain.EntityLot
	EntityTransformation = domain.EntityTransformation
	EntityLogistics      = domain.EntityLogistics
)

const (
	StateInTransit = domain.StateInTransit
	StateDelivered = domain.StateDelivered
	StateDelayed   = domain.StateDelayed
)

const (
	QualityApproved    = domain.QualityApproved
	QualityConditional = domain.QualityConditional
	QualityRejected    = domain.QualityRejected
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
