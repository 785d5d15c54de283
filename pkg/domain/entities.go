// Package domain defines the persistent traceability entities, value types, and
// rule evaluation primitives used by agritrace.
package domain

import (
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityLot identifies a cultivation lot record.
	EntityLot EntityType = "lot"
	// EntityTransformation identifies a wash/pack/quality-control record.
	EntityTransformation EntityType = "transformation"
	// EntityLogistics identifies a cold-chain transport record.
	EntityLogistics EntityType = "logistics"
)

// QualityOutcome enumerates quality-control results recorded on a transformation.
type QualityOutcome string

// Canonical quality-control outcomes.
const (
	QualityApproved    QualityOutcome = "APPROVED"
	QualityConditional QualityOutcome = "CONDITIONAL"
	QualityRejected    QualityOutcome = "REJECTED"
)

// Valid reports whether the outcome is one of the canonical values.
func (q QualityOutcome) Valid() bool {
	switch q {
	case QualityApproved, QualityConditional, QualityRejected:
		return true
	}
	return false
}

// DeliveryState enumerates the logistics transport states.
type DeliveryState string

// Canonical delivery states. DELIVERED is terminal with respect to trace code assignment.
const (
	StateInTransit DeliveryState = "IN_TRANSIT"
	StateDelivered DeliveryState = "DELIVERED"
	StateDelayed   DeliveryState = "DELAYED"
)

// Valid reports whether the state is one of the canonical values.
func (s DeliveryState) Valid() bool {
	switch s {
	case StateInTransit, StateDelivered, StateDelayed:
		return true
	}
	return false
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// DefaultProductType is applied to lots created without a product type.
const DefaultProductType = "Mango Orgánico"

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Lot is the cultivation lot a trace originates from.
type Lot struct {
	Base
	Code           string    `json:"code"`
	ProductType    string    `json:"product_type"`
	Location       string    `json:"location"`
	Latitude       *float64  `json:"latitude,omitempty"`
	Longitude      *float64  `json:"longitude,omitempty"`
	AreaHectares   float64   `json:"area_hectares"`
	HarvestDate    time.Time `json:"harvest_date"`
	Responsible    string    `json:"responsible"`
	Organic        bool      `json:"organic"`
	Certifications string    `json:"certifications,omitempty"`
}

// Transformation captures the wash, pack and quality-control processing of a lot.
type Transformation struct {
	Base
	LotID              string         `json:"lot_id"`
	WashedAt           time.Time      `json:"washed_at"`
	WashTemperature    float64        `json:"wash_temperature"`
	WashResponsible    string         `json:"wash_responsible"`
	PackedAt           time.Time      `json:"packed_at"`
	PackageType        string         `json:"package_type"`
	UnitCount          int            `json:"unit_count"`
	PackResponsible    string         `json:"pack_responsible"`
	QualityCheckedAt   time.Time      `json:"quality_checked_at"`
	QualityOutcome     QualityOutcome `json:"quality_outcome"`
	QualityNotes       *string        `json:"quality_notes,omitempty"`
	QualityResponsible string         `json:"quality_responsible"`
}

// Logistics is the cold-chain transport record of a transformed batch.
type Logistics struct {
	Base
	TransformationID   string        `json:"transformation_id"`
	GuideNumber        string        `json:"guide_number"`
	Vehicle            string        `json:"vehicle"`
	Driver             string        `json:"driver"`
	MinTemperature     float64       `json:"min_temperature"`
	MaxTemperature     float64       `json:"max_temperature"`
	AvgTemperature     float64       `json:"avg_temperature"`
	DepartedAt         time.Time     `json:"departed_at"`
	DeliveredAt        time.Time     `json:"delivered_at"`
	Destination        string        `json:"destination"`
	DestinationAddress string        `json:"destination_address"`
	State              DeliveryState `json:"state"`
	TraceCode          *string       `json:"trace_code"`
}

// HasTraceCode reports whether a non-empty traceability code is assigned.
func (l Logistics) HasTraceCode() bool {
	return l.TraceCode != nil && strings.TrimSpace(*l.TraceCode) != ""
}

// TraceCodeValue returns the assigned traceability code or "".
func (l Logistics) TraceCodeValue() string {
	if l.TraceCode == nil {
		return ""
	}
	return *l.TraceCode
}

// CivilDate truncates t to midnight UTC of its UTC calendar day.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Change describes a mutation applied to an entity during a transaction.
// Before and After hold entity values (Lot, Transformation or Logistics).
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)
